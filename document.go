package logconf

import (
	"bytes"
	"slices"

	"github.com/ansel1/merry/v2"
	"github.com/goccy/go-json"
)

// Document is a complete configuration, as read from or written to a file.
// Values hold expression text, so "${log.dir}/app.log" survives a round
// trip unresolved.
type Document struct {
	Loggers       []LoggerDoc  `yaml:"loggers,omitempty" json:"loggers,omitempty"`
	Handlers      []HandlerDoc `yaml:"handlers,omitempty" json:"handlers,omitempty"`
	Formatters    []ObjectDoc  `yaml:"formatters,omitempty" json:"formatters,omitempty"`
	Filters       []ObjectDoc  `yaml:"filters,omitempty" json:"filters,omitempty"`
	ErrorManagers []ObjectDoc  `yaml:"errorManagers,omitempty" json:"errorManagers,omitempty"`
	Pojos         []ObjectDoc  `yaml:"pojos,omitempty" json:"pojos,omitempty"`
}

// PropertyEntry is one property of an ObjectDoc.
type PropertyEntry struct {
	Name  string
	Value string
}

// PropertyList is an ordered list of properties.  It is written as a map in
// YAML and JSON.
type PropertyList []PropertyEntry

// Get returns the value of the named property.
func (l PropertyList) Get(name string) (string, bool) {
	for _, p := range l {
		if p.Name == name {
			return p.Value, true
		}
	}

	return "", false
}

func (l PropertyList) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte('{')

	for i, p := range l {
		if i > 0 {
			buf.WriteByte(',')
		}

		k, err := json.Marshal(p.Name)
		if err != nil {
			return nil, err
		}

		v, err := json.Marshal(p.Value)
		if err != nil {
			return nil, err
		}

		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// ObjectDoc describes a handler, formatter, filter, error manager or pojo.
type ObjectDoc struct {
	Name                  string       `yaml:"name" json:"name"`
	Module                string       `yaml:"module,omitempty" json:"module,omitempty"`
	Type                  string       `yaml:"type" json:"type"`
	ConstructorProperties []string     `yaml:"constructorProperties,omitempty" json:"constructorProperties,omitempty"`
	Properties            PropertyList `yaml:"properties,omitempty" json:"properties,omitempty"`
	PostConfiguration     []string     `yaml:"postConfiguration,omitempty" json:"postConfiguration,omitempty"`
}

type HandlerDoc struct {
	ObjectDoc `yaml:",inline"`

	Level        string   `yaml:"level,omitempty" json:"level,omitempty"`
	Formatter    string   `yaml:"formatter,omitempty" json:"formatter,omitempty"`
	Filter       string   `yaml:"filter,omitempty" json:"filter,omitempty"`
	Encoding     string   `yaml:"encoding,omitempty" json:"encoding,omitempty"`
	ErrorManager string   `yaml:"errorManager,omitempty" json:"errorManager,omitempty"`
	Handlers     []string `yaml:"handlers,omitempty" json:"handlers,omitempty"`
}

type LoggerDoc struct {
	Name              string   `yaml:"name" json:"name"`
	Level             string   `yaml:"level,omitempty" json:"level,omitempty"`
	Filter            string   `yaml:"filter,omitempty" json:"filter,omitempty"`
	UseParentFilters  string   `yaml:"useParentFilters,omitempty" json:"useParentFilters,omitempty"`
	UseParentHandlers string   `yaml:"useParentHandlers,omitempty" json:"useParentHandlers,omitempty"`
	Handlers          []string `yaml:"handlers,omitempty" json:"handlers,omitempty"`
}

// Export describes the current state of every configuration object.
// Pending changes are included.
func Export(c *Configuration) *Document {
	doc := &Document{}

	for _, name := range c.LoggerNames() {
		l := c.LoggerConfiguration(name)
		doc.Loggers = append(doc.Loggers, LoggerDoc{
			Name:              name,
			Level:             l.LevelExpression().String(),
			Filter:            l.FilterExpression().String(),
			UseParentFilters:  l.UseParentFiltersExpression().String(),
			UseParentHandlers: l.UseParentHandlersExpression().String(),
			Handlers:          l.HandlerNames(),
		})
	}

	for _, name := range c.HandlerNames() {
		h := c.HandlerConfiguration(name)
		doc.Handlers = append(doc.Handlers, HandlerDoc{
			ObjectDoc:    exportObject(h.PropertyConfiguration),
			Level:        h.LevelExpression().String(),
			Formatter:    h.FormatterNameExpression().String(),
			Filter:       h.FilterExpression().String(),
			Encoding:     h.EncodingExpression().String(),
			ErrorManager: h.ErrorManagerNameExpression().String(),
			Handlers:     h.HandlerNames(),
		})
	}

	for _, name := range c.FormatterNames() {
		doc.Formatters = append(doc.Formatters, exportObject(c.FormatterConfiguration(name).PropertyConfiguration))
	}

	for _, name := range c.FilterNames() {
		doc.Filters = append(doc.Filters, exportObject(c.FilterConfiguration(name).PropertyConfiguration))
	}

	for _, name := range c.ErrorManagerNames() {
		doc.ErrorManagers = append(doc.ErrorManagers, exportObject(c.ErrorManagerConfiguration(name).PropertyConfiguration))
	}

	for _, name := range c.PojoNames() {
		doc.Pojos = append(doc.Pojos, exportObject(c.PojoConfiguration(name).PropertyConfiguration))
	}

	return doc
}

func exportObject(p *PropertyConfiguration) ObjectDoc {
	o := ObjectDoc{
		Name:                  p.Name(),
		Module:                p.ModuleName(),
		Type:                  p.TypeName(),
		ConstructorProperties: p.ConstructorProperties(),
		PostConfiguration:     p.PostConfigurationMethods(),
	}

	for _, name := range p.PropertyNames() {
		o.Properties = append(o.Properties, PropertyEntry{Name: name, Value: p.PropertyValueExpression(name).String()})
	}

	return o
}

// Apply queues the changes which make c match doc: objects missing from
// doc are removed, new ones are added, and existing ones are updated.  An
// object whose type, module or constructor properties changed is replaced,
// and every reference to it is applied again.  The caller commits or
// forgets the changes.
func Apply(c *Configuration, doc *Document) error {
	a := &applier{c: c, replaced: map[string]bool{}}

	if err := a.removals(doc); err != nil {
		return err
	}

	kinds := []struct {
		kind Kind
		docs []ObjectDoc
	}{
		{KindPojo, doc.Pojos},
		{KindErrorManager, doc.ErrorManagers},
		{KindFilter, doc.Filters},
		{KindFormatter, doc.Formatters},
	}

	for _, k := range kinds {
		for _, o := range k.docs {
			if _, err := a.object(k.kind, o); err != nil {
				return err
			}
		}
	}

	for _, hd := range doc.Handlers {
		if err := a.handler(hd); err != nil {
			return err
		}
	}

	for _, ld := range doc.Loggers {
		if err := a.logger(ld); err != nil {
			return err
		}
	}

	return nil
}

type applier struct {
	c *Configuration
	// names of the objects replaced so far
	replaced map[string]bool
}

func (a *applier) removals(doc *Document) error {
	keep := map[Kind][]string{}

	for _, l := range doc.Loggers {
		keep[KindLogger] = append(keep[KindLogger], l.Name)
	}

	for _, h := range doc.Handlers {
		keep[KindHandler] = append(keep[KindHandler], h.Name)
	}

	for k, docs := range map[Kind][]ObjectDoc{
		KindFormatter:    doc.Formatters,
		KindFilter:       doc.Filters,
		KindErrorManager: doc.ErrorManagers,
		KindPojo:         doc.Pojos,
	} {
		for _, o := range docs {
			keep[k] = append(keep[k], o.Name)
		}
	}

	for _, k := range slices.Backward(Kinds) {
		for _, name := range a.c.names(k) {
			if slices.Contains(keep[k], name) {
				continue
			}

			if err := a.c.removeConfiguration(k, name); err != nil {
				return err
			}
		}
	}

	return nil
}

// stale returns true if text names a replaced object, or is a filter
// expression which might.
func (a *applier) stale(text string) bool {
	if len(a.replaced) == 0 || text == "" {
		return false
	}

	if a.replaced[text] {
		return true
	}

	toks, err := tokenize(text)
	if err != nil {
		return false
	}

	return slices.ContainsFunc(toks, func(t token) bool {
		return !t.str && a.replaced[t.text]
	})
}

func (a *applier) staleNames(names []string) bool {
	return slices.ContainsFunc(names, a.stale)
}

func (c *Configuration) addObject(k Kind, module, typeName, name string, ctorProps []string) (*PropertyConfiguration, error) {
	switch k {
	case KindHandler:
		h, err := c.AddHandlerConfiguration(module, typeName, name, ctorProps...)
		if err != nil {
			return nil, err
		}

		return h.PropertyConfiguration, nil
	case KindFormatter:
		f, err := c.AddFormatterConfiguration(module, typeName, name, ctorProps...)
		if err != nil {
			return nil, err
		}

		return f.PropertyConfiguration, nil
	case KindFilter:
		f, err := c.AddFilterConfiguration(module, typeName, name, ctorProps...)
		if err != nil {
			return nil, err
		}

		return f.PropertyConfiguration, nil
	case KindErrorManager:
		m, err := c.AddErrorManagerConfiguration(module, typeName, name, ctorProps...)
		if err != nil {
			return nil, err
		}

		return m.PropertyConfiguration, nil
	case KindPojo:
		p, err := c.AddPojoConfiguration(module, typeName, name, ctorProps...)
		if err != nil {
			return nil, err
		}

		return p.PropertyConfiguration, nil
	}

	return nil, merry.Errorf("%w: %s has no type", ErrInvalidArgument, k)
}

func propertyConfiguration(e entity) *PropertyConfiguration {
	switch v := e.(type) {
	case *HandlerConfiguration:
		return v.PropertyConfiguration
	case *FormatterConfiguration:
		return v.PropertyConfiguration
	case *FilterConfiguration:
		return v.PropertyConfiguration
	case *ErrorManagerConfiguration:
		return v.PropertyConfiguration
	case *PojoConfiguration:
		return v.PropertyConfiguration
	}

	return nil
}

// constructorChanged returns true if a constructor property has a new value,
// which means the object must be rebuilt.
func constructorChanged(p *PropertyConfiguration, o ObjectDoc) bool {
	for _, name := range p.ConstructorProperties() {
		v, _ := o.Properties.Get(name)
		if p.PropertyValueExpression(name).String() != v {
			return true
		}
	}

	return false
}

func (a *applier) object(k Kind, o ObjectDoc) (*PropertyConfiguration, error) {
	c := a.c

	var p *PropertyConfiguration

	if e, ok := c.entity(k, o.Name); ok {
		p = propertyConfiguration(e)

		if p.TypeName() != o.Type || p.ModuleName() != o.Module || !slices.Equal(p.ConstructorProperties(), o.ConstructorProperties) || constructorChanged(p, o) {
			if err := c.removeConfiguration(k, o.Name); err != nil {
				return nil, err
			}

			a.replaced[o.Name] = true
			p = nil
		}
	}

	if p == nil {
		var err error

		p, err = c.addObject(k, o.Module, o.Type, o.Name, o.ConstructorProperties)
		if err != nil {
			return nil, err
		}
	}

	for _, name := range p.PropertyNames() {
		if _, ok := o.Properties.Get(name); ok {
			continue
		}

		if _, err := p.RemoveProperty(name); err != nil {
			return nil, err
		}
	}

	for _, prop := range o.Properties {
		if p.HasProperty(prop.Name) && p.PropertyValueExpression(prop.Name).String() == prop.Value && !a.stale(prop.Value) {
			continue
		}

		if err := p.SetPropertyValueString(prop.Name, prop.Value); err != nil {
			return nil, err
		}
	}

	if !slices.Equal(p.PostConfigurationMethods(), o.PostConfiguration) {
		if err := p.SetPostConfigurationMethods(o.PostConfiguration...); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// attr calls set when the configured expression text differs from text, or
// refers to a replaced object.
func (a *applier) attr(current string, text string, set func(string) error) error {
	if current == text && !a.stale(text) {
		return nil
	}

	return set(text)
}

func (a *applier) handler(hd HandlerDoc) error {
	if _, err := a.object(KindHandler, hd.ObjectDoc); err != nil {
		return err
	}

	h := a.c.HandlerConfiguration(hd.Name)

	err := a.attr(h.LevelExpression().String(), hd.Level, h.SetLevel)
	if err == nil {
		err = a.attr(h.EncodingExpression().String(), hd.Encoding, h.SetEncoding)
	}

	if err == nil {
		err = a.attr(h.ErrorManagerNameExpression().String(), hd.ErrorManager, h.SetErrorManagerName)
	}

	if err == nil {
		err = a.attr(h.FormatterNameExpression().String(), hd.Formatter, h.SetFormatterName)
	}

	if err == nil {
		err = a.attr(h.FilterExpression().String(), hd.Filter, h.SetFilter)
	}

	if err == nil && (!slices.Equal(h.HandlerNames(), hd.Handlers) || a.staleNames(hd.Handlers)) {
		err = h.SetHandlerNames(hd.Handlers...)
	}

	return err
}

func (a *applier) logger(ld LoggerDoc) error {
	l := a.c.LoggerConfiguration(ld.Name)
	if l == nil {
		var err error

		l, err = a.c.AddLoggerConfiguration(ld.Name)
		if err != nil {
			return err
		}
	}

	err := a.attr(l.LevelExpression().String(), ld.Level, l.SetLevel)
	if err == nil {
		err = a.attr(l.FilterExpression().String(), ld.Filter, l.SetFilter)
	}

	if err == nil {
		err = a.attr(l.UseParentFiltersExpression().String(), ld.UseParentFilters, l.SetUseParentFilters)
	}

	if err == nil {
		err = a.attr(l.UseParentHandlersExpression().String(), ld.UseParentHandlers, l.SetUseParentHandlers)
	}

	if err == nil && (!slices.Equal(l.HandlerNames(), ld.Handlers) || a.staleNames(ld.Handlers)) {
		err = l.SetHandlerNames(ld.Handlers...)
	}

	return err
}
