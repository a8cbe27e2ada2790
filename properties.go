package logconf

import (
	"io"
	"slices"
	"strings"

	"github.com/ansel1/merry/v2"
	"github.com/magiconair/properties"
)

// Properties file keys.  Loggers are configured under "logger.<name>.",
// with the root logger's attributes directly under "logger.".  Other
// objects are declared with "<kind>.<name>=<type>", and configured under
// "<kind>.<name>.":
//
//	loggers=org.acme
//	logger.level=INFO
//	logger.handlers=CONSOLE
//	logger.org.acme.level=DEBUG
//	handler.CONSOLE=ConsoleHandler
//	handler.CONSOLE.formatter=PATTERN
//	handler.CONSOLE.properties=autoFlush
//	handler.CONSOLE.autoFlush=true
//	formatter.PATTERN=PatternFormatter
//	formatter.PATTERN.properties=pattern
//	formatter.PATTERN.pattern=%d %-5p [%c] %s%e%n
//
// Objects are listed with "handlers=", "formatters=", "filters=",
// "errorManagers=" and "pojos=".  Without a list, every key of the form
// "<kind>.<name>" with no dot in the name declares an object.
const (
	keyLoggers       = "loggers"
	keyModule        = "module"
	keyProperties    = "properties"
	keyConstructor   = "constructorProperties"
	keyPostConfig    = "postConfiguration"
	keyLevel         = "level"
	keyFilter        = "filter"
	keyFormatter     = "formatter"
	keyEncoding      = "encoding"
	keyErrorManager  = "errorManager"
	keyHandlers      = "handlers"
	keyUseParentH    = "useParentHandlers"
	keyUseParentF    = "useParentFilters"
	prefixLogger     = "logger"
	prefixHandler    = "handler"
	prefixFormatter  = "formatter"
	prefixFilter     = "filter"
	prefixErrManager = "errorManager"
	prefixPojo       = "pojo"
)

// ReadProperties reads a document in properties format.  ${...}
// expressions are kept as written.
func ReadProperties(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, merry.Prepend(err, "reading properties")
	}

	l := properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}

	p, err := l.LoadBytes(data)
	if err != nil {
		return nil, merry.Errorf("%w: %w", ErrSyntax, err)
	}

	rd := propsReader{p: p}
	doc := &Document{}

	for _, name := range rd.loggerNames() {
		doc.Loggers = append(doc.Loggers, rd.logger(name))
	}

	for _, name := range rd.objectNames(prefixHandler, "handlers") {
		o, err := rd.object(prefixHandler, name)
		if err != nil {
			return nil, err
		}

		key := prefixHandler + "." + name + "."
		doc.Handlers = append(doc.Handlers, HandlerDoc{
			ObjectDoc:    o,
			Level:        rd.get(key + keyLevel),
			Formatter:    rd.get(key + keyFormatter),
			Filter:       rd.get(key + keyFilter),
			Encoding:     rd.get(key + keyEncoding),
			ErrorManager: rd.get(key + keyErrorManager),
			Handlers:     rd.list(key + keyHandlers),
		})
	}

	for _, k := range []struct {
		prefix, list string
		dst          *[]ObjectDoc
	}{
		{prefixFormatter, "formatters", &doc.Formatters},
		{prefixFilter, "filters", &doc.Filters},
		{prefixErrManager, "errorManagers", &doc.ErrorManagers},
		{prefixPojo, "pojos", &doc.Pojos},
	} {
		for _, name := range rd.objectNames(k.prefix, k.list) {
			o, err := rd.object(k.prefix, name)
			if err != nil {
				return nil, err
			}

			*k.dst = append(*k.dst, o)
		}
	}

	return doc, nil
}

type propsReader struct {
	p *properties.Properties
}

func (r propsReader) get(key string) string {
	v, _ := r.p.Get(key)
	return v
}

func (r propsReader) list(key string) []string {
	return splitList(r.get(key))
}

func splitList(s string) []string {
	var names []string

	for _, n := range strings.Split(s, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}

	return names
}

func (r propsReader) loggerNames() []string {
	var names []string

	for _, k := range []string{keyLevel, keyFilter, keyHandlers, keyUseParentH, keyUseParentF} {
		if _, ok := r.p.Get(prefixLogger + "." + k); ok {
			names = append(names, "")
			break
		}
	}

	for _, n := range r.list(keyLoggers) {
		if !slices.Contains(names, n) {
			names = append(names, n)
		}
	}

	return names
}

func (r propsReader) logger(name string) LoggerDoc {
	key := prefixLogger + "."
	if name != "" {
		key += name + "."
	}

	return LoggerDoc{
		Name:              name,
		Level:             r.get(key + keyLevel),
		Filter:            r.get(key + keyFilter),
		UseParentFilters:  r.get(key + keyUseParentF),
		UseParentHandlers: r.get(key + keyUseParentH),
		Handlers:          r.list(key + keyHandlers),
	}
}

func (r propsReader) objectNames(prefix, listKey string) []string {
	if _, ok := r.p.Get(listKey); ok {
		return r.list(listKey)
	}

	var names []string

	for _, k := range r.p.Keys() {
		name, ok := strings.CutPrefix(k, prefix+".")
		if ok && name != "" && !strings.Contains(name, ".") {
			names = append(names, name)
		}
	}

	return names
}

func (r propsReader) object(prefix, name string) (ObjectDoc, error) {
	key := prefix + "." + name

	typeName, ok := r.p.Get(key)
	if !ok || strings.TrimSpace(typeName) == "" {
		return ObjectDoc{}, merry.Errorf("%w: %s has no type", ErrInvalidValue, key)
	}

	o := ObjectDoc{
		Name:                  name,
		Module:                r.get(key + "." + keyModule),
		Type:                  strings.TrimSpace(typeName),
		ConstructorProperties: r.list(key + "." + keyConstructor),
		PostConfiguration:     r.list(key + "." + keyPostConfig),
	}

	props := r.list(key + "." + keyProperties)
	for _, c := range o.ConstructorProperties {
		if !slices.Contains(props, c) {
			props = append(props, c)
		}
	}

	for _, prop := range props {
		v, ok := r.p.Get(key + "." + prop)
		if !ok {
			continue
		}

		o.Properties = append(o.Properties, PropertyEntry{Name: prop, Value: v})
	}

	return o, nil
}

// WriteProperties writes doc in the format read by ReadProperties.
func WriteProperties(w io.Writer, doc *Document) error {
	p := properties.NewProperties()
	p.DisableExpansion = true

	pw := propsWriter{p: p}

	var loggers []string

	for _, l := range doc.Loggers {
		if l.Name != "" {
			loggers = append(loggers, l.Name)
		}
	}

	pw.list(keyLoggers, loggers)

	for _, l := range doc.Loggers {
		key := prefixLogger + "."
		if l.Name != "" {
			key += l.Name + "."
		}

		pw.set(key+keyLevel, l.Level)
		pw.set(key+keyFilter, l.Filter)
		pw.set(key+keyUseParentF, l.UseParentFilters)
		pw.set(key+keyUseParentH, l.UseParentHandlers)
		pw.list(key+keyHandlers, l.Handlers)
	}

	var handlers []string
	for _, h := range doc.Handlers {
		handlers = append(handlers, h.Name)
	}

	pw.list("handlers", handlers)

	for _, h := range doc.Handlers {
		key := prefixHandler + "." + h.Name + "."

		pw.object(prefixHandler, h.ObjectDoc)
		pw.set(key+keyLevel, h.Level)
		pw.set(key+keyEncoding, h.Encoding)
		pw.set(key+keyErrorManager, h.ErrorManager)
		pw.set(key+keyFilter, h.Filter)
		pw.set(key+keyFormatter, h.Formatter)
		pw.list(key+keyHandlers, h.Handlers)
	}

	for _, k := range []struct {
		prefix, list string
		docs         []ObjectDoc
	}{
		{prefixFormatter, "formatters", doc.Formatters},
		{prefixFilter, "filters", doc.Filters},
		{prefixErrManager, "errorManagers", doc.ErrorManagers},
		{prefixPojo, "pojos", doc.Pojos},
	} {
		var names []string
		for _, o := range k.docs {
			names = append(names, o.Name)
		}

		pw.list(k.list, names)

		for _, o := range k.docs {
			pw.object(k.prefix, o)
		}
	}

	if pw.err != nil {
		return pw.err
	}

	_, err := p.Write(w, properties.UTF8)

	return merry.Wrap(err)
}

type propsWriter struct {
	p   *properties.Properties
	err error
}

func (w *propsWriter) set(key, value string) {
	if value == "" || w.err != nil {
		return
	}

	_, _, w.err = w.p.Set(key, value)
}

func (w *propsWriter) list(key string, values []string) {
	w.set(key, strings.Join(values, ","))
}

func (w *propsWriter) object(prefix string, o ObjectDoc) {
	key := prefix + "." + o.Name

	w.set(key, o.Type)
	w.set(key+"."+keyModule, o.Module)
	w.list(key+"."+keyConstructor, o.ConstructorProperties)

	var names []string

	for _, p := range o.Properties {
		if !slices.Contains(o.ConstructorProperties, p.Name) {
			names = append(names, p.Name)
		}
	}

	w.list(key+"."+keyProperties, names)

	for _, p := range o.Properties {
		if w.err == nil {
			_, _, w.err = w.p.Set(key+"."+p.Name, p.Value)
		}
	}

	w.list(key+"."+keyPostConfig, o.PostConfiguration)
}
