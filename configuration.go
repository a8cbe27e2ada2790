// Package logconf manages the configuration of a logmanager.LogContext as a
// series of transactions.
//
// Loggers, handlers, formatters, filters, error managers and pojos (plain
// named objects) are described by configuration objects.  Changing a
// configuration object doesn't touch the running log manager; it queues an
// Action.  Prepare validates the whole queue, then applies it.  Commit makes
// the applied changes permanent, while Forget rolls every queued or applied
// action back:
//
//	c := logconf.New(logmanager.NewLogContext())
//	h, _ := c.AddHandlerConfiguration("", "ConsoleHandler", "CONSOLE")
//	_ = h.SetPropertyValueString("encoding", "UTF-8")
//	l, _ := c.AddLoggerConfiguration("")
//	_ = l.SetHandlerNames("CONSOLE")
//	if err := c.Commit(); err != nil {
//		c.Forget()
//	}
//
// Only validation failures are returned from Prepare and Commit.  Failures
// in the apply and rollback phases are logged, counted, and collected in
// Warnings.
//
// A Configuration is not safe for concurrent use.  Loggers, and the filters
// built from filter expressions, may be used while it changes.
package logconf

import (
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"github.com/ThalesGroup/flume/v2"
	"github.com/ThalesGroup/logconf/expression"
	"github.com/ThalesGroup/logconf/logmanager"
	"github.com/ansel1/merry/v2"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

var logger = flume.New("logconf")

// Configuration is the transaction coordinator for one LogContext.
type Configuration struct {
	logctx   *logmanager.LogContext
	registry *Registry
	resolver *expression.Resolver
	metrics  *Metrics

	configs [kindCount]map[string]entity
	refs    [kindCount]*refTable

	queue      []*queued
	postKeys   []string
	postQueues map[string][]*queued
	prepared   []*queued
	isPrepared bool

	txID     string
	warnings error
}

// Option configures a Configuration.
type Option func(*Configuration)

// WithRegistry sets the registry used to resolve type names.  Defaults to
// DefaultRegistry().
func WithRegistry(r *Registry) Option {
	return func(c *Configuration) {
		c.registry = r
	}
}

// WithResolver sets the resolver for property expressions.  Defaults to
// expression.DefaultResolver().
func WithResolver(r *expression.Resolver) Option {
	return func(c *Configuration) {
		c.resolver = r
	}
}

// WithMetrics records transaction outcomes and action failures.
func WithMetrics(m *Metrics) Option {
	return func(c *Configuration) {
		c.metrics = m
	}
}

// New creates a Configuration for ctx.  A nil ctx gets a new, empty
// LogContext.
func New(ctx *logmanager.LogContext, opts ...Option) *Configuration {
	if ctx == nil {
		ctx = logmanager.NewLogContext()
	}

	c := &Configuration{
		logctx:     ctx,
		postQueues: map[string][]*queued{},
	}

	for i := range c.configs {
		c.configs[i] = map[string]entity{}
		c.refs[i] = newRefTable()
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.registry == nil {
		c.registry = DefaultRegistry()
	}

	if c.resolver == nil {
		c.resolver = expression.DefaultResolver()
	}

	return c
}

// LogContext returns the configured LogContext.
func (c *Configuration) LogContext() *logmanager.LogContext {
	return c.logctx
}

// Registry returns the registry used to resolve type names.
func (c *Configuration) Registry() *Registry {
	return c.registry
}

// Resolver returns the resolver used for property expressions.
func (c *Configuration) Resolver() *expression.Resolver {
	return c.resolver
}

func quote(s string) string {
	return strconv.Quote(s)
}

func (c *Configuration) log() *slog.Logger {
	if c.txID == "" {
		return logger
	}

	return logger.With("tx", c.txID)
}

// TransactionID identifies the transaction in progress in log messages.
// Empty when no transaction is in progress.
func (c *Configuration) TransactionID() string {
	return c.txID
}

// describedAction names an action in logs and warnings.
type describedAction struct {
	Action
	desc string
}

func (a describedAction) String() string {
	return a.desc
}

func (c *Configuration) newQueued(a Action) *queued {
	desc := fmt.Sprintf("%T", a)
	if s, ok := a.(fmt.Stringer); ok {
		desc = s.String()
	}

	return &queued{action: a, desc: desc}
}

func (c *Configuration) beginTx() {
	if c.txID == "" {
		c.txID = uuid.NewString()
	}
}

// AddAction appends an action to the primary queue.
func (c *Configuration) AddAction(a Action) {
	c.beginTx()
	c.queue = append(c.queue, c.newQueued(a))
}

func (c *Configuration) enqueue(desc string, a Action) {
	c.AddAction(describedAction{Action: a, desc: desc})
}

// AddPostConfigurationActions sets the post configuration queue stored
// under key, replacing any queue already there.  An empty list removes the
// key.  Post configuration queues run, in the order their keys were first
// added, after the primary queue.
func (c *Configuration) AddPostConfigurationActions(key string, actions []Action) {
	if len(actions) == 0 {
		c.RemovePostConfigurationActions(key)
		return
	}

	c.beginTx()

	q := make([]*queued, 0, len(actions))
	for _, a := range actions {
		q = append(q, c.newQueued(a))
	}

	if _, ok := c.postQueues[key]; !ok {
		c.postKeys = append(c.postKeys, key)
	}

	c.postQueues[key] = q
}

// RemovePostConfigurationActions drops the post configuration queue stored
// under key.
func (c *Configuration) RemovePostConfigurationActions(key string) {
	if _, ok := c.postQueues[key]; !ok {
		return
	}

	delete(c.postQueues, key)
	c.postKeys = slices.DeleteFunc(c.postKeys, func(k string) bool { return k == key })
}

// PostConfigurationActionsExist returns true if a post configuration queue
// is stored under key.
func (c *Configuration) PostConfigurationActionsExist(key string) bool {
	_, ok := c.postQueues[key]
	return ok
}

// Prepare validates and applies the queued actions.  The primary queue runs
// first, then each post configuration queue.  Within each queue, every
// action is validated, then every action's ApplyPreCreate runs, then every
// action's ApplyPostCreate.
//
// If validation fails, the failing queue is left in place without any of
// its actions applied, and the error is returned.  Preparing again fails
// the same way; call Forget to discard it.
func (c *Configuration) Prepare() error {
	if !c.isPrepared && len(c.prepared) == 0 {
		c.warnings = nil
	}

	if err := c.run(c.queue); err != nil {
		c.metrics.transaction(outcomeInvalid)
		return err
	}

	c.queue = nil

	for len(c.postKeys) > 0 {
		key := c.postKeys[0]
		q := c.postQueues[key]

		c.postKeys = c.postKeys[1:]
		delete(c.postQueues, key)

		if err := c.run(q); err != nil {
			c.postKeys = append([]string{key}, c.postKeys...)
			c.postQueues[key] = q
			c.metrics.transaction(outcomeInvalid)

			return err
		}
	}

	c.isPrepared = true

	return nil
}

// run validates then applies one queue, appending it to the prepared
// queue.
func (c *Configuration) run(q []*queued) error {
	for _, e := range q {
		prepared, err := c.validate(e)
		if err != nil {
			for _, e := range q {
				e.state = StatePending
				e.prepared = nil
			}

			c.log().Debug("configuration validation failed", "action", e.desc, "error", err)

			return err
		}

		e.prepared = prepared
		e.state = StateValidated
	}

	for _, e := range q {
		c.apply(phasePreCreate, e, e.action.ApplyPreCreate)
	}

	for _, e := range q {
		c.apply(phasePostCreate, e, e.action.ApplyPostCreate)
		e.state = StateApplied
	}

	c.prepared = append(c.prepared, q...)

	return nil
}

func (c *Configuration) validate(e *queued) (prepared any, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = merry.Errorf("%w: %s: validation panicked: %v", ErrInvalidValue, e.desc, v)
		}
	}()

	return e.action.Validate()
}

const (
	phasePreCreate  = "apply pre create"
	phasePostCreate = "apply post create"
	phaseRollback   = "rollback"
)

func (c *Configuration) apply(phase string, e *queued, fn func(any) error) {
	defer func() {
		if v := recover(); v != nil {
			c.warn(phase, e, fmt.Errorf("panic: %v", v))
		}
	}()

	if err := fn(e.prepared); err != nil {
		c.warn(phase, e, err)
	}
}

func (c *Configuration) rollback(e *queued) {
	defer func() {
		if v := recover(); v != nil {
			c.warn(phaseRollback, e, fmt.Errorf("panic: %v", v))
		}
	}()

	if err := e.action.Rollback(); err != nil {
		c.warn(phaseRollback, e, err)
	}

	e.state = StateRolledBack
}

func (c *Configuration) warn(phase string, e *queued, err error) {
	c.warnings = multierr.Append(c.warnings, merry.Prependf(err, "%s: %s", e.desc, phase))
	c.log().Warn("configuration action failed", "action", e.desc, "phase", phase, "error", err)
	c.metrics.failure(phase)
}

// Warnings returns the failures swallowed during the current or most
// recent transaction, combined with multierr, or nil.
func (c *Configuration) Warnings() error {
	return c.warnings
}

// Commit prepares any actions not yet prepared, then discards the ability
// to roll back.
func (c *Configuration) Commit() error {
	if !c.isPrepared || len(c.queue) > 0 || len(c.postKeys) > 0 {
		if err := c.Prepare(); err != nil {
			return err
		}
	}

	for _, e := range c.prepared {
		e.state = StateCommitted
	}

	c.log().Debug("configuration committed", "actions", len(c.prepared), "warnings", len(multierr.Errors(c.warnings)))
	c.metrics.transaction(outcomeCommit)
	c.reset()

	return nil
}

// Forget rolls back every queued and applied action, newest first: the
// primary queue, then the prepared actions, then the post configuration
// queues.  Rollback failures are swallowed.
func (c *Configuration) Forget() {
	if len(c.queue) == 0 && len(c.prepared) == 0 && len(c.postKeys) == 0 {
		c.reset()
		return
	}

	for _, e := range slices.Backward(c.queue) {
		c.rollback(e)
	}

	for _, e := range slices.Backward(c.prepared) {
		c.rollback(e)
	}

	for _, key := range c.postKeys {
		for _, e := range slices.Backward(c.postQueues[key]) {
			c.rollback(e)
		}
	}

	c.log().Debug("configuration forgotten", "actions", len(c.queue)+len(c.prepared))
	c.metrics.transaction(outcomeForget)
	c.reset()
}

func (c *Configuration) reset() {
	c.queue = nil
	c.postKeys = nil
	c.postQueues = map[string][]*queued{}
	c.prepared = nil
	c.isPrepared = false
	c.txID = ""
}

// Prepared returns true between a successful Prepare and the following
// Commit or Forget.
func (c *Configuration) Prepared() bool {
	return c.isPrepared
}

// HasPendingActions returns true if there are actions which have not yet
// been prepared.
func (c *Configuration) HasPendingActions() bool {
	return len(c.queue) > 0 || len(c.postKeys) > 0
}

// Close forgets any pending work, and drops every configuration object.
// Live instances are left as they are.
func (c *Configuration) Close() {
	c.Forget()

	for i := range c.configs {
		c.configs[i] = map[string]entity{}
		c.refs[i].reset()
	}
}

// entity and instance bookkeeping

func (c *Configuration) entity(k Kind, name string) (entity, bool) {
	e, ok := c.configs[k][name]
	return e, ok
}

func (c *Configuration) names(k Kind) []string {
	names := make([]string, 0, len(c.configs[k]))
	for n := range c.configs[k] {
		names = append(names, n)
	}

	slices.Sort(names)

	return names
}

func (c *Configuration) ref(k Kind, name string) (any, bool) {
	return c.refs[k].get(name)
}

func (c *Configuration) refLookup(k Kind) func(string) (any, bool) {
	return func(name string) (any, bool) {
		return c.ref(k, name)
	}
}

// reference produces the instance of a named object.  In immediate mode the
// instance must already exist; otherwise the object only needs to be
// configured, and the returned producer looks the instance up on each call.
func (c *Configuration) reference(k Kind, name string, immediate bool) (Producer, error) {
	if immediate {
		v, ok := c.ref(k, name)
		if !ok {
			return nil, merry.Errorf("%w: %s %q has not been constructed", ErrNotFound, k, name)
		}

		return Immediate(v), nil
	}

	if _, ok := c.entity(k, name); !ok {
		return nil, merry.Errorf("%w: no %s named %q", ErrNotFound, k, name)
	}

	return Deferred(name, c.refLookup(k)), nil
}

// convert runs a value through a property's value type.
func (c *Configuration) convert(t *Type, prop string, vt ValueType, v expression.Value, immediate bool) (Producer, error) {
	if vt == nil {
		return nil, merry.Errorf("%w: property %q of %s has no value type", ErrUnknownType, prop, t.name)
	}

	p, err := vt.Convert(c, v, immediate)
	if err != nil {
		return nil, merry.Prependf(err, "property %q of %s", prop, t.name)
	}

	return p, nil
}

func (c *Configuration) checkNew(k Kind, name string) error {
	if _, ok := c.configs[k][name]; ok {
		return merry.Errorf("%w: %s %q", ErrExists, k, name)
	}

	return nil
}

// addPropertyConfiguration creates a property configuration and queues its
// construction.
func (c *Configuration) addPropertyConfiguration(k Kind, module, typeName, name string, ctorProps []string, wrap func(*PropertyConfiguration) entity) (entity, error) {
	if err := c.checkNew(k, name); err != nil {
		return nil, err
	}

	t, err := c.registry.Lookup(module, typeName)
	if err != nil {
		return nil, merry.Prependf(err, "%s %q", k, name)
	}

	p := &PropertyConfiguration{
		entityBase: entityBase{conf: c, kind: k, name: name},
		module:     module,
		typeName:   typeName,
		typ:        t,
		ctorProps:  slices.Clone(ctorProps),
	}

	e := wrap(p)
	c.configs[k][name] = e
	c.enqueue(p.describe("construct "+typeName), p.constructAction())

	return e, nil
}

// removeConfiguration drops a configuration object immediately, and queues
// the disposal of its instance.
func (c *Configuration) removeConfiguration(k Kind, name string) error {
	e, ok := c.entity(k, name)
	if !ok {
		return merry.Errorf("%w: %s %q", ErrNotFound, k, name)
	}

	b := e.base()
	delete(c.configs[k], name)
	b.removed = true

	var (
		instance any
		had      bool
		state    logmanager.LoggerState
	)

	c.enqueue(b.describe("remove"), ActionFuncs{
		PreCreateFn: func(any) error {
			instance, had = c.ref(k, name)
			if !had {
				return nil
			}

			c.refs[k].delete(name)

			if l, ok := instance.(*logmanager.Logger); ok {
				state = l.State()
				l.Reset()

				return nil
			}

			return dispose(instance)
		},
		RollbackFn: func() error {
			c.configs[k][name] = e
			b.removed = false

			if had {
				c.refs[k].set(name, instance)

				if l, ok := instance.(*logmanager.Logger); ok {
					l.Restore(state)
				}
			}

			return nil
		},
	})

	return nil
}

// Loggers

// AddLoggerConfiguration adds a logger.  The root logger is named "".
func (c *Configuration) AddLoggerConfiguration(name string) (*LoggerConfiguration, error) {
	if err := c.checkNew(KindLogger, name); err != nil {
		return nil, err
	}

	l := &LoggerConfiguration{entityBase: entityBase{conf: c, kind: KindLogger, name: name}}
	c.configs[KindLogger][name] = l
	c.enqueue(l.describe("add"), l.constructAction())

	return l, nil
}

// RemoveLoggerConfiguration drops the named logger.  Its live logger is
// reset when the removal is applied.
func (c *Configuration) RemoveLoggerConfiguration(name string) error {
	return c.removeConfiguration(KindLogger, name)
}

// LoggerConfiguration returns the named logger configuration, or nil.
func (c *Configuration) LoggerConfiguration(name string) *LoggerConfiguration {
	e, _ := c.entity(KindLogger, name)
	l, _ := e.(*LoggerConfiguration)

	return l
}

// LoggerNames returns the sorted names of the configured loggers.
func (c *Configuration) LoggerNames() []string {
	return c.names(KindLogger)
}

// Logger returns the live logger, once the configuration has been applied.
func (c *Configuration) Logger(name string) *logmanager.Logger {
	v, _ := c.ref(KindLogger, name)
	l, _ := v.(*logmanager.Logger)

	return l
}

// Handlers

// AddHandlerConfiguration adds a handler of the named type.  ctorProps
// names the properties passed to the constructor, in order.
func (c *Configuration) AddHandlerConfiguration(module, typeName, name string, ctorProps ...string) (*HandlerConfiguration, error) {
	e, err := c.addPropertyConfiguration(KindHandler, module, typeName, name, ctorProps, func(p *PropertyConfiguration) entity {
		return &HandlerConfiguration{PropertyConfiguration: p}
	})
	if err != nil {
		return nil, err
	}

	return e.(*HandlerConfiguration), nil //nolint:forcetypeassert
}

// RemoveHandlerConfiguration drops the named handler.  Its live handler is
// closed when the removal is applied.
func (c *Configuration) RemoveHandlerConfiguration(name string) error {
	return c.removeConfiguration(KindHandler, name)
}

// HandlerConfiguration returns the named handler configuration, or nil.
func (c *Configuration) HandlerConfiguration(name string) *HandlerConfiguration {
	e, _ := c.entity(KindHandler, name)
	h, _ := e.(*HandlerConfiguration)

	return h
}

// HandlerNames returns the sorted names of the configured handlers.
func (c *Configuration) HandlerNames() []string {
	return c.names(KindHandler)
}

// Handler returns the live handler, once the configuration has been
// applied.
func (c *Configuration) Handler(name string) logmanager.Handler {
	v, _ := c.ref(KindHandler, name)
	h, _ := v.(logmanager.Handler)

	return h
}

// Formatters

// AddFormatterConfiguration adds a formatter of the named type.
func (c *Configuration) AddFormatterConfiguration(module, typeName, name string, ctorProps ...string) (*FormatterConfiguration, error) {
	e, err := c.addPropertyConfiguration(KindFormatter, module, typeName, name, ctorProps, func(p *PropertyConfiguration) entity {
		return &FormatterConfiguration{PropertyConfiguration: p}
	})
	if err != nil {
		return nil, err
	}

	return e.(*FormatterConfiguration), nil //nolint:forcetypeassert
}

// RemoveFormatterConfiguration drops the named formatter.
func (c *Configuration) RemoveFormatterConfiguration(name string) error {
	return c.removeConfiguration(KindFormatter, name)
}

// FormatterConfiguration returns the named formatter configuration, or nil.
func (c *Configuration) FormatterConfiguration(name string) *FormatterConfiguration {
	e, _ := c.entity(KindFormatter, name)
	f, _ := e.(*FormatterConfiguration)

	return f
}

// FormatterNames returns the sorted names of the configured formatters.
func (c *Configuration) FormatterNames() []string {
	return c.names(KindFormatter)
}

// Formatter returns the live formatter, or nil.
func (c *Configuration) Formatter(name string) logmanager.Formatter {
	v, _ := c.ref(KindFormatter, name)
	f, _ := v.(logmanager.Formatter)

	return f
}

// Filters

// AddFilterConfiguration adds a named filter of the named type.  Filter
// expressions refer to it by name.
func (c *Configuration) AddFilterConfiguration(module, typeName, name string, ctorProps ...string) (*FilterConfiguration, error) {
	e, err := c.addPropertyConfiguration(KindFilter, module, typeName, name, ctorProps, func(p *PropertyConfiguration) entity {
		return &FilterConfiguration{PropertyConfiguration: p}
	})
	if err != nil {
		return nil, err
	}

	return e.(*FilterConfiguration), nil //nolint:forcetypeassert
}

// RemoveFilterConfiguration drops the named filter.  Expressions which
// refer to it accept every record once the removal is applied.
func (c *Configuration) RemoveFilterConfiguration(name string) error {
	return c.removeConfiguration(KindFilter, name)
}

// FilterConfiguration returns the named filter configuration, or nil.
func (c *Configuration) FilterConfiguration(name string) *FilterConfiguration {
	e, _ := c.entity(KindFilter, name)
	f, _ := e.(*FilterConfiguration)

	return f
}

// FilterNames returns the sorted names of the configured filters.
func (c *Configuration) FilterNames() []string {
	return c.names(KindFilter)
}

// Filter returns the live filter, or nil.
func (c *Configuration) Filter(name string) logmanager.Filter {
	v, _ := c.ref(KindFilter, name)
	f, _ := v.(logmanager.Filter)

	return f
}

// Error managers

// AddErrorManagerConfiguration adds an error manager of the named type.
func (c *Configuration) AddErrorManagerConfiguration(module, typeName, name string, ctorProps ...string) (*ErrorManagerConfiguration, error) {
	e, err := c.addPropertyConfiguration(KindErrorManager, module, typeName, name, ctorProps, func(p *PropertyConfiguration) entity {
		return &ErrorManagerConfiguration{PropertyConfiguration: p}
	})
	if err != nil {
		return nil, err
	}

	return e.(*ErrorManagerConfiguration), nil //nolint:forcetypeassert
}

// RemoveErrorManagerConfiguration drops the named error manager.
func (c *Configuration) RemoveErrorManagerConfiguration(name string) error {
	return c.removeConfiguration(KindErrorManager, name)
}

// ErrorManagerConfiguration returns the named error manager configuration,
// or nil.
func (c *Configuration) ErrorManagerConfiguration(name string) *ErrorManagerConfiguration {
	e, _ := c.entity(KindErrorManager, name)
	m, _ := e.(*ErrorManagerConfiguration)

	return m
}

// ErrorManagerNames returns the sorted names of the configured error
// managers.
func (c *Configuration) ErrorManagerNames() []string {
	return c.names(KindErrorManager)
}

// ErrorManager returns the live error manager, or nil.
func (c *Configuration) ErrorManager(name string) logmanager.ErrorManager {
	v, _ := c.ref(KindErrorManager, name)
	m, _ := v.(logmanager.ErrorManager)

	return m
}

// Pojos

// AddPojoConfiguration adds a plain object of the named type, which other
// objects can reference with TypePojo properties.
func (c *Configuration) AddPojoConfiguration(module, typeName, name string, ctorProps ...string) (*PojoConfiguration, error) {
	e, err := c.addPropertyConfiguration(KindPojo, module, typeName, name, ctorProps, func(p *PropertyConfiguration) entity {
		return &PojoConfiguration{PropertyConfiguration: p}
	})
	if err != nil {
		return nil, err
	}

	return e.(*PojoConfiguration), nil //nolint:forcetypeassert
}

// RemovePojoConfiguration drops the named pojo.  A live pojo which is an
// io.Closer is closed when the removal is applied.
func (c *Configuration) RemovePojoConfiguration(name string) error {
	return c.removeConfiguration(KindPojo, name)
}

// PojoConfiguration returns the named pojo configuration, or nil.
func (c *Configuration) PojoConfiguration(name string) *PojoConfiguration {
	e, _ := c.entity(KindPojo, name)
	p, _ := e.(*PojoConfiguration)

	return p
}

// PojoNames returns the sorted names of the configured pojos.
func (c *Configuration) PojoNames() []string {
	return c.names(KindPojo)
}

// Pojo returns the live pojo, or nil.
func (c *Configuration) Pojo(name string) any {
	v, _ := c.ref(KindPojo, name)
	return v
}
