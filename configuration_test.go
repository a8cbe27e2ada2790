package logconf_test

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ThalesGroup/flume/v2/flumetest"
	"github.com/ThalesGroup/logconf"
	"github.com/ThalesGroup/logconf/logconftest"
	"github.com/ThalesGroup/logconf/logmanager"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func newConfiguration(t *testing.T, opts ...logconf.Option) (*logconf.Configuration, *logmanager.LogContext) {
	t.Helper()

	// the configuration logs through flume; only show it if the test fails
	t.Cleanup(flumetest.Start(t))

	ctx := logmanager.NewLogContext()
	t.Cleanup(logconftest.Start(t, ctx))

	c := logconf.New(ctx, append([]logconf.Option{logconf.WithRegistry(logconftest.Registry())}, opts...)...)
	t.Cleanup(c.Close)

	return c, ctx
}

func recorder(t *testing.T, c *logconf.Configuration, name string) *logconftest.RecordingHandler {
	t.Helper()

	h, ok := c.Handler(name).(*logconftest.RecordingHandler)
	require.True(t, ok, "handler %q should be a live RecordingHandler", name)

	return h
}

func TestConsoleHandlerEncoding(t *testing.T) {
	c, _ := newConfiguration(t)

	h, err := c.AddHandlerConfiguration("", logconftest.ConsoleHandlerType, "CONSOLE")
	require.NoError(t, err)
	require.NoError(t, h.SetPropertyValueString("encoding", "UTF-8"))

	require.NoError(t, c.Commit())

	live := c.Handler("CONSOLE")
	require.NotNil(t, live)
	assert.Equal(t, "UTF-8", live.Encoding())
	assert.Equal(t, "UTF-8", h.PropertyValueString("encoding"))
	assert.NoError(t, c.Warnings())
}

func TestRemoveReferencedFormatter(t *testing.T) {
	c, _ := newConfiguration(t)

	h, err := c.AddHandlerConfiguration("", logconftest.RecordingHandlerType, "H1")
	require.NoError(t, err)
	_, err = c.AddFormatterConfiguration("", "JSONFormatter", "F1")
	require.NoError(t, err)
	require.NoError(t, h.SetFormatterName("F1"))
	require.NoError(t, c.Commit())

	f1 := c.Formatter("F1")
	require.NotNil(t, f1)
	assert.Same(t, f1, recorder(t, c, "H1").Formatter())

	// removal isn't blocked by references
	require.NoError(t, c.RemoveFormatterConfiguration("F1"))
	require.NoError(t, c.Commit())

	assert.Nil(t, c.FormatterConfiguration("F1"))
	assert.Nil(t, c.Formatter("F1"))
	assert.Equal(t, "F1", h.FormatterName())
	assert.False(t, h.Removed())

	// the dangling name fails the next time it is validated
	require.NoError(t, h.SetFormatterName("F1"))
	require.ErrorIs(t, c.Prepare(), logconf.ErrNotFound)
	c.Forget()

	assert.Equal(t, "F1", h.FormatterName())
}

func TestValidationFailureAppliesNothing(t *testing.T) {
	r := logconftest.Registry()

	b := logconf.NewType("Mystery", func() *logconftest.Widget { return &logconftest.Widget{} })
	logconf.Property(b, "label", nil, nil, func(w *logconftest.Widget, v string) { w.Label = v })
	r.Register("", b.Type())

	c, ctx := newConfiguration(t, logconf.WithRegistry(r))

	_, err := c.AddLoggerConfiguration("app")
	require.NoError(t, err)

	p, err := c.AddPojoConfiguration("", "Mystery", "M")
	require.NoError(t, err)
	require.NoError(t, p.SetPropertyValueString("label", "x"))

	err = c.Prepare()
	require.ErrorIs(t, err, logconf.ErrUnknownType)

	assert.False(t, c.Prepared())
	assert.True(t, c.HasPendingActions())
	assert.Nil(t, c.Logger("app"))
	assert.Nil(t, c.Pojo("M"))

	_, ok := ctx.LookupLogger("app")
	assert.False(t, ok, "logger should not have been created")

	// commit fails the same way
	require.ErrorIs(t, c.Commit(), logconf.ErrUnknownType)

	c.Forget()

	assert.False(t, c.HasPendingActions())
	assert.Nil(t, c.LoggerConfiguration("app"))
	assert.Nil(t, c.PojoConfiguration("M"))
}

func TestAddExisting(t *testing.T) {
	c, _ := newConfiguration(t)

	_, err := c.AddHandlerConfiguration("", logconftest.RecordingHandlerType, "H")
	require.NoError(t, err)
	_, err = c.AddLoggerConfiguration("app")
	require.NoError(t, err)

	tests := []struct {
		name string
		add  func() error
	}{
		{"handler", func() error {
			_, err := c.AddHandlerConfiguration("", "ConsoleHandler", "H")
			return err
		}},
		{"logger", func() error {
			_, err := c.AddLoggerConfiguration("app")
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, tt.add(), logconf.ErrExists)
		})
	}

	assert.Equal(t, []string{"H"}, c.HandlerNames())
	assert.Equal(t, logconftest.RecordingHandlerType, c.HandlerConfiguration("H").TypeName())
	assert.Equal(t, []string{"app"}, c.LoggerNames())

	require.NoError(t, c.Commit())

	_, ok := c.Handler("H").(*logconftest.RecordingHandler)
	assert.True(t, ok)
}

func TestAddErrors(t *testing.T) {
	c, _ := newConfiguration(t)

	_, err := c.AddHandlerConfiguration("", "NoSuchHandler", "H")
	require.ErrorIs(t, err, logconf.ErrUnknownType)
	assert.Nil(t, c.HandlerConfiguration("H"))

	_, err = c.AddHandlerConfiguration("elsewhere", "ConsoleHandler", "H")
	require.ErrorIs(t, err, logconf.ErrUnknownType)

	require.ErrorIs(t, c.RemoveHandlerConfiguration("H"), logconf.ErrNotFound)
	require.ErrorIs(t, c.RemoveLoggerConfiguration("nope"), logconf.ErrNotFound)

	h, err := c.AddHandlerConfiguration("", logconftest.RecordingHandlerType, "H")
	require.NoError(t, err)

	require.ErrorIs(t, h.SetPropertyValueString("bogus", "1"), logconf.ErrNoSuchProperty)
	_, err = h.AddPostConfigurationMethod("bogus")
	require.ErrorIs(t, err, logconf.ErrNoSuchMethod)
	require.ErrorIs(t, h.SetHandlerNames("X"), logconf.ErrNestedHandlersUnsupported)
	_, err = h.AddHandlerName("X")
	require.ErrorIs(t, err, logconf.ErrNestedHandlersUnsupported)

	require.NoError(t, c.RemoveHandlerConfiguration("H"))
	assert.True(t, h.Removed())
	require.ErrorIs(t, h.SetPropertyValueString("tag", "x"), logconf.ErrRemoved)
	require.ErrorIs(t, h.SetLevel("INFO"), logconf.ErrRemoved)
}

func TestForgetRestoresProperties(t *testing.T) {
	c, _ := newConfiguration(t)

	h, err := c.AddHandlerConfiguration("", logconftest.RecordingHandlerType, "H")
	require.NoError(t, err)
	require.NoError(t, h.SetPropertyValueString("tag", "a"))
	require.NoError(t, c.Commit())

	live := recorder(t, c, "H")
	assert.Equal(t, "a", live.Tag())

	require.NoError(t, h.SetPropertyValueString("tag", "b"))
	require.NoError(t, h.SetLevel("WARN"))
	require.NoError(t, c.Prepare())

	assert.Equal(t, "b", live.Tag())
	assert.Equal(t, logmanager.LevelWarn, live.Level())

	c.Forget()

	assert.Equal(t, "a", live.Tag())
	assert.Equal(t, "a", h.PropertyValueString("tag"))
	assert.Equal(t, logmanager.LevelAll, live.Level())
	assert.Empty(t, h.Level())

	// forgetting again changes nothing
	c.Forget()

	assert.Equal(t, "a", live.Tag())
	assert.Same(t, live, c.Handler("H"))
	assert.Zero(t, live.Closed())
}

func TestForgetUnsetProperty(t *testing.T) {
	c, _ := newConfiguration(t)

	_, err := c.AddPojoConfiguration("", logconftest.WidgetType, "W")
	require.NoError(t, err)
	require.NoError(t, c.Commit())

	w := c.Pojo("W").(*logconftest.Widget) //nolint:forcetypeassert
	p := c.PojoConfiguration("W")

	require.NoError(t, p.SetPropertyValueString("size", "7"))
	require.NoError(t, c.Prepare())
	assert.Equal(t, 7, w.Size)

	c.Forget()

	assert.Zero(t, w.Size)
	assert.False(t, p.HasProperty("size"))
}

func TestForgetNewObjects(t *testing.T) {
	c, _ := newConfiguration(t)

	_, err := c.AddHandlerConfiguration("", logconftest.RecordingHandlerType, "H")
	require.NoError(t, err)
	l, err := c.AddLoggerConfiguration("app")
	require.NoError(t, err)
	require.NoError(t, l.SetHandlerNames("H"))

	require.NoError(t, c.Prepare())

	live := recorder(t, c, "H")
	require.NotNil(t, c.Logger("app"))

	c.Forget()

	assert.Nil(t, c.HandlerConfiguration("H"))
	assert.Nil(t, c.Handler("H"))
	assert.Nil(t, c.LoggerConfiguration("app"))
	assert.Nil(t, c.Logger("app"))
	assert.Equal(t, 1, live.Closed(), "rolled back handler should be closed")
	assert.Empty(t, c.TransactionID())
}

func TestPostConfigurationMethods(t *testing.T) {
	c, _ := newConfiguration(t)

	p, err := c.AddPojoConfiguration("", logconftest.WidgetType, "W")
	require.NoError(t, err)
	require.NoError(t, p.SetPostConfigurationMethods("m1", "m2", "m1"))
	assert.Equal(t, []string{"m1", "m2"}, p.PostConfigurationMethods())

	require.NoError(t, c.Commit())

	w := c.Pojo("W").(*logconftest.Widget) //nolint:forcetypeassert
	assert.Equal(t, []string{"m1", "m2"}, w.Calls)

	// several property changes in one batch run the methods once
	require.NoError(t, p.SetPropertyValueString("size", "3"))
	require.NoError(t, p.SetPropertyValueString("enabled", "true"))
	require.NoError(t, c.Commit())

	assert.Equal(t, []string{"m1", "m2", "m1", "m2"}, w.Calls)
	assert.Equal(t, 3, w.Size)
	assert.True(t, w.Enabled)

	removed, err := p.RemovePostConfigurationMethod("m1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = p.RemovePostConfigurationMethod("m1")
	require.NoError(t, err)
	assert.False(t, removed)

	require.NoError(t, c.Commit())
	assert.Equal(t, []string{"m1", "m2", "m1", "m2", "m2"}, w.Calls)

	added, err := p.AddPostConfigurationMethod("m2")
	require.NoError(t, err)
	assert.False(t, added)
}

func TestPostConfigurationActions(t *testing.T) {
	c, _ := newConfiguration(t)

	var calls []string

	action := func(name string) logconf.Action {
		return logconf.ActionFuncs{
			PostCreateFn: func(any) error {
				calls = append(calls, name)
				return nil
			},
		}
	}

	c.AddPostConfigurationActions("b", []logconf.Action{action("b1")})
	c.AddPostConfigurationActions("a", []logconf.Action{action("a1"), action("a2")})
	c.AddPostConfigurationActions("b", []logconf.Action{action("b2")})
	c.AddAction(action("primary"))

	assert.True(t, c.PostConfigurationActionsExist("a"))
	assert.True(t, c.HasPendingActions())

	c.AddPostConfigurationActions("c", []logconf.Action{action("c1")})
	c.AddPostConfigurationActions("c", nil)
	assert.False(t, c.PostConfigurationActionsExist("c"))

	require.NoError(t, c.Commit())

	assert.Equal(t, []string{"primary", "b2", "a1", "a2"}, calls)
	assert.False(t, c.PostConfigurationActionsExist("a"))
}

func TestPrepareOrder(t *testing.T) {
	c, _ := newConfiguration(t)

	var calls []string

	action := func(name string) logconf.Action {
		return logconf.ActionFuncs{
			ValidateFn: func() (any, error) {
				calls = append(calls, name+" validate")
				return nil, nil
			},
			PreCreateFn: func(any) error {
				calls = append(calls, name+" pre")
				return nil
			},
			PostCreateFn: func(any) error {
				calls = append(calls, name+" post")
				return nil
			},
			RollbackFn: func() error {
				calls = append(calls, name+" rollback")
				return nil
			},
		}
	}

	c.AddAction(action("a"))
	c.AddAction(action("b"))
	require.NoError(t, c.Prepare())
	assert.True(t, c.Prepared())
	assert.NotEmpty(t, c.TransactionID())

	c.Forget()

	assert.Equal(t, []string{
		"a validate", "b validate",
		"a pre", "b pre",
		"a post", "b post",
		"b rollback", "a rollback",
	}, calls)
}

func TestApplyFailuresAreWarnings(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, _ := newConfiguration(t, logconf.WithMetrics(logconf.NewMetrics(reg)))

	ran := false

	c.AddAction(logconf.ActionFuncs{
		PreCreateFn: func(any) error {
			panic("boom")
		},
	})
	c.AddAction(logconf.ActionFuncs{
		PostCreateFn: func(any) error {
			ran = true
			return assert.AnError
		},
	})

	require.NoError(t, c.Commit())
	assert.True(t, ran)

	warnings := multierr.Errors(c.Warnings())
	require.Len(t, warnings, 2)
	assert.Contains(t, warnings[0].Error(), "boom")
	require.ErrorIs(t, warnings[1], assert.AnError)

	expected := `
# HELP logconf_action_failures_total Configuration action failures which were logged and ignored, by phase.
# TYPE logconf_action_failures_total counter
logconf_action_failures_total{phase="apply post create"} 1
logconf_action_failures_total{phase="apply pre create"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "logconf_action_failures_total"))
}

func TestTransactionMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, _ := newConfiguration(t, logconf.WithMetrics(logconf.NewMetrics(reg)))

	_, err := c.AddLoggerConfiguration("app")
	require.NoError(t, err)
	require.NoError(t, c.Commit())

	l := c.LoggerConfiguration("app")
	require.NoError(t, l.SetLevel("NOT_A_LEVEL"))
	require.Error(t, c.Prepare())
	c.Forget()

	require.NoError(t, l.SetLevel("INFO"))
	c.Forget()

	expected := `
# HELP logconf_transactions_total Configuration transactions, by outcome (commit, forget or invalid).
# TYPE logconf_transactions_total counter
logconf_transactions_total{outcome="commit"} 1
logconf_transactions_total{outcome="forget"} 2
logconf_transactions_total{outcome="invalid"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "logconf_transactions_total"))
	assert.Empty(t, l.Level())
}

func TestLoggerConfiguration(t *testing.T) {
	c, ctx := newConfiguration(t)

	_, err := c.AddHandlerConfiguration("", logconftest.RecordingHandlerType, "REC")
	require.NoError(t, err)

	l, err := c.AddLoggerConfiguration("app")
	require.NoError(t, err)
	require.NoError(t, l.SetLevel("WARN"))
	require.NoError(t, l.SetHandlerNames("REC", "REC"))
	require.NoError(t, l.SetUseParentHandlers("false"))
	assert.Equal(t, []string{"REC"}, l.HandlerNames())

	require.NoError(t, c.Commit())

	app := ctx.Logger("app")
	assert.Same(t, app, c.Logger("app"))
	assert.Equal(t, logmanager.LevelWarn, app.EffectiveLevel())
	assert.False(t, app.UseParentHandlers())

	app.Log(logmanager.LevelInfo, "dropped")
	app.Log(logmanager.LevelWarn, "kept")
	ctx.Logger("app.child").Log(logmanager.LevelError, "child")

	rec := recorder(t, c, "REC")
	assert.Equal(t, []string{"kept", "child"}, rec.Messages())

	// clearing the level inherits the parent's
	require.NoError(t, l.SetLevel(""))
	require.NoError(t, l.SetUseParentHandlers(""))
	require.NoError(t, c.Commit())

	assert.Nil(t, app.Level())
	assert.True(t, app.UseParentHandlers())

	removed, err := l.RemoveHandlerName("REC")
	require.NoError(t, err)
	assert.True(t, removed)
	require.NoError(t, c.Commit())
	assert.Empty(t, app.Handlers())
}

func TestRemoveLogger(t *testing.T) {
	c, ctx := newConfiguration(t)

	_, err := c.AddHandlerConfiguration("", logconftest.RecordingHandlerType, "REC")
	require.NoError(t, err)

	l, err := c.AddLoggerConfiguration("app")
	require.NoError(t, err)
	require.NoError(t, l.SetLevel("ERROR"))
	require.NoError(t, l.SetHandlerNames("REC"))
	require.NoError(t, c.Commit())

	app := ctx.Logger("app")
	rec := recorder(t, c, "REC")

	require.NoError(t, c.RemoveLoggerConfiguration("app"))
	assert.True(t, l.Removed())
	require.NoError(t, c.Prepare())

	assert.Nil(t, app.Level())
	assert.Empty(t, app.Handlers())

	c.Forget()

	assert.Same(t, l, c.LoggerConfiguration("app"))
	assert.False(t, l.Removed())
	assert.Same(t, app, c.Logger("app"))
	assert.Equal(t, logmanager.LevelError, app.EffectiveLevel())
	require.Len(t, app.Handlers(), 1)
	assert.Same(t, rec, app.Handlers()[0])

	require.NoError(t, c.RemoveLoggerConfiguration("app"))
	require.NoError(t, c.Commit())

	assert.Nil(t, c.Logger("app"))
	assert.Empty(t, app.Handlers())
	assert.Empty(t, c.LoggerNames())
}

func TestHandlerAttributes(t *testing.T) {
	c, _ := newConfiguration(t)

	_, err := c.AddFilterConfiguration("", logconftest.RecordingFilterType, "F")
	require.NoError(t, err)
	_, err = c.AddFormatterConfiguration("", "PatternFormatter", "P", "pattern")
	require.NoError(t, err)
	require.NoError(t, c.FormatterConfiguration("P").SetPropertyValueString("pattern", "%p %m"))
	_, err = c.AddErrorManagerConfiguration("", "OnlyOnceErrorManager", "E")
	require.NoError(t, err)

	h, err := c.AddHandlerConfiguration("", logconftest.RecordingHandlerType, "H")
	require.NoError(t, err)
	require.NoError(t, h.SetFormatterName("P"))
	require.NoError(t, h.SetFilter("F"))
	require.NoError(t, h.SetErrorManagerName("E"))
	require.NoError(t, h.SetEncoding("ISO-8859-1"))
	require.NoError(t, h.SetLevel("INFO"))

	require.NoError(t, c.Commit())

	live := recorder(t, c, "H")
	assert.Same(t, c.Formatter("P"), live.Formatter())
	assert.Same(t, c.Filter("F"), live.Filter())
	assert.Same(t, c.ErrorManager("E"), live.ErrorManager())
	assert.Equal(t, "ISO-8859-1", live.Encoding())
	assert.Equal(t, logmanager.LevelInfo, live.Level())

	live.Publish(logmanager.NewRecord(logmanager.LevelWarn, "app", "hello"))
	assert.Equal(t, []string{"WARN hello"}, live.Messages())
	assert.Equal(t, 1, c.Filter("F").(*logconftest.RecordingFilter).Seen()) //nolint:forcetypeassert

	// the pattern is a constructor property, fixed once constructed
	err = c.FormatterConfiguration("P").SetPropertyValueString("pattern", "%m")
	require.ErrorIs(t, err, logconf.ErrInvalidValue)

	require.NoError(t, h.SetEncoding("NOT-A-CHARSET"))
	require.ErrorIs(t, c.Prepare(), logconf.ErrInvalidValue)
	c.Forget()

	assert.Equal(t, "ISO-8859-1", h.Encoding())
}

func TestNestedHandlers(t *testing.T) {
	c, _ := newConfiguration(t)

	for _, name := range []string{"R1", "R2"} {
		_, err := c.AddHandlerConfiguration("", logconftest.RecordingHandlerType, name)
		require.NoError(t, err)
	}

	m, err := c.AddHandlerConfiguration("", "MultiHandler", "M")
	require.NoError(t, err)
	assert.True(t, m.Type().Nested())
	require.NoError(t, m.SetHandlerNames("R1", "R2"))
	require.NoError(t, c.Commit())

	multi, ok := c.Handler("M").(*logmanager.MultiHandler)
	require.True(t, ok)
	require.Len(t, multi.Handlers(), 2)

	multi.Publish(logmanager.NewRecord(logmanager.LevelInfo, "", "fan out"))
	assert.Equal(t, []string{"fan out"}, recorder(t, c, "R1").Messages())
	assert.Equal(t, []string{"fan out"}, recorder(t, c, "R2").Messages())

	removed, err := m.RemoveHandlerName("R1")
	require.NoError(t, err)
	assert.True(t, removed)
	require.NoError(t, c.Commit())
	assert.Len(t, multi.Handlers(), 1)

	added, err := m.AddHandlerName("nope")
	require.NoError(t, err)
	assert.True(t, added)
	require.ErrorIs(t, c.Prepare(), logconf.ErrNotFound)
	c.Forget()

	assert.Equal(t, []string{"R2"}, m.HandlerNames())
}

func TestConstructorProperties(t *testing.T) {
	c, _ := newConfiguration(t)

	p, err := c.AddPojoConfiguration("", logconftest.WidgetType, "W", "label")
	require.NoError(t, err)
	assert.True(t, p.HasConstructorProperty("Label"))

	// no value for the constructor property
	require.ErrorIs(t, c.Prepare(), logconf.ErrInvalidValue)
	c.Forget()

	p, err = c.AddPojoConfiguration("", logconftest.WidgetType, "W", "label")
	require.NoError(t, err)
	require.NoError(t, p.SetPropertyValueString("label", "hello"))
	require.NoError(t, p.SetPropertyValueString("Size", "2"))
	require.NoError(t, c.Commit())

	w := c.Pojo("W").(*logconftest.Widget) //nolint:forcetypeassert
	assert.Equal(t, "hello", w.Label)
	assert.Equal(t, 2, w.Size)
	assert.Equal(t, []string{"label", "size"}, p.PropertyNames())

	err = p.SetPropertyValueString("label", "bye")
	require.ErrorIs(t, err, logconf.ErrInvalidValue)
	_, err = p.RemoveProperty("label")
	require.ErrorIs(t, err, logconf.ErrInvalidValue)

	// size is a property, but no constructor takes it
	_, err = c.AddPojoConfiguration("", logconftest.WidgetType, "W2", "size")
	require.NoError(t, err)
	require.NoError(t, c.PojoConfiguration("W2").SetPropertyValueString("size", "1"))
	require.ErrorIs(t, c.Prepare(), logconf.ErrNoSuchProperty)
	c.Forget()

	// append is a constructor parameter, but only alongside fileName
	f, err := c.AddHandlerConfiguration("", "FileHandler", "F", "append")
	require.NoError(t, err)
	require.NoError(t, f.SetPropertyValueString("append", "true"))
	require.ErrorIs(t, c.Prepare(), logconf.ErrNoConstructor)
}

func TestPojoReferences(t *testing.T) {
	c, _ := newConfiguration(t)

	_, err := c.AddHandlerConfiguration("", logconftest.RecordingHandlerType, "H")
	require.NoError(t, err)

	p, err := c.AddPojoConfiguration("", logconftest.WidgetType, "W")
	require.NoError(t, err)
	require.NoError(t, p.SetPropertyValueString("handler", "H"))
	require.NoError(t, c.Commit())

	w := c.Pojo("W").(*logconftest.Widget) //nolint:forcetypeassert
	assert.Same(t, c.Handler("H"), w.Handler)

	removed, err := p.RemoveProperty("handler")
	require.NoError(t, err)
	assert.True(t, removed)
	require.NoError(t, c.Commit())
	assert.Nil(t, w.Handler)

	require.NoError(t, p.SetPropertyValueString("size", "big"))
	require.ErrorIs(t, c.Prepare(), logconf.ErrInvalidValue)
}

func TestPropertyExpressions(t *testing.T) {
	c, _ := newConfiguration(t)

	p, err := c.AddPojoConfiguration("", logconftest.WidgetType, "W")
	require.NoError(t, err)
	require.NoError(t, p.SetPropertyValueString("label", "${logconf.test.undefined:fallback}"))
	require.NoError(t, p.SetPropertyValueExpression("size", "${width}", "12"))
	require.NoError(t, c.Commit())

	w := c.Pojo("W").(*logconftest.Widget) //nolint:forcetypeassert
	assert.Equal(t, "fallback", w.Label)
	assert.Equal(t, 12, w.Size)

	assert.Equal(t, "${logconf.test.undefined:fallback}", p.PropertyValueExpression("label").String())
	assert.Equal(t, "fallback", p.PropertyValueString("label"))
	assert.Equal(t, "${width}", p.PropertyValueExpression("size").Expression())
}

func TestLogWhileCommitting(t *testing.T) {
	c, ctx := newConfiguration(t)

	_, err := c.AddFilterConfiguration("", logconftest.RecordingFilterType, "F")
	require.NoError(t, err)

	l, err := c.AddLoggerConfiguration("app")
	require.NoError(t, err)
	require.NoError(t, l.SetFilter("all(F, accept)"))
	require.NoError(t, l.SetUseParentHandlers("false"))
	require.NoError(t, c.Commit())

	app := ctx.Logger("app")

	var (
		wg     sync.WaitGroup
		logged atomic.Int64
		done   = make(chan struct{})
	)

	wg.Add(1)

	go func() {
		defer wg.Done()

		for {
			select {
			case <-done:
				return
			default:
				app.Log(logmanager.LevelInfo, "busy")
				logged.Add(1)
			}
		}
	}()

	// each commit drops the live filter and registers a new one
	for range 500 {
		require.NoError(t, c.RemoveFilterConfiguration("F"))
		_, err := c.AddFilterConfiguration("", logconftest.RecordingFilterType, "F")
		require.NoError(t, err)
		require.NoError(t, c.Commit())
	}

	close(done)
	wg.Wait()

	assert.Positive(t, logged.Load())
	assert.NotNil(t, c.Filter("F"))
}

// closeCounter is a pojo which counts calls to Close.
type closeCounter struct {
	closes int
}

func (c *closeCounter) Close() error {
	c.closes++
	return nil
}

func TestPrepareAgainDisposesUnusedInstances(t *testing.T) {
	var built []*closeCounter

	reg := logconftest.Registry()
	reg.Register("", logconf.NewType("CloseCounter", func() *closeCounter {
		cc := &closeCounter{}
		built = append(built, cc)

		return cc
	}).Type())

	c, _ := newConfiguration(t, logconf.WithRegistry(reg))

	_, err := c.AddPojoConfiguration("", "CloseCounter", "RES")
	require.NoError(t, err)

	h, err := c.AddHandlerConfiguration("", logconftest.RecordingHandlerType, "REC")
	require.NoError(t, err)
	require.NoError(t, h.SetErrorManagerName("NOPE"))

	require.ErrorIs(t, c.Prepare(), logconf.ErrNotFound)
	require.Len(t, built, 1)
	assert.Zero(t, built[0].closes)

	// the failing action is still queued, so fixing the name doesn't help
	require.NoError(t, h.SetErrorManagerName(""))
	require.ErrorIs(t, c.Prepare(), logconf.ErrNotFound)
	require.Len(t, built, 2)
	assert.Equal(t, 1, built[0].closes)
	assert.Zero(t, built[1].closes)

	c.Forget()

	assert.Equal(t, 1, built[0].closes)
	assert.Equal(t, 1, built[1].closes)
	assert.Nil(t, c.PojoConfiguration("RES"))
	assert.Nil(t, c.Pojo("RES"))
}
