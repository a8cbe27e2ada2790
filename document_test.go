package logconf_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ThalesGroup/logconf"
	"github.com/ThalesGroup/logconf/expression"
	"github.com/ThalesGroup/logconf/logconftest"
	"github.com/ThalesGroup/logconf/logmanager"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleProperties = `
loggers=org.acme
logger.level=INFO
logger.handlers=CONSOLE
logger.org.acme.level=${acme.level:DEBUG}
logger.org.acme.useParentHandlers=false

handler.CONSOLE=RecordingHandler
handler.CONSOLE.formatter=PATTERN
handler.CONSOLE.properties=tag
handler.CONSOLE.tag=${tag.value:console}

formatter.PATTERN=PatternFormatter
formatter.PATTERN.constructorProperties=pattern
formatter.PATTERN.pattern=%p %m

pojo.W=Widget
pojo.W.properties=size,label
pojo.W.size=3
pojo.W.label=
pojo.W.postConfiguration=m1,m2
`

func sampleDocument() *logconf.Document {
	return &logconf.Document{
		Loggers: []logconf.LoggerDoc{
			{Name: "", Level: "INFO", Handlers: []string{"CONSOLE"}},
			{Name: "org.acme", Level: "${acme.level:DEBUG}", UseParentHandlers: "false"},
		},
		Handlers: []logconf.HandlerDoc{
			{
				ObjectDoc: logconf.ObjectDoc{
					Name:       "CONSOLE",
					Type:       logconftest.RecordingHandlerType,
					Properties: logconf.PropertyList{{Name: "tag", Value: "${tag.value:console}"}},
				},
				Formatter: "PATTERN",
			},
		},
		Formatters: []logconf.ObjectDoc{
			{
				Name:                  "PATTERN",
				Type:                  "PatternFormatter",
				ConstructorProperties: []string{"pattern"},
				Properties:            logconf.PropertyList{{Name: "pattern", Value: "%p %m"}},
			},
		},
		Pojos: []logconf.ObjectDoc{
			{
				Name:              "W",
				Type:              logconftest.WidgetType,
				Properties:        logconf.PropertyList{{Name: "size", Value: "3"}, {Name: "label", Value: ""}},
				PostConfiguration: []string{"m1", "m2"},
			},
		},
	}
}

func TestReadProperties(t *testing.T) {
	doc, err := logconf.ReadProperties(strings.NewReader(sampleProperties))
	require.NoError(t, err)
	assert.Equal(t, sampleDocument(), doc)
}

func TestReadPropertiesErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "no type", input: "handlers=H\nhandler.H.level=INFO\n"},
		{name: "blank type", input: "handler.H= \n"},
		{name: "bad escape", input: "handler.H=\\u12\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := logconf.ReadProperties(strings.NewReader(tt.input))
			require.ErrorIs(t, err, logconf.ErrInvalidArgument)
		})
	}
}

func TestReadPropertiesLists(t *testing.T) {
	// the handlers list limits which handlers are read
	doc, err := logconf.ReadProperties(strings.NewReader(`
handlers=B, A
handler.A=ConsoleHandler
handler.B=ConsoleHandler
handler.C=ConsoleHandler
handler.A.handlers=X,,Y
`))
	require.NoError(t, err)
	require.Len(t, doc.Handlers, 2)
	assert.Equal(t, "B", doc.Handlers[0].Name)
	assert.Equal(t, "A", doc.Handlers[1].Name)
	assert.Equal(t, []string{"X", "Y"}, doc.Handlers[1].Handlers)
	assert.Empty(t, doc.Loggers)
}

func TestPropertiesRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, logconf.WriteProperties(&buf, sampleDocument()))

	out := buf.String()
	assert.Contains(t, out, "logger.org.acme.level = ${acme.level:DEBUG}")
	assert.Contains(t, out, "handler.CONSOLE.tag = ${tag.value:console}")
	assert.NotContains(t, out, "formatter.PATTERN.properties")

	doc, err := logconf.ReadProperties(&buf)
	require.NoError(t, err)
	assert.Equal(t, sampleDocument(), doc)
}

func TestYAMLRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, logconf.WriteYAML(&buf, sampleDocument()))

	out := buf.String()
	assert.Contains(t, out, "${acme.level:DEBUG}")
	// properties keep their order, and their values stay strings
	assert.Less(t, strings.Index(out, "size:"), strings.Index(out, "label:"))
	assert.Contains(t, out, `size: "3"`)

	doc, err := logconf.ReadYAML(&buf)
	require.NoError(t, err)
	assert.Equal(t, sampleDocument(), doc)
}

func TestReadYAML(t *testing.T) {
	doc, err := logconf.ReadYAML(strings.NewReader(`
loggers:
  - name: ""
    level: WARN
    handlers: [H]
handlers:
  - name: H
    type: ConsoleHandler
    level: INFO
    properties:
      autoFlush: true
      target: SYSTEM_ERR
`))
	require.NoError(t, err)
	require.Len(t, doc.Handlers, 1)
	assert.Equal(t, logconf.PropertyList{
		{Name: "autoFlush", Value: "true"},
		{Name: "target", Value: "SYSTEM_ERR"},
	}, doc.Handlers[0].Properties)
	assert.Equal(t, "INFO", doc.Handlers[0].Level)

	doc, err = logconf.ReadYAML(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, &logconf.Document{}, doc)

	for _, bad := range []string{
		"handlers:\n  - name: H\n    bogus: 1\n",
		"handlers:\n  - name: H\n    properties: [a, b]\n",
		"handlers:\n  - name: H\n    properties:\n      a: [1]\n",
		"loggers: {",
	} {
		_, err := logconf.ReadYAML(strings.NewReader(bad))
		require.ErrorIs(t, err, logconf.ErrSyntax, bad)
	}
}

func TestDocumentJSON(t *testing.T) {
	b, err := json.Marshal(sampleDocument().Pojos[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"name": "W",
		"type": "Widget",
		"properties": {"size": "3", "label": ""},
		"postConfiguration": ["m1", "m2"]
	}`, string(b))

	// object order is kept
	assert.Contains(t, string(b), `{"size":"3","label":""}`)

	b, err = json.Marshal(sampleDocument().Handlers[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"name": "CONSOLE",
		"type": "RecordingHandler",
		"properties": {"tag": "${tag.value:console}"},
		"formatter": "PATTERN"
	}`, string(b))
}

func TestApplyAndExport(t *testing.T) {
	resolver := expression.NewResolver(expression.MapSource{"tag.value": "rec"})
	c, ctx := newConfiguration(t, logconf.WithResolver(resolver))

	require.NoError(t, logconf.Apply(c, sampleDocument()))
	require.NoError(t, c.Commit())
	require.NoError(t, c.Warnings())

	rec := recorder(t, c, "CONSOLE")
	assert.Equal(t, "rec", rec.Tag())
	assert.Same(t, c.Formatter("PATTERN"), rec.Formatter())

	acme := ctx.Logger("org.acme")
	assert.Equal(t, logmanager.LevelDebug, acme.EffectiveLevel())
	assert.False(t, acme.UseParentHandlers())
	assert.Equal(t, logmanager.LevelInfo, ctx.Root().EffectiveLevel())

	ctx.Logger("other").Log(logmanager.LevelWarn, "hello")
	assert.Equal(t, []string{"WARN hello"}, rec.Messages())

	w := c.Pojo("W").(*logconftest.Widget) //nolint:forcetypeassert
	assert.Equal(t, 3, w.Size)
	assert.Equal(t, []string{"m1", "m2"}, w.Calls)

	assert.Equal(t, sampleDocument(), logconf.Export(c))

	// applying the same document again changes nothing
	require.NoError(t, logconf.Apply(c, sampleDocument()))
	assert.False(t, c.HasPendingActions())
}

func TestApplyChanges(t *testing.T) {
	c, _ := newConfiguration(t)

	require.NoError(t, logconf.Apply(c, sampleDocument()))
	require.NoError(t, c.Commit())

	oldFormatter := c.Formatter("PATTERN")
	rec := recorder(t, c, "CONSOLE")

	doc := sampleDocument()
	doc.Pojos = nil
	doc.Formatters[0].Properties[0].Value = "%m"
	doc.Handlers[0].Properties[0].Value = "changed"
	doc.Loggers = doc.Loggers[:1]

	require.NoError(t, logconf.Apply(c, doc))
	require.NoError(t, c.Commit())

	assert.Nil(t, c.PojoConfiguration("W"))
	assert.Nil(t, c.Pojo("W"))
	assert.Nil(t, c.LoggerConfiguration("org.acme"))
	assert.Equal(t, "changed", rec.Tag())

	// the formatter was rebuilt, and the handler picked the new one up
	assert.NotSame(t, oldFormatter, c.Formatter("PATTERN"))
	assert.Same(t, c.Formatter("PATTERN"), rec.Formatter())
	assert.Same(t, rec, c.Handler("CONSOLE"))

	assert.Equal(t, doc, logconf.Export(c))
}

func TestApplyForget(t *testing.T) {
	c, _ := newConfiguration(t)

	require.NoError(t, logconf.Apply(c, sampleDocument()))
	require.NoError(t, c.Commit())

	oldFormatter := c.Formatter("PATTERN")

	doc := sampleDocument()
	doc.Formatters[0].Properties[0].Value = "%m"
	doc.Handlers[0].Type = "ConsoleHandler"
	doc.Handlers[0].Properties = nil

	require.NoError(t, logconf.Apply(c, doc))
	require.NoError(t, c.Prepare())

	_, isConsole := c.Handler("CONSOLE").(*logmanager.ConsoleHandler)
	assert.True(t, isConsole)

	c.Forget()

	rec := recorder(t, c, "CONSOLE")
	assert.Same(t, oldFormatter, c.Formatter("PATTERN"))
	assert.Same(t, oldFormatter, rec.Formatter())
	assert.Equal(t, sampleDocument(), logconf.Export(c))
}

func TestApplyErrors(t *testing.T) {
	c, _ := newConfiguration(t)

	doc := &logconf.Document{
		Handlers: []logconf.HandlerDoc{{ObjectDoc: logconf.ObjectDoc{Name: "H", Type: "NoSuchType"}}},
	}
	require.ErrorIs(t, logconf.Apply(c, doc), logconf.ErrUnknownType)
	c.Forget()

	doc = &logconf.Document{
		Handlers: []logconf.HandlerDoc{{
			ObjectDoc: logconf.ObjectDoc{Name: "H", Type: "ConsoleHandler"},
			Handlers:  []string{"X"},
		}},
	}
	require.ErrorIs(t, logconf.Apply(c, doc), logconf.ErrNestedHandlersUnsupported)
	c.Forget()

	assert.Empty(t, c.HandlerNames())

	// references are only checked when the changes are prepared
	doc = &logconf.Document{
		Loggers: []logconf.LoggerDoc{{Name: "", Handlers: []string{"missing"}}},
	}
	require.NoError(t, logconf.Apply(c, doc))
	require.ErrorIs(t, c.Commit(), logconf.ErrNotFound)
}
