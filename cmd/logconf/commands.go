package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ThalesGroup/logconf"
	"github.com/ThalesGroup/logconf/expression"
	"github.com/ThalesGroup/logconf/logmanager"
	"github.com/ansel1/merry/v2"
	"github.com/goccy/go-json"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "logconf",
		Short: "Check, convert and run log manager configuration files",
		Long: `logconf reads log manager configuration files in properties or YAML
format.  Files ending in .yaml or .yml are read as YAML, anything else as
properties.  ${name:default} expressions are resolved from the environment
when a configuration is applied.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newValidateCmd(),
		newShowCmd(),
		newExportCmd(),
		newFilterCmd(),
		newRunCmd(),
	)

	return root
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}

	return false
}

func readDocument(path string) (*logconf.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, merry.Wrap(err)
	}
	defer f.Close()

	if isYAML(path) {
		return logconf.ReadYAML(f)
	}

	return logconf.ReadProperties(f)
}

// envResolver resolves ${name} from the process properties, then from the
// environment.
var envResolver = expression.NewResolver(expression.SourceFunc(func(name string) (string, bool) {
	if v, ok := expression.LookupProperty(name); ok {
		return v, true
	}

	return os.LookupEnv(name)
}))

func newConfiguration(ctx *logmanager.LogContext) *logconf.Configuration {
	return logconf.New(ctx, logconf.WithResolver(envResolver))
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Check a configuration file can be applied",
		Long: `validate applies the configuration to a scratch log context, then rolls
it back.  Handlers are constructed, so file handlers may create their files.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(args[0])
			if err != nil {
				return err
			}

			c := newConfiguration(logmanager.NewLogContext())
			defer c.Close()

			if err := logconf.Apply(c, doc); err != nil {
				return err
			}

			if err := c.Prepare(); err != nil {
				return err
			}

			warnings := multierr.Errors(c.Warnings())
			for _, w := range warnings {
				fmt.Fprintln(cmd.OutOrStdout(), "warning:", w)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok, %d warnings\n", args[0], len(warnings))

			return nil
		},
	}
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show FILE",
		Short: "Print the objects in a configuration file as a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(args[0])
			if err != nil {
				return err
			}

			renderTable(cmd.OutOrStdout(), doc)

			return nil
		},
	}
}

func renderTable(w io.Writer, doc *logconf.Document) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"KIND", "NAME", "TYPE", "SETTINGS"})

	setting := func(settings []string, k, v string) []string {
		if v == "" {
			return settings
		}

		return append(settings, k+"="+v)
	}

	object := func(kind string, o logconf.ObjectDoc, extra ...string) {
		settings := extra
		for _, p := range o.Properties {
			settings = setting(settings, p.Name, p.Value)
		}

		if len(o.PostConfiguration) > 0 {
			settings = setting(settings, "postConfiguration", strings.Join(o.PostConfiguration, ","))
		}

		typeName := o.Type
		if o.Module != "" {
			typeName = o.Module + ":" + typeName
		}

		t.AppendRow(table.Row{kind, o.Name, typeName, strings.Join(settings, "\n")})
	}

	for _, l := range doc.Loggers {
		var settings []string
		settings = setting(settings, "level", l.Level)
		settings = setting(settings, "filter", l.Filter)
		settings = setting(settings, "useParentFilters", l.UseParentFilters)
		settings = setting(settings, "useParentHandlers", l.UseParentHandlers)
		settings = setting(settings, "handlers", strings.Join(l.Handlers, ","))

		name := l.Name
		if name == "" {
			name = text.Italic.Sprint("root")
		}

		t.AppendRow(table.Row{"logger", name, "", strings.Join(settings, "\n")})
	}

	for _, h := range doc.Handlers {
		var settings []string
		settings = setting(settings, "level", h.Level)
		settings = setting(settings, "formatter", h.Formatter)
		settings = setting(settings, "filter", h.Filter)
		settings = setting(settings, "encoding", h.Encoding)
		settings = setting(settings, "errorManager", h.ErrorManager)
		settings = setting(settings, "handlers", strings.Join(h.Handlers, ","))

		object("handler", h.ObjectDoc, settings...)
	}

	for _, o := range doc.Formatters {
		object("formatter", o)
	}

	for _, o := range doc.Filters {
		object("filter", o)
	}

	for _, o := range doc.ErrorManagers {
		object("error manager", o)
	}

	for _, o := range doc.Pojos {
		object("pojo", o)
	}

	t.Render()
}

func newExportCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "export FILE",
		Short: "Convert a configuration file to properties, YAML or JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			switch format {
			case "properties":
				return logconf.WriteProperties(out, doc)
			case "yaml":
				return logconf.WriteYAML(out, doc)
			case "json":
				b, err := json.MarshalIndent(doc, "", "  ")
				if err != nil {
					return merry.Wrap(err)
				}

				_, err = fmt.Fprintln(out, string(b))

				return err
			}

			return merry.Errorf("unknown format %q: expected properties, yaml or json", format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "output format: properties, yaml or json")

	return cmd
}

func newFilterCmd() *cobra.Command {
	var level, loggerName, message string

	cmd := &cobra.Command{
		Use:   "filter EXPR",
		Short: "Run a record through a filter expression",
		Example: `  logconf filter 'levelRange[INFO,ERROR)' --level WARN
  logconf filter 'substitute("secret=\\w+","secret=***")' --message 'secret=abc'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := logmanager.NewLogContext()

			l, err := ctx.LevelForName(level)
			if err != nil {
				return err
			}

			c := logconf.New(ctx)

			p, err := c.ResolveFilter(args[0], true)
			if err != nil {
				return err
			}

			r := logmanager.NewRecord(l, loggerName, message)

			f, _ := p.Object().(logmanager.Filter)
			if f == nil || f.IsLoggable(r) {
				fmt.Fprintf(cmd.OutOrStdout(), "accepted: %s %s\n", ctx.LevelName(r.Level), r.Message)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "rejected")
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&level, "level", "l", "INFO", "record level")
	cmd.Flags().StringVar(&loggerName, "logger", "", "record logger name")
	cmd.Flags().StringVarP(&message, "message", "m", "test message", "record message")

	return cmd
}
