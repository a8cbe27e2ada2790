package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ThalesGroup/flume/v2/flumetest"
	"github.com/ThalesGroup/logconf"
	"github.com/ThalesGroup/logconf/logmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))

	err := cmd.Execute()

	return out.String(), err
}

// writeConfig writes a configuration which logs to out.log in dir.
func writeConfig(t *testing.T, dir, name string) string {
	t.Helper()

	props := strings.Join([]string{
		"logger.level=INFO",
		"logger.handlers=FILE",
		"handler.FILE=FileHandler",
		"handler.FILE.constructorProperties=fileName",
		"handler.FILE.fileName=" + filepath.Join(dir, "out.log"),
		"handler.FILE.formatter=PATTERN",
		"formatter.PATTERN=PatternFormatter",
		"formatter.PATTERN.properties=pattern",
		"formatter.PATTERN.pattern=%p %m%n",
	}, "\n")

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(props), 0o600))

	return path
}

func TestValidate(t *testing.T) {
	t.Cleanup(flumetest.Start(t))

	dir := t.TempDir()
	path := writeConfig(t, dir, "log.properties")

	out, err := execute(t, "", "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "ok, 0 warnings")

	bad := filepath.Join(dir, "bad.properties")
	require.NoError(t, os.WriteFile(bad, []byte("logger.handlers=MISSING\n"), 0o600))

	_, err = execute(t, "", "validate", bad)
	require.ErrorIs(t, err, logconf.ErrNotFound)

	_, err = execute(t, "", "validate", filepath.Join(dir, "nope.properties"))
	require.Error(t, err)
}

func TestShow(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "log.properties")

	out, err := execute(t, "", "show", path)
	require.NoError(t, err)

	for _, s := range []string{"KIND", "FILE", "FileHandler", "PATTERN", "PatternFormatter", "formatter=PATTERN", "pattern=%p %m%n", "level=INFO"} {
		assert.Contains(t, out, s)
	}
}

func TestExport(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "log.properties")

	out, err := execute(t, "", "export", path)
	require.NoError(t, err)

	doc, err := logconf.ReadYAML(strings.NewReader(out))
	require.NoError(t, err)
	require.Len(t, doc.Handlers, 1)
	assert.Equal(t, "PATTERN", doc.Handlers[0].Formatter)

	// the YAML export reads back the same as the original
	yamlPath := filepath.Join(dir, "log.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(out), 0o600))

	fromProps, err := execute(t, "", "export", "-f", "properties", path)
	require.NoError(t, err)
	fromYAML, err := execute(t, "", "export", "-f", "properties", yamlPath)
	require.NoError(t, err)
	assert.Equal(t, fromProps, fromYAML)
	assert.Contains(t, fromProps, "handler.FILE = FileHandler")

	out, err = execute(t, "", "export", "--format", "json", path)
	require.NoError(t, err)
	assert.Contains(t, out, `"formatter": "PATTERN"`)

	_, err = execute(t, "", "export", "-f", "xml", path)
	require.Error(t, err)
}

func TestFilter(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{args: []string{"levelRange[INFO,ERROR)", "--level", "WARN"}, want: "accepted: WARN test message\n"},
		{args: []string{"levelRange[INFO,ERROR)", "-l", "ERROR"}, want: "rejected\n"},
		{args: []string{`substitute("secret=\\w+","secret=***")`, "-m", "secret=abc"}, want: "accepted: INFO secret=***\n"},
		{args: []string{"levelChange(SEVERE)", "-l", "DEBUG"}, want: "accepted: ERROR test message\n"},
		{args: []string{""}, want: "accepted: INFO test message\n"},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			out, err := execute(t, "", append([]string{"filter"}, tt.args...)...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}

	_, err := execute(t, "", "filter", "any(")
	require.ErrorIs(t, err, logconf.ErrSyntax)

	_, err = execute(t, "", "filter", "accept", "--level", "LOUD")
	require.Error(t, err)
}

func TestRun(t *testing.T) {
	t.Cleanup(flumetest.Start(t))

	dir := t.TempDir()
	path := writeConfig(t, dir, "log.properties")

	_, err := execute(t, "one\ntwo\n", "run", path, "--level", "WARN")
	require.NoError(t, err)

	b, err := os.ReadFile(filepath.Join(dir, "out.log"))
	require.NoError(t, err)
	assert.Equal(t, "WARN one\nWARN two\n", string(b))

	// below the root logger's level
	_, err = execute(t, "three\n", "run", path, "--level", "DEBUG")
	require.NoError(t, err)

	b, err = os.ReadFile(filepath.Join(dir, "out.log"))
	require.NoError(t, err)
	assert.Equal(t, "WARN one\nWARN two\n", string(b))
}

func TestRunWatch(t *testing.T) {
	t.Cleanup(flumetest.Start(t))

	dir := t.TempDir()
	path := writeConfig(t, dir, "log.properties")

	setLevel := func(level string) {
		b, err := os.ReadFile(path)
		require.NoError(t, err)

		lines := strings.Split(string(b), "\n")
		lines[0] = "logger.level=" + level
		require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o600))
	}

	lctx := logmanager.NewLogContext()
	r := &runner{path: path, c: newConfiguration(lctx)}
	defer r.c.Close()

	require.NoError(t, r.reload())
	assert.Equal(t, logmanager.LevelInfo, lctx.Root().EffectiveLevel())

	stop, err := r.watch(context.Background())
	require.NoError(t, err)

	setLevel("WARN")
	require.Eventually(t, func() bool {
		return lctx.Root().EffectiveLevel() == logmanager.LevelWarn
	}, 5*time.Second, 10*time.Millisecond)

	// once stop returns, no reload is running and none will start
	stop()

	setLevel("ERROR")
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, logmanager.LevelWarn, lctx.Root().EffectiveLevel())
}
