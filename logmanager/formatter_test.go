package logmanager

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/ansel1/vespucci/v4/mapstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedTime = time.Date(2024, 3, 5, 14, 7, 9, 123_000_000, time.UTC)

func fixedRecord() *Record {
	r := NewRecord(LevelWarn, "org.acme.billing", "charge failed", "amount", 12)
	r.Time = fixedTime
	r.Err = errors.New("card declined")

	return r
}

func TestPatternFormatter(t *testing.T) {
	tests := []struct {
		pattern string
		want    string
	}{
		{pattern: "%m", want: "charge failed"},
		{pattern: "%s", want: "charge failed amount=12"},
		{pattern: "%m%e", want: "charge failed: card declined"},
		{pattern: "[%p]", want: "[WARN]"},
		{pattern: "[%-6p]", want: "[WARN  ]"},
		{pattern: "[%6p]", want: "[  WARN]"},
		{pattern: "%.6m", want: "charge"},
		{pattern: "%c", want: "org.acme.billing"},
		{pattern: "%c{1}", want: "billing"},
		{pattern: "%c{2}", want: "acme.billing"},
		{pattern: "%c{9}", want: "org.acme.billing"},
		{pattern: "100%%", want: "100%"},
		{pattern: "%d", want: "2024-03-05 14:07:09,123"},
		{pattern: "%d{yyyy-MM-dd'T'HH:mm:ss.SSS}", want: "2024-03-05T14:07:09.123"},
		{pattern: "%d{dd MMM yy}", want: "05 Mar 24"},
		{pattern: "%m%n", want: "charge failed\n"},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			f, err := NewPatternFormatter(tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Format(fixedRecord()))
		})
	}
}

func TestPatternFormatterErrors(t *testing.T) {
	for _, p := range []string{"%", "%q", "%d{HH", "%c{x}", "%-"} {
		_, err := NewPatternFormatter(p)
		require.ErrorIs(t, err, errBadPattern, p)
	}
}

func TestPatternFormatterDefaults(t *testing.T) {
	f, err := NewPatternFormatter("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPattern, f.Pattern())
	assert.Equal(t, "14:07:09,123 WARN  [org.acme.billing] charge failed amount=12: card declined\n", f.Format(fixedRecord()))

	f.SetColor(true)
	assert.True(t, f.Color())
	assert.Contains(t, f.Format(fixedRecord()), "\x1b[")
}

func TestJSONFormatter(t *testing.T) {
	f := NewJSONFormatter()
	require.NoError(t, f.SetMetaData("app=billing, env = prod"))

	out := f.Format(fixedRecord())
	assert.True(t, strings.HasSuffix(out, "\n"))

	mapstest.AssertContains(t, json.RawMessage(out), map[string]any{
		"level":  "WARN",
		"logger": "org.acme.billing",
		"msg":    "charge failed",
		"amount": 12,
		"error":  "card declined",
		"app":    "billing",
		"env":    "prod",
		"time":   "2024-03-05T14:07:09.123Z",
	})

	f.SetDateFormat("2006/01/02")
	mapstest.AssertContains(t, json.RawMessage(f.Format(fixedRecord())), map[string]any{"time": "2024/03/05"})
}

func TestJSONFormatterBadMetaData(t *testing.T) {
	f := NewJSONFormatter()

	err := f.SetMetaData("a=1,broken,=x")
	require.ErrorIs(t, err, errInvalidMetaData)
	assert.Contains(t, err.Error(), "broken")
	assert.Contains(t, err.Error(), "=x")
	assert.Empty(t, f.MetaData(), "meta data should be unchanged on error")
}

func TestTermFormatter(t *testing.T) {
	f := NewTermFormatter()
	f.SetNoColor(true)
	f.SetTimeFormat("15:04")

	r := fixedRecord()
	r.Attrs = append(r.Attrs, slog.String("user", "bob"))

	out := f.Format(r)
	assert.Contains(t, out, "14:07")
	assert.Contains(t, out, "charge failed")
	assert.Contains(t, out, "user=bob")
	assert.Contains(t, out, "org.acme.billing")
	assert.NotContains(t, out, "\x1b[")
}
