package logmanager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithLogger(t *testing.T) {
	lc := NewLogContext()
	l := lc.Logger("hi")

	ctx := WithLogger(context.Background(), l)
	assert.Same(t, l, ctx.Value(loggerKey))
	assert.Same(t, l, FromContext(ctx, lc, "other"))

	t.Run("default", func(t *testing.T) {
		assert.Same(t, lc.Logger("other"), FromContext(context.Background(), lc, "other"))
		assert.Same(t, lc.Root(), FromContext(context.Background(), lc, ""))
	})
}
