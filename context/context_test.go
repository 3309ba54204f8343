package context

import (
	stdctx "context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgress(t *testing.T) {
	var got []string
	ctx := WithProgress(stdctx.Background(), func(msg string) { got = append(got, msg) })

	Progress(ctx, "calling %s", "read_file")
	Progress(stdctx.Background(), "dropped")

	assert.Equal(t, []string{"calling read_file"}, got)
}

func TestProgressFunc_NilCallback(t *testing.T) {
	ctx := WithProgress(stdctx.Background(), nil)
	_, ok := ProgressFunc(ctx)
	assert.False(t, ok)
}
