// Package context carries an optional progress callback through a call tree,
// so deep layers (the tool loop, tool execution) can report what they are
// doing without a logger dependency on the caller's side.
package context

import (
	stdctx "context"
	"fmt"
)

type progressKey struct{}

// WithProgress returns a context whose Progress calls reach cb.
func WithProgress(ctx stdctx.Context, cb func(string)) stdctx.Context {
	return stdctx.WithValue(ctx, progressKey{}, cb)
}

// ProgressFunc returns the callback stored by WithProgress.
func ProgressFunc(ctx stdctx.Context) (func(string), bool) {
	cb, ok := ctx.Value(progressKey{}).(func(string))
	return cb, ok && cb != nil
}

// Progress formats a message and hands it to the context's callback, if any.
func Progress(ctx stdctx.Context, format string, args ...any) {
	if cb, ok := ProgressFunc(ctx); ok {
		cb(fmt.Sprintf(format, args...))
	}
}
