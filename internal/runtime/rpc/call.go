// Package rpc is the procedure layer crudflow viewsets register against: a
// concurrent procedure table and a JSON-RPC 2.0 HTTP endpoint that dispatches
// into it.
package rpc

import (
	"context"
)

// Call carries the positional and keyword arguments of one invocation.
type Call struct {
	Args   []any
	Kwargs map[string]any
}

// Kwarg returns a keyword argument. Missing and explicit null look the same.
func (c Call) Kwarg(name string) any {
	if c.Kwargs == nil {
		return nil
	}
	return c.Kwargs[name]
}

// Procedure handles one call. The returned value must be JSON-encodable.
type Procedure func(ctx context.Context, call Call) (any, error)

type requestIDKey struct{}

// WithRequestID stores the id assigned to an inbound request.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id stored by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
