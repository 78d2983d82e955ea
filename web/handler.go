// Package web is the core of a deliberately single-threaded HTTP/1.0
// server for local, browser-facing applications. It provides the
// request/response model, a composable router, middleware including a
// transaction guard for an embedded database, and the connection
// serving loop with its bounded first-byte wait.
package web

import "context"

// Params holds path parameters captured by the router. The special
// key "*" carries the remainder matched by a trailing wildcard.
type Params map[string]string

// Handler is the single call contract shared by application
// endpoints, routers, and middleware. A handler reports failure by
// returning an error (or panicking); the transaction guard and the
// serve loop turn either into a 500 response.
type Handler interface {
	Handle(req *Request, params Params) (*Response, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(req *Request, params Params) (*Response, error)

func (f HandlerFunc) Handle(req *Request, params Params) (*Response, error) {
	return f(req, params)
}

type ctxKey int

const (
	requestIDKey ctxKey = iota
	txKey
)

// WithRequestID stores a request ID for log correlation.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFrom returns the request ID, or "" outside a request.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
