// Package middleware implements the interceptor chain wrapped around business
// dispatch.
//
// Middlewares compose as an onion: Chain(A, B, C)(h) is A(B(C(h))), so on the way
// in A runs first and on the way out A runs last. The innermost handler is the
// server's invoker, which resolves the method and calls it.
package middleware

import (
	"context"

	"mini-rpc-server/message"
)

// Handler processes one request, writing its outcome into resp.
type Handler func(ctx context.Context, req *message.Request, resp *message.Response) error

type Middleware func(next Handler) Handler

// Chain 将多个中间件组合成一个中间件
func Chain(middlewares ...Middleware) Middleware {
	return func(next Handler) Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// InterceptorChain is one run of the configured middlewares ending in a
// terminal handler.
type InterceptorChain struct {
	handler Handler
}

// NewChain builds a chain over a snapshot of middlewares.
func NewChain(middlewares []Middleware, terminal Handler) *InterceptorChain {
	return &InterceptorChain{handler: Chain(middlewares...)(terminal)}
}

// Intercept runs the chain. Failures come back unchanged; classifying them is
// the caller's job.
func (c *InterceptorChain) Intercept(ctx context.Context, req *message.Request, resp *message.Response) error {
	return c.handler(ctx, req, resp)
}
