package middleware

import (
	"context"
	"crypto/subtle"

	"mini-rpc-server/message"
	"mini-rpc-server/rpcerr"
)

// TokenKey is the KV attachment entry AuthMiddleware checks.
const TokenKey = "token"

// AuthMiddleware rejects requests whose KV attachment does not carry token.
// An empty token disables the check.
func AuthMiddleware(token string) Middleware {
	return func(next Handler) Handler {
		if token == "" {
			return next
		}
		return func(ctx context.Context, req *message.Request, resp *message.Response) error {
			got := req.KVAttachment[TokenKey]
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				return rpcerr.ErrUnauthorized
			}
			return next(ctx, req, resp)
		}
	}
}
