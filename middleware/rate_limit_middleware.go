package middleware

import (
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"mini-rpc-server/message"
	"mini-rpc-server/rpccontext"
	"mini-rpc-server/rpcerr"
)

// RateLimitMiddleware 创建一个基于令牌桶算法的限流中间件
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next Handler) Handler {
		return func(ctx context.Context, req *message.Request, resp *message.Response) error {
			if !limiter.Allow() {
				return rpcerr.ErrRateLimited
			}
			return next(ctx, req, resp)
		}
	}
}

// KeyedRateLimitMiddleware applies one token bucket per caller. The caller is
// the client name when the request carries one, else the peer host.
func KeyedRateLimitMiddleware(r float64, burst int, idleTTL time.Duration) Middleware {
	limiter := newKeyedLimiter(r, burst, idleTTL)
	return func(next Handler) Handler {
		return func(ctx context.Context, req *message.Request, resp *message.Response) error {
			if !limiter.allow(callerKey(ctx, req), time.Now()) {
				return rpcerr.ErrRateLimited
			}
			return next(ctx, req, resp)
		}
	}
}

func callerKey(ctx context.Context, req *message.Request) string {
	if name := strings.TrimSpace(req.ClientName()); name != "" {
		return "client:" + name
	}
	cc, ok := rpccontext.FromContext(ctx)
	if !ok || cc.RemoteAddr() == nil {
		return "ip:unknown"
	}
	remote := cc.RemoteAddr().String()
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		return "ip:" + remote
	}
	return "ip:" + host
}

type keyedLimiter struct {
	limit   rate.Limit
	burst   int
	mu      sync.Mutex
	byKey   map[string]*limiterEntry
	hits    uint64
	idleTTL time.Duration
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newKeyedLimiter(r float64, burst int, idleTTL time.Duration) *keyedLimiter {
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &keyedLimiter{
		limit:   rate.Limit(r),
		burst:   burst,
		byKey:   make(map[string]*limiterEntry),
		idleTTL: idleTTL,
	}
}

func (l *keyedLimiter) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.byKey[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byKey[key] = e
	}
	e.lastSeen = now
	allowed := e.limiter.AllowN(now, 1)

	// Evict idle callers every 512 calls instead of running a janitor goroutine.
	l.hits++
	if l.hits%512 == 0 {
		cutoff := now.Add(-l.idleTTL)
		for k, v := range l.byKey {
			if v.lastSeen.Before(cutoff) {
				delete(l.byKey, k)
			}
		}
	}
	return allowed
}
