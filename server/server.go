// Package server implements the RPC server: method registration, the
// interceptor chain, the per-request work task and graceful shutdown.
//
// Request processing pipeline:
//
//	Accept conn → handleConn (single goroutine reads frames)
//	  → Protocol.DecodeRequest → WorkTask submitted to the worker pool
//	    → WorkTask.Run: call context → middleware chain → invoke → encode → async write
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"mini-rpc-server/connmgr"
	"mini-rpc-server/message"
	"mini-rpc-server/metrics"
	"mini-rpc-server/middleware"
	"mini-rpc-server/protocol"
	"mini-rpc-server/registry"
	"mini-rpc-server/transport"
	"mini-rpc-server/worker"
)

// Server is the RPC server that registers methods and handles incoming requests.
type Server struct {
	methods     *methodRegistry
	middlewares []middleware.Middleware // Applied in the order they were added
	channels    *connmgr.Manager        // Client name → connection, for server push
	protocol    protocol.Protocol
	logger      *zap.Logger
	metrics     *metrics.Metrics

	workers       int
	queueSize     int
	connQueueSize int
	pool          *worker.Pool

	registry      registry.Registry // Service registry (etcd), nil if not using discovery
	advertiseAddr string            // Address registered in etcd, routable unlike ":8080"
	registryTTL   int64

	ctx    context.Context // Parent of every request context, cancelled on shutdown
	cancel context.CancelFunc

	listener net.Listener
	shutdown atomic.Bool
	connMu   sync.Mutex
	conns    map[*transport.NetConn]struct{}
	pushSeq  atomic.Int64
}

type Option func(*Server)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithWorkers sets how many requests execute in parallel.
func WithWorkers(n int) Option {
	return func(s *Server) { s.workers = n }
}

// WithQueueSize bounds the requests waiting for a worker.
func WithQueueSize(n int) Option {
	return func(s *Server) { s.queueSize = n }
}

// WithConnQueueSize bounds the responses waiting to be flushed per connection.
func WithConnQueueSize(n int) Option {
	return func(s *Server) { s.connQueueSize = n }
}

// WithProtocol replaces the reference protocol.
func WithProtocol(p protocol.Protocol) Option {
	return func(s *Server) { s.protocol = p }
}

// WithRegistry publishes every registered service to reg under advertiseAddr
// when the server starts.
func WithRegistry(reg registry.Registry, advertiseAddr string, ttl int64) Option {
	return func(s *Server) {
		s.registry = reg
		s.advertiseAddr = advertiseAddr
		if ttl > 0 {
			s.registryTTL = ttl
		}
	}
}

// NewServer creates a server with no methods registered.
func NewServer(opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		methods:       newMethodRegistry(),
		channels:      connmgr.NewManager(),
		logger:        zap.NewNop(),
		workers:       32,
		queueSize:     1024,
		connQueueSize: 64,
		registryTTL:   10,
		ctx:           ctx,
		cancel:        cancel,
		conns:         make(map[*transport.NetConn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.protocol == nil {
		s.protocol = protocol.NewStandard(s, s.logger)
	}
	return s
}

// Use registers a middleware. Middlewares are applied in the order they are
// added and must all be added before Serve.
func (svr *Server) Use(mw middleware.Middleware) {
	svr.middlewares = append(svr.middlewares, mw)
}

// Interceptors returns the configured middlewares.
func (svr *Server) Interceptors() []middleware.Middleware {
	return svr.middlewares
}

// Channels returns the client name → connection registry.
func (svr *Server) Channels() *connmgr.Manager {
	return svr.channels
}

func (svr *Server) baseContext() context.Context {
	return svr.ctx
}

func (svr *Server) registerClient(name string, conn transport.Conn) {
	svr.channels.Put(name, conn)
	svr.metrics.SetRegisteredClients(svr.channels.Len())
}

// Serve listens on address and serves until Shutdown.
func (svr *Server) Serve(network, address string) error {
	listener, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	return svr.ServeListener(listener)
}

// ServeListener serves connections accepted from l until Shutdown.
func (svr *Server) ServeListener(l net.Listener) error {
	svr.connMu.Lock()
	if svr.shutdown.Load() {
		svr.connMu.Unlock()
		l.Close()
		return nil
	}
	if svr.pool != nil {
		svr.connMu.Unlock()
		return errors.New("rpc: server already serving")
	}
	svr.listener = l
	svr.pool = worker.NewPool(svr.workers, svr.queueSize, svr.logger)
	svr.connMu.Unlock()

	if err := svr.publish(); err != nil {
		l.Close()
		return err
	}
	svr.logger.Info("rpc server started", zap.String("addr", l.Addr().String()))

	for {
		conn, err := l.Accept()
		if err != nil {
			// Close during shutdown makes Accept fail; that is not an error.
			if svr.shutdown.Load() {
				return nil
			}
			return err
		}
		go svr.handleConn(conn)
	}
}

// Addr returns the listener address once serving.
func (svr *Server) Addr() net.Addr {
	svr.connMu.Lock()
	defer svr.connMu.Unlock()
	if svr.listener == nil {
		return nil
	}
	return svr.listener.Addr()
}

func (svr *Server) publish() error {
	if svr.registry == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(svr.ctx, 5*time.Second)
	defer cancel()
	for service, methods := range svr.methods.serviceNames() {
		err := svr.registry.Register(ctx, service, registry.ServiceInstance{
			Addr:    svr.advertiseAddr,
			Methods: methods,
		}, svr.registryTTL)
		if err != nil {
			return fmt.Errorf("register %s: %w", service, err)
		}
	}
	return nil
}

// handleConn reads frames from one connection. Reads are sequential; every
// request is executed by the worker pool so a slow method does not hold up the
// next frame.
func (svr *Server) handleConn(raw net.Conn) {
	conn := transport.NewNetConn(raw, svr.connQueueSize)
	if !svr.trackConn(conn) {
		conn.Close()
		return
	}
	conn.OnClose(func(c *transport.NetConn) {
		if n := svr.channels.RemoveConn(c); n > 0 {
			svr.metrics.SetRegisteredClients(svr.channels.Len())
		}
		svr.untrackConn(c)
	})
	defer conn.Close()

	logger := svr.logger.With(zap.String("conn", conn.ID()), zap.String("remote", addrString(conn.RemoteAddr())))
	for {
		frame, err := protocol.ReadFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logger.Debug("connection read failed", zap.Error(err))
			}
			return
		}
		if frame.MsgType == protocol.MsgTypeHeartbeat {
			continue
		}

		req, err := svr.protocol.DecodeRequest(frame)
		if err != nil {
			logger.Warn("drop connection: undecodable request", zap.Error(err))
			return
		}
		task := NewWorkTask(svr, svr.protocol, req, &message.Response{}, conn)
		if err := svr.pool.Submit(task); err != nil {
			return
		}
	}
}

func (svr *Server) trackConn(c *transport.NetConn) bool {
	svr.connMu.Lock()
	defer svr.connMu.Unlock()
	if svr.shutdown.Load() {
		return false
	}
	svr.conns[c] = struct{}{}
	return true
}

func (svr *Server) untrackConn(c *transport.NetConn) {
	svr.connMu.Lock()
	delete(svr.conns, c)
	svr.connMu.Unlock()
}

// Shutdown performs graceful shutdown:
//  1. Deregister all services from etcd (clients stop routing to this server)
//  2. Stop accepting connections
//  3. Wait for queued and in-flight requests, up to timeout
//  4. Flush and close the remaining connections
func (svr *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if svr.registry != nil {
		for service := range svr.methods.serviceNames() {
			if err := svr.registry.Deregister(ctx, service, svr.advertiseAddr); err != nil {
				svr.logger.Warn("deregister failed", zap.String("service", service), zap.Error(err))
			}
		}
	}

	// Set the flag before closing the listener so Serve sees an intentional close.
	svr.connMu.Lock()
	svr.shutdown.Store(true)
	listener, pool := svr.listener, svr.pool
	svr.connMu.Unlock()
	if listener != nil {
		listener.Close()
	}

	var err error
	if pool != nil {
		if err = pool.Close(ctx); err != nil {
			err = fmt.Errorf("timeout waiting for ongoing requests to finish: %w", err)
		}
	}
	svr.cancel()

	svr.connMu.Lock()
	conns := make([]*transport.NetConn, 0, len(svr.conns))
	for c := range svr.conns {
		conns = append(conns, c)
	}
	svr.connMu.Unlock()
	for _, c := range conns {
		// Let responses of requests finished above reach their clients.
		c.Flush(ctx)
		c.Close()
	}
	return err
}
