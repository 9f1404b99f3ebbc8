package server

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"mini-rpc-server/codec"
	"mini-rpc-server/message"
)

// methodRegistry maps "Service" → "Method" → descriptor. Lookups happen on every
// request frame, registration only at startup.
type methodRegistry struct {
	mu       sync.RWMutex
	services map[string]map[string]*message.MethodInfo
}

func newMethodRegistry() *methodRegistry {
	return &methodRegistry{services: make(map[string]map[string]*message.MethodInfo)}
}

func (r *methodRegistry) add(info *message.MethodInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	methods, ok := r.services[info.ServiceName]
	if !ok {
		methods = make(map[string]*message.MethodInfo)
		r.services[info.ServiceName] = methods
	}
	if _, dup := methods[info.MethodName]; dup {
		return fmt.Errorf("rpc: method %s already registered", info.FullName())
	}
	methods[info.MethodName] = info
	return nil
}

func (r *methodRegistry) lookup(service, method string) (*message.MethodInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.services[service][method]
	return info, ok
}

// serviceNames returns the registered services with their sorted method names.
func (r *methodRegistry) serviceNames() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]string, len(r.services))
	for service, methods := range r.services {
		names := make([]string, 0, len(methods))
		for name := range methods {
			names = append(names, name)
		}
		sort.Strings(names)
		out[service] = names
	}
	return out
}

// Register exposes fn as service.method. fn receives the raw, uncompressed
// payload; c encodes whatever fn returns.
func (svr *Server) Register(service, method string, c codec.Codec, fn message.Invoker) error {
	if service == "" || method == "" {
		return fmt.Errorf("rpc: service and method names are required")
	}
	if fn == nil {
		return fmt.Errorf("rpc: nil handler for %s.%s", service, method)
	}
	if c == nil {
		c = codec.GetCodec(codec.CodecTypeJSON)
	}
	return svr.methods.add(&message.MethodInfo{
		ServiceName: service,
		MethodName:  method,
		Codec:       c,
		Invoke:      fn,
	})
}

// RegisterFunc exposes a typed function. Arguments are decoded from JSON into a
// fresh *A for every call and the returned *R is encoded back as JSON.
func RegisterFunc[A, R any](svr *Server, service, method string, fn func(ctx context.Context, args *A) (*R, error)) error {
	c := codec.GetCodec(codec.CodecTypeJSON)
	return svr.Register(service, method, c, func(ctx context.Context, payload []byte) (any, error) {
		args := new(A)
		if err := c.Decode(payload, args); err != nil {
			return nil, fmt.Errorf("decode args: %w", err)
		}
		reply, err := fn(ctx, args)
		if err != nil {
			return nil, err
		}
		return reply, nil
	})
}

// RegisterRaw exposes a function that works on raw bytes.
func (svr *Server) RegisterRaw(service, method string, fn func(ctx context.Context, payload []byte) ([]byte, error)) error {
	return svr.Register(service, method, codec.GetCodec(codec.CodecTypeRaw), func(ctx context.Context, payload []byte) (any, error) {
		out, err := fn(ctx, payload)
		if err != nil {
			return nil, err
		}
		return out, nil
	})
}

// Lookup implements protocol.MethodResolver.
func (svr *Server) Lookup(service, method string) (*message.MethodInfo, bool) {
	return svr.methods.lookup(service, method)
}
