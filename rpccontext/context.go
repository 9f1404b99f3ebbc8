// Package rpccontext holds the per-call state a business method can reach.
//
// Each worker owns one Slot. The task binds a CallContext to the slot when it
// starts and resets the slot when it ends, so the next task on the same worker
// starts from nothing. Business code never looks the slot up: the task hands the
// CallContext down the dispatch chain inside the context.Context.
package rpccontext

import (
	"context"
	"net"

	"mini-rpc-server/transport"
)

// CallContext is the state of one in-flight request.
type CallContext struct {
	remoteAddr net.Addr
	conn       transport.Conn

	requestBinary  []byte
	requestKV      map[string]string
	responseBinary []byte
	responseKV     map[string]string
}

func (c *CallContext) RemoteAddr() net.Addr {
	return c.remoteAddr
}

func (c *CallContext) SetRemoteAddr(addr net.Addr) {
	c.remoteAddr = addr
}

func (c *CallContext) Conn() transport.Conn {
	return c.conn
}

func (c *CallContext) SetConn(conn transport.Conn) {
	c.conn = conn
}

func (c *CallContext) RequestBinaryAttachment() []byte {
	return c.requestBinary
}

func (c *CallContext) SetRequestBinaryAttachment(b []byte) {
	c.requestBinary = b
}

func (c *CallContext) RequestKVAttachment() map[string]string {
	return c.requestKV
}

func (c *CallContext) SetRequestKVAttachment(kv map[string]string) {
	c.requestKV = kv
}

// ResponseBinaryAttachment is copied onto the response after a successful dispatch
// when it is non-empty.
func (c *CallContext) ResponseBinaryAttachment() []byte {
	return c.responseBinary
}

func (c *CallContext) SetResponseBinaryAttachment(b []byte) {
	c.responseBinary = b
}

// ResponseKVAttachment is copied onto the response after a successful dispatch
// when it is non-empty.
func (c *CallContext) ResponseKVAttachment() map[string]string {
	return c.responseKV
}

func (c *CallContext) SetResponseKVAttachment(kv map[string]string) {
	c.responseKV = kv
}

// SetResponseKV adds one entry to the response KV attachment.
func (c *CallContext) SetResponseKV(key, value string) {
	if c.responseKV == nil {
		c.responseKV = make(map[string]string)
	}
	c.responseKV[key] = value
}

func (c *CallContext) clear() {
	*c = CallContext{}
}

// Slot binds at most one CallContext to a worker. It is not safe for
// concurrent use; a slot belongs to exactly one worker goroutine.
//
// Reset clears the context it unbinds and the next Current allocates a new
// one, so a goroutine that outlived its task holds an empty context rather
// than the next task's.
type Slot struct {
	current *CallContext
}

// Current returns the bound context, binding a fresh one if none is bound.
func (s *Slot) Current() *CallContext {
	if s.current == nil {
		s.current = new(CallContext)
	}
	return s.current
}

// IsBound reports whether a context is bound.
func (s *Slot) IsBound() bool {
	return s.current != nil
}

// Reset clears every field of the bound context and unbinds it.
func (s *Slot) Reset() {
	if s.current == nil {
		return
	}
	s.current.clear()
	s.current = nil
}

type ctxKey struct{}

// NewContext returns a copy of parent carrying cc.
func NewContext(parent context.Context, cc *CallContext) context.Context {
	return context.WithValue(parent, ctxKey{}, cc)
}

// FromContext returns the CallContext carried by ctx.
func FromContext(ctx context.Context) (*CallContext, bool) {
	cc, ok := ctx.Value(ctxKey{}).(*CallContext)
	return cc, ok && cc != nil
}
