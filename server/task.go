package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"mini-rpc-server/message"
	"mini-rpc-server/metrics"
	"mini-rpc-server/middleware"
	"mini-rpc-server/protocol"
	"mini-rpc-server/rpccontext"
	"mini-rpc-server/rpcerr"
	"mini-rpc-server/transport"
)

var errNoRequest = errors.New("rpc: no request to dispatch")

// WorkTask turns one decoded request into one response written to conn.
//
// Run never panics and never returns an error: dispatch failures are encoded
// into the response, send failures are logged and dropped. The response
// compress type mirrors the request's; it is seeded before dispatch, so a
// middleware may still overwrite resp.CompressType.
type WorkTask struct {
	server   *Server
	protocol protocol.Protocol
	request  *message.Request
	response *message.Response
	conn     transport.Conn
}

func NewWorkTask(svr *Server, proto protocol.Protocol, req *message.Request, resp *message.Response, conn transport.Conn) *WorkTask {
	return &WorkTask{
		server:   svr,
		protocol: proto,
		request:  req,
		response: resp,
		conn:     conn,
	}
}

// Run executes the task on the calling worker. slot is the worker's context
// slot; it is unbound again when Run returns.
func (t *WorkTask) Run(slot *rpccontext.Slot) {
	start := time.Now()
	req, resp := t.request, t.response
	ctx := t.server.baseContext()

	if req != nil {
		defer slot.Reset()

		req.Conn = t.conn
		cc := slot.Current()
		cc.SetRemoteAddr(t.conn.RemoteAddr())
		cc.SetConn(t.conn)
		if req.BinaryAttachment != nil {
			cc.SetRequestBinaryAttachment(req.BinaryAttachment)
		}
		if req.KVAttachment != nil {
			cc.SetRequestKVAttachment(req.KVAttachment)
		}
		ctx = rpccontext.NewContext(ctx, cc)

		if name, ok := req.LookupClientName(); ok {
			t.server.registerClient(name, t.conn)
		}

		resp.LogID = req.LogID
		resp.CompressType = req.CompressType
		resp.Err = req.Err
		resp.Method = req.Method
	} else if resp.Err == nil {
		resp.Err = errNoRequest
	}

	status := metrics.StatusRejected
	if resp.Err == nil {
		if err := t.dispatch(ctx); err != nil {
			surfaced, invocation := rpcerr.Classify(err)
			t.server.logger.Warn(fmt.Sprintf("invoke method failed, msg=%s", surfaced.Error()),
				zap.String("method", t.methodName()),
				zap.Int64("log_id", resp.LogID),
				zap.Bool("invocation", invocation),
				zap.Error(surfaced))
			resp.Err = surfaced
			status = metrics.StatusError
		} else {
			status = metrics.StatusOK
			if slot.IsBound() {
				cc := slot.Current()
				if b := cc.ResponseBinaryAttachment(); len(b) > 0 {
					resp.BinaryAttachment = b
				}
				if kv := cc.ResponseKVAttachment(); len(kv) > 0 {
					resp.KVAttachment = kv
				}
			}
		}
	}

	if !t.send() {
		t.server.metrics.SendFailed()
	}
	t.server.metrics.ObserveRequest(t.methodName(), status, time.Since(start))
}

// dispatch runs the interceptor chain. A panic raised by a middleware is turned
// into a direct failure; panics in business code are already wrapped by invoke.
func (t *WorkTask) dispatch(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &rpcerr.PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	chain := middleware.NewChain(t.server.Interceptors(), t.server.invoke)
	return chain.Intercept(ctx, t.request, t.response)
}

// send encodes the response and issues the write without waiting for it.
func (t *WorkTask) send() (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			t.server.logger.Warn("send response failed:",
				zap.Int64("log_id", t.response.LogID),
				zap.Any("panic", r))
			ok = false
		}
	}()

	buf, err := t.protocol.EncodeResponse(t.request, t.response)
	if err != nil {
		t.server.logger.Warn("send response failed:",
			zap.Int64("log_id", t.response.LogID),
			zap.Error(err))
		return false
	}
	future := t.conn.Write(buf)
	t.server.logger.Debug("write and flushed",
		zap.Int("capacity", len(buf)),
		zap.String("channel", addrString(t.conn.RemoteAddr())))
	t.protocol.AfterResponseSent(t.request, t.response, future)
	return true
}

func (t *WorkTask) methodName() string {
	if t.response.Method != nil {
		return t.response.Method.FullName()
	}
	if t.request != nil && t.request.Method != nil {
		return t.request.Method.FullName()
	}
	return ""
}

// invoke is the terminal handler of every chain: it resolves the method and
// calls it, wrapping anything the business code returns or panics with in an
// InvocationError.
func (svr *Server) invoke(ctx context.Context, req *message.Request, resp *message.Response) error {
	method := req.Method
	if method == nil {
		m, ok := svr.Lookup(req.ServiceName, req.MethodName)
		if !ok {
			return fmt.Errorf("%w: %s", rpcerr.ErrMethodNotFound, req.FullName())
		}
		method = m
		resp.Method = m
	}

	result, err := callMethod(ctx, method, req.Payload)
	if err != nil {
		return err
	}
	resp.Result = result
	return nil
}

func callMethod(ctx context.Context, method *message.MethodInfo, payload []byte) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &rpcerr.InvocationError{
				Method: method.FullName(),
				Cause:  &rpcerr.PanicError{Value: r, Stack: debug.Stack()},
			}
		}
	}()
	result, err = method.Invoke(ctx, payload)
	if err != nil {
		return nil, &rpcerr.InvocationError{Method: method.FullName(), Cause: err}
	}
	return result, nil
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}
