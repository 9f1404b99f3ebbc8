// Package client is a minimal mini-rpc client: one multiplexed connection, KV
// and binary attachments, and delivery of server pushes.
package client

import (
	"context"
	"net"
	"time"

	"mini-rpc-server/codec"
	"mini-rpc-server/compress"
	"mini-rpc-server/message"
	"mini-rpc-server/protocol"
	"mini-rpc-server/rpcerr"
)

type Options struct {
	// ClientName is sent with every call so the server can push to this client.
	ClientName   string
	CompressType compress.Type
	Heartbeat    time.Duration // Zero disables heartbeats
	DialTimeout  time.Duration
}

type Client struct {
	opts      Options
	transport *clientTransport
	codec     codec.Codec
}

// Dial connects to a server at addr.
func Dial(addr string, opts Options) (*Client, error) {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}
	conn, err := net.DialTimeout("tcp", addr, opts.DialTimeout)
	if err != nil {
		return nil, err
	}
	return &Client{
		opts:      opts,
		transport: newClientTransport(conn, opts.Heartbeat),
		codec:     codec.GetCodec(codec.CodecTypeJSON),
	}, nil
}

// Call is one request with its attachments. The Response* fields are filled
// when Do returns.
type Call struct {
	Service          string
	Method           string
	Args             any
	Reply            any
	CompressType     *compress.Type // nil uses Options.CompressType
	BinaryAttachment []byte
	KVAttachment     map[string]string

	LogID                    int64
	ResponseBinaryAttachment []byte
	ResponseKVAttachment     map[string]string
}

// Do sends call and waits for the response or ctx.
func (c *Client) Do(ctx context.Context, call *Call) error {
	payload, err := c.codec.Encode(call.Args)
	if err != nil {
		return err
	}

	kv := make(map[string]string, len(call.KVAttachment)+1)
	for k, v := range call.KVAttachment {
		kv[k] = v
	}
	if c.opts.ClientName != "" {
		kv[message.ClientNameKey] = c.opts.ClientName
	}
	ct := c.opts.CompressType
	if call.CompressType != nil {
		ct = *call.CompressType
	}

	seq, ch, err := c.transport.send(&protocol.Meta{
		Service:      call.Service,
		Method:       call.Method,
		CompressType: int32(ct),
		KV:           kv,
	}, payload, call.BinaryAttachment)
	if err != nil {
		return err
	}
	call.LogID = seq

	select {
	case res := <-ch:
		if res.err != nil {
			return res.err
		}
		call.ResponseBinaryAttachment = res.attachment
		call.ResponseKVAttachment = res.meta.KV
		if res.meta.ErrorCode != rpcerr.CodeOK || res.meta.ErrorText != "" {
			return &rpcerr.RemoteError{Code: res.meta.ErrorCode, Message: res.meta.ErrorText}
		}
		if call.Reply == nil || len(res.payload) == 0 {
			return nil
		}
		return c.codec.Decode(res.payload, call.Reply)
	case <-ctx.Done():
		c.transport.cancel(seq)
		return ctx.Err()
	}
}

// Call invokes service.method with args and decodes the result into reply.
func (c *Client) Call(ctx context.Context, service, method string, args, reply any) error {
	return c.Do(ctx, &Call{Service: service, Method: method, Args: args, Reply: reply})
}

// OnPush installs the handler for server pushes. It runs on the receive
// goroutine and must not block.
func (c *Client) OnPush(h PushHandler) {
	c.transport.onPush.Store(&h)
}

func (c *Client) Close() error {
	return c.transport.close()
}
