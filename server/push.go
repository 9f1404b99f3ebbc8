package server

import (
	"context"
	"errors"
	"fmt"

	"mini-rpc-server/codec"
	"mini-rpc-server/metrics"
	"mini-rpc-server/protocol"
)

// ErrClientNotFound is returned by Push for a client that never registered or
// whose connection is gone.
var ErrClientNotFound = errors.New("rpc: push client not found")

// Push sends an unsolicited call to the client registered as clientName and
// waits until the frame is written or ctx ends. The client does not reply.
//
// Push frames always use the reference framing, whatever protocol decodes
// requests.
func (svr *Server) Push(ctx context.Context, clientName, service, method string, args any) error {
	conn, ok := svr.channels.Get(clientName)
	if !ok {
		svr.metrics.Pushed(metrics.StatusRejected)
		return fmt.Errorf("%w: %s", ErrClientNotFound, clientName)
	}

	payload, err := codec.GetCodec(codec.CodecTypeJSON).Encode(args)
	if err != nil {
		return fmt.Errorf("encode push args: %w", err)
	}
	buf, err := protocol.PackFrame(protocol.MsgTypePush, &protocol.Meta{
		LogID:   svr.pushSeq.Add(1),
		Service: service,
		Method:  method,
	}, payload, nil)
	if err != nil {
		return err
	}

	future := conn.Write(buf)
	select {
	case <-future.Done():
		if err := future.Err(); err != nil {
			svr.metrics.Pushed(metrics.StatusError)
			return fmt.Errorf("push to %s: %w", clientName, err)
		}
		svr.metrics.Pushed(metrics.StatusOK)
		return nil
	case <-ctx.Done():
		svr.metrics.Pushed(metrics.StatusError)
		return ctx.Err()
	}
}
