package client

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"mini-rpc-server/protocol"
)

var errTransportClosed = errors.New("client: transport closed")

// result is what recvLoop hands back to a waiting caller.
type result struct {
	meta       *protocol.Meta
	payload    []byte
	attachment []byte
	err        error
}

// PushHandler receives calls the server pushes to this client.
type PushHandler func(service, method string, payload []byte)

// clientTransport multiplexes calls over one connection.
//
//	goroutine-1 ──send(seq=1)──┐
//	goroutine-2 ──send(seq=2)──┼──→ single TCP conn ──→ Server
//	goroutine-3 ──send(seq=3)──┘
//
//	recvLoop:  ←── response(seq=2) → pending[2] → goroutine-2 wakes up
//	           ←── push frame      → PushHandler
type clientTransport struct {
	conn    net.Conn
	seq     atomic.Int64
	pending sync.Map   // map[int64]chan *result
	sending sync.Mutex // Serializes frame writes
	onPush  atomic.Pointer[PushHandler]
	closed  chan struct{}
	once    sync.Once
}

func newClientTransport(conn net.Conn, heartbeat time.Duration) *clientTransport {
	t := &clientTransport{
		conn:   conn,
		closed: make(chan struct{}),
	}
	go t.recvLoop()
	if heartbeat > 0 {
		go t.heartbeatLoop(heartbeat)
	}
	return t
}

// send writes a request frame and returns the channel its response arrives on.
func (t *clientTransport) send(meta *protocol.Meta, payload, attachment []byte) (int64, <-chan *result, error) {
	seq := t.seq.Add(1)
	meta.LogID = seq

	buf, err := protocol.PackFrame(protocol.MsgTypeRequest, meta, payload, attachment)
	if err != nil {
		return 0, nil, err
	}

	// Register before writing so a fast response cannot beat us to the map.
	ch := make(chan *result, 1)
	t.pending.Store(seq, ch)
	select {
	case <-t.closed:
		t.pending.Delete(seq)
		return 0, nil, errTransportClosed
	default:
	}

	t.sending.Lock()
	_, err = t.conn.Write(buf)
	t.sending.Unlock()
	if err != nil {
		t.pending.Delete(seq)
		return 0, nil, err
	}
	return seq, ch, nil
}

func (t *clientTransport) cancel(seq int64) {
	t.pending.Delete(seq)
}

func (t *clientTransport) recvLoop() {
	for {
		frame, err := protocol.ReadFrame(t.conn)
		if err != nil {
			t.close()
			t.closeAllPending(err)
			return
		}

		switch frame.MsgType {
		case protocol.MsgTypeResponse:
			meta, payload, attachment, err := protocol.UnpackFrame(frame)
			if meta == nil {
				// Without meta the response cannot be matched to a caller.
				continue
			}
			if ch, ok := t.pending.LoadAndDelete(meta.LogID); ok {
				ch.(chan *result) <- &result{meta: meta, payload: payload, attachment: attachment, err: err}
			}
		case protocol.MsgTypePush:
			meta, payload, _, err := protocol.UnpackFrame(frame)
			if err != nil {
				continue
			}
			if h := t.onPush.Load(); h != nil {
				(*h)(meta.Service, meta.Method, payload)
			}
		}
	}
}

func (t *clientTransport) closeAllPending(err error) {
	t.pending.Range(func(key, value any) bool {
		value.(chan *result) <- &result{err: err}
		t.pending.Delete(key)
		return true
	})
}

func (t *clientTransport) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	beat := (&protocol.Frame{MsgType: protocol.MsgTypeHeartbeat}).Bytes()
	for {
		select {
		case <-ticker.C:
			t.sending.Lock()
			_, err := t.conn.Write(beat)
			t.sending.Unlock()
			if err != nil {
				return
			}
		case <-t.closed:
			return
		}
	}
}

func (t *clientTransport) close() error {
	var err error
	t.once.Do(func() {
		close(t.closed)
		err = t.conn.Close()
	})
	return err
}
