package client

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"mini-rpc-server/compress"
	"mini-rpc-server/message"
	"mini-rpc-server/protocol"
	"mini-rpc-server/rpcerr"
)

// fakeServer accepts one connection and hands every request frame to handle.
func fakeServer(t *testing.T, handle func(conn net.Conn, meta *protocol.Meta, payload, attachment []byte)) (string, <-chan net.Conn) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	conns := make(chan net.Conn, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		conns <- conn
		for {
			f, err := protocol.ReadFrame(conn)
			if err != nil {
				return
			}
			if f.MsgType != protocol.MsgTypeRequest {
				continue
			}
			meta, payload, attachment, err := protocol.UnpackFrame(f)
			if err != nil {
				return
			}
			handle(conn, meta, payload, attachment)
		}
	}()
	return l.Addr().String(), conns
}

func reply(conn net.Conn, meta *protocol.Meta, payload, attachment []byte) {
	buf, err := protocol.PackFrame(protocol.MsgTypeResponse, meta, payload, attachment)
	if err != nil {
		panic(err)
	}
	conn.Write(buf)
}

func TestCall(t *testing.T) {
	addr, _ := fakeServer(t, func(conn net.Conn, meta *protocol.Meta, payload, attachment []byte) {
		if meta.Service != "Echo" || meta.Method != "Echo" {
			reply(conn, &protocol.Meta{LogID: meta.LogID, ErrorCode: rpcerr.CodeNotFound, ErrorText: "method not found"}, nil, nil)
			return
		}
		reply(conn, &protocol.Meta{LogID: meta.LogID, CompressType: meta.CompressType}, payload, nil)
	})
	cli, err := Dial(addr, Options{CompressType: compress.Snappy})
	if err != nil {
		t.Fatal(err)
	}
	defer cli.Close()

	var got map[string]string
	if err := cli.Call(context.Background(), "Echo", "Echo", map[string]string{"msg": "hi"}, &got); err != nil {
		t.Fatal(err)
	}
	if got["msg"] != "hi" {
		t.Fatalf("expect hi, got %v", got)
	}

	err = cli.Call(context.Background(), "Echo", "Nope", nil, nil)
	if !errors.Is(err, rpcerr.ErrMethodNotFound) {
		t.Fatalf("expect method not found, got %v", err)
	}
}

func TestCallSendsClientNameAndAttachments(t *testing.T) {
	seen := make(chan *protocol.Meta, 1)
	addr, _ := fakeServer(t, func(conn net.Conn, meta *protocol.Meta, payload, attachment []byte) {
		seen <- meta
		reply(conn, &protocol.Meta{LogID: meta.LogID, KV: map[string]string{"echo": meta.KV["k"]}}, nil, append([]byte("re:"), attachment...))
	})
	cli, err := Dial(addr, Options{ClientName: "X"})
	if err != nil {
		t.Fatal(err)
	}
	defer cli.Close()

	call := &Call{
		Service:          "S",
		Method:           "M",
		BinaryAttachment: []byte("bin"),
		KVAttachment:     map[string]string{"k": "v"},
	}
	if err := cli.Do(context.Background(), call); err != nil {
		t.Fatal(err)
	}
	meta := <-seen
	if meta.KV[message.ClientNameKey] != "X" || meta.KV["k"] != "v" {
		t.Fatalf("unexpected request kv: %v", meta.KV)
	}
	if meta.LogID != call.LogID {
		t.Fatalf("log id mismatch: %d vs %d", meta.LogID, call.LogID)
	}
	if string(call.ResponseBinaryAttachment) != "re:bin" || call.ResponseKVAttachment["echo"] != "v" {
		t.Fatalf("unexpected response attachments: %q %v", call.ResponseBinaryAttachment, call.ResponseKVAttachment)
	}
	if _, ok := call.KVAttachment[message.ClientNameKey]; ok {
		t.Fatal("Do modified the caller's kv map")
	}
}

func TestOutOfOrderResponses(t *testing.T) {
	held := make(chan *protocol.Meta, 1)
	addr, _ := fakeServer(t, func(conn net.Conn, meta *protocol.Meta, payload, attachment []byte) {
		if meta.Method == "First" {
			held <- meta
			return
		}
		// Answer Second, then the held First.
		reply(conn, &protocol.Meta{LogID: meta.LogID}, []byte(`"second"`), nil)
		first := <-held
		reply(conn, &protocol.Meta{LogID: first.LogID}, []byte(`"first"`), nil)
	})
	cli, err := Dial(addr, Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer cli.Close()

	firstDone := make(chan string, 1)
	go func() {
		var s string
		cli.Call(context.Background(), "S", "First", nil, &s)
		firstDone <- s
	}()
	for len(held) == 0 {
		time.Sleep(time.Millisecond)
	}

	var s string
	if err := cli.Call(context.Background(), "S", "Second", nil, &s); err != nil {
		t.Fatal(err)
	}
	if s != "second" {
		t.Fatalf("expect second, got %q", s)
	}
	if got := <-firstDone; got != "first" {
		t.Fatalf("expect first, got %q", got)
	}
}

func TestCallContextCancel(t *testing.T) {
	addr, _ := fakeServer(t, func(conn net.Conn, meta *protocol.Meta, payload, attachment []byte) {})
	cli, err := Dial(addr, Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer cli.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := cli.Call(ctx, "S", "M", nil, nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expect deadline exceeded, got %v", err)
	}
}

func TestPendingFailOnDisconnect(t *testing.T) {
	addr, conns := fakeServer(t, func(conn net.Conn, meta *protocol.Meta, payload, attachment []byte) {
		conn.Close()
	})
	cli, err := Dial(addr, Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer cli.Close()
	<-conns

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = cli.Call(ctx, "S", "M", nil, nil)
	if err == nil || errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expect connection error, got %v", err)
	}
	if err := cli.Call(ctx, "S", "M", nil, nil); err == nil {
		t.Fatal("call on a dead connection succeeded")
	}
}

func TestPushWithHeartbeat(t *testing.T) {
	addr, conns := fakeServer(t, func(conn net.Conn, meta *protocol.Meta, payload, attachment []byte) {})
	cli, err := Dial(addr, Options{Heartbeat: 20 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	defer cli.Close()

	pushed := make(chan string, 1)
	cli.OnPush(func(service, method string, payload []byte) {
		pushed <- service + "." + method + " " + string(payload)
	})

	conn := <-conns
	buf, err := protocol.PackFrame(protocol.MsgTypePush, &protocol.Meta{LogID: 1, Service: "Notice", Method: "Hello"}, []byte(`"hi"`), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Write(buf); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-pushed:
		if got != `Notice.Hello "hi"` {
			t.Fatalf("unexpected push %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("push not delivered")
	}
}
