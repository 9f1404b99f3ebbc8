// Package message defines the request and response exchanged between the
// transport layer and the execution core.
//
// A Request is produced by the protocol's decoder and is read-only once handed to
// a task, except for the connection binding done at task start. A Response is
// created empty by the transport layer and populated by the task.
package message

import (
	"context"

	"mini-rpc-server/codec"
	"mini-rpc-server/compress"
	"mini-rpc-server/transport"
)

// ClientNameKey is the KV attachment entry a client sets to register its
// connection for server push.
const ClientNameKey = "clientName"

// Invoker decodes the payload with the method codec and runs the business method.
type Invoker func(ctx context.Context, payload []byte) (any, error)

// MethodInfo describes a resolved method.
type MethodInfo struct {
	ServiceName string
	MethodName  string
	Codec       codec.Codec
	Invoke      Invoker
}

// FullName returns "Service.Method".
func (m *MethodInfo) FullName() string {
	if m == nil {
		return ""
	}
	return m.ServiceName + "." + m.MethodName
}

// Request identifies one call.
type Request struct {
	LogID            int64         // Correlation id, echoed on the response
	CompressType     compress.Type // Scheme the payload arrived in
	ServiceName      string
	MethodName       string
	Method           *MethodInfo // nil when resolution failed upstream
	Payload          []byte      // Uncompressed argument bytes
	BinaryAttachment []byte
	KVAttachment     map[string]string
	Conn             transport.Conn
	Err              error // Set by the decoder when the frame could not be turned into a call
}

// FullName returns "Service.Method" as sent by the client.
func (r *Request) FullName() string {
	return r.ServiceName + "." + r.MethodName
}

// ClientName returns the push identity carried in the KV attachment.
func (r *Request) ClientName() string {
	if r.KVAttachment == nil {
		return ""
	}
	return r.KVAttachment[ClientNameKey]
}

// LookupClientName reports whether the KV attachment carries a push identity,
// even an empty one.
func (r *Request) LookupClientName() (string, bool) {
	name, ok := r.KVAttachment[ClientNameKey]
	return name, ok
}

// Response carries the outcome of one call.
type Response struct {
	LogID            int64
	CompressType     compress.Type
	Err              error
	Result           any // Business return value, encoded with Method.Codec
	BinaryAttachment []byte
	KVAttachment     map[string]string
	Method           *MethodInfo
}
