package protocol

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"mini-rpc-server/codec"
	"mini-rpc-server/compress"
	"mini-rpc-server/message"
	"mini-rpc-server/rpcerr"
	"mini-rpc-server/transport"
)

// Protocol is what the execution core needs from a wire protocol.
type Protocol interface {
	// DecodeRequest turns a request frame into a Request. A returned error means
	// the frame could not be understood at all and the connection should be
	// dropped. Failures that still allow a reply, such as an unknown method, are
	// reported through Request.Err instead.
	DecodeRequest(f *Frame) (*message.Request, error)
	// EncodeResponse serializes resp into a complete frame.
	EncodeResponse(req *message.Request, resp *message.Response) ([]byte, error)
	// AfterResponseSent is called once the response write has been issued.
	// The write may still be in flight.
	AfterResponseSent(req *message.Request, resp *message.Response, future *transport.WriteFuture)
}

// MethodResolver finds the method a request addresses.
type MethodResolver interface {
	Lookup(service, method string) (*message.MethodInfo, bool)
}

// Standard is the default Protocol.
type Standard struct {
	methods MethodResolver
	logger  *zap.Logger
}

func NewStandard(methods MethodResolver, logger *zap.Logger) *Standard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Standard{methods: methods, logger: logger}
}

func (p *Standard) DecodeRequest(f *Frame) (*message.Request, error) {
	if f.MsgType != MsgTypeRequest {
		return nil, fmt.Errorf("expect request frame, got message type %d", f.MsgType)
	}
	meta, payload, attachment, err := UnpackFrame(f)
	if err != nil && meta == nil {
		return nil, err
	}

	req := &message.Request{
		LogID:            meta.LogID,
		CompressType:     compress.Type(meta.CompressType),
		ServiceName:      meta.Service,
		MethodName:       meta.Method,
		Payload:          payload,
		BinaryAttachment: attachment,
		KVAttachment:     meta.KV,
	}
	if err != nil {
		// Meta is readable, so the caller can still be told what went wrong.
		req.Err = err
		return req, nil
	}

	method, ok := p.methods.Lookup(meta.Service, meta.Method)
	if !ok {
		req.Err = fmt.Errorf("%w: %s", rpcerr.ErrMethodNotFound, req.FullName())
		return req, nil
	}
	req.Method = method
	return req, nil
}

func (p *Standard) EncodeResponse(req *message.Request, resp *message.Response) ([]byte, error) {
	ct := resp.CompressType
	if !ct.Valid() {
		// Only reachable when the request itself named an unknown scheme; the
		// response carries that error uncompressed.
		ct = compress.None
	}
	meta := &Meta{
		LogID:        resp.LogID,
		CompressType: int32(ct),
		KV:           resp.KVAttachment,
	}
	if req != nil {
		meta.Service, meta.Method = req.ServiceName, req.MethodName
	}

	var payload []byte
	if resp.Err != nil {
		meta.ErrorCode = rpcerr.Code(resp.Err)
		meta.ErrorText = resp.Err.Error()
	} else if resp.Result != nil {
		c := codec.GetCodec(codec.CodecTypeJSON)
		if resp.Method != nil && resp.Method.Codec != nil {
			c = resp.Method.Codec
		}
		encoded, err := c.Encode(resp.Result)
		if err != nil {
			return nil, fmt.Errorf("encode result of %s: %w", resp.Method.FullName(), err)
		}
		payload = encoded
	}
	return PackFrame(MsgTypeResponse, meta, payload, resp.BinaryAttachment)
}

func (p *Standard) AfterResponseSent(req *message.Request, resp *message.Response, future *transport.WriteFuture) {
	future.AddListener(func(f *transport.WriteFuture) {
		if err := f.Err(); err != nil && !errors.Is(err, transport.ErrConnClosed) {
			p.logger.Warn("response write failed",
				zap.Int64("log_id", resp.LogID),
				zap.Error(err))
		}
	})
}

// PackFrame compresses payload with meta's compress type and builds the frame bytes.
func PackFrame(msgType MsgType, meta *Meta, payload, attachment []byte) ([]byte, error) {
	compressed, err := compress.Compress(compress.Type(meta.CompressType), payload)
	if err != nil {
		return nil, err
	}
	meta.AttachmentSize = uint32(len(attachment))

	data := make([]byte, 0, len(compressed)+len(attachment))
	data = append(data, compressed...)
	data = append(data, attachment...)
	f := &Frame{MsgType: msgType, Meta: meta.Marshal(), Data: data}
	return f.Bytes(), nil
}

// UnpackFrame splits a frame into meta, decompressed payload and attachment.
// When meta decodes but the rest does not, meta is returned with the error.
func UnpackFrame(f *Frame) (*Meta, []byte, []byte, error) {
	meta := &Meta{}
	if err := meta.Unmarshal(f.Meta); err != nil {
		return nil, nil, nil, err
	}
	if int(meta.AttachmentSize) > len(f.Data) {
		return meta, nil, nil, fmt.Errorf("attachment size %d exceeds frame data %d", meta.AttachmentSize, len(f.Data))
	}
	split := len(f.Data) - int(meta.AttachmentSize)
	var attachment []byte
	if meta.AttachmentSize > 0 {
		attachment = f.Data[split:]
	}

	ct := compress.Type(meta.CompressType)
	if !ct.Valid() {
		return meta, nil, attachment, fmt.Errorf("unsupported compress type %d", meta.CompressType)
	}
	payload, err := compress.Decompress(ct, f.Data[:split], int(MaxBodySize))
	if err != nil {
		return meta, nil, attachment, fmt.Errorf("decompress payload: %w", err)
	}
	return meta, payload, attachment, nil
}
