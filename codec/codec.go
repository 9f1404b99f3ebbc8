// Package codec serializes method arguments and results.
//
// The codec only sees the payload section of a frame. Framing, meta and
// compression are the protocol's business.
package codec

type CodecType byte

const (
	CodecTypeJSON CodecType = 0
	CodecTypeRaw  CodecType = 1
)

type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() CodecType // 0=JSON, 1=Raw
}

func GetCodec(codecType CodecType) Codec {
	if codecType == CodecTypeRaw {
		return &RawCodec{}
	}

	return &JSONCodec{}
}
