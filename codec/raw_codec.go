package codec

import (
	"errors"
	"fmt"
)

// RawCodec passes byte payloads through untouched.
// Methods registered with it take and return []byte.
type RawCodec struct{}

func (c *RawCodec) Encode(v any) ([]byte, error) {
	switch b := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case *[]byte:
		if b == nil {
			return nil, nil
		}
		return *b, nil
	default:
		return nil, fmt.Errorf("RawCodec: cannot encode %T", v)
	}
}

func (c *RawCodec) Decode(data []byte, v any) error {
	b, ok := v.(*[]byte)
	if !ok {
		return errors.New("RawCodec: v must be *[]byte")
	}
	*b = append((*b)[:0], data...)
	return nil
}

func (c *RawCodec) Type() CodecType {
	return CodecTypeRaw
}
