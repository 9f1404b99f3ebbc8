// Package compress implements the payload compression schemes a request may ask for.
//
// The compress type travels in the frame meta. The server mirrors the request's
// compress type onto the response, so the same scheme is used in both directions.
package compress

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// Type identifies a compression scheme on the wire.
type Type int32

const (
	None   Type = 0
	Snappy Type = 1
	Gzip   Type = 2
	Zlib   Type = 3
)

func (t Type) String() string {
	switch t {
	case None:
		return "NONE"
	case Snappy:
		return "SNAPPY"
	case Gzip:
		return "GZIP"
	case Zlib:
		return "ZLIB"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int32(t))
	}
}

// Valid reports whether t is a scheme this package can handle.
func (t Type) Valid() bool {
	return t >= None && t <= Zlib
}

// Compress encodes data with the given scheme.
func Compress(t Type, data []byte) ([]byte, error) {
	switch t {
	case None:
		return data, nil
	case Snappy:
		return snappy.Encode(nil, data), nil
	case Gzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case Zlib:
		var buf bytes.Buffer
		w := zlib.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("compress: unsupported type %s", t)
	}
}

// ErrTooLarge is returned when a payload decompresses past the caller's limit.
var ErrTooLarge = errors.New("compress: decompressed payload too large")

// Decompress reverses Compress. The result may be at most limit bytes; a
// limit <= 0 disables the check.
func Decompress(t Type, data []byte, limit int) ([]byte, error) {
	switch t {
	case None:
		if limit > 0 && len(data) > limit {
			return nil, ErrTooLarge
		}
		return data, nil
	case Snappy:
		n, err := snappy.DecodedLen(data)
		if err != nil {
			return nil, err
		}
		if limit > 0 && n > limit {
			return nil, fmt.Errorf("%w: snappy header declares %d bytes", ErrTooLarge, n)
		}
		return snappy.Decode(nil, data)
	case Gzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return readLimited(r, limit)
	case Zlib:
		r, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return readLimited(r, limit)
	default:
		return nil, fmt.Errorf("compress: unsupported type %s", t)
	}
}

func readLimited(r io.Reader, limit int) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	out, err := io.ReadAll(io.LimitReader(r, int64(limit)+1))
	if err != nil {
		return nil, err
	}
	if len(out) > limit {
		return nil, ErrTooLarge
	}
	return out, nil
}
