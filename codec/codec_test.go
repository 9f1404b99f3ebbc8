package codec

import (
	"testing"
)

type args struct {
	A, B int
}

func TestJSONCodec(t *testing.T) {
	jsonCodec := GetCodec(CodecTypeJSON)

	data, err := jsonCodec.Encode(&args{A: 1, B: 2})
	if err != nil {
		t.Fatalf("JSONCodec Encode failed: %v", err)
	}

	var decoded args
	if err := jsonCodec.Decode(data, &decoded); err != nil {
		t.Fatalf("JSONCodec Decode failed: %v", err)
	}
	if decoded.A != 1 || decoded.B != 2 {
		t.Errorf("args mismatch: got %+v", decoded)
	}
}

func TestRawCodec(t *testing.T) {
	rawCodec := GetCodec(CodecTypeRaw)
	if rawCodec.Type() != CodecTypeRaw {
		t.Fatalf("expect raw codec, got %v", rawCodec.Type())
	}

	data, err := rawCodec.Encode([]byte("ping"))
	if err != nil {
		t.Fatalf("RawCodec Encode failed: %v", err)
	}

	var decoded []byte
	if err := rawCodec.Decode(data, &decoded); err != nil {
		t.Fatalf("RawCodec Decode failed: %v", err)
	}
	if string(decoded) != "ping" {
		t.Errorf("payload mismatch: got %s", decoded)
	}

	if _, err := rawCodec.Encode(42); err == nil {
		t.Error("expect error encoding a non-byte value")
	}
	if err := rawCodec.Decode(data, &args{}); err == nil {
		t.Error("expect error decoding into a non-byte target")
	}
}
