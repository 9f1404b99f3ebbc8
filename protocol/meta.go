package protocol

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Meta field numbers. Unknown fields are skipped on decode so peers can add
// fields without breaking older readers.
const (
	fieldLogID          protowire.Number = 1
	fieldService        protowire.Number = 2
	fieldMethod         protowire.Number = 3
	fieldCompressType   protowire.Number = 4
	fieldErrorCode      protowire.Number = 5
	fieldErrorText      protowire.Number = 6
	fieldAttachmentSize protowire.Number = 7
	fieldKV             protowire.Number = 8

	fieldKVKey   protowire.Number = 1
	fieldKVValue protowire.Number = 2
)

// Meta is the per-frame header describing the call.
type Meta struct {
	LogID          int64
	Service        string
	Method         string
	CompressType   int32
	ErrorCode      int32
	ErrorText      string
	AttachmentSize uint32
	KV             map[string]string
}

// Marshal encodes m in protobuf wire format.
func (m *Meta) Marshal() []byte {
	var b []byte
	if m.LogID != 0 {
		b = protowire.AppendTag(b, fieldLogID, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.LogID))
	}
	if m.Service != "" {
		b = protowire.AppendTag(b, fieldService, protowire.BytesType)
		b = protowire.AppendString(b, m.Service)
	}
	if m.Method != "" {
		b = protowire.AppendTag(b, fieldMethod, protowire.BytesType)
		b = protowire.AppendString(b, m.Method)
	}
	if m.CompressType != 0 {
		b = protowire.AppendTag(b, fieldCompressType, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.CompressType))
	}
	if m.ErrorCode != 0 {
		b = protowire.AppendTag(b, fieldErrorCode, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.ErrorCode))
	}
	if m.ErrorText != "" {
		b = protowire.AppendTag(b, fieldErrorText, protowire.BytesType)
		b = protowire.AppendString(b, m.ErrorText)
	}
	if m.AttachmentSize != 0 {
		b = protowire.AppendTag(b, fieldAttachmentSize, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.AttachmentSize))
	}
	for k, v := range m.KV {
		var entry []byte
		entry = protowire.AppendTag(entry, fieldKVKey, protowire.BytesType)
		entry = protowire.AppendString(entry, k)
		entry = protowire.AppendTag(entry, fieldKVValue, protowire.BytesType)
		entry = protowire.AppendString(entry, v)
		b = protowire.AppendTag(b, fieldKV, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}
	return b
}

// Unmarshal decodes b into m, replacing its contents.
func (m *Meta) Unmarshal(b []byte) error {
	*m = Meta{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("meta: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldKV && typ == protowire.BytesType:
			entry, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("meta kv: %w", protowire.ParseError(n))
			}
			k, v, err := unmarshalKV(entry)
			if err != nil {
				return err
			}
			if m.KV == nil {
				m.KV = make(map[string]string)
			}
			m.KV[k] = v
			b = b[n:]
		case typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("meta field %d: %w", num, protowire.ParseError(n))
			}
			switch num {
			case fieldLogID:
				m.LogID = int64(v)
			case fieldCompressType:
				m.CompressType = int32(v)
			case fieldErrorCode:
				m.ErrorCode = int32(v)
			case fieldAttachmentSize:
				m.AttachmentSize = uint32(v)
			}
			b = b[n:]
		case typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return fmt.Errorf("meta field %d: %w", num, protowire.ParseError(n))
			}
			switch num {
			case fieldService:
				m.Service = v
			case fieldMethod:
				m.Method = v
			case fieldErrorText:
				m.ErrorText = v
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("meta field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return nil
}

func unmarshalKV(b []byte) (key, value string, err error) {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return "", "", fmt.Errorf("meta kv: %w", protowire.ParseError(n))
		}
		b = b[n:]
		if typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return "", "", fmt.Errorf("meta kv: %w", protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}
		s, n := protowire.ConsumeString(b)
		if n < 0 {
			return "", "", fmt.Errorf("meta kv: %w", protowire.ParseError(n))
		}
		switch num {
		case fieldKVKey:
			key = s
		case fieldKVValue:
			value = s
		}
		b = b[n:]
	}
	return key, value, nil
}
