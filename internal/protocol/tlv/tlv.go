package tlv

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const HeaderLen = 7

var (
	ErrShortFieldHeader = errors.New("tlv: short field header")
	ErrShortFieldValue  = errors.New("tlv: short field value")
	ErrTypeMismatch     = errors.New("tlv: field type mismatch")
	ErrMissingField     = errors.New("tlv: missing field")
)

// Type IDs from tlv contract.
const (
	TypeU32    uint8 = 3
	TypeU64    uint8 = 4
	TypeBool   uint8 = 5
	TypeString uint8 = 6
	TypeBytes  uint8 = 7
)

// Field is one decoded TLV field.
type Field struct {
	ID    uint16
	Type  uint8
	Value []byte
}

func String(id uint16, v string) Field {
	return Field{ID: id, Type: TypeString, Value: []byte(v)}
}

func Bytes(id uint16, v []byte) Field {
	buf := make([]byte, len(v))
	copy(buf, v)
	return Field{ID: id, Type: TypeBytes, Value: buf}
}

func U32(id uint16, v uint32) Field {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	return Field{ID: id, Type: TypeU32, Value: buf}
}

func U64(id uint16, v uint64) Field {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return Field{ID: id, Type: TypeU64, Value: buf}
}

func Bool(id uint16, v bool) Field {
	b := byte(0)
	if v {
		b = 1
	}
	return Field{ID: id, Type: TypeBool, Value: []byte{b}}
}

func EncodeField(f Field) []byte {
	buf := make([]byte, HeaderLen+len(f.Value))
	binary.BigEndian.PutUint16(buf[0:2], f.ID)
	buf[2] = f.Type
	binary.BigEndian.PutUint32(buf[3:7], uint32(len(f.Value)))
	copy(buf[7:], f.Value)
	return buf
}

func EncodeFields(fields []Field) []byte {
	out := make([]byte, 0)
	for _, f := range fields {
		out = append(out, EncodeField(f)...)
	}
	return out
}

func DecodeFields(payload []byte) (Fields, error) {
	fields := make(Fields, 0)
	i := 0
	for i < len(payload) {
		if len(payload)-i < HeaderLen {
			return nil, ErrShortFieldHeader
		}
		id := binary.BigEndian.Uint16(payload[i : i+2])
		typeID := payload[i+2]
		l := binary.BigEndian.Uint32(payload[i+3 : i+7])
		i += HeaderLen
		if uint32(len(payload)-i) < l {
			return nil, ErrShortFieldValue
		}
		val := make([]byte, l)
		copy(val, payload[i:i+int(l)])
		i += int(l)
		fields = append(fields, Field{ID: id, Type: typeID, Value: val})
	}
	return fields, nil
}

// Fields is a decoded payload. Lookups return the first field with a given id.
type Fields []Field

func (fs Fields) Get(id uint16) (Field, bool) {
	for _, f := range fs {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

// String returns the string field id, or "" when it is absent.
func (fs Fields) String(id uint16) (string, error) {
	f, ok := fs.Get(id)
	if !ok {
		return "", nil
	}
	if err := mustType(f, TypeString); err != nil {
		return "", err
	}
	return string(f.Value), nil
}

// RequiredString is String but fails when the field is absent.
func (fs Fields) RequiredString(id uint16) (string, error) {
	if _, ok := fs.Get(id); !ok {
		return "", fmt.Errorf("%w: %d", ErrMissingField, id)
	}
	return fs.String(id)
}

func (fs Fields) U32(id uint16) (uint32, error) {
	f, ok := fs.Get(id)
	if !ok {
		return 0, nil
	}
	if err := mustType(f, TypeU32); err != nil {
		return 0, err
	}
	if len(f.Value) != 4 {
		return 0, fmt.Errorf("tlv: invalid u32 length: %d", len(f.Value))
	}
	return binary.BigEndian.Uint32(f.Value), nil
}

func (fs Fields) U64(id uint16) (uint64, error) {
	f, ok := fs.Get(id)
	if !ok {
		return 0, nil
	}
	if err := mustType(f, TypeU64); err != nil {
		return 0, err
	}
	if len(f.Value) != 8 {
		return 0, fmt.Errorf("tlv: invalid u64 length: %d", len(f.Value))
	}
	return binary.BigEndian.Uint64(f.Value), nil
}

func (fs Fields) Bool(id uint16) (bool, error) {
	f, ok := fs.Get(id)
	if !ok {
		return false, nil
	}
	if err := mustType(f, TypeBool); err != nil {
		return false, err
	}
	if len(f.Value) != 1 || f.Value[0] > 1 {
		return false, fmt.Errorf("tlv: invalid bool value for field %d", id)
	}
	return f.Value[0] == 1, nil
}

func (fs Fields) Bytes(id uint16) ([]byte, error) {
	f, ok := fs.Get(id)
	if !ok {
		return nil, nil
	}
	if err := mustType(f, TypeBytes); err != nil {
		return nil, err
	}
	return f.Value, nil
}

func mustType(f Field, expected uint8) error {
	if f.Type != expected {
		return fmt.Errorf("%w: field %d got %d want %d", ErrTypeMismatch, f.ID, f.Type, expected)
	}
	return nil
}
