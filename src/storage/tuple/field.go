package tuple

import (
	"encoding/binary"
	"strconv"
	"unicode/utf8"

	"github.com/go-faster/errors"
)

var ErrMalformedField = errors.New("malformed field")

// Field is one typed value of a tuple.
type Field interface {
	Type() Type
	// Serialize writes exactly Type().Len() bytes into dst.
	Serialize(dst []byte)
	String() string
}

type IntField struct {
	Value int32
}

var (
	_ Field = IntField{}
	_ Field = StringField{}
)

func NewIntField(v int32) IntField {
	return IntField{Value: v}
}

func (f IntField) Type() Type {
	return IntType
}

func (f IntField) Serialize(dst []byte) {
	binary.BigEndian.PutUint32(dst[:intLen], uint32(f.Value))
}

func (f IntField) String() string {
	return strconv.FormatInt(int64(f.Value), 10)
}

type StringField struct {
	Value string
}

func NewStringField(v string) StringField {
	return StringField{Value: v}
}

func (f StringField) Type() Type {
	return StringType
}

// Serialize writes a 4-byte big-endian length followed by the value padded
// with zeros to StringMaxLen bytes. Longer values are cut at the last rune
// boundary that fits.
func (f StringField) Serialize(dst []byte) {
	v := f.Value
	if len(v) > StringMaxLen {
		cut := StringMaxLen
		for i := 0; i < utf8.UTFMax-1 && cut > 0 && !utf8.RuneStart(v[cut]); i++ {
			cut--
		}
		v = v[:cut]
	}

	binary.BigEndian.PutUint32(dst[:stringLenLen], uint32(len(v)))
	payload := dst[stringLenLen : stringLenLen+StringMaxLen]
	n := copy(payload, v)
	clear(payload[n:])
}

func (f StringField) String() string {
	return f.Value
}

// DeserializeField decodes a field of type t from the first t.Len() bytes of
// src.
func DeserializeField(t Type, src []byte) (Field, error) {
	if len(src) < t.Len() {
		return nil, errors.Wrapf(ErrMalformedField, "%s needs %d bytes, got %d", t, t.Len(), len(src))
	}

	switch t {
	case IntType:
		return IntField{Value: int32(binary.BigEndian.Uint32(src))}, nil
	case StringType:
		n := binary.BigEndian.Uint32(src)
		if n > StringMaxLen {
			return nil, errors.Wrapf(ErrMalformedField, "string length %d exceeds %d", n, StringMaxLen)
		}
		return StringField{Value: string(src[stringLenLen : stringLenLen+int(n)])}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownType, "deserialize type %d", uint8(t))
	}
}

// AsInt returns the integer value of f if it is an integer field.
func AsInt(f Field) (int32, bool) {
	v, ok := f.(IntField)
	return v.Value, ok
}

// AsString returns the string value of f if it is a string field.
func AsString(f Field) (string, bool) {
	v, ok := f.(StringField)
	return v.Value, ok
}
