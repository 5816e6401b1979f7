package tuple

import (
	"strings"

	"github.com/go-faster/errors"

	"github.com/Blackdeer1524/HeapDB/src/pkg/common"
	"github.com/Blackdeer1524/HeapDB/src/pkg/optional"
)

var ErrTypeMismatch = errors.New("field type mismatch")

// Tuple is a row of fields following a schema. Once stored it carries the
// RecordID of its slot.
type Tuple struct {
	schema *Schema
	fields []Field
	rid    optional.Optional[common.RecordID]
}

func New(schema *Schema, fields ...Field) (*Tuple, error) {
	if len(fields) != schema.NumFields() {
		return nil, errors.Wrapf(ErrTypeMismatch, "schema has %d fields, got %d", schema.NumFields(), len(fields))
	}

	t := &Tuple{
		schema: schema,
		fields: make([]Field, len(fields)),
	}
	for i, f := range fields {
		if err := t.SetField(i, f); err != nil {
			return nil, err
		}
	}

	return t, nil
}

func (t *Tuple) Schema() *Schema {
	return t.schema
}

func (t *Tuple) NumFields() int {
	return len(t.fields)
}

func (t *Tuple) Field(i int) Field {
	return t.fields[i]
}

func (t *Tuple) Fields() []Field {
	return append([]Field(nil), t.fields...)
}

func (t *Tuple) SetField(i int, f Field) error {
	want, err := t.schema.FieldType(i)
	if err != nil {
		return err
	}
	if f == nil || f.Type() != want {
		return errors.Wrapf(ErrTypeMismatch, "field %d expects %s", i, want)
	}

	t.fields[i] = f
	return nil
}

func (t *Tuple) RecordID() (common.RecordID, bool) {
	return t.rid.Get()
}

func (t *Tuple) SetRecordID(rid common.RecordID) {
	t.rid = optional.Some(rid)
}

func (t *Tuple) ClearRecordID() {
	t.rid.Clear()
}

// Serialize writes the fields in order into dst, which must hold at least
// Schema().Size() bytes.
func (t *Tuple) Serialize(dst []byte) {
	offset := 0
	for _, f := range t.fields {
		n := f.Type().Len()
		f.Serialize(dst[offset : offset+n])
		offset += n
	}
}

func (t *Tuple) Bytes() []byte {
	buf := make([]byte, t.schema.Size())
	t.Serialize(buf)
	return buf
}

// Deserialize decodes one tuple of schema from src.
func Deserialize(schema *Schema, src []byte) (*Tuple, error) {
	if len(src) < schema.Size() {
		return nil, errors.Wrapf(ErrMalformedField, "tuple needs %d bytes, got %d", schema.Size(), len(src))
	}

	t := &Tuple{
		schema: schema,
		fields: make([]Field, schema.NumFields()),
	}

	offset := 0
	for i, desc := range schema.fields {
		f, err := DeserializeField(desc.Type, src[offset:])
		if err != nil {
			return nil, errors.Wrapf(err, "field %d", i)
		}
		t.fields[i] = f
		offset += desc.Type.Len()
	}

	return t, nil
}

func (t *Tuple) String() string {
	parts := make([]string, len(t.fields))
	for i, f := range t.fields {
		parts[i] = f.String()
	}
	return strings.Join(parts, "\t")
}
