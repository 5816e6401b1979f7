package tuple

import (
	"strings"

	"github.com/go-faster/errors"
)

var ErrNoSuchField = errors.New("no such field")

// FieldDesc describes one column. Name may be empty.
type FieldDesc struct {
	Type Type
	Name string
}

func (d FieldDesc) String() string {
	if d.Name == "" {
		return d.Type.String()
	}
	return d.Type.String() + "(" + d.Name + ")"
}

// Schema is the ordered list of fields that every tuple of a table follows.
// Two schemas are equal when their field types match position by position;
// names are descriptive only.
type Schema struct {
	fields []FieldDesc
	size   int
}

// NewSchema builds a schema from parallel type and name slices. names may be
// nil or shorter than types; missing names are left empty.
func NewSchema(types []Type, names []string) *Schema {
	fields := make([]FieldDesc, len(types))
	for i, t := range types {
		fields[i].Type = t
		if i < len(names) {
			fields[i].Name = names[i]
		}
	}

	return FromFields(fields...)
}

func FromFields(fields ...FieldDesc) *Schema {
	s := &Schema{fields: append([]FieldDesc(nil), fields...)}
	for _, f := range fields {
		s.size += f.Type.Len()
	}

	return s
}

// Merge concatenates the fields of a and b.
func Merge(a, b *Schema) *Schema {
	fields := make([]FieldDesc, 0, a.NumFields()+b.NumFields())
	fields = append(fields, a.fields...)
	fields = append(fields, b.fields...)

	return FromFields(fields...)
}

func (s *Schema) NumFields() int {
	return len(s.fields)
}

func (s *Schema) Fields() []FieldDesc {
	return append([]FieldDesc(nil), s.fields...)
}

func (s *Schema) Field(i int) (FieldDesc, error) {
	if i < 0 || i >= len(s.fields) {
		return FieldDesc{}, errors.Wrapf(ErrNoSuchField, "index %d of %d", i, len(s.fields))
	}
	return s.fields[i], nil
}

func (s *Schema) FieldType(i int) (Type, error) {
	f, err := s.Field(i)
	return f.Type, err
}

func (s *Schema) FieldName(i int) (string, error) {
	f, err := s.Field(i)
	return f.Name, err
}

// IndexOf returns the position of the first field called name.
func (s *Schema) IndexOf(name string) (int, error) {
	if name != "" {
		for i, f := range s.fields {
			if f.Name == name {
				return i, nil
			}
		}
	}

	return -1, errors.Wrapf(ErrNoSuchField, "name %q", name)
}

// Size is the serialized width in bytes of a tuple with this schema.
func (s *Schema) Size() int {
	return s.size
}

func (s *Schema) Equals(other *Schema) bool {
	if s == other {
		return true
	}
	if other == nil || len(s.fields) != len(other.fields) {
		return false
	}
	for i := range s.fields {
		if s.fields[i].Type != other.fields[i].Type {
			return false
		}
	}

	return true
}

func (s *Schema) String() string {
	parts := make([]string, len(s.fields))
	for i, f := range s.fields {
		parts[i] = f.String()
	}
	return strings.Join(parts, ", ")
}
