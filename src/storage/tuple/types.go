package tuple

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"
)

// Type is the column type of a schema field. Every type has a fixed on-disk
// width so that tuples of one schema always occupy the same number of bytes.
type Type uint8

const (
	IntType Type = iota
	StringType
)

// StringMaxLen is the number of payload bytes a string field reserves. Longer
// values are truncated on write.
const StringMaxLen = 128

const (
	intLen       = 4
	stringLenLen = 4
)

var ErrUnknownType = errors.New("unknown field type")

// Len returns the serialized width of a field of this type.
func (t Type) Len() int {
	switch t {
	case IntType:
		return intLen
	case StringType:
		return stringLenLen + StringMaxLen
	default:
		panic(fmt.Sprintf("unknown field type %d", uint8(t)))
	}
}

func (t Type) String() string {
	switch t {
	case IntType:
		return "INT_TYPE"
	case StringType:
		return "STRING_TYPE"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// ParseType accepts the type names used by catalog manifests.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "int", "integer", "int_type":
		return IntType, nil
	case "string", "text", "string_type":
		return StringType, nil
	default:
		return 0, errors.Wrapf(ErrUnknownType, "parse %q", s)
	}
}
