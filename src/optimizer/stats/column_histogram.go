package stats

import (
	"github.com/go-faster/errors"

	"github.com/Blackdeer1524/HeapDB/src/storage/tuple"
)

type Kind uint8

const (
	KindInt Kind = iota
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindString:
		return "string"
	default:
		return "unknown"
	}
}

// ColumnHistogram holds the histogram of one column: exactly one of the two
// histograms is set, as told by its kind.
type ColumnHistogram struct {
	kind Kind
	ints *IntHistogram
	strs *StringHistogram
}

func IntColumn(h *IntHistogram) ColumnHistogram {
	return ColumnHistogram{kind: KindInt, ints: h}
}

func StringColumn(h *StringHistogram) ColumnHistogram {
	return ColumnHistogram{kind: KindString, strs: h}
}

func (c ColumnHistogram) Kind() Kind {
	return c.kind
}

// Int returns the integer histogram of an INT column.
func (c ColumnHistogram) Int() (*IntHistogram, bool) {
	return c.ints, c.kind == KindInt
}

// Str returns the string histogram of a STRING column.
func (c ColumnHistogram) Str() (*StringHistogram, bool) {
	return c.strs, c.kind == KindString
}

func (c ColumnHistogram) Add(f tuple.Field) error {
	switch c.kind {
	case KindInt:
		v, ok := tuple.AsInt(f)
		if !ok {
			return errors.Wrapf(ErrTypeMismatch, "int column got %s", f.Type())
		}
		c.ints.AddValue(int64(v))
	case KindString:
		s, ok := tuple.AsString(f)
		if !ok {
			return errors.Wrapf(ErrTypeMismatch, "string column got %s", f.Type())
		}
		c.strs.AddValue(s)
	}
	return nil
}

func (c ColumnHistogram) EstimateSelectivity(op Op, constant tuple.Field) (float64, error) {
	switch c.kind {
	case KindInt:
		v, ok := tuple.AsInt(constant)
		if !ok {
			return 0, errors.Wrapf(ErrTypeMismatch, "int column compared with %s", constant.Type())
		}
		return c.ints.EstimateSelectivity(op, int64(v)), nil
	case KindString:
		s, ok := tuple.AsString(constant)
		if !ok {
			return 0, errors.Wrapf(ErrTypeMismatch, "string column compared with %s", constant.Type())
		}
		return c.strs.EstimateSelectivity(op, s), nil
	}
	return 0, errors.Errorf("column histogram of kind %s", c.kind)
}

func (c ColumnHistogram) AverageSelectivity() float64 {
	if c.kind == KindString {
		return c.strs.AverageSelectivity()
	}
	return c.ints.AverageSelectivity()
}

func (c ColumnHistogram) Total() int64 {
	if c.kind == KindString {
		return c.strs.Total()
	}
	return c.ints.Total()
}

func (c ColumnHistogram) String() string {
	if c.kind == KindString {
		return c.strs.String()
	}
	return c.ints.String()
}
