package stats

import (
	"iter"
	"math"

	"github.com/go-faster/errors"

	"github.com/Blackdeer1524/HeapDB/src/pkg/common"
	"github.com/Blackdeer1524/HeapDB/src/pkg/utils"
	"github.com/Blackdeer1524/HeapDB/src/storage/page"
	"github.com/Blackdeer1524/HeapDB/src/storage/tuple"
)

const (
	DefaultIOCostPerPage    = 1000
	DefaultHistogramBuckets = 100
)

var (
	ErrNoSuchField  = errors.New("no such field")
	ErrTypeMismatch = errors.New("constant type does not match column")
	// ErrTableChanged is returned when the second pass of Compute sees a value
	// the first pass did not, i.e. the table was modified during analysis.
	ErrTableChanged = errors.New("table changed during analysis")
)

// ScannableTable is a table statistics can be computed over.
type ScannableTable interface {
	ID() common.TableID
	Schema() *tuple.Schema
	Layout() page.Layout
	Scan() iter.Seq[utils.Pair[*tuple.Tuple, error]]
}

// TableStats are the cost and cardinality estimates of one table. They are
// immutable once computed.
type TableStats struct {
	tableID       common.TableID
	ioCostPerPage int
	tuplesPerPage int
	rows          int64
	columns       []ColumnHistogram
}

type intRange struct {
	min int64
	max int64
}

// Compute builds the statistics of table in two scans: the first counts rows
// and finds the range of every INT column, the second fills one histogram
// per column.
func Compute(table ScannableTable, ioCostPerPage, buckets int) (*TableStats, error) {
	schema := table.Schema()
	fields := schema.Fields()

	ranges := make([]intRange, len(fields))
	for i := range ranges {
		ranges[i] = intRange{min: math.MaxInt64, max: math.MinInt64}
	}

	var rows int64
	for item := range table.Scan() {
		t, err := item.Destruct()
		if err != nil {
			return nil, errors.Wrapf(err, "scan table %d", table.ID())
		}
		rows++

		for i, desc := range fields {
			if desc.Type != tuple.IntType {
				continue
			}
			v, ok := tuple.AsInt(t.Field(i))
			if !ok {
				return nil, errors.Wrapf(ErrTypeMismatch, "table %d field %d", table.ID(), i)
			}
			ranges[i].min = min(ranges[i].min, int64(v))
			ranges[i].max = max(ranges[i].max, int64(v))
		}
	}

	columns := make([]ColumnHistogram, len(fields))
	for i, desc := range fields {
		col, err := newColumn(desc.Type, ranges[i], rows, buckets)
		if err != nil {
			return nil, errors.Wrapf(err, "table %d field %d", table.ID(), i)
		}
		columns[i] = col
	}

	for item := range table.Scan() {
		t, err := item.Destruct()
		if err != nil {
			return nil, errors.Wrapf(err, "scan table %d", table.ID())
		}

		for i, col := range columns {
			f := t.Field(i)
			if ints, ok := col.Int(); ok {
				v, _ := tuple.AsInt(f)
				if !ints.Contains(int64(v)) {
					return nil, errors.Wrapf(ErrTableChanged, "table %d field %d value %d", table.ID(), i, v)
				}
			}
			if err := col.Add(f); err != nil {
				return nil, errors.Wrapf(err, "table %d field %d", table.ID(), i)
			}
		}
	}

	return &TableStats{
		tableID:       table.ID(),
		ioCostPerPage: ioCostPerPage,
		tuplesPerPage: table.Layout().SlotCount(),
		rows:          rows,
		columns:       columns,
	}, nil
}

func newColumn(typ tuple.Type, r intRange, rows int64, buckets int) (ColumnHistogram, error) {
	if typ == tuple.StringType {
		h, err := NewStringHistogram(buckets)
		if err != nil {
			return ColumnHistogram{}, err
		}
		return StringColumn(h), nil
	}

	if rows == 0 {
		r = intRange{}
	}
	h, err := NewIntHistogram(buckets, r.min, r.max)
	if err != nil {
		return ColumnHistogram{}, err
	}
	return IntColumn(h), nil
}

func (s *TableStats) TableID() common.TableID {
	return s.tableID
}

func (s *TableStats) IOCostPerPage() int {
	return s.ioCostPerPage
}

// TotalTuples is the number of rows seen when the statistics were computed.
func (s *TableStats) TotalTuples() int64 {
	return s.rows
}

func (s *TableStats) NumFields() int {
	return len(s.columns)
}

// EstimateScanCost is the cost of reading every page of the table, assuming
// pages are filled to capacity.
func (s *TableStats) EstimateScanCost() float64 {
	pages := (s.rows + int64(s.tuplesPerPage) - 1) / int64(s.tuplesPerPage)
	return float64(pages) * float64(s.ioCostPerPage)
}

// EstimateCardinality is the expected number of rows passing a predicate of
// the given selectivity.
func (s *TableStats) EstimateCardinality(selectivity float64) int64 {
	return int64(math.Ceil(float64(s.rows) * selectivity))
}

func (s *TableStats) Histogram(field int) (ColumnHistogram, error) {
	if field < 0 || field >= len(s.columns) {
		return ColumnHistogram{}, errors.Wrapf(ErrNoSuchField, "table %d has %d fields, got index %d", s.tableID, len(s.columns), field)
	}
	return s.columns[field], nil
}

// EstimateSelectivity estimates the fraction of rows satisfying
// `field op constant`.
func (s *TableStats) EstimateSelectivity(field int, op Op, constant tuple.Field) (float64, error) {
	col, err := s.Histogram(field)
	if err != nil {
		return 0, err
	}

	sel, err := col.EstimateSelectivity(op, constant)
	if err != nil {
		return 0, errors.Wrapf(err, "table %d field %d", s.tableID, field)
	}
	return sel, nil
}

// AverageSelectivity is the fallback estimate for a predicate on field whose
// constant is not known yet.
func (s *TableStats) AverageSelectivity(field int) (float64, error) {
	col, err := s.Histogram(field)
	if err != nil {
		return 0, err
	}
	return col.AverageSelectivity(), nil
}
