package stats

import (
	"context"
	"iter"
	"sync/atomic"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Blackdeer1524/HeapDB/src"
	"github.com/Blackdeer1524/HeapDB/src/pkg/common"
	"github.com/Blackdeer1524/HeapDB/src/pkg/utils"
	"github.com/Blackdeer1524/HeapDB/src/storage/page"
	"github.com/Blackdeer1524/HeapDB/src/storage/tuple"
)

type memTable struct {
	id     common.TableID
	schema *tuple.Schema
	layout page.Layout
	rows   []*tuple.Tuple

	scanErr error
	// appended to rows after the first scan
	lateRows []*tuple.Tuple
	scans    atomic.Int32
}

var _ ScannableTable = &memTable{}

func (m *memTable) ID() common.TableID    { return m.id }
func (m *memTable) Schema() *tuple.Schema { return m.schema }
func (m *memTable) Layout() page.Layout   { return m.layout }

func (m *memTable) Scan() iter.Seq[utils.Pair[*tuple.Tuple, error]] {
	return func(yield func(utils.Pair[*tuple.Tuple, error]) bool) {
		if m.scans.Add(1) == 2 {
			m.rows = append(m.rows, m.lateRows...)
		}
		if m.scanErr != nil {
			yield(utils.ErrPair[*tuple.Tuple](m.scanErr))
			return
		}
		for _, t := range m.rows {
			if !yield(utils.Pair[*tuple.Tuple, error]{First: t}) {
				return
			}
		}
	}
}

// five INT columns, 20 bytes per tuple; column c of row i holds i*(c+1)
func newIntTable(t *testing.T, id common.TableID, n int) *memTable {
	t.Helper()

	types := make([]tuple.Type, 5)
	for i := range types {
		types[i] = tuple.IntType
	}
	schema := tuple.NewSchema(types, nil)

	layout, err := page.NewLayout(page.DefaultPageSize, schema.Size())
	require.NoError(t, err)

	table := &memTable{id: id, schema: schema, layout: layout}
	for i := range n {
		fields := make([]tuple.Field, 5)
		for c := range fields {
			fields[c] = tuple.NewIntField(int32(i * (c + 1)))
		}
		tup, err := tuple.New(schema, fields...)
		require.NoError(t, err)
		table.rows = append(table.rows, tup)
	}

	return table
}

func TestComputeEndToEnd(t *testing.T) {
	table := newIntTable(t, 1, 150)

	s, err := Compute(table, DefaultIOCostPerPage, DefaultHistogramBuckets)
	require.NoError(t, err)

	assert.Equal(t, int64(150), s.TotalTuples())
	assert.Equal(t, common.TableID(1), s.TableID())
	assert.Equal(t, 5, s.NumFields())

	pageCount := utils.CeilDiv(150, table.Layout().SlotCount())
	require.Equal(t, 1, pageCount)
	assert.Equal(t, float64(pageCount*DefaultIOCostPerPage), s.EstimateScanCost())

	col, err := s.Histogram(2)
	require.NoError(t, err)
	ints, ok := col.Int()
	require.True(t, ok)
	assert.Equal(t, int64(0), ints.Min())
	assert.Equal(t, int64(149*3), ints.Max())
	assert.Equal(t, int64(150), ints.Total())
}

func TestEstimateScanCostRoundsPagesUp(t *testing.T) {
	table := newIntTable(t, 1, 204)

	s, err := Compute(table, 7, 10)
	require.NoError(t, err)

	assert.Equal(t, float64(2*7), s.EstimateScanCost())
}

func TestEstimateCardinality(t *testing.T) {
	s, err := Compute(newIntTable(t, 1, 150), DefaultIOCostPerPage, DefaultHistogramBuckets)
	require.NoError(t, err)

	assert.Equal(t, int64(150), s.EstimateCardinality(1))
	assert.Equal(t, int64(0), s.EstimateCardinality(0))
	assert.Equal(t, int64(2), s.EstimateCardinality(0.01))
	assert.Equal(t, int64(75), s.EstimateCardinality(0.5))
}

func TestTableStatsSelectivity(t *testing.T) {
	s, err := Compute(newIntTable(t, 1, 100), DefaultIOCostPerPage, 10)
	require.NoError(t, err)

	sel, err := s.EstimateSelectivity(0, OpLessThan, tuple.NewIntField(50))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, sel, 1e-12)

	sel, err = s.EstimateSelectivity(0, OpGreaterThan, tuple.NewIntField(1000))
	require.NoError(t, err)
	assert.Zero(t, sel)

	_, err = s.EstimateSelectivity(5, OpEquals, tuple.NewIntField(1))
	require.ErrorIs(t, err, ErrNoSuchField)

	_, err = s.EstimateSelectivity(-1, OpEquals, tuple.NewIntField(1))
	require.ErrorIs(t, err, ErrNoSuchField)

	_, err = s.EstimateSelectivity(0, OpEquals, tuple.NewStringField("x"))
	require.ErrorIs(t, err, ErrTypeMismatch)

	avg, err := s.AverageSelectivity(0)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, avg, 1e-12)
}

func TestComputeEmptyTable(t *testing.T) {
	s, err := Compute(newIntTable(t, 1, 0), DefaultIOCostPerPage, DefaultHistogramBuckets)
	require.NoError(t, err)

	assert.Zero(t, s.TotalTuples())
	assert.Zero(t, s.EstimateScanCost())

	for field := range s.NumFields() {
		for _, op := range Ops() {
			sel, err := s.EstimateSelectivity(field, op, tuple.NewIntField(3))
			require.NoError(t, err)
			assert.Zero(t, sel)
		}
	}
}

func TestComputeStringColumns(t *testing.T) {
	schema := tuple.NewSchema([]tuple.Type{tuple.IntType, tuple.StringType}, []string{"id", "name"})
	layout, err := page.NewLayout(page.DefaultPageSize, schema.Size())
	require.NoError(t, err)

	table := &memTable{id: 3, schema: schema, layout: layout}
	for i, name := range []string{"ann", "ben", "cat", "dan"} {
		tup, err := tuple.New(schema, tuple.NewIntField(int32(i)), tuple.NewStringField(name))
		require.NoError(t, err)
		table.rows = append(table.rows, tup)
	}

	s, err := Compute(table, DefaultIOCostPerPage, DefaultHistogramBuckets)
	require.NoError(t, err)

	col, err := s.Histogram(1)
	require.NoError(t, err)
	assert.Equal(t, KindString, col.Kind())
	assert.Equal(t, int64(4), col.Total())

	sel, err := s.EstimateSelectivity(1, OpGreaterThanOrEq, tuple.NewStringField(""))
	require.NoError(t, err)
	assert.Equal(t, 1.0, sel)
}

func TestComputeScanError(t *testing.T) {
	boom := errors.New("disk on fire")
	table := newIntTable(t, 1, 3)
	table.scanErr = boom

	_, err := Compute(table, DefaultIOCostPerPage, DefaultHistogramBuckets)
	require.ErrorIs(t, err, boom)
}

func TestComputeDetectsConcurrentInsert(t *testing.T) {
	table := newIntTable(t, 1, 3)
	table.lateRows = newIntTable(t, 1, 10).rows[9:]

	_, err := Compute(table, DefaultIOCostPerPage, DefaultHistogramBuckets)
	require.ErrorIs(t, err, ErrTableChanged)
}

type memCatalog struct {
	names  map[common.TableID]string
	tables map[common.TableID]ScannableTable
}

var errNoTable = errors.New("no table")

func (c *memCatalog) ListTableIDs() []common.TableID {
	ids := make([]common.TableID, 0, len(c.names))
	for id := range c.names {
		ids = append(ids, id)
	}
	return ids
}

func (c *memCatalog) NameOf(id common.TableID) (string, error) {
	name, ok := c.names[id]
	if !ok {
		return "", errNoTable
	}
	return name, nil
}

func (c *memCatalog) ResolveTable(id common.TableID) (ScannableTable, error) {
	table, ok := c.tables[id]
	if !ok {
		return nil, errNoTable
	}
	return table, nil
}

func TestRegistryRecomputeAll(t *testing.T) {
	cat := &memCatalog{
		names:  map[common.TableID]string{},
		tables: map[common.TableID]ScannableTable{},
	}
	for i, name := range []string{"users", "orders", "items"} {
		id := common.TableID(i + 1)
		cat.names[id] = name
		cat.tables[id] = newIntTable(t, id, 10*(i+1))
	}

	reg := NewRegistry(cat, RegistryConfig{Parallelism: 2}, src.NopLogger())
	assert.Empty(t, reg.Names())

	require.NoError(t, reg.RecomputeAll(context.Background()))
	assert.Equal(t, []string{"items", "orders", "users"}, reg.Names())

	s, ok := reg.Get("orders")
	require.True(t, ok)
	assert.Equal(t, int64(20), s.TotalTuples())
	assert.Equal(t, DefaultIOCostPerPage, s.IOCostPerPage())

	_, ok = reg.Get("missing")
	assert.False(t, ok)
}

func TestRegistryKeepsStatsOnFailure(t *testing.T) {
	cat := &memCatalog{
		names:  map[common.TableID]string{1: "good", 2: "broken"},
		tables: map[common.TableID]ScannableTable{1: newIntTable(t, 1, 5)},
	}

	reg := NewRegistry(cat, RegistryConfig{}, src.NopLogger())

	previous, err := Compute(newIntTable(t, 1, 1), DefaultIOCostPerPage, DefaultHistogramBuckets)
	require.NoError(t, err)
	reg.Set("good", previous)

	err = reg.RecomputeAll(context.Background())
	require.ErrorIs(t, err, errNoTable)

	s, ok := reg.Get("good")
	require.True(t, ok)
	assert.Same(t, previous, s)
}

func TestRegistryCanceledContext(t *testing.T) {
	cat := &memCatalog{
		names:  map[common.TableID]string{1: "t"},
		tables: map[common.TableID]ScannableTable{1: newIntTable(t, 1, 5)},
	}
	reg := NewRegistry(cat, RegistryConfig{}, src.NopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, reg.RecomputeAll(ctx), context.Canceled)
	assert.Empty(t, reg.Names())
}

func TestRegistrySetAndSnapshot(t *testing.T) {
	reg := NewRegistry(&memCatalog{}, RegistryConfig{}, src.NopLogger())

	s, err := Compute(newIntTable(t, 1, 2), DefaultIOCostPerPage, DefaultHistogramBuckets)
	require.NoError(t, err)

	reg.Set("a", s)
	snap := reg.Snapshot()
	reg.Set("b", s)

	assert.Len(t, snap, 1)
	assert.Equal(t, []string{"a", "b"}, reg.Names())
}
