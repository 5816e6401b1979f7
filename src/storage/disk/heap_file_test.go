package disk_test

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Blackdeer1524/HeapDB/src/bufferpool"
	"github.com/Blackdeer1524/HeapDB/src/pkg/common"
	"github.com/Blackdeer1524/HeapDB/src/pkg/utils"
	"github.com/Blackdeer1524/HeapDB/src/storage/disk"
	"github.com/Blackdeer1524/HeapDB/src/storage/page"
	"github.com/Blackdeer1524/HeapDB/src/storage/tuple"
)

var errUnknownTable = errors.New("unknown table")

type stores map[common.TableID]*disk.HeapFile

func (s stores) ResolveStore(id common.TableID) (bufferpool.DiskManager[*page.HeapPage], error) {
	hf, ok := s[id]
	if !ok {
		return nil, errUnknownTable
	}
	return hf, nil
}

// five INT columns: 20 bytes per tuple, 203 slots per 4096 byte page
func intSchema() *tuple.Schema {
	types := make([]tuple.Type, 5)
	for i := range types {
		types[i] = tuple.IntType
	}
	return tuple.NewSchema(types, []string{"a", "b", "c", "d", "e"})
}

func row(t *testing.T, schema *tuple.Schema, v int32) *tuple.Tuple {
	t.Helper()

	fields := make([]tuple.Field, schema.NumFields())
	for i := range fields {
		fields[i] = tuple.NewIntField(v + int32(i))
	}
	tup, err := tuple.New(schema, fields...)
	require.NoError(t, err)
	return tup
}

type fixture struct {
	fs     afero.Fs
	stores stores
	pool   *bufferpool.Manager[*page.HeapPage]
}

func newFixture(t *testing.T, poolPages int) *fixture {
	t.Helper()

	f := &fixture{fs: afero.NewMemMapFs(), stores: stores{}}
	f.reopenPool(t, poolPages)
	return f
}

func (f *fixture) reopenPool(t *testing.T, poolPages int) {
	t.Helper()

	pool, err := bufferpool.New[*page.HeapPage](poolPages, f.stores)
	require.NoError(t, err)
	f.pool = pool
}

func (f *fixture) open(t *testing.T, path string, schema *tuple.Schema) *disk.HeapFile {
	t.Helper()

	hf, err := disk.Open(f.fs, path, schema, page.DefaultPageSize, f.pool)
	require.NoError(t, err)
	f.stores[hf.ID()] = hf
	t.Cleanup(func() { _ = hf.Close() })
	return hf
}

func TestOpenEmptyFile(t *testing.T) {
	f := newFixture(t, 10)
	hf := f.open(t, "/data/empty.dat", intSchema())

	count, err := hf.PageCount()
	require.NoError(t, err)
	assert.Zero(t, count)

	tuples, err := utils.Collect(hf.Scan())
	require.NoError(t, err)
	assert.Empty(t, tuples)

	assert.Equal(t, 203, hf.Layout().SlotCount())
}

func TestInsertFillsPagesInOrder(t *testing.T) {
	f := newFixture(t, 10)
	schema := intSchema()
	hf := f.open(t, "/data/t.dat", schema)

	const n = 450
	for i := range n {
		p, err := hf.InsertTuple(row(t, schema, int32(i)))
		require.NoError(t, err)
		require.NotNil(t, p)
	}

	count, err := hf.PageCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(utils.CeilDiv(n, 203)), count)

	tuples, err := utils.Collect(hf.Scan())
	require.NoError(t, err)
	require.Len(t, tuples, n)

	for i, tup := range tuples {
		v, ok := tuple.AsInt(tup.Field(0))
		require.True(t, ok)
		assert.Equal(t, int32(i), v)

		rid, ok := tup.RecordID()
		require.True(t, ok)
		assert.Equal(t, common.PageID(i/203), rid.PageID)
		assert.Equal(t, uint16(i%203), rid.SlotNum)
		assert.Equal(t, hf.ID(), rid.TableID)
	}
}

func TestInsertSetsRecordID(t *testing.T) {
	f := newFixture(t, 10)
	schema := intSchema()
	hf := f.open(t, "/data/t.dat", schema)

	tup := row(t, schema, 1)
	p, err := hf.InsertTuple(tup)
	require.NoError(t, err)

	rid, ok := tup.RecordID()
	require.True(t, ok)
	assert.Equal(t, p.Address(), rid.PageAddress())
	assert.False(t, p.IsDirty(), "a freshly appended page is already on disk")

	tup2 := row(t, schema, 2)
	p, err = hf.InsertTuple(tup2)
	require.NoError(t, err)
	assert.True(t, p.IsDirty())
}

func TestDeleteThenInsertReusesSlot(t *testing.T) {
	f := newFixture(t, 10)
	schema := intSchema()
	hf := f.open(t, "/data/t.dat", schema)

	var rids []common.RecordID
	for i := range 5 {
		tup := row(t, schema, int32(i))
		_, err := hf.InsertTuple(tup)
		require.NoError(t, err)
		rid, _ := tup.RecordID()
		rids = append(rids, rid)
	}

	p, err := hf.DeleteTuple(rids[2])
	require.NoError(t, err)
	assert.True(t, p.IsDirty())

	_, err = hf.DeleteTuple(rids[2])
	require.ErrorIs(t, err, disk.ErrNoSuchTuple)

	tup := row(t, schema, 100)
	_, err = hf.InsertTuple(tup)
	require.NoError(t, err)

	rid, _ := tup.RecordID()
	assert.Equal(t, rids[2], rid)
}

func TestWritesReleaseTheirPages(t *testing.T) {
	f := newFixture(t, 10)
	schema := intSchema()
	hf := f.open(t, "/data/t.dat", schema)

	// the first insert appends page 0 straight to disk
	_, err := hf.InsertTuple(row(t, schema, 0))
	require.NoError(t, err)

	tup := row(t, schema, 1)
	p, err := hf.InsertTuple(tup)
	require.NoError(t, err)

	addr := p.Address()
	assert.True(t, f.pool.Contains(addr))
	assert.True(t, p.IsDirty())
	assert.False(t, f.pool.Pinned(addr))

	require.NoError(t, f.pool.FlushAllPages())
	require.False(t, p.IsDirty())

	rid, _ := tup.RecordID()
	p, err = hf.DeleteTuple(rid)
	require.NoError(t, err)
	assert.True(t, p.IsDirty())
	assert.False(t, f.pool.Pinned(addr))

	_, err = hf.DeleteTuple(rid)
	require.ErrorIs(t, err, disk.ErrNoSuchTuple)
	assert.False(t, f.pool.Pinned(addr))
}

func TestDeleteInvalidRecord(t *testing.T) {
	f := newFixture(t, 10)
	schema := intSchema()
	hf := f.open(t, "/data/t.dat", schema)

	tup := row(t, schema, 0)
	_, err := hf.InsertTuple(tup)
	require.NoError(t, err)
	rid, _ := tup.RecordID()

	bad := rid
	bad.SlotNum = 5000
	_, err = hf.DeleteTuple(bad)
	require.ErrorIs(t, err, disk.ErrNoSuchTuple)

	foreign := rid
	foreign.TableID++
	_, err = hf.DeleteTuple(foreign)
	require.ErrorIs(t, err, disk.ErrInvalidPage)

	missing := rid
	missing.PageID = 3
	_, err = hf.DeleteTuple(missing)
	require.ErrorIs(t, err, disk.ErrInvalidPage)
}

func TestInsertSchemaMismatch(t *testing.T) {
	f := newFixture(t, 10)
	hf := f.open(t, "/data/t.dat", intSchema())

	other := tuple.NewSchema([]tuple.Type{tuple.IntType, tuple.StringType}, nil)
	tup, err := tuple.New(other, tuple.NewIntField(1), tuple.NewStringField("x"))
	require.NoError(t, err)

	_, err = hf.InsertTuple(tup)
	require.ErrorIs(t, err, disk.ErrSchemaMismatch)
}

func TestReadPageBounds(t *testing.T) {
	f := newFixture(t, 10)
	schema := intSchema()
	hf := f.open(t, "/data/t.dat", schema)

	_, err := hf.InsertTuple(row(t, schema, 0))
	require.NoError(t, err)

	_, err = hf.ReadPage(common.PageAddress{TableID: hf.ID(), PageID: 0})
	require.NoError(t, err)

	_, err = hf.ReadPage(common.PageAddress{TableID: hf.ID(), PageID: 1})
	require.ErrorIs(t, err, disk.ErrInvalidPage)

	_, err = hf.ReadPage(common.PageAddress{TableID: hf.ID() + 1, PageID: 0})
	require.ErrorIs(t, err, disk.ErrInvalidPage)
}

func TestReadWritePageRoundTrip(t *testing.T) {
	f := newFixture(t, 10)
	schema := intSchema()
	hf := f.open(t, "/data/t.dat", schema)

	for i := range 10 {
		_, err := hf.InsertTuple(row(t, schema, int32(i)))
		require.NoError(t, err)
	}
	require.NoError(t, f.pool.FlushAllPages())

	before, err := afero.ReadFile(f.fs, "/data/t.dat")
	require.NoError(t, err)

	p, err := hf.ReadPage(common.PageAddress{TableID: hf.ID(), PageID: 0})
	require.NoError(t, err)
	require.NoError(t, hf.WritePage(p))

	after, err := afero.ReadFile(f.fs, "/data/t.dat")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCorruptFileLength(t *testing.T) {
	f := newFixture(t, 10)
	require.NoError(t, afero.WriteFile(f.fs, "/data/bad.dat", make([]byte, page.DefaultPageSize+100), 0600))

	hf := f.open(t, "/data/bad.dat", intSchema())

	_, err := hf.PageCount()
	require.ErrorIs(t, err, disk.ErrCorruptStorage)

	_, err = utils.Collect(hf.Scan())
	require.ErrorIs(t, err, disk.ErrCorruptStorage)
}

func TestCorruptPageBytes(t *testing.T) {
	f := newFixture(t, 10)

	data := make([]byte, page.DefaultPageSize)
	// 203 slots use bits 0..202; bit 207 is past the last slot
	data[25] = 0x80
	require.NoError(t, afero.WriteFile(f.fs, "/data/bad.dat", data, 0600))

	hf := f.open(t, "/data/bad.dat", intSchema())

	_, err := hf.ReadPage(common.PageAddress{TableID: hf.ID(), PageID: 0})
	require.ErrorIs(t, err, disk.ErrCorruptStorage)
	require.ErrorIs(t, err, page.ErrBadPageData)
}

func TestScanSkipsEmptyPagesAndRestarts(t *testing.T) {
	f := newFixture(t, 10)
	schema := intSchema()
	hf := f.open(t, "/data/t.dat", schema)

	var onSecondPage []common.RecordID
	for i := range 2*203 + 1 {
		tup := row(t, schema, int32(i))
		_, err := hf.InsertTuple(tup)
		require.NoError(t, err)

		rid, _ := tup.RecordID()
		if rid.PageID == 1 {
			onSecondPage = append(onSecondPage, rid)
		}
	}
	require.Len(t, onSecondPage, 203)

	for _, rid := range onSecondPage {
		_, err := hf.DeleteTuple(rid)
		require.NoError(t, err)
	}

	first, err := utils.Collect(hf.Scan())
	require.NoError(t, err)
	assert.Len(t, first, 204)

	second, err := utils.Collect(hf.Scan())
	require.NoError(t, err)
	assert.Len(t, second, 204)

	last, _ := second[len(second)-1].RecordID()
	assert.Equal(t, common.PageID(2), last.PageID)
}

func TestScanStopsEarly(t *testing.T) {
	f := newFixture(t, 10)
	schema := intSchema()
	hf := f.open(t, "/data/t.dat", schema)

	for i := range 300 {
		_, err := hf.InsertTuple(row(t, schema, int32(i)))
		require.NoError(t, err)
	}

	seen := 0
	for item := range hf.Scan() {
		require.NoError(t, item.Second)
		seen++
		if seen == 7 {
			break
		}
	}
	assert.Equal(t, 7, seen)
}

func TestReopenKeepsIDAndData(t *testing.T) {
	f := newFixture(t, 10)
	schema := intSchema()
	hf := f.open(t, "/data/t.dat", schema)
	id := hf.ID()

	for i := range 250 {
		_, err := hf.InsertTuple(row(t, schema, int32(i)))
		require.NoError(t, err)
	}
	require.NoError(t, f.pool.FlushAllPages())
	require.NoError(t, hf.Close())

	f.stores = stores{}
	f.reopenPool(t, 10)
	reopened := f.open(t, "/data/t.dat", schema)
	assert.Equal(t, id, reopened.ID())

	tuples, err := utils.Collect(reopened.Scan())
	require.NoError(t, err)
	assert.Len(t, tuples, 250)
}

func TestInsertThroughSmallPool(t *testing.T) {
	f := newFixture(t, 3)
	schema := intSchema()
	hf := f.open(t, "/data/t.dat", schema)

	// at most two pages get dirty between flushes, leaving one clean frame
	for i := range 5 * 203 {
		_, err := hf.InsertTuple(row(t, schema, int32(i)))
		require.NoError(t, err)
		if i%50 == 0 {
			require.NoError(t, f.pool.FlushAllPages())
		}
	}
	require.NoError(t, f.pool.FlushAllPages())

	count, err := hf.PageCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(5), count)

	tuples, err := utils.Collect(hf.Scan())
	require.NoError(t, err)
	assert.Len(t, tuples, 5*203)
}
