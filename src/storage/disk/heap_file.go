package disk

import (
	"iter"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-faster/errors"
	"github.com/spf13/afero"

	"github.com/Blackdeer1524/HeapDB/src"
	"github.com/Blackdeer1524/HeapDB/src/bufferpool"
	"github.com/Blackdeer1524/HeapDB/src/pkg/common"
	"github.com/Blackdeer1524/HeapDB/src/pkg/utils"
	"github.com/Blackdeer1524/HeapDB/src/storage/page"
	"github.com/Blackdeer1524/HeapDB/src/storage/tuple"
)

// HeapFile stores the tuples of one table as a sequence of fixed-size pages
// with no file header: page n occupies bytes [n*PageSize, (n+1)*PageSize).
// It is the only component that touches the table's file.
type HeapFile struct {
	id     common.TableID
	path   string
	schema *tuple.Schema
	layout page.Layout

	pool bufferpool.BufferPool[*page.HeapPage]
	log  src.Logger

	// guards the file handle
	fileMu sync.Mutex
	file   afero.File

	// serializes appending new pages so two inserters never allocate the
	// same page number
	allocMu sync.Mutex
}

type Option func(*HeapFile)

func WithLogger(log src.Logger) Option {
	return func(h *HeapFile) {
		h.log = log
	}
}

// Open opens (creating if needed) the heap file at path.
func Open(
	fs afero.Fs,
	path string,
	schema *tuple.Schema,
	pageSize int,
	pool bufferpool.BufferPool[*page.HeapPage],
	opts ...Option,
) (*HeapFile, error) {
	layout, err := page.NewLayout(pageSize, schema.Size())
	if err != nil {
		return nil, errors.Wrapf(err, "layout for %s", path)
	}

	id, err := common.TableIDForPath(path)
	if err != nil {
		return nil, err
	}

	file, err := fs.OpenFile(filepath.Clean(path), os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, errors.Wrapf(err, "open heap file %s", path)
	}

	h := &HeapFile{
		id:     id,
		path:   path,
		schema: schema,
		layout: layout,
		pool:   pool,
		log:    src.NopLogger(),
		file:   file,
	}
	for _, opt := range opts {
		opt(h)
	}

	return h, nil
}

func (h *HeapFile) ID() common.TableID {
	return h.id
}

func (h *HeapFile) Path() string {
	return h.path
}

func (h *HeapFile) Schema() *tuple.Schema {
	return h.schema
}

func (h *HeapFile) Layout() page.Layout {
	return h.layout
}

func (h *HeapFile) Close() error {
	h.fileMu.Lock()
	defer h.fileMu.Unlock()

	return h.file.Close()
}

// PageCount is the number of whole pages in the file.
func (h *HeapFile) PageCount() (uint64, error) {
	h.fileMu.Lock()
	defer h.fileMu.Unlock()

	return h.pageCountLocked()
}

func (h *HeapFile) pageCountLocked() (uint64, error) {
	info, err := h.file.Stat()
	if err != nil {
		return 0, errors.Wrapf(err, "stat %s", h.path)
	}

	size := info.Size()
	pageSize := int64(h.layout.PageSize())
	if size%pageSize != 0 {
		return 0, errors.Wrapf(ErrCorruptStorage, "%s: length %d is not a multiple of page size %d", h.path, size, pageSize)
	}

	//nolint:gosec
	return uint64(size / pageSize), nil
}

func (h *HeapFile) ReadPage(addr common.PageAddress) (*page.HeapPage, error) {
	if addr.TableID != h.id {
		return nil, errors.Wrapf(ErrInvalidPage, "page %v does not belong to table %d", addr, h.id)
	}

	h.fileMu.Lock()
	defer h.fileMu.Unlock()

	count, err := h.pageCountLocked()
	if err != nil {
		return nil, err
	}
	if uint64(addr.PageID) >= count {
		return nil, errors.Wrapf(ErrInvalidPage, "page %v: file has %d pages", addr, count)
	}

	data := make([]byte, h.layout.PageSize())
	//nolint:gosec
	offset := int64(addr.PageID) * int64(h.layout.PageSize())

	n, err := h.file.ReadAt(data, offset)
	if n < len(data) {
		return nil, shortIO(err, "page %v: read %d of %d bytes", addr, n, len(data))
	}

	p, err := page.DecodeHeapPage(addr, h.layout, h.schema, data)
	if err != nil {
		return nil, errors.Errorf("decode page %v: %w: %w", addr, ErrCorruptStorage, err)
	}

	return p, nil
}

// WritePage overwrites the page's bytes on disk. The caller must hold
// exclusive access to the page's content.
func (h *HeapFile) WritePage(p *page.HeapPage) error {
	addr := p.Address()
	if addr.TableID != h.id {
		return errors.Wrapf(ErrInvalidPage, "page %v does not belong to table %d", addr, h.id)
	}

	data := p.Data()

	h.fileMu.Lock()
	defer h.fileMu.Unlock()

	//nolint:gosec
	offset := int64(addr.PageID) * int64(h.layout.PageSize())

	n, err := h.file.WriteAt(data, offset)
	if n < len(data) {
		return shortIO(err, "page %v: wrote %d of %d bytes", addr, n, len(data))
	}
	if err != nil {
		return errors.Wrapf(err, "write page %v", addr)
	}

	h.log.Debugw("page written", "table_id", h.id, "page_id", addr.PageID)

	return nil
}

// InsertTuple stores t in the first page with an empty slot, appending a
// new page when every page is full, and returns the modified page. An
// existing page is marked dirty and left to the buffer pool; a new page is
// written immediately so that PageCount reflects it.
func (h *HeapFile) InsertTuple(t *tuple.Tuple) (*page.HeapPage, error) {
	if !h.schema.Equals(t.Schema()) {
		return nil, errors.Wrapf(ErrSchemaMismatch, "table %d expects %s, got %s", h.id, h.schema, t.Schema())
	}

	count, err := h.PageCount()
	if err != nil {
		return nil, err
	}

	p, err := h.insertIntoExisting(t, 0, count)
	if err != nil || p != nil {
		return p, err
	}

	h.allocMu.Lock()
	defer h.allocMu.Unlock()

	// pages may have been appended while scanning
	newCount, err := h.PageCount()
	if err != nil {
		return nil, err
	}
	p, err = h.insertIntoExisting(t, count, newCount)
	if err != nil || p != nil {
		return p, err
	}

	addr := common.PageAddress{TableID: h.id, PageID: common.PageID(newCount)}
	p = page.NewEmptyHeapPage(addr, h.layout, h.schema)
	if _, err := p.InsertTuple(t); err != nil {
		return nil, errors.Wrapf(err, "insert into new page %v", addr)
	}
	if err := h.WritePage(p); err != nil {
		return nil, err
	}

	h.log.Debugw("appended page", "table_id", h.id, "page_id", addr.PageID)

	return p, nil
}

// insertIntoExisting scans pages [from, to) and inserts t into the first one
// with room. It returns a nil page when none had room.
func (h *HeapFile) insertIntoExisting(t *tuple.Tuple, from, to uint64) (*page.HeapPage, error) {
	for pageID := from; pageID < to; pageID++ {
		addr := common.PageAddress{TableID: h.id, PageID: common.PageID(pageID)}

		p, err := h.pool.GetPage(addr, common.AccessShared)
		if err != nil {
			return nil, err
		}
		if p.FirstEmptySlot().IsNone() {
			continue
		}

		p, err = h.pool.GetPage(addr, common.AccessExclusive)
		if err != nil {
			return nil, err
		}

		_, err = p.InsertTuple(t)
		h.pool.Release(addr, err == nil)
		if errors.Is(err, page.ErrPageFull) {
			// filled by a concurrent inserter since the shared check
			continue
		}
		if err != nil {
			return nil, err
		}

		return p, nil
	}

	return nil, nil
}

// DeleteTuple empties the slot rid points to and returns the dirtied page.
func (h *HeapFile) DeleteTuple(rid common.RecordID) (*page.HeapPage, error) {
	if rid.TableID != h.id {
		return nil, errors.Wrapf(ErrInvalidPage, "record %v does not belong to table %d", rid, h.id)
	}

	addr := rid.PageAddress()

	p, err := h.pool.GetPage(addr, common.AccessExclusive)
	if err != nil {
		return nil, err
	}

	err = p.DeleteTuple(rid.SlotNum)
	h.pool.Release(addr, err == nil)
	if errors.Is(err, page.ErrSlotEmpty) || errors.Is(err, page.ErrInvalidSlot) {
		return nil, errors.Errorf("record %v: %w: %w", rid, ErrNoSuchTuple, err)
	}
	if err != nil {
		return nil, err
	}

	return p, nil
}

// Scan lazily yields every stored tuple in page then slot order. Each call
// of the returned sequence starts a fresh scan.
func (h *HeapFile) Scan() iter.Seq[utils.Pair[*tuple.Tuple, error]] {
	return func(yield func(utils.Pair[*tuple.Tuple, error]) bool) {
		count, err := h.PageCount()
		if err != nil {
			yield(utils.ErrPair[*tuple.Tuple](err))
			return
		}

		for pageID := range count {
			addr := common.PageAddress{TableID: h.id, PageID: common.PageID(pageID)}

			p, err := h.pool.GetPage(addr, common.AccessShared)
			if err != nil {
				yield(utils.ErrPair[*tuple.Tuple](err))
				return
			}

			for item := range p.Tuples() {
				if !yield(item) {
					return
				}
				if item.Second != nil {
					return
				}
			}
		}
	}
}
