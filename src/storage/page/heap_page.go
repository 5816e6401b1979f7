package page

import (
	"iter"
	"sync"
	"sync/atomic"

	"github.com/go-faster/errors"

	"github.com/Blackdeer1524/HeapDB/src/pkg/common"
	"github.com/Blackdeer1524/HeapDB/src/pkg/optional"
	"github.com/Blackdeer1524/HeapDB/src/pkg/utils"
	"github.com/Blackdeer1524/HeapDB/src/storage/tuple"
)

// Page layout:
//
//	+----------------------+--------+--------+-----+------------+---------+
//	| slot bitmap (1 b/slot)| slot 0 | slot 1 | ... | slot n - 1 | padding |
//	+----------------------+--------+--------+-----+------------+---------+
//
// Bit i lives in byte i/8 at position i%8, low to high. A set bit marks the
// slot as holding a tuple; the bytes of an empty slot are never interpreted.

const DefaultPageSize = 4096

var (
	ErrPageFull    = errors.New("page has no empty slot")
	ErrSlotEmpty   = errors.New("slot is empty")
	ErrInvalidSlot = errors.New("slot index out of range")
	ErrBadPageData = errors.New("malformed page data")
	ErrBadLayout   = errors.New("tuple does not fit into a page")
)

// Layout is the slot geometry shared by every page of a heap file.
type Layout struct {
	pageSize  int
	tupleSize int
	slotCount int
}

func NewLayout(pageSize, tupleSize int) (Layout, error) {
	if pageSize <= 0 || tupleSize <= 0 {
		return Layout{}, errors.Wrapf(ErrBadLayout, "page size %d, tuple size %d", pageSize, tupleSize)
	}

	// every slot costs its tuple bytes plus one header bit
	slots := (8 * pageSize) / (8*tupleSize + 1)
	if slots == 0 {
		return Layout{}, errors.Wrapf(ErrBadLayout, "page size %d, tuple size %d", pageSize, tupleSize)
	}

	return Layout{
		pageSize:  pageSize,
		tupleSize: tupleSize,
		slotCount: slots,
	}, nil
}

func (l Layout) PageSize() int {
	return l.pageSize
}

func (l Layout) TupleSize() int {
	return l.tupleSize
}

func (l Layout) SlotCount() int {
	return l.slotCount
}

func (l Layout) HeaderSize() int {
	return utils.CeilDiv(l.slotCount, 8)
}

func (l Layout) slotOffset(slot int) int {
	return l.HeaderSize() + slot*l.tupleSize
}

// HeapPage is the in-memory form of one page of a heap file. The raw page
// bytes are the source of truth, so encoding a decoded page reproduces its
// input exactly.
type HeapPage struct {
	mu sync.RWMutex

	addr   common.PageAddress
	layout Layout
	schema *tuple.Schema
	data   []byte

	dirty atomic.Bool
}

// NewEmptyHeapPage returns a page with every slot empty.
func NewEmptyHeapPage(addr common.PageAddress, layout Layout, schema *tuple.Schema) *HeapPage {
	return &HeapPage{
		addr:   addr,
		layout: layout,
		schema: schema,
		data:   make([]byte, layout.pageSize),
	}
}

// DecodeHeapPage builds a page from its on-disk bytes. Every slot marked as
// used must decode under schema, and no bit past the last slot may be set.
func DecodeHeapPage(
	addr common.PageAddress,
	layout Layout,
	schema *tuple.Schema,
	data []byte,
) (*HeapPage, error) {
	if len(data) != layout.pageSize {
		return nil, errors.Wrapf(ErrBadPageData, "page %v: expected %d bytes, got %d", addr, layout.pageSize, len(data))
	}

	p := &HeapPage{
		addr:   addr,
		layout: layout,
		schema: schema,
		data:   append([]byte(nil), data...),
	}

	for bit := layout.slotCount; bit < layout.HeaderSize()*8; bit++ {
		if p.bitSet(bit) {
			return nil, errors.Wrapf(ErrBadPageData, "page %v: header bit %d set past slot count %d", addr, bit, layout.slotCount)
		}
	}

	for slot := range layout.slotCount {
		if !p.bitSet(slot) {
			continue
		}
		if _, err := tuple.Deserialize(schema, p.slotBytes(slot)); err != nil {
			return nil, errors.Errorf("page %v slot %d: %w: %w", addr, slot, ErrBadPageData, err)
		}
	}

	return p, nil
}

func (p *HeapPage) Address() common.PageAddress {
	return p.addr
}

func (p *HeapPage) Layout() Layout {
	return p.layout
}

func (p *HeapPage) Schema() *tuple.Schema {
	return p.schema
}

// Data returns a copy of the page's on-disk bytes.
func (p *HeapPage) Data() []byte {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return append([]byte(nil), p.data...)
}

func (p *HeapPage) NumSlots() int {
	return p.layout.slotCount
}

func (p *HeapPage) NumEmptySlots() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	empty := 0
	for slot := range p.layout.slotCount {
		if !p.bitSet(slot) {
			empty++
		}
	}
	return empty
}

func (p *HeapPage) IsSlotUsed(slot int) bool {
	if slot < 0 || slot >= p.layout.slotCount {
		return false
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.bitSet(slot)
}

// FirstEmptySlot returns the lowest-index empty slot, if any.
func (p *HeapPage) FirstEmptySlot() optional.Optional[uint16] {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.firstEmptySlot()
}

func (p *HeapPage) firstEmptySlot() optional.Optional[uint16] {
	for slot := range p.layout.slotCount {
		if !p.bitSet(slot) {
			return optional.Some(uint16(slot))
		}
	}
	return optional.None[uint16]()
}

// InsertTuple writes t into the lowest empty slot and sets t's RecordID.
func (p *HeapPage) InsertTuple(t *tuple.Tuple) (uint16, error) {
	if !p.schema.Equals(t.Schema()) {
		return 0, errors.Wrapf(tuple.ErrTypeMismatch, "page %v expects schema %s", p.addr, p.schema)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	free := p.firstEmptySlot()
	slot, ok := free.Get()
	if !ok {
		return 0, errors.Wrapf(ErrPageFull, "page %v", p.addr)
	}

	t.Serialize(p.slotBytes(int(slot)))
	p.setBit(int(slot), true)
	t.SetRecordID(common.NewRecordID(p.addr, slot))

	return slot, nil
}

// DeleteTuple marks slot as empty and zeroes its bytes.
func (p *HeapPage) DeleteTuple(slot uint16) error {
	if int(slot) >= p.layout.slotCount {
		return errors.Wrapf(ErrInvalidSlot, "page %v slot %d of %d", p.addr, slot, p.layout.slotCount)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.bitSet(int(slot)) {
		return errors.Wrapf(ErrSlotEmpty, "page %v slot %d", p.addr, slot)
	}

	p.setBit(int(slot), false)
	clear(p.slotBytes(int(slot)))

	return nil
}

// Tuple decodes the tuple stored in slot.
func (p *HeapPage) Tuple(slot uint16) (*tuple.Tuple, error) {
	if int(slot) >= p.layout.slotCount {
		return nil, errors.Wrapf(ErrInvalidSlot, "page %v slot %d of %d", p.addr, slot, p.layout.slotCount)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.bitSet(int(slot)) {
		return nil, errors.Wrapf(ErrSlotEmpty, "page %v slot %d", p.addr, slot)
	}

	return p.decodeSlot(int(slot))
}

func (p *HeapPage) decodeSlot(slot int) (*tuple.Tuple, error) {
	t, err := tuple.Deserialize(p.schema, p.slotBytes(slot))
	if err != nil {
		return nil, errors.Wrapf(err, "page %v slot %d", p.addr, slot)
	}
	t.SetRecordID(common.NewRecordID(p.addr, uint16(slot)))

	return t, nil
}

// Tuples yields the stored tuples in slot order. The page is snapshotted
// when iteration starts, so the consumer may modify the page while iterating.
func (p *HeapPage) Tuples() iter.Seq[utils.Pair[*tuple.Tuple, error]] {
	return func(yield func(utils.Pair[*tuple.Tuple, error]) bool) {
		var snapshot []utils.Pair[*tuple.Tuple, error]

		func() {
			p.mu.RLock()
			defer p.mu.RUnlock()

			for slot := range p.layout.slotCount {
				if !p.bitSet(slot) {
					continue
				}
				t, err := p.decodeSlot(slot)
				snapshot = append(snapshot, utils.Pair[*tuple.Tuple, error]{First: t, Second: err})
			}
		}()

		for _, item := range snapshot {
			if !yield(item) {
				return
			}
		}
	}
}

func (p *HeapPage) SetDirtiness(val bool) {
	p.dirty.Store(val)
}

func (p *HeapPage) IsDirty() bool {
	return p.dirty.Load()
}

func (p *HeapPage) bitSet(slot int) bool {
	return p.data[slot/8]&(1<<(slot%8)) != 0
}

func (p *HeapPage) setBit(slot int, val bool) {
	if val {
		p.data[slot/8] |= 1 << (slot % 8)
	} else {
		p.data[slot/8] &^= 1 << (slot % 8)
	}
}

func (p *HeapPage) slotBytes(slot int) []byte {
	start := p.layout.slotOffset(slot)
	return p.data[start : start+p.layout.tupleSize]
}
