package bufferpool

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/multierr"

	"github.com/Blackdeer1524/HeapDB/src"
	"github.com/Blackdeer1524/HeapDB/src/pkg/assert"
	"github.com/Blackdeer1524/HeapDB/src/pkg/common"
	"github.com/Blackdeer1524/HeapDB/src/storage/page"
)

// ErrBufferPoolFull is returned when a page has to be loaded into a full pool
// and every cached page is dirty or pinned. The pool never writes a page out
// just to make room; the caller may flush and retry.
var ErrBufferPoolFull = errors.New("buffer pool full: every cached page is dirty")

const meterName = "github.com/Blackdeer1524/HeapDB/src/bufferpool"

type Page interface {
	Address() common.PageAddress

	SetDirtiness(val bool)
	IsDirty() bool
}

var (
	_ Page = &page.HeapPage{}
)

// DiskManager reads and writes the pages of one table.
type DiskManager[T Page] interface {
	ReadPage(addr common.PageAddress) (T, error)
	WritePage(page T) error
}

// Catalog resolves the disk manager that owns a table.
type Catalog[T Page] interface {
	ResolveStore(tableID common.TableID) (DiskManager[T], error)
}

// BufferPool is the page cache heap files read their pages through. A page
// fetched with AccessExclusive stays pinned until the caller releases it.
type BufferPool[T Page] interface {
	GetPage(addr common.PageAddress, mode common.AccessMode) (T, error)
	Release(addr common.PageAddress, dirty bool)
	FlushPage(addr common.PageAddress) error
	FlushAllPages() error
	Discard(addr common.PageAddress)
}

// Stats are cumulative counters of one pool.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Resident  int
}

// Manager caches up to capacity pages. A single mutex guards the page map so
// that lookup, eviction, disk read and insertion happen atomically and one
// address never maps to two page objects.
//
// The access mode is handed to the lock manager; the default grants every
// request, so concurrent callers may observe the same page object. Exclusive
// fetches pin the page until Release so that it cannot be evicted between
// its modification and the dirty mark.
type Manager[T Page] struct {
	capacity int
	catalog  Catalog[T]
	replacer Replacer
	locks    LockManager
	log      src.Logger
	metrics  *poolMetrics

	mu    sync.Mutex
	pages map[common.PageAddress]T
	pins  map[common.PageAddress]int
	stats Stats
}

var (
	_ BufferPool[*page.HeapPage] = &Manager[*page.HeapPage]{}
)

type options struct {
	log      src.Logger
	locks    LockManager
	meter    metric.Meter
	replacer Replacer
}

type Option func(*options)

func WithLogger(log src.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

func WithLockManager(locks LockManager) Option {
	return func(o *options) {
		o.locks = locks
	}
}

func WithMeter(meter metric.Meter) Option {
	return func(o *options) {
		o.meter = meter
	}
}

// WithReplacer overrides the victim scan order. The default scans pages in
// the order they were loaded.
func WithReplacer(r Replacer) Option {
	return func(o *options) {
		o.replacer = r
	}
}

func New[T Page](
	capacity int,
	catalog Catalog[T],
	opts ...Option,
) (*Manager[T], error) {
	assert.Assert(capacity > 0, "pool capacity must be greater than zero")

	o := options{
		log:      src.NopLogger(),
		locks:    NoLocks(),
		meter:    otel.Meter(meterName),
		replacer: NewFIFOReplacer(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	metrics, err := newPoolMetrics(o.meter)
	if err != nil {
		return nil, err
	}

	return &Manager[T]{
		capacity: capacity,
		catalog:  catalog,
		replacer: o.replacer,
		locks:    o.locks,
		log:      o.log,
		metrics:  metrics,
		pages:    make(map[common.PageAddress]T, capacity),
		pins:     make(map[common.PageAddress]int),
	}, nil
}

func (m *Manager[T]) Capacity() int {
	return m.capacity
}

func (m *Manager[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.pages)
}

func (m *Manager[T]) Contains(addr common.PageAddress) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.pages[addr]
	return ok
}

func (m *Manager[T]) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.stats
	s.Resident = len(m.pages)
	return s
}

// GetPage returns the cached page for addr, loading it from its table's disk
// manager on a miss. Loading into a full pool first evicts a clean, unpinned
// page. An exclusive fetch must be paired with Release.
func (m *Manager[T]) GetPage(addr common.PageAddress, mode common.AccessMode) (T, error) {
	pin := mode == common.AccessExclusive

	p, err := m.fetch(addr, pin)
	if err != nil {
		var zero T
		return zero, err
	}

	if err := m.locks.Acquire(addr, mode); err != nil {
		if pin {
			m.Release(addr, false)
		}
		var zero T
		return zero, errors.Wrapf(err, "acquire %s access to page %v", mode, addr)
	}

	return p, nil
}

// Release ends an exclusive fetch of addr. When dirty is set the page is
// marked dirty before it becomes evictable again.
func (m *Manager[T]) Release(addr common.PageAddress, dirty bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pages[addr]
	if !ok {
		return
	}
	if dirty {
		p.SetDirtiness(true)
	}

	pins := m.pins[addr]
	assert.Assert(pins > 0, "release of unpinned page %v", addr)
	if pins == 1 {
		delete(m.pins, addr)
	} else {
		m.pins[addr] = pins - 1
	}
}

// Pinned reports whether addr is held by an unreleased exclusive fetch.
func (m *Manager[T]) Pinned(addr common.PageAddress) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.pins[addr] > 0
}

func (m *Manager[T]) fetch(addr common.PageAddress, pin bool) (T, error) {
	var zero T

	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.pages[addr]; ok {
		m.stats.Hits++
		m.metrics.hits.Add(context.Background(), 1)
		m.replacer.Touch(addr)
		if pin {
			m.pins[addr]++
		}

		return p, nil
	}

	m.stats.Misses++
	m.metrics.misses.Add(context.Background(), 1)

	if len(m.pages) >= m.capacity {
		if err := m.evictLocked(); err != nil {
			return zero, errors.Wrapf(err, "load page %v", addr)
		}
	}

	store, err := m.catalog.ResolveStore(addr.TableID)
	if err != nil {
		return zero, errors.Wrapf(err, "resolve store for page %v", addr)
	}

	p, err := store.ReadPage(addr)
	if err != nil {
		return zero, err
	}

	m.pages[addr] = p
	m.replacer.Add(addr)
	if pin {
		m.pins[addr]++
	}

	return p, nil
}

func (m *Manager[T]) evictLocked() error {
	victim, ok := m.replacer.ChooseVictim(func(addr common.PageAddress) bool {
		return !m.pages[addr].IsDirty() && m.pins[addr] == 0
	})
	if !ok {
		return errors.Wrapf(ErrBufferPoolFull, "%d pages cached, none clean and unpinned", len(m.pages))
	}

	delete(m.pages, victim)
	m.replacer.Remove(victim)

	m.stats.Evictions++
	m.metrics.evictions.Add(context.Background(), 1)
	m.log.Debugw("evicted page", "table_id", victim.TableID, "page_id", victim.PageID)

	return nil
}

// FlushPage writes the page at addr back to disk if it is cached and dirty.
func (m *Manager[T]) FlushPage(addr common.PageAddress) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pages[addr]
	if !ok || !p.IsDirty() {
		return nil
	}

	return m.flushLocked(p)
}

// FlushAllPages writes every dirty cached page back to disk. Every page is
// attempted; the collected errors are returned together.
func (m *Manager[T]) FlushAllPages() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result error
	flushed := 0
	for _, addr := range m.replacer.Order() {
		p := m.pages[addr]
		if !p.IsDirty() {
			continue
		}
		if err := m.flushLocked(p); err != nil {
			result = multierr.Append(result, err)
			continue
		}
		flushed++
	}

	if flushed > 0 {
		m.log.Debugw("flushed dirty pages", "count", flushed)
	}

	return result
}

func (m *Manager[T]) flushLocked(p T) error {
	addr := p.Address()

	store, err := m.catalog.ResolveStore(addr.TableID)
	if err != nil {
		return errors.Wrapf(err, "resolve store for page %v", addr)
	}

	if err := store.WritePage(p); err != nil {
		return errors.Wrapf(err, "flush page %v", addr)
	}

	p.SetDirtiness(false)

	return nil
}

// Discard drops the page at addr without writing it, for pages whose disk
// content was replaced behind the pool's back.
func (m *Manager[T]) Discard(addr common.PageAddress) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.pages[addr]; !ok {
		return
	}

	delete(m.pages, addr)
	delete(m.pins, addr)
	m.replacer.Remove(addr)
}
