package catalog

import (
	"slices"
	"sync"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/Blackdeer1524/HeapDB/src/bufferpool"
	"github.com/Blackdeer1524/HeapDB/src/optimizer/stats"
	"github.com/Blackdeer1524/HeapDB/src/pkg/common"
	"github.com/Blackdeer1524/HeapDB/src/storage/disk"
	"github.com/Blackdeer1524/HeapDB/src/storage/page"
	"github.com/Blackdeer1524/HeapDB/src/storage/tuple"
)

var ErrNoSuchTable = errors.New("no such table")

type entry struct {
	file       *disk.HeapFile
	name       string
	primaryKey string
}

// Catalog keeps track of the open tables: their heap files, names and
// primary keys.
type Catalog struct {
	mu     sync.RWMutex
	byID   map[common.TableID]*entry
	byName map[string]common.TableID
}

var (
	_ bufferpool.Catalog[*page.HeapPage] = &Catalog{}
	_ stats.Catalog                      = &Catalog{}
)

func New() *Catalog {
	return &Catalog{
		byID:   map[common.TableID]*entry{},
		byName: map[string]common.TableID{},
	}
}

// AddTable registers file under name. A table previously registered under
// the same name or with the same id is replaced.
func (c *Catalog) AddTable(file *disk.HeapFile, name, primaryKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := file.ID()

	if old, ok := c.byName[name]; ok && old != id {
		delete(c.byID, old)
	}
	if old, ok := c.byID[id]; ok && old.name != name {
		delete(c.byName, old.name)
	}

	c.byID[id] = &entry{file: file, name: name, primaryKey: primaryKey}
	c.byName[name] = id
}

// AddAnonymousTable registers file under a generated name and returns it.
func (c *Catalog) AddAnonymousTable(file *disk.HeapFile) string {
	name := uuid.NewString()
	c.AddTable(file, name, "")

	return name
}

func (c *Catalog) lookup(id common.TableID) (*entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.byID[id]
	if !ok {
		return nil, errors.Wrapf(ErrNoSuchTable, "table id %d", id)
	}
	return e, nil
}

func (c *Catalog) TableID(name string) (common.TableID, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	id, ok := c.byName[name]
	if !ok {
		return 0, errors.Wrapf(ErrNoSuchTable, "table %q", name)
	}
	return id, nil
}

func (c *Catalog) Table(id common.TableID) (*disk.HeapFile, error) {
	e, err := c.lookup(id)
	if err != nil {
		return nil, err
	}
	return e.file, nil
}

// TableByName returns the heap file registered under name.
func (c *Catalog) TableByName(name string) (*disk.HeapFile, error) {
	id, err := c.TableID(name)
	if err != nil {
		return nil, err
	}
	return c.Table(id)
}

func (c *Catalog) ResolveStore(id common.TableID) (bufferpool.DiskManager[*page.HeapPage], error) {
	e, err := c.lookup(id)
	if err != nil {
		return nil, err
	}
	return e.file, nil
}

func (c *Catalog) ResolveTable(id common.TableID) (stats.ScannableTable, error) {
	e, err := c.lookup(id)
	if err != nil {
		return nil, err
	}
	return e.file, nil
}

func (c *Catalog) SchemaOf(id common.TableID) (*tuple.Schema, error) {
	e, err := c.lookup(id)
	if err != nil {
		return nil, err
	}
	return e.file.Schema(), nil
}

func (c *Catalog) NameOf(id common.TableID) (string, error) {
	e, err := c.lookup(id)
	if err != nil {
		return "", err
	}
	return e.name, nil
}

func (c *Catalog) PrimaryKey(id common.TableID) (string, error) {
	e, err := c.lookup(id)
	if err != nil {
		return "", err
	}
	return e.primaryKey, nil
}

// ListTableIDs returns the ids of all registered tables in ascending order.
func (c *Catalog) ListTableIDs() []common.TableID {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]common.TableID, 0, len(c.byID))
	for id := range c.byID {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	return ids
}

// Clear forgets every table without closing its file.
func (c *Catalog) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	clear(c.byID)
	clear(c.byName)
}

// Close closes every registered heap file and clears the catalog.
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var result error
	for _, e := range c.byID {
		if err := e.file.Close(); err != nil {
			result = multierr.Append(result, errors.Wrapf(err, "close table %q", e.name))
		}
	}

	clear(c.byID)
	clear(c.byName)

	return result
}
