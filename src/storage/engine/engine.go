package engine

import (
	"context"
	"iter"
	"path/filepath"
	"sync"

	"github.com/go-faster/errors"
	"github.com/robfig/cron/v3"
	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/Blackdeer1524/HeapDB/src"
	"github.com/Blackdeer1524/HeapDB/src/bufferpool"
	"github.com/Blackdeer1524/HeapDB/src/cfg"
	"github.com/Blackdeer1524/HeapDB/src/optimizer/stats"
	"github.com/Blackdeer1524/HeapDB/src/pkg/common"
	"github.com/Blackdeer1524/HeapDB/src/pkg/utils"
	"github.com/Blackdeer1524/HeapDB/src/storage/catalog"
	"github.com/Blackdeer1524/HeapDB/src/storage/disk"
	"github.com/Blackdeer1524/HeapDB/src/storage/page"
	"github.com/Blackdeer1524/HeapDB/src/storage/tuple"
)

var ErrAlreadyStarted = errors.New("engine already started")

// Engine ties the catalog, the buffer pool and the statistics registry of one
// database together.
type Engine struct {
	cfg cfg.Config
	fs  afero.Fs
	log src.Logger

	catalog  *catalog.Catalog
	pool     *bufferpool.Manager[*page.HeapPage]
	registry *stats.Registry

	mu   sync.Mutex
	cron *cron.Cron
}

func New(config cfg.Config, fs afero.Fs, log src.Logger, opts ...bufferpool.Option) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	cat := catalog.New()

	opts = append([]bufferpool.Option{bufferpool.WithLogger(log)}, opts...)
	pool, err := bufferpool.New[*page.HeapPage](config.PoolPages, cat, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "create buffer pool")
	}

	registry := stats.NewRegistry(cat, stats.RegistryConfig{
		IOCostPerPage: config.IOCostPerPage,
		Buckets:       config.HistogramBuckets,
		Parallelism:   config.AnalyzeParallelism,
	}, log)

	return &Engine{
		cfg:      config,
		fs:       fs,
		log:      log,
		catalog:  cat,
		pool:     pool,
		registry: registry,
	}, nil
}

func (e *Engine) Catalog() *catalog.Catalog {
	return e.catalog
}

func (e *Engine) Pool() *bufferpool.Manager[*page.HeapPage] {
	return e.pool
}

func (e *Engine) Registry() *stats.Registry {
	return e.registry
}

// OpenTable opens the heap file of def and registers it in the catalog.
// A relative file is resolved against the configured data directory.
func (e *Engine) OpenTable(def catalog.TableDef) (*disk.HeapFile, error) {
	path := def.File
	if !filepath.IsAbs(path) {
		path = filepath.Join(e.cfg.DataDir, path)
	}

	return e.openTable(def, path)
}

func (e *Engine) openTable(def catalog.TableDef, path string) (*disk.HeapFile, error) {
	schema, err := def.Schema()
	if err != nil {
		return nil, err
	}

	if err := e.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "create directory for table %q", def.Name)
	}

	hf, err := disk.Open(e.fs, path, schema, e.cfg.PageSize, e.pool, disk.WithLogger(e.log))
	if err != nil {
		return nil, errors.Wrapf(err, "open table %q", def.Name)
	}

	e.catalog.AddTable(hf, def.Name, def.PrimaryKey)
	e.log.Debugw("table opened", "table", def.Name, "table_id", hf.ID(), "path", path)

	return hf, nil
}

// OpenManifest opens every table the manifest at path declares. Table files
// are resolved against the manifest's directory, not the data directory.
func (e *Engine) OpenManifest(path string) (*catalog.Manifest, error) {
	m, err := catalog.LoadManifest(e.fs, path)
	if err != nil {
		return nil, err
	}

	for _, def := range m.Tables {
		if _, err := e.openTable(def, def.File); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (e *Engine) Insert(table string, t *tuple.Tuple) (common.RecordID, error) {
	hf, err := e.catalog.TableByName(table)
	if err != nil {
		return common.RecordID{}, err
	}

	if _, err := hf.InsertTuple(t); err != nil {
		return common.RecordID{}, errors.Wrapf(err, "insert into %q", table)
	}

	rid, _ := t.RecordID()
	return rid, nil
}

func (e *Engine) Delete(rid common.RecordID) error {
	hf, err := e.catalog.Table(rid.TableID)
	if err != nil {
		return err
	}

	if _, err := hf.DeleteTuple(rid); err != nil {
		return errors.Wrapf(err, "delete %v", rid)
	}
	return nil
}

func (e *Engine) Scan(table string) (iter.Seq[utils.Pair[*tuple.Tuple, error]], error) {
	hf, err := e.catalog.TableByName(table)
	if err != nil {
		return nil, err
	}
	return hf.Scan(), nil
}

// Analyze recomputes the statistics of every open table.
func (e *Engine) Analyze(ctx context.Context) error {
	return e.registry.RecomputeAll(ctx)
}

func (e *Engine) Stats(table string) (*stats.TableStats, bool) {
	return e.registry.Get(table)
}

func (e *Engine) Flush() error {
	return e.pool.FlushAllPages()
}

// Start schedules the background flush and analyze jobs. Analysis runs with
// ctx, so canceling it aborts a running analysis.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cron != nil {
		return ErrAlreadyStarted
	}

	c, err := newScheduler(e.log, []job{
		{
			name:     "flush",
			schedule: e.cfg.FlushSchedule,
			run:      func() error { return e.Flush() },
		},
		{
			name:     "analyze",
			schedule: e.cfg.AnalyzeSchedule,
			run:      func() error { return e.Analyze(ctx) },
		},
	})
	if err != nil {
		return err
	}

	c.Start()
	e.cron = c

	return nil
}

// Close waits for running background jobs, writes dirty pages back and
// closes every table.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cron != nil {
		<-e.cron.Stop().Done()
		e.cron = nil
	}

	var result error
	if err := e.pool.FlushAllPages(); err != nil {
		result = multierr.Append(result, errors.Wrap(err, "flush"))
	}
	if err := e.catalog.Close(); err != nil {
		result = multierr.Append(result, err)
	}

	return result
}
