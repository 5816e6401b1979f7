package stats

import (
	"context"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Blackdeer1524/HeapDB/src"
	"github.com/Blackdeer1524/HeapDB/src/pkg/common"
)

const tracerName = "github.com/Blackdeer1524/HeapDB/src/optimizer/stats"

// Catalog lists the tables statistics are kept for.
type Catalog interface {
	ListTableIDs() []common.TableID
	NameOf(id common.TableID) (string, error)
	ResolveTable(id common.TableID) (ScannableTable, error)
}

type RegistryConfig struct {
	IOCostPerPage int
	Buckets       int
	// Parallelism bounds the number of tables analyzed at once.
	Parallelism int
}

func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		IOCostPerPage: DefaultIOCostPerPage,
		Buckets:       DefaultHistogramBuckets,
		Parallelism:   4,
	}
}

// Registry maps table names to their latest statistics. Readers always see a
// complete map: writers publish a new copy.
type Registry struct {
	catalog Catalog
	cfg     RegistryConfig
	log     src.Logger
	tracer  trace.Tracer

	writeMu sync.Mutex
	stats   atomic.Pointer[map[string]*TableStats]
}

type RegistryOption func(*Registry)

func WithTracer(tracer trace.Tracer) RegistryOption {
	return func(r *Registry) {
		r.tracer = tracer
	}
}

func NewRegistry(catalog Catalog, cfg RegistryConfig, log src.Logger, opts ...RegistryOption) *Registry {
	defaults := DefaultRegistryConfig()
	if cfg.IOCostPerPage <= 0 {
		cfg.IOCostPerPage = defaults.IOCostPerPage
	}
	if cfg.Buckets <= 0 {
		cfg.Buckets = defaults.Buckets
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = defaults.Parallelism
	}

	r := &Registry{
		catalog: catalog,
		cfg:     cfg,
		log:     log,
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}

	empty := map[string]*TableStats{}
	r.stats.Store(&empty)

	return r
}

func (r *Registry) Get(name string) (*TableStats, bool) {
	s, ok := (*r.stats.Load())[name]
	return s, ok
}

func (r *Registry) Set(name string, s *TableStats) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	next := maps.Clone(*r.stats.Load())
	next[name] = s
	r.stats.Store(&next)
}

// Names returns the names of tables with statistics, sorted.
func (r *Registry) Names() []string {
	return slices.Sorted(maps.Keys(*r.stats.Load()))
}

// Snapshot returns a copy of the current name to statistics map.
func (r *Registry) Snapshot() map[string]*TableStats {
	return maps.Clone(*r.stats.Load())
}

// RecomputeAll computes fresh statistics for every catalog table and
// replaces the whole map at once. On error the previous map stays in place.
func (r *Registry) RecomputeAll(ctx context.Context) error {
	ids := r.catalog.ListTableIDs()
	names := make([]string, len(ids))
	results := make([]*TableStats, len(ids))

	for i, id := range ids {
		name, err := r.catalog.NameOf(id)
		if err != nil {
			return errors.Wrapf(err, "name of table %d", id)
		}
		names[i] = name
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Parallelism)

	for i, id := range ids {
		g.Go(func() error {
			s, err := r.compute(ctx, id, names[i])
			if err != nil {
				return err
			}
			results[i] = s
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	next := make(map[string]*TableStats, len(ids))
	for i, name := range names {
		next[name] = results[i]
	}

	r.writeMu.Lock()
	r.stats.Store(&next)
	r.writeMu.Unlock()

	r.log.Infow("table statistics recomputed", "tables", len(next))

	return nil
}

func (r *Registry) compute(ctx context.Context, id common.TableID, name string) (*TableStats, error) {
	_, span := r.tracer.Start(ctx, "stats.compute", trace.WithAttributes(
		attribute.String("table", name),
		attribute.Int64("table_id", int64(id)), //nolint:gosec
	))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	table, err := r.catalog.ResolveTable(id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve table")
		return nil, errors.Wrapf(err, "resolve table %s", name)
	}

	s, err := Compute(table, r.cfg.IOCostPerPage, r.cfg.Buckets)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "compute")
		return nil, errors.Wrapf(err, "compute statistics of %s", name)
	}

	span.SetAttributes(attribute.Int64("rows", s.TotalTuples()))
	r.log.Debugw("table analyzed", "table", name, "table_id", id, "rows", s.TotalTuples())

	return s, nil
}
