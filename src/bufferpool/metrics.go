package bufferpool

import (
	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/metric"
)

type poolMetrics struct {
	hits      metric.Int64Counter
	misses    metric.Int64Counter
	evictions metric.Int64Counter
}

func newPoolMetrics(meter metric.Meter) (*poolMetrics, error) {
	hits, err := meter.Int64Counter(
		"heapdb.bufferpool.hits",
		metric.WithDescription("page requests served from the pool"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create hits counter")
	}

	misses, err := meter.Int64Counter(
		"heapdb.bufferpool.misses",
		metric.WithDescription("page requests that read from disk"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create misses counter")
	}

	evictions, err := meter.Int64Counter(
		"heapdb.bufferpool.evictions",
		metric.WithDescription("clean pages dropped to make room"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create evictions counter")
	}

	return &poolMetrics{
		hits:      hits,
		misses:    misses,
		evictions: evictions,
	}, nil
}
