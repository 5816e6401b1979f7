package stats

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"

	"github.com/Blackdeer1524/HeapDB/src/pkg/assert"
)

var ErrBadHistogram = errors.New("invalid histogram bounds")

// IntHistogram is a fixed-width histogram over the closed range [min, max].
// Space and per-value cost are constant in the number of values added.
type IntHistogram struct {
	min   int64
	max   int64
	width int64

	counts []int64
	total  int64
}

func NewIntHistogram(buckets int, min, max int64) (*IntHistogram, error) {
	if buckets < 1 {
		return nil, errors.Wrapf(ErrBadHistogram, "%d buckets", buckets)
	}
	if min > max {
		return nil, errors.Wrapf(ErrBadHistogram, "min %d > max %d", min, max)
	}

	span := max - min + 1
	width := (span + int64(buckets) - 1) / int64(buckets)

	return &IntHistogram{
		min:    min,
		max:    max,
		width:  width,
		counts: make([]int64, buckets),
	}, nil
}

func (h *IntHistogram) Min() int64 {
	return h.min
}

func (h *IntHistogram) Max() int64 {
	return h.max
}

func (h *IntHistogram) Width() int64 {
	return h.width
}

func (h *IntHistogram) NumBuckets() int {
	return len(h.counts)
}

// Total is the number of values added.
func (h *IntHistogram) Total() int64 {
	return h.total
}

// Counts returns a copy of the per-bucket counts.
func (h *IntHistogram) Counts() []int64 {
	return append([]int64(nil), h.counts...)
}

func (h *IntHistogram) Contains(v int64) bool {
	return v >= h.min && v <= h.max
}

func (h *IntHistogram) AddValue(v int64) {
	assert.Assert(h.Contains(v), "value %d outside histogram range [%d, %d]", v, h.min, h.max)

	h.counts[h.bucketOf(v)]++
	h.total++
}

func (h *IntHistogram) bucketOf(v int64) int {
	idx := (v - h.min) / h.width
	return int(min(idx, int64(len(h.counts)-1)))
}

// EstimateSelectivity estimates the fraction of added values satisfying
// `value op v`. Values inside a bucket are assumed uniformly spread over the
// bucket's nominal width. The result is always within [0, 1]; an empty
// histogram estimates 0 for every operator.
func (h *IntHistogram) EstimateSelectivity(op Op, v int64) float64 {
	if h.total == 0 {
		return 0
	}

	var sel float64
	switch op {
	case OpEquals, OpLike:
		sel = h.equal(v)
	case OpNotEquals:
		sel = 1 - h.equal(v)
	case OpGreaterThan:
		switch {
		case v < h.min:
			sel = 1
		case v >= h.max:
			sel = 0
		default:
			sel = h.greater(v)
		}
	case OpGreaterThanOrEq:
		switch {
		case v <= h.min:
			sel = 1
		case v > h.max:
			sel = 0
		default:
			sel = h.greater(v) + h.equal(v)
		}
	case OpLessThan:
		switch {
		case v <= h.min:
			sel = 0
		case v > h.max:
			sel = 1
		default:
			sel = h.less(v)
		}
	case OpLessThanOrEq:
		switch {
		case v < h.min:
			sel = 0
		case v >= h.max:
			sel = 1
		default:
			sel = h.less(v) + h.equal(v)
		}
	default:
		assert.Assert(false, "unknown operator %v", op)
	}

	return clamp(sel)
}

func (h *IntHistogram) fraction(idx int) float64 {
	return float64(h.counts[idx]) / float64(h.total)
}

func (h *IntHistogram) left(idx int) int64 {
	return h.min + int64(idx)*h.width
}

func (h *IntHistogram) equal(v int64) float64 {
	if !h.Contains(v) {
		return 0
	}

	return h.fraction(h.bucketOf(v)) / float64(h.width)
}

// greater is the fraction of values strictly above v, for v in [min, max].
func (h *IntHistogram) greater(v int64) float64 {
	idx := h.bucketOf(v)
	right := h.left(idx) + h.width - 1

	sel := h.fraction(idx) * float64(right-v) / float64(h.width)
	for i := idx + 1; i < len(h.counts); i++ {
		sel += h.fraction(i)
	}

	return sel
}

// less is the fraction of values strictly below v, for v in [min, max].
func (h *IntHistogram) less(v int64) float64 {
	idx := h.bucketOf(v)

	sel := h.fraction(idx) * float64(v-h.left(idx)) / float64(h.width)
	for i := range idx {
		sel += h.fraction(i)
	}

	return sel
}

// AverageSelectivity is the mean per-bucket fraction of values, the estimate
// used when the predicate constant is unknown.
func (h *IntHistogram) AverageSelectivity() float64 {
	if h.total == 0 {
		return 0
	}

	var sum float64
	for i := range h.counts {
		sum += h.fraction(i)
	}

	return clamp(sum / float64(len(h.counts)))
}

func (h *IntHistogram) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "IntHistogram[min=%d max=%d buckets=%d width=%d total=%d]",
		h.min, h.max, len(h.counts), h.width, h.total)
	for i, c := range h.counts {
		if c == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n  [%d, %d]: %d", h.left(i), min(h.left(i)+h.width-1, h.max), c)
	}

	return b.String()
}

func clamp(v float64) float64 {
	return max(0, min(1, v))
}
