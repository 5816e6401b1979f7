package stats

import "fmt"

// Strings are histogrammed by the integer formed from their first four bytes,
// so the order of the mapped values follows the lexicographic order of those
// prefixes.
const stringPrefixLen = 4

var (
	minStringValue = stringToInt("")
	maxStringValue = stringToInt("zzzz")
)

func stringToInt(s string) int64 {
	var v int64
	for i := range stringPrefixLen {
		v <<= 8
		if i < len(s) {
			v |= int64(s[i])
		}
	}
	return v
}

// clampedStringToInt maps s into the histogram domain
// [stringToInt(""), stringToInt("zzzz")].
func clampedStringToInt(s string) int64 {
	return max(minStringValue, min(maxStringValue, stringToInt(s)))
}

// StringHistogram estimates selectivity over a STRING column.
type StringHistogram struct {
	ints *IntHistogram
}

func NewStringHistogram(buckets int) (*StringHistogram, error) {
	h, err := NewIntHistogram(buckets, minStringValue, maxStringValue)
	if err != nil {
		return nil, err
	}
	return &StringHistogram{ints: h}, nil
}

func (h *StringHistogram) AddValue(s string) {
	h.ints.AddValue(clampedStringToInt(s))
}

func (h *StringHistogram) EstimateSelectivity(op Op, s string) float64 {
	return h.ints.EstimateSelectivity(op, clampedStringToInt(s))
}

func (h *StringHistogram) AverageSelectivity() float64 {
	return h.ints.AverageSelectivity()
}

func (h *StringHistogram) Total() int64 {
	return h.ints.Total()
}

func (h *StringHistogram) String() string {
	return fmt.Sprintf("StringHistogram over %s", h.ints)
}
