package utils

import "iter"

type Pair[T, K any] struct {
	First  T
	Second K
}

func (p Pair[T, K]) Destruct() (T, K) {
	return p.First, p.Second
}

// CeilDiv returns ceil(a / b) for non-negative a and positive b.
func CeilDiv(a, b int) int {
	return (a + b - 1) / b
}

// ErrPair wraps an error into the (value, error) pair yielded by the
// storage iterators.
func ErrPair[T any](err error) Pair[T, error] {
	var zero T
	return Pair[T, error]{First: zero, Second: err}
}

// Collect drains a (value, error) sequence, stopping at the first error.
func Collect[T any](seq iter.Seq[Pair[T, error]]) ([]T, error) {
	var out []T
	for item := range seq {
		v, err := item.Destruct()
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}

	return out, nil
}
