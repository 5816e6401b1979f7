package optional

import (
	"github.com/Blackdeer1524/HeapDB/src/pkg/assert"
)

type tag uint8

const (
	noneTag tag = iota
	someTag
)

// Optional holds either nothing or a single value of type T.
type Optional[T any] struct {
	tag   tag
	value T
}

func Some[T any](value T) Optional[T] {
	return Optional[T]{
		tag:   someTag,
		value: value,
	}
}

func None[T any]() Optional[T] {
	return Optional[T]{}
}

func (opt *Optional[T]) Emplace(value T) {
	opt.tag = someTag
	opt.value = value
}

func (opt *Optional[T]) Clear() {
	opt.tag = noneTag
	opt.value = *new(T)
}

func (opt Optional[T]) Get() (T, bool) {
	return opt.value, opt.tag == someTag
}

func (opt Optional[T]) Expect(msg string) T {
	assert.Assert(opt.tag == someTag, msg)
	return opt.value
}

func (opt Optional[T]) Unwrap() T {
	assert.Assert(opt.tag == someTag, "unwrap of an empty optional")
	return opt.value
}

func (opt Optional[T]) IsNone() bool {
	return opt.tag == noneTag
}

func (opt Optional[T]) IsSome() bool {
	return opt.tag == someTag
}
