package bufferpool

import (
	"container/list"

	"github.com/Blackdeer1524/HeapDB/src/pkg/common"
)

// Replacer orders the cached pages for victim selection. The pool calls it
// with its mutex held.
type Replacer interface {
	Add(addr common.PageAddress)
	Touch(addr common.PageAddress)
	Remove(addr common.PageAddress)
	// ChooseVictim returns the first page in replacement order for which
	// evictable reports true.
	ChooseVictim(evictable func(common.PageAddress) bool) (common.PageAddress, bool)
	Order() []common.PageAddress
	Size() int
}

type listReplacer struct {
	order       *list.List
	elems       map[common.PageAddress]*list.Element
	moveOnTouch bool
}

var (
	_ Replacer = &listReplacer{}
)

// NewFIFOReplacer scans pages in the order they were loaded.
func NewFIFOReplacer() Replacer {
	return newListReplacer(false)
}

// NewLRUReplacer scans pages from least to most recently used.
func NewLRUReplacer() Replacer {
	return newListReplacer(true)
}

func newListReplacer(moveOnTouch bool) *listReplacer {
	return &listReplacer{
		order:       list.New(),
		elems:       make(map[common.PageAddress]*list.Element),
		moveOnTouch: moveOnTouch,
	}
}

func (l *listReplacer) Add(addr common.PageAddress) {
	if elem, ok := l.elems[addr]; ok {
		l.order.MoveToBack(elem)
		return
	}

	l.elems[addr] = l.order.PushBack(addr)
}

func (l *listReplacer) Touch(addr common.PageAddress) {
	if !l.moveOnTouch {
		return
	}

	if elem, ok := l.elems[addr]; ok {
		l.order.MoveToBack(elem)
	}
}

func (l *listReplacer) Remove(addr common.PageAddress) {
	if elem, ok := l.elems[addr]; ok {
		l.order.Remove(elem)
		delete(l.elems, addr)
	}
}

func (l *listReplacer) ChooseVictim(evictable func(common.PageAddress) bool) (common.PageAddress, bool) {
	for elem := l.order.Front(); elem != nil; elem = elem.Next() {
		addr := elem.Value.(common.PageAddress)
		if evictable(addr) {
			return addr, true
		}
	}

	return common.PageAddress{}, false
}

func (l *listReplacer) Order() []common.PageAddress {
	out := make([]common.PageAddress, 0, l.order.Len())
	for elem := l.order.Front(); elem != nil; elem = elem.Next() {
		out = append(out, elem.Value.(common.PageAddress))
	}

	return out
}

func (l *listReplacer) Size() int {
	return l.order.Len()
}
