package bufferpool

import "github.com/Blackdeer1524/HeapDB/src/pkg/common"

// LockManager is consulted by the pool before it hands a page out. It is the
// hook for page-level isolation; blocking and deadlock handling belong to the
// implementation.
type LockManager interface {
	Acquire(addr common.PageAddress, mode common.AccessMode) error
}

type noLocks struct{}

var _ LockManager = noLocks{}

// NoLocks grants every request immediately.
func NoLocks() LockManager {
	return noLocks{}
}

func (noLocks) Acquire(common.PageAddress, common.AccessMode) error {
	return nil
}
