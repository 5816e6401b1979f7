package bufferpool

import (
	"github.com/stretchr/testify/mock"

	"github.com/Blackdeer1524/HeapDB/src/pkg/common"
)

type MockDiskManager[T Page] struct {
	mock.Mock
}

var (
	_ DiskManager[Page] = &MockDiskManager[Page]{}
	_ Catalog[Page]     = &MockCatalog[Page]{}
	_ LockManager       = &MockLockManager{}
)

func (m *MockDiskManager[T]) ReadPage(addr common.PageAddress) (T, error) {
	args := m.Called(addr)
	if fn, ok := args.Get(0).(func(common.PageAddress) (T, error)); ok {
		return fn(addr)
	}
	p, _ := args.Get(0).(T)
	return p, args.Error(1)
}

func (m *MockDiskManager[T]) WritePage(page T) error {
	args := m.Called(page)
	return args.Error(0)
}

type MockCatalog[T Page] struct {
	mock.Mock
}

func (m *MockCatalog[T]) ResolveStore(tableID common.TableID) (DiskManager[T], error) {
	args := m.Called(tableID)
	store, _ := args.Get(0).(DiskManager[T])
	return store, args.Error(1)
}

type MockLockManager struct {
	mock.Mock
}

func (m *MockLockManager) Acquire(addr common.PageAddress, mode common.AccessMode) error {
	args := m.Called(addr, mode)
	return args.Error(0)
}
