// importer/locks.go - Per-table-file serialization
package importer

import (
	"sort"
	"sync"
)

// TableLockManager serializes mutations per canonical table file. Operations
// touching disjoint files proceed in parallel; two operations touching the
// same file are strictly ordered.
type TableLockManager interface {
	// Acquire locks the given paths and returns the release function. Paths
	// are locked in sorted order so overlapping acquisitions cannot deadlock.
	Acquire(paths ...string) func()
}

type tableLockManager struct {
	mutex sync.Mutex
	locks map[string]*sync.Mutex
}

// NewTableLockManager creates the lock manager
func NewTableLockManager() TableLockManager {
	return &tableLockManager{locks: make(map[string]*sync.Mutex)}
}

func (m *tableLockManager) Acquire(paths ...string) func() {
	unique := make(map[string]struct{}, len(paths))
	for _, path := range paths {
		unique[path] = struct{}{}
	}
	ordered := make([]string, 0, len(unique))
	for path := range unique {
		ordered = append(ordered, path)
	}
	sort.Strings(ordered)

	acquired := make([]*sync.Mutex, 0, len(ordered))
	for _, path := range ordered {
		lock := m.lockFor(path)
		lock.Lock()
		acquired = append(acquired, lock)
	}

	return func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			acquired[i].Unlock()
		}
	}
}

func (m *tableLockManager) lockFor(path string) *sync.Mutex {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	lock, ok := m.locks[path]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[path] = lock
	}
	return lock
}
