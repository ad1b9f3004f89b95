package geotile

import "sync"

// registry tracks open Stores by canonical path so that two Open calls
// for the same file within one process share locking and in-memory
// state rather than racing two independent mappings over it (spec
// §6.3: "a process holds at most one Store per file").
var (
	registryMu sync.Mutex
	registry   = make(map[string]*registryEntry)
)

type registryEntry struct {
	store    *Store
	refCount int
}

// registryOpen returns the already-open Store for canonical, opening a
// new one via open if none exists yet, and bumps its refcount.
func registryOpen(canonical string, open func() (*Store, error)) (*Store, error) {
	registryMu.Lock()
	if e, ok := registry[canonical]; ok {
		e.refCount++
		registryMu.Unlock()
		return e.store, nil
	}
	registryMu.Unlock()

	s, err := open()
	if err != nil {
		return nil, err
	}

	registryMu.Lock()
	if e, ok := registry[canonical]; ok {
		// another goroutine opened it first; close our fresh duplicate
		// and hand out the winner.
		e.refCount++
		registryMu.Unlock()
		s.mapping.close()
		s.file.Close()
		return e.store, nil
	}
	registry[canonical] = &registryEntry{store: s, refCount: 1}
	registryMu.Unlock()
	return s, nil
}

// registryClose drops one reference to canonical's Store, invoking
// closeFn (the real file/mapping teardown) only once the last
// reference is gone.
func registryClose(canonical string, closeFn func() error) error {
	registryMu.Lock()
	e, ok := registry[canonical]
	if !ok {
		registryMu.Unlock()
		return ErrClosed
	}
	e.refCount--
	last := e.refCount <= 0
	if last {
		delete(registry, canonical)
	}
	registryMu.Unlock()

	if !last {
		return nil
	}
	return closeFn()
}
