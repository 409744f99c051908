package cache

import (
	"context"
	"sync"
	"time"
)

// sweepInterval is how often expired entries are purged
const sweepInterval = 5 * time.Minute

// MemoryStore implements Store inside the process. Values are lost on restart,
// which is acceptable for run progress of a single-user server.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time

	stop chan struct{}
	once sync.Once
}

type entry struct {
	value    string
	deadline time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.deadline.IsZero() && !now.Before(e.deadline)
}

// NewMemoryStore creates a store and starts its sweeper. Call Close to stop it.
func NewMemoryStore() *MemoryStore {
	ms := &MemoryStore{
		entries: make(map[string]entry),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go ms.sweep()
	return ms
}

// Set stores value under key
func (ms *MemoryStore) Set(_ context.Context, key string, value string, expiration time.Duration) error {
	e := entry{value: value}
	if expiration != 0 {
		e.deadline = ms.now().Add(expiration)
	}

	ms.mu.Lock()
	ms.entries[key] = e
	ms.mu.Unlock()
	return nil
}

// Get returns the live value under key
func (ms *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	ms.mu.RLock()
	e, ok := ms.entries[key]
	ms.mu.RUnlock()

	if !ok || e.expired(ms.now()) {
		return "", false, nil
	}
	return e.value, true, nil
}

// Delete removes key
func (ms *MemoryStore) Delete(_ context.Context, key string) error {
	ms.mu.Lock()
	delete(ms.entries, key)
	ms.mu.Unlock()
	return nil
}

// Close stops the sweeper. It is safe to call more than once.
func (ms *MemoryStore) Close() error {
	ms.once.Do(func() { close(ms.stop) })
	return nil
}

func (ms *MemoryStore) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ms.stop:
			return
		case <-ticker.C:
			ms.purge()
		}
	}
}

// purge drops expired entries
func (ms *MemoryStore) purge() int {
	now := ms.now()
	ms.mu.Lock()
	defer ms.mu.Unlock()

	n := 0
	for key, e := range ms.entries {
		if e.expired(now) {
			delete(ms.entries, key)
			n++
		}
	}
	return n
}
