// Package cache memoizes derived results keyed by table content hash.
// Entries are immutable once stored; callers must not mutate what they get
// back.
package cache

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Cleaner is implemented by caches that support periodic expiry
type Cleaner interface {
	CleanExpired() int
}

// Memo is a result cache with duplicate-suppressed computation. Concurrent
// misses on the same key run the computation once.
type Memo struct {
	lru   *LRUCache[any]
	group singleflight.Group
}

// NewMemo creates a memo holding at most size results for ttl
func NewMemo(size int, ttl time.Duration) *Memo {
	return &Memo{lru: NewLRUCache[any](size, ttl)}
}

// Key builds a cache key scoped to a table hash
func Key(tableHash, op string, params ...any) string {
	return fmt.Sprintf("%s|%s|%v", tableHash, op, params)
}

// GetOrCompute returns the cached value for key or computes and stores it.
// Errors are returned to every waiter and never cached.
func (m *Memo) GetOrCompute(key string, fn func() (any, error)) (any, error) {
	if v, ok := m.lru.Get(key); ok {
		return v, nil
	}

	v, err, _ := m.group.Do(key, func() (any, error) {
		if v, ok := m.lru.Get(key); ok {
			return v, nil
		}
		v, err := fn()
		if err != nil {
			return nil, err
		}
		m.lru.Set(key, v)
		return v, nil
	})
	return v, err
}

// InvalidateTable drops every result derived from the table with this hash
func (m *Memo) InvalidateTable(tableHash string) int {
	return m.lru.DeletePrefix(tableHash + "|")
}

// Size returns the number of cached results
func (m *Memo) Size() int {
	return m.lru.Size()
}

// CleanExpired removes expired results
func (m *Memo) CleanExpired() int {
	return m.lru.CleanExpired()
}

// Compute is the typed form of GetOrCompute
func Compute[T any](m *Memo, key string, fn func() (T, error)) (T, error) {
	v, err := m.GetOrCompute(key, func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Manager handles cache lifecycle and cleanup
type Manager struct {
	caches      []Cleaner
	log         zerolog.Logger
	stopCleanup chan struct{}
	cleanupDone chan struct{}
}

// NewManager creates a new cache manager
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		log:         log,
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
}

// Register adds a cache to the manager for cleanup
func (m *Manager) Register(c Cleaner) {
	m.caches = append(m.caches, c)
}

// StartCleanup begins periodic cleanup of all registered caches
func (m *Manager) StartCleanup(interval time.Duration) {
	go m.cleanup(interval)
}

func (m *Manager) cleanup(interval time.Duration) {
	defer close(m.cleanupDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.log.Debug().Int("removed", n).Msg("cache cleanup")
			}
		case <-m.stopCleanup:
			return
		}
	}
}

// Sweep runs one cleanup pass over every registered cache
func (m *Manager) Sweep() int {
	total := 0
	for _, c := range m.caches {
		total += c.CleanExpired()
	}
	return total
}

// Stop gracefully stops the cleanup routine. It must only be called after
// StartCleanup.
func (m *Manager) Stop() {
	close(m.stopCleanup)
	<-m.cleanupDone
}
