// Package cache implements the suppression cache for recently applied delivery reports
package cache

import (
	"os"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"

	"statusflow/internal/interfaces"
)

// A Manager remembers suppression keys for a limited time so duplicate reports are not applied twice
type Manager struct {
	cache  interfaces.Cache
	ttl    time.Duration
	now    func() time.Time
	logger *zerolog.Logger
	mu     sync.Mutex
}

// NewManager creates a new manager over cache. Entries older than ttl are ignored
func NewManager(cache interfaces.Cache, ttl time.Duration, logger *zerolog.Logger) *Manager {
	if logger == nil {
		l := zerolog.New(os.Stdout).With().Timestamp().Logger()
		logger = &l
	}
	return &Manager{cache: cache, ttl: ttl, now: time.Now, logger: logger}
}

// NewLRUManager creates a manager backed by an LRU cache of the given capacity
func NewLRUManager(capacity int, ttl time.Duration, logger *zerolog.Logger) (*Manager, error) {
	c, err := lru.New(capacity)
	if err != nil {
		return nil, err
	}
	return NewManager(c, ttl, logger), nil
}

// Seen reports whether key was marked within the last ttl. Expired keys are evicted
func (m *Manager) Seen(key string) bool {
	if key == "" {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.cache.Get(key)
	if !ok {
		return false
	}
	markedAt, ok := v.(time.Time)
	if !ok || (m.ttl > 0 && m.now().Sub(markedAt) >= m.ttl) {
		m.cache.Remove(key)
		return false
	}
	return true
}

// Mark records key as applied now
func (m *Manager) Mark(key string) {
	if key == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if evicted := m.cache.Add(key, m.now()); evicted {
		m.logger.Debug().Str("key", key).Msg("Suppression cache full, evicted oldest key")
	}
}

// Size returns number of keys in cache
func (m *Manager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.cache.Len()
}

// Flush cleans all cache
func (m *Manager) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cache.Purge()
}
