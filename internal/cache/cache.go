package cache

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// Key prefixes shared by the API handlers and the sync service.
const (
	PrefixArticles   = "articles:"
	PrefixFeeds      = "feeds:"
	PrefixTags       = "tags:"
	PrefixSyncStatus = "sync:status:"
	KeyLastSync      = "sync:last"
	KeyAPIUsage      = "sync:usage"
)

type Manager struct {
	cache *cache.Cache
	mu    sync.RWMutex
}

func NewManager(defaultTTL time.Duration) *Manager {
	return &Manager{
		cache: cache.New(defaultTTL, 10*time.Minute),
	}
}

func (m *Manager) Get(key string) (interface{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cache.Get(key)
}

// Set stores value under key. A zero ttl uses the manager's default TTL.
func (m *Manager) Set(key string, value interface{}, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ttl == 0 {
		ttl = cache.DefaultExpiration
	}
	m.cache.Set(key, value, ttl)
}

func (m *Manager) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Delete(key)
}

// DeletePrefix drops every entry whose key starts with prefix and
// returns how many were removed.
func (m *Manager) DeletePrefix(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key := range m.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			m.cache.Delete(key)
			removed++
		}
	}
	return removed
}

// InvalidateArticles drops cached article, feed and tag listings,
// which all carry unread counts.
func (m *Manager) InvalidateArticles() {
	m.DeletePrefix(PrefixArticles)
	m.DeletePrefix(PrefixFeeds)
	m.DeletePrefix(PrefixTags)
}

func (m *Manager) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Flush()
}

func (m *Manager) ItemCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cache.ItemCount()
}

// Key joins parts into a cache key under prefix.
func Key(prefix string, parts ...interface{}) string {
	var b strings.Builder
	b.WriteString(prefix)
	for i, p := range parts {
		if i > 0 {
			b.WriteByte(':')
		}
		fmt.Fprint(&b, p)
	}
	return b.String()
}
