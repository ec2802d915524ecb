package service

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/bigkaa/bizpanel/access-module/internal/domain/model"
)

// PermissionCache — LRU-кэш эффективных прав пользователей с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
//
// Запись, вычисленная до инвалидации, в кэш не попадает: Get возвращает
// поколение, и Set с устаревшим поколением игнорируется.
type PermissionCache struct {
	cache *expirable.LRU[string, model.PermissionSet]

	mu  sync.Mutex
	gen uint64
}

// NewPermissionCache создаёт кэш на maxSize пользователей с TTL записи ttl.
func NewPermissionCache(maxSize int, ttl time.Duration) *PermissionCache {
	return &PermissionCache{
		cache: expirable.NewLRU[string, model.PermissionSet](maxSize, nil, ttl),
	}
}

// Get возвращает копию набора прав пользователя и текущее поколение кэша.
func (c *PermissionCache) Get(userID string) (model.PermissionSet, uint64, bool) {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()

	set, ok := c.cache.Get(userID)
	if !ok {
		cacheMissesTotal.Inc()
		return nil, gen, false
	}
	cacheHitsTotal.Inc()
	return set.Clone(), gen, true
}

// Set кладёт набор в кэш, если с момента Get не было инвалидаций.
func (c *PermissionCache) Set(userID string, set model.PermissionSet, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.cache.Add(userID, set.Clone())
}

// Invalidate удаляет запись пользователя.
func (c *PermissionCache) Invalidate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.cache.Remove(userID)
}

// Purge очищает кэш (изменились defaults роли).
func (c *PermissionCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.cache.Purge()
}

// Len возвращает количество записей.
func (c *PermissionCache) Len() int {
	return c.cache.Len()
}
