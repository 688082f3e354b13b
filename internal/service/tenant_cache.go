// tenant_cache.go — LRU-кэш результатов проверки тенантов с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики кэша.
var (
	tenantCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ss_tenant_cache_hits_total",
		Help: "Общее количество попаданий в кэш проверки тенантов.",
	})
	tenantCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ss_tenant_cache_misses_total",
		Help: "Общее количество промахов кэша проверки тенантов.",
	})
)

// TenantCache — кэш «тенант активен / не активен».
// Кэш локален для экземпляра; смена статуса через этот экземпляр
// инвалидирует запись сразу, в остальных — по истечении TTL.
type TenantCache struct {
	cache *expirable.LRU[string, bool]
}

// NewTenantCache создаёт кэш с указанным максимальным размером и TTL.
func NewTenantCache(maxSize int, ttl time.Duration) *TenantCache {
	return &TenantCache{cache: expirable.NewLRU[string, bool](maxSize, nil, ttl)}
}

// Get возвращает (активен, найдено).
func (c *TenantCache) Get(tenantID string) (bool, bool) {
	val, ok := c.cache.Get(tenantID)
	if ok {
		tenantCacheHitsTotal.Inc()
		return val, true
	}
	tenantCacheMissesTotal.Inc()
	return false, false
}

// Set сохраняет результат проверки.
func (c *TenantCache) Set(tenantID string, active bool) {
	c.cache.Add(tenantID, active)
}

// Delete инвалидирует запись.
func (c *TenantCache) Delete(tenantID string) {
	c.cache.Remove(tenantID)
}

// Len возвращает количество записей в кэше.
func (c *TenantCache) Len() int {
	return c.cache.Len()
}
