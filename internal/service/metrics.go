// metrics.go — Prometheus-метрики сервисного слоя Access Module.
package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	permissionChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ac_permission_checks_total",
		Help: "Количество проверок прав (resolve)",
	}, []string{"result"}) // result: allowed, denied

	accessRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ac_access_requests_total",
		Help: "События жизненного цикла запросов доступа",
	}, []string{"event"}) // event: submitted, approved, rejected, revoked

	revocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ac_revocations_total",
		Help: "Отзывы временного доступа",
	}, []string{"outcome"}) // outcome: expired, noop, failed, cancelled

	pendingExpirations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ac_pending_expirations",
		Help: "Количество запланированных отзывов временного доступа",
	})

	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ac_permission_cache_hits_total",
		Help: "Попадания в кэш эффективных прав",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ac_permission_cache_misses_total",
		Help: "Промахи кэша эффективных прав",
	})
)

func resultLabel(allowed bool) string {
	if allowed {
		return "allowed"
	}
	return "denied"
}
