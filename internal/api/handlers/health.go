// health.go — обработчики health endpoints access-module.
// /health/live — liveness probe (процесс жив)
// /health/ready — readiness probe (хранилище + JWKS IdP доступны,
// состояние RabbitMQ при включённой публикации)
// /metrics — Prometheus метрики
package handlers

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/bizpanel/access-module/internal/config"
)

const serviceName = "access-module"

// ReadinessChecker — интерфейс проверки готовности зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok", "degraded", "fail") и сообщение.
	CheckReady() (status string, message string)
}

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	storageChecker ReadinessChecker
	jwksChecker    ReadinessChecker
	brokerChecker  ReadinessChecker
	promHandler    http.Handler
}

// NewHealthHandler создаёт обработчик health endpoints.
// storageChecker — проверка PostgreSQL или Redis; nil означает
// in-memory backend, который всегда готов. jwksChecker — проверка
// JWKS endpoint IdP; nil даёт "fail". brokerChecker — проверка RabbitMQ;
// nil, если публикация отключена (проверка не выводится).
func NewHealthHandler(storageChecker, jwksChecker, brokerChecker ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		storageChecker: storageChecker,
		jwksChecker:    jwksChecker,
		brokerChecker:  brokerChecker,
		promHandler:    promhttp.Handler(),
	}
}

// healthCheckResult — результат проверки одной зависимости.
type healthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthLiveResponse — ответ liveness probe.
type healthLiveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
}

// healthReadyResponse — ответ readiness probe.
type healthReadyResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
	Checks    struct {
		Storage  healthCheckResult  `json:"storage"`
		JWKS     healthCheckResult  `json:"jwks"`
		RabbitMQ *healthCheckResult `json:"rabbitmq,omitempty"`
	} `json:"checks"`
}

// HealthLive — liveness probe. Возвращает 200 если процесс жив.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthLiveResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
	})
}

// HealthReady — readiness probe. Проверяет хранилище, JWKS и брокер.
// Возвращает 200 (ok/degraded) или 503 (fail).
func (h *HealthHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	resp := healthReadyResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
	}

	if h.storageChecker != nil {
		status, msg := h.storageChecker.CheckReady()
		resp.Checks.Storage = healthCheckResult{Status: status, Message: msg}
	} else {
		resp.Checks.Storage = healthCheckResult{Status: "ok", Message: "memory backend"}
	}

	if h.jwksChecker != nil {
		status, msg := h.jwksChecker.CheckReady()
		resp.Checks.JWKS = healthCheckResult{Status: status, Message: msg}
	} else {
		resp.Checks.JWKS = healthCheckResult{Status: "fail", Message: "не инициализирован"}
	}

	statuses := []string{resp.Checks.Storage.Status, resp.Checks.JWKS.Status}

	// Недоступный брокер не мешает обслуживать запросы: уведомления
	// best-effort, поэтому fail брокера понижается до degraded.
	if h.brokerChecker != nil {
		status, msg := h.brokerChecker.CheckReady()
		if status == "fail" {
			status = "degraded"
		}
		resp.Checks.RabbitMQ = &healthCheckResult{Status: status, Message: msg}
		statuses = append(statuses, status)
	}

	resp.Status = overallStatus(statuses...)

	code := http.StatusOK
	if resp.Status == "fail" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// GetMetrics — Prometheus метрики.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}

// overallStatus определяет итоговый статус из статусов зависимостей.
// Если хотя бы одна зависимость fail — итог fail.
// Если хотя бы одна degraded — итог degraded.
// Иначе — ok.
func overallStatus(statuses ...string) string {
	hasDegraded := false
	for _, s := range statuses {
		if s == "fail" {
			return "fail"
		}
		if s == "degraded" {
			hasDegraded = true
		}
	}
	if hasDegraded {
		return "degraded"
	}
	return "ok"
}
