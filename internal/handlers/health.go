// internal/handlers/health.go
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ammerola/stockledger/internal/core/ports"
)

// Pinger is satisfied by the redis cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// QueueInspector is the part of *asynq.Inspector used by the health check.
type QueueInspector interface {
	Queues() ([]string, error)
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	db          ports.HealthChecker
	cache       Pinger
	queues      QueueInspector
	version     string
	environment string
	logger      *slog.Logger
	startTime   time.Time
}

// NewHealthHandler creates a new health handler. cache and queues may be nil
// when redis is disabled.
func NewHealthHandler(
	database ports.HealthChecker,
	cache Pinger,
	queues QueueInspector,
	version, environment string,
	logger *slog.Logger,
) *HealthHandler {
	return &HealthHandler{
		db:          database,
		cache:       cache,
		queues:      queues,
		version:     version,
		environment: environment,
		logger:      logger.With(slog.String("handler", "health")),
		startTime:   time.Now(),
	}
}

// HealthStatus represents the health status of the application
type HealthStatus struct {
	Status      string                 `json:"status"`
	Version     string                 `json:"version"`
	Environment string                 `json:"environment"`
	Uptime      string                 `json:"uptime"`
	Timestamp   time.Time              `json:"timestamp"`
	Services    map[string]ServiceInfo `json:"services"`
	System      SystemInfo             `json:"system"`
}

// ServiceInfo represents the status of a service dependency
type ServiceInfo struct {
	Status       string                 `json:"status"`
	Message      string                 `json:"message,omitempty"`
	ResponseTime string                 `json:"response_time,omitempty"`
	Details      map[string]interface{} `json:"details,omitempty"`
}

// SystemInfo represents system-level information
type SystemInfo struct {
	GoVersion      string `json:"go_version"`
	NumGoroutines  int    `json:"num_goroutines"`
	NumCPU         int    `json:"num_cpu"`
	MemoryAllocMB  uint64 `json:"memory_alloc_mb"`
	MemorySysMB    uint64 `json:"memory_sys_mb"`
	GCPauseTotalMs uint64 `json:"gc_pause_total_ms"`
	NumGC          uint32 `json:"num_gc"`
}

// Health handles GET /health. The database is required; redis and the queue
// only degrade the service.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := HealthStatus{
		Status:      "healthy",
		Version:     h.version,
		Environment: h.environment,
		Uptime:      time.Since(h.startTime).Round(time.Second).String(),
		Timestamp:   time.Now().UTC(),
		Services:    make(map[string]ServiceInfo),
		System:      h.getSystemInfo(),
	}

	dbStatus := h.checkDatabase(ctx)
	health.Services["database"] = dbStatus
	if dbStatus.Status != "healthy" {
		health.Status = "unhealthy"
	}

	if h.cache != nil {
		redisStatus := h.checkRedis(ctx)
		health.Services["redis"] = redisStatus
		if redisStatus.Status != "healthy" && health.Status == "healthy" {
			health.Status = "degraded"
		}
	}

	if h.queues != nil {
		asynqStatus := h.checkAsynq(ctx)
		health.Services["asynq"] = asynqStatus
		if asynqStatus.Status != "healthy" && health.Status == "healthy" {
			health.Status = "degraded"
		}
	}

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}
	h.write(ctx, w, statusCode, health)
}

// Readiness handles GET /ready
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ready := true
	details := make(map[string]string)

	if err := h.db.Ping(ctx); err != nil {
		ready = false
		details["database"] = "not ready"
	} else {
		details["database"] = "ready"
	}

	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			ready = false
			details["redis"] = "not ready"
		} else {
			details["redis"] = "ready"
		}
	}

	statusCode := http.StatusOK
	if !ready {
		statusCode = http.StatusServiceUnavailable
	}
	h.write(ctx, w, statusCode, map[string]interface{}{
		"ready":   ready,
		"details": details,
	})
}

func (h *HealthHandler) write(ctx context.Context, w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.ErrorContext(ctx, "failed to encode health response",
			slog.String("error", err.Error()))
	}
}

func (h *HealthHandler) checkDatabase(ctx context.Context) ServiceInfo {
	start := time.Now()
	info := ServiceInfo{
		Status:  "healthy",
		Details: make(map[string]interface{}),
	}

	if err := h.db.Ping(ctx); err != nil {
		info.Status = "unhealthy"
		info.Message = err.Error()
		h.logger.ErrorContext(ctx, "database health check failed",
			slog.String("error", err.Error()))
		return info
	}

	for k, v := range h.db.Health(ctx) {
		info.Details[k] = v
	}

	info.ResponseTime = time.Since(start).String()
	return info
}

func (h *HealthHandler) checkRedis(ctx context.Context) ServiceInfo {
	start := time.Now()
	info := ServiceInfo{Status: "healthy"}

	if err := h.cache.Ping(ctx); err != nil {
		info.Status = "unhealthy"
		info.Message = err.Error()
		h.logger.WarnContext(ctx, "redis health check failed",
			slog.String("error", err.Error()))
		return info
	}

	info.ResponseTime = time.Since(start).String()
	return info
}

func (h *HealthHandler) checkAsynq(ctx context.Context) ServiceInfo {
	start := time.Now()
	info := ServiceInfo{
		Status:  "healthy",
		Details: make(map[string]interface{}),
	}

	queues, err := h.queues.Queues()
	if err != nil {
		info.Status = "unhealthy"
		info.Message = err.Error()
		h.logger.WarnContext(ctx, "asynq health check failed",
			slog.String("error", err.Error()))
		return info
	}

	queueStats := make(map[string]interface{}, len(queues))
	for _, queue := range queues {
		qInfo, err := h.queues.GetQueueInfo(queue)
		if err != nil {
			continue
		}
		queueStats[queue] = map[string]interface{}{
			"size":      qInfo.Size,
			"active":    qInfo.Active,
			"pending":   qInfo.Pending,
			"scheduled": qInfo.Scheduled,
			"retry":     qInfo.Retry,
			"archived":  qInfo.Archived,
			"failed":    qInfo.Failed,
		}
	}
	info.Details["queues"] = queueStats

	info.ResponseTime = time.Since(start).String()
	return info
}

func (h *HealthHandler) getSystemInfo() SystemInfo {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return SystemInfo{
		GoVersion:      runtime.Version(),
		NumGoroutines:  runtime.NumGoroutine(),
		NumCPU:         runtime.NumCPU(),
		MemoryAllocMB:  memStats.Alloc / 1024 / 1024,
		MemorySysMB:    memStats.Sys / 1024 / 1024,
		GCPauseTotalMs: memStats.PauseTotalNs / 1000 / 1000,
		NumGC:          memStats.NumGC,
	}
}
