package http

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"time"
)

type HealthStatus struct {
	Status    string           `json:"status"`
	Timestamp string           `json:"timestamp"`
	Checks    map[string]Check `json:"checks,omitempty"`
	System    *SystemInfo      `json:"system,omitempty"`
}

type Check struct {
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration,omitempty"`
}

type SystemInfo struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
	NumCPU       int    `json:"num_cpu"`
	MemAlloc     uint64 `json:"mem_alloc_mb"`
}

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusDegraded  = "degraded"
)

// Health is the liveness probe: the process is up and serving.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready checks every dependency a job could hit: Postgres, Redis, the queue
// backlog, the ffmpeg binary and the watermark asset. A missing watermark only
// degrades (uploads still work); everything else missing means not ready.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]Check{
		"database": timedCheck(func() error { return h.Repo.DB().Pool().Ping(ctx) }),
		"redis":    timedCheck(func() error { return h.Redis.Client().Ping(ctx).Err() }),
		"ffmpeg": timedCheck(func() error {
			_, err := exec.LookPath("ffmpeg")
			return err
		}),
		"queue": h.checkQueue(),
	}

	overall := StatusHealthy
	for _, c := range checks {
		if c.Status == StatusUnhealthy {
			overall = StatusUnhealthy
		}
	}

	checks["watermark"] = h.checkWatermark()
	if overall == StatusHealthy {
		for _, c := range checks {
			if c.Status == StatusDegraded {
				overall = StatusDegraded
			}
		}
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	status := HealthStatus{
		Status:    overall,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
		System: &SystemInfo{
			GoVersion:    runtime.Version(),
			NumGoroutine: runtime.NumGoroutine(),
			NumCPU:       runtime.NumCPU(),
			MemAlloc:     memStats.Alloc / 1024 / 1024,
		},
	}

	code := http.StatusOK
	if overall == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func timedCheck(probe func() error) Check {
	start := time.Now()
	err := probe()
	duration := time.Since(start).String()

	if err != nil {
		return Check{Status: StatusUnhealthy, Message: err.Error(), Duration: duration}
	}
	return Check{Status: StatusHealthy, Message: "ok", Duration: duration}
}

func (h *Handlers) checkQueue() Check {
	queueLen := h.Q.Len()

	status := StatusHealthy
	message := "queue operational"
	if queueLen > 500 {
		status = StatusDegraded
		message = "queue backlog detected"
	}

	return Check{
		Status:  status,
		Message: fmt.Sprintf("%s (pending: %d)", message, queueLen),
	}
}

func (h *Handlers) checkWatermark() Check {
	if _, err := os.Stat(h.Config.WatermarkFile); err != nil {
		return Check{Status: StatusDegraded, Message: fmt.Sprintf("watermark asset unavailable: %v", err)}
	}
	return Check{Status: StatusHealthy, Message: "ok"}
}
