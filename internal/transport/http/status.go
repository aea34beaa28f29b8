package http

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"vad-server-go/internal/app/services"
	"vad-server-go/internal/domain/vad"
	"vad-server-go/internal/platform/storage"
)

// StatusService exposes the health and status endpoints.
type StatusService struct {
	stream  *services.StreamService
	journal *storage.Journal // nil when the journal is disabled
	started time.Time
}

// NewStatusService wires the status API to its data sources.
func NewStatusService(stream *services.StreamService, journal *storage.Journal) *StatusService {
	return &StatusService{
		stream:  stream,
		journal: journal,
		started: time.Now(),
	}
}

// Register attaches the routes to the engine.
func (s *StatusService) Register(engine *gin.Engine) {
	engine.GET("/healthz", s.handleHealth)
	api := engine.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/segments", s.handleSegments)
	}
}

func (s *StatusService) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

type systemSnapshot struct {
	UptimeSeconds int64   `json:"uptime_seconds"`
	Goroutines    int     `json:"goroutines"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemUsedMB     uint64  `json:"mem_used_mb"`
	MemTotalMB    uint64  `json:"mem_total_mb"`
}

func (s *StatusService) handleStatus(c *gin.Context) {
	snapshot := systemSnapshot{
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Goroutines:    runtime.NumGoroutine(),
	}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		snapshot.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		snapshot.MemUsedMB = vm.Used / 1024 / 1024
		snapshot.MemTotalMB = vm.Total / 1024 / 1024
	}

	respondSuccess(c, http.StatusOK, gin.H{
		"system":   snapshot,
		"stream":   s.stream.Stats(),
		"backends": vad.Backends(),
	}, "")
}

func (s *StatusService) handleSegments(c *gin.Context) {
	if s.journal == nil {
		respondError(c, http.StatusNotFound, "segment journal disabled")
		return
	}

	records, err := s.journal.RecentSegments(50)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	respondSuccess(c, http.StatusOK, records, "")
}
