package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/quartermaster/internal/cache"
	"github.com/aristath/quartermaster/internal/database"
	"github.com/aristath/quartermaster/internal/scheduler"
)

// SystemHandlers serves operational endpoints: host and process status,
// database statistics, job history and manual job triggers.
type SystemHandlers struct {
	dataDir    string
	rentalDB   *database.DB
	cacheDB    *database.DB
	scheduler  *scheduler.Scheduler
	jobHistory *cache.JobHistory
	startedAt  time.Time
	log        zerolog.Logger
}

// NewSystemHandlers creates new system handlers
func NewSystemHandlers(
	dataDir string,
	rentalDB *database.DB,
	cacheDB *database.DB,
	sched *scheduler.Scheduler,
	jobHistory *cache.JobHistory,
	log zerolog.Logger,
) *SystemHandlers {
	return &SystemHandlers{
		dataDir:    dataDir,
		rentalDB:   rentalDB,
		cacheDB:    cacheDB,
		scheduler:  sched,
		jobHistory: jobHistory,
		startedAt:  time.Now(),
		log:        log.With().Str("handler", "system").Logger(),
	}
}

// RegisterRoutes registers all system routes
func (h *SystemHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/system", func(r chi.Router) {
		r.Get("/status", h.HandleStatus)
		r.Get("/database/stats", h.HandleDatabaseStats)
		r.Get("/jobs", h.HandleJobsStatus)
		r.Post("/jobs/{name}", h.HandleTriggerJob)
	})
}

// HandleStatus handles GET /api/system/status
func (h *SystemHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"goroutines":     runtime.NumGoroutine(),
		"go_version":     runtime.Version(),
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		status["memory"] = map[string]interface{}{
			"total_bytes":  vm.Total,
			"used_bytes":   vm.Used,
			"used_percent": vm.UsedPercent,
		}
	} else {
		h.log.Warn().Err(err).Msg("Failed to read memory stats")
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		status["cpu_percent"] = percents[0]
	}

	if usage, err := disk.Usage(h.dataDir); err == nil {
		status["disk"] = map[string]interface{}{
			"path":         h.dataDir,
			"total_bytes":  usage.Total,
			"free_bytes":   usage.Free,
			"used_percent": usage.UsedPercent,
		}
	} else {
		h.log.Warn().Err(err).Msg("Failed to read disk usage")
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": status})
}

// HandleDatabaseStats handles GET /api/system/database/stats
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	stats := make(map[string]interface{})
	for _, db := range []*database.DB{h.rentalDB, h.cacheDB} {
		s, err := db.GetStats()
		if err != nil {
			h.log.Error().Err(err).Str("database", db.Name()).Msg("Failed to read database stats")
			continue
		}
		stats[db.Name()] = map[string]interface{}{
			"size_bytes":     s.SizeBytes,
			"wal_size_bytes": s.WALSizeBytes,
			"page_count":     s.PageCount,
			"page_size":      s.PageSize,
			"freelist_count": s.FreelistCount,
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": stats})
}

// HandleJobsStatus handles GET /api/system/jobs: every registered job with
// its recent run history.
func (h *SystemHandlers) HandleJobsStatus(w http.ResponseWriter, r *http.Request) {
	jobs := make(map[string]interface{})
	for _, name := range h.scheduler.JobNames() {
		runs, err := h.jobHistory.Recent(r.Context(), name, 5)
		if err != nil {
			h.log.Error().Err(err).Str("job", name).Msg("Failed to read job history")
			continue
		}
		jobs[name] = runs
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": jobs})
}

// HandleTriggerJob handles POST /api/system/jobs/{name}: runs a registered
// job outside its schedule.
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.scheduler.RunNow(r.Context(), name); err != nil {
		h.log.Warn().Err(err).Str("job", name).Msg("Manual job trigger failed")
		h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": map[string]interface{}{"message": err.Error()},
		})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{"job": name, "status": "completed"},
	})
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
