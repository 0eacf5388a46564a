package server

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/nvasko/cardsentry/internal/database"
)

// SystemHandlers serves system monitoring endpoints.
type SystemHandlers struct {
	log          zerolog.Logger
	dataDir      string
	cardsDB      *database.DB
	clientDataDB *database.DB
}

// NewSystemHandlers creates system handlers.
func NewSystemHandlers(log zerolog.Logger, dataDir string, cardsDB, clientDataDB *database.DB) *SystemHandlers {
	return &SystemHandlers{
		log:          log.With().Str("handlers", "system").Logger(),
		dataDir:      dataDir,
		cardsDB:      cardsDB,
		clientDataDB: clientDataDB,
	}
}

// systemStatusResponse is the system status payload.
type systemStatusResponse struct {
	CPUPercent  float64           `json:"cpu_percent"`
	RAMPercent  float64           `json:"ram_percent"`
	DataSizeMB  float64           `json:"data_size_mb"`
	Databases   map[string]string `json:"databases"`
	TableCounts map[string]int64  `json:"table_counts"`
	Uptime      string            `json:"uptime"`
}

var processStart = time.Now()

// HandleSystemStatus returns host and database health.
// GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuAvg, ramPercent := h.systemStats()

	databases := make(map[string]string)
	for _, db := range []*database.DB{h.cardsDB, h.clientDataDB} {
		if err := db.HealthCheck(r.Context()); err != nil {
			databases[db.Name()] = "unhealthy"
		} else {
			databases[db.Name()] = "healthy"
		}
	}

	response := systemStatusResponse{
		CPUPercent:  cpuAvg,
		RAMPercent:  ramPercent,
		DataSizeMB:  h.dirSize(h.dataDir),
		Databases:   databases,
		TableCounts: h.tableCounts(),
		Uptime:      time.Since(processStart).Round(time.Second).String(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// tableCounts reports row counts for the main tables.
func (h *SystemHandlers) tableCounts() map[string]int64 {
	counts := make(map[string]int64)
	for _, table := range []string{"accounts", "transactions", "billing_cycles"} {
		var n int64
		if err := h.cardsDB.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
			h.log.Warn().Err(err).Str("table", table).Msg("Failed to count rows")
			continue
		}
		counts[table] = n
	}
	return counts
}

// systemStats calculates CPU and RAM usage percentages.
// Uses a short sampling interval (100ms) so the API call stays responsive.
func (h *SystemHandlers) systemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

// dirSize calculates total size of a directory in MB.
func (h *SystemHandlers) dirSize(dirPath string) float64 {
	var totalSize int64

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})
	if err != nil {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}
