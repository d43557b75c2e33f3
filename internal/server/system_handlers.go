package server

import (
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// handleHealth reports process health: liveness plus CPU/RAM usage, so an
// operator or orchestrator can distinguish "up" from "up but starved."
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := s.systemStats()
	s.writeOK(w, map[string]any{
		"status":      "healthy",
		"cpu_percent": cpuPercent,
		"mem_percent": memPercent,
	})
}

// systemStats samples CPU over a short window (100ms) to keep the health
// endpoint fast, and reads memory instantly.
func (s *Server) systemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to read cpu percent")
		cpuPercent = []float64{0}
	}
	memStat, err := mem.VirtualMemory()
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to read memory stats")
		return cpuAvg(cpuPercent), 0
	}
	return cpuAvg(cpuPercent), memStat.UsedPercent
}

func cpuAvg(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	return samples[0]
}
