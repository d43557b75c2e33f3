package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/factorlab/internal/domain"
	"github.com/aristath/factorlab/internal/errs"
	"github.com/go-chi/chi/v5"
)

// handleRunFactor implements GET run_factor(factor_id) -> {task_id, status}.
// Scheduling happens off the request path; this returns as soon as
// admission succeeds.
func (s *Server) handleRunFactor(w http.ResponseWriter, r *http.Request) {
	factorID := chi.URLParam(r, "factor_id")
	taskID, err := s.runner.Run(r.Context(), factorID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeOK(w, map[string]any{"task_id": taskID, "status": domain.StageAccepted})
}

// handleQueryTaskStatus implements GET query_task_status(task_id).
func (s *Server) handleQueryTaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	t, err := s.tasks.Get(r.Context(), taskID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if t == nil {
		s.writeError(w, errs.DataAvailability("task %s not found", taskID))
		return
	}
	s.writeOK(w, map[string]any{
		"status":           t.Status,
		"process_status":   t.ProcessStatus,
		"current_stage":    t.CurrentStage,
		"error_message":    t.ErrorMessage,
		"last_log_message": t.LastLogMessage,
		"last_log_time":    t.LastLogTime,
		"last_log_level":   t.LastLogLevel,
		"start_time":       t.StartTime,
		"end_time":         t.EndTime,
	})
}

// logLine is one entry in task_logs' logs array.
type logLine struct {
	Message   string    `json:"message"`
	LogLevel  string    `json:"loglevel"`
	Timestamp time.Time `json:"timestamp"`
}

// handleTaskLogs implements GET task_logs(task_id, last_log_id?) -> incremental tail.
func (s *Server) handleTaskLogs(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	var after int64
	if v := r.URL.Query().Get("last_log_id"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.writeError(w, errs.Validation("last_log_id must be an integer: %v", err))
			return
		}
		after = n
	}

	entries, maxOrdinal, err := s.logs.Tail(r.Context(), taskID, after)
	if err != nil {
		s.writeError(w, err)
		return
	}
	logs := make([]logLine, 0, len(entries))
	for _, e := range entries {
		logs = append(logs, logLine{Message: e.Message, LogLevel: string(e.Level), Timestamp: e.Timestamp})
	}
	s.writeOK(w, map[string]any{"logs": logs, "last_log_id": maxOrdinal})
}
