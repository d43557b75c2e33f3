package domain

import "time"

// LogLevel is the severity of a LogEntry. The three levels for which
// Urgent reports true trigger an immediate flush-all in C7.
type LogLevel string

const (
	LogDebug    LogLevel = "debug"
	LogInfo     LogLevel = "info"
	LogWarning  LogLevel = "warning"
	LogError    LogLevel = "error"
	LogCritical LogLevel = "critical"
)

// Urgent reports whether this level forces an immediate flush-all across
// all buffered tasks, per §4.7.
func (l LogLevel) Urgent() bool {
	return l == LogWarning || l == LogError || l == LogCritical
}

// LogEntry is one append-only record in the stage-log stream.
type LogEntry struct {
	LogID     string         `json:"log_id"`
	Ordinal   int64          `json:"ordinal"` // monotonic storage ordinal for incremental tail reads
	TaskID    string         `json:"task_id"`
	FactorID  string         `json:"factor_id"`
	Level     LogLevel       `json:"level"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Stage     int            `json:"stage"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
