package utils

import (
	"time"

	"github.com/rs/zerolog"
)

// OperationTimer returns a defer-friendly stop function that logs how long
// the named operation took, warning if it ran past 30s.
//
// Usage:
//
//	defer utils.OperationTimer("task_execute", log)()
func OperationTimer(operation string, log zerolog.Logger) func() {
	start := time.Now()

	return func() {
		duration := time.Since(start)

		log.Debug().
			Str("operation", operation).
			Dur("duration", duration).
			Msg("operation completed")

		if duration > 30*time.Second {
			log.Warn().
				Str("operation", operation).
				Dur("duration", duration).
				Msg("slow operation")
		}
	}
}
