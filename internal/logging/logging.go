// Package logging sets up structured logging for the pgbr binary. The rest
// of the ambient stack generally reaches for the teacher's plain stdlib
// log.Printf idiom, but the pipeline's structured, high-volume per-filter
// and per-stage diagnostics (pump-step counts, codec boundaries, block map
// decisions) are better served by leveled, structured fields, so this
// package wires in zap the way the wider retrieval pack does for the same
// job.
package logging

import (
	"go.uber.org/zap"
)

// New builds the process logger. Production builds log JSON at info level;
// IN_CONTAINER=false (local/dev) gets the human-readable development
// encoder instead, mirroring the teacher's IN_CONTAINER checks elsewhere
// in its CLI (internal/server/cli.go).
func New(inContainer bool) (*zap.Logger, error) {
	if inContainer {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// Sync flushes any buffered log entries; callers defer this right after
// New, same shape as the teacher's deferred os.Stdout.Sync() calls.
func Sync(logger *zap.Logger) {
	_ = logger.Sync()
}
