package logging

import (
	"context"
	"log/slog"

	"github.com/eng540/Falsniper/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldWorker is the standardized structured logging key for worker names.
	FieldWorker = "worker"
	// FieldRole is the standardized structured logging key for worker roles (scout/attacker).
	FieldRole = "role"
	// FieldRunID is the standardized structured logging key for hunt run identifiers.
	FieldRunID = "run_id"
	// FieldMode is the standardized structured logging key for schedule modes (patrol/warmup/attack).
	FieldMode = "mode"
	// FieldAttempt is the standardized structured logging key for attempt counters.
	FieldAttempt = "attempt"
	// FieldOutcome is the standardized structured logging key for submit outcome classifications.
	FieldOutcome = "outcome"
	// FieldDayURL is the standardized structured logging key for discovered bookable day links.
	FieldDayURL = "day_url"
	// FieldHealth is the standardized structured logging key for session health scores.
	FieldHealth = "health"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if worker, ok := services.WorkerFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldWorker, worker))
	}
	if role, ok := services.RoleFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRole, role))
	}
	if id, ok := services.RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, id))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
