package logging

import (
	"context"
	"log/slog"

	"voxtape/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldRecordingID is the standardized structured logging key for recording identifiers.
	FieldRecordingID = "recording_id"
	// FieldTrack is the standardized structured logging key for track numbers.
	FieldTrack = "track"
	// FieldSpeaker is the standardized structured logging key for transport speaker identifiers.
	FieldSpeaker = "speaker_id"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType classifies a log line for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint carries the suggested next step for an operator.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.RecordingIDFromContext(ctx); ok {
		fields = append(fields, RecordingID(id))
	}
	if track, ok := services.TrackFromContext(ctx); ok {
		fields = append(fields, Track(track))
	}
	if component, ok := services.ComponentFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldComponent, component))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
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
	return logger.With(Args(fields...)...)
}
