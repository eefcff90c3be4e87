package services

import "context"

type contextKey string

const (
	recordingIDKey contextKey = "recording_id"
	trackKey       contextKey = "track"
	componentKey   contextKey = "component"
	requestIDKey   contextKey = "request_id"
)

// WithRecordingID annotates context with the recording identifier.
func WithRecordingID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, recordingIDKey, id)
}

// RecordingIDFromContext extracts the recording identifier if present.
func RecordingIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(recordingIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithTrack annotates context with a track number.
func WithTrack(ctx context.Context, track uint32) context.Context {
	return context.WithValue(ctx, trackKey, track)
}

// TrackFromContext extracts the track number if present.
func TrackFromContext(ctx context.Context) (uint32, bool) {
	v := ctx.Value(trackKey)
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case uint32:
		return val, true
	case int:
		if val < 0 {
			return 0, false
		}
		return uint32(val), true
	default:
		return 0, false
	}
}

// WithComponent annotates context with the emitting component name.
func WithComponent(ctx context.Context, component string) context.Context {
	if component == "" {
		return ctx
	}
	return context.WithValue(ctx, componentKey, component)
}

// ComponentFromContext returns the component name if present.
func ComponentFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(componentKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
