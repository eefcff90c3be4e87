package services

import (
	"errors"
	"fmt"
	"strings"

	"voxtape/internal/recordstore"
)

var (
	ErrConnection     = errors.New("connection error")
	ErrProtocol       = errors.New("protocol error")
	ErrCapacity       = errors.New("capacity reached")
	ErrDataCorruption = errors.New("data corruption")
	ErrValidation     = errors.New("validation error")
	ErrConfiguration  = errors.New("configuration error")
	ErrNotFound       = errors.New("not found")
	ErrTransient      = errors.New("transient failure")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later status classification. The marker
// should be one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureStatus maps the error that terminated a recording to the status
// persisted for it. Capacity stops are orderly and keep the recording usable.
func FailureStatus(err error) recordstore.Status {
	switch {
	case errors.Is(err, ErrCapacity):
		return recordstore.StatusEnded
	default:
		return recordstore.StatusFailed
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
