package services_test

import (
	"errors"
	"strings"
	"testing"

	"voxtape/internal/recordstore"
	"voxtape/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrConnection, "capture", "connect", "join failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrConnection) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"capture", "connect", "join failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected placeholder detail, got %q", err.Error())
	}
}

func TestFailureStatusMapping(t *testing.T) {
	capacityErr := services.Wrap(services.ErrCapacity, "capture", "write", "size limit reached", nil)
	if status := services.FailureStatus(capacityErr); status != recordstore.StatusEnded {
		t.Fatalf("expected ended for capacity stop, got %s", status)
	}

	connErr := services.Wrap(services.ErrConnection, "capture", "reconnect", "gave up", errors.New("io"))
	if status := services.FailureStatus(connErr); status != recordstore.StatusFailed {
		t.Fatalf("expected failed for connection error, got %s", status)
	}

	if status := services.FailureStatus(nil); status != recordstore.StatusFailed {
		t.Fatalf("expected failed for nil error, got %s", status)
	}
}
