package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"voxtape/internal/config"
	"voxtape/internal/notifications"
)

type captured struct {
	calls    int
	title    string
	tags     string
	priority string
	body     string
}

func newNtfyServer(t *testing.T, status int) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		c.calls++
		c.title = r.Header.Get("Title")
		c.tags = r.Header.Get("Tags")
		c.priority = r.Header.Get("Priority")
		body, _ := io.ReadAll(r.Body)
		c.body = string(body)
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server, c
}

func configFor(url string) *config.Config {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = url
	cfg.Notifications.RequestTimeout = 5
	cfg.Notifications.Started = true
	return &cfg
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyError(context.Background(), errors.New("boom"), "capture"); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		send           func(notifications.Service) error
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name: "recording started",
			send: func(s notifications.Service) error {
				return s.NotifyRecordingStarted(context.Background(), notifications.Started{
					ID: "0b5f1e9a-6c1e-4f7e-9a53-6f1d2b7c8e90", ChannelID: "general", Automatic: true,
				})
			},
			expectTitle:   "voxtape - Recording Started",
			expectMessage: "🎙️ Recording 0b5f1e9a started in general (automatic)",
			expectTags:    "voxtape,recording,started",
		},
		{
			name: "recording finished",
			send: func(s notifications.Service) error {
				return s.NotifyRecordingFinished(context.Background(), notifications.Finished{
					ID: "rec", Reason: "stopped by request", Duration: 90*time.Minute + 400*time.Millisecond,
					BytesWritten: 3 << 20, Tracks: 4, Notes: 2,
				})
			},
			expectTitle:   "voxtape - Recording Finished",
			expectMessage: "📼 Recording rec finished after 1h30m0s\n3.0 MiB, 4 tracks, 2 notes\nReason: stopped by request",
			expectTags:    "voxtape,recording,finished",
		},
		{
			name: "recording finished with errors",
			send: func(s notifications.Service) error {
				return s.NotifyRecordingFinished(context.Background(), notifications.Finished{ID: "rec", Errored: true})
			},
			expectTitle:    "voxtape - Recording Finished (with errors)",
			expectMessage:  "📼 Recording rec finished after 0s\n0 B, 0 tracks, 0 notes",
			expectTags:     "voxtape,recording,finished",
			expectPriority: "high",
		},
		{
			name: "error",
			send: func(s notifications.Service) error {
				return s.NotifyError(context.Background(), errors.New("voice connection lost"), "capture")
			},
			expectTitle:    "voxtape - Error",
			expectMessage:  "❌ Error with capture: voice connection lost",
			expectTags:     "voxtape,error,alert",
			expectPriority: "high",
		},
		{
			name:           "test",
			send:           func(s notifications.Service) error { return s.TestNotification(context.Background()) },
			expectTitle:    "voxtape - Test",
			expectMessage:  "🧪 Notification system test",
			expectTags:     "voxtape,test",
			expectPriority: "low",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server, got := newNtfyServer(t, http.StatusOK)
			svc := notifications.NewService(configFor(server.URL))
			if err := tc.send(svc); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}
			if got.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, got.title)
			}
			if got.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, got.body)
			}
			if got.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, got.tags)
			}
			if got.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, got.priority)
			}
		})
	}
}

func TestNtfyServiceHonorsToggles(t *testing.T) {
	server, got := newNtfyServer(t, http.StatusOK)
	cfg := configFor(server.URL)
	cfg.Notifications.Started = false
	cfg.Notifications.Finished = false
	cfg.Notifications.Errors = false
	svc := notifications.NewService(cfg)

	ctx := context.Background()
	_ = svc.NotifyRecordingStarted(ctx, notifications.Started{ID: "a"})
	_ = svc.NotifyRecordingFinished(ctx, notifications.Finished{ID: "a"})
	_ = svc.NotifyError(ctx, errors.New("x"), "")
	if got.calls != 0 {
		t.Fatalf("suppressed events sent %d requests", got.calls)
	}
	if err := svc.TestNotification(ctx); err != nil || got.calls != 1 {
		t.Fatalf("test notification = %v, calls %d", err, got.calls)
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	server, _ := newNtfyServer(t, http.StatusForbidden)
	svc := notifications.NewService(configFor(server.URL))
	err := svc.TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "ntfy returned 403") {
		t.Fatalf("expected status error, got %v", err)
	}
}
