package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"voxtape/internal/config"
)

const userAgent = "voxtape/0.1.0"

// Service defines the notification surface used by the daemon.
type Service interface {
	NotifyRecordingStarted(ctx context.Context, rec Started) error
	NotifyRecordingFinished(ctx context.Context, rec Finished) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// Started describes a recording that just began.
type Started struct {
	ID        string
	ChannelID string
	Automatic bool
}

// Finished describes a recording that just ended.
type Finished struct {
	ID           string
	Reason       string
	Duration     time.Duration
	BytesWritten int64
	Tracks       int
	Notes        int
	Errored      bool
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		started:  cfg.Notifications.Started,
		finished: cfg.Notifications.Finished,
		errors:   cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client

	started  bool
	finished bool
	errors   bool
}

func (n *ntfyService) NotifyRecordingStarted(ctx context.Context, rec Started) error {
	if !n.started {
		return nil
	}
	message := fmt.Sprintf("🎙️ Recording %s started", shortID(rec.ID))
	if channel := strings.TrimSpace(rec.ChannelID); channel != "" {
		message += " in " + channel
	}
	if rec.Automatic {
		message += " (automatic)"
	}
	return n.send(ctx, payload{
		title:   "voxtape - Recording Started",
		message: message,
		tags:    []string{"voxtape", "recording", "started"},
	})
}

func (n *ntfyService) NotifyRecordingFinished(ctx context.Context, rec Finished) error {
	if !n.finished {
		return nil
	}
	duration := rec.Duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	bytes := rec.BytesWritten
	if bytes < 0 {
		bytes = 0
	}

	var builder strings.Builder
	fmt.Fprintf(&builder, "📼 Recording %s finished after %s", shortID(rec.ID), duration)
	fmt.Fprintf(&builder, "\n%s, %d tracks, %d notes", humanize.IBytes(uint64(bytes)), rec.Tracks, rec.Notes)
	if reason := strings.TrimSpace(rec.Reason); reason != "" {
		builder.WriteString("\nReason: ")
		builder.WriteString(reason)
	}

	data := payload{
		title:   "voxtape - Recording Finished",
		message: builder.String(),
		tags:    []string{"voxtape", "recording", "finished"},
	}
	if rec.Errored {
		data.title = "voxtape - Recording Finished (with errors)"
		data.priority = "high"
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("❌ Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	return n.send(ctx, payload{
		title:    "voxtape - Error",
		message:  builder.String(),
		tags:     []string{"voxtape", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "voxtape - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"voxtape", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// shortID trims a uuid to its first group for display.
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}

type noopService struct{}

func (noopService) NotifyRecordingStarted(context.Context, Started) error   { return nil }
func (noopService) NotifyRecordingFinished(context.Context, Finished) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error        { return nil }
func (noopService) TestNotification(context.Context) error                  { return nil }
