package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"voxtape/internal/bridge"
	"voxtape/internal/config"
	"voxtape/internal/logging"
	"voxtape/internal/recordstore"
	"voxtape/internal/services"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

// RecordingView is the API representation of a persisted recording. Keys
// are never exposed over HTTP.
type RecordingView struct {
	ID           string     `json:"id"`
	GuildID      string     `json:"guild_id,omitempty"`
	ChannelID    string     `json:"channel_id,omitempty"`
	RequesterID  string     `json:"requester_id,omitempty"`
	Status       string     `json:"status"`
	Reason       string     `json:"reason,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	Automatic    bool       `json:"automatic"`
	UsedBridge   bool       `json:"used_bridge"`
	Errored      bool       `json:"errored"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	DurationMS   int64      `json:"duration_ms"`
	BytesWritten int64      `json:"bytes_written"`
	Tracks       int        `json:"tracks"`
	Notes        int        `json:"notes"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// NewRecordingView converts a stored recording.
func NewRecordingView(rec *recordstore.Recording) RecordingView {
	return RecordingView{
		ID:           rec.ID,
		GuildID:      rec.GuildID,
		ChannelID:    rec.ChannelID,
		RequesterID:  rec.RequesterID,
		Status:       string(rec.Status),
		Reason:       rec.Reason,
		ErrorMessage: rec.ErrorMessage,
		Automatic:    rec.Automatic,
		UsedBridge:   rec.UsedBridge,
		Errored:      rec.Errored,
		StartedAt:    rec.StartedAt,
		EndedAt:      rec.EndedAt,
		DurationMS:   rec.Duration.Milliseconds(),
		BytesWritten: rec.BytesWritten,
		Tracks:       rec.TrackCount,
		Notes:        rec.NoteCount,
		ExpiresAt:    rec.ExpiresAt,
	}
}

type recordingListResponse struct {
	Recordings []RecordingView `json:"recordings"`
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}
	srv.server = &http.Server{
		Handler:           srv.routes(cfg),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) routes(cfg *config.Config) http.Handler {
	token := strings.TrimSpace(cfg.Paths.APIToken)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", requireToken(token, s.handleStatus))
	mux.HandleFunc("GET /api/recordings", requireToken(token, s.handleRecordings))
	mux.HandleFunc("GET /api/recordings/{id}", s.requireTokenOrAccessKey(token, s.handleRecording))
	if cfg.Bridge.Enabled {
		// Peers authenticate with the recording's ingest key instead.
		mux.Handle("GET /bridge/{id}", bridge.NewServer(s.daemon.Bridges(), cfg.Bridge.MaxMessageBytes, s.logger))
	}
	return mux
}

func (s *apiServer) start(ctx context.Context, group *errgroup.Group) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	group.Go(func() error {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
		return nil
	})

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
}

func (s *apiServer) address() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handleRecordings(w http.ResponseWriter, r *http.Request) {
	var statuses []recordstore.Status
	for _, value := range r.URL.Query()["status"] {
		if strings.TrimSpace(value) == "" {
			continue
		}
		status, ok := recordstore.ParseStatus(value)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", value))
			return
		}
		statuses = append(statuses, status)
	}

	recs, err := s.daemon.ListRecordings(r.Context(), statuses)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	views := make([]RecordingView, 0, len(recs))
	for _, rec := range recs {
		views = append(views, NewRecordingView(rec))
	}
	s.writeJSON(w, http.StatusOK, recordingListResponse{Recordings: views})
}

func (s *apiServer) handleRecording(w http.ResponseWriter, r *http.Request) {
	rec, err := s.daemon.Recording(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, services.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "recording not found")
		return
	case errors.Is(err, services.ErrValidation):
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, NewRecordingView(rec))
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
