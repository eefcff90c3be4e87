package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"voxtape/internal/daemon"
	"voxtape/internal/logging"
	"voxtape/internal/recordstore"
)

const stopTimeout = 30 * time.Second

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ServerOption customizes a Server.
type ServerOption func(*service)

// WithShutdown sets the function the Shutdown method invokes. Without it
// Shutdown only stops the daemon.
func WithShutdown(fn func()) ServerOption {
	return func(s *service) {
		s.shutdown = fn
	}
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger, opts ...ServerOption) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	for _, opt := range opts {
		opt(srv)
	}
	if err := rpcServer.RegisterName(ServiceName, srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually"))
	}
}

type service struct {
	daemon   *daemon.Daemon
	logger   *slog.Logger
	ctx      context.Context
	shutdown func()
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String(logging.FieldComponent, "ipc"))
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.DatabasePath = status.DatabasePath
	resp.LockPath = status.LockFilePath
	resp.APIAddress = status.APIAddress
	resp.FreeBytes = status.FreeBytes
	resp.Active = status.Active
	resp.Stats = make(map[string]int, len(status.Stats))
	for k, v := range status.Stats {
		resp.Stats[string(k)] = v
	}
	return nil
}

func (s *service) StartRecording(req StartRecordingRequest, resp *StartRecordingResponse) error {
	s.log().Debug("recording start requested", logging.String("channel_id", req.ChannelID))
	res, err := s.daemon.StartRecording(s.ctx, daemon.StartRequest{
		GuildID:     req.GuildID,
		ChannelID:   req.ChannelID,
		RequesterID: req.RequesterID,
		Automatic:   req.Automatic,
	})
	if err != nil {
		return err
	}
	resp.Recording = *res
	s.log().Info("recording started via IPC",
		logging.String(logging.FieldEventType, "ipc_recording_start"),
		logging.RecordingID(res.ID))
	return nil
}

func (s *service) StopRecording(req StopRecordingRequest, resp *StopRecordingResponse) error {
	ctx, cancel := context.WithTimeout(s.ctx, stopTimeout)
	defer cancel()
	if err := s.daemon.StopRecording(ctx, req.ID, req.ActorID); err != nil {
		return err
	}
	resp.Stopped = true
	s.log().Info("recording stopped via IPC",
		logging.String(logging.FieldEventType, "ipc_recording_stop"),
		logging.RecordingID(req.ID))
	return nil
}

func (s *service) Note(req NoteRequest, resp *NoteResponse) error {
	if err := s.daemon.Note(s.ctx, req.ID, req.Text); err != nil {
		return err
	}
	resp.Accepted = true
	return nil
}

func (s *service) ListRecordings(req ListRecordingsRequest, resp *ListRecordingsResponse) error {
	statuses := make([]recordstore.Status, 0, len(req.Statuses))
	for _, value := range req.Statuses {
		parsed, ok := recordstore.ParseStatus(value)
		if !ok {
			return fmt.Errorf("unknown status %q", value)
		}
		statuses = append(statuses, parsed)
	}
	recs, err := s.daemon.ListRecordings(s.ctx, statuses)
	if err != nil {
		return err
	}
	resp.Recordings = make([]Recording, 0, len(recs))
	for _, rec := range recs {
		if rec == nil {
			continue
		}
		resp.Recordings = append(resp.Recordings, Recording{RecordingView: daemon.NewRecordingView(rec)})
	}
	return nil
}

func (s *service) ShowRecording(req ShowRecordingRequest, resp *ShowRecordingResponse) error {
	rec, err := s.daemon.Recording(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Recording = Recording{
		RecordingView: daemon.NewRecordingView(rec),
		AccessKey:     rec.AccessKey,
		DeleteKey:     rec.DeleteKey,
		IngestKey:     rec.IngestKey,
		RecordingsDir: rec.RecordingsDir,
	}
	return nil
}

func (s *service) Shutdown(_ ShutdownRequest, resp *ShutdownResponse) error {
	s.log().Info("daemon shutdown requested via IPC",
		logging.String(logging.FieldEventType, "ipc_shutdown"))
	resp.Accepted = true
	// Reply before tearing down so the caller is not cut off mid-response.
	go func() {
		if s.shutdown != nil {
			s.shutdown()
			return
		}
		s.daemon.Stop()
	}()
	return nil
}

func (s *service) DatabaseHealth(_ DatabaseHealthRequest, resp *DatabaseHealthResponse) error {
	health, err := s.daemon.DatabaseHealth(s.ctx)
	if err != nil && health.Error == "" {
		return err
	}
	resp.DBPath = health.DBPath
	resp.DatabaseExists = health.DatabaseExists
	resp.DatabaseReadable = health.DatabaseReadable
	resp.SchemaVersion = health.SchemaVersion
	resp.TableExists = health.TableExists
	resp.MissingColumns = append(resp.MissingColumns, health.MissingColumns...)
	resp.IntegrityCheck = health.IntegrityCheck
	resp.TotalRecordings = health.TotalRecordings
	resp.Error = health.Error
	return err
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
