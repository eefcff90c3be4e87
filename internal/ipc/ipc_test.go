package ipc_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"voxtape/internal/daemon"
	"voxtape/internal/ipc"
	"voxtape/internal/logging"
	"voxtape/internal/testsupport"
)

func newServer(t *testing.T, opts ...ipc.ServerOption) (*daemon.Daemon, *ipc.Client) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	d, err := daemon.New(cfg, store, logger, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon Start: %v", err)
	}

	srv, err := ipc.NewServer(ctx, cfg.SocketPath(), d, logger, opts...)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	client, err := ipc.Dial(cfg.SocketPath())
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})
	return d, client
}

func TestIPCRecordingRoundTrip(t *testing.T) {
	_, client := newServer(t)

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running || status.PID == 0 {
		t.Fatalf("unexpected status %+v", status)
	}

	started, err := client.StartRecording(ipc.StartRecordingRequest{ChannelID: "c1", RequesterID: "u1"})
	if err != nil {
		t.Fatalf("StartRecording RPC failed: %v", err)
	}
	id := started.Recording.ID
	if id == "" || started.Recording.IngestKey == "" {
		t.Fatalf("unexpected start response %+v", started.Recording)
	}

	status, err = client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if len(status.Active) != 1 || status.Active[0].ID != id {
		t.Fatalf("active = %+v", status.Active)
	}
	if status.Stats["recording"] != 1 {
		t.Fatalf("stats = %v", status.Stats)
	}

	if resp, err := client.Note(id, "first segment"); err != nil || !resp.Accepted {
		t.Fatalf("Note RPC = %+v, %v", resp, err)
	}
	if _, err := client.Note("missing", "x"); err == nil {
		t.Fatal("expected note on unknown recording to fail")
	}

	if resp, err := client.StopRecording(id, "u1"); err != nil || !resp.Stopped {
		t.Fatalf("StopRecording RPC = %+v, %v", resp, err)
	}

	list, err := client.ListRecordings([]string{"ended"})
	if err != nil {
		t.Fatalf("ListRecordings RPC failed: %v", err)
	}
	if len(list.Recordings) != 1 || list.Recordings[0].ID != id {
		t.Fatalf("recordings = %+v", list.Recordings)
	}
	if list.Recordings[0].IngestKey != "" {
		t.Fatal("list should not carry keys")
	}
	if _, err := client.ListRecordings([]string{"sideways"}); err == nil {
		t.Fatal("expected unknown status to fail")
	}

	shown, err := client.ShowRecording(id)
	if err != nil {
		t.Fatalf("ShowRecording RPC failed: %v", err)
	}
	if shown.Recording.IngestKey != started.Recording.IngestKey || shown.Recording.Notes != 1 {
		t.Fatalf("shown = %+v", shown.Recording)
	}
	if _, err := client.ShowRecording("missing"); err == nil {
		t.Fatal("expected unknown recording to fail")
	}

	health, err := client.DatabaseHealth()
	if err != nil {
		t.Fatalf("DatabaseHealth RPC failed: %v", err)
	}
	if !health.DatabaseReadable || health.TotalRecordings != 1 {
		t.Fatalf("health = %+v", health)
	}

	notify, err := client.TestNotification()
	if err != nil {
		t.Fatalf("TestNotification RPC failed: %v", err)
	}
	if notify.Sent {
		t.Fatal("notification reported sent without a topic")
	}
}

func TestIPCShutdown(t *testing.T) {
	called := make(chan struct{})
	_, client := newServer(t, ipc.WithShutdown(func() { close(called) }))

	resp, err := client.Shutdown()
	if err != nil {
		t.Fatalf("Shutdown RPC failed: %v", err)
	}
	if !resp.Accepted {
		t.Fatal("expected shutdown to be accepted")
	}
	select {
	case <-called:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown hook not invoked")
	}
}
