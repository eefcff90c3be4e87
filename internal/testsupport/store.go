package testsupport

import (
	"context"
	"testing"

	"voxtape/internal/config"
	"voxtape/internal/recordstore"
)

// MustOpenStore opens a recordstore.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *recordstore.Store {
	t.Helper()

	store, err := recordstore.Open(cfg)
	if err != nil {
		t.Fatalf("recordstore.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// NewRecording inserts a recording row in the recording state.
func NewRecording(t testing.TB, store *recordstore.Store, id string) *recordstore.Recording {
	t.Helper()

	rec := &recordstore.Recording{
		ID:            id,
		GuildID:       "guild-" + id,
		ChannelID:     "channel-" + id,
		RequesterID:   "requester",
		AccessKey:     "access-" + id,
		DeleteKey:     "delete-" + id,
		IngestKey:     "ingest-" + id,
		RecordingsDir: "/tmp/recordings",
	}
	if err := store.Create(context.Background(), rec); err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return rec
}
