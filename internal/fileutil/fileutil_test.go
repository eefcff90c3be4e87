package fileutil

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"voxtape/internal/testsupport"
)

func TestCopyVerified(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "rec.ogg.data")
	dst := filepath.Join(dir, "out", "rec.ogg.data")
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		t.Fatal(err)
	}

	content := []byte("OggS page bytes")
	if err := os.WriteFile(src, content, 0o640); err != nil {
		t.Fatal(err)
	}

	n, err := CopyVerified(src, dst)
	if err != nil {
		t.Fatalf("CopyVerified: %v", err)
	}
	if n != int64(len(content)) {
		t.Fatalf("copied %d bytes, want %d", n, len(content))
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(content) {
		t.Fatalf("content mismatch: got %q", got)
	}

	entries, err := os.ReadDir(filepath.Dir(dst))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the destination file, found %d entries", len(entries))
	}
}

func TestCopyVerifiedRefusesExisting(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	if err := os.WriteFile(src, []byte("new"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dst, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := CopyVerified(src, dst); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	got, _ := os.ReadFile(dst)
	if string(got) != "old" {
		t.Fatalf("destination overwritten: %q", got)
	}
}

func TestCopyVerifiedMissingSource(t *testing.T) {
	dir := t.TempDir()
	if _, err := CopyVerified(filepath.Join(dir, "absent"), filepath.Join(dir, "dst")); err == nil {
		t.Fatal("expected error for missing source")
	}
	if _, err := os.Stat(filepath.Join(dir, "dst")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("destination should not exist: %v", err)
	}
}

func TestCopyVerifiedMultiChunk(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "big.ogg.data")
	want := testsupport.WriteSizedFile(t, src, 3*32*1024+17)
	dst := filepath.Join(dir, "copy.ogg.data")

	n, err := CopyVerified(src, dst)
	if err != nil {
		t.Fatalf("CopyVerified: %v", err)
	}
	if n != int64(len(want)) {
		t.Fatalf("copied %d bytes, want %d", n, len(want))
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Fatal("copied content differs from source")
	}
}
