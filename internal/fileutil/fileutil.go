// Package fileutil copies recording files with integrity checks.
package fileutil

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrExists is returned when the copy destination already exists.
var ErrExists = errors.New("destination already exists")

// CopyVerified copies src to dst through a temporary file in dst's directory
// and links it into place once the temporary file reads back with the same
// SHA-256 as the bytes taken from src.
// An existing dst is never replaced. It returns the number of bytes copied.
func CopyVerified(src, dst string) (int64, error) {
	if _, err := os.Lstat(dst); err == nil {
		return 0, fmt.Errorf("%s: %w", dst, ErrExists)
	} else if !errors.Is(err, os.ErrNotExist) {
		return 0, err
	}

	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat source: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return 0, err
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	srcHash := sha256.New()
	written, err := io.Copy(tmp, io.TeeReader(in, srcHash))
	if err != nil {
		return 0, err
	}
	if err := tmp.Sync(); err != nil {
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}

	// The source may still be growing; only the bytes read are compared.
	if written < info.Size() {
		return 0, fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", info.Size(), written)
	}
	dstSum, err := fileSum(tmpPath)
	if err != nil {
		return 0, err
	}
	if !bytes.Equal(srcHash.Sum(nil), dstSum) {
		return 0, fmt.Errorf("copy hash mismatch for %s", src)
	}
	if err := os.Chmod(tmpPath, info.Mode().Perm()); err != nil {
		return 0, err
	}
	if err := os.Link(tmpPath, dst); err != nil {
		if errors.Is(err, os.ErrExist) {
			return 0, fmt.Errorf("%s: %w", dst, ErrExists)
		}
		return 0, err
	}
	committed = true
	_ = os.Remove(tmpPath)
	return written, nil
}

func fileSum(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}
