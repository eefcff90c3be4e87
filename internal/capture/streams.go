package capture

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// StreamKind names one of the five sibling output files of a recording.
type StreamKind int

const (
	StreamData StreamKind = iota
	StreamHeader1
	StreamHeader2
	StreamUsers
	StreamLog
)

// AllStreams lists every stream kind in file-creation order.
var AllStreams = []StreamKind{StreamData, StreamHeader1, StreamHeader2, StreamUsers, StreamLog}

// Suffix returns the file suffix for the stream.
func (k StreamKind) Suffix() string {
	switch k {
	case StreamData:
		return ".ogg.data"
	case StreamHeader1:
		return ".ogg.header1"
	case StreamHeader2:
		return ".ogg.header2"
	case StreamUsers:
		return ".ogg.users"
	case StreamLog:
		return ".ogg.log"
	default:
		return ".ogg.unknown"
	}
}

// StreamPath returns the on-disk location of one stream of a recording.
func StreamPath(dir, id string, kind StreamKind) string {
	return filepath.Join(dir, id+kind.Suffix())
}

// Streams holds the five output streams of one recording. The write queue is
// their only writer.
type Streams struct {
	Data    io.WriteCloser
	Header1 io.WriteCloser
	Header2 io.WriteCloser
	Users   io.WriteCloser
	Log     io.WriteCloser
}

func (s Streams) byKind(kind StreamKind) io.WriteCloser {
	switch kind {
	case StreamData:
		return s.Data
	case StreamHeader1:
		return s.Header1
	case StreamHeader2:
		return s.Header2
	case StreamUsers:
		return s.Users
	case StreamLog:
		return s.Log
	default:
		return nil
	}
}

// Close closes every stream and joins their errors.
func (s Streams) Close() error {
	var errs []error
	for _, kind := range AllStreams {
		if w := s.byKind(kind); w != nil {
			if err := w.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", kind.Suffix(), err))
			}
		}
	}
	return errors.Join(errs...)
}

// OpenFileStreams creates the five stream files for a recording. Existing
// files are never overwritten.
func OpenFileStreams(dir, id string) (Streams, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Streams{}, fmt.Errorf("create recordings directory: %w", err)
	}
	var (
		s      Streams
		opened []io.Closer
	)
	slots := map[StreamKind]*io.WriteCloser{
		StreamData:    &s.Data,
		StreamHeader1: &s.Header1,
		StreamHeader2: &s.Header2,
		StreamUsers:   &s.Users,
		StreamLog:     &s.Log,
	}
	for _, kind := range AllStreams {
		f, err := os.OpenFile(StreamPath(dir, id, kind), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err != nil {
			for _, c := range opened {
				_ = c.Close()
			}
			return Streams{}, fmt.Errorf("open %s stream: %w", kind.Suffix(), err)
		}
		opened = append(opened, f)
		*slots[kind] = f
	}
	return s, nil
}

// RemoveFileStreams deletes every stream file of a recording. Missing files
// are ignored.
func RemoveFileStreams(dir, id string) error {
	var errs []error
	for _, kind := range AllStreams {
		if err := os.Remove(StreamPath(dir, id, kind)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
