package capture

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"voxtape/internal/oggpage"
)

// StreamReport summarizes one stream file of a finished recording.
type StreamReport struct {
	Suffix  string `json:"suffix"`
	Bytes   int64  `json:"bytes"`
	Pages   int    `json:"pages,omitempty"`
	Streams int    `json:"logical_streams,omitempty"`
	Entries int    `json:"entries,omitempty"`
	Missing bool   `json:"missing,omitempty"`
	Error   string `json:"error,omitempty"`
}

// VerifyReport is the result of checking every stream of a recording.
type VerifyReport struct {
	ID      string         `json:"id"`
	Streams []StreamReport `json:"streams"`
}

// OK reports whether every stream exists and parsed cleanly.
func (r VerifyReport) OK() bool {
	for _, s := range r.Streams {
		if s.Missing || s.Error != "" {
			return false
		}
	}
	return true
}

// VerifyFiles re-reads the stream files of a recording. Paged streams are
// checked page by page including checksums; the users stream must be JSON
// lines. A truncated trailing page is reported like any other corruption.
func VerifyFiles(dir, id string) (VerifyReport, error) {
	report := VerifyReport{ID: id}
	for _, kind := range AllStreams {
		sr := StreamReport{Suffix: kind.Suffix()}
		path := StreamPath(dir, id, kind)
		info, err := os.Stat(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return report, err
			}
			sr.Missing = true
			report.Streams = append(report.Streams, sr)
			continue
		}
		sr.Bytes = info.Size()

		switch kind {
		case StreamData, StreamHeader1, StreamHeader2:
			err = verifyPages(path, &sr)
		case StreamUsers:
			err = verifyUsers(path, &sr)
		}
		if err != nil {
			sr.Error = err.Error()
		}
		report.Streams = append(report.Streams, sr)
	}
	return report, nil
}

func verifyPages(path string, sr *StreamReport) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	seen := make(map[uint32]struct{})
	r := oggpage.NewReader(f)
	for {
		page, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		sr.Pages++
		seen[page.StreamID] = struct{}{}
	}
	sr.Streams = len(seen)
	return nil
}

func verifyUsers(path string, sr *StreamReport) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var entry map[string]Identity
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		sr.Entries += len(entry)
	}
	return scanner.Err()
}
