package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

const maxLineBytes = 1024 * 1024

// DefaultPoll is the Follow polling period used when none is given.
const DefaultPoll = 250 * time.Millisecond

// Last returns up to n trailing lines of path and the file size at the time
// of reading, which is where Follow should resume. A missing file yields no lines and offset zero.
func Last(path string, n int) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return nil, 0, fmt.Errorf("log path %q is a directory", path)
	}
	if n <= 0 {
		return nil, info.Size(), nil
	}

	ring := make([]string, n)
	count, next := 0, 0
	if err := scanLines(file, func(line string) {
		ring[next] = line
		next = (next + 1) % n
		if count < n {
			count++
		}
	}); err != nil {
		return nil, 0, err
	}

	lines := make([]string, 0, count)
	start := 0
	if count == n {
		start = next
	}
	for i := 0; i < count; i++ {
		lines = append(lines, ring[(start+i)%n])
	}
	return lines, info.Size(), nil
}

// Follow emits every complete line appended to path after offset until ctx
// is canceled. It returns ctx.Err() on cancellation.
func Follow(ctx context.Context, path string, offset int64, poll time.Duration, emit func(string)) error {
	if poll <= 0 {
		poll = DefaultPoll
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		next, err := readFrom(path, offset, emit)
		if err != nil {
			return err
		}
		offset = next

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// readFrom emits complete lines after offset and returns the offset just past
// the last one. Partial trailing lines are left for the next call.
func readFrom(path string, offset int64, emit func(string)) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return offset, fmt.Errorf("stat log file: %w", err)
	}
	if info.Size() < offset {
		offset = 0
	}
	if info.Size() == offset {
		return offset, nil
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}

	reader := bufio.NewReaderSize(file, 64*1024)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return offset, nil
			}
			return offset, fmt.Errorf("read log file: %w", err)
		}
		offset += int64(len(line))
		emit(line[:len(line)-1])
	}
}

func scanLines(r io.Reader, fn func(string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		fn(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read log file: %w", err)
	}
	return nil
}
