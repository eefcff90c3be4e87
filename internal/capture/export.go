package capture

import (
	"errors"
	"fmt"
	"os"

	"voxtape/internal/fileutil"
)

// ExportFiles copies the stream files of a recording into dest, verifying
// each copy. Missing streams are skipped; a recording with no files at all is
// an error. Existing files in dest are never replaced.
func ExportFiles(dir, id, dest string) (int64, error) {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return 0, fmt.Errorf("create export directory: %w", err)
	}
	var total int64
	copied := 0
	for _, kind := range AllStreams {
		n, err := fileutil.CopyVerified(StreamPath(dir, id, kind), StreamPath(dest, id, kind))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return total, fmt.Errorf("export %s: %w", kind.Suffix(), err)
		}
		total += n
		copied++
	}
	if copied == 0 {
		return 0, fmt.Errorf("no stream files for recording %s in %s", id, dir)
	}
	return total, nil
}
