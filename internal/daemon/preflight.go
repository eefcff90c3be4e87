package daemon

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"voxtape/internal/services"
)

// freeBytes returns the space available to unprivileged writers under path.
func freeBytes(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	return st.Bavail * uint64(st.Bsize), nil
}

// checkFreeSpace refuses to start a recording in a directory that is not
// writable or has less than minFree bytes available. minFree <= 0 only checks
// access.
func checkFreeSpace(dir string, minFree int64) error {
	if err := unix.Access(dir, unix.W_OK|unix.X_OK); err != nil {
		return services.Wrap(services.ErrConfiguration, "preflight", "access", dir, err)
	}
	if minFree <= 0 {
		return nil
	}
	free, err := freeBytes(dir)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "preflight", "free space", dir, err)
	}
	if free < uint64(minFree) {
		return services.Wrap(services.ErrCapacity, "preflight", "free space",
			fmt.Sprintf("%s free in %s, need %s", humanize.IBytes(free), dir, humanize.IBytes(uint64(minFree))), nil)
	}
	return nil
}
