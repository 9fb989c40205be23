//go:build !windows

package storage

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// checkDiskSpace verifies there is enough free space for a metadata write.
// Failure to stat the filesystem is a warning, not a blocker.
func checkDiskSpace(path string) error {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to check disk space: %v\n", err)
		return nil
	}

	available := stat.Bavail * uint64(stat.Bsize)
	if available < MinDiskSpaceBytes {
		return fmt.Errorf("storage: insufficient disk space: only %d MB available",
			available/(1024*1024))
	}
	return nil
}
