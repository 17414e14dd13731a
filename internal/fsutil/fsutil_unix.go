//go:build !windows

package fsutil

import "golang.org/x/sys/unix"

func freeBytes(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	// Bavail, not Bfree: respect the root-reserved blocks.
	return st.Bavail * uint64(st.Bsize), nil
}
