// SPDX-License-Identifier: MIT

// Package fsutil holds small filesystem probes shared by the recording
// supervisor.
package fsutil

// FreeBytes reports the free space, in bytes, on the filesystem containing
// path, as available to an unprivileged writer.
func FreeBytes(path string) (uint64, error) {
	return freeBytes(path)
}
