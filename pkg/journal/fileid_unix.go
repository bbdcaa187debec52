//go:build linux || darwin

package journal

import (
	"os"
	"syscall"
)

// fileID returns the inode number, the unix stand-in for a rename-stable
// file reference number.
func fileID(_ string, info os.FileInfo) uint64 {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return st.Ino
	}
	return 0
}
