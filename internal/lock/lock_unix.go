//go:build !windows

package lock

import "syscall"

// Signal 0 tests if the process exists without sending a signal.
func processAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}
