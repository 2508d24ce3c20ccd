package supervisor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// IsAlive reports whether a process with the given pid exists. It
// probes with signal 0 first, falls back to /proc, then to ps.
func IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	proc, err := os.FindProcess(pid)
	if err == nil {
		err = proc.Signal(syscall.Signal(0))
		switch {
		case err == nil:
			return true
		case errors.Is(err, syscall.EPERM):
			// Exists but owned by someone else.
			return true
		case errors.Is(err, syscall.ESRCH):
			return false
		}
	}

	if _, err := os.Stat(fmt.Sprintf("/proc/%d", pid)); err == nil {
		return true
	} else if os.IsNotExist(err) {
		return false
	}

	return exec.Command("ps", "-p", fmt.Sprintf("%d", pid)).Run() == nil
}
