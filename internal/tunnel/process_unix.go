//go:build !windows

package tunnel

import (
	"os"
	"syscall"
)

// terminate asks the process to exit.
func terminate(proc *os.Process) error {
	return signalProcess(proc, syscall.SIGTERM)
}
