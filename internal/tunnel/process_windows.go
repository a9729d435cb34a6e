//go:build windows

package tunnel

import "os"

// terminate stops the process. Windows has no SIGTERM for child processes.
func terminate(proc *os.Process) error {
	return signalProcess(proc, os.Kill)
}
