//go:build !windows

package channel

import (
	"os"
	"os/exec"
	"syscall"
)

// setupProcessAttributes puts the child in its own process group so that
// anything it spawns can be killed together with it
func setupProcessAttributes(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

func killProcessTree(process *os.Process) error {
	// Negative PID targets the whole process group
	if err := syscall.Kill(-process.Pid, syscall.SIGKILL); err != nil {
		return process.Kill()
	}
	return nil
}
