//go:build windows

package channel

import (
	"os"
	"os/exec"
	"syscall"
)

func setupProcessAttributes(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

func killProcessTree(process *os.Process) error {
	return process.Kill()
}
