// Package channel owns a single interactive child process and exposes its
// merged stdout/stderr and its stdin as a byte stream.
package channel

import (
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/core-tools/hsu-tsmp/pkg/errors"
	"github.com/core-tools/hsu-tsmp/pkg/logging"
)

// DefaultGraceTimeout bounds how long Close waits for the child to exit on its own
const DefaultGraceTimeout = 1 * time.Second

type ExecutionConfig struct {
	ExecutablePath   string   `yaml:"executable_path"`
	Args             []string `yaml:"args,omitempty"`
	Environment      []string `yaml:"environment,omitempty"`
	WorkingDirectory string   `yaml:"working_directory,omitempty"`
}

// Channel is a running child process with a writable stdin and a readable
// combined output stream. It is not safe for concurrent writers.
type Channel struct {
	cmd    *exec.Cmd
	stdin  *os.File
	output *os.File
	logger logging.Logger

	done    chan struct{}
	waitErr error

	closeOnce sync.Once
	closeErr  error
}

// Open spawns the executable and connects to its standard streams
func Open(config ExecutionConfig, logger logging.Logger) (*Channel, error) {
	if config.ExecutablePath == "" {
		return nil, errors.NewValidationError("executable path is required", nil)
	}

	path, err := exec.LookPath(config.ExecutablePath)
	if err != nil {
		return nil, errors.NewSpawnError("executable not found", err).WithContext("executable_path", config.ExecutablePath)
	}

	stdinRead, stdinWrite, err := os.Pipe()
	if err != nil {
		return nil, errors.NewSpawnError("failed to create stdin pipe", err)
	}
	outputRead, outputWrite, err := os.Pipe()
	if err != nil {
		stdinRead.Close()
		stdinWrite.Close()
		return nil, errors.NewSpawnError("failed to create output pipe", err)
	}

	cmd := exec.Command(path, config.Args...)
	cmd.Dir = config.WorkingDirectory
	if len(config.Environment) > 0 {
		cmd.Env = append(os.Environ(), config.Environment...)
	}
	cmd.Stdin = stdinRead
	cmd.Stdout = outputWrite
	cmd.Stderr = outputWrite
	setupProcessAttributes(cmd)

	logger.Debugf("Spawning channel process, path: '%s', args: %v", path, config.Args)

	err = cmd.Start()
	// The child holds its own copies of these ends
	stdinRead.Close()
	outputWrite.Close()
	if err != nil {
		stdinWrite.Close()
		outputRead.Close()
		return nil, errors.NewSpawnError("failed to start the process", err).WithContext("executable_path", path)
	}

	c := &Channel{
		cmd:    cmd,
		stdin:  stdinWrite,
		output: outputRead,
		logger: logger,
		done:   make(chan struct{}),
	}
	go func() {
		c.waitErr = cmd.Wait()
		close(c.done)
	}()

	logger.Infof("Channel process started, path: '%s', PID: %d", path, cmd.Process.Pid)
	return c, nil
}

// PID returns the process id of the child
func (c *Channel) PID() int {
	return c.cmd.Process.Pid
}

// Exited reports whether the child has terminated
func (c *Channel) Exited() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Read reads the next chunk of child output. io.EOF marks the end of the stream.
func (c *Channel) Read(p []byte) (int, error) {
	n, err := c.output.Read(p)
	if err != nil && err != io.EOF {
		return n, errors.NewIOError("failed to read from channel", err).WithContext("pid", c.PID())
	}
	return n, err
}

// Write sends bytes to the child's stdin
func (c *Channel) Write(p []byte) (int, error) {
	n, err := c.stdin.Write(p)
	if err != nil {
		return n, errors.NewIOError("failed to write to channel", err).WithContext("pid", c.PID())
	}
	return n, nil
}

// Close closes stdin and waits up to grace for the child to exit, then kills it.
// A timeout error is returned when the child had to be killed.
func (c *Channel) Close(grace time.Duration) error {
	c.closeOnce.Do(func() {
		c.closeErr = c.close(grace)
	})
	return c.closeErr
}

func (c *Channel) close(grace time.Duration) error {
	pid := c.PID()
	c.stdin.Close()

	var result error
	select {
	case <-c.done:
	case <-time.After(grace):
		c.logger.Warnf("Channel process did not exit within %v, killing, PID: %d", grace, pid)
		if err := killProcessTree(c.cmd.Process); err != nil {
			c.logger.Errorf("Failed to kill channel process, PID: %d, error: %v", pid, err)
		}
		<-c.done
		result = errors.NewTimeoutError("channel process killed after grace timeout", nil).
			WithContext("pid", pid).
			WithContext("grace", grace.String())
	}

	c.output.Close()
	c.logger.Debugf("Channel process finished, PID: %d, wait result: %v", pid, c.waitErr)
	return result
}
