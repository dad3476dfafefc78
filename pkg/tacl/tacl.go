// Package tacl wraps the non-interactive gtacl invocations used to inspect
// and start a PATHMON process.
package tacl

import (
	"context"
	"fmt"
	"strings"

	"github.com/core-tools/hsu-tsmp/pkg/errors"
	"github.com/core-tools/hsu-tsmp/pkg/logging"
	"github.com/core-tools/hsu-tsmp/pkg/pathway"
)

const (
	DefaultGtacl   = "gtacl"
	PathmonProgram = "/G/system/system/pathmon"
	HomeTerm       = "/G/zhome"
)

// MonitorStatus is what a status query reveals about a monitor
type MonitorStatus struct {
	// Running is true when the process exists
	Running bool
	// Paired is true when both primary and backup are listed, which only
	// happens once the pathway has been configured and cold started
	Paired bool
}

type Utilities struct {
	runner Runner
	gtacl  string
	logger logging.Logger
}

func NewUtilities(runner Runner, gtacl string, logger logging.Logger) *Utilities {
	if gtacl == "" {
		gtacl = DefaultGtacl
	}
	return &Utilities{
		runner: runner,
		gtacl:  gtacl,
		logger: logger,
	}
}

// Status runs "status $<name>" and looks for the upper-cased name in the output
func (u *Utilities) Status(ctx context.Context, name string) (MonitorStatus, error) {
	result, err := u.runner.Run(ctx, u.gtacl, "-c", "status $"+name)
	if err != nil {
		return MonitorStatus{}, err
	}
	status := ParseStatus(result.Output, name)
	u.logger.Debugf("Monitor status, name: %s, exit code: %d, running: %t, paired: %t",
		name, result.ExitCode, status.Running, status.Paired)
	return status, nil
}

// ParseStatus derives the monitor status from status command output: the
// name appearing once means running, appearing more than once means paired.
func ParseStatus(output, name string) MonitorStatus {
	upper := strings.ToUpper(name)
	first := strings.Index(output, upper)
	if first == -1 {
		return MonitorStatus{}
	}
	return MonitorStatus{
		Running: true,
		Paired:  first != strings.LastIndex(output, upper),
	}
}

// StartMonitor launches the PATHMON process pair without waiting for it
func (u *Utilities) StartMonitor(ctx context.Context, m pathway.Monitor) error {
	args := []string{
		"-nowait",
		"-name", "/G/" + m.Name,
		"-cpu", fmt.Sprintf("%d", m.PrimaryCPU),
		"-term", HomeTerm,
		"-p", PathmonProgram,
		fmt.Sprintf("%d", m.BackupCPU),
	}
	u.logger.Infof("Starting pathmon, name: %s, primary cpu: %d, backup cpu: %d", m.Name, m.PrimaryCPU, m.BackupCPU)

	result, err := u.runner.Run(ctx, u.gtacl, args...)
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return errors.NewProcessError(strings.TrimSpace(result.Output), nil).
			WithContext("pathmon", m.Name).
			WithContext("exit_code", result.ExitCode)
	}
	return nil
}
