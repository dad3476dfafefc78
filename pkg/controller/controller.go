// Package controller brings a PATHMON and its server class to the running state.
package controller

import (
	"context"
	"fmt"

	"github.com/core-tools/hsu-tsmp/pkg/errors"
	"github.com/core-tools/hsu-tsmp/pkg/logging"
	"github.com/core-tools/hsu-tsmp/pkg/pathcom"
	"github.com/core-tools/hsu-tsmp/pkg/pathway"
	"github.com/core-tools/hsu-tsmp/pkg/tacl"
)

// Session labels passed to the executor
const (
	SessionMonitor     = "monitor"
	SessionAddServer   = "add-server"
	SessionStartServer = "start-server"
)

// StatusQuerier inspects and starts monitors
type StatusQuerier interface {
	Status(ctx context.Context, name string) (tacl.MonitorStatus, error)
	StartMonitor(ctx context.Context, m pathway.Monitor) error
}

// MonitorState is the controller's view of the monitor
type MonitorState int

const (
	MonitorNotRunning MonitorState = iota
	MonitorRunning
	MonitorConfigured
)

func (s MonitorState) String() string {
	switch s {
	case MonitorNotRunning:
		return "not_running"
	case MonitorRunning:
		return "running"
	case MonitorConfigured:
		return "configured"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// StateOf maps a status query result to a monitor state
func StateOf(status tacl.MonitorStatus) MonitorState {
	switch {
	case status.Paired:
		return MonitorConfigured
	case status.Running:
		return MonitorRunning
	default:
		return MonitorNotRunning
	}
}

// Controller configures one monitor and one server class. Callers must not
// run two controllers against the same monitor at the same time.
type Controller struct {
	monitor  pathway.Monitor
	server   pathway.ServerClass
	status   StatusQuerier
	executor pathcom.Executor
	logger   logging.Logger
}

func NewController(monitor pathway.Monitor, server pathway.ServerClass, status StatusQuerier, executor pathcom.Executor, logger logging.Logger) *Controller {
	return &Controller{
		monitor:  monitor,
		server:   server,
		status:   status,
		executor: executor,
		logger:   logger,
	}
}

// Run ensures the monitor is configured, then adds and starts the server class
func (c *Controller) Run(ctx context.Context) error {
	if err := c.EnsureMonitor(ctx); err != nil {
		return errors.NewProcessError(fmt.Sprintf("failed to start and configure pathmon $%s", c.monitor.Name), err)
	}
	if err := c.ConfigureAndStartServer(ctx); err != nil {
		return errors.NewProcessError(fmt.Sprintf("failed to configure and start server %s", c.server.Name), err)
	}
	return nil
}

// EnsureMonitor starts the monitor when needed and configures it unless it
// already runs as a configured pair
func (c *Controller) EnsureMonitor(ctx context.Context) error {
	status, err := c.status.Status(ctx, c.monitor.Name)
	if err != nil {
		return err
	}
	state := StateOf(status)
	c.logger.Infof("Pathmon state, name: %s, state: %s", c.monitor.Name, state)

	switch state {
	case MonitorConfigured:
		return nil
	case MonitorNotRunning:
		if err := c.status.StartMonitor(ctx, c.monitor); err != nil {
			return err
		}
	}

	commands, err := pathway.MonitorCommands(c.monitor)
	if err != nil {
		return err
	}
	if _, err := c.executor.Execute(ctx, SessionMonitor, commands); err != nil {
		return err
	}
	c.logger.Infof("Pathmon configured, name: %s", c.monitor.Name)
	return nil
}

// ConfigureAndStartServer adds the server class and starts it. A server class
// that already exists is started as is.
func (c *Controller) ConfigureAndStartServer(ctx context.Context) error {
	commands, err := pathway.AddServerCommands(c.monitor, c.server)
	if err != nil {
		return err
	}

	_, err = c.executor.Execute(ctx, SessionAddServer, commands)
	switch {
	case err == nil:
		c.logger.Infof("Server added, server: %s", c.server.Name)
	case errors.IsEntryAlreadyExists(err):
		c.logger.Infof("Server already exists, starting it as configured, server: %s", c.server.Name)
	default:
		return err
	}

	if _, err := c.executor.Execute(ctx, SessionStartServer, pathway.StartServerCommands(c.monitor, c.server)); err != nil {
		return err
	}
	c.logger.Infof("Server started, server: %s", c.server.Name)
	return nil
}
