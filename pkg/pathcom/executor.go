package pathcom

import (
	"context"
	"io"
	"time"

	"github.com/core-tools/hsu-tsmp/pkg/channel"
	"github.com/core-tools/hsu-tsmp/pkg/errors"
	"github.com/core-tools/hsu-tsmp/pkg/logging"
	"github.com/core-tools/hsu-tsmp/pkg/metrics"
)

// Executor runs one command sequence in a fresh administration session
type Executor interface {
	Execute(ctx context.Context, session string, commands []string) (string, error)
}

// ExecutorFunc adapts a function to Executor
type ExecutorFunc func(ctx context.Context, session string, commands []string) (string, error)

func (f ExecutorFunc) Execute(ctx context.Context, session string, commands []string) (string, error) {
	return f(ctx, session, commands)
}

type ExecutorConfig struct {
	// Execution defaults to "gtacl -p pathcom"
	Execution    channel.ExecutionConfig
	GraceTimeout time.Duration
	Detector     PromptDetector
	Transcript   io.Writer
}

// DefaultExecution is the command line that starts an interactive pathcom
func DefaultExecution() channel.ExecutionConfig {
	return channel.ExecutionConfig{
		ExecutablePath: "gtacl",
		Args:           []string{"-p", "pathcom"},
	}
}

// ProcessExecutor spawns pathcom for every sequence and always tears it down
type ProcessExecutor struct {
	config  ExecutorConfig
	metrics metrics.Collector
	logger  logging.Logger
}

func NewProcessExecutor(config ExecutorConfig, collector metrics.Collector, logger logging.Logger) *ProcessExecutor {
	if config.Execution.ExecutablePath == "" {
		config.Execution = DefaultExecution()
	}
	if config.GraceTimeout <= 0 {
		config.GraceTimeout = channel.DefaultGraceTimeout
	}
	if collector == nil {
		collector = metrics.NewNoopCollector()
	}
	return &ProcessExecutor{
		config:  config,
		metrics: collector,
		logger:  logger,
	}
}

func (e *ProcessExecutor) Execute(ctx context.Context, session string, commands []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.NewCancelledError("session cancelled before start", err).WithContext("session", session)
	}

	ch, err := channel.Open(e.config.Execution, e.logger)
	if err != nil {
		return "", err
	}
	defer func() {
		if closeErr := ch.Close(e.config.GraceTimeout); closeErr != nil {
			e.logger.Warnf("Pathcom session did not end cleanly, session: %s, error: %v", session, closeErr)
		}
	}()

	// Closing the channel ends a Read blocked on a tool that never prompts
	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-ctx.Done():
			e.logger.Warnf("Pathcom session cancelled, closing, session: %s, PID: %d", session, ch.PID())
			ch.Close(e.config.GraceTimeout)
		case <-finished:
		}
	}()

	e.logger.Infof("Running pathcom session, session: %s, commands: %d", session, len(commands))

	driver := NewDriver(DriverOptions{
		Detector:   e.config.Detector,
		Transcript: e.config.Transcript,
		Metrics:    e.metrics,
		Session:    session,
	}, e.logger)
	transcript, err := driver.Run(ch, commands)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return transcript, errors.NewCancelledError("pathcom session cancelled", ctxErr).
			WithContext("session", session).
			WithContext("cause", err)
	}
	return transcript, err
}
