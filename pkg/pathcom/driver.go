// Package pathcom drives the interactive pathcom administration tool. The tool
// has no message framing: it signals readiness for the next command by ending
// its output with a prompt byte, so the driver detects prompts from the raw
// byte stream and scans the output of each command for an error marker.
package pathcom

import (
	"bytes"
	"io"
	"time"

	"github.com/core-tools/hsu-tsmp/pkg/errors"
	"github.com/core-tools/hsu-tsmp/pkg/logging"
	"github.com/core-tools/hsu-tsmp/pkg/metrics"
)

const (
	PromptTerminator = '='
	ErrorMarker      = "ERROR"
	ExitCommand      = "EXIT"

	readChunkSize = 4096
)

// PromptDetector decides whether a freshly read chunk leaves the tool waiting for input
type PromptDetector interface {
	IsPrompt(chunk []byte) bool
}

// TerminatorDetector treats a chunk ending with Terminator as a prompt
type TerminatorDetector struct {
	Terminator byte
}

func (d TerminatorDetector) IsPrompt(chunk []byte) bool {
	return len(chunk) > 0 && chunk[len(chunk)-1] == d.Terminator
}

type DriverOptions struct {
	Detector    PromptDetector
	ErrorMarker string
	ExitCommand string
	// Transcript receives every byte read and every command written
	Transcript io.Writer
	Metrics    metrics.Collector
	// Session labels metrics for this driver
	Session string
}

// Driver sequences commands against one administration session
type Driver struct {
	options DriverOptions
	logger  logging.Logger
}

func NewDriver(options DriverOptions, logger logging.Logger) *Driver {
	if options.Detector == nil {
		options.Detector = TerminatorDetector{Terminator: PromptTerminator}
	}
	if options.ErrorMarker == "" {
		options.ErrorMarker = ErrorMarker
	}
	if options.ExitCommand == "" {
		options.ExitCommand = ExitCommand
	}
	if options.Transcript == nil {
		options.Transcript = io.Discard
	}
	if options.Metrics == nil {
		options.Metrics = metrics.NewNoopCollector()
	}
	if options.Session == "" {
		options.Session = "pathcom"
	}
	return &Driver{
		options: options,
		logger:  logger,
	}
}

// Run sends commands one per prompt and returns everything the tool printed.
//
// The output produced before the first command is never checked for errors.
// Once all commands are sent, Run returns at the next prompt or at EOF,
// whichever comes first. When a segment contains the error marker, the exit
// command is written and a RemoteCommandError carrying the segment is returned.
func (d *Driver) Run(stream io.ReadWriter, commands []string) (string, error) {
	start := time.Now()
	transcript, err := d.run(stream, commands)
	d.options.Metrics.SessionFinished(d.options.Session, time.Since(start), err)
	return transcript, err
}

func (d *Driver) run(stream io.ReadWriter, commands []string) (string, error) {
	var full, segment bytes.Buffer
	chunk := make([]byte, readChunkSize)
	sent := 0

	for {
		n, err := stream.Read(chunk)
		if n > 0 {
			data := chunk[:n]
			full.Write(data)
			segment.Write(data)
			d.options.Transcript.Write(data)

			if d.options.Detector.IsPrompt(data) {
				d.options.Metrics.PromptSeen(d.options.Session)

				if sent > 0 && bytes.Contains(segment.Bytes(), []byte(d.options.ErrorMarker)) {
					d.options.Metrics.RemoteError(d.options.Session)
					d.logger.Errorf("Command failed, command: '%s', output: %q", commands[sent-1], segment.String())
					if err := d.send(stream, d.options.ExitCommand); err != nil {
						d.logger.Warnf("Failed to send exit command after remote error, error: %v", err)
					}
					remoteErr := errors.NewRemoteCommandError(segment.String())
					remoteErr.WithContext("command", commands[sent-1]).WithContext("index", sent-1)
					return full.String(), remoteErr
				}
				segment.Reset()

				if sent == len(commands) {
					d.logger.Debugf("All commands acknowledged, count: %d", sent)
					return full.String(), nil
				}
				if err := d.send(stream, commands[sent]); err != nil {
					return full.String(), err
				}
				sent++
			}
		}

		if err == io.EOF {
			d.logger.Debugf("Session ended, commands sent: %d of %d", sent, len(commands))
			return full.String(), nil
		}
		if err != nil {
			if errors.IsIOError(err) {
				return full.String(), err
			}
			return full.String(), errors.NewIOError("failed to read pathcom output", err)
		}
	}
}

func (d *Driver) send(stream io.Writer, command string) error {
	line := command + "\n"
	d.options.Transcript.Write([]byte(line))
	d.logger.Debugf("Sending command: '%s'", command)
	d.options.Metrics.CommandSent(d.options.Session)
	if _, err := io.WriteString(stream, line); err != nil {
		if errors.IsIOError(err) {
			return err
		}
		return errors.NewIOError("failed to write command", err).WithContext("command", command)
	}
	return nil
}
