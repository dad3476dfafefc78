// Package pathway turns monitor and server class descriptors into the pathcom
// command sequences that configure them.
package pathway

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/core-tools/hsu-tsmp/pkg/errors"
)

const (
	// MaxLineLength is the longest command line pathcom accepts
	MaxLineLength = 120
	// ContinuationMarker ends a command line that continues on the next one
	ContinuationMarker = "&"

	argListCommand = "SET SERVER ARGLIST "
	nullPath       = "null"
)

// MonitorCommands configures a freshly started monitor and cold starts it.
// BACKUPCPU has to be set before the cold start.
func MonitorCommands(m Monitor) ([]string, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	commands := []string{openCommand(m)}
	for _, s := range m.Limits.settings() {
		commands = append(commands, fmt.Sprintf("SET PATHWAY %s %d", s.attribute, s.value))
	}
	commands = append(commands,
		fmt.Sprintf("SET PATHMON BACKUPCPU %d", m.BackupCPU),
		"START PATHWAY COLD !",
		"EXIT",
	)
	return commands, nil
}

// AddServerCommands sets the server template and adds the server class
func AddServerCommands(m Monitor, s ServerClass) ([]string, error) {
	configuration, err := ServerConfiguration(s)
	if err != nil {
		return nil, err
	}
	commands := []string{openCommand(m)}
	commands = append(commands, configuration...)
	commands = append(commands, "ADD SERVER "+s.Name, "EXIT")
	return commands, nil
}

// StartServerCommands starts an added server class
func StartServerCommands(m Monitor, s ServerClass) []string {
	return []string{
		openCommand(m),
		"START SERVER " + s.Name,
		"EXIT",
	}
}

// ServerConfiguration returns the SET SERVER commands for s, in the order pathcom expects
func ServerConfiguration(s ServerClass) ([]string, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	program, err := absOrNull(s.Program)
	if err != nil {
		return nil, errors.NewValidationError("failed to resolve program path", err).WithContext("program", s.Program)
	}
	cwd, err := absOrNull(s.WorkingDir)
	if err != nil {
		return nil, errors.NewValidationError("failed to resolve working directory", err).WithContext("cwd", s.WorkingDir)
	}

	var commands []string
	add := func(format string, args ...interface{}) {
		commands = append(commands, fmt.Sprintf(format, args...))
	}

	add("SET SERVER PROCESSTYPE %s", s.ProcessType)
	commands = append(commands, ArgListCommands(s.ArgList())...)
	add("SET SERVER AUTORESTART %d", s.AutoRestart)
	add("SET SERVER CPUS %s", RenderCPUs(s.CPUs))
	add("SET SERVER CWD %s", cwd)
	for _, env := range s.Env {
		add("SET SERVER ENV %s=%s", env.Name, env.Value)
	}
	add("SET SERVER HOMETERM %s", s.HomeTerm)
	add("SET SERVER LINKDEPTH %d", s.LinkDepth)
	add("SET SERVER MAXLINKS %d", s.MaxLinks)
	add("SET SERVER MAXSERVERS %d", s.MaxServers)
	add("SET SERVER NUMSTATIC %d", s.NumStatic)
	for i := 0; i < len(s.Processes) && i < s.NumStatic; i++ {
		add("SET SERVER PROCESS %s", s.Processes[i])
	}
	add("SET SERVER PROGRAM %s", program)
	if s.Stdout != "" {
		stdout, err := filepath.Abs(s.Stdout)
		if err != nil {
			return nil, errors.NewValidationError("failed to resolve stdout path", err).WithContext("stdout", s.Stdout)
		}
		add("SET SERVER STDOUT %s", stdout)
	}
	if s.Stderr != "" {
		stderr, err := filepath.Abs(s.Stderr)
		if err != nil {
			return nil, errors.NewValidationError("failed to resolve stderr path", err).WithContext("stderr", s.Stderr)
		}
		add("SET SERVER STDERR %s", stderr)
	}
	if s.Defines != nil {
		for _, entry := range s.Defines.Entries() {
			add("SET SERVER DEFINE %s", entry.Spec)
		}
	}
	return commands, nil
}

// ArgListCommands renders SET SERVER ARGLIST. A value that does not fit on one
// line is sent as a continued block: a marker line, MaxLineLength wide chunks
// each ending with the marker, and an empty line closing the block.
// Lengths are counted in characters, a chunk never splits a multi-byte rune.
func ArgListCommands(value string) []string {
	runes := []rune(value)
	if utf8.RuneCountInString(argListCommand)+len(runes) <= MaxLineLength {
		return []string{argListCommand + value}
	}

	commands := []string{argListCommand + ContinuationMarker}
	for rest := runes; len(rest) > 0; {
		n := len(rest)
		if n > MaxLineLength {
			n = MaxLineLength
		}
		commands = append(commands, string(rest[:n])+ContinuationMarker)
		rest = rest[n:]
	}
	return append(commands, "")
}

// RenderCPUs renders pairs as "(0,2:3)"
func RenderCPUs(pairs []CPUPair) string {
	parts := make([]string, len(pairs))
	for i, pair := range pairs {
		parts[i] = pair.String()
	}
	return "(" + strings.Join(parts, ",") + ")"
}

func openCommand(m Monitor) string {
	return "OPEN $" + m.Name
}

func absOrNull(path string) (string, error) {
	if path == "" {
		return nullPath, nil
	}
	return filepath.Abs(path)
}
