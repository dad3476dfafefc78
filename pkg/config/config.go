// Package config turns launch properties and the launched command line into
// pathway descriptors.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/core-tools/hsu-tsmp/pkg/errors"
	"github.com/core-tools/hsu-tsmp/pkg/pathway"
)

// Property names
const (
	KeyPathmonName   = "PATHMON_NAME"
	KeyPrimaryCPU    = "PRIMARY_CPU"
	KeyBackupCPU     = "BACKUP_CPU"
	KeyServerName    = "SERVERCLASS_NAME"
	KeyAutoRestart   = "AUTORESTART"
	KeyNumStatic     = "NUMSTATIC"
	KeyMaxServers    = "MAXSERVERS"
	KeyProcessNames  = "PROCESS_NAMES"
	KeyCPUs          = "CPUS"
	KeyStdout        = "STDOUT"
	KeyStderr        = "STDERR"
	KeyDefine        = "DEFINE"
	KeyEnv           = "ENV"
	KeyProcessType   = "PROCESSTYPE"
	KeyHomeTerm      = "HOMETERM"
	KeyLinkDepth     = "LINKDEPTH"
	KeyMaxLinks      = "MAXLINKS"
	DefaultCPUs      = "{{0,1}}"
	DefaultNullPath  = "/dev/null"
	processNameStart = "$"
)

// LaunchOptions carry what comes from the launcher rather than the property file
type LaunchOptions struct {
	// Command is the program followed by its arguments
	Command    []string
	WorkingDir string
	// Defines are DEFINE lists given on the command line, applied after the file's
	Defines []string
	// Strict turns dropped CPU pairs and DEFINE entries into errors
	Strict bool
}

type Descriptors struct {
	Monitor pathway.Monitor
	Server  pathway.ServerClass
}

// Build creates validated descriptors. The returned warnings list every input
// that was dropped in non-strict mode.
func Build(props Properties, options LaunchOptions) (*Descriptors, []string, error) {
	monitor, err := buildMonitor(props)
	if err != nil {
		return nil, nil, err
	}

	server, warnings, err := buildServer(props, options)
	if err != nil {
		return nil, nil, err
	}

	if err := monitor.Validate(); err != nil {
		return nil, nil, err
	}
	if err := server.Validate(); err != nil {
		return nil, nil, err
	}
	return &Descriptors{Monitor: monitor, Server: server}, warnings, nil
}

func buildMonitor(props Properties) (pathway.Monitor, error) {
	name, err := props.Required(KeyPathmonName)
	if err != nil {
		return pathway.Monitor{}, err
	}
	m := pathway.NewMonitor(strings.TrimPrefix(name, "$"))

	ints := []struct {
		key    string
		target *int
	}{
		{KeyPrimaryCPU, &m.PrimaryCPU},
		{KeyBackupCPU, &m.BackupCPU},
		{"MAXASSIGNS", &m.Limits.MaxAssigns},
		{"MAXDEFINES", &m.Limits.MaxDefines},
		{"MAXEXTERNALTCPS", &m.Limits.MaxExternalTCPs},
		{"MAXLINKMONS", &m.Limits.MaxLinkMons},
		{"MAXPARAMS", &m.Limits.MaxParams},
		{"MAXPATHCOMS", &m.Limits.MaxPathcoms},
		{"MAXSERVERCLASSES", &m.Limits.MaxServerClasses},
		{"MAXSERVERPROCESSES", &m.Limits.MaxServerProcesses},
		{"MAXSPI", &m.Limits.MaxSPI},
		{"MAXSTARTUPS", &m.Limits.MaxStartups},
		{"MAXTERMS", &m.Limits.MaxTerms},
		{"MAXTCPS", &m.Limits.MaxTCPs},
	}
	for _, field := range ints {
		if *field.target, err = props.Int(field.key, *field.target); err != nil {
			return pathway.Monitor{}, err
		}
	}
	return m, nil
}

func buildServer(props Properties, options LaunchOptions) (pathway.ServerClass, []string, error) {
	name, err := props.Required(KeyServerName)
	if err != nil {
		return pathway.ServerClass{}, nil, err
	}
	if len(options.Command) == 0 || options.Command[0] == "" {
		return pathway.ServerClass{}, nil, errors.NewValidationError("program to launch is required", nil)
	}

	s := pathway.NewServerClass(name)
	s.Program = options.Command[0]
	s.Args = append([]string(nil), options.Command[1:]...)
	s.WorkingDir = options.WorkingDir
	s.ProcessType = props.String(KeyProcessType, s.ProcessType)
	s.HomeTerm = props.String(KeyHomeTerm, s.HomeTerm)
	s.Stdout = props.String(KeyStdout, DefaultNullPath)
	s.Stderr = props.String(KeyStderr, DefaultNullPath)
	s.Processes = ParseProcessNames(props.String(KeyProcessNames, ""))

	ints := []struct {
		key    string
		target *int
	}{
		{KeyAutoRestart, &s.AutoRestart},
		{KeyNumStatic, &s.NumStatic},
		{KeyMaxServers, &s.MaxServers},
		{KeyLinkDepth, &s.LinkDepth},
		{KeyMaxLinks, &s.MaxLinks},
	}
	for _, field := range ints {
		if *field.target, err = props.Int(field.key, *field.target); err != nil {
			return pathway.ServerClass{}, nil, err
		}
	}

	var warnings []string

	cpus, dropped := ParseCPUs(props.String(KeyCPUs, DefaultCPUs))
	if len(dropped) > 0 {
		if options.Strict {
			return pathway.ServerClass{}, nil, errors.NewValidationError("invalid CPU pairs", nil).WithContext("pairs", dropped)
		}
		for _, pair := range dropped {
			warnings = append(warnings, fmt.Sprintf("ignored CPU pair %q", pair))
		}
	}
	s.CPUs = cpus

	env, err := ParseEnv(props.String(KeyEnv, ""))
	if err != nil {
		return pathway.ServerClass{}, nil, err
	}
	s.Env = env

	sources := append([]string{props.String(KeyDefine, "")}, options.Defines...)
	for _, source := range sources {
		rejected := s.Defines.AddRawReport(source)
		if len(rejected) > 0 && options.Strict {
			return pathway.ServerClass{}, nil, errors.NewValidationError("invalid DEFINE entries", nil).WithContext("entries", rejected)
		}
		for _, entry := range rejected {
			warnings = append(warnings, fmt.Sprintf("ignored DEFINE %q", entry))
		}
	}
	return s, warnings, nil
}

// ParseProcessNames splits "PRC1,PRC2" into "$PRC1", "$PRC2"
func ParseProcessNames(value string) []string {
	var names []string
	for _, name := range strings.Split(value, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if !strings.HasPrefix(name, processNameStart) {
			name = processNameStart + name
		}
		names = append(names, name)
	}
	return names
}

// ParseCPUs parses "{{0,1};{2};{3,0}}". Pairs that cannot be parsed are
// returned in dropped and left out of the result.
func ParseCPUs(value string) (pairs []pathway.CPUPair, dropped []string) {
	value = strings.TrimSpace(value)
	value = strings.TrimSuffix(strings.TrimPrefix(value, "{"), "}")
	for _, item := range strings.Split(value, ";") {
		raw := strings.TrimSpace(item)
		if raw == "" {
			continue
		}
		pair, ok := parseCPUPair(raw)
		if !ok {
			dropped = append(dropped, raw)
			continue
		}
		pairs = append(pairs, pair)
	}
	return pairs, dropped
}

func parseCPUPair(raw string) (pathway.CPUPair, bool) {
	if !strings.HasPrefix(raw, "{") || !strings.HasSuffix(raw, "}") {
		return pathway.CPUPair{}, false
	}
	fields := strings.Split(raw[1:len(raw)-1], ",")
	if len(fields) > 2 {
		return pathway.CPUPair{}, false
	}
	primary, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil || primary < 0 {
		return pathway.CPUPair{}, false
	}
	pair := pathway.CPUPair{Primary: primary, Backup: pathway.NoCPU}
	if len(fields) == 2 {
		backup, err := strconv.Atoi(strings.TrimSpace(fields[1]))
		if err != nil || backup < 0 {
			return pathway.CPUPair{}, false
		}
		pair.Backup = backup
	}
	return pair, true
}

// ParseEnv parses "NAME=VALUE;OTHER=VALUE" keeping the given order
func ParseEnv(value string) ([]pathway.EnvVar, error) {
	var env []pathway.EnvVar
	for _, item := range strings.Split(value, ";") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		name, val, ok := strings.Cut(item, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, errors.NewValidationError("environment entries must look like NAME=VALUE", nil).WithContext("entry", item)
		}
		env = append(env, pathway.EnvVar{Name: strings.TrimSpace(name), Value: val})
	}
	return env, nil
}
