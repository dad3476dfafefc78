package pathway

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/core-tools/hsu-tsmp/pkg/defines"
	"github.com/core-tools/hsu-tsmp/pkg/errors"
)

// NoCPU marks a CPU pair without a backup CPU
const NoCPU = -1

// Limits are the PATHWAY capacity settings of a monitor
type Limits struct {
	MaxAssigns         int `yaml:"max_assigns"`
	MaxDefines         int `yaml:"max_defines"`
	MaxExternalTCPs    int `yaml:"max_external_tcps"`
	MaxLinkMons        int `yaml:"max_linkmons"`
	MaxParams          int `yaml:"max_params"`
	MaxPathcoms        int `yaml:"max_pathcoms"`
	MaxServerClasses   int `yaml:"max_server_classes"`
	MaxServerProcesses int `yaml:"max_server_processes"`
	MaxSPI             int `yaml:"max_spi"`
	MaxStartups        int `yaml:"max_startups"`
	MaxTerms           int `yaml:"max_terms"`
	MaxTCPs            int `yaml:"max_tcps"`
}

func DefaultLimits() Limits {
	return Limits{
		MaxAssigns:         10,
		MaxDefines:         8191,
		MaxExternalTCPs:    0,
		MaxLinkMons:        16,
		MaxParams:          100,
		MaxPathcoms:        5,
		MaxServerClasses:   10,
		MaxServerProcesses: 160,
		MaxSPI:             10,
		MaxStartups:        0,
		MaxTerms:           10,
		MaxTCPs:            10,
	}
}

// limitSetting pairs a PATHWAY attribute with its value, in command order
type limitSetting struct {
	attribute string
	value     int
}

func (l Limits) settings() []limitSetting {
	return []limitSetting{
		{"MAXASSIGNS", l.MaxAssigns},
		{"MAXDEFINES", l.MaxDefines},
		{"MAXEXTERNALTCPS", l.MaxExternalTCPs},
		{"MAXLINKMONS", l.MaxLinkMons},
		{"MAXPARAMS", l.MaxParams},
		{"MAXPATHCOMS", l.MaxPathcoms},
		{"MAXSERVERCLASSES", l.MaxServerClasses},
		{"MAXSERVERPROCESSES", l.MaxServerProcesses},
		{"MAXSPI", l.MaxSPI},
		{"MAXSTARTUPS", l.MaxStartups},
		{"MAXTERMS", l.MaxTerms},
		{"MAXTCPS", l.MaxTCPs},
	}
}

// Monitor describes a PATHMON process pair. Name is given without the leading '$'.
type Monitor struct {
	Name       string
	PrimaryCPU int
	BackupCPU  int
	Limits     Limits
}

func NewMonitor(name string) Monitor {
	return Monitor{
		Name:       name,
		PrimaryCPU: 0,
		BackupCPU:  1,
		Limits:     DefaultLimits(),
	}
}

func (m Monitor) Validate() error {
	if err := validateName("pathmon", m.Name); err != nil {
		return err
	}
	if m.PrimaryCPU < 0 || m.BackupCPU < 0 {
		return errors.NewValidationError("pathmon CPUs cannot be negative", nil).
			WithContext("primary_cpu", m.PrimaryCPU).
			WithContext("backup_cpu", m.BackupCPU)
	}
	for _, s := range m.Limits.settings() {
		if s.value < 0 {
			return errors.NewValidationError(fmt.Sprintf("%s cannot be negative", s.attribute), nil).
				WithContext("value", s.value)
		}
	}
	return nil
}

// CPUPair is a primary CPU with an optional backup CPU (NoCPU when absent)
type CPUPair struct {
	Primary int
	Backup  int
}

func (p CPUPair) String() string {
	if p.Backup == NoCPU {
		return fmt.Sprintf("%d", p.Primary)
	}
	return fmt.Sprintf("%d:%d", p.Primary, p.Backup)
}

type EnvVar struct {
	Name  string
	Value string
}

// ServerClass describes a group of identically configured server processes
type ServerClass struct {
	Name        string
	ProcessType string
	// Program and WorkingDir are made absolute when commands are generated
	Program     string
	Args        []string
	AutoRestart int
	CPUs        []CPUPair
	WorkingDir  string
	Env         []EnvVar
	HomeTerm    string
	LinkDepth   int
	MaxLinks    int
	MaxServers  int
	NumStatic   int
	// Processes are '$'-prefixed process names for the static servers
	Processes []string
	Stdout    string
	Stderr    string
	Defines   *defines.Registry
}

func NewServerClass(name string) ServerClass {
	return ServerClass{
		Name:        name,
		ProcessType: "OSS",
		AutoRestart: 10,
		CPUs:        []CPUPair{{Primary: 0, Backup: 1}},
		HomeTerm:    "$ZHOME",
		LinkDepth:   4,
		MaxLinks:    16,
		MaxServers:  1,
		NumStatic:   1,
		Defines:     defines.NewRegistry(),
	}
}

// ArgList renders the arguments as pathcom expects them: comma separated
func (s ServerClass) ArgList() string {
	return strings.Join(s.Args, ",")
}

func (s ServerClass) Validate() error {
	if err := validateName("serverclass", s.Name); err != nil {
		return err
	}
	if len(s.CPUs) == 0 {
		return errors.NewValidationError("at least one CPU pair is required", nil).WithContext("serverclass", s.Name)
	}
	for _, pair := range s.CPUs {
		if pair.Primary < 0 || (pair.Backup < 0 && pair.Backup != NoCPU) {
			return errors.NewValidationError("invalid CPU pair", nil).
				WithContext("serverclass", s.Name).
				WithContext("cpus", pair.String())
		}
	}
	counts := map[string]int{
		"AUTORESTART": s.AutoRestart,
		"LINKDEPTH":   s.LinkDepth,
		"MAXLINKS":    s.MaxLinks,
		"MAXSERVERS":  s.MaxServers,
		"NUMSTATIC":   s.NumStatic,
	}
	for attribute, value := range counts {
		if value < 0 {
			return errors.NewValidationError(fmt.Sprintf("%s cannot be negative", attribute), nil).
				WithContext("serverclass", s.Name).
				WithContext("value", value)
		}
	}
	for _, env := range s.Env {
		if env.Name == "" || strings.Contains(env.Name, "=") {
			return errors.NewValidationError("invalid environment variable name", nil).
				WithContext("serverclass", s.Name).
				WithContext("name", env.Name)
		}
	}
	return nil
}

func validateName(kind, name string) error {
	if name == "" {
		return errors.NewValidationError(kind+" name is required", nil)
	}
	first := rune(name[0])
	if unicode.IsControl(first) || unicode.IsSpace(first) {
		return errors.NewValidationError(kind+" name cannot start with a control character", nil).WithContext("name", name)
	}
	if first == '$' {
		return errors.NewValidationError(kind+" name must be given without '$'", nil).WithContext("name", name)
	}
	return nil
}
