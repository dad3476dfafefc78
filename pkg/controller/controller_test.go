package controller

import (
	"context"
	"strings"
	"testing"

	"github.com/core-tools/hsu-tsmp/pkg/errors"
	"github.com/core-tools/hsu-tsmp/pkg/logging"
	"github.com/core-tools/hsu-tsmp/pkg/pathcom"
	"github.com/core-tools/hsu-tsmp/pkg/pathcom/pathcomtest"
	"github.com/core-tools/hsu-tsmp/pkg/pathway"
	"github.com/core-tools/hsu-tsmp/pkg/tacl"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type session struct {
	name     string
	commands []string
}

// fakePathway simulates a pathway environment behind both the status
// commands and interactive pathcom sessions
type fakePathway struct {
	running    bool
	paired     bool
	servers    map[string]bool
	started    map[string]bool
	startCalls int
	sessions   []session
	// failOn makes the given command report this error text
	failOn map[string]string
}

func newFakePathway() *fakePathway {
	return &fakePathway{
		servers: make(map[string]bool),
		started: make(map[string]bool),
		failOn:  make(map[string]string),
	}
}

func (f *fakePathway) Status(ctx context.Context, name string) (tacl.MonitorStatus, error) {
	return tacl.MonitorStatus{Running: f.running, Paired: f.paired}, nil
}

func (f *fakePathway) StartMonitor(ctx context.Context, m pathway.Monitor) error {
	f.startCalls++
	f.running = true
	return nil
}

func (f *fakePathway) respond(command string) string {
	if text, ok := f.failOn[command]; ok {
		return "\n" + text + "\n"
	}
	switch {
	case command == "START PATHWAY COLD !":
		f.paired = true
	case strings.HasPrefix(command, "ADD SERVER "):
		name := strings.TrimPrefix(command, "ADD SERVER ")
		if f.servers[name] {
			return "\nERROR - *1055* ENTRY ALREADY EXISTS\n"
		}
		f.servers[name] = true
	case strings.HasPrefix(command, "START SERVER "):
		name := strings.TrimPrefix(command, "START SERVER ")
		if !f.servers[name] {
			return "\nERROR - *1022* SERVER NOT DEFINED\n"
		}
		f.started[name] = true
	}
	return ""
}

func (f *fakePathway) executor() pathcom.Executor {
	return pathcom.ExecutorFunc(func(ctx context.Context, name string, commands []string) (string, error) {
		repl := pathcomtest.NewREPL(pathcomtest.DefaultBanner, f.respond)
		repl.ChunkSize = 13
		driver := pathcom.NewDriver(pathcom.DriverOptions{Session: name}, logging.NewNopLogger())
		transcript, err := driver.Run(repl, commands)
		f.sessions = append(f.sessions, session{name: name, commands: repl.Received})
		return transcript, err
	})
}

func (f *fakePathway) sessionNames() []string {
	names := make([]string, len(f.sessions))
	for i, s := range f.sessions {
		names[i] = s.name
	}
	return names
}

func testDescriptors() (pathway.Monitor, pathway.ServerClass) {
	m := pathway.NewMonitor("CRD")
	s := pathway.NewServerClass("SC-1")
	s.Program = "/usr/tandem/java/bin/java"
	s.Args = []string{"-jar", strings.Repeat("a", 195)}
	s.CPUs = []pathway.CPUPair{{Primary: 0, Backup: 1}}
	s.Processes = []string{"$CRD1"}
	s.WorkingDir = "/home/app"
	return m, s
}

func TestRun_EndToEnd_MonitorNotRunning(t *testing.T) {
	env := newFakePathway()
	m, s := testDescriptors()
	c := NewController(m, s, env, env.executor(), logging.NewNopLogger())

	require.NoError(t, c.Run(context.Background()))

	assert.Equal(t, 1, env.startCalls)
	assert.True(t, env.paired)
	assert.True(t, env.started["SC-1"])
	require.Equal(t, []string{SessionMonitor, SessionAddServer, SessionStartServer}, env.sessionNames())

	monitor := env.sessions[0].commands
	require.Len(t, monitor, 16)
	assert.Equal(t, "OPEN $CRD", monitor[0])
	for _, command := range monitor[1:13] {
		assert.True(t, strings.HasPrefix(command, "SET PATHWAY "), command)
	}
	assert.Equal(t, []string{"SET PATHMON BACKUPCPU 1", "START PATHWAY COLD !", "EXIT"}, monitor[13:])

	add := env.sessions[1].commands
	assert.Equal(t, "OPEN $CRD", add[0])
	assert.Equal(t, "SET SERVER PROCESSTYPE OSS", add[1])
	// "-jar," plus 195 characters is 200 characters: two continuation lines
	assert.Equal(t, "SET SERVER ARGLIST &", add[2])
	assert.Len(t, add[3], 121)
	assert.Len(t, add[4], 81)
	assert.Equal(t, "", add[5])
	assert.Contains(t, add, "SET SERVER CPUS (0:1)")
	assert.Contains(t, add, "SET SERVER PROCESS $CRD1")
	assert.Equal(t, []string{"ADD SERVER SC-1", "EXIT"}, add[len(add)-2:])

	assert.Equal(t, []string{"OPEN $CRD", "START SERVER SC-1", "EXIT"}, env.sessions[2].commands)
}

func TestRun_Idempotent(t *testing.T) {
	env := newFakePathway()
	m, s := testDescriptors()
	c := NewController(m, s, env, env.executor(), logging.NewNopLogger())

	require.NoError(t, c.Run(context.Background()))
	first := len(env.sessions)

	require.NoError(t, c.Run(context.Background()))

	assert.Equal(t, 1, env.startCalls)
	// The second run skips the monitor and only re-attempts the add before starting
	assert.Equal(t, []string{SessionAddServer, SessionStartServer}, env.sessionNames()[first:])
	rejected := env.sessions[first].commands
	assert.Equal(t, "ADD SERVER SC-1", rejected[len(rejected)-2])
	assert.Equal(t, "EXIT", rejected[len(rejected)-1])
}

func TestEnsureMonitor_RunningButUnconfigured(t *testing.T) {
	env := newFakePathway()
	env.running = true
	m, s := testDescriptors()
	c := NewController(m, s, env, env.executor(), logging.NewNopLogger())

	require.NoError(t, c.EnsureMonitor(context.Background()))

	assert.Equal(t, 0, env.startCalls)
	assert.Equal(t, []string{SessionMonitor}, env.sessionNames())
	assert.True(t, env.paired)
}

func TestEnsureMonitor_AlreadyConfigured(t *testing.T) {
	env := newFakePathway()
	env.running = true
	env.paired = true
	m, s := testDescriptors()
	c := NewController(m, s, env, env.executor(), logging.NewNopLogger())

	require.NoError(t, c.EnsureMonitor(context.Background()))

	assert.Equal(t, 0, env.startCalls)
	assert.Empty(t, env.sessions)
}

func TestEnsureMonitor_ConfigurationError(t *testing.T) {
	env := newFakePathway()
	env.failOn["SET PATHWAY MAXTCPS 10"] = "ERROR - *1047* PATHWAY ALREADY STARTED"
	m, s := testDescriptors()
	c := NewController(m, s, env, env.executor(), logging.NewNopLogger())

	err := c.Run(context.Background())

	require.Error(t, err)
	assert.True(t, errors.IsRemoteCommandError(err))
	segment, _ := errors.RemoteSegment(err)
	assert.Contains(t, segment, "PATHWAY ALREADY STARTED")
	assert.Equal(t, []string{SessionMonitor}, env.sessionNames())
	assert.False(t, env.paired)
}

func TestConfigureAndStartServer_OtherErrorPropagates(t *testing.T) {
	env := newFakePathway()
	env.failOn["SET SERVER PROGRAM /usr/tandem/java/bin/java"] = "ERROR - *1045* INVALID FILE NAME"
	m, s := testDescriptors()
	c := NewController(m, s, env, env.executor(), logging.NewNopLogger())

	err := c.ConfigureAndStartServer(context.Background())

	require.Error(t, err)
	segment, ok := errors.RemoteSegment(err)
	require.True(t, ok)
	assert.Equal(t, "\nERROR - *1045* INVALID FILE NAME\n=", segment)
	// No start is attempted after a fatal add failure
	assert.Equal(t, []string{SessionAddServer}, env.sessionNames())
}

func TestConfigureAndStartServer_AlreadyExistsIsSwallowed(t *testing.T) {
	env := newFakePathway()
	env.servers["SC-1"] = true
	m, s := testDescriptors()
	c := NewController(m, s, env, env.executor(), logging.NewNopLogger())

	require.NoError(t, c.ConfigureAndStartServer(context.Background()))

	assert.True(t, env.started["SC-1"])
	assert.Equal(t, []string{SessionAddServer, SessionStartServer}, env.sessionNames())
}

type MockStatusQuerier struct {
	mock.Mock
}

func (m *MockStatusQuerier) Status(ctx context.Context, name string) (tacl.MonitorStatus, error) {
	args := m.Called(name)
	return args.Get(0).(tacl.MonitorStatus), args.Error(1)
}

func (m *MockStatusQuerier) StartMonitor(ctx context.Context, monitor pathway.Monitor) error {
	args := m.Called(monitor.Name)
	return args.Error(0)
}

type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) Execute(ctx context.Context, session string, commands []string) (string, error) {
	args := m.Called(session, commands)
	return args.String(0), args.Error(1)
}

func TestRun_StartMonitorFailure(t *testing.T) {
	status := &MockStatusQuerier{}
	status.On("Status", "CRD").Return(tacl.MonitorStatus{}, nil)
	status.On("StartMonitor", "CRD").Return(errors.NewProcessError("gtacl exited with 1", nil))
	executor := &MockExecutor{}
	m, s := testDescriptors()
	c := NewController(m, s, status, executor, logging.NewNopLogger())

	err := c.Run(context.Background())

	require.Error(t, err)
	assert.True(t, errors.IsProcessError(err))
	assert.Contains(t, err.Error(), "pathmon $CRD")
	executor.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
	status.AssertExpectations(t)
}

func TestRun_StatusFailure(t *testing.T) {
	status := &MockStatusQuerier{}
	status.On("Status", "CRD").Return(tacl.MonitorStatus{}, errors.NewSpawnError("gtacl not found", nil))
	m, s := testDescriptors()
	c := NewController(m, s, status, &MockExecutor{}, logging.NewNopLogger())

	err := c.Run(context.Background())

	require.Error(t, err)
	assert.True(t, errors.IsSpawnError(err))
	status.AssertNotCalled(t, "StartMonitor", mock.Anything)
}

func TestRun_ServerValidationFailsBeforeAnySession(t *testing.T) {
	status := &MockStatusQuerier{}
	status.On("Status", "CRD").Return(tacl.MonitorStatus{Running: true, Paired: true}, nil)
	executor := &MockExecutor{}
	m, s := testDescriptors()
	s.CPUs = nil
	c := NewController(m, s, status, executor, logging.NewNopLogger())

	err := c.Run(context.Background())

	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
	executor.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

func TestStateOf(t *testing.T) {
	assert.Equal(t, MonitorNotRunning, StateOf(tacl.MonitorStatus{}))
	assert.Equal(t, MonitorRunning, StateOf(tacl.MonitorStatus{Running: true}))
	assert.Equal(t, MonitorConfigured, StateOf(tacl.MonitorStatus{Running: true, Paired: true}))
	assert.Equal(t, "configured", MonitorConfigured.String())
}
