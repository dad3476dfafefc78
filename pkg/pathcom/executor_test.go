//go:build !windows

package pathcom

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/core-tools/hsu-tsmp/pkg/channel"
	tsmperrors "github.com/core-tools/hsu-tsmp/pkg/errors"
	"github.com/core-tools/hsu-tsmp/pkg/logging"
	"github.com/core-tools/hsu-tsmp/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedPathcom answers like pathcom: a banner, then one prompt per line.
// ADD SERVER is rejected as an existing entry.
const scriptedPathcom = `
echo $$ > "$PIDFILE"
printf 'PATHCOM - T8344H01\n='
while IFS= read -r line; do
	case "$line" in
		EXIT) exit 0 ;;
		"ADD SERVER"*) printf '\nERROR - *1055* ENTRY ALREADY EXISTS\n=' ;;
		*) printf '\n%s DONE\n=' "$line" ;;
	esac
done
`

// silentPathcom prompts once and then never prompts again
const silentPathcom = `
echo $$ > "$PIDFILE"
printf 'PATHCOM - T8344H01\n='
while IFS= read -r line; do
	printf '\n&'
done
`

// stuckPathcom prompts once and then stops reading its input
const stuckPathcom = `
echo $$ > "$PIDFILE"
printf 'PATHCOM - T8344H01\n='
sleep 30
`

func newShellExecutor(t *testing.T, script string, grace time.Duration, collector metrics.Collector) (*ProcessExecutor, string) {
	t.Helper()
	pidFile := filepath.Join(t.TempDir(), "pathcom.pid")
	executor := NewProcessExecutor(ExecutorConfig{
		Execution: channel.ExecutionConfig{
			ExecutablePath: "/bin/sh",
			Args:           []string{"-c", script},
			Environment:    []string{"PIDFILE=" + pidFile},
		},
		GraceTimeout: grace,
	}, collector, logging.NewNopLogger())
	return executor, pidFile
}

// requireReaped checks that the session's child process no longer exists
func requireReaped(t *testing.T, pidFile string) {
	t.Helper()
	data, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	require.NoError(t, err)
	assert.Equal(t, syscall.ESRCH, syscall.Kill(pid, 0), "pathcom process %d is still around", pid)
}

func TestProcessExecutor_CleanExit(t *testing.T) {
	collector := metrics.NewPrometheusCollector("test")
	executor, pidFile := newShellExecutor(t, scriptedPathcom, 5*time.Second, collector)

	start := time.Now()
	transcript, err := executor.Execute(context.Background(), "monitor", []string{"OPEN $PM", "INFO PATHWAY", "EXIT"})

	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.True(t, strings.HasPrefix(transcript, "PATHCOM - T8344H01\n="))
	assert.Contains(t, transcript, "INFO PATHWAY DONE")
	expected := `
# HELP test_pathcom_commands_total Total number of commands sent to pathcom
# TYPE test_pathcom_commands_total counter
test_pathcom_commands_total{session="monitor"} 3
`
	assert.NoError(t, testutil.GatherAndCompare(collector.Registry(), strings.NewReader(expected), "test_pathcom_commands_total"))
	requireReaped(t, pidFile)
}

func TestProcessExecutor_EntryAlreadyExists(t *testing.T) {
	executor, pidFile := newShellExecutor(t, scriptedPathcom, 5*time.Second, nil)

	start := time.Now()
	_, err := executor.Execute(context.Background(), "add-server", []string{"OPEN $PM", "ADD SERVER SC-1", "EXIT"})

	require.Error(t, err)
	assert.True(t, tsmperrors.IsEntryAlreadyExists(err))
	// The driver sent EXIT, so the child ended without being killed
	assert.Less(t, time.Since(start), 5*time.Second)
	requireReaped(t, pidFile)
}

func TestProcessExecutor_LastCommandIsNotExit(t *testing.T) {
	executor, pidFile := newShellExecutor(t, scriptedPathcom, 5*time.Second, nil)

	transcript, err := executor.Execute(context.Background(), "start-server", []string{"OPEN $PM", "START SERVER SC-1"})

	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(transcript, "START SERVER SC-1 DONE\n="))
	requireReaped(t, pidFile)
}

func TestProcessExecutor_ExecutableNotFound(t *testing.T) {
	executor := NewProcessExecutor(ExecutorConfig{
		Execution: channel.ExecutionConfig{ExecutablePath: "pathcom-not-installed-here"},
	}, nil, logging.NewNopLogger())

	_, err := executor.Execute(context.Background(), "monitor", []string{"OPEN $PM"})

	require.Error(t, err)
	assert.True(t, tsmperrors.IsSpawnError(err))
}

func TestProcessExecutor_CancelledBeforeStart(t *testing.T) {
	executor, _ := newShellExecutor(t, scriptedPathcom, time.Second, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := executor.Execute(ctx, "monitor", []string{"OPEN $PM"})

	require.Error(t, err)
	assert.True(t, tsmperrors.IsCancelledError(err))
}

func TestProcessExecutor_CancelUnblocksSession(t *testing.T) {
	tests := []struct {
		name   string
		script string
	}{
		{"tool_never_prompts", silentPathcom},
		{"tool_stops_reading", stuckPathcom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			executor, pidFile := newShellExecutor(t, tt.script, 100*time.Millisecond, nil)
			ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			defer cancel()

			result := make(chan error, 1)
			go func() {
				_, err := executor.Execute(ctx, "monitor", []string{"OPEN $PM", "EXIT"})
				result <- err
			}()

			select {
			case err := <-result:
				require.Error(t, err)
				assert.True(t, tsmperrors.IsCancelledError(err))
				assert.False(t, tsmperrors.IsRemoteCommandError(err))
			case <-time.After(5 * time.Second):
				t.Fatal("Execute still blocked after the context ended")
			}
			requireReaped(t, pidFile)
		})
	}
}
