package automation

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/e2e-runner/internal/config"
	"github.com/shinji-kodama/e2e-runner/internal/install"
	"github.com/shinji-kodama/e2e-runner/internal/model"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("interrupt signals are not supported on Windows")
	}
}

// TestProcess_StartCapturesOutputAndTerminates verifies both output streams
// reach the sink and a single interrupt stops the server.
func TestProcess_StartCapturesOutputAndTerminates(t *testing.T) {
	skipOnWindows(t)

	sink := &syncBuffer{}
	h, err := helperProcess("serve").Start(context.Background(), sink)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		out := sink.String()
		return strings.Contains(out, "up and running") && strings.Contains(out, "DEBUG: listening")
	}, 10*time.Second, 10*time.Millisecond)

	require.NoError(t, h.Terminate())

	select {
	case <-h.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("server did not exit after interrupt")
	}
	assert.Contains(t, sink.String(), "Shutting down")

	// A second Terminate is a no-op that reports the first result.
	assert.NoError(t, h.Terminate())
}

// TestProcess_UnexpectedExit verifies Done closes without Terminate and
// Err carries the exit status.
func TestProcess_UnexpectedExit(t *testing.T) {
	sink := &syncBuffer{}
	h, err := helperProcess("crash").Start(context.Background(), sink)
	require.NoError(t, err)

	select {
	case <-h.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("crashing server never reported exit")
	}

	require.Error(t, h.Err())
	assert.Contains(t, h.Err().Error(), "exit status 3")
	assert.Contains(t, sink.String(), "BindException")

	// Terminating an exited server sends nothing and succeeds.
	assert.NoError(t, h.Terminate())
}

// TestProcess_SpawnFailure verifies a missing binary is a spawn error.
func TestProcess_SpawnFailure(t *testing.T) {
	_, err := NewProcess("/nonexistent/java", nil).Start(context.Background(), &syncBuffer{})
	require.Error(t, err)

	var se *model.StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, model.KindSpawn, se.Kind)
}

// TestNewLocalServer verifies the command line passed to the JVM.
func TestNewLocalServer(t *testing.T) {
	sel := config.Selenium{
		InstallDir:    "/opt/selenium",
		Version:       "3.141.59",
		DriverVersion: "2.46",
		Port:          4444,
		JavaBin:       "/usr/bin/java",
	}

	p := NewLocalServer(sel)

	assert.Equal(t, "/usr/bin/java", p.command)
	assert.Equal(t, []string{
		"-Dwebdriver.chrome.driver=" + install.ChromeDriverPath(sel),
		"-jar", install.ServerJarPath(sel),
		"-port", "4444",
		"-debug",
	}, p.args)
}
