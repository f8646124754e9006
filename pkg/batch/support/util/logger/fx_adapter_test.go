package logger

import (
	"bytes"
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/fx/fxevent"
)

func TestHookName(t *testing.T) {
	cases := map[string]string{
		"github.com/tigerroll/communes/internal/app.startLaunch.func1": "app.startLaunch",
		"bootstrap.RunMigrationsHook.func1.1":                          "bootstrap.RunMigrationsHook",
		"main.main":                                                    "main.main",
	}
	for in, want := range cases {
		assert.Equal(t, want, hookName(in), in)
	}
}

func TestFxLoggerAdapter_Levels(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)
	defer SetLogLevel("INFO")
	SetLogLevel("INFO")

	adapter := NewFxLoggerAdapter()
	adapter.LogEvent(&fxevent.OnStartExecuted{FunctionName: "bootstrap.RunMigrationsHook.func1", Runtime: time.Millisecond})
	adapter.LogEvent(&fxevent.Provided{ConstructorName: "job.NewImportJob", OutputTypeNames: []string{"port.Job"}})
	adapter.LogEvent(&fxevent.Started{})
	adapter.LogEvent(&fxevent.OnStartExecuted{FunctionName: "bootstrap.RunMigrationsHook.func1", Err: errors.New("no such table")})
	adapter.LogEvent(&fxevent.Stopping{Signal: syscall.SIGINT})

	out := buf.String()
	assert.NotContains(t, out, "done in")
	assert.NotContains(t, out, "job.NewImportJob")
	assert.Contains(t, out, "[INFO] Application started.")
	assert.Contains(t, out, "[ERROR] Start hook bootstrap.RunMigrationsHook failed")
	assert.Contains(t, out, "no such table")
	assert.Contains(t, out, "[WARN] Received INTERRUPT")
}

func TestFxLoggerAdapter_DebugShowsWiring(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)
	defer SetLogLevel("INFO")
	SetLogLevel("DEBUG")

	NewFxLoggerAdapter().LogEvent(&fxevent.Provided{
		ConstructorName: "github.com/tigerroll/communes/internal/job.NewImportJob",
		OutputTypeNames: []string{"port.Job[group = \"jobs\"]"},
	})

	assert.Contains(t, buf.String(), "[DEBUG] Constructor job.NewImportJob provides port.Job")
}
