package app

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sebastianlutter/ollama-openvino-helper/internal/config"
)

func TestRunRun_ImageMissing(t *testing.T) {
	cfg := testConfig(t)
	fake := newFakeEngine()

	opts := &RunOptions{GlobalOptions: &GlobalOptions{}}
	err := runRun(t.Context(), opts, cfg, fake)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Build it first with: ovhelper build")
	assert.Empty(t, fake.mutatingCalls(), "nothing may be created before the image exists")
}

// TestRunRun_AlreadyRunningIsIdempotent verifies run's idempotency: with a
// container already up, the command reports it and starts nothing.
func TestRunRun_AlreadyRunningIsIdempotent(t *testing.T) {
	cfg := testConfig(t)
	fake := newFakeEngine().
		withImage(cfg.ImageRef()).
		withContainer("ollama-openvino", "running", time.Now())

	opts := &RunOptions{GlobalOptions: &GlobalOptions{}}
	err := runRun(t.Context(), opts, cfg, fake)

	require.NoError(t, err)
	assert.Empty(t, fake.mutatingCalls(), "an already running container must short-circuit the start")
}

func TestRunRun_InteractiveDefaults(t *testing.T) {
	cfg := testConfig(t)
	fake := newFakeEngine().withImage(cfg.ImageRef())

	opts := &RunOptions{GlobalOptions: &GlobalOptions{}}
	err := runRun(t.Context(), opts, cfg, fake)
	require.NoError(t, err)

	require.Equal(t, []string{cfg.VolumeName}, fake.volumes, "the data volume must be ensured before the start")
	require.Len(t, fake.runs, 1)

	run := fake.runs[0]
	assert.Equal(t, cfg.ImageRef(), run.Image)
	assert.Equal(t, cfg.VolumeName, run.VolumeName)
	assert.Equal(t, config.VolumeMountPath, run.VolumeTarget)
	assert.Equal(t, cfg.HostPort, run.HostPort)
	assert.Equal(t, config.ContainerPort, run.ContainerPort)
	assert.True(t, run.AutoRemove, "interactive containers are removed on exit")
	assert.Contains(t, run.Env, "OLLAMA_HOST=0.0.0.0")
	assert.Contains(t, run.Env, "ZES_ENABLE_SYSMAN=1")
	assert.Equal(t, "ovhelper", run.Labels["managed-by"])

	assert.Equal(t, 1, fake.callCount("RunInteractive"))
	assert.Zero(t, fake.callCount("RunDetached"))
}

// TestRunRun_VolumeArgumentOverride verifies the optional positional
// argument replaces the configured volume name for this invocation.
func TestRunRun_VolumeArgumentOverride(t *testing.T) {
	cfg := testConfig(t)
	fake := newFakeEngine().withImage(cfg.ImageRef())

	opts := &RunOptions{GlobalOptions: &GlobalOptions{}, Volume: "scratch-models"}
	err := runRun(t.Context(), opts, cfg, fake)
	require.NoError(t, err)

	assert.Equal(t, []string{"scratch-models"}, fake.volumes)
	require.Len(t, fake.runs, 1)
	assert.Equal(t, "scratch-models", fake.runs[0].VolumeName)
}

func TestRunRun_DetachedMode(t *testing.T) {
	cfg := testConfig(t)
	fake := newFakeEngine().withImage(cfg.ImageRef())

	opts := &RunOptions{GlobalOptions: &GlobalOptions{}, Detach: true}
	err := runRun(t.Context(), opts, cfg, fake)
	require.NoError(t, err)

	assert.Equal(t, 1, fake.callCount("RunDetached"))
	assert.Zero(t, fake.callCount("RunInteractive"))
	require.Len(t, fake.runs, 1)
	assert.False(t, fake.runs[0].AutoRemove, "detached containers must survive their exit for log inspection")
}

func TestRunRun_PortAndEnvOverrides(t *testing.T) {
	cfg := testConfig(t)
	fake := newFakeEngine().withImage(cfg.ImageRef())

	opts := &RunOptions{
		GlobalOptions: &GlobalOptions{},
		Port:          8080,
		Env:           []string{"OLLAMA_DEBUG=1"},
	}
	err := runRun(t.Context(), opts, cfg, fake)
	require.NoError(t, err)

	require.Len(t, fake.runs, 1)
	run := fake.runs[0]
	assert.Equal(t, 8080, run.HostPort)
	assert.Equal(t, config.ContainerPort, run.ContainerPort, "only the host side of the port mapping moves")
	assert.Contains(t, run.Env, "OLLAMA_DEBUG=1")
	assert.Contains(t, run.Env, "OLLAMA_HOST=0.0.0.0", "backend environment must survive user additions")
}

func TestRunRun_DeviceOverride(t *testing.T) {
	cfg := testConfig(t)
	fake := newFakeEngine().withImage(cfg.ImageRef())

	node := filepath.Join(t.TempDir(), "accel0")
	require.NoError(t, os.WriteFile(node, nil, 0644))

	opts := &RunOptions{GlobalOptions: &GlobalOptions{}, Devices: []string{node}}
	err := runRun(t.Context(), opts, cfg, fake)
	require.NoError(t, err)

	require.Len(t, fake.runs, 1)
	assert.Equal(t, []string{node}, fake.runs[0].Devices)
}

// TestRunRun_ExitCodePropagation verifies a non-zero container exit status
// surfaces as an ExitCodeError so main can pass it through verbatim.
func TestRunRun_ExitCodePropagation(t *testing.T) {
	cfg := testConfig(t)
	fake := newFakeEngine().withImage(cfg.ImageRef())
	fake.runCode = 137

	opts := &RunOptions{GlobalOptions: &GlobalOptions{}}
	err := runRun(t.Context(), opts, cfg, fake)

	var exitErr *ExitCodeError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 137, exitErr.Code)
}

func TestRunRun_ZeroExitIsSuccess(t *testing.T) {
	cfg := testConfig(t)
	fake := newFakeEngine().withImage(cfg.ImageRef())
	fake.runCode = 0

	opts := &RunOptions{GlobalOptions: &GlobalOptions{}}
	assert.NoError(t, runRun(t.Context(), opts, cfg, fake))
}

func TestRunRun_StartFailure(t *testing.T) {
	cfg := testConfig(t)
	fake := newFakeEngine().withImage(cfg.ImageRef())
	fake.runErr = errors.New("port already allocated")

	opts := &RunOptions{GlobalOptions: &GlobalOptions{}}
	err := runRun(t.Context(), opts, cfg, fake)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "port already allocated")
	var exitErr *ExitCodeError
	assert.False(t, errors.As(err, &exitErr), "a start failure is an error, not a container exit status")
}
