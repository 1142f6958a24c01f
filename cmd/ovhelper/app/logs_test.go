package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sebastianlutter/ollama-openvino-helper/internal/engine"
)

func TestRunLogs_NoContainers(t *testing.T) {
	cfg := testConfig(t)
	fake := newFakeEngine()

	opts := &LogsOptions{GlobalOptions: &GlobalOptions{}, Tail: "all"}
	err := runLogs(t.Context(), opts, cfg, fake)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Start one with: ovhelper run")
}

func TestRunLogs_StreamsFromRunningContainer(t *testing.T) {
	cfg := testConfig(t)
	fake := newFakeEngine().
		withContainer("old-run", "exited", time.Now()).
		withContainer("ollama-openvino", "running", time.Now().Add(-time.Hour))

	opts := &LogsOptions{GlobalOptions: &GlobalOptions{}, Follow: true, Tail: "100"}
	err := runLogs(t.Context(), opts, cfg, fake)
	require.NoError(t, err)

	require.Len(t, fake.logTargets, 1)
	assert.Equal(t, fake.containers[1].ID, fake.logTargets[0], "the running container wins even when a stopped one is newer")
	assert.True(t, fake.logOpts[0].Follow)
	assert.Equal(t, "100", fake.logOpts[0].Tail)
}

func TestPickLogTarget(t *testing.T) {
	now := time.Now()
	running := func(name string, created time.Time) engine.ContainerInfo {
		return engine.ContainerInfo{ID: name, Name: name, State: "running", Created: created}
	}
	exited := func(name string, created time.Time) engine.ContainerInfo {
		return engine.ContainerInfo{ID: name, Name: name, State: "exited", Created: created}
	}

	tests := []struct {
		name       string
		containers []engine.ContainerInfo
		want       string
	}{
		{
			"single container",
			[]engine.ContainerInfo{exited("a", now)},
			"a",
		},
		{
			"running beats newer stopped",
			[]engine.ContainerInfo{exited("newer", now), running("older", now.Add(-time.Hour))},
			"older",
		},
		{
			"newest among stopped",
			[]engine.ContainerInfo{exited("old", now.Add(-time.Hour)), exited("new", now)},
			"new",
		},
		{
			"newest among running",
			[]engine.ContainerInfo{running("old", now.Add(-time.Hour)), running("new", now)},
			"new",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pickLogTarget(tt.containers).ID)
		})
	}
}
