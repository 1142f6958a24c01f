package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenVINOSandbox_PrepareEnvironment(t *testing.T) {
	sandbox := NewOpenVINOSandbox([]string{"/dev/dri"})

	env := sandbox.PrepareEnvironment()

	assert.Equal(t, "0.0.0.0", env["OLLAMA_HOST"], "server must bind all interfaces for the published port to work")
	assert.Equal(t, "1", env["ZES_ENABLE_SYSMAN"])
	assert.Len(t, env, 2)
}

func TestOpenVINOSandbox_EnvironmentList_Sorted(t *testing.T) {
	sandbox := NewOpenVINOSandbox(nil)

	entries := sandbox.EnvironmentList()

	assert.Equal(t, []string{"OLLAMA_HOST=0.0.0.0", "ZES_ENABLE_SYSMAN=1"}, entries)
}

// TestOpenVINOSandbox_DeviceMounts_SkipsMissingNodes verifies that device
// nodes absent from the host are dropped from the mount list instead of
// failing container creation on machines without the accelerator.
func TestOpenVINOSandbox_DeviceMounts_SkipsMissingNodes(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "renderD128")
	require.NoError(t, os.WriteFile(present, nil, 0644))
	missing := filepath.Join(dir, "renderD129")

	sandbox := NewOpenVINOSandbox([]string{present, missing})

	assert.Equal(t, []string{present}, sandbox.DeviceMounts())
	assert.Equal(t, []string{missing}, sandbox.MissingDevices())
}

func TestOpenVINOSandbox_MissingDevices_NoneMissing(t *testing.T) {
	dir := t.TempDir()
	node := filepath.Join(dir, "card0")
	require.NoError(t, os.WriteFile(node, nil, 0644))

	sandbox := NewOpenVINOSandbox([]string{node})

	assert.Empty(t, sandbox.MissingDevices())
}

func TestOpenVINOSandbox_RequiresPrivileged(t *testing.T) {
	sandbox := NewOpenVINOSandbox([]string{"/dev/dri"})
	assert.False(t, sandbox.RequiresPrivileged(), "DRI passthrough must not require privileged mode")
}
