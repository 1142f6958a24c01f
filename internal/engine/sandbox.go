package engine

import (
	"fmt"
	"os"
	"sort"

	"github.com/sebastianlutter/ollama-openvino-helper/internal/logger"
)

// OpenVINOSandbox prepares device and environment settings for containers
// running the OpenVINO inference backend.
//
// Intel GPUs are exposed to containers through the DRI render nodes rather
// than a device plugin or custom OCI runtime, so the sandbox only has to
// hand through device files and set the environment the backend expects:
//   - OLLAMA_HOST=0.0.0.0 so the server accepts connections through the
//     published port instead of binding loopback inside the container
//   - ZES_ENABLE_SYSMAN=1 so Level Zero exposes GPU telemetry to OpenVINO
type OpenVINOSandbox struct {
	deviceNodes []string
}

// NewOpenVINOSandbox creates a sandbox for the given host device nodes.
// The default node set exposes /dev/dri; callers pass an alternative list
// when the accelerator lives elsewhere.
func NewOpenVINOSandbox(deviceNodes []string) *OpenVINOSandbox {
	return &OpenVINOSandbox{deviceNodes: deviceNodes}
}

// PrepareEnvironment returns the environment variables the inference
// backend requires inside the container.
func (s *OpenVINOSandbox) PrepareEnvironment() map[string]string {
	return map[string]string{
		// Listen on all interfaces so the published port reaches the server
		"OLLAMA_HOST": "0.0.0.0",

		// Level Zero system management, needed for GPU metrics in OpenVINO
		"ZES_ENABLE_SYSMAN": "1",
	}
}

// EnvironmentList returns the backend environment as sorted KEY=VALUE
// entries, the form container creation expects.
func (s *OpenVINOSandbox) EnvironmentList() []string {
	env := s.PrepareEnvironment()
	entries := make([]string, 0, len(env))
	for key, value := range env {
		entries = append(entries, fmt.Sprintf("%s=%s", key, value))
	}
	sort.Strings(entries)
	return entries
}

// DeviceMounts returns the host device paths to pass through with rwm
// permissions. Nodes missing on the host are skipped with a debug message
// so a machine without the accelerator can still start the container for
// CPU-only use.
func (s *OpenVINOSandbox) DeviceMounts() []string {
	mounts := make([]string, 0, len(s.deviceNodes))
	for _, node := range s.deviceNodes {
		if _, err := os.Stat(node); err != nil {
			logger.Debug("Device node %s not present on host, skipping", node)
			continue
		}
		mounts = append(mounts, node)
	}
	return mounts
}

// MissingDevices returns the configured device nodes that do not exist on
// the host. Used by status to warn before a run is attempted.
func (s *OpenVINOSandbox) MissingDevices() []string {
	var missing []string
	for _, node := range s.deviceNodes {
		if _, err := os.Stat(node); err != nil {
			missing = append(missing, node)
		}
	}
	return missing
}

// RequiresPrivileged indicates whether the container needs privileged mode.
// DRI passthrough works with plain device mounts, so privileged mode stays
// off.
func (s *OpenVINOSandbox) RequiresPrivileged() bool {
	return false
}
