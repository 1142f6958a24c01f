// Package config provides configuration management for the helper CLI.
//
// This package defines the settings that control how the Ollama OpenVINO
// image is built and run:
//   - Image identity (name, tag) and build inputs (Dockerfile, context dir)
//   - Container runtime settings (port, data volume, device nodes)
//   - Storage paths for downloaded model files
//
// Configuration is resolved once at process startup: defaults first, then
// environment variable overrides. The resulting Config is treated as
// read-only and passed down to commands; nothing mutates it afterwards.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/distribution/reference"
)

const (
	// DefaultImageName is the repository name of the image the CLI manages.
	DefaultImageName = "ollama-openvino"

	// DefaultImageTag is the tag applied to built images.
	DefaultImageTag = "latest"

	// DefaultDockerfile is the Dockerfile path used for image builds,
	// relative to the working directory unless overridden.
	DefaultDockerfile = "Dockerfile"

	// DefaultContextDir is the build context directory for image builds.
	DefaultContextDir = "."

	// DefaultVolumeName is the named volume that holds Ollama state
	// (models, keys) across container restarts.
	DefaultVolumeName = "ollama-data"

	// DefaultHostPort is the host port published for the Ollama API.
	// Port 11434 matches the Ollama default so standard clients work
	// without extra configuration.
	DefaultHostPort = 11434

	// ContainerPort is the fixed port the Ollama server listens on inside
	// the container. This is not configurable; only the host side moves.
	ContainerPort = 11434

	// VolumeMountPath is the fixed mount point of the data volume inside
	// the container. Ollama stores everything under /root/.ollama.
	VolumeMountPath = "/root/.ollama"

	// DefaultHomeDirName is the per-user directory for CLI state.
	// Created in the user's home directory.
	DefaultHomeDirName = ".ovhelper"

	// DefaultModelsDirName is the subdirectory under the CLI home where
	// downloaded model files are stored before import.
	DefaultModelsDirName = "models"
)

// Config represents the complete, resolved CLI configuration.
//
// A Config is produced by Load and is not modified afterwards. Commands
// copy individual fields into their option structs when flags need to
// override them for a single invocation.
type Config struct {
	// ImageName is the image repository name (without tag).
	// Override: IMAGE_NAME environment variable.
	ImageName string

	// ImageTag is the image tag.
	// Override: IMAGE_TAG environment variable.
	ImageTag string

	// Dockerfile is the path to the Dockerfile used for builds. It may
	// point outside ContextDir; the build context handles that case.
	// Override: DOCKERFILE environment variable.
	Dockerfile string

	// ContextDir is the build context directory for image builds.
	// Override: CONTEXT_DIR environment variable.
	ContextDir string

	// VolumeName is the named volume mounted at VolumeMountPath in the
	// container. Overridden only by the optional positional argument of
	// the run command, never by environment.
	VolumeName string

	// HostPort is the host port published to ContainerPort.
	HostPort int

	// DeviceNodes are the host device paths passed through to the
	// container so the OpenVINO runtime can reach the GPU. The default
	// exposes the DRI render nodes; override with --device when the
	// accelerator lives elsewhere.
	DeviceNodes []string

	// HomeDir is the directory for CLI state such as downloaded models.
	// Override: OVHELPER_HOME environment variable.
	HomeDir string
}

// envOverrides maps environment variables to the Config fields they set.
// An empty value is treated the same as unset and leaves the default in
// place, matching the ${VAR:-default} convention.
var envOverrides = []struct {
	name  string
	apply func(*Config, string)
}{
	{"IMAGE_NAME", func(c *Config, v string) { c.ImageName = v }},
	{"IMAGE_TAG", func(c *Config, v string) { c.ImageTag = v }},
	{"DOCKERFILE", func(c *Config, v string) { c.Dockerfile = v }},
	{"CONTEXT_DIR", func(c *Config, v string) { c.ContextDir = v }},
	{"OVHELPER_HOME", func(c *Config, v string) { c.HomeDir = v }},
}

// Load resolves the configuration from defaults and the environment.
//
// Resolution order:
//  1. Built-in defaults
//  2. Environment variable overrides (IMAGE_NAME, IMAGE_TAG, DOCKERFILE,
//     CONTEXT_DIR, OVHELPER_HOME)
//
// Returns:
//   - A pointer to the resolved Config
//   - error if the resulting configuration is invalid (for example an
//     image name that does not parse as a Docker reference)
//
// Example:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.ImageRef())
func Load() (*Config, error) {
	cfg := NewDefaultConfig()

	for _, o := range envOverrides {
		if v := os.Getenv(o.name); v != "" {
			o.apply(cfg, v)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewDefaultConfig creates a configuration with built-in defaults and no
// environment overrides applied. Used directly by tests and as the first
// stage of Load.
func NewDefaultConfig() *Config {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "/tmp"
	}

	return &Config{
		ImageName:   DefaultImageName,
		ImageTag:    DefaultImageTag,
		Dockerfile:  DefaultDockerfile,
		ContextDir:  DefaultContextDir,
		VolumeName:  DefaultVolumeName,
		HostPort:    DefaultHostPort,
		DeviceNodes: []string{"/dev/dri"},
		HomeDir:     filepath.Join(homeDir, DefaultHomeDirName),
	}
}

// Validate checks that the configuration is internally consistent.
//
// It verifies that the image name and tag combine into a valid Docker
// reference and that the host port is a valid TCP port. Called by Load;
// exposed so commands can re-validate after applying flag overrides.
func (c *Config) Validate() error {
	if _, err := reference.ParseNormalizedNamed(c.ImageRef()); err != nil {
		return fmt.Errorf("invalid image reference %q: %w", c.ImageRef(), err)
	}
	if c.HostPort < 1 || c.HostPort > 65535 {
		return fmt.Errorf("invalid host port %d: must be between 1 and 65535", c.HostPort)
	}
	return nil
}

// ImageRef returns the full image reference in "name:tag" form.
//
// Example:
//
//	cfg.ImageRef() // "ollama-openvino:latest"
func (c *Config) ImageRef() string {
	return fmt.Sprintf("%s:%s", c.ImageName, c.ImageTag)
}

// OllamaURL returns the base URL of the Ollama API published on the host.
func (c *Config) OllamaURL() string {
	return fmt.Sprintf("http://localhost:%d", c.HostPort)
}

// ModelsDir returns the directory where downloaded model files are stored.
// Example: ~/.ovhelper/models
func (c *Config) ModelsDir() string {
	return filepath.Join(c.HomeDir, DefaultModelsDirName)
}

// CatalogPath returns the path of the optional user catalog file that
// overlays the embedded model catalog.
func (c *Config) CatalogPath() string {
	return filepath.Join(c.HomeDir, "catalog.yaml")
}

// EnsureDirectories creates the CLI state directories if they don't exist.
//
// Directories are created with 0755 permissions. Returns an error if any
// directory cannot be created.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.HomeDir,
		c.ModelsDir(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
