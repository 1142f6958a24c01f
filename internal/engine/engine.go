// Package engine provides container runtime management for the helper CLI.
//
// The package wraps the Docker Engine API behind a narrow interface covering
// exactly the operations the commands need:
//   - Runtime queries (version info, image inspection, container listing)
//   - Image builds from a tarred build context
//   - Container lifecycle (run attached or detached, stop)
//   - Log streaming, in-container exec, and file copy for model imports
//
// Commands depend on the Engine interface rather than the Docker client
// directly so tests can substitute a fake implementation. The production
// implementation lives in DockerEngine; its constructor verifies daemon
// connectivity so every command fails fast with the same diagnostic when
// Docker is unreachable.
package engine

import (
	"context"
	"errors"
	"io"
	"time"
)

// Sentinel errors returned by Engine implementations. Callers discriminate
// with errors.Is to turn missing prerequisites into actionable messages.
var (
	// ErrImageNotFound indicates the managed image does not exist locally.
	ErrImageNotFound = errors.New("image not found")

	// ErrContainerNotFound indicates no matching container exists.
	ErrContainerNotFound = errors.New("container not found")
)

// RuntimeInfo describes the container runtime daemon the CLI talks to.
type RuntimeInfo struct {
	// Version is the daemon version (e.g., "27.3.1").
	Version string

	// APIVersion is the negotiated Engine API version (e.g., "1.47").
	APIVersion string

	// OS is the daemon operating system (e.g., "linux").
	OS string

	// Arch is the daemon architecture (e.g., "amd64").
	Arch string
}

// ImageInfo describes a locally available image.
type ImageInfo struct {
	// ID is the full image ID including the digest prefix.
	ID string

	// Ref is the reference the image was inspected under (name:tag).
	Ref string

	// Size is the image size in bytes.
	Size int64

	// Created is the image creation timestamp. Zero if unparseable.
	Created time.Time
}

// ContainerInfo describes a container derived from the managed image.
type ContainerInfo struct {
	// ID is the full container ID.
	ID string

	// Name is the container name without the leading slash Docker adds.
	Name string

	// Image is the image reference the container was created from.
	Image string

	// State is the container state keyword ("running", "exited", "created").
	State string

	// Status is the human-readable status line (e.g., "Up 2 hours").
	Status string

	// Created is the container creation timestamp.
	Created time.Time
}

// Running reports whether the container is currently running.
func (c ContainerInfo) Running() bool {
	return c.State == "running"
}

// BuildOptions configures an image build.
//
// The context directory is archived client-side and streamed to the daemon;
// Dockerfile may point outside ContextDir, in which case it is injected into
// the archive under a reserved name.
type BuildOptions struct {
	// ContextDir is the build context directory.
	ContextDir string

	// Dockerfile is the Dockerfile path, absolute or relative to the
	// working directory. It does not have to live inside ContextDir.
	Dockerfile string

	// Ref is the target image reference (name:tag).
	Ref string

	// NoCache disables the build cache when true.
	NoCache bool

	// Pull always attempts to pull newer base images when true.
	Pull bool

	// Output receives the rendered build progress. Discarded when nil.
	Output io.Writer
}

// RunOptions configures container creation for the run command.
//
// All argument-like values are discrete fields or slices; nothing is ever
// assembled into a shell string.
type RunOptions struct {
	// Image is the image reference to run.
	Image string

	// Name is the container name. Empty lets the daemon generate one.
	Name string

	// VolumeName is the named volume mounted at VolumeTarget. The volume
	// is created idempotently before the container starts.
	VolumeName string

	// VolumeTarget is the mount path inside the container.
	VolumeTarget string

	// HostPort is published to ContainerPort on all interfaces.
	HostPort int

	// ContainerPort is the TCP port the server listens on in the container.
	ContainerPort int

	// Devices are host device paths passed through with rwm permissions.
	// Paths that do not exist on the host are skipped.
	Devices []string

	// Env is the container environment as KEY=VALUE entries.
	Env []string

	// Labels are applied to the container for later identification.
	Labels map[string]string

	// AutoRemove removes the container when it exits.
	AutoRemove bool
}

// LogOptions configures container log streaming.
type LogOptions struct {
	// Follow keeps the stream open for new output when true.
	Follow bool

	// Tail limits the history to the last N lines ("all" for everything).
	Tail string

	// Output receives the demultiplexed log data.
	Output io.Writer
}

// Engine is the narrow container runtime interface consumed by the command
// layer. One production implementation exists (DockerEngine); tests use a
// fake that records calls and returns canned state.
type Engine interface {
	// Info returns version information about the runtime daemon.
	Info(ctx context.Context) (RuntimeInfo, error)

	// InspectImage returns details about a local image. Returns an error
	// wrapping ErrImageNotFound when the reference does not resolve.
	InspectImage(ctx context.Context, ref string) (ImageInfo, error)

	// BuildImage builds an image from a client-side tarred context and
	// streams progress to opts.Output. The image is tagged opts.Ref.
	BuildImage(ctx context.Context, opts BuildOptions) error

	// ListContainers lists containers created from the given image,
	// including stopped ones. Results are server-side filtered by image
	// ancestry so unrelated containers never appear.
	ListContainers(ctx context.Context, imageRef string) ([]ContainerInfo, error)

	// EnsureVolume creates the named volume if it does not already exist.
	// Creating an existing volume is not an error.
	EnsureVolume(ctx context.Context, name string) error

	// RunInteractive creates and starts a container attached to the
	// caller's terminal and blocks until it exits. The returned int is the
	// container's exit status; a non-zero status is not an error.
	RunInteractive(ctx context.Context, opts RunOptions) (int, error)

	// RunDetached creates and starts a container in the background and
	// returns its ID.
	RunDetached(ctx context.Context, opts RunOptions) (string, error)

	// StopContainer stops a running container, allowing timeoutSeconds for
	// graceful shutdown before the daemon kills it.
	StopContainer(ctx context.Context, id string, timeoutSeconds int) error

	// StreamLogs copies container logs to opts.Output, following the
	// stream when opts.Follow is set.
	StreamLogs(ctx context.Context, id string, opts LogOptions) error

	// Exec runs a command inside a running container, streaming combined
	// output to output. The returned int is the command's exit status; a
	// non-zero status is not an error.
	Exec(ctx context.Context, id string, cmd []string, output io.Writer) (int, error)

	// CopyTo extracts a tar stream into the container at path.
	CopyTo(ctx context.Context, id, path string, content io.Reader) error

	// Close releases the underlying client connection.
	Close() error
}
