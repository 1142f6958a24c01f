package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"github.com/moby/term"

	"github.com/sebastianlutter/ollama-openvino-helper/internal/logger"
)

// DockerEngine implements Engine on top of the Docker Engine API.
//
// The client respects DOCKER_HOST, DOCKER_TLS_VERIFY and DOCKER_CERT_PATH
// and negotiates the API version with the daemon. All methods are safe for
// concurrent use; the underlying client is itself thread-safe.
type DockerEngine struct {
	cli *client.Client
}

// New creates a Docker-backed engine and verifies daemon connectivity.
//
// Construction performs the following steps:
//  1. Creates the Docker client with environment-based configuration
//  2. Negotiates the API version with the daemon
//  3. Pings the daemon with a 5-second timeout
//
// The eager ping means every command that needs the runtime fails here,
// before any other work, with a single consistent diagnostic.
//
// Returns:
//   - Initialized engine on success
//   - Error if client creation fails or the daemon is unreachable
func New(ctx context.Context) (*DockerEngine, error) {
	cli, err := client.NewClientWithOpts(
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := cli.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("Docker daemon is not accessible: %w", err)
	}

	logger.Debug("Docker engine initialized (host: %s)", cli.DaemonHost())

	return &DockerEngine{cli: cli}, nil
}

// Info returns version information about the Docker daemon.
func (e *DockerEngine) Info(ctx context.Context) (RuntimeInfo, error) {
	v, err := e.cli.ServerVersion(ctx)
	if err != nil {
		return RuntimeInfo{}, fmt.Errorf("failed to query Docker version: %w", err)
	}

	return RuntimeInfo{
		Version:    v.Version,
		APIVersion: v.APIVersion,
		OS:         v.Os,
		Arch:       v.Arch,
	}, nil
}

// InspectImage returns details about a local image.
//
// A missing image is reported as an error wrapping ErrImageNotFound so
// callers can distinguish "not built yet" from daemon failures.
func (e *DockerEngine) InspectImage(ctx context.Context, ref string) (ImageInfo, error) {
	inspect, err := e.cli.ImageInspect(ctx, ref)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return ImageInfo{}, fmt.Errorf("image %s: %w", ref, ErrImageNotFound)
		}
		return ImageInfo{}, fmt.Errorf("failed to inspect image %s: %w", ref, err)
	}

	info := ImageInfo{
		ID:   inspect.ID,
		Ref:  ref,
		Size: inspect.Size,
	}
	if inspect.Created != "" {
		if created, err := time.Parse(time.RFC3339Nano, inspect.Created); err == nil {
			info.Created = created
		}
	}
	return info, nil
}

// BuildImage builds and tags an image from the configured context directory.
//
// The context is archived client-side, honoring .dockerignore; a Dockerfile
// outside the context is injected into the archive. Build progress frames
// from the daemon are rendered to opts.Output. An error frame in the stream
// fails the build with the daemon's message.
func (e *DockerEngine) BuildImage(ctx context.Context, opts BuildOptions) error {
	buildCtx, dockerfileName, err := prepareBuildContext(opts.ContextDir, opts.Dockerfile)
	if err != nil {
		return err
	}
	defer buildCtx.Close()

	logger.Info("Building image %s (context: %s, dockerfile: %s)",
		opts.Ref, opts.ContextDir, opts.Dockerfile)

	resp, err := e.cli.ImageBuild(ctx, buildCtx, build.ImageBuildOptions{
		Tags:       []string{opts.Ref},
		Dockerfile: dockerfileName,
		NoCache:    opts.NoCache,
		PullParent: opts.Pull,
		Remove:     true,
	})
	if err != nil {
		return fmt.Errorf("failed to start image build: %w", err)
	}
	defer resp.Body.Close()

	out := opts.Output
	if out == nil {
		out = io.Discard
	}
	fd, isTerm := term.GetFdInfo(out)

	if err := jsonmessage.DisplayJSONMessagesStream(resp.Body, out, fd, isTerm, nil); err != nil {
		var jsonErr *jsonmessage.JSONError
		if errors.As(err, &jsonErr) {
			return fmt.Errorf("build failed: %s", jsonErr.Message)
		}
		return fmt.Errorf("failed to read build output: %w", err)
	}

	logger.Info("Image built successfully: %s", opts.Ref)
	return nil
}

// ListContainers lists containers created from the given image, including
// stopped ones. Filtering happens server-side via the ancestor filter so
// unrelated containers on the host never show up.
func (e *DockerEngine) ListContainers(ctx context.Context, imageRef string) ([]ContainerInfo, error) {
	summaries, err := e.cli.ContainerList(ctx, container.ListOptions{
		All: true,
		Filters: filters.NewArgs(
			filters.Arg("ancestor", imageRef),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	infos := make([]ContainerInfo, 0, len(summaries))
	for _, c := range summaries {
		name := ""
		if len(c.Names) > 0 {
			// The API returns names with a leading slash
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		infos = append(infos, ContainerInfo{
			ID:      c.ID,
			Name:    name,
			Image:   c.Image,
			State:   string(c.State),
			Status:  c.Status,
			Created: time.Unix(c.Created, 0),
		})
	}
	return infos, nil
}

// EnsureVolume creates the named volume if needed. The daemon returns the
// existing volume when the name is already taken, so the call is idempotent.
func (e *DockerEngine) EnsureVolume(ctx context.Context, name string) error {
	if _, err := e.cli.VolumeCreate(ctx, volume.CreateOptions{Name: name}); err != nil {
		return fmt.Errorf("failed to create volume %s: %w", name, err)
	}
	logger.Debug("Volume ready: %s", name)
	return nil
}

// createContainer creates a container from RunOptions and returns its ID.
// A TTY is allocated when the interactive flag and terminal stdin line up.
func (e *DockerEngine) createContainer(ctx context.Context, opts RunOptions, interactive, tty bool) (string, error) {
	containerPort := nat.Port(fmt.Sprintf("%d/tcp", opts.ContainerPort))
	exposedPorts := nat.PortSet{containerPort: struct{}{}}
	portBindings := nat.PortMap{
		containerPort: []nat.PortBinding{
			{
				HostIP:   "0.0.0.0",
				HostPort: strconv.Itoa(opts.HostPort),
			},
		},
	}

	devices := make([]container.DeviceMapping, 0, len(opts.Devices))
	for _, devPath := range opts.Devices {
		devices = append(devices, container.DeviceMapping{
			PathOnHost:        devPath,
			PathInContainer:   devPath,
			CgroupPermissions: "rwm",
		})
	}

	mounts := []mount.Mount{
		{
			Type:   mount.TypeVolume,
			Source: opts.VolumeName,
			Target: opts.VolumeTarget,
		},
	}

	containerConfig := &container.Config{
		Image:        opts.Image,
		Env:          opts.Env,
		ExposedPorts: exposedPorts,
		Labels:       opts.Labels,
	}
	if interactive {
		containerConfig.Tty = tty
		containerConfig.OpenStdin = true
		containerConfig.StdinOnce = true
		containerConfig.AttachStdin = true
		containerConfig.AttachStdout = true
		containerConfig.AttachStderr = true
	}

	hostConfig := &container.HostConfig{
		Resources: container.Resources{
			Devices: devices,
		},
		Mounts:       mounts,
		PortBindings: portBindings,
		NetworkMode:  "bridge",
		AutoRemove:   opts.AutoRemove,
	}

	resp, err := e.cli.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, opts.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}

	logger.Debug("Container created: %s (image: %s)", resp.ID[:12], opts.Image)
	return resp.ID, nil
}

// RunInteractive creates and starts a container attached to the caller's
// terminal and blocks until the container exits.
//
// When stdin is a terminal it is switched to raw mode for the duration and
// window size changes are propagated to the container. Streams attach
// before the container starts so no early output is lost. The exit status
// registration also happens before start; with AutoRemove the wait
// condition is "removed", which still delivers the exit code after cleanup.
//
// The container's exit status is returned as a value. A non-zero status is
// a normal outcome for an interactive session, not an error.
func (e *DockerEngine) RunInteractive(ctx context.Context, opts RunOptions) (int, error) {
	inFd, inIsTerm := term.GetFdInfo(os.Stdin)
	tty := inIsTerm

	id, err := e.createContainer(ctx, opts, true, tty)
	if err != nil {
		return 0, err
	}

	attach, err := e.cli.ContainerAttach(ctx, id, container.AttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to attach to container: %w", err)
	}
	defer attach.Close()

	waitCond := container.WaitConditionNextExit
	if opts.AutoRemove {
		waitCond = container.WaitConditionRemoved
	}
	statusCh, waitErrCh := e.cli.ContainerWait(ctx, id, waitCond)

	if err := e.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return 0, fmt.Errorf("failed to start container: %w", err)
	}

	logger.Debug("Container started: %s", id[:12])

	if tty {
		state, err := term.SetRawTerminal(inFd)
		if err != nil {
			logger.Warn("Failed to set raw terminal mode: %v", err)
		} else {
			defer term.RestoreTerminal(inFd, state)
		}
		e.resizeTTY(ctx, id, inFd)
		go e.monitorTTYSize(ctx, id, inFd)
	}

	outputDone := make(chan error, 1)
	go func() {
		var err error
		if tty {
			_, err = io.Copy(os.Stdout, attach.Reader)
		} else {
			_, err = stdcopy.StdCopy(os.Stdout, os.Stderr, attach.Reader)
		}
		outputDone <- err
	}()

	go func() {
		io.Copy(attach.Conn, os.Stdin)
		attach.CloseWrite()
	}()

	select {
	case result := <-statusCh:
		if result.Error != nil {
			return 0, fmt.Errorf("container wait failed: %s", result.Error.Message)
		}
		// Drain remaining output before handing the terminal back
		<-outputDone
		return int(result.StatusCode), nil
	case err := <-waitErrCh:
		return 0, fmt.Errorf("failed waiting for container: %w", err)
	}
}

// RunDetached creates and starts a container in the background and returns
// its ID.
func (e *DockerEngine) RunDetached(ctx context.Context, opts RunOptions) (string, error) {
	id, err := e.createContainer(ctx, opts, false, false)
	if err != nil {
		return "", err
	}

	if err := e.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("failed to start container: %w", err)
	}

	logger.Info("Container started in background: %s", id[:12])
	return id, nil
}

// StopContainer stops a running container. The daemon sends SIGTERM and
// escalates to SIGKILL after timeoutSeconds.
func (e *DockerEngine) StopContainer(ctx context.Context, id string, timeoutSeconds int) error {
	logger.Info("Stopping container: %s", shortID(id))

	stopOptions := container.StopOptions{Timeout: &timeoutSeconds}
	if err := e.cli.ContainerStop(ctx, id, stopOptions); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}
	return nil
}

// StreamLogs copies container logs to opts.Output. Containers without a
// TTY multiplex stdout/stderr into one stream, which is demultiplexed here;
// TTY containers deliver raw bytes.
func (e *DockerEngine) StreamLogs(ctx context.Context, id string, opts LogOptions) error {
	inspect, err := e.cli.ContainerInspect(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to inspect container: %w", err)
	}
	isTTY := inspect.Config != nil && inspect.Config.Tty

	tail := opts.Tail
	if tail == "" {
		tail = "all"
	}

	reader, err := e.cli.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     opts.Follow,
		Tail:       tail,
	})
	if err != nil {
		return fmt.Errorf("failed to get container logs: %w", err)
	}
	defer reader.Close()

	out := opts.Output
	if out == nil {
		out = io.Discard
	}

	if isTTY {
		_, err = io.Copy(out, reader)
	} else {
		_, err = stdcopy.StdCopy(out, out, reader)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to stream logs: %w", err)
	}
	return nil
}

// Exec runs a command inside a running container and streams its combined
// output. The command's exit status is returned as a value; a non-zero
// status is not an error.
func (e *DockerEngine) Exec(ctx context.Context, id string, cmd []string, output io.Writer) (int, error) {
	execResp, err := e.cli.ContainerExecCreate(ctx, id, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create exec in container: %w", err)
	}

	attach, err := e.cli.ContainerExecAttach(ctx, execResp.ID, container.ExecAttachOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to attach to exec: %w", err)
	}
	defer attach.Close()

	if output == nil {
		output = io.Discard
	}
	if _, err := stdcopy.StdCopy(output, output, attach.Reader); err != nil {
		return 0, fmt.Errorf("failed to read exec output: %w", err)
	}

	inspect, err := e.cli.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to inspect exec: %w", err)
	}
	return inspect.ExitCode, nil
}

// CopyTo extracts a tar stream into the container filesystem at path.
func (e *DockerEngine) CopyTo(ctx context.Context, id, path string, content io.Reader) error {
	if err := e.cli.CopyToContainer(ctx, id, path, content, container.CopyToContainerOptions{}); err != nil {
		return fmt.Errorf("failed to copy into container: %w", err)
	}
	return nil
}

// Close releases the underlying client connection.
func (e *DockerEngine) Close() error {
	return e.cli.Close()
}

// resizeTTY pushes the current terminal size to the container. Errors are
// ignored; a failed resize only affects cosmetics.
func (e *DockerEngine) resizeTTY(ctx context.Context, id string, fd uintptr) {
	ws, err := term.GetWinsize(fd)
	if err != nil {
		return
	}
	e.cli.ContainerResize(ctx, id, container.ResizeOptions{
		Height: uint(ws.Height),
		Width:  uint(ws.Width),
	})
}

// monitorTTYSize propagates SIGWINCH to the container until ctx ends.
func (e *DockerEngine) monitorTTYSize(ctx context.Context, id string, fd uintptr) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGWINCH)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sigCh:
			e.resizeTTY(ctx, id, fd)
		}
	}
}

// shortID truncates a container ID for log output.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
