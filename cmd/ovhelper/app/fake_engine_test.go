package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sebastianlutter/ollama-openvino-helper/internal/engine"
)

// fakeEngine is an in-memory Engine for command tests. It serves canned
// state and records every call, so tests can assert exactly which runtime
// operations a command performed.
type fakeEngine struct {
	info    engine.RuntimeInfo
	infoErr error

	images     map[string]engine.ImageInfo
	inspectErr error

	containers []engine.ContainerInfo
	listErr    error

	buildErr   error
	volumeErr  error
	runCode    int
	runErr     error
	detachedID string
	detachErr  error
	stopErr    error
	streamErr  error
	execCode   func(cmd []string) int
	execErr    error
	copyErr    error

	calls        []string
	builds       []engine.BuildOptions
	volumes      []string
	runs         []engine.RunOptions
	stops        []string
	stopTimeouts []int
	logTargets   []string
	logOpts      []engine.LogOptions
	execCmds     [][]string
	copiedTars   map[string][]byte
	closed       bool
}

var _ engine.Engine = (*fakeEngine)(nil)

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		info: engine.RuntimeInfo{
			Version:    "27.3.1",
			APIVersion: "1.47",
			OS:         "linux",
			Arch:       "amd64",
		},
		images:     make(map[string]engine.ImageInfo),
		copiedTars: make(map[string][]byte),
		detachedID: "d3adbeef001122334455667788990011223344556677889900112233445566",
	}
}

// withImage registers an image under the given ref so InspectImage finds it.
func (f *fakeEngine) withImage(ref string) *fakeEngine {
	f.images[ref] = engine.ImageInfo{
		ID:      "sha256:0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef",
		Ref:     ref,
		Size:    2 * 1024 * 1024 * 1024,
		Created: time.Now().Add(-2 * time.Hour),
	}
	return f
}

// withContainer appends a container to the canned listing.
func (f *fakeEngine) withContainer(name, state string, created time.Time) *fakeEngine {
	f.containers = append(f.containers, engine.ContainerInfo{
		ID:      fmt.Sprintf("%064d", len(f.containers)+1),
		Name:    name,
		Image:   "ollama-openvino:latest",
		State:   state,
		Status:  state,
		Created: created,
	})
	return f
}

func (f *fakeEngine) record(name string) {
	f.calls = append(f.calls, name)
}

// mutatingCalls returns the recorded calls that change runtime state.
// Read-only queries are filtered out.
func (f *fakeEngine) mutatingCalls() []string {
	var mutating []string
	for _, call := range f.calls {
		switch call {
		case "BuildImage", "EnsureVolume", "RunInteractive", "RunDetached", "StopContainer", "Exec", "CopyTo":
			mutating = append(mutating, call)
		}
	}
	return mutating
}

func (f *fakeEngine) callCount(name string) int {
	count := 0
	for _, call := range f.calls {
		if call == name {
			count++
		}
	}
	return count
}

func (f *fakeEngine) Info(ctx context.Context) (engine.RuntimeInfo, error) {
	f.record("Info")
	return f.info, f.infoErr
}

func (f *fakeEngine) InspectImage(ctx context.Context, ref string) (engine.ImageInfo, error) {
	f.record("InspectImage")
	if f.inspectErr != nil {
		return engine.ImageInfo{}, f.inspectErr
	}
	img, ok := f.images[ref]
	if !ok {
		return engine.ImageInfo{}, fmt.Errorf("image %s: %w", ref, engine.ErrImageNotFound)
	}
	return img, nil
}

func (f *fakeEngine) BuildImage(ctx context.Context, opts engine.BuildOptions) error {
	f.record("BuildImage")
	f.builds = append(f.builds, opts)
	if f.buildErr != nil {
		return f.buildErr
	}
	// A successful build makes the image inspectable.
	f.withImage(opts.Ref)
	return nil
}

func (f *fakeEngine) ListContainers(ctx context.Context, imageRef string) ([]engine.ContainerInfo, error) {
	f.record("ListContainers")
	return f.containers, f.listErr
}

func (f *fakeEngine) EnsureVolume(ctx context.Context, name string) error {
	f.record("EnsureVolume")
	f.volumes = append(f.volumes, name)
	return f.volumeErr
}

func (f *fakeEngine) RunInteractive(ctx context.Context, opts engine.RunOptions) (int, error) {
	f.record("RunInteractive")
	f.runs = append(f.runs, opts)
	return f.runCode, f.runErr
}

func (f *fakeEngine) RunDetached(ctx context.Context, opts engine.RunOptions) (string, error) {
	f.record("RunDetached")
	f.runs = append(f.runs, opts)
	if f.detachErr != nil {
		return "", f.detachErr
	}
	return f.detachedID, nil
}

func (f *fakeEngine) StopContainer(ctx context.Context, id string, timeoutSeconds int) error {
	f.record("StopContainer")
	f.stops = append(f.stops, id)
	f.stopTimeouts = append(f.stopTimeouts, timeoutSeconds)
	return f.stopErr
}

func (f *fakeEngine) StreamLogs(ctx context.Context, id string, opts engine.LogOptions) error {
	f.record("StreamLogs")
	f.logTargets = append(f.logTargets, id)
	f.logOpts = append(f.logOpts, opts)
	return f.streamErr
}

func (f *fakeEngine) Exec(ctx context.Context, id string, cmd []string, output io.Writer) (int, error) {
	f.record("Exec")
	f.execCmds = append(f.execCmds, cmd)
	if f.execErr != nil {
		return 0, f.execErr
	}
	if f.execCode != nil {
		return f.execCode(cmd), nil
	}
	return 0, nil
}

func (f *fakeEngine) CopyTo(ctx context.Context, id, path string, content io.Reader) error {
	f.record("CopyTo")
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	f.copiedTars[path] = data
	return f.copyErr
}

func (f *fakeEngine) Close() error {
	f.closed = true
	return nil
}
