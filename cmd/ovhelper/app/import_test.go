package app

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTagsStub serves a model listing under the given names, plus the
// readiness banner.
func newTagsStub(t *testing.T, names ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			fmt.Fprint(w, "Ollama is running")
			return
		}
		fmt.Fprint(w, `{"models":[`)
		for i, name := range names {
			if i > 0 {
				fmt.Fprint(w, ",")
			}
			fmt.Fprintf(w, `{"name":%q,"modified_at":"2025-01-%02dT10:00:00Z"}`, name, i+1)
		}
		fmt.Fprint(w, `]}`)
	}))
}

func TestRunImport_NotDownloaded(t *testing.T) {
	cfg := testConfig(t)
	fake := newFakeEngine()

	opts := &ImportOptions{GlobalOptions: &GlobalOptions{}, Model: "qwen2.5-7b-instruct", Tag: "latest"}
	err := runImport(t.Context(), opts, cfg, fake)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Pull it first with: ovhelper pull")
	assert.Empty(t, fake.calls, "nothing may touch the runtime before the download exists")
}

func TestRunImport_UnknownModel(t *testing.T) {
	cfg := testConfig(t)
	fake := newFakeEngine()

	opts := &ImportOptions{GlobalOptions: &GlobalOptions{}, Model: "no-such-model", Tag: "latest"}
	err := runImport(t.Context(), opts, cfg, fake)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown model")
	assert.Empty(t, fake.calls)
}

func TestRunImport_InvalidServedName(t *testing.T) {
	cfg := testConfig(t)
	seedStoredModel(t, cfg, "qwen2.5-7b-instruct", "latest")
	fake := newFakeEngine()

	opts := &ImportOptions{
		GlobalOptions: &GlobalOptions{},
		Model:         "qwen2.5-7b-instruct",
		Tag:           "latest",
		Name:          "bad name",
	}
	err := runImport(t.Context(), opts, cfg, fake)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid model name")
	assert.Empty(t, fake.calls)
}

// TestRunImport_NoRunningContainer verifies the precondition order: with no
// container up, the command fails before any file lands in the runtime.
func TestRunImport_NoRunningContainer(t *testing.T) {
	cfg := testConfig(t)
	seedStoredModel(t, cfg, "qwen2.5-7b-instruct", "latest")
	fake := newFakeEngine().withContainer("old-run", "exited", time.Now())

	opts := &ImportOptions{GlobalOptions: &GlobalOptions{}, Model: "qwen2.5-7b-instruct", Tag: "latest"}
	err := runImport(t.Context(), opts, cfg, fake)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no running")
	assert.Zero(t, fake.callCount("CopyTo"), "no files may be copied without a target container")
	assert.Zero(t, fake.callCount("Exec"))
}

func TestRunImport_StagesRegistersAndCleansUp(t *testing.T) {
	server := newTagsStub(t, "qwen2.5-7b-instruct:latest")
	defer server.Close()

	cfg := testConfig(t)
	pointConfigAt(t, cfg, server.URL)
	seedStoredModel(t, cfg, "qwen2.5-7b-instruct", "latest")
	fake := newFakeEngine().withContainer("ollama-openvino", "running", time.Now())

	opts := &ImportOptions{GlobalOptions: &GlobalOptions{}, Model: "qwen2.5-7b-instruct", Tag: "latest"}
	err := runImport(t.Context(), opts, cfg, fake)
	require.NoError(t, err)

	// Staging directory is created first, then torn down last.
	require.Len(t, fake.execCmds, 3)
	assert.Equal(t, []string{"mkdir", "-p", "/tmp/ovhelper-imports/qwen2.5-7b-instruct/model"}, fake.execCmds[0])
	assert.Equal(t, []string{
		"ollama", "create", "qwen2.5-7b-instruct",
		"-f", "/tmp/ovhelper-imports/qwen2.5-7b-instruct/Modelfile",
	}, fake.execCmds[1])
	assert.Equal(t, []string{"rm", "-rf", "/tmp/ovhelper-imports/qwen2.5-7b-instruct"}, fake.execCmds[2])

	// Model files land in the staging model directory.
	modelTar := fake.copiedTars["/tmp/ovhelper-imports/qwen2.5-7b-instruct/model"]
	require.NotNil(t, modelTar)
	assert.Equal(t, []byte("weights"), tarEntries(t, modelTar)["openvino_model.bin"])

	// The Modelfile points the server at the staged files.
	modelfileTar := fake.copiedTars["/tmp/ovhelper-imports/qwen2.5-7b-instruct"]
	require.NotNil(t, modelfileTar)
	assert.Equal(t,
		[]byte("FROM /tmp/ovhelper-imports/qwen2.5-7b-instruct/model\n"),
		tarEntries(t, modelfileTar)["Modelfile"])
}

func TestRunImport_KeepStagingSkipsCleanup(t *testing.T) {
	server := newTagsStub(t, "qwen2.5-7b-instruct:latest")
	defer server.Close()

	cfg := testConfig(t)
	pointConfigAt(t, cfg, server.URL)
	seedStoredModel(t, cfg, "qwen2.5-7b-instruct", "latest")
	fake := newFakeEngine().withContainer("ollama-openvino", "running", time.Now())

	opts := &ImportOptions{
		GlobalOptions: &GlobalOptions{},
		Model:         "qwen2.5-7b-instruct",
		Tag:           "latest",
		KeepStaging:   true,
	}
	err := runImport(t.Context(), opts, cfg, fake)
	require.NoError(t, err)

	require.Len(t, fake.execCmds, 2, "no cleanup exec with --keep-staging")
	for _, cmd := range fake.execCmds {
		assert.NotEqual(t, "rm", cmd[0])
	}
}

func TestRunImport_CustomServedName(t *testing.T) {
	server := newTagsStub(t, "my-qwen:latest")
	defer server.Close()

	cfg := testConfig(t)
	pointConfigAt(t, cfg, server.URL)
	seedStoredModel(t, cfg, "qwen2.5-7b-instruct", "latest")
	fake := newFakeEngine().withContainer("ollama-openvino", "running", time.Now())

	opts := &ImportOptions{
		GlobalOptions: &GlobalOptions{},
		Model:         "qwen2.5-7b-instruct",
		Tag:           "latest",
		Name:          "my-qwen",
	}
	err := runImport(t.Context(), opts, cfg, fake)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"ollama", "create", "my-qwen",
		"-f", "/tmp/ovhelper-imports/my-qwen/Modelfile",
	}, fake.execCmds[1])
}

// TestRunImport_CreateFailurePropagatesExitCode verifies that a failing
// ollama create surfaces its exit status unchanged and leaves the staged
// files in place for inspection.
func TestRunImport_CreateFailurePropagatesExitCode(t *testing.T) {
	cfg := testConfig(t)
	seedStoredModel(t, cfg, "qwen2.5-7b-instruct", "latest")
	fake := newFakeEngine().withContainer("ollama-openvino", "running", time.Now())
	fake.execCode = func(cmd []string) int {
		if cmd[0] == "ollama" {
			return 2
		}
		return 0
	}

	opts := &ImportOptions{GlobalOptions: &GlobalOptions{}, Model: "qwen2.5-7b-instruct", Tag: "latest"}
	err := runImport(t.Context(), opts, cfg, fake)

	var exitErr *ExitCodeError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)

	for _, cmd := range fake.execCmds {
		assert.NotEqual(t, "rm", cmd[0], "a failed registration must not clean up the staging files")
	}
}

func TestRunImport_VerificationFailure(t *testing.T) {
	server := newTagsStub(t) // server lists no models
	defer server.Close()

	cfg := testConfig(t)
	pointConfigAt(t, cfg, server.URL)
	seedStoredModel(t, cfg, "qwen2.5-7b-instruct", "latest")
	fake := newFakeEngine().withContainer("ollama-openvino", "running", time.Now())

	opts := &ImportOptions{GlobalOptions: &GlobalOptions{}, Model: "qwen2.5-7b-instruct", Tag: "latest"}
	err := runImport(t.Context(), opts, cfg, fake)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not appear in the server's model list")
}
