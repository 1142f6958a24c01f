package app

import (
	"archive/tar"
	"bytes"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sebastianlutter/ollama-openvino-helper/internal/config"
)

// testConfig returns a configuration rooted in a temp directory so tests
// never touch the real user home.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.HomeDir = t.TempDir()
	return cfg
}

// pointConfigAt rewires the Ollama URL of cfg at a test HTTP server by
// adopting its port.
func pointConfigAt(t *testing.T, cfg *config.Config, serverURL string) {
	t.Helper()
	u, err := url.Parse(serverURL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	cfg.HostPort = port
}

// seedStoredModel marks a model version as downloaded in the local store.
func seedStoredModel(t *testing.T, cfg *config.Config, name, tag string) {
	t.Helper()
	dir := filepath.Join(cfg.ModelsDir(), name, tag)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "openvino_model.bin"), []byte("weights"), 0644))
}

// writeUserCatalog places a user catalog file where the commands load it.
func writeUserCatalog(t *testing.T, cfg *config.Config, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(cfg.HomeDir, 0755))
	require.NoError(t, os.WriteFile(cfg.CatalogPath(), []byte(content), 0644))
}

// tarEntries parses a tar archive into a map of entry name to content.
func tarEntries(t *testing.T, data []byte) map[string][]byte {
	t.Helper()
	entries := make(map[string][]byte)
	tr := tar.NewReader(bytes.NewReader(data))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		if hdr.Typeflag == tar.TypeDir {
			entries[hdr.Name] = nil
			continue
		}
		content, err := io.ReadAll(tr)
		require.NoError(t, err)
		entries[hdr.Name] = content
	}
	return entries
}
