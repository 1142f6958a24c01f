// Package models manages the local model catalog and download store.
//
// The catalog maps short model names (e.g., "qwen2.5-7b-instruct") to
// ModelScope source IDs plus packaging metadata. A default catalog ships
// embedded in the binary; a catalog.yaml in the CLI home directory overlays
// it, so users can add or override entries without rebuilding.
//
// The store tracks downloaded model files under <models dir>/<name>/<tag>/
// and prepares them for import into the running server.
package models

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// CatalogEntry describes one model the helper knows how to fetch.
type CatalogEntry struct {
	// Name is the short local name used on the command line and as the
	// store directory (e.g., "qwen2.5-7b-instruct").
	Name string `yaml:"name"`

	// SourceID is the ModelScope repository ID
	// (e.g., "OpenVINO/Qwen2.5-7B-Instruct-int4-ov").
	SourceID string `yaml:"source"`

	// Description is a one-line human-readable summary.
	Description string `yaml:"description,omitempty"`

	// Family groups related models (e.g., "qwen", "llama").
	Family string `yaml:"family,omitempty"`

	// Parameters is the model size in billions of parameters.
	Parameters float64 `yaml:"parameters,omitempty"`

	// Quantization names the weight format (e.g., "int4", "int8", "fp16").
	Quantization string `yaml:"quantization,omitempty"`

	// ModelParams become PARAMETER lines in the generated Modelfile
	// (e.g., num_ctx: "8192").
	ModelParams map[string]string `yaml:"model_params,omitempty"`
}

// catalogFile is the YAML document shape for catalog files.
type catalogFile struct {
	Models []CatalogEntry `yaml:"models"`
}

// Catalog resolves short model names to catalog entries.
type Catalog struct {
	entries map[string]CatalogEntry
}

// DefaultCatalog parses the embedded catalog.
func DefaultCatalog() (*Catalog, error) {
	return parseCatalog(defaultCatalogYAML)
}

// LoadCatalog returns the default catalog overlaid with entries from the
// given YAML file. Entries in the file override embedded entries with the
// same name. A missing file yields the default catalog unchanged.
func LoadCatalog(path string) (*Catalog, error) {
	catalog, err := DefaultCatalog()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return catalog, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}

	overlay, err := parseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}
	for name, entry := range overlay.entries {
		catalog.entries[name] = entry
	}
	return catalog, nil
}

func parseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	entries := make(map[string]CatalogEntry, len(file.Models))
	for _, entry := range file.Models {
		if entry.Name == "" {
			return nil, fmt.Errorf("catalog entry with source %q has no name", entry.SourceID)
		}
		if entry.SourceID == "" {
			return nil, fmt.Errorf("catalog entry %q has no source", entry.Name)
		}
		entries[entry.Name] = entry
	}
	return &Catalog{entries: entries}, nil
}

// Resolve maps a command-line model argument to a catalog entry.
//
// Resolution rules:
//   - A known short name returns its catalog entry.
//   - An unknown name containing a slash is treated as a raw ModelScope ID
//     and passed through; the local name becomes the lowercased last path
//     segment.
//   - Anything else is an error listing the known names.
func (c *Catalog) Resolve(name string) (CatalogEntry, error) {
	if entry, ok := c.entries[name]; ok {
		return entry, nil
	}

	if strings.Contains(name, "/") {
		return CatalogEntry{
			Name:     localNameForSource(name),
			SourceID: name,
		}, nil
	}

	return CatalogEntry{}, fmt.Errorf(
		"unknown model %q. Known models: %s (or pass a full ModelScope ID like namespace/name)",
		name, strings.Join(c.Names(), ", "))
}

// Names returns the known short names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Entries returns all catalog entries sorted by name.
func (c *Catalog) Entries() []CatalogEntry {
	entries := make([]CatalogEntry, 0, len(c.entries))
	for _, name := range c.Names() {
		entries = append(entries, c.entries[name])
	}
	return entries
}

// localNameForSource derives a store directory name from a raw source ID:
// the last path segment, lowercased.
func localNameForSource(sourceID string) string {
	segments := strings.Split(sourceID, "/")
	return strings.ToLower(segments[len(segments)-1])
}
