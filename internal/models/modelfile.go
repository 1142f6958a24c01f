package models

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/moby/go-archive"
)

// StagingDir is the directory inside the server container where model files
// are staged before registration.
const StagingDir = "/tmp/ovhelper-imports"

// StagingModelDir returns the in-container directory the model files of an
// import are copied into.
func StagingModelDir(name string) string {
	return path.Join(StagingDir, name, "model")
}

// StagingModelfilePath returns the in-container path of the Modelfile of an
// import.
func StagingModelfilePath(name string) string {
	return path.Join(StagingDir, name, "Modelfile")
}

// Modelfile renders the Modelfile that registers a staged model with the
// server. modelPath is the in-container directory holding the model files.
//
// Example output:
//
//	FROM /tmp/ovhelper-imports/qwen2.5-7b-instruct/model
//	PARAMETER num_ctx 8192
func Modelfile(modelPath string, entry CatalogEntry) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "FROM %s\n", modelPath)

	keys := make([]string, 0, len(entry.ModelParams))
	for key := range entry.ModelParams {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, "PARAMETER %s %s\n", key, entry.ModelParams[key])
	}
	return []byte(b.String())
}

// TarModelDir returns a tar stream of the contents of a downloaded model
// directory, suitable for copying into a container. Download bookkeeping
// files are excluded.
func TarModelDir(dir string) (io.ReadCloser, error) {
	return archive.TarWithOptions(dir, &archive.TarOptions{
		ExcludePatterns: []string{lockFileName, "*" + partialSuffix},
	})
}

// SingleFileTar wraps one file into a tar stream, the format the container
// copy API expects even for a single file.
func SingleFileTar(name string, content []byte) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	header := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  time.Now(),
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(header); err != nil {
		return nil, fmt.Errorf("failed to write tar header for %s: %w", name, err)
	}
	if _, err := tw.Write(content); err != nil {
		return nil, fmt.Errorf("failed to write tar content for %s: %w", name, err)
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish tar stream: %w", err)
	}
	return &buf, nil
}
