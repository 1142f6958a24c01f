package engine

import (
	"archive/tar"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/moby/go-archive"
	"github.com/moby/patternmatcher/ignorefile"

	"github.com/sebastianlutter/ollama-openvino-helper/internal/logger"
)

// prepareBuildContext archives the build context directory and returns the
// tar stream together with the Dockerfile name to pass to the daemon.
//
// The archive honors a .dockerignore file in the context directory. When the
// Dockerfile lives outside the context directory it cannot be referenced by
// the daemon, so it is injected into the stream under a randomized reserved
// name, the same approach the Docker CLI takes.
//
// The caller must close the returned stream.
func prepareBuildContext(contextDir, dockerfile string) (io.ReadCloser, string, error) {
	absContext, err := filepath.Abs(contextDir)
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve context directory: %w", err)
	}

	info, err := os.Stat(absContext)
	if err != nil {
		return nil, "", fmt.Errorf("build context %s: %w", contextDir, err)
	}
	if !info.IsDir() {
		return nil, "", fmt.Errorf("build context %s is not a directory", contextDir)
	}

	absDockerfile, err := filepath.Abs(dockerfile)
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve Dockerfile path: %w", err)
	}
	if _, err := os.Stat(absDockerfile); err != nil {
		return nil, "", fmt.Errorf("Dockerfile %s: %w", dockerfile, err)
	}

	excludes, err := readDockerignore(absContext)
	if err != nil {
		return nil, "", err
	}

	relDockerfile, insideContext := relativeToContext(absContext, absDockerfile)
	if insideContext {
		// Keep the build files in the archive even when patterns match them
		excludes = trimBuildFilesFromExcludes(excludes, relDockerfile)

		stream, err := archive.TarWithOptions(absContext, &archive.TarOptions{
			ExcludePatterns: excludes,
		})
		if err != nil {
			return nil, "", fmt.Errorf("failed to create build context archive: %w", err)
		}
		return stream, relDockerfile, nil
	}

	// Dockerfile is outside the context. Tar the context as-is and splice
	// the Dockerfile into the stream under a name the daemon can reference.
	logger.Debug("Dockerfile %s is outside build context %s, injecting into archive",
		dockerfile, contextDir)

	content, err := os.ReadFile(absDockerfile)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read Dockerfile %s: %w", dockerfile, err)
	}

	stream, err := archive.TarWithOptions(absContext, &archive.TarOptions{
		ExcludePatterns: excludes,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to create build context archive: %w", err)
	}

	name := randomDockerfileName()
	return injectFileIntoTar(stream, name, content), name, nil
}

// readDockerignore loads exclusion patterns from the context directory's
// .dockerignore file. A missing file yields no exclusions.
func readDockerignore(contextDir string) ([]string, error) {
	f, err := os.Open(filepath.Join(contextDir, ".dockerignore"))
	switch {
	case os.IsNotExist(err):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to open .dockerignore: %w", err)
	}
	defer f.Close()

	patterns, err := ignorefile.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read .dockerignore: %w", err)
	}
	return patterns, nil
}

// trimBuildFilesFromExcludes re-includes the Dockerfile and .dockerignore
// when exclusion patterns would drop them. The daemon needs both files
// present in the archive to run the build.
func trimBuildFilesFromExcludes(excludes []string, dockerfileName string) []string {
	if len(excludes) == 0 {
		return excludes
	}
	trimmed := append([]string{}, excludes...)
	trimmed = append(trimmed, "!"+dockerfileName, "!.dockerignore")
	return trimmed
}

// relativeToContext returns the slash-separated path of target relative to
// contextDir and whether target actually lives inside it.
func relativeToContext(contextDir, target string) (string, bool) {
	rel, err := filepath.Rel(contextDir, target)
	if err != nil {
		return "", false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// randomDockerfileName returns a reserved in-archive name for an injected
// Dockerfile. The random suffix avoids shadowing a real file in the context.
func randomDockerfileName() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return ".dockerfile.ovhelper"
	}
	return ".dockerfile." + hex.EncodeToString(buf)
}

// injectFileIntoTar rewrites a tar stream, prepending a synthetic file entry.
// An entry with the same name later in the stream is dropped so the injected
// content wins.
func injectFileIntoTar(in io.ReadCloser, name string, content []byte) io.ReadCloser {
	pr, pw := io.Pipe()

	go func() {
		defer in.Close()

		tw := tar.NewWriter(pw)
		hdr := &tar.Header{
			Name:     name,
			Mode:     0o600,
			Size:     int64(len(content)),
			ModTime:  time.Now(),
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := tw.Write(content); err != nil {
			pw.CloseWithError(err)
			return
		}

		tr := tar.NewReader(in)
		for {
			h, err := tr.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				pw.CloseWithError(err)
				return
			}
			if h.Name == name {
				continue
			}
			if err := tw.WriteHeader(h); err != nil {
				pw.CloseWithError(err)
				return
			}
			if _, err := io.Copy(tw, tr); err != nil {
				pw.CloseWithError(err)
				return
			}
		}

		pw.CloseWithError(tw.Close())
	}()

	return pr
}
