// Package modelscope provides a pure Go client for downloading model
// repositories from ModelScope.
//
// The client talks directly to ModelScope's HTTP API, so no Python tooling
// or external binaries are required. Downloads are resumable: interrupted
// transfers leave a .partial file behind and the next attempt continues
// from its end with a Range request. Files that arrive with a SHA256 in the
// repo listing are verified after download and deleted on mismatch.
//
// Example usage:
//
//	client := modelscope.NewClient()
//	err := client.DownloadModel(ctx, "OpenVINO/qwen2.5-7b-instruct-int4-ov", destDir, progressFunc)
package modelscope

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

const (
	// DefaultEndpoint is the ModelScope API endpoint.
	DefaultEndpoint = "https://www.modelscope.cn"

	// defaultUserAgent identifies the helper in HTTP requests.
	defaultUserAgent = "ollama-openvino-helper/1.0 (Go)"

	// chunkSize is the read buffer size for file downloads (8MB).
	chunkSize = 8 * 1024 * 1024

	// partialSuffix marks in-progress download files.
	partialSuffix = ".partial"

	// lockFileName guards a model directory against concurrent downloads.
	lockFileName = ".download.lock"
)

// Client handles ModelScope API interactions and model downloads.
type Client struct {
	endpoint   string
	httpClient *http.Client
	userAgent  string
}

// ProgressFunc is called periodically during download to report progress.
// Parameters: filename, bytesDownloaded, totalBytes. Status-only updates
// (verification steps) pass zero for both byte counts.
type ProgressFunc func(filename string, downloaded, total int64)

// FileInfo describes a single file in a model repository.
type FileInfo struct {
	// Path is the file path relative to the repository root.
	Path string

	// Size is the file size in bytes.
	Size int64

	// Sha256 is the content hash for integrity validation. May be empty
	// for files the API reports without one.
	Sha256 string
}

// NewClient creates a ModelScope client against the public endpoint.
func NewClient() *Client {
	return NewClientWithEndpoint(DefaultEndpoint)
}

// NewClientWithEndpoint creates a client against a custom endpoint.
// Used by tests to point at a local server.
func NewClientWithEndpoint(endpoint string) *Client {
	return &Client{
		endpoint:  endpoint,
		userAgent: defaultUserAgent,
		httpClient: &http.Client{
			// No overall timeout: model files are large and transfer
			// time is unbounded. Cancellation comes from the context.
			Timeout: 0,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// DownloadModel downloads every file of a model repository into destDir.
//
// The function:
//  1. Takes a lock file in destDir so concurrent pulls of the same model
//     cannot corrupt each other
//  2. Queries the repository file listing
//  3. Downloads each file sequentially with resume support
//  4. Verifies SHA256 hashes where the listing provides them
//
// Files already present with the expected size are skipped, so rerunning a
// finished download is cheap.
//
// Parameters:
//   - ctx: Context for cancellation
//   - sourceID: ModelScope model identifier (e.g., "OpenVINO/qwen2.5-7b-instruct-int4-ov")
//   - destDir: Directory to download into; created if missing
//   - progress: Optional callback for progress updates
func (c *Client) DownloadModel(ctx context.Context, sourceID, destDir string, progress ProgressFunc) error {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	lockPath := filepath.Join(destDir, lockFileName)
	if err := c.acquireLock(lockPath); err != nil {
		return err
	}
	defer c.releaseLock(lockPath)

	files, err := c.ListFiles(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("failed to list model files: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("model %s has no files", sourceID)
	}

	for _, file := range files {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		localPath := filepath.Join(destDir, filepath.FromSlash(file.Path))
		if err := c.downloadFile(ctx, file, localPath, sourceID, progress); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to download %s: %w", file.Path, err)
		}

		if file.Sha256 != "" {
			if progress != nil {
				progress(fmt.Sprintf("Verifying %s", file.Path), 0, 0)
			}
			if err := validateFileIntegrity(localPath, file.Sha256); err != nil {
				return fmt.Errorf("integrity check failed for %s: %w", file.Path, err)
			}
		}
	}

	return nil
}

// ListFiles queries the repository file listing for a model. Directory
// entries are filtered out.
func (c *Client) ListFiles(ctx context.Context, sourceID string) ([]FileInfo, error) {
	listURL := fmt.Sprintf("%s/api/v1/models/%s/repo/files?Revision=master&Recursive=True",
		c.endpoint, sourceID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("file listing returned status %d: %s", resp.StatusCode, string(body))
	}

	// The API wraps the listing as {Data: {Files: [...]}}
	var result struct {
		Data struct {
			Files []struct {
				Name   string `json:"Name"`
				Path   string `json:"Path"`
				Size   int64  `json:"Size"`
				Sha256 string `json:"Sha256"`
				Type   string `json:"Type"`
			} `json:"Files"`
		} `json:"Data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse file listing: %w", err)
	}

	files := make([]FileInfo, 0, len(result.Data.Files))
	for _, f := range result.Data.Files {
		if f.Type == "tree" {
			continue
		}
		files = append(files, FileInfo{
			Path:   f.Path,
			Size:   f.Size,
			Sha256: f.Sha256,
		})
	}
	return files, nil
}

// downloadFile downloads a single file with resume support.
//
// An existing .partial file shorter than the target restarts the transfer
// from its end via a Range request; a .partial at or past the target size
// is discarded and the download starts over. The finished file only
// appears under its real name after a successful rename, so a readable
// file at localPath is always complete.
func (c *Client) downloadFile(ctx context.Context, file FileInfo, localPath, sourceID string, progress ProgressFunc) (err error) {
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return err
	}

	if stat, statErr := os.Stat(localPath); statErr == nil && stat.Size() == file.Size {
		if progress != nil {
			progress(file.Path, file.Size, file.Size)
		}
		return nil
	}

	if progress != nil {
		progress(file.Path, 0, file.Size)
	}

	var resumeFrom int64
	partialPath := localPath + partialSuffix
	if stat, statErr := os.Stat(partialPath); statErr == nil {
		if stat.Size() < file.Size {
			resumeFrom = stat.Size()
		} else {
			os.Remove(partialPath)
		}
	}

	query := url.Values{}
	query.Set("Revision", "master")
	query.Set("FilePath", file.Path)
	downloadURL := fmt.Sprintf("%s/api/v1/models/%s/repo?%s", c.endpoint, sourceID, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.userAgent)
	if resumeFrom > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", resumeFrom))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// Server ignored the Range header, start from scratch
		resumeFrom = 0
	case http.StatusPartialContent:
	default:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("download returned status %d: %s", resp.StatusCode, string(body))
	}

	var out *os.File
	if resumeFrom > 0 {
		out, err = os.OpenFile(partialPath, os.O_WRONLY|os.O_APPEND, 0644)
	} else {
		out, err = os.Create(partialPath)
	}
	if err != nil {
		return err
	}
	defer func() {
		out.Close()
		if err != nil && ctx.Err() == nil {
			os.Remove(partialPath)
		}
	}()

	downloaded := resumeFrom
	buf := make([]byte, chunkSize)
	lastReport := time.Now()

	for {
		select {
		case <-ctx.Done():
			// Keep the partial file for resume
			return ctx.Err()
		default:
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				return writeErr
			}
			downloaded += int64(n)

			// Throttle callbacks so tight read loops don't spend their
			// time repainting progress
			if progress != nil && time.Since(lastReport) > 500*time.Millisecond {
				progress(file.Path, downloaded, file.Size)
				lastReport = time.Now()
			}
		}

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return readErr
		}
	}

	if progress != nil {
		progress(file.Path, downloaded, file.Size)
	}

	if downloaded != file.Size {
		return fmt.Errorf("download incomplete: expected %d bytes, got %d", file.Size, downloaded)
	}

	if err := out.Close(); err != nil {
		return err
	}
	return os.Rename(partialPath, localPath)
}

// acquireLock creates a lock file so only one process downloads into a
// model directory at a time. The file records pid and time for debugging.
func (c *Client) acquireLock(lockPath string) error {
	if _, err := os.Stat(lockPath); err == nil {
		data, _ := os.ReadFile(lockPath)
		return fmt.Errorf("model download already in progress (lock: %s). If this is stale, remove the lock file manually: %s",
			string(data), lockPath)
	}

	lockInfo := fmt.Sprintf("pid=%d,time=%s", os.Getpid(), time.Now().Format(time.RFC3339))
	if err := os.WriteFile(lockPath, []byte(lockInfo), 0644); err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	return nil
}

// releaseLock removes the lock file. Safe to call when it no longer exists.
func (c *Client) releaseLock(lockPath string) {
	os.Remove(lockPath)
}

// validateFileIntegrity verifies the SHA256 hash of a downloaded file and
// deletes it on mismatch so a corrupted file never looks complete.
func validateFileIntegrity(filePath, expectedSha256 string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file for validation: %w", err)
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	actual := hex.EncodeToString(hash.Sum(nil))
	if actual != expectedSha256 {
		os.Remove(filePath)
		return fmt.Errorf("expected sha256 %s, got %s (file deleted)", expectedSha256, actual)
	}
	return nil
}
