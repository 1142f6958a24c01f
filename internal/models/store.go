package models

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// lockFileName and partialSuffix mirror the downloader's bookkeeping files;
// a model directory containing them is not a finished download.
const (
	lockFileName  = ".download.lock"
	partialSuffix = ".partial"
)

// StoredModel describes one downloaded model version on disk.
type StoredModel struct {
	Name    string
	Tag     string
	Path    string
	Size    int64
	ModTime time.Time
}

// Store manages downloaded model files under a root directory.
//
// Layout: <root>/<name>/<tag>/ holds the files of one model version,
// exactly as fetched from its source repository.
type Store struct {
	root string
}

// NewStore creates a store rooted at the given directory. The directory
// does not have to exist yet; it is created on first download.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// Root returns the store root directory.
func (s *Store) Root() string {
	return s.root
}

// Dir returns the directory that holds the given model version.
func (s *Store) Dir(name, tag string) string {
	return filepath.Join(s.root, name, tag)
}

// Exists reports whether the given model version has been fully downloaded.
// A directory that only contains download bookkeeping files (lock or
// partial files) does not count.
func (s *Store) Exists(name, tag string) bool {
	entries, err := os.ReadDir(s.Dir(name, tag))
	if err != nil {
		return false
	}

	complete := false
	for _, entry := range entries {
		if entry.Name() == lockFileName {
			return false
		}
		if strings.HasSuffix(entry.Name(), partialSuffix) {
			continue
		}
		complete = true
	}
	return complete
}

// List returns all fully downloaded model versions, sorted by name and tag.
func (s *Store) List() ([]StoredModel, error) {
	nameEntries, err := os.ReadDir(s.root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read models directory %s: %w", s.root, err)
	}

	var stored []StoredModel
	for _, nameEntry := range nameEntries {
		if !nameEntry.IsDir() || strings.HasPrefix(nameEntry.Name(), ".") {
			continue
		}
		tagEntries, err := os.ReadDir(filepath.Join(s.root, nameEntry.Name()))
		if err != nil {
			continue
		}
		for _, tagEntry := range tagEntries {
			if !tagEntry.IsDir() || strings.HasPrefix(tagEntry.Name(), ".") {
				continue
			}
			if !s.Exists(nameEntry.Name(), tagEntry.Name()) {
				continue
			}

			dir := s.Dir(nameEntry.Name(), tagEntry.Name())
			size, modTime, err := dirStats(dir)
			if err != nil {
				return nil, err
			}
			stored = append(stored, StoredModel{
				Name:    nameEntry.Name(),
				Tag:     tagEntry.Name(),
				Path:    dir,
				Size:    size,
				ModTime: modTime,
			})
		}
	}

	sort.Slice(stored, func(i, j int) bool {
		if stored[i].Name != stored[j].Name {
			return stored[i].Name < stored[j].Name
		}
		return stored[i].Tag < stored[j].Tag
	})
	return stored, nil
}

// dirStats sums the size of the regular files under dir and returns the
// newest modification time among them.
func dirStats(dir string) (int64, time.Time, error) {
	var size int64
	var newest time.Time

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		size += info.Size()
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
		return nil
	})
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to measure %s: %w", dir, err)
	}
	return size, newest, nil
}
