package propertybag

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/zeebo/blake3"
)

// DiskStore persists page properties to disk as one JSON file per page.
// Files are named by the BLAKE3 hash of the page URL.
type DiskStore struct {
	dir    string
	logger *slog.Logger
	pages  map[string]string // page URL -> file name, protected by mu
	mu     sync.Mutex
}

// NewDiskStore creates a new disk-backed store.
// The directory is created if it doesn't exist, and existing records are indexed.
func NewDiskStore(dir string, logger *slog.Logger) (*DiskStore, error) {
	s := &DiskStore{
		dir:    dir,
		logger: logger,
		pages:  make(map[string]string),
	}

	// Create directory if it doesn't exist
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create properties directory: %w", err)
	}

	if err := s.Reload(); err != nil {
		logger.Warn("failed to index existing properties", "error", err)
		// Continue without existing data
	}

	return s, nil
}

// Load reads the properties of a page from disk.
func (s *DiskStore) Load(pageURL string) (Properties, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, fileName(pageURL))
	props, err := readRecord(path)
	if errors.Is(err, os.ErrNotExist) {
		return Properties{}, false, nil
	}
	if err != nil {
		return Properties{}, false, err
	}
	if props.Version != DataVersion {
		s.logger.Warn("ignoring properties with unsupported version",
			"page_url", pageURL,
			"version", props.Version,
		)
		return Properties{}, false, nil
	}
	return props, true, nil
}

// Save writes the properties of a page to disk.
func (s *DiskStore) Save(props Properties) error {
	if props.PageURL == "" {
		return fmt.Errorf("cannot save properties without page URL")
	}
	props.Version = DataVersion
	if props.UpdatedAt.IsZero() {
		props.UpdatedAt = time.Now()
	}

	data, err := json.MarshalIndent(props, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal properties: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := fileName(props.PageURL)
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write properties file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace properties file: %w", err)
	}
	s.pages[props.PageURL] = name

	s.logger.Debug("saved properties to disk", "path", path, "page_url", props.PageURL)
	return nil
}

// Pages returns the URLs of all indexed pages in sorted order.
func (s *DiskStore) Pages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	pages := make([]string, 0, len(s.pages))
	for page := range s.pages {
		pages = append(pages, page)
	}
	sort.Strings(pages)
	return pages
}

// Reload re-indexes all records on disk.
func (s *DiskStore) Reload() error {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read properties directory: %w", err)
	}

	pages := make(map[string]string, len(files))
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}

		path := filepath.Join(s.dir, file.Name())
		props, err := readRecord(path)
		if err != nil {
			s.logger.Warn("failed to read properties file", "file", path, "error", err)
			continue
		}
		if props.Version != DataVersion || props.PageURL == "" {
			continue
		}
		pages[props.PageURL] = file.Name()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = pages

	return nil
}

func readRecord(path string) (Properties, error) {
	var props Properties
	data, err := os.ReadFile(path)
	if err != nil {
		return props, err
	}
	if err := json.Unmarshal(data, &props); err != nil {
		return props, fmt.Errorf("failed to parse properties file %s: %w", path, err)
	}
	return props, nil
}

func fileName(pageURL string) string {
	sum := blake3.Sum256([]byte(pageURL))
	return hex.EncodeToString(sum[:16]) + ".json"
}
