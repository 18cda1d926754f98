package propertybag

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps page properties in memory only (no persistence).
type MemoryStore struct {
	props map[string]Properties
	mu    sync.Mutex
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		props: make(map[string]Properties),
	}
}

// Load returns the stored properties of a page.
func (s *MemoryStore) Load(pageURL string) (Properties, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.props[pageURL]
	return p, ok, nil
}

// Save stores the properties of a page.
func (s *MemoryStore) Save(props Properties) error {
	if props.PageURL == "" {
		return fmt.Errorf("cannot save properties without page URL")
	}
	props.Version = DataVersion
	if props.UpdatedAt.IsZero() {
		props.UpdatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.props[props.PageURL] = props
	return nil
}

// Pages returns the stored page URLs in sorted order.
func (s *MemoryStore) Pages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	pages := make([]string, 0, len(s.props))
	for page := range s.props {
		pages = append(pages, page)
	}
	sort.Strings(pages)
	return pages
}
