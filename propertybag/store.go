// Package propertybag persists per-page panel properties.
//
// A page's properties are the host-owned half of the panel's state: the
// last-known archive flag. Records carry a data version; records written by
// a different version are ignored on load.
package propertybag

import "time"

// DataVersion is the version written with every record.
const DataVersion = "1.0"

// Properties are the persisted panel properties of one page.
type Properties struct {
	Version         string    `json:"version"`
	PageURL         string    `json:"page_url"`
	ProjectArchived bool      `json:"project_archived"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Store manages persistence of page properties.
type Store interface {
	// Load returns the properties of a page. ok is false when none are stored.
	Load(pageURL string) (props Properties, ok bool, err error)
	// Save persists the properties of a page.
	Save(props Properties) error
	// Pages returns the URLs of all pages with stored properties.
	Pages() []string
}
