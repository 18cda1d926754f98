package panel

import (
	"net/url"
	"strings"
)

// Status is the project status read from the external list.
// Values other than the constants below are carried through verbatim.
type Status string

const (
	StatusActive   Status = "Active"
	StatusArchived Status = "Archived"
	StatusUnknown  Status = "Unknown"
)

// RuntimeContext is derived once per activation.
type RuntimeContext struct {
	PageURL            string
	PathID             string
	CorrelationID      string
	Profile            string
	ExternalSiteURL    string
	ArchiveEndpoint    string
	ReactivateEndpoint string
	UserCanEdit        bool
}

// PathIdentifier returns the last path segment of a page URL.
// "https://x/sites/solar-roof-4521" yields "solar-roof-4521". A trailing
// slash is ignored.
func PathIdentifier(pageURL string) string {
	p := pageURL
	if u, err := url.Parse(pageURL); err == nil && u.Host != "" {
		p = u.Path
	}
	p = strings.TrimRight(p, "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}

// CorrelationID returns the last '-'-delimited token of a path identifier,
// the external system's ID by naming convention: "test-project-4521" yields
// "4521".
func CorrelationID(pathID string) string {
	if i := strings.LastIndex(pathID, "-"); i >= 0 {
		return pathID[i+1:]
	}
	return pathID
}
