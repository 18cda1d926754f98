// Package buildinfo exposes properties injected at build time via ldflags:
//
//	go build -ldflags "-X github.com/nomis52/archivepanel/buildinfo.gitCommit=$(git rev-parse --short HEAD)"
package buildinfo

import "fmt"

// Properties holds the injected values. Unset values read "unknown".
type Properties struct {
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}

var (
	buildTime = "unknown"
	gitCommit = "unknown"
)

// Get returns the current build properties.
func Get() Properties {
	return Properties{
		BuildTime: buildTime,
		GitCommit: gitCommit,
	}
}

// UserAgent is sent on outbound SharePoint and trigger requests.
func UserAgent() string {
	return fmt.Sprintf("archivepanel/%s", gitCommit)
}
