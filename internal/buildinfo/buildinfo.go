// Package buildinfo exposes the build metadata injected at link time.
//
// Release builds are produced from tags of the form vMAJOR.MINOR.PATCH on
// the integration branch; the packaging pipeline injects the tag, commit
// and date via -ldflags. Development builds keep the defaults below.
package buildinfo

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Set via -ldflags at build time, e.g.
//
//	-X github.com/qgenie/ai-server/internal/buildinfo.Version=v2.0.0
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info is the resolved build metadata of the running binary.
type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
	Release bool   `json:"release"`
}

// Get returns the build metadata of the running binary.
func Get() Info {
	return Info{
		Version: Version,
		Commit:  Commit,
		Date:    Date,
		Release: IsReleaseTag(Version),
	}
}

// IsReleaseTag reports whether tag has the exact release form
// vMAJOR.MINOR.PATCH. Pre-release or build suffixes, a missing "v" prefix
// and partial versions all disqualify a tag from triggering a release.
func IsReleaseTag(tag string) bool {
	if !strings.HasPrefix(tag, "v") {
		return false
	}
	v, err := semver.StrictNewVersion(strings.TrimPrefix(tag, "v"))
	if err != nil {
		return false
	}
	return v.Prerelease() == "" && v.Metadata() == ""
}

// ParseTag parses a release tag into its semantic version. It fails for
// anything IsReleaseTag rejects.
func ParseTag(tag string) (*semver.Version, error) {
	if !strings.HasPrefix(tag, "v") {
		return nil, fmt.Errorf("release tag %q must start with 'v'", tag)
	}
	v, err := semver.StrictNewVersion(strings.TrimPrefix(tag, "v"))
	if err != nil {
		return nil, fmt.Errorf("invalid release tag %q: %w", tag, err)
	}
	if v.Prerelease() != "" || v.Metadata() != "" {
		return nil, fmt.Errorf("release tag %q must not carry pre-release or build metadata", tag)
	}
	return v, nil
}
