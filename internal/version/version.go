// Package version reports build information for the lakescan binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

const (
	unknownValue     = "unknown"
	commitHashLength = 7
	arrowModule      = "github.com/apache/arrow-go/v18"
)

// Build-time variables set by ldflags
var (
	Version   = "dev"
	BuildDate = unknownValue
	GitCommit = unknownValue
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version      string `json:"version" yaml:"version"`
	BuildDate    string `json:"build_date" yaml:"build_date"`
	GitCommit    string `json:"git_commit" yaml:"git_commit"`
	GoVersion    string `json:"go_version" yaml:"go_version"`
	Module       string `json:"module,omitempty" yaml:"module,omitempty"`
	ArrowVersion string `json:"arrow_version,omitempty" yaml:"arrow_version,omitempty"`
	Dirty        bool   `json:"dirty" yaml:"dirty"`
}

// Info collects build information from the ldflags variables and the
// embedded module data.
func Info() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		BuildDate: BuildDate,
		GitCommit: GitCommit,
		GoVersion: runtime.Version(),
		Dirty:     strings.HasSuffix(GitCommit, "-dirty"),
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	info.Module = bi.Main.Path
	for _, dep := range bi.Deps {
		if dep.Path == arrowModule {
			info.ArrowVersion = dep.Version
		}
	}
	for _, s := range bi.Settings {
		switch {
		case s.Key == "vcs.revision" && info.GitCommit == unknownValue:
			info.GitCommit = s.Value
		case s.Key == "vcs.modified" && s.Value == "true":
			info.Dirty = true
		}
	}
	return info
}

// String renders the information for the version command.
func (b BuildInfo) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "lakescan %s", b.Version)
	if b.Dirty {
		sb.WriteString(" (dirty)")
	}
	sb.WriteByte('\n')
	if b.GitCommit != unknownValue {
		fmt.Fprintf(&sb, "commit: %s\n", ShortCommit(b.GitCommit))
	}
	if b.BuildDate != unknownValue {
		fmt.Fprintf(&sb, "built: %s\n", b.BuildDate)
	}
	fmt.Fprintf(&sb, "go: %s\n", b.GoVersion)
	if b.ArrowVersion != "" {
		fmt.Fprintf(&sb, "arrow: %s\n", b.ArrowVersion)
	}
	return sb.String()
}

// ShortCommit abbreviates a commit hash.
func ShortCommit(commit string) string {
	commit = strings.TrimSuffix(commit, "-dirty")
	if len(commit) > commitHashLength {
		return commit[:commitHashLength]
	}
	return commit
}

// IsRelease reports whether this is a tagged, non pre-release build.
func IsRelease() bool {
	return Version != "dev" && !strings.Contains(Version, "-")
}
