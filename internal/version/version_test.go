package version_test

import (
	"runtime"
	"testing"

	"github.com/paveg/lakescan/internal/version"
	"github.com/stretchr/testify/assert"
)

func TestInfo(t *testing.T) {
	info := version.Info()
	assert.Equal(t, version.Version, info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
}

func TestBuildInfoString(t *testing.T) {
	tests := []struct {
		name     string
		info     version.BuildInfo
		contains []string
		excludes []string
	}{
		{
			name:     "dev build",
			info:     version.BuildInfo{Version: "dev", BuildDate: "unknown", GitCommit: "unknown", GoVersion: "go1.24"},
			contains: []string{"lakescan dev\n", "go: go1.24"},
			excludes: []string{"commit:", "built:", "arrow:"},
		},
		{
			name: "release build",
			info: version.BuildInfo{
				Version:      "v1.2.0",
				BuildDate:    "2025-01-02T03:04:05Z",
				GitCommit:    "0123456789abcdef",
				GoVersion:    "go1.24",
				ArrowVersion: "v18.1.0",
				Dirty:        true,
			},
			contains: []string{"lakescan v1.2.0 (dirty)", "commit: 0123456", "built: 2025-01-02", "arrow: v18.1.0"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.info.String()
			for _, want := range tt.contains {
				assert.Contains(t, s, want)
			}
			for _, not := range tt.excludes {
				assert.NotContains(t, s, not)
			}
		})
	}
}

func TestShortCommit(t *testing.T) {
	assert.Equal(t, "0123456", version.ShortCommit("0123456789"))
	assert.Equal(t, "abc", version.ShortCommit("abc"))
	assert.Equal(t, "0123456", version.ShortCommit("0123456789-dirty"))
}

func TestIsRelease(t *testing.T) {
	orig := version.Version
	defer func() { version.Version = orig }()

	tests := []struct {
		version string
		want    bool
	}{
		{"dev", false},
		{"v1.0.0", true},
		{"v1.0.0-rc.1", false},
	}
	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			version.Version = tt.version
			assert.Equal(t, tt.want, version.IsRelease())
		})
	}
}
