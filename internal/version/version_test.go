package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetVersionNeverEmpty(t *testing.T) {
	assert.NotEmpty(t, GetVersion())
}

func TestGetShortVersion(t *testing.T) {
	oldVersion, oldCommit := Version, GitCommit
	defer func() { Version, GitCommit = oldVersion, oldCommit }()

	Version = "1.4.0"
	GitCommit = "0123456789abcdef"
	assert.Equal(t, "1.4.0 (0123456)", GetShortVersion())

	Version = "dev"
	assert.Equal(t, "dev-0123456", GetShortVersion())

	GitCommit = "unknown"
	assert.True(t, strings.HasPrefix(GetShortVersion(), "dev"))
}

func TestGetDetailedVersion(t *testing.T) {
	oldVersion, oldCommit, oldTime := Version, GitCommit, BuildTime
	defer func() { Version, GitCommit, BuildTime = oldVersion, oldCommit, oldTime }()

	Version = "2.0.1"
	GitCommit = "deadbeefcafe"
	BuildTime = "2026-03-01T10:00:00Z"

	detail := GetDetailedVersion()
	assert.Contains(t, detail, "Version: 2.0.1")
	assert.Contains(t, detail, "Commit: deadbeefcafe")
	assert.Contains(t, detail, "Built: 2026-03-01T10:00:00Z")
	assert.Contains(t, detail, "Go: go")
	assert.Contains(t, detail, "Platform: ")
}

func TestIsRelease(t *testing.T) {
	old := Version
	defer func() { Version = old }()

	Version = "1.0.0"
	assert.True(t, IsRelease())

	Version = "dev"
	assert.False(t, IsRelease())
}

func TestParseBuildTime(t *testing.T) {
	assert.True(t, parseBuildTime("").IsZero())
	assert.True(t, parseBuildTime("unknown").IsZero())
	assert.True(t, parseBuildTime("yesterday").IsZero())
	assert.False(t, parseBuildTime("2026-01-02T03:04:05Z").IsZero())
	assert.False(t, parseBuildTime("2026-01-02T03:04:05").IsZero())
	assert.False(t, parseBuildTime("2026-01-02 03:04:05").IsZero())
}

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()
	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.GoVersion)
	assert.Contains(t, info.Platform, "/")
}
