package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsReleaseTag(t *testing.T) {
	tests := []struct {
		tag  string
		want bool
	}{
		{"v1.0.0", true},
		{"v0.0.1", true},
		{"v12.34.56", true},
		{"1.0.0", false},     // missing v prefix
		{"v1.0", false},      // partial version
		{"v1", false},        // partial version
		{"v1.0.0-rc1", false},
		{"v1.0.0+build.5", false},
		{"v1.0.0.0", false},
		{"latest", false},
		{"", false},
		{"dev", false},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			assert.Equal(t, tt.want, IsReleaseTag(tt.tag))
		})
	}
}

func TestParseTag(t *testing.T) {
	v, err := ParseTag("v2.1.3")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v.Major())
	assert.Equal(t, uint64(1), v.Minor())
	assert.Equal(t, uint64(3), v.Patch())

	_, err = ParseTag("2.1.3")
	assert.Error(t, err)

	_, err = ParseTag("v2.1.3-beta")
	assert.Error(t, err)
}

func TestGetDefaults(t *testing.T) {
	info := Get()
	assert.Equal(t, Version, info.Version)
	assert.False(t, info.Release, "dev builds must not report as releases")
}
