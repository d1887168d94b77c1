package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetInfo(t *testing.T) {
	info := GetInfo()
	assert.Equal(t, "dev", info.Version)
	assert.NotEmpty(t, info.GoVersion)
	assert.Contains(t, info.Platform, "/")
}

func TestEffectiveOverride(t *testing.T) {
	t.Setenv("SUMMARIZE_VERSION", "9.9.9")
	assert.Equal(t, "9.9.9", Effective())
	assert.Contains(t, Short(), "9.9.9")
}

func TestUserAgent(t *testing.T) {
	assert.Equal(t, "summarize/dev", UserAgent())
}
