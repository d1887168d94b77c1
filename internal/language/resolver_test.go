package language

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveTags(t *testing.T) {
	tests := []struct {
		input string
		tag   string
		label string
	}{
		{"de", "de", "German"},
		{"en", "en", "English"},
		{"pt", "pt", "Portuguese"},
		{"ja", "ja", "Japanese"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := Resolve(tt.input)
			assert.Equal(t, tt.tag, got.Tag)
			assert.Equal(t, tt.label, got.Label)
			assert.True(t, got.Resolved())
		})
	}
}

func TestResolveNames(t *testing.T) {
	assert.Equal(t, "de", Resolve("German").Tag)
	assert.Equal(t, "de", Resolve("german").Tag)
	assert.Equal(t, "de", Resolve("Deutsch").Tag)
	assert.Equal(t, "fr", Resolve("French").Tag)
}

func TestResolveStable(t *testing.T) {
	// Resolving a resolved label lands on the same language.
	for _, input := range []string{"de", "german", "fr", "Japanese", "es"} {
		first := Resolve(input)
		second := Resolve(first.Label)
		assert.Equal(t, first, second, "input %q", input)
	}
}

func TestResolveUnknownPassthrough(t *testing.T) {
	got := Resolve("  Klingon\x1b[31m  dialect ")
	assert.False(t, got.Resolved())
	// Control characters stripped, whitespace collapsed.
	assert.Equal(t, "Klingon[31m dialect", got.Label)
}

func TestResolveEmpty(t *testing.T) {
	assert.Equal(t, Language{}, Resolve(""))
	assert.Equal(t, Language{}, Resolve("   "))
}
