package term

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func envMap(m map[string]string) Getenv {
	return func(k string) string { return m[k] }
}

var wtEnv = envMap(map[string]string{"WT_SESSION": "guid"})

func TestSupportsProgress(t *testing.T) {
	assert.True(t, SupportsProgress(wtEnv))
	assert.True(t, SupportsProgress(envMap(map[string]string{"TERM_PROGRAM": "WezTerm"})))
	assert.False(t, SupportsProgress(envMap(map[string]string{"TERM_PROGRAM": "Apple_Terminal"})))
	assert.False(t, SupportsProgress(envMap(nil)))
	assert.False(t, SupportsProgress(envMap(map[string]string{"WT_SESSION": "guid", "NO_COLOR": "1"})))
}

func TestProgressSequences(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, wtEnv)

	p.Indeterminate("fetching")
	assert.Equal(t, "\x1b]9;4;3;;fetching\x1b\\", buf.String())

	buf.Reset()
	p.Set(42, "slides")
	assert.Equal(t, "\x1b]9;4;1;42;slides\x1b\\", buf.String())

	buf.Reset()
	p.Clear()
	assert.Equal(t, "\x1b]9;4;0;0;slides\x1b\\", buf.String())
}

func TestProgressClampsPercent(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, wtEnv)

	p.Set(-5, "x")
	assert.Contains(t, buf.String(), ";1;0;x")

	buf.Reset()
	p.Set(250, "x")
	assert.Contains(t, buf.String(), ";1;100;x")
}

func TestProgressDisabledIsSilent(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, envMap(nil))

	p.Indeterminate("a")
	p.Set(50, "b")
	p.Clear()
	assert.Empty(t, buf.String())

	var nilP *Progress
	nilP.Set(10, "c") // must not panic
}

func TestSanitizeLabel(t *testing.T) {
	assert.Equal(t, "hello", SanitizeLabel("  hello  "))
	assert.Equal(t, "ab", SanitizeLabel("a\x1b]9;4;0;0;b"))
	assert.Equal(t, "safe", SanitizeLabel("sa\x00\x07fe"))
	assert.Equal(t, "", SanitizeLabel("\x1b]]"))
}

func TestHyperlink(t *testing.T) {
	link := Hyperlink("https://example.com", "example", wtEnv)
	assert.Equal(t, "\x1b]8;;https://example.com\aexample\x1b]8;;\a", link)

	// Unsupported terminal: plain text.
	assert.Equal(t, "example", Hyperlink("https://example.com", "example", envMap(nil)))
	// Missing URL: plain text.
	assert.Equal(t, "example", Hyperlink("", "example", wtEnv))
}
