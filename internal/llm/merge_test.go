package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeStreamingChunk(t *testing.T) {
	// Plain deltas append.
	assert.Equal(t, "hello world", MergeStreamingChunk("hello ", "world"))

	// Replay-and-extend keeps the longer string.
	assert.Equal(t, "hello world", MergeStreamingChunk("hello", "hello world"))

	// A shorter replay of the accumulated text is absorbed.
	assert.Equal(t, "hello world", MergeStreamingChunk("hello world", "hello"))

	// Empty sides pass through.
	assert.Equal(t, "abc", MergeStreamingChunk("abc", ""))
	assert.Equal(t, "abc", MergeStreamingChunk("", "abc"))
}

func TestMergeStreamingChunkIdempotentOnRepeats(t *testing.T) {
	for _, s := range []string{"", "x", "hello world", "multi\nline text"} {
		assert.Equal(t, s, MergeStreamingChunk(s, s))
	}
}

func TestCleanVisible(t *testing.T) {
	assert.Equal(t, "a b", CleanVisible("a \t  b"))
	assert.Equal(t, "one\n\ntwo", CleanVisible("one\n\n\n\ntwo"))
	assert.Equal(t, "lead", CleanVisible("\n\nlead"))
}
