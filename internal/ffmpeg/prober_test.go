package ffmpeg

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleProbeJSON = `{
  "format": {"format_name": "mov,mp4,m4a", "duration": "634.567000", "size": "10485760"},
  "streams": [
    {"index": 0, "codec_name": "h264", "codec_type": "video", "width": 1280, "height": 720},
    {"index": 1, "codec_name": "aac", "codec_type": "audio"}
  ]
}`

func TestResolveProbeResult(t *testing.T) {
	var result ProbeResult
	require.NoError(t, json.Unmarshal([]byte(sampleProbeJSON), &result))

	info, err := result.Resolve()
	require.NoError(t, err)
	assert.InDelta(t, 634.567, info.Duration, 0.001)
	assert.Equal(t, 1280, info.Width)
	assert.Equal(t, 720, info.Height)
	assert.True(t, info.HasVideo)
	assert.True(t, info.HasAudio)
}

func TestResolveFallsBackToStreamDuration(t *testing.T) {
	result := ProbeResult{
		Streams: []ProbeStream{
			{CodecType: "video", Width: 640, Height: 360, Duration: "120.5"},
		},
	}
	info, err := result.Resolve()
	require.NoError(t, err)
	assert.InDelta(t, 120.5, info.Duration, 0.001)
}

func TestResolveRejectsMissingDuration(t *testing.T) {
	result := ProbeResult{}
	_, err := result.Resolve()
	assert.Error(t, err)
}

func TestTailLines(t *testing.T) {
	out := tailLines("banner\nline1\n\nline2\nerror: bad input\n", 2)
	assert.Equal(t, "line2 | error: bad input", out)
}
