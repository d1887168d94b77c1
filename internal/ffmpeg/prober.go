package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// ProbeResult is the subset of ffprobe JSON output the pipeline consumes.
type ProbeResult struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

// ProbeFormat contains container-level information.
type ProbeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

// ProbeStream contains per-stream information.
type ProbeStream struct {
	Index     int    `json:"index"`
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Duration  string `json:"duration,omitempty"`
}

// MediaInfo is the resolved shape: duration plus the primary video
// dimensions.
type MediaInfo struct {
	Duration float64 `json:"duration"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	HasVideo bool    `json:"hasVideo"`
	HasAudio bool    `json:"hasAudio"`
}

// Prober runs ffprobe against a file or stream URL.
type Prober struct {
	binPath string
	runner  *Runner
}

// NewProber builds a Prober using the resolved ffprobe path.
func NewProber(binPath string, runner *Runner) *Prober {
	return &Prober{binPath: binPath, runner: runner}
}

// Probe inspects the input and returns duration and dimensions.
func (p *Prober) Probe(ctx context.Context, input string) (*MediaInfo, error) {
	out, err := p.runner.Run(ctx, p.binPath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		input,
	)
	if err != nil {
		return nil, fmt.Errorf("probing %s: %w", input, err)
	}

	var result ProbeResult
	if err := json.Unmarshal(out, &result); err != nil {
		return nil, fmt.Errorf("parsing probe output: %w", err)
	}
	return result.Resolve()
}

// Resolve extracts MediaInfo from raw probe output. Duration comes from the
// container, falling back to the longest stream duration.
func (r *ProbeResult) Resolve() (*MediaInfo, error) {
	info := &MediaInfo{}

	if r.Format.Duration != "" {
		if d, err := strconv.ParseFloat(r.Format.Duration, 64); err == nil {
			info.Duration = d
		}
	}

	for _, s := range r.Streams {
		switch s.CodecType {
		case "video":
			info.HasVideo = true
			if info.Width == 0 {
				info.Width = s.Width
				info.Height = s.Height
			}
		case "audio":
			info.HasAudio = true
		}
		if info.Duration == 0 && s.Duration != "" {
			if d, err := strconv.ParseFloat(s.Duration, 64); err == nil && d > info.Duration {
				info.Duration = d
			}
		}
	}

	if info.Duration <= 0 {
		return nil, fmt.Errorf("probe reported no duration")
	}
	return info, nil
}
