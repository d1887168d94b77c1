package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// transcriptResult is the outcome of one resolution strategy.
type transcriptResult struct {
	Text   string
	Source string // api, captions, actor
	Lang   string
}

// youtubeResolver resolves a transcript for a video ID, trying the timedtext
// API, then caption-track parsing of the watch page, then the external
// transcript actor when a token is available.
type youtubeResolver struct {
	httpc      *http.Client
	apifyToken string
	// watchBaseURL and timedTextBaseURL are overridable for tests.
	watchBaseURL     string
	timedTextBaseURL string
	apifyBaseURL     string
}

func newYouTubeResolver(httpc *http.Client, apifyToken string) *youtubeResolver {
	return &youtubeResolver{
		httpc:            httpc,
		apifyToken:       apifyToken,
		watchBaseURL:     "https://www.youtube.com",
		timedTextBaseURL: "https://www.youtube.com",
		apifyBaseURL:     "https://api.apify.com",
	}
}

// Resolve runs the strategy chain. Each failure is recorded in diags; only
// exhausting every strategy is an error.
func (r *youtubeResolver) Resolve(ctx context.Context, videoID string, diags *[]string) (*transcriptResult, error) {
	if res, err := r.tryTimedText(ctx, videoID); err == nil {
		return res, nil
	} else {
		*diags = append(*diags, fmt.Sprintf("youtube transcript api: %v", err))
	}

	if res, err := r.tryCaptionTracks(ctx, videoID); err == nil {
		return res, nil
	} else {
		*diags = append(*diags, fmt.Sprintf("youtube caption tracks: %v", err))
	}

	if r.apifyToken != "" {
		if res, err := r.tryApifyActor(ctx, videoID); err == nil {
			return res, nil
		} else {
			*diags = append(*diags, fmt.Sprintf("transcript actor: %v", err))
		}
	}
	return nil, fmt.Errorf("no transcript available for video %s", videoID)
}

// tryTimedText hits the public timedtext endpoint directly.
func (r *youtubeResolver) tryTimedText(ctx context.Context, videoID string) (*transcriptResult, error) {
	endpoint := fmt.Sprintf("%s/api/timedtext?v=%s&lang=en&fmt=json3", r.timedTextBaseURL, url.QueryEscape(videoID))
	body, err := r.fetch(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	text, err := parseTimedTextJSON(body)
	if err != nil {
		return nil, err
	}
	return &transcriptResult{Text: text, Source: "api", Lang: "en"}, nil
}

// parseTimedTextJSON extracts the concatenated caption text from the json3
// timedtext shape.
func parseTimedTextJSON(body []byte) (string, error) {
	var payload struct {
		Events []struct {
			Segs []struct {
				UTF8 string `json:"utf8"`
			} `json:"segs"`
		} `json:"events"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("parsing timedtext: %w", err)
	}
	var sb strings.Builder
	for _, ev := range payload.Events {
		for _, seg := range ev.Segs {
			sb.WriteString(seg.UTF8)
		}
		sb.WriteString(" ")
	}
	text := strings.Join(strings.Fields(sb.String()), " ")
	if text == "" {
		return "", fmt.Errorf("empty transcript")
	}
	return text, nil
}

var captionTracksPattern = regexp.MustCompile(`"captionTracks":(\[.*?\])`)

// tryCaptionTracks scrapes the watch page for caption track metadata and
// fetches the first track (preferring English).
func (r *youtubeResolver) tryCaptionTracks(ctx context.Context, videoID string) (*transcriptResult, error) {
	page, err := r.fetch(ctx, fmt.Sprintf("%s/watch?v=%s", r.watchBaseURL, url.QueryEscape(videoID)))
	if err != nil {
		return nil, err
	}

	match := captionTracksPattern.FindSubmatch(page)
	if match == nil {
		return nil, fmt.Errorf("no caption tracks on watch page")
	}

	var tracks []struct {
		BaseURL      string `json:"baseUrl"`
		LanguageCode string `json:"languageCode"`
	}
	if err := json.Unmarshal(match[1], &tracks); err != nil {
		return nil, fmt.Errorf("parsing caption tracks: %w", err)
	}
	if len(tracks) == 0 {
		return nil, fmt.Errorf("caption track list is empty")
	}

	track := tracks[0]
	for _, t := range tracks {
		if strings.HasPrefix(t.LanguageCode, "en") {
			track = t
			break
		}
	}

	raw, err := r.fetch(ctx, html.UnescapeString(track.BaseURL))
	if err != nil {
		return nil, err
	}
	text := parseCaptionXML(raw)
	if text == "" {
		return nil, fmt.Errorf("caption track %s was empty", track.LanguageCode)
	}
	return &transcriptResult{Text: text, Source: "captions", Lang: track.LanguageCode}, nil
}

var captionTextPattern = regexp.MustCompile(`<text[^>]*>(.*?)</text>`)

// parseCaptionXML strips the timedtext XML down to plain text.
func parseCaptionXML(raw []byte) string {
	var sb strings.Builder
	for _, m := range captionTextPattern.FindAllSubmatch(raw, -1) {
		sb.WriteString(html.UnescapeString(string(m[1])))
		sb.WriteString(" ")
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

// apifyTranscriptActor is the actor invoked as the last-resort transcript
// source.
const apifyTranscriptActor = "pintostudio~youtube-transcript-scraper"

// tryApifyActor calls the hosted transcript actor synchronously.
func (r *youtubeResolver) tryApifyActor(ctx context.Context, videoID string) (*transcriptResult, error) {
	endpoint := fmt.Sprintf("%s/v2/acts/%s/run-sync-get-dataset-items?token=%s",
		r.apifyBaseURL, apifyTranscriptActor, url.QueryEscape(r.apifyToken))

	payload, _ := json.Marshal(map[string]string{
		"videoUrl": "https://www.youtube.com/watch?v=" + videoID,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<14))
		return nil, fmt.Errorf("actor run failed: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var items []struct {
		Data []struct {
			Text string `json:"text"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decoding actor output: %w", err)
	}

	var sb strings.Builder
	for _, item := range items {
		for _, seg := range item.Data {
			sb.WriteString(seg.Text)
			sb.WriteString(" ")
		}
	}
	text := strings.Join(strings.Fields(sb.String()), " ")
	if text == "" {
		return nil, fmt.Errorf("actor returned no transcript")
	}
	return &transcriptResult{Text: text, Source: "actor"}, nil
}

func (r *youtubeResolver) fetch(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 8<<20))
}
