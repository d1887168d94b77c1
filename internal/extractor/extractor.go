package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jmylchreest/summarize/internal/cache"
	"github.com/jmylchreest/summarize/internal/httpclient"
	"github.com/jmylchreest/summarize/internal/mediacache"
	"github.com/jmylchreest/summarize/internal/models"
)

// MarkdownMode controls HTML-to-Markdown conversion.
type MarkdownMode string

// Markdown modes.
const (
	MarkdownOff  MarkdownMode = "off"
	MarkdownAuto MarkdownMode = "auto"
	MarkdownLLM  MarkdownMode = "llm"
)

// ValidMarkdownMode reports whether s is a supported mode.
func ValidMarkdownMode(s string) bool {
	switch MarkdownMode(s) {
	case MarkdownOff, MarkdownAuto, MarkdownLLM:
		return true
	}
	return false
}

// Settings shape one extraction and participate in the content cache key.
type Settings struct {
	Firecrawl     FirecrawlMode
	Markdown      MarkdownMode
	Timeout       time.Duration
	MaxCharacters int
}

// Key renders the canonical settings form used in cache keys. Field order
// is fixed; unrelated settings must not leak in.
func (s Settings) Key() string {
	return fmt.Sprintf("firecrawl=%s;markdown=%s;maxChars=%d", s.Firecrawl, s.Markdown, s.MaxCharacters)
}

// MarkdownConverter converts raw HTML to Markdown with a model call. Wired
// in by the orchestrator so this package stays independent of model
// selection.
type MarkdownConverter interface {
	ToMarkdown(ctx context.Context, htmlBody, title string) (string, error)
}

// Options wires an Extractor.
type Options struct {
	HTTPClient   *httpclient.Client
	MetaCache    *cache.Store      // may be nil (cache disabled)
	MediaCache   *mediacache.Cache // may be nil
	FirecrawlKey string
	ApifyToken   string
	OpenAIKey    string // used by the transcription endpoint
	Markdown     MarkdownConverter
	Logger       *slog.Logger
}

// Extractor runs the content extraction strategy chain.
type Extractor struct {
	httpc     *httpclient.Client
	meta      *cache.Store
	media     *mediacache.Cache
	yt        *youtubeResolver
	firecrawl *firecrawlClient
	trans     *transcriber
	markdown  MarkdownConverter
	logger    *slog.Logger
}

// New builds an Extractor.
func New(opts Options) *Extractor {
	if opts.HTTPClient == nil {
		opts.HTTPClient = httpclient.New(httpclient.DefaultConfig())
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	std := opts.HTTPClient.StandardClient()

	e := &Extractor{
		httpc:    opts.HTTPClient,
		meta:     opts.MetaCache,
		media:    opts.MediaCache,
		yt:       newYouTubeResolver(std, opts.ApifyToken),
		markdown: opts.Markdown,
		logger:   opts.Logger.With("component", "extractor"),
	}
	if opts.FirecrawlKey != "" {
		e.firecrawl = newFirecrawlClient(opts.FirecrawlKey, "", std)
	}
	if opts.OpenAIKey != "" {
		e.trans = newTranscriber(opts.OpenAIKey, "", std)
	}
	return e
}

// minArticleChars is the floor under which an HTML extraction counts as
// "too little" and triggers the Firecrawl fallback in auto mode.
const minArticleChars = 200

// Extract resolves content for a classified input. Strategy failures
// accumulate in the result's diagnostics; only producing no content at all
// is an error.
func (e *Extractor) Extract(ctx context.Context, target InputTarget, settings Settings) (*models.ExtractedContent, error) {
	if settings.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, settings.Timeout)
		defer cancel()
	}

	switch target.Kind {
	case models.InputYouTube:
		return e.extractYouTube(ctx, target.URL, settings)
	case models.InputMedia:
		return e.extractMedia(ctx, target.URL, settings)
	case models.InputFile:
		return e.extractFile(target.Path, settings)
	default:
		return e.extractWebsite(ctx, target, settings)
	}
}

// extractYouTube resolves a transcript, consulting the transcript cache.
func (e *Extractor) extractYouTube(ctx context.Context, rawURL string, settings Settings) (*models.ExtractedContent, error) {
	videoID := YouTubeVideoID(rawURL)
	if videoID == "" {
		return nil, models.Errorf(models.ErrKindInput, "could not extract a video id from %q", rawURL)
	}

	var diags []string
	key := cache.TranscriptKey(rawURL, "yt:auto", "")

	type cachedTranscript struct {
		Text   string `json:"text"`
		Source string `json:"source"`
		Lang   string `json:"lang,omitempty"`
	}

	var tr cachedTranscript
	hit := false
	if e.meta != nil {
		if ok, err := cache.GetJSON(e.meta, cache.NamespaceTranscript, key, &tr); err == nil && ok {
			hit = true
		}
	}
	if !hit {
		res, err := e.yt.Resolve(ctx, videoID, &diags)
		if err != nil {
			return nil, models.Errorf(models.ErrKindExtraction,
				"no transcript for %s: %s", rawURL, strings.Join(diags, "; "))
		}
		tr = cachedTranscript{Text: res.Text, Source: res.Source, Lang: res.Lang}
		if e.meta != nil {
			_ = cache.PutJSON(e.meta, cache.NamespaceTranscript, key, tr)
		}
	}

	content, truncated := truncate(tr.Text, settings.MaxCharacters)
	return &models.ExtractedContent{
		URL:             rawURL,
		Title:           e.fetchYouTubeTitle(ctx, rawURL),
		Content:         content,
		Truncated:       truncated,
		TotalCharacters: len(tr.Text),
		WordCount:       len(strings.Fields(tr.Text)),
		Transcript: &models.TranscriptInfo{
			Source:    tr.Source,
			Chars:     len(tr.Text),
			WordCount: len(strings.Fields(tr.Text)),
			Metadata:  map[string]string{"videoId": videoID, "lang": tr.Lang},
		},
		Video:       &models.VideoRef{Kind: models.VideoYouTube, URL: rawURL},
		Diagnostics: diags,
	}, nil
}

// fetchYouTubeTitle asks the oEmbed endpoint for the video title. Failure is
// tolerated: the transcript is the payload that matters.
func (e *Extractor) fetchYouTubeTitle(ctx context.Context, rawURL string) string {
	res, err := e.httpc.Fetch(ctx, "https://www.youtube.com/oembed?format=json&url="+rawURL)
	if err != nil || res.StatusCode != http.StatusOK {
		return ""
	}
	var payload struct {
		Title string `json:"title"`
	}
	if json.Unmarshal(res.Body, &payload) != nil {
		return ""
	}
	return payload.Title
}

// extractMedia downloads (through the media cache) and transcribes a direct
// media URL.
func (e *Extractor) extractMedia(ctx context.Context, rawURL string, settings Settings) (*models.ExtractedContent, error) {
	if e.trans == nil {
		return nil, models.Errorf(models.ErrKindExtraction,
			"cannot transcribe %s: no transcription credentials configured", rawURL)
	}

	var diags []string
	key := cache.TranscriptKey(rawURL, "media", "")

	var text string
	if e.meta != nil {
		var cached struct {
			Text string `json:"text"`
		}
		if ok, err := cache.GetJSON(e.meta, cache.NamespaceTranscript, key, &cached); err == nil && ok {
			text = cached.Text
		}
	}

	if text == "" {
		path, cleanup, err := e.fetchMedia(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		defer cleanup()

		text, err = e.trans.Transcribe(ctx, path)
		if err != nil {
			return nil, models.Errorf(models.ErrKindExtraction, "transcribing %s: %v", rawURL, err)
		}
		if e.meta != nil {
			_ = cache.PutJSON(e.meta, cache.NamespaceTranscript, key, map[string]string{"text": text})
		}
	}

	content, truncated := truncate(text, settings.MaxCharacters)
	return &models.ExtractedContent{
		URL:             rawURL,
		Content:         content,
		Truncated:       truncated,
		TotalCharacters: len(text),
		WordCount:       len(strings.Fields(text)),
		Transcript: &models.TranscriptInfo{
			Source:    "transcription",
			Chars:     len(text),
			WordCount: len(strings.Fields(text)),
		},
		Video:       &models.VideoRef{Kind: models.VideoDirect, URL: rawURL},
		Diagnostics: diags,
	}, nil
}

// extractFile reads a local text file.
func (e *Extractor) extractFile(path string, settings Settings) (*models.ExtractedContent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, models.Errorf(models.ErrKindInput, "reading %s: %v", path, err)
	}
	text := string(data)
	content, truncated := truncate(text, settings.MaxCharacters)
	return &models.ExtractedContent{
		URL:             "file://" + path,
		Title:           path,
		Content:         content,
		Truncated:       truncated,
		TotalCharacters: len(text),
		WordCount:       len(strings.Fields(text)),
	}, nil
}

// extractWebsite runs the HTML strategy chain: Firecrawl-first when forced,
// raw HTML extraction, Firecrawl fallback on thin results, the video-only
// check, and the optional Markdown conversion.
func (e *Extractor) extractWebsite(ctx context.Context, target InputTarget, settings Settings) (*models.ExtractedContent, error) {
	var diags []string

	if settings.Firecrawl == FirecrawlAlways {
		if res, err := e.firecrawlExtract(ctx, target.URL, settings); err == nil {
			res.Diagnostics = diags
			return res, nil
		} else {
			diags = append(diags, fmt.Sprintf("firecrawl: %v", err))
		}
	}

	fetched, err := e.httpc.Fetch(ctx, target.URL)
	if err != nil {
		// Fetch failed entirely; Firecrawl may still reach the page.
		diags = append(diags, fmt.Sprintf("fetch: %v", err))
		if settings.Firecrawl == FirecrawlAuto && e.firecrawl != nil {
			if res, fcErr := e.firecrawlExtract(ctx, target.URL, settings); fcErr == nil {
				res.Diagnostics = diags
				return res, nil
			} else {
				diags = append(diags, fmt.Sprintf("firecrawl: %v", fcErr))
			}
		}
		return nil, models.Errorf(models.ErrKindExtraction,
			"could not fetch %s: %s", target.URL, strings.Join(diags, "; "))
	}
	if fetched.StatusCode >= 400 {
		return nil, models.Errorf(models.ErrKindExtraction,
			"fetching %s: HTTP %d", target.URL, fetched.StatusCode)
	}

	isHTML := httpclient.LooksLikeHTML(fetched.ContentType, fetched.Body)
	if target.Kind == models.InputAsset && isHTML {
		// The URL promised a document but the server returned an HTML page
		// (typically a login wall or an error page wearing a 200).
		return nil, models.Errorf(models.ErrKindExtraction,
			"%s looks like a document URL but served HTML", target.URL)
	}
	if target.Kind == models.InputAsset && !isHTML {
		// A true asset (PDF and friends): only Firecrawl can extract it.
		if e.firecrawl != nil && settings.Firecrawl != FirecrawlOff {
			if res, fcErr := e.firecrawlExtract(ctx, target.URL, settings); fcErr == nil {
				res.Diagnostics = diags
				return res, nil
			} else {
				diags = append(diags, fmt.Sprintf("firecrawl: %v", fcErr))
			}
		}
		return nil, models.Errorf(models.ErrKindExtraction,
			"no extractor available for asset %s (%s)", target.URL, fetched.ContentType)
	}

	meta, err := parseHTML(fetched.Body)
	if err != nil {
		return nil, models.Errorf(models.ErrKindExtraction, "parsing HTML from %s: %v", fetched.FinalURL, err)
	}

	// Video-only page: no usable text, exactly one embedded video.
	if len(meta.Text) < minArticleChars && len(meta.VideoURLs) == 1 {
		videoURL := meta.VideoURLs[0]
		ref := &models.VideoRef{Kind: models.VideoDirect, URL: videoURL}
		if id := YouTubeVideoID(videoURL); id != "" {
			ref = &models.VideoRef{Kind: models.VideoYouTube, URL: "https://www.youtube.com/watch?v=" + id}
		}
		return &models.ExtractedContent{
			URL:         fetched.FinalURL,
			Title:       meta.Title,
			Description: meta.Description,
			SiteName:    meta.SiteName,
			IsVideoOnly: true,
			Video:       ref,
			Diagnostics: append(diags, "page has no article text; single embedded video found"),
		}, nil
	}

	text := meta.Text
	if len(text) < minArticleChars {
		diags = append(diags, fmt.Sprintf("html extraction yielded only %d chars", len(text)))
		if settings.Firecrawl == FirecrawlAuto && e.firecrawl != nil {
			if res, fcErr := e.firecrawlExtract(ctx, target.URL, settings); fcErr == nil {
				res.Diagnostics = diags
				return res, nil
			} else {
				diags = append(diags, fmt.Sprintf("firecrawl: %v", fcErr))
			}
		}
	}
	if strings.TrimSpace(text) == "" {
		return nil, models.Errorf(models.ErrKindExtraction,
			"no content extracted from %s: %s", fetched.FinalURL, strings.Join(diags, "; "))
	}

	// Markdown conversion: forced by llm mode, or auto mode on thin HTML.
	if e.markdown != nil &&
		(settings.Markdown == MarkdownLLM ||
			(settings.Markdown == MarkdownAuto && len(text) < minArticleChars)) {
		if md, mdErr := e.markdown.ToMarkdown(ctx, string(fetched.Body), meta.Title); mdErr == nil && strings.TrimSpace(md) != "" {
			text = md
		} else if mdErr != nil {
			diags = append(diags, fmt.Sprintf("markdown conversion: %v", mdErr))
		}
	}

	content, truncated := truncate(text, settings.MaxCharacters)
	return &models.ExtractedContent{
		URL:             fetched.FinalURL,
		Title:           meta.Title,
		Description:     meta.Description,
		SiteName:        meta.SiteName,
		Content:         content,
		Truncated:       truncated,
		TotalCharacters: len(text),
		WordCount:       len(strings.Fields(text)),
		Diagnostics:     diags,
	}, nil
}

func (e *Extractor) firecrawlExtract(ctx context.Context, pageURL string, settings Settings) (*models.ExtractedContent, error) {
	if e.firecrawl == nil {
		return nil, fmt.Errorf("no firecrawl key configured")
	}
	res, err := e.firecrawl.Scrape(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(res.Markdown) == "" {
		return nil, fmt.Errorf("firecrawl returned no content")
	}

	finalURL := res.FinalURL
	if finalURL == "" {
		finalURL = pageURL
	}
	content, truncated := truncate(res.Markdown, settings.MaxCharacters)
	return &models.ExtractedContent{
		URL:             finalURL,
		Title:           res.Title,
		Description:     res.Description,
		SiteName:        res.SiteName,
		Content:         content,
		Truncated:       truncated,
		TotalCharacters: len(res.Markdown),
		WordCount:       len(strings.Fields(res.Markdown)),
	}, nil
}

// truncate caps content at maxChars (0 means unlimited) without splitting a
// word when it can help it.
func truncate(s string, maxChars int) (string, bool) {
	if maxChars <= 0 || len(s) <= maxChars {
		return s, false
	}
	cut := s[:maxChars]
	if idx := strings.LastIndexAny(cut, " \n\t"); idx > maxChars/2 {
		cut = cut[:idx]
	}
	return cut, true
}
