// Package orchestrator sequences a summarization run: language resolution,
// input classification, content-cache probe, extraction, the slides
// side-channel, model selection with fallback, streaming merge, and the cost
// report.
package orchestrator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jmylchreest/summarize/internal/cache"
	"github.com/jmylchreest/summarize/internal/config"
	"github.com/jmylchreest/summarize/internal/costbook"
	"github.com/jmylchreest/summarize/internal/extractor"
	"github.com/jmylchreest/summarize/internal/language"
	"github.com/jmylchreest/summarize/internal/llm"
	"github.com/jmylchreest/summarize/internal/models"
	"github.com/jmylchreest/summarize/internal/slides"
)

// Options wire an Orchestrator.
type Options struct {
	Config    *config.Config
	Registry  *llm.Registry
	Extractor *extractor.Extractor
	Slides    *slides.Pipeline // nil disables the slides side-channel
	Meta      *cache.Store     // nil disables content/summary caching
	Pricing   *models.PricingTable
	Logger    *slog.Logger

	// MaxInputTokens refuses content above the cap; ChunkInputTokens triggers
	// the map-reduce path.
	MaxInputTokens   int
	ChunkInputTokens int
}

// Orchestrator runs summarization jobs.
type Orchestrator struct {
	cfg       *config.Config
	registry  *llm.Registry
	extractor *extractor.Extractor
	slides    *slides.Pipeline
	meta      *cache.Store
	pricing   *models.PricingTable
	logger    *slog.Logger

	maxInputTokens   int
	chunkInputTokens int
}

// New builds an Orchestrator.
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxInputTokens <= 0 {
		opts.MaxInputTokens = DefaultMaxInputTokens
	}
	if opts.ChunkInputTokens <= 0 {
		opts.ChunkInputTokens = DefaultChunkInputTokens
	}
	if opts.Pricing == nil {
		opts.Pricing = models.DefaultPricing()
	}
	return &Orchestrator{
		cfg:              opts.Config,
		registry:         opts.Registry,
		extractor:        opts.Extractor,
		slides:           opts.Slides,
		meta:             opts.Meta,
		pricing:          opts.Pricing,
		logger:           logger.With("component", "orchestrator"),
		maxInputTokens:   opts.MaxInputTokens,
		chunkInputTokens: opts.ChunkInputTokens,
	}
}

// SlidesDone is delivered to the slides hook exactly once.
type SlidesDone struct {
	Result *models.SlideExtractionResult
	Err    error
}

// RunRequest describes one job.
type RunRequest struct {
	// Input is the raw URL or path. Ignored when PageText is set.
	Input string
	// PageText, when non-empty, skips extraction and summarizes the supplied
	// text directly (daemon page mode).
	PageText  string
	PageTitle string

	Model         string
	Length        models.SummaryLength
	Language      string
	Prompt        string
	MaxCharacters int

	MaxOutputTokens int
	Timeout         time.Duration

	ExtractOnly  bool
	NoCache      bool
	ExtractorSet extractor.Settings

	Slides               bool
	SlidesOCR            bool
	SlidesSceneThreshold float64
	SlidesProgress       slides.ProgressFunc
	OnSlides             func(SlidesDone)

	// OnChunk receives each new piece of client-visible text during
	// streaming, after delta merging.
	OnChunk func(text string)
	// OnStatus receives coarse stage notifications.
	OnStatus func(stage string)
}

// RunResult is the outcome of a completed run.
type RunResult struct {
	Content          *models.ExtractedContent
	Summary          string
	Model            models.ModelID
	Language         language.Language
	ContentFromCache bool
	SummaryFromCache bool
	Slides           *models.SlideExtractionResult
	Report           costbook.Report
}

// Run executes the flow. Slides run in parallel with the summary; Run waits
// for both before returning, but the slides hook fires as soon as the slides
// finish.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	book := costbook.New(o.pricing)
	lang := language.Resolve(req.Language)
	result := &RunResult{Language: lang}

	content, target, err := o.resolveContent(ctx, req, book, result)
	if err != nil {
		return nil, err
	}
	result.Content = content

	// Slides side-channel: non-blocking for the summary path, done-hook
	// fires exactly once.
	var slidesWG sync.WaitGroup
	var slidesOnce sync.Once
	var slidesResult *models.SlideExtractionResult
	if req.Slides {
		slidesWG.Add(1)
		go func() {
			defer slidesWG.Done()
			res, sErr := o.runSlides(ctx, req, target, content)
			slidesResult = res
			slidesOnce.Do(func() {
				if req.OnSlides != nil {
					req.OnSlides(SlidesDone{Result: res, Err: sErr})
				}
			})
		}()
	}
	defer func() {
		slidesWG.Wait()
		result.Slides = slidesResult
	}()

	if req.ExtractOnly {
		result.Report = book.Report()
		return result, nil
	}

	if err := o.summarize(ctx, req, content, lang, book, result); err != nil {
		return nil, err
	}

	slidesWG.Wait()
	result.Slides = slidesResult
	result.Report = book.Report()
	return result, nil
}

// resolveContent classifies the input and returns extracted content, going
// through the content cache. A video-only page recurses once into its
// embedded video.
func (o *Orchestrator) resolveContent(ctx context.Context, req RunRequest, book *costbook.Book, result *RunResult) (*models.ExtractedContent, extractor.InputTarget, error) {
	if req.PageText != "" {
		content := &models.ExtractedContent{
			URL:             req.Input,
			Title:           req.PageTitle,
			Content:         req.PageText,
			TotalCharacters: len(req.PageText),
			WordCount:       len(strings.Fields(req.PageText)),
		}
		return content, extractor.InputTarget{Kind: models.InputWebsite, URL: req.Input}, nil
	}

	target, err := extractor.Classify(req.Input)
	if err != nil {
		return nil, extractor.InputTarget{}, err
	}
	o.status(req, "extracting")

	content, fromCache, err := o.extractCached(ctx, target, req)
	if err != nil {
		return nil, target, err
	}
	result.ContentFromCache = fromCache

	// A page that is effectively just a video embed recurses once into the
	// video itself.
	if content.IsVideoOnly && content.Video != nil {
		o.logger.Debug("video-only page, following embedded video", "video", content.Video.URL)
		videoTarget, cErr := extractor.Classify(content.Video.URL)
		if cErr == nil {
			videoContent, vFromCache, vErr := o.extractCached(ctx, videoTarget, req)
			if vErr == nil {
				result.ContentFromCache = vFromCache
				return videoContent, videoTarget, nil
			}
			o.logger.Debug("embedded video extraction failed, keeping page content", "error", vErr)
		}
	}
	return content, target, nil
}

func (o *Orchestrator) extractCached(ctx context.Context, target extractor.InputTarget, req RunRequest) (*models.ExtractedContent, bool, error) {
	cacheable := o.meta != nil && !req.NoCache && target.Kind != models.InputFile

	var key string
	if cacheable {
		key = cache.ContentKey(target.URL, req.ExtractorSet.Key())
		var cached models.ExtractedContent
		if ok, err := cache.GetJSON(o.meta, cache.NamespaceContent, key, &cached); err == nil && ok {
			return &cached, true, nil
		}
	}

	content, err := o.extractor.Extract(ctx, target, req.ExtractorSet)
	if err != nil {
		return nil, false, err
	}
	if cacheable {
		if err := cache.PutJSON(o.meta, cache.NamespaceContent, key, content); err != nil {
			o.logger.Warn("content cache write failed", "error", err)
		}
	}
	return content, false, nil
}

// runSlides resolves the slide source from the classified input or the
// extracted page and runs the pipeline.
func (o *Orchestrator) runSlides(ctx context.Context, req RunRequest, target extractor.InputTarget, content *models.ExtractedContent) (*models.SlideExtractionResult, error) {
	if o.slides == nil {
		return nil, models.Errorf(models.ErrKindSlides, "slide extraction is not available (ffmpeg missing)")
	}

	videoURL := ""
	kind := models.SourceDirect
	switch target.Kind {
	case models.InputYouTube:
		videoURL = target.URL
		kind = models.SourceYouTube
	case models.InputMedia:
		videoURL = target.URL
	default:
		if content.Video != nil {
			videoURL = content.Video.URL
			if content.Video.Kind == models.VideoYouTube {
				kind = models.SourceYouTube
			}
		}
	}
	if videoURL == "" {
		return nil, models.Errorf(models.ErrKindSlides, "input has no video to extract slides from")
	}

	slidesReq := slides.Request{
		URL:              videoURL,
		SourceKind:       kind,
		SourceID:         extractor.SourceID(videoURL),
		SceneThreshold:   req.SlidesSceneThreshold,
		OCR:              req.SlidesOCR,
		Progress:         req.SlidesProgress,
		PreferStream:     true,
		OnQueued:         func() { o.status(req, "slides queued") },
		Workers:          o.cfg.Slides.Workers,
		Samples:          o.cfg.Slides.Samples,
		MaxSlides:        o.cfg.Slides.MaxSlides,
		MinSlideDuration: o.cfg.Slides.MinDuration,
		YtdlpFormat:      o.cfg.Slides.YtdlpFormat,
	}
	if o.cfg.Slides.ExtractStream != nil {
		slidesReq.PreferStream = *o.cfg.Slides.ExtractStream
	}
	return o.slides.Extract(ctx, slidesReq)
}

// summarize selects candidates, consults the summary cache, and runs the
// model call with fallback, chunking, and the empty-retry rule.
func (o *Orchestrator) summarize(ctx context.Context, req RunRequest, content *models.ExtractedContent, lang language.Language, book *costbook.Book, result *RunResult) error {
	presetName, candidates, err := o.resolveCandidates(req, content)
	if err != nil {
		return err
	}

	length := req.Length
	if length == "" {
		length = models.LengthMedium
	}
	in := promptInput{
		Content:       content,
		Length:        length,
		LanguageLabel: lang.Label,
		CustomPrompt:  req.Prompt,
		MaxCharacters: req.MaxCharacters,
	}
	systemPrompt := buildSystemPrompt(in)

	cacheable := o.meta != nil && !req.NoCache
	var summaryKey string
	if cacheable {
		summaryKey = cache.SummaryKey(
			cache.ContentHash(cache.NormalizeContent(content.Content)),
			cache.PromptHash(systemPrompt),
			modelKeyLabel(presetName, candidates),
			string(length),
			lang.Label,
		)
		var cached string
		if ok, err := cache.GetJSON(o.meta, cache.NamespaceSummary, summaryKey, &cached); err == nil && ok {
			result.Summary = cached
			result.SummaryFromCache = true
			if req.OnChunk != nil {
				req.OnChunk(cached)
			}
			result.Report = book.Report()
			return nil
		}
	}

	// Refusal check happens before any model call: oversized input is an
	// error, never a silent truncation.
	if estimateTokens(content.Content) > o.maxInputTokens {
		return models.ErrInputTooLarge
	}

	o.status(req, "summarizing")
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = llm.DefaultRequestTimeout
	}

	resp, usedModel, err := o.registry.RunFallback(ctx, presetName, candidates,
		func(ctx context.Context, client llm.Client, id models.ModelID) (*llm.Response, error) {
			return o.summarizeWithModel(ctx, client, id, req, in, systemPrompt, presetName, book, timeout)
		})
	if err != nil {
		return err
	}

	result.Summary = llm.CleanVisible(resp.Text)
	result.Model = usedModel

	if cacheable {
		if err := cache.PutJSON(o.meta, cache.NamespaceSummary, summaryKey, result.Summary); err != nil {
			o.logger.Warn("summary cache write failed", "error", err)
		}
	}
	return nil
}

// summarizeWithModel performs the call for one candidate: chunked map-reduce
// when the content is over the per-call budget, a single streaming call
// otherwise. A whitespace-only summary is retried once against the same
// model.
func (o *Orchestrator) summarizeWithModel(ctx context.Context, client llm.Client, id models.ModelID, req RunRequest, in promptInput, systemPrompt, presetName string, book *costbook.Book, timeout time.Duration) (*llm.Response, error) {
	run := func() (*llm.Response, error) {
		chunks := splitChunks(in.Content.Content, o.chunkInputTokens)
		if len(chunks) > 1 {
			return o.mapReduce(ctx, client, id, req, in, systemPrompt, presetName, book, chunks, timeout)
		}
		return o.streamCall(ctx, client, id, req, llm.Request{
			Model:           id.Name,
			System:          systemPrompt,
			Prompt:          buildSummaryPrompt(in),
			MaxOutputTokens: req.MaxOutputTokens,
		}, presetName, book, models.PurposeSummary, timeout)
	}

	resp, err := run()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.Text) == "" {
		o.logger.Debug("empty summary, retrying once", "model", id)
		return run()
	}
	return resp, nil
}

func (o *Orchestrator) mapReduce(ctx context.Context, client llm.Client, id models.ModelID, req RunRequest, in promptInput, systemPrompt, presetName string, book *costbook.Book, chunks []string, timeout time.Duration) (*llm.Response, error) {
	notes := make([]string, len(chunks))
	for i, chunk := range chunks {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		resp, err := client.Generate(callCtx, llm.Request{
			Model:  id.Name,
			System: "You produce dense factual notes for later merging into a summary.",
			Prompt: buildChunkNotesPrompt(in.Content, chunk, i+1, len(chunks)),
		})
		cancel()
		if err != nil {
			return nil, err
		}
		o.record(book, id, resp.Usage, models.PurposeChunkNotes, presetName)
		notes[i] = resp.Text
	}

	return o.streamCall(ctx, client, id, req, llm.Request{
		Model:           id.Name,
		System:          systemPrompt,
		Prompt:          buildMergePrompt(in, notes),
		MaxOutputTokens: req.MaxOutputTokens,
	}, presetName, book, models.PurposeSummary, timeout)
}

// streamCall runs one streaming model call, merging deltas into the
// client-visible text and emitting only the new portion to OnChunk.
func (o *Orchestrator) streamCall(ctx context.Context, client llm.Client, id models.ModelID, req RunRequest, llmReq llm.Request, presetName string, book *costbook.Book, purpose models.CallPurpose, timeout time.Duration) (*llm.Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	visible := ""
	resp, err := client.Stream(callCtx, llmReq, func(delta string) {
		merged := llm.MergeStreamingChunk(visible, delta)
		if len(merged) > len(visible) && req.OnChunk != nil {
			req.OnChunk(merged[len(visible):])
		}
		visible = merged
	})
	if err != nil {
		return nil, err
	}
	o.record(book, id, resp.Usage, purpose, presetName)
	return resp, nil
}

func (o *Orchestrator) record(book *costbook.Book, id models.ModelID, usage models.TokenUsage, purpose models.CallPurpose, presetName string) {
	book.Record(models.LlmCall{
		Provider: id.Provider,
		Model:    id.Name,
		Usage:    usage,
		Purpose:  purpose,
		PresetID: presetLabel(presetName, id),
	})
}

// resolveCandidates turns the requested model into an ordered candidate list.
// A full provider/name id is a single candidate; otherwise the name selects a
// configured preset, defaulting to the configured model and finally the free
// preset.
func (o *Orchestrator) resolveCandidates(req RunRequest, content *models.ExtractedContent) (string, []models.ModelID, error) {
	name := req.Model
	if name == "" {
		name = o.cfg.Model
	}
	if name == "" {
		name = llm.FreePresetName
	}

	if strings.Contains(name, "/") {
		id, err := models.ParseModelID(name)
		if err != nil {
			return "", nil, models.Errorf(models.ErrKindConfig, "invalid model %q: %v", name, err)
		}
		return name, []models.ModelID{id}, nil
	}

	preset, ok := o.cfg.Models[name]
	if !ok {
		return "", nil, models.Errorf(models.ErrKindConfig, "unknown model or preset %q", name)
	}
	candidates, err := llm.ResolveCandidates(preset, inputKindLabel(content))
	if err != nil {
		return "", nil, err
	}
	return name, candidates, nil
}

// inputKindLabel is the preset-rule matching label for extracted content.
func inputKindLabel(content *models.ExtractedContent) string {
	if content.Transcript != nil {
		return string(models.InputYouTube)
	}
	return string(models.InputWebsite)
}

// modelKeyLabel is the model component of the summary cache key: the user's
// requested id when direct, otherwise the first candidate of the preset.
func modelKeyLabel(presetName string, candidates []models.ModelID) string {
	if strings.Contains(presetName, "/") {
		return presetName
	}
	if len(candidates) > 0 {
		return presetName + ":" + candidates[0].String()
	}
	return presetName
}

func (o *Orchestrator) status(req RunRequest, stage string) {
	if req.OnStatus != nil {
		req.OnStatus(stage)
	}
	o.logger.Debug("run stage", "stage", stage)
}
