package cmd

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jmylchreest/summarize/internal/cache"
	"github.com/jmylchreest/summarize/internal/config"
	"github.com/jmylchreest/summarize/internal/extractor"
	"github.com/jmylchreest/summarize/internal/ffmpeg"
	"github.com/jmylchreest/summarize/internal/httpclient"
	"github.com/jmylchreest/summarize/internal/llm"
	"github.com/jmylchreest/summarize/internal/mediacache"
	"github.com/jmylchreest/summarize/internal/models"
	"github.com/jmylchreest/summarize/internal/orchestrator"
	"github.com/jmylchreest/summarize/internal/slides"
)

// appOptions tune the bootstrap per command.
type appOptions struct {
	// DisableMetaCache skips opening the metadata cache entirely
	// (--clear-cache still opens it to clear it).
	DisableMetaCache  bool
	DisableMediaCache bool
	// MarkdownLLM wires the model-backed HTML-to-Markdown converter into
	// the extractor.
	MarkdownLLM bool
	// Model is the requested model or preset, used for markdown conversion
	// candidate resolution.
	Model string
}

// app bundles the wired components shared by the one-shot run, the daemon,
// and maintenance commands.
type app struct {
	cfg       *config.Config
	secrets   config.Secrets
	logger    *slog.Logger
	meta      *cache.Store      // nil when caching is disabled
	media     *mediacache.Cache // nil when the media cache is disabled
	registry  *llm.Registry
	extractor *extractor.Extractor
	slides    *slides.Pipeline // nil when ffmpeg is unavailable
	orch      *orchestrator.Orchestrator
	slidesDir string
}

// buildApp wires the full component graph from configuration.
func buildApp(cfg *config.Config, opts appOptions) (*app, error) {
	logger := slog.Default()
	secrets := config.SecretsFromEnv(os.Getenv)

	a := &app{cfg: cfg, secrets: secrets, logger: logger}

	if cfg.Cache.CacheEnabled() && !opts.DisableMetaCache {
		path, err := cfg.CachePath()
		if err != nil {
			return nil, err
		}
		store, err := cache.Open(path, cache.Options{
			TTL:      time.Duration(cfg.Cache.TTLDays) * 24 * time.Hour,
			MaxBytes: cfg.Cache.MaxMB << 20,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("opening metadata cache: %w", err)
		}
		a.meta = store
	}

	if cfg.Cache.Media.MediaEnabled() && !opts.DisableMediaCache {
		dir, err := cfg.MediaCachePath()
		if err != nil {
			return nil, err
		}
		media, err := mediacache.Open(dir, mediacache.Options{
			MaxBytes: cfg.Cache.Media.MaxMB << 20,
			TTL:      time.Duration(cfg.Cache.Media.TTLDays) * 24 * time.Hour,
			Verify:   cfg.Cache.Media.Verify,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("opening media cache: %w", err)
		}
		a.media = media
	}

	// Streaming responses must not be cut off by a client-level timeout;
	// per-request contexts bound the calls instead.
	a.registry = llm.NewRegistry(llm.RegistryOptions{
		Config:     cfg,
		Secrets:    secrets,
		Getenv:     os.Getenv,
		HTTPClient: &http.Client{},
	})

	httpc := httpclient.New(httpclient.DefaultConfig())

	var markdown extractor.MarkdownConverter
	if opts.MarkdownLLM {
		preset, candidates, err := markdownCandidates(cfg, opts.Model)
		if err != nil {
			return nil, err
		}
		markdown = orchestrator.NewMarkdownConverter(a.registry, preset, candidates)
	}

	a.extractor = extractor.New(extractor.Options{
		HTTPClient:   httpc,
		MetaCache:    a.meta,
		MediaCache:   a.media,
		FirecrawlKey: secrets.Firecrawl,
		ApifyToken:   secrets.Apify,
		OpenAIKey:    secrets.OpenAI,
		Markdown:     markdown,
		Logger:       logger,
	})

	slidesDir, err := cfg.SlidesDir()
	if err != nil {
		return nil, err
	}
	a.slidesDir = slidesDir

	if bins, err := ffmpeg.Detect(os.Getenv); err == nil {
		a.slides = slides.New(slides.Options{
			Binaries:   bins,
			OutputDir:  slidesDir,
			HTTPClient: httpc,
			MediaCache: a.media,
			Logger:     logger,
		})
	} else {
		logger.Debug("slides disabled", "error", err)
	}

	a.orch = orchestrator.New(orchestrator.Options{
		Config:    cfg,
		Registry:  a.registry,
		Extractor: a.extractor,
		Slides:    a.slides,
		Meta:      a.meta,
		Logger:    logger,
	})
	return a, nil
}

// Close releases held resources.
func (a *app) Close() {
	if a.meta != nil {
		if err := a.meta.Close(); err != nil {
			a.logger.Warn("closing metadata cache", "error", err)
		}
	}
}

// markdownCandidates resolves the model candidates for LLM markdown
// conversion, mirroring the orchestrator's selection: an explicit
// provider/name id wins, otherwise the configured preset.
func markdownCandidates(cfg *config.Config, requested string) (string, []models.ModelID, error) {
	name := requested
	if name == "" {
		name = cfg.Model
	}
	if name == "" {
		name = llm.FreePresetName
	}

	if preset, ok := cfg.Models[name]; ok {
		candidates, err := llm.ResolveCandidates(preset, "website")
		if err != nil {
			return "", nil, err
		}
		return name, candidates, nil
	}

	id, err := models.ParseModelID(name)
	if err != nil {
		return "", nil, models.Errorf(models.ErrKindConfig, "unknown model or preset %q", name)
	}
	return name, []models.ModelID{id}, nil
}
