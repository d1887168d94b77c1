// Package cmd implements the CLI commands for summarize.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/summarize/internal/config"
	"github.com/jmylchreest/summarize/internal/observability"
	"github.com/jmylchreest/summarize/internal/version"
)

// cfgFile holds the config file path from the CLI flag.
var cfgFile string

// runFlags collects the one-shot summarization flags. They are read in
// runSummarize after cobra has parsed them.
type runFlagSet struct {
	Model          string
	Length         string
	Language       string
	Stream         string
	Render         string
	Extract        bool
	ExtractOnly    bool
	JSON           bool
	Metrics        string
	Firecrawl      string
	Markdown       string
	Timeout        string
	MaxOutputToken int
	Slides         bool
	SlidesScene    float64
	SlidesOCR      bool
	NoCache        bool
	NoMediaCache   bool
	CacheStats     bool
	ClearCache     bool
}

var runFlags runFlagSet

var rootCmd = &cobra.Command{
	Use:     "summarize [url|file]",
	Short:   "Summarize web pages, videos, and files with LLMs",
	Version: version.Short(),
	Long: `summarize turns a URL, YouTube video, media file, or local document into
a summary. Content extraction, slide capture, and summaries are cached;
model selection falls back across configured candidates.

Run without a subcommand to summarize one input. Run "summarize serve" to
start the local daemon used by the browser extension.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSummarize,
	// PersistentPreRunE is set in init() to avoid an initialization cycle.
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		return initLogging()
	}

	// Global flags. These are NOT bound to viper: we check Changed() and
	// only then override, preserving CLI flag > env > config > default.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.summarize/config.json)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")

	f := rootCmd.Flags()
	f.StringVar(&runFlags.Model, "model", "", "model id (provider/name) or preset name")
	f.StringVar(&runFlags.Length, "length", "", "summary length (short, medium, long, xl, xxl)")
	f.StringVar(&runFlags.Language, "language", "", "summary language (tag or name)")
	f.StringVar(&runFlags.Stream, "stream", "auto", "stream output (auto, on, off)")
	f.StringVar(&runFlags.Render, "render", "plain", "output rendering (plain, markdown)")
	f.BoolVar(&runFlags.Extract, "extract", false, "print the extracted content before the summary")
	f.BoolVar(&runFlags.ExtractOnly, "extract-only", false, "extract content and exit without summarizing")
	f.BoolVar(&runFlags.JSON, "json", false, "emit the full result as JSON")
	f.StringVar(&runFlags.Metrics, "metrics", "off", "cost metrics (off, on, detailed)")
	f.StringVar(&runFlags.Firecrawl, "firecrawl", "auto", "firecrawl usage (off, auto, always)")
	f.StringVar(&runFlags.Markdown, "markdown", "off", "markdown conversion of extracted HTML (off, auto, llm)")
	f.StringVar(&runFlags.Timeout, "timeout", "", "per-request LLM timeout (e.g. 30s, 30, 2m, 5000ms)")
	f.IntVar(&runFlags.MaxOutputToken, "max-output-tokens", 0, "cap the model output tokens")
	f.BoolVar(&runFlags.Slides, "slides", false, "extract slide images from the video in parallel")
	f.Float64Var(&runFlags.SlidesScene, "slides-scene-threshold", 0, "scene-change threshold (0 = auto-tune)")
	f.BoolVar(&runFlags.SlidesOCR, "slides-ocr", false, "run OCR over extracted slides")
	f.BoolVar(&runFlags.NoCache, "no-cache", false, "bypass the metadata cache for this run")
	f.BoolVar(&runFlags.NoMediaCache, "no-media-cache", false, "bypass the media download cache for this run")
	f.BoolVar(&runFlags.CacheStats, "cache-stats", false, "print cache statistics and exit")
	f.BoolVar(&runFlags.ClearCache, "clear-cache", false, "clear all caches and exit")
}

// initConfig prepares the shared viper instance. The config file itself is
// read lazily by loadConfig so command-specific errors surface properly.
func initConfig() {
	v := viper.GetViper()
	config.SetDefaults(v)
	config.BindEnv(v)

	v.SetEnvPrefix("SUMMARIZE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// loadConfig reads the effective configuration, honouring --config.
func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper(), cfgFile)
}

// initLogging configures the default slog logger with redaction.
//
// Priority order (highest to lowest):
//  1. CLI flags (--log-level, --log-format), only when explicitly provided
//  2. Environment variables (SUMMARIZE_LOGGING_LEVEL, SUMMARIZE_LOGGING_FORMAT)
//  3. Config file values
//  4. Built-in defaults (info, text)
func initLogging() error {
	level := viper.GetString("logging.level")
	format := viper.GetString("logging.format")

	if rootCmd.PersistentFlags().Changed("log-level") {
		level, _ = rootCmd.PersistentFlags().GetString("log-level")
	}
	if rootCmd.PersistentFlags().Changed("log-format") {
		format, _ = rootCmd.PersistentFlags().GetString("log-format")
	}

	if level == "" {
		level = "info"
	}
	if format == "" {
		format = "text"
	}
	if strings.EqualFold(level, "warning") {
		level = "warn"
	}

	logger := observability.NewLoggerWithWriter(config.LoggingConfig{
		Level:  strings.ToLower(level),
		Format: strings.ToLower(format),
	}, os.Stderr)
	observability.SetDefault(logger)

	return nil
}
