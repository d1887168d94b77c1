package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/summarize/internal/config"
	"github.com/jmylchreest/summarize/internal/costbook"
	"github.com/jmylchreest/summarize/internal/extractor"
	"github.com/jmylchreest/summarize/internal/models"
	"github.com/jmylchreest/summarize/internal/orchestrator"
	"github.com/jmylchreest/summarize/internal/slides"
	"github.com/jmylchreest/summarize/internal/term"
)

func runSummarize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if runFlags.CacheStats {
		return printCacheStats(cfg)
	}
	if runFlags.ClearCache {
		return clearCaches(cfg)
	}

	if len(args) == 0 {
		return fmt.Errorf("an input URL or file path is required (see --help)")
	}
	if err := validateRunFlags(); err != nil {
		return err
	}

	var timeout time.Duration
	if runFlags.Timeout != "" {
		d, err := config.ParseDuration(runFlags.Timeout)
		if err != nil {
			return fmt.Errorf("invalid --timeout: %w", err)
		}
		timeout = d.Duration()
	}

	a, err := buildApp(cfg, appOptions{
		DisableMediaCache: runFlags.NoMediaCache,
		MarkdownLLM:       runFlags.Markdown == string(extractor.MarkdownLLM),
		Model:             runFlags.Model,
	})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	streaming := streamEnabled()
	progress := term.NewProgress(os.Stderr, os.Getenv)
	defer progress.Clear()

	var printed bool
	req := orchestrator.RunRequest{
		Input:           args[0],
		Model:           runFlags.Model,
		Length:          models.SummaryLength(runFlags.Length),
		Language:        runFlags.Language,
		MaxOutputTokens: runFlags.MaxOutputToken,
		Timeout:         timeout,
		ExtractOnly:     runFlags.ExtractOnly,
		NoCache:         runFlags.NoCache,
		ExtractorSet: extractor.Settings{
			Firecrawl: extractor.FirecrawlMode(runFlags.Firecrawl),
			Markdown:  extractor.MarkdownMode(runFlags.Markdown),
		},
		Slides:               runFlags.Slides,
		SlidesOCR:            runFlags.SlidesOCR,
		SlidesSceneThreshold: runFlags.SlidesScene,
		OnStatus: func(stage string) {
			progress.Indeterminate(stage)
		},
	}
	if runFlags.Slides {
		req.SlidesProgress = slides.ProgressFunc(func(percent int, stage string) {
			progress.Set(percent, "slides: "+stage)
		})
	}
	if streaming && !runFlags.ExtractOnly {
		req.OnChunk = func(text string) {
			fmt.Print(renderText(text))
			printed = true
		}
	}

	result, err := a.orch.Run(ctx, req)
	progress.Clear()
	if err != nil {
		return err
	}

	if runFlags.JSON {
		return printJSON(result)
	}

	if runFlags.Extract || runFlags.ExtractOnly {
		printExtracted(result.Content)
		if runFlags.ExtractOnly {
			return nil
		}
		fmt.Println(strings.Repeat("-", 40))
	}

	if printed {
		// Streamed output is already on screen; just terminate the line.
		fmt.Println()
	} else {
		fmt.Println(renderText(result.Summary))
	}

	printMetrics(result)
	return nil
}

func validateRunFlags() error {
	if runFlags.Length != "" && !models.ValidLength(runFlags.Length) {
		return fmt.Errorf("invalid --length %q (short, medium, long, xl, xxl)", runFlags.Length)
	}
	switch runFlags.Stream {
	case "auto", "on", "off":
	default:
		return fmt.Errorf("invalid --stream %q (auto, on, off)", runFlags.Stream)
	}
	switch runFlags.Render {
	case "plain", "markdown":
	default:
		return fmt.Errorf("invalid --render %q (plain, markdown)", runFlags.Render)
	}
	switch runFlags.Metrics {
	case "off", "on", "detailed":
	default:
		return fmt.Errorf("invalid --metrics %q (off, on, detailed)", runFlags.Metrics)
	}
	if !extractor.ValidFirecrawlMode(runFlags.Firecrawl) {
		return fmt.Errorf("invalid --firecrawl %q (off, auto, always)", runFlags.Firecrawl)
	}
	if !extractor.ValidMarkdownMode(runFlags.Markdown) {
		return fmt.Errorf("invalid --markdown %q (off, auto, llm)", runFlags.Markdown)
	}
	return nil
}

// streamEnabled decides whether deltas are printed as they arrive. JSON
// output always buffers; auto streams only to a terminal.
func streamEnabled() bool {
	if runFlags.JSON || runFlags.Stream == "off" {
		return false
	}
	if runFlags.Stream == "on" {
		return true
	}
	return stdoutIsTTY()
}

func stdoutIsTTY() bool {
	info, err := os.Stdout.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

// markdownLink matches [text](url) for hyperlink rendering.
var markdownLink = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^)\s]+)\)`)

// renderText applies the requested rendering. Markdown rendering rewrites
// links as OSC 8 hyperlinks on supporting terminals; everything else passes
// through untouched.
func renderText(s string) string {
	if runFlags.Render != "markdown" || !stdoutIsTTY() {
		return s
	}
	return markdownLink.ReplaceAllStringFunc(s, func(m string) string {
		parts := markdownLink.FindStringSubmatch(m)
		return term.Hyperlink(parts[2], parts[1], os.Getenv)
	})
}

func printExtracted(content *models.ExtractedContent) {
	if content == nil {
		return
	}
	if content.Title != "" {
		fmt.Println("# " + content.Title)
		fmt.Println()
	}
	fmt.Println(content.Content)
}

// runOutput is the --json result shape.
type runOutput struct {
	URL              string                        `json:"url,omitempty"`
	Title            string                        `json:"title,omitempty"`
	Summary          string                        `json:"summary,omitempty"`
	Model            string                        `json:"model,omitempty"`
	Language         string                        `json:"language,omitempty"`
	ContentFromCache bool                          `json:"contentFromCache"`
	SummaryFromCache bool                          `json:"summaryFromCache"`
	Content          *models.ExtractedContent      `json:"content,omitempty"`
	Slides           *models.SlideExtractionResult `json:"slides,omitempty"`
	Metrics          *costbook.Report              `json:"metrics,omitempty"`
}

func printJSON(result *orchestrator.RunResult) error {
	out := runOutput{
		Summary:          result.Summary,
		Language:         result.Language.Label,
		ContentFromCache: result.ContentFromCache,
		SummaryFromCache: result.SummaryFromCache,
		Slides:           result.Slides,
	}
	if !result.Model.IsZero() {
		out.Model = result.Model.String()
	}
	if result.Content != nil {
		out.URL = result.Content.URL
		out.Title = result.Content.Title
		if runFlags.Extract || runFlags.ExtractOnly {
			out.Content = result.Content
		}
	}
	if runFlags.Metrics != "off" {
		out.Metrics = &result.Report
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// printMetrics writes the cost report to stderr so it never mixes with the
// summary on stdout.
func printMetrics(result *orchestrator.RunResult) {
	switch runFlags.Metrics {
	case "on":
		fmt.Fprintln(os.Stderr, result.Report.FinishedLine())
	case "detailed":
		for _, row := range result.Report.Rows {
			fmt.Fprintf(os.Stderr, "%-40s calls=%d tokens=%s/%s cost=%s\n",
				row.Label, row.Calls,
				formatTokens(row.Usage.Prompt), formatTokens(row.Usage.Completion),
				costbook.FormatCost(row.CostUSD))
		}
		for _, svc := range result.Report.Services {
			fmt.Fprintf(os.Stderr, "%-40s hits=%d cost=%s\n",
				svc.Service, svc.Hits, costbook.FormatCost(svc.CostUSD))
		}
		fmt.Fprintln(os.Stderr, result.Report.FinishedLine())
	}
}

func formatTokens(v *int64) string {
	if v == nil {
		return "?"
	}
	return fmt.Sprintf("%d", *v)
}
