package cmd

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/summarize/internal/config"
	"github.com/jmylchreest/summarize/internal/llm"
	"github.com/jmylchreest/summarize/internal/ranker"
)

var refreshFreeFlags struct {
	Runs       int
	MinParams  int
	MaxAgeDays int
	Verbose    bool
}

var refreshFreeCmd = &cobra.Command{
	Use:   "refresh-free",
	Short: "Probe free OpenRouter models and rewrite the free preset",
	Long: `refresh-free fetches the OpenRouter model catalog, filters for recent
free models above the parameter floor, probes each candidate, and writes
the ranked result as the "free" preset in the config file.`,
	RunE: runRefreshFree,
}

func init() {
	f := refreshFreeCmd.Flags()
	f.IntVar(&refreshFreeFlags.Runs, "runs", ranker.DefaultRuns, "probe attempts per model")
	f.IntVar(&refreshFreeFlags.MinParams, "min-params", ranker.DefaultMinParams, "minimum parameter count in billions")
	f.IntVar(&refreshFreeFlags.MaxAgeDays, "max-age-days", ranker.DefaultMaxAgeDays, "skip models older than this (0 disables)")
	f.BoolVar(&refreshFreeFlags.Verbose, "verbose", false, "log each probe result")
	rootCmd.AddCommand(refreshFreeCmd)
}

func runRefreshFree(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	registry := llm.NewRegistry(llm.RegistryOptions{
		Config:     cfg,
		Secrets:    config.SecretsFromEnv(os.Getenv),
		Getenv:     os.Getenv,
		HTTPClient: &http.Client{},
	})

	r := ranker.New(ranker.Options{Registry: registry})
	ranked, err := r.Refresh(cmd.Context(), ranker.Params{
		Runs:       refreshFreeFlags.Runs,
		MinParams:  float64(refreshFreeFlags.MinParams),
		MaxAgeDays: refreshFreeFlags.MaxAgeDays,
		Verbose:    refreshFreeFlags.Verbose,
	})
	if err != nil {
		return err
	}
	if len(ranked) == 0 {
		return fmt.Errorf("no free models passed probing; free preset left unchanged")
	}

	ranker.Apply(cfg, ranked)
	if err := cfg.Save(cfgFile); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("free preset updated with %d models:\n", len(ranked))
	for _, c := range ranked {
		fmt.Println("  " + candidateLine(c))
	}
	return nil
}

func candidateLine(c ranker.Candidate) string {
	return fmt.Sprintf("%s (%gB, %d/%d ok, %s)",
		c.ID, c.Params, c.Succeeded, c.Probes, c.Latency.Round(time.Millisecond))
}
