package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/summarize/internal/config"
	"github.com/jmylchreest/summarize/internal/daemon"
	"github.com/jmylchreest/summarize/internal/sse"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local summarization daemon",
	Long: `serve starts the HTTP daemon used by the browser extension. On first
start a bearer token is generated and written to ~/.summarize/daemon.json;
clients read the port and token from there.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Int("port", 0, "listen port (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		port, _ := cmd.Flags().GetInt("port")
		cfg.Server.Port = port
	}

	state, err := loadOrCreateState(cfg)
	if err != nil {
		return err
	}

	a, err := buildApp(cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	bus := sse.NewBus(sse.Options{Logger: a.logger})
	srv := daemon.NewServer(daemon.Options{
		Config:       cfg,
		Orchestrator: a.orch,
		Bus:          bus,
		Meta:         a.meta,
		Media:        a.media,
		SlidesDir:    a.slidesDir,
		Token:        state.Token,
		Logger:       a.logger,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return <-errCh
}

// loadOrCreateState reads daemon.json, minting a fresh token on first start
// or whenever the configured port changed.
func loadOrCreateState(cfg *config.Config) (*daemon.State, error) {
	path, err := config.DaemonStatePath()
	if err != nil {
		return nil, err
	}

	if state, err := daemon.LoadState(path); err == nil && state.Token != "" {
		if state.Port == cfg.Server.Port {
			return state, nil
		}
	} else if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading daemon state: %w", err)
	}

	token, err := daemon.NewToken()
	if err != nil {
		return nil, err
	}
	state := &daemon.State{
		Port:        cfg.Server.Port,
		Token:       token,
		InstalledAt: time.Now().UTC(),
	}
	if err := daemon.SaveState(path, state); err != nil {
		return nil, fmt.Errorf("writing daemon state: %w", err)
	}
	return state, nil
}
