// Package daemon implements the local HTTP server: job submission, per-run
// SSE event streams, slide serving, liveness and stats, bearer-token auth,
// and the daemon.json state file clients use for discovery.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/robfig/cron/v3"

	"github.com/jmylchreest/summarize/internal/cache"
	"github.com/jmylchreest/summarize/internal/config"
	"github.com/jmylchreest/summarize/internal/mediacache"
	"github.com/jmylchreest/summarize/internal/orchestrator"
	"github.com/jmylchreest/summarize/internal/sse"
	"github.com/jmylchreest/summarize/internal/version"
)

// maintenanceSchedule is the periodic cache sweep cadence, on top of the
// on-access sweeps the stores already run.
const maintenanceSchedule = "@every 1h"

// Options wire a Server.
type Options struct {
	Config       *config.Config
	Orchestrator *orchestrator.Orchestrator
	Bus          *sse.Bus
	Meta         *cache.Store      // may be nil
	Media        *mediacache.Cache // may be nil
	SlidesDir    string
	Token        string
	Logger       *slog.Logger
}

// Server is the summarize daemon.
type Server struct {
	cfg       *config.Config
	orch      *orchestrator.Orchestrator
	bus       *sse.Bus
	meta      *cache.Store
	media     *mediacache.Cache
	slidesDir string
	token     string
	logger    *slog.Logger

	router     *chi.Mux
	api        huma.API
	httpServer *http.Server
	cron       *cron.Cron
	startedAt  time.Time

	heartbeatInterval time.Duration
}

// NewServer builds the daemon server and registers all routes.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "daemon")

	router := chi.NewRouter()
	router.Use(chimiddleware.RealIP)
	router.Use(requestID)
	router.Use(logging(logger))
	router.Use(recovery(logger))
	router.Use(bearerAuth(opts.Token))

	humaConfig := huma.DefaultConfig("summarize daemon", version.Effective())
	humaConfig.DocsPath = ""
	api := humachi.New(router, humaConfig)

	s := &Server{
		cfg:               opts.Config,
		orch:              opts.Orchestrator,
		bus:               opts.Bus,
		meta:              opts.Meta,
		media:             opts.Media,
		slidesDir:         opts.SlidesDir,
		token:             opts.Token,
		logger:            logger,
		router:            router,
		api:               api,
		cron:              cron.New(),
		startedAt:         time.Now(),
		heartbeatInterval: 30 * time.Second,
	}
	s.registerRoutes()
	return s
}

// Router exposes the handler tree, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start runs periodic maintenance and serves until the listener fails or
// Shutdown is called.
func (s *Server) Start() error {
	if _, err := s.cron.AddFunc(maintenanceSchedule, s.runMaintenance); err != nil {
		return fmt.Errorf("scheduling maintenance: %w", err)
	}
	s.cron.Start()

	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: s.cfg.Server.ReadTimeout,
		// SSE connections stay open indefinitely; the write timeout must not
		// apply to them, so it is left unset and the handlers enforce their
		// own deadlines.
		IdleTimeout: 2 * time.Minute,
	}

	s.logger.Info("daemon listening", "address", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops maintenance and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cron.Stop()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) runMaintenance() {
	if s.meta != nil {
		if err := s.meta.Sweep(); err != nil {
			s.logger.Warn("metadata cache sweep failed", "error", err)
		}
	}
	if s.media != nil {
		s.media.Sweep()
	}
	if removed := s.bus.Sweep(); removed > 0 {
		s.logger.Debug("swept finished runs", "removed", removed)
	}
}
