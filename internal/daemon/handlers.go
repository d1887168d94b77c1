package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/jmylchreest/summarize/internal/cache"
	"github.com/jmylchreest/summarize/internal/extractor"
	"github.com/jmylchreest/summarize/internal/mediacache"
	"github.com/jmylchreest/summarize/internal/models"
	"github.com/jmylchreest/summarize/internal/orchestrator"
	"github.com/jmylchreest/summarize/internal/slides"
	"github.com/jmylchreest/summarize/internal/version"
)

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "summarize",
		Method:      http.MethodPost,
		Path:        "/v1/summarize",
		Summary:     "Submit a summarization job",
	}, s.handleSummarize)

	huma.Register(s.api, huma.Operation{
		OperationID: "slidesSnapshot",
		Method:      http.MethodGet,
		Path:        "/v1/slides/{run_id}/snapshot",
		Summary:     "Get the final slides manifest for a run",
	}, s.handleSlidesSnapshot)

	huma.Register(s.api, huma.Operation{
		OperationID: "status",
		Method:      http.MethodGet,
		Path:        "/v1/status",
		Summary:     "Daemon status and statistics",
	}, s.handleStatus)

	// SSE and file serving bypass huma; both need raw response control.
	s.router.Get("/v1/summarize/{id}/events", s.handleEvents)
	s.router.Get("/v1/slides/{sourceId}/{index}", s.handleSlideImage)

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":true}`)
	})
}

// SummarizeInput is the POST /v1/summarize request.
type SummarizeInput struct {
	Body models.SummarizeRequest
}

// SummarizeBody is the job-accepted response.
type SummarizeBody struct {
	OK bool   `json:"ok"`
	ID string `json:"id"`
}

// SummarizeOutput wraps the response body.
type SummarizeOutput struct {
	Body SummarizeBody
}

func (s *Server) handleSummarize(ctx context.Context, input *SummarizeInput) (*SummarizeOutput, error) {
	req := input.Body
	if req.Mode == "" {
		req.Mode = models.ModeURL
	}
	switch req.Mode {
	case models.ModeURL:
		if req.URL == "" {
			return nil, huma.Error400BadRequest("url is required")
		}
	case models.ModePage:
		if req.Text == "" {
			return nil, huma.Error400BadRequest("text is required when mode=page")
		}
		if req.ExtractOnly {
			return nil, huma.Error400BadRequest("extractOnly requires mode=url")
		}
	default:
		return nil, huma.Error400BadRequest(fmt.Sprintf("unknown mode %q", req.Mode))
	}
	if req.Length != "" && !models.ValidLength(req.Length) {
		return nil, huma.Error400BadRequest(fmt.Sprintf("unknown length %q", req.Length))
	}

	run := s.bus.CreateRun(req.URL)
	go s.executeRun(run.ID, req)

	return &SummarizeOutput{Body: SummarizeBody{OK: true, ID: run.ID}}, nil
}

// executeRun drives the orchestrator for one accepted job, translating its
// callbacks into the run's event log. The daemon stays up regardless of the
// run's outcome.
func (s *Server) executeRun(runID string, req models.SummarizeRequest) {
	ctx := context.Background()
	_ = s.bus.SetState(runID, models.RunRunning)

	runReq := orchestrator.RunRequest{
		Input:         req.URL,
		Model:         req.Model,
		Length:        models.SummaryLength(req.Length),
		Language:      req.Language,
		Prompt:        req.Prompt,
		MaxCharacters: req.MaxCharacters,
		ExtractOnly:   req.ExtractOnly,
		Slides:        req.Slides,
		ExtractorSet: extractor.Settings{
			Firecrawl:     extractor.FirecrawlAuto,
			Markdown:      extractor.MarkdownOff,
			MaxCharacters: req.MaxCharacters,
		},
		OnChunk: func(text string) {
			_ = s.bus.Publish(runID, models.SseEvent{
				Name: models.EventChunk,
				Data: map[string]string{"text": text},
			})
		},
		OnStatus: func(stage string) {
			_ = s.bus.Publish(runID, models.SseEvent{
				Name: models.EventStatus,
				Data: map[string]string{"stage": stage},
			})
		},
		OnSlides: func(done orchestrator.SlidesDone) {
			data := map[string]any{"ok": done.Err == nil}
			if done.Err != nil {
				data["error"] = done.Err.Error()
			} else if done.Result != nil {
				data["sourceId"] = done.Result.SourceID
				data["count"] = len(done.Result.Slides)
			}
			_ = s.bus.Publish(runID, models.SseEvent{Name: models.EventSlides, Data: data})
		},
	}
	if req.Mode == models.ModePage {
		runReq.PageText = req.Text
		runReq.PageTitle = req.Title
	}

	result, err := s.orch.Run(ctx, runReq)
	if err != nil {
		s.logger.Warn("run failed", "run", runID, "error", err)
		_ = s.bus.Publish(runID, models.SseEvent{
			Name: models.EventError,
			Data: map[string]string{"message": err.Error()},
		})
		_ = s.bus.SetState(runID, models.RunFailed)
		return
	}

	_ = s.bus.SetResult(runID, result)
	_ = s.bus.Publish(runID, models.SseEvent{Name: models.EventDone, Data: map[string]any{}})
	_ = s.bus.SetState(runID, models.RunDone)
}

// handleEvents streams a run's events: full replay for late subscribers,
// live fan-out otherwise.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	replay, live, cancel, err := s.bus.Subscribe(runID)
	if err != nil {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)
	heartbeat := time.NewTicker(s.heartbeatInterval)
	defer heartbeat.Stop()

	for _, ev := range replay {
		if writeSSEEvent(w, ev) != nil || rc.Flush() != nil {
			return
		}
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ":heartbeat %d\n\n", time.Now().Unix())
			if rc.Flush() != nil {
				return
			}
		case ev, ok := <-live:
			if !ok {
				return
			}
			if writeSSEEvent(w, ev) != nil || rc.Flush() != nil {
				return
			}
		}
	}
}

// writeSSEEvent renders one `event: <name>\ndata: <json>\n\n` frame.
func writeSSEEvent(w http.ResponseWriter, ev models.SseEvent) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		data = []byte("{}")
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, data)
	return err
}

// handleSlideImage serves one slide image. The resolved path must stay
// inside the configured slides directory.
func (s *Server) handleSlideImage(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "sourceId")
	index := chi.URLParam(r, "index")

	dir, err := slides.ResolveImagePath(s.slidesDir, sourceID)
	if err != nil {
		http.Error(w, "invalid source id", http.StatusBadRequest)
		return
	}

	manifest, err := readSlidesManifest(dir)
	if err != nil {
		http.Error(w, "slides not found", http.StatusNotFound)
		return
	}

	var idx int
	if _, err := fmt.Sscanf(index, "%d", &idx); err != nil || idx < 1 || idx > len(manifest.Slides) {
		http.Error(w, "slide index out of range", http.StatusNotFound)
		return
	}

	imagePath, err := slides.ResolveImagePath(dir, manifest.Slides[idx-1].ImagePath)
	if err != nil {
		http.Error(w, "invalid slide path", http.StatusBadRequest)
		return
	}
	http.ServeFile(w, r, imagePath)
}

func readSlidesManifest(dir string) (*models.SlideExtractionResult, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "slides.json"))
	if err != nil {
		return nil, err
	}
	var manifest models.SlideExtractionResult
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, err
	}
	return &manifest, nil
}

// SnapshotInput identifies the run.
type SnapshotInput struct {
	RunID string `path:"run_id"`
}

// SnapshotOutput carries the final slides manifest.
type SnapshotOutput struct {
	Body *models.SlideExtractionResult
}

func (s *Server) handleSlidesSnapshot(ctx context.Context, input *SnapshotInput) (*SnapshotOutput, error) {
	run, err := s.bus.Get(input.RunID)
	if err != nil {
		return nil, huma.Error404NotFound("run not found")
	}

	result, ok := run.Result.(*orchestrator.RunResult)
	if !ok || result == nil || result.Slides == nil {
		return nil, huma.Error404NotFound("slides not available for this run")
	}
	return &SnapshotOutput{Body: result.Slides}, nil
}

// StatusBody is the /v1/status response.
type StatusBody struct {
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptimeSeconds"`
	ActiveRuns    int               `json:"activeRuns"`
	MemoryRSS     uint64            `json:"memoryRssBytes,omitempty"`
	Cache         *cache.Stats      `json:"cache,omitempty"`
	MediaCache    *mediacache.Stats `json:"mediaCache,omitempty"`
}

// StatusOutput wraps the status body.
type StatusOutput struct {
	Body StatusBody
}

func (s *Server) handleStatus(ctx context.Context, _ *struct{}) (*StatusOutput, error) {
	body := StatusBody{
		Version:       version.Effective(),
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		ActiveRuns:    s.bus.ActiveCount(),
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
			body.MemoryRSS = mem.RSS
		}
	}
	if s.meta != nil {
		if stats, err := s.meta.Stats(); err == nil {
			body.Cache = &stats
		}
	}
	if s.media != nil {
		stats := s.media.Stats()
		body.MediaCache = &stats
	}
	return &StatusOutput{Body: body}, nil
}
