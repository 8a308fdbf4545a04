// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/commentnet/internal/api"
	"github.com/starford/commentnet/internal/apperr"
	"github.com/starford/commentnet/internal/graph"
	"github.com/starford/commentnet/internal/index"
	"github.com/starford/commentnet/internal/metrics"
	"github.com/starford/commentnet/internal/models"
	"github.com/starford/commentnet/internal/parser"
	"github.com/starford/commentnet/internal/sse"
)

const metricsNamespace = "commentnet"

// Build runs the pipeline once and writes every configured export. Unless force is set,
// nothing is done when the SQLite export already reflects the current inputs.
func Build(ctx context.Context, force bool, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg, logger := app.config, app.logger

	p, err := openPipeline(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer p.Close(context.Background())

	if !force {
		same, err := p.upToDate()
		if err != nil {
			return err
		}
		if same {
			logger.Info("inputs unchanged since last build, skipping", slog.String("sqlite_path", cfg.Export.SQLite))
			return nil
		}
	}

	sums, err := p.checksums()
	if err != nil {
		return err
	}
	b, err := p.build(ctx, sums)
	if err != nil {
		return err
	}
	logReport(logger, b)
	return p.export(ctx, b)
}

// StatsRequest selects the corpus statistics printed by Stats.
type StatsRequest struct {
	Nodes  []string // empty means every node
	Window *models.DateRange
	Boards []string
	Force  bool
}

type nodeStats struct {
	ID         string         `json:"id"`
	Comments   int            `json:"comments"`
	Tokens     int            `json:"tokens"`
	Vocabulary int            `json:"vocabulary"`
	ByType     map[string]int `json:"by_type"`
	First      string         `json:"first,omitempty"`
	Last       string         `json:"last,omitempty"`
}

// Stats loads the authors and prints one JSON line of corpus statistics per node.
// Only the corpus is opened; export targets are not required to be reachable.
func Stats(ctx context.Context, req StatsRequest, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}

	p, err := openCorpus(app.config, app.logger, nil)
	if err != nil {
		return err
	}

	g, err := p.multigraph(ctx)
	if err != nil {
		return err
	}

	var nodes []*graph.Node
	if len(req.Nodes) == 0 {
		nodes = slices.Collect(g.AllNodes())
	}
	for _, id := range req.Nodes {
		n, ok := g.Node(id)
		if !ok {
			return fmt.Errorf("node %q: %w", id, apperr.ErrNotFound)
		}
		nodes = append(nodes, n)
	}

	enc := json.NewEncoder(app.stdout)
	q := graph.StatsQuery{Window: req.Window, Boards: req.Boards, Force: req.Force}
	for _, n := range nodes {
		s := n.CorpusStats(q)
		out := nodeStats{
			ID:         n.ID(),
			Comments:   s.Comments,
			Tokens:     s.Tokens,
			Vocabulary: len(s.Vocabulary),
			ByType:     s.ByType,
		}
		if s.Comments > 0 {
			out.First, out.Last = parser.FormatDate(s.First), parser.FormatDate(s.Last)
		}
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("write stats: %w", err)
		}
	}
	return nil
}

// Run starts the HTTP server over a snapshot of the graph and, when enabled, rebuilds
// it whenever the corpus files change.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg, logger := app.config, app.logger

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("corpus_root", cfg.Corpus.Root),
		slog.String("sqlite_path", cfg.Export.SQLite),
		slog.Bool("watch", cfg.Watch.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	collector := metrics.NewCollector(metricsNamespace)
	p, err := openPipeline(ctx, cfg, logger, collector)
	if err != nil {
		return err
	}
	defer p.Close(context.Background())

	snap := &graph.Snapshot{}
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	srv := &server{p: p, snap: snap, broker: broker, logger: logger}
	if err := srv.initial(ctx); err != nil {
		return err
	}

	// API service; search is only available with a SQLite export.
	var idx index.GraphIndex
	if p.db != nil {
		idx = p.db
	}
	svc := api.NewService(snap, idx)
	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if snap.Load() == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"building"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", collector.Handler())

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Watch.Enabled {
		g.Go(func() error {
			return index.Watch(gCtx, p.corpus, cfg.Corpus.Paths(), cfg.Watch.Debounce, logger, func(changed []string) {
				srv.rebuild(gCtx, changed)
			})
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

// server publishes builds into the snapshot, the exports and the event stream.
// rebuild is only called from the watcher goroutine.
type server struct {
	p      *pipeline
	snap   *graph.Snapshot
	broker *sse.Broker
	logger *slog.Logger
}

// initial builds the first snapshot. Exports are skipped when they are already current.
func (s *server) initial(ctx context.Context) error {
	sums, err := s.p.checksums()
	if err != nil {
		return err
	}
	same, err := s.p.upToDate()
	if err != nil {
		return err
	}
	b, err := s.p.build(ctx, sums)
	if err != nil {
		return err
	}
	logReport(s.logger, b)
	s.snap.Swap(b)
	if same {
		s.logger.Info("exports current, not rewriting", slog.String("build_id", b.ID))
		return nil
	}
	return s.p.export(ctx, b)
}

// rebuild reloads the corpus after a change. A failed build keeps the previous
// snapshot in service.
func (s *server) rebuild(ctx context.Context, changed []string) {
	prev := s.snap.Load()
	sums, err := s.p.checksums()
	if err != nil {
		s.fail(changed, err)
		return
	}
	if prev != nil && maps.Equal(prev.Checksums, sums) {
		s.logger.Info("inputs touched but unchanged, skipping rebuild", slog.Any("changed", changed))
		s.broker.PublishBuild(sse.BuildEvent{
			Kind:    sse.BuildSkipped,
			ID:      prev.ID,
			Nodes:   prev.Graph.NumNodes(),
			Edges:   prev.Graph.NumEdges(),
			Changed: changed,
		})
		return
	}

	b, err := s.p.build(ctx, sums)
	if err != nil {
		s.fail(changed, err)
		return
	}
	logReport(s.logger, b)
	s.snap.Swap(b)
	if err := s.p.export(ctx, b); err != nil {
		s.logger.Error("export failed", slog.String("build_id", b.ID), slog.String("error", err.Error()))
	}
	s.broker.PublishBuild(sse.BuildEvent{
		Kind:    sse.BuildRebuilt,
		ID:      b.ID,
		Nodes:   b.Graph.NumNodes(),
		Edges:   b.Graph.NumEdges(),
		Changed: changed,
	})
}

func (s *server) fail(changed []string, err error) {
	s.logger.Error("rebuild failed", slog.Any("changed", changed), slog.String("error", err.Error()))
	s.broker.PublishBuild(sse.BuildEvent{Kind: sse.BuildFailed, Changed: changed, Error: err.Error()})
}

func logReport(logger *slog.Logger, b *graph.Build) {
	rep := b.Report
	logger.Info("build report",
		slog.String("build_id", b.ID),
		slog.Int("nodes_loaded", rep.NodesLoaded),
		slog.Int("raw_edges", rep.RawEdges),
		slog.Int("dropped_unknown", rep.DroppedUnknown),
		slog.Int("dropped_self_loop", rep.DroppedSelfLoop),
		slog.Int("dropped_window", rep.DroppedWindow),
		slog.Int("dropped_condition", rep.DroppedCondition),
		slog.Int("collapsed_edges", rep.CollapsedEdges),
		slog.Int("prune_rounds", rep.Prune.Rounds),
		slog.Int("pruned_edges", rep.Prune.EdgesRemoved),
		slog.Int("pruned_nodes", rep.Prune.NodesRemoved),
		slog.Int("nodes", b.Graph.NumNodes()),
		slog.Int("edges", b.Graph.NumEdges()),
		slog.Duration("duration", rep.Duration),
	)
}
