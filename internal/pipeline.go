package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/starford/commentnet/internal/graph"
	"github.com/starford/commentnet/internal/index"
	"github.com/starford/commentnet/internal/metrics"
	"github.com/starford/commentnet/internal/neo4jsink"
	"github.com/starford/commentnet/internal/storage"
)

// pipeline owns the stores shared by the build, stats and serve commands.
type pipeline struct {
	cfg     *Config
	logger  *slog.Logger
	metrics *metrics.Collector

	corpus *storage.FS
	out    *storage.FS // record exports, rooted at the working directory
	db     *index.DB
	neo    *neo4jsink.Exporter
}

func newApplication(opts []Option) (*application, error) {
	app := &application{stdout: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := app.config.Validate(); err != nil {
		return nil, err
	}
	if app.logger == nil {
		// Initialize structured JSON logger.
		app.logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: app.config.App.LogLevel,
		}))
		slog.SetDefault(app.logger)
	}
	return app, nil
}

// openCorpus opens the corpus store only; no export target is touched.
func openCorpus(cfg *Config, logger *slog.Logger, collector *metrics.Collector) (*pipeline, error) {
	corpus, err := storage.NewFS(cfg.Corpus.Root)
	if err != nil {
		return nil, fmt.Errorf("init corpus: %w", err)
	}
	return &pipeline{cfg: cfg, logger: logger, metrics: collector, corpus: corpus}, nil
}

// openPipeline opens the corpus and every configured export target.
func openPipeline(ctx context.Context, cfg *Config, logger *slog.Logger, collector *metrics.Collector) (*pipeline, error) {
	p, err := openCorpus(cfg, logger, collector)
	if err != nil {
		return nil, err
	}

	if cfg.Export.RecordsEnabled() {
		if p.out, err = storage.NewFS("."); err != nil {
			return nil, fmt.Errorf("init export dir: %w", err)
		}
	}
	if cfg.Export.SQLite != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Export.SQLite), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
		if p.db, err = index.Open(cfg.Export.SQLite); err != nil {
			return nil, fmt.Errorf("init index: %w", err)
		}
	}
	if cfg.Export.Neo4j.Enabled() {
		n := cfg.Export.Neo4j
		if p.neo, err = neo4jsink.NewExporter(n.URI, n.User, n.Password, n.Database, logger); err != nil {
			p.Close(ctx)
			return nil, err
		}
		if err := p.neo.Verify(ctx); err != nil {
			p.Close(ctx)
			return nil, err
		}
	}
	return p, nil
}

// Close releases the export targets.
func (p *pipeline) Close(ctx context.Context) {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			p.logger.Warn("close index", slog.String("error", err.Error()))
		}
	}
	if p.neo != nil {
		if err := p.neo.Close(ctx); err != nil {
			p.logger.Warn("close neo4j", slog.String("error", err.Error()))
		}
	}
}

func (p *pipeline) checksums() (map[string]string, error) {
	return index.Checksums(p.corpus, p.cfg.Corpus.Paths()...)
}

// upToDate reports whether the SQLite export already reflects the current inputs.
func (p *pipeline) upToDate() (bool, error) {
	if p.db == nil {
		return false, nil
	}
	return index.Unchanged(p.db, p.corpus, p.cfg.Corpus.Paths()...)
}

// build runs the loader over the corpus and wraps the result as a publishable build.
func (p *pipeline) build(ctx context.Context, sums map[string]string) (*graph.Build, error) {
	opts, err := p.cfg.LoadOptions(p.logger, p.metrics)
	if err != nil {
		return nil, err
	}
	g, rep, err := graph.LoadMGraph(ctx, p.corpus, opts)
	if err != nil {
		return nil, err
	}
	return graph.NewBuild(g, rep, sums), nil
}

// multigraph loads the filtered, uncollapsed graph; every author in the corpus is kept.
func (p *pipeline) multigraph(ctx context.Context) (*graph.Graph, error) {
	opts, err := p.cfg.LoadOptions(p.logger, nil)
	if err != nil {
		return nil, err
	}
	g, _, err := graph.BuildMultigraph(ctx, p.corpus, opts)
	return g, err
}

// export writes b to every configured target.
func (p *pipeline) export(ctx context.Context, b *graph.Build) error {
	if p.out != nil {
		if err := graph.Save(p.out, b.Graph, p.cfg.Export.Nodes, p.cfg.Export.Edges); err != nil {
			return fmt.Errorf("export records: %w", err)
		}
	}
	if p.db != nil {
		if err := p.db.ReplaceGraph(b); err != nil {
			return fmt.Errorf("export sqlite: %w", err)
		}
	}
	if p.neo != nil {
		if err := p.neo.Export(ctx, b.Graph); err != nil {
			return err
		}
	}
	p.logger.Info("build exported",
		slog.String("build_id", b.ID),
		slog.Bool("records", p.out != nil),
		slog.Bool("sqlite", p.db != nil),
		slog.Bool("neo4j", p.neo != nil),
	)
	return nil
}
