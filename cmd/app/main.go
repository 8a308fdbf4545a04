package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/commentnet/internal"
	pkgconfig "github.com/starford/commentnet/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func build(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Build(ctx, cmd.Bool("force"), internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("build error: %w", err)
	}
	return nil
}

func stats(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	req := internal.StatsRequest{
		Nodes:  cmd.StringSlice("node"),
		Boards: cmd.StringSlice("board"),
		Force:  cmd.Bool("force"),
	}
	start, end := cmd.String("start"), cmd.String("end")
	if start != "" || end != "" {
		window := internal.WindowConfig{Start: start, End: end}
		if req.Window, err = window.Range(); err != nil {
			return fmt.Errorf("invalid window: %w", err)
		}
	}

	if err := internal.Stats(ctx, req, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("stats error: %w", err)
	}
	return nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.IsSet("watch") {
		cfg.Watch.Enabled = cmd.Bool("watch")
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:  "commentnet",
		Usage: "Build and serve author interaction graphs from comment corpora",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "build",
				Usage:  "Load, filter, collapse and prune the corpus, then write the exports",
				Action: build,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Usage: "Rebuild even when the inputs are unchanged"},
				},
			},
			{
				Name:   "stats",
				Usage:  "Print per-author corpus statistics as JSON lines",
				Action: stats,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "node", Aliases: []string{"n"}, Usage: "Author id (repeatable, default all)"},
					&cli.StringSliceFlag{Name: "board", Usage: "Only count comments on this board (repeatable)"},
					&cli.StringFlag{Name: "start", Usage: "Window start, YYYY-MM-DD, inclusive"},
					&cli.StringFlag{Name: "end", Usage: "Window end, YYYY-MM-DD, exclusive"},
					&cli.BoolFlag{Name: "force", Usage: "Recompute statistics instead of using cached values"},
				},
			},
			{
				Name:   "serve",
				Usage:  "Serve the graph over HTTP and rebuild on input changes",
				Action: serve,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "watch", Usage: "Override watch.enabled from the config"},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
