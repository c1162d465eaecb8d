// Command willowmap shows a tiled map in a window, or replays a scenario
// script headlessly and writes PNG snapshots.
//
//	willowmap -c map.yaml
//	willowmap -c map.yaml -s scenario.json --snapshot-dir out
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/phanxgames/willowmap"
	"github.com/phanxgames/willowmap/config"
	"github.com/phanxgames/willowmap/ebitenhost"
	"github.com/phanxgames/willowmap/interaction"
	"github.com/phanxgames/willowmap/scenario"
	"github.com/phanxgames/willowmap/tilelayer"
	"github.com/rs/zerolog"
)

// maxScenarioFrames bounds a headless run.
const maxScenarioFrames = 100000

type options struct {
	Config      string `short:"c" long:"config" description:"config file (json, yaml or toml)"`
	Scenario    string `short:"s" long:"scenario" description:"run a JSON scenario headlessly and exit"`
	SnapshotDir string `long:"snapshot-dir" description:"directory for scenario snapshots"`
	LogLevel    string `long:"log-level" description:"log level, overrides the config"`
}

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}

	if err := run(opts); err != nil {
		fmt.Fprintln(os.Stderr, "willowmap:", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return err
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	if opts.SnapshotDir != "" {
		cfg.SnapshotDir = opts.SnapshotDir
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	mo := cfg.MapOptions()
	mo.Logger = &logger
	mo.View = willowmap.NewView(cfg.ViewOptions()...)
	mo.Interactions = interaction.Defaults()

	if opts.Scenario != "" {
		return runScenario(cfg, mo, opts.Scenario, logger)
	}
	return runWindow(cfg, mo, logger)
}

func newLogger(cfg *config.Config) (zerolog.Logger, error) {
	lvl, err := cfg.Level()
	if err != nil {
		return zerolog.Nop(), err
	}
	zerolog.TimestampFunc = func() time.Time {
		return time.Now().UTC()
	}
	out := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), nil
}

func runWindow(cfg *config.Config, mo willowmap.Options, logger zerolog.Logger) error {
	host, err := ebitenhost.New(mo, cfg.Window.Width, cfg.Window.Height)
	if err != nil {
		return err
	}
	src := tilelayer.New("tiles", cfg.Fetcher(), host.Loop, cfg.SourceOptions()...)
	defer src.Dispose()
	host.Map.AddLayer(willowmap.NewLayer("base", src))

	logger.Info().Str("map", host.Map.ID().String()).Str("tiles", tileOrigin(cfg)).Msg("starting window")
	return ebitenhost.Run(host, ebitenhost.RunConfig{
		Title:   cfg.Window.Title,
		Width:   cfg.Window.Width,
		Height:  cfg.Window.Height,
		ShowFPS: cfg.Window.Debug,
	})
}

func runScenario(cfg *config.Config, mo willowmap.Options, path string, logger zerolog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read scenario: %w", err)
	}
	runner, err := scenario.Load(data)
	if err != nil {
		return err
	}

	h, err := scenario.NewHeadless(mo, float64(cfg.Window.Width), float64(cfg.Window.Height))
	if err != nil {
		return err
	}
	defer h.Close()
	h.SnapshotDir = cfg.SnapshotDir

	src := tilelayer.New("tiles", cfg.Fetcher(), h.Loop, cfg.SourceOptions()...)
	defer src.Dispose()
	h.Map.AddLayer(willowmap.NewLayer("base", src))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger.Info().Str("scenario", path).Str("tiles", tileOrigin(cfg)).Msg("running scenario")
	if err := runner.Run(ctx, h, maxScenarioFrames); err != nil {
		return err
	}
	logger.Info().
		Int("frames", h.Frames()).
		Int("snapshots", len(h.Snapshots())).
		Msg("scenario finished")
	return nil
}

func tileOrigin(cfg *config.Config) string {
	if cfg.Tiles.URL == "" {
		return "synthetic"
	}
	return cfg.Tiles.URL
}
