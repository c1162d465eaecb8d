// Package config loads willowmap settings from an optional file and
// WILLOWMAP_ environment variables.
package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/phanxgames/willowmap"
	"github.com/phanxgames/willowmap/tilelayer"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g.
// WILLOWMAP_MAP_MAXTILESLOADING=32.
const EnvPrefix = "WILLOWMAP"

// ThrottleConfig mirrors willowmap.Throttle.
type ThrottleConfig struct {
	InteractingMaxLoading int           `json:"interactingMaxLoading" mapstructure:"interactingMaxLoading"`
	InteractingMaxNew     int           `json:"interactingMaxNew" mapstructure:"interactingMaxNew"`
	FrameBudget           time.Duration `json:"frameBudget" mapstructure:"frameBudget"`
}

// MapConfig holds Map options.
type MapConfig struct {
	MaxTilesLoading int            `json:"maxTilesLoading" mapstructure:"maxTilesLoading"`
	Throttle        ThrottleConfig `json:"throttle" mapstructure:"throttle"`
	PixelRatio      float64        `json:"pixelRatio" mapstructure:"pixelRatio"`
	MoveTolerance   float64        `json:"moveTolerance" mapstructure:"moveTolerance"`
}

// ViewConfig holds the initial view. Center is lon/lat. A zero Resolution
// is derived from Zoom; a zero MaxResolution is unbounded.
type ViewConfig struct {
	Center        []float64 `json:"center" mapstructure:"center"`
	Zoom          int       `json:"zoom" mapstructure:"zoom"`
	Resolution    float64   `json:"resolution" mapstructure:"resolution"`
	Rotation      float64   `json:"rotation" mapstructure:"rotation"`
	MinResolution float64   `json:"minResolution" mapstructure:"minResolution"`
	MaxResolution float64   `json:"maxResolution" mapstructure:"maxResolution"`
}

// WindowConfig holds the ebiten window settings.
type WindowConfig struct {
	Width  int    `json:"width" mapstructure:"width"`
	Height int    `json:"height" mapstructure:"height"`
	Title  string `json:"title" mapstructure:"title"`
	Debug  bool   `json:"debug" mapstructure:"debug"`
}

// TilesConfig selects the tile source. An empty URL uses synthetic tiles.
type TilesConfig struct {
	URL            string        `json:"url" mapstructure:"url"`
	SyntheticDelay time.Duration `json:"syntheticDelay" mapstructure:"syntheticDelay"`
	CacheSize      int           `json:"cacheSize" mapstructure:"cacheSize"`
	Retry          bool          `json:"retry" mapstructure:"retry"`
	MinZoom        int           `json:"minZoom" mapstructure:"minZoom"`
	MaxZoom        int           `json:"maxZoom" mapstructure:"maxZoom"`
}

// Config is the full settings tree.
type Config struct {
	LogLevel    string       `json:"logLevel" mapstructure:"logLevel"`
	SnapshotDir string       `json:"snapshotDir" mapstructure:"snapshotDir"`
	Map         MapConfig    `json:"map" mapstructure:"map"`
	View        ViewConfig   `json:"view" mapstructure:"view"`
	Window      WindowConfig `json:"window" mapstructure:"window"`
	Tiles       TilesConfig  `json:"tiles" mapstructure:"tiles"`
}

func setDefaults(v *viper.Viper) {
	def := willowmap.DefaultThrottle()

	v.SetDefault("logLevel", "info")
	v.SetDefault("snapshotDir", "snapshots")

	v.SetDefault("map.maxTilesLoading", def.MaxTilesLoading)
	v.SetDefault("map.throttle.interactingMaxLoading", def.InteractingMaxLoading)
	v.SetDefault("map.throttle.interactingMaxNew", def.InteractingMaxNew)
	v.SetDefault("map.throttle.frameBudget", def.FrameBudget)
	v.SetDefault("map.pixelRatio", 1.0)
	v.SetDefault("map.moveTolerance", 1.0)

	v.SetDefault("view.center", []float64{0, 0})
	v.SetDefault("view.zoom", 2)
	v.SetDefault("view.resolution", 0.0)
	v.SetDefault("view.rotation", 0.0)
	v.SetDefault("view.minResolution", 0.0)
	v.SetDefault("view.maxResolution", 0.0)

	v.SetDefault("window.width", 1024)
	v.SetDefault("window.height", 768)
	v.SetDefault("window.title", "willowmap")
	v.SetDefault("window.debug", false)

	v.SetDefault("tiles.url", "")
	v.SetDefault("tiles.syntheticDelay", 50*time.Millisecond)
	v.SetDefault("tiles.cacheSize", 512)
	v.SetDefault("tiles.retry", false)
	v.SetDefault("tiles.minZoom", 0)
	v.SetDefault("tiles.maxZoom", willowmap.MaxZoom)
}

// Load reads the config file at path, if path is not empty, applies
// environment overrides and fills in defaults. The file type follows its
// extension (json, yaml, toml).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values NewMap would not catch.
func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	if len(c.View.Center) != 2 {
		return fmt.Errorf("view.center: want [lon, lat], got %v", c.View.Center)
	}
	if c.View.Zoom < 0 || c.View.Zoom > willowmap.MaxZoom {
		return fmt.Errorf("view.zoom %d out of range [0, %d]", c.View.Zoom, willowmap.MaxZoom)
	}
	if c.Tiles.MinZoom < 0 || c.Tiles.MaxZoom > willowmap.MaxZoom || c.Tiles.MinZoom > c.Tiles.MaxZoom {
		return fmt.Errorf("tiles zoom range [%d, %d] invalid", c.Tiles.MinZoom, c.Tiles.MaxZoom)
	}
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return fmt.Errorf("window size %dx%d invalid", c.Window.Width, c.Window.Height)
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (zerolog.Level, error) {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("logLevel: %w", err)
	}
	return lvl, nil
}

// MapOptions returns the Map options this config sets. The caller fills in
// the view, target, scheduler and layers.
func (c *Config) MapOptions() willowmap.Options {
	return willowmap.Options{
		PixelRatio:    c.Map.PixelRatio,
		MoveTolerance: c.Map.MoveTolerance,
		Throttle: willowmap.Throttle{
			MaxTilesLoading:       c.Map.MaxTilesLoading,
			InteractingMaxLoading: c.Map.Throttle.InteractingMaxLoading,
			InteractingMaxNew:     c.Map.Throttle.InteractingMaxNew,
			FrameBudget:           c.Map.Throttle.FrameBudget,
		},
	}
}

// ViewOptions returns the initial view options.
func (c *Config) ViewOptions() []willowmap.ViewOption {
	res := c.View.Resolution
	if res == 0 {
		res = willowmap.ResolutionForZoom(maptile.Zoom(c.View.Zoom))
	}
	center := willowmap.FromLonLat(orb.Point{c.View.Center[0], c.View.Center[1]})
	opts := []willowmap.ViewOption{
		willowmap.WithCenter(center),
		willowmap.WithResolution(res),
		willowmap.WithRotation(c.View.Rotation),
	}
	if c.View.MinResolution > 0 || c.View.MaxResolution > 0 {
		max := c.View.MaxResolution
		if max == 0 {
			max = math.Inf(1)
		}
		opts = append(opts, willowmap.WithResolutionRange(c.View.MinResolution, max))
	}
	return opts
}

// SourceOptions returns the tile source options.
func (c *Config) SourceOptions() []tilelayer.Option {
	return []tilelayer.Option{
		tilelayer.WithZoomRange(maptile.Zoom(c.Tiles.MinZoom), maptile.Zoom(c.Tiles.MaxZoom)),
		tilelayer.WithCacheSize(c.Tiles.CacheSize),
		tilelayer.WithRetry(c.Tiles.Retry),
	}
}

// Fetcher returns the configured tile fetcher.
func (c *Config) Fetcher() tilelayer.Fetcher {
	if c.Tiles.URL == "" {
		return tilelayer.Synthetic{Delay: c.Tiles.SyntheticDelay}
	}
	return tilelayer.HTTPFetcher{URL: c.Tiles.URL}
}
