package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Match    MatchConfig    `yaml:"match"`
	Timeline TimelineConfig `yaml:"timeline"`
	Effects  EffectsConfig  `yaml:"effects"`
	Provider ProviderConfig `yaml:"provider"`
}

type MatchConfig struct {
	TopK             int     `yaml:"top_k"`
	LookupTimeoutSec float64 `yaml:"lookup_timeout_sec"`
	Workers          int     `yaml:"workers"`
}

type TimelineConfig struct {
	NoRepeatWindow int     `yaml:"no_repeat_window"`
	MinClipSec     float64 `yaml:"min_clip_sec"`
}

type EffectsConfig struct {
	ZoomThreshold float64 `yaml:"zoom_threshold"`
	ZoomPeakScale float64 `yaml:"zoom_peak_scale"`
	DissolveSec   float64 `yaml:"dissolve_sec"`
}

type ProviderConfig struct {
	BaseURL     string `yaml:"base_url"`
	Orientation string `yaml:"orientation"`
	PerPage     int    `yaml:"per_page"`
}

func Default() Config {
	return Config{
		Match:    MatchConfig{TopK: 5, LookupTimeoutSec: 5, Workers: 4},
		Timeline: TimelineConfig{NoRepeatWindow: 3, MinClipSec: 0.8},
		Effects:  EffectsConfig{ZoomThreshold: 0.6, ZoomPeakScale: 1.08, DissolveSec: 0.4},
		Provider: ProviderConfig{Orientation: "landscape", PerPage: 5},
	}
}

// Load reads a yaml config over the defaults. A missing path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Match.TopK <= 0 {
		return fmt.Errorf("match.top_k must be > 0")
	}
	if c.Match.LookupTimeoutSec <= 0 {
		return fmt.Errorf("match.lookup_timeout_sec must be > 0")
	}
	if c.Match.Workers <= 0 {
		return fmt.Errorf("match.workers must be > 0")
	}
	if c.Timeline.NoRepeatWindow < 0 {
		return fmt.Errorf("timeline.no_repeat_window must be >= 0")
	}
	if c.Timeline.MinClipSec <= 0 {
		return fmt.Errorf("timeline.min_clip_sec must be > 0")
	}
	if c.Effects.ZoomThreshold < 0 || c.Effects.ZoomThreshold > 1 {
		return fmt.Errorf("effects.zoom_threshold must be in [0, 1]")
	}
	if c.Effects.ZoomPeakScale <= 1 {
		return fmt.Errorf("effects.zoom_peak_scale must be > 1")
	}
	return nil
}
