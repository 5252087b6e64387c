// Package config loads the vessel segmentation settings from YAML.
//
// A file only needs the keys it changes; everything else keeps the values
// from Default. Example:
//
//	filter:
//	  sigmas: [1.8, 2.4, 3.0]
//	prune:
//	  min_size: 2000
//	train:
//	  epochs: 20
//	log:
//	  level: debug
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/ironsheep/vessel-seg/internal/filter"
	"github.com/ironsheep/vessel-seg/internal/logging"
	"github.com/ironsheep/vessel-seg/internal/mlp"
)

// Train holds the cross-validation and optimiser settings.
type Train struct {
	Folds        int     `yaml:"folds"`
	Epochs       int     `yaml:"epochs"`
	BatchSize    int     `yaml:"batch_size"`
	LearningRate float64 `yaml:"learning_rate"`
	Seed         int64   `yaml:"seed"`
	Augment      bool    `yaml:"augment"`
	Device       string  `yaml:"device"`
}

// Log selects the log level and output format ("console" or "json").
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the complete configuration.
type Config struct {
	Filter filter.RidgeParams `yaml:"filter"`
	Prune  filter.PruneParams `yaml:"prune"`
	Train  Train              `yaml:"train"`
	Loss   mlp.WeightedBCE    `yaml:"loss"`
	Log    Log                `yaml:"log"`
}

// Default returns the reference settings.
func Default() Config {
	return Config{
		Filter: filter.DefaultRidgeParams(),
		Prune:  filter.DefaultPruneParams(),
		Train: Train{
			Folds:        5,
			Epochs:       10,
			BatchSize:    32,
			LearningRate: 0.001,
			Seed:         0,
			Augment:      true,
			Device:       "cpu",
		},
		Loss: mlp.DefaultLoss(),
		Log:  Log{Level: "info", Format: "console"},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	if err := cfg.decode(f); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// ApplyEnv applies environment overrides.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(logging.EnvLevel); v != "" {
		c.Log.Level = v
	}
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Pipeline().Validate(); err != nil {
		return err
	}
	if err := c.Loss.Validate(); err != nil {
		return err
	}
	t := c.Train
	switch {
	case t.Folds < 2:
		return fmt.Errorf("train.folds must be at least 2, got %d", t.Folds)
	case t.Epochs < 1:
		return fmt.Errorf("train.epochs must be positive, got %d", t.Epochs)
	case t.BatchSize < 1:
		return fmt.Errorf("train.batch_size must be positive, got %d", t.BatchSize)
	case !(t.LearningRate > 0):
		return fmt.Errorf("train.learning_rate must be positive, got %v", t.LearningRate)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	return nil
}

// Pipeline returns the feature pipeline described by the filter and prune
// sections.
func (c Config) Pipeline() filter.Pipeline {
	return filter.Pipeline{Ridge: c.Filter, Prune: c.Prune}
}

// Logger builds the logger described by the log section. An invalid level
// falls back to info.
func (c Config) Logger(w io.Writer) zerolog.Logger {
	level, _ := logging.ParseLevel(c.Log.Level)
	if strings.ToLower(c.Log.Format) == "json" {
		return logging.New(w, level)
	}
	return logging.Console(w, level)
}
