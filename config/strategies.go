package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"trading-backtestv1/internal/backtest"
)

// strategyFile is the layout of STRATEGY_DEFAULTS_FILE:
//
//	strategies:
//	  sma_cross:
//	    defaults: {short_window: 10}
//	    grid:
//	      long_window: [100, 150, 200]
type strategyFile struct {
	Strategies map[string]backtest.Override `yaml:"strategies"`
}

// LoadStrategyDefaults parses per-strategy overrides from a YAML file.
func LoadStrategyDefaults(path string) (map[string]backtest.Override, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open strategy defaults: %w", err)
	}
	defer f.Close()
	return ParseStrategyDefaults(f)
}

// ParseStrategyDefaults decodes the YAML overrides document. Unknown keys
// are rejected so a typo does not silently fall back to built-in values.
func ParseStrategyDefaults(r io.Reader) (map[string]backtest.Override, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc strategyFile
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse strategy defaults: %w", err)
	}
	return doc.Strategies, nil
}

// Catalog returns the built-in strategy catalog with the configured
// overrides applied.
func (c *Config) Catalog() (*backtest.Catalog, error) {
	if c.Engine.StrategyFile == "" {
		return backtest.DefaultCatalog(), nil
	}
	overrides, err := LoadStrategyDefaults(c.Engine.StrategyFile)
	if err != nil {
		return nil, err
	}
	return backtest.DefaultCatalog().WithOverrides(overrides)
}
