// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads layerctl and layer tree settings from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the top-level configuration.
//
// Thread Safety: Safe to read concurrently. Not safe to modify after creation.
type Config struct {
	// Layers bounds layer tree construction and querying.
	Layers LayersConfig `json:"layers" yaml:"layers"`

	// Languages controls the grammar registry.
	Languages LanguagesConfig `json:"languages" yaml:"languages"`

	// Logging configures the CLI logger.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Telemetry selects trace and metric exporters.
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`

	// Watch tunes the watch command.
	Watch WatchConfig `json:"watch" yaml:"watch"`
}

// LayersConfig contains layer tree settings.
type LayersConfig struct {
	MaxDepth     int           `json:"max_depth" yaml:"max_depth" validate:"gte=0,lte=64"`
	ParseTimeout time.Duration `json:"parse_timeout" yaml:"parse_timeout" validate:"gte=0"`
	MatchLimit   uint          `json:"match_limit" yaml:"match_limit" validate:"lte=65535"`
}

// LanguagesConfig contains grammar registry settings.
type LanguagesConfig struct {
	// QueryDir overrides embedded queries, laid out as <dir>/<language>/<kind>.scm.
	QueryDir string `json:"query_dir" yaml:"query_dir"`
}

// LoggingConfig contains logger settings.
type LoggingConfig struct {
	Level string `json:"level" yaml:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `json:"json" yaml:"json"`
	File  string `json:"file" yaml:"file"`
}

// TelemetryConfig contains exporter settings.
type TelemetryConfig struct {
	ServiceName    string `json:"service_name" yaml:"service_name" validate:"required"`
	TraceExporter  string `json:"trace_exporter" yaml:"trace_exporter" validate:"oneof=none stdout otlp"`
	MetricExporter string `json:"metric_exporter" yaml:"metric_exporter" validate:"oneof=none stdout prometheus"`
	OTLPEndpoint   string `json:"otlp_endpoint" yaml:"otlp_endpoint" validate:"required_if=TraceExporter otlp"`
	MetricsAddr    string `json:"metrics_addr" yaml:"metrics_addr" validate:"omitempty,hostname_port"`
}

// WatchConfig contains watch command settings.
type WatchConfig struct {
	Debounce      time.Duration `json:"debounce" yaml:"debounce" validate:"gte=0"`
	RatePerSecond float64       `json:"rate_per_second" yaml:"rate_per_second" validate:"gt=0"`
	Burst         int           `json:"burst" yaml:"burst" validate:"gte=1"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Layers: LayersConfig{
			MaxDepth:     4,
			ParseTimeout: 0,
			MatchLimit:   0,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "layerctl",
			TraceExporter:  "none",
			MetricExporter: "none",
		},
		Watch: WatchConfig{
			Debounce:      150 * time.Millisecond,
			RatePerSecond: 10,
			Burst:         1,
		},
	}
}

// DefaultPath returns ~/.aleutian/layers.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".aleutian", "layers.yaml"), nil
}

// Load reads path over the defaults and validates the result.
//
// Inputs:
//
//	path - A YAML file. Fields it omits keep their defaults.
//
// Outputs:
//
//	Config - The merged configuration.
//	error  - A read or decode error, or ErrInvalidConfig.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// LoadOrDefault behaves like Load but returns the defaults when path is
// empty or does not exist.
func LoadOrDefault(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	return Load(path)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks struct constraints.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Save writes c to path as YAML, creating parent directories.
func (c Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
