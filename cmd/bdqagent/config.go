package main

import (
	"errors"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gbif-norway/bdq-agent/internal/engine"
)

// fileOverrides is the shape of the optional `-config` YAML file: a subset
// of engine.Overrides that can be expressed as plain data (Parameters and
// the numeric/duration knobs; Concurrency accepts either integer RPS-style
// knobs or is left at its engine default).
//
//nolint:tagliatelle // snake_case is intentional for YAML config files
type fileOverrides struct {
	Concurrency            int               `yaml:"concurrency"`
	PerTupleTimeoutSeconds int               `yaml:"per_tuple_timeout_seconds"`
	JobTimeoutSeconds      int               `yaml:"job_timeout_seconds"`
	DispatchRPS            float64           `yaml:"dispatch_rps"`
	Parameters             map[string]string `yaml:"parameters"`
}

// loadFileOverrides reads an optional YAML overrides file (§6's
// `overrides`, as exposed through the CLI), degrading gracefully: a missing
// file is not an error, an unreadable or unparseable one logs a warning and
// is ignored, and each unknown top-level key logs a warning and is ignored.
func loadFileOverrides(path string) fileOverrides {
	var cfg fileOverrides

	if path == "" {
		return cfg
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is an operator-supplied CLI flag
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("bdqagent: failed to read config file, continuing without overrides",
				slog.String("path", path), slog.String("error", err.Error()))
		}

		return cfg
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		slog.Warn("bdqagent: failed to parse config file, continuing without overrides",
			slog.String("path", path), slog.String("error", err.Error()))

		return fileOverrides{}
	}

	var keys map[string]any
	if err := yaml.Unmarshal(data, &keys); err == nil {
		for key := range keys {
			switch key {
			case "concurrency", "per_tuple_timeout_seconds", "job_timeout_seconds", "dispatch_rps", "parameters":
			default:
				slog.Warn("bdqagent: unknown config key ignored", slog.String("key", key))
			}
		}
	}

	return cfg
}

// mergeOverrides overlays non-zero fileOverrides values onto base (the
// env-sourced defaults from engine.LoadConfig), the same
// "start from defaults, overlay config, warn on the rest" shape used
// throughout the teacher's config loading.
func mergeOverrides(base engine.Overrides, file fileOverrides) engine.Overrides {
	out := base
	out.Parameters = file.Parameters

	if file.Concurrency > 0 {
		out.Concurrency = file.Concurrency
	}

	if file.PerTupleTimeoutSeconds > 0 {
		out.PerTupleTimeout = time.Duration(file.PerTupleTimeoutSeconds) * time.Second
	}

	if file.JobTimeoutSeconds > 0 {
		out.JobTimeout = time.Duration(file.JobTimeoutSeconds) * time.Second
	}

	if file.DispatchRPS > 0 {
		out.DispatchRPS = file.DispatchRPS
	}

	return out
}
