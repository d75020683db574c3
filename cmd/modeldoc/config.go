// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/modeldoc/pkg/logging"
	"github.com/AleutianAI/modeldoc/services/modeldoc/impact"
)

// Config is the optional CLI configuration, read from a YAML file. All
// fields have working defaults; a missing config file is not an error.
type Config struct {
	// LogLevel is one of debug, info, warn, error. Default: info.
	LogLevel string `yaml:"log_level"`

	// LogDir enables file logging when set.
	LogDir string `yaml:"log_dir"`

	// ReportsIndex is the path to a JSON file mapping entity identifiers
	// to consuming report identifiers.
	ReportsIndex string `yaml:"reports_index"`

	// Collaborator selects the text-generation backend: openai (default)
	// or ollama.
	Collaborator string `yaml:"collaborator"`

	// Annotate configures the annotation coordinator.
	Annotate struct {
		// Concurrency caps concurrent collaborator calls. 0 uses the
		// coordinator default.
		Concurrency int `yaml:"concurrency"`

		// RateLimit caps collaborator calls per second. 0 uses the
		// coordinator default.
		RateLimit float64 `yaml:"rate_limit"`
	} `yaml:"annotate"`
}

// LoadConfig reads the config file at path. A missing file yields the
// zero-value Config; a malformed file is an error.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// logLevel maps the configured level name to a logging.Level.
func (c Config) logLevel() logging.Level {
	switch c.LogLevel {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

// loadReportsIndex reads the consumer index named by the flag or config
// file. An empty path yields a nil index.
func loadReportsIndex(path string) (impact.ConsumerIndex, error) {
	if path == "" {
		path = config.ReportsIndex
	}
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var index impact.MapConsumerIndex
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("parsing reports index %s: %w", path, err)
	}
	return index, nil
}
