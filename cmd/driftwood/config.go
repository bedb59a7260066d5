// Copyright (C) 2025 Driftwood AI (dev@driftwood.sh)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds the CLI configuration.
//
// # Description
//
// Loaded from config.yaml when present, then overridden by environment
// variables and finally by command-line flags. The file is optional: a chat
// client must run against a default local server with no setup.
//
// # Fields
//
//   - ServerURL: Document-chat server base URL, without trailing slash.
//   - Personality: Output styling level (full, standard, minimal, machine).
//   - RequestTimeout: Timeout for non-streaming API calls.
type Config struct {
	ServerURL      string        `yaml:"server_url" validate:"required,url"`
	Personality    string        `yaml:"personality" validate:"omitempty,oneof=full standard minimal machine"`
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"omitempty,min=1s"`
}

// defaultConfig returns the configuration used when no config.yaml exists.
func defaultConfig() Config {
	return Config{
		ServerURL:      "http://localhost:8000",
		RequestTimeout: 30 * time.Second,
	}
}

// LoadConfig builds the effective configuration.
//
// Precedence, lowest to highest: defaults, config.yaml (if readable),
// DRIFTWOOD_SERVER_URL / DRIFTWOOD_PERSONALITY environment variables. A
// malformed or invalid config file is an error; a missing one is not.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}

	if env := os.Getenv("DRIFTWOOD_SERVER_URL"); env != "" {
		cfg.ServerURL = env
	}
	if env := os.Getenv("DRIFTWOOD_PERSONALITY"); env != "" {
		cfg.Personality = env
	}

	cfg.ServerURL = strings.TrimRight(cfg.ServerURL, "/")
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
