// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads costpath's YAML configuration.
//
// Default supplies every value. Load overlays a file on the defaults and
// validates the result, so a file only needs the settings it changes:
//
//	solver:
//	  seed: 42
//	  timeout: 10s
//	knowledge:
//	  store_path: ~/.costpath/kb
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/costpath/services/costpath/ingest"
	"github.com/AleutianAI/costpath/services/costpath/solver"
	"github.com/AleutianAI/costpath/services/costpath/telemetry"
)

// ErrInvalidConfig is returned when a configuration fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

var validate = validator.New()

// Config is the complete costpath configuration.
type Config struct {
	Logging   LoggingConfig    `yaml:"logging" json:"logging"`
	Analysis  AnalysisConfig   `yaml:"analysis" json:"analysis"`
	Solver    solver.Config    `yaml:"solver" json:"solver"`
	Knowledge KnowledgeConfig  `yaml:"knowledge" json:"knowledge"`
	Telemetry telemetry.Config `yaml:"telemetry" json:"telemetry"`
	Server    ServerConfig     `yaml:"server" json:"server"`
	Output    OutputConfig     `yaml:"output" json:"output"`
}

// LoggingConfig controls pkg/logging.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `yaml:"json" json:"json"`
	Dir   string `yaml:"dir" json:"dir"`
}

// AnalysisConfig controls trace ingestion and generalization.
type AnalysisConfig struct {
	// ParamIndex selects the call argument used as the input size X0.
	ParamIndex int `yaml:"param_index" json:"param_index" validate:"gte=0"`

	// TracesKey is the top-level document key holding the trace array.
	TracesKey string `yaml:"traces_key" json:"traces_key" validate:"required"`
}

// KnowledgeConfig locates known expressions.
type KnowledgeConfig struct {
	// File is a YAML or JSON map of known expressions.
	File string `yaml:"file" json:"file"`

	// StorePath is the BadgerDB directory. Empty disables the store.
	StorePath string `yaml:"store_path" json:"store_path"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" json:"port" validate:"gte=1,lte=65535"`
}

// OutputConfig controls result encoding.
type OutputConfig struct {
	Format string `yaml:"format" json:"format" validate:"oneof=json yaml"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Logging:   LoggingConfig{Level: "info"},
		Analysis:  AnalysisConfig{TracesKey: ingest.DefaultTracesKey},
		Solver:    solver.DefaultConfig(),
		Telemetry: telemetry.DefaultConfig(),
		Server:    ServerConfig{Port: 8080},
		Output:    OutputConfig{Format: "json"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
//
// Description:
//
//	Unknown keys are rejected so that typos do not silently fall back to
//	defaults. A leading "~/" in knowledge paths expands to the home
//	directory.
//
// Inputs:
//
//	path - Config file path, or "".
//
// Outputs:
//
//	Config - The merged, validated configuration.
//	error - A read or parse error, or ErrInvalidConfig.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := decode(bytes.NewReader(data), &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.Knowledge.File = expandHome(cfg.Knowledge.File)
	cfg.Knowledge.StorePath = expandHome(cfg.Knowledge.StorePath)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Marshal renders c as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}
