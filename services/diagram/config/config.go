// Copyright (C) 2026 Kodiak Labs (oss@kodiaklabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads the diagram service configuration.
//
// Precedence, lowest to highest: built-in defaults, the YAML config file,
// KODIAKFLOW_* environment variables. The config file is optional; a missing
// file is not an error.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full diagram service configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	History       HistoryConfig       `yaml:"history"`
	Tracker       TrackerConfig       `yaml:"tracker"`
	Logging       LoggingConfig       `yaml:"logging"`
	Collaboration CollaborationConfig `yaml:"collaboration"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns the host:port listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StorageConfig configures the Badger-backed diagram store.
type StorageConfig struct {
	// Path is the Badger data directory. Ignored when InMemory is true.
	Path string `yaml:"path"`

	// InMemory runs Badger without disk persistence. Intended for tests
	// and throwaway sessions.
	InMemory bool `yaml:"in_memory"`

	// SyncWrites forces fsync on every commit.
	SyncWrites bool `yaml:"sync_writes"`

	// GCInterval is how often the value-log garbage collector runs.
	GCInterval time.Duration `yaml:"gc_interval"`
}

// HistoryConfig bounds the per-session undo stack.
type HistoryConfig struct {
	MaxSize          int `yaml:"max_size"`
	CleanupThreshold int `yaml:"cleanup_threshold"`
}

// TrackerConfig tunes operation lifecycle retention.
type TrackerConfig struct {
	ActiveTimeout      time.Duration `yaml:"active_timeout"`
	CompletedRetention time.Duration `yaml:"completed_retention"`
	CancelledRetention time.Duration `yaml:"cancelled_retention"`
	SweepInterval      time.Duration `yaml:"sweep_interval"`
}

// LoggingConfig configures structured logging output.
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `yaml:"level"`

	// Dir enables file logging when set.
	Dir string `yaml:"dir"`

	// JSON switches stderr output to JSON format.
	JSON bool `yaml:"json"`
}

// CollaborationConfig configures the websocket layer.
type CollaborationConfig struct {
	// Enabled turns the collaborative websocket endpoint on.
	Enabled bool `yaml:"enabled"`

	// SendBuffer is the per-client outbound message buffer. A client
	// that falls this far behind is disconnected.
	SendBuffer int `yaml:"send_buffer"`

	// RateLimitPerSecond caps inbound messages per client.
	RateLimitPerSecond float64 `yaml:"rate_limit_per_second"`

	// RateLimitBurst is the token bucket burst size.
	RateLimitBurst int `yaml:"rate_limit_burst"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Path:       "data/diagrams",
			SyncWrites: true,
			GCInterval: 5 * time.Minute,
		},
		History: HistoryConfig{
			MaxSize:          50,
			CleanupThreshold: 60,
		},
		Tracker: TrackerConfig{
			ActiveTimeout:      30 * time.Second,
			CompletedRetention: 5 * time.Second,
			CancelledRetention: time.Second,
			SweepInterval:      10 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Collaboration: CollaborationConfig{
			Enabled:            true,
			SendBuffer:         64,
			RateLimitPerSecond: 60,
			RateLimitBurst:     120,
		},
	}
}

// Load builds the effective configuration from defaults, the optional YAML
// file at path, and environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// optional file
		case err != nil:
			return cfg, fmt.Errorf("read config file %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config file %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot run with.
func (c Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.History.MaxSize < 1 {
		return fmt.Errorf("history.max_size must be positive, got %d", c.History.MaxSize)
	}
	if c.History.CleanupThreshold < c.History.MaxSize {
		return fmt.Errorf("history.cleanup_threshold %d must be >= history.max_size %d",
			c.History.CleanupThreshold, c.History.MaxSize)
	}
	if !c.Storage.InMemory && c.Storage.Path == "" {
		return fmt.Errorf("storage.path required when storage is persistent")
	}
	if c.Collaboration.SendBuffer < 1 {
		return fmt.Errorf("collaboration.send_buffer must be positive, got %d", c.Collaboration.SendBuffer)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Host = getEnvString("KODIAKFLOW_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("KODIAKFLOW_PORT", cfg.Server.Port)
	cfg.Storage.Path = getEnvString("KODIAKFLOW_DATA_DIR", cfg.Storage.Path)
	cfg.Storage.InMemory = getEnvBool("KODIAKFLOW_IN_MEMORY", cfg.Storage.InMemory)
	cfg.Logging.Level = getEnvString("KODIAKFLOW_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Dir = getEnvString("KODIAKFLOW_LOG_DIR", cfg.Logging.Dir)
	cfg.Logging.JSON = getEnvBool("KODIAKFLOW_LOG_JSON", cfg.Logging.JSON)
	cfg.Collaboration.Enabled = getEnvBool("KODIAKFLOW_COLLABORATION", cfg.Collaboration.Enabled)
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
