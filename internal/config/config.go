// Package config provides the two configuration layers of the generator:
// tool settings (YAML file plus ATMN_* environment overrides) and the XML
// scenario-collection configuration that describes what to simulate.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultDBPath    = "atmn.db"
	defaultEngine    = "builtin"
	defaultThreads   = 1
	defaultPrecision = "16"

	envDBPath    = "ATMN_DB_PATH"
	envLogLevel  = "ATMN_LOG_LEVEL"
	envServeAddr = "ATMN_SERVE_ADDR"
	envEngine    = "ATMN_ENGINE"
)

// Settings holds tool-level configuration: everything that is not part of
// the scenario collection itself.
type Settings struct {
	DBPath      string `yaml:"db_path"`
	ServeAddr   string `yaml:"serve_addr"`
	Engine      string `yaml:"engine"`
	Threads     int    `yaml:"threads"`
	MaxMemoryMB int64  `yaml:"max_memory_mb"`
	Precision   string `yaml:"precision"`
	LogLevel    string `yaml:"log_level"`
}

// LoadSettings reads tool settings from an optional YAML file, then applies
// environment variable overrides. A missing file is not an error; a
// malformed one is.
func LoadSettings(path string) (Settings, error) {
	s := Settings{
		DBPath:    defaultDBPath,
		Engine:    defaultEngine,
		Threads:   defaultThreads,
		Precision: defaultPrecision,
		LogLevel:  "info",
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return s, fmt.Errorf("read settings file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &s); err != nil {
			return s, fmt.Errorf("parse settings file %s: %w", path, err)
		}
	}

	if v := os.Getenv(envDBPath); v != "" {
		s.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		s.LogLevel = v
	}
	if v := os.Getenv(envServeAddr); v != "" {
		s.ServeAddr = v
	}
	if v := os.Getenv(envEngine); v != "" {
		s.Engine = v
	}

	return s, nil
}

// ParseLogLevel maps a level name to a slog.Level, defaulting to info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
