// Package config loads service configuration from a file and from the
// SHRIMP_* environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Address       string `json:"address" yaml:"address" toml:"address"`
	Port          int    `json:"port" yaml:"port" toml:"port"`
	IPVersion     int    `json:"ip_version" yaml:"ip_version" toml:"ip_version"`
	ImagesDir     string `json:"images_dir" yaml:"images_dir" toml:"images_dir"`
	IOThreads     int    `json:"io_threads" yaml:"io_threads" toml:"io_threads"`
	WorkerThreads int    `json:"worker_threads" yaml:"worker_threads" toml:"worker_threads"`
	LogLevel      string `json:"log_level" yaml:"log_level" toml:"log_level"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// EnvInt reads an integer environment variable, returning the default when
// the variable is unset or malformed.
func EnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
