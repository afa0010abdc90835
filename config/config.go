// Package config loads runtime configuration from YAML, JSON or TOML files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	physxruntime "github.com/wippyai/physx-runtime"
	"github.com/wippyai/physx-runtime/artifact"
	"github.com/wippyai/physx-runtime/errors"
)

// Config holds every tunable of the runtime and its admin surface.
// Fields missing from a file keep their Default values.
type Config struct {
	Mode       string           `json:"mode" yaml:"mode" toml:"mode"`
	Extensions bool             `json:"extensions" yaml:"extensions" toml:"extensions"`
	Tolerances Tolerances       `json:"tolerances" yaml:"tolerances" toml:"tolerances"`
	Artifacts  artifact.Sources `json:"artifacts" yaml:"artifacts" toml:"artifacts"`
	Cache      Cache            `json:"cache" yaml:"cache" toml:"cache"`
	Engine     Engine           `json:"engine" yaml:"engine" toml:"engine"`
	Server     Server           `json:"server" yaml:"server" toml:"server"`
	Log        Log              `json:"log" yaml:"log" toml:"log"`
}

// Tolerances is the physics scale the world is tuned for.
type Tolerances struct {
	Length float32 `json:"length" yaml:"length" toml:"length"`
	Speed  float32 `json:"speed" yaml:"speed" toml:"speed"`
}

// Cache locates on-disk caches. Empty disables the respective cache.
type Cache struct {
	ArtifactDir    string `json:"artifact_dir" yaml:"artifact_dir" toml:"artifact_dir"`
	CompilationDir string `json:"compilation_dir" yaml:"compilation_dir" toml:"compilation_dir"`
}

// Engine tunes the wasm engine.
type Engine struct {
	MemoryLimitPages uint32 `json:"memory_limit_pages" yaml:"memory_limit_pages" toml:"memory_limit_pages"`
}

// Server configures the admin HTTP server. CORS is disabled unless
// AllowedOrigins lists at least one origin.
type Server struct {
	Addr           string   `json:"addr" yaml:"addr" toml:"addr"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins" toml:"allowed_origins"`
}

// Log configures the process logger.
type Log struct {
	Level       string `json:"level" yaml:"level" toml:"level"`
	Development bool   `json:"development" yaml:"development" toml:"development"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	t := physxruntime.DefaultTolerances()
	return Config{
		Mode:       physxruntime.ModeAuto.String(),
		Tolerances: Tolerances{Length: t.Length, Speed: t.Speed},
		Artifacts:  artifact.DefaultSources(),
		Server:     Server{Addr: "127.0.0.1:7070"},
		Log:        Log{Level: "info"},
	}
}

// Load reads a configuration file based on its extension, on top of Default.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, errors.InvalidInput(errors.PhaseConfig, "empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, errors.NotFound(errors.PhaseConfig, "config file", path)
		}
		return cfg, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "read config")
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	case ".json":
		err = json.Unmarshal(b, &cfg)
	case ".toml":
		err = toml.Unmarshal(b, &cfg)
	default:
		return cfg, errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("unsupported config extension: %s", ext))
	}
	if err != nil {
		return cfg, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "decode "+path)
	}
	return cfg, cfg.Validate()
}

// Validate checks values a decoder cannot.
func (c Config) Validate() error {
	if _, err := c.RuntimeMode(); err != nil {
		return err
	}
	if c.Tolerances.Length <= 0 || c.Tolerances.Speed <= 0 {
		return errors.InvalidInput(errors.PhaseConfig,
			fmt.Sprintf("tolerances must be positive, got length=%g speed=%g", c.Tolerances.Length, c.Tolerances.Speed))
	}
	if err := c.Artifacts.Validate(); err != nil {
		return err
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return nil
}

// RuntimeMode parses Mode.
func (c Config) RuntimeMode() (physxruntime.Mode, error) {
	m, err := physxruntime.ParseMode(c.Mode)
	if err != nil {
		return m, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "mode")
	}
	return m, nil
}

// RuntimeTolerances converts Tolerances for the runtime.
func (c Config) RuntimeTolerances() physxruntime.Tolerances {
	return physxruntime.Tolerances{Length: c.Tolerances.Length, Speed: c.Tolerances.Speed}
}

// LogLevel parses Log.Level. Empty means info.
func (c Config) LogLevel() (zapcore.Level, error) {
	if c.Log.Level == "" {
		return zapcore.InfoLevel, nil
	}
	lvl, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return lvl, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "log level")
	}
	return lvl, nil
}
