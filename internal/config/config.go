// Package config loads nbstats configuration from defaults, an optional YAML
// file and NBSTATS_ environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/rovo/nbstats/tokenize"
)

// EnvPrefix is the prefix of environment variables read by Load. Nested keys
// are separated by a double underscore, e.g. NBSTATS_MODEL__DIR.
const EnvPrefix = "NBSTATS_"

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "NBSTATS_CONFIG"

// DefaultConfigPaths are searched in order when no explicit path is given.
var DefaultConfigPaths = []string{
	"nbstats.yaml",
	"nbstats.yml",
	"/etc/nbstats/config.yaml",
}

var (
	errInvalidPort      = errors.New("server.port must be between 1 and 65535")
	errInvalidLogFormat = errors.New("log.format must be json or console")
	errInvalidLanguage  = errors.New("tokenizer.language is not supported")
	errRelativeModelDir = errors.New("model.dir must be absolute")
	errEmptyModelName   = errors.New("model.name must not be empty")
	errInvalidMinLength = errors.New("tokenizer.min_length must not be negative")
)

// Config is the full nbstats configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Model     ModelConfig     `koanf:"model"`
	Tokenizer TokenizerConfig `koanf:"tokenizer"`
	Log       LogConfig       `koanf:"log"`
	Archive   ArchiveConfig   `koanf:"archive"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port      int    `koanf:"port"`
	AuthToken string `koanf:"auth_token"`
}

// ModelConfig configures where training data lives and how it is counted.
type ModelConfig struct {
	Dir                  string `koanf:"dir"`
	Name                 string `koanf:"name"`
	LoadOnStart          bool   `koanf:"load_on_start"`
	SaveOnShutdown       bool   `koanf:"save_on_shutdown"`
	Watch                bool   `koanf:"watch"`
	LegacySampleCounting bool   `koanf:"legacy_sample_counting"`
	SVMType              string `koanf:"svm_type"`
}

// Path returns the model file location.
func (m ModelConfig) Path() string {
	return filepath.Join(m.Dir, m.Name)
}

// TokenizerConfig configures feature extraction.
type TokenizerConfig struct {
	Language  string `koanf:"language"`
	Stem      bool   `koanf:"stem"`
	MinLength int    `koanf:"min_length"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ArchiveConfig configures the snapshot archive. An empty path disables it.
type ArchiveConfig struct {
	Path string `koanf:"path"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8000,
		},
		Model: ModelConfig{
			Dir:            os.TempDir(),
			Name:           "nbstats.gob",
			LoadOnStart:    true,
			SaveOnShutdown: true,
			SVMType:        "c_svc",
		},
		Tokenizer: TokenizerConfig{
			Language:  tokenize.DefaultLanguage,
			Stem:      true,
			MinLength: 2,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

// Load builds the configuration. path names a YAML file; when empty the
// NBSTATS_CONFIG variable and then DefaultConfigPaths are consulted, and a
// missing file is not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = findConfigFile()
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil || explicit {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		return path
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps NBSTATS_MODEL__LEGACY_SAMPLE_COUNTING to
// model.legacy_sample_counting.
func envTransformFunc(key string) string {
	if key == ConfigPathEnvVar {
		return ""
	}
	key = strings.TrimPrefix(key, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(key), "__", ".")
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("%w: %d", errInvalidPort, c.Server.Port))
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		errs = append(errs, fmt.Errorf("%w: %q", errInvalidLogFormat, c.Log.Format))
	}
	if c.Tokenizer.Stem && !tokenize.IsSupportedLanguage(c.Tokenizer.Language) {
		errs = append(errs, fmt.Errorf("%w: %q (supported: %s)", errInvalidLanguage,
			c.Tokenizer.Language, strings.Join(tokenize.SupportedLanguages(), ", ")))
	}
	if c.Tokenizer.MinLength < 0 {
		errs = append(errs, fmt.Errorf("%w: %d", errInvalidMinLength, c.Tokenizer.MinLength))
	}
	if !filepath.IsAbs(c.Model.Dir) {
		errs = append(errs, fmt.Errorf("%w: %q", errRelativeModelDir, c.Model.Dir))
	}
	if c.Model.Name == "" {
		errs = append(errs, errEmptyModelName)
	}

	return errors.Join(errs...)
}
