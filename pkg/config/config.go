// Package config loads tmm configuration: embedded defaults, the
// user's tmm.toml, and TMM_* environment overrides, in that order.
package config

import (
	_ "embed"
	"errors"
	"os"
	"strings"

	koanftoml "github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	tmmerr "github.com/tmm-manager/tmm/pkg/errors"
)

//go:embed embedded/defaults.toml
var defaultConfig []byte

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "TMM_"

// DeployConfig holds overlay engine settings.
type DeployConfig struct {
	Technique string `koanf:"technique"`
	Workers   int    `koanf:"workers"`
}

// ResolverConfig holds path resolver settings.
type ResolverConfig struct {
	CaseFold bool `koanf:"case_fold"`
}

// DownloadConfig holds mod downloader settings.
type DownloadConfig struct {
	Workers        int    `koanf:"workers"`
	ChunkSize      int64  `koanf:"chunk_size"`
	MaxRetries     int    `koanf:"max_retries"`
	TimeoutSeconds int    `koanf:"timeout_seconds"`
	UserAgent      string `koanf:"user_agent"`
}

// Config is the complete tmm configuration.
type Config struct {
	Deploy   DeployConfig   `koanf:"deploy"`
	Resolver ResolverConfig `koanf:"resolver"`
	Download DownloadConfig `koanf:"download"`
}

// Default returns the built-in configuration without reading any
// file or environment state.
func Default() (*Config, error) {
	return load("")
}

// Load reads configuration layered from the embedded defaults, the
// given config file (if it exists) and TMM_* environment variables.
func Load(configFile string) (*Config, error) {
	return load(configFile)
}

func load(configFile string) (*Config, error) {
	k := koanf.New(".")

	// 1. Embedded defaults
	if err := k.Load(&rawBytesProvider{bytes: defaultConfig}, koanftoml.Parser()); err != nil {
		return nil, tmmerr.Wrap(err, tmmerr.ErrConfigParse, "failed to load built-in defaults")
	}

	// 2. User config file, when present
	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			if err := k.Load(file.Provider(configFile), koanftoml.Parser()); err != nil {
				return nil, tmmerr.Wrapf(err, tmmerr.ErrConfigLoad,
					"failed to load config from %s", configFile)
			}
		}
	}

	// 3. Environment overrides. Only the first underscore separates
	// section from key, so TMM_DOWNLOAD_MAX_RETRIES maps to
	// download.max_retries.
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.Replace(key, "_", ".", 1)
	}), nil); err != nil {
		return nil, tmmerr.Wrap(err, tmmerr.ErrConfigLoad, "failed to load environment overrides")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, tmmerr.Wrap(err, tmmerr.ErrConfigParse, "failed to decode configuration")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Deploy.Technique {
	case "copy", "hardlink", "symlink":
	default:
		return tmmerr.Newf(tmmerr.ErrConfigParse,
			"invalid deploy.technique %q (want copy, hardlink or symlink)", c.Deploy.Technique)
	}
	if c.Deploy.Workers < 1 {
		return tmmerr.New(tmmerr.ErrConfigParse, "deploy.workers must be at least 1")
	}
	if c.Download.Workers < 1 {
		return tmmerr.New(tmmerr.ErrConfigParse, "download.workers must be at least 1")
	}
	if c.Download.ChunkSize < 1 {
		return tmmerr.New(tmmerr.ErrConfigParse, "download.chunk_size must be positive")
	}
	return nil
}

// rawBytesProvider implements koanf provider for raw bytes
type rawBytesProvider struct{ bytes []byte }

func (r *rawBytesProvider) ReadBytes() ([]byte, error) { return r.bytes, nil }
func (r *rawBytesProvider) Read() (map[string]interface{}, error) {
	return nil, errors.New("not implemented")
}
