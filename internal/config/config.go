// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CatchAdmin Contributors

// Package config loads orchestrator configuration from a YAML file and
// command-line flags. Flags override file values, which override defaults.
package config

import (
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Config holds all orchestrator settings.
type Config struct {
	Log      LogConfig      `koanf:"log"`
	Hooks    HooksConfig    `koanf:"hooks"`
	Runtime  RuntimeConfig  `koanf:"runtime"`
	Registry RegistryConfig `koanf:"registry"`
	Metrics  MetricsConfig  `koanf:"metrics"`
}

// LogConfig controls diagnostic output.
type LogConfig struct {
	Format string `koanf:"format"` // "json" or "text"
}

// HooksConfig controls plugin eligibility and hook resolution.
type HooksConfig struct {
	// Sentinel is the package type that marks a package as hook-bearing.
	Sentinel string `koanf:"sentinel"`
	// Extension is the source-file extension appended when resolving a hook
	// identifier to a file on disk.
	Extension string `koanf:"extension"`
	// Ignore lists glob patterns of package names exempt from hooks.
	Ignore []string `koanf:"ignore"`
}

// RuntimeConfig locates the host application's bootstrap scripts.
type RuntimeConfig struct {
	// Loader is the generated dependency loader script.
	Loader string `koanf:"loader"`
	// Boot is the host application's bootstrap entry point.
	Boot string `koanf:"boot"`
}

// RegistryConfig locates the installed-plugin record store.
type RegistryConfig struct {
	Path string `koanf:"path"`
}

// MetricsConfig controls the optional observability endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /healthz, /readyz, and /metrics.
	// Empty disables the endpoint.
	Addr string `koanf:"addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log: LogConfig{Format: "json"},
		Hooks: HooksConfig{
			Sentinel:  "catch-plugin",
			Extension: ".lua",
		},
		Runtime: RuntimeConfig{
			Loader: "vendor/loader.lua",
			Boot:   "bootstrap.lua",
		},
		Registry: RegistryConfig{Path: "installed.json"},
	}
}

// Load builds a Config from defaults, an optional YAML file, and an optional
// flag set. Flag names use dots matching the config keys, e.g. "log.format".
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.In("config").With("path", path).Hint("check that the config file exists and is valid YAML").Wrap(err)
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return Config{}, oops.In("config").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, oops.In("config").Hint("config keys do not match the expected shape").Wrap(err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks configuration constraints.
func (c Config) Validate() error {
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return oops.In("config").With("format", c.Log.Format).New("log.format must be \"json\" or \"text\"")
	}
	if c.Hooks.Sentinel == "" {
		return oops.In("config").New("hooks.sentinel is required")
	}
	if c.Hooks.Extension == "" || c.Hooks.Extension[0] != '.' {
		return oops.In("config").With("extension", c.Hooks.Extension).New("hooks.extension must start with a dot")
	}
	if c.Registry.Path == "" {
		return oops.In("config").New("registry.path is required")
	}
	return nil
}
