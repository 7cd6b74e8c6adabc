// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix is stripped from environment variables before mapping to
	// config keys, e.g. CASEGUARD_ENGINE_POOL_WIDTH -> engine.pool_width.
	EnvPrefix = "CASEGUARD_"

	// ConfigPathEnvVar points at an explicit config file, bypassing the
	// default search paths.
	ConfigPathEnvVar = "CASEGUARD_CONFIG"
)

// DefaultConfigPaths are searched in order when no explicit path is given.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/caseguard/config.yaml",
	"/etc/caseguard/config.yml",
}

// Load builds the configuration from defaults, an optional YAML file and
// CASEGUARD_-prefixed environment variables, in ascending priority.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path == "" {
		path = os.Getenv(ConfigPathEnvVar)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	} else {
		for _, p := range DefaultConfigPaths {
			if _, err := os.Stat(p); err != nil {
				continue
			}
			if err := k.Load(file.Provider(p), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("loading config file %s: %w", p, err)
			}
			break
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// envTransform maps CASEGUARD_ENGINE_POOL_WIDTH to engine.pool_width.
// Section boundaries use single underscores; multi-word keys within a
// section keep their underscores, so the first underscore after the
// prefix splits section from key and the rest are preserved.
func envTransform(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	if i := strings.Index(s, "_"); i > 0 {
		section := s[:i]
		rest := s[i+1:]
		// Nested webhook keys: ALERTING_WEBHOOK_URL -> alerting.webhook.url.
		if section == "alerting" && strings.HasPrefix(rest, "webhook_") {
			return "alerting.webhook." + strings.TrimPrefix(rest, "webhook_")
		}
		return section + "." + rest
	}
	return s
}
