// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for
// Instant Coffee.
//
// TOML is the primary format; YAML and JSON are accepted by extension.
// Values not present in a file keep their defaults, environment variables
// override files, and Validate reports every problem at once.
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (INSTANTCOFFEE_*, OPENAI_API_KEY, ANTHROPIC_API_KEY)
//   - ~/.instantcoffee/config.toml, config.yaml or config.json (first found)
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	timeout := cfg.Render.Timeout.Duration
package config
