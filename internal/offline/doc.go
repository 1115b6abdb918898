// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package offline restricts network endpoints to the local machine.
//
// With llm.offline = true in the config, only loopback LLM endpoints are
// accepted, hosted providers (anthropic, and openai pointed at a remote
// URL) are refused, and metrics may only be exported to a local collector.
// Diagrams and conversations then never leave the machine.
//
// URL scheme validation applies whether or not offline mode is enabled.
//
//	p := offline.Policy{Enabled: cfg.LLM.Offline}
//	if err := p.CheckProvider(cfg.LLM.Provider, cfg.LLM.OllamaURL); err != nil {
//		return err
//	}
package offline
