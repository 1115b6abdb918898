// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds small helpers shared across Instant Coffee packages:
// crash-safe file writes, rune-aware truncation and filename sanitizing.
package util
