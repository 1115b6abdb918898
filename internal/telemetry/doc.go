// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry records OpenTelemetry metrics for renders, chat turns,
// session saves and memory consolidation.
//
// # Key Types
//
//   - Recorder: the metrics sink used by render, chat, session and memory
//   - NoopRecorder: a Recorder that drops everything
//
// # Usage
//
// Export to an OTLP/HTTP collector for the life of the process:
//
//	shutdown, err := telemetry.Setup(ctx, telemetry.Options{
//	    Enabled:     true,
//	    Endpoint:    "localhost:4318",
//	    Insecure:    true,
//	    ServiceName: "instantcoffee",
//	})
//	defer shutdown(context.Background())
//
//	rec := telemetry.Default()
//	rec.RecordRender(ctx, "mermaid", time.Since(start), err)
//
// Without Setup, Default records to the global no-op meter provider.
//
// # Privacy
//
// Only counts, durations and dialect or provider names are recorded.
// Message and diagram content never is.
package telemetry
