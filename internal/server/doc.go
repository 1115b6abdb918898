// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server exposes the whiteboard over HTTP.
//
// # Endpoints
//
//   - GET    /api/health                  - Server and dependency status (no auth)
//   - POST   /api/render                  - Compile {d2Source} or {source, dialect} to SVG
//   - GET    /api/models                  - Models offered by the LLM provider
//   - GET    /api/sessions                - Saved sessions, newest first
//   - POST   /api/sessions                - Create a session
//   - GET    /api/sessions/{id}           - Open a session
//   - PUT    /api/sessions/{id}           - Replace session state
//   - PATCH  /api/sessions/{id}           - Rename
//   - DELETE /api/sessions/{id}           - Delete
//   - POST   /api/sessions/{id}/messages  - Send a chat message (server-sent events)
//   - GET    /api/sessions/{id}/ws        - WebSocket carrying the same operations
//   - POST   /api/sessions/{id}/undo|redo - Step through diagram history
//   - PUT    /api/sessions/{id}/source    - Apply edited source
//   - POST   /api/sessions/{id}/preview   - Debounced live preview
//   - POST   /api/sessions/{id}/save      - Save now
//   - GET    /api/sessions/{id}/export    - Download as svg, md, json or html
//   - GET    /api/sessions/{id}/diff      - Compare two diagram versions (?from=&to=)
//   - GET    /api/memories                - List memories
//   - POST   /api/memories                - Add a memory
//   - PUT    /api/memories/{id}           - Edit a memory
//   - DELETE /api/memories/{id}           - Forget a memory
//   - POST   /api/memories/consolidate    - Queue a consolidation task
//   - GET    /api/tasks[/{id}]            - Background task status
//   - DELETE /api/tasks/{id}              - Cancel a task
//
// Errors are JSON objects of the form {"error": "..."}.
//
// # Middleware
//
// Requests pass through request IDs, panic recovery, security headers,
// access logging, CORS, per-IP rate limiting (golang.org/x/time/rate) and
// a body size cap. Everything except /api/health requires the bearer token
// when one is configured. The router is instrumented with otelhttp.
//
// # Usage
//
//	srv, err := server.New(server.Deps{
//		Config:   cfg.Server,
//		Store:    db,
//		Hub:      hub,
//		Renderer: renderSvc,
//		Provider: provider,
//		Logger:   logger,
//	})
//	if err != nil {
//		return err
//	}
//	return srv.ListenAndServe(ctx, cfg.Addr())
package server
