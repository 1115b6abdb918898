// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session auto-saves conversations.
//
// A Manager watches the state of one conversation and writes it to the
// store after changes settle. Only the message count, the diagram source
// and the history position count as changes; streaming text alone does
// not trigger writes.
//
// # Usage
//
//	mgr := session.NewManager(db, session.DefaultConfig())
//	defer mgr.Close(ctx)
//
//	conv.OnChange(mgr.Observe)
//	...
//	mgr.Flush(ctx) // explicit save
//
// A manager with no session ID creates the row on its first save and keeps
// the new ID from then on.
package session
