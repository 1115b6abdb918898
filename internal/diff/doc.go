// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package diff compares diagram sources, typically two entries of a
// session's history.
//
// # Usage
//
//	d, err := diff.Versions(state.History, 1, 3)
//	if err != nil {
//		return err
//	}
//	fmt.Println(d.Summary()) // "+3 -1"
//	fmt.Print(d.Unified)
package diff
