// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const memoryColumns = "id, category, name, content, created_at, updated_at"

// CreateMemory stores a new memory and returns its ID. An empty category
// means general.
func (s *Store) CreateMemory(ctx context.Context, category MemoryCategory, name, content string) (int64, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return 0, errors.New("memory content is empty")
	}
	if category == "" {
		category = CategoryGeneral
	}
	now := s.nowMillis()

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO memories (category, name, content, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		string(category), strings.TrimSpace(name), content, now, now)
	if err != nil {
		return 0, fmt.Errorf("%w: insert memory: %v", ErrDatabaseError, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	s.logger.Debug("MEMORY_CREATED", zap.Int64("id", id), zap.String("category", string(category)))
	return id, nil
}

// GetMemory returns memory id, or ErrNotFound.
func (s *Store) GetMemory(ctx context.Context, id int64) (*Memory, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+memoryColumns+" FROM memories WHERE id = ?", id)
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

// UpdateMemory applies the non-nil fields of u and bumps updatedAt.
func (s *Store) UpdateMemory(ctx context.Context, id int64, u MemoryUpdate) error {
	sets := []string{"updated_at = ?"}
	args := []any{s.nowMillis()}

	if u.Category != nil {
		sets = append(sets, "category = ?")
		args = append(args, string(*u.Category))
	}
	if u.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, strings.TrimSpace(*u.Name))
	}
	if u.Content != nil {
		c := strings.TrimSpace(*u.Content)
		if c == "" {
			return errors.New("memory content is empty")
		}
		sets = append(sets, "content = ?")
		args = append(args, c)
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		"UPDATE memories SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("%w: update memory: %v", ErrDatabaseError, err)
	}
	return rowsAffected(res)
}

// DeleteMemory removes memory id. Missing IDs are ignored.
func (s *Store) DeleteMemory(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM memories WHERE id = ?", id); err != nil {
		return fmt.Errorf("%w: delete memory: %v", ErrDatabaseError, err)
	}
	return nil
}

// ListMemories returns every memory in the given order.
func (s *Store) ListMemories(ctx context.Context, order MemoryOrder) ([]Memory, error) {
	q := "SELECT " + memoryColumns + " FROM memories ORDER BY created_at, id"
	if order == OrderByCategory {
		q = "SELECT " + memoryColumns + " FROM memories ORDER BY category, name, created_at, id"
	}

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: list memories: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	var out []Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// FindMemoriesByName returns memories whose name matches name, ignoring
// case and surrounding space.
func (s *Store) FindMemoriesByName(ctx context.Context, name string) ([]Memory, error) {
	all, err := s.ListMemories(ctx, OrderByCreated)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	var out []Memory
	for _, m := range all {
		if strings.EqualFold(strings.TrimSpace(m.Name), name) {
			out = append(out, m)
		}
	}
	return out, nil
}

// MemoriesForPrompt formats every memory as a "- content" line. Returns ""
// when there are none.
func (s *Store) MemoriesForPrompt(ctx context.Context) (string, error) {
	all, err := s.ListMemories(ctx, OrderByCreated)
	if err != nil {
		return "", err
	}
	lines := make([]string, 0, len(all))
	for _, m := range all {
		lines = append(lines, "- "+m.Content)
	}
	return strings.Join(lines, "\n"), nil
}

// ReplaceMemories deletes every memory and inserts contents as general
// memories, atomically. Blank entries are skipped.
func (s *Store) ReplaceMemories(ctx context.Context, contents []string) (int, error) {
	now := s.nowMillis()
	inserted := 0

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM memories"); err != nil {
			return fmt.Errorf("%w: clear memories: %v", ErrDatabaseError, err)
		}
		stmt, err := tx.PrepareContext(ctx,
			"INSERT INTO memories (category, name, content, created_at, updated_at) VALUES (?, '', ?, ?, ?)")
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		defer stmt.Close()

		for _, c := range contents {
			c = strings.TrimSpace(c)
			if c == "" {
				continue
			}
			if _, err := stmt.ExecContext(ctx, string(CategoryGeneral), c, now, now); err != nil {
				return fmt.Errorf("%w: insert memory: %v", ErrDatabaseError, err)
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("MEMORIES_REPLACED", zap.Int("count", inserted))
	return inserted, nil
}

func scanMemory(row scanner) (*Memory, error) {
	var m Memory
	var category string
	if err := row.Scan(&m.ID, &category, &m.Name, &m.Content, &m.CreatedAt, &m.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: scan memory: %v", ErrDatabaseError, err)
	}
	m.Category = MemoryCategory(category)
	return &m, nil
}
