// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jeranaias/instantcoffee/internal/util"
)

// SessionName derives a display name from the first user message.
func SessionName(state SessionState) string {
	for _, m := range state.Messages {
		if m.Role == RoleUser {
			return util.TruncateWithSuffix(m.Content, MaxSessionNameRunes, "...")
		}
	}
	return DefaultSessionName
}

// CreateSession inserts state as a new session and returns its ID.
func (s *Store) CreateSession(ctx context.Context, state SessionState) (int64, error) {
	data, err := encodeState(state)
	if err != nil {
		return 0, err
	}
	name := SessionName(state)
	now := s.nowMillis()

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO sessions (name, state, created_at, updated_at) VALUES (?, ?, ?, ?)",
		name, data, now, now)
	if err != nil {
		return 0, fmt.Errorf("%w: insert session: %v", ErrDatabaseError, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	s.logger.Debug("SESSION_CREATED", zap.Int64("id", id), zap.String("name", name))
	return id, nil
}

// LoadSession returns the session with id, or ErrNotFound.
func (s *Store) LoadSession(ctx context.Context, id int64) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, name, state, created_at, updated_at FROM sessions WHERE id = ?", id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// UpdateSession replaces the state of session id and bumps updatedAt. A
// session still carrying DefaultSessionName picks up the name derived from
// its first user message.
func (s *Store) UpdateSession(ctx context.Context, id int64, state SessionState) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET state = ?, updated_at = ?, name = CASE WHEN name = ? THEN ? ELSE name END WHERE id = ?",
		data, s.nowMillis(), DefaultSessionName, SessionName(state), id)
	if err != nil {
		return fmt.Errorf("%w: update session: %v", ErrDatabaseError, err)
	}
	return rowsAffected(res)
}

// RenameSession sets the name of session id and bumps updatedAt.
func (s *Store) RenameSession(ctx context.Context, id int64, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("session name is empty")
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET name = ?, updated_at = ? WHERE id = ?",
		name, s.nowMillis(), id)
	if err != nil {
		return fmt.Errorf("%w: rename session: %v", ErrDatabaseError, err)
	}
	return rowsAffected(res)
}

// DeleteSession removes session id. Deleting a missing session is not an
// error.
func (s *Store) DeleteSession(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("%w: delete session: %v", ErrDatabaseError, err)
	}
	s.logger.Debug("SESSION_DELETED", zap.Int64("id", id))
	return nil
}

// ListSessions returns every session, most recently updated first.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, state, created_at, updated_at FROM sessions ORDER BY updated_at DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("%w: list sessions: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var sess Session
	var data string
	if err := row.Scan(&sess.ID, &sess.Name, &data, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: scan session: %v", ErrDatabaseError, err)
	}
	if err := json.Unmarshal([]byte(data), &sess.State); err != nil {
		return nil, fmt.Errorf("decode session %d state: %w", sess.ID, err)
	}
	return &sess, nil
}

func encodeState(state SessionState) (string, error) {
	if state.Messages == nil {
		state.Messages = []ChatMessage{}
	}
	if state.History == nil {
		state.History = []string{}
	}
	data, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("encode session state: %w", err)
	}
	return string(data), nil
}
