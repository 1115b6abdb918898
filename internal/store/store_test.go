// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tickingClock advances one millisecond per call so orderings are stable.
type tickingClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *tickingClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	clock := &tickingClock{t: time.UnixMilli(1_700_000_000_000)}
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), WithClock(clock.now))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func stateWith(msgs ...ChatMessage) SessionState {
	return SessionState{Messages: msgs, DiagramSource: "graph TD\nA-->B", History: []string{"graph TD\nA-->B"}}
}

// =============================================================================
// SCHEMA
// =============================================================================

func TestOpenInitializesSchema(t *testing.T) {
	s := newTestStore(t)
	v, err := s.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1", v)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "again.db")
	s1, err := Open(path)
	require.NoError(t, err)
	_, err = s1.CreateMemory(context.Background(), "", "", "kept")
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
	mems, err := s2.ListMemories(context.Background(), OrderByCreated)
	require.NoError(t, err)
	require.Len(t, mems, 1)
	assert.Equal(t, "kept", mems[0].Content)
}

// =============================================================================
// SESSIONS
// =============================================================================

func TestSessionName(t *testing.T) {
	long := strings.Repeat("a", 60)
	tests := []struct {
		name  string
		state SessionState
		want  string
	}{
		{"no messages", SessionState{}, "New Diagram"},
		{"assistant only", SessionState{Messages: []ChatMessage{{Role: RoleAssistant, Content: "hi"}}}, "New Diagram"},
		{"short", SessionState{Messages: []ChatMessage{{Role: RoleUser, Content: "Draw a login flow"}}}, "Draw a login flow"},
		{"exactly fifty", SessionState{Messages: []ChatMessage{{Role: RoleUser, Content: long[:50]}}}, long[:50]},
		{"long", SessionState{Messages: []ChatMessage{{Role: RoleUser, Content: long}}}, long[:50] + "..."},
		{"first user wins", SessionState{Messages: []ChatMessage{
			{Role: RoleAssistant, Content: "Welcome"},
			{Role: RoleUser, Content: "first"},
			{Role: RoleUser, Content: "second"},
		}}, "first"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SessionName(tt.state))
		})
	}
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	state := stateWith(NewChatMessage(RoleUser, "Draw the checkout flow"))
	id, err := s.CreateSession(ctx, state)
	require.NoError(t, err)
	assert.Positive(t, id)

	got, err := s.LoadSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Draw the checkout flow", got.Name)
	assert.Equal(t, got.CreatedAt, got.UpdatedAt)
	assert.Equal(t, state.DiagramSource, got.State.DiagramSource)
	require.Len(t, got.State.Messages, 1)
	assert.Equal(t, state.Messages[0].ID, got.State.Messages[0].ID)

	state.Messages = append(state.Messages, NewChatMessage(RoleAssistant, "Done"))
	state.HistoryIndex = 0
	require.NoError(t, s.UpdateSession(ctx, id, state))

	got2, err := s.LoadSession(ctx, id)
	require.NoError(t, err)
	assert.Len(t, got2.State.Messages, 2)
	assert.Greater(t, got2.UpdatedAt, got.UpdatedAt)
	assert.Equal(t, "Draw the checkout flow", got2.Name, "update keeps the name")

	require.NoError(t, s.RenameSession(ctx, id, "  Checkout  "))
	got3, err := s.LoadSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Checkout", got3.Name)
	assert.Greater(t, got3.UpdatedAt, got2.UpdatedAt)

	require.NoError(t, s.DeleteSession(ctx, id))
	_, err = s.LoadSession(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, s.DeleteSession(ctx, id), "deleting twice is fine")
}

func TestUpdateSessionNamesUntitledSession(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateSession(ctx, SessionState{})
	require.NoError(t, err)
	got, err := s.LoadSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, DefaultSessionName, got.Name)

	// No user message yet: the default stays.
	require.NoError(t, s.UpdateSession(ctx, id, stateWith(NewChatMessage(RoleAssistant, "Hi"))))
	got, err = s.LoadSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, DefaultSessionName, got.Name)

	require.NoError(t, s.UpdateSession(ctx, id, stateWith(NewChatMessage(RoleUser, "Draw the login flow"))))
	got, err = s.LoadSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Draw the login flow", got.Name)

	// A later user message does not rename it again.
	require.NoError(t, s.UpdateSession(ctx, id, stateWith(NewChatMessage(RoleUser, "Something else"))))
	got, err = s.LoadSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Draw the login flow", got.Name)

	// Neither does a save after an explicit rename.
	require.NoError(t, s.RenameSession(ctx, id, "Auth"))
	require.NoError(t, s.UpdateSession(ctx, id, stateWith(NewChatMessage(RoleUser, "Other"))))
	got, err = s.LoadSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Auth", got.Name)
}

func TestSessionMissing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.LoadSession(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.UpdateSession(ctx, 42, SessionState{}), ErrNotFound)
	assert.ErrorIs(t, s.RenameSession(ctx, 42, "x"), ErrNotFound)
	assert.Error(t, s.RenameSession(ctx, 42, "   "))
}

func TestListSessionsOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a, err := s.CreateSession(ctx, stateWith(NewChatMessage(RoleUser, "a")))
	require.NoError(t, err)
	b, err := s.CreateSession(ctx, stateWith(NewChatMessage(RoleUser, "b")))
	require.NoError(t, err)
	c, err := s.CreateSession(ctx, SessionState{})
	require.NoError(t, err)

	// Touch a so it becomes the most recent.
	require.NoError(t, s.UpdateSession(ctx, a, stateWith(NewChatMessage(RoleUser, "a"))))

	list, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []int64{a, c, b}, []int64{list[0].ID, list[1].ID, list[2].ID})
	assert.Equal(t, "New Diagram", list[1].Name)
}

func TestEmptyStateRoundTripsAsEmptySlices(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateSession(ctx, SessionState{})
	require.NoError(t, err)
	got, err := s.LoadSession(ctx, id)
	require.NoError(t, err)
	assert.NotNil(t, got.State.Messages)
	assert.NotNil(t, got.State.History)
}

// =============================================================================
// MEMORIES
// =============================================================================

func TestMemoryCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateMemory(ctx, "", "auth-service", "auth-service runs on port 8080")
	require.NoError(t, err)

	m, err := s.GetMemory(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, CategoryGeneral, m.Category)
	assert.Equal(t, "auth-service", m.Name)

	content := "auth-service runs on port 9090"
	cat := CategoryService
	require.NoError(t, s.UpdateMemory(ctx, id, MemoryUpdate{Content: &content, Category: &cat}))

	m2, err := s.GetMemory(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, content, m2.Content)
	assert.Equal(t, CategoryService, m2.Category)
	assert.Equal(t, "auth-service", m2.Name, "unset fields are kept")
	assert.Greater(t, m2.UpdatedAt, m.UpdatedAt)

	require.NoError(t, s.DeleteMemory(ctx, id))
	_, err = s.GetMemory(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.UpdateMemory(ctx, id, MemoryUpdate{Content: &content}), ErrNotFound)
}

func TestCreateMemoryRejectsBlank(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateMemory(context.Background(), CategoryTeam, "x", "   ")
	assert.Error(t, err)
}

func TestListMemoriesOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.CreateMemory(ctx, CategoryTeam, "payments", "payments is owned by team blue")
	require.NoError(t, err)
	_, err = s.CreateMemory(ctx, CategoryGeneral, "db", "db is postgres")
	require.NoError(t, err)
	_, err = s.CreateMemory(ctx, CategoryService, "api", "api runs on k8s")
	require.NoError(t, err)

	byCreated, err := s.ListMemories(ctx, OrderByCreated)
	require.NoError(t, err)
	assert.Equal(t, []string{"payments", "db", "api"}, names(byCreated))

	byCategory, err := s.ListMemories(ctx, OrderByCategory)
	require.NoError(t, err)
	assert.Equal(t, []string{"db", "api", "payments"}, names(byCategory))
}

func TestFindMemoriesByName(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.CreateMemory(ctx, "", "Auth-Service", "a")
	require.NoError(t, err)
	_, err = s.CreateMemory(ctx, "", "auth-service", "b")
	require.NoError(t, err)
	_, err = s.CreateMemory(ctx, "", "billing", "c")
	require.NoError(t, err)

	found, err := s.FindMemoriesByName(ctx, " AUTH-SERVICE ")
	require.NoError(t, err)
	assert.Len(t, found, 2)
}

func TestMemoriesForPrompt(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	empty, err := s.MemoriesForPrompt(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", empty)

	_, err = s.CreateMemory(ctx, "", "", "auth runs on 8080")
	require.NoError(t, err)
	_, err = s.CreateMemory(ctx, "", "", "team blue owns billing")
	require.NoError(t, err)

	got, err := s.MemoriesForPrompt(ctx)
	require.NoError(t, err)
	assert.Equal(t, "- auth runs on 8080\n- team blue owns billing", got)
}

func TestReplaceMemories(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, c := range []string{"a", "b", "a again"} {
		_, err := s.CreateMemory(ctx, CategoryTeam, "n", c)
		require.NoError(t, err)
	}

	n, err := s.ReplaceMemories(ctx, []string{" fact one ", "", "fact two"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	mems, err := s.ListMemories(ctx, OrderByCreated)
	require.NoError(t, err)
	require.Len(t, mems, 2)
	assert.Equal(t, "fact one", mems[0].Content)
	assert.Equal(t, "fact two", mems[1].Content)
	assert.Equal(t, CategoryGeneral, mems[1].Category)
}

func TestParseMemoryCategory(t *testing.T) {
	c, err := ParseMemoryCategory("")
	require.NoError(t, err)
	assert.Equal(t, CategoryGeneral, c)

	c, err = ParseMemoryCategory("Service")
	require.NoError(t, err)
	assert.Equal(t, CategoryService, c)

	_, err = ParseMemoryCategory("random")
	assert.Error(t, err)
}

func names(ms []Memory) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Name
	}
	return out
}
