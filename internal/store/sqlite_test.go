package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/curhatin/companion/internal/domain"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordSessionKeepsFirstRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	in := &domain.Session{
		ID: "sess-1", AgentID: "agent-id", Language: domain.LanguageIndonesian,
		CustomerID: "guest", Title: "t", ClientID: "1.2.3.4", VisitorID: "v_x", CreatedAt: created,
	}
	require.NoError(t, s.RecordSession(ctx, in))
	require.NoError(t, s.RecordSession(ctx, &domain.Session{ID: "sess-1", AgentID: "other", Language: domain.LanguageEnglish, ClientID: "c"}))

	var agentID, lang, visitorID string
	var platformCreated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT agent_id, language, visitor_id, platform_created_at FROM sessions WHERE session_id = ?`, "sess-1",
	).Scan(&agentID, &lang, &visitorID, &platformCreated)
	require.NoError(t, err)
	require.Equal(t, "agent-id", agentID)
	require.Equal(t, string(domain.LanguageIndonesian), lang)
	require.Equal(t, "v_x", visitorID)
	require.Equal(t, created.Unix(), platformCreated)
	require.Equal(t, 1, countSessions(t, s))
}

func countSessions(t *testing.T, s *SQLiteStore) int {
	t.Helper()
	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&n))
	return n
}

func TestPruneSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordSession(ctx, &domain.Session{ID: "old", AgentID: "a", Language: "id", ClientID: "c"}))
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET created_at = ? WHERE session_id = ?`, time.Now().Add(-48*time.Hour).Unix(), "old")
	require.NoError(t, err)
	require.NoError(t, s.RecordSession(ctx, &domain.Session{ID: "new", AgentID: "a", Language: "id", ClientID: "c"}))

	n, err := s.PruneSessions(ctx, 24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	require.Equal(t, 1, countSessions(t, s))
}

func TestWishlistPendingAndForwarded(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.SaveWishlistEntry(ctx, &domain.WishlistEntry{ID: "b", Name: "Budi", Email: "b@example.com", ClientID: "c", CreatedAt: now}))
	require.NoError(t, s.SaveWishlistEntry(ctx, &domain.WishlistEntry{ID: "a", Name: "Ani", Email: "a@example.com", ClientID: "c", CreatedAt: now.Add(-time.Hour)}))
	require.NoError(t, s.SaveWishlistEntry(ctx, &domain.WishlistEntry{ID: "done", Name: "Cici", Email: "c@example.com", ClientID: "c", Forwarded: true, CreatedAt: now}))

	pending, err := s.PendingWishlistEntries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, "a", pending[0].ID)
	require.Equal(t, "b", pending[1].ID)

	require.NoError(t, s.MarkWishlistForwarded(ctx, "a"))
	require.NoError(t, s.MarkWishlistForwarded(ctx, "a"))

	pending, err = s.PendingWishlistEntries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "b", pending[0].ID)
}

func TestWithBusyRetry(t *testing.T) {
	calls := 0
	err := withBusyRetry(context.Background(), "op", func() error {
		calls++
		if calls < 2 {
			return errors.New("database is locked (5) (SQLITE_BUSY)")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)

	calls = 0
	err = withBusyRetry(context.Background(), "op", func() error {
		calls++
		return errors.New("constraint failed")
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestIsConflictError(t *testing.T) {
	require.False(t, IsConflictError(nil))
	require.True(t, IsConflictError(errors.New("SQLITE_BUSY")))
	require.True(t, IsConflictError(errors.New("database is locked")))
	require.False(t, IsConflictError(errors.New("no such table")))
}
