package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldreach/coldreach/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testProfile(userID, hash string) *model.UserProfile {
	return &model.UserProfile{
		UserID:      userID,
		Summary:     "Backend engineer, Go and Postgres.",
		Provenance:  []model.SourceKind{model.SourceResume, model.SourceGitHub},
		ContentHash: hash,
		BuiltAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

// --- Profiles ---

func TestSQLite_Profile_UpsertAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertProfile(ctx, testProfile("u1", "h1")))

	p, err := st.GetProfile(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "h1", p.ContentHash)
	assert.Equal(t, []model.SourceKind{model.SourceResume, model.SourceGitHub}, p.Provenance)
	assert.True(t, p.BuiltAt.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))
	assert.False(t, p.Invalidated)
}

func TestSQLite_Profile_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	p, err := st.GetProfile(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestSQLite_Profile_InvalidateThenUpsertClearsFlag(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertProfile(ctx, testProfile("u1", "h1")))
	require.NoError(t, st.InvalidateProfile(ctx, "u1"))

	p, err := st.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, p.Invalidated)

	require.NoError(t, st.UpsertProfile(ctx, testProfile("u1", "h2")))
	p, err = st.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, p.Invalidated)
	assert.Equal(t, "h2", p.ContentHash)
}

func TestSQLite_Profile_Delete(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertProfile(ctx, testProfile("u1", "h1")))
	require.NoError(t, st.DeleteProfile(ctx, "u1"))

	p, err := st.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, p)

	// Deleting again is a no-op.
	assert.NoError(t, st.DeleteProfile(ctx, "u1"))
}

// --- Sessions ---

func testSession(id string, outcome model.Outcome) *model.OutreachSession {
	return &model.OutreachSession{
		ID:         id,
		UserID:     "u1",
		CompanyURL: "https://clearcutar.com",
		Contact:    &model.Contact{Name: "Lisa Chen", Title: "CTO", Email: "lisa@clearcutar.com"},
		Attempts: []model.DraftAttempt{
			{Seq: 1, Text: "Hi Lisa", Score: 0.84, ScorerVersion: "heuristic-v1", Accepted: true},
		},
		Outcome:    outcome,
		FinalScore: 0.84,
		CreatedAt:  time.Now().UTC(),
	}
}

func TestSQLite_Session_SaveAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveSession(ctx, testSession("s1", model.OutcomeAccepted)))

	got, err := st.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeAccepted, got.Outcome)
	require.NotNil(t, got.Contact)
	assert.Equal(t, "Lisa Chen", got.Contact.Name)
	require.Len(t, got.Attempts, 1)
	assert.InDelta(t, 0.84, got.Attempts[0].Score, 1e-9)
}

func TestSQLite_Session_GetMissing(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetSession(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_Session_UpdateUntilTerminal(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	sess := testSession("s1", model.OutcomeAccepted)
	require.NoError(t, st.SaveSession(ctx, sess))

	now := time.Now().UTC()
	sess.Outcome = model.OutcomeSent
	sess.CompletedAt = &now
	require.NoError(t, st.SaveSession(ctx, sess))

	sess.Outcome = model.OutcomeError
	err := st.SaveSession(ctx, sess)
	assert.ErrorIs(t, err, model.ErrSessionTerminal)

	got, err := st.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeSent, got.Outcome)
}

func TestSQLite_ListSessions_Filters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a := testSession("a", model.OutcomeSent)
	b := testSession("b", model.OutcomeExhausted)
	b.CreatedAt = a.CreatedAt.Add(time.Second)
	c := testSession("c", model.OutcomeSent)
	c.UserID = "u2"
	for _, s := range []*model.OutreachSession{a, b, c} {
		require.NoError(t, st.SaveSession(ctx, s))
	}

	all, err := st.ListSessions(ctx, SessionFilter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].ID, "newest first")

	sent, err := st.ListSessions(ctx, SessionFilter{Outcome: model.OutcomeSent})
	require.NoError(t, err)
	assert.Len(t, sent, 2)

	limited, err := st.ListSessions(ctx, SessionFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

// --- Activity log ---

func TestSQLite_Log_AppendPreservesOrder(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for seq := 1; seq <= 3; seq++ {
		require.NoError(t, st.AppendLog(ctx, &model.LogEntry{
			SessionID: "s1", UserID: "u1", CompanyURL: "https://acme.com",
			Kind: model.LogKindAttempt, Seq: seq, Score: float64(seq) / 10,
		}))
	}
	require.NoError(t, st.AppendLog(ctx, &model.LogEntry{
		SessionID: "s1", UserID: "u1", CompanyURL: "https://acme.com",
		Kind: model.LogKindSession, Outcome: model.OutcomeExhausted, ErrorKind: "quality_rejected",
	}))

	entries, err := st.ListLog(ctx, LogFilter{SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, entries, 4)
	for i := 0; i < 3; i++ {
		assert.Equal(t, i+1, entries[i].Seq)
		assert.NotEmpty(t, entries[i].ID)
		assert.False(t, entries[i].CreatedAt.IsZero())
	}
	assert.Equal(t, model.LogKindSession, entries[3].Kind)
	assert.Equal(t, model.OutcomeExhausted, entries[3].Outcome)

	attempts, err := st.ListLog(ctx, LogFilter{SessionID: "s1", Kind: model.LogKindAttempt})
	require.NoError(t, err)
	assert.Len(t, attempts, 3)
}

func TestSQLite_Log_TimeWindow(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	day := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.AppendLog(ctx, &model.LogEntry{SessionID: "old", Kind: model.LogKindSession, CreatedAt: day.Add(-time.Hour)}))
	require.NoError(t, st.AppendLog(ctx, &model.LogEntry{SessionID: "in", Kind: model.LogKindSession, CreatedAt: day.Add(time.Hour)}))
	require.NoError(t, st.AppendLog(ctx, &model.LogEntry{SessionID: "new", Kind: model.LogKindSession, CreatedAt: day.Add(25 * time.Hour)}))

	entries, err := st.ListLog(ctx, LogFilter{Since: day, Until: day.Add(24 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "in", entries[0].SessionID)
}

func TestSQLite_Ping(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.Ping(context.Background()))
}

func TestSQLite_Migrate_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.Migrate(context.Background()))
}

func TestSQLiteStore_ImplementsStore(t *testing.T) {
	var _ Store = (*SQLiteStore)(nil)
	var _ Store = (*PostgresStore)(nil)
}
