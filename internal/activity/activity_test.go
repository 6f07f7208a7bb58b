package activity

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/coldreach/coldreach/internal/model"
	"github.com/coldreach/coldreach/internal/store"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "activity.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return NewLog(st)
}

var day1 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func session(id, company, role string, outcome model.Outcome, scores ...float64) *model.OutreachSession {
	s := &model.OutreachSession{
		ID:         id,
		UserID:     "u1",
		CompanyURL: company,
		Contact:    &model.Contact{Name: "Lisa Chen", Title: role, Email: "lisa@" + company},
		Outcome:    outcome,
		CreatedAt:  day1,
	}
	for i, sc := range scores {
		s.Attempts = append(s.Attempts, model.DraftAttempt{
			Seq:            i + 1,
			Text:           "draft",
			Score:          sc,
			GeneratorModel: "claude-haiku-4-5",
			ScorerVersion:  "heuristic-v1",
			CreatedAt:      day1.Add(time.Duration(i) * time.Minute),
		})
	}
	if best := s.BestAttempt(); best != nil {
		s.FinalScore = best.Score
	}
	done := day1.Add(10 * time.Minute)
	s.CompletedAt = &done
	return s
}

func appendSession(t *testing.T, l *Log, s *model.OutreachSession) {
	t.Helper()
	ctx := context.Background()
	for _, a := range s.Attempts {
		require.NoError(t, l.Append(ctx, AttemptEntry(s, a)))
	}
	require.NoError(t, l.Append(ctx, SessionEntry(s)))
}

func TestAppend_Validation(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()

	assert.Error(t, l.Append(ctx, &model.LogEntry{Kind: model.LogKindAttempt}))
	assert.Error(t, l.Append(ctx, &model.LogEntry{SessionID: "s1", Kind: "other"}))
	entries, err := l.List(ctx, store.LogFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAppend_ListInOrder(t *testing.T) {
	l := newTestLog(t)
	s := session("s1", "clearcutar.com", "CTO", model.OutcomeExhausted, 0.4, 0.55, 0.58)
	appendSession(t, l, s)

	entries, err := l.List(context.Background(), store.LogFilter{SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, entries, 4)
	for i := range 3 {
		assert.Equal(t, model.LogKindAttempt, entries[i].Kind)
		assert.Equal(t, i+1, entries[i].Seq)
		assert.Equal(t, "CTO", entries[i].ContactRole)
	}
	last := entries[3]
	assert.Equal(t, model.LogKindSession, last.Kind)
	assert.Equal(t, model.OutcomeExhausted, last.Outcome)
	assert.Equal(t, 0.58, last.Score)
	assert.Equal(t, 3, last.Seq)
	assert.Equal(t, "heuristic-v1", last.ScorerVersion)
}

type failingRepo struct{}

func (failingRepo) AppendLog(context.Context, *model.LogEntry) error { return errors.New("disk full") }
func (failingRepo) ListLog(context.Context, store.LogFilter) ([]model.LogEntry, error) {
	return nil, errors.New("disk full")
}

func TestAppend_RepoError(t *testing.T) {
	l := NewLog(failingRepo{})
	err := l.Append(context.Background(), &model.LogEntry{SessionID: "s1", Kind: model.LogKindSession})
	assert.ErrorContains(t, err, "disk full")
	_, err = l.Aggregate(context.Background(), store.LogFilter{}, ByCompany)
	assert.Error(t, err)
}

func TestAppend_Concurrent(t *testing.T) {
	l := newTestLog(t)
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := session("s"+string(rune('a'+i)), "acme.io", "CTO", model.OutcomeSent, 0.7)
			appendSession(t, l, s)
		}(i)
	}
	wg.Wait()

	entries, err := l.List(context.Background(), store.LogFilter{Limit: 100})
	require.NoError(t, err)
	assert.Len(t, entries, 16)
	for i := range 8 {
		id := "s" + string(rune('a'+i))
		own, err := l.List(context.Background(), store.LogFilter{SessionID: id})
		require.NoError(t, err)
		require.Len(t, own, 2, id)
		assert.Equal(t, model.LogKindAttempt, own[0].Kind)
		assert.Equal(t, model.LogKindSession, own[1].Kind)
	}
}

func TestAggregate(t *testing.T) {
	l := newTestLog(t)
	appendSession(t, l, session("s1", "clearcutar.com", "CTO", model.OutcomeSent, 0.84))
	appendSession(t, l, session("s2", "clearcutar.com", "Recruiter", model.OutcomeExhausted, 0.4, 0.55, 0.58))
	errSess := session("s3", "acme.io", "CTO", model.OutcomeError)
	errSess.ErrorKind = "generation_error"
	appendSession(t, l, errSess)

	ctx := context.Background()

	byCompany, err := l.Aggregate(ctx, store.LogFilter{}, ByCompany)
	require.NoError(t, err)
	require.Len(t, byCompany, 2)
	assert.Equal(t, "acme.io", byCompany[0].Key)
	assert.Equal(t, 1, byCompany[0].Errored)
	assert.Equal(t, 0, byCompany[0].Attempts)
	cc := byCompany[1]
	assert.Equal(t, "clearcutar.com", cc.Key)
	assert.Equal(t, 2, cc.Sessions)
	assert.Equal(t, 1, cc.Sent)
	assert.Equal(t, 1, cc.Exhausted)
	assert.Equal(t, 4, cc.Attempts)
	assert.InDelta(t, (0.84+0.4+0.55+0.58)/4, cc.AvgScore, 1e-4)
	assert.InDelta(t, 0.5, cc.SendRate, 1e-9)

	byRole, err := l.Aggregate(ctx, store.LogFilter{}, ByRole)
	require.NoError(t, err)
	require.Len(t, byRole, 2)
	assert.Equal(t, "CTO", byRole[0].Key)
	assert.Equal(t, 2, byRole[0].Sessions)

	byScore, err := l.Aggregate(ctx, store.LogFilter{}, ByScoreBucket)
	require.NoError(t, err)
	keys := make([]string, len(byScore))
	for i, g := range byScore {
		keys[i] = g.Key
	}
	assert.Equal(t, []string{"0.0-0.1", "0.4-0.5", "0.5-0.6", "0.8-0.9"}, keys)

	byDay, err := l.Aggregate(ctx, store.LogFilter{}, ByDay)
	require.NoError(t, err)
	require.Len(t, byDay, 1)
	assert.Equal(t, "2026-05-04", byDay[0].Key)
	assert.Equal(t, 3, byDay[0].Sessions)

	_, err = l.Aggregate(ctx, store.LogFilter{}, "weekday")
	assert.Error(t, err)
}

func TestScoreBucket(t *testing.T) {
	assert.Equal(t, "0.0-0.1", ScoreBucket(0))
	assert.Equal(t, "0.5-0.6", ScoreBucket(0.58))
	assert.Equal(t, "0.6-0.7", ScoreBucket(0.6))
	assert.Equal(t, "0.7-0.8", ScoreBucket(0.7))
	assert.Equal(t, "0.9-1.0", ScoreBucket(1))
	assert.Equal(t, "0.0-0.1", ScoreBucket(-0.2))
}

func TestParseGroupBy(t *testing.T) {
	g, err := ParseGroupBy(" Company ")
	require.NoError(t, err)
	assert.Equal(t, ByCompany, g)

	_, err = ParseGroupBy("month")
	assert.Error(t, err)
}

func TestExportXLSX(t *testing.T) {
	s := session("s1", "clearcutar.com", "CTO", model.OutcomeSent, 0.84)
	entries := []model.LogEntry{*AttemptEntry(s, s.Attempts[0]), *SessionEntry(s)}
	groups := Summarize(entries, ByCompany)

	var buf bytes.Buffer
	require.NoError(t, ExportXLSX(&buf, entries, groups))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, f.Sheets, 2)

	act := f.Sheet["activity"]
	require.NotNil(t, act)
	require.Len(t, act.Rows, 3)
	assert.Equal(t, "session_id", act.Rows[0].Cells[1].String())
	assert.Equal(t, "s1", act.Rows[1].Cells[1].String())
	assert.Equal(t, "attempt", act.Rows[1].Cells[4].String())
	assert.Equal(t, "sent", act.Rows[2].Cells[10].String())

	sum := f.Sheet["summary"]
	require.NotNil(t, sum)
	require.Len(t, sum.Rows, 2)
	assert.Equal(t, "clearcutar.com", sum.Rows[1].Cells[0].String())
}

func TestExportXLSX_NoGroups(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ExportXLSX(&buf, nil, nil))
	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	assert.Len(t, f.Sheets, 1)
}
