// Package activity is the append-only record of every draft attempt and
// session outcome, plus the aggregates analytics read from it.
package activity

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/coldreach/coldreach/internal/model"
	"github.com/coldreach/coldreach/internal/store"
)

// Repository is the slice of the store the activity log uses.
type Repository interface {
	AppendLog(ctx context.Context, entry *model.LogEntry) error
	ListLog(ctx context.Context, filter store.LogFilter) ([]model.LogEntry, error)
}

// Log appends and reads activity entries. Entries are never updated.
type Log struct {
	repo Repository
}

// NewLog creates a Log over repo.
func NewLog(repo Repository) *Log {
	return &Log{repo: repo}
}

// Append writes one entry. The write is a single insert, so an entry is
// either fully present or absent.
func (l *Log) Append(ctx context.Context, e *model.LogEntry) error {
	if e.SessionID == "" {
		return eris.New("activity: entry has no session id")
	}
	if e.Kind != model.LogKindAttempt && e.Kind != model.LogKindSession {
		return eris.Errorf("activity: unknown entry kind %q", e.Kind)
	}
	if err := l.repo.AppendLog(ctx, e); err != nil {
		return eris.Wrap(err, "activity: append")
	}

	zap.L().Debug("activity: appended",
		zap.String("session_id", e.SessionID),
		zap.String("kind", string(e.Kind)),
		zap.Int("seq", e.Seq),
		zap.Float64("score", e.Score),
		zap.String("outcome", string(e.Outcome)),
	)
	return nil
}

// List returns entries matching filter in append order.
func (l *Log) List(ctx context.Context, filter store.LogFilter) ([]model.LogEntry, error) {
	entries, err := l.repo.ListLog(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "activity: list")
	}
	return entries, nil
}

// AttemptEntry builds the log row for one draft attempt.
func AttemptEntry(s *model.OutreachSession, a model.DraftAttempt) *model.LogEntry {
	e := &model.LogEntry{
		SessionID:      s.ID,
		UserID:         s.UserID,
		CompanyURL:     s.CompanyURL,
		Kind:           model.LogKindAttempt,
		Seq:            a.Seq,
		Score:          a.Score,
		ScorerVersion:  a.ScorerVersion,
		GeneratorModel: a.GeneratorModel,
		Accepted:       a.Accepted,
		Error:          a.Error,
		CreatedAt:      a.CreatedAt,
	}
	if s.Contact != nil {
		e.ContactName, e.ContactRole = s.Contact.Name, s.Contact.Title
	}
	return e
}

// SessionEntry builds the summary row for a terminal session.
func SessionEntry(s *model.OutreachSession) *model.LogEntry {
	e := &model.LogEntry{
		SessionID:  s.ID,
		UserID:     s.UserID,
		CompanyURL: s.CompanyURL,
		Kind:       model.LogKindSession,
		Seq:        len(s.Attempts),
		Score:      s.FinalScore,
		Outcome:    s.Outcome,
		ErrorKind:  s.ErrorKind,
		Error:      s.Error,
	}
	if best := s.BestAttempt(); best != nil {
		e.ScorerVersion, e.GeneratorModel = best.ScorerVersion, best.GeneratorModel
	}
	if s.Contact != nil {
		e.ContactName, e.ContactRole = s.Contact.Name, s.Contact.Title
	}
	if s.CompletedAt != nil {
		e.CreatedAt = *s.CompletedAt
	}
	return e
}
