package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/coldreach/coldreach/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = eris.New("store: not found")

// SessionFilter specifies criteria for listing sessions.
type SessionFilter struct {
	UserID     string        `json:"user_id,omitempty"`
	CompanyURL string        `json:"company_url,omitempty"`
	Outcome    model.Outcome `json:"outcome,omitempty"`
	Limit      int           `json:"limit,omitempty"`
	Offset     int           `json:"offset,omitempty"`
}

// LogFilter specifies criteria for reading the activity log.
type LogFilter struct {
	SessionID  string        `json:"session_id,omitempty"`
	UserID     string        `json:"user_id,omitempty"`
	CompanyURL string        `json:"company_url,omitempty"`
	Kind       model.LogKind `json:"kind,omitempty"`
	Since      time.Time     `json:"since,omitempty"`
	Until      time.Time     `json:"until,omitempty"`
	Limit      int           `json:"limit,omitempty"`
}

// Store defines the persistence interface for the outreach pipeline.
type Store interface {
	// Profiles
	GetProfile(ctx context.Context, userID string) (*model.UserProfile, error)
	UpsertProfile(ctx context.Context, p *model.UserProfile) error
	InvalidateProfile(ctx context.Context, userID string) error
	DeleteProfile(ctx context.Context, userID string) error

	// Sessions
	SaveSession(ctx context.Context, s *model.OutreachSession) error
	GetSession(ctx context.Context, id string) (*model.OutreachSession, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]model.OutreachSession, error)

	// Activity log
	AppendLog(ctx context.Context, entry *model.LogEntry) error
	ListLog(ctx context.Context, filter LogFilter) ([]model.LogEntry, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}
