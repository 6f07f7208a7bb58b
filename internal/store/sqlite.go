package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/coldreach/coldreach/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One connection: pragmas apply to every statement and writers never
	// race for the lock.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Timestamps are stored as fixed-width UTC text so range filters compare
// lexically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeLayout, s)
	return t, eris.Wrapf(err, "sqlite: parse time %q", s)
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS profiles (
	user_id      TEXT PRIMARY KEY,
	summary      TEXT NOT NULL,
	provenance   TEXT NOT NULL DEFAULT '[]',
	content_hash TEXT NOT NULL,
	built_at     TEXT NOT NULL,
	invalidated  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS sessions (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	company_url  TEXT NOT NULL,
	outcome      TEXT NOT NULL,
	final_score  REAL NOT NULL DEFAULT 0,
	data         TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	completed_at TEXT
);

CREATE TABLE IF NOT EXISTS log_entries (
	id              TEXT PRIMARY KEY,
	session_id      TEXT NOT NULL,
	user_id         TEXT NOT NULL,
	company_url     TEXT NOT NULL,
	kind            TEXT NOT NULL,
	seq             INTEGER NOT NULL DEFAULT 0,
	score           REAL NOT NULL DEFAULT 0,
	scorer_version  TEXT NOT NULL DEFAULT '',
	generator_model TEXT NOT NULL DEFAULT '',
	accepted        INTEGER NOT NULL DEFAULT 0,
	outcome         TEXT NOT NULL DEFAULT '',
	contact_name    TEXT NOT NULL DEFAULT '',
	contact_role    TEXT NOT NULL DEFAULT '',
	error_kind      TEXT NOT NULL DEFAULT '',
	error           TEXT NOT NULL DEFAULT '',
	created_at      TEXT NOT NULL,
	rowseq          INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);
CREATE INDEX IF NOT EXISTS idx_sessions_company ON sessions(company_url);
CREATE INDEX IF NOT EXISTS idx_sessions_outcome ON sessions(outcome);
CREATE INDEX IF NOT EXISTS idx_log_entries_session ON log_entries(session_id, rowseq);
CREATE INDEX IF NOT EXISTS idx_log_entries_created_at ON log_entries(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Profiles ---

func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, summary, provenance, content_hash, built_at, invalidated FROM profiles WHERE user_id = ?`,
		userID,
	)

	var p model.UserProfile
	var provenance, builtAt string
	err := row.Scan(&p.UserID, &p.Summary, &provenance, &p.ContentHash, &builtAt, &p.Invalidated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get profile %s", userID)
	}
	if err := json.Unmarshal([]byte(provenance), &p.Provenance); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal provenance")
	}
	if p.BuiltAt, err = parseTime(builtAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertProfile replaces the stored profile in a single statement and clears
// any pending invalidation.
func (s *SQLiteStore) UpsertProfile(ctx context.Context, p *model.UserProfile) error {
	provenance, err := json.Marshal(nonNilSources(p.Provenance))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal provenance")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO profiles (user_id, summary, provenance, content_hash, built_at, invalidated)
		 VALUES (?, ?, ?, ?, ?, 0)
		 ON CONFLICT(user_id) DO UPDATE SET
			summary = excluded.summary,
			provenance = excluded.provenance,
			content_hash = excluded.content_hash,
			built_at = excluded.built_at,
			invalidated = 0`,
		p.UserID, p.Summary, string(provenance), p.ContentHash, formatTime(p.BuiltAt),
	)
	return eris.Wrapf(err, "sqlite: upsert profile %s", p.UserID)
}

func (s *SQLiteStore) InvalidateProfile(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE profiles SET invalidated = 1 WHERE user_id = ?`, userID)
	return eris.Wrapf(err, "sqlite: invalidate profile %s", userID)
}

func (s *SQLiteStore) DeleteProfile(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE user_id = ?`, userID)
	return eris.Wrapf(err, "sqlite: delete profile %s", userID)
}

// --- Sessions ---

// SaveSession inserts or updates a session. A session already stored with a
// terminal outcome is never overwritten.
func (s *SQLiteStore) SaveSession(ctx context.Context, sess *model.OutreachSession) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal session")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	var existing string
	err = tx.QueryRowContext(ctx, `SELECT outcome FROM sessions WHERE id = ?`, sess.ID).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return eris.Wrapf(err, "sqlite: load session %s", sess.ID)
	case model.Outcome(existing).Terminal():
		return eris.Wrapf(model.ErrSessionTerminal, "sqlite: save session %s (%s)", sess.ID, existing)
	}

	var completedAt sql.NullString
	if sess.CompletedAt != nil {
		completedAt = sql.NullString{String: formatTime(*sess.CompletedAt), Valid: true}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, company_url, outcome, final_score, data, created_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			outcome = excluded.outcome,
			final_score = excluded.final_score,
			data = excluded.data,
			completed_at = excluded.completed_at`,
		sess.ID, sess.UserID, sess.CompanyURL, string(sess.Outcome), sess.FinalScore,
		string(data), formatTime(sess.CreatedAt), completedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: upsert session %s", sess.ID)
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit session")
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*model.OutreachSession, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM sessions WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "session %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get session %s", id)
	}
	return decodeSession([]byte(data))
}

func (s *SQLiteStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.OutreachSession, error) {
	query := `SELECT data FROM sessions WHERE 1=1`
	var args []any

	if filter.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}
	if filter.CompanyURL != "" {
		query += ` AND company_url = ?`
		args = append(args, filter.CompanyURL)
	}
	if filter.Outcome != "" {
		query += ` AND outcome = ?`
		args = append(args, string(filter.Outcome))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sessions")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.OutreachSession
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan session")
		}
		sess, err := decodeSession([]byte(data))
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list sessions iterate")
}

// --- Activity log ---

// AppendLog inserts one entry. ID and CreatedAt are filled in when empty.
func (s *SQLiteStore) AppendLog(ctx context.Context, e *model.LogEntry) error {
	fillLogEntry(e)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO log_entries (id, session_id, user_id, company_url, kind, seq, score, scorer_version,
			generator_model, accepted, outcome, contact_name, contact_role, error_kind, error, created_at, rowseq)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			(SELECT COALESCE(MAX(rowseq), 0) + 1 FROM log_entries))`,
		e.ID, e.SessionID, e.UserID, e.CompanyURL, string(e.Kind), e.Seq, e.Score, e.ScorerVersion,
		e.GeneratorModel, e.Accepted, string(e.Outcome), e.ContactName, e.ContactRole, e.ErrorKind, e.Error,
		formatTime(e.CreatedAt),
	)
	return eris.Wrapf(err, "sqlite: append log entry for session %s", e.SessionID)
}

func (s *SQLiteStore) ListLog(ctx context.Context, filter LogFilter) ([]model.LogEntry, error) {
	query := `SELECT id, session_id, user_id, company_url, kind, seq, score, scorer_version, generator_model,
		accepted, outcome, contact_name, contact_role, error_kind, error, created_at
		FROM log_entries WHERE 1=1`
	var args []any

	if filter.SessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, filter.SessionID)
	}
	if filter.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}
	if filter.CompanyURL != "" {
		query += ` AND company_url = ?`
		args = append(args, filter.CompanyURL)
	}
	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(filter.Kind))
	}
	if !filter.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, formatTime(filter.Since))
	}
	if !filter.Until.IsZero() {
		query += ` AND created_at < ?`
		args = append(args, formatTime(filter.Until))
	}
	query += ` ORDER BY rowseq ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list log")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.LogEntry
	for rows.Next() {
		var e model.LogEntry
		var kind, outcome, createdAt string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.UserID, &e.CompanyURL, &kind, &e.Seq, &e.Score,
			&e.ScorerVersion, &e.GeneratorModel, &e.Accepted, &outcome, &e.ContactName, &e.ContactRole,
			&e.ErrorKind, &e.Error, &createdAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan log entry")
		}
		e.Kind = model.LogKind(kind)
		e.Outcome = model.Outcome(outcome)
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list log iterate")
}

// helpers

func decodeSession(data []byte) (*model.OutreachSession, error) {
	var sess model.OutreachSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal session")
	}
	return &sess, nil
}

func fillLogEntry(e *model.LogEntry) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
}

func nonNilSources(s []model.SourceKind) []model.SourceKind {
	if s == nil {
		return []model.SourceKind{}
	}
	return s
}
