package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/coldreach/coldreach/internal/db"
	"github.com/coldreach/coldreach/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"get_profile":        `SELECT user_id, summary, provenance, content_hash, built_at, invalidated FROM profiles WHERE user_id = $1`,
	"invalidate_profile": `UPDATE profiles SET invalidated = true WHERE user_id = $1`,
	"get_session":        `SELECT data FROM sessions WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS profiles (
	user_id      TEXT PRIMARY KEY,
	summary      TEXT NOT NULL,
	provenance   JSONB NOT NULL DEFAULT '[]',
	content_hash TEXT NOT NULL,
	built_at     TIMESTAMPTZ NOT NULL,
	invalidated  BOOLEAN NOT NULL DEFAULT false
);

CREATE TABLE IF NOT EXISTS sessions (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	company_url  TEXT NOT NULL,
	outcome      TEXT NOT NULL,
	final_score  DOUBLE PRECISION NOT NULL DEFAULT 0,
	data         JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS log_entries (
	rowseq          BIGSERIAL,
	id              TEXT PRIMARY KEY,
	session_id      TEXT NOT NULL,
	user_id         TEXT NOT NULL,
	company_url     TEXT NOT NULL,
	kind            TEXT NOT NULL,
	seq             INTEGER NOT NULL DEFAULT 0,
	score           DOUBLE PRECISION NOT NULL DEFAULT 0,
	scorer_version  TEXT NOT NULL DEFAULT '',
	generator_model TEXT NOT NULL DEFAULT '',
	accepted        BOOLEAN NOT NULL DEFAULT false,
	outcome         TEXT NOT NULL DEFAULT '',
	contact_name    TEXT NOT NULL DEFAULT '',
	contact_role    TEXT NOT NULL DEFAULT '',
	error_kind      TEXT NOT NULL DEFAULT '',
	error           TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);
CREATE INDEX IF NOT EXISTS idx_sessions_company ON sessions(company_url);
CREATE INDEX IF NOT EXISTS idx_sessions_outcome ON sessions(outcome);
CREATE INDEX IF NOT EXISTS idx_log_entries_session ON log_entries(session_id, rowseq);
CREATE INDEX IF NOT EXISTS idx_log_entries_created_at ON log_entries(created_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Profiles ---

func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	var p model.UserProfile
	var provenance []byte
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, summary, provenance, content_hash, built_at, invalidated FROM profiles WHERE user_id = $1`,
		userID,
	).Scan(&p.UserID, &p.Summary, &provenance, &p.ContentHash, &p.BuiltAt, &p.Invalidated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get profile %s", userID)
	}
	if err := json.Unmarshal(provenance, &p.Provenance); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal provenance")
	}
	return &p, nil
}

func (s *PostgresStore) UpsertProfile(ctx context.Context, p *model.UserProfile) error {
	provenance, err := json.Marshal(nonNilSources(p.Provenance))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal provenance")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO profiles (user_id, summary, provenance, content_hash, built_at, invalidated)
		 VALUES ($1, $2, $3, $4, $5, false)
		 ON CONFLICT (user_id) DO UPDATE SET
			summary = EXCLUDED.summary,
			provenance = EXCLUDED.provenance,
			content_hash = EXCLUDED.content_hash,
			built_at = EXCLUDED.built_at,
			invalidated = false`,
		p.UserID, p.Summary, provenance, p.ContentHash, p.BuiltAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: upsert profile %s", p.UserID)
}

func (s *PostgresStore) InvalidateProfile(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx, `UPDATE profiles SET invalidated = true WHERE user_id = $1`, userID)
	return eris.Wrapf(err, "postgres: invalidate profile %s", userID)
}

func (s *PostgresStore) DeleteProfile(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM profiles WHERE user_id = $1`, userID)
	return eris.Wrapf(err, "postgres: delete profile %s", userID)
}

// --- Sessions ---

func (s *PostgresStore) SaveSession(ctx context.Context, sess *model.OutreachSession) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal session")
	}

	return db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		var existing string
		err := tx.QueryRow(ctx, `SELECT outcome FROM sessions WHERE id = $1 FOR UPDATE`, sess.ID).Scan(&existing)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
		case err != nil:
			return eris.Wrapf(err, "postgres: load session %s", sess.ID)
		case model.Outcome(existing).Terminal():
			return eris.Wrapf(model.ErrSessionTerminal, "postgres: save session %s (%s)", sess.ID, existing)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO sessions (id, user_id, company_url, outcome, final_score, data, created_at, completed_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (id) DO UPDATE SET
				outcome = EXCLUDED.outcome,
				final_score = EXCLUDED.final_score,
				data = EXCLUDED.data,
				completed_at = EXCLUDED.completed_at`,
			sess.ID, sess.UserID, sess.CompanyURL, string(sess.Outcome), sess.FinalScore,
			data, sess.CreatedAt.UTC(), sess.CompletedAt,
		)
		return eris.Wrapf(err, "postgres: upsert session %s", sess.ID)
	})
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*model.OutreachSession, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM sessions WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "session %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get session %s", id)
	}
	return decodeSession(data)
}

func (s *PostgresStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.OutreachSession, error) {
	query := `SELECT data FROM sessions WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.UserID != "" {
		query += ` AND user_id = ` + arg(filter.UserID)
	}
	if filter.CompanyURL != "" {
		query += ` AND company_url = ` + arg(filter.CompanyURL)
	}
	if filter.Outcome != "" {
		query += ` AND outcome = ` + arg(string(filter.Outcome))
	}
	query += ` ORDER BY created_at DESC LIMIT ` + arg(listLimit(filter.Limit))
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sessions")
	}
	defer rows.Close()

	var out []model.OutreachSession
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan session")
		}
		sess, err := decodeSession(data)
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list sessions iterate")
}

// --- Activity log ---

func (s *PostgresStore) AppendLog(ctx context.Context, e *model.LogEntry) error {
	fillLogEntry(e)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO log_entries (id, session_id, user_id, company_url, kind, seq, score, scorer_version,
			generator_model, accepted, outcome, contact_name, contact_role, error_kind, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		e.ID, e.SessionID, e.UserID, e.CompanyURL, string(e.Kind), e.Seq, e.Score, e.ScorerVersion,
		e.GeneratorModel, e.Accepted, string(e.Outcome), e.ContactName, e.ContactRole, e.ErrorKind, e.Error,
		e.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: append log entry for session %s", e.SessionID)
}

func (s *PostgresStore) ListLog(ctx context.Context, filter LogFilter) ([]model.LogEntry, error) {
	query := `SELECT id, session_id, user_id, company_url, kind, seq, score, scorer_version, generator_model,
		accepted, outcome, contact_name, contact_role, error_kind, error, created_at
		FROM log_entries WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.SessionID != "" {
		query += ` AND session_id = ` + arg(filter.SessionID)
	}
	if filter.UserID != "" {
		query += ` AND user_id = ` + arg(filter.UserID)
	}
	if filter.CompanyURL != "" {
		query += ` AND company_url = ` + arg(filter.CompanyURL)
	}
	if filter.Kind != "" {
		query += ` AND kind = ` + arg(string(filter.Kind))
	}
	if !filter.Since.IsZero() {
		query += ` AND created_at >= ` + arg(filter.Since.UTC())
	}
	if !filter.Until.IsZero() {
		query += ` AND created_at < ` + arg(filter.Until.UTC())
	}
	query += ` ORDER BY rowseq ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ` + arg(filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list log")
	}
	defer rows.Close()

	var out []model.LogEntry
	for rows.Next() {
		var e model.LogEntry
		var kind, outcome string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.UserID, &e.CompanyURL, &kind, &e.Seq, &e.Score,
			&e.ScorerVersion, &e.GeneratorModel, &e.Accepted, &outcome, &e.ContactName, &e.ContactRole,
			&e.ErrorKind, &e.Error, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan log entry")
		}
		e.Kind = model.LogKind(kind)
		e.Outcome = model.Outcome(outcome)
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list log iterate")
}
