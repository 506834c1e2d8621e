package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/pitchside/internal/domain/model"
	"github.com/okian/pitchside/pkg/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id         TEXT PRIMARY KEY,
	sport_id   TEXT NOT NULL,
	status     TEXT NOT NULL,
	event_date TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	latitude   DOUBLE PRECISION,
	longitude  DOUBLE PRECISION
);
CREATE TABLE IF NOT EXISTS skill_preferences (
	user_id    TEXT NOT NULL,
	sport_id   TEXT NOT NULL,
	level      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, sport_id)
);`

// DB is the subset of pgxpool.Pool used by PostgresStore.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// NewPool parses dsn, tunes the pool and verifies connectivity.
func NewPool(ctx context.Context, dsn string, opts ...PoolOption) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, ErrNoDSN
	}
	o := poolOptions{
		connectTimeout: defaultConnectTimeout,
		maxConns:       defaultMaxConns,
		logger:         logger.Default().Named("postgres"),
	}
	for _, opt := range opts {
		opt(&o)
	}

	start := time.Now()
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres parse dsn: %w", err)
	}
	pcfg.ConnConfig.ConnectTimeout = o.connectTimeout
	if pcfg.ConnConfig.RuntimeParams == nil {
		pcfg.ConnConfig.RuntimeParams = make(map[string]string, 1)
	}
	pcfg.ConnConfig.RuntimeParams["timezone"] = "UTC"
	pcfg.HealthCheckPeriod = defaultHealthCheckPeriod
	pcfg.MaxConnIdleTime = defaultMaxConnIdleTime
	pcfg.MaxConns = o.maxConns

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.NewWithConfig: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, o.connectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	o.logger.Info(ctx, "connected to postgres",
		logger.String("host", pcfg.ConnConfig.Host),
		logger.String("database", pcfg.ConnConfig.Database),
		logger.Duration("took", time.Since(start)),
	)
	return pool, nil
}

// PostgresStore reads events and skill preferences from PostgreSQL.
type PostgresStore struct {
	db     DB
	logger logger.Logger
}

var (
	_ EventSource = (*PostgresStore)(nil)
	_ SkillSource = (*PostgresStore)(nil)
)

// NewPostgresStore creates a store over db.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db, logger: logger.Default().Named("postgres")}
}

// Migrate creates the tables when they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// eventRow mirrors the events table; every column may be NULL in practice.
type eventRow struct {
	ID        string     `db:"id"`
	SportID   *string    `db:"sport_id"`
	Status    *string    `db:"status"`
	EventDate *time.Time `db:"event_date"`
	CreatedAt *time.Time `db:"created_at"`
	Latitude  *float64   `db:"latitude"`
	Longitude *float64   `db:"longitude"`
}

func (r eventRow) raw() model.RawEvent {
	out := model.RawEvent{ID: r.ID, Latitude: r.Latitude, Longitude: r.Longitude}
	if r.SportID != nil {
		out.SportID = *r.SportID
	}
	if r.Status != nil {
		out.Status = *r.Status
	}
	if r.EventDate != nil {
		out.EventDate = *r.EventDate
	}
	if r.CreatedAt != nil {
		out.CreatedAt = *r.CreatedAt
	}
	return out
}

// ListEvents returns every event ordered by creation time.
func (s *PostgresStore) ListEvents(ctx context.Context) ([]model.RawEvent, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, sport_id, status, event_date, created_at, latitude, longitude
		FROM events
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	records, err := pgx.CollectRows(rows, pgx.RowToStructByName[eventRow])
	if err != nil {
		return nil, fmt.Errorf("collect events: %w", err)
	}
	out := make([]model.RawEvent, len(records))
	for i, r := range records {
		out[i] = r.raw()
	}
	return out, nil
}

type skillRow struct {
	SportID string `db:"sport_id"`
	Level   string `db:"level"`
}

// SkillPreferences returns a user's preferences. Unknown levels are skipped.
func (s *PostgresStore) SkillPreferences(ctx context.Context, userID string) ([]model.SkillPreference, error) {
	rows, err := s.db.Query(ctx, `
		SELECT sport_id, level
		FROM skill_preferences
		WHERE user_id = $1
		ORDER BY updated_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query skill preferences: %w", err)
	}
	records, err := pgx.CollectRows(rows, pgx.RowToStructByName[skillRow])
	if err != nil {
		return nil, fmt.Errorf("collect skill preferences: %w", err)
	}
	return s.preferences(ctx, userID, records), nil
}

func (s *PostgresStore) preferences(ctx context.Context, userID string, records []skillRow) []model.SkillPreference {
	out := make([]model.SkillPreference, 0, len(records))
	for _, r := range records {
		level, err := model.ParseSkillLevel(r.Level)
		if err != nil {
			s.logger.Warn(ctx, "skipping skill preference",
				logger.String("user_id", userID),
				logger.String("sport_id", r.SportID),
				logger.Error(err),
			)
			continue
		}
		out = append(out, model.SkillPreference{SportID: r.SportID, Level: level})
	}
	return out
}

// PutEvent upserts an event.
func (s *PostgresStore) PutEvent(ctx context.Context, e model.RawEvent) error {
	if e.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidEvent)
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO events (id, sport_id, status, event_date, created_at, latitude, longitude)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			sport_id = EXCLUDED.sport_id,
			status = EXCLUDED.status,
			event_date = EXCLUDED.event_date,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude
	`, e.ID, e.SportID, e.Status, nullTime(e.EventDate), e.CreatedAt, e.Latitude, e.Longitude)
	if err != nil {
		return fmt.Errorf("upsert event %s: %w", e.ID, err)
	}
	return nil
}

// SetSkillPreference upserts one preference.
func (s *PostgresStore) SetSkillPreference(ctx context.Context, userID string, p model.SkillPreference) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO skill_preferences (user_id, sport_id, level, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id, sport_id) DO UPDATE SET level = EXCLUDED.level, updated_at = now()
	`, userID, p.SportID, string(p.Level))
	if err != nil {
		return fmt.Errorf("upsert skill preference: %w", err)
	}
	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
