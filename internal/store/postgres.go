package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/linkpellow/brainscraper.io-sub002/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. Satisfied by
// pgxmock.PgxPoolIface in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations.
var preparedStatements = map[string]string{
	"get_geo":     `SELECT key, location_id, display_name, region, country, source, discovered_at, usage_count FROM geo_entries WHERE key = $1`,
	"touch_geo":   `UPDATE geo_entries SET usage_count = usage_count + 1 WHERE key = $1`,
	"get_usage":   `SELECT provider, day, month_date, daily_count, monthly_count, updated_at FROM usage_counters WHERE provider = $1 AND day = $2`,
	"get_result":  `SELECT result FROM enrichment_results WHERE identity = $1`,
	"get_cooldown": `SELECT provider, error_times, paused_until FROM cooldowns WHERE provider = $1`,
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

// NewPostgresWithPool wraps an existing pool. Used by tests.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS geo_entries (
	key           TEXT PRIMARY KEY,
	location_id   TEXT NOT NULL,
	display_name  TEXT NOT NULL,
	region        TEXT,
	country       TEXT,
	source        TEXT NOT NULL,
	rank          INTEGER NOT NULL,
	discovered_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	usage_count   INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS usage_counters (
	provider      TEXT NOT NULL,
	day           TEXT NOT NULL,
	month_date    TEXT NOT NULL,
	daily_count   INTEGER NOT NULL DEFAULT 0,
	monthly_count INTEGER NOT NULL DEFAULT 0,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (provider, day)
);

CREATE TABLE IF NOT EXISTS cooldowns (
	provider     TEXT PRIMARY KEY,
	error_times  JSONB NOT NULL,
	paused_until TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS enrichment_results (
	identity   TEXT PRIMARY KEY,
	result     JSONB NOT NULL,
	checkpoint INTEGER NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS jobs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	status     TEXT NOT NULL,
	current    INTEGER NOT NULL DEFAULT 0,
	total      INTEGER NOT NULL,
	summary    JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_usage_counters_month ON usage_counters(provider, month_date);
CREATE INDEX IF NOT EXISTS idx_enrichment_checkpoint ON enrichment_results(checkpoint);
`

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

func (s *PostgresStore) GetGeo(ctx context.Context, key string) (*model.GeoEntry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT key, location_id, display_name, region, country, source, discovered_at, usage_count
		 FROM geo_entries WHERE key = $1`, key)

	var e model.GeoEntry
	var region, country *string
	err := row.Scan(&e.Key, &e.LocationID, &e.DisplayName, &region, &country, &e.Source, &e.DiscoveredAt, &e.UsageCount)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get geo %s", key)
	}
	if region != nil {
		e.Region = *region
	}
	if country != nil {
		e.Country = *country
	}
	return &e, nil
}

func (s *PostgresStore) UpsertGeo(ctx context.Context, entry model.GeoEntry) error {
	if entry.DiscoveredAt.IsZero() {
		entry.DiscoveredAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO geo_entries (key, location_id, display_name, region, country, source, rank, discovered_at, usage_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1)
		ON CONFLICT (key) DO UPDATE SET
			usage_count  = geo_entries.usage_count + 1,
			display_name = EXCLUDED.display_name,
			location_id  = CASE WHEN EXCLUDED.rank >= geo_entries.rank AND geo_entries.source != 'static'
			               THEN EXCLUDED.location_id ELSE geo_entries.location_id END,
			source       = CASE WHEN EXCLUDED.rank >= geo_entries.rank AND geo_entries.source != 'static'
			               THEN EXCLUDED.source ELSE geo_entries.source END,
			rank         = CASE WHEN EXCLUDED.rank >= geo_entries.rank AND geo_entries.source != 'static'
			               THEN EXCLUDED.rank ELSE geo_entries.rank END,
			region       = CASE WHEN EXCLUDED.rank >= geo_entries.rank AND geo_entries.source != 'static'
			               THEN EXCLUDED.region ELSE geo_entries.region END,
			country      = CASE WHEN EXCLUDED.rank >= geo_entries.rank AND geo_entries.source != 'static'
			               THEN EXCLUDED.country ELSE geo_entries.country END`,
		entry.Key, entry.LocationID, entry.DisplayName,
		nilIfEmpty(entry.Region), nilIfEmpty(entry.Country),
		string(entry.Source), entry.Source.Rank(), entry.DiscoveredAt,
	)
	return eris.Wrapf(err, "postgres: upsert geo %s", entry.Key)
}

func (s *PostgresStore) TouchGeo(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE geo_entries SET usage_count = usage_count + 1 WHERE key = $1`, key)
	return eris.Wrapf(err, "postgres: touch geo %s", key)
}

func (s *PostgresStore) CountGeoBySource(ctx context.Context) (map[model.GeoSource]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT source, COUNT(*) FROM geo_entries GROUP BY source`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count geo")
	}
	defer rows.Close()

	counts := make(map[model.GeoSource]int)
	for rows.Next() {
		var src string
		var n int
		if err := rows.Scan(&src, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan geo count")
		}
		counts[model.GeoSource(src)] = n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count geo iterate")
}

func (s *PostgresStore) GetUsage(ctx context.Context, provider string, now time.Time) (*model.UsageCounter, error) {
	day, month := dayKey(now), monthKey(now)

	row := s.pool.QueryRow(ctx,
		`SELECT provider, day, month_date, daily_count, monthly_count, updated_at
		 FROM usage_counters WHERE provider = $1 AND day = $2`, provider, day)

	var c model.UsageCounter
	err := row.Scan(&c.Provider, &c.Day, &c.MonthDate, &c.DailyCount, &c.MonthlyCount, &c.UpdatedAt)
	if err == nil {
		return &c, nil
	}
	if err != pgx.ErrNoRows {
		return nil, eris.Wrapf(err, "postgres: get usage %s", provider)
	}

	var monthly *int
	row = s.pool.QueryRow(ctx,
		`SELECT MAX(monthly_count) FROM usage_counters WHERE provider = $1 AND month_date = $2`,
		provider, month)
	if err := row.Scan(&monthly); err != nil && err != pgx.ErrNoRows {
		return nil, eris.Wrapf(err, "postgres: get monthly usage %s", provider)
	}

	c = model.UsageCounter{Provider: provider, Day: day, MonthDate: month}
	if monthly != nil {
		c.MonthlyCount = *monthly
	}
	return &c, nil
}

func (s *PostgresStore) IncrUsage(ctx context.Context, provider string, now time.Time) error {
	current, err := s.GetUsage(ctx, provider, now)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO usage_counters (provider, day, month_date, daily_count, monthly_count, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (provider, day) DO UPDATE SET
			daily_count   = EXCLUDED.daily_count,
			monthly_count = EXCLUDED.monthly_count,
			updated_at    = EXCLUDED.updated_at`,
		provider, dayKey(now), monthKey(now),
		current.DailyCount+1, current.MonthlyCount+1, now.UTC(),
	)
	return eris.Wrapf(err, "postgres: incr usage %s", provider)
}

func (s *PostgresStore) GetCooldown(ctx context.Context, provider string) (*model.CooldownState, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT provider, error_times, paused_until FROM cooldowns WHERE provider = $1`, provider)

	var state model.CooldownState
	var timesJSON []byte
	var pausedUntil *time.Time
	err := row.Scan(&state.Provider, &timesJSON, &pausedUntil)
	if err == pgx.ErrNoRows {
		return &model.CooldownState{Provider: provider}, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get cooldown %s", provider)
	}
	if err := json.Unmarshal(timesJSON, &state.ErrorTimes); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal error times")
	}
	state.PausedUntil = pausedUntil
	return &state, nil
}

func (s *PostgresStore) SetCooldown(ctx context.Context, state model.CooldownState) error {
	timesJSON, err := json.Marshal(state.ErrorTimes)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal error times")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO cooldowns (provider, error_times, paused_until)
		VALUES ($1, $2, $3)
		ON CONFLICT (provider) DO UPDATE SET
			error_times  = EXCLUDED.error_times,
			paused_until = EXCLUDED.paused_until`,
		state.Provider, timesJSON, state.PausedUntil,
	)
	return eris.Wrapf(err, "postgres: set cooldown %s", state.Provider)
}

func (s *PostgresStore) GetResult(ctx context.Context, identity string) (*model.EnrichmentResult, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT result FROM enrichment_results WHERE identity = $1`, identity)

	var resultJSON []byte
	err := row.Scan(&resultJSON)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get result %s", identity)
	}

	var result model.EnrichmentResult
	if err := json.Unmarshal(resultJSON, &result); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal result")
	}
	return &result, nil
}

func (s *PostgresStore) SaveResult(ctx context.Context, identity string, result *model.EnrichmentResult) error {
	result.UpdatedAt = time.Now().UTC()
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO enrichment_results (identity, result, checkpoint, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (identity) DO UPDATE SET
			result     = EXCLUDED.result,
			checkpoint = EXCLUDED.checkpoint,
			updated_at = EXCLUDED.updated_at`,
		identity, resultJSON, int(result.Checkpoint), result.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: save result %s", identity)
}

func (s *PostgresStore) CreateJob(ctx context.Context, total int) (*model.Job, error) {
	job := &model.Job{
		ID:        uuid.New().String(),
		Status:    model.JobStatusRunning,
		Total:     total,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, status, current, total, created_at, updated_at) VALUES ($1, $2, 0, $3, $4, $5)`,
		job.ID, string(job.Status), job.Total, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create job")
	}
	return job, nil
}

func (s *PostgresStore) UpdateJob(ctx context.Context, jobID string, current int, status model.JobStatus, summary *model.BatchSummary) error {
	var summaryJSON []byte
	if summary != nil {
		b, err := json.Marshal(summary)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal summary")
		}
		summaryJSON = b
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET current = $1, status = $2, summary = $3, updated_at = $4 WHERE id = $5`,
		current, string(status), summaryJSON, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update job %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not found: %s", jobID)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, status, current, total, summary, created_at, updated_at FROM jobs WHERE id = $1`, jobID)

	var j model.Job
	var summaryJSON []byte
	err := row.Scan(&j.ID, &j.Status, &j.Current, &j.Total, &summaryJSON, &j.CreatedAt, &j.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, eris.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get job %s", jobID)
	}
	if len(summaryJSON) > 0 {
		j.Summary = &model.BatchSummary{}
		if err := json.Unmarshal(summaryJSON, j.Summary); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal summary")
		}
	}
	return &j, nil
}
