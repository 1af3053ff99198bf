package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/linkpellow/brainscraper.io-sub002/internal/model"
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
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	// Serialize writes through a single connection; the geo upsert is a
	// read-modify-write and two workers discovering the same location must
	// not interleave.
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS geo_entries (
	key           TEXT PRIMARY KEY,
	location_id   TEXT NOT NULL,
	display_name  TEXT NOT NULL,
	region        TEXT,
	country       TEXT,
	source        TEXT NOT NULL,
	rank          INTEGER NOT NULL,
	discovered_at DATETIME NOT NULL,
	usage_count   INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS usage_counters (
	provider      TEXT NOT NULL,
	day           TEXT NOT NULL,
	month_date    TEXT NOT NULL,
	daily_count   INTEGER NOT NULL DEFAULT 0,
	monthly_count INTEGER NOT NULL DEFAULT 0,
	updated_at    DATETIME NOT NULL,
	PRIMARY KEY (provider, day)
);

CREATE TABLE IF NOT EXISTS cooldowns (
	provider     TEXT PRIMARY KEY,
	error_times  TEXT NOT NULL,
	paused_until DATETIME
);

CREATE TABLE IF NOT EXISTS enrichment_results (
	identity   TEXT PRIMARY KEY,
	result     TEXT NOT NULL,
	checkpoint INTEGER NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS jobs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	current    INTEGER NOT NULL DEFAULT 0,
	total      INTEGER NOT NULL,
	summary    TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_usage_counters_month ON usage_counters(provider, month_date);
CREATE INDEX IF NOT EXISTS idx_enrichment_checkpoint ON enrichment_results(checkpoint);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetGeo(ctx context.Context, key string) (*model.GeoEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT key, location_id, display_name, region, country, source, discovered_at, usage_count
		 FROM geo_entries WHERE key = ?`, key)

	var e model.GeoEntry
	var region, country sql.NullString
	err := row.Scan(&e.Key, &e.LocationID, &e.DisplayName, &region, &country, &e.Source, &e.DiscoveredAt, &e.UsageCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get geo %s", key)
	}
	e.Region = region.String
	e.Country = country.String
	return &e, nil
}

func (s *SQLiteStore) UpsertGeo(ctx context.Context, entry model.GeoEntry) error {
	if entry.DiscoveredAt.IsZero() {
		entry.DiscoveredAt = time.Now().UTC()
	}
	// The CASE guards implement source precedence in one statement: an
	// equal-or-higher-rank write replaces the identifier unless the existing
	// entry is static; every re-insert bumps usage and refreshes the display
	// name.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO geo_entries (key, location_id, display_name, region, country, source, rank, discovered_at, usage_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(key) DO UPDATE SET
			usage_count  = geo_entries.usage_count + 1,
			display_name = excluded.display_name,
			location_id  = CASE WHEN excluded.rank >= geo_entries.rank AND geo_entries.source != 'static'
			               THEN excluded.location_id ELSE geo_entries.location_id END,
			source       = CASE WHEN excluded.rank >= geo_entries.rank AND geo_entries.source != 'static'
			               THEN excluded.source ELSE geo_entries.source END,
			rank         = CASE WHEN excluded.rank >= geo_entries.rank AND geo_entries.source != 'static'
			               THEN excluded.rank ELSE geo_entries.rank END,
			region       = CASE WHEN excluded.rank >= geo_entries.rank AND geo_entries.source != 'static'
			               THEN excluded.region ELSE geo_entries.region END,
			country      = CASE WHEN excluded.rank >= geo_entries.rank AND geo_entries.source != 'static'
			               THEN excluded.country ELSE geo_entries.country END`,
		entry.Key, entry.LocationID, entry.DisplayName,
		nilIfEmpty(entry.Region), nilIfEmpty(entry.Country),
		string(entry.Source), entry.Source.Rank(), entry.DiscoveredAt,
	)
	return eris.Wrapf(err, "sqlite: upsert geo %s", entry.Key)
}

func (s *SQLiteStore) TouchGeo(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE geo_entries SET usage_count = usage_count + 1 WHERE key = ?`, key)
	return eris.Wrapf(err, "sqlite: touch geo %s", key)
}

func (s *SQLiteStore) CountGeoBySource(ctx context.Context) (map[model.GeoSource]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source, COUNT(*) FROM geo_entries GROUP BY source`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count geo")
	}
	defer rows.Close()

	counts := make(map[model.GeoSource]int)
	for rows.Next() {
		var src string
		var n int
		if err := rows.Scan(&src, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan geo count")
		}
		counts[model.GeoSource(src)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: count geo iterate")
}

func (s *SQLiteStore) GetUsage(ctx context.Context, provider string, now time.Time) (*model.UsageCounter, error) {
	day, month := dayKey(now), monthKey(now)

	row := s.db.QueryRowContext(ctx,
		`SELECT provider, day, month_date, daily_count, monthly_count, updated_at
		 FROM usage_counters WHERE provider = ? AND day = ?`, provider, day)

	var c model.UsageCounter
	err := row.Scan(&c.Provider, &c.Day, &c.MonthDate, &c.DailyCount, &c.MonthlyCount, &c.UpdatedAt)
	if err == nil {
		return &c, nil
	}
	if err != sql.ErrNoRows {
		return nil, eris.Wrapf(err, "sqlite: get usage %s", provider)
	}

	// No row for today: the monthly count carries over from earlier days in
	// the same month.
	var monthly sql.NullInt64
	row = s.db.QueryRowContext(ctx,
		`SELECT MAX(monthly_count) FROM usage_counters WHERE provider = ? AND month_date = ?`,
		provider, month)
	if err := row.Scan(&monthly); err != nil && err != sql.ErrNoRows {
		return nil, eris.Wrapf(err, "sqlite: get monthly usage %s", provider)
	}

	return &model.UsageCounter{
		Provider:     provider,
		Day:          day,
		MonthDate:    month,
		DailyCount:   0,
		MonthlyCount: int(monthly.Int64),
	}, nil
}

func (s *SQLiteStore) IncrUsage(ctx context.Context, provider string, now time.Time) error {
	current, err := s.GetUsage(ctx, provider, now)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO usage_counters (provider, day, month_date, daily_count, monthly_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider, day) DO UPDATE SET
			daily_count   = excluded.daily_count,
			monthly_count = excluded.monthly_count,
			updated_at    = excluded.updated_at`,
		provider, dayKey(now), monthKey(now),
		current.DailyCount+1, current.MonthlyCount+1, now.UTC(),
	)
	return eris.Wrapf(err, "sqlite: incr usage %s", provider)
}

func (s *SQLiteStore) GetCooldown(ctx context.Context, provider string) (*model.CooldownState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT provider, error_times, paused_until FROM cooldowns WHERE provider = ?`, provider)

	var state model.CooldownState
	var timesJSON string
	var pausedUntil sql.NullTime
	err := row.Scan(&state.Provider, &timesJSON, &pausedUntil)
	if err == sql.ErrNoRows {
		return &model.CooldownState{Provider: provider}, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get cooldown %s", provider)
	}
	if err := json.Unmarshal([]byte(timesJSON), &state.ErrorTimes); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal error times")
	}
	if pausedUntil.Valid {
		t := pausedUntil.Time
		state.PausedUntil = &t
	}
	return &state, nil
}

func (s *SQLiteStore) SetCooldown(ctx context.Context, state model.CooldownState) error {
	timesJSON, err := json.Marshal(state.ErrorTimes)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal error times")
	}

	var pausedUntil any
	if state.PausedUntil != nil {
		pausedUntil = *state.PausedUntil
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cooldowns (provider, error_times, paused_until)
		VALUES (?, ?, ?)
		ON CONFLICT(provider) DO UPDATE SET
			error_times  = excluded.error_times,
			paused_until = excluded.paused_until`,
		state.Provider, string(timesJSON), pausedUntil,
	)
	return eris.Wrapf(err, "sqlite: set cooldown %s", state.Provider)
}

func (s *SQLiteStore) GetResult(ctx context.Context, identity string) (*model.EnrichmentResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT result FROM enrichment_results WHERE identity = ?`, identity)

	var resultJSON string
	err := row.Scan(&resultJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get result %s", identity)
	}

	var result model.EnrichmentResult
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal result")
	}
	return &result, nil
}

func (s *SQLiteStore) SaveResult(ctx context.Context, identity string, result *model.EnrichmentResult) error {
	result.UpdatedAt = time.Now().UTC()
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO enrichment_results (identity, result, checkpoint, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			result     = excluded.result,
			checkpoint = excluded.checkpoint,
			updated_at = excluded.updated_at`,
		identity, string(resultJSON), int(result.Checkpoint), result.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: save result %s", identity)
}

func (s *SQLiteStore) CreateJob(ctx context.Context, total int) (*model.Job, error) {
	job := &model.Job{
		ID:        uuid.New().String(),
		Status:    model.JobStatusRunning,
		Total:     total,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, status, current, total, created_at, updated_at) VALUES (?, ?, 0, ?, ?, ?)`,
		job.ID, string(job.Status), job.Total, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: create job")
	}
	return job, nil
}

func (s *SQLiteStore) UpdateJob(ctx context.Context, jobID string, current int, status model.JobStatus, summary *model.BatchSummary) error {
	var summaryJSON any
	if summary != nil {
		b, err := json.Marshal(summary)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal summary")
		}
		summaryJSON = string(b)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET current = ?, status = ?, summary = ?, updated_at = ? WHERE id = ?`,
		current, string(status), summaryJSON, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update job %s", jobID)
	}
	return checkRowsAffected(res, "job", jobID)
}

func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, current, total, summary, created_at, updated_at FROM jobs WHERE id = ?`, jobID)

	var j model.Job
	var summaryJSON sql.NullString
	err := row.Scan(&j.ID, &j.Status, &j.Current, &j.Total, &summaryJSON, &j.CreatedAt, &j.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get job %s", jobID)
	}
	if summaryJSON.Valid {
		j.Summary = &model.BatchSummary{}
		if err := json.Unmarshal([]byte(summaryJSON.String), j.Summary); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal summary")
		}
	}
	return &j, nil
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

// nilIfEmpty returns nil for empty strings, storing NULL instead.
func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
