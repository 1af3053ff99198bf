// Package store persists geo identifiers, usage counters, cooldown state,
// enrichment checkpoints, and batch jobs. Both drivers write through on
// every mutation — admission limits and discovery caches must survive a
// crash, so correctness beats throughput here.
package store

import (
	"context"
	"time"

	"github.com/linkpellow/brainscraper.io-sub002/internal/model"
)

// Store defines the persistence interface shared by the resolver, the usage
// governor, and the enrichment orchestrator.
type Store interface {
	// Geo identifier table. GetGeo returns (nil, nil) on a miss. UpsertGeo
	// never downgrades an entry: an existing key is overwritten only by an
	// equal-or-higher-rank source, and static entries never change their
	// location ID. TouchGeo bumps the usage count on a cache hit.
	GetGeo(ctx context.Context, key string) (*model.GeoEntry, error)
	UpsertGeo(ctx context.Context, entry model.GeoEntry) error
	TouchGeo(ctx context.Context, key string) error
	CountGeoBySource(ctx context.Context) (map[model.GeoSource]int, error)

	// Usage counters, one row per provider per day. IncrUsage rolls the
	// monthly count over when the month changes.
	GetUsage(ctx context.Context, provider string, now time.Time) (*model.UsageCounter, error)
	IncrUsage(ctx context.Context, provider string, now time.Time) error

	// Cooldown state, persisted so a pause survives restart. GetCooldown
	// returns an empty state (not nil) for unknown providers.
	GetCooldown(ctx context.Context, provider string) (*model.CooldownState, error)
	SetCooldown(ctx context.Context, state model.CooldownState) error

	// Enrichment results keyed by stable lead identity. GetResult returns
	// (nil, nil) on a miss.
	GetResult(ctx context.Context, identity string) (*model.EnrichmentResult, error)
	SaveResult(ctx context.Context, identity string, result *model.EnrichmentResult) error

	// Batch jobs.
	CreateJob(ctx context.Context, total int) (*model.Job, error)
	UpdateJob(ctx context.Context, jobID string, current int, status model.JobStatus, summary *model.BatchSummary) error
	GetJob(ctx context.Context, jobID string) (*model.Job, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// dayKey and monthKey format the counter period columns.
func dayKey(t time.Time) string   { return t.UTC().Format("2006-01-02") }
func monthKey(t time.Time) string { return t.UTC().Format("2006-01") }
