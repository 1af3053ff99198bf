package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkpellow/brainscraper.io-sub002/internal/model"
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

// --- Geo entries ---

func TestSQLite_Geo_UpsertAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	err := st.UpsertGeo(ctx, model.GeoEntry{
		Key:         "austin_tx",
		LocationID:  "loc:1001",
		DisplayName: "Austin, TX",
		Region:      "texas",
		Country:     "united states",
		Source:      model.SourceDiscovered,
	})
	require.NoError(t, err)

	e, err := st.GetGeo(ctx, "austin_tx")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "loc:1001", e.LocationID)
	assert.Equal(t, model.SourceDiscovered, e.Source)
	assert.Equal(t, 1, e.UsageCount)
}

func TestSQLite_Geo_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	e, err := st.GetGeo(context.Background(), "nowhere")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestSQLite_Geo_HigherSourceWins(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertGeo(ctx, model.GeoEntry{
		Key: "denver", LocationID: "loc:guess", DisplayName: "Denver", Source: model.SourceExtracted,
	}))
	require.NoError(t, st.UpsertGeo(ctx, model.GeoEntry{
		Key: "denver", LocationID: "loc:real", DisplayName: "Denver", Source: model.SourceDiscovered,
	}))

	e, err := st.GetGeo(ctx, "denver")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "loc:real", e.LocationID)
	assert.Equal(t, model.SourceDiscovered, e.Source)
	assert.Equal(t, 2, e.UsageCount) // both writes count as usage
}

func TestSQLite_Geo_LowerSourceDoesNotDowngrade(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertGeo(ctx, model.GeoEntry{
		Key: "boston", LocationID: "loc:good", DisplayName: "Boston", Source: model.SourceDiscovered,
	}))
	require.NoError(t, st.UpsertGeo(ctx, model.GeoEntry{
		Key: "boston", LocationID: "loc:bad", DisplayName: "Boston", Source: model.SourceExtracted,
	}))

	e, err := st.GetGeo(ctx, "boston")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "loc:good", e.LocationID)
	assert.Equal(t, model.SourceDiscovered, e.Source)
}

func TestSQLite_Geo_StaticNeverOverwritten(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertGeo(ctx, model.GeoEntry{
		Key: "chicago", LocationID: "loc:static", DisplayName: "Chicago", Source: model.SourceStatic,
	}))
	// Same rank as static, but static entries are pinned.
	require.NoError(t, st.UpsertGeo(ctx, model.GeoEntry{
		Key: "chicago", LocationID: "loc:other", DisplayName: "Chicago", Source: model.SourceStatic,
	}))
	require.NoError(t, st.UpsertGeo(ctx, model.GeoEntry{
		Key: "chicago", LocationID: "loc:disc", DisplayName: "Chicago", Source: model.SourceDiscovered,
	}))

	e, err := st.GetGeo(ctx, "chicago")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "loc:static", e.LocationID)
	assert.Equal(t, model.SourceStatic, e.Source)
}

func TestSQLite_Geo_SameSourceRefreshes(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertGeo(ctx, model.GeoEntry{
		Key: "miami", LocationID: "loc:old", DisplayName: "Miami", Source: model.SourceDiscovered,
	}))
	require.NoError(t, st.UpsertGeo(ctx, model.GeoEntry{
		Key: "miami", LocationID: "loc:new", DisplayName: "Miami, FL", Source: model.SourceDiscovered,
	}))

	e, err := st.GetGeo(ctx, "miami")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "loc:new", e.LocationID)
	assert.Equal(t, "Miami, FL", e.DisplayName)
}

func TestSQLite_Geo_Touch(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertGeo(ctx, model.GeoEntry{
		Key: "seattle", LocationID: "loc:9", DisplayName: "Seattle", Source: model.SourceStatic,
	}))
	require.NoError(t, st.TouchGeo(ctx, "seattle"))
	require.NoError(t, st.TouchGeo(ctx, "seattle"))

	e, err := st.GetGeo(ctx, "seattle")
	require.NoError(t, err)
	assert.Equal(t, 3, e.UsageCount)
}

func TestSQLite_Geo_CountBySource(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertGeo(ctx, model.GeoEntry{Key: "a", LocationID: "1", DisplayName: "A", Source: model.SourceStatic}))
	require.NoError(t, st.UpsertGeo(ctx, model.GeoEntry{Key: "b", LocationID: "2", DisplayName: "B", Source: model.SourceStatic}))
	require.NoError(t, st.UpsertGeo(ctx, model.GeoEntry{Key: "c", LocationID: "3", DisplayName: "C", Source: model.SourceDiscovered}))

	counts, err := st.CountGeoBySource(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[model.SourceStatic])
	assert.Equal(t, 1, counts[model.SourceDiscovered])
	assert.Equal(t, 0, counts[model.SourceExtracted])
}

// --- Usage counters ---

func TestSQLite_Usage_IncrementAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, st.IncrUsage(ctx, "peoplesearch", now))
	}

	c, err := st.GetUsage(ctx, "peoplesearch", now)
	require.NoError(t, err)
	assert.Equal(t, 3, c.DailyCount)
	assert.Equal(t, 3, c.MonthlyCount)
}

func TestSQLite_Usage_DailyResetsMonthlyCarries(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	day1 := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	require.NoError(t, st.IncrUsage(ctx, "peoplesearch", day1))
	require.NoError(t, st.IncrUsage(ctx, "peoplesearch", day1))

	// New day, same month: daily starts fresh, monthly continues.
	c, err := st.GetUsage(ctx, "peoplesearch", day2)
	require.NoError(t, err)
	assert.Equal(t, 0, c.DailyCount)
	assert.Equal(t, 2, c.MonthlyCount)

	require.NoError(t, st.IncrUsage(ctx, "peoplesearch", day2))
	c, err = st.GetUsage(ctx, "peoplesearch", day2)
	require.NoError(t, err)
	assert.Equal(t, 1, c.DailyCount)
	assert.Equal(t, 3, c.MonthlyCount)
}

func TestSQLite_Usage_MonthlyResets(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	march := time.Date(2025, 3, 31, 12, 0, 0, 0, time.UTC)
	april := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, st.IncrUsage(ctx, "phoneintel", march))

	c, err := st.GetUsage(ctx, "phoneintel", april)
	require.NoError(t, err)
	assert.Equal(t, 0, c.DailyCount)
	assert.Equal(t, 0, c.MonthlyCount)
}

func TestSQLite_Usage_ProvidersIndependent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, st.IncrUsage(ctx, "peoplesearch", now))
	require.NoError(t, st.IncrUsage(ctx, "peoplesearch", now))
	require.NoError(t, st.IncrUsage(ctx, "dnc", now))

	a, err := st.GetUsage(ctx, "peoplesearch", now)
	require.NoError(t, err)
	b, err := st.GetUsage(ctx, "dnc", now)
	require.NoError(t, err)
	assert.Equal(t, 2, a.DailyCount)
	assert.Equal(t, 1, b.DailyCount)
}

// --- Cooldowns ---

func TestSQLite_Cooldown_EmptyStateForUnknownProvider(t *testing.T) {
	st := newTestSQLiteStore(t)

	state, err := st.GetCooldown(context.Background(), "peoplesearch")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "peoplesearch", state.Provider)
	assert.Empty(t, state.ErrorTimes)
	assert.Nil(t, state.PausedUntil)
}

func TestSQLite_Cooldown_RoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	paused := time.Now().UTC().Add(30 * time.Minute).Truncate(time.Second)
	errTimes := []time.Time{
		time.Now().UTC().Add(-2 * time.Minute).Truncate(time.Second),
		time.Now().UTC().Add(-1 * time.Minute).Truncate(time.Second),
	}

	require.NoError(t, st.SetCooldown(ctx, model.CooldownState{
		Provider:    "peoplesearch",
		ErrorTimes:  errTimes,
		PausedUntil: &paused,
	}))

	state, err := st.GetCooldown(ctx, "peoplesearch")
	require.NoError(t, err)
	require.NotNil(t, state.PausedUntil)
	assert.True(t, state.PausedUntil.Equal(paused))
	require.Len(t, state.ErrorTimes, 2)
	assert.True(t, state.ErrorTimes[0].Equal(errTimes[0]))
}

func TestSQLite_Cooldown_Clear(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	paused := time.Now().UTC().Add(time.Hour)
	require.NoError(t, st.SetCooldown(ctx, model.CooldownState{
		Provider:    "phoneintel",
		ErrorTimes:  []time.Time{time.Now().UTC()},
		PausedUntil: &paused,
	}))
	require.NoError(t, st.SetCooldown(ctx, model.CooldownState{Provider: "phoneintel"}))

	state, err := st.GetCooldown(ctx, "phoneintel")
	require.NoError(t, err)
	assert.Empty(t, state.ErrorTimes)
	assert.Nil(t, state.PausedUntil)
}

// --- Enrichment results ---

func TestSQLite_Result_SaveAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	res := &model.EnrichmentResult{
		Lead:       model.LeadRecord{Name: "Jane Doe", Company: "Acme"},
		ZipCode:    "78701",
		Phone:      "+15125550100",
		Checkpoint: model.StagePhoneValidate,
		Enriched:   true,
	}
	require.NoError(t, st.SaveResult(ctx, res.Lead.Identity(), res))

	got, err := st.GetResult(ctx, res.Lead.Identity())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "78701", got.ZipCode)
	assert.Equal(t, model.StagePhoneValidate, got.Checkpoint)
	assert.True(t, got.Enriched)
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestSQLite_Result_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	got, err := st.GetResult(context.Background(), "nobody|nowhere")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_Result_CheckpointAdvances(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	res := &model.EnrichmentResult{
		Lead:       model.LeadRecord{Name: "Bob", Company: "Beta"},
		Checkpoint: model.StageLocalLookup,
	}
	id := res.Lead.Identity()
	require.NoError(t, st.SaveResult(ctx, id, res))

	res.Advance(model.StageContactSearch)
	res.Email = "bob@beta.example"
	require.NoError(t, st.SaveResult(ctx, id, res))

	got, err := st.GetResult(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StageContactSearch, got.Checkpoint)
	assert.Equal(t, "bob@beta.example", got.Email)
}

func TestSQLite_Result_FieldNotesSurvive(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	res := &model.EnrichmentResult{Lead: model.LeadRecord{Name: "Carol", Company: "Gamma"}}
	res.Note("income", "not present in demographics response")
	require.NoError(t, st.SaveResult(ctx, res.Lead.Identity(), res))

	got, err := st.GetResult(ctx, res.Lead.Identity())
	require.NoError(t, err)
	assert.Equal(t, "not present in demographics response", got.FieldNotes["income"])
}

// --- Jobs ---

func TestSQLite_Job_Lifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	job, err := st.CreateJob(ctx, 50)
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)
	assert.Equal(t, model.JobStatusRunning, job.Status)
	assert.Equal(t, 50, job.Total)

	require.NoError(t, st.UpdateJob(ctx, job.ID, 25, model.JobStatusRunning, nil))

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 25, got.Current)
	assert.Equal(t, 50.0, got.Progress())

	summary := &model.BatchSummary{Total: 50, Kept: 40, Removed: 10, Enriched: 38}
	require.NoError(t, st.UpdateJob(ctx, job.ID, 50, model.JobStatusComplete, summary))

	got, err = st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusComplete, got.Status)
	require.NotNil(t, got.Summary)
	assert.Equal(t, 40, got.Summary.Kept)
}

func TestSQLite_Job_UpdateMissing(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.UpdateJob(context.Background(), "no-such-job", 1, model.JobStatusRunning, nil)
	assert.Error(t, err)
}

func TestSQLite_Job_GetMissing(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetJob(context.Background(), "no-such-job")
	assert.Error(t, err)
}
