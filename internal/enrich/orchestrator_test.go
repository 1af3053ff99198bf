package enrich

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/linkpellow/brainscraper.io-sub002/internal/config"
	"github.com/linkpellow/brainscraper.io-sub002/internal/govern"
	"github.com/linkpellow/brainscraper.io-sub002/internal/model"
	"github.com/linkpellow/brainscraper.io-sub002/internal/search"
	"github.com/linkpellow/brainscraper.io-sub002/internal/store"
	"github.com/linkpellow/brainscraper.io-sub002/internal/validate"
	"github.com/linkpellow/brainscraper.io-sub002/pkg/dnc"
	"github.com/linkpellow/brainscraper.io-sub002/pkg/peoplesearch"
	"github.com/linkpellow/brainscraper.io-sub002/pkg/phoneintel"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// --- provider fakes ---

type fakePeople struct {
	person       *peoplesearch.Person
	contact      *peoplesearch.ContactInfo
	demographics *peoplesearch.DemographicInfo
	lookupErr    error

	lookups  atomic.Int32
	details  atomic.Int32
	demoGets atomic.Int32
	searches atomic.Int32
}

func (f *fakePeople) Search(context.Context, search.SearchRequest) ([]model.LeadRecord, search.Pagination, error) {
	f.searches.Add(1)
	return nil, search.Pagination{}, nil
}

func (f *fakePeople) LookupPerson(context.Context, peoplesearch.PersonQuery) (*peoplesearch.Person, error) {
	f.lookups.Add(1)
	return f.person, f.lookupErr
}

func (f *fakePeople) ContactDetails(context.Context, string) (*peoplesearch.ContactInfo, error) {
	f.details.Add(1)
	return f.contact, nil
}

func (f *fakePeople) Demographics(context.Context, string) (*peoplesearch.DemographicInfo, error) {
	f.demoGets.Add(1)
	return f.demographics, nil
}

type fakePhones struct {
	validation *phoneintel.Validation
	err        error
	calls      atomic.Int32
}

func (f *fakePhones) Validate(context.Context, string) (*phoneintel.Validation, error) {
	f.calls.Add(1)
	return f.validation, f.err
}

type fakeDNC struct {
	status *dnc.Status
	err    error
	calls  atomic.Int32
}

func (f *fakeDNC) Check(context.Context, string, string) (*dnc.Status, error) {
	f.calls.Add(1)
	return f.status, f.err
}

// --- fixtures ---

type fixture struct {
	orch   *Orchestrator
	store  store.Store
	people *fakePeople
	phones *fakePhones
	dnc    *fakeDNC
}

func newFixture(t *testing.T, caps map[string]config.ProviderCaps) *fixture {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	gov := govern.New(st, config.GovernorConfig{
		Caps:         caps,
		Cooldown:     config.CooldownConfig{ErrorThreshold: 3, WindowMins: 5, PauseMins: 30},
		ThrottleTier: "aggressive",
	})

	people := &fakePeople{
		person: &peoplesearch.Person{
			ID:     "p-1",
			Name:   "Jane Smith",
			Phones: []string{"+15125550100"},
			Emails: []string{"jane@example.com"},
		},
	}
	phones := &fakePhones{validation: &phoneintel.Validation{LineType: phoneintel.LineTypeMobile, Carrier: "Example Wireless", Reachable: true}}
	dncClient := &fakeDNC{status: &dnc.Status{Registered: false}}

	orch := New(st, gov, validate.New(validate.DefaultPolicy()), people, phones, dncClient,
		Options{Workers: 2, DNCAccountID: "acct-1"})
	return &fixture{orch: orch, store: st, people: people, phones: phones, dnc: dncClient}
}

func texasLead(name string) model.LeadRecord {
	return model.LeadRecord{Name: name, Company: "Acme", RawLocation: "Austin, Texas"}
}

// --- stage behavior ---

func TestEnrichLead_FullPath(t *testing.T) {
	f := newFixture(t, nil)
	f.people.demographics = &peoplesearch.DemographicInfo{DateOfBirth: "1984-02-11", Age: 41, Income: "75k-100k"}

	result, err := f.orch.EnrichLead(context.Background(), texasLead("Jane Smith"))
	require.NoError(t, err)

	assert.Equal(t, "78701", result.ZipCode) // offline table, no call
	assert.Equal(t, "+15125550100", result.Phone)
	assert.Equal(t, "jane@example.com", result.Email)
	assert.Equal(t, "p-1", result.PersonID)
	assert.Equal(t, phoneintel.LineTypeMobile, result.LineType)
	assert.True(t, result.DNCChecked)
	assert.True(t, result.CanContact)
	assert.Equal(t, "clear", result.DNCStatus)
	assert.Equal(t, 41, result.Age)
	assert.True(t, result.Enriched)
	assert.Equal(t, model.StageDone, result.Checkpoint)

	assert.Equal(t, int32(1), f.people.lookups.Load())
	assert.Equal(t, int32(0), f.people.details.Load()) // stage 3 found a phone
	assert.Equal(t, int32(1), f.phones.calls.Load())
	assert.Equal(t, int32(1), f.dnc.calls.Load())
}

func TestEnrichLead_LocalExtractShortCircuitsSearch(t *testing.T) {
	f := newFixture(t, nil)

	lead := texasLead("Bob")
	lead.Email = "bob@acme.example"
	lead.Phone = "+15125550199"

	result, err := f.orch.EnrichLead(context.Background(), lead)
	require.NoError(t, err)

	assert.Equal(t, "bob@acme.example", result.Email)
	assert.Equal(t, int32(0), f.people.lookups.Load()) // nothing missing, no search
}

func TestEnrichLead_ExtractsEmbeddedContact(t *testing.T) {
	f := newFixture(t, nil)

	lead := model.LeadRecord{
		Name:        "Carol",
		Title:       "Realtor - carol@homes.example / (512) 555-0123",
		RawLocation: "Austin, Texas",
	}
	result, err := f.orch.EnrichLead(context.Background(), lead)
	require.NoError(t, err)

	assert.Equal(t, "carol@homes.example", result.Email)
	assert.Equal(t, "+15125550123", result.Phone)
	assert.Equal(t, int32(0), f.people.lookups.Load())
}

func TestEnrichLead_NoPhoneNeverValidates(t *testing.T) {
	f := newFixture(t, nil)
	f.people.person = &peoplesearch.Person{ID: "p-2", Name: "No Phone", Emails: []string{"np@example.com"}}
	f.people.contact = nil

	result, err := f.orch.EnrichLead(context.Background(), texasLead("No Phone"))
	require.NoError(t, err)

	assert.Empty(t, result.Phone)
	assert.Equal(t, int32(0), f.phones.calls.Load()) // stage 5 short-circuit
	assert.Equal(t, int32(0), f.dnc.calls.Load())
	assert.Equal(t, model.StageDone, result.Checkpoint)
}

func TestEnrichLead_ContactDetailWhenSearchHasNoPhone(t *testing.T) {
	f := newFixture(t, nil)
	f.people.person = &peoplesearch.Person{ID: "p-3", Name: "Detail Dan"}
	f.people.contact = &peoplesearch.ContactInfo{Phones: []string{"+15125550155"}}

	result, err := f.orch.EnrichLead(context.Background(), texasLead("Detail Dan"))
	require.NoError(t, err)

	assert.Equal(t, "+15125550155", result.Phone)
	assert.Equal(t, int32(1), f.people.lookups.Load())
	assert.Equal(t, int32(1), f.people.details.Load())
}

func TestEnrichLead_Stage3DemographicsReused(t *testing.T) {
	f := newFixture(t, nil)
	f.people.person.DateOfBirth = "1975-06-01"
	f.people.person.Age = 50

	result, err := f.orch.EnrichLead(context.Background(), texasLead("Reuse Ray"))
	require.NoError(t, err)

	assert.Equal(t, 50, result.Age)
	assert.Equal(t, int32(0), f.people.demoGets.Load()) // reused stage 3, no extra call
}

func TestEnrichLead_GatekeepSuppressesDemographics(t *testing.T) {
	f := newFixture(t, nil)
	f.phones.validation = &phoneintel.Validation{LineType: phoneintel.LineTypeVoIP, Reachable: true}

	result, err := f.orch.EnrichLead(context.Background(), texasLead("VoIP Vic"))
	require.NoError(t, err)

	assert.Equal(t, int32(0), f.people.demoGets.Load())
	assert.Zero(t, result.Age)
	assert.Contains(t, result.FieldNotes["demographics"], "gatekeeping")
	assert.Equal(t, model.StageDone, result.Checkpoint) // still terminal
}

func TestEnrichLead_DNCRegisteredBlocksContact(t *testing.T) {
	f := newFixture(t, nil)
	f.dnc.status = &dnc.Status{Registered: true, Reason: "National DNC registry"}

	result, err := f.orch.EnrichLead(context.Background(), texasLead("Registered Rita"))
	require.NoError(t, err)

	assert.True(t, result.DNCChecked)
	assert.False(t, result.CanContact)
	assert.Equal(t, "National DNC registry", result.DNCStatus)
}

func TestEnrichLead_ProviderFailureDegradesField(t *testing.T) {
	f := newFixture(t, nil)
	f.people.lookupErr = eris.New("upstream 502")
	f.people.person = nil

	result, err := f.orch.EnrichLead(context.Background(), texasLead("Degraded Dee"))
	require.NoError(t, err) // stage failure never aborts the lead

	assert.Empty(t, result.Phone)
	assert.Contains(t, result.FieldNotes["contact"], "contact search failed")
	assert.Equal(t, model.StageDone, result.Checkpoint)
}

func TestEnrichLead_AdmissionDeniedSkipsCall(t *testing.T) {
	f := newFixture(t, map[string]config.ProviderCaps{
		ProviderPeopleSearch: {Daily: 1},
	})
	ctx := context.Background()

	// First lead consumes the single admitted call.
	_, err := f.orch.EnrichLead(ctx, texasLead("First"))
	require.NoError(t, err)
	require.Equal(t, int32(1), f.people.lookups.Load())

	st, err := f.orch.enrichLead(ctx, texasLead("Second"))
	require.NoError(t, err)

	assert.Equal(t, int32(1), f.people.lookups.Load()) // denied, never called
	assert.Contains(t, st.result.FieldNotes["contact"], "admission denied")
	assert.Equal(t, 1, st.admissionDenials[ProviderPeopleSearch])
	assert.Equal(t, model.StageDone, st.result.Checkpoint)
}

// --- checkpoints and dedupe ---

func TestEnrichLead_TerminalLeadSkipsAllCalls(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	lead := texasLead("Done Donna")
	_, err := f.orch.EnrichLead(ctx, lead)
	require.NoError(t, err)
	callsAfterFirst := f.people.lookups.Load() + f.phones.calls.Load() + f.dnc.calls.Load()

	// Same identity in a later batch: zero external calls.
	st, err := f.orch.enrichLead(ctx, lead)
	require.NoError(t, err)
	assert.True(t, st.skipped)
	assert.Equal(t, callsAfterFirst, f.people.lookups.Load()+f.phones.calls.Load()+f.dnc.calls.Load())
}

func TestEnrichLead_ResumesFromPersistedCheckpoint(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	lead := texasLead("Resume Rob")
	partial := &model.EnrichmentResult{
		Lead:       lead,
		Phone:      "+15125550100",
		Email:      "rob@example.com",
		Checkpoint: model.StageContactDetail,
	}
	require.NoError(t, f.store.SaveResult(ctx, lead.Identity(), partial))

	result, err := f.orch.EnrichLead(ctx, lead)
	require.NoError(t, err)

	// Stages 1-4 were skipped: no search, straight to phone validation.
	assert.Equal(t, int32(0), f.people.lookups.Load())
	assert.Equal(t, int32(1), f.phones.calls.Load())
	assert.Equal(t, model.StageDone, result.Checkpoint)
}

// --- batch ---

func TestRunBatch_FilterSummaryAndEnrichment(t *testing.T) {
	f := newFixture(t, nil)

	leads := []model.LeadRecord{
		texasLead("A"),
		texasLead("B"),
		{Name: "C", Company: "Acme", RawLocation: "Paris, France"},
		texasLead("A"), // duplicate identity
	}

	job, err := f.orch.RunBatch(context.Background(), leads, "Texas")
	require.NoError(t, err)

	assert.Equal(t, model.JobStatusComplete, job.Status)
	require.NotNil(t, job.Summary)
	assert.Equal(t, 4, job.Summary.Total)
	assert.Equal(t, 3, job.Summary.Kept)
	assert.Equal(t, 1, job.Summary.Removed)
	assert.Equal(t, 1, job.Summary.RemovalReasons[validate.ReasonCountryMismatch])
	assert.Equal(t, 1, job.Summary.SkippedDuplicates)
	assert.Equal(t, 2, job.Summary.Enriched)
}

func TestRunBatch_NoLocationSkipsPostFilter(t *testing.T) {
	f := newFixture(t, nil)

	leads := []model.LeadRecord{
		texasLead("A"),
		{Name: "B", Company: "Acme", RawLocation: "Springfield"},
	}

	// Without a requested location every lead proceeds to enrichment.
	job, err := f.orch.RunBatch(context.Background(), leads, "")
	require.NoError(t, err)

	assert.Equal(t, model.JobStatusComplete, job.Status)
	require.NotNil(t, job.Summary)
	assert.Equal(t, 2, job.Summary.Total)
	assert.Equal(t, 2, job.Summary.Kept)
	assert.Zero(t, job.Summary.Removed)
	assert.Empty(t, job.Summary.RemovalReasons)
	assert.Equal(t, 2, job.Summary.Enriched)
}

func TestRunBatch_ProgressTracked(t *testing.T) {
	f := newFixture(t, nil)

	job, err := f.orch.RunBatch(context.Background(), []model.LeadRecord{texasLead("A"), texasLead("B")}, "Texas")
	require.NoError(t, err)

	got, err := f.orch.Progress(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Current)
	assert.Equal(t, 100.0, got.Progress())
}

func TestRunBatch_CrossBatchDedupe(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.orch.RunBatch(ctx, []model.LeadRecord{texasLead("A")}, "Texas")
	require.NoError(t, err)
	lookupsAfterFirst := f.people.lookups.Load()

	job, err := f.orch.RunBatch(ctx, []model.LeadRecord{texasLead("A")}, "Texas")
	require.NoError(t, err)

	assert.Equal(t, lookupsAfterFirst, f.people.lookups.Load())
	assert.Equal(t, 1, job.Summary.SkippedDuplicates)
	assert.Equal(t, 0, job.Summary.Enriched)
}

func TestRunBatch_StopFlagHaltsBetweenLeads(t *testing.T) {
	f := newFixture(t, nil)

	var leads []model.LeadRecord
	for i := 0; i < 20; i++ {
		leads = append(leads, texasLead("Lead "+string(rune('A'+i))))
	}

	job, err := f.store.CreateJob(context.Background(), len(leads))
	require.NoError(t, err)

	// Stop before the run starts: every lead sees the flag and is skipped.
	flag := f.orch.jobs.register(job.ID)
	flag.Store(true)
	got, err := f.orch.runJob(context.Background(), job, leads, "Texas")
	require.NoError(t, err)

	assert.Equal(t, model.JobStatusStopped, got.Status)
	assert.Equal(t, 0, got.Current)
	assert.Equal(t, int32(0), f.people.lookups.Load())
}

func TestStop_UnknownJob(t *testing.T) {
	f := newFixture(t, nil)
	assert.False(t, f.orch.Stop("no-such-job"))
}
