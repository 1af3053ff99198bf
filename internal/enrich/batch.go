package enrich

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/linkpellow/brainscraper.io-sub002/internal/model"
)

// jobTracker holds the stop flags for in-flight jobs.
type jobTracker struct {
	mu    sync.Mutex
	stops map[string]*atomic.Bool
}

func newJobTracker() *jobTracker {
	return &jobTracker{stops: make(map[string]*atomic.Bool)}
}

func (t *jobTracker) register(jobID string) *atomic.Bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if flag, ok := t.stops[jobID]; ok {
		return flag
	}
	flag := &atomic.Bool{}
	t.stops[jobID] = flag
	return flag
}

func (t *jobTracker) remove(jobID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.stops, jobID)
}

func (t *jobTracker) stop(jobID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	flag, ok := t.stops[jobID]
	if ok {
		flag.Store(true)
	}
	return ok
}

// RunBatch post-filters leads against the requested location, then enriches
// the kept leads with bounded concurrency. Runs to completion; use Start for
// the asynchronous job-handle form. The stop flag is polled between leads,
// never mid-lead, so a halt always lands on a consistent checkpoint.
func (o *Orchestrator) RunBatch(ctx context.Context, leads []model.LeadRecord, requestedLocation string) (*model.Job, error) {
	job, err := o.store.CreateJob(ctx, len(leads))
	if err != nil {
		return nil, eris.Wrap(err, "enrich: create job")
	}
	return o.runJob(ctx, job, leads, requestedLocation)
}

// Start launches a batch in the background and returns its handle
// immediately. Progress is read back through Progress.
func (o *Orchestrator) Start(ctx context.Context, leads []model.LeadRecord, requestedLocation string) (*model.Job, error) {
	job, err := o.store.CreateJob(ctx, len(leads))
	if err != nil {
		return nil, eris.Wrap(err, "enrich: create job")
	}
	go func() {
		if _, err := o.runJob(context.WithoutCancel(ctx), job, leads, requestedLocation); err != nil {
			zap.L().Error("batch job failed", zap.String("job_id", job.ID), zap.Error(err))
		}
	}()
	return job, nil
}

// Progress returns the current state of a job.
func (o *Orchestrator) Progress(ctx context.Context, jobID string) (*model.Job, error) {
	return o.store.GetJob(ctx, jobID)
}

// Stop requests a running job halt between leads. Returns false when the job
// is not running in this process.
func (o *Orchestrator) Stop(jobID string) bool {
	return o.jobs.stop(jobID)
}

func (o *Orchestrator) runJob(ctx context.Context, job *model.Job, leads []model.LeadRecord, requestedLocation string) (*model.Job, error) {
	log := zap.L().With(zap.String("job_id", job.ID))
	stopFlag := o.jobs.register(job.ID)
	defer o.jobs.remove(job.ID)

	filtered := o.validator.FilterBatch(leads, requestedLocation)
	log.Info("batch post-filter complete",
		zap.Int("total", filtered.Stats.Total),
		zap.Int("kept", filtered.Stats.Kept),
		zap.Int("removed", filtered.Stats.Removed),
		zap.Float64("removal_rate", filtered.Stats.RemovalRate))

	summary := &model.BatchSummary{
		Total:          filtered.Stats.Total,
		Kept:           filtered.Stats.Kept,
		Removed:        filtered.Stats.Removed,
		RemovalRate:    filtered.Stats.RemovalRate,
		RemovalReasons: make(map[string]int),
	}
	for _, rej := range filtered.Removed {
		summary.RemovalReasons[rej.Reason]++
	}

	// In-batch dedupe by stable identity. Cross-batch dedupe happens inside
	// EnrichLead via the stored checkpoint.
	seen := make(map[string]bool, len(filtered.Kept))
	unique := make([]model.LeadRecord, 0, len(filtered.Kept))
	for _, lead := range filtered.Kept {
		id := lead.Identity()
		if seen[id] {
			summary.SkippedDuplicates++
			continue
		}
		seen[id] = true
		unique = append(unique, lead)
	}

	var (
		mu        sync.Mutex
		processed atomic.Int64
		enriched  atomic.Int64
		skipped   atomic.Int64
	)
	fieldsUnknown := make(map[string]int)
	denials := make(map[string]int)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Workers)
	for _, lead := range unique {
		if stopFlag.Load() {
			break
		}
		g.Go(func() error {
			if stopFlag.Load() {
				return nil
			}
			st, err := o.enrichLead(gctx, lead)
			if err != nil {
				return err
			}

			if st.skipped {
				skipped.Add(1)
			} else if st.result.Enriched {
				enriched.Add(1)
			}
			mu.Lock()
			for field := range st.result.FieldNotes {
				fieldsUnknown[field]++
			}
			for provider, n := range st.admissionDenials {
				denials[provider] += n
			}
			mu.Unlock()

			current := int(processed.Add(1))
			if err := o.store.UpdateJob(gctx, job.ID, current, model.JobStatusRunning, nil); err != nil {
				return err
			}
			return nil
		})
	}

	runErr := g.Wait()

	summary.Enriched = int(enriched.Load())
	summary.SkippedDuplicates += int(skipped.Load())
	summary.FieldsUnknown = fieldsUnknown
	summary.AdmissionDenials = denials

	status := model.JobStatusComplete
	switch {
	case runErr != nil:
		status = model.JobStatusFailed
	case stopFlag.Load():
		status = model.JobStatusStopped
	}

	if err := o.store.UpdateJob(ctx, job.ID, int(processed.Load()), status, summary); err != nil {
		if runErr == nil {
			runErr = err
		}
	}
	if runErr != nil {
		log.Error("batch finished with error", zap.Error(runErr))
		return nil, eris.Wrap(runErr, "enrich: run batch")
	}

	log.Info("batch complete",
		zap.Int("enriched", summary.Enriched),
		zap.Int("skipped_duplicates", summary.SkippedDuplicates))
	return o.store.GetJob(ctx, job.ID)
}
