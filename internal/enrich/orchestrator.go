// Package enrich runs the per-lead enrichment state machine: local
// extraction, offline lookup, then governed external calls for contact,
// phone, compliance, and demographic data. Every stage advance is persisted,
// so a crash mid-batch only costs the single in-flight lead.
package enrich

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/linkpellow/brainscraper.io-sub002/internal/geo"
	"github.com/linkpellow/brainscraper.io-sub002/internal/govern"
	"github.com/linkpellow/brainscraper.io-sub002/internal/model"
	"github.com/linkpellow/brainscraper.io-sub002/internal/store"
	"github.com/linkpellow/brainscraper.io-sub002/internal/validate"
	"github.com/linkpellow/brainscraper.io-sub002/pkg/dnc"
	"github.com/linkpellow/brainscraper.io-sub002/pkg/peoplesearch"
	"github.com/linkpellow/brainscraper.io-sub002/pkg/phoneintel"
)

// Provider names as recorded by the governor.
const (
	ProviderPeopleSearch = "peoplesearch"
	ProviderPhoneIntel   = "phoneintel"
	ProviderDNC          = "dnc"
)

// Options tunes orchestrator behavior.
type Options struct {
	Workers      int
	DNCAccountID string
}

// Orchestrator drives leads through the enrichment stages.
type Orchestrator struct {
	store     store.Store
	governor  *govern.Governor
	validator *validate.Validator
	people    peoplesearch.Client
	phones    phoneintel.Client
	dnc       dnc.Client
	opts      Options

	jobs *jobTracker
}

func New(st store.Store, g *govern.Governor, v *validate.Validator,
	people peoplesearch.Client, phones phoneintel.Client, dncClient dnc.Client, opts Options) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Orchestrator{
		store:     st,
		governor:  g,
		validator: v,
		people:    people,
		phones:    phones,
		dnc:       dncClient,
		opts:      opts,
		jobs:      newJobTracker(),
	}
}

// leadState carries the in-flight working set for one lead, including the
// stage-3 person record reused by later stages within the same run.
type leadState struct {
	result *model.EnrichmentResult
	person *peoplesearch.Person

	skipped          bool           // fully processed in an earlier batch
	admissionDenials map[string]int // provider -> denied call count
}

// EnrichLead runs the stage machine for a single lead. A lead already at the
// terminal checkpoint is returned untouched with zero external calls. Stage
// failures degrade the field to unknown and continue; store and governance
// failures escalate.
func (o *Orchestrator) EnrichLead(ctx context.Context, lead model.LeadRecord) (*model.EnrichmentResult, error) {
	st, err := o.enrichLead(ctx, lead)
	if err != nil {
		return nil, err
	}
	return st.result, nil
}

func (o *Orchestrator) enrichLead(ctx context.Context, lead model.LeadRecord) (*leadState, error) {
	identity := lead.Identity()
	log := zap.L().With(zap.String("lead", identity))

	existing, err := o.store.GetResult(ctx, identity)
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: load checkpoint %s", identity)
	}
	if existing != nil && existing.Checkpoint >= model.StageDone {
		log.Debug("lead already fully enriched, skipping")
		return &leadState{result: existing, skipped: true}, nil
	}

	st := &leadState{
		result:           existing,
		admissionDenials: make(map[string]int),
	}
	if st.result == nil {
		st.result = &model.EnrichmentResult{
			Lead:  lead,
			Email: lead.Email,
			Phone: lead.Phone,
		}
	}

	stages := []struct {
		stage model.Stage
		run   func(context.Context, *leadState, *zap.Logger) error
	}{
		{model.StageLocalExtract, o.stageLocalExtract},
		{model.StageLocalLookup, o.stageLocalLookup},
		{model.StageContactSearch, o.stageContactSearch},
		{model.StageContactDetail, o.stageContactDetail},
		{model.StagePhoneValidate, o.stagePhoneValidate},
		{model.StageGatekeep, o.stageGatekeep},
		{model.StageDemographics, o.stageDemographics},
	}

	for _, s := range stages {
		if st.result.Checkpoint >= s.stage {
			continue
		}
		if err := s.run(ctx, st, log); err != nil {
			return nil, eris.Wrapf(err, "enrich: stage %s", s.stage)
		}
		st.result.Advance(s.stage)
		if err := o.store.SaveResult(ctx, identity, st.result); err != nil {
			return nil, eris.Wrapf(err, "enrich: persist checkpoint %s", identity)
		}
	}

	st.result.Enriched = st.result.Phone != "" || st.result.Email != ""
	st.result.Advance(model.StageDone)
	if err := o.store.SaveResult(ctx, identity, st.result); err != nil {
		return nil, eris.Wrapf(err, "enrich: persist final %s", identity)
	}
	return st, nil
}

// governedCall wraps one external call with admission control, pacing, and
// outcome recording. A denied admission skips the call without error.
func (o *Orchestrator) governedCall(ctx context.Context, st *leadState, provider string, call func() error) (denied bool, callErr error, err error) {
	adm, err := o.governor.CheckAdmission(ctx, provider)
	if err != nil {
		return false, nil, err
	}
	if !adm.Allowed {
		st.admissionDenials[provider]++
		return true, nil, nil
	}
	if err := o.governor.Wait(ctx, provider); err != nil {
		return false, nil, err
	}
	callErr = call()
	if err := o.governor.RecordOutcome(ctx, provider, callErr); err != nil {
		return false, callErr, err
	}
	return false, callErr, nil
}

// Stage 1: pull any phone/email already embedded in the raw lead text.
func (o *Orchestrator) stageLocalExtract(_ context.Context, st *leadState, _ *zap.Logger) error {
	lead := st.result.Lead
	if st.result.Email == "" {
		st.result.Email = extractEmail(lead.Title, lead.Company, lead.RawLocation)
	}
	if st.result.Phone == "" {
		st.result.Phone = extractPhone(lead.Title, lead.Company, lead.RawLocation)
	}
	return nil
}

// Stage 2: derive a zip code from city+region via the offline reference
// table. No external call, no governance.
func (o *Orchestrator) stageLocalLookup(_ context.Context, st *leadState, _ *zap.Logger) error {
	if st.result.ZipCode != "" {
		return nil
	}
	parsed := geo.ParseLocation(st.result.Lead.RawLocation)
	if parsed.City == "" || parsed.Region == "" {
		st.result.Note("zip_code", "no city/region signal in location text")
		return nil
	}
	zip, ok := geo.ZipFor(parsed.City, parsed.Region)
	if !ok {
		st.result.Note("zip_code", "city not in offline reference table")
		return nil
	}
	st.result.ZipCode = zip
	return nil
}

// Stage 3: governed people-data lookup when phone or email is still missing.
func (o *Orchestrator) stageContactSearch(ctx context.Context, st *leadState, log *zap.Logger) error {
	if st.result.Phone != "" && st.result.Email != "" {
		return nil
	}

	parsed := geo.ParseLocation(st.result.Lead.RawLocation)
	query := peoplesearch.PersonQuery{
		Name:    st.result.Lead.Name,
		Company: st.result.Lead.Company,
		City:    parsed.City,
		Region:  parsed.Region,
		Zip:     st.result.ZipCode,
	}

	denied, callErr, err := o.governedCall(ctx, st, ProviderPeopleSearch, func() error {
		person, lookupErr := o.people.LookupPerson(ctx, query)
		if lookupErr != nil {
			return lookupErr
		}
		st.person = person
		return nil
	})
	if err != nil {
		return err
	}
	if denied {
		st.result.Note("contact", "admission denied for peoplesearch")
		return nil
	}
	if callErr != nil {
		log.Warn("contact search failed, field left unknown", zap.Error(callErr))
		st.result.Note("contact", "contact search failed: "+callErr.Error())
		return nil
	}
	if st.person == nil {
		st.result.Note("contact", "no person record found")
		return nil
	}

	st.result.PersonID = st.person.ID
	if st.result.Phone == "" && len(st.person.Phones) > 0 {
		st.result.Phone = st.person.Phones[0]
	}
	if st.result.Email == "" && len(st.person.Emails) > 0 {
		st.result.Email = st.person.Emails[0]
	}
	if st.result.ZipCode == "" && st.person.Zip != "" {
		st.result.ZipCode = st.person.Zip
	}
	return nil
}

// Stage 4: a second, more specific lookup against the same provider — only
// when stage 3 produced a person identifier but no direct phone. Reuses the
// stage-3 result; never re-issues the search.
func (o *Orchestrator) stageContactDetail(ctx context.Context, st *leadState, log *zap.Logger) error {
	if st.result.PersonID == "" || st.result.Phone != "" {
		return nil
	}

	var contact *peoplesearch.ContactInfo
	denied, callErr, err := o.governedCall(ctx, st, ProviderPeopleSearch, func() error {
		var detailErr error
		contact, detailErr = o.people.ContactDetails(ctx, st.result.PersonID)
		return detailErr
	})
	if err != nil {
		return err
	}
	if denied {
		st.result.Note("phone", "admission denied for peoplesearch")
		return nil
	}
	if callErr != nil {
		log.Warn("contact detail lookup failed", zap.Error(callErr))
		st.result.Note("phone", "contact detail lookup failed: "+callErr.Error())
		return nil
	}
	if contact == nil {
		st.result.Note("phone", "no contact detail record")
		return nil
	}

	if st.result.Phone == "" && len(contact.Phones) > 0 {
		st.result.Phone = contact.Phones[0]
	}
	if st.result.Email == "" && len(contact.Emails) > 0 {
		st.result.Email = contact.Emails[0]
	}
	return nil
}

// Stage 5: phone validation plus the compliance registry check. Never called
// when no phone is present.
func (o *Orchestrator) stagePhoneValidate(ctx context.Context, st *leadState, log *zap.Logger) error {
	if st.result.Phone == "" {
		return nil
	}

	var validation *phoneintel.Validation
	denied, callErr, err := o.governedCall(ctx, st, ProviderPhoneIntel, func() error {
		var vErr error
		validation, vErr = o.phones.Validate(ctx, st.result.Phone)
		return vErr
	})
	if err != nil {
		return err
	}
	switch {
	case denied:
		st.result.Note("line_type", "admission denied for phoneintel")
	case callErr != nil:
		log.Warn("phone validation failed", zap.Error(callErr))
		st.result.Note("line_type", "phone validation failed: "+callErr.Error())
	case validation != nil:
		st.result.LineType = validation.LineType
		st.result.Carrier = validation.Carrier
	}

	return o.checkDNC(ctx, st, log)
}

// checkDNC runs the do-not-call registry lookup as part of phone handling.
func (o *Orchestrator) checkDNC(ctx context.Context, st *leadState, log *zap.Logger) error {
	var status *dnc.Status
	denied, callErr, err := o.governedCall(ctx, st, ProviderDNC, func() error {
		var dErr error
		status, dErr = o.dnc.Check(ctx, o.opts.DNCAccountID, st.result.Phone)
		return dErr
	})
	if err != nil {
		return err
	}
	switch {
	case denied:
		st.result.Note("dnc_status", "admission denied for dnc")
	case callErr != nil:
		log.Warn("dnc check failed", zap.Error(callErr))
		st.result.Note("dnc_status", "dnc check failed: "+callErr.Error())
	case status != nil:
		st.result.DNCChecked = true
		st.result.CanContact = !status.Registered
		if status.Registered {
			st.result.DNCStatus = status.Reason
			if st.result.DNCStatus == "" {
				st.result.DNCStatus = "registered"
			}
		} else {
			st.result.DNCStatus = "clear"
		}
	}
	return nil
}

// nonReachableLineTypes are excluded from demographic enrichment: spending a
// governed call on a number no human answers is wasted quota.
var nonReachableLineTypes = map[string]bool{
	phoneintel.LineTypeVoIP:    true,
	phoneintel.LineTypePrepaid: true,
	phoneintel.LineTypeJunk:    true,
}

func (st *leadState) passedGatekeep() bool {
	return !nonReachableLineTypes[st.result.LineType]
}

// Stage 6: pure decision, no external call. Stage 5's classification
// suppresses stage 7 here.
func (o *Orchestrator) stageGatekeep(_ context.Context, st *leadState, log *zap.Logger) error {
	if !st.passedGatekeep() {
		log.Debug("lead gatekept, demographics suppressed",
			zap.String("line_type", st.result.LineType))
	}
	return nil
}

// Stage 7: demographic enrichment, only past the gatekeep. Stage 3's record
// is reused when it already carried demographic fields.
func (o *Orchestrator) stageDemographics(ctx context.Context, st *leadState, log *zap.Logger) error {
	if st.result.DateOfBirth != "" || st.result.Age > 0 {
		return nil
	}
	if !st.passedGatekeep() {
		st.result.Note("demographics", "suppressed by line-type gatekeeping")
		return nil
	}

	if st.person != nil && (st.person.DateOfBirth != "" || st.person.Age > 0) {
		st.result.DateOfBirth = st.person.DateOfBirth
		st.result.Age = st.person.Age
		st.result.Income = st.person.Income
		return nil
	}
	if st.result.PersonID == "" {
		st.result.Note("demographics", "no person identifier to look up")
		return nil
	}

	var demo *peoplesearch.DemographicInfo
	denied, callErr, err := o.governedCall(ctx, st, ProviderPeopleSearch, func() error {
		var dErr error
		demo, dErr = o.people.Demographics(ctx, st.result.PersonID)
		return dErr
	})
	if err != nil {
		return err
	}
	switch {
	case denied:
		st.result.Note("demographics", "admission denied for peoplesearch")
	case callErr != nil:
		log.Warn("demographic lookup failed", zap.Error(callErr))
		st.result.Note("demographics", "demographic lookup failed: "+callErr.Error())
	case demo != nil:
		st.result.DateOfBirth = demo.DateOfBirth
		st.result.Age = demo.Age
		st.result.Income = demo.Income
	default:
		st.result.Note("demographics", "no demographic record")
	}
	return nil
}
