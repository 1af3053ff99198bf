package model

import (
	"strings"
	"time"
)

// Stage marks the highest enrichment stage a lead has completed. A lead's
// checkpoint only ever advances; restarting a batch skips any stage the
// checkpoint already covers.
type Stage int

const (
	StageNone Stage = iota
	StageLocalExtract
	StageLocalLookup
	StageContactSearch
	StageContactDetail
	StagePhoneValidate
	StageGatekeep
	StageDemographics
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageNone:
		return "none"
	case StageLocalExtract:
		return "local_extract"
	case StageLocalLookup:
		return "local_lookup"
	case StageContactSearch:
		return "contact_search"
	case StageContactDetail:
		return "contact_detail"
	case StagePhoneValidate:
		return "phone_validate"
	case StageGatekeep:
		return "gatekeep"
	case StageDemographics:
		return "demographics"
	case StageDone:
		return "done"
	default:
		return "unknown"
	}
}

// LeadRecord is a raw scraped lead as returned by the search provider.
// Immutable once received; enrichment attaches fields to an EnrichmentResult
// instead of mutating the record.
type LeadRecord struct {
	Name        string `json:"name"`
	Title       string `json:"title,omitempty"`
	Company     string `json:"company,omitempty"`
	RawLocation string `json:"raw_location,omitempty"`
	GeoID       string `json:"geo_id,omitempty"` // self-reported location identifier, when the provider includes one
	ProfileURL  string `json:"profile_url,omitempty"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

// Identity returns a stable key for cross-batch deduplication: the profile
// URL when present, otherwise normalized name+company.
func (l LeadRecord) Identity() string {
	if l.ProfileURL != "" {
		return strings.ToLower(strings.TrimSpace(l.ProfileURL))
	}
	return strings.ToLower(strings.TrimSpace(l.Name)) + "|" + strings.ToLower(strings.TrimSpace(l.Company))
}

// EnrichmentResult is the progressively enriched superset of a LeadRecord.
// Fields are only ever added, never removed.
type EnrichmentResult struct {
	Lead LeadRecord `json:"lead"`

	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`

	ZipCode     string `json:"zip_code,omitempty"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
	Age         int    `json:"age,omitempty"`
	Income      string `json:"income,omitempty"`

	PersonID string `json:"person_id,omitempty"` // provider identifier from contact search
	LineType string `json:"line_type,omitempty"`
	Carrier  string `json:"carrier,omitempty"`

	DNCStatus  string `json:"dnc_status,omitempty"`
	CanContact bool   `json:"can_contact"`
	DNCChecked bool   `json:"dnc_checked"`

	Enriched   bool  `json:"enriched"`
	Checkpoint Stage `json:"checkpoint"`

	// FieldNotes records why a field was left unknown (provider error,
	// admission denied, no signal). Surfaced in batch summaries.
	FieldNotes map[string]string `json:"field_notes,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Note records why a field was left unknown.
func (r *EnrichmentResult) Note(field, reason string) {
	if r.FieldNotes == nil {
		r.FieldNotes = make(map[string]string)
	}
	r.FieldNotes[field] = reason
}

// Advance moves the checkpoint forward. It never moves backwards.
func (r *EnrichmentResult) Advance(s Stage) {
	if s > r.Checkpoint {
		r.Checkpoint = s
	}
}
