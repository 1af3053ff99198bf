// Package validate post-filters search results against the location the
// caller actually requested. The upstream search filter is unreliable;
// globally-scoped results leak through, and this filter is the evidence.
package validate

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/linkpellow/brainscraper.io-sub002/internal/geo"
	"github.com/linkpellow/brainscraper.io-sub002/internal/model"
)

// Confidence grades how sure the validator is about a verdict.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Rejection reasons.
const (
	ReasonRegionMatch     = "region_match"
	ReasonCountryMatch    = "country_match"
	ReasonCountryMismatch = "country_mismatch"
	ReasonSubstringMatch  = "substring_match"
	ReasonNoSignal        = "no_location_signal"
)

// Verdict is the outcome of matching one lead against the requested location.
type Verdict struct {
	Accept     bool
	Confidence Confidence
	Reason     string
}

// Rejection pairs a removed lead with why it was removed.
type Rejection struct {
	Lead       model.LeadRecord `json:"lead"`
	Reason     string           `json:"reason"`
	Confidence Confidence       `json:"confidence"`
}

// FilterStats summarizes one FilterBatch pass.
type FilterStats struct {
	Total       int     `json:"total"`
	Kept        int     `json:"kept"`
	Removed     int     `json:"removed"`
	RemovalRate float64 `json:"removal_rate"`
}

// FilterResult holds kept leads, removals with reasons, and the stats the
// caller must surface.
type FilterResult struct {
	Kept    []model.LeadRecord
	Removed []Rejection
	Stats   FilterStats
}

// Policy tunes matching behavior.
type Policy struct {
	AllowSubstring bool
	MinTokenLen    int
}

// DefaultPolicy matches the configuration defaults.
func DefaultPolicy() Policy {
	return Policy{AllowSubstring: true, MinTokenLen: 3}
}

// Validator matches leads against a requested location text.
type Validator struct {
	policy Policy
}

func New(policy Policy) *Validator {
	return &Validator{policy: policy}
}

var matchFolder = cases.Fold()

// Matches applies the decision table, most confident rule first:
// region-token equality accepts high; a country mismatch against the
// requested region's expected country rejects high; a substring occurrence
// accepts medium; no signal rejects low. When in doubt, exclude — over-
// inclusion silently corrupts delivered accuracy, under-inclusion is visible
// and recoverable.
func (v *Validator) Matches(lead model.LeadRecord, requested string) Verdict {
	reqRegion, reqIsRegion := geo.CanonicalRegion(requested)
	reqCountry, reqIsCountry := geo.CanonicalCountry(requested)
	if reqIsRegion {
		if expected, ok := geo.ExpectedCountry(reqRegion); ok {
			reqCountry = expected
		}
	}

	parsed := geo.ParseLocation(lead.RawLocation)

	if reqIsRegion && parsed.Region != "" && parsed.Region == reqRegion {
		return Verdict{Accept: true, Confidence: ConfidenceHigh, Reason: ReasonRegionMatch}
	}
	if reqIsCountry && !reqIsRegion && parsed.Country != "" && parsed.Country == reqCountry {
		return Verdict{Accept: true, Confidence: ConfidenceHigh, Reason: ReasonCountryMatch}
	}
	if reqCountry != "" && parsed.Country != "" && parsed.Country != reqCountry {
		return Verdict{Accept: false, Confidence: ConfidenceHigh, Reason: ReasonCountryMismatch}
	}
	if v.policy.AllowSubstring {
		needle := matchFolder.String(strings.TrimSpace(requested))
		if len(needle) >= v.policy.MinTokenLen &&
			strings.Contains(matchFolder.String(lead.RawLocation), needle) {
			return Verdict{Accept: true, Confidence: ConfidenceMedium, Reason: ReasonSubstringMatch}
		}
	}
	return Verdict{Accept: false, Confidence: ConfidenceLow, Reason: ReasonNoSignal}
}

// FilterBatch applies Matches as a pure filter over a batch. Stats are
// always populated, even for empty input. A blank requested location means
// the caller asked for no post-filter: every lead is kept rather than
// rejected for missing a signal it was never asked to carry.
func (v *Validator) FilterBatch(leads []model.LeadRecord, requested string) FilterResult {
	result := FilterResult{
		Kept:    make([]model.LeadRecord, 0, len(leads)),
		Removed: make([]Rejection, 0),
	}
	if strings.TrimSpace(requested) == "" {
		result.Kept = append(result.Kept, leads...)
		result.Stats = FilterStats{Total: len(leads), Kept: len(leads)}
		return result
	}
	for _, lead := range leads {
		verdict := v.Matches(lead, requested)
		if verdict.Accept {
			result.Kept = append(result.Kept, lead)
		} else {
			result.Removed = append(result.Removed, Rejection{
				Lead:       lead,
				Reason:     verdict.Reason,
				Confidence: verdict.Confidence,
			})
		}
	}
	result.Stats = FilterStats{
		Total:   len(leads),
		Kept:    len(result.Kept),
		Removed: len(result.Removed),
	}
	if result.Stats.Total > 0 {
		result.Stats.RemovalRate = float64(result.Stats.Removed) / float64(result.Stats.Total)
	}
	return result
}
