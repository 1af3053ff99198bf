// Package resolve turns free-text location names into opaque provider
// location identifiers, backed by the durable geo store and a chain of live
// discovery sources.
package resolve

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/linkpellow/brainscraper.io-sub002/internal/geo"
	"github.com/linkpellow/brainscraper.io-sub002/internal/model"
	"github.com/linkpellow/brainscraper.io-sub002/internal/store"
)

// ErrNoLocationID is returned when no identifier could be found for a
// location text. Callers must never substitute the raw text for an
// identifier; they fall back to keyword search instead.
var ErrNoLocationID = eris.New("resolve: no location identifier found")

// Candidate is one discovery result from a suggestion source.
type Candidate struct {
	ID          string
	DisplayText string
}

// Source is a live location discovery collaborator. Sources are tried in
// order; a failed or empty source is skipped, not fatal.
type Source interface {
	Name() string
	Suggest(ctx context.Context, query string) ([]Candidate, error)
}

// Resolution is a successful location lookup.
type Resolution struct {
	LocationID  string
	DisplayName string
	Source      model.GeoSource
}

// Resolver resolves location text through the store first, then the
// discovery chain. Discoveries are written back so the second resolve of the
// same text is a store hit.
type Resolver struct {
	store   store.Store
	sources []Source
}

func New(st store.Store, sources ...Source) *Resolver {
	return &Resolver{store: st, sources: sources}
}

// storeKey maps location text to its canonical store key. State names and
// their USPS abbreviations share one key, so "NC" and "North Carolina"
// resolve to the same entry once either has been discovered.
func storeKey(text string) string {
	if canon, ok := geo.CanonicalRegion(text); ok {
		return canon
	}
	return geo.NormalizeKey(text)
}

// Resolve looks up a location identifier for text. Store lookups come first;
// when allowDiscovery is set, the discovery chain runs on a miss and the
// first well-formed candidate is persisted with source "discovered". Returns
// ErrNoLocationID when every avenue is exhausted. Store I/O failures are
// escalated, never swallowed.
func (r *Resolver) Resolve(ctx context.Context, text string, allowDiscovery bool) (*Resolution, error) {
	key := storeKey(text)

	entry, err := r.store.GetGeo(ctx, key)
	if err != nil {
		return nil, eris.Wrapf(err, "resolve: lookup %s", key)
	}
	if entry != nil {
		if err := r.store.TouchGeo(ctx, key); err != nil {
			return nil, eris.Wrapf(err, "resolve: touch %s", key)
		}
		return &Resolution{
			LocationID:  entry.LocationID,
			DisplayName: entry.DisplayName,
			Source:      entry.Source,
		}, nil
	}

	if !allowDiscovery {
		return nil, ErrNoLocationID
	}

	log := zap.L().With(zap.String("location", text))
	for _, src := range r.sources {
		candidates, err := src.Suggest(ctx, text)
		if err != nil {
			log.Warn("discovery source failed, trying next",
				zap.String("source", src.Name()), zap.Error(err))
			continue
		}
		candidate, ok := firstWellFormed(candidates)
		if !ok {
			continue
		}

		display := candidate.DisplayText
		if display == "" {
			display = geo.DisplayTitle(text)
		}
		newEntry := model.GeoEntry{
			Key:         key,
			LocationID:  candidate.ID,
			DisplayName: display,
			Source:      model.SourceDiscovered,
		}
		if canon, isRegion := geo.CanonicalRegion(text); isRegion {
			newEntry.Region = canon
			if country, known := geo.ExpectedCountry(canon); known {
				newEntry.Country = country
			}
		}
		if err := r.store.UpsertGeo(ctx, newEntry); err != nil {
			return nil, eris.Wrapf(err, "resolve: persist discovery %s", key)
		}

		log.Info("location discovered",
			zap.String("source", src.Name()),
			zap.String("location_id", candidate.ID))
		return &Resolution{
			LocationID:  candidate.ID,
			DisplayName: display,
			Source:      model.SourceDiscovered,
		}, nil
	}

	return nil, ErrNoLocationID
}

// ExtractFromLeads opportunistically grows the geo store from search result
// records that carry their own location identifier. Upserts use source
// "extracted", which never overrides a discovered or static entry.
func (r *Resolver) ExtractFromLeads(ctx context.Context, leads []model.LeadRecord) error {
	for _, lead := range leads {
		if lead.GeoID == "" || lead.RawLocation == "" {
			continue
		}
		parsed := geo.ParseLocation(lead.RawLocation)
		entry := model.GeoEntry{
			Key:         storeKey(lead.RawLocation),
			LocationID:  lead.GeoID,
			DisplayName: lead.RawLocation,
			Region:      parsed.Region,
			Country:     parsed.Country,
			Source:      model.SourceExtracted,
		}
		if err := r.store.UpsertGeo(ctx, entry); err != nil {
			return eris.Wrapf(err, "resolve: extract upsert %s", entry.Key)
		}
	}
	return nil
}

func firstWellFormed(candidates []Candidate) (Candidate, bool) {
	for _, c := range candidates {
		if c.ID != "" {
			return c, true
		}
	}
	return Candidate{}, false
}
