package model

import "time"

// GeoSource describes how a geo entry was obtained. Higher-rank sources may
// overwrite lower-rank ones; never the other way around.
type GeoSource string

const (
	SourceStatic     GeoSource = "static"
	SourceDiscovered GeoSource = "discovered"
	SourceExtracted  GeoSource = "extracted"
)

// Rank orders sources by confidence: static > discovered > extracted.
func (s GeoSource) Rank() int {
	switch s {
	case SourceStatic:
		return 3
	case SourceDiscovered:
		return 2
	case SourceExtracted:
		return 1
	default:
		return 0
	}
}

// GeoEntry maps normalized location text to an opaque provider location
// identifier. LocationID must only ever contain a value obtained from the
// provider — never the location name itself.
type GeoEntry struct {
	Key          string    `json:"key"`
	LocationID   string    `json:"location_id"`
	DisplayName  string    `json:"display_name"`
	Region       string    `json:"region,omitempty"`
	Country      string    `json:"country,omitempty"`
	Source       GeoSource `json:"source"`
	DiscoveredAt time.Time `json:"discovered_at"`
	UsageCount   int       `json:"usage_count"`
}
