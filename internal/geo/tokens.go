package geo

import "strings"

// countryAliases maps normalized country spellings to a canonical country
// token. Only countries that show up in provider location strings need an
// entry; everything else passes through normalized.
var countryAliases = map[string]string{
	"united states":            "united states",
	"united states of america": "united states",
	"usa":                      "united states",
	"us":                       "united states",
	"u.s.":                     "united states",
	"u.s.a.":                   "united states",
	"canada":                   "canada",
	"united kingdom":           "united kingdom",
	"uk":                       "united kingdom",
	"great britain":            "united kingdom",
	"england":                  "united kingdom",
	"australia":                "australia",
	"germany":                  "germany",
	"france":                   "france",
	"india":                    "india",
	"mexico":                   "mexico",
	"brazil":                   "brazil",
	"spain":                    "spain",
	"italy":                    "italy",
	"netherlands":              "netherlands",
	"ireland":                  "ireland",
	"philippines":              "philippines",
	"singapore":                "singapore",
	"south africa":             "south africa",
}

// CanonicalCountry maps a country spelling to its canonical token.
func CanonicalCountry(token string) (string, bool) {
	c, ok := countryAliases[strings.ToLower(strings.TrimSpace(token))]
	return c, ok
}

// ParsedLocation is the region/country signal extracted from a free-text
// location string like "Austin, Texas, United States".
type ParsedLocation struct {
	City    string
	Region  string // normalized region key ("texas"), empty if no signal
	Country string // canonical country token, empty if no signal
}

// ParseLocation extracts region and country tokens from raw lead location
// text. Segments are comma-separated; the heuristics scan from the trailing
// segment inward, since providers put the broadest scope last.
func ParseLocation(raw string) ParsedLocation {
	var p ParsedLocation
	segments := splitSegments(raw)
	if len(segments) == 0 {
		return p
	}

	// Trailing segment: country, or region when no country is present.
	for i := len(segments) - 1; i >= 0; i-- {
		seg := segments[i]
		if p.Country == "" {
			if c, ok := CanonicalCountry(seg); ok {
				p.Country = c
				continue
			}
		}
		if p.Region == "" {
			if r, ok := CanonicalRegion(seg); ok {
				p.Region = r
				continue
			}
			// "Austin, TX 78701" style: strip a trailing zip.
			if r, ok := CanonicalRegion(stripZip(seg)); ok {
				p.Region = r
				continue
			}
		}
		if p.City == "" {
			p.City = seg
		}
	}

	// A US state implies the country when the text never names one.
	if p.Country == "" && p.Region != "" {
		if c, ok := ExpectedCountry(p.Region); ok {
			p.Country = c
		}
	}

	return p
}

func splitSegments(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func stripZip(seg string) string {
	fields := strings.Fields(seg)
	if len(fields) < 2 {
		return seg
	}
	last := fields[len(fields)-1]
	for _, c := range last {
		if c < '0' || c > '9' {
			return seg
		}
	}
	return strings.Join(fields[:len(fields)-1], " ")
}
