package geo

// stateAbbrevs maps US state/territory names (normalized key form) to their
// USPS abbreviation. Both forms resolve to the same geo entry.
var stateAbbrevs = map[string]string{
	"alabama":              "AL",
	"alaska":               "AK",
	"arizona":              "AZ",
	"arkansas":             "AR",
	"california":           "CA",
	"colorado":             "CO",
	"connecticut":          "CT",
	"delaware":             "DE",
	"district_of_columbia": "DC",
	"florida":              "FL",
	"georgia":              "GA",
	"hawaii":               "HI",
	"idaho":                "ID",
	"illinois":             "IL",
	"indiana":              "IN",
	"iowa":                 "IA",
	"kansas":               "KS",
	"kentucky":             "KY",
	"louisiana":            "LA",
	"maine":                "ME",
	"maryland":             "MD",
	"massachusetts":        "MA",
	"michigan":             "MI",
	"minnesota":            "MN",
	"mississippi":          "MS",
	"missouri":             "MO",
	"montana":              "MT",
	"nebraska":             "NE",
	"nevada":               "NV",
	"new_hampshire":        "NH",
	"new_jersey":           "NJ",
	"new_mexico":           "NM",
	"new_york":             "NY",
	"north_carolina":       "NC",
	"north_dakota":         "ND",
	"ohio":                 "OH",
	"oklahoma":             "OK",
	"oregon":               "OR",
	"pennsylvania":         "PA",
	"puerto_rico":          "PR",
	"rhode_island":         "RI",
	"south_carolina":       "SC",
	"south_dakota":         "SD",
	"tennessee":            "TN",
	"texas":                "TX",
	"utah":                 "UT",
	"vermont":              "VT",
	"virginia":             "VA",
	"washington":           "WA",
	"west_virginia":        "WV",
	"wisconsin":            "WI",
	"wyoming":              "WY",
}

// abbrevStates is the reverse index, abbreviation (upper) -> normalized name.
var abbrevStates = func() map[string]string {
	m := make(map[string]string, len(stateAbbrevs))
	for name, ab := range stateAbbrevs {
		m[ab] = name
	}
	return m
}()

// StateAbbrev returns the USPS abbreviation for a state name key, if known.
func StateAbbrev(key string) (string, bool) {
	ab, ok := stateAbbrevs[key]
	return ab, ok
}

// StateName returns the normalized state name for a USPS abbreviation.
func StateName(abbrev string) (string, bool) {
	name, ok := abbrevStates[abbrev]
	return name, ok
}

// IsUSState reports whether the normalized key or abbreviation names a US
// state or territory.
func IsUSState(token string) bool {
	if _, ok := stateAbbrevs[NormalizeKey(token)]; ok {
		return true
	}
	_, ok := abbrevStates[token]
	return ok
}

// CanonicalRegion maps either a full state name or an abbreviation to the
// single normalized key both forms share. Returns false if the token is not
// a known region.
func CanonicalRegion(token string) (string, bool) {
	key := NormalizeKey(token)
	if _, ok := stateAbbrevs[key]; ok {
		return key, true
	}
	upper := toUpperASCII(token)
	if name, ok := abbrevStates[upper]; ok {
		return name, true
	}
	return "", false
}

// ExpectedCountry returns the country a region belongs to. US states expect
// "united states"; unknown regions expect nothing.
func ExpectedCountry(regionKey string) (string, bool) {
	if _, ok := stateAbbrevs[regionKey]; ok {
		return "united states", true
	}
	return "", false
}

func toUpperASCII(s string) string {
	b := []byte(s)
	out := make([]byte, 0, len(b))
	for _, c := range b {
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		if c == ' ' || c == '.' {
			continue
		}
		out = append(out, c)
	}
	return string(out)
}
