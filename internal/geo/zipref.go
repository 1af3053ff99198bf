package geo

// zipRef is the offline city+region -> representative zip code table used by
// the local-lookup enrichment stage. No external call is ever made for a zip.
// Keyed by "city|region" in normalized form.
var zipRef = map[string]string{
	"austin|texas":           "78701",
	"dallas|texas":           "75201",
	"houston|texas":          "77002",
	"san antonio|texas":      "78205",
	"fort worth|texas":       "76102",
	"charlotte|north_carolina": "28202",
	"raleigh|north_carolina": "27601",
	"durham|north_carolina":  "27701",
	"new york|new_york":      "10001",
	"brooklyn|new_york":      "11201",
	"buffalo|new_york":       "14202",
	"los angeles|california": "90012",
	"san francisco|california": "94102",
	"san diego|california":   "92101",
	"sacramento|california":  "95814",
	"chicago|illinois":       "60602",
	"miami|florida":          "33128",
	"orlando|florida":        "32801",
	"tampa|florida":          "33602",
	"jacksonville|florida":   "32202",
	"atlanta|georgia":        "30303",
	"seattle|washington":     "98104",
	"denver|colorado":        "80202",
	"phoenix|arizona":        "85003",
	"boston|massachusetts":   "02201",
	"philadelphia|pennsylvania": "19107",
	"pittsburgh|pennsylvania": "15219",
	"detroit|michigan":       "48226",
	"columbus|ohio":          "43215",
	"cleveland|ohio":         "44113",
	"nashville|tennessee":    "37201",
	"memphis|tennessee":      "38103",
	"portland|oregon":        "97204",
	"las vegas|nevada":       "89101",
	"minneapolis|minnesota":  "55415",
	"st louis|missouri":      "63101",
	"kansas city|missouri":   "64106",
	"baltimore|maryland":     "21202",
	"milwaukee|wisconsin":    "53202",
	"indianapolis|indiana":   "46204",
	"new orleans|louisiana":  "70112",
	"salt lake city|utah":    "84111",
	"oklahoma city|oklahoma": "73102",
	"louisville|kentucky":    "40202",
	"richmond|virginia":      "23219",
	"birmingham|alabama":     "35203",
	"albuquerque|new_mexico": "87102",
	"boise|idaho":            "83702",
	"omaha|nebraska":         "68102",
	"des moines|iowa":        "50309",
	"little rock|arkansas":   "72201",
	"charleston|south_carolina": "29401",
	"columbia|south_carolina": "29201",
	"hartford|connecticut":   "06103",
	"providence|rhode_island": "02903",
	"anchorage|alaska":       "99501",
	"honolulu|hawaii":        "96813",
}

// ZipFor returns a representative zip code for a city+region pair from the
// offline reference table. Region may be a full name or an abbreviation.
func ZipFor(city, region string) (string, bool) {
	regionKey, ok := CanonicalRegion(region)
	if !ok {
		regionKey = NormalizeKey(region)
	}
	zip, ok := zipRef[cityKey(city)+"|"+regionKey]
	return zip, ok
}

// cityKey folds case and collapses whitespace but keeps single spaces, the
// form the zip table is keyed by for city names.
func cityKey(s string) string {
	key := NormalizeKey(s)
	out := make([]byte, 0, len(key))
	for i := 0; i < len(key); i++ {
		if key[i] == '_' {
			out = append(out, ' ')
			continue
		}
		if key[i] == '.' {
			continue
		}
		out = append(out, key[i])
	}
	return string(out)
}
