package resolve

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/linkpellow/brainscraper.io-sub002/internal/geo"
	"github.com/linkpellow/brainscraper.io-sub002/internal/model"
)

// staticLocations is the curated, manually-verified identifier table for US
// states. Seeded as source "static", which no later discovery or extraction
// may overwrite.
var staticLocations = map[string]string{
	"alabama":              "102240587",
	"alaska":               "100290991",
	"arizona":              "106032660",
	"arkansas":             "101616793",
	"california":           "102095887",
	"colorado":             "105763813",
	"connecticut":          "104677787",
	"delaware":             "105730653",
	"district_of_columbia": "104383890",
	"florida":              "101318387",
	"georgia":              "103950076",
	"hawaii":               "105051999",
	"idaho":                "100234309",
	"illinois":             "101949407",
	"indiana":              "103336534",
	"iowa":                 "103078544",
	"kansas":               "104403803",
	"kentucky":             "101870659",
	"louisiana":            "101822552",
	"maine":                "100357706",
	"maryland":             "100809221",
	"massachusetts":        "101098412",
	"michigan":             "103051080",
	"minnesota":            "103411167",
	"mississippi":          "101174924",
	"missouri":             "101486475",
	"montana":              "101758306",
	"nebraska":             "104414887",
	"nevada":               "101690912",
	"new_hampshire":        "103977389",
	"new_jersey":           "101651951",
	"new_mexico":           "105048356",
	"new_york":             "105080838",
	"north_carolina":       "103255397",
	"north_dakota":         "103871077",
	"ohio":                 "106981407",
	"oklahoma":             "101343299",
	"oregon":               "101685541",
	"pennsylvania":         "102986501",
	"puerto_rico":          "105245958",
	"rhode_island":         "104877241",
	"south_carolina":       "102687171",
	"south_dakota":         "106875085",
	"tennessee":            "104629187",
	"texas":                "102748797",
	"utah":                 "104723389",
	"vermont":              "103306117",
	"virginia":             "101630962",
	"washington":           "103977811",
	"west_virginia":        "106420769",
	"wisconsin":            "104454774",
	"wyoming":              "100658004",
}

// SeedStatic loads the curated identifier table into the store. Idempotent:
// existing static entries keep their identifier, repeat seeding only bumps
// usage counts.
func (r *Resolver) SeedStatic(ctx context.Context) error {
	for key, id := range staticLocations {
		entry := model.GeoEntry{
			Key:         key,
			LocationID:  id,
			DisplayName: geo.DisplayTitle(keyToDisplay(key)),
			Region:      key,
			Source:      model.SourceStatic,
		}
		if country, ok := geo.ExpectedCountry(key); ok {
			entry.Country = country
		}
		if err := r.store.UpsertGeo(ctx, entry); err != nil {
			return eris.Wrapf(err, "resolve: seed %s", key)
		}
	}
	return nil
}

// seedEntry is one operator-supplied location identifier from a seed file.
type seedEntry struct {
	Name    string `yaml:"name"`
	ID      string `yaml:"id"`
	Country string `yaml:"country,omitempty"`
}

// SeedFile loads extra static identifiers from a YAML file on top of the
// built-in table. The file has a top-level "locations" key:
//
//	locations:
//	  - name: Austin, Texas
//	    id: "100587704"
func (r *Resolver) SeedFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "resolve: read seed file %s", path)
	}

	var wrapper struct {
		Locations []seedEntry `yaml:"locations"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return eris.Wrap(err, "resolve: parse seed file")
	}

	for _, loc := range wrapper.Locations {
		if loc.Name == "" || loc.ID == "" {
			return eris.Errorf("resolve: seed file entry needs both name and id (got name=%q id=%q)", loc.Name, loc.ID)
		}
		parsed := geo.ParseLocation(loc.Name)
		entry := model.GeoEntry{
			Key:         storeKey(loc.Name),
			LocationID:  loc.ID,
			DisplayName: geo.DisplayTitle(loc.Name),
			Region:      parsed.Region,
			Country:     parsed.Country,
			Source:      model.SourceStatic,
		}
		if loc.Country != "" {
			if c, ok := geo.CanonicalCountry(loc.Country); ok {
				entry.Country = c
			}
		}
		if err := r.store.UpsertGeo(ctx, entry); err != nil {
			return eris.Wrapf(err, "resolve: seed %s", entry.Key)
		}
	}
	return nil
}

func keyToDisplay(key string) string {
	out := make([]byte, len(key))
	for i := 0; i < len(key); i++ {
		if key[i] == '_' {
			out[i] = ' '
		} else {
			out[i] = key[i]
		}
	}
	return string(out)
}
