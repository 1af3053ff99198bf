// Package geo holds location text normalization, the static region tables,
// and the parsing heuristics used to pull region/country tokens out of
// free-text lead locations.
package geo

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var keyFolder = cases.Fold()

// NormalizeKey converts location text into the canonical store key:
// case-folded, trimmed, internal whitespace collapsed to a single underscore.
// "North Carolina" and "north  carolina" produce the same key.
func NormalizeKey(text string) string {
	folded := keyFolder.String(strings.TrimSpace(text))
	return strings.Join(strings.Fields(folded), "_")
}

// DisplayTitle renders a normalized or raw location name in title case for
// display ("north carolina" -> "North Carolina").
func DisplayTitle(text string) string {
	return cases.Title(language.English).String(strings.TrimSpace(text))
}
