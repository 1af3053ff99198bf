package enrich

import (
	"regexp"
	"strings"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?1?[\s.\-]?\(?\d{3}\)?[\s.\-]?\d{3}[\s.\-]?\d{4}`)
	digitStrip   = regexp.MustCompile(`[^\d+]`)
)

// extractEmail pulls the first email address embedded in free text.
func extractEmail(texts ...string) string {
	for _, text := range texts {
		if m := emailPattern.FindString(text); m != "" {
			return strings.ToLower(m)
		}
	}
	return ""
}

// extractPhone pulls the first US-format phone number embedded in free text
// and normalizes it to digits with a leading +1.
func extractPhone(texts ...string) string {
	for _, text := range texts {
		m := phonePattern.FindString(text)
		if m == "" {
			continue
		}
		digits := digitStrip.ReplaceAllString(m, "")
		digits = strings.TrimPrefix(digits, "+")
		digits = strings.TrimPrefix(digits, "1")
		if len(digits) != 10 {
			continue
		}
		return "+1" + digits
	}
	return ""
}
