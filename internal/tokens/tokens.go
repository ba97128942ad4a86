// Package tokens expands date placeholders in path and filename patterns.
//
// Recognized placeholders: {yyyy} {yy} {mm} {dd}. Everything else, including
// malformed or unknown brace sequences, passes through unchanged; pattern
// syntax is validated at configuration-creation time, so resolution fails
// open rather than closed.
package tokens

import (
	"fmt"
	"strings"
	"time"
)

var replacements = []string{"{yyyy}", "{yy}", "{mm}", "{dd}"}

// Resolve fills the recognized placeholders in pattern from the calendar
// date of at. Callers pass at already localized to the configuration's
// schedule timezone.
func Resolve(pattern string, at time.Time) string {
	if !ContainsTokens(pattern) {
		return pattern
	}
	year, month, day := at.Date()
	r := strings.NewReplacer(
		"{yyyy}", fmt.Sprintf("%04d", year),
		"{yy}", fmt.Sprintf("%02d", year%100),
		"{mm}", fmt.Sprintf("%02d", int(month)),
		"{dd}", fmt.Sprintf("%02d", day),
	)
	return r.Replace(pattern)
}

// ContainsTokens reports whether pattern embeds any recognized placeholder.
// Patterns without tokens are literals and never need per-run re-resolution.
func ContainsTokens(pattern string) bool {
	for _, t := range replacements {
		if strings.Contains(pattern, t) {
			return true
		}
	}
	return false
}
