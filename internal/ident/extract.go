// Package ident pulls canonical student identifiers out of free text such as
// concatenated roster cells or submission filenames.
package ident

import (
	"fmt"
	"regexp"

	"golang.org/x/text/width"
)

// DefaultLength is the identifier length used by the reference deployment.
const DefaultLength = 9

// Extractor finds the first run of Length consecutive ASCII digits.
// The zero value is not usable; build one with New.
type Extractor struct {
	length int
	re     *regexp.Regexp
}

// New returns an Extractor for identifiers of the given length.
// A non-positive length falls back to DefaultLength.
func New(length int) *Extractor {
	if length <= 0 {
		length = DefaultLength
	}
	return &Extractor{
		length: length,
		re:     regexp.MustCompile(fmt.Sprintf(`[0-9]{%d}`, length)),
	}
}

// Length reports the identifier length this extractor matches.
func (e *Extractor) Length() int { return e.length }

// Extract returns the leftmost window of Length digits in text.
// A longer digit run yields its first Length digits. Full-width digits
// (０-９, common in CJK filenames) are folded to ASCII first, so the
// returned id is always ASCII.
func (e *Extractor) Extract(text string) (string, bool) {
	id := e.re.FindString(width.Narrow.String(text))
	return id, id != ""
}
