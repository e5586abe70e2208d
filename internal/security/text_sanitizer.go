package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer reduces markup to plain text
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer builds a sanitizer that keeps no elements at all
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{policy: bluemonday.StrictPolicy()}
}

// Text strips every tag (script and style bodies included), unescapes entities and collapses whitespace
func (s *TextSanitizer) Text(raw string) string {
	// block-level boundaries would otherwise glue words together
	spaced := strings.NewReplacer("<", " <", ">", "> ").Replace(raw)
	stripped := html.UnescapeString(s.policy.Sanitize(spaced))
	return strings.Join(strings.Fields(stripped), " ")
}

// Truncate cuts s to at most maxRunes runes; maxRunes <= 0 means no limit
func Truncate(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes])
}
