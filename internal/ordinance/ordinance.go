// Package ordinance extracts municipal code sections from Municode
// documents, either rendered HTML pages or the Word exports Municode
// serves when a page is a client-side shell.
package ordinance

import (
	"regexp"
	"strings"
)

// Section is one extracted ordinance section, the unit the API serves.
type Section struct {
	SectionNumber string   `json:"section_number"`
	Title         string   `json:"title"`
	URL           string   `json:"url"`
	Snippet       string   `json:"snippet"`
	Text          string   `json:"text"`
	Headings      []string `json:"headings"`
}

const snippetRunes = 300

// Municode serves an empty SPA shell to non-browser clients. Anything
// this short or containing only the library banner is a placeholder,
// not ordinance text.
const placeholderMinLen = 120

var sectionNumberRe = regexp.MustCompile(`(?i)(?:sec(?:tion)?\.?\s*)(\d+[A-Za-z]?(?:[-.]\d+[A-Za-z]?)*)`)

// makeSnippet returns the first snippetRunes runes of text with an
// ellipsis when truncated.
func makeSnippet(text string) string {
	r := []rune(strings.TrimSpace(text))
	if len(r) <= snippetRunes {
		return string(r)
	}
	return string(r[:snippetRunes]) + "…"
}

// IsPlaceholder reports whether extracted page text is the Municode SPA
// shell rather than real ordinance content.
func IsPlaceholder(text string) bool {
	t := strings.TrimSpace(text)
	if len(t) < placeholderMinLen {
		return true
	}
	return strings.Contains(strings.ToLower(t), "municode library") && len(t) < 2*placeholderMinLen
}

// findSectionNumber scans headings first, then body text, for a section
// designator like "Sec. 110-363".
func findSectionNumber(headings []string, text string) string {
	for _, h := range headings {
		if m := sectionNumberRe.FindStringSubmatch(h); m != nil {
			return m[1]
		}
	}
	if m := sectionNumberRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

// collapseSpace normalizes runs of whitespace to single spaces and trims.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
