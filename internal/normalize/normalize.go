// Package normalize defines the single notion of textual equality used by
// every matcher in procwatch.
//
// Two strings are considered the same catalog label when [Normalize] maps
// them to the same value. The containment helpers build the fuzzy tier on
// top of the same normal form so that exact, alias and fuzzy matching can
// never disagree about what a label looks like.
package normalize

import (
	"strings"
	"unicode/utf8"
)

// separators are replaced by a single space before whitespace is collapsed.
var separators = strings.NewReplacer("-", " ", "_", " ")

// Normalize trims, lowercases, turns hyphens and underscores into spaces and
// collapses internal whitespace runs to one space.
//
// Normalize is total and idempotent: Normalize(Normalize(s)) == Normalize(s).
// The empty string normalizes to itself.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	s := strings.ToLower(strings.TrimSpace(text))
	s = separators.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// Ptr normalizes an optional value. A nil pointer normalizes to "".
func Ptr(text *string) string {
	if text == nil {
		return ""
	}
	return Normalize(*text)
}

// Collapse trims and collapses whitespace without changing case. It is used
// for display values that keep the producer's casing.
func Collapse(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Contains reports whether one normalized form contains the other.
//
// Both inputs are normalized first. Empty values never match, and the shorter
// side must be at least minLen runes long so that one- or two-letter labels
// cannot match almost any text.
func Contains(a, b string, minLen int) bool {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return false
	}
	shorter := na
	if utf8.RuneCountInString(nb) < utf8.RuneCountInString(na) {
		shorter = nb
	}
	if utf8.RuneCountInString(shorter) < minLen {
		return false
	}
	return strings.Contains(na, nb) || strings.Contains(nb, na)
}

// ContainsPhrase reports whether phrase occurs in text on word boundaries,
// after both are normalized. "hiring" is a phrase of "hiring for acme" but
// not of "rehiring".
func ContainsPhrase(text, phrase string) bool {
	nt, np := Normalize(text), Normalize(phrase)
	if nt == "" || np == "" {
		return false
	}
	return strings.Contains(" "+nt+" ", " "+np+" ")
}

// LengthRatio returns len(shorter)/len(longer) of the normalized forms, in
// runes. It is the score of a containment match: a label covering the whole
// text scores 1.0.
func LengthRatio(a, b string) float64 {
	la := utf8.RuneCountInString(Normalize(a))
	lb := utf8.RuneCountInString(Normalize(b))
	if la == 0 || lb == 0 {
		return 0
	}
	if la > lb {
		la, lb = lb, la
	}
	return float64(la) / float64(lb)
}
