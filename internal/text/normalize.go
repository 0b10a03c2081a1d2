// Package text normalises raw utterances into the canonical lowercase,
// punctuation-free form used for catalog lookups and similarity scoring.
//
// All functions are pure and total: they never fail and accept arbitrary
// UTF-8 (invalid sequences are treated as separators).
package text

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldMarks decomposes accented runes and drops the combining marks so that
// "café" and "cafe" normalise identically.
var foldMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize returns the canonical form of s: lowercase, diacritics folded,
// every rune that is not a letter or digit replaced by a space, and runs of
// whitespace collapsed to a single space with no leading or trailing space.
//
// Normalize("  Go to, HOME!! ") == "go to home".
func Normalize(s string) string {
	return strings.Join(Tokens(s), " ")
}

// Tokens splits s into normalised word tokens. An empty or punctuation-only
// input yields an empty (nil) slice.
func Tokens(s string) []string {
	if s == "" {
		return nil
	}
	return strings.FieldsFunc(Fold(strings.ToLower(s)), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Fold removes diacritics from s and keeps everything else, case and
// punctuation included.
func Fold(s string) string {
	folded, _, err := transform.String(foldMarks, s)
	if err != nil {
		return s
	}
	return folded
}

// Clean trims s and collapses internal whitespace while preserving case and
// punctuation. It is used where slot values must keep the speaker's casing.
func Clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ContainsPhrase reports whether the normalised phrase occurs in the
// normalised text on word boundaries. Both arguments are normalised first,
// so ContainsPhrase("Take me HOME", "take me") is true while
// ContainsPhrase("good morning", "go") is false.
func ContainsPhrase(text, phrase string) bool {
	p := Normalize(phrase)
	if p == "" {
		return false
	}
	return strings.Contains(" "+Normalize(text)+" ", " "+p+" ")
}
