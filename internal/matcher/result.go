package matcher

import (
	"fmt"

	"github.com/MrWong99/motto/internal/catalog"
)

// Fixed scores for the non-fuzzy strategies. Fuzzy scores lie in
// [MinConfidence, 1].
const (
	ExactScore = 1.0
	AliasScore = 0.95
)

// MatchType records which strategy resolved an utterance.
type MatchType int

const (
	// Exact means the normalised utterance equals a catalog key.
	Exact MatchType = iota + 1

	// Alias means the normalised utterance equals one of an entry's aliases.
	Alias

	// Fuzzy means the best phrase similarity cleared the minimum confidence.
	Fuzzy

	// Inferred means a keyword rule mapped the utterance to a command.
	Inferred
)

// String returns the lowercase name of the match type.
func (t MatchType) String() string {
	switch t {
	case Exact:
		return "exact"
	case Alias:
		return "alias"
	case Fuzzy:
		return "fuzzy"
	case Inferred:
		return "inferred"
	default:
		return "none"
	}
}

// MarshalText encodes the match type as its name.
func (t MatchType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText parses a match type name.
func (t *MatchType) UnmarshalText(b []byte) error {
	switch string(b) {
	case "exact":
		*t = Exact
	case "alias":
		*t = Alias
	case "fuzzy":
		*t = Fuzzy
	case "inferred":
		*t = Inferred
	default:
		return fmt.Errorf("matcher: unknown match type %q", b)
	}
	return nil
}

// Result is a resolved command. It is a value type and is never mutated
// after the matcher creates it.
type Result struct {
	// Command is the matched catalog entry.
	Command catalog.Entry

	// Score is the match confidence in [0, 1].
	Score float64

	// Type is the strategy that produced the match.
	Type MatchType

	// Rule names the inference rule for [Inferred] matches.
	Rule string
}

// Key is shorthand for r.Command.Key.
func (r Result) Key() string {
	return r.Command.Key
}
