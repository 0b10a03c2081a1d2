package matcher

import (
	"regexp"

	"github.com/MrWong99/motto/internal/text"
)

// Predicate reports whether a normalised utterance satisfies a rule.
type Predicate func(normalized string) bool

// Rule maps utterances satisfying When to the catalog command Target. Rules
// are evaluated in order and the first hit wins.
type Rule struct {
	Name       string
	When       Predicate
	Target     string
	Confidence float64
}

// AnyPhrase matches when at least one phrase occurs on word boundaries.
func AnyPhrase(phrases ...string) Predicate {
	return func(s string) bool {
		for _, p := range phrases {
			if text.ContainsPhrase(s, p) {
				return true
			}
		}
		return false
	}
}

// All matches when every predicate matches.
func All(preds ...Predicate) Predicate {
	return func(s string) bool {
		for _, p := range preds {
			if !p(s) {
				return false
			}
		}
		return true
	}
}

// Regexp matches when re matches the normalised utterance.
func Regexp(re *regexp.Regexp) Predicate {
	return re.MatchString
}

var navVerbs = AnyPhrase("go", "go to", "open", "navigate", "take me", "bring me", "launch", "switch to", "show me")

// Confidences for the built-in rule families.
const (
	navConfidence     = 0.75
	keywordConfidence = 0.7
	patternConfidence = 0.65
)

// DefaultRules is the built-in inference table: navigation verb plus screen
// first, then single keywords, then loose phrasings.
var DefaultRules = []Rule{
	{Name: "navigate-home", When: All(navVerbs, AnyPhrase("home", "main", "start screen")), Target: "go to home", Confidence: navConfidence},
	{Name: "navigate-profile", When: All(navVerbs, AnyPhrase("profile", "account")), Target: "go to profile", Confidence: navConfidence},
	{Name: "navigate-settings", When: All(navVerbs, AnyPhrase("settings", "setting", "preferences", "options")), Target: "go to settings", Confidence: navConfidence},
	{Name: "navigate-collections", When: All(navVerbs, AnyPhrase("collections", "collection")), Target: "show collections", Confidence: navConfidence},
	{Name: "navigate-stats", When: All(navVerbs, AnyPhrase("stats", "statistics", "analytics")), Target: "show stats", Confidence: navConfidence},

	{Name: "keyword-settings", When: AnyPhrase("settings", "setting", "preferences", "options", "configuration"), Target: "go to settings", Confidence: keywordConfidence},
	{Name: "keyword-profile", When: AnyPhrase("profile", "account"), Target: "go to profile", Confidence: keywordConfidence},
	{Name: "keyword-home", When: AnyPhrase("home", "main screen", "homepage"), Target: "go to home", Confidence: keywordConfidence},
	{Name: "keyword-performance", When: AnyPhrase("performance"), Target: "show performance", Confidence: keywordConfidence},
	{Name: "keyword-stats", When: AnyPhrase("stats", "statistics", "analytics", "numbers"), Target: "show stats", Confidence: keywordConfidence},
	{Name: "keyword-volume-up", When: AnyPhrase("louder", "turn up", "turn it up", "raise volume", "volume up"), Target: "volume up", Confidence: keywordConfidence},
	{Name: "keyword-volume-down", When: AnyPhrase("quieter", "softer", "turn down", "turn it down", "lower volume", "volume down"), Target: "volume down", Confidence: keywordConfidence},
	{Name: "keyword-play", When: AnyPhrase("play", "resume", "unpause"), Target: "play", Confidence: keywordConfidence},
	{Name: "keyword-pause", When: AnyPhrase("pause", "stop", "hold on", "wait"), Target: "pause", Confidence: keywordConfidence},
	{Name: "keyword-next", When: AnyPhrase("next", "skip", "forward"), Target: "next", Confidence: keywordConfidence},
	{Name: "keyword-previous", When: AnyPhrase("previous", "go back", "last one", "rewind"), Target: "previous", Confidence: keywordConfidence},
	{Name: "keyword-create-collection", When: All(AnyPhrase("create", "new", "make", "start"), AnyPhrase("collection")), Target: "create collection", Confidence: keywordConfidence},
	{Name: "keyword-add-collection", When: All(AnyPhrase("add", "save", "put"), AnyPhrase("collection")), Target: "add to collection", Confidence: keywordConfidence},
	{Name: "keyword-collections", When: AnyPhrase("collections"), Target: "show collections", Confidence: keywordConfidence},
	{Name: "keyword-help", When: AnyPhrase("help", "assist", "what can i say", "how does this work"), Target: "help", Confidence: keywordConfidence},

	{Name: "pattern-what-can", When: Regexp(regexp.MustCompile(`^what (can|do) (you|i) (do|say)\b`)), Target: "help", Confidence: patternConfidence},
	{Name: "pattern-show-me", When: Regexp(regexp.MustCompile(`^(show|tell) me (my |the )?(progress|results|score)`)), Target: "show stats", Confidence: patternConfidence},
	{Name: "pattern-too-loud", When: Regexp(regexp.MustCompile(`\btoo (loud|noisy)\b`)), Target: "volume down", Confidence: patternConfidence},
	{Name: "pattern-cant-hear", When: Regexp(regexp.MustCompile(`\b(can t|cannot|can not) hear\b`)), Target: "volume up", Confidence: patternConfidence},
}
