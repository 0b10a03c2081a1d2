// Package wakeword gates utterances on a spoken wake phrase and recognises
// the session-control phrases (stop listening, help).
//
// Literal detection is a case-insensitive substring test on normalised text.
// With phonetic detection enabled, a window of tokens that sounds like a
// wake phrase also counts: every token pair must share a Double Metaphone
// code and the window must be Jaro-Winkler close to the phrase, so
// "hey moto" wakes "hey motto".
package wakeword

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/motto/internal/text"
)

// Built-in phrases.
const (
	DefaultPhrase     = "hey motto"
	DefaultStopPhrase = "stop listening"
	DefaultHelpPhrase = "help"

	defaultPhoneticThreshold = 0.85
)

// Config lists the phrases a [Filter] recognises.
type Config struct {
	// Phrase is the primary wake phrase.
	Phrase string

	// Custom are additional wake phrases.
	Custom []string

	// Stop phrases put an awake session back to sleep.
	Stop []string

	// Help phrases ask for the command list.
	Help []string

	// Phonetic enables sound-alike wake detection.
	Phonetic bool

	// PhoneticThreshold is the minimum Jaro-Winkler score of a sound-alike
	// window. Zero uses 0.85.
	PhoneticThreshold float64
}

// DefaultConfig returns the built-in phrases with phonetic detection off.
func DefaultConfig() Config {
	return Config{
		Phrase: DefaultPhrase,
		Stop:   []string{DefaultStopPhrase},
		Help:   []string{DefaultHelpPhrase},
	}
}

type wakePhrase struct {
	norm   string
	tokens []string
	codes  [][]string
	strip  *regexp.Regexp
}

// Filter is immutable after construction and safe for concurrent use.
type Filter struct {
	wake      []wakePhrase
	stop      []string
	help      []string
	phonetic  bool
	threshold float64
}

// New builds a Filter. Blank phrases are ignored.
func New(cfg Config) *Filter {
	f := &Filter{
		phonetic:  cfg.Phonetic,
		threshold: cfg.PhoneticThreshold,
	}
	if f.threshold <= 0 {
		f.threshold = defaultPhoneticThreshold
	}

	for _, p := range append([]string{cfg.Phrase}, cfg.Custom...) {
		tokens := text.Tokens(p)
		if len(tokens) == 0 {
			continue
		}
		quoted := make([]string, len(tokens))
		codes := make([][]string, len(tokens))
		for i, t := range tokens {
			quoted[i] = regexp.QuoteMeta(t)
			codes[i] = metaphone(t)
		}
		f.wake = append(f.wake, wakePhrase{
			norm:   strings.Join(tokens, " "),
			tokens: tokens,
			codes:  codes,
			strip:  regexp.MustCompile(`(?i)` + strings.Join(quoted, `[^\p{L}\p{N}]+`)),
		})
	}
	f.stop = normalizeAll(cfg.Stop)
	f.help = normalizeAll(cfg.Help)
	return f
}

func normalizeAll(phrases []string) []string {
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if n := text.Normalize(p); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// Phrases returns the normalised wake phrases, primary first.
func (f *Filter) Phrases() []string {
	out := make([]string, len(f.wake))
	for i, w := range f.wake {
		out[i] = w.norm
	}
	return out
}

// ContainsWakeWord reports whether utterance contains any wake phrase.
func (f *Filter) ContainsWakeWord(utterance string) bool {
	norm := text.Normalize(utterance)
	if norm == "" {
		return false
	}
	for _, w := range f.wake {
		if strings.Contains(norm, w.norm) {
			return true
		}
	}
	if !f.phonetic {
		return false
	}
	_, _, ok := f.soundAlike(strings.Fields(norm))
	return ok
}

// StripWakeWord removes every occurrence of every wake phrase and returns
// the remaining command text with leading punctuation and surrounding
// whitespace trimmed. Phrases match with diacritics folded, as in
// [Filter.ContainsWakeWord]; case and accents of the remainder are
// preserved.
func (f *Filter) StripWakeWord(utterance string) string {
	out := utterance
	removed := false
	for _, w := range f.wake {
		var ok bool
		if out, ok = w.remove(out); ok {
			removed = true
		}
	}
	if !removed && f.phonetic {
		tokens := text.Tokens(utterance)
		if start, end, ok := f.soundAlike(tokens); ok {
			out = strings.Join(append(tokens[:start:start], tokens[end:]...), " ")
		}
	}
	out = strings.TrimLeftFunc(out, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return text.Clean(out)
}

// remove replaces every occurrence of the phrase in s with a space. Matching
// runs on the folded form of s; the cut is made in s itself.
func (w wakePhrase) remove(s string) (string, bool) {
	folded, src := foldOffsets(s)
	locs := w.strip.FindAllStringIndex(folded, -1)
	if locs == nil {
		return s, false
	}
	var b strings.Builder
	last := 0
	for _, loc := range locs {
		b.WriteString(s[last:src[loc[0]]])
		b.WriteByte(' ')
		last = src[loc[1]]
	}
	b.WriteString(s[last:])
	return b.String(), true
}

// foldOffsets folds s rune by rune and returns, for every byte of the
// folded string plus its end, the offset in s of the rune it came from.
// Combining marks fold to nothing and are skipped.
func foldOffsets(s string) (string, []int) {
	var b strings.Builder
	src := make([]int, 0, len(s)+1)
	for i, r := range s {
		f := text.Fold(string(r))
		b.WriteString(f)
		for range len(f) {
			src = append(src, i)
		}
	}
	return b.String(), append(src, len(s))
}

// IsStop reports whether utterance contains a stop phrase on word
// boundaries.
func (f *Filter) IsStop(utterance string) bool {
	return containsAny(utterance, f.stop)
}

// IsHelp reports whether utterance contains a help phrase on word
// boundaries.
func (f *Filter) IsHelp(utterance string) bool {
	return containsAny(utterance, f.help)
}

func containsAny(utterance string, phrases []string) bool {
	for _, p := range phrases {
		if text.ContainsPhrase(utterance, p) {
			return true
		}
	}
	return false
}

// soundAlike finds the first token window [start, end) that sounds like a
// wake phrase.
func (f *Filter) soundAlike(tokens []string) (start, end int, ok bool) {
	for _, w := range f.wake {
		n := len(w.tokens)
		for i := 0; i+n <= len(tokens); i++ {
			window := tokens[i : i+n]
			if !codesMatch(window, w.codes) {
				continue
			}
			if matchr.JaroWinkler(strings.Join(window, " "), w.norm, false) >= f.threshold {
				return i, i + n, true
			}
		}
	}
	return 0, 0, false
}

// codesMatch reports whether every window token shares a Double Metaphone
// code with the phrase token at the same position.
func codesMatch(window []string, codes [][]string) bool {
	for i, t := range window {
		if !overlap(metaphone(t), codes[i]) {
			return false
		}
	}
	return true
}

// metaphone returns the non-empty Double Metaphone codes of word. Words
// without consonant codes fall back to the word itself so vowel-only
// tokens still compare.
func metaphone(word string) []string {
	p, s := matchr.DoubleMetaphone(word)
	var codes []string
	if p != "" {
		codes = append(codes, p)
	}
	if s != "" && s != p {
		codes = append(codes, s)
	}
	if len(codes) == 0 {
		codes = append(codes, word)
	}
	return codes
}

func overlap(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
