// Package similarity scores how alike two words or phrases are on a bounded
// [0, 1] scale. It is the scoring core of the fuzzy command matcher.
//
// Word similarity is a weighted blend of three signals:
//
//  1. Edit similarity: 1 − levenshtein(a, b) / max(len(a), len(b)).
//  2. Phonetic similarity: multiset Jaccard overlap of the vowels (weight 0.4)
//     and of the consonants (weight 0.6) of both words. This is a coarse
//     heuristic, kept exactly as is because stored fixtures depend on it.
//  3. Semantic similarity: a bonus for words in the same static synonym group.
//
// Phrase similarity pairs every token of the first phrase greedily with the
// best still-unused token of the second phrase and normalises the summed
// score by the longer token count.
//
// A [Scorer] is immutable after construction and safe for concurrent use.
package similarity

import (
	"github.com/antzucaro/matchr"

	"github.com/MrWong99/motto/internal/text"
)

// Blend weights for [Scorer.Word].
const (
	editWeight     = 0.4
	phoneticWeight = 0.3
	semanticWeight = 0.3

	vowelWeight     = 0.4
	consonantWeight = 0.6
)

// Semantic scores returned by [Scorer.Semantic].
const (
	sameGroupScore = 1.0
	groupKeyScore  = 0.8
)

// SynonymGroup is a canonical word together with its synonyms.
type SynonymGroup struct {
	Key      string
	Synonyms []string
}

// DefaultSynonyms is the built-in synonym table.
var DefaultSynonyms = []SynonymGroup{
	{Key: "hello", Synonyms: []string{"hi", "hey", "greetings", "good morning"}},
	{Key: "goodbye", Synonyms: []string{"bye", "see you", "farewell", "later"}},
	{Key: "help", Synonyms: []string{"assist", "support", "aid", "guide"}},
	{Key: "stop", Synonyms: []string{"halt", "end", "finish", "quit"}},
	{Key: "start", Synonyms: []string{"begin", "launch", "initiate", "open"}},
}

// Option configures a [Scorer].
type Option func(*Scorer)

// WithSynonyms replaces the synonym table. Groups are consulted in order.
func WithSynonyms(groups []SynonymGroup) Option {
	return func(s *Scorer) {
		s.groups = groups
	}
}

// Scorer computes word and phrase similarities.
type Scorer struct {
	groups []SynonymGroup
}

// New returns a [Scorer] using [DefaultSynonyms] unless overridden.
func New(opts ...Option) *Scorer {
	s := &Scorer{groups: DefaultSynonyms}
	for _, o := range opts {
		o(s)
	}
	return s
}

var defaultScorer = New()

// Default returns the package-level [Scorer] built with default options.
func Default() *Scorer {
	return defaultScorer
}

// Levenshtein returns the edit distance between a and b counted in runes
// (insert, delete and substitute each cost 1).
func Levenshtein(a, b string) int {
	return matchr.Levenshtein(a, b)
}

// EditSimilarity returns 1 − levenshtein(a, b) / max(len(a), len(b)), with
// lengths in runes. Two empty strings are identical (1); one empty string
// against a non-empty one scores 0.
func EditSimilarity(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	longest := max(la, lb)
	if longest == 0 {
		return 1
	}
	if la == 0 || lb == 0 {
		return 0
	}
	return 1 - float64(Levenshtein(a, b))/float64(longest)
}

// PhoneticSimilarity compares the vowel and consonant letter multisets of a
// and b. Only ASCII letters take part; the comparison is case-sensitive, so
// callers pass normalised words.
func PhoneticSimilarity(a, b string) float64 {
	va, ca := letterCounts(a)
	vb, cb := letterCounts(b)
	return vowelWeight*jaccard(va, vb) + consonantWeight*jaccard(ca, cb)
}

// letterCounts splits s into vowel and consonant occurrence counts.
func letterCounts(s string) (vowels, consonants map[rune]int) {
	vowels = make(map[rune]int)
	consonants = make(map[rune]int)
	for _, r := range s {
		switch {
		case r == 'a' || r == 'e' || r == 'i' || r == 'o' || r == 'u':
			vowels[r]++
		case r >= 'a' && r <= 'z':
			consonants[r]++
		}
	}
	return vowels, consonants
}

// jaccard is the multiset Jaccard index Σmin(count) / Σmax(count). Two empty
// multisets score 1; exactly one empty multiset scores 0.
func jaccard(a, b map[rune]int) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var inter, union int
	for r, na := range a {
		nb := b[r]
		inter += min(na, nb)
		union += max(na, nb)
	}
	for r, nb := range b {
		if _, seen := a[r]; !seen {
			union += nb
		}
	}
	return float64(inter) / float64(union)
}

// Semantic returns 1.0 when a and b are both synonyms in the same group, 0.8
// when one of them is the group's key and the other one of its synonyms, and
// 0 otherwise. The first group that relates the two words decides.
func (s *Scorer) Semantic(a, b string) float64 {
	for _, g := range s.groups {
		inA, inB := contains(g.Synonyms, a), contains(g.Synonyms, b)
		switch {
		case inA && inB:
			return sameGroupScore
		case a == g.Key && inB, b == g.Key && inA:
			return groupKeyScore
		}
	}
	return 0
}

func contains(list []string, w string) bool {
	for _, s := range list {
		if s == w {
			return true
		}
	}
	return false
}

// Word returns the blended similarity of two single words in [0, 1].
// Identical words always score 1.
func (s *Scorer) Word(a, b string) float64 {
	if a == b {
		return 1
	}
	score := editWeight*EditSimilarity(a, b) +
		phoneticWeight*PhoneticSimilarity(a, b) +
		semanticWeight*s.Semantic(a, b)
	return clamp(score)
}

// Phrase returns the greedy best-match similarity of two phrases. Both are
// tokenised with [text.Tokens]. Each token of p1, in order, is paired with the
// highest-scoring token of p2 not yet used (earliest token on ties); the
// summed scores are divided by the larger token count.
func (s *Scorer) Phrase(p1, p2 string) float64 {
	return s.tokens(text.Tokens(p1), text.Tokens(p2))
}

func (s *Scorer) tokens(t1, t2 []string) float64 {
	longest := max(len(t1), len(t2))
	if longest == 0 {
		return 1
	}
	if len(t1) == 0 || len(t2) == 0 {
		return 0
	}

	used := make([]bool, len(t2))
	var total float64
	for _, w1 := range t1 {
		best, bestIdx := 0.0, -1
		for j, w2 := range t2 {
			if used[j] {
				continue
			}
			if sim := s.Word(w1, w2); sim > best {
				best, bestIdx = sim, j
			}
		}
		if bestIdx >= 0 {
			used[bestIdx] = true
			total += best
		}
	}
	return clamp(total / float64(longest))
}

// PhraseInContext is [Scorer.Phrase] plus the conversation-context bonus for
// p1, capped at 1.
func (s *Scorer) PhraseInContext(p1, p2 string, c Context) float64 {
	return clamp(s.Phrase(p1, p2) + s.Bonus(p1, c))
}

func clamp(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
