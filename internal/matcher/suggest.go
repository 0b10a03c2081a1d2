package matcher

import (
	"cmp"
	"context"
	"slices"

	"github.com/MrWong99/motto/internal/text"
)

// Suggestion is a near-miss command offered after a failed match.
type Suggestion struct {
	Key   string  `json:"key"`
	Score float64 `json:"score"`
}

// Suggest scores utterance against every key and alias and returns up to
// limit commands scoring at least the configured minimum, best first. Ties
// keep catalog order. A non-positive limit uses the configured default.
func (m *Matcher) Suggest(ctx context.Context, utterance string, limit int) []Suggestion {
	if limit <= 0 {
		limit = m.cfg.SuggestLimit
	}
	key := text.Normalize(utterance)
	if key == "" {
		return nil
	}

	// One entry per command keeps the best of its key and aliases, so the
	// slice is already deduplicated and in catalog order.
	var out []Suggestion
	for e := range m.catalog.All() {
		score := m.scorer.Phrase(key, e.Key)
		for _, a := range e.Aliases {
			score = max(score, m.scorer.Phrase(key, a))
		}
		if score >= m.cfg.SuggestMinScore {
			out = append(out, Suggestion{Key: e.Key, Score: score})
		}
	}

	slices.SortStableFunc(out, func(a, b Suggestion) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	m.metrics.RecordSuggestions(ctx, len(out))
	return out
}

// NearMiss returns just the keys of [Matcher.Suggest].
func (m *Matcher) NearMiss(ctx context.Context, utterance string, limit int) []string {
	sugg := m.Suggest(ctx, utterance, limit)
	keys := make([]string, len(sugg))
	for i, s := range sugg {
		keys[i] = s.Key
	}
	return keys
}
