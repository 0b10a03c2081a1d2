package similarity

import "github.com/MrWong99/motto/internal/text"

// Context bonuses added by [Scorer.Bonus].
const (
	continuityBonus = 0.1
	favoriteBonus   = 0.2

	// continuityThreshold is how close an utterance must be to the previous
	// command before it counts as a continuation.
	continuityThreshold = 0.8
)

// Context is the conversation state used as a soft re-ranking signal. It
// never filters candidates.
type Context struct {
	// Recent holds the most recently executed command keys, oldest first.
	Recent []string

	// Favorites lists phrases the user says often.
	Favorites []string
}

// Last returns the most recent command key, or "" when there is none.
func (c Context) Last() string {
	if len(c.Recent) == 0 {
		return ""
	}
	return c.Recent[len(c.Recent)-1]
}

// Bonus returns the additive context bonus for the utterance phrase:
// 0.1 when it closely resembles the previous command and 0.2 when it is one
// of the favourite phrases. The caller caps the final score at 1.
func (s *Scorer) Bonus(phrase string, c Context) float64 {
	var bonus float64
	if last := c.Last(); last != "" && s.Phrase(phrase, last) > continuityThreshold {
		bonus += continuityBonus
	}
	if len(c.Favorites) > 0 {
		norm := text.Normalize(phrase)
		for _, f := range c.Favorites {
			if text.Normalize(f) == norm {
				bonus += favoriteBonus
				break
			}
		}
	}
	return bonus
}
