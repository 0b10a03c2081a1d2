package config

import (
	"github.com/MrWong99/motto/internal/assistant"
	"github.com/MrWong99/motto/internal/compound"
	"github.com/MrWong99/motto/internal/dispatch"
	"github.com/MrWong99/motto/internal/matcher"
	"github.com/MrWong99/motto/internal/resilience"
	"github.com/MrWong99/motto/internal/wakeword"
)

// MatcherConfig returns the [matcher.Config] described by c.
func (c *Config) MatcherConfig() matcher.Config {
	return matcher.Config{
		MinConfidence:   c.Matcher.MinConfidence,
		CacheSize:       c.Matcher.CacheSize,
		SuggestLimit:    c.Suggestions.Limit,
		SuggestMinScore: c.Suggestions.Threshold,
	}
}

// DispatchConfig returns the [dispatch.Config] described by c.
func (c *Config) DispatchConfig() dispatch.Config {
	return dispatch.Config{
		HandlerTimeout: c.Dispatch.HandlerTimeout,
		HistorySize:    c.Matcher.HistorySize,
		Breaker: resilience.CircuitBreakerConfig{
			MaxFailures:  c.Dispatch.Breaker.MaxFailures,
			ResetTimeout: c.Dispatch.Breaker.ResetTimeout,
		},
	}
}

// WakeFilter builds the wake-word filter described by c.
func (c *Config) WakeFilter() *wakeword.Filter {
	return wakeword.New(wakeword.Config{
		Phrase:   c.Wake.Phrase,
		Custom:   c.Wake.Custom,
		Stop:     c.Wake.Stop,
		Help:     c.Wake.Help,
		Phonetic: c.Wake.Phonetic,
	})
}

// Splitter builds the compound splitter described by c.
func (c *Config) Splitter() *compound.Splitter {
	return compound.New(c.Compound.KnownApps...)
}

// SessionConfig returns the [assistant.Config] described by c.
func (c *Config) SessionConfig() assistant.Config {
	retries := c.Recognition.MaxRetries
	if retries == 0 {
		// resilience treats zero as "use the default".
		retries = -1
	}
	return assistant.Config{
		MinRecognitionConfidence: c.Recognition.MinConfidence,
		StopOnFailure:            c.Compound.StopOnFailure,
		Favorites:                c.Matcher.Favorites,
		SuggestLimit:             c.Suggestions.Limit,
		Retry: resilience.RetryConfig{
			Name:       "recognizer",
			MaxRetries: retries,
			Backoff:    c.Recognition.Backoff,
			MaxBackoff: c.Recognition.MaxBackoff,
		},
	}
}

// SessionOptions returns the assistant options that carry c's wake phrases
// and known apps.
func (c *Config) SessionOptions() []assistant.Option {
	return []assistant.Option{
		assistant.WithWakeFilter(c.WakeFilter()),
		assistant.WithSplitter(c.Splitter()),
	}
}
