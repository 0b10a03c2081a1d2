// Package matcher resolves free-form utterances to catalog commands.
//
// Resolution runs a fixed precedence chain and stops at the first hit:
//
//  1. the FIFO result cache, keyed by normalised text
//  2. exact key match (score [ExactScore])
//  3. alias match, first entry in declaration order (score [AliasScore])
//  4. fuzzy phrase similarity over keys and aliases, accepted at or above
//     the minimum confidence
//  5. ordered keyword inference rules
//
// Every outcome, including "no match", is cached.
package matcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrWong99/motto/internal/catalog"
	"github.com/MrWong99/motto/internal/observe"
	"github.com/MrWong99/motto/internal/similarity"
	"github.com/MrWong99/motto/internal/text"
)

// Defaults applied by [New] for zero-valued [Config] fields.
const (
	DefaultMinConfidence   = 0.8
	DefaultSuggestLimit    = 3
	DefaultSuggestMinScore = 0.6
)

// Config tunes a [Matcher].
type Config struct {
	// MinConfidence is the lowest fuzzy score accepted as a match.
	MinConfidence float64

	// CacheSize bounds the result cache.
	CacheSize int

	// SuggestLimit is the default number of suggestions.
	SuggestLimit int

	// SuggestMinScore is the lowest score a suggestion may have.
	SuggestMinScore float64
}

func (c *Config) applyDefaults() {
	if c.MinConfidence <= 0 {
		c.MinConfidence = DefaultMinConfidence
	}
	if c.CacheSize <= 0 {
		c.CacheSize = DefaultCacheSize
	}
	if c.SuggestLimit <= 0 {
		c.SuggestLimit = DefaultSuggestLimit
	}
	if c.SuggestMinScore <= 0 {
		c.SuggestMinScore = DefaultSuggestMinScore
	}
}

// Option configures a [Matcher].
type Option func(*Matcher)

// WithScorer replaces the default similarity scorer.
func WithScorer(s *similarity.Scorer) Option {
	return func(m *Matcher) { m.scorer = s }
}

// WithRules replaces the built-in inference rules.
func WithRules(rules []Rule) Option {
	return func(m *Matcher) { m.rules = rules }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(met *observe.Metrics) Option {
	return func(m *Matcher) { m.metrics = met }
}

// Matcher resolves utterances against a catalog. It is safe for concurrent
// use; the only mutable state is the cache.
type Matcher struct {
	catalog *catalog.Catalog
	cfg     Config
	scorer  *similarity.Scorer
	cache   *Cache
	rules   []Rule
	metrics *observe.Metrics
}

// New returns a Matcher over cat.
func New(cat *catalog.Catalog, cfg Config, opts ...Option) *Matcher {
	cfg.applyDefaults()
	m := &Matcher{
		catalog: cat,
		cfg:     cfg,
		scorer:  similarity.Default(),
		rules:   DefaultRules,
	}
	for _, o := range opts {
		o(m)
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	m.cache = NewCache(cfg.CacheSize)

	// Rules pointing at commands outside the catalog can never fire.
	rules := make([]Rule, 0, len(m.rules))
	for _, r := range m.rules {
		if _, ok := cat.Lookup(r.Target); !ok {
			slog.Warn("matcher: dropping inference rule with unknown target", "rule", r.Name, "target", r.Target)
			continue
		}
		rules = append(rules, r)
	}
	m.rules = rules
	return m
}

// Catalog returns the catalog the matcher resolves against.
func (m *Matcher) Catalog() *catalog.Catalog {
	return m.catalog
}

// Cache exposes the result cache.
func (m *Matcher) Cache() *Cache {
	return m.cache
}

// Match resolves utterance to a command. ok is false when nothing matched.
// The returned result is shared with the cache and must not be modified.
//
// conv only influences fuzzy scoring. Because results are cached by text
// alone, a cached fuzzy outcome is reused even if the context has changed
// since.
func (m *Matcher) Match(ctx context.Context, utterance string, conv similarity.Context) (res *Result, ok bool) {
	start := time.Now()
	key := text.Normalize(utterance)
	if key == "" {
		return nil, false
	}

	if cached, found := m.cache.Get(key); found {
		m.record(ctx, cached, true, start)
		return cached, cached != nil
	}

	res = m.resolve(key, conv)
	if evicted, did := m.cache.Put(key, res); did {
		m.metrics.RecordCacheEviction(ctx)
		observe.Logger(ctx).Debug("matcher: cache eviction", "evicted", evicted)
	}
	m.record(ctx, res, false, start)

	if res != nil {
		observe.Logger(ctx).Debug("matcher: resolved",
			"text", key,
			"command", res.Command.Key,
			"type", res.Type.String(),
			"score", res.Score,
		)
	}
	return res, res != nil
}

func (m *Matcher) record(ctx context.Context, res *Result, cached bool, start time.Time) {
	typ := "none"
	if res != nil {
		typ = res.Type.String()
	}
	m.metrics.RecordMatch(ctx, typ, cached, time.Since(start))
}

// resolve runs the uncached precedence chain on normalised text.
func (m *Matcher) resolve(key string, conv similarity.Context) *Result {
	if e, ok := m.catalog.Lookup(key); ok {
		return &Result{Command: e, Score: ExactScore, Type: Exact}
	}

	for e := range m.catalog.All() {
		for _, a := range e.Aliases {
			if a == key {
				return &Result{Command: e, Score: AliasScore, Type: Alias}
			}
		}
	}

	if r := m.fuzzy(key, conv); r != nil {
		return r
	}

	for _, rule := range m.rules {
		if !rule.When(key) {
			continue
		}
		e, _ := m.catalog.Lookup(rule.Target)
		return &Result{Command: e, Score: rule.Confidence, Type: Inferred, Rule: rule.Name}
	}
	return nil
}

func (m *Matcher) fuzzy(key string, conv similarity.Context) *Result {
	var (
		best      catalog.Entry
		bestScore float64
		found     bool
	)
	for e := range m.catalog.All() {
		score := m.scorer.PhraseInContext(key, e.Key, conv)
		for _, a := range e.Aliases {
			score = max(score, m.scorer.PhraseInContext(key, a, conv))
		}
		if score > bestScore {
			best, bestScore, found = e, score, true
		}
	}
	if !found || bestScore < m.cfg.MinConfidence {
		return nil
	}
	return &Result{Command: best, Score: bestScore, Type: Fuzzy}
}
