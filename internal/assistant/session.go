// Package assistant runs the voice-command pipeline for one conversation:
// wake-word gating, session control phrases, compound splitting, matching,
// dispatch and near-miss suggestions.
package assistant

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/motto/internal/compound"
	"github.com/MrWong99/motto/internal/dispatch"
	"github.com/MrWong99/motto/internal/matcher"
	"github.com/MrWong99/motto/internal/observe"
	"github.com/MrWong99/motto/internal/resilience"
	"github.com/MrWong99/motto/internal/similarity"
	"github.com/MrWong99/motto/internal/text"
	"github.com/MrWong99/motto/internal/wakeword"
)

// Discard reasons reported in [Outcome.Discarded].
const (
	DiscardEmpty         = "empty"
	DiscardLowConfidence = "low_confidence"
	DiscardNoWakeWord    = "no_wake_word"
)

// helpCommand is the catalog key a help phrase resolves to.
const helpCommand = "help"

// Transcript is one recognised utterance.
type Transcript struct {
	Text string `json:"text"`

	// Confidence is the recognizer's confidence in [0, 1]. Zero means the
	// source does not report one and is never rejected.
	Confidence float64 `json:"confidence,omitempty"`
}

// StepOutcome is the result of one executed (or attempted) step.
type StepOutcome struct {
	// Utterance is the text that was matched.
	Utterance string `json:"utterance"`

	// Step holds the compound slots; zero for single-intent input.
	Step compound.Step `json:"step"`

	// Match is nil when nothing matched.
	Match *matcher.Result `json:"-"`

	// Result is nil when the step was not dispatched.
	Result *dispatch.Result `json:"result,omitempty"`

	// Suggestions are offered when nothing matched.
	Suggestions []matcher.Suggestion `json:"suggestions,omitempty"`
}

// Matched reports whether the step resolved to a command.
func (s StepOutcome) Matched() bool {
	return s.Match != nil
}

// Succeeded reports whether the step was dispatched successfully.
func (s StepOutcome) Succeeded() bool {
	return s.Result != nil && s.Result.Success
}

// Outcome summarises what [Session.Process] did with a transcript.
type Outcome struct {
	// Input is the cleaned transcript text.
	Input string `json:"input"`

	// Command is the text left after stripping wake phrases.
	Command string `json:"command,omitempty"`

	// Discarded names why the transcript was dropped before matching.
	Discarded string `json:"discarded,omitempty"`

	// Woke is set when the transcript contained a wake phrase.
	Woke bool `json:"woke,omitempty"`

	// Stopped is set when a stop phrase put the session to sleep.
	Stopped bool `json:"stopped,omitempty"`

	// Steps lists each attempted step in order.
	Steps []StepOutcome `json:"steps,omitempty"`
}

// Succeeded reports whether at least one step ran and every step succeeded.
func (o Outcome) Succeeded() bool {
	if len(o.Steps) == 0 {
		return false
	}
	for _, s := range o.Steps {
		if !s.Succeeded() {
			return false
		}
	}
	return true
}

// Config tunes a [Session].
type Config struct {
	// MinRecognitionConfidence rejects transcripts whose reported
	// confidence is below it. Zero disables the check.
	MinRecognitionConfidence float64

	// StopOnFailure stops a compound utterance at the first step that does
	// not match or fails to execute.
	StopOnFailure bool

	// Favorites are phrases that get a fuzzy-match bonus.
	Favorites []string

	// SuggestLimit bounds suggestions per unmatched step. Zero uses the
	// matcher's default.
	SuggestLimit int

	// Retry controls recognizer restarts in [Session.Listen].
	Retry resilience.RetryConfig
}

// Option configures a [Session].
type Option func(*Session)

// WithID labels the session in logs and spans.
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// WithWakeFilter replaces the default wake-word filter.
func WithWakeFilter(f *wakeword.Filter) Option {
	return func(s *Session) { s.wake = f }
}

// WithSplitter replaces the default compound splitter.
func WithSplitter(sp *compound.Splitter) Option {
	return func(s *Session) { s.splitter = sp }
}

// StartAwake starts the session awake, as after an explicit activation
// such as a push-to-talk button.
func StartAwake() Option {
	return func(s *Session) { s.awake = true }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// Session processes the transcripts of one speaker. While asleep it drops
// every utterance that lacks a wake phrase before matching; only a wake
// phrase, [Session.Wake] or [StartAwake] lets commands through. Process is
// safe for concurrent use, but transcripts are expected in order; awake
// state is shared.
type Session struct {
	id         string
	cfg        Config
	matcher    *matcher.Matcher
	dispatcher *dispatch.Dispatcher
	wake       *wakeword.Filter
	splitter   *compound.Splitter
	metrics    *observe.Metrics

	mu    sync.Mutex
	awake bool
}

// New returns a sleeping session unless [StartAwake] is given.
func New(m *matcher.Matcher, d *dispatch.Dispatcher, cfg Config, opts ...Option) *Session {
	s := &Session{
		cfg:        cfg,
		matcher:    m,
		dispatcher: d,
	}
	for _, o := range opts {
		o(s)
	}
	if s.wake == nil {
		s.wake = wakeword.New(wakeword.DefaultConfig())
	}
	if s.splitter == nil {
		s.splitter = compound.New(compound.DefaultKnownApps...)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// ID returns the session label.
func (s *Session) ID() string {
	return s.id
}

// Awake reports whether the session accepts commands without a wake phrase.
func (s *Session) Awake() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.awake
}

// Wake marks the session awake, as if a wake phrase had been heard.
func (s *Session) Wake() {
	s.setAwake(true)
}

// Sleep puts the session back to sleep.
func (s *Session) Sleep() {
	s.setAwake(false)
}

func (s *Session) setAwake(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.awake = v
}

// conversation is the matcher context: recent successful commands and the
// configured favourites.
func (s *Session) conversation() similarity.Context {
	return similarity.Context{
		Recent:    s.dispatcher.History(),
		Favorites: s.cfg.Favorites,
	}
}

// Process runs one transcript through the pipeline.
func (s *Session) Process(ctx context.Context, t Transcript) Outcome {
	ctx, span := observe.StartSpan(ctx, "assistant.Process",
		trace.WithAttributes(attribute.String("session", s.id)),
	)
	defer span.End()
	ctx = observe.WithLogAttrs(ctx, "session", s.id)
	log := observe.Logger(ctx)

	out := Outcome{Input: text.Clean(t.Text)}
	if text.Normalize(out.Input) == "" {
		return s.discard(ctx, out, DiscardEmpty)
	}
	if minConf := s.cfg.MinRecognitionConfidence; minConf > 0 && t.Confidence > 0 && t.Confidence < minConf {
		log.Debug("assistant: transcript below confidence threshold",
			"confidence", t.Confidence, "min", minConf)
		return s.discard(ctx, out, DiscardLowConfidence)
	}

	out.Woke = s.wake.ContainsWakeWord(out.Input)
	if !out.Woke && !s.Awake() {
		return s.discard(ctx, out, DiscardNoWakeWord)
	}
	if out.Woke {
		s.Wake()
		log.Info("assistant: wake word detected")
	}
	out.Command = s.wake.StripWakeWord(out.Input)
	span.SetAttributes(attribute.String("command", out.Command))
	if text.Normalize(out.Command) == "" {
		return out
	}

	if s.wake.IsStop(out.Command) {
		s.Sleep()
		out.Stopped = true
		log.Info("assistant: stopped listening")
		return out
	}
	if s.wake.IsHelp(out.Command) {
		out.Steps = append(out.Steps, s.run(ctx, helpCommand, compound.Step{}))
		return out
	}

	steps := s.splitter.Split(out.Command)
	if len(steps) <= 1 {
		out.Steps = append(out.Steps, s.run(ctx, out.Command, compound.Step{}))
		return out
	}

	log.Debug("assistant: compound command", "steps", len(steps))
	for _, step := range steps {
		so := s.run(ctx, step.Utterance(), step)
		out.Steps = append(out.Steps, so)
		if s.cfg.StopOnFailure && !so.Succeeded() {
			log.Info("assistant: stopping compound command after failed step",
				"utterance", so.Utterance)
			break
		}
	}
	return out
}

// run matches and dispatches a single step. Compound slots are passed as
// parameter overrides.
func (s *Session) run(ctx context.Context, utterance string, step compound.Step) StepOutcome {
	so := StepOutcome{Utterance: utterance, Step: step}

	res, ok := s.matcher.Match(ctx, utterance, s.conversation())
	if !ok {
		so.Suggestions = s.matcher.Suggest(ctx, utterance, s.cfg.SuggestLimit)
		observe.Logger(ctx).Info("assistant: no command matched",
			"utterance", utterance,
			"suggestions", len(so.Suggestions),
		)
		return so
	}
	so.Match = res

	r := s.dispatcher.Execute(ctx, res.Key(), step.Params())
	so.Result = &r
	return so
}

func (s *Session) discard(ctx context.Context, out Outcome, reason string) Outcome {
	out.Discarded = reason
	s.metrics.RecordDiscard(ctx, reason)
	observe.Logger(ctx).Debug("assistant: transcript discarded", "reason", reason)
	return out
}
