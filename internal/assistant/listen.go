package assistant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/motto/internal/observe"
	"github.com/MrWong99/motto/internal/resilience"
)

// ErrRecognitionExhausted is returned by [Session.Listen] once the
// recognizer has failed more times than the retry budget allows.
var ErrRecognitionExhausted = errors.New("assistant: speech recognition retries exhausted")

// Recognizer produces transcripts. Listen sends on out until the stream
// ends (returning nil), it fails (returning an error) or ctx is done. It
// must not close out.
type Recognizer interface {
	Listen(ctx context.Context, out chan<- Transcript) error
}

// RecognizerFunc adapts a function to [Recognizer].
type RecognizerFunc func(ctx context.Context, out chan<- Transcript) error

// Listen implements [Recognizer].
func (f RecognizerFunc) Listen(ctx context.Context, out chan<- Transcript) error {
	return f(ctx, out)
}

// Listen feeds transcripts from rec through [Session.Process] until the
// stream ends or ctx is done, calling onOutcome (if non-nil) after each
// one. A failing recognizer is restarted with exponential backoff; once
// the retry budget is spent the returned error matches
// [ErrRecognitionExhausted] and the recognizer's last error.
func (s *Session) Listen(ctx context.Context, rec Recognizer, onOutcome func(Outcome)) error {
	cfg := s.cfg.Retry
	if cfg.Name == "" {
		cfg.Name = "recognizer"
	}
	next := cfg.OnRetry
	cfg.OnRetry = func(retry int, err error, delay time.Duration) {
		s.metrics.RecordRetry(ctx)
		if next != nil {
			next(retry, err, delay)
		}
	}

	err := resilience.Retry(ctx, cfg, func(ctx context.Context) error {
		return s.listenOnce(ctx, rec, onOutcome)
	})
	if errors.Is(err, resilience.ErrRetriesExhausted) {
		observe.Logger(ctx).Error("assistant: recognizer gave up", "session", s.id, "error", err)
		return fmt.Errorf("%w: %w", ErrRecognitionExhausted, err)
	}
	return err
}

func (s *Session) listenOnce(ctx context.Context, rec Recognizer, onOutcome func(Outcome)) error {
	transcripts := make(chan Transcript)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(transcripts)
		return rec.Listen(gctx, transcripts)
	})
	g.Go(func() error {
		for t := range transcripts {
			o := s.Process(gctx, t)
			if onOutcome != nil {
				onOutcome(o)
			}
		}
		return nil
	})
	return g.Wait()
}

// Failover returns a Recognizer that streams from the first member of recs
// whose circuit breaker is closed. When the active recognizer fails the next
// one takes over within the same call; members that keep failing are
// skipped until their breaker resets. The result is meant to be passed to
// [Session.Listen], which retries once every member has failed.
func Failover(cfg resilience.CircuitBreakerConfig, recs ...resilience.Member[Recognizer]) Recognizer {
	f := resilience.NewFailover(cfg, recs...)
	return RecognizerFunc(func(ctx context.Context, out chan<- Transcript) error {
		return f.Do(ctx, func(ctx context.Context, r Recognizer) error {
			return r.Listen(ctx, out)
		})
	})
}
