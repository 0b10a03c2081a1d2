package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var errTest = errors.New("test error")

func fail() error    { return errTest }
func succeed() error { return nil }

// transitionLog records OnStateChange callbacks.
type transitionLog struct {
	mu  sync.Mutex
	got []string
}

func (l *transitionLog) record(name string, from, to State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.got = append(l.got, name+": "+from.String()+" -> "+to.String())
}

func (l *transitionLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.got...)
}

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "navigate"})
	got := []any{cb.cfg.MaxFailures, cb.cfg.ResetTimeout, cb.cfg.HalfOpenMax, cb.State(), cb.Name()}
	want := []any{DefaultMaxFailures, DefaultResetTimeout, DefaultHalfOpenMax, StateClosed, "navigate"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("defaults (-want +got):\n%s", diff)
	}
}

func TestCircuitBreaker_Lifecycle(t *testing.T) {
	t.Parallel()

	var log transitionLog
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:          "navigate",
		MaxFailures:   2,
		ResetTimeout:  20 * time.Millisecond,
		HalfOpenMax:   2,
		OnStateChange: log.record,
	})

	// A success between failures resets the count.
	_ = cb.Execute(fail)
	_ = cb.Execute(succeed)
	_ = cb.Execute(fail)
	if s := cb.State(); s != StateClosed {
		t.Fatalf("state = %v, want closed after interrupted failures", s)
	}

	_ = cb.Execute(fail)
	if s := cb.State(); s != StateOpen {
		t.Fatalf("state = %v, want open", s)
	}
	called := false
	if err := cb.Execute(func() error { called = true; return nil }); !errors.Is(err, ErrCircuitOpen) || called {
		t.Fatalf("open breaker: err = %v, called = %v", err, called)
	}

	time.Sleep(30 * time.Millisecond)
	if s := cb.State(); s != StateHalfOpen {
		t.Fatalf("state = %v, want half-open after reset timeout", s)
	}
	for i := range 2 {
		if err := cb.Execute(succeed); err != nil {
			t.Fatalf("probe %d: %v", i, err)
		}
	}
	if s := cb.State(); s != StateClosed {
		t.Fatalf("state = %v, want closed after successful probes", s)
	}

	want := []string{
		"navigate: closed -> open",
		"navigate: open -> half-open",
		"navigate: half-open -> closed",
	}
	if diff := cmp.Diff(want, log.list()); diff != "" {
		t.Errorf("transitions (-want +got):\n%s", diff)
	}
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	t.Parallel()

	var log transitionLog
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:          "settings",
		MaxFailures:   1,
		ResetTimeout:  20 * time.Millisecond,
		HalfOpenMax:   3,
		OnStateChange: log.record,
	})
	_ = cb.Execute(fail)
	time.Sleep(30 * time.Millisecond)

	if err := cb.Execute(fail); !errors.Is(err, errTest) {
		t.Fatalf("probe err = %v, want the probe's own error", err)
	}
	if s := cb.State(); s != StateOpen {
		t.Fatalf("state = %v, want open after failed probe", s)
	}
	want := []string{
		"settings: closed -> open",
		"settings: open -> half-open",
		"settings: half-open -> open",
	}
	if diff := cmp.Diff(want, log.list()); diff != "" {
		t.Errorf("transitions (-want +got):\n%s", diff)
	}
}

func TestCircuitBreaker_HalfOpenLimitsProbes(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: 10 * time.Millisecond,
		HalfOpenMax:  1,
	})
	_ = cb.Execute(fail)
	time.Sleep(20 * time.Millisecond)

	probing := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(func() error {
			close(probing)
			<-release
			return nil
		})
	}()
	<-probing

	if err := cb.Execute(succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second probe err = %v, want ErrCircuitOpen", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first probe: %v", err)
	}
	if s := cb.State(); s != StateClosed {
		t.Errorf("state = %v, want closed", s)
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	t.Parallel()

	var log transitionLog
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:          "help",
		MaxFailures:   1,
		ResetTimeout:  time.Hour,
		OnStateChange: log.record,
	})
	cb.Reset()
	_ = cb.Execute(fail)
	cb.Reset()

	if s := cb.State(); s != StateClosed {
		t.Fatalf("state = %v, want closed after reset", s)
	}
	if err := cb.Execute(succeed); err != nil {
		t.Fatalf("after reset: %v", err)
	}
	want := []string{"help: closed -> open", "help: open -> closed"}
	if diff := cmp.Diff(want, log.list()); diff != "" {
		t.Errorf("transitions (-want +got):\n%s", diff)
	}
}

func TestCircuitBreaker_IsFailureFilter(t *testing.T) {
	t.Parallel()

	ignored := errors.New("ignored")
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: time.Hour,
		IsFailure:    func(err error) bool { return err != nil && !errors.Is(err, ignored) },
	})

	if err := cb.Execute(func() error { return ignored }); !errors.Is(err, ignored) {
		t.Fatalf("err = %v, want the call's own error", err)
	}
	if s := cb.State(); s != StateClosed {
		t.Fatalf("state = %v, want closed after ignored error", s)
	}
	_ = cb.Execute(fail)
	if s := cb.State(); s != StateOpen {
		t.Fatalf("state = %v, want open after counted failure", s)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	got := []string{StateClosed.String(), StateOpen.String(), StateHalfOpen.String(), State(99).String()}
	want := []string{"closed", "open", "half-open", "unknown"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("State.String (-want +got):\n%s", diff)
	}
}

func TestBreakerGroup(t *testing.T) {
	t.Parallel()

	var log transitionLog
	g := NewBreakerGroup(CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour, OnStateChange: log.record})

	for range 2 {
		_ = g.Execute("navigate", fail)
	}
	if err := g.Execute("navigate", succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("navigate err = %v, want ErrCircuitOpen", err)
	}
	if err := g.Execute("mediaControl", succeed); err != nil {
		t.Fatalf("mediaControl err = %v, want nil", err)
	}
	if g.Get("navigate") != g.Get("navigate") {
		t.Error("Get returned different breakers for the same key")
	}

	want := map[string]State{"navigate": StateOpen, "mediaControl": StateClosed}
	if diff := cmp.Diff(want, g.States()); diff != "" {
		t.Errorf("States (-want +got):\n%s", diff)
	}

	g.Reset()
	if s := g.Get("navigate").State(); s != StateClosed {
		t.Errorf("state after Reset = %v, want closed", s)
	}
	wantLog := []string{"navigate: closed -> open", "navigate: open -> closed"}
	if diff := cmp.Diff(wantLog, log.list()); diff != "" {
		t.Errorf("transitions (-want +got):\n%s", diff)
	}
}
