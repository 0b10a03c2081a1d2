package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/motto/internal/catalog"
	"github.com/MrWong99/motto/internal/config"
	"github.com/MrWong99/motto/internal/observe"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

type harness struct {
	gw     *Server
	url    string
	reader *sdkmetric.ManualReader
}

func start(t *testing.T, cfg *config.Config, opts ...Option) *harness {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	gw := New(catalog.Default(), cfg, append(opts, WithMetrics(m))...)
	mux := http.NewServeMux()
	gw.Register(mux)
	hs := httptest.NewServer(mux)
	t.Cleanup(hs.Close)
	t.Cleanup(gw.Close)

	return &harness{gw: gw, url: "ws" + strings.TrimPrefix(hs.URL, "http") + Path, reader: reader}
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, h.url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { c.CloseNow() })

	if f := read(t, c); f.Type != FrameReady || f.Session == "" {
		t.Fatalf("first frame = %+v, want ready with session id", f)
	}
	return c
}

func (h *harness) activeSessions(t *testing.T) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := h.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != "motto.active_sessions" {
				continue
			}
			var total int64
			for _, dp := range met.Data.(metricdata.Sum[int64]).DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

// wake puts the connection's session in the awake state.
func wake(t *testing.T, c *websocket.Conn) {
	t.Helper()
	write(t, c, ClientFrame{Type: FrameWake})
	if f := expect(t, c, FrameState); f.Awake == nil || !*f.Awake {
		t.Fatalf("state after wake = %+v", f)
	}
}

func read(t *testing.T, c *websocket.Conn) ServerFrame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	var f ServerFrame
	if err := wsjson.Read(ctx, c, &f); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return f
}

func write(t *testing.T, c *websocket.Conn, f ClientFrame) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, c, f); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func expect(t *testing.T, c *websocket.Conn, typ string) ServerFrame {
	t.Helper()
	f := read(t, c)
	if f.Type != typ {
		t.Fatalf("frame = %+v, want type %q", f, typ)
	}
	return f
}

// ── Sessions ──────────────────────────────────────────────────────────────────

func TestSession_ExecutesAction(t *testing.T) {
	t.Parallel()

	h := start(t, config.Default())
	c := h.dial(t)

	write(t, c, ClientFrame{Type: FrameTranscript, Text: "Hey Motto, go home", Confidence: 0.9})

	act := expect(t, c, FrameAction)
	want := ServerFrame{
		Type:    FrameAction,
		ID:      act.ID,
		Action:  "navigate",
		Command: "go to home",
		Params:  map[string]any{"screen": "Home"},
	}
	if diff := cmp.Diff(want, act); diff != "" {
		t.Errorf("action frame mismatch (-want +got):\n%s", diff)
	}

	write(t, c, ClientFrame{Type: FrameAck, ID: act.ID, Success: true, Message: "navigated"})

	out := expect(t, c, FrameOutcome).Outcome
	if out == nil || !out.Succeeded || !out.Woke || len(out.Steps) != 1 {
		t.Fatalf("outcome = %+v", out)
	}
	step := out.Steps[0]
	if step.Command != "go to home" || step.MatchType != "alias" || step.Message != "navigated" {
		t.Errorf("step = %+v", step)
	}
}

func TestSession_CompoundSendsActionsInOrder(t *testing.T) {
	t.Parallel()

	h := start(t, config.Default())
	c := h.dial(t)

	wake(t, c)
	write(t, c, ClientFrame{Type: FrameTranscript, Text: "go home and play jazz on Spotify"})

	first := expect(t, c, FrameAction)
	if first.Command != "go to home" {
		t.Errorf("first action = %+v", first)
	}
	write(t, c, ClientFrame{Type: FrameAck, ID: first.ID, Success: true})

	second := expect(t, c, FrameAction)
	if second.Command != "play" || second.Params["app"] != "Spotify" || second.Params["text"] != "jazz" {
		t.Errorf("second action = %+v", second)
	}
	write(t, c, ClientFrame{Type: FrameAck, ID: second.ID, Success: true})

	out := expect(t, c, FrameOutcome).Outcome
	if !out.Succeeded || len(out.Steps) != 2 {
		t.Errorf("outcome = %+v", out)
	}
}

func TestSession_ClientFailure(t *testing.T) {
	t.Parallel()

	h := start(t, config.Default())
	c := h.dial(t)

	wake(t, c)
	write(t, c, ClientFrame{Type: FrameTranscript, Text: "pause"})
	act := expect(t, c, FrameAction)
	write(t, c, ClientFrame{Type: FrameAck, ID: act.ID, Success: false, Message: "nothing is playing"})

	out := expect(t, c, FrameOutcome).Outcome
	if out.Succeeded || out.Steps[0].Success || out.Steps[0].Message != "nothing is playing" {
		t.Errorf("outcome = %+v", out)
	}
}

func TestSession_AckTimeout(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Dispatch.HandlerTimeout = 50 * time.Millisecond
	h := start(t, cfg)
	c := h.dial(t)

	wake(t, c)
	write(t, c, ClientFrame{Type: FrameTranscript, Text: "next"})
	act := expect(t, c, FrameAction)

	out := expect(t, c, FrameOutcome).Outcome
	if out.Succeeded || out.Steps[0].Success {
		t.Errorf("unacknowledged action reported success: %+v", out)
	}

	// A late ack is ignored and the session keeps working.
	write(t, c, ClientFrame{Type: FrameAck, ID: act.ID, Success: true})
	write(t, c, ClientFrame{Type: FrameSuggest, Text: "go to setings"})
	expect(t, c, FrameSuggestions)
}

func TestSession_NoMatchSuggests(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Matcher.MinConfidence = 0.95
	h := start(t, cfg)
	c := h.dial(t)

	wake(t, c)
	write(t, c, ClientFrame{Type: FrameTranscript, Text: "go to setings"})
	out := expect(t, c, FrameOutcome).Outcome
	if len(out.Steps) != 1 {
		t.Fatalf("outcome = %+v", out)
	}
	step := out.Steps[0]
	if step.MatchType != "none" || step.Success {
		t.Errorf("step = %+v, want unmatched", step)
	}
	if len(step.Suggestions) == 0 || step.Suggestions[0].Key != "go to settings" {
		t.Errorf("suggestions = %v, want go to settings first", step.Suggestions)
	}
}

func TestSession_WakeAndSleepFrames(t *testing.T) {
	t.Parallel()

	h := start(t, config.Default())
	c := h.dial(t)

	write(t, c, ClientFrame{Type: FrameTranscript, Text: "play"})
	if out := expect(t, c, FrameOutcome).Outcome; out.Discarded != "no_wake_word" {
		t.Fatalf("asleep session outcome = %+v", out)
	}

	write(t, c, ClientFrame{Type: FrameWake})
	if f := expect(t, c, FrameState); f.Awake == nil || !*f.Awake {
		t.Fatalf("state after wake = %+v", f)
	}

	write(t, c, ClientFrame{Type: FrameTranscript, Text: "play"})
	act := expect(t, c, FrameAction)
	write(t, c, ClientFrame{Type: FrameAck, ID: act.ID, Success: true})
	if out := expect(t, c, FrameOutcome).Outcome; !out.Succeeded {
		t.Fatalf("awake session outcome = %+v", out)
	}

	write(t, c, ClientFrame{Type: FrameSleep})
	if f := expect(t, c, FrameState); f.Awake == nil || *f.Awake {
		t.Fatalf("state after sleep = %+v", f)
	}
}

func TestSession_SuggestFrame(t *testing.T) {
	t.Parallel()

	h := start(t, config.Default())
	c := h.dial(t)

	write(t, c, ClientFrame{Type: FrameSuggest, Text: "go to setings", Limit: 1})
	f := expect(t, c, FrameSuggestions)
	if len(f.Suggestions) != 1 || f.Suggestions[0].Key != "go to settings" {
		t.Errorf("suggestions = %v", f.Suggestions)
	}
}

func TestSession_BadFrames(t *testing.T) {
	t.Parallel()

	h := start(t, config.Default())
	c := h.dial(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if f := expect(t, c, FrameError); !strings.Contains(f.Message, "malformed") {
		t.Errorf("error frame = %+v", f)
	}

	write(t, c, ClientFrame{Type: "dance"})
	if f := expect(t, c, FrameError); !strings.Contains(f.Message, "dance") {
		t.Errorf("error frame = %+v", f)
	}

	// The connection survives bad input.
	write(t, c, ClientFrame{Type: FrameSuggest, Text: "pause"})
	expect(t, c, FrameSuggestions)
}

// ── Server ────────────────────────────────────────────────────────────────────

func TestServer_ApplyAffectsNewSessionsOnly(t *testing.T) {
	t.Parallel()

	h := start(t, config.Default())
	before := h.dial(t)

	cfg := config.Default()
	cfg.Wake.Phrase = "hello robot"
	h.gw.Apply(cfg)
	if h.gw.Config() != cfg {
		t.Fatal("Config() does not return the applied config")
	}
	after := h.dial(t)

	write(t, after, ClientFrame{Type: FrameTranscript, Text: "hey motto play"})
	if out := expect(t, after, FrameOutcome).Outcome; out.Discarded != "no_wake_word" {
		t.Errorf("new session ignored applied config: %+v", out)
	}

	write(t, before, ClientFrame{Type: FrameTranscript, Text: "hey motto play"})
	act := expect(t, before, FrameAction)
	write(t, before, ClientFrame{Type: FrameAck, ID: act.ID, Success: true})
	if out := expect(t, before, FrameOutcome).Outcome; !out.Succeeded {
		t.Errorf("existing session changed config: %+v", out)
	}
}

func TestServer_ActiveSessions(t *testing.T) {
	t.Parallel()

	h := start(t, config.Default())
	c := h.dial(t)
	if got := h.activeSessions(t); got != 1 {
		t.Errorf("active sessions = %d, want 1", got)
	}

	c.Close(websocket.StatusNormalClosure, "bye")
	deadline := time.Now().Add(3 * time.Second)
	for h.activeSessions(t) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("active sessions not decremented after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServer_DisconnectClearsHandlers(t *testing.T) {
	t.Parallel()

	ended := make(chan *conn, 1)
	h := start(t, config.Default(), withSessionEnd(func(c *conn) { ended <- c }))
	c := h.dial(t)
	wake(t, c)

	c.Close(websocket.StatusNormalClosure, "bye")
	select {
	case gone := <-ended:
		if got := gone.dispatcher.Registry().Actions(); len(got) != 0 {
			t.Errorf("handlers still registered after disconnect: %v", got)
		}
		if gone.session.Awake() {
			t.Error("session still awake after disconnect")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("session did not end after disconnect")
	}
}

func TestServer_CloseEndsSessions(t *testing.T) {
	t.Parallel()

	h := start(t, config.Default())
	c := h.dial(t)

	h.gw.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, _, err := c.Read(ctx)
	if err == nil {
		t.Fatal("Read succeeded after server close")
	}

	noReuse := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	if late, _, err := websocket.Dial(ctx, h.url, &websocket.DialOptions{HTTPClient: noReuse}); err == nil {
		late.CloseNow()
		t.Error("Dial succeeded after server close")
	}
}
