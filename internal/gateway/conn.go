package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/motto/internal/assistant"
	"github.com/MrWong99/motto/internal/catalog"
	"github.com/MrWong99/motto/internal/dispatch"
	"github.com/MrWong99/motto/internal/matcher"
	"github.com/MrWong99/motto/internal/observe"
)

// queueSize bounds transcripts received but not yet processed.
const queueSize = 16

// discardOverloaded is the discard reason for transcripts dropped because
// the queue is full.
const discardOverloaded = "overloaded"

var errClientClosed = errors.New("gateway: client closed the connection")

type ack struct {
	success bool
	message string
	data    any
}

// conn is one client connection and its session.
type conn struct {
	ws         *websocket.Conn
	id         string
	session    *assistant.Session
	dispatcher *dispatch.Dispatcher
	matcher    *matcher.Matcher
	metrics    *observe.Metrics

	nextAction atomic.Uint64
	mu         sync.Mutex
	pending    map[string]chan ack
}

func newConn(ws *websocket.Conn, id string, cat *catalog.Catalog, st *state, metrics *observe.Metrics) *conn {
	c := &conn{
		ws:      ws,
		id:      id,
		matcher: st.matcher,
		metrics: metrics,
		pending: make(map[string]chan ack),
	}

	c.dispatcher = dispatch.New(cat, st.cfg.DispatchConfig(), dispatch.WithMetrics(metrics))
	for _, action := range cat.Actions() {
		c.dispatcher.Register(action, c.forward)
	}

	opts := append(st.cfg.SessionOptions(),
		assistant.WithID(id),
		assistant.WithMetrics(metrics),
	)
	c.session = assistant.New(st.matcher, c.dispatcher, st.cfg.SessionConfig(), opts...)
	return c
}

// close tears the session down once run has returned: the action handlers
// are unregistered and the session goes back to sleep.
func (c *conn) close() {
	c.dispatcher.Clear()
	c.session.Sleep()
}

// run serves the connection until the client leaves or ctx is done. A
// client closing the connection is not an error.
func (c *conn) run(ctx context.Context) error {
	if err := c.send(ctx, ServerFrame{
		Type:    FrameReady,
		Session: c.id,
		TraceID: observe.CorrelationID(ctx),
	}); err != nil {
		return err
	}

	transcripts := make(chan assistant.Transcript, queueSize)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(transcripts)
		return c.readLoop(gctx, transcripts)
	})
	g.Go(func() error {
		for t := range transcripts {
			out := c.session.Process(gctx, t)
			if err := c.send(gctx, ServerFrame{Type: FrameOutcome, Outcome: viewOutcome(out)}); err != nil {
				return err
			}
		}
		return nil
	})

	err := g.Wait()
	switch {
	case err == nil, errors.Is(err, errClientClosed), ctx.Err() != nil:
		return nil
	case websocket.CloseStatus(err) != -1:
		return nil
	}
	return err
}

func (c *conn) readLoop(ctx context.Context, transcripts chan<- assistant.Transcript) error {
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				return errClientClosed
			}
			return err
		}
		if typ != websocket.MessageText {
			c.sendError(ctx, "expected a text frame")
			continue
		}
		var f ClientFrame
		if err := json.Unmarshal(data, &f); err != nil {
			c.sendError(ctx, "malformed frame: "+err.Error())
			continue
		}
		c.handle(ctx, f, transcripts)
	}
}

func (c *conn) handle(ctx context.Context, f ClientFrame, transcripts chan<- assistant.Transcript) {
	switch f.Type {
	case FrameTranscript:
		select {
		case transcripts <- assistant.Transcript{Text: f.Text, Confidence: f.Confidence}:
		default:
			c.metrics.RecordDiscard(ctx, discardOverloaded)
			c.sendError(ctx, "too many pending transcripts")
		}
	case FrameAck:
		c.resolve(ctx, f)
	case FrameWake:
		c.session.Wake()
		c.sendState(ctx)
	case FrameSleep:
		c.session.Sleep()
		c.sendState(ctx)
	case FrameSuggest:
		sugg := c.matcher.Suggest(ctx, f.Text, f.Limit)
		if err := c.send(ctx, ServerFrame{Type: FrameSuggestions, Suggestions: sugg}); err != nil {
			observe.Logger(ctx).Debug("gateway: send suggestions", "session", c.id, "err", err)
		}
	default:
		c.sendError(ctx, fmt.Sprintf("unknown frame type %q", f.Type))
	}
}

// forward is the dispatch handler for every action: it asks the client to
// execute the command and waits for its acknowledgement.
func (c *conn) forward(ctx context.Context, params map[string]any, meta dispatch.Meta) (dispatch.Response, error) {
	id := strconv.FormatUint(c.nextAction.Add(1), 10)
	ch := make(chan ack, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	err := c.send(ctx, ServerFrame{
		Type:    FrameAction,
		ID:      id,
		Action:  meta.Entry.Action,
		Command: meta.Command,
		Params:  params,
	})
	if err != nil {
		return dispatch.Response{}, fmt.Errorf("gateway: send action: %w", err)
	}

	select {
	case a := <-ch:
		if !a.success {
			if a.message == "" {
				a.message = "client reported failure"
			}
			return dispatch.Response{}, errors.New(a.message)
		}
		return dispatch.Response{Message: a.message, Data: a.data}, nil
	case <-ctx.Done():
		return dispatch.Response{}, ctx.Err()
	}
}

func (c *conn) resolve(ctx context.Context, f ClientFrame) {
	c.mu.Lock()
	ch, ok := c.pending[f.ID]
	c.mu.Unlock()
	if !ok {
		observe.Logger(ctx).Warn("gateway: ack for unknown action", "session", c.id, "id", f.ID)
		return
	}
	select {
	case ch <- ack{success: f.Success, message: f.Message, data: f.Data}:
	default:
		// Duplicate ack; the first one wins.
	}
}

func (c *conn) send(ctx context.Context, f ServerFrame) error {
	return wsjson.Write(ctx, c.ws, f)
}

func (c *conn) sendState(ctx context.Context) {
	awake := c.session.Awake()
	if err := c.send(ctx, ServerFrame{Type: FrameState, Awake: &awake}); err != nil {
		observe.Logger(ctx).Debug("gateway: send state", "session", c.id, "err", err)
	}
}

func (c *conn) sendError(ctx context.Context, msg string) {
	if err := c.send(ctx, ServerFrame{Type: FrameError, Message: msg}); err != nil {
		observe.Logger(ctx).Debug("gateway: send error frame", "session", c.id, "err", err)
	}
}
