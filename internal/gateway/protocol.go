package gateway

import (
	"github.com/MrWong99/motto/internal/assistant"
	"github.com/MrWong99/motto/internal/matcher"
)

// Client frame types.
const (
	// FrameTranscript carries one recognised utterance.
	FrameTranscript = "transcript"

	// FrameAck reports the client-side result of an action frame.
	FrameAck = "ack"

	// FrameWake and FrameSleep set the session's awake state directly.
	FrameWake  = "wake"
	FrameSleep = "sleep"

	// FrameSuggest asks for near-miss commands without executing anything.
	FrameSuggest = "suggest"
)

// Server frame types.
const (
	FrameReady       = "ready"
	FrameAction      = "action"
	FrameOutcome     = "outcome"
	FrameState       = "state"
	FrameSuggestions = "suggestions"
	FrameError       = "error"
)

// ClientFrame is a message sent by the client. Only the fields relevant to
// Type are set.
type ClientFrame struct {
	Type string `json:"type"`

	// transcript, suggest
	Text       string  `json:"text,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Limit      int     `json:"limit,omitempty"`

	// ack
	ID      string `json:"id,omitempty"`
	Success bool   `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// ServerFrame is a message sent to the client.
type ServerFrame struct {
	Type    string `json:"type"`
	Session string `json:"session,omitempty"`

	// ready; the trace ID of the upgrade request, when traced
	TraceID string `json:"trace_id,omitempty"`

	// action
	ID      string         `json:"id,omitempty"`
	Action  string         `json:"action,omitempty"`
	Command string         `json:"command,omitempty"`
	Params  map[string]any `json:"params,omitempty"`

	// outcome
	Outcome *OutcomeView `json:"outcome,omitempty"`

	// state
	Awake *bool `json:"awake,omitempty"`

	// suggestions
	Suggestions []matcher.Suggestion `json:"suggestions,omitempty"`

	// error
	Message string `json:"message,omitempty"`
}

// OutcomeView is the wire form of [assistant.Outcome].
type OutcomeView struct {
	Input     string     `json:"input"`
	Command   string     `json:"command,omitempty"`
	Discarded string     `json:"discarded,omitempty"`
	Woke      bool       `json:"woke,omitempty"`
	Stopped   bool       `json:"stopped,omitempty"`
	Succeeded bool       `json:"succeeded"`
	Steps     []StepView `json:"steps,omitempty"`
}

// StepView is the wire form of [assistant.StepOutcome].
type StepView struct {
	Utterance   string               `json:"utterance"`
	Command     string               `json:"command,omitempty"`
	MatchType   string               `json:"match_type"`
	Score       float64              `json:"score,omitempty"`
	Success     bool                 `json:"success"`
	Message     string               `json:"message,omitempty"`
	Data        any                  `json:"data,omitempty"`
	Suggestions []matcher.Suggestion `json:"suggestions,omitempty"`
}

func viewOutcome(o assistant.Outcome) *OutcomeView {
	v := &OutcomeView{
		Input:     o.Input,
		Command:   o.Command,
		Discarded: o.Discarded,
		Woke:      o.Woke,
		Stopped:   o.Stopped,
		Succeeded: o.Succeeded(),
	}
	for _, s := range o.Steps {
		sv := StepView{
			Utterance:   s.Utterance,
			MatchType:   matcher.MatchType(0).String(),
			Suggestions: s.Suggestions,
		}
		if s.Match != nil {
			sv.Command = s.Match.Key()
			sv.MatchType = s.Match.Type.String()
			sv.Score = s.Match.Score
		}
		if s.Result != nil {
			sv.Success = s.Result.Success
			sv.Message = s.Result.Message
			sv.Data = s.Result.Data
		}
		v.Steps = append(v.Steps, sv)
	}
	return v
}
