// Package compound splits multi-intent utterances such as
// "open Safari and search for weather" into ordered steps and extracts
// app, action and free-text slots from each step.
package compound

import (
	"regexp"
	"strings"

	"github.com/MrWong99/motto/internal/text"
)

// DefaultKnownApps are the app names bound by the "in <app>" and generic
// "<action> <app>" patterns when no list is configured.
var DefaultKnownApps = []string{
	"Safari", "Chrome", "Notes", "Mail", "Messages", "Calendar",
	"Music", "Spotify", "YouTube", "Maps", "Photos", "Reminders",
}

// Slot names used in [Step.Slots].
const (
	SlotApp    = "app"
	SlotAction = "action"
	SlotText   = "text"
)

// Step is one clause of a compound utterance. Empty fields are absent.
type Step struct {
	App    string            `json:"app,omitempty"`
	Action string            `json:"action,omitempty"`
	Text   string            `json:"text,omitempty"`
	Slots  map[string]string `json:"slots,omitempty"`
}

// Utterance rebuilds the phrase used to match the step against the catalog:
// action, app and text joined by spaces, skipping empty parts.
func (s Step) Utterance() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{s.Action, s.App, s.Text} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// Params returns the step's slots as dispatch parameters.
func (s Step) Params() map[string]any {
	if len(s.Slots) == 0 {
		return nil
	}
	p := make(map[string]any, len(s.Slots))
	for k, v := range s.Slots {
		p[k] = v
	}
	return p
}

// pattern is one slot extractor. action is used when the regex has no
// action group.
type pattern struct {
	name   string
	re     *regexp.Regexp
	action string
}

var separator = regexp.MustCompile(`(?i)\s*(?:\band\b|[,;])\s*`)

// Splitter splits and parses compound utterances. It is immutable and safe
// for concurrent use.
type Splitter struct {
	apps     []string
	patterns []pattern
}

// New returns a Splitter that binds the given app names in app-qualified
// patterns. App names match case-insensitively.
func New(knownApps ...string) *Splitter {
	apps := make([]string, 0, len(knownApps))
	quoted := make([]string, 0, len(knownApps))
	for _, a := range knownApps {
		a = text.Clean(a)
		if a == "" {
			continue
		}
		apps = append(apps, a)
		quoted = append(quoted, regexp.QuoteMeta(a))
	}

	s := &Splitter{apps: apps}
	s.patterns = append(s.patterns,
		pattern{name: "open", action: "open",
			re: regexp.MustCompile(`(?i)^open\s+(?P<app>\S+)(?:\s+(?P<action>\S+)(?:\s+(?P<text>.+))?)?$`)},
		pattern{name: "create", action: "create",
			re: regexp.MustCompile(`(?i)^create\s+(?:a\s+)?(?:new\s+)?(?P<app>[^:]+?)(?:\s*:\s*(?P<text>.+))?$`)},
	)

	if len(quoted) == 0 {
		s.patterns = append(s.patterns,
			pattern{name: "search", action: "search",
				re: regexp.MustCompile(`(?i)^search\s+for\s+(?P<text>.+)$`)},
			pattern{name: "play", action: "play",
				re: regexp.MustCompile(`(?i)^play\s+(?P<text>.+)$`)},
		)
		return s
	}

	known := `(?P<app>` + strings.Join(quoted, "|") + `)`
	s.patterns = append(s.patterns,
		pattern{name: "search", action: "search",
			re: regexp.MustCompile(`(?i)^search\s+for\s+(?P<text>.+?)(?:\s+in\s+` + known + `)?$`)},
		pattern{name: "play", action: "play",
			re: regexp.MustCompile(`(?i)^play\s+(?P<text>.+?)(?:\s+(?:in|on)\s+` + known + `)?$`)},
		pattern{name: "app-action",
			re: regexp.MustCompile(`(?i)^(?P<action>\S+)\s+` + known + `(?:\s+about\s+(?P<text>.+))?$`)},
	)
	return s
}

// KnownApps returns the configured app names.
func (s *Splitter) KnownApps() []string {
	return append([]string(nil), s.apps...)
}

// Split breaks utterance on "and", commas and semicolons and parses each
// clause. Clause order is kept and nothing is deduplicated. A blank
// utterance yields no steps.
func (s *Splitter) Split(utterance string) []Step {
	var steps []Step
	for _, clause := range separator.Split(text.Clean(utterance), -1) {
		if clause = strings.TrimSpace(clause); clause == "" {
			continue
		}
		steps = append(steps, s.parse(clause))
	}
	return steps
}

// IsCompound reports whether utterance splits into more than one step.
func (s *Splitter) IsCompound(utterance string) bool {
	return len(s.Split(utterance)) > 1
}

// parse applies the patterns in order; the first match wins.
func (s *Splitter) parse(clause string) Step {
	for _, p := range s.patterns {
		m := p.re.FindStringSubmatch(clause)
		if m == nil {
			continue
		}
		step := Step{Action: p.action}
		for i, name := range p.re.SubexpNames() {
			if name == "" || m[i] == "" {
				continue
			}
			v := text.Clean(m[i])
			switch name {
			case SlotApp:
				step.App = v
			case SlotAction:
				step.Action = v
			case SlotText:
				step.Text = v
			}
			if step.Slots == nil {
				step.Slots = make(map[string]string)
			}
			step.Slots[name] = v
		}
		return step
	}
	return Step{Text: clause}
}
