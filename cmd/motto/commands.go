package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MrWong99/motto/internal/assistant"
	"github.com/MrWong99/motto/internal/catalog"
	"github.com/MrWong99/motto/internal/config"
	"github.com/MrWong99/motto/internal/dispatch"
	"github.com/MrWong99/motto/internal/matcher"
	"github.com/MrWong99/motto/internal/resilience"
	"github.com/MrWong99/motto/internal/similarity"
)

// errNoMatch makes "motto match" exit non-zero when nothing matched.
var errNoMatch = errors.New("no command matched")

// matchView is the JSON form of a match printed by "motto match --json".
type matchView struct {
	Command string         `json:"command"`
	Action  string         `json:"action"`
	Type    string         `json:"type"`
	Score   float64        `json:"score"`
	Rule    string         `json:"rule,omitempty"`
	Params  map[string]any `json:"params,omitempty"`
}

func (c *cli) newMatchCmd() *cobra.Command {
	var (
		recent    []string
		favorites []string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "match <utterance>...",
		Short: "Resolve an utterance to a catalog command",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := c.cfg.WithOverrides(config.WithFavorites(favorites...))
			m := matcher.New(c.catalog, cfg.MatcherConfig())
			utterance := strings.Join(args, " ")
			conv := similarity.Context{Recent: recent, Favorites: cfg.Matcher.Favorites}

			out := cmd.OutOrStdout()
			res, ok := m.Match(cmd.Context(), utterance, conv)
			if !ok {
				fmt.Fprintf(out, "no match for %q\n", utterance)
				for _, s := range m.Suggest(cmd.Context(), utterance, 0) {
					fmt.Fprintf(out, "  did you mean %q? (%.2f)\n", s.Key, s.Score)
				}
				return errNoMatch
			}

			v := matchView{
				Command: res.Key(),
				Action:  res.Command.Action,
				Type:    res.Type.String(),
				Score:   res.Score,
				Rule:    res.Rule,
				Params:  res.Command.DefaultParams,
			}
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(v)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "command:\t%s\n", v.Command)
			fmt.Fprintf(tw, "action:\t%s\n", v.Action)
			fmt.Fprintf(tw, "type:\t%s\n", v.Type)
			fmt.Fprintf(tw, "score:\t%.3f\n", v.Score)
			if v.Rule != "" {
				fmt.Fprintf(tw, "rule:\t%s\n", v.Rule)
			}
			if len(v.Params) > 0 {
				fmt.Fprintf(tw, "params:\t%s\n", formatParams(v.Params))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringSliceVar(&recent, "recent", nil, "recently executed command keys, oldest first")
	cmd.Flags().StringSliceVar(&favorites, "favorite", nil, "additional favourite phrases")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the match as JSON")
	return cmd
}

func (c *cli) newSplitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "split <utterance>...",
		Short: "Split a compound utterance into steps",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for i, step := range c.cfg.Splitter().Split(strings.Join(args, " ")) {
				fmt.Fprintf(out, "%d. %s", i+1, step.Utterance())
				if len(step.Slots) > 0 {
					fmt.Fprintf(out, "  [%s]", formatSlots(step.Slots))
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}

func (c *cli) newSuggestCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "suggest <utterance>...",
		Short: "List the commands closest to an utterance",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m := matcher.New(c.catalog, c.cfg.MatcherConfig())
			out := cmd.OutOrStdout()
			sugg := m.Suggest(cmd.Context(), strings.Join(args, " "), limit)
			if len(sugg) == 0 {
				fmt.Fprintln(out, "no suggestions")
				return nil
			}
			for _, s := range sugg {
				fmt.Fprintf(out, "%.2f  %s\n", s.Score, s.Key)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of suggestions (default from config)")
	return cmd
}

func (c *cli) newCatalogCmd() *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List catalog commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries := c.catalog.Entries()
			if category != "" {
				cat := catalog.Category(category)
				if !cat.IsValid() {
					return fmt.Errorf("unknown category %q; valid values: %v", category, catalog.Categories)
				}
				entries = c.catalog.ByCategory(cat)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tACTION\tCATEGORY\tALIASES")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Key, e.Action, e.Category, strings.Join(e.Aliases, ", "))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "only list commands of this category")
	return cmd
}

func (c *cli) newRunCmd() *cobra.Command {
	var (
		inputs []string
		awake  bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute utterances read line by line",
		Long: `Run reads one utterance per line and feeds it through the full pipeline:
wake word, stop and help phrases, compound splitting, matching and dispatch.
Every action is printed instead of executed. The session starts asleep and
ignores utterances until it hears a wake phrase, unless --awake is set.

With several --input sources the first one that can be read is used and the
next takes over when it fails. "-" is stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			m := matcher.New(c.catalog, c.cfg.MatcherConfig())
			d := dispatch.New(c.catalog, c.cfg.DispatchConfig())
			for _, action := range c.catalog.Actions() {
				d.Register(action, printHandler(out, c.catalog))
			}
			defer d.Clear()

			opts := append(c.cfg.SessionOptions(), assistant.WithID("cli"))
			if awake {
				opts = append(opts, assistant.StartAwake())
			}
			s := assistant.New(m, d, c.cfg.SessionConfig(), opts...)

			members := make([]resilience.Member[assistant.Recognizer], len(inputs))
			for i, path := range inputs {
				members[i] = resilience.Member[assistant.Recognizer]{
					Name:  path,
					Value: lineRecognizer{path: path, stdin: cmd.InOrStdin()},
				}
			}
			var rec assistant.Recognizer = members[0].Value
			if len(members) > 1 {
				rec = assistant.Failover(resilience.CircuitBreakerConfig{
					MaxFailures:  c.cfg.Dispatch.Breaker.MaxFailures,
					ResetTimeout: c.cfg.Dispatch.Breaker.ResetTimeout,
				}, members...)
			}

			err := s.Listen(cmd.Context(), rec, func(o assistant.Outcome) {
				printOutcome(out, o)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringArrayVarP(&inputs, "input", "i", []string{"-"}, "utterance source, a file path or - for stdin (repeatable)")
	cmd.Flags().BoolVar(&awake, "awake", false, "start the session awake instead of waiting for a wake phrase")
	return cmd
}

// lineRecognizer turns each non-blank line of a file or stdin into a
// transcript.
type lineRecognizer struct {
	path  string
	stdin io.Reader
}

func (r lineRecognizer) Listen(ctx context.Context, out chan<- assistant.Transcript) error {
	in := r.stdin
	if r.path != "-" {
		f, err := os.Open(r.path)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errc:
					return err
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			select {
			case out <- assistant.Transcript{Text: line}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// printHandler prints the action it would execute. The help action lists
// the catalog instead.
func printHandler(w io.Writer, cat *catalog.Catalog) dispatch.Handler {
	return func(_ context.Context, params map[string]any, meta dispatch.Meta) (dispatch.Response, error) {
		if meta.Entry.Action == "help" {
			for _, category := range catalog.Categories {
				keys := make([]string, 0)
				for _, e := range cat.ByCategory(category) {
					keys = append(keys, e.Key)
				}
				if len(keys) > 0 {
					fmt.Fprintf(w, "  %s: %s\n", category, strings.Join(keys, ", "))
				}
			}
			return dispatch.Response{Message: "listed commands"}, nil
		}
		fmt.Fprintf(w, "-> %s %s\n", meta.Entry.Action, formatParams(params))
		return dispatch.Response{}, nil
	}
}

func printOutcome(w io.Writer, o assistant.Outcome) {
	switch {
	case o.Discarded != "":
		fmt.Fprintf(w, "(ignored: %s)\n", o.Discarded)
	case o.Stopped:
		fmt.Fprintln(w, "(stopped listening)")
	case o.Woke && len(o.Steps) == 0:
		fmt.Fprintln(w, "(listening)")
	}
	for _, s := range o.Steps {
		switch {
		case s.Match == nil:
			fmt.Fprintf(w, "? %q not understood", s.Utterance)
			if len(s.Suggestions) > 0 {
				keys := make([]string, len(s.Suggestions))
				for i, sg := range s.Suggestions {
					keys[i] = sg.Key
				}
				fmt.Fprintf(w, "; did you mean: %s", strings.Join(keys, ", "))
			}
			fmt.Fprintln(w)
		case s.Result != nil && !s.Result.Success:
			fmt.Fprintf(w, "! %s: %s\n", s.Match.Key(), s.Result.Message)
		default:
			fmt.Fprintf(w, "ok %s (%s %.2f)\n", s.Match.Key(), s.Match.Type, s.Match.Score)
		}
	}
}

func formatParams(params map[string]any) string {
	parts := make([]string, 0, len(params))
	for _, k := range slices.Sorted(maps.Keys(params)) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, params[k]))
	}
	return strings.Join(parts, " ")
}

func formatSlots(slots map[string]string) string {
	parts := make([]string, 0, len(slots))
	for _, k := range slices.Sorted(maps.Keys(slots)) {
		parts = append(parts, k+"="+slots[k])
	}
	return strings.Join(parts, " ")
}
