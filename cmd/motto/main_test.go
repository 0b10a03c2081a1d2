package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/MrWong99/motto/internal/catalog"
	"github.com/MrWong99/motto/internal/config"
	"github.com/MrWong99/motto/internal/gateway"
)

// execute runs the root command with args and stdin and returns stdout.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	err := cmd.ExecuteContext(t.Context())
	return out.String(), err
}

func TestMatch_JSON(t *testing.T) {
	out, err := execute(t, "", "match", "--json", "Go", "Home")
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	var got matchView
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	want := matchView{
		Command: "go to home",
		Action:  "navigate",
		Type:    "alias",
		Score:   0.95,
		Params:  map[string]any{"screen": "Home"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("match (-want +got):\n%s", diff)
	}
}

func TestMatch_Table(t *testing.T) {
	out, err := execute(t, "", "match", "pause")
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	for _, want := range []string{"command:", "pause", "type:", "exact"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestMatch_NoMatch(t *testing.T) {
	out, err := execute(t, "", "match", "xyzzy", "plugh")
	if !errors.Is(err, errNoMatch) {
		t.Fatalf("err = %v, want errNoMatch", err)
	}
	if !strings.Contains(out, `no match for "xyzzy plugh"`) {
		t.Errorf("output = %q", out)
	}
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "plain clauses",
			args: []string{"split", "pause, next and go home"},
			want: "1. pause\n2. next\n3. go home\n",
		},
		{
			name: "slots are listed",
			args: []string{"split", "play", "jazz", "on", "spotify"},
			want: "1. play spotify jazz  [app=spotify text=jazz]\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, "", tt.args...)
			if err != nil {
				t.Fatalf("split: %v", err)
			}
			if diff := cmp.Diff(tt.want, out); diff != "" {
				t.Errorf("split (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSuggest(t *testing.T) {
	out, err := execute(t, "", "suggest", "--limit", "1", "go to profil")
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if lines := strings.Split(strings.TrimSpace(out), "\n"); len(lines) != 1 || !strings.HasSuffix(lines[0], "go to profile") {
		t.Errorf("suggest output = %q, want one line for \"go to profile\"", out)
	}
}

func TestCatalog(t *testing.T) {
	out, err := execute(t, "", "catalog", "--category", "media")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if !strings.Contains(out, "mediaControl") {
		t.Errorf("media listing lacks mediaControl: %q", out)
	}
	if strings.Contains(out, "navigate") {
		t.Errorf("media listing contains navigation commands: %q", out)
	}

	if _, err := execute(t, "", "catalog", "--category", "bogus"); err == nil {
		t.Error("unknown category: expected error")
	}
}

func TestRun(t *testing.T) {
	out, err := execute(t, "pause\nhey motto go home\n\nhelp\n", "run")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if strings.Contains(out, "ok pause") {
		t.Errorf("utterance before the wake phrase was executed:\n%s", out)
	}
	for _, want := range []string{
		"(ignored: no_wake_word)",
		"-> navigate screen=Home",
		"ok go to home (alias 0.95)",
		"navigation: go to home",
		"ok help",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("run output missing %q:\n%s", want, out)
		}
	}
}

func TestInvalidLogLevel(t *testing.T) {
	if _, err := execute(t, "", "--log-level", "loud", "catalog"); err == nil {
		t.Error("expected error for invalid --log-level")
	}
}

func TestMissingConfig(t *testing.T) {
	_, err := execute(t, "", "--config", t.TempDir()+"/absent.yaml", "catalog")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestRun_InputFailover(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "script.txt")
	if err := os.WriteFile(path, []byte("pause\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "next\n", "run", "--awake", "--input", filepath.Join(dir, "missing.txt"), "--input", path)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "ok pause") {
		t.Errorf("expected the file input to take over:\n%s", out)
	}
	if strings.Contains(out, "ok next") {
		t.Errorf("stdin should not be read:\n%s", out)
	}
}

func TestReload_KeepsFlagOverrides(t *testing.T) {
	c := &cli{
		level:     new(slog.LevelVar),
		overrides: []config.Override{config.WithLogLevel(config.LogDebug), config.WithListenAddr(":7000")},
	}
	old := config.Default()
	gw := gateway.New(catalog.Default(), old.WithOverrides(c.overrides...))
	t.Cleanup(gw.Close)

	next := config.Default()
	next.Server.LogLevel = config.LogError
	next.Server.ListenAddr = ":9000"
	next.Matcher.MinConfidence = 0.9
	c.reload(gw)(old, next)

	got := gw.Config()
	if got.Server.LogLevel != config.LogDebug || got.Server.ListenAddr != ":7000" {
		t.Errorf("server = %+v, want flag overrides kept", got.Server)
	}
	if got.Matcher.MinConfidence != 0.9 {
		t.Errorf("min_confidence = %v, want reloaded 0.9", got.Matcher.MinConfidence)
	}
	if next.Server.LogLevel != config.LogError {
		t.Error("reload mutated the watcher's configuration")
	}
	if c.level.Level() != slog.LevelInfo {
		t.Errorf("level = %v, want untouched", c.level.Level())
	}
}
