package text

import (
	"slices"
	"testing"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"whitespace only", "   \t\n ", ""},
		{"punctuation only", "?!...,;", ""},
		{"lowercases", "GO TO HOME", "go to home"},
		{"trims and collapses", "  go   to\thome  ", "go to home"},
		{"punctuation becomes space", "go,to.home!", "go to home"},
		{"apostrophe splits", "what's up", "what s up"},
		{"diacritics folded", "Café Crème", "cafe creme"},
		{"digits kept", "Volume 11", "volume 11"},
		{"underscore is a separator", "next_track", "next track"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTokens(t *testing.T) {
	t.Parallel()

	if got := Tokens(""); len(got) != 0 {
		t.Errorf("Tokens(\"\") = %v, want empty", got)
	}

	got := Tokens("Hey, Motto! Open   settings.")
	want := []string{"hey", "motto", "open", "settings"}
	if !slices.Equal(got, want) {
		t.Errorf("Tokens() = %v, want %v", got, want)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"Go to HOME!", "  résumé , please ", "a-b_c"} {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestClean(t *testing.T) {
	t.Parallel()

	if got, want := Clean("  open   Safari,  please "), "open Safari, please"; got != want {
		t.Errorf("Clean() = %q, want %q", got, want)
	}
}

func TestFold(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want string }{
		{"Hey Mottó, play Beyoncé!", "Hey Motto, play Beyonce!"},
		{"mo\u0301tto", "motto"},
		{"plain", "plain"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Fold(tt.in); got != tt.want {
			t.Errorf("Fold(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestContainsPhrase(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text, phrase string
		want         bool
	}{
		{"Take me HOME", "take me", true},
		{"launch settings", "settings", true},
		{"good morning", "go", false},
		{"settings", "setting", false},
		{"turn the volume up please", "volume up", true},
		{"anything", "", false},
	}
	for _, tt := range tests {
		if got := ContainsPhrase(tt.text, tt.phrase); got != tt.want {
			t.Errorf("ContainsPhrase(%q, %q) = %v, want %v", tt.text, tt.phrase, got, tt.want)
		}
	}
}
