// Package catalog holds the static table of executable voice commands.
//
// A [Catalog] is built once at startup, normally from the compiled-in
// default table via [Default], and never changes afterwards. Entries keep
// their declaration order, which is the iteration order used by the matcher:
// when two commands share an alias, the one declared first wins.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/motto/internal/text"
)

// Category groups commands by the part of the app they drive.
type Category string

const (
	Navigation Category = "navigation"
	Media      Category = "media"
	Collection Category = "collection"
	Analytics  Category = "analytics"
	Utility    Category = "utility"
)

// Categories lists all categories in display order.
var Categories = []Category{Navigation, Media, Collection, Analytics, Utility}

// IsValid reports whether c is a recognised category.
func (c Category) IsValid() bool {
	return slices.Contains(Categories, c)
}

// Entry is a single catalog command.
//
// Entries are handed out by value. DefaultParams and Aliases are shared with
// the catalog and must be treated as read-only; use [Entry.Params] for a
// private copy.
type Entry struct {
	// Key is the canonical, normalised command phrase. Unique per catalog.
	Key string `yaml:"key"`

	// Action names the handler that executes this command. May be empty for
	// informational entries, which the dispatcher refuses to run.
	Action string `yaml:"action"`

	// DefaultParams are passed to the handler unless overridden.
	DefaultParams map[string]any `yaml:"params"`

	// Aliases are alternative normalised phrases that resolve to this entry.
	Aliases []string `yaml:"aliases"`

	// Category groups the command for help listings.
	Category Category `yaml:"category"`

	// Confidence is the author-declared base confidence in (0, 1]. It is
	// informational and does not influence matching.
	Confidence float64 `yaml:"confidence"`
}

// Params returns a copy of the entry's default parameters. Never nil.
func (e Entry) Params() map[string]any {
	if e.DefaultParams == nil {
		return make(map[string]any)
	}
	return maps.Clone(e.DefaultParams)
}

// Catalog is an immutable, ordered command table. All methods are safe for
// concurrent use.
type Catalog struct {
	entries []Entry
	byKey   map[string]int
}

// file is the YAML document layout of a catalog table.
type file struct {
	Commands []Entry `yaml:"commands"`
}

// New builds a catalog from entries in the given order. Aliases are
// normalised; keys must already be in normalised form. All validation
// failures are returned joined.
func New(entries ...Entry) (*Catalog, error) {
	c := &Catalog{
		entries: make([]Entry, 0, len(entries)),
		byKey:   make(map[string]int, len(entries)),
	}

	var errs []error
	for i, e := range entries {
		prefix := fmt.Sprintf("commands[%d]", i)
		switch {
		case e.Key == "":
			errs = append(errs, fmt.Errorf("%s.key is required", prefix))
			continue
		case text.Normalize(e.Key) != e.Key:
			errs = append(errs, fmt.Errorf("%s.key %q is not normalised (want %q)", prefix, e.Key, text.Normalize(e.Key)))
			continue
		}
		if prev, dup := c.byKey[e.Key]; dup {
			errs = append(errs, fmt.Errorf("%s.key %q is a duplicate of commands[%d]", prefix, e.Key, prev))
			continue
		}
		if !e.Category.IsValid() {
			errs = append(errs, fmt.Errorf("%s.category %q is invalid; valid values: %v", prefix, e.Category, Categories))
		}
		if e.Confidence <= 0 || e.Confidence > 1 {
			errs = append(errs, fmt.Errorf("%s.confidence %.2f is out of range (0, 1]", prefix, e.Confidence))
		}
		if e.Action == "" {
			slog.Warn("catalog: command has no action and cannot be executed", "key", e.Key)
		}

		aliases := make([]string, 0, len(e.Aliases))
		for _, a := range e.Aliases {
			if n := text.Normalize(a); n != "" {
				aliases = append(aliases, n)
			}
		}
		e.Aliases = aliases
		if e.DefaultParams != nil {
			e.DefaultParams = maps.Clone(e.DefaultParams)
		}

		c.byKey[e.Key] = len(c.entries)
		c.entries = append(c.entries, e)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("catalog: invalid table: %w", err)
	}
	return c, nil
}

// Load decodes a YAML catalog table from r. Unknown fields are rejected.
func Load(r io.Reader) (*Catalog, error) {
	var f file
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("catalog: decode yaml: %w", err)
	}
	return New(f.Commands...)
}

//go:embed default.yaml
var defaultTable []byte

var loadDefault = sync.OnceValues(func() (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(defaultTable, &f); err != nil {
		return nil, fmt.Errorf("catalog: decode built-in table: %w", err)
	}
	return New(f.Commands...)
})

// Default returns the compiled-in command catalog. It is parsed once on
// first use. Panics if the built-in table is invalid, which is a build
// defect covered by the package tests.
func Default() *Catalog {
	c, err := loadDefault()
	if err != nil {
		panic(err)
	}
	return c
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// Lookup returns the entry with the given key.
func (c *Catalog) Lookup(key string) (Entry, bool) {
	i, ok := c.byKey[key]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i], true
}

// All iterates entries in declaration order.
func (c *Catalog) All() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for _, e := range c.entries {
			if !yield(e) {
				return
			}
		}
	}
}

// Entries returns a copy of all entries in declaration order.
func (c *Catalog) Entries() []Entry {
	return slices.Clone(c.entries)
}

// Keys returns every command key in declaration order.
func (c *Catalog) Keys() []string {
	keys := make([]string, len(c.entries))
	for i, e := range c.entries {
		keys[i] = e.Key
	}
	return keys
}

// ByCategory returns the entries of one category in declaration order.
func (c *Catalog) ByCategory(cat Category) []Entry {
	var out []Entry
	for _, e := range c.entries {
		if e.Category == cat {
			out = append(out, e)
		}
	}
	return out
}

// Actions returns the distinct action names referenced by the catalog, in
// first-seen order.
func (c *Catalog) Actions() []string {
	var out []string
	for _, e := range c.entries {
		if e.Action != "" && !slices.Contains(out, e.Action) {
			out = append(out, e.Action)
		}
	}
	return out
}
