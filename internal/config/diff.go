package config

import "reflect"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// Sections lists the top-level sections whose values differ, in schema
	// order (e.g. "matcher", "wake").
	Sections []string

	// RestartRequired is set when a change only takes effect after the
	// process restarts (listen address or catalog path).
	RestartRequired bool
}

// Changed reports whether anything differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || len(d.Sections) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Server.ListenAddr != new.Server.ListenAddr || old.Server.CatalogPath != new.Server.CatalogPath {
		d.RestartRequired = true
	}

	sections := []struct {
		name     string
		old, new any
	}{
		{"server", old.Server, new.Server},
		{"matcher", old.Matcher, new.Matcher},
		{"suggestions", old.Suggestions, new.Suggestions},
		{"wake", old.Wake, new.Wake},
		{"compound", old.Compound, new.Compound},
		{"dispatch", old.Dispatch, new.Dispatch},
		{"recognition", old.Recognition, new.Recognition},
	}
	for _, s := range sections {
		if !reflect.DeepEqual(s.old, s.new) {
			d.Sections = append(d.Sections, s.name)
		}
	}
	return d
}
