package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g.
// MOTTO_MATCHER_MIN_CONFIDENCE.
const EnvPrefix = "MOTTO_"

// LoadOption configures [Load] and [LoadFromReader].
type LoadOption func(*loadOptions)

type loadOptions struct {
	useEnv  bool
	environ map[string]string
}

// WithEnvironment reads overrides from environ instead of the process
// environment.
func WithEnvironment(environ map[string]string) LoadOption {
	return func(o *loadOptions) {
		o.useEnv = true
		o.environ = environ
	}
}

// WithoutEnvironment disables environment overrides.
func WithoutEnvironment() LoadOption {
	return func(o *loadOptions) { o.useEnv = false }
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string, opts ...LoadOption) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f, opts...)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default], applies
// MOTTO_* environment overrides and validates the result. An empty document
// yields the defaults.
func LoadFromReader(r io.Reader, opts ...LoadOption) (*Config, error) {
	o := loadOptions{useEnv: true}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}

	if o.useEnv {
		if err := applyEnv(cfg, o.environ); err != nil {
			return nil, err
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnvironment returns [Default] overlaid with environment overrides,
// for running without a config file.
func FromEnvironment(opts ...LoadOption) (*Config, error) {
	return LoadFromReader(bytes.NewReader(nil), opts...)
}

func applyEnv(cfg *Config, environ map[string]string) error {
	o := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		o.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, o); err != nil {
		return fmt.Errorf("config: environment overrides: %w", err)
	}
	return nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Matcher
	if c := cfg.Matcher.MinConfidence; c <= 0 || c > 1 {
		errs = append(errs, fmt.Errorf("matcher.min_confidence %.2f is out of range (0, 1]", c))
	}
	if cfg.Matcher.CacheSize <= 0 {
		errs = append(errs, fmt.Errorf("matcher.cache_size must be positive, got %d", cfg.Matcher.CacheSize))
	}
	if cfg.Matcher.HistorySize <= 0 {
		errs = append(errs, fmt.Errorf("matcher.history_size must be positive, got %d", cfg.Matcher.HistorySize))
	}
	errs = append(errs, blankEntries("matcher.favorites", cfg.Matcher.Favorites)...)

	// Suggestions
	if cfg.Suggestions.Limit <= 0 {
		errs = append(errs, fmt.Errorf("suggestions.limit must be positive, got %d", cfg.Suggestions.Limit))
	}
	if t := cfg.Suggestions.Threshold; t <= 0 || t > 1 {
		errs = append(errs, fmt.Errorf("suggestions.threshold %.2f is out of range (0, 1]", t))
	}
	if cfg.Suggestions.Threshold > cfg.Matcher.MinConfidence {
		slog.Warn("config: suggestions.threshold exceeds matcher.min_confidence; near misses will never be suggested",
			"threshold", cfg.Suggestions.Threshold,
			"min_confidence", cfg.Matcher.MinConfidence,
		)
	}

	// Wake
	errs = append(errs, blankEntries("wake.custom", cfg.Wake.Custom)...)
	errs = append(errs, blankEntries("wake.stop", cfg.Wake.Stop)...)
	errs = append(errs, blankEntries("wake.help", cfg.Wake.Help)...)
	if strings.TrimSpace(cfg.Wake.Phrase) == "" && len(cfg.Wake.Custom) == 0 {
		errs = append(errs, errors.New("wake.phrase is empty and wake.custom has no entries; sessions could never wake"))
	}

	// Compound
	errs = append(errs, blankEntries("compound.known_apps", cfg.Compound.KnownApps)...)

	// Dispatch
	if cfg.Dispatch.HandlerTimeout <= 0 {
		errs = append(errs, fmt.Errorf("dispatch.handler_timeout must be positive, got %s", cfg.Dispatch.HandlerTimeout))
	}
	if cfg.Dispatch.Breaker.MaxFailures <= 0 {
		errs = append(errs, fmt.Errorf("dispatch.breaker.max_failures must be positive, got %d", cfg.Dispatch.Breaker.MaxFailures))
	}
	if cfg.Dispatch.Breaker.ResetTimeout <= 0 {
		errs = append(errs, fmt.Errorf("dispatch.breaker.reset_timeout must be positive, got %s", cfg.Dispatch.Breaker.ResetTimeout))
	}

	// Recognition
	rc := cfg.Recognition
	if rc.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("recognition.max_retries must not be negative, got %d", rc.MaxRetries))
	}
	if rc.Backoff <= 0 {
		errs = append(errs, fmt.Errorf("recognition.backoff must be positive, got %s", rc.Backoff))
	}
	if rc.MaxBackoff < rc.Backoff {
		errs = append(errs, fmt.Errorf("recognition.max_backoff %s is shorter than recognition.backoff %s", rc.MaxBackoff, rc.Backoff))
	}
	if rc.MinConfidence < 0 || rc.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("recognition.min_confidence %.2f is out of range [0, 1]", rc.MinConfidence))
	}

	return errors.Join(errs...)
}

// blankEntries reports every empty or whitespace-only element of list.
func blankEntries(field string, list []string) []error {
	var errs []error
	for i := range list {
		if strings.TrimSpace(list[i]) == "" {
			errs = append(errs, fmt.Errorf("%s[%d] is empty", field, i))
		}
	}
	if dup := firstDuplicate(list); dup != "" {
		slog.Warn("config: duplicate list entry", "field", field, "value", dup)
	}
	return errs
}

func firstDuplicate(list []string) string {
	seen := make([]string, 0, len(list))
	for _, v := range list {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if slices.Contains(seen, key) {
			return v
		}
		seen = append(seen, key)
	}
	return ""
}
