// Package config defines the motto configuration schema and loading logic.
//
// The configuration is read from a YAML file, overlaid with MOTTO_*
// environment variables and validated before use. Fields left unset take
// the values returned by [Default].
package config

import (
	"log/slog"
	"slices"
	"time"

	"github.com/MrWong99/motto/internal/compound"
	"github.com/MrWong99/motto/internal/dispatch"
	"github.com/MrWong99/motto/internal/matcher"
	"github.com/MrWong99/motto/internal/wakeword"
)

// LogLevel controls the minimum severity of emitted log records.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is one of the recognised log levels.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel maps l to the matching [slog.Level]. Unknown values map to
// [slog.LevelInfo].
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure.
// A Config returned by the loaders is never mutated afterwards; a reload
// produces a new value.
type Config struct {
	Server      ServerConfig      `yaml:"server" envPrefix:"SERVER_"`
	Matcher     MatcherConfig     `yaml:"matcher" envPrefix:"MATCHER_"`
	Suggestions SuggestionsConfig `yaml:"suggestions" envPrefix:"SUGGESTIONS_"`
	Wake        WakeConfig        `yaml:"wake" envPrefix:"WAKE_"`
	Compound    CompoundConfig    `yaml:"compound" envPrefix:"COMPOUND_"`
	Dispatch    DispatchConfig    `yaml:"dispatch" envPrefix:"DISPATCH_"`
	Recognition RecognitionConfig `yaml:"recognition" envPrefix:"RECOGNITION_"`
}

// ServerConfig holds process-level settings.
type ServerConfig struct {
	// ListenAddr is the TCP address served by "motto serve" (e.g. ":8080").
	ListenAddr string `yaml:"listen_addr" env:"LISTEN_ADDR"`

	// LogLevel sets the minimum log severity.
	LogLevel LogLevel `yaml:"log_level" env:"LOG_LEVEL"`

	// CatalogPath optionally replaces the built-in command catalog with a
	// YAML table read from disk.
	CatalogPath string `yaml:"catalog_path" env:"CATALOG_PATH"`
}

// MatcherConfig tunes command matching.
type MatcherConfig struct {
	// MinConfidence is the lowest fuzzy score accepted as a match.
	MinConfidence float64 `yaml:"min_confidence" env:"MIN_CONFIDENCE"`

	// CacheSize bounds the per-matcher result cache.
	CacheSize int `yaml:"cache_size" env:"CACHE_SIZE"`

	// HistorySize bounds the recent-command history used as context.
	HistorySize int `yaml:"history_size" env:"HISTORY_SIZE"`

	// Favorites are command phrases that receive a fuzzy-match bonus.
	Favorites []string `yaml:"favorites" env:"FAVORITES"`
}

// SuggestionsConfig tunes near-miss suggestions.
type SuggestionsConfig struct {
	Limit     int     `yaml:"limit" env:"LIMIT"`
	Threshold float64 `yaml:"threshold" env:"THRESHOLD"`
}

// WakeConfig configures the wake-word filter and session control phrases.
type WakeConfig struct {
	Phrase   string   `yaml:"phrase" env:"PHRASE"`
	Custom   []string `yaml:"custom" env:"CUSTOM"`
	Stop     []string `yaml:"stop" env:"STOP"`
	Help     []string `yaml:"help" env:"HELP"`
	Phonetic bool     `yaml:"phonetic" env:"PHONETIC"`
}

// CompoundConfig configures compound command splitting.
type CompoundConfig struct {
	KnownApps     []string `yaml:"known_apps" env:"KNOWN_APPS"`
	StopOnFailure bool     `yaml:"stop_on_failure" env:"STOP_ON_FAILURE"`
}

// DispatchConfig configures command execution.
type DispatchConfig struct {
	HandlerTimeout time.Duration `yaml:"handler_timeout" env:"HANDLER_TIMEOUT"`
	Breaker        BreakerConfig `yaml:"breaker" envPrefix:"BREAKER_"`
}

// BreakerConfig configures the per-action circuit breakers.
type BreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures" env:"MAX_FAILURES"`
	ResetTimeout time.Duration `yaml:"reset_timeout" env:"RESET_TIMEOUT"`
}

// RecognitionConfig configures speech recognition restarts and filtering.
type RecognitionConfig struct {
	MaxRetries int           `yaml:"max_retries" env:"MAX_RETRIES"`
	Backoff    time.Duration `yaml:"backoff" env:"BACKOFF"`
	MaxBackoff time.Duration `yaml:"max_backoff" env:"MAX_BACKOFF"`

	// MinConfidence rejects transcripts the recognizer is less sure of.
	// Zero disables the check.
	MinConfidence float64 `yaml:"min_confidence" env:"MIN_CONFIDENCE"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
		},
		Matcher: MatcherConfig{
			MinConfidence: matcher.DefaultMinConfidence,
			CacheSize:     matcher.DefaultCacheSize,
			HistorySize:   dispatch.DefaultHistorySize,
		},
		Suggestions: SuggestionsConfig{
			Limit:     matcher.DefaultSuggestLimit,
			Threshold: matcher.DefaultSuggestMinScore,
		},
		Wake: WakeConfig{
			Phrase: wakeword.DefaultPhrase,
			Stop:   []string{wakeword.DefaultStopPhrase},
			Help:   []string{wakeword.DefaultHelpPhrase},
		},
		Compound: CompoundConfig{
			KnownApps: slices.Clone(compound.DefaultKnownApps),
		},
		Dispatch: DispatchConfig{
			HandlerTimeout: dispatch.DefaultHandlerTimeout,
			Breaker: BreakerConfig{
				MaxFailures:  5,
				ResetTimeout: 30 * time.Second,
			},
		},
		Recognition: RecognitionConfig{
			MaxRetries: 5,
			Backoff:    1500 * time.Millisecond,
			MaxBackoff: 30 * time.Second,
		},
	}
}
