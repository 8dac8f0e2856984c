// Package logging builds the zap loggers used across localrag.
//
// Loggers write to stderr so command output on stdout stays machine
// readable. Values of well-known secret keys are redacted before encoding.
package logging

import (
	"errors"
	"fmt"

	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/localrag/internal/config"
)

// Output formats.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Config configures NewLogger.
type Config struct {
	Level  zapcore.Level
	Format string

	// Caller adds the calling file and line to each entry.
	Caller bool

	// StacktraceLevel is the minimum level that records a stack trace.
	StacktraceLevel zapcore.Level

	// Fields are attached to every entry.
	Fields map[string]string

	Redaction RedactionConfig
}

// RedactionConfig lists keys and value patterns that are never written.
type RedactionConfig struct {
	Enabled  bool
	Fields   []string
	Patterns []string
}

// NewDefaultConfig returns info-level console logging with redaction on.
func NewDefaultConfig() *Config {
	return &Config{
		Level:           zapcore.InfoLevel,
		Format:          FormatConsole,
		StacktraceLevel: zapcore.ErrorLevel,
		Fields: map[string]string{
			"service": "localrag",
		},
		Redaction: RedactionConfig{
			Enabled: true,
			Fields:  []string{"api_key", "openai_api_key", "password", "secret", "token", "authorization"},
			Patterns: []string{
				`sk-[A-Za-z0-9_-]{16,}`,
				`(?i)bearer\s+[A-Za-z0-9._~+/=-]+`,
			},
		},
	}
}

// FromAppConfig derives a logging Config from the log_level and log_format
// settings.
func FromAppConfig(cfg *config.Config) (*Config, error) {
	lc := NewDefaultConfig()
	if cfg == nil {
		return lc, nil
	}
	if cfg.LogLevel != "" {
		level, err := LevelFromString(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid log_level %q: %w", cfg.LogLevel, err)
		}
		lc.Level = level
	}
	if cfg.LogFormat != "" {
		lc.Format = cfg.LogFormat
	}
	lc.Caller = lc.Level <= zapcore.DebugLevel
	if err := lc.Validate(); err != nil {
		return nil, err
	}
	return lc, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Format != FormatJSON && c.Format != FormatConsole {
		return fmt.Errorf("invalid log format %q: must be %q or %q", c.Format, FormatJSON, FormatConsole)
	}
	if c.Level < TraceLevel || c.Level > zapcore.FatalLevel {
		return errors.New("log level out of range")
	}
	return nil
}
