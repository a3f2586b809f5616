package logging

import (
	"fmt"
	"strings"
)

// Format of the diagnostic log stream
const (
	FormatPretty = "pretty"
	FormatJSONL  = "jsonl"
)

type Config struct {
	Format string
	Level  string
	Output string
}

func DefaultConfig() Config {
	return Config{
		Format: FormatPretty,
		Level:  LevelInfo,
		Output: "stderr",
	}
}

// Validate rejects formats and levels the logger does not know.
func (c Config) Validate() error {
	switch strings.ToLower(c.Format) {
	case "", FormatPretty, FormatJSONL:
	default:
		return fmt.Errorf("log format must be %q or %q, got %q", FormatPretty, FormatJSONL, c.Format)
	}
	switch strings.ToLower(c.Level) {
	case "", LevelDebug, LevelInfo, LevelWarn, LevelError:
	default:
		return fmt.Errorf("unknown log level %q", c.Level)
	}
	return nil
}

const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

func levelPriority(level string) int {
	switch strings.ToLower(level) {
	case LevelDebug:
		return 0
	case LevelInfo:
		return 1
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	default:
		return 1
	}
}
