package log

import (
	"fmt"
	"strings"
)

// Logger is the logging surface every component of the module depends on.
type Logger interface {
	Debug(...any)
	Debugf(string, ...any)
	Info(...any)
	Infof(string, ...any)
	Warn(...any)
	Warnf(string, ...any)
	Error(...any)
	Errorf(string, ...any)
	// With returns a child logger that adds the key/value pair to every entry.
	With(key string, value any) Logger
	// LogLevel returns the minimum level being emitted.
	LogLevel() Level
}

// Level specifies the log level
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarningLevel
	ErrorLevel
	Disabled
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarningLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	case Disabled:
		return "disabled"
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// ParseLevel maps a configuration string onto a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarningLevel, nil
	case "error":
		return ErrorLevel, nil
	case "off", "disabled", "none":
		return Disabled, nil
	}
	return InfoLevel, fmt.Errorf("log: unknown level %q", s)
}
