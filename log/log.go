package log

import (
	"context"
	"fmt"
	"strings"
)

// Logger is the structured logging facade used across the ledger.
//
// Implementations must be safe for concurrent use. The library never logs
// amounts together with owner identifiers at a level above debug, so an
// embedding application can keep info-level logs free of balance data.
type Logger interface {
	Log(ctx context.Context, level Level, msg string, fields ...Field)
	With(fields ...Field) Logger
	WithGroup(name string) Logger
	Enabled(level Level) bool
	Sync(ctx context.Context) error
}

// Level represents the severity of a log entry.
//
// Lower numeric values indicate higher severity (LevelError=0 is most
// severe, LevelDebug=3 is least). A logger configured at LevelInfo emits
// Error, Warn, and Info entries and suppresses Debug.
type Level uint8

// Level constants, most severe first.
const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

// String returns the lowercase name of the level.
func (level Level) String() string {
	switch level {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseLevel maps a level name to its constant. "warning" is accepted as an
// alias for "warn"; matching is case-insensitive.
func ParseLevel(lvl string) (Level, error) {
	switch strings.ToLower(lvl) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}

	var l Level

	return l, fmt.Errorf("not a valid Level: %q", lvl)
}

// Field is a strongly-typed key/value attribute attached to a log event.
type Field struct {
	Key   string
	Value any
}

// Any creates a field with an arbitrary value.
//
// Prefer the typed constructors (String, Int64, Bool, Err, Stringer) so the
// value shape stays predictable in log pipelines.
func Any(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// String creates a string field.
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an integer field.
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Int64 creates an int64 field. Ledger amounts are int64, so this is the
// constructor used for amount attributes.
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a boolean field.
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Stringer creates a field from a fmt.Stringer, evaluated eagerly. Used for
// UUIDs and operation types.
func Stringer(key string, value fmt.Stringer) Field {
	return Field{Key: key, Value: value.String()}
}

// Err creates the conventional `error` field.
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}
