package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents log level
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// String returns the upper-case level name used in output
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Config holds logger configuration
type Config struct {
	Level  string
	Format string // "text" (default) or "json"
	Output io.Writer
}

// Logger is a leveled structured logger. Children created with
// WithComponent or With share the parent's writer and lock.
type Logger struct {
	level     Level
	json      bool
	component string
	fields    []Field
	out       *output
	now       func() time.Time
}

type output struct {
	mu sync.Mutex
	w  io.Writer
}

// Field represents a structured logging field
type Field struct {
	Key   string
	Value interface{}
}

// New creates a new logger
func New(cfg Config) *Logger {
	w := cfg.Output
	if w == nil {
		w = os.Stdout
	}

	return &Logger{
		level: parseLevel(cfg.Level),
		json:  strings.EqualFold(cfg.Format, "json"),
		out:   &output{w: w},
		now:   time.Now,
	}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return New(Config{Level: "error", Output: io.Discard})
}

// WithComponent creates a child logger with a component prefix.
// Nested components are joined with a dot.
func (l *Logger) WithComponent(component string) *Logger {
	child := l.clone()
	if l.component != "" {
		child.component = l.component + "." + component
	} else {
		child.component = component
	}
	return child
}

// With creates a child logger that appends fields to every entry.
func (l *Logger) With(fields ...Field) *Logger {
	child := l.clone()
	child.fields = append(append([]Field(nil), l.fields...), fields...)
	return child
}

// Enabled reports whether entries at level would be written.
func (l *Logger) Enabled(level Level) bool {
	return l.level <= level
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, fields ...Field) {
	l.log(DebugLevel, msg, fields)
}

// Info logs an info message
func (l *Logger) Info(msg string, fields ...Field) {
	l.log(InfoLevel, msg, fields)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, fields ...Field) {
	l.log(WarnLevel, msg, fields)
}

// Error logs an error message
func (l *Logger) Error(msg string, fields ...Field) {
	l.log(ErrorLevel, msg, fields)
}

func (l *Logger) clone() *Logger {
	c := *l
	return &c
}

func (l *Logger) log(level Level, msg string, fields []Field) {
	if !l.Enabled(level) {
		return
	}

	all := fields
	if len(l.fields) > 0 {
		all = append(append([]Field(nil), l.fields...), fields...)
	}

	var line string
	if l.json {
		line = l.formatJSON(level, msg, all)
	} else {
		line = l.formatText(level, msg, all)
	}

	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	_, _ = io.WriteString(l.out.w, line)
}

func (l *Logger) formatText(level Level, msg string, fields []Field) string {
	var b strings.Builder
	b.WriteString(l.now().Format("2006/01/02 15:04:05"))
	b.WriteByte(' ')
	if l.component != "" {
		fmt.Fprintf(&b, "[%s] ", l.component)
	}
	fmt.Fprintf(&b, "[%s] %s", level, msg)
	for _, f := range fields {
		fmt.Fprintf(&b, " %s=%v", f.Key, f.Value)
	}
	b.WriteByte('\n')
	return b.String()
}

func (l *Logger) formatJSON(level Level, msg string, fields []Field) string {
	entry := make(map[string]interface{}, len(fields)+4)
	for _, f := range fields {
		entry[f.Key] = f.Value
	}
	entry["time"] = l.now().Format(time.RFC3339Nano)
	entry["level"] = strings.ToLower(level.String())
	entry["msg"] = msg
	if l.component != "" {
		entry["component"] = l.component
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Sprintf(`{"level":"error","msg":"log marshal failed","error":%q}`+"\n", err.Error())
	}
	return string(data) + "\n"
}

func parseLevel(level string) Level {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// Field constructors

// String creates a string field
func String(key, val string) Field {
	return Field{Key: key, Value: val}
}

// Int creates an int field
func Int(key string, val int) Field {
	return Field{Key: key, Value: val}
}

// Int64 creates an int64 field
func Int64(key string, val int64) Field {
	return Field{Key: key, Value: val}
}

// Bool creates a bool field
func Bool(key string, val bool) Field {
	return Field{Key: key, Value: val}
}

// Float64 creates a float64 field
func Float64(key string, val float64) Field {
	return Field{Key: key, Value: val}
}

// Duration creates a duration field rendered as a string
func Duration(key string, val time.Duration) Field {
	return Field{Key: key, Value: val.String()}
}

// Error creates an error field
func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: "nil"}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Any creates a field with any value
func Any(key string, val interface{}) Field {
	return Field{Key: key, Value: val}
}
