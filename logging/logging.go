// Package logging provides the leveled, structured logger used across
// the server. Output is one line per event, either JSON for machine
// consumption or a human-readable form for watching a local server in
// a terminal.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"
)

// Level is the severity of a log event.
type Level int8

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int8(l))
	}
}

// ParseLevel converts a configuration string into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// Format selects the output encoding.
type Format string

const (
	JSONFormat  Format = "json"
	HumanFormat Format = "human"
)

// Fields carries structured key/value context for one event.
type Fields map[string]any

// Config holds logger construction options.
type Config struct {
	Level  Level
	Format Format
	Output io.Writer // defaults to stderr
}

// Logger writes leveled events. A Logger is cheap to derive with With
// and safe to share; the serving model is single-threaded so no
// locking is done around the writer.
type Logger struct {
	level  Level
	format Format
	out    io.Writer
	base   Fields
}

// New builds a Logger from config, applying defaults for zero values.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	format := cfg.Format
	if format == "" {
		format = HumanFormat
	}
	return &Logger{level: cfg.Level, format: format, out: out}
}

// Nop returns a logger that discards everything. Handy in tests.
func Nop() *Logger {
	return &Logger{level: ErrorLevel + 1, format: HumanFormat, out: io.Discard}
}

// With returns a child logger whose events always carry the given
// fields, e.g. a per-request ID.
func (l *Logger) With(fields Fields) *Logger {
	merged := make(Fields, len(l.base)+len(fields))
	for k, v := range l.base {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{level: l.level, format: l.format, out: l.out, base: merged}
}

func (l *Logger) Debug(msg string, fields Fields) { l.log(DebugLevel, msg, fields) }
func (l *Logger) Info(msg string, fields Fields)  { l.log(InfoLevel, msg, fields) }
func (l *Logger) Warn(msg string, fields Fields)  { l.log(WarnLevel, msg, fields) }
func (l *Logger) Error(msg string, fields Fields) { l.log(ErrorLevel, msg, fields) }

func (l *Logger) log(level Level, msg string, fields Fields) {
	if level < l.level {
		return
	}
	all := make(Fields, len(l.base)+len(fields))
	for k, v := range l.base {
		all[k] = v
	}
	for k, v := range fields {
		all[k] = v
	}
	stamp := time.Now().UTC().Format(time.RFC3339)
	if l.format == JSONFormat {
		l.writeJSON(stamp, level, msg, all)
	} else {
		l.writeHuman(stamp, level, msg, all)
	}
}

type jsonEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	Fields    Fields `json:"fields,omitempty"`
}

func (l *Logger) writeJSON(stamp string, level Level, msg string, fields Fields) {
	data, err := json.Marshal(jsonEntry{
		Timestamp: stamp,
		Level:     level.String(),
		Message:   msg,
		Fields:    fields,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: marshal entry: %v\n", err)
		return
	}
	data = append(data, '\n')
	_, _ = l.out.Write(data)
}

func (l *Logger) writeHuman(stamp string, level Level, msg string, fields Fields) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] %s", stamp, level, msg)
	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" |")
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, fields[k])
		}
	}
	b.WriteByte('\n')
	_, _ = io.WriteString(l.out, b.String())
}
