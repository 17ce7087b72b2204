package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

// Logger provides structured logging for the worker
type Logger struct {
	prefix string
	logger *log.Logger
	fields []interface{}
	debug  bool
}

// NewLogger creates a new logger with a prefix writing to stdout.
// Debug output is enabled when LOG_LEVEL=debug.
func NewLogger(prefix string) *Logger {
	return NewLoggerWithWriter(prefix, os.Stdout)
}

// NewLoggerWithWriter creates a logger writing to w
func NewLoggerWithWriter(prefix string, w io.Writer) *Logger {
	return &Logger{
		prefix: prefix,
		logger: log.New(w, fmt.Sprintf("[%s] ", prefix), log.LstdFlags),
		debug:  strings.EqualFold(os.Getenv("LOG_LEVEL"), "debug"),
	}
}

// With returns a logger that adds the given key-value pairs to every line
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	fields := make([]interface{}, 0, len(l.fields)+len(keysAndValues))
	fields = append(fields, l.fields...)
	fields = append(fields, keysAndValues...)
	return &Logger{
		prefix: l.prefix,
		logger: l.logger,
		fields: fields,
		debug:  l.debug,
	}
}

// SetDebug toggles Debug output
func (l *Logger) SetDebug(enabled bool) {
	l.debug = enabled
}

// Info logs an informational message with key-value pairs
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.logWithKV("INFO", msg, keysAndValues...)
}

// Warn logs a warning message with key-value pairs
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.logWithKV("WARN", msg, keysAndValues...)
}

// Error logs an error message with key-value pairs
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.logWithKV("ERROR", msg, keysAndValues...)
}

// Debug logs a debug message with key-value pairs
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	if !l.debug {
		return
	}
	l.logWithKV("DEBUG", msg, keysAndValues...)
}

func (l *Logger) logWithKV(level, msg string, keysAndValues ...interface{}) {
	var sb strings.Builder
	writeKV(&sb, l.fields)
	writeKV(&sb, keysAndValues)
	l.logger.Printf("[%s] %s%s", level, msg, sb.String())
}

func writeKV(sb *strings.Builder, keysAndValues []interface{}) {
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fmt.Fprintf(sb, " %v=%v", keysAndValues[i], keysAndValues[i+1])
	}
}
