// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"sync"

	"github.com/nimburion/adapter-registry/pkg/observability/logger"
)

// LogEntry represents a single log entry captured by RecordingLogger.
type LogEntry struct {
	Level  string
	Msg    string
	Fields map[string]interface{}
}

type sink struct {
	mu      sync.Mutex
	entries []LogEntry
}

// RecordingLogger captures log entries for assertions. Safe for concurrent use.
// Child loggers created by With write to the parent's sink.
type RecordingLogger struct {
	fields []any
	sink   *sink
}

// NewRecordingLogger returns an empty RecordingLogger.
func NewRecordingLogger() *RecordingLogger {
	return &RecordingLogger{sink: &sink{}}
}

func (m *RecordingLogger) Debug(msg string, args ...any) { m.record("debug", msg, args) }
func (m *RecordingLogger) Info(msg string, args ...any)  { m.record("info", msg, args) }
func (m *RecordingLogger) Warn(msg string, args ...any)  { m.record("warn", msg, args) }
func (m *RecordingLogger) Error(msg string, args ...any) { m.record("error", msg, args) }

// With returns a child logger sharing the same sink.
func (m *RecordingLogger) With(args ...any) logger.Logger {
	fields := append(append([]any{}, m.fields...), args...)
	return &RecordingLogger{fields: fields, sink: m.sink}
}

// WithContext returns the same logger.
func (m *RecordingLogger) WithContext(context.Context) logger.Logger {
	return m
}

// Entries returns a copy of the captured entries.
func (m *RecordingLogger) Entries() []LogEntry {
	m.sink.mu.Lock()
	defer m.sink.mu.Unlock()
	return append([]LogEntry(nil), m.sink.entries...)
}

// Has reports whether an entry with the given level and message was captured.
func (m *RecordingLogger) Has(level, msg string) bool {
	for _, e := range m.Entries() {
		if e.Level == level && e.Msg == msg {
			return true
		}
	}
	return false
}

func (m *RecordingLogger) record(level, msg string, args []any) {
	fields := argsToMap(append(append([]any{}, m.fields...), args...))
	m.sink.mu.Lock()
	defer m.sink.mu.Unlock()
	m.sink.entries = append(m.sink.entries, LogEntry{Level: level, Msg: msg, Fields: fields})
}

func argsToMap(args []any) map[string]interface{} {
	fields := make(map[string]interface{})
	for i := 0; i < len(args)-1; i += 2 {
		if key, ok := args[i].(string); ok {
			fields[key] = args[i+1]
		}
	}
	return fields
}
