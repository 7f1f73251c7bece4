// Copyright 2024 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
// Package logger provides the shared logging interface used throughout the
// engine, modeled on a familiar logger package; the monitor-exception
// hook is dropped since there is no monitoring subsystem in this core.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

const rfc3339UsecTZ0 = "2006-01-02T15:04:05.000000Z07:00"

// Logger represents the shared logging interface. Every component that can
// fail, retry, or take a slow path logs through this interface rather than
// calling fmt.Println or the log package directly.
type Logger interface {
	Debugf(format string, v ...interface{})
	Infof(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
	Panicf(format string, v ...interface{})
	// WithPrefix returns a new Logger with the same configuration as this
	// one, but all messages will carry the given prefix.
	WithPrefix(prefix string) Logger
}

const (
	LevelPanic = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
)

func levelPrefix(level int) string {
	return [...]string{"PANIC: ", "ERROR: ", "WARN:  ", "INFO:  ", "DEBUG: "}[level]
}

// NopLogger discards everything. Used as the default when no logger is
// configured on a Context.
var NopLogger Logger = &nopLogger{}

type nopLogger struct{}

func (n *nopLogger) Debugf(string, ...interface{}) {}
func (n *nopLogger) Infof(string, ...interface{})  {}
func (n *nopLogger) Warnf(string, ...interface{})  {}
func (n *nopLogger) Errorf(string, ...interface{}) {}
func (n *nopLogger) Panicf(string, ...interface{}) {}
func (n *nopLogger) WithPrefix(string) Logger      { return n }

// standardLogger is a basic Logger backed by the stdlib log package, with an
// optional zap.Logger sink for structured output.
type standardLogger struct {
	logger    *log.Logger
	verbosity int
	prefix    string
	w         io.Writer
	structured *zap.Logger
}

type formatLog struct{ w io.Writer }

func (fl formatLog) Write(b []byte) (int, error) {
	return fmt.Fprintf(fl.w, "%v %v", time.Now().UTC().Format(rfc3339UsecTZ0), string(b))
}

func newStandardLogger(w io.Writer, verbosity int, prefix string, structured *zap.Logger) *standardLogger {
	l := log.New(w, prefix, 0)
	l.SetOutput(formatLog{w: w})
	return &standardLogger{logger: l, verbosity: verbosity, prefix: prefix, w: w, structured: structured}
}

// NewStandardLogger returns a Logger that writes plain lines to w at Info
// verbosity.
func NewStandardLogger(w io.Writer) Logger {
	return newStandardLogger(w, LevelInfo, "", nil)
}

// NewVerboseLogger returns a Logger that writes plain lines to w including
// Debug-level messages.
func NewVerboseLogger(w io.Writer) Logger {
	return newStandardLogger(w, LevelDebug, "", nil)
}

// NewStructuredLogger wraps a *zap.Logger behind the Logger interface, for
// deployments that want JSON-structured output instead of plain lines.
func NewStructuredLogger(z *zap.Logger) Logger {
	return newStandardLogger(os.Stderr, LevelDebug, "", z)
}

var StderrLogger = NewStandardLogger(os.Stderr)

func (s *standardLogger) printf(level int, format string, v ...interface{}) {
	if level > s.verbosity {
		return
	}
	if s.structured != nil {
		msg := fmt.Sprintf(format, v...)
		switch level {
		case LevelDebug:
			s.structured.Debug(msg)
		case LevelWarn:
			s.structured.Warn(msg)
		case LevelError:
			s.structured.Error(msg)
		case LevelPanic:
			s.structured.Error(msg)
		default:
			s.structured.Info(msg)
		}
		return
	}
	s.logger.Printf(levelPrefix(level)+format, v...)
}

func (s *standardLogger) Debugf(format string, v ...interface{}) { s.printf(LevelDebug, format, v...) }
func (s *standardLogger) Infof(format string, v ...interface{})  { s.printf(LevelInfo, format, v...) }
func (s *standardLogger) Warnf(format string, v ...interface{})  { s.printf(LevelWarn, format, v...) }
func (s *standardLogger) Errorf(format string, v ...interface{}) { s.printf(LevelError, format, v...) }
func (s *standardLogger) Panicf(format string, v ...interface{}) { s.printf(LevelPanic, format, v...) }

func (s *standardLogger) WithPrefix(prefix string) Logger {
	return newStandardLogger(s.w, s.verbosity, prefix, s.structured)
}

// BufferLogger is a test Logger that accumulates messages in memory so tests
// can assert on what was logged.
type BufferLogger struct {
	mu   sync.Mutex
	msgs []string
}

func NewBufferLogger() *BufferLogger { return &BufferLogger{} }

func (b *BufferLogger) append(level int, format string, v ...interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, levelPrefix(level)+fmt.Sprintf(format, v...))
}

func (b *BufferLogger) Debugf(format string, v ...interface{}) { b.append(LevelDebug, format, v...) }
func (b *BufferLogger) Infof(format string, v ...interface{})  { b.append(LevelInfo, format, v...) }
func (b *BufferLogger) Warnf(format string, v ...interface{})  { b.append(LevelWarn, format, v...) }
func (b *BufferLogger) Errorf(format string, v ...interface{}) { b.append(LevelError, format, v...) }
func (b *BufferLogger) Panicf(format string, v ...interface{}) { b.append(LevelPanic, format, v...) }
func (b *BufferLogger) WithPrefix(string) Logger                { return b }

// Messages returns a snapshot of everything logged so far.
func (b *BufferLogger) Messages() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.msgs))
	copy(out, b.msgs)
	return out
}
