package utils

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger keeps the printf-style call sites of the client while routing
// through logrus so entries carry fields and a configurable format.
type Logger struct {
	entry *logrus.Entry
}

func NewLogger(level string) *Logger {
	return NewLoggerWithOutput(level, "text", os.Stderr)
}

func NewLoggerWithOutput(level, format string, out io.Writer) *Logger {
	base := logrus.New()
	base.SetOutput(out)
	lvl, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	base.SetLevel(lvl)
	if strings.EqualFold(format, "json") {
		base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
	}
	return &Logger{entry: logrus.NewEntry(base)}
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *Logger {
	return NewLoggerWithOutput("panic", "text", io.Discard)
}

func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

func (l *Logger) WithFields(fields map[string]any) *Logger {
	return &Logger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

func (l *Logger) Debugf(format string, args ...any) {
	l.entry.Debugf(format, args...)
}

func (l *Logger) Infof(format string, args ...any) {
	l.entry.Infof(format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	l.entry.Warnf(format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.entry.Errorf(format, args...)
}
