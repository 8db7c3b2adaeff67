// Package logx wraps logrus behind a small structured-logging facade so call
// sites pass flat key/value pairs instead of building logrus.Fields by hand.
package logx

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is a structured logger. The zero value is not usable; construct one
// with New or Default.
type Logger struct {
	entry *logrus.Entry
}

// Options configures a Logger.
type Options struct {
	Level  string // "debug", "info", "warn", "error"; default "info"
	Output io.Writer
	JSON   bool
}

// New builds a Logger from Options.
func New(opts Options) *Logger {
	base := logrus.New()
	if opts.Output != nil {
		base.SetOutput(opts.Output)
	} else {
		base.SetOutput(os.Stderr)
	}
	if opts.JSON {
		base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	base.SetLevel(parseLevel(opts.Level))
	return &Logger{entry: logrus.NewEntry(base)}
}

// Default returns a Logger writing text-formatted "info" level logs to stderr.
func Default() *Logger {
	return New(Options{Level: "info"})
}

func parseLevel(level string) logrus.Level {
	lv, err := logrus.ParseLevel(level)
	if err != nil {
		return logrus.InfoLevel
	}
	return lv
}

// With returns a child logger carrying the given key/value pairs on every
// subsequent call. args must be an even-length list of alternating keys and
// values, matching the call convention of Debug/Info/Warn/Error.
func (l *Logger) With(args ...interface{}) *Logger {
	return &Logger{entry: l.entry.WithFields(fieldsFrom(args))}
}

func (l *Logger) Debug(msg string, args ...interface{}) {
	l.entry.WithFields(fieldsFrom(args)).Debug(msg)
}

func (l *Logger) Info(msg string, args ...interface{}) {
	l.entry.WithFields(fieldsFrom(args)).Info(msg)
}

func (l *Logger) Warn(msg string, args ...interface{}) {
	l.entry.WithFields(fieldsFrom(args)).Warn(msg)
}

func (l *Logger) Error(msg string, args ...interface{}) {
	l.entry.WithFields(fieldsFrom(args)).Error(msg)
}

func fieldsFrom(args []interface{}) logrus.Fields {
	fields := make(logrus.Fields, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		fields[key] = args[i+1]
	}
	return fields
}
