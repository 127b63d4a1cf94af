// Package logger wraps logrus with the service's JSON layout and
// component-scoped entries.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Fields mirrors logrus.Fields so callers need not import logrus.
type Fields map[string]interface{}

// Log wraps logrus.Logger.
type Log struct {
	*logrus.Logger
}

// Entry wraps logrus.Entry.
type Entry struct {
	*logrus.Entry
}

// Options controls where and how much the logger writes.
type Options struct {
	Level  string // trace, debug, info, warn, error; default info
	Format string // json (default) or text
	// File, when set, receives a rotated copy of every line.
	File       string
	MaxSizeMB  int
	MaxAgeDays int
}

var globalLogger = New(Options{Level: os.Getenv("LOG_LEVEL")})

// GetLogger returns the process-wide logger.
func GetLogger() *Log { return globalLogger }

// SetGlobal replaces the process-wide logger.
func SetGlobal(l *Log) { globalLogger = l }

func callerPrettyfier(f *runtime.Frame) (string, string) {
	return "", fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
}

// New builds a logger. Invalid levels fall back to info; use Configure to
// surface the error instead.
func New(opts Options) *Log {
	l := &Log{Logger: logrus.New()}
	if err := l.Configure(opts); err != nil {
		l.SetLevel(logrus.InfoLevel)
	}
	return l
}

// Configure applies opts to an existing logger.
func (l *Log) Configure(opts Options) error {
	level := strings.ToLower(opts.Level)
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level '%s'", opts.Level)
	}
	l.SetLevel(lvl)
	l.SetReportCaller(true)

	switch opts.Format {
	case "json", "":
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
			CallerPrettyfier: callerPrettyfier,
		})
	case "text":
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:    true,
			TimestampFormat:  time.RFC3339,
			CallerPrettyfier: callerPrettyfier,
		})
	default:
		return fmt.Errorf("invalid log format '%s'", opts.Format)
	}

	var out io.Writer = os.Stdout
	if opts.File != "" {
		maxSize := opts.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 100
		}
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename: opts.File,
			MaxSize:  maxSize,
			MaxAge:   opts.MaxAgeDays,
			Compress: true,
		})
	}
	l.SetOutput(out)
	return nil
}

func (l *Log) WithComponent(component string) *Entry {
	return &Entry{Entry: l.Logger.WithField("component", component)}
}

func (l *Log) WithFields(fields Fields) *Entry {
	return &Entry{Entry: l.Logger.WithFields(logrus.Fields(fields))}
}

func (l *Log) WithError(err error) *Entry {
	return &Entry{Entry: l.Logger.WithError(err)}
}

func (e *Entry) WithComponent(component string) *Entry {
	return &Entry{Entry: e.Entry.WithField("component", component)}
}

func (e *Entry) WithFields(fields Fields) *Entry {
	return &Entry{Entry: e.Entry.WithFields(logrus.Fields(fields))}
}

func (e *Entry) WithError(err error) *Entry {
	return &Entry{Entry: e.Entry.WithError(err)}
}

// Discard returns an entry that drops everything. Handy in tests.
func Discard() *Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &Entry{Entry: logrus.NewEntry(l)}
}
