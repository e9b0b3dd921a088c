// Package logging creates the named loggers used across trapsim.
package logging

import (
	"fmt"
	"io"
	"os"
	"path"

	"github.com/sirupsen/logrus"
)

// NamedLogger creates a logger that writes to stderr at info level. Every
// message carries the logger name and the caller location.
func NamedLogger(name string) *logrus.Logger {
	return &logrus.Logger{
		Out: os.Stderr,
		Formatter: &TextFormatter{
			TextFormatter: logrus.TextFormatter{
				FullTimestamp: true,
			},
			Name: name,
		},
		Hooks:        make(logrus.LevelHooks),
		Level:        logrus.InfoLevel,
		ReportCaller: true,
	}
}

// Discard returns a logger that drops every message.
func Discard() *logrus.Logger {
	l := NamedLogger("discard")
	l.SetOutput(io.Discard)

	return l
}

// TextFormatter prefixes messages with the logger name and the caller.
type TextFormatter struct {
	logrus.TextFormatter
	Name string
}

// Format renders a single log entry
func (f *TextFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	prefix := f.Name
	if entry.HasCaller() {
		prefix = fmt.Sprintf("%s %s:%03d",
			f.Name, path.Base(entry.Caller.File), entry.Caller.Line)
	}

	e := *entry
	e.Message = fmt.Sprintf("[%-24s] %s", prefix, entry.Message)
	e.Caller = nil

	return f.TextFormatter.Format(&e)
}

// ParseLevel converts a level name to a logrus level.
func ParseLevel(name string) (logrus.Level, error) {
	level, err := logrus.ParseLevel(name)
	if err != nil {
		return level, fmt.Errorf("unknown log level %q", name)
	}

	return level, nil
}
