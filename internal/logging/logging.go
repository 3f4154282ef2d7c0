// Package logging builds the structured loggers used across IndexGo.
package logging

import (
	"io"
	"os"

	"github.com/phuslu/log"
)

// New creates a logger at level writing to w. Terminals get the colored
// console format, everything else gets JSON lines.
func New(level string, w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}

	var writer log.Writer = &log.IOWriter{Writer: w}
	if f, ok := w.(*os.File); ok && log.IsTerminal(f.Fd()) {
		writer = &log.ConsoleWriter{
			ColorOutput:    true,
			EndWithMessage: true,
			Writer:         w,
		}
	}

	return &log.Logger{
		Level:      parseLevel(level),
		TimeFormat: "15:04:05",
		Writer:     writer,
	}
}

// Silent discards everything. Tests and library callers without a logger use it.
func Silent() *log.Logger {
	return &log.Logger{
		Level:  log.PanicLevel,
		Writer: &log.IOWriter{Writer: io.Discard},
	}
}

// OrSilent returns l, or a silent logger when l is nil.
func OrSilent(l *log.Logger) *log.Logger {
	if l == nil {
		return Silent()
	}
	return l
}

func parseLevel(level string) log.Level {
	if level == "" {
		return log.InfoLevel
	}
	return log.ParseLevel(level)
}
