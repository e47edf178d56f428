// Package logging builds the root zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

const permission = 0o664

// Format selects the output encoding.
type Format string

const (
	FormatAuto    Format = "auto"
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// Builder assembles a logger step by step.
type Builder struct {
	writer io.Writer
	path   string
	level  string
	format Format
}

// Logs is a built logger and the file behind it, if any.
type Logs struct {
	Logger  zerolog.Logger
	LogFile *os.File
}

func New() *Builder {
	return &Builder{format: FormatAuto, level: "info"}
}

// FromPath appends to a file instead of writing to the configured writer.
func (b *Builder) FromPath(path string) *Builder {
	b.path = path
	return b
}

func (b *Builder) FromWriter(w io.Writer) *Builder {
	b.writer = w
	return b
}

func (b *Builder) Level(level string) *Builder {
	b.level = level
	return b
}

func (b *Builder) Format(f string) *Builder {
	b.format = Format(f)
	return b
}

// Make builds the logger. The default writer is stdout.
func (b *Builder) Make() (*Logs, error) {
	level, err := zerolog.ParseLevel(b.level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	logs := &Logs{}
	w := b.writer
	if w == nil {
		w = os.Stdout
	}
	if b.path != "" {
		logs.LogFile, err = os.OpenFile(b.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, permission)
		if err != nil {
			return nil, err
		}
		w = zerolog.SyncWriter(logs.LogFile)
	}

	switch b.format {
	case FormatConsole:
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly, NoColor: !isTerminal(w)}
	case FormatAuto, "":
		if isTerminal(w) {
			w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
		}
	case FormatJSON:
	default:
		return nil, fmt.Errorf("unknown log format %q", b.format)
	}

	logs.Logger = zerolog.New(w).Level(level).With().Timestamp().Logger()
	return logs, nil
}

// Close closes the log file, if one was opened.
func (l *Logs) Close() error {
	if l.LogFile == nil {
		return nil
	}
	return l.LogFile.Close()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
