// Package chomplog prints one line per Job start/complete/cached event,
// using the original driver's glyphs, and can mirror the same lines to a
// per-invocation run-log file (RunLog) — adapted from the teacher's
// logs.Writer session-log idiom, slimmed from per-task session directories
// to one log per chomp invocation. Run logs are not rotated.
package chomplog

import (
	"io"
	"log"
	"os"
	"time"
)

const (
	glyphRunning = "○"
	glyphDone    = "√"
	glyphCached  = "●"
	glyphFailed  = "✗"
)

// Logger writes job lifecycle lines to the writers it was created with
// (for example a RunLog.Writer wrapping stdout).
type Logger struct {
	out *log.Logger
	err *log.Logger
}

// New creates a Logger writing to the given writers (normally os.Stdout/
// os.Stderr, or a RunLog.Writer over them).
func New(stdout, stderr io.Writer) *Logger {
	return &Logger{
		out: log.New(stdout, "", 0),
		err: log.New(stderr, "", 0),
	}
}

// Default is a Logger over the process's own stdout/stderr.
func Default() *Logger {
	return New(os.Stdout, os.Stderr)
}

func (l *Logger) JobStart(name string) {
	l.out.Printf("%s %s", glyphRunning, name)
}

func (l *Logger) JobComplete(name string, d time.Duration) {
	l.out.Printf("%s %s %s", glyphDone, name, d.Round(time.Millisecond))
}

func (l *Logger) JobCached(name string) {
	l.out.Printf("%s %s (cached)", glyphCached, name)
}

func (l *Logger) JobFailed(name string, err error) {
	l.err.Printf("%s %s: %v", glyphFailed, name, err)
}

func (l *Logger) Infof(format string, args ...any) {
	l.out.Printf(format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.err.Printf(format, args...)
}
