// Package logging wraps the standard library logger the way blackhole.go
// uses it directly: terse, prefixed log.Printf calls, no structured
// logging framework.
package logging

import (
	"log"
	"os"
)

// Logger is a per-component *log.Logger with a bracketed name prefix.
type Logger struct {
	*log.Logger
	level Level
}

// Level gates Debugf calls; Infof/Warnf/Errorf always print, matching the
// teacher's unconditional log.Printf usage.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// New creates a Logger writing to stderr with a "[name] " prefix.
func New(name string, level Level) *Logger {
	return &Logger{
		Logger: log.New(os.Stderr, "["+name+"] ", log.LstdFlags),
		level:  level,
	}
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	if l.level <= LevelDebug {
		l.Printf(format, args...)
	}
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.Printf(format, args...)
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.Printf("WARNING: "+format, args...)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.Printf("ERROR: "+format, args...)
}
