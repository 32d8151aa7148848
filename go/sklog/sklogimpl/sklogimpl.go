// Package sklogimpl holds the pluggable backend behind package sklog.
package sklogimpl

import (
	"fmt"
	"os"
	"sync"
)

// Severity of a log line.
type Severity int

const (
	Debug Severity = iota
	Info
	Warning
	Error
	Fatal
)

// String returns the upper case name of the severity.
func (s Severity) String() string {
	switch s {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warning:
		return "WARNING"
	case Error:
		return "ERROR"
	case Fatal:
		return "FATAL"
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

// Logger is implemented by log backends.
type Logger interface {
	// Log writes one line. depth is the number of stack frames between the
	// call site and Log. If format is empty the args are joined with
	// fmt.Sprint semantics.
	Log(depth int, severity Severity, format string, args ...interface{})

	// Flush writes out any buffered lines.
	Flush()
}

var (
	mtx    sync.RWMutex
	logger Logger
)

// SetLogger replaces the backend. It is safe to call concurrently with Log.
func SetLogger(l Logger) {
	mtx.Lock()
	defer mtx.Unlock()
	logger = l
}

func current() Logger {
	mtx.RLock()
	defer mtx.RUnlock()
	return logger
}

// Log sends a line to the current backend. Fatal lines flush and exit.
func Log(depth int, severity Severity, format string, args ...interface{}) {
	l := current()
	if l == nil {
		return
	}
	l.Log(depth+1, severity, format, args...)
	if severity == Fatal {
		l.Flush()
		os.Exit(255)
	}
}

// Flush flushes the current backend.
func Flush() {
	if l := current(); l != nil {
		l.Flush()
	}
}
