// Package logger provides simple leveled logging to stderr.
//
// Log lines are written to stderr so that command output on stdout stays
// clean and scriptable. Debug messages are suppressed unless enabled with
// SetDebug, which the CLI wires to the --verbose flag.
package logger

import (
	"fmt"
	"os"
	"sync"
	"time"
)

var (
	mu    sync.Mutex
	debug bool
	out   = os.Stderr
)

// SetDebug enables or disables debug-level output.
func SetDebug(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	debug = enabled
}

// DebugEnabled reports whether debug-level output is enabled.
func DebugEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return debug
}

// Debug logs a debug message. No-op unless SetDebug(true) has been called.
func Debug(format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if !debug {
		return
	}
	logf("DEBUG", format, args...)
}

// Info logs an informational message.
func Info(format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	logf("INFO", format, args...)
}

// Warn logs a warning message.
func Warn(format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	logf("WARN", format, args...)
}

// Error logs an error message.
func Error(format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	logf("ERROR", format, args...)
}

func logf(level, format string, args ...interface{}) {
	ts := time.Now().Format("15:04:05")
	fmt.Fprintf(out, "%s %-5s %s\n", ts, level, fmt.Sprintf(format, args...))
}
