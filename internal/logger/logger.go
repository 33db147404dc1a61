// ABOUTME: Structured logging with verbosity control and level-based output
// ABOUTME: Always writes to stderr because stdout carries the wire protocol

package logger

import (
	"fmt"
	"io"
	"log"
	"os"
)

var verbose = false

func init() {
	// stdout is reserved for framed messages; everything else is noise
	// on the protocol stream.
	log.SetOutput(os.Stderr)
}

// SetVerbose enables or disables verbose (DEBUG) logging
func SetVerbose(v bool) {
	verbose = v
}

// IsVerbose returns current verbose setting
func IsVerbose() bool {
	return verbose
}

// SetOutput sets the output destination for logs
func SetOutput(w io.Writer) {
	if w == nil {
		log.SetOutput(os.Stderr)
	} else {
		log.SetOutput(w)
	}
}

// Debug logs at DEBUG level (only shown when verbose)
func Debug(format string, args ...interface{}) {
	if verbose {
		log.Printf("[DEBUG] %s", fmt.Sprintf(format, args...))
	}
}

// Info logs at INFO level (always shown)
func Info(format string, args ...interface{}) {
	log.Printf("[INFO] %s", fmt.Sprintf(format, args...))
}

// Warn logs at WARN level (always shown)
func Warn(format string, args ...interface{}) {
	log.Printf("[WARN] %s", fmt.Sprintf(format, args...))
}

// Error logs at ERROR level (always shown)
func Error(format string, args ...interface{}) {
	log.Printf("[ERROR] %s", fmt.Sprintf(format, args...))
}
