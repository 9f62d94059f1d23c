// Package logging configures the structured logger shared by the placement engines.
//
// Engines never construct loggers themselves; they pull one from the context with
// ctrl.LoggerFrom(ctx), which falls back to the process-wide logger installed here.
package logging

import (
	"io"
	"os"

	"github.com/go-logr/logr"
	"go.uber.org/zap/zapcore"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
)

// Verbosity levels used with logger.V(...)
const (
	INFO  = 0
	DEBUG = 1
	TRACE = 2
)

// Options holds the logger configuration.
type Options struct {
	// Verbosity is the highest V-level that is emitted (INFO, DEBUG or TRACE).
	Verbosity int
	// Development switches to the human-readable console encoder.
	Development bool
	// Output is where log lines are written; defaults to stderr.
	Output io.Writer
}

// NewLogger builds a zap-backed logr.Logger from the given options.
func NewLogger(opts Options) logr.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	verbosity := opts.Verbosity
	if verbosity < INFO {
		verbosity = INFO
	}
	return zap.New(
		zap.UseDevMode(opts.Development),
		zap.WriteTo(out),
		zap.Level(zapcore.Level(-verbosity)),
	)
}

// Setup builds a logger and installs it as the process-wide logger.
func Setup(opts Options) logr.Logger {
	logger := NewLogger(opts)
	ctrl.SetLogger(logger)
	return logger
}

// NewTestLogger installs a debug-level development logger for test suites.
func NewTestLogger() logr.Logger {
	return Setup(Options{Verbosity: DEBUG, Development: true})
}
