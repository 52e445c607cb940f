// Package log provides the single process-wide logrus sink every other
// package logs through (spec.md §7 severity taxonomy: per-candidate issues at
// Warn, per-tick aborts at Error; process-fatal conditions are logged at
// Error by the entrypoint, which then exits with status 1).
package log

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the global logger instance, mirroring the single-sink convention
// of aldrin-isaac-newtron/pkg/util/log.go.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(os.Stderr)
	Logger.SetLevel(logrus.WarnLevel)
	Logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// Configure applies the process's chosen level and format (spec.md §6
// "verbosity flags", SPEC_FULL.md §6 --log-format/--log-level).
func Configure(level, format string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("log: invalid level %q: %w", level, err)
	}
	Logger.SetLevel(lvl)

	switch format {
	case "", "text":
		Logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		Logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("log: invalid format %q (want text or json)", format)
	}
	return nil
}

// WithField returns an entry on the global logger carrying one contextual
// field, e.g. log.WithField("policy_statement", name).
func WithField(key string, value interface{}) *logrus.Entry {
	return Logger.WithField(key, value)
}
