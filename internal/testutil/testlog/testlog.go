// Package testlog configures logging for tests.
package testlog

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var configureOnce sync.Once

// Start configures a quiet console logger once per binary and tags the
// current test. Set LASTPING_LOG_LEVEL=debug to see full output.
func Start(t *testing.T) {
	t.Helper()
	configureOnce.Do(func() {
		level := zerolog.WarnLevel
		if parsed, err := zerolog.ParseLevel(os.Getenv("LASTPING_LOG_LEVEL")); err == nil && parsed != zerolog.NoLevel {
			level = parsed
		}
		output := zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
			NoColor:    true,
		}
		log.Logger = zerolog.New(output).Level(level).With().Timestamp().Logger()
	})
	log.Debug().Str("test", t.Name()).Msg("test_start")
}
