package monitoring

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logf is the package-level diagnostic logger used by every navigation
// component. It defaults to log.Printf but may be replaced by SetLogger or
// UseZerolog. Tests can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// NewConsoleLogger builds the zerolog console logger used by cmd/navcore.
func NewConsoleLogger(w io.Writer, app string) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(output).With().Timestamp().Str("app", app).Logger()
}

// UseZerolog routes Logf through logger at info level.
func UseZerolog(logger zerolog.Logger) {
	SetLogger(func(format string, v ...interface{}) {
		logger.Info().Msg(fmt.Sprintf(format, v...))
	})
}
