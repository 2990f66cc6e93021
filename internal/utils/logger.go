package utils

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
)

var Logger zerolog.Logger

func init() {
	Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
}

// SetLogLevel ajusta o nível global de log ("debug", "info", "warn", "error").
func SetLogLevel(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}

func LogDebug(format string, v ...interface{}) {
	_, file, line, _ := runtime.Caller(1)
	Logger.Debug().Str("caller", callerShort(file, line)).Msgf(format, v...)
}

func LogInfo(format string, v ...interface{}) {
	Logger.Info().Msgf(format, v...)
}

func LogError(format string, v ...interface{}) {
	_, file, line, _ := runtime.Caller(1)
	Logger.Error().Str("caller", callerShort(file, line)).Msgf(format, v...)
}

func LogWarning(format string, v ...interface{}) {
	_, file, line, _ := runtime.Caller(1)
	Logger.Warn().Str("caller", callerShort(file, line)).Msgf(format, v...)
}

func callerShort(file string, line int) string {
	for i := len(file) - 1; i > 0; i-- {
		if file[i] == '/' {
			file = file[i+1:]
			break
		}
	}
	return fmt.Sprintf("%s:%d", file, line)
}
