package logutil

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"cloud.google.com/go/compute/metadata"
)

// ConfigureLogger sets up the global logger. Events below level are
// dropped. An unparsable level falls back to info.
func ConfigureLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	minLevel, err := zerolog.ParseLevel(level)
	if err != nil || minLevel == zerolog.NoLevel {
		minLevel = zerolog.InfoLevel
	}
	log.Logger = log.With().Caller().Stack().Logger().Sample(LevelSampler{Level: minLevel})
	if metadata.OnGCE() {
		log.Logger = log.Hook(ErrorHook{})
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

type ErrorHook struct{}

func (h ErrorHook) Run(e *zerolog.Event, level zerolog.Level, _ string) {
	e.Str("severity", level.String())
}
