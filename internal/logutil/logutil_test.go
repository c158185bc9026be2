package logutil

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestLevelSampler(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Sample(LevelSampler{Level: zerolog.WarnLevel})

	logger.Info().Msg("dropped")
	logger.Warn().Msg("kept")
	logger.Error().Msg("also kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("info events should be dropped: %s", out)
	}
	if !strings.Contains(out, "kept") || !strings.Contains(out, "also kept") {
		t.Fatalf("warn and error events should be kept: %s", out)
	}
}

func TestErrorHook(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Hook(ErrorHook{})
	logger.Error().Msg("boom")
	if !strings.Contains(buf.String(), `"severity":"error"`) {
		t.Fatalf("expected a severity field, got %s", buf.String())
	}
}
