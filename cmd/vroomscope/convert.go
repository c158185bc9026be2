package main

import (
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/getsentry/vroomscope/internal/speedscope"
)

var errUsage = errors.New("usage: vroomscope convert <input> [output]")

// convert turns a local profile file into a speedscope document, written to
// the output path if given or to stdout otherwise.
func convert(args []string, stdout io.Writer) error {
	if len(args) < 1 || len(args) > 2 {
		return errUsage
	}
	b, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	name := filepath.Base(args[0])
	profiles, err := importProfiles("", name, b)
	if err != nil {
		return err
	}
	o, err := speedscope.Export(name, profiles, speedscope.ViewTimeline)
	if err != nil {
		return err
	}

	w := stdout
	if len(args) == 2 {
		f, err := os.Create(args[1])
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	err = json.NewEncoder(w).Encode(o)
	if err != nil {
		return err
	}
	log.Info().Str("input", args[0]).Int("profiles", len(profiles)).Msg("profile converted")
	return nil
}
