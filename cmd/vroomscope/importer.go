package main

import (
	"fmt"

	"github.com/getsentry/vroomscope/internal/chrometrace"
	"github.com/getsentry/vroomscope/internal/collapsed"
	"github.com/getsentry/vroomscope/internal/pprofimport"
	"github.com/getsentry/vroomscope/internal/profile"
	"github.com/getsentry/vroomscope/internal/speedscope"
)

const (
	formatChromeTrace = "chrometrace"
	formatCollapsed   = "collapsed"
	formatPprof       = "pprof"
	formatSpeedscope  = "speedscope"
)

// detectFormat guesses the format of b when the caller didn't name one.
// Anything that isn't recognized is read as folded stacks.
func detectFormat(b []byte) string {
	switch {
	case speedscope.IsDocument(b):
		return formatSpeedscope
	case chrometrace.IsTrace(b):
		return formatChromeTrace
	case pprofimport.IsProfile(b):
		return formatPprof
	}
	return formatCollapsed
}

func importProfiles(format, name string, b []byte) ([]*profile.Profile, error) {
	if format == "" {
		format = detectFormat(b)
	}
	var (
		profiles []*profile.Profile
		err      error
	)
	switch format {
	case formatSpeedscope:
		profiles, err = speedscope.Import(b)
	case formatChromeTrace:
		profiles, err = chrometrace.Import(b)
	case formatPprof:
		profiles, err = pprofimport.Import(b)
	case formatCollapsed:
		var p *profile.Profile
		p, err = collapsed.Import(name, b)
		profiles = []*profile.Profile{p}
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
	if err != nil {
		return nil, err
	}
	if name != "" {
		for _, p := range profiles {
			if p.Name() == "" {
				p.SetName(name)
			}
		}
	}
	return profiles, nil
}
