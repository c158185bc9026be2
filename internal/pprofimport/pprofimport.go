// Package pprofimport builds profiles out of pprof protobuf files.
package pprofimport

import (
	"bytes"
	"fmt"

	pprof "github.com/google/pprof/profile"
	"github.com/rs/zerolog/log"

	"github.com/getsentry/vroomscope/internal/errorutil"
	"github.com/getsentry/vroomscope/internal/frame"
	"github.com/getsentry/vroomscope/internal/profile"
	"github.com/getsentry/vroomscope/internal/valueformat"
)

// Import parses a pprof file, gzipped or not, and returns one profile per
// sample type. The default sample type comes first.
func Import(b []byte) ([]*profile.Profile, error) {
	p, err := pprof.Parse(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	return FromProfile(p)
}

// IsProfile reports whether b parses as a pprof file.
func IsProfile(b []byte) bool {
	_, err := pprof.Parse(bytes.NewReader(b))
	return err == nil
}

func FromProfile(p *pprof.Profile) ([]*profile.Profile, error) {
	if len(p.SampleType) == 0 {
		return nil, errorutil.ErrEmptyProfile
	}

	order := make([]int, 0, len(p.SampleType))
	for i, st := range p.SampleType {
		if st.Type == p.DefaultSampleType {
			order = append([]int{i}, order...)
		} else {
			order = append(order, i)
		}
	}

	profiles := make([]*profile.Profile, 0, len(order))
	for _, i := range order {
		built, err := build(p, i)
		if err != nil {
			return nil, fmt.Errorf("sample type %q: %w", p.SampleType[i].Type, err)
		}
		if built.IsEmpty() {
			continue
		}
		profiles = append(profiles, built)
	}
	if len(profiles) == 0 {
		return nil, errorutil.ErrEmptyProfile
	}

	log.Debug().
		Int("sample_types", len(p.SampleType)).
		Int("samples", len(p.Sample)).
		Int("profiles", len(profiles)).
		Msg("pprof profile imported")
	return profiles, nil
}

func build(p *pprof.Profile, valueIndex int) (*profile.Profile, error) {
	st := p.SampleType[valueIndex]
	b := profile.NewStackListBuilder(0)
	b.SetName(st.Type)
	b.SetFormatter(formatterFor(st))

	var stack []frame.Frame
	for _, s := range p.Sample {
		if valueIndex >= len(s.Value) {
			continue
		}
		stack = stack[:0]
		// Locations go from the leaf to the root, lines within a location
		// from the innermost inlined call outwards.
		for i := len(s.Location) - 1; i >= 0; i-- {
			loc := s.Location[i]
			if len(loc.Line) == 0 {
				stack = append(stack, addressFrame(loc))
				continue
			}
			for j := len(loc.Line) - 1; j >= 0; j-- {
				stack = append(stack, lineFrame(loc, loc.Line[j]))
			}
		}
		if err := b.AppendSampleWithWeight(stack, float64(s.Value[valueIndex])); err != nil {
			return nil, err
		}
	}
	return b.Build()
}

func formatterFor(st *pprof.ValueType) valueformat.Formatter {
	u := valueformat.ParseUnit(st.Unit)
	if u.IsTime() {
		return valueformat.Time(u)
	}
	if u == valueformat.UnitBytes {
		return valueformat.Bytes()
	}
	return valueformat.Raw()
}

func addressFrame(loc *pprof.Location) frame.Frame {
	f := frame.Frame{
		Key:      frame.AddressKey(loc.Address),
		Function: fmt.Sprintf("0x%x", loc.Address),
	}
	if loc.Mapping != nil {
		f.Package = loc.Mapping.File
	}
	return f
}

func lineFrame(loc *pprof.Location, line pprof.Line) frame.Frame {
	fn := line.Function
	if fn == nil {
		return addressFrame(loc)
	}
	f := frame.Frame{
		Key:      frame.StringKey(fmt.Sprintf("%s:%s", fn.Name, fn.Filename)),
		Function: fn.Name,
		File:     fn.Filename,
		Line:     uint32(fn.StartLine),
	}
	if loc.Mapping != nil {
		f.Package = loc.Mapping.File
	}
	return f
}
