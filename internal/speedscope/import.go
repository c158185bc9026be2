package speedscope

import (
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/getsentry/vroomscope/internal/errorutil"
	"github.com/getsentry/vroomscope/internal/frame"
	"github.com/getsentry/vroomscope/internal/profile"
	"github.com/getsentry/vroomscope/internal/valueformat"
)

var (
	ErrInvalidFrameIndex   = fmt.Errorf("speedscope: %w: frame index out of range", errorutil.ErrDataIntegrity)
	ErrUnknownEventType    = fmt.Errorf("speedscope: %w: unknown event type", errorutil.ErrDataIntegrity)
	ErrUnknownProfileType  = fmt.Errorf("speedscope: %w: unknown profile type", errorutil.ErrDataIntegrity)
	ErrWeightCountMismatch = fmt.Errorf("speedscope: %w: samples and weights have different lengths", errorutil.ErrDataIntegrity)
)

// Import parses a speedscope document and builds one profile per entry.
func Import(b []byte) ([]*profile.Profile, error) {
	var d document
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, err
	}
	frames := toFrames(d.Shared.Frames)

	profiles := make([]*profile.Profile, 0, len(d.Profiles))
	for i, raw := range d.Profiles {
		var h profileHeader
		if err := json.Unmarshal(raw, &h); err != nil {
			return nil, err
		}
		var (
			p   *profile.Profile
			err error
		)
		switch h.Type {
		case ProfileTypeEvented:
			var ep EventedProfile
			if err := json.Unmarshal(raw, &ep); err != nil {
				return nil, err
			}
			p, err = importEvented(ep, frames)
		case ProfileTypeSampled:
			var sp SampledProfile
			if err := json.Unmarshal(raw, &sp); err != nil {
				return nil, err
			}
			p, err = importSampled(sp, frames)
		default:
			err = fmt.Errorf("%w: %q", ErrUnknownProfileType, h.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("profile %d: %w", i, err)
		}
		if p.IsEmpty() {
			continue
		}
		profiles = append(profiles, p)
	}
	if len(profiles) == 0 {
		return nil, errorutil.ErrEmptyProfile
	}

	log.Debug().
		Str("name", d.Name).
		Int("frames", len(frames)).
		Int("profiles", len(profiles)).
		Msg("speedscope document imported")
	return profiles, nil
}

// IsDocument reports whether b looks like a speedscope document.
func IsDocument(b []byte) bool {
	var o struct {
		Schema string `json:"$schema"`
	}
	return json.Unmarshal(b, &o) == nil && o.Schema == Schema
}

func formatterFor(u ValueUnit) valueformat.Formatter {
	return valueformat.Formatter{Unit: valueformat.ParseUnit(string(u))}
}

func frameAt(frames []frame.Frame, i int) (frame.Frame, error) {
	if i < 0 || i >= len(frames) {
		return frame.Frame{}, fmt.Errorf("%w: %d", ErrInvalidFrameIndex, i)
	}
	return frames[i], nil
}

func importEvented(ep EventedProfile, frames []frame.Frame) (*profile.Profile, error) {
	b := profile.NewCallTreeBuilder(ep.EndValue - ep.StartValue)
	b.SetName(ep.Name)
	b.SetFormatter(formatterFor(ep.Unit))

	for _, e := range ep.Events {
		f, err := frameAt(frames, e.Frame)
		if err != nil {
			return nil, err
		}
		value := e.At - ep.StartValue
		switch e.Type {
		case EventTypeOpenFrame:
			err = b.EnterFrame(f, value)
		case EventTypeCloseFrame:
			err = b.LeaveFrame(f, value)
		default:
			err = fmt.Errorf("%w: %q", ErrUnknownEventType, e.Type)
		}
		if err != nil {
			return nil, err
		}
	}
	return b.Build()
}

func importSampled(sp SampledProfile, frames []frame.Frame) (*profile.Profile, error) {
	if len(sp.Samples) != len(sp.Weights) {
		return nil, fmt.Errorf("%w: %d samples, %d weights", ErrWeightCountMismatch, len(sp.Samples), len(sp.Weights))
	}
	b := profile.NewStackListBuilder(sp.EndValue - sp.StartValue)
	b.SetName(sp.Name)
	b.SetFormatter(formatterFor(sp.Unit))

	var stack []frame.Frame
	for i, sample := range sp.Samples {
		stack = stack[:0]
		for _, idx := range sample {
			f, err := frameAt(frames, idx)
			if err != nil {
				return nil, err
			}
			stack = append(stack, f)
		}
		if err := b.AppendSampleWithWeight(stack, sp.Weights[i]); err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
	}
	return b.Build()
}

// sharedFrame is a frame table entry as read from a document. The
// application flag stays unset when the document doesn't carry it.
type sharedFrame struct {
	Col           uint32 `json:"col"`
	File          string `json:"file"`
	Image         string `json:"image"`
	IsApplication *bool  `json:"is_application"`
	Line          uint32 `json:"line"`
	Name          string `json:"name"`
	Path          string `json:"path"`
}

// toFrame returns the frame descriptor registered for the entry at index in
// the shared frame table. Entries are keyed by index so that two entries with
// the same name and location stay distinct.
func (f sharedFrame) toFrame(index int) frame.Frame {
	return frame.Frame{
		Column:   f.Col,
		File:     f.File,
		Function: f.Name,
		InApp:    f.IsApplication,
		Key:      frame.StringKey(strconv.Itoa(index)),
		Line:     f.Line,
		Path:     f.Path,
		Package:  f.Image,
	}
}

func toFrames(shared []sharedFrame) []frame.Frame {
	frames := make([]frame.Frame, 0, len(shared))
	for i, f := range shared {
		frames = append(frames, f.toFrame(i))
	}
	return frames
}

// SharedFrames returns the frame descriptors of the shared frame table of a
// speedscope document, as registered by Import.
func SharedFrames(b []byte) ([]frame.Frame, error) {
	var d struct {
		Shared struct {
			Frames []sharedFrame `json:"frames"`
		} `json:"shared"`
	}
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, err
	}
	return toFrames(d.Shared.Frames), nil
}
