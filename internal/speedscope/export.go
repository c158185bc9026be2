package speedscope

import (
	"fmt"
	"slices"

	"github.com/getsentry/vroomscope/internal/calltree"
	"github.com/getsentry/vroomscope/internal/frame"
	"github.com/getsentry/vroomscope/internal/profile"
)

const exporter = "vroomscope"

type View string

const (
	// ViewTimeline replays samples in the order they were recorded.
	ViewTimeline View = "timeline"
	// ViewLeftHeavy lays out the grouped call tree, heaviest calls first.
	ViewLeftHeavy View = "left-heavy"
)

// exportKey identifies a frame across profiles. Keys are only unique within
// the profile that registered them, so the location is part of it too.
type exportKey struct {
	key      frame.Key
	location string
}

type exportContext struct {
	frames  []Frame
	indexes map[exportKey]int
	// seen caches the index of registered frames, which don't move once a
	// profile is built.
	seen map[*frame.Frame]int
}

func newExportContext() *exportContext {
	return &exportContext{
		indexes: make(map[exportKey]int),
		seen:    make(map[*frame.Frame]int),
	}
}

func (c *exportContext) frameIndex(f *frame.Frame) int {
	if i, exists := c.seen[f]; exists {
		return i
	}
	k := exportKey{key: f.Key, location: f.ID()}
	if i, exists := c.indexes[k]; exists {
		c.seen[f] = i
		return i
	}
	i := len(c.frames)
	c.frames = append(c.frames, Frame{
		Col:           f.Column,
		File:          f.File,
		Image:         f.PackageBaseName(),
		IsApplication: f.IsApplication(),
		Line:          f.Line,
		Name:          f.Function,
		Path:          f.Path,
	})
	c.indexes[k] = i
	c.seen[f] = i
	return i
}

func (c *exportContext) output(name string, profiles []interface{}) *Output {
	frames := c.frames
	if frames == nil {
		frames = []Frame{}
	}
	return &Output{
		Schema:   Schema,
		Exporter: exporter,
		Name:     name,
		Profiles: profiles,
		Shared:   SharedData{Frames: frames},
	}
}

// Export converts profiles into an evented speedscope document. Frames are
// shared between profiles when their keys and locations match.
func Export(name string, profiles []*profile.Profile, view View) (*Output, error) {
	c := newExportContext()
	out := make([]interface{}, 0, len(profiles))
	for _, p := range profiles {
		ep, err := c.evented(p, view)
		if err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	return c.output(name, out), nil
}

func (c *exportContext) evented(p *profile.Profile, view View) (*EventedProfile, error) {
	ep := &EventedProfile{
		EndValue: p.TotalWeight(),
		Events:   make([]Event, 0, 2*p.SampleCount()),
		Name:     p.Name(),
		Type:     ProfileTypeEvented,
		Unit:     ValueUnit(p.WeightUnit()),
	}

	var (
		err  error
		open []int
	)
	openFrame := func(n calltree.NodeID, value float64) {
		i := c.frameIndex(p.Frame(n))
		open = append(open, i)
		ep.Events = append(ep.Events, Event{Type: EventTypeOpenFrame, Frame: i, At: value})
	}
	closeFrame := func(n calltree.NodeID, value float64) {
		i := c.frameIndex(p.Frame(n))
		if len(open) == 0 || open[len(open)-1] != i {
			if err == nil {
				err = fmt.Errorf("%w: closing frame %q at %v", profile.ErrBufferConsistency, p.Frame(n).Function, value)
			}
			return
		}
		open = open[:len(open)-1]
		ep.Events = append(ep.Events, Event{Type: EventTypeCloseFrame, Frame: i, At: value})
	}

	switch view {
	case ViewLeftHeavy:
		p.ForEachCallGrouped(openFrame, closeFrame)
	default:
		p.ForEachCall(openFrame, closeFrame)
	}
	if err != nil {
		return nil, err
	}
	if len(open) > 0 {
		return nil, fmt.Errorf("%w: %d frames left open", profile.ErrBufferConsistency, len(open))
	}
	return ep, nil
}

// ExportSampled converts profiles into a sampled speedscope document with
// one entry per coalesced sample.
func ExportSampled(name string, profiles []*profile.Profile) *Output {
	c := newExportContext()
	out := make([]interface{}, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, c.sampled(p))
	}
	return c.output(name, out)
}

func (c *exportContext) sampled(p *profile.Profile) *SampledProfile {
	sp := &SampledProfile{
		EndValue: p.TotalWeight(),
		Name:     p.Name(),
		Samples:  make([][]int, 0, p.SampleCount()),
		Type:     ProfileTypeSampled,
		Unit:     ValueUnit(p.WeightUnit()),
		Weights:  make([]float64, 0, p.SampleCount()),
	}
	nodes := p.Nodes()
	p.ForEachSample(func(n calltree.NodeID, weight float64) {
		var stack []int
		for ; n != calltree.NoParent && !nodes.IsRoot(n); n = nodes.Parent(n) {
			stack = append(stack, c.frameIndex(p.Frame(n)))
		}
		slices.Reverse(stack)
		if stack == nil {
			stack = []int{}
		}
		sp.Samples = append(sp.Samples, stack)
		sp.Weights = append(sp.Weights, weight)
	})
	return sp
}
