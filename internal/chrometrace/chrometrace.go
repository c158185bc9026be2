// Package chrometrace reads and writes the Trace Event Format used by
// chrome://tracing and Perfetto.
package chrometrace

import (
	"github.com/getsentry/vroomscope/internal/calltree"
	"github.com/getsentry/vroomscope/internal/profile"
)

type (
	Phase string

	Args struct {
		Name string `json:"name,omitempty"`
		File string `json:"file,omitempty"`
		Line uint32 `json:"line,omitempty"`
	}

	Event struct {
		Args *Args   `json:"args,omitempty"`
		Cat  string  `json:"cat,omitempty"`
		Dur  float64 `json:"dur,omitempty"`
		Name string  `json:"name"`
		Ph   Phase   `json:"ph"`
		Pid  int     `json:"pid"`
		Tid  int     `json:"tid"`
		Ts   float64 `json:"ts"`
	}

	// Trace is the object form of a trace file.
	Trace struct {
		DisplayTimeUnit string  `json:"displayTimeUnit,omitempty"`
		TraceEvents     []Event `json:"traceEvents"`
	}
)

const (
	PhaseBegin    Phase = "B"
	PhaseEnd      Phase = "E"
	PhaseComplete Phase = "X"
	PhaseMetadata Phase = "M"

	threadNameEvent = "thread_name"
	pid             = 1
)

// Export writes each profile as one thread of begin and end events. Time
// weighted profiles are converted to microseconds, others keep their raw
// values.
func Export(profiles []*profile.Profile) (*Trace, error) {
	t := Trace{
		DisplayTimeUnit: "ns",
		TraceEvents:     []Event{},
	}
	for i, p := range profiles {
		tid := i + 1
		t.TraceEvents = append(t.TraceEvents, Event{
			Args: &Args{Name: p.Name()},
			Name: threadNameEvent,
			Ph:   PhaseMetadata,
			Pid:  pid,
			Tid:  tid,
		})

		scale := 1.0
		if unit := p.WeightUnit(); unit.IsTime() {
			scale = unit.Nanoseconds() / 1e3
		}
		var depth int
		event := func(ph Phase) profile.FrameCallback {
			return func(n calltree.NodeID, value float64) {
				f := p.Frame(n)
				e := Event{
					Cat:  f.PackageBaseName(),
					Name: f.Function,
					Ph:   ph,
					Pid:  pid,
					Tid:  tid,
					Ts:   value * scale,
				}
				if f.File != "" {
					e.Args = &Args{File: f.File, Line: f.Line}
				}
				if ph == PhaseBegin {
					depth++
				} else {
					depth--
				}
				t.TraceEvents = append(t.TraceEvents, e)
			}
		}
		p.ForEachCall(event(PhaseBegin), event(PhaseEnd))
		if depth != 0 {
			return nil, profile.ErrBufferConsistency
		}
	}
	return &t, nil
}
