package chrometrace

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/getsentry/vroomscope/internal/errorutil"
	"github.com/getsentry/vroomscope/internal/frame"
	"github.com/getsentry/vroomscope/internal/profile"
	"github.com/getsentry/vroomscope/internal/valueformat"
)

type (
	threadID struct {
		pid, tid int
	}

	// timedEvent is a begin or end event. Complete events are split in two.
	timedEvent struct {
		ts    float64
		end   float64
		begin bool
		seq   int
		frame frame.Frame
	}

	thread struct {
		name   string
		events []timedEvent
	}
)

// Import reads a trace in either the object or the array form and builds
// one profile per thread that recorded duration events.
func Import(b []byte) ([]*profile.Profile, error) {
	var events []Event
	if bytes.HasPrefix(bytes.TrimSpace(b), []byte("[")) {
		if err := json.Unmarshal(b, &events); err != nil {
			return nil, err
		}
	} else {
		var t Trace
		if err := json.Unmarshal(b, &t); err != nil {
			return nil, err
		}
		events = t.TraceEvents
	}

	var (
		order   []threadID
		threads = make(map[threadID]*thread)
	)
	get := func(id threadID) *thread {
		t, ok := threads[id]
		if !ok {
			t = &thread{}
			threads[id] = t
			order = append(order, id)
		}
		return t
	}
	for i, e := range events {
		id := threadID{e.Pid, e.Tid}
		switch e.Ph {
		case PhaseMetadata:
			if e.Name == threadNameEvent && e.Args != nil {
				get(id).name = e.Args.Name
			}
		case PhaseBegin:
			t := get(id)
			t.events = append(t.events, timedEvent{ts: e.Ts, end: e.Ts + e.Dur, begin: true, seq: i, frame: e.frame()})
		case PhaseEnd:
			t := get(id)
			t.events = append(t.events, timedEvent{ts: e.Ts, seq: i, frame: e.frame()})
		case PhaseComplete:
			if e.Dur <= 0 {
				continue
			}
			t := get(id)
			f := e.frame()
			t.events = append(t.events,
				timedEvent{ts: e.Ts, end: e.Ts + e.Dur, begin: true, seq: i, frame: f},
				timedEvent{ts: e.Ts + e.Dur, seq: i, frame: f},
			)
		}
	}

	var profiles []*profile.Profile
	for _, id := range order {
		t := threads[id]
		if len(t.events) == 0 {
			continue
		}
		p, err := t.build()
		if err != nil {
			return nil, fmt.Errorf("pid %d tid %d: %w", id.pid, id.tid, err)
		}
		if t.name == "" {
			p.SetName(fmt.Sprintf("pid %d tid %d", id.pid, id.tid))
		} else {
			p.SetName(t.name)
		}
		profiles = append(profiles, p)
	}
	if len(profiles) == 0 {
		return nil, errorutil.ErrEmptyProfile
	}

	log.Debug().
		Int("events", len(events)).
		Int("profiles", len(profiles)).
		Msg("trace imported")
	return profiles, nil
}

// IsTrace reports whether b looks like a trace file.
func IsTrace(b []byte) bool {
	trimmed := bytes.TrimSpace(b)
	if bytes.HasPrefix(trimmed, []byte("[")) {
		var events []Event
		return json.Unmarshal(trimmed, &events) == nil
	}
	var t struct {
		TraceEvents json.RawMessage `json:"traceEvents"`
	}
	return json.Unmarshal(trimmed, &t) == nil && len(t.TraceEvents) > 0
}

func (e Event) frame() frame.Frame {
	f := frame.Frame{
		Function: e.Name,
		Package:  e.Cat,
	}
	if e.Args != nil {
		f.File = e.Args.File
		f.Line = e.Args.Line
	}
	return f
}

// build replays the thread's events. An end event closes the innermost open
// frame whatever its name, so ties between end events don't matter. At the
// same timestamp, ends come before begins and longer frames open first.
func (t *thread) build() (*profile.Profile, error) {
	sort.SliceStable(t.events, func(i, j int) bool {
		a, b := t.events[i], t.events[j]
		if a.ts != b.ts {
			return a.ts < b.ts
		}
		if a.begin != b.begin {
			return !a.begin
		}
		if a.begin && a.end != b.end {
			return a.end > b.end
		}
		return false
	})

	start := t.events[0].ts
	last := t.events[len(t.events)-1].ts
	b := profile.NewCallTreeBuilder(last - start)
	b.SetFormatter(valueformat.Time(valueformat.UnitMicroseconds))

	var open []frame.Frame
	for _, e := range t.events {
		value := e.ts - start
		if e.begin {
			if err := b.EnterFrame(e.frame, value); err != nil {
				return nil, err
			}
			open = append(open, e.frame)
			continue
		}
		if len(open) == 0 {
			// Let the builder report the underflow.
			if err := b.LeaveFrame(e.frame, value); err != nil {
				return nil, err
			}
		}
		top := open[len(open)-1]
		open = open[:len(open)-1]
		if err := b.LeaveFrame(top, value); err != nil {
			return nil, err
		}
	}
	if len(open) > 0 {
		log.Debug().Int("open", len(open)).Msg("closing frames left open at the end of the trace")
		if err := b.LeaveAllOpenFrames(); err != nil {
			return nil, err
		}
	}
	return b.Build()
}
