package speedscope

import (
	"sort"

	"github.com/goccy/go-json"
)

const (
	Schema = "https://www.speedscope.app/file-format-schema.json"

	EventTypeOpenFrame  EventType = "O"
	EventTypeCloseFrame EventType = "C"

	ProfileTypeEvented ProfileType = "evented"
	ProfileTypeSampled ProfileType = "sampled"
)

type (
	Frame struct {
		Col           uint32 `json:"col,omitempty"`
		File          string `json:"file,omitempty"`
		Image         string `json:"image,omitempty"`
		IsApplication bool   `json:"is_application"`
		Line          uint32 `json:"line,omitempty"`
		Name          string `json:"name"`
		Path          string `json:"path,omitempty"`
	}

	Event struct {
		Type  EventType `json:"type"`
		Frame int       `json:"frame"`
		At    float64   `json:"at"`
	}

	EventedProfile struct {
		EndValue   float64     `json:"endValue"`
		Events     []Event     `json:"events"`
		Name       string      `json:"name"`
		StartValue float64     `json:"startValue"`
		Type       ProfileType `json:"type"`
		Unit       ValueUnit   `json:"unit"`
	}

	SampledProfile struct {
		EndValue   float64     `json:"endValue"`
		Name       string      `json:"name"`
		Samples    [][]int     `json:"samples"`
		StartValue float64     `json:"startValue"`
		Type       ProfileType `json:"type"`
		Unit       ValueUnit   `json:"unit"`
		Weights    []float64   `json:"weights"`
	}

	SharedData struct {
		Frames []Frame `json:"frames"`
	}

	EventType   string
	ProfileType string
	ValueUnit   string

	// Output is a speedscope document. Profiles holds *EventedProfile and
	// *SampledProfile values when exporting, raw JSON when importing.
	Output struct {
		Schema             string        `json:"$schema"`
		ActiveProfileIndex int           `json:"activeProfileIndex"`
		Exporter           string        `json:"exporter,omitempty"`
		Name               string        `json:"name"`
		Profiles           []interface{} `json:"profiles"`
		Shared             SharedData    `json:"shared"`
	}

	document struct {
		Name     string            `json:"name"`
		Profiles []json.RawMessage `json:"profiles"`
		Shared   struct {
			Frames []sharedFrame `json:"frames"`
		} `json:"shared"`
	}

	profileHeader struct {
		Type ProfileType `json:"type"`
	}
)

// SortSamplesForFlamegraph orders the samples of every sampled profile by
// frame name, the layout expected by a flamegraph view.
func (o *Output) SortSamplesForFlamegraph() {
	frames := o.Shared.Frames
	for _, sampledProfile := range o.Profiles {
		profile, ok := sampledProfile.(*SampledProfile)
		if ok {
			SortSamplesAlphabetically(profile.Samples, profile.Weights, frames)
		}
	}
}

// SortSamplesAlphabetically sorts stacks frame by frame using their names,
// moving each weight along with its stack.
func SortSamplesAlphabetically(samples [][]int, weights []float64, frames []Frame) {
	sort.Sort(byName{samples: samples, weights: weights, frames: frames})
}

type byName struct {
	samples [][]int
	weights []float64
	frames  []Frame
}

func (s byName) Len() int {
	return len(s.samples)
}

func (s byName) Swap(i, j int) {
	s.samples[i], s.samples[j] = s.samples[j], s.samples[i]
	if len(s.weights) == len(s.samples) {
		s.weights[i], s.weights[j] = s.weights[j], s.weights[i]
	}
}

func (s byName) Less(i, j int) bool {
	c := 0
	for {
		if len(s.samples[j]) == c {
			return false
		} else if len(s.samples[i]) == c {
			return true
		} else {
			if s.frames[s.samples[i][c]].Name < s.frames[s.samples[j][c]].Name {
				return true
			} else if s.frames[s.samples[i][c]].Name > s.frames[s.samples[j][c]].Name {
				return false
			} else {
				c += 1
			}
		}
	}
}
