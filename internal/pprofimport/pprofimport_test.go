package pprofimport

import (
	"bytes"
	"errors"
	"testing"

	pprof "github.com/google/pprof/profile"

	"github.com/getsentry/vroomscope/internal/calltree"
	"github.com/getsentry/vroomscope/internal/errorutil"
	"github.com/getsentry/vroomscope/internal/profile"
	"github.com/getsentry/vroomscope/internal/testutil"
	"github.com/getsentry/vroomscope/internal/valueformat"
)

var (
	mainFn = &pprof.Function{ID: 1, Name: "main.main", Filename: "main.go", StartLine: 3}
	workFn = &pprof.Function{ID: 2, Name: "main.work", Filename: "main.go", StartLine: 10}
	hashFn = &pprof.Function{ID: 3, Name: "crypto.hash", Filename: "hash.go", StartLine: 7}

	mainLoc    = &pprof.Location{ID: 1, Address: 0x10, Line: []pprof.Line{{Function: mainFn, Line: 5}}}
	inlinedLoc = &pprof.Location{ID: 2, Address: 0x20, Line: []pprof.Line{
		{Function: hashFn, Line: 8},
		{Function: workFn, Line: 12},
	}}
	rawLoc = &pprof.Location{ID: 3, Address: 0xbeef}
)

func testProfile() *pprof.Profile {
	return &pprof.Profile{
		SampleType: []*pprof.ValueType{
			{Type: "samples", Unit: "count"},
			{Type: "cpu", Unit: "nanoseconds"},
		},
		DefaultSampleType: "cpu",
		Sample: []*pprof.Sample{
			{Location: []*pprof.Location{inlinedLoc, mainLoc}, Value: []int64{2, 2000}},
			{Location: []*pprof.Location{rawLoc, mainLoc}, Value: []int64{1, 1000}},
			{Location: []*pprof.Location{mainLoc}, Value: []int64{1, 0}},
		},
		Location: []*pprof.Location{mainLoc, inlinedLoc, rawLoc},
		Function: []*pprof.Function{mainFn, workFn, hashFn},
	}
}

func stacks(p *profile.Profile) [][]string {
	var out [][]string
	p.ForEachSample(func(n calltree.NodeID, _ float64) {
		var s []string
		for ; !p.Nodes().IsRoot(n); n = p.Nodes().Parent(n) {
			s = append([]string{p.Frame(n).Function}, s...)
		}
		out = append(out, s)
	})
	return out
}

func TestFromProfile(t *testing.T) {
	profiles, err := FromProfile(testProfile())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(profiles) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(profiles))
	}

	cpu, samples := profiles[0], profiles[1]
	if cpu.Name() != "cpu" || cpu.WeightUnit() != valueformat.UnitNanoseconds {
		t.Fatalf("expected the default sample type first, got %q %v", cpu.Name(), cpu.WeightUnit())
	}
	if cpu.TotalWeight() != 3000 || samples.TotalWeight() != 4 {
		t.Fatalf("unexpected total weights: %v %v", cpu.TotalWeight(), samples.TotalWeight())
	}
	if got := cpu.FormatValue(cpu.TotalWeight()); got != "3.00µs" {
		t.Fatalf("expected 3.00µs, got %q", got)
	}

	want := [][]string{
		{"main.main", "main.work", "crypto.hash"},
		{"main.main", "0xbeef"},
	}
	if diff := testutil.Diff(stacks(cpu), want); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
	want = append(want, []string{"main.main"})
	if diff := testutil.Diff(stacks(samples), want); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
}

func TestImport(t *testing.T) {
	var buf bytes.Buffer
	if err := testProfile().Write(&buf); err != nil {
		t.Fatalf("couldn't serialize profile: %v", err)
	}
	if !IsProfile(buf.Bytes()) {
		t.Fatal("expected a pprof profile")
	}
	profiles, err := Import(buf.Bytes())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(profiles) != 2 || profiles[0].TotalWeight() != 3000 {
		t.Fatalf("unexpected profiles: %d", len(profiles))
	}
}

func TestImportErrors(t *testing.T) {
	tests := []struct {
		name string
		p    *pprof.Profile
		want error
	}{
		{
			name: "no sample types",
			p:    &pprof.Profile{},
			want: errorutil.ErrEmptyProfile,
		},
		{
			name: "only zero values",
			p: &pprof.Profile{
				SampleType: []*pprof.ValueType{{Type: "alloc_space", Unit: "bytes"}},
				Sample:     []*pprof.Sample{{Location: []*pprof.Location{mainLoc}, Value: []int64{0}}},
			},
			want: errorutil.ErrEmptyProfile,
		},
		{
			name: "negative values",
			p: &pprof.Profile{
				SampleType: []*pprof.ValueType{{Type: "alloc_space", Unit: "bytes"}},
				Sample:     []*pprof.Sample{{Location: []*pprof.Location{mainLoc}, Value: []int64{-5}}},
			},
			want: profile.ErrInvalidWeight,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FromProfile(tt.p); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if IsProfile([]byte("not a profile")) {
		t.Fatal("expected garbage not to parse")
	}
}
