package profile

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/getsentry/vroomscope/internal/frame"
	"github.com/getsentry/vroomscope/internal/testutil"
	"github.com/getsentry/vroomscope/internal/valueformat"
)

func TestWithRecursionFlattened(t *testing.T) {
	p := buildStackList(t, recursiveStacks)
	p.SetName("recursive")

	flattened, err := p.WithRecursionFlattened()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []treeNode{
		{Name: "a", Self: 1, Total: 4, Children: []treeNode{
			{Name: "b", Self: 3, Total: 3},
		}},
	}
	if diff := testutil.Diff(dumpTree(flattened, flattened.GroupedRoot()), want); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
	if diff := testutil.Diff(frameWeights(flattened), frameWeights(p)); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
	if flattened.Name() != "recursive" || flattened.TotalWeight() != 4 {
		t.Fatalf("expected name and total weight to be kept, got %q %v", flattened.Name(), flattened.TotalWeight())
	}
}

func TestInvertedForCallersOf(t *testing.T) {
	p := buildStackList(t, []weightedStack{
		{stack: []string{"a", "b", "c"}, weight: 1},
		{stack: []string{"a", "b", "d"}, weight: 2},
	})
	p.SetFormatter(valueformat.Bytes())

	tests := []struct {
		name  string
		focal string
		want  []treeNode
	}{
		{
			name:  "leaf callers",
			focal: "b",
			want: []treeNode{
				{Name: "b", Self: 0, Total: 3, Children: []treeNode{
					{Name: "a", Self: 3, Total: 3},
				}},
			},
		},
		{
			name:  "unknown frame",
			focal: "z",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			callers, err := p.InvertedForCallersOf(fr(tt.focal))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := testutil.Diff(dumpTree(callers, callers.GroupedRoot()), tt.want); diff != "" {
				t.Fatalf("Result mismatch: got - want +\n%s", diff)
			}
			if callers.WeightUnit() != valueformat.UnitBytes {
				t.Fatalf("expected the formatter to be kept, got %v", callers.WeightUnit())
			}
		})
	}

	if _, exists := p.Frames().Lookup(frame.StringKey("z")); exists {
		t.Fatal("looking for callers should not register the focal frame")
	}
}

func TestForCalleesOf(t *testing.T) {
	p := buildStackList(t, []weightedStack{
		{stack: []string{"a", "b", "c"}, weight: 1},
		{stack: []string{"a", "b", "d"}, weight: 2},
		{stack: []string{"e"}, weight: 4},
	})

	callees, err := p.ForCalleesOf(fr("b"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []treeNode{
		{Name: "b", Self: 0, Total: 3, Children: []treeNode{
			{Name: "d", Self: 2, Total: 2},
			{Name: "c", Self: 1, Total: 1},
		}},
	}
	if diff := testutil.Diff(dumpTree(callees, callees.GroupedRoot()), want); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
	if callees.TotalWeight() != 3 {
		t.Fatalf("expected a total weight of 3, got %v", callees.TotalWeight())
	}
}

func TestRemapSymbols(t *testing.T) {
	p := buildStackList(t, []weightedStack{
		{stack: []string{"a", "b"}, weight: 1},
	})
	clone := p.ShallowClone()
	clone.SetName("clone")

	line := uint32(12)
	p.RemapSymbols(func(f frame.Frame) *SymbolOverride {
		if f.Function != "a" {
			return nil
		}
		name, file := "alpha", "alpha.go"
		return &SymbolOverride{Name: &name, File: &file, Line: &line}
	})

	h, exists := clone.Frames().Lookup(frame.StringKey("a"))
	if !exists {
		t.Fatal("expected remapped frame to keep its key")
	}
	got := *clone.Frames().Frame(h)
	want := frame.Frame{Key: frame.StringKey("a"), Function: "alpha", File: "alpha.go", Line: 12}
	if diff := testutil.Diff(got, want, cmp.Comparer(func(a, b frame.Key) bool { return a == b })); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
	if p.Name() == clone.Name() {
		t.Fatal("expected clones to have their own name")
	}
}

func TestDemangle(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "itanium", in: "_ZN3foo3barEv", want: "foo::bar()"},
		{name: "mach-o", in: "__ZN3foo3barEv", want: "foo::bar()"},
		{name: "plain", in: "main", want: "main"},
		{name: "invalid", in: "_Zfoo", want: "_Zfoo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := buildStackList(t, []weightedStack{{stack: []string{tt.in}, weight: 1}})
			p.Demangle(nil)
			h, _ := p.Frames().Lookup(frame.StringKey(tt.in))
			if got := p.Frames().Frame(h).Function; got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
