package calltree

import (
	"testing"

	"github.com/getsentry/vroomscope/internal/frame"
	"github.com/getsentry/vroomscope/internal/testutil"
)

func TestStoreStructure(t *testing.T) {
	s := NewStore()
	root := s.NewRoot()
	a := s.NewChild(root, 1)
	b := s.NewIndexedChild(a, 2)

	if !s.IsRoot(root) || s.Parent(root) != NoParent {
		t.Fatal("expected the first node to be a root")
	}
	if s.Parent(b) != a || s.Frame(b) != 2 {
		t.Fatalf("unexpected node %d: parent %d frame %d", b, s.Parent(b), s.Frame(b))
	}
	if last, ok := s.LastChild(root); !ok || last != a {
		t.Fatalf("expected last child %d, got %d", a, last)
	}
	if _, ok := s.LastChild(b); ok {
		t.Fatal("leaf should not have a last child")
	}
	if c, ok := s.ChildByFrame(a, 2); !ok || c != b {
		t.Fatalf("expected indexed child %d, got %d", b, c)
	}
	if _, ok := s.ChildByFrame(root, 1); ok {
		t.Fatal("non-indexed child should not be found by frame")
	}

	s.DropChildIndex()
	if _, ok := s.ChildByFrame(a, 2); ok {
		t.Fatal("index should be gone")
	}
}

func TestStoreFreeze(t *testing.T) {
	s := NewStore()
	root := s.NewRoot()
	a := s.NewChild(root, 1)

	if s.IsFrozen(a) {
		t.Fatal("new nodes should not be frozen")
	}
	s.Freeze(a)
	if !s.IsFrozen(a) || s.IsFrozen(root) {
		t.Fatal("only the frozen node should be frozen")
	}
	s.ShrinkToFit()
	if !s.IsFrozen(a) {
		t.Fatal("shrinking should keep frozen bits")
	}
}

func TestSortByTotalWeight(t *testing.T) {
	s := NewStore()
	root := s.NewRoot()
	weights := map[frame.Handle]float64{1: 2, 2: 5, 3: 2, 4: 9}
	nodes := make(map[frame.Handle]NodeID)
	for f := frame.Handle(1); f <= 3; f++ {
		nodes[f] = s.NewChild(root, f)
	}
	nodes[4] = s.NewChild(nodes[1], 4)
	nodes[5] = s.NewChild(nodes[1], 5)
	for f, w := range weights {
		s.AddToTotalWeight(nodes[f], w)
	}

	s.SortByTotalWeight(root)

	frames := func(n NodeID) []frame.Handle {
		var out []frame.Handle
		for _, c := range s.Children(n) {
			out = append(out, s.Frame(c))
		}
		return out
	}
	if diff := testutil.Diff(frames(root), []frame.Handle{2, 1, 3}); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
	if diff := testutil.Diff(frames(nodes[1]), []frame.Handle{4, 5}); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
}

func TestWeights(t *testing.T) {
	s := NewStore()
	root := s.NewRoot()
	a := s.NewChild(root, 1)

	s.AddToTotalWeight(a, 3)
	s.AddToTotalWeight(a, 1)
	s.AddToSelfWeight(a, 2)
	if s.TotalWeight(a) != 4 || s.SelfWeight(a) != 2 {
		t.Fatalf("unexpected weights self=%v total=%v", s.SelfWeight(a), s.TotalWeight(a))
	}

	s.OverwriteWeights(a, 1, 1)
	if s.TotalWeight(a) != 1 || s.SelfWeight(a) != 1 {
		t.Fatalf("unexpected weights self=%v total=%v", s.SelfWeight(a), s.TotalWeight(a))
	}

	s.Reset()
	if s.Len() != 0 {
		t.Fatalf("expected empty store, got %d nodes", s.Len())
	}
}
