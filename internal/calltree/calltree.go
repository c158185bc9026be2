package calltree

import (
	"slices"

	"github.com/bits-and-blooms/bitset"

	"github.com/getsentry/vroomscope/internal/frame"
)

// NodeID is the dense index of a node inside its Store.
type NodeID int32

// NoParent is the parent of a root node.
const NoParent NodeID = -1

type edge struct {
	parent NodeID
	frame  frame.Handle
}

// Store holds every node of one or more call trees as parallel arrays,
// so nodes are plain indices and weights are scanned without pointer chasing.
type Store struct {
	frames       []frame.Handle
	parents      []NodeID
	children     [][]NodeID
	selfWeights  []float64
	totalWeights []float64
	frozen       *bitset.BitSet

	// childIndex maps (parent, frame) to a child for nodes created with
	// NewIndexedChild. It only lives during construction.
	childIndex map[edge]NodeID
}

func NewStore() *Store {
	return &Store{frozen: bitset.New(0)}
}

// Reset releases every node.
func (s *Store) Reset() {
	s.frames = nil
	s.parents = nil
	s.children = nil
	s.selfWeights = nil
	s.totalWeights = nil
	s.frozen = bitset.New(0)
	s.childIndex = nil
}

func (s *Store) Len() int {
	return len(s.frames)
}

// NewRoot allocates a node for the root sentinel frame.
func (s *Store) NewRoot() NodeID {
	return s.newNode(frame.Root, NoParent)
}

// NewChild allocates a node for f and appends it to parent's children.
func (s *Store) NewChild(parent NodeID, f frame.Handle) NodeID {
	n := s.newNode(f, parent)
	s.children[parent] = append(s.children[parent], n)
	return n
}

// NewIndexedChild is NewChild, additionally making the node reachable
// through ChildByFrame.
func (s *Store) NewIndexedChild(parent NodeID, f frame.Handle) NodeID {
	n := s.NewChild(parent, f)
	if s.childIndex == nil {
		s.childIndex = make(map[edge]NodeID)
	}
	s.childIndex[edge{parent: parent, frame: f}] = n
	return n
}

func (s *Store) newNode(f frame.Handle, parent NodeID) NodeID {
	n := NodeID(len(s.frames))
	s.frames = append(s.frames, f)
	s.parents = append(s.parents, parent)
	s.children = append(s.children, nil)
	s.selfWeights = append(s.selfWeights, 0)
	s.totalWeights = append(s.totalWeights, 0)
	return n
}

func (s *Store) Frame(n NodeID) frame.Handle {
	return s.frames[n]
}

func (s *Store) Parent(n NodeID) NodeID {
	return s.parents[n]
}

func (s *Store) IsRoot(n NodeID) bool {
	return s.frames[n] == frame.Root
}

// Children returns the children of n. The slice must not be modified.
func (s *Store) Children(n NodeID) []NodeID {
	return s.children[n]
}

func (s *Store) LastChild(n NodeID) (NodeID, bool) {
	c := s.children[n]
	if len(c) == 0 {
		return 0, false
	}
	return c[len(c)-1], true
}

func (s *Store) ChildByFrame(n NodeID, f frame.Handle) (NodeID, bool) {
	if s.childIndex == nil {
		return 0, false
	}
	c, exists := s.childIndex[edge{parent: n, frame: f}]
	return c, exists
}

func (s *Store) SelfWeight(n NodeID) float64 {
	return s.selfWeights[n]
}

func (s *Store) TotalWeight(n NodeID) float64 {
	return s.totalWeights[n]
}

func (s *Store) AddToSelfWeight(n NodeID, delta float64) {
	s.selfWeights[n] += delta
}

func (s *Store) AddToTotalWeight(n NodeID, delta float64) {
	s.totalWeights[n] += delta
}

// OverwriteWeights replaces both weights of n.
func (s *Store) OverwriteWeights(n NodeID, self, total float64) {
	s.selfWeights[n] = self
	s.totalWeights[n] = total
}

// Freeze marks n as closed: it must no longer gain children or be reused
// as an attachment point. There is no way back.
func (s *Store) Freeze(n NodeID) {
	s.frozen.Set(uint(n))
}

func (s *Store) IsFrozen(n NodeID) bool {
	return s.frozen.Test(uint(n))
}

// SortByTotalWeight orders the children of every node under root by
// descending total weight, keeping creation order among equal weights.
func (s *Store) SortByTotalWeight(root NodeID) {
	stack := []NodeID{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		children := s.children[n]
		if len(children) == 0 {
			continue
		}
		slices.SortStableFunc(children, func(a, b NodeID) int {
			wa, wb := s.totalWeights[a], s.totalWeights[b]
			switch {
			case wa > wb:
				return -1
			case wa < wb:
				return 1
			}
			return 0
		})
		s.children[n] = slices.Clip(children)
		stack = append(stack, children...)
	}
}

// DropChildIndex releases the (parent, frame) lookup index.
func (s *Store) DropChildIndex() {
	s.childIndex = nil
}

// ShrinkToFit trims every backing array to its length.
func (s *Store) ShrinkToFit() {
	s.frames = slices.Clone(s.frames)
	s.parents = slices.Clone(s.parents)
	s.children = slices.Clone(s.children)
	s.selfWeights = slices.Clone(s.selfWeights)
	s.totalWeights = slices.Clone(s.totalWeights)
	if n := len(s.frames); n > 0 {
		s.frozen = s.frozen.Shrink(uint(n - 1))
	}
}
