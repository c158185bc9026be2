package profile

import (
	"slices"

	"github.com/getsentry/vroomscope/internal/calltree"
	"github.com/getsentry/vroomscope/internal/frame"
	"github.com/getsentry/vroomscope/internal/valueformat"
)

type (
	// FrameCallback receives a node together with the cumulative value at
	// which it is opened or closed.
	FrameCallback func(node calltree.NodeID, value float64)

	// Profile holds two call trees built from the same samples.
	//
	// The append order tree keeps children in the order they were first seen,
	// with one node per run of consecutive identical stacks. The grouped tree
	// has at most one child per frame under any node, ordered by decreasing
	// total weight.
	//
	// A Profile must be treated as immutable once built, except for
	// RemapSymbols and Demangle. Clones made with ShallowClone share frames
	// and nodes with the original.
	Profile struct {
		name        string
		totalWeight float64
		formatter   valueformat.Formatter

		frames *frame.Registry
		nodes  *calltree.Store

		appendOrderRoot calltree.NodeID
		groupedRoot     calltree.NodeID

		// samples holds the append order node at the top of the stack for
		// each sample, weights the matching sample weight.
		samples []calltree.NodeID
		weights []float64

		totalNonIdleWeight *float64
	}
)

func newProfile(totalWeight float64) *Profile {
	p := &Profile{
		totalWeight: totalWeight,
		formatter:   valueformat.Raw(),
		frames:      frame.NewRegistry(),
		nodes:       calltree.NewStore(),
	}
	p.appendOrderRoot = p.nodes.NewRoot()
	p.groupedRoot = p.nodes.NewRoot()
	return p
}

// ShallowClone returns a copy sharing frames, nodes and samples with p.
func (p *Profile) ShallowClone() *Profile {
	c := *p
	return &c
}

func (p *Profile) Name() string {
	return p.name
}

func (p *Profile) SetName(name string) {
	p.name = name
}

func (p *Profile) Formatter() valueformat.Formatter {
	return p.formatter
}

func (p *Profile) SetFormatter(f valueformat.Formatter) {
	p.formatter = f
}

func (p *Profile) FormatValue(v float64) string {
	return p.formatter.Format(v)
}

func (p *Profile) WeightUnit() valueformat.Unit {
	return p.formatter.Unit
}

func (p *Profile) TotalWeight() float64 {
	return p.totalWeight
}

// TotalNonIdleWeight is the weight attributed to at least one frame.
func (p *Profile) TotalNonIdleWeight() float64 {
	if p.totalNonIdleWeight == nil {
		var w float64
		for _, c := range p.nodes.Children(p.groupedRoot) {
			w += p.nodes.TotalWeight(c)
		}
		p.totalNonIdleWeight = &w
	}
	return *p.totalNonIdleWeight
}

// IsEmpty reports whether no sample carried any weight.
func (p *Profile) IsEmpty() bool {
	return len(p.samples) == 0
}

func (p *Profile) Frames() *frame.Registry {
	return p.frames
}

func (p *Profile) Nodes() *calltree.Store {
	return p.nodes
}

func (p *Profile) AppendOrderRoot() calltree.NodeID {
	return p.appendOrderRoot
}

func (p *Profile) GroupedRoot() calltree.NodeID {
	return p.groupedRoot
}

// Frame returns the descriptor of the frame owning node n.
func (p *Profile) Frame(n calltree.NodeID) *frame.Frame {
	return p.frames.Frame(p.nodes.Frame(n))
}

func (p *Profile) SampleCount() int {
	return len(p.samples)
}

// ForEachSample calls fn with the stack top and weight of every sample.
func (p *Profile) ForEachSample(fn func(node calltree.NodeID, weight float64)) {
	for i, n := range p.samples {
		fn(n, p.weights[i])
	}
}

// ForEachFrame calls fn for every frame of the profile.
func (p *Profile) ForEachFrame(fn func(h frame.Handle)) {
	p.frames.ForEach(fn)
}

// ForEachCallGrouped walks the grouped tree depth first. Every node starts
// where the total weight of its previous siblings ends.
func (p *Profile) ForEachCallGrouped(openFrame, closeFrame FrameCallback) {
	var visit func(n calltree.NodeID, start float64)
	visit = func(n calltree.NodeID, start float64) {
		isRoot := p.nodes.IsRoot(n)
		if !isRoot {
			openFrame(n, start)
		}
		var childTime float64
		for _, c := range p.nodes.Children(n) {
			visit(c, start+childTime)
			childTime += p.nodes.TotalWeight(c)
		}
		if !isRoot {
			closeFrame(n, start+p.nodes.TotalWeight(n))
		}
	}
	visit(p.groupedRoot, 0)
}

// ForEachCall replays the samples against the append order tree, emitting
// the open and close events a live call stack would have produced.
func (p *Profile) ForEachCall(openFrame, closeFrame FrameCallback) {
	var (
		prevStack []calltree.NodeID
		toOpen    []calltree.NodeID
		value     float64
	)
	for i, stackTop := range p.samples {
		// Lowest common ancestor with the previous stack. The membership test
		// is linear in the stack height, which stays small.
		lca := stackTop
		for lca != calltree.NoParent && !p.nodes.IsRoot(lca) && !slices.Contains(prevStack, lca) {
			lca = p.nodes.Parent(lca)
		}

		for len(prevStack) > 0 && prevStack[len(prevStack)-1] != lca {
			n := prevStack[len(prevStack)-1]
			prevStack = prevStack[:len(prevStack)-1]
			closeFrame(n, value)
		}

		toOpen = toOpen[:0]
		for n := stackTop; n != calltree.NoParent && !p.nodes.IsRoot(n) && n != lca; n = p.nodes.Parent(n) {
			toOpen = append(toOpen, n)
		}
		slices.Reverse(toOpen)
		for _, n := range toOpen {
			openFrame(n, value)
		}

		prevStack = append(prevStack, toOpen...)
		value += p.weights[i]
	}

	for i := len(prevStack) - 1; i >= 0; i-- {
		closeFrame(prevStack[i], value)
	}
}

// sortGroupedCallTree orders the grouped tree and releases the lookup index
// only needed while building it.
func (p *Profile) sortGroupedCallTree() {
	p.nodes.SortByTotalWeight(p.groupedRoot)
	p.nodes.DropChildIndex()
}

// pushSample records a sample, merging it into the previous one when both
// landed on the same node.
func (p *Profile) pushSample(n calltree.NodeID, weight float64) {
	if last := len(p.samples) - 1; last >= 0 && p.samples[last] == n {
		p.weights[last] += weight
		return
	}
	p.samples = append(p.samples, n)
	p.weights = append(p.weights, weight)
}

func (p *Profile) finalize() {
	var sum float64
	for _, w := range p.weights {
		sum += w
	}
	p.totalWeight = max(p.totalWeight, sum)
	p.sortGroupedCallTree()
	p.nodes.ShrinkToFit()
	p.frames.ShrinkToFit()
	p.samples = slices.Clone(p.samples)
	p.weights = slices.Clone(p.weights)
}
