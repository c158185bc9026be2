package profile

import (
	"github.com/getsentry/vroomscope/internal/calltree"
	"github.com/getsentry/vroomscope/internal/frame"
)

// WithRecursionFlattened returns a profile in which recursive calls are
// folded into the outermost call of the same frame.
func (p *Profile) WithRecursionFlattened() (*Profile, error) {
	b := NewCallTreeBuilder(0)

	var (
		err           error
		stack         []calltree.NodeID
		framesInStack = make(map[frame.Handle]struct{})
	)
	openFrame := func(n calltree.NodeID, value float64) {
		f := p.nodes.Frame(n)
		if _, open := framesInStack[f]; open {
			stack = append(stack, calltree.NoParent)
			return
		}
		framesInStack[f] = struct{}{}
		stack = append(stack, n)
		if e := b.EnterFrame(*p.frames.Frame(f), value); e != nil && err == nil {
			err = e
		}
	}
	closeFrame := func(_ calltree.NodeID, value float64) {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if top == calltree.NoParent {
			return
		}
		f := p.nodes.Frame(top)
		delete(framesInStack, f)
		if e := b.LeaveFrame(*p.frames.Frame(f), value); e != nil && err == nil {
			err = e
		}
	}
	p.ForEachCall(openFrame, closeFrame)
	if err != nil {
		return nil, err
	}

	flattened, err := b.Build()
	if err != nil {
		return nil, err
	}
	flattened.name = p.name
	flattened.formatter = p.formatter

	// Flattening moves self time between frames. Frame weights are copied
	// from this profile so per-function numbers don't change.
	p.ForEachFrame(func(h frame.Handle) {
		fh := flattened.frames.GetOrInsert(*p.frames.Frame(h))
		flattened.frames.OverwriteWeights(fh, p.frames.SelfWeight(h), p.frames.TotalWeight(h))
	})
	return flattened, nil
}

// findCalls returns the append order nodes owning focal, without looking
// below a match.
func (p *Profile) findCalls(focal frame.Frame) []calltree.NodeID {
	h, exists := p.frames.Lookup(focal.Identity())
	if !exists {
		return nil
	}
	var (
		matches []calltree.NodeID
		visit   func(n calltree.NodeID)
	)
	visit = func(n calltree.NodeID) {
		if p.nodes.Frame(n) == h {
			matches = append(matches, n)
			return
		}
		for _, c := range p.nodes.Children(n) {
			visit(c)
		}
	}
	visit(p.appendOrderRoot)
	return matches
}

// InvertedForCallersOf returns a profile with one sample per call of focal,
// whose stack walks from focal up to the outermost caller and is weighted
// by the call's total weight.
func (p *Profile) InvertedForCallersOf(focal frame.Frame) (*Profile, error) {
	b := NewStackListBuilder(0)

	var stack []frame.Frame
	for _, n := range p.findCalls(focal) {
		stack = stack[:0]
		for c := n; c != calltree.NoParent && !p.nodes.IsRoot(c); c = p.nodes.Parent(c) {
			stack = append(stack, *p.Frame(c))
		}
		if err := b.AppendSampleWithWeight(stack, p.nodes.TotalWeight(n)); err != nil {
			return nil, err
		}
	}

	ret, err := b.Build()
	if err != nil {
		return nil, err
	}
	ret.name = p.name
	ret.formatter = p.formatter
	return ret, nil
}

// ForCalleesOf returns a profile of the work done under every call of
// focal, each node contributing its self weight.
func (p *Profile) ForCalleesOf(focal frame.Frame) (*Profile, error) {
	b := NewStackListBuilder(0)

	var (
		err    error
		stack  []frame.Frame
		record func(n calltree.NodeID)
	)
	record = func(n calltree.NodeID) {
		stack = append(stack, *p.Frame(n))
		if e := b.AppendSampleWithWeight(stack, p.nodes.SelfWeight(n)); e != nil && err == nil {
			err = e
		}
		for _, c := range p.nodes.Children(n) {
			record(c)
		}
		stack = stack[:len(stack)-1]
	}
	for _, n := range p.findCalls(focal) {
		record(n)
	}
	if err != nil {
		return nil, err
	}

	ret, err := b.Build()
	if err != nil {
		return nil, err
	}
	ret.name = p.name
	ret.formatter = p.formatter
	return ret, nil
}
