package profile

import (
	"fmt"
	"math"

	"github.com/getsentry/vroomscope/internal/calltree"
	"github.com/getsentry/vroomscope/internal/frame"
	"github.com/getsentry/vroomscope/internal/valueformat"
)

// CallTreeBuilder builds a profile from frame enter and leave events placed
// on a cumulative, non-decreasing timeline.
type CallTreeBuilder struct {
	p   *Profile
	err error

	appendOrderStack []calltree.NodeID
	groupedStack     []calltree.NodeID

	// stack holds the open frames, framesInStack how many times each of
	// them is open.
	stack         []frame.Handle
	framesInStack map[frame.Handle]int

	lastValue float64
}

func NewCallTreeBuilder(totalWeight float64) *CallTreeBuilder {
	p := newProfile(totalWeight)
	return &CallTreeBuilder{
		p:                p,
		appendOrderStack: []calltree.NodeID{p.appendOrderRoot},
		groupedStack:     []calltree.NodeID{p.groupedRoot},
		framesInStack:    make(map[frame.Handle]int),
	}
}

func (b *CallTreeBuilder) SetName(name string) {
	b.p.name = name
}

func (b *CallTreeBuilder) SetFormatter(f valueformat.Formatter) {
	b.p.formatter = f
}

// TotalWeight returns the largest value seen so far.
func (b *CallTreeBuilder) TotalWeight() float64 {
	return b.p.totalWeight
}

func (b *CallTreeBuilder) checkValue(value float64) error {
	if math.IsNaN(value) {
		return fmt.Errorf("%w: value is not a number", ErrInvalidWeight)
	}
	if value < b.lastValue {
		return fmt.Errorf("%w: last sample was %v, this sample was %v", ErrOutOfOrderSample, b.lastValue, value)
	}
	return nil
}

// addWeights hands the time elapsed since the previous event to the frames
// and nodes that were open during it.
func (b *CallTreeBuilder) addWeights(value float64) {
	delta := value - b.lastValue
	if delta == 0 {
		return
	}
	for f := range b.framesInStack {
		b.p.frames.AddToTotalWeight(f, delta)
	}
	if len(b.stack) > 0 {
		b.p.frames.AddToSelfWeight(b.stack[len(b.stack)-1], delta)
	}
	for _, stack := range [][]calltree.NodeID{b.appendOrderStack, b.groupedStack} {
		for _, n := range stack {
			b.p.nodes.AddToTotalWeight(n, delta)
		}
		b.p.nodes.AddToSelfWeight(stack[len(stack)-1], delta)
	}
}

func (b *CallTreeBuilder) EnterFrame(f frame.Frame, value float64) error {
	if b.err != nil {
		return b.err
	}
	if err := b.checkValue(value); err != nil {
		b.err = err
		return err
	}

	h := b.p.frames.GetOrInsert(f)
	b.addWeights(value)

	nodes := b.p.nodes
	prevTop := b.appendOrderStack[len(b.appendOrderStack)-1]
	if delta := value - b.lastValue; delta > 0 {
		b.p.pushSample(prevTop, delta)
	}
	node, exists := nodes.LastChild(prevTop)
	if !exists || nodes.IsFrozen(node) || nodes.Frame(node) != h {
		node = nodes.NewChild(prevTop, h)
	}
	b.appendOrderStack = append(b.appendOrderStack, node)

	prevTop = b.groupedStack[len(b.groupedStack)-1]
	node, exists = nodes.ChildByFrame(prevTop, h)
	if !exists || nodes.IsFrozen(node) {
		node = nodes.NewIndexedChild(prevTop, h)
	}
	b.groupedStack = append(b.groupedStack, node)

	b.stack = append(b.stack, h)
	b.framesInStack[h]++
	b.lastValue = value
	b.p.totalWeight = max(b.p.totalWeight, value)
	return nil
}

func (b *CallTreeBuilder) LeaveFrame(f frame.Frame, value float64) error {
	if b.err != nil {
		return b.err
	}
	if len(b.stack) == 0 {
		b.err = fmt.Errorf("%w: trying to leave %q", ErrEmptyStackUnderflow, f.Function)
		return b.err
	}
	if err := b.checkValue(value); err != nil {
		b.err = err
		return err
	}
	h := b.stack[len(b.stack)-1]
	if top := b.p.frames.Frame(h); top.Key != f.Identity() {
		b.err = fmt.Errorf("%w: tried to leave frame %q while frame %q was at the top at %v", ErrUnbalancedFrames, f.Function, top.Function, value)
		return b.err
	}

	b.addWeights(value)

	leaving := b.appendOrderStack[len(b.appendOrderStack)-1]
	b.appendOrderStack = b.appendOrderStack[:len(b.appendOrderStack)-1]
	b.p.nodes.Freeze(leaving)
	if delta := value - b.lastValue; delta > 0 {
		b.p.pushSample(leaving, delta)
	}
	b.groupedStack = b.groupedStack[:len(b.groupedStack)-1]

	b.stack = b.stack[:len(b.stack)-1]
	if b.framesInStack[h] <= 1 {
		delete(b.framesInStack, h)
	} else {
		b.framesInStack[h]--
	}
	b.lastValue = value
	b.p.totalWeight = max(b.p.totalWeight, value)
	return nil
}

// LeaveAllOpenFrames closes every open frame one unit after the largest
// value seen, for streams that ended without closing them.
func (b *CallTreeBuilder) LeaveAllOpenFrames() error {
	end := b.p.totalWeight + 1
	for len(b.stack) > 0 {
		top := *b.p.frames.Frame(b.stack[len(b.stack)-1])
		if err := b.LeaveFrame(top, end); err != nil {
			return err
		}
	}
	return nil
}

// Build finalizes the profile. Every entered frame must have been left.
func (b *CallTreeBuilder) Build() (*Profile, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.appendOrderStack) > 1 || len(b.groupedStack) > 1 {
		return nil, fmt.Errorf("%w: %d frames left open", ErrUnterminatedStack, len(b.stack))
	}
	b.p.finalize()
	return b.p, nil
}
