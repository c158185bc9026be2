package profile

import (
	"fmt"
	"math"

	"github.com/getsentry/vroomscope/internal/calltree"
	"github.com/getsentry/vroomscope/internal/frame"
	"github.com/getsentry/vroomscope/internal/valueformat"
)

type (
	// StackListBuilder builds a profile from complete stacks, ordered from
	// the outermost to the innermost frame.
	StackListBuilder struct {
		p   *Profile
		err error

		stack         []frame.Handle
		framesInStack map[frame.Handle]struct{}
		pending       *pendingSample
	}

	pendingSample struct {
		stack            []frame.Frame
		startTimestamp   float64
		centralTimestamp float64
	}
)

func NewStackListBuilder(totalWeight float64) *StackListBuilder {
	return &StackListBuilder{
		p:             newProfile(totalWeight),
		framesInStack: make(map[frame.Handle]struct{}),
	}
}

func (b *StackListBuilder) SetName(name string) {
	b.p.name = name
}

func (b *StackListBuilder) SetFormatter(f valueformat.Formatter) {
	b.p.formatter = f
}

// AppendSampleWithWeight records one sample. A zero weight is ignored.
// After an error the builder must be discarded.
func (b *StackListBuilder) AppendSampleWithWeight(stack []frame.Frame, weight float64) error {
	if b.err != nil {
		return b.err
	}
	if weight == 0 {
		return nil
	}
	if math.IsNaN(weight) || weight < 0 {
		b.err = fmt.Errorf("%w: samples must have positive weights, got %v", ErrInvalidWeight, weight)
		return b.err
	}

	b.stack = b.stack[:0]
	for _, f := range stack {
		b.stack = append(b.stack, b.p.frames.GetOrInsert(f))
	}
	b.appendSample(b.stack, weight, true)
	b.appendSample(b.stack, weight, false)
	return nil
}

func (b *StackListBuilder) appendSample(stack []frame.Handle, weight float64, useAppendOrder bool) {
	nodes := b.p.nodes
	node := b.p.groupedRoot
	if useAppendOrder {
		node = b.p.appendOrderRoot
	}
	nodes.AddToTotalWeight(node, weight)

	for _, f := range stack {
		var (
			last   calltree.NodeID
			exists bool
		)
		if useAppendOrder {
			last, exists = nodes.LastChild(node)
		} else {
			last, exists = nodes.ChildByFrame(node, f)
		}
		switch {
		case exists && !nodes.IsFrozen(last) && nodes.Frame(last) == f:
			node = last
		case useAppendOrder:
			node = nodes.NewChild(node, f)
		default:
			node = nodes.NewIndexedChild(node, f)
		}
		nodes.AddToTotalWeight(node, weight)
	}
	nodes.AddToSelfWeight(node, weight)

	if !useAppendOrder {
		return
	}

	// A finished sample closes the siblings it ended on: a later sample
	// coming back to this path must not extend them.
	for _, c := range nodes.Children(node) {
		nodes.Freeze(c)
	}

	// Recursion can put the same frame on the stack several times, it
	// only counts once per sample.
	clear(b.framesInStack)
	for _, f := range stack {
		b.framesInStack[f] = struct{}{}
	}
	for f := range b.framesInStack {
		b.p.frames.AddToTotalWeight(f, weight)
	}
	b.p.frames.AddToSelfWeight(nodes.Frame(node), weight)

	b.p.pushSample(node, weight)
}

// AppendSampleWithTimestamp records a sample taken at timestamp. Each
// sample is weighted by the time between the midpoints separating it from
// its neighbours.
func (b *StackListBuilder) AppendSampleWithTimestamp(stack []frame.Frame, timestamp float64) error {
	if b.err != nil {
		return b.err
	}
	if math.IsNaN(timestamp) {
		b.err = fmt.Errorf("%w: timestamp is not a number", ErrInvalidWeight)
		return b.err
	}
	s := &pendingSample{
		stack:            append([]frame.Frame(nil), stack...),
		startTimestamp:   timestamp,
		centralTimestamp: timestamp,
	}
	if b.pending != nil {
		if timestamp < b.pending.centralTimestamp {
			b.err = fmt.Errorf("%w: last timestamp was %v, this timestamp was %v", ErrOutOfOrderSample, b.pending.centralTimestamp, timestamp)
			return b.err
		}
		end := (timestamp + b.pending.centralTimestamp) / 2
		if err := b.AppendSampleWithWeight(b.pending.stack, end-b.pending.startTimestamp); err != nil {
			return err
		}
		s.startTimestamp = end
	}
	b.pending = s
	return nil
}

// Build finalizes the profile. The builder must not be used afterwards.
func (b *StackListBuilder) Build() (*Profile, error) {
	if b.err != nil {
		return nil, b.err
	}
	if s := b.pending; s != nil {
		b.pending = nil
		var err error
		if len(b.p.samples) > 0 {
			err = b.AppendSampleWithWeight(s.stack, s.centralTimestamp-s.startTimestamp)
		} else {
			// A single timestamp carries no duration.
			err = b.AppendSampleWithWeight(s.stack, 1)
			b.p.formatter = valueformat.Raw()
		}
		if err != nil {
			return nil, err
		}
	}
	b.p.finalize()
	return b.p, nil
}
