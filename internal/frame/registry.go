package frame

import (
	"github.com/getsentry/vroomscope/internal/stringpool"
)

// Handle is the dense index of a frame inside its Registry.
type Handle int32

const (
	// Root is the sentinel frame every registry starts with.
	Root Handle = 0

	RootName = "(speedscope root)"
)

// Registry is the canonical, deduplicated set of frames of a profile. Self
// and total weights are kept in arrays parallel to the frames.
type Registry struct {
	pool         *stringpool.Pool
	handles      map[Key]Handle
	frames       []Frame
	selfWeights  []float64
	totalWeights []float64
}

func NewRegistry() *Registry {
	r := &Registry{}
	r.Reset()
	return r
}

// Reset drops every frame and weight and registers a fresh root.
func (r *Registry) Reset() {
	if r.pool == nil {
		r.pool = stringpool.New()
	} else {
		r.pool.Reset()
	}
	r.handles = make(map[Key]Handle)
	r.frames = r.frames[:0]
	r.selfWeights = r.selfWeights[:0]
	r.totalWeights = r.totalWeights[:0]
	// The root is never reachable through a key lookup.
	r.insert(Frame{Key: StringKey(RootName), Function: RootName})
}

// GetOrInsert returns the handle of the frame sharing f's identity,
// registering f with zero weights if it isn't known yet.
func (r *Registry) GetOrInsert(f Frame) Handle {
	key := f.Identity()
	if h, exists := r.handles[key]; exists {
		return h
	}
	if !key.numeric {
		key.str = r.pool.Intern(key.str)
	}
	f.Key = key
	h := r.insert(f)
	r.handles[key] = h
	return h
}

func (r *Registry) insert(f Frame) Handle {
	f.Function = r.pool.Intern(f.Function)
	f.File = r.pool.Intern(f.File)
	f.Path = r.pool.Intern(f.Path)
	f.Package = r.pool.Intern(f.Package)
	h := Handle(len(r.frames))
	r.frames = append(r.frames, f)
	r.selfWeights = append(r.selfWeights, 0)
	r.totalWeights = append(r.totalWeights, 0)
	return h
}

func (r *Registry) Lookup(k Key) (Handle, bool) {
	h, exists := r.handles[k]
	return h, exists
}

// Frame returns the descriptor for h. The pointer stays valid until the next
// insertion.
func (r *Registry) Frame(h Handle) *Frame {
	return &r.frames[h]
}

// Len returns the number of registered frames, root excluded.
func (r *Registry) Len() int {
	return len(r.frames) - 1
}

// ForEach calls fn for every registered frame in insertion order, root
// excluded.
func (r *Registry) ForEach(fn func(h Handle)) {
	for i := 1; i < len(r.frames); i++ {
		fn(Handle(i))
	}
}

func (r *Registry) SelfWeight(h Handle) float64 {
	return r.selfWeights[h]
}

func (r *Registry) TotalWeight(h Handle) float64 {
	return r.totalWeights[h]
}

func (r *Registry) AddToSelfWeight(h Handle, delta float64) {
	r.selfWeights[h] += delta
}

func (r *Registry) AddToTotalWeight(h Handle, delta float64) {
	r.totalWeights[h] += delta
}

// OverwriteWeights replaces both weights of h.
func (r *Registry) OverwriteWeights(h Handle, self, total float64) {
	r.selfWeights[h] = self
	r.totalWeights[h] = total
}

// ShrinkToFit trims the backing arrays to their length.
func (r *Registry) ShrinkToFit() {
	r.frames = append([]Frame(nil), r.frames...)
	r.selfWeights = append([]float64(nil), r.selfWeights...)
	r.totalWeights = append([]float64(nil), r.totalWeights...)
}
