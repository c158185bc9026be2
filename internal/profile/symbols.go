package profile

import (
	"strings"

	"github.com/ianlancetaylor/demangle"

	"github.com/getsentry/vroomscope/internal/frame"
)

type (
	// SymbolOverride lists the attributes to rewrite on a frame. Nil fields
	// are left untouched.
	SymbolOverride struct {
		Name   *string
		File   *string
		Line   *uint32
		Column *uint32
	}

	// SymbolRemapper returns the override for a frame, or nil to keep it.
	SymbolRemapper func(f frame.Frame) *SymbolOverride

	// Demangler turns a mangled symbol into a readable one.
	Demangler func(name string) string
)

var manglingPrefixes = []string{"__Z", "_Z", "_R"}

// RemapSymbols rewrites frame descriptors in place. Frames are shared with
// every shallow clone of the profile, so they see the change too.
func (p *Profile) RemapSymbols(remap SymbolRemapper) {
	p.ForEachFrame(func(h frame.Handle) {
		f := p.frames.Frame(h)
		o := remap(*f)
		if o == nil {
			return
		}
		if o.Name != nil {
			f.Function = *o.Name
		}
		if o.File != nil {
			f.File = *o.File
		}
		if o.Line != nil {
			f.Line = *o.Line
		}
		if o.Column != nil {
			f.Column = *o.Column
		}
	})
}

// Demangle runs d over every frame name carrying a C++ or Rust mangling
// prefix. A nil d uses DefaultDemangler.
func (p *Profile) Demangle(d Demangler) {
	if d == nil {
		d = DefaultDemangler
	}
	p.ForEachFrame(func(h frame.Handle) {
		f := p.frames.Frame(h)
		if isMangled(f.Function) {
			f.Function = d(f.Function)
		}
	})
}

func isMangled(name string) bool {
	for _, prefix := range manglingPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// DefaultDemangler handles Itanium C++ and Rust v0 symbols. Names it can't
// parse are returned unchanged.
func DefaultDemangler(name string) string {
	// Mach-O symbols carry an extra leading underscore.
	mangled := name
	if strings.HasPrefix(name, "__Z") {
		mangled = name[1:]
	}
	if demangled := demangle.Filter(mangled); demangled != mangled {
		return demangled
	}
	return name
}
