package frame

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"path"
	"strconv"

	"github.com/getsentry/vroomscope/internal/packageutil"
)

type (
	// Frame describes one call stack location as supplied by an importer.
	Frame struct {
		Column   uint32 `json:"col,omitempty"`
		File     string `json:"file,omitempty"`
		Function string `json:"name"`
		InApp    *bool  `json:"in_app,omitempty"`
		Key      Key    `json:"-"`
		Line     uint32 `json:"line,omitempty"`
		Package  string `json:"package,omitempty"`
		Path     string `json:"path,omitempty"`
	}

	// Key is the identity of a frame. Two frames are the same entity iff
	// their keys are equal. A key is either a string or a raw address.
	Key struct {
		str     string
		addr    uint64
		numeric bool
	}
)

func StringKey(s string) Key {
	return Key{str: s}
}

func AddressKey(addr uint64) Key {
	return Key{addr: addr, numeric: true}
}

func (k Key) IsZero() bool {
	return !k.numeric && k.str == ""
}

func (k Key) IsAddress() bool {
	return k.numeric
}

func (k Key) String() string {
	if k.numeric {
		return "0x" + strconv.FormatUint(k.addr, 16)
	}
	return k.str
}

// ID returns a stable hash of the frame's location. It is used as the frame
// key when an importer didn't provide one.
func (f Frame) ID() string {
	hash := md5.Sum([]byte(fmt.Sprintf("%s:%s:%d:%d", f.File, f.Function, f.Line, f.Column)))
	return hex.EncodeToString(hash[:])
}

// Identity returns the explicit key if set, the hashed location otherwise.
func (f Frame) Identity() Key {
	if !f.Key.IsZero() {
		return f.Key
	}
	return StringKey(f.ID())
}

// PackageBaseName returns the last element of the package path, or the
// package inferred from the file for Node modules.
func (f Frame) PackageBaseName() string {
	if f.Package != "" {
		return path.Base(f.Package)
	}
	if f.File != "" {
		return packageutil.Classify(f.File).Package
	}
	return ""
}

// IsApplication returns the in-app flag if the importer set one, and
// otherwise guesses from well-known third-party install locations.
func (f Frame) IsApplication() bool {
	if f.InApp != nil {
		return *f.InApp
	}
	for _, p := range []string{f.Path, f.File} {
		if p != "" && !packageutil.Classify(p).InApp {
			return false
		}
	}
	return true
}
