package valueformat

import (
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
)

type Unit string

const (
	UnitNone         Unit = "none"
	UnitNanoseconds  Unit = "nanoseconds"
	UnitMicroseconds Unit = "microseconds"
	UnitMilliseconds Unit = "milliseconds"
	UnitSeconds      Unit = "seconds"
	UnitBytes        Unit = "bytes"
)

// Formatter turns raw profile weights into display strings. The zero value
// formats raw numbers.
type Formatter struct {
	Unit Unit
}

func Raw() Formatter {
	return Formatter{Unit: UnitNone}
}

func Time(u Unit) Formatter {
	return Formatter{Unit: u}
}

func Bytes() Formatter {
	return Formatter{Unit: UnitBytes}
}

// ParseUnit maps unit names found in speedscope and pprof files to a Unit.
// Unknown names map to UnitNone.
func ParseUnit(s string) Unit {
	switch strings.ToLower(s) {
	case "nanoseconds", "nanosecond", "ns":
		return UnitNanoseconds
	case "microseconds", "microsecond", "us", "µs":
		return UnitMicroseconds
	case "milliseconds", "millisecond", "ms":
		return UnitMilliseconds
	case "seconds", "second", "s":
		return UnitSeconds
	case "bytes", "byte", "b":
		return UnitBytes
	}
	return UnitNone
}

// IsTime reports whether the unit is a duration.
func (u Unit) IsTime() bool {
	switch u {
	case UnitNanoseconds, UnitMicroseconds, UnitMilliseconds, UnitSeconds:
		return true
	}
	return false
}

// Nanoseconds returns how many nanoseconds one unit lasts, 1 for non-time units.
func (u Unit) Nanoseconds() float64 {
	switch u {
	case UnitMicroseconds:
		return 1e3
	case UnitMilliseconds:
		return 1e6
	case UnitSeconds:
		return 1e9
	}
	return 1
}

func (f Formatter) Format(v float64) string {
	switch {
	case f.Unit.IsTime():
		return formatDuration(v * f.Unit.Nanoseconds())
	case f.Unit == UnitBytes:
		if v < 0 {
			return "-" + humanize.IBytes(uint64(-v))
		}
		return humanize.IBytes(uint64(v))
	}
	if v == math.Trunc(v) {
		return humanize.Comma(int64(v))
	}
	return humanize.CommafWithDigits(v, 2)
}

func formatDuration(ns float64) string {
	abs := math.Abs(ns)
	switch {
	case abs >= 3600e9:
		return fmt.Sprintf("%.2fh", ns/3600e9)
	case abs >= 60e9:
		return fmt.Sprintf("%.2fmin", ns/60e9)
	case abs >= 1e9:
		return fmt.Sprintf("%.2fs", ns/1e9)
	case abs >= 1e6:
		return fmt.Sprintf("%.2fms", ns/1e6)
	case abs >= 1e3:
		return fmt.Sprintf("%.2fµs", ns/1e3)
	}
	return fmt.Sprintf("%.0fns", ns)
}
