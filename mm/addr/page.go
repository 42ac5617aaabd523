package addr

import (
	"errors"
	"math"
)

// ErrNotAligned is returned when a value that must be granule-aligned is
// not.
var ErrNotAligned = errors.New("addr: value is not granule-aligned")

// PageAddress is an Address whose invariant is that its value is a
// multiple of Granule. Constructors reject misaligned input instead of
// silently rounding, so a PageAddress is always safe to feed directly
// into a translation-table index computation.
type PageAddress[T Space] struct {
	Address[T]
}

// NewPage constructs a PageAddress, failing with ErrNotAligned if value
// is not a multiple of Granule.
func NewPage[T Space](value uint64) (PageAddress[T], error) {
	a := New[T](value)
	if !a.IsPageAligned() {
		return PageAddress[T]{}, ErrNotAligned
	}
	return PageAddress[T]{Address: a}, nil
}

// FromAddress rounds a to the enclosing page and returns it as a
// PageAddress; it never fails since AlignDownPage always produces an
// aligned value.
func FromAddress[T Space](a Address[T]) PageAddress[T] {
	return PageAddress[T]{Address: a.AlignDownPage()}
}

// CheckedOffset advances p by n pages (n may be negative), returning
// false instead of wrapping or panicking if the offset would overflow
// or underflow the address space.
func (p PageAddress[T]) CheckedOffset(n int64) (PageAddress[T], bool) {
	delta := n * Granule
	v := int64(p.Uint64()) + delta
	if v < 0 || v > math.MaxInt64 {
		return PageAddress[T]{}, false
	}
	return PageAddress[T]{Address: New[T](uint64(v))}, true
}

// StepsBetween returns the number of pages from a to b (negative if b
// precedes a). Used for counting spans between two page addresses.
func StepsBetween[T Space](a, b PageAddress[T]) int64 {
	return (int64(b.Uint64()) - int64(a.Uint64())) / Granule
}
