package addr

import "errors"

// ErrEmptyAdvance is returned by TakeFirstNPages when the region does
// not hold n free pages.
var ErrEmptyAdvance = errors.New("addr: not enough free pages")

// ErrInverted is returned when a region's end precedes its start.
var ErrInverted = errors.New("addr: region end precedes start")

// MemoryRegion is a half-open [start, endExclusive) range of pages.
type MemoryRegion[T Space] struct {
	start, end PageAddress[T]
}

// NewRegion constructs a MemoryRegion, asserting start <= end.
func NewRegion[T Space](start, end PageAddress[T]) (MemoryRegion[T], error) {
	if start.Uint64() > end.Uint64() {
		return MemoryRegion[T]{}, ErrInverted
	}
	return MemoryRegion[T]{start: start, end: end}, nil
}

// Start returns the region's first page.
func (r MemoryRegion[T]) Start() PageAddress[T] { return r.start }

// End returns the region's exclusive end.
func (r MemoryRegion[T]) End() PageAddress[T] { return r.end }

// NumPages returns the number of granule-sized pages in the region.
func (r MemoryRegion[T]) NumPages() uint64 {
	return (r.end.Uint64() - r.start.Uint64()) / Granule
}

// SizeBytes returns the region's size in bytes.
func (r MemoryRegion[T]) SizeBytes() uint64 {
	return r.end.Uint64() - r.start.Uint64()
}

// IsEmpty reports whether the region holds no pages.
func (r MemoryRegion[T]) IsEmpty() bool {
	return r.start.Uint64() == r.end.Uint64()
}

// Contains reports whether address lies within the region.
func (r MemoryRegion[T]) Contains(a Address[T]) bool {
	v := a.Uint64()
	return v >= r.start.Uint64() && v < r.end.Uint64()
}

// Overlaps reports whether r and other share any page. A non-empty
// region always overlaps itself.
func (r MemoryRegion[T]) Overlaps(other MemoryRegion[T]) bool {
	if r.IsEmpty() || other.IsEmpty() {
		return false
	}
	return r.start.Uint64() < other.end.Uint64() && other.start.Uint64() < r.end.Uint64()
}

// TakeFirstNPages carves the first n pages off the front of the region,
// advancing Start past them, and returns the carved-out prefix as its
// own MemoryRegion.
func (r *MemoryRegion[T]) TakeFirstNPages(n uint64) (MemoryRegion[T], error) {
	if n > r.NumPages() {
		return MemoryRegion[T]{}, ErrEmptyAdvance
	}
	cut, _ := r.start.CheckedOffset(int64(n))
	prefix := MemoryRegion[T]{start: r.start, end: cut}
	r.start = cut
	return prefix, nil
}

// Pages invokes fn once per page in the region, in ascending order,
// stopping early if fn returns false.
func (r MemoryRegion[T]) Pages(fn func(PageAddress[T]) bool) {
	for p := r.start; p.Uint64() < r.end.Uint64(); {
		if !fn(p) {
			return
		}
		next, ok := p.CheckedOffset(1)
		if !ok {
			return
		}
		p = next
	}
}
