package addr

import "errors"

// ErrZeroSizeMMIO is returned when an MMIODescriptor is constructed with
// a zero size.
var ErrZeroSizeMMIO = errors.New("addr: MMIODescriptor size must be > 0")

// MMIODescriptor names a physical MMIO window a driver wants mapped:
// a start address and a byte size, not necessarily page-aligned.
type MMIODescriptor struct {
	start Address[Physical]
	size  uint64
}

// NewMMIODescriptor constructs an MMIODescriptor, rejecting a zero size.
func NewMMIODescriptor(start Address[Physical], size uint64) (MMIODescriptor, error) {
	if size == 0 {
		return MMIODescriptor{}, ErrZeroSizeMMIO
	}
	return MMIODescriptor{start: start, size: size}, nil
}

// Start returns the descriptor's inclusive start address.
func (d MMIODescriptor) Start() Address[Physical] { return d.start }

// End returns the descriptor's exclusive end address.
func (d MMIODescriptor) End() Address[Physical] { return d.start.Add(d.size) }

// Size returns the descriptor's byte size.
func (d MMIODescriptor) Size() uint64 { return d.size }

// AsRegion rounds the descriptor out to enclosing pages, producing the
// MemoryRegion<Physical> the translation table must map.
func (d MMIODescriptor) AsRegion() (MemoryRegion[Physical], error) {
	start := FromAddress(d.Start())
	end := FromAddress(d.End().AlignUpPage())
	return NewRegion(start, end)
}

// MemAttributes selects the cacheability of a mapping.
type MemAttributes int

const (
	CacheableDRAM MemAttributes = iota
	NonCacheableDRAM
	Device
)

// AccessPermissions selects read/write vs. read-only.
type AccessPermissions int

const (
	ReadWrite AccessPermissions = iota
	ReadOnly
)

// AttributeFields carries the page-attribute bits shared by every
// mapping operation in mm/table.
type AttributeFields struct {
	MemAttributes MemAttributes
	AccPerms      AccessPermissions
	ExecuteNever  bool
}

// DefaultAttributeFields is cacheable DRAM, read-write, non-executable —
// the safe default for kernel data.
func DefaultAttributeFields() AttributeFields {
	return AttributeFields{
		MemAttributes: CacheableDRAM,
		AccPerms:      ReadWrite,
		ExecuteNever:  true,
	}
}
