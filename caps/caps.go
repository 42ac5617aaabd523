// Package caps implements the capability table: a slot holds a tagged
// capability value plus its position in the mapping database (MDB), the
// doubly-linked preorder-DFS list that threads capability derivation.
//
// The derivation operations (Copy/Mint/Move/Mutate/Rotate/Delete/
// Revoke) follow seL4's CTE/MDB design.
//
// Slot addresses are deliberately arena indices (addr.Address[Physical]
// values into a single Table's backing slice), never Go pointers or
// references: the MDB is a cyclic, doubly-linked structure, and indices
// sidestep the borrow-checker-shaped problem pointers would create.
package caps

import (
	"errors"

	"github.com/metta-systems/nucleus/mm/addr"
	"github.com/metta-systems/nucleus/sync"
)

// Kind tags the object a Capability grants access to.
type Kind uint8

const (
	KindNull Kind = iota
	KindUntyped
	KindEndpoint
	KindNotification
	KindCapTable
	KindTCB
	KindReply
)

// SupportsBadge reports whether capabilities of this kind carry a
// meaningful badge. Only Endpoint and Notification capabilities do;
// stamping a badge onto any other kind cannot change what it grants
// access to, so Mutate refuses it.
func (k Kind) SupportsBadge() bool {
	return k == KindEndpoint || k == KindNotification
}

// Rights is a bitmask of the operations a Capability permits.
type Rights uint8

const (
	RightRead Rights = 1 << iota
	RightWrite
	RightGrant
	RightGrantReply
)

// Capability is the 128-bit tagged capability value: an object kind,
// the rights held over it, an optional badge, and the object pointer
// itself (meaning depends on Kind).
type Capability struct {
	Kind   Kind
	Rights Rights
	Badge  uint64
	Object uint64
}

// IsNull reports whether this is the empty (no-object) capability.
func (c Capability) IsNull() bool {
	return c.Kind == KindNull
}

// Restrict returns a copy of c with its rights narrowed to rights ∩
// c.Rights — a derived capability can never gain a right its source
// didn't already hold.
func (c Capability) Restrict(rights Rights) Capability {
	c.Rights &= rights
	return c
}

// SlotAddr identifies a capability slot: a 16-byte-aligned address into
// a Table's backing storage, with the zero value reserved to mean "no
// link" (matching the MDB's null-prev/null-next convention).
type SlotAddr = addr.Address[addr.Physical]

// SlotAddrForIndex returns the SlotAddr a Table assigns to slot index i.
// Index 0 maps to address 16, not 0, so the zero SlotAddr is always
// free to mean "null".
func SlotAddrForIndex(i int) SlotAddr {
	return addr.New[addr.Physical](uint64(i+1) * 16)
}

// MdbNode is a capability slot's position in the derivation tree: the
// preceding and following slot in preorder-DFS order, whether the
// derived capability may be revoked, and whether this was the first
// capability in its chain to receive a badge.
type MdbNode struct {
	Prev        SlotAddr
	Next        SlotAddr
	Revocable   bool
	FirstBadged bool
}

// HasPrev reports whether this node has a predecessor: a derived
// capability always does, a root of a derivation chain never does.
func (m MdbNode) HasPrev() bool { return m.Prev.Uint64() != 0 }

// HasNext reports whether this node has a successor in the list.
func (m MdbNode) HasNext() bool { return m.Next.Uint64() != 0 }

// Entry is a single capability table entry: the capability value plus
// its MDB node.
type Entry struct {
	Cap Capability
	Mdb MdbNode
}

var (
	// ErrNullSlot is returned when an operation is given the null
	// SlotAddr where a real slot is required.
	ErrNullSlot = errors.New("caps: slot address is null")
	// ErrNotAligned is returned when a SlotAddr is not 16-byte aligned.
	ErrNotAligned = errors.New("caps: slot address not 16-byte aligned")
	// ErrOutOfRange is returned when a SlotAddr does not resolve to a
	// slot within the Table.
	ErrOutOfRange = errors.New("caps: slot address out of range")
	// ErrInvalidPrev is returned by operations that require a non-null
	// prev link that turns out to be null.
	ErrInvalidPrev = errors.New("caps: invalid prev link")
	// ErrInvalidNext is returned by operations that require a non-null
	// next link that turns out to be null.
	ErrInvalidNext = errors.New("caps: invalid next link")
	// ErrAuthorityExceeded is returned by Mutate when the source
	// capability's kind cannot carry a badge, so stamping one would
	// change what the derived capability grants access to rather than
	// merely how it is identified.
	ErrAuthorityExceeded = errors.New("caps: mutate would exceed source capability's authority")
)

// Table is a fixed-size array of capability slots, each protected by a
// single IRQ-masked lock shared across the whole table — matching the
// shared-resource policy that gives every kernel data structure its own
// IRQ-masked lock.
type Table struct {
	lock *sync.IRQSafeNullLock[[]Entry]
}

// NewTable allocates a Table of n slots, all initially Null. mask may be
// nil, which installs a no-op IRQ controller suitable for host tests.
func NewTable(n int, mask sync.IRQMask) *Table {
	return &Table{lock: sync.NewIRQSafeNullLock(make([]Entry, n), mask)}
}

func at(entries []Entry, a SlotAddr) (*Entry, error) {
	v := a.Uint64()
	if v == 0 {
		return nil, ErrNullSlot
	}
	if v%16 != 0 {
		return nil, ErrNotAligned
	}
	i := int(v/16) - 1
	if i < 0 || i >= len(entries) {
		return nil, ErrOutOfRange
	}
	return &entries[i], nil
}

// Get returns a copy of the entry at a.
func (t *Table) Get(a SlotAddr) (Entry, error) {
	var entry Entry
	var err error
	t.lock.Lock(func(entries *[]Entry) {
		var e *Entry
		if e, err = at(*entries, a); err == nil {
			entry = *e
		}
	})
	return entry, err
}

// Set installs entry at a directly, bypassing derivation bookkeeping.
// Used to seed a Table's roots (Untyped capabilities created by boot
// code, not derived from anything).
func (t *Table) Set(a SlotAddr, entry Entry) error {
	var err error
	t.lock.Lock(func(entries *[]Entry) {
		var e *Entry
		if e, err = at(*entries, a); err == nil {
			*e = entry
		}
	})
	return err
}

// Copy installs src's capability, restricted by rights, into dst as a
// sibling immediately following src in the MDB list.
func (t *Table) Copy(src, dst SlotAddr, rights Rights) error {
	var err error
	t.lock.Lock(func(entries *[]Entry) {
		err = copyLocked(*entries, src, dst, rights)
	})
	return err
}

func copyLocked(entries []Entry, src, dst SlotAddr, rights Rights) error {
	s, err := at(entries, src)
	if err != nil {
		return err
	}
	d, err := at(entries, dst)
	if err != nil {
		return err
	}

	next := s.Mdb.Next

	d.Cap = s.Cap.Restrict(rights)
	d.Mdb = MdbNode{Prev: src, Next: next, Revocable: true, FirstBadged: false}

	if next.Uint64() != 0 {
		n, err := at(entries, next)
		if err != nil {
			return err
		}
		n.Mdb.Prev = dst
	}
	s.Mdb.Next = dst
	return nil
}

// Mint is Copy plus a badge stamped into the new capability; FirstBadged
// is set if src carried no badge of its own.
func (t *Table) Mint(src, dst SlotAddr, rights Rights, badge uint64) error {
	var err error
	t.lock.Lock(func(entries *[]Entry) {
		err = mintLocked(*entries, src, dst, rights, badge)
	})
	return err
}

func mintLocked(entries []Entry, src, dst SlotAddr, rights Rights, badge uint64) error {
	s, err := at(entries, src)
	if err != nil {
		return err
	}
	firstBadged := s.Cap.Badge == 0

	if err := copyLocked(entries, src, dst, rights); err != nil {
		return err
	}

	d, err := at(entries, dst)
	if err != nil {
		return err
	}
	d.Cap.Badge = badge
	d.Mdb.FirstBadged = firstBadged
	return nil
}

// Move transfers src's capability and MDB links to dst, leaving src
// Null, and retargets the neighbours' prev/next pointers to dst.
func (t *Table) Move(src, dst SlotAddr) error {
	var err error
	t.lock.Lock(func(entries *[]Entry) {
		err = moveLocked(*entries, src, dst)
	})
	return err
}

func moveLocked(entries []Entry, src, dst SlotAddr) error {
	s, err := at(entries, src)
	if err != nil {
		return err
	}
	d, err := at(entries, dst)
	if err != nil {
		return err
	}

	value, mdb := s.Cap, s.Mdb

	if mdb.HasPrev() {
		p, err := at(entries, mdb.Prev)
		if err != nil {
			return err
		}
		p.Mdb.Next = dst
	}
	if mdb.HasNext() {
		n, err := at(entries, mdb.Next)
		if err != nil {
			return err
		}
		n.Mdb.Prev = dst
	}

	d.Cap = value
	d.Mdb = mdb
	*s = Entry{}
	return nil
}

// Mutate is Move plus a new badge stamped onto the moved capability. It
// is forbidden for capability kinds that don't carry a badge at all,
// since stamping one then could only be observed as a change in
// authority, not identification. The MDB's FirstBadged flag carries
// over unchanged: the moved capability keeps its place in the
// derivation chain.
func (t *Table) Mutate(src, dst SlotAddr, badge uint64) error {
	var err error
	t.lock.Lock(func(entries *[]Entry) {
		err = mutateLocked(*entries, src, dst, badge)
	})
	return err
}

func mutateLocked(entries []Entry, src, dst SlotAddr, badge uint64) error {
	s, err := at(entries, src)
	if err != nil {
		return err
	}
	if !s.Cap.Kind.SupportsBadge() {
		return ErrAuthorityExceeded
	}

	if err := moveLocked(entries, src, dst); err != nil {
		return err
	}

	d, err := at(entries, dst)
	if err != nil {
		return err
	}
	d.Cap.Badge = badge
	return nil
}

// Rotate performs a three-way move among src, dst and pivot: the
// capability held in pivot moves to dst (stamped with dstBadge), and
// the capability held in src moves into the now-vacated pivot slot
// (stamped with pivotBadge). This is seL4's CNode_Rotate shape, used to
// rename a capability into a spare slot and hand the original slot's
// contents onward in a single step. The whole sequence runs under this
// Table's IRQ-masked lock, so it is atomic with respect to interrupt
// delivery.
func (t *Table) Rotate(src, dst SlotAddr, dstBadge uint64, pivot SlotAddr, pivotBadge uint64) error {
	var err error
	t.lock.Lock(func(entries *[]Entry) {
		err = rotateLocked(*entries, src, dst, dstBadge, pivot, pivotBadge)
	})
	return err
}

func rotateLocked(entries []Entry, src, dst SlotAddr, dstBadge uint64, pivot SlotAddr, pivotBadge uint64) error {
	if err := moveLocked(entries, pivot, dst); err != nil {
		return err
	}
	d, err := at(entries, dst)
	if err != nil {
		return err
	}
	d.Cap.Badge = dstBadge

	if err := moveLocked(entries, src, pivot); err != nil {
		return err
	}
	p, err := at(entries, pivot)
	if err != nil {
		return err
	}
	p.Cap.Badge = pivotBadge

	return nil
}

// Delete detaches slot from its MDB list, retargeting its neighbours'
// prev/next links. Children minted from slot — the run of FirstBadged
// entries directly following it — are deleted first, since they would
// otherwise point at a slot that no longer exists. Plain copies are
// siblings, not children, and stay in the list.
func (t *Table) Delete(slot SlotAddr) error {
	var err error
	t.lock.Lock(func(entries *[]Entry) {
		err = deleteLocked(*entries, slot)
	})
	return err
}

func deleteLocked(entries []Entry, slot SlotAddr) error {
	s, err := at(entries, slot)
	if err != nil {
		return err
	}
	for s.Mdb.HasNext() {
		n, err := at(entries, s.Mdb.Next)
		if err != nil {
			return err
		}
		if !n.Mdb.FirstBadged {
			break
		}
		if err := deleteLocked(entries, s.Mdb.Next); err != nil {
			return err
		}
	}
	prev, next := s.Mdb.Prev, s.Mdb.Next

	if prev.Uint64() != 0 {
		p, err := at(entries, prev)
		if err != nil {
			return err
		}
		p.Mdb.Next = next
	}
	if next.Uint64() != 0 {
		n, err := at(entries, next)
		if err != nil {
			return err
		}
		n.Mdb.Prev = prev
	}
	*s = Entry{}
	return nil
}

// Revoke deletes every descendant of slot, in preorder, leaving slot
// itself in place. A descendant is any entry reachable by following
// Prev links back to slot.
func (t *Table) Revoke(slot SlotAddr) error {
	var err error
	t.lock.Lock(func(entries *[]Entry) {
		err = revokeDescendantsLocked(*entries, slot)
	})
	return err
}

func revokeDescendantsLocked(entries []Entry, slot SlotAddr) error {
	s, err := at(entries, slot)
	if err != nil {
		return err
	}
	cur := s.Mdb.Next
	for cur.Uint64() != 0 && isDescendant(entries, cur, slot) {
		if err := deleteLocked(entries, cur); err != nil {
			return err
		}
		cur = s.Mdb.Next
	}
	return nil
}

// isDescendant reports whether candidate's derivation chain passes
// through ancestor, by walking Prev links back toward the root.
func isDescendant(entries []Entry, candidate, ancestor SlotAddr) bool {
	cur := candidate
	for cur.Uint64() != 0 {
		if cur == ancestor {
			return true
		}
		e, err := at(entries, cur)
		if err != nil {
			return false
		}
		cur = e.Mdb.Prev
	}
	return false
}
