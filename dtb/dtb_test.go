package dtb

import (
	"encoding/binary"
	"testing"
)

// buildMinimalBlob constructs a minimal, valid FDT blob containing just a
// root node with a single property, "#address-cells" = <2>, matching the
// shape produced by real bootloader-supplied device trees for that
// property.
func buildMinimalBlob(t *testing.T) []byte {
	t.Helper()

	// Structure block: FDT_BEGIN_NODE "" NUL pad, FDT_PROP(len=4, nameoff=0) <00 00 00 02>,
	// FDT_END_NODE, FDT_END.
	var structure []byte
	be32 := func(v uint32) {
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, v)
		structure = append(structure, b...)
	}

	be32(tokenBeginNode)
	structure = append(structure, 0x00, 0x00, 0x00, 0x00) // root name "" + padding to 4 bytes
	be32(tokenProp)
	be32(4) // length
	be32(0) // nameoff into strings block
	structure = append(structure, 0x00, 0x00, 0x00, 0x02)
	be32(tokenEndNode)
	be32(tokenEnd)

	strings := []byte("#address-cells\x00")
	// pad strings to a multiple of 4 for tidiness (not required by the format)
	for len(strings)%4 != 0 {
		strings = append(strings, 0)
	}

	const (
		offMemRsvmap = fdtHeaderSize
		offDtStruct  = offMemRsvmap + 16 // one empty (address=0,size=0) terminating entry
	)
	sizeDtStruct := uint32(len(structure))
	offDtStrings := uint32(offDtStruct) + sizeDtStruct
	sizeDtStrings := uint32(len(strings))
	totalSize := offDtStrings + sizeDtStrings

	blob := make([]byte, totalSize)
	binary.BigEndian.PutUint32(blob[0:4], fdtMagic)
	binary.BigEndian.PutUint32(blob[4:8], totalSize)
	binary.BigEndian.PutUint32(blob[8:12], uint32(offDtStruct))
	binary.BigEndian.PutUint32(blob[12:16], offDtStrings)
	binary.BigEndian.PutUint32(blob[16:20], uint32(offMemRsvmap))
	binary.BigEndian.PutUint32(blob[20:24], fdtVersion)
	binary.BigEndian.PutUint32(blob[24:28], fdtLastCompVer)
	binary.BigEndian.PutUint32(blob[28:32], 0) // boot_cpuid_phys
	binary.BigEndian.PutUint32(blob[32:36], sizeDtStrings)
	binary.BigEndian.PutUint32(blob[36:40], sizeDtStruct)

	// memory reservation block: a single (0,0) terminator entry.
	copy(blob[offMemRsvmap:offDtStruct], make([]byte, 16))

	copy(blob[offDtStruct:], structure)
	copy(blob[offDtStrings:], strings)

	return blob
}

func TestGetPropByPathAddressCells(t *testing.T) {
	blob := buildMinimalBlob(t)

	need, err := Layout(blob)
	if err != nil {
		t.Fatalf("Layout: %v", err)
	}
	scratch := make([]byte, need)

	tree, err := New(blob, scratch)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	prop, err := tree.GetPropByPath("/#address-cells")
	if err != nil {
		t.Fatalf("GetPropByPath: %v", err)
	}
	if len(prop.Value) != 4 {
		t.Fatalf("got value length %d, want 4", len(prop.Value))
	}
	if got := binary.BigEndian.Uint32(prop.Value); got != 2 {
		t.Fatalf("got #address-cells = %d, want 2", got)
	}
}

func TestNewRejectsBadMagic(t *testing.T) {
	blob := buildMinimalBlob(t)
	blob[0] = 0

	if _, err := Layout(blob); err != ErrBadMagic {
		t.Fatalf("got %v, want ErrBadMagic", err)
	}
}

func TestNewRejectsUndersizedScratch(t *testing.T) {
	blob := buildMinimalBlob(t)

	if _, err := New(blob, make([]byte, 1)); err != ErrScratchTooSmall {
		t.Fatalf("got %v, want ErrScratchTooSmall", err)
	}
}

func TestGetPropByPathNotFound(t *testing.T) {
	blob := buildMinimalBlob(t)
	need, _ := Layout(blob)
	tree, err := New(blob, make([]byte, need))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := tree.GetPropByPath("/no-such-prop"); err != ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if _, err := tree.GetPropByPath("/no/such/node"); err != ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestPropPairsOneOneCell(t *testing.T) {
	p := Prop{Name: "reg"}
	p.Value = make([]byte, 16)
	binary.BigEndian.PutUint32(p.Value[0:4], 0x1000)
	binary.BigEndian.PutUint32(p.Value[4:8], 0x100)
	binary.BigEndian.PutUint32(p.Value[8:12], 0x2000)
	binary.BigEndian.PutUint32(p.Value[12:16], 0x200)

	pairs, err := p.Pairs(1, 1)
	if err != nil {
		t.Fatalf("Pairs: %v", err)
	}
	want := []AddressSize{{Address: 0x1000, Size: 0x100}, {Address: 0x2000, Size: 0x200}}
	if len(pairs) != len(want) {
		t.Fatalf("got %d pairs, want %d", len(pairs), len(want))
	}
	for i := range want {
		if pairs[i] != want[i] {
			t.Fatalf("pair %d: got %+v, want %+v", i, pairs[i], want[i])
		}
	}
}

func TestPropPairsTwoOneCell(t *testing.T) {
	p := Prop{Name: "reg"}
	p.Value = make([]byte, 12)
	binary.BigEndian.PutUint64(p.Value[0:8], 0x1_0000_0000)
	binary.BigEndian.PutUint32(p.Value[8:12], 0x1000)

	pairs, err := p.Pairs(2, 1)
	if err != nil {
		t.Fatalf("Pairs: %v", err)
	}
	if len(pairs) != 1 || pairs[0].Address != 0x1_0000_0000 || pairs[0].Size != 0x1000 {
		t.Fatalf("got %+v", pairs)
	}
}

func TestPropPairsRejectsMisalignedPayload(t *testing.T) {
	p := Prop{Name: "reg", Value: make([]byte, 5)}
	if _, err := p.Pairs(1, 1); err != ErrMalformedPairs {
		t.Fatalf("got %v, want ErrMalformedPairs", err)
	}
}
