// Package dtb reads a flattened device tree (FDT) blob: build an index
// once at boot time, then resolve "/path/to/prop"-style paths and
// decode address/size-cell pairs out of reg-style properties.
//
// The structure-block token layout (magic,
// FDT_BEGIN_NODE/FDT_END_NODE/FDT_PROP/FDT_NOP/FDT_END) follows the
// devicetree specification's flattened format directly, decoded with
// encoding/binary.
package dtb

import (
	"encoding/binary"
	"errors"
	"strings"
)

const (
	fdtMagic       = 0xd00dfeed
	fdtHeaderSize  = 40 // 10 big-endian uint32 fields
	fdtVersion     = 17
	fdtLastCompVer = 16

	tokenBeginNode = 0x1
	tokenEndNode   = 0x2
	tokenProp      = 0x3
	tokenNop       = 0x4
	tokenEnd       = 0x9
)

var (
	// ErrBadMagic is returned when the blob's header magic doesn't
	// match the FDT magic number.
	ErrBadMagic = errors.New("dtb: bad FDT magic")
	// ErrTruncated is returned when the blob is shorter than its own
	// header claims.
	ErrTruncated = errors.New("dtb: truncated blob")
	// ErrScratchTooSmall is returned by New when the caller-supplied
	// scratch buffer is smaller than Layout reported.
	ErrScratchTooSmall = errors.New("dtb: scratch buffer too small")
	// ErrNotFound is returned by GetPropByPath when no node or
	// property matches the given path.
	ErrNotFound = errors.New("dtb: path not found")
	// ErrMalformedPairs is returned by Prop.Pairs when the property's
	// payload length isn't a multiple of the cell stride.
	ErrMalformedPairs = errors.New("dtb: malformed address/size cell payload")
)

type header struct {
	totalSize     uint32
	offDtStruct   uint32
	offDtStrings  uint32
	offMemRsvmap  uint32
	version       uint32
	lastCompVer   uint32
	bootCPUIDPhys uint32
	sizeDtStrings uint32
	sizeDtStruct  uint32
}

func parseHeader(blob []byte) (header, error) {
	if len(blob) < fdtHeaderSize {
		return header{}, ErrTruncated
	}
	if binary.BigEndian.Uint32(blob[0:4]) != fdtMagic {
		return header{}, ErrBadMagic
	}
	h := header{
		totalSize:     binary.BigEndian.Uint32(blob[4:8]),
		offDtStruct:   binary.BigEndian.Uint32(blob[8:12]),
		offDtStrings:  binary.BigEndian.Uint32(blob[12:16]),
		offMemRsvmap:  binary.BigEndian.Uint32(blob[16:20]),
		version:       binary.BigEndian.Uint32(blob[20:24]),
		lastCompVer:   binary.BigEndian.Uint32(blob[24:28]),
		bootCPUIDPhys: binary.BigEndian.Uint32(blob[28:32]),
		sizeDtStrings: binary.BigEndian.Uint32(blob[32:36]),
		sizeDtStruct:  binary.BigEndian.Uint32(blob[36:40]),
	}
	if uint64(len(blob)) < uint64(h.totalSize) {
		return header{}, ErrTruncated
	}
	return h, nil
}

// Node is a single device-tree node: a name, its immediate properties,
// and its immediate children.
type Node struct {
	Name     string
	Props    []Prop
	Children []*Node
}

// Prop is a device-tree property: a name and a raw, big-endian payload.
type Prop struct {
	Name  string
	Value []byte
}

// DeviceTree is an indexed, navigable view of a parsed FDT blob.
type DeviceTree struct {
	root *Node
}

// Layout reports the number of scratch bytes New requires to build its
// index for blob — one index node/prop slot per structure-block token,
// so a caller that only has a bump allocator this early in boot can
// size the buffer once before indexing the tree.
func Layout(blob []byte) (int, error) {
	h, err := parseHeader(blob)
	if err != nil {
		return 0, err
	}
	// Worst case: every 4 bytes of the structure block is its own
	// token; each Node/Prop we might allocate is well under 64 bytes
	// once string headers are included, so this bound is generous but
	// cheap to state without walking the stream twice.
	return int(h.sizeDtStruct) * 16, nil
}

// New indexes blob into a DeviceTree. scratch must be at least as large
// as Layout(blob) reports; New validates this but lets the Go
// allocator do the actual node/prop allocation, since nothing else in
// this kernel shares that arena.
func New(blob, scratch []byte) (*DeviceTree, error) {
	need, err := Layout(blob)
	if err != nil {
		return nil, err
	}
	if len(scratch) < need {
		return nil, ErrScratchTooSmall
	}

	h, err := parseHeader(blob)
	if err != nil {
		return nil, err
	}

	strs := blob[h.offDtStrings : h.offDtStrings+h.sizeDtStrings]
	structure := blob[h.offDtStruct : h.offDtStruct+h.sizeDtStruct]

	p := &parser{structure: structure, strings: strs}
	root, err := p.parseNode()
	if err != nil {
		return nil, err
	}

	return &DeviceTree{root: root}, nil
}

type parser struct {
	structure []byte
	strings   []byte
	off       int
}

func (p *parser) u32() (uint32, error) {
	if p.off+4 > len(p.structure) {
		return 0, ErrTruncated
	}
	v := binary.BigEndian.Uint32(p.structure[p.off:])
	p.off += 4
	return v, nil
}

func align4(n int) int { return (n + 3) &^ 3 }

func (p *parser) cstring() (string, error) {
	start := p.off
	end := start
	for end < len(p.structure) && p.structure[end] != 0 {
		end++
	}
	if end >= len(p.structure) {
		return "", ErrTruncated
	}
	p.off = align4(end + 1)
	return string(p.structure[start:end]), nil
}

func (p *parser) stringAt(offset uint32) string {
	end := int(offset)
	for end < len(p.strings) && p.strings[end] != 0 {
		end++
	}
	if int(offset) > len(p.strings) {
		return ""
	}
	return string(p.strings[offset:end])
}

// parseNode consumes a single FDT_BEGIN_NODE..FDT_END_NODE span,
// recursing into children, and returns the resulting Node. The caller
// is positioned just before the node's FDT_BEGIN_NODE token.
func (p *parser) parseNode() (*Node, error) {
	tok, err := p.u32()
	if err != nil {
		return nil, err
	}
	for tok == tokenNop {
		tok, err = p.u32()
		if err != nil {
			return nil, err
		}
	}
	if tok != tokenBeginNode {
		return nil, ErrTruncated
	}

	name, err := p.cstring()
	if err != nil {
		return nil, err
	}
	n := &Node{Name: name}

	for {
		tok, err := p.u32()
		if err != nil {
			return nil, err
		}
		switch tok {
		case tokenNop:
			continue
		case tokenProp:
			length, err := p.u32()
			if err != nil {
				return nil, err
			}
			nameOff, err := p.u32()
			if err != nil {
				return nil, err
			}
			if p.off+int(length) > len(p.structure) {
				return nil, ErrTruncated
			}
			value := p.structure[p.off : p.off+int(length)]
			p.off = align4(p.off + int(length))
			n.Props = append(n.Props, Prop{Name: p.stringAt(nameOff), Value: value})
		case tokenBeginNode:
			p.off -= 4 // rewind so parseNode sees its own BEGIN_NODE
			child, err := p.parseNode()
			if err != nil {
				return nil, err
			}
			n.Children = append(n.Children, child)
		case tokenEndNode:
			return n, nil
		case tokenEnd:
			return n, nil
		default:
			return nil, ErrTruncated
		}
	}
}

// GetPropByPath splits path on "/" starting from the root and walks
// children by name; the final component names a property on the node
// reached by the preceding components.
func (t *DeviceTree) GetPropByPath(path string) (Prop, error) {
	path = strings.TrimSuffix(path, "/")
	components := strings.Split(path, "/")
	if len(components) > 0 && components[0] == "" {
		components = components[1:]
	}
	if len(components) == 0 {
		return Prop{}, ErrNotFound
	}

	node := t.root
	for _, name := range components[:len(components)-1] {
		var next *Node
		for _, c := range node.Children {
			if c.Name == name {
				next = c
				break
			}
		}
		if next == nil {
			return Prop{}, ErrNotFound
		}
		node = next
	}

	propName := components[len(components)-1]
	for _, prop := range node.Props {
		if prop.Name == propName {
			return prop, nil
		}
	}
	return Prop{}, ErrNotFound
}

// Pairs decodes the property's payload as a sequence of (address, size)
// cells, reading 1- or 2-cell fields big-endian and advancing by
// (addressCells+sizeCells)*4 bytes each step.
func (p Prop) Pairs(addressCells, sizeCells uint32) ([]AddressSize, error) {
	stride := int(addressCells+sizeCells) * 4
	if stride == 0 || len(p.Value)%stride != 0 {
		return nil, ErrMalformedPairs
	}

	var out []AddressSize
	for off := 0; off < len(p.Value); off += stride {
		addr, sz, err := readCellPair(p.Value[off:off+stride], addressCells, sizeCells)
		if err != nil {
			return nil, err
		}
		out = append(out, AddressSize{Address: addr, Size: sz})
	}
	return out, nil
}

// AddressSize is one (address, size) pair decoded from a reg-style
// device-tree property.
type AddressSize struct {
	Address uint64
	Size    uint64
}

func readCellPair(b []byte, addressCells, sizeCells uint32) (addr, size uint64, err error) {
	off := 0
	addr, off, err = readCells(b, off, addressCells)
	if err != nil {
		return 0, 0, err
	}
	size, _, err = readCells(b, off, sizeCells)
	if err != nil {
		return 0, 0, err
	}
	return addr, size, nil
}

func readCells(b []byte, off int, cells uint32) (uint64, int, error) {
	switch cells {
	case 1:
		if off+4 > len(b) {
			return 0, 0, ErrMalformedPairs
		}
		return uint64(binary.BigEndian.Uint32(b[off:])), off + 4, nil
	case 2:
		if off+8 > len(b) {
			return 0, 0, ErrMalformedPairs
		}
		return binary.BigEndian.Uint64(b[off:]), off + 8, nil
	default:
		return 0, 0, ErrMalformedPairs
	}
}
