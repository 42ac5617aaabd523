// Package chainboot implements the chainboot wire protocol: the
// handshake by which a host tool streams a freshly built kernel image
// to a bare-metal target over a serial link and verifies it landed
// intact. The target side (the tiny first-stage loader that actually
// runs on the board) is out of scope here — this package only carries
// the protocol's shape, so a host tool and a test harness can speak it.
package chainboot

// Hasher implements the SeaHash-equivalent, non-cryptographic streaming
// hash the wire protocol folds every observed byte into. This is a
// direct port of the public SeaHash diffusion algorithm (four running
// lanes, each mixed with a multiplicative diffuser) — not a
// cryptographic hash, by design: the protocol only needs to catch
// transmission corruption, not resist a deliberate adversary, and
// substituting a cryptographic hash here would contradict that.
type Hasher struct {
	state    [4]uint64
	buf      [8]byte
	bufLen   int
	lane     int
	written  uint64
}

const seaHashMul = 0x6eed0e9da4d94a4f

var seaHashSeed = [4]uint64{
	0x16f11fe89b0d677c,
	0xb480a793d8e6c86c,
	0x6fe2e5aaf078ebc9,
	0x14f994a4c5259381,
}

// NewHasher returns a Hasher ready to accept bytes.
func NewHasher() *Hasher {
	h := &Hasher{}
	h.Reset()
	return h
}

// Reset restores the Hasher to its initial, empty state.
func (h *Hasher) Reset() {
	h.state = seaHashSeed
	h.bufLen = 0
	h.lane = 0
	h.written = 0
}

func diffuse(x uint64) uint64 {
	x *= seaHashMul
	a := x >> 32
	b := x >> 60
	x ^= a >> b
	x *= seaHashMul
	return x
}

func leU64(b []byte) uint64 {
	return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24 |
		uint64(b[4])<<32 | uint64(b[5])<<40 | uint64(b[6])<<48 | uint64(b[7])<<56
}

func (h *Hasher) mixBlock(block []byte) {
	x := leU64(block)
	h.state[h.lane] = diffuse(h.state[h.lane] ^ x)
	h.lane = (h.lane + 1) % 4
}

// Write folds p into the running hash, eight bytes at a time. It never
// returns an error.
func (h *Hasher) Write(p []byte) (int, error) {
	n := len(p)
	h.written += uint64(n)

	if h.bufLen > 0 {
		take := 8 - h.bufLen
		if take > len(p) {
			take = len(p)
		}
		copy(h.buf[h.bufLen:], p[:take])
		h.bufLen += take
		p = p[take:]
		if h.bufLen < 8 {
			return n, nil
		}
		h.mixBlock(h.buf[:])
		h.bufLen = 0
	}

	for len(p) >= 8 {
		h.mixBlock(p[:8])
		p = p[8:]
	}

	if len(p) > 0 {
		h.bufLen = copy(h.buf[:], p)
	}
	return n, nil
}

// Sum64 finalizes and returns the hash of every byte written so far.
// Calling Sum64 does not invalidate further Write calls, matching the
// standard library's hash.Hash64 contract (the trailing partial block
// is not consumed, only peeked at).
func (h *Hasher) Sum64() uint64 {
	state := h.state
	lane := h.lane

	if h.bufLen > 0 {
		var last [8]byte
		copy(last[:], h.buf[:h.bufLen])
		x := leU64(last[:])
		state[lane] = diffuse(state[lane] ^ x)
	}

	mixed := (state[0] ^ state[1]) + (state[2] ^ state[3])
	return diffuse(mixed ^ h.written)
}

// BlockSize reports the hasher's natural block size, as hash.Hash does.
func (h *Hasher) BlockSize() int { return 8 }

// Sum64Of is a convenience one-shot over a full buffer.
func Sum64Of(data []byte) uint64 {
	h := NewHasher()
	_, _ = h.Write(data)
	return h.Sum64()
}
