package chainboot

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
)

type duplex struct {
	io.Reader
	io.Writer
}

func newDuplexPair() (host, target io.ReadWriter) {
	hostToTargetR, hostToTargetW := io.Pipe()
	targetToHostR, targetToHostW := io.Pipe()
	host = duplex{Reader: targetToHostR, Writer: hostToTargetW}
	target = duplex{Reader: hostToTargetR, Writer: targetToHostW}
	return host, target
}

func fakeKernel(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*31 + 7)
	}
	return b
}

// TestHandshakeRoundTrip covers scenario S2: a host sends a kernel
// image through the full protocol, and the target's independent
// Receive implementation accepts it and recovers the same bytes.
func TestHandshakeRoundTrip(t *testing.T) {
	hostConn, targetConn := newDuplexPair()
	kernel := fakeKernel(12345)

	target := &Target{MaxImageSize: 1 << 20}
	done := make(chan error, 1)
	go func() { done <- target.Receive(targetConn) }()

	if err := ReadRequest(hostConn); err != nil {
		t.Fatalf("ReadRequest: %v", err)
	}
	if err := SendKernel(hostConn, kernel); err != nil {
		t.Fatalf("SendKernel: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Target.Receive: %v", err)
	}
	if !bytes.Equal(target.LoadBuffer, kernel) {
		t.Fatalf("target received %d bytes, want %d matching bytes", len(target.LoadBuffer), len(kernel))
	}
}

type fakeLink struct {
	in  *bytes.Buffer
	out *bytes.Buffer
}

func (f *fakeLink) Read(p []byte) (int, error)  { return f.in.Read(p) }
func (f *fakeLink) Write(p []byte) (int, error) { return f.out.Write(p) }

func TestReceiveRejectsOversizedImage(t *testing.T) {
	in := &bytes.Buffer{}
	var sizeBuf [8]byte
	binary.LittleEndian.PutUint64(sizeBuf[:], 1<<30)
	in.Write(sizeBuf[:])

	target := &Target{MaxImageSize: 1 << 20}
	link := &fakeLink{in: in, out: &bytes.Buffer{}}

	if err := target.Receive(link); err != ErrImageTooLarge {
		t.Fatalf("got %v, want ErrImageTooLarge", err)
	}
}

func TestReceiveRejectsChecksumMismatch(t *testing.T) {
	kernel := fakeKernel(64)
	in := &bytes.Buffer{}
	var sizeBuf [8]byte
	binary.LittleEndian.PutUint64(sizeBuf[:], uint64(len(kernel)))
	in.Write(sizeBuf[:])
	in.Write(kernel)
	var badChecksum [8]byte
	binary.LittleEndian.PutUint64(badChecksum[:], Sum64Of(kernel)^1)
	in.Write(badChecksum[:])

	target := &Target{MaxImageSize: 1 << 20}
	link := &fakeLink{in: in, out: &bytes.Buffer{}}

	if err := target.Receive(link); err != ErrChecksumMismatch {
		t.Fatalf("got %v, want ErrChecksumMismatch", err)
	}
}

func TestHasherStreamingMatchesOneShot(t *testing.T) {
	data := fakeKernel(1000)
	want := Sum64Of(data)

	h := NewHasher()
	for _, chunk := range [][]byte{data[:1], data[1:7], data[7:300], data[300:999], data[999:]} {
		if _, err := h.Write(chunk); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if got := h.Sum64(); got != want {
		t.Fatalf("streamed Sum64 = %#x, want %#x", got, want)
	}
}

func TestHasherDiffersOnMutation(t *testing.T) {
	a := fakeKernel(37)
	b := fakeKernel(37)
	b[10] ^= 0xFF

	if Sum64Of(a) == Sum64Of(b) {
		t.Fatalf("hash collided for mutated input")
	}
}

func TestReadRequestSkipsNoise(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x41, 0x03, 0x03, 0x42, 0x03, 0x03, 0x03})

	if err := ReadRequest(&buf); err != nil {
		t.Fatalf("ReadRequest: %v", err)
	}
}
