package sync

import "testing"

type recordingMask struct {
	masked  bool
	history []string
}

func (m *recordingMask) MaskIRQs() bool {
	prior := m.masked
	m.masked = true
	m.history = append(m.history, "mask")
	return prior
}

func (m *recordingMask) RestoreIRQs(prior bool) {
	m.masked = prior
	m.history = append(m.history, "restore")
}

func TestIRQSafeNullLockMasksDuringClosure(t *testing.T) {
	mask := &recordingMask{}
	l := NewIRQSafeNullLock(0, mask)

	l.Lock(func(data *int) {
		*data = 42
		if !mask.masked {
			t.Fatal("IRQs not masked during closure")
		}
	})

	if mask.masked {
		t.Fatal("IRQs still masked after Lock returned")
	}
	if len(mask.history) != 2 || mask.history[0] != "mask" || mask.history[1] != "restore" {
		t.Fatalf("unexpected mask history: %v", mask.history)
	}
}

func TestIRQSafeNullLockRestoresNesting(t *testing.T) {
	mask := &recordingMask{masked: true}
	l := NewIRQSafeNullLock(0, mask)

	l.Lock(func(_ *int) {})

	if !mask.masked {
		t.Fatal("outer IRQ-masked state was not restored")
	}
}

type fakeState struct {
	init   bool
	masked bool
}

func (s *fakeState) IsInit() bool           { return s.init }
func (s *fakeState) IsLocalIRQMasked() bool { return s.masked }

func TestInitStateLockWriteDuringInit(t *testing.T) {
	st := &fakeState{init: true, masked: true}
	l := NewInitStateLock(0, st)

	if err := l.Write(func(d *int) { *d = 7 }); err != nil {
		t.Fatalf("Write during init: %v", err)
	}

	var got int
	l.Read(func(d *int) { got = *d })
	if got != 7 {
		t.Fatalf("got %d, want 7", got)
	}
}

func TestInitStateLockWriteAfterInitRejected(t *testing.T) {
	st := &fakeState{init: false, masked: true}
	l := NewInitStateLock(0, st)

	if err := l.Write(func(_ *int) {}); err != ErrWriteAfterInit {
		t.Fatalf("got %v, want ErrWriteAfterInit", err)
	}
}

func TestInitStateLockWriteWithIRQsUnmaskedRejected(t *testing.T) {
	st := &fakeState{init: true, masked: false}
	l := NewInitStateLock(0, st)

	if err := l.Write(func(_ *int) {}); err != ErrWriteIRQsUnmasked {
		t.Fatalf("got %v, want ErrWriteIRQsUnmasked", err)
	}
}
