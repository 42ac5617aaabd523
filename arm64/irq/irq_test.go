package irq

import "testing"

func TestMaskIRQsSetsBitAndReportsPriorState(t *testing.T) {
	writeDAIF(0)

	var m Mask
	if prior := m.MaskIRQs(); prior {
		t.Fatal("expected prior state unmasked")
	}
	if readDAIF()&daifIRQBit == 0 {
		t.Fatal("DAIF.I not set after MaskIRQs")
	}

	if prior := m.MaskIRQs(); !prior {
		t.Fatal("expected prior state masked on second call")
	}
}

func TestRestoreIRQsWritesBackPriorState(t *testing.T) {
	writeDAIF(0)

	var m Mask
	prior := m.MaskIRQs()
	m.RestoreIRQs(prior)

	if readDAIF()&daifIRQBit != 0 {
		t.Fatal("DAIF.I still set after RestoreIRQs(false)")
	}
}

func TestRestoreIRQsNesting(t *testing.T) {
	writeDAIF(daifIRQBit)

	var m Mask
	prior := m.MaskIRQs()
	if !prior {
		t.Fatal("expected outer mask to already be set")
	}
	m.RestoreIRQs(prior)

	if readDAIF()&daifIRQBit == 0 {
		t.Fatal("outer masked state was not restored")
	}
}
