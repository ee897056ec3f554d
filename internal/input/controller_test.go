package input

import "testing"

func TestButtonShiftOrder(t *testing.T) {
	p := &Controller{signatureIndex: signatureIndexPort1}
	p.SetButton(ButtonA, true)
	p.SetButton(ButtonStart, true)
	p.Strobe(1)
	p.Strobe(0)

	want := []uint8{1, 0, 0, 0, 0, 0, 0, 0} // A, B, Select, Start(bit3)...
	want[3] = 1                            // Start pressed too
	for i, w := range want {
		if got := p.Read(); got != w {
			t.Fatalf("bit %d = %d, want %d", i, got, w)
		}
	}
}

func TestSignatureBitPort1(t *testing.T) {
	p := &Controller{signatureIndex: signatureIndexPort1}
	p.Strobe(1)
	p.Strobe(0)
	for i := 0; i < signatureIndexPort1; i++ {
		if got := p.Read(); got != 0 && i >= 8 {
			t.Fatalf("bit %d = %d, want 0 before signature index", i, got)
		}
	}
	if got := p.Read(); got != 1 {
		t.Fatalf("bit %d (signature) = %d, want 1", signatureIndexPort1, got)
	}
}

func TestSignatureBitPort2(t *testing.T) {
	p := &Controller{signatureIndex: signatureIndexPort2}
	p.Strobe(1)
	p.Strobe(0)
	for i := 0; i < signatureIndexPort2; i++ {
		p.Read()
	}
	if got := p.Read(); got != 1 {
		t.Fatalf("port2 bit %d (signature) = %d, want 1", signatureIndexPort2, got)
	}
}

func TestHalfStrobeReturnsZeroAndWarns(t *testing.T) {
	var warned string
	Warn = func(format string, args ...any) { warned = format }
	defer func() { Warn = func(format string, args ...any) {} }()

	p := &Controller{signatureIndex: signatureIndexPort1}
	p.SetButton(ButtonA, true)
	p.Strobe(1) // held high, never lowered

	if got := p.Read(); got != 0 {
		t.Fatalf("half-strobe read = %d, want 0 (even with button A held)", got)
	}
	if warned == "" {
		t.Fatal("expected a warning on half-strobe read")
	}
}

func TestPairSharedStrobe(t *testing.T) {
	pair := NewPairState()
	pair.Port1.SetButton(ButtonA, true)
	pair.Port2.SetButton(ButtonB, true)

	pair.Write(0x4016, 1)
	pair.Write(0x4016, 0)

	if got := pair.Read(0x4016); got != 1 {
		t.Fatalf("port1 bit 0 = %d, want 1", got)
	}
	if got := pair.Read(0x4017); got != 0 {
		t.Fatalf("port2 bit 0 = %d, want 0 (only B pressed)", got)
	}
}

func TestPairSnapshotRestoreRoundTrip(t *testing.T) {
	pair := NewPairState()
	pair.Port1.SetButton(ButtonA, true)
	pair.Port2.SetButton(ButtonSelect, true)
	pair.Write(0x4016, 1)
	pair.Port1.Read()
	pair.Port2.Read()

	data := pair.Snapshot()

	restored := NewPairState()
	if err := restored.Restore(data); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if restored.Port1.buttons != pair.Port1.buttons || restored.Port2.buttons != pair.Port2.buttons {
		t.Fatal("button latches did not round-trip")
	}
	if restored.Port1.index != pair.Port1.index || restored.Port2.index != pair.Port2.index {
		t.Fatal("shift index did not round-trip")
	}
	if restored.Port1.strobe != pair.Port1.strobe {
		t.Fatal("strobe state did not round-trip")
	}
}

func TestPairRestoreRejectsWrongLength(t *testing.T) {
	pair := NewPairState()
	if err := pair.Restore([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected an error for a truncated snapshot")
	}
}

func TestPairRestoreRejectsOutOfRangeShiftIndex(t *testing.T) {
	pair := NewPairState()
	data := pair.Snapshot()
	data[3] = signatureIndexPort1 + 1 // Port1's shift index byte
	if err := pair.Restore(data); err == nil {
		t.Fatal("expected an error for an out-of-range shift index")
	}
}
