package cpu

import "testing"

// flatMemory is a trivial 64KB MemoryInterface for instruction-level tests.
type flatMemory struct {
	data [0x10000]uint8
}

func (m *flatMemory) Read(address uint16) uint8     { return m.data[address] }
func (m *flatMemory) Write(address uint16, v uint8) { m.data[address] = v }

func TestResetAndNMIPath(t *testing.T) {
	mem := &flatMemory{}
	mem.data[resetVector] = 0x00
	mem.data[resetVector+1] = 0x80
	mem.data[nmiVector] = 0x05
	mem.data[nmiVector+1] = 0x80
	for addr := 0x8000; addr < 0x8005; addr++ {
		mem.data[addr] = 0xEA // NOP
	}
	mem.data[0x8005] = 0x40 // RTI

	c := New(mem)
	c.Reset()
	if c.PC != 0x8000 {
		t.Fatalf("PC after reset = $%04X, want $8000", c.PC)
	}

	var total uint64
	for i := 0; i < 3; i++ {
		total += c.Step()
	}
	if c.PC != 0x8003 {
		t.Fatalf("PC after 3 NOPs = $%04X, want $8003", c.PC)
	}
	if total != 6 {
		t.Fatalf("cycles after 3 NOPs = %d, want 6", total)
	}

	spBefore := c.SP
	c.RaiseNMI()
	c.Step() // the NOP at $8003 executes, then the latched NMI is serviced
	if c.PC != 0x8005 {
		t.Fatalf("PC after NMI = $%04X, want $8005", c.PC)
	}
	if !c.I {
		t.Fatal("interrupt-disable flag not set after NMI")
	}
	if spBefore-c.SP != 3 {
		t.Fatalf("SP dropped by %d, want 3", spBefore-c.SP)
	}
	if !c.nmiTaken {
		t.Fatal("nmiTaken latch not set after NMI")
	}

	c.Step() // executes RTI at $8005
	if c.PC != 0x8004 {
		t.Fatalf("PC after RTI = $%04X, want $8004 (the NOP the NMI interrupted execution before)", c.PC)
	}
	if c.nmiTaken {
		t.Fatal("nmiTaken latch not cleared by RTI")
	}
}

func TestResetDoesNotZeroRegisters(t *testing.T) {
	mem := &flatMemory{}
	mem.data[resetVector] = 0x00
	mem.data[resetVector+1] = 0x80

	c := New(mem)
	c.A, c.X, c.Y = 0x11, 0x22, 0x33
	c.Reset()

	if c.A != 0x11 || c.X != 0x22 || c.Y != 0x33 {
		t.Fatalf("registers changed by reset: A=$%02X X=$%02X Y=$%02X", c.A, c.X, c.Y)
	}
}

func TestAddressingCarryPageCross(t *testing.T) {
	mem := &flatMemory{}
	mem.data[resetVector] = 0x00
	mem.data[resetVector+1] = 0x80
	mem.data[0x0100] = 0x42 // value at the crossed-to page
	mem.data[0x8000] = 0xBD // LDA $00FF,X
	mem.data[0x8001] = 0xFF
	mem.data[0x8002] = 0x00

	c := New(mem)
	c.Reset()
	c.A = 0x01
	c.X = 0x01

	cycles := c.Step()
	if c.A != 0x42 {
		t.Fatalf("A = $%02X, want $42 (read from $0100)", c.A)
	}
	if cycles != 5 {
		t.Fatalf("cycles = %d, want 5 (4 base + 1 page-cross)", cycles)
	}
}

func TestUnofficialOpcodeWarnsAndFallsThrough(t *testing.T) {
	mem := &flatMemory{}
	mem.data[resetVector] = 0x00
	mem.data[resetVector+1] = 0x80
	mem.data[0x8000] = 0x02 // KIL/JAM, not in the documented table

	var warned bool
	old := Warn
	Warn = func(format string, args ...any) { warned = true }
	defer func() { Warn = old }()

	c := New(mem)
	c.Reset()
	cycles := c.Step()

	if !warned {
		t.Fatal("expected a warning for an unofficial opcode")
	}
	if cycles != 2 {
		t.Fatalf("UNK fallback cycles = %d, want 2", cycles)
	}
	if c.PC != 0x8001 {
		t.Fatalf("PC after UNK fallback = $%04X, want $8001", c.PC)
	}
}

func TestBRKDuringNMIDoesNotReenter(t *testing.T) {
	mem := &flatMemory{}
	mem.data[resetVector] = 0x00
	mem.data[resetVector+1] = 0x80
	mem.data[nmiVector] = 0x00
	mem.data[nmiVector+1] = 0x81
	mem.data[irqVector] = 0x00
	mem.data[irqVector+1] = 0x82
	mem.data[0x8000] = 0xEA // NOP
	mem.data[0x8100] = 0x00 // BRK, reached via NMI vector

	c := New(mem)
	c.Reset()
	c.RaiseNMI()
	c.Step() // NOP then NMI taken -> PC=$8100

	if c.PC != 0x8100 {
		t.Fatalf("PC after NMI = $%04X, want $8100", c.PC)
	}
	if !c.nmiTaken {
		t.Fatal("expected nmiTaken set")
	}

	spBefore := c.SP
	c.Step() // BRK only advances past its signature byte; I/nmiTaken block the push+vector
	if c.PC != 0x8102 {
		t.Fatalf("PC after BRK = $%04X, want $8102 (opcode fetch + signature byte, no IRQ vector taken)", c.PC)
	}
	if c.SP != spBefore {
		t.Fatalf("SP = %d, want unchanged at %d (no push should occur)", c.SP, spBefore)
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	mem := &flatMemory{}
	mem.data[resetVector] = 0x00
	mem.data[resetVector+1] = 0x80

	c := New(mem)
	c.Reset()
	c.A, c.X, c.Y, c.SP = 0x11, 0x22, 0x33, 0x44
	c.PC = 0x9abc
	c.C, c.Z, c.I, c.D, c.V, c.N = true, false, true, false, true, false
	c.Step() // advance cycles away from zero so the counter round-trips too

	data := c.Snapshot()

	other := New(&flatMemory{})
	if err := other.Restore(data); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if other.A != c.A || other.X != c.X || other.Y != c.Y || other.SP != c.SP {
		t.Fatalf("registers did not round-trip: got A=$%02X X=$%02X Y=$%02X SP=$%02X", other.A, other.X, other.Y, other.SP)
	}
	if other.PC != c.PC {
		t.Fatalf("PC = $%04X, want $%04X", other.PC, c.PC)
	}
	if other.C != c.C || other.Z != c.Z || other.I != c.I || other.D != c.D || other.V != c.V || other.N != c.N {
		t.Fatal("flags did not round-trip")
	}
	if other.cycles != c.cycles {
		t.Fatalf("cycles = %d, want %d", other.cycles, c.cycles)
	}
}

func TestRestoreRejectsWrongLength(t *testing.T) {
	c := New(&flatMemory{})
	if err := c.Restore([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected an error for a truncated snapshot")
	}
}
