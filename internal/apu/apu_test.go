package apu

import "testing"

func TestFrameSequencerSetsIRQAfterFourSteps(t *testing.T) {
	a := New()
	a.WriteRegister(0x4017, 0x00) // 4-step mode, IRQ enabled

	for i := 0; i < 4*7458; i++ {
		a.Step()
	}

	if !a.FrameIRQ() {
		t.Fatal("expected frame IRQ set after 4 quarter-frame periods")
	}
}

func TestFrameSequencerFiveStepNeverSetsIRQ(t *testing.T) {
	a := New()
	a.WriteRegister(0x4017, 0x80) // 5-step mode

	for i := 0; i < 5*7458; i++ {
		a.Step()
	}

	if a.FrameIRQ() {
		t.Fatal("5-step mode must never assert the frame IRQ")
	}
}

func TestFrameIRQInhibitBlocksFlag(t *testing.T) {
	a := New()
	a.WriteRegister(0x4017, 0x40) // 4-step, IRQ inhibited

	for i := 0; i < 4*7458; i++ {
		a.Step()
	}

	if a.FrameIRQ() {
		t.Fatal("IRQ-inhibit bit must suppress the frame IRQ flag")
	}
}

func TestFiveStepModeClocksLengthAtStepsZeroAndTwoOnly(t *testing.T) {
	a := New()
	a.WriteRegister(0x4015, 0x01) // enable pulse1
	a.WriteRegister(0x4000, 0x00) // length not halted
	a.WriteRegister(0x4003, 0x08) // sets lengthCounter from lengthTable[1] and restarts
	a.WriteRegister(0x4017, 0x80) // 5-step mode, written after length load

	start := a.pulse1.lengthCounter
	if start == 0 {
		t.Fatal("expected a nonzero length counter after $4003 write")
	}

	for i := 0; i < 7457; i++ {
		a.Step()
	}
	if a.pulse1.lengthCounter != start-1 {
		t.Fatalf("length counter after step 0 (cycle 7457) = %d, want %d", a.pulse1.lengthCounter, start-1)
	}

	for i := 0; i < 14913-7457; i++ {
		a.Step()
	}
	if a.pulse1.lengthCounter != start-1 {
		t.Fatalf("length counter after step 1 (cycle 14913) = %d, want unchanged at %d (5-step mode doesn't clock length here)", a.pulse1.lengthCounter, start-1)
	}

	for i := 0; i < 22371-14913; i++ {
		a.Step()
	}
	if a.pulse1.lengthCounter != start-2 {
		t.Fatalf("length counter after step 2 (cycle 22371) = %d, want %d", a.pulse1.lengthCounter, start-2)
	}
}

func TestFiveStepModeStepFourClocksNothing(t *testing.T) {
	a := New()
	a.WriteRegister(0x4017, 0x80) // 5-step mode
	a.pulse1.envDivider = 0
	a.pulse1.envDecay = 5
	a.pulse1.envStart = false
	a.pulse1.lengthHalt = false

	for i := 0; i < 29829; i++ {
		a.Step()
	}
	before := a.pulse1.envDecay

	for i := 0; i < 37281-29829; i++ {
		a.Step()
	}
	if a.pulse1.envDecay != before {
		t.Fatalf("envelope decay counter changed at 5-step mode's step 4, got %d want unchanged at %d", a.pulse1.envDecay, before)
	}
}

type fakeCPUMemory struct{ data [0x10000]uint8 }

func (f *fakeCPUMemory) Read(address uint16) uint8 { return f.data[address] }

func TestDMCStealsFourCyclesPerSampleFetch(t *testing.T) {
	a := New()
	mem := &fakeCPUMemory{}
	a.SetMemory(mem)

	a.WriteRegister(0x4010, 0x0F) // fastest rate, no loop, no IRQ
	a.WriteRegister(0x4012, 0x00) // sample address $C000
	a.WriteRegister(0x4013, 0x00) // sample length 1 byte
	a.WriteRegister(0x4015, 0x10) // enable DMC, triggers the restart

	total := 0
	for i := 0; i < int(dmcRateNTSC[0x0F])+8; i++ {
		total += a.Step()
	}

	if total != 4 {
		t.Fatalf("expected exactly one 4-cycle DMA steal, got %d extra cycles", total)
	}
}

func TestDMCAddressWrapsFrom0xFFFFTo0x8000(t *testing.T) {
	a := New()
	mem := &fakeCPUMemory{}
	a.SetMemory(mem)

	a.dmc.sampleAddress = 0xFFFF
	a.dmc.sampleLength = 2
	a.WriteRegister(0x4015, 0x10)

	for i := 0; i < int(dmcRateNTSC[0]); i++ {
		a.Step()
	}

	if a.dmc.currentAddress != 0x8000 {
		t.Fatalf("dmc address after wrap = $%04X, want $8000", a.dmc.currentAddress)
	}
}

func TestStatusReflectsLengthCountersAndClearsFrameIRQ(t *testing.T) {
	a := New()
	a.WriteRegister(0x4003, 0x08) // pulse1 length counter from table index 1 = 254, also sets envStart
	a.WriteRegister(0x4015, 0x01) // enable pulse1 only

	if status := a.ReadStatus(); status&0x01 == 0 {
		t.Fatal("expected pulse1 length-counter bit set")
	}

	a.frameIRQFlag = true
	status := a.ReadStatus()
	if status&0x40 == 0 {
		t.Fatal("expected frame IRQ bit set before read")
	}
	if a.FrameIRQ() {
		t.Fatal("reading $4015 must clear the frame IRQ flag")
	}
}

func TestPulseMixerTableIsMonotonic(t *testing.T) {
	for i := 1; i < len(pulseTable); i++ {
		if pulseTable[i] < pulseTable[i-1] {
			t.Fatalf("pulseTable not monotonic at index %d", i)
		}
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	a := New()
	mem := &fakeCPUMemory{}
	a.SetMemory(mem)

	a.WriteRegister(0x4000, 0xBF) // pulse1 duty/volume
	a.WriteRegister(0x4003, 0x08) // pulse1 length counter load
	a.WriteRegister(0x4010, 0x0F)
	a.WriteRegister(0x4012, 0x10)
	a.WriteRegister(0x4013, 0x02)
	a.WriteRegister(0x4015, 0x11) // enable pulse1 and dmc
	a.WriteRegister(0x4017, 0x00)

	for i := 0; i < 1000; i++ {
		a.Step()
	}

	data := a.Snapshot()

	restored := New()
	restored.SetMemory(mem)
	if err := restored.Restore(data); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if restored.pulse1 != a.pulse1 {
		t.Fatal("pulse1 channel did not round-trip")
	}
	if restored.dmc != a.dmc {
		t.Fatal("dmc channel did not round-trip")
	}
	if restored.frameMode != a.frameMode || restored.cpuCycles != a.cpuCycles {
		t.Fatal("frame-sequencer/cycle state did not round-trip")
	}
}

func TestRestoreRejectsZeroNoiseShift(t *testing.T) {
	broken := New()
	broken.noise.shift = 0
	bad := broken.Snapshot()

	a := New()
	if err := a.Restore(bad); err == nil {
		t.Fatal("expected an error when the noise shift register is zero")
	}
}
