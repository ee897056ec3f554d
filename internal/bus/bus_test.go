package bus

import (
	"bytes"
	"testing"

	"github.com/nescore/nescore/internal/cartridge"
	"github.com/nescore/nescore/internal/frontend"
)

// buildNROM constructs a minimal one-bank iNES ROM: PRG filled with NOP
// ($EA), reset vector at $8000, NMI vector at $8005 holding RTI ($40).
func buildNROM(t *testing.T) *cartridge.Cartridge {
	t.Helper()
	return buildNROMWithTVSystem(t, 0x00)
}

// buildNROMWithTVSystem is buildNROM with an explicit TVSystem1 header
// byte, for tests covering region auto-detection from the ROM.
func buildNROMWithTVSystem(t *testing.T, tvSystem1 uint8) *cartridge.Cartridge {
	t.Helper()
	var prg [0x4000]uint8
	for i := range prg {
		prg[i] = 0xEA
	}
	prg[0x0005] = 0x40 // RTI at $8005
	prg[0x3FFC], prg[0x3FFD] = 0x00, 0x80 // $FFFC: the 16KB bank is mirrored at $C000
	prg[0x3FFA], prg[0x3FFB] = 0x05, 0x80

	var chr [0x2000]uint8

	var rom bytes.Buffer
	rom.WriteString("NES\x1A")
	rom.WriteByte(1) // 1 PRG bank
	rom.WriteByte(1) // 1 CHR bank
	rom.WriteByte(0) // flags6
	rom.WriteByte(0) // flags7
	rom.WriteByte(0) // PRGRAMSize
	rom.WriteByte(tvSystem1)
	rom.Write(make([]byte, 6)) // TVSystem2 + padding
	rom.Write(prg[:])
	rom.Write(chr[:])

	cart, err := cartridge.LoadFromReader(&rom)
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	return cart
}

func TestResetAndNMIPath(t *testing.T) {
	b := New(frontend.NopHost{})
	b.LoadCartridge(buildNROM(t))

	if b.CPU.PC != 0x8000 {
		t.Fatalf("PC after power-on = $%04X, want $8000", b.CPU.PC)
	}

	for i := 0; i < 3; i++ {
		b.Step()
	}
	if b.CPU.PC != 0x8003 {
		t.Fatalf("PC after 3 NOPs = $%04X, want $8003", b.CPU.PC)
	}
	if b.CycleCount() != 6 {
		t.Fatalf("cycle count = %d, want 6", b.CycleCount())
	}

	spBefore := b.CPU.SP
	b.CPU.RaiseNMI()
	b.Step() // finishes the NOP at $8003, then services the pending NMI

	if b.CPU.PC != 0x8005 {
		t.Fatalf("PC after NMI dispatch = $%04X, want $8005", b.CPU.PC)
	}
	if b.CPU.SP != spBefore-3 {
		t.Fatalf("SP after NMI dispatch = %d, want %d", b.CPU.SP, spBefore-3)
	}

	b.Step() // executes RTI at $8005

	if b.CPU.PC != 0x8004 {
		t.Fatalf("PC after RTI = $%04X, want $8004 (the NOP following the one NMI interrupted)", b.CPU.PC)
	}
	if b.CPU.SP != spBefore {
		t.Fatalf("SP after RTI = %d, want restored to %d", b.CPU.SP, spBefore)
	}
	if !b.CPU.I {
		t.Fatal("expected interrupt-disable flag restored from the pushed status to still be set")
	}
}

func TestDMCDMAReportsExtraCyclesAtBusLevel(t *testing.T) {
	b := New(frontend.NopHost{})
	cart := buildNROM(t)
	b.LoadCartridge(cart)

	b.APU.WriteRegister(0x4010, 0x0F)
	b.APU.WriteRegister(0x4012, 0x00)
	b.APU.WriteRegister(0x4013, 0x00)
	b.APU.WriteRegister(0x4015, 0x10)

	before := b.CycleCount()
	b.Step() // NOP at $8000; the DMC fetches its one-byte sample during it
	after := b.CycleCount()

	if after-before != 2+4 {
		t.Fatalf("cycles for one NOP step with a pending DMC fetch = %d, want 6 (2 for the NOP + 4 stolen by the DMA)", after-before)
	}
}

func TestRunAdvancesFrameCount(t *testing.T) {
	b := New(frontend.NopHost{})
	b.LoadCartridge(buildNROM(t))

	b.Run(2)
	if b.FrameCount() < 2 {
		t.Fatalf("frame count = %d, want at least 2", b.FrameCount())
	}
}

func TestSaveLoadStateRoundTrip(t *testing.T) {
	b := New(frontend.NopHost{})
	b.LoadCartridge(buildNROM(t))

	for i := 0; i < 10; i++ {
		b.Step()
	}
	a := b.SaveState()

	if err := b.LoadState(a); err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	again := b.SaveState()

	if !bytes.Equal(a, again) {
		t.Fatal("save -> load -> save did not reproduce the same bytes")
	}
}

func TestLoadCartridgeAutoDetectsPALFromHeader(t *testing.T) {
	b := New(frontend.NopHost{})
	b.LoadCartridge(buildNROMWithTVSystem(t, 0x01))

	if b.ppuRatio != ppuRatioPAL {
		t.Fatalf("ppuRatio = %v, want PAL ratio %v", b.ppuRatio, ppuRatioPAL)
	}
	for scan := -1; scan <= 310; scan++ {
		for dot := 0; dot <= 340; dot++ {
			b.PPU.Step()
		}
	}
	if b.PPU.Scanline() != -1 {
		t.Fatalf("PPU scanline = %d, want -1 after 312 PAL scanlines", b.PPU.Scanline())
	}
}

func TestLoadCartridgeWiresCurrentCycleToBusCycles(t *testing.T) {
	var prg [0x20000]uint8 // 8 16KB banks
	prg[0x0005] = 0x40
	prg[0x1FFFC], prg[0x1FFFD] = 0x00, 0x80
	prg[0x1FFFA], prg[0x1FFFB] = 0x05, 0x80

	var rom bytes.Buffer
	rom.WriteString("NES\x1A")
	rom.WriteByte(8) // 8 PRG banks
	rom.WriteByte(0) // CHR RAM
	rom.WriteByte(0x10)
	rom.WriteByte(0)
	rom.Write(make([]byte, 8))
	rom.Write(prg[:])

	cart, err := cartridge.LoadFromReader(&rom)
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	b := New(frontend.NopHost{})
	b.LoadCartridge(cart)

	if got := cartridge.CurrentCycle(); got != b.cpuCycles {
		t.Fatalf("cartridge.CurrentCycle() = %d, want it wired to bus.cpuCycles (%d)", got, b.cpuCycles)
	}
}
