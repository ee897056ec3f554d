// Package memory implements the CPU-side bus decode: internal work RAM,
// and routing to the PPU register window, APU/IO registers, controller
// ports, and the cartridge mapper. Nametable/OAM/palette memory belongs
// to the ppu package exclusively and is never touched from here.
package memory

import (
	"fmt"

	"github.com/nescore/nescore/internal/frontend"
)

// Warn is the sink for non-fatal bus deviations (expansion-area access,
// half-strobe reads are warned by the input package itself). The bus
// package points this at the active frontend.Host.Warn during setup.
var Warn = func(format string, args ...any) {}

// PPU is the CPU-facing register window the bus forwards $2000-$3FFF to.
type PPU interface {
	ReadRegister(address uint16) uint8
	WriteRegister(address uint16, value uint8)
}

// APU is the CPU-facing register window the bus forwards $4000-$4013,
// $4015, and $4017 to.
type APU interface {
	ReadStatus() uint8
	WriteRegister(address uint16, value uint8)
}

// Controllers is the CPU-facing $4016/$4017 window.
type Controllers interface {
	Read(address uint16) uint8
	Write(address uint16, value uint8)
}

// Cartridge is the CPU-facing $6000-$FFFF window; the active mapper owns
// PRG-RAM presence/absence internally, so Memory forwards unconditionally.
type Cartridge interface {
	ReadPRG(address uint16) uint8
	WritePRG(address uint16, value uint8)
}

// Mode selects whether Memory wraps every access in a Tracer callback.
type Mode int

const (
	ModeQuiet Mode = iota
	ModeTrace
)

// Memory is the NES CPU's view of its 16-bit address bus.
type Memory struct {
	ram [0x800]uint8

	ppu         PPU
	apu         APU
	controllers Controllers
	cartridge   Cartridge

	// oamDMA is invoked on a $4014 write with the source page. The bus
	// supplies this so it can bill the extra DMA cycles against its own
	// cycle-budget accumulator instead of a package-level global.
	oamDMA func(page uint8)

	mode   Mode
	tracer frontend.Tracer

	openBus uint8
}

// New creates a Memory bound to the PPU/APU register windows. Controllers
// and the cartridge are optional and may be attached later via SetControllers/
// SetCartridge (a cartridge is not available until one is inserted).
func New(ppu PPU, apu APU) *Memory {
	return &Memory{ppu: ppu, apu: apu}
}

func (m *Memory) SetControllers(c Controllers)       { m.controllers = c }
func (m *Memory) SetCartridge(c Cartridge)            { m.cartridge = c }
func (m *Memory) SetOAMDMA(callback func(page uint8)) { m.oamDMA = callback }
func (m *Memory) SetTracer(t frontend.Tracer)         { m.tracer = t }
func (m *Memory) SetMode(mode Mode)                   { m.mode = mode }

// Reset clears internal RAM to zero, matching what software must assume
// on cold boot (real hardware's RAM is semi-random, but no documented
// game depends on a specific pattern, and a zeroed bus is simplest to
// reason about from a save-state's "power-on" baseline).
func (m *Memory) Reset() {
	for i := range m.ram {
		m.ram[i] = 0
	}
	m.openBus = 0
}

// Read services one CPU read, in the decode order spec.md §4.1 gives.
func (m *Memory) Read(address uint16) uint8 {
	value := m.read(address)
	m.openBus = value
	if m.mode == ModeTrace && m.tracer != nil {
		m.tracer.MemAccess(frontend.MemAccess{Write: false, Address: address, Data: value})
	}
	return value
}

func (m *Memory) read(address uint16) uint8 {
	switch {
	case address < 0x2000:
		return m.ram[address&0x07FF]

	case address < 0x4000:
		return m.ppu.ReadRegister(0x2000 | (address & 0x0007))

	case address == 0x4015:
		return m.apu.ReadStatus()

	case address == 0x4016 || address == 0x4017:
		if m.controllers != nil {
			return m.controllers.Read(address)
		}
		return 0

	case address < 0x4018:
		return m.openBus // APU channel registers are write-only

	case address < 0x6000:
		Warn("memory: read from unmapped expansion area $%04X", address)
		return 0

	default:
		if m.cartridge != nil {
			return m.cartridge.ReadPRG(address)
		}
		return m.openBus
	}
}

// Write services one CPU write, in the same decode order.
func (m *Memory) Write(address uint16, value uint8) {
	if m.mode == ModeTrace && m.tracer != nil {
		m.tracer.MemAccess(frontend.MemAccess{Write: true, Address: address, Data: value})
	}

	switch {
	case address < 0x2000:
		m.ram[address&0x07FF] = value

	case address < 0x4000:
		m.ppu.WriteRegister(0x2000|(address&0x0007), value)

	case address == 0x4014:
		if m.oamDMA != nil {
			m.oamDMA(value)
		}

	case address == 0x4016:
		if m.controllers != nil {
			m.controllers.Write(address, value)
		}

	case address <= 0x4013, address == 0x4015, address == 0x4017:
		m.apu.WriteRegister(address, value)

	case address < 0x6000:
		Warn("memory: write to unmapped expansion area $%04X = $%02X", address, value)

	default:
		if m.cartridge != nil {
			m.cartridge.WritePRG(address, value)
		}
	}
}

// Snapshot dumps internal work RAM and the open-bus latch, for the
// "NESSTATE\n" save-state format.
func (m *Memory) Snapshot() []byte {
	buf := make([]byte, 0, len(m.ram)+1)
	buf = append(buf, m.ram[:]...)
	buf = append(buf, m.openBus)
	return buf
}

// Restore loads a Snapshot produced by this type.
func (m *Memory) Restore(data []byte) error {
	if len(data) != len(m.ram)+1 {
		return fmt.Errorf("memory: wrong snapshot length %d", len(data))
	}
	copy(m.ram[:], data[:len(m.ram)])
	m.openBus = data[len(m.ram)]
	return nil
}

// Page returns the 256 bytes starting at page*$100, for sprite-DMA.
func (m *Memory) Page(page uint8) [256]uint8 {
	var buf [256]uint8
	base := uint16(page) << 8
	for i := range buf {
		buf[i] = m.Read(base + uint16(i))
	}
	return buf
}
