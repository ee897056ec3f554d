package cartridge

// mmc3 implements mapper 4 (MMC3): 8 bank registers (R0-R7) selected by
// an even-address bank-select write and loaded by the following
// odd-address write, two PRG-mode arrangements, two CHR-mode
// arrangements, and a scanline IRQ counter.
//
// The IRQ counter reload uses the "pending-flag" model: Scanline reloads
// the counter from the latch whenever the reload flag is set OR the
// counter is already zero, on every clock, rather than only reloading
// once and then counting down untouched. This matches Mega Man 4, which
// depends on the reload flag being serviced even while the counter is
// nonzero.
type mmc3 struct {
	cart     *Cartridge
	prgBanks uint8
	chrBanks uint8
	chrIsRAM bool

	bankSelect uint8
	prgMode    uint8
	chrMode    uint8
	registers  [8]uint8

	mirror Mirroring

	prgRAMEnabled      bool
	prgRAMWriteProtect bool

	irqLatch      uint8
	irqCounter    uint8
	irqEnabled    bool
	irqPending    bool
	irqReloadFlag bool
}

func newMMC3(cart *Cartridge) *mmc3 {
	m := &mmc3{
		cart:          cart,
		prgBanks:      uint8(len(cart.prgROM) / 0x2000),
		mirror:        cart.mirror,
		prgRAMEnabled: true,
	}
	if cart.hasCHRRAM {
		m.chrBanks = 8
		m.chrIsRAM = true
	} else {
		m.chrBanks = uint8(len(cart.chrROM) / 0x400)
	}
	return m
}

func (m *mmc3) Initialise() error {
	if m.prgBanks < 2 {
		return errBadShape("mmc3: fewer than 2 PRG banks")
	}
	return nil
}

func (m *mmc3) Reset() {
	m.bankSelect, m.prgMode, m.chrMode = 0, 0, 0
	m.registers = [8]uint8{}
	m.irqLatch, m.irqCounter = 0, 0
	m.irqEnabled, m.irqPending, m.irqReloadFlag = false, false, false
}

func (m *mmc3) ReadPRG(addr uint16) uint8 {
	switch {
	case addr >= 0x6000 && addr < 0x8000:
		if m.prgRAMEnabled {
			return m.cart.ReadPRGRAM(addr)
		}
		return 0
	case addr >= 0x8000 && addr < 0xA000:
		return m.prgByte(m.bank8000(), addr-0x8000)
	case addr >= 0xA000 && addr < 0xC000:
		return m.prgByte(m.registers[7], addr-0xA000)
	case addr >= 0xC000 && addr < 0xE000:
		return m.prgByte(m.bankC000(), addr-0xC000)
	case addr >= 0xE000:
		return m.prgByte(m.prgBanks-1, addr-0xE000)
	default:
		return 0
	}
}

func (m *mmc3) bank8000() uint8 {
	if m.prgMode == 0 {
		return m.registers[6]
	}
	return m.prgBanks - 2
}

func (m *mmc3) bankC000() uint8 {
	if m.prgMode == 0 {
		return m.prgBanks - 2
	}
	return m.registers[6]
}

func (m *mmc3) prgByte(bank uint8, offsetInBank uint16) uint8 {
	offset := uint32(bank)*0x2000 + uint32(offsetInBank)
	if int(offset) < len(m.cart.prgROM) {
		return m.cart.prgROM[offset]
	}
	return 0
}

func (m *mmc3) WritePRG(addr uint16, value uint8) {
	switch {
	case addr >= 0x6000 && addr < 0x8000:
		if m.prgRAMEnabled && !m.prgRAMWriteProtect {
			m.cart.WritePRGRAM(addr, value)
		}
	case addr >= 0x8000 && addr < 0xA000:
		if addr&1 == 0 {
			m.bankSelect = value & 0x07
			m.prgMode = (value >> 6) & 1
			m.chrMode = (value >> 7) & 1
		} else {
			if m.bankSelect >= 6 {
				m.registers[m.bankSelect] = value & (m.prgBanks - 1)
			} else {
				m.registers[m.bankSelect] = value
			}
		}
	case addr >= 0xA000 && addr < 0xC000:
		if addr&1 == 0 {
			if value&1 == 0 {
				m.mirror = MirrorVertical
			} else {
				m.mirror = MirrorHorizontal
			}
		} else {
			m.prgRAMWriteProtect = value&0x40 != 0
			m.prgRAMEnabled = value&0x80 != 0
		}
	case addr >= 0xC000 && addr < 0xE000:
		if addr&1 == 0 {
			m.irqLatch = value
		} else {
			m.irqCounter = 0
			m.irqReloadFlag = true
		}
	case addr >= 0xE000:
		if addr&1 == 0 {
			m.irqEnabled = false
			m.irqPending = false
		} else {
			m.irqEnabled = true
		}
	}
}

func (m *mmc3) ReadCHR(addr uint16) uint8 {
	offset := m.chrOffset(addr)
	if int(offset) < len(m.cart.chrROM) {
		return m.cart.chrROM[offset]
	}
	return 0
}

func (m *mmc3) WriteCHR(addr uint16, value uint8) {
	if !m.chrIsRAM {
		return
	}
	offset := m.chrOffset(addr)
	if int(offset) < len(m.cart.chrROM) {
		m.cart.chrROM[offset] = value
	}
}

func (m *mmc3) chrOffset(addr uint16) uint32 {
	if m.chrMode == 0 {
		switch {
		case addr < 0x0800:
			return uint32(m.registers[0]&0xFE)*0x400 + uint32(addr)
		case addr < 0x1000:
			return uint32(m.registers[1]&0xFE)*0x400 + uint32(addr-0x0800)
		case addr < 0x1400:
			return uint32(m.registers[2])*0x400 + uint32(addr-0x1000)
		case addr < 0x1800:
			return uint32(m.registers[3])*0x400 + uint32(addr-0x1400)
		case addr < 0x1C00:
			return uint32(m.registers[4])*0x400 + uint32(addr-0x1800)
		default:
			return uint32(m.registers[5])*0x400 + uint32(addr-0x1C00)
		}
	}
	switch {
	case addr < 0x0400:
		return uint32(m.registers[2])*0x400 + uint32(addr)
	case addr < 0x0800:
		return uint32(m.registers[3])*0x400 + uint32(addr-0x0400)
	case addr < 0x0C00:
		return uint32(m.registers[4])*0x400 + uint32(addr-0x0800)
	case addr < 0x1000:
		return uint32(m.registers[5])*0x400 + uint32(addr-0x0C00)
	case addr < 0x1800:
		return uint32(m.registers[0]&0xFE)*0x400 + uint32(addr-0x1000)
	default:
		return uint32(m.registers[1]&0xFE)*0x400 + uint32(addr-0x1800)
	}
}

func (m *mmc3) Mirroring() Mirroring { return m.mirror }

func (m *mmc3) Scanline() {
	if m.irqCounter == 0 || m.irqReloadFlag {
		m.irqCounter = m.irqLatch
		m.irqReloadFlag = false
	} else {
		m.irqCounter--
	}
	if m.irqCounter == 0 && m.irqEnabled {
		m.irqPending = true
	}
}

func (m *mmc3) IRQAsserted() bool { return m.irqPending }
func (m *mmc3) ClearIRQ()         { m.irqPending = false }

func (m *mmc3) Snapshot() []byte {
	buf := make([]byte, 0, 20)
	buf = append(buf, m.bankSelect, m.prgMode, m.chrMode)
	buf = append(buf, m.registers[:]...)
	buf = append(buf, uint8(m.mirror), boolByte(m.prgRAMEnabled), boolByte(m.prgRAMWriteProtect))
	buf = append(buf, m.irqLatch, m.irqCounter, boolByte(m.irqEnabled), boolByte(m.irqPending), boolByte(m.irqReloadFlag))
	return buf
}

func (m *mmc3) Restore(data []byte) error {
	if len(data) < 19 {
		return errBadShape("mmc3: snapshot truncated")
	}
	m.bankSelect, m.prgMode, m.chrMode = data[0], data[1], data[2]
	copy(m.registers[:], data[3:11])
	m.mirror = Mirroring(data[11])
	m.prgRAMEnabled = data[12] != 0
	m.prgRAMWriteProtect = data[13] != 0
	m.irqLatch, m.irqCounter = data[14], data[15]
	m.irqEnabled = data[16] != 0
	m.irqPending = data[17] != 0
	m.irqReloadFlag = data[18] != 0
	return nil
}
