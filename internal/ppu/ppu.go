// Package ppu implements the NES Picture Processing Unit (2C02): register
// read/write, the scanline/dot state machine, sprite evaluation and
// sprite-zero hit, and the palette/OAM/nametable memory it owns outright.
package ppu

import "github.com/nescore/nescore/internal/cartridge"

// Frame is one completed picture: one colour index (into the 512-entry
// palette table) per pixel, row-major, 256x240.
type Frame = [FrameWidth * FrameHeight]uint16

const (
	FrameWidth  = 256
	FrameHeight = 240
)

// latchSnapshotter is implemented by mappers whose CHR reads have a side
// effect (MMC2's bank latches) that must not be tripped by the PPU's own
// probing reads.
type latchSnapshotter interface {
	LatchSnapshot() (low, high bool)
	RestoreLatch(low, high bool)
}

// sprite holds the per-scanline-evaluated state for one of up to 8
// sprites active on the current line.
type sprite struct {
	index      uint8
	y          uint8
	tile       uint8
	attributes uint8
	x          uint8
}

// PPU is the NES 2C02.
type PPU struct {
	mapper cartridge.Mapper

	tvMode cartridge.TVMode

	// CPU-visible registers.
	ctrl   uint8 // $2000
	mask   uint8 // $2001
	status uint8 // $2002

	oamAddr uint8

	// Loopy scroll registers.
	v, t uint16
	x    uint8
	w    bool

	readBuffer uint8

	// Owned memory. Nametable/OAM/palette belong to the PPU exclusively;
	// CHR goes through the mapper.
	nametableRAM [0x800]uint8
	paletteRAM   [32]uint8
	oam          [256]uint8

	// Scanline/dot state machine. scanline runs -1 (pre-render) through
	// lastScanline (260 NTSC, 310 PAL); cycle is the dot within the
	// scanline, 0-340.
	scanline int
	cycle    int
	oddFrame bool
	frame    uint64

	// lastScanline is the highest scanline number before wrapping back to
	// the pre-render line: 260 on NTSC (262 lines total, 20-line VBlank),
	// 310 on PAL (312 lines total, 70-line VBlank).
	lastScanline int

	nmiDeliveredThisVBlank bool

	renderingEnabled bool
	backgroundShown  bool
	spritesShown     bool

	// Sprite pipeline: sprites evaluated for the line currently being
	// rendered (latched one scanline ahead of use, as on real hardware).
	activeSprites  []sprite
	pendingSprites []sprite
	spriteOverflow bool

	sprite0Hit bool

	frameBuffer Frame

	nmiCallback           func()
	frameCompleteCallback func()
}

// New creates a PPU bound to the cartridge's active mapper. SetMapper may
// be called again later if the cartridge changes (it doesn't, in
// practice, but keeps construction order flexible).
func New(mapper cartridge.Mapper) *PPU {
	p := &PPU{mapper: mapper, lastScanline: 260}
	p.Reset()
	return p
}

func (p *PPU) SetMapper(mapper cartridge.Mapper) { p.mapper = mapper }

// SetRegion switches the scanline layout between NTSC (262 lines, 20-line
// VBlank) and PAL (312 lines, 70-line VBlank).
func (p *PPU) SetRegion(mode cartridge.TVMode) {
	p.tvMode = mode
	if mode == cartridge.TVModePAL {
		p.lastScanline = 310
	} else {
		p.lastScanline = 260
	}
}

func (p *PPU) SetNMICallback(callback func())           { p.nmiCallback = callback }
func (p *PPU) SetFrameCompleteCallback(callback func()) { p.frameCompleteCallback = callback }

// Reset restores power-on PPU state. Nametable/OAM/palette contents
// persist across reset per spec; only timing and register state resets.
func (p *PPU) Reset() {
	p.ctrl, p.mask = 0, 0
	p.status = 0
	p.oamAddr = 0
	p.v, p.t, p.x, p.w = 0, 0, 0, false
	p.readBuffer = 0
	p.scanline, p.cycle = -1, 0
	p.oddFrame = false
	p.frame = 0
	p.nmiDeliveredThisVBlank = false
	p.renderingEnabled, p.backgroundShown, p.spritesShown = false, false, false
	p.activeSprites, p.pendingSprites = nil, nil
	p.spriteOverflow, p.sprite0Hit = false, false
}

// ReadRegister services a CPU read of $2000-$2007.
func (p *PPU) ReadRegister(address uint16) uint8 {
	switch address & 7 {
	case 0, 1, 3, 5, 6: // write-only registers: open bus
		return p.status & 0x1F
	case 2:
		status := p.status
		p.status &^= 0x80 // clear VBlank flag
		p.w = false
		return status
	case 4:
		return p.oam[p.oamAddr]
	default: // 7
		return p.readData()
	}
}

// WriteRegister services a CPU write of $2000-$2007.
func (p *PPU) WriteRegister(address uint16, value uint8) {
	switch address & 7 {
	case 0:
		previousNMIEnable := p.ctrl&0x80 != 0
		p.ctrl = value
		p.t = (p.t & 0xF3FF) | ((uint16(value) & 0x03) << 10)
		if !previousNMIEnable && p.ctrl&0x80 != 0 && p.status&0x80 != 0 && !p.nmiDeliveredThisVBlank {
			p.fireNMI()
		}
	case 1:
		p.mask = value
		p.updateRenderingFlags()
	case 2:
		// read-only
	case 3:
		p.oamAddr = value
	case 4:
		p.oam[p.oamAddr] = value
		p.oamAddr++
	case 5:
		p.writeScroll(value)
	case 6:
		p.writeAddr(value)
	case 7:
		p.writeData(value)
	}
}

func (p *PPU) updateRenderingFlags() {
	p.backgroundShown = p.mask&0x08 != 0
	p.spritesShown = p.mask&0x10 != 0
	p.renderingEnabled = p.backgroundShown || p.spritesShown
}

func (p *PPU) fireNMI() {
	p.nmiDeliveredThisVBlank = true
	if p.nmiCallback != nil {
		p.nmiCallback()
	}
}

func (p *PPU) writeScroll(value uint8) {
	if !p.w {
		p.t = (p.t & 0xFFE0) | (uint16(value) >> 3)
		p.x = value & 0x07
		p.w = true
	} else {
		p.t = (p.t & 0x8FFF) | ((uint16(value) & 0x07) << 12)
		p.t = (p.t & 0xFC1F) | ((uint16(value) & 0xF8) << 2)
		p.w = false
	}
}

func (p *PPU) writeAddr(value uint8) {
	if !p.w {
		p.t = (p.t & 0x80FF) | ((uint16(value) & 0x3F) << 8)
		p.w = true
	} else {
		p.t = (p.t & 0xFF00) | uint16(value)
		p.v = p.t
		p.w = false
	}
}

func (p *PPU) readData() uint8 {
	var data uint8
	if p.v >= 0x3F00 {
		data = p.readVRAM(p.v)
		p.readBuffer = p.readVRAM(0x2000 | (p.v & 0x0FFF))
	} else {
		data = p.readBuffer
		p.readBuffer = p.readVRAM(p.v)
	}
	p.advanceDataAddress()
	return data
}

func (p *PPU) writeData(value uint8) {
	p.writeVRAM(p.v, value)
	p.advanceDataAddress()
}

func (p *PPU) advanceDataAddress() {
	if p.ctrl&0x04 != 0 {
		p.v += 32
	} else {
		p.v++
	}
	p.v &= 0x3FFF
}

func (p *PPU) readVRAM(addr uint16) uint8 {
	addr &= 0x3FFF
	switch {
	case addr < 0x2000:
		return p.mapper.ReadCHR(addr)
	case addr < 0x3F00:
		return p.nametableRAM[p.nametableIndex(addr)]
	default:
		return p.readPalette(addr)
	}
}

func (p *PPU) writeVRAM(addr uint16, value uint8) {
	addr &= 0x3FFF
	switch {
	case addr < 0x2000:
		p.mapper.WriteCHR(addr, value)
	case addr < 0x3F00:
		p.nametableRAM[p.nametableIndex(addr)] = value
	default:
		p.writePalette(addr, value)
	}
}

func (p *PPU) nametableIndex(addr uint16) uint16 {
	addr &= 0x0FFF
	table := addr / 0x400
	offset := addr % 0x400
	var page uint16
	switch p.mapper.Mirroring() {
	case cartridge.MirrorHorizontal:
		page = uint16(table) / 2
	case cartridge.MirrorVertical:
		page = uint16(table) % 2
	case cartridge.MirrorSingleLow:
		page = 0
	case cartridge.MirrorSingleHigh:
		page = 1
	default: // four-screen: approximate with the two physical pages we have
		page = uint16(table) % 2
	}
	return page*0x400 + offset
}

func (p *PPU) paletteIndex(addr uint16) uint16 {
	index := addr & 0x1F
	if index%4 == 0 {
		index &= 0x0F
	}
	return index
}

func (p *PPU) readPalette(addr uint16) uint8 {
	value := p.paletteRAM[p.paletteIndex(addr)]
	if p.mask&0x01 != 0 {
		value &= 0x30 // greyscale
	}
	return value
}

func (p *PPU) writePalette(addr uint16, value uint8) {
	p.paletteRAM[p.paletteIndex(addr)] = value & 0x3F
}

// WriteOAMDMA copies 256 bytes from a CPU page into OAM starting at the
// current OAMADDR, masking the unused attribute bits, and reports the
// number of CPU cycles the transfer steals: 513 normally, 514 if it began
// on an odd CPU cycle.
func (p *PPU) WriteOAMDMA(page [256]uint8, cpuCycleOdd bool) int {
	for i, b := range page {
		addr := p.oamAddr + uint8(i)
		if addr%4 == 2 {
			b &= 0xE3
		}
		p.oam[addr] = b
	}
	if cpuCycleOdd {
		return 514
	}
	return 513
}

// Step advances the PPU by one dot (one PPU clock). The caller converts
// CPU/master clocks to dots and calls Step that many times.
func (p *PPU) Step() {
	if p.tvMode == cartridge.TVModeNTSC && p.scanline == -1 && p.cycle == 0 && p.oddFrame && p.renderingEnabled {
		// NTSC odd-frame cycle-skip: pre-render scanline loses dot 0.
		p.cycle = 1
	}

	if p.scanline >= 0 && p.scanline < 240 && p.cycle >= 1 && p.cycle <= 256 {
		p.renderPixel(p.cycle-1, p.scanline)
	}

	if (p.scanline >= -1 && p.scanline < 240) && p.cycle == 257 {
		p.substepObjectEvaluation()
	}

	if (p.scanline >= -1 && p.scanline < 240) && p.cycle == 321 {
		p.substepScrollReload()
	}

	if p.scanline == 241 && p.cycle == 1 {
		p.status |= 0x80
		p.status &^= 0x60 // sprite-0-hit and overflow clear at VBlank start
		p.sprite0Hit = false
		p.spriteOverflow = false
		p.nmiDeliveredThisVBlank = false
		if p.ctrl&0x80 != 0 {
			p.fireNMI()
		}
		if p.frameCompleteCallback != nil {
			p.frameCompleteCallback()
		}
	}
	if p.scanline == -1 && p.cycle == 1 {
		p.status &^= 0x80
	}

	p.cycle++
	if p.cycle > 340 {
		p.cycle = 0
		p.scanline++
		if p.scanline > p.lastScanline {
			p.scanline = -1
			p.frame++
			p.oddFrame = !p.oddFrame
		}
	}
}

// substepObjectEvaluation is sub-step 1: in-range object evaluation for
// the scanline that is about to start, plus the mapper's scanline IRQ
// clock (MMC3's A12-rising-edge approximation).
func (p *PPU) substepObjectEvaluation() {
	if p.renderingEnabled {
		p.mapper.Scanline()
	}

	nextLine := p.scanline + 1
	height := 8
	if p.ctrl&0x20 != 0 {
		height = 16
	}

	var found []sprite
	overflow := false
	for i := 0; i < 64; i++ {
		y := p.oam[i*4]
		row := nextLine - int(y) - 1
		if row < 0 || row >= height {
			continue
		}
		if len(found) < 8 {
			found = append(found, sprite{
				index:      uint8(i),
				y:          y,
				tile:       p.oam[i*4+1],
				attributes: p.oam[i*4+2],
				x:          p.oam[i*4+3],
			})
		} else {
			overflow = true
		}
	}

	p.pendingSprites = found
	if overflow {
		p.spriteOverflow = true
		p.status |= 0x20
	}
}

// substepScrollReload is sub-step 2: vertical-scroll increment and
// horizontal reload from the latched temporary register, plus handing
// the object-evaluation results to the line about to render.
func (p *PPU) substepScrollReload() {
	if p.renderingEnabled {
		p.incrementY()
		p.copyX()
		if p.scanline == -1 {
			p.copyY()
		}
	}
	p.activeSprites = p.pendingSprites
}

func (p *PPU) incrementX() {
	if p.v&0x001F == 31 {
		p.v &^= 0x001F
		p.v ^= 0x0400
	} else {
		p.v++
	}
}

func (p *PPU) incrementY() {
	if p.v&0x7000 != 0x7000 {
		p.v += 0x1000
	} else {
		p.v &^= 0x7000
		y := (p.v & 0x03E0) >> 5
		switch y {
		case 29:
			y = 0
			p.v ^= 0x0800
		case 31:
			y = 0
		default:
			y++
		}
		p.v = (p.v &^ 0x03E0) | (y << 5)
	}
}

func (p *PPU) copyX() { p.v = (p.v & 0xFBE0) | (p.t & 0x041F) }
func (p *PPU) copyY() { p.v = (p.v & 0x841F) | (p.t & 0x7BE0) }

// renderPixel is sub-step 0: composite the background and sprite pixel
// at (x, y) into the frame buffer, and run the sprite-zero-hit probe.
func (p *PPU) renderPixel(x, y int) {
	bgColor, bgOpaque := p.backgroundPixel(x, y)

	spriteColor, spritePriority, isSpriteZero, spriteOpaque := p.spritePixel(x)

	if isSpriteZero && spriteOpaque && !p.sprite0Hit {
		p.probeSprite0Hit(x, y)
	}

	var index uint8
	switch {
	case !bgOpaque && !spriteOpaque:
		index = p.paletteRAM[0]
	case !spriteOpaque:
		index = bgColor
	case !bgOpaque:
		index = spriteColor
	case spritePriority:
		index = bgColor
	default:
		index = spriteColor
	}

	emphasis := uint16(p.mask&0xE0) >> 5
	p.frameBuffer[y*FrameWidth+x] = emphasis<<6 | uint16(index&0x3F)
}

// probeSprite0Hit independently re-renders the background pixel at (x, y)
// to decide whether sprite 0's opaque pixel lands on an opaque background
// pixel. This is a second, dedicated fetch distinct from the one used for
// compositing, per spec: if the active mapper is MMC2, its CHR-bank
// latches are snapshotted before the probe's pattern-table reads and
// restored afterward, so the probe doesn't flip a latch that real
// rendering is supposed to drive.
func (p *PPU) probeSprite0Hit(x, y int) {
	if !p.backgroundShown || !p.spritesShown {
		return
	}
	if x >= 255 {
		return
	}
	if x < 8 && (p.mask&0x02 == 0 || p.mask&0x04 == 0) {
		return
	}

	latcher, hasLatches := p.mapper.(latchSnapshotter)
	var low, high bool
	if hasLatches {
		low, high = latcher.LatchSnapshot()
	}

	_, opaque := p.backgroundPixel(x, y)

	if hasLatches {
		latcher.RestoreLatch(low, high)
	}

	if opaque {
		p.sprite0Hit = true
		p.status |= 0x40
	}
}

// backgroundPixel returns the palette index and opacity of the
// background at screen coordinate (x, y), honouring left-edge clipping.
func (p *PPU) backgroundPixel(x, y int) (uint8, bool) {
	if !p.backgroundShown {
		return 0, false
	}
	if x < 8 && p.mask&0x02 == 0 {
		return 0, false
	}

	fineX := (int(p.x) + x) % 8
	vramV := p.v
	if x > 0 {
		// Advance a scratch copy of v by however many whole tiles lie
		// between dot 0 and this x, without disturbing real v (which Step
		// only changes at dot 321, in the scroll reload).
		tiles := (int(p.x) + x) / 8
		vramV = scrolledV(p.v, tiles)
	}

	coarseX := vramV & 0x001F
	coarseY := (vramV >> 5) & 0x001F
	nametableSel := (vramV >> 10) & 0x0003
	fineY := (vramV >> 12) & 0x0007

	ntBase := uint16(0x2000) + nametableSel*0x400
	tileAddr := ntBase + coarseY*32 + coarseX
	tileIndex := p.readVRAM(tileAddr)

	attrAddr := ntBase + 0x3C0 + (coarseY/4)*8 + (coarseX / 4)
	attrByte := p.readVRAM(attrAddr)
	quadrant := ((coarseY%4)/2)*2 + (coarseX%4)/2
	paletteIndex := (attrByte >> (quadrant * 2)) & 0x03

	patternBase := uint16(0x0000)
	if p.ctrl&0x10 != 0 {
		patternBase = 0x1000
	}
	patternAddr := patternBase + uint16(tileIndex)*16 + fineY
	low := p.readVRAM(patternAddr)
	high := p.readVRAM(patternAddr + 8)
	bit := uint(7 - fineX)
	colorBits := ((high>>bit)&1)<<1 | (low>>bit)&1

	if colorBits == 0 {
		return p.paletteRAM[0], false
	}
	paletteAddr := 0x3F00 + uint16(paletteIndex)*4 + uint16(colorBits)
	return p.readPalette(paletteAddr), true
}

// scrolledV advances a loopy v register by a whole number of tiles
// (coarse X only), wrapping the horizontal nametable bit, without
// mutating the caller's real register. Used only for background lookup
// ahead of where the real v has advanced to this scanline.
func scrolledV(v uint16, tiles int) uint16 {
	for i := 0; i < tiles; i++ {
		if v&0x001F == 31 {
			v &^= 0x001F
			v ^= 0x0400
		} else {
			v++
		}
	}
	return v
}

// spritePixel returns the palette index, background-priority flag,
// sprite-zero flag, and opacity of whichever active sprite covers column
// x, in OAM priority order (lowest index wins ties).
func (p *PPU) spritePixel(x int) (uint8, bool, bool, bool) {
	if !p.spritesShown {
		return 0, false, false, false
	}
	if x < 8 && p.mask&0x04 == 0 {
		return 0, false, false, false
	}

	height := 8
	if p.ctrl&0x20 != 0 {
		height = 16
	}

	for _, s := range p.activeSprites {
		col := x - int(s.x)
		if col < 0 || col > 7 {
			continue
		}
		row := p.scanline - int(s.y) - 1
		if row < 0 || row >= height {
			continue
		}
		if s.attributes&0x40 != 0 {
			col = 7 - col
		}
		if s.attributes&0x80 != 0 {
			row = height - 1 - row
		}

		tile := s.tile
		var patternBase uint16
		if height == 8 {
			if p.ctrl&0x08 != 0 {
				patternBase = 0x1000
			}
		} else {
			if tile&0x01 != 0 {
				patternBase = 0x1000
			}
			tile &^= 0x01
			if row >= 8 {
				tile++
				row -= 8
			}
		}

		patternAddr := patternBase + uint16(tile)*16 + uint16(row)
		low := p.readVRAM(patternAddr)
		high := p.readVRAM(patternAddr + 8)
		bit := uint(7 - col)
		colorBits := ((high>>bit)&1)<<1 | (low>>bit)&1
		if colorBits == 0 {
			continue // transparent, try the next lower-priority sprite
		}

		paletteIndex := s.attributes & 0x03
		paletteAddr := 0x3F10 + uint16(paletteIndex)*4 + uint16(colorBits)
		return p.readPalette(paletteAddr), s.attributes&0x20 != 0, s.index == 0, true
	}
	return 0, false, false, false
}

func (p *PPU) FrameBuffer() *Frame { return &p.frameBuffer }
func (p *PPU) FrameCount() uint64  { return p.frame }
func (p *PPU) Scanline() int       { return p.scanline }
func (p *PPU) Cycle() int          { return p.cycle }
func (p *PPU) InVBlank() bool      { return p.status&0x80 != 0 }

// Snapshot and Restore serialize every piece of state this PPU owns, in
// a fixed field order, for the "NESSTATE\n" save-state format.
func (p *PPU) Snapshot() []byte {
	buf := make([]byte, 0, 64+len(p.nametableRAM)+len(p.paletteRAM)+len(p.oam))
	buf = append(buf, p.ctrl, p.mask, p.status, p.oamAddr)
	buf = append(buf, uint8(p.v>>8), uint8(p.v), uint8(p.t>>8), uint8(p.t), p.x, boolByte(p.w))
	buf = append(buf, p.readBuffer)
	buf = append(buf, int16Bytes(p.scanline)...)
	buf = append(buf, int16Bytes(p.cycle)...)
	buf = append(buf, boolByte(p.oddFrame))
	buf = append(buf, uint64Bytes(p.frame)...)
	buf = append(buf, boolByte(p.nmiDeliveredThisVBlank), boolByte(p.spriteOverflow), boolByte(p.sprite0Hit))
	buf = append(buf, p.nametableRAM[:]...)
	buf = append(buf, p.paletteRAM[:]...)
	buf = append(buf, p.oam[:]...)
	return buf
}

func (p *PPU) Restore(data []byte) error {
	const fixedLen = 4 + 6 + 1 + 2 + 2 + 1 + 8 + 3
	if len(data) < fixedLen+len(p.nametableRAM)+len(p.paletteRAM)+len(p.oam) {
		return errShortSnapshot
	}
	i := 0
	p.ctrl, p.mask, p.status, p.oamAddr = data[i], data[i+1], data[i+2], data[i+3]
	i += 4
	p.v = uint16(data[i])<<8 | uint16(data[i+1])
	p.t = uint16(data[i+2])<<8 | uint16(data[i+3])
	p.x = data[i+4]
	p.w = data[i+5] != 0
	i += 6
	p.readBuffer = data[i]
	i++
	p.scanline = int(int16(uint16(data[i])<<8 | uint16(data[i+1])))
	i += 2
	p.cycle = int(int16(uint16(data[i])<<8 | uint16(data[i+1])))
	i += 2
	p.oddFrame = data[i] != 0
	i++
	p.frame = uint64(data[i])<<56 | uint64(data[i+1])<<48 | uint64(data[i+2])<<40 | uint64(data[i+3])<<32 |
		uint64(data[i+4])<<24 | uint64(data[i+5])<<16 | uint64(data[i+6])<<8 | uint64(data[i+7])
	i += 8
	p.nmiDeliveredThisVBlank = data[i] != 0
	p.spriteOverflow = data[i+1] != 0
	p.sprite0Hit = data[i+2] != 0
	i += 3
	copy(p.nametableRAM[:], data[i:i+len(p.nametableRAM)])
	i += len(p.nametableRAM)
	copy(p.paletteRAM[:], data[i:i+len(p.paletteRAM)])
	i += len(p.paletteRAM)
	copy(p.oam[:], data[i:i+len(p.oam)])
	p.updateRenderingFlags()
	p.activeSprites, p.pendingSprites = nil, nil
	return nil
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func int16Bytes(v int) []byte {
	u := uint16(int16(v))
	return []byte{uint8(u >> 8), uint8(u)}
}

func uint64Bytes(v uint64) []byte {
	return []byte{
		uint8(v >> 56), uint8(v >> 48), uint8(v >> 40), uint8(v >> 32),
		uint8(v >> 24), uint8(v >> 16), uint8(v >> 8), uint8(v),
	}
}

type snapshotError string

func (e snapshotError) Error() string { return string(e) }

var errShortSnapshot = snapshotError("ppu: snapshot truncated")
