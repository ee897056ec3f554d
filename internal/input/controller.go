// Package input implements the two standard NES controller ports and
// their $4016/$4017 serial-shift protocol.
package input

import "fmt"

// Warn is the sink for the half-strobe diagnostic. The bus package
// points this at the active frontend.Host.Warn during setup.
var Warn = func(format string, args ...any) {}

// Button identifies one of the eight NES controller buttons, in the
// shift-register order real hardware reads them out.
type Button uint8

const (
	ButtonA Button = 1 << iota
	ButtonB
	ButtonSelect
	ButtonStart
	ButtonUp
	ButtonDown
	ButtonLeft
	ButtonRight
)

// signatureIndex is the shift position at which each port's read
// sequence settles into a constant 1 (an open-bus artifact of the real
// shift register): 19 for $4016/controller 1, 18 for $4017/controller 2.
const (
	signatureIndexPort1 = 19
	signatureIndexPort2 = 18
)

// Controller is one NES controller port: live button state plus the
// serial shift register $4016/$4017 reads drain.
type Controller struct {
	buttons uint8

	strobe   bool
	snapshot uint8
	index    int

	signatureIndex int
}

// NewPair constructs the two controller ports wired to $4016 and $4017.
func NewPair() (port1, port2 *Controller) {
	return &Controller{signatureIndex: signatureIndexPort1},
		&Controller{signatureIndex: signatureIndexPort2}
}

// SetButtons replaces the live button bitmask.
func (c *Controller) SetButtons(buttons uint8) { c.buttons = buttons }

// SetButton sets or clears a single button.
func (c *Controller) SetButton(button Button, pressed bool) {
	if pressed {
		c.buttons |= uint8(button)
	} else {
		c.buttons &^= uint8(button)
	}
}

func (c *Controller) IsPressed(button Button) bool { return c.buttons&uint8(button) != 0 }

// Strobe latches the live button state and resets the shift index. Both
// ports receive every $4016 write (only bit 0 matters); the core calls
// this once per write rather than routing it through Read/Write so a
// single write can drive both controllers identically.
func (c *Controller) Strobe(value uint8) {
	c.strobe = value&1 != 0
	if c.strobe {
		c.snapshot = c.buttons
		c.index = 0
	}
}

// Read shifts out the next bit: the eight button bits in order, then
// zeros until the signature index, then a constant 1 from then on.
// Reading while strobe is held high (half-strobing) is not a supported
// access pattern: it is warned about and reads as 0.
func (c *Controller) Read() uint8 {
	if c.strobe {
		Warn("input: half-strobe read (strobe held high)")
		return 0
	}

	var bit uint8
	switch {
	case c.index < 8:
		bit = (c.snapshot >> uint(c.index)) & 1
	case c.index >= c.signatureIndex:
		bit = 1
	default:
		bit = 0
	}
	c.index++
	return bit
}

func (c *Controller) Reset() {
	c.strobe = false
	c.snapshot = 0
	c.index = 0
}

// snapshotBytes (distinct from the snapshot field above) dumps this port's shift-register state for the save-state format.
func (c *Controller) snapshotBytes() []byte {
	return []byte{c.buttons, boolByte(c.strobe), c.snapshot, uint8(c.index)}
}

func (c *Controller) restoreBytes(data []byte) error {
	if len(data) != 4 {
		return fmt.Errorf("input: wrong controller snapshot length %d", len(data))
	}
	if data[3] > signatureIndexPort1 {
		return fmt.Errorf("input: shift index out of range: %d", data[3])
	}
	c.buttons, c.strobe, c.snapshot, c.index = data[0], data[1] != 0, data[2], int(data[3])
	return nil
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// Pair bundles the two controller ports behind the bus-facing
// Read/Write(address) signature memory.Memory expects.
type Pair struct {
	Port1, Port2 *Controller
}

func NewPairState() *Pair {
	p1, p2 := NewPair()
	return &Pair{Port1: p1, Port2: p2}
}

func (p *Pair) Reset() {
	p.Port1.Reset()
	p.Port2.Reset()
}

// Snapshot dumps both ports' shift-register state.
func (p *Pair) Snapshot() []byte {
	return append(p.Port1.snapshotBytes(), p.Port2.snapshotBytes()...)
}

// Restore loads a Snapshot produced by this type.
func (p *Pair) Restore(data []byte) error {
	if len(data) != 8 {
		return fmt.Errorf("input: wrong pair snapshot length %d", len(data))
	}
	if err := p.Port1.restoreBytes(data[:4]); err != nil {
		return err
	}
	return p.Port2.restoreBytes(data[4:])
}

// Read services a CPU read of $4016 (controller 1) or $4017 (controller 2).
func (p *Pair) Read(address uint16) uint8 {
	if address == 0x4017 {
		return p.Port2.Read()
	}
	return p.Port1.Read()
}

// Write services a CPU write of $4016: the strobe line is shared, so
// both ports latch together regardless of which port a game later reads.
func (p *Pair) Write(address uint16, value uint8) {
	if address != 0x4016 {
		return
	}
	p.Port1.Strobe(value)
	p.Port2.Strobe(value)
}
