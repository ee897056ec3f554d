// Package frontend defines the narrow contract between the emulation core
// and a host program. The core never draws a window, opens an audio
// device, or reads a keyboard directly; it calls back into a Host.
package frontend

// Button identifies one of the eight NES controller buttons, in the
// shift-register order used by the controller protocol.
type Button uint8

const (
	ButtonA Button = iota
	ButtonB
	ButtonSelect
	ButtonStart
	ButtonUp
	ButtonDown
	ButtonLeft
	ButtonRight
)

// FrameWidth and FrameHeight are the fixed NES picture dimensions.
const (
	FrameWidth  = 256
	FrameHeight = 240
)

// Frame is a completed picture, one colour index (into the 512-entry
// palette table) per pixel, row-major.
type Frame = [FrameWidth * FrameHeight]uint16

// CPUTrace describes one retired CPU instruction, for an optional
// tracing host.
type CPUTrace struct {
	PC     uint16
	Opcode uint8
	NextPC uint16
}

// MemAccess describes one bus access, for an optional tracing host.
type MemAccess struct {
	Write   bool
	Address uint16
	Data    uint8
}

// Host is implemented by whatever program embeds the core. UpdateScreen is
// called once per completed frame, PlayFrame once per filled audio buffer,
// CheckPadButton once per scanline-equivalent step, and CheckSignals at
// roughly 100Hz of simulated time. Warn is the sink for every non-fatal
// runtime deviation described in spec.md §7 — the core never aborts on a
// bad opcode, an oversized bank index, or a bus conflict; it warns and
// falls back.
type Host interface {
	Warn(format string, args ...any)
	UpdateScreen(frame *Frame)
	PlayFrame(samples []float32)
	CheckPadButton(controller int, button Button) bool
	CheckSignals() (reset bool, stop bool)
}

// Tracer is implemented optionally, in addition to Host, by a host that
// wants trace callbacks. The core checks for this interface once at
// startup and, if absent, skips all trace-mode bookkeeping entirely. The
// core calls MemAccess on every bus read and write and MapperChanged once
// when a cartridge is inserted; it does not call CPUInst.
type Tracer interface {
	CPUInst(trace CPUTrace)
	MemAccess(access MemAccess)
	MapperChanged()
}

// NopHost is a Host that discards everything. Useful for headless runs
// (benchmarks, save-state round-trip tests) that don't care about output.
type NopHost struct{}

func (NopHost) Warn(format string, args ...any)                   {}
func (NopHost) UpdateScreen(frame *Frame)                         {}
func (NopHost) PlayFrame(samples []float32)                       {}
func (NopHost) CheckPadButton(controller int, button Button) bool { return false }
func (NopHost) CheckSignals() (bool, bool)                        { return false, false }
