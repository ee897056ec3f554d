// Package bus wires the CPU, PPU, APU, work RAM, controllers, and the
// active cartridge mapper together and drives the cycle-timed step loop
// that keeps them all in sync.
package bus

import (
	"github.com/golang/glog"

	"github.com/nescore/nescore/internal/apu"
	"github.com/nescore/nescore/internal/cartridge"
	"github.com/nescore/nescore/internal/cpu"
	"github.com/nescore/nescore/internal/frontend"
	"github.com/nescore/nescore/internal/input"
	"github.com/nescore/nescore/internal/memory"
	"github.com/nescore/nescore/internal/ppu"
	"github.com/nescore/nescore/internal/savestate"
)

// signalPollCycles is roughly 100Hz of simulated NTSC CPU time
// (1789773Hz / 100).
const signalPollCycles = 17898

// ppuRatioNTSC/PAL is PPU dots per CPU cycle. PAL's 3.2 ratio needs a
// fractional accumulator; NTSC's exact 3 does not but uses the same path.
const (
	ppuRatioNTSC = 3.0
	ppuRatioPAL  = 16.0 / 5.0
)

// Bus is the NES system bus: it owns every subsystem and is the only
// object holding both the PPU and the mapper, per the no-cross-pointers
// rule that keeps subsystems from reaching into each other directly.
type Bus struct {
	CPU         *cpu.CPU
	PPU         *ppu.PPU
	APU         *apu.APU
	Memory      *memory.Memory
	Controllers *input.Pair
	Cartridge   *cartridge.Cartridge

	host   frontend.Host
	tracer frontend.Tracer

	ppuRatio    float64
	ppuDotDebt  float64
	cpuCycles   uint64
	signalDebt  int
	extraCycles int // this-Step()'s OAM-DMA cycle steal, reset every Step
}

// New creates a bus with no cartridge inserted. LoadCartridge must be
// called before Run/Step, since the PPU and CPU both depend on the
// mapper being known.
func New(host frontend.Host) *Bus {
	if host == nil {
		host = frontend.NopHost{}
	}
	b := &Bus{host: host, ppuRatio: ppuRatioNTSC}
	if t, ok := host.(frontend.Tracer); ok {
		b.tracer = t
	}
	b.Controllers = input.NewPairState()
	b.APU = apu.New()
	return b
}

// SetRegion switches the PPU:CPU dot ratio, the PPU's scanline/VBlank
// layout, and the APU's frame-sequencer and noise/DMC period tables
// between NTSC and PAL.
func (b *Bus) SetRegion(region apu.Region) {
	b.APU.SetRegion(region)
	if region == apu.PAL {
		b.ppuRatio = ppuRatioPAL
		if b.PPU != nil {
			b.PPU.SetRegion(cartridge.TVModePAL)
		}
	} else {
		b.ppuRatio = ppuRatioNTSC
		if b.PPU != nil {
			b.PPU.SetRegion(cartridge.TVModeNTSC)
		}
	}
}

// LoadCartridge inserts a cartridge, (re)building the PPU and CPU around
// its mapper, and resets every subsystem to power-on state.
func (b *Bus) LoadCartridge(cart *cartridge.Cartridge) {
	b.Cartridge = cart

	b.PPU = ppu.New(cart.Mapper())
	b.Memory = memory.New(b.PPU, b.APU)
	b.Memory.SetCartridge(cart)
	b.Memory.SetControllers(b.Controllers)
	b.Memory.SetOAMDMA(b.performOAMDMA)

	if cart.TVMode() == cartridge.TVModePAL {
		b.SetRegion(apu.PAL)
	} else {
		b.SetRegion(apu.NTSC)
	}
	cartridge.CurrentCycle = func() uint64 { return b.cpuCycles }
	if b.tracer != nil {
		b.Memory.SetTracer(b.tracer)
		b.Memory.SetMode(memory.ModeTrace)
	}

	b.CPU = cpu.New(b.Memory)
	b.APU.SetMemory(b.Memory)

	b.PPU.SetNMICallback(func() { b.CPU.RaiseNMI() })
	b.PPU.SetFrameCompleteCallback(b.flushAudioAndVideo)

	cpu.Warn = b.host.Warn
	cartridge.Warn = b.host.Warn
	memory.Warn = b.host.Warn
	input.Warn = b.host.Warn
	apu.Warn = b.host.Warn

	if b.tracer != nil {
		b.tracer.MapperChanged()
	}

	b.Reset()
}

// Reset re-initializes every subsystem to power-on state, in the order
// the orchestrator uses for a live reset pulse: mapper, PPU, APU,
// controllers, CPU.
func (b *Bus) Reset() {
	if b.Cartridge != nil {
		b.Cartridge.Reset()
	}
	if b.PPU != nil {
		b.PPU.Reset()
	}
	if b.APU != nil {
		b.APU.Reset()
		b.APU.SetMemory(b.Memory)
	}
	b.Controllers.Reset()
	if b.Memory != nil {
		b.Memory.Reset()
	}
	if b.CPU != nil {
		b.CPU.Reset()
	}

	b.ppuDotDebt = 0
	b.cpuCycles = 0
	b.signalDebt = 0
}

// Step executes exactly one CPU instruction and advances the PPU and
// APU the corresponding number of dots/cycles, gathers any pending
// mapper or APU interrupt onto the CPU's IRQ line, and polls the
// frontend for pad state, reset/stop signals, and completed audio.
func (b *Bus) Step() {
	b.extraCycles = 0

	cycles := b.CPU.Step()
	cycles += uint64(b.extraCycles)

	for i := uint64(0); i < cycles; i++ {
		if extra := b.APU.Step(); extra > 0 {
			cycles += uint64(extra)
		}
	}

	scanline := b.PPU.Scanline()
	b.ppuDotDebt += float64(cycles) * b.ppuRatio
	for b.ppuDotDebt >= 1.0 {
		b.PPU.Step()
		b.ppuDotDebt -= 1.0
	}
	if b.PPU.Scanline() != scanline {
		b.syncPadButtons() // pad state is read once per scanline
	}

	irq := b.APU.FrameIRQ() || b.APU.DMCIRQ()
	if b.Cartridge != nil && b.Cartridge.IRQAsserted() {
		irq = true
	}
	b.CPU.SetIRQLine(irq)

	b.cpuCycles += cycles
	b.signalDebt += int(cycles)
	if b.signalDebt >= signalPollCycles {
		b.signalDebt -= signalPollCycles
		b.pollSignals()
	}
}

// pollSignals reads pad state into the controllers and checks the
// frontend's reset/stop request.
func (b *Bus) pollSignals() {
	b.syncPadButtons()
	reset, stop := b.host.CheckSignals()
	if reset {
		b.Reset()
	}
	if stop {
		glog.Info("bus: stop signal received")
	}
}

var padButtons = [8]struct {
	frontend frontend.Button
	input    input.Button
}{
	{frontend.ButtonA, input.ButtonA},
	{frontend.ButtonB, input.ButtonB},
	{frontend.ButtonSelect, input.ButtonSelect},
	{frontend.ButtonStart, input.ButtonStart},
	{frontend.ButtonUp, input.ButtonUp},
	{frontend.ButtonDown, input.ButtonDown},
	{frontend.ButtonLeft, input.ButtonLeft},
	{frontend.ButtonRight, input.ButtonRight},
}

func (b *Bus) syncPadButtons() {
	for _, pb := range padButtons {
		b.Controllers.Port1.SetButton(pb.input, b.host.CheckPadButton(1, pb.frontend))
		b.Controllers.Port2.SetButton(pb.input, b.host.CheckPadButton(2, pb.frontend))
	}
}

// performOAMDMA copies one 256-byte CPU page into OAM and bills the
// resulting 513/514 extra cycles against this Step's accumulator
// instead of a package-level counter.
func (b *Bus) performOAMDMA(page uint8) {
	data := b.Memory.Page(page)
	cpuCycleOdd := b.cpuCycles%2 == 1
	b.extraCycles += b.PPU.WriteOAMDMA(data, cpuCycleOdd)
}

// flushAudioAndVideo is called by the PPU once per completed frame.
func (b *Bus) flushAudioAndVideo() {
	b.host.UpdateScreen(b.PPU.FrameBuffer())
	if b.APU.BufferFull() {
		b.host.PlayFrame(b.APU.GetSamples())
	}
}

// Run executes the bus for a given number of frames.
func (b *Bus) Run(frames int) {
	target := b.PPU.FrameCount() + uint64(frames)
	for b.PPU.FrameCount() < target {
		b.Step()
	}
}

// RunCycles executes the bus for at least the given number of CPU cycles.
func (b *Bus) RunCycles(cycles uint64) {
	target := b.cpuCycles + cycles
	for b.cpuCycles < target {
		b.Step()
	}
}

func (b *Bus) CycleCount() uint64 { return b.cpuCycles }
func (b *Bus) FrameCount() uint64 { return b.PPU.FrameCount() }

// snapshotSystem bundles the six ordered save-state blocks the
// savestate package expects.
func (b *Bus) snapshotSystem() savestate.System {
	return savestate.System{
		Mapper:      b.Cartridge,
		Memory:      b.Memory,
		PPU:         b.PPU,
		Controllers: b.Controllers,
		APU:         b.APU,
		CPU:         b.CPU,
		Reset:       b.Reset,
	}
}

// SaveState serializes the whole system into the "NESSTATE\n" format.
func (b *Bus) SaveState() []byte {
	return savestate.Save(b.snapshotSystem())
}

// LoadState restores a SaveState buffer. On failure every subsystem is
// reinitialized to power-on state and the error is returned.
func (b *Bus) LoadState(data []byte) error {
	return savestate.Restore(b.snapshotSystem(), data)
}
