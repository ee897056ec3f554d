// Package savestate implements the "NESSTATE\n" save-state file format:
// a magic header followed by six ordered, length-prefixed component
// snapshots. Any validation failure during load reinitializes every
// subsystem to power-on state and returns an error; a save state is
// never partially applied.
package savestate

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const magic = "NESSTATE\n"

// snapshotter is implemented by every component the format dumps.
type snapshotter interface {
	Snapshot() []byte
	Restore(data []byte) error
}

// System is the subset of bus.Bus this package needs: one snapshotter
// per ordered block, plus Reset for the power-on fallback. Declared here
// rather than importing internal/bus directly, so this package has no
// dependency on the orchestrator's own API surface.
type System struct {
	Mapper      snapshotter
	Memory      snapshotter
	PPU         snapshotter
	Controllers snapshotter
	APU         snapshotter
	CPU         snapshotter
	Reset       func()
}

// Save serializes every component in the fixed block order: mapper,
// memory, PPU, controllers, APU, CPU.
func Save(sys System) []byte {
	var buf bytes.Buffer
	buf.WriteString(magic)
	for _, s := range []snapshotter{sys.Mapper, sys.Memory, sys.PPU, sys.Controllers, sys.APU, sys.CPU} {
		block := s.Snapshot()
		var length [4]byte
		binary.LittleEndian.PutUint32(length[:], uint32(len(block)))
		buf.Write(length[:])
		buf.Write(block)
	}
	return buf.Bytes()
}

// Restore loads a Save'd buffer into sys. On any failure it calls
// sys.Reset to bring every subsystem back to power-on and returns the
// error that caused the rollback; the caller should treat the system as
// freshly reset, not as partially loaded.
func Restore(sys System, data []byte) (err error) {
	defer func() {
		if err != nil {
			sys.Reset()
		}
	}()

	if len(data) < len(magic) || string(data[:len(magic)]) != magic {
		return fmt.Errorf("savestate: bad magic")
	}
	data = data[len(magic):]

	targets := []snapshotter{sys.Mapper, sys.Memory, sys.PPU, sys.Controllers, sys.APU, sys.CPU}
	names := []string{"mapper", "memory", "ppu", "controllers", "apu", "cpu"}

	for i, target := range targets {
		if len(data) < 4 {
			return fmt.Errorf("savestate: truncated before %s block length", names[i])
		}
		length := binary.LittleEndian.Uint32(data[:4])
		data = data[4:]
		if uint32(len(data)) < length {
			return fmt.Errorf("savestate: truncated %s block", names[i])
		}
		block := data[:length]
		data = data[length:]
		if err := target.Restore(block); err != nil {
			return fmt.Errorf("savestate: %s block rejected: %w", names[i], err)
		}
	}
	return nil
}
