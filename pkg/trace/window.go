// Package trace narrows reference records to the comparable execution window
// and renders records as canonical trace lines.
//
// # Execution window
//
// Test programs bracket their measured region with two sentinel instructions
// (a read of the hart id CSR at the start and "li gp, 2" at the end). What the
// core commits between them depends on micro-architectural timing, so the
// region is replaced by one no-op per word address: only the address coverage
// of the window is compared, never its contents.
package trace

import (
	"github.com/texerai/maveric2/pkg/commitlog"
)

const (
	// DefaultStartInstr is "csrr a0, mhartid"
	DefaultStartInstr uint32 = 0xf1402573

	// DefaultEndInstr is "li gp, 2"
	DefaultEndInstr uint32 = 0x00200193
)

// WindowConfig holds the sentinel encodings bracketing the window
type WindowConfig struct {
	StartInstr uint32 `mapstructure:"start_instr"`
	EndInstr   uint32 `mapstructure:"end_instr"`
}

// DefaultWindowConfig returns the sentinels used by the riscv-tests environment
func DefaultWindowConfig() WindowConfig {
	return WindowConfig{
		StartInstr: DefaultStartInstr,
		EndInstr:   DefaultEndInstr,
	}
}

// Window is the half open program counter range [Start, End)
type Window struct {
	Start uint64
	End   uint64
}

// Contains returns true if the program counter is inside the window
func (w Window) Contains(pc uint64) bool {
	return pc >= w.Start && pc < w.End
}

// Len returns the number of word addresses in the window
func (w Window) Len() int {
	if w.End <= w.Start {
		return 0
	}
	return int((w.End - w.Start) / 4)
}

// FindWindow locates the first start sentinel and the first end sentinel
// after it. It returns false if either is missing or the range is empty.
func FindWindow(records []commitlog.Record, config WindowConfig) (Window, bool) {
	startIdx := -1
	for i, r := range records {
		if r.Instr == config.StartInstr {
			startIdx = i
			break
		}
	}
	if startIdx < 0 {
		return Window{}, false
	}

	for _, r := range records[startIdx+1:] {
		if r.Instr == config.EndInstr {
			w := Window{Start: records[startIdx].PC, End: r.PC}
			return w, w.End > w.Start
		}
	}

	return Window{}, false
}

// Nops returns one no-op record per word address of the window, in address order
func (w Window) Nops() []commitlog.Record {
	out := make([]commitlog.Record, 0, w.Len())
	for pc := w.Start; pc+4 <= w.End; pc += 4 {
		out = append(out, commitlog.Nop(pc))
	}
	return out
}

// Extract replaces the records inside the window by the window no-ops. The
// no-ops are emitted where the first in-window record was; every other
// in-window record is dropped and records outside pass through in order.
// Without a window the records are returned unchanged.
func Extract(records []commitlog.Record, config WindowConfig) ([]commitlog.Record, Window, bool) {
	w, ok := FindWindow(records, config)
	if !ok {
		return records, Window{}, false
	}

	out := make([]commitlog.Record, 0, len(records))
	replaced := false

	for _, r := range records {
		if !w.Contains(r.PC) {
			out = append(out, r)
			continue
		}
		if !replaced {
			out = append(out, w.Nops()...)
			replaced = true
		}
	}

	return out, w, true
}
