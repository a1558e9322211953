// Package commitlog parses the commit trace of the reference simulator into
// execution records.
//
// Only the part of the log between the program start marker (ISA string or
// memory base) and the first environment call or breakpoint is considered.
// Debugger echo lines, ">>>>" redirect markers (plus the line that follows
// each of them) and exception reports are ignored. Every remaining line has
// the layout
//
//	core   0: 3 0x0000000080000040 (0x00a00093) x1  0x000000000000000a
//	core   0: 3 0x0000000080000044 (0x00112023) mem 0x0000000080001000 0x000000000000000a
//	core   0: 3 0x0000000080000048 (0x00012103) x2  0x000000000000000a mem 0x0000000080001000
//
// where the third field is the program counter, the fourth the instruction
// word and the optional tail a register write and/or a memory access.
package commitlog

import (
	"bufio"
	"io"
	"log/slog"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/texerai/maveric2/pkg/faults"
	"github.com/texerai/maveric2/pkg/utils"
)

const (
	fieldPC    = 3
	fieldInstr = 4
	fieldReg   = 5
	fieldValue = 6

	// Legacy token count layout, used when the memory tag is not a standalone field
	legacyLoadMinFields = 9
	legacyLoadAddr      = 8
	legacyStoreAddr     = 6
	legacyStoreValue    = 7

	memTag = "mem"
)

// Config holds the markers that drive the parser
type Config struct {
	// ISAMarker enters the active region. It is the ISA string printed by the simulator
	ISAMarker string `mapstructure:"isa_marker"`

	// BaseMarker also enters the active region. It matches the debugger echo of
	// the first instruction at the memory base, which is not a commit line
	BaseMarker string `mapstructure:"base_marker"`

	// ExitMarkers leave the active region. The line holding the marker is dropped
	ExitMarkers []string `mapstructure:"exit_markers"`

	// TrapVectorPC is the program counter of the no-op emitted for trap value ("tval") lines
	TrapVectorPC uint64 `mapstructure:"trap_vector_pc"`

	// NopInstrs are instruction words that the DUT commits as no-ops (fence)
	NopInstrs []uint32 `mapstructure:"nop_instrs"`
}

// DefaultConfig returns the markers of spike with the Maveric core ISA string
func DefaultConfig() Config {
	return Config{
		ISAMarker:    "xrv64i2p1_m2p0_a2p1_f2p2_d2p2_zicsr2p0_zifencei2p0_zmmul1p0",
		BaseMarker:   "core   0: 0x0000000080000000",
		ExitMarkers:  []string{"ecall", "ebreak"},
		TrapVectorPC: 0x800000e0,
		NopInstrs:    []uint32{0x0ff0000f},
	}
}

// SkippedLine is a malformed line that was dropped from the trace
type SkippedLine struct {
	Line   int
	Text   string
	Reason string
}

// Result is the outcome of parsing a log
type Result struct {
	Records []Record
	Skipped []SkippedLine
}

// Parser turns raw commit log lines into records
type Parser struct {
	config Config
	logger *slog.Logger
	nops   map[uint32]bool
}

// NewParser creates a parser. A nil logger uses slog.Default()
func NewParser(config Config, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}

	nops := make(map[uint32]bool, len(config.NopInstrs))
	for _, instr := range config.NopInstrs {
		nops[instr] = true
	}

	return &Parser{config: config, logger: logger, nops: nops}
}

func (p *Parser) isISABanner(line string) bool {
	return p.config.ISAMarker != "" && strings.Contains(line, p.config.ISAMarker)
}

func (p *Parser) isBaseMarker(line string) bool {
	return p.config.BaseMarker != "" && strings.Contains(line, p.config.BaseMarker)
}

func (p *Parser) entersActive(line string) bool {
	return p.isISABanner(line) || p.isBaseMarker(line)
}

func (p *Parser) exitsActive(line string) bool {
	for _, marker := range p.config.ExitMarkers {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}

// Parse reads the whole log. Malformed lines are skipped with a warning; if
// they leave no usable record at all the error is faults.ErrIndeterminate.
func (p *Parser) Parse(r io.Reader) (*Result, error) {
	result := &Result{}

	active := false
	skipNext := false
	lineNum := 0

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		if p.entersActive(line) {
			active = true
		}
		if p.exitsActive(line) {
			active = false
		}
		if !active || p.entersActive(line) {
			continue
		}

		// Interactive debugger echoes
		if skipNext || strings.Contains(line, "(spike)") || strings.Contains(line, ">>>>") || strings.Contains(line, "exception") {
			skipNext = strings.Contains(line, ">>>>")
			continue
		}

		record, err := p.ParseLine(line)
		if err != nil {
			p.logger.Warn("skipping malformed commit log line", "line", lineNum, "text", line, "error", err.Error())
			result.Skipped = append(result.Skipped, SkippedLine{Line: lineNum, Text: line, Reason: err.Error()})
			continue
		}

		result.Records = append(result.Records, record)
	}

	if err := scanner.Err(); err != nil {
		return result, errors.Wrap(err, "error reading commit log")
	}

	if len(result.Records) == 0 && len(result.Skipped) > 0 {
		return result, utils.MakeError(faults.ErrIndeterminate, "all %d commit log lines are malformed", len(result.Skipped))
	}

	return result, nil
}

// ParseLine decodes a single line of the active region
func (p *Parser) ParseLine(line string) (Record, error) {
	fields := strings.Fields(line)

	if strings.Contains(line, "tval") {
		return Nop(p.config.TrapVectorPC), nil
	}

	if len(fields) <= fieldInstr {
		return Record{}, errors.Errorf("expected at least %d fields, got %d", fieldInstr+1, len(fields))
	}

	pc, err := utils.ParseUintHex(fields[fieldPC])
	if err != nil {
		return Record{}, errors.Wrapf(err, "invalid program counter %q", fields[fieldPC])
	}

	instrText := strings.Trim(fields[fieldInstr], "()[]")
	instr, err := utils.ParseUintHex(instrText)
	if err != nil || instr > utils.AllOnes[uint64](utils.Bits(4)) {
		return Record{}, errors.Errorf("invalid instruction word %q", fields[fieldInstr])
	}

	if p.nops[uint32(instr)] {
		return Nop(pc), nil
	}

	record := Record{PC: pc, Instr: uint32(instr)}

	if !strings.Contains(line, memTag) {
		if len(fields) > fieldReg {
			if len(fields) <= fieldValue {
				return Record{}, errors.Errorf("register write %q has no value", fields[fieldReg])
			}
			record.Reg = &RegWrite{ID: fields[fieldReg], Value: fields[fieldValue]}
		}
		return record, nil
	}

	if err := p.parseMemory(fields, &record); err != nil {
		return Record{}, err
	}

	return record, nil
}

// memOperands is one "mem <addr> [<value>]" group
type memOperands struct {
	addr  string
	value string
}

func (m memOperands) isWrite() bool {
	return m.value != ""
}

// parseMemory decodes the memory tail. Each standalone "mem" field opens a
// group: one operand is a read, two operands are a write. Atomic operations
// print a read followed by a write. A line that also writes a register is a
// load of the first address; otherwise the last write is the store. Lines
// without the standalone tag fall back to the token count layout.
func (p *Parser) parseMemory(fields []string, record *Record) error {
	tag := -1
	for i := fieldReg; i < len(fields); i++ {
		if fields[i] == memTag {
			tag = i
			break
		}
	}

	if tag < 0 {
		return p.parseMemoryByCount(fields, record)
	}

	var groups []memOperands
	var operands []string
	flush := func() error {
		switch len(operands) {
		case 1:
			groups = append(groups, memOperands{addr: operands[0]})
		case 2:
			groups = append(groups, memOperands{addr: operands[0], value: operands[1]})
		default:
			return errors.Errorf("memory access with %d operands", len(operands))
		}
		operands = nil
		return nil
	}

	for _, field := range fields[tag+1:] {
		if field == memTag {
			if err := flush(); err != nil {
				return err
			}
			continue
		}
		operands = append(operands, field)
	}
	if err := flush(); err != nil {
		return err
	}

	if tag > fieldReg {
		if tag <= fieldValue {
			return errors.Errorf("register write %q has no value", fields[fieldReg])
		}
		record.Reg = &RegWrite{ID: fields[fieldReg], Value: fields[fieldValue]}
		record.Mem = &MemAccess{Kind: MemLoad, Addr: groups[0].addr}
		return nil
	}

	write, _, ok := lo.FindLastIndexOf(groups, memOperands.isWrite)
	if !ok {
		record.Mem = &MemAccess{Kind: MemLoad, Addr: groups[0].addr}
		return nil
	}

	value, err := utils.ParseUintHex(write.value)
	if err != nil {
		return errors.Wrapf(err, "invalid store value %q", write.value)
	}
	record.Mem = &MemAccess{Kind: MemStore, Addr: write.addr, Value: value}
	record.Reg = nil
	return nil
}

func (p *Parser) parseMemoryByCount(fields []string, record *Record) error {
	if len(fields) >= legacyLoadMinFields {
		record.Reg = &RegWrite{ID: fields[fieldReg], Value: fields[fieldValue]}
		record.Mem = &MemAccess{Kind: MemLoad, Addr: fields[legacyLoadAddr]}
		return nil
	}

	if len(fields) <= legacyStoreValue {
		return errors.Errorf("memory access line has %d fields", len(fields))
	}

	value, err := utils.ParseUintHex(fields[legacyStoreValue])
	if err != nil {
		return errors.Wrapf(err, "invalid store value %q", fields[legacyStoreValue])
	}

	record.Mem = &MemAccess{Kind: MemStore, Addr: fields[legacyStoreAddr], Value: value}
	record.Reg = nil
	return nil
}
