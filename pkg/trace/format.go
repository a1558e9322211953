package trace

import (
	"bufio"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/texerai/maveric2/pkg/commitlog"
	"github.com/texerai/maveric2/pkg/utils"
)

// FormatRecord renders a record as a canonical trace line (without newline):
//
//	PC: 0x<16 hex>, INSTR: 0x<8 hex>[, REG <id>: <value>][, MEM <addr>[: 0x<16 hex>]]
//
// Loads print the bare address, stores always print the stored value.
func FormatRecord(r commitlog.Record) string {
	var sb strings.Builder

	sb.WriteString("PC: ")
	sb.WriteString(utils.FormatUintHex(r.PC, 16))
	sb.WriteString(", INSTR: ")
	sb.WriteString(utils.FormatUintHex(r.Instr, 8))

	if r.Reg != nil {
		sb.WriteString(", REG ")
		sb.WriteString(r.Reg.ID)
		sb.WriteString(": ")
		sb.WriteString(r.Reg.Value)
	}

	if r.Mem != nil {
		sb.WriteString(", MEM ")
		sb.WriteString(r.Mem.Addr)
		if r.Mem.Kind == commitlog.MemStore {
			sb.WriteString(": ")
			sb.WriteString(utils.FormatUintHex(r.Mem.Value, 16))
		}
	}

	return sb.String()
}

// FormatRecords renders every record
func FormatRecords(records []commitlog.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = FormatRecord(r)
	}
	return out
}

// WriteLog writes one canonical line per record
func WriteLog(w io.Writer, records []commitlog.Record) error {
	return WriteLines(w, FormatRecords(records))
}

// WriteLines writes already formatted lines, each terminated by a newline
func WriteLines(w io.Writer, lines []string) error {
	bw := bufio.NewWriter(w)
	for _, line := range lines {
		if _, err := bw.WriteString(line); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// IsCanonical returns true if the line looks like a canonical trace line
func IsCanonical(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "PC: ")
}

// ReadLog reads canonical lines. Trailing whitespace is trimmed and empty lines are dropped
func ReadLog(r io.Reader) ([]string, error) {
	var lines []string

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r")
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "error reading trace log")
	}

	return lines, nil
}
