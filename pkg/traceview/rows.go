// Package traceview shows a DUT trace and a reference trace side by side in
// the terminal, highlighting the rows where they differ.
package traceview

import (
	"github.com/pmezard/go-difflib/difflib"
)

// RowKind tells how the two sides of a row relate
type RowKind int

const (
	RowMatch RowKind = iota
	RowChanged
	RowDUTOnly
	RowRefOnly
)

// Row is a line of the side by side view. Line numbers are 1-based, zero
// when the side is empty.
type Row struct {
	DUTLine int
	RefLine int
	DUT     string
	Ref     string
	Kind    RowKind
}

// Mismatch returns true if the sides differ
func (r Row) Mismatch() bool {
	return r.Kind != RowMatch
}

// BuildRows aligns the two traces on their common lines
func BuildRows(dut, ref []string) []Row {
	matcher := difflib.NewMatcherWithJunk(dut, ref, false, nil)

	var rows []Row
	for _, op := range matcher.GetOpCodes() {
		switch op.Tag {
		case 'e':
			for k := 0; k < op.I2-op.I1; k++ {
				i, j := op.I1+k, op.J1+k
				rows = append(rows, Row{DUTLine: i + 1, RefLine: j + 1, DUT: dut[i], Ref: ref[j], Kind: RowMatch})
			}
		case 'r':
			n := max(op.I2-op.I1, op.J2-op.J1)
			for k := 0; k < n; k++ {
				row := Row{Kind: RowChanged}
				if i := op.I1 + k; i < op.I2 {
					row.DUTLine, row.DUT = i+1, dut[i]
				}
				if j := op.J1 + k; j < op.J2 {
					row.RefLine, row.Ref = j+1, ref[j]
				}
				switch {
				case row.RefLine == 0:
					row.Kind = RowDUTOnly
				case row.DUTLine == 0:
					row.Kind = RowRefOnly
				}
				rows = append(rows, row)
			}
		case 'd':
			for i := op.I1; i < op.I2; i++ {
				rows = append(rows, Row{DUTLine: i + 1, DUT: dut[i], Kind: RowDUTOnly})
			}
		case 'i':
			for j := op.J1; j < op.J2; j++ {
				rows = append(rows, Row{RefLine: j + 1, Ref: ref[j], Kind: RowRefOnly})
			}
		}
	}

	return rows
}

// NextMismatch returns the index of the first mismatching row after from
func NextMismatch(rows []Row, from int) (int, bool) {
	for i := from + 1; i < len(rows); i++ {
		if rows[i].Mismatch() {
			return i, true
		}
	}
	return from, false
}

// PrevMismatch returns the index of the last mismatching row before from
func PrevMismatch(rows []Row, from int) (int, bool) {
	for i := min(from, len(rows)) - 1; i >= 0; i-- {
		if rows[i].Mismatch() {
			return i, true
		}
	}
	return from, false
}

// Mismatches counts the mismatching rows
func Mismatches(rows []Row) int {
	n := 0
	for _, r := range rows {
		if r.Mismatch() {
			n++
		}
	}
	return n
}
