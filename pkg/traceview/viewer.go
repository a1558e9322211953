package traceview

import (
	"fmt"
	"strconv"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

const helpText = "[yellow]n[-] next mismatch  [yellow]p[-] previous mismatch  [yellow]q[-] quit"

// Viewer is the interactive side by side trace view
type Viewer struct {
	app    *tview.Application
	table  *tview.Table
	status *tview.TextView
	rows   []Row
	title  string
}

// NewViewer builds the view of rows. The first mismatch, if any, is selected
func NewViewer(title string, rows []Row) *Viewer {
	v := &Viewer{
		app:    tview.NewApplication(),
		table:  tview.NewTable(),
		status: tview.NewTextView().SetDynamicColors(true),
		rows:   rows,
		title:  title,
	}

	v.table.SetFixed(1, 0).SetSelectable(true, false)
	v.table.SetBorder(true).SetTitle(" " + tview.Escape(title) + " ")

	header := []string{"#DUT", "DUT", "#REF", "REFERENCE"}
	for col, text := range header {
		v.table.SetCell(0, col, tview.NewTableCell(text).
			SetAttributes(tcell.AttrBold).
			SetSelectable(false))
	}

	for i, row := range rows {
		v.setRow(i+1, row)
	}

	v.table.SetSelectionChangedFunc(func(row, _ int) { v.updateStatus(row - 1) })
	v.table.SetInputCapture(v.handleKey)

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(v.table, 0, 1, true).
		AddItem(v.status, 1, 0, false)
	v.app.SetRoot(layout, true)

	if first, ok := NextMismatch(rows, -1); ok {
		v.table.Select(first+1, 0)
	} else {
		v.table.Select(1, 0)
	}
	v.updateStatus(v.selected())

	return v
}

// Run shows the view until the user quits
func (v *Viewer) Run() error {
	return v.app.Run()
}

func (v *Viewer) setRow(r int, row Row) {
	fg := tcell.ColorDefault
	switch row.Kind {
	case RowChanged:
		fg = tcell.ColorRed
	case RowDUTOnly:
		fg = tcell.ColorOrange
	case RowRefOnly:
		fg = tcell.ColorGreen
	}

	v.table.SetCell(r, 0, lineCell(row.DUTLine))
	v.table.SetCell(r, 1, tview.NewTableCell(tview.Escape(row.DUT)).SetTextColor(fg).SetExpansion(1))
	v.table.SetCell(r, 2, lineCell(row.RefLine))
	v.table.SetCell(r, 3, tview.NewTableCell(tview.Escape(row.Ref)).SetTextColor(fg).SetExpansion(1))
}

func lineCell(line int) *tview.TableCell {
	text := ""
	if line > 0 {
		text = strconv.Itoa(line)
	}
	return tview.NewTableCell(text).SetAlign(tview.AlignRight).SetTextColor(tcell.ColorGray)
}

func (v *Viewer) selected() int {
	row, _ := v.table.GetSelection()
	return row - 1
}

func (v *Viewer) handleKey(event *tcell.EventKey) *tcell.EventKey {
	if event.Key() != tcell.KeyRune {
		if event.Key() == tcell.KeyEscape {
			v.app.Stop()
			return nil
		}
		return event
	}

	switch event.Rune() {
	case 'q':
		v.app.Stop()
	case 'n':
		if i, ok := NextMismatch(v.rows, v.selected()); ok {
			v.table.Select(i+1, 0)
		}
	case 'p':
		if i, ok := PrevMismatch(v.rows, v.selected()); ok {
			v.table.Select(i+1, 0)
		}
	default:
		return event
	}

	return nil
}

func (v *Viewer) updateStatus(index int) {
	position := ""
	if index >= 0 && index < len(v.rows) {
		position = fmt.Sprintf("row %d/%d", index+1, len(v.rows))
	}

	v.status.SetText(fmt.Sprintf("%s  [red]%d mismatching rows[-]  %s", position, Mismatches(v.rows), helpText))
}
