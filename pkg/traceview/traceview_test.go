package traceview

import (
	"testing"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	a = "PC: 0x0000000080000000, INSTR: 0x00000013"
	b = "PC: 0x0000000080000004, INSTR: 0x00a00093, REG x1: 0x000000000000000a"
	c = "PC: 0x0000000080000008, INSTR: 0x00000013"
	x = "PC: 0x0000000080000008, INSTR: 0x00100093, REG x1: 0x0000000000000001"
)

func TestBuildRows(t *testing.T) {
	t.Run("identical", func(t *testing.T) {
		rows := BuildRows([]string{a, b}, []string{a, b})
		require.Len(t, rows, 2)
		assert.Equal(t, Row{DUTLine: 2, RefLine: 2, DUT: b, Ref: b, Kind: RowMatch}, rows[1])
		assert.Equal(t, 0, Mismatches(rows))
	})

	t.Run("changed line", func(t *testing.T) {
		rows := BuildRows([]string{a, b, c}, []string{a, b, x})
		require.Len(t, rows, 3)
		assert.Equal(t, Row{DUTLine: 3, RefLine: 3, DUT: c, Ref: x, Kind: RowChanged}, rows[2])
	})

	t.Run("missing in DUT", func(t *testing.T) {
		rows := BuildRows([]string{a, c}, []string{a, b, c})
		require.Len(t, rows, 3)
		assert.Equal(t, Row{RefLine: 2, Ref: b, Kind: RowRefOnly}, rows[1])
		assert.Equal(t, Row{DUTLine: 2, RefLine: 3, DUT: c, Ref: c, Kind: RowMatch}, rows[2])
	})

	t.Run("extra in DUT", func(t *testing.T) {
		rows := BuildRows([]string{a, b, c}, []string{a, c})
		require.Len(t, rows, 3)
		assert.Equal(t, Row{DUTLine: 2, DUT: b, Kind: RowDUTOnly}, rows[1])
	})

	t.Run("uneven replacement", func(t *testing.T) {
		rows := BuildRows([]string{a, b, c}, []string{x})
		require.Len(t, rows, 3)
		assert.Equal(t, RowChanged, rows[0].Kind)
		assert.Equal(t, RowDUTOnly, rows[2].Kind)
	})

	t.Run("empty", func(t *testing.T) {
		assert.Empty(t, BuildRows(nil, nil))
	})
}

func TestMismatchNavigation(t *testing.T) {
	rows := []Row{{Kind: RowMatch}, {Kind: RowChanged}, {Kind: RowMatch}, {Kind: RowRefOnly}}

	i, ok := NextMismatch(rows, -1)
	assert.True(t, ok)
	assert.Equal(t, 1, i)

	i, ok = NextMismatch(rows, 1)
	assert.True(t, ok)
	assert.Equal(t, 3, i)

	_, ok = NextMismatch(rows, 3)
	assert.False(t, ok)

	i, ok = PrevMismatch(rows, 3)
	assert.True(t, ok)
	assert.Equal(t, 1, i)

	_, ok = PrevMismatch(rows, 1)
	assert.False(t, ok)
}

func TestViewerKeys(t *testing.T) {
	rows := BuildRows([]string{a, b, c, a, b}, []string{a, x, c, a, x})
	v := NewViewer("am-add", rows)

	// The first mismatch is selected on open
	assert.Equal(t, 1, v.selected())

	key := func(r rune) *tcell.EventKey { return tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone) }

	assert.Nil(t, v.handleKey(key('n')))
	assert.Equal(t, 4, v.selected())

	assert.Nil(t, v.handleKey(key('p')))
	assert.Equal(t, 1, v.selected())

	assert.NotNil(t, v.handleKey(key('z')))
	assert.Contains(t, v.status.GetText(true), "2 mismatching rows")
}
