package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGrid_WorldMapping(t *testing.T) {
	g := NewGrid(10, 20, 0.25)

	assert.Equal(t, Cell{Row: 0, Col: 0}, g.WorldToCell(0.1, 0.2))
	assert.Equal(t, Cell{Row: 4, Col: 9}, g.WorldToCell(1.0, 2.4))
	assert.Equal(t, Cell{Row: -1, Col: 0}, g.WorldToCell(-0.1, 0))

	for _, c := range []Cell{{0, 0}, {3, 7}, {9, 19}} {
		x, y := g.CellToWorld(c)
		assert.Equal(t, c, g.WorldToCell(x, y))
	}
}

func TestGrid_Bounds(t *testing.T) {
	g := NewGrid(2, 3, 1)
	assert.True(t, g.InBounds(Cell{1, 2}))
	assert.False(t, g.InBounds(Cell{2, 0}))
	assert.False(t, g.InBounds(Cell{0, -1}))
	assert.True(t, g.Occupied(Cell{5, 5}), "outside the grid is blocked")
	assert.Equal(t, 2, g.Rows())
	assert.Equal(t, 3, g.Cols())
	assert.Equal(t, 0, Grid{}.Cols())
}

func TestParseGrid(t *testing.T) {
	g, err := ParseGrid(0.5, ".#", "#.")
	require.NoError(t, err)
	assert.Equal(t, [][]uint8{{0, 1}, {1, 0}}, g.Cells)
	assert.Equal(t, 0.5, g.CellSize)

	_, err = ParseGrid(1, "..", "...")
	assert.Error(t, err)
	_, err = ParseGrid(1, ".x")
	assert.Error(t, err)
}

func TestGrid_Clone(t *testing.T) {
	g := NewGrid(2, 2, 1)
	c := g.Clone()
	c.Cells[0][0] = Occupied
	assert.False(t, g.Occupied(Cell{0, 0}))
}
