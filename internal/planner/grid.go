package planner

import (
	"fmt"
	"math"
)

// Occupancy values.
const (
	Free     uint8 = 0
	Occupied uint8 = 1
)

// Cell is a (row, col) grid index.
type Cell struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func (c Cell) String() string { return fmt.Sprintf("(%d,%d)", c.Row, c.Col) }

// Grid is an occupancy snapshot. Planning only ever reads it.
type Grid struct {
	Cells    [][]uint8
	CellSize float64 // metres per cell
}

// NewGrid returns an all-free rows×cols grid.
func NewGrid(rows, cols int, cellSize float64) Grid {
	cells := make([][]uint8, rows)
	for r := range cells {
		cells[r] = make([]uint8, cols)
	}
	return Grid{Cells: cells, CellSize: cellSize}
}

// ParseGrid builds a grid from rows of '.' (free) and '#' (occupied).
func ParseGrid(cellSize float64, rows ...string) (Grid, error) {
	g := Grid{CellSize: cellSize, Cells: make([][]uint8, len(rows))}
	for r, line := range rows {
		if r > 0 && len(line) != len(rows[0]) {
			return Grid{}, fmt.Errorf("row %d has %d cells, want %d", r, len(line), len(rows[0]))
		}
		g.Cells[r] = make([]uint8, len(line))
		for c, ch := range line {
			switch ch {
			case '.':
			case '#':
				g.Cells[r][c] = Occupied
			default:
				return Grid{}, fmt.Errorf("row %d col %d: unexpected %q", r, c, ch)
			}
		}
	}
	return g, nil
}

func (g Grid) Rows() int { return len(g.Cells) }

func (g Grid) Cols() int {
	if len(g.Cells) == 0 {
		return 0
	}
	return len(g.Cells[0])
}

// InBounds reports whether c indexes a cell of g.
func (g Grid) InBounds(c Cell) bool {
	return c.Row >= 0 && c.Row < g.Rows() && c.Col >= 0 && c.Col < len(g.Cells[c.Row])
}

// Occupied reports whether c is blocked. Out-of-bounds cells are blocked.
func (g Grid) Occupied(c Cell) bool {
	if !g.InBounds(c) {
		return true
	}
	return g.Cells[c.Row][c.Col] != Free
}

// Clone returns a deep copy that can be mutated without affecting g.
func (g Grid) Clone() Grid {
	out := Grid{CellSize: g.CellSize, Cells: make([][]uint8, len(g.Cells))}
	for r, row := range g.Cells {
		out.Cells[r] = append([]uint8(nil), row...)
	}
	return out
}

// WorldToCell maps world metres to a cell: x selects the row and y the
// column, each by integer division by the cell size.
func (g Grid) WorldToCell(x, y float64) Cell {
	return Cell{
		Row: int(math.Floor(x / g.CellSize)),
		Col: int(math.Floor(y / g.CellSize)),
	}
}

// CellToWorld returns the world coordinates of c's centre.
func (g Grid) CellToWorld(c Cell) (x, y float64) {
	return (float64(c.Row) + 0.5) * g.CellSize, (float64(c.Col) + 0.5) * g.CellSize
}
