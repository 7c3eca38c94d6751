package navigation

import (
	"math"
	"sync"

	"github.com/banshee-data/navcore/internal/planner"
)

// StaticGrid serves one occupancy grid. Update swaps it and bumps the
// version so followers replan.
type StaticGrid struct {
	mu      sync.Mutex
	grid    planner.Grid
	version uint64
}

func NewStaticGrid(g planner.Grid) *StaticGrid {
	return &StaticGrid{grid: g, version: 1}
}

func (s *StaticGrid) Snapshot() (planner.Grid, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grid, s.version
}

func (s *StaticGrid) Update(g planner.Grid) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grid = g
	s.version++
}

// Arena returns an open rectangular floor of widthM × depthM metres with a
// wall of occupied cells around its edge. x runs along the depth.
func Arena(depthM, widthM, cellSize float64) planner.Grid {
	rows := int(math.Ceil(depthM / cellSize))
	cols := int(math.Ceil(widthM / cellSize))
	g := planner.NewGrid(rows, cols, cellSize)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if r == 0 || c == 0 || r == rows-1 || c == cols-1 {
				g.Cells[r][c] = planner.Occupied
			}
		}
	}
	return g
}
