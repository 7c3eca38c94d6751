// Package planner finds paths across an occupancy grid with A*.
//
// The planner keeps no state between calls. Replanning is just calling Plan
// again with a fresh grid snapshot and the robot's current cell as start.
package planner

import (
	"container/heap"
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	ErrOutOfBounds   = errors.New("cell outside grid")
	ErrStartOccupied = errors.New("start cell occupied")
	ErrGoalOccupied  = errors.New("goal cell occupied")
	ErrNoPath        = errors.New("no path to goal")
)

// Connectivity selects the neighbourhood and its matching heuristic.
type Connectivity uint8

const (
	// Cardinal moves up/down/left/right at unit cost with a Manhattan
	// heuristic.
	Cardinal Connectivity = iota
	// Octile adds diagonals at cost √2 with a Euclidean heuristic.
	Octile
)

func (c Connectivity) String() string {
	if c == Octile {
		return "octile"
	}
	return "cardinal"
}

// ParseConnectivity accepts "cardinal"/"4" or "octile"/"8".
func ParseConnectivity(s string) (Connectivity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cardinal", "4":
		return Cardinal, nil
	case "octile", "8":
		return Octile, nil
	}
	return Cardinal, fmt.Errorf("unknown grid connectivity %q", s)
}

type step struct {
	dr, dc int
	cost   float64
}

var (
	cardinalSteps = []step{{-1, 0, 1}, {1, 0, 1}, {0, -1, 1}, {0, 1, 1}}
	octileSteps   = append(append([]step(nil), cardinalSteps...),
		step{-1, -1, math.Sqrt2}, step{-1, 1, math.Sqrt2}, step{1, -1, math.Sqrt2}, step{1, 1, math.Sqrt2})
)

func (c Connectivity) steps() []step {
	if c == Octile {
		return octileSteps
	}
	return cardinalSteps
}

// Heuristic estimates the cost from a to b. It never overestimates the true
// cost under c.
func (c Connectivity) Heuristic(a, b Cell) float64 {
	dr := float64(a.Row - b.Row)
	dc := float64(a.Col - b.Col)
	if c == Octile {
		return math.Hypot(dr, dc)
	}
	return math.Abs(dr) + math.Abs(dc)
}

// Result is a successful plan.
type Result struct {
	// Path runs from start to goal inclusive.
	Path     []Cell
	Cost     float64
	Expanded int
}

// node is one search entry; index is maintained by the heap.
type node struct {
	cell   Cell
	g, h   float64
	parent *node
	seq    uint64
	index  int
	closed bool
}

func (n *node) f() float64 { return n.g + n.h }

// openSet orders by f, then by insertion sequence so equal-f nodes pop in
// FIFO order.
type openSet []*node

func (o openSet) Len() int { return len(o) }

func (o openSet) Less(i, j int) bool {
	fi, fj := o[i].f(), o[j].f()
	if fi != fj {
		return fi < fj
	}
	return o[i].seq < o[j].seq
}

func (o openSet) Swap(i, j int) {
	o[i], o[j] = o[j], o[i]
	o[i].index = i
	o[j].index = j
}

func (o *openSet) Push(x any) {
	n := x.(*node)
	n.index = len(*o)
	*o = append(*o, n)
}

func (o *openSet) Pop() any {
	old := *o
	n := old[len(old)-1]
	old[len(old)-1] = nil
	n.index = -1
	*o = old[:len(old)-1]
	return n
}

// Plan searches g for a path from start to goal. Expanded counts nodes
// taken off the open set; it is zero whenever start or goal is rejected.
func Plan(g Grid, start, goal Cell, conn Connectivity) (Result, error) {
	if !g.InBounds(start) {
		return Result{}, fmt.Errorf("start %s: %w", start, ErrOutOfBounds)
	}
	if !g.InBounds(goal) {
		return Result{}, fmt.Errorf("goal %s: %w", goal, ErrOutOfBounds)
	}
	if g.Occupied(start) {
		return Result{}, fmt.Errorf("%s: %w", start, ErrStartOccupied)
	}
	if g.Occupied(goal) {
		return Result{}, fmt.Errorf("%s: %w", goal, ErrGoalOccupied)
	}

	nodes := make(map[Cell]*node)
	open := &openSet{}
	var seq uint64

	push := func(n *node) {
		n.seq = seq
		seq++
		heap.Push(open, n)
	}

	root := &node{cell: start, h: conn.Heuristic(start, goal)}
	nodes[start] = root
	push(root)

	expanded := 0
	for open.Len() > 0 {
		cur := heap.Pop(open).(*node)
		cur.closed = true
		expanded++

		if cur.cell == goal {
			return Result{Path: walk(cur), Cost: cur.g, Expanded: expanded}, nil
		}

		for _, s := range conn.steps() {
			next := Cell{Row: cur.cell.Row + s.dr, Col: cur.cell.Col + s.dc}
			if g.Occupied(next) {
				continue
			}
			g2 := cur.g + s.cost
			n, seen := nodes[next]
			switch {
			case !seen:
				n = &node{cell: next, g: g2, h: conn.Heuristic(next, goal), parent: cur}
				nodes[next] = n
				push(n)
			case n.closed:
				continue
			case g2 < n.g:
				n.g = g2
				n.parent = cur
				heap.Fix(open, n.index)
			}
		}
	}
	return Result{Expanded: expanded}, fmt.Errorf("%s to %s after %d expansions: %w", start, goal, expanded, ErrNoPath)
}

func walk(n *node) []Cell {
	var path []Cell
	for ; n != nil; n = n.parent {
		path = append(path, n.cell)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
