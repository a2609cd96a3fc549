package planner

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// gridNode is one expanded cell in the A* search. Parent is an index into the
// node arena so paths reconstruct without pointer chasing.
type gridNode struct {
	ix, iy int
	parent int
	g      float64
	f      float64
}

var gridMoves = [8][2]int{
	{1, 0}, {-1, 0}, {0, 1}, {0, -1},
	{1, 1}, {1, -1}, {-1, 1}, {-1, -1},
}

// planAStar searches the occupancy grid with 8-connected A* and a Euclidean
// heuristic. The open set is kept as a map from cell to arena index; the
// search aborts after opts.MaxIterations expansions.
func planAStar(w *World, start, goal r3.Vector, opts Options) ([]r3.Vector, error) {
	g := w.Grid
	if g == nil {
		return nil, fmt.Errorf("a-star requires an occupancy grid: %w", ErrInvalidInput)
	}

	sx, sy := g.WorldToCell(start)
	gx, gy := g.WorldToCell(goal)
	if g.Occupied(sx, sy) {
		return nil, fmt.Errorf("start cell (%d,%d) occupied: %w", sx, sy, ErrInvalidInput)
	}
	if g.Occupied(gx, gy) {
		return nil, fmt.Errorf("goal cell (%d,%d) occupied: %w", gx, gy, ErrInvalidInput)
	}

	heuristic := func(ix, iy int) float64 {
		dx := float64(ix - gx)
		dy := float64(iy - gy)
		return math.Sqrt(dx*dx+dy*dy) * g.Resolution
	}
	cellKey := func(ix, iy int) int { return iy*g.Width + ix }

	nodes := []gridNode{{ix: sx, iy: sy, parent: -1, g: 0, f: heuristic(sx, sy)}}
	open := map[int]int{cellKey(sx, sy): 0}
	closed := make(map[int]bool)

	for iter := 0; iter < opts.MaxIterations && len(open) > 0; iter++ {
		// Pop the lowest-f entry of the open set.
		best := -1
		for _, idx := range open {
			if best < 0 || nodes[idx].f < nodes[best].f {
				best = idx
			}
		}
		cur := nodes[best]
		delete(open, cellKey(cur.ix, cur.iy))
		closed[cellKey(cur.ix, cur.iy)] = true

		if cur.ix == gx && cur.iy == gy {
			return reconstructGridPath(g, nodes, best), nil
		}

		for _, mv := range gridMoves {
			nx, ny := cur.ix+mv[0], cur.iy+mv[1]
			if g.Occupied(nx, ny) || closed[cellKey(nx, ny)] {
				continue
			}
			stepCost := g.Resolution
			if mv[0] != 0 && mv[1] != 0 {
				stepCost *= math.Sqrt2
			}
			tentative := cur.g + stepCost

			if existing, ok := open[cellKey(nx, ny)]; ok {
				if tentative < nodes[existing].g {
					nodes[existing].g = tentative
					nodes[existing].f = tentative + heuristic(nx, ny)
					nodes[existing].parent = best
				}
				continue
			}
			nodes = append(nodes, gridNode{
				ix: nx, iy: ny,
				parent: best,
				g:      tentative,
				f:      tentative + heuristic(nx, ny),
			})
			open[cellKey(nx, ny)] = len(nodes) - 1
		}
	}
	return nil, fmt.Errorf("a-star exhausted after %d expansions: %w", opts.MaxIterations, ErrPlanNotFound)
}

func reconstructGridPath(g *OccupancyGrid, nodes []gridNode, idx int) []r3.Vector {
	var rev []r3.Vector
	for i := idx; i >= 0; i = nodes[i].parent {
		rev = append(rev, g.CellToWorld(nodes[i].ix, nodes[i].iy))
	}
	path := make([]r3.Vector, len(rev))
	for i := range rev {
		path[i] = rev[len(rev)-1-i]
	}
	return path
}
