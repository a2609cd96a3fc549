package planner

import (
	"math"

	"github.com/golang/geo/r3"
)

// Obstacle is a disc in the planning plane.
type Obstacle struct {
	Center r3.Vector `json:"center"`
	Radius float64   `json:"radius"`
}

// OccupancyGrid is a dense boolean map over the planning plane.
type OccupancyGrid struct {
	Width      int
	Height     int
	Resolution float64
	Origin     r3.Vector
	cells      []bool
}

// NewOccupancyGrid creates an empty grid of width x height cells.
func NewOccupancyGrid(width, height int, resolution float64) *OccupancyGrid {
	return &OccupancyGrid{
		Width:      width,
		Height:     height,
		Resolution: resolution,
		cells:      make([]bool, width*height),
	}
}

// SetOccupied marks one cell.
func (g *OccupancyGrid) SetOccupied(ix, iy int) {
	if ix >= 0 && ix < g.Width && iy >= 0 && iy < g.Height {
		g.cells[iy*g.Width+ix] = true
	}
}

// Occupied reports cell state; everything outside the grid counts as occupied.
func (g *OccupancyGrid) Occupied(ix, iy int) bool {
	if ix < 0 || ix >= g.Width || iy < 0 || iy >= g.Height {
		return true
	}
	return g.cells[iy*g.Width+ix]
}

// WorldToCell maps a plane position to cell indices.
func (g *OccupancyGrid) WorldToCell(p r3.Vector) (int, int) {
	return int((p.X - g.Origin.X) / g.Resolution), int((p.Y - g.Origin.Y) / g.Resolution)
}

// CellToWorld maps cell indices to the cell centre in the plane.
func (g *OccupancyGrid) CellToWorld(ix, iy int) r3.Vector {
	return r3.Vector{
		X: g.Origin.X + (float64(ix)+0.5)*g.Resolution,
		Y: g.Origin.Y + (float64(iy)+0.5)*g.Resolution,
	}
}

// World is the collision environment: either an occupancy grid or a disc
// obstacle list, with the robot modelled as a disc of fixed radius.
type World struct {
	Grid        *OccupancyGrid
	Obstacles   []Obstacle
	RobotRadius float64
}

// planar returns the squared XY distance between two points, ignoring Z.
func planar(a, b r3.Vector) float64 {
	dx, dy := a.X-b.X, a.Y-b.Y
	return dx*dx + dy*dy
}

// Collides reports whether the robot disc at p intersects the environment.
// Grid mode checks cell occupancy directly; obstacle mode inflates each disc
// by the robot radius.
func (w *World) Collides(p r3.Vector) bool {
	if w.Grid != nil {
		ix, iy := w.Grid.WorldToCell(p)
		return w.Grid.Occupied(ix, iy)
	}
	for _, o := range w.Obstacles {
		r := o.Radius + w.RobotRadius
		if planar(p, o.Center) < r*r {
			return true
		}
	}
	return false
}

// SegmentCollides walks the segment from a to b in steps of at most step and
// collision-checks every sample, endpoints included.
func (w *World) SegmentCollides(a, b r3.Vector, step float64) bool {
	if step <= 0 {
		step = 0.05
	}
	dx, dy := b.X-a.X, b.Y-a.Y
	length := planarNorm(a, b)
	n := int(length/step) + 1
	for i := 0; i <= n; i++ {
		f := float64(i) / float64(n)
		p := r3.Vector{X: a.X + f*dx, Y: a.Y + f*dy}
		if w.Collides(p) {
			return true
		}
	}
	return false
}

func planarNorm(a, b r3.Vector) float64 {
	dx, dy := a.X-b.X, a.Y-b.Y
	return math.Sqrt(dx*dx + dy*dy)
}
