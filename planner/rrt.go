package planner

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/golang/geo/r3"
)

// rrtNode is one tree vertex. Parent indexes the node arena; cost is the
// total path length from the root, maintained only by the rewiring variant.
type rrtNode struct {
	pos    r3.Vector
	parent int
	cost   float64
}

// planRRT grows a rapidly exploring random tree from start toward goal.
// With rewire=false it returns the first path that connects; with rewire=true
// it runs the optimal variant: new nodes pick the lowest-cost parent within
// the search radius, neighbours are rewired through the new node when that
// shortens them, and the search spends the whole iteration budget keeping the
// best goal connection found.
func planRRT(w *World, start, goal r3.Vector, opts Options, rewire bool) ([]r3.Vector, error) {
	if w.Collides(start) {
		return nil, fmt.Errorf("start in collision: %w", ErrInvalidInput)
	}
	if w.Collides(goal) {
		return nil, fmt.Errorf("goal in collision: %w", ErrInvalidInput)
	}

	lo, hi := samplingBounds(w, start, goal, opts)
	rng := rand.New(rand.NewSource(opts.Seed))

	nodes := []rrtNode{{pos: start, parent: -1}}
	bestGoal := -1
	bestCost := math.Inf(1)

	for iter := 0; iter < opts.MaxIterations; iter++ {
		sample := goal
		if rng.Float64() >= opts.GoalBias {
			sample = r3.Vector{
				X: lo.X + rng.Float64()*(hi.X-lo.X),
				Y: lo.Y + rng.Float64()*(hi.Y-lo.Y),
			}
		}

		nearest := nearestNode(nodes, sample)
		pos := steer(nodes[nearest].pos, sample, opts.StepSize)
		if w.SegmentCollides(nodes[nearest].pos, pos, opts.SegmentStep) {
			continue
		}

		parent := nearest
		cost := nodes[nearest].cost + planarNorm(nodes[nearest].pos, pos)
		if rewire {
			// Choose the cheapest collision-free parent in the neighbourhood.
			for i := range nodes {
				if d := planarNorm(nodes[i].pos, pos); d <= opts.SearchRadius {
					if c := nodes[i].cost + d; c < cost && !w.SegmentCollides(nodes[i].pos, pos, opts.SegmentStep) {
						parent, cost = i, c
					}
				}
			}
		}
		nodes = append(nodes, rrtNode{pos: pos, parent: parent, cost: cost})
		added := len(nodes) - 1

		if rewire {
			var rewired []int
			for i := range nodes[:added] {
				d := planarNorm(nodes[i].pos, pos)
				if d > opts.SearchRadius {
					continue
				}
				if c := cost + d; c < nodes[i].cost && !w.SegmentCollides(pos, nodes[i].pos, opts.SegmentStep) {
					nodes[i].parent = added
					nodes[i].cost = c
					rewired = append(rewired, i)
				}
			}
			if len(rewired) > 0 {
				propagateCost(nodes, rewired)
				if bestGoal >= 0 {
					bestCost = nodes[bestGoal].cost + planarNorm(nodes[bestGoal].pos, goal)
				}
			}
		}

		if d := planarNorm(pos, goal); d <= opts.StepSize && !w.SegmentCollides(pos, goal, opts.SegmentStep) {
			if total := cost + d; total < bestCost {
				bestGoal, bestCost = added, total
			}
			if !rewire {
				break
			}
		}
	}

	if bestGoal < 0 {
		return nil, fmt.Errorf("tree never reached goal in %d iterations: %w", opts.MaxIterations, ErrPlanNotFound)
	}
	return reconstructTreePath(nodes, bestGoal, goal), nil
}

// samplingBounds returns the axis-aligned region random samples are drawn
// from: the grid extent when planning on a grid, otherwise the bounding box
// of start, goal and all obstacles with one step of margin.
func samplingBounds(w *World, start, goal r3.Vector, opts Options) (r3.Vector, r3.Vector) {
	if w.Grid != nil {
		g := w.Grid
		return g.Origin, r3.Vector{
			X: g.Origin.X + float64(g.Width)*g.Resolution,
			Y: g.Origin.Y + float64(g.Height)*g.Resolution,
		}
	}
	lo := r3.Vector{X: math.Min(start.X, goal.X), Y: math.Min(start.Y, goal.Y)}
	hi := r3.Vector{X: math.Max(start.X, goal.X), Y: math.Max(start.Y, goal.Y)}
	for _, o := range w.Obstacles {
		lo.X = math.Min(lo.X, o.Center.X-o.Radius)
		lo.Y = math.Min(lo.Y, o.Center.Y-o.Radius)
		hi.X = math.Max(hi.X, o.Center.X+o.Radius)
		hi.Y = math.Max(hi.Y, o.Center.Y+o.Radius)
	}
	margin := 2 * opts.StepSize
	lo.X -= margin
	lo.Y -= margin
	hi.X += margin
	hi.Y += margin
	return lo, hi
}

// propagateCost pushes updated path costs from the rewired nodes down to all
// of their descendants. Rewiring can make a later node the parent of an
// earlier one, so a single pass in insertion order is not enough.
func propagateCost(nodes []rrtNode, roots []int) {
	children := make([][]int, len(nodes))
	for i := range nodes {
		if p := nodes[i].parent; p >= 0 {
			children[p] = append(children[p], i)
		}
	}
	queue := append([]int(nil), roots...)
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		for _, c := range children[p] {
			nodes[c].cost = nodes[p].cost + planarNorm(nodes[p].pos, nodes[c].pos)
			queue = append(queue, c)
		}
	}
}

func nearestNode(nodes []rrtNode, p r3.Vector) int {
	best, bestD := 0, math.Inf(1)
	for i := range nodes {
		if d := planar(nodes[i].pos, p); d < bestD {
			best, bestD = i, d
		}
	}
	return best
}

// steer moves from a toward b by at most step.
func steer(a, b r3.Vector, step float64) r3.Vector {
	d := planarNorm(a, b)
	if d <= step || d == 0 {
		return r3.Vector{X: b.X, Y: b.Y}
	}
	f := step / d
	return r3.Vector{X: a.X + f*(b.X-a.X), Y: a.Y + f*(b.Y-a.Y)}
}

func reconstructTreePath(nodes []rrtNode, idx int, goal r3.Vector) []r3.Vector {
	rev := []r3.Vector{{X: goal.X, Y: goal.Y}}
	for i := idx; i >= 0; i = nodes[i].parent {
		rev = append(rev, nodes[i].pos)
	}
	path := make([]r3.Vector, len(rev))
	for i := range rev {
		path[i] = rev[len(rev)-1-i]
	}
	return path
}
