package planner

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arm-motion-core/joint"
)

func emptyGridWorld() *World {
	return &World{Grid: NewOccupancyGrid(10, 10, 1.0)}
}

func newTestPlanner(t *testing.T, w *World, opts Options) *Planner {
	t.Helper()
	opts.Seed = 42
	p, err := NewPlanner(w, opts, nil, nil)
	require.NoError(t, err)
	return p
}

func waypointPathLength(wps []Waypoint) float64 {
	total := 0.0
	for i := 1; i < len(wps); i++ {
		total += planarNorm(wps[i-1].Position, wps[i].Position)
	}
	return total
}

func TestAStarDiagonalOnEmptyGrid(t *testing.T) {
	p := newTestPlanner(t, emptyGridWorld(), Options{})

	wps, err := p.Plan(r3.Vector{X: 0, Y: 0}, r3.Vector{X: 9, Y: 9}, AlgoAStar)
	require.NoError(t, err)
	require.NotEmpty(t, wps)

	assert.InDelta(t, 9*math.Sqrt2, waypointPathLength(wps), 0.1)
	assert.Equal(t, r3.Vector{X: 0, Y: 0}, wps[0].Position)
	assert.InDelta(t, 9.0, wps[len(wps)-1].Position.X, 1e-9)
	assert.InDelta(t, 9.0, wps[len(wps)-1].Position.Y, 1e-9)
}

func TestAStarRoutesAroundWall(t *testing.T) {
	w := emptyGridWorld()
	// Vertical wall with a gap at the bottom row.
	for y := 1; y < 10; y++ {
		w.Grid.SetOccupied(5, y)
	}
	p := newTestPlanner(t, w, Options{})

	wps, err := p.Plan(r3.Vector{X: 2, Y: 8}, r3.Vector{X: 8, Y: 8}, AlgoAStar)
	require.NoError(t, err)

	straight := planarNorm(r3.Vector{X: 2, Y: 8}, r3.Vector{X: 8, Y: 8})
	assert.Greater(t, waypointPathLength(wps), straight)
	for _, wp := range wps {
		assert.False(t, p.World().Collides(wp.Position), "waypoint %v in collision", wp.Position)
	}
}

func TestAStarFailsWhenGoalSealedOff(t *testing.T) {
	w := emptyGridWorld()
	for y := 0; y < 10; y++ {
		w.Grid.SetOccupied(5, y)
	}
	p := newTestPlanner(t, w, Options{})

	_, err := p.Plan(r3.Vector{X: 2, Y: 5}, r3.Vector{X: 8, Y: 5}, AlgoAStar)
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestPlanRejectsOccupiedEndpoints(t *testing.T) {
	w := emptyGridWorld()
	w.Grid.SetOccupied(0, 0)
	p := newTestPlanner(t, w, Options{})

	_, err := p.Plan(r3.Vector{X: 0, Y: 0}, r3.Vector{X: 9, Y: 9}, AlgoAStar)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = p.Plan(r3.Vector{X: math.NaN()}, r3.Vector{X: 9, Y: 9}, AlgoAStar)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestStartAtGoalReturnsSingleWaypoint(t *testing.T) {
	p := newTestPlanner(t, emptyGridWorld(), Options{})

	wps, err := p.Plan(r3.Vector{X: 3, Y: 3}, r3.Vector{X: 3, Y: 3}, AlgoAStar)
	require.NoError(t, err)
	require.Len(t, wps, 1)
	assert.Zero(t, wps[0].Velocity)
}

func discWorld() *World {
	return &World{
		Obstacles: []Obstacle{
			{Center: r3.Vector{X: 5, Y: 5}, Radius: 1.5},
			{Center: r3.Vector{X: 3, Y: 7}, Radius: 1.0},
		},
		RobotRadius: 0.2,
	}
}

func TestRRTSegmentsAreCollisionFree(t *testing.T) {
	for _, algo := range []Algorithm{AlgoRRT, AlgoRRTStar} {
		t.Run(algo.String(), func(t *testing.T) {
			w := discWorld()
			p := newTestPlanner(t, w, Options{MaxIterations: 20000})

			start := r3.Vector{X: 0, Y: 0}
			goal := r3.Vector{X: 9, Y: 9}
			wps, err := p.Plan(start, goal, algo)
			require.NoError(t, err)
			require.GreaterOrEqual(t, len(wps), 2)

			for i := 1; i < len(wps); i++ {
				assert.False(t, w.SegmentCollides(wps[i-1].Position, wps[i].Position, 0.02),
					"segment %d collides", i)
			}
			assert.GreaterOrEqual(t, waypointPathLength(wps)+1e-9, planarNorm(start, goal))
		})
	}
}

func TestRRTRejectsCollidingStart(t *testing.T) {
	w := discWorld()
	p := newTestPlanner(t, w, Options{})

	_, err := p.Plan(r3.Vector{X: 5, Y: 5}, r3.Vector{X: 9, Y: 9}, AlgoRRT)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRewireCostPropagation(t *testing.T) {
	// Chain 0 -> 1 -> 2 -> 3 along the x axis, unit edges.
	nodes := []rrtNode{
		{pos: r3.Vector{X: 0}, parent: -1, cost: 0},
		{pos: r3.Vector{X: 1}, parent: 0, cost: 1},
		{pos: r3.Vector{X: 2}, parent: 1, cost: 2},
		{pos: r3.Vector{X: 3}, parent: 2, cost: 3},
	}

	// A rewire found a cheaper route into node 1; the saving must reach the
	// whole subtree below it.
	nodes[1].cost = 0.5
	propagateCost(nodes, []int{1})

	assert.InDelta(t, 1.5, nodes[2].cost, 1e-9)
	assert.InDelta(t, 2.5, nodes[3].cost, 1e-9)
}

func TestPlanCacheHitReturnsStoredPlan(t *testing.T) {
	p := newTestPlanner(t, emptyGridWorld(), Options{})

	start, goal := r3.Vector{X: 0, Y: 0}, r3.Vector{X: 9, Y: 9}
	first, err := p.Plan(start, goal, AlgoAStar)
	require.NoError(t, err)
	assert.Equal(t, 1, p.CacheSize())

	second, err := p.Plan(start, goal, AlgoAStar)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	p.InvalidateCache()
	assert.Zero(t, p.CacheSize())
}

func TestVelocityTaggingSlowsCorners(t *testing.T) {
	path := []r3.Vector{
		{X: 0, Y: 0},
		{X: 1, Y: 0},
		{X: 1, Y: 1}, // 90 degree turn at index 1
		{X: 2, Y: 1},
	}
	wps := tagVelocities(path, 2.0)

	assert.Zero(t, wps[0].Velocity)
	assert.Zero(t, wps[len(wps)-1].Velocity)
	// Right-angle turn halves the cruise velocity.
	assert.InDelta(t, 1.0, wps[1].Velocity, 1e-9)
	for i := 1; i < len(wps); i++ {
		assert.Greater(t, wps[i].Time, wps[i-1].Time)
	}
}

func TestZInterpolatedAlongPath(t *testing.T) {
	p := newTestPlanner(t, emptyGridWorld(), Options{})

	wps, err := p.Plan(r3.Vector{X: 0, Y: 0, Z: 0.1}, r3.Vector{X: 9, Y: 9, Z: 0.5}, AlgoAStar)
	require.NoError(t, err)

	assert.InDelta(t, 0.1, wps[0].Position.Z, 1e-9)
	assert.InDelta(t, 0.5, wps[len(wps)-1].Position.Z, 1e-9)
	for i := 1; i < len(wps); i++ {
		assert.GreaterOrEqual(t, wps[i].Position.Z+1e-12, wps[i-1].Position.Z)
	}
}

func TestShortcutSmoothCollapsesFreeSpace(t *testing.T) {
	w := &World{}
	path := []r3.Vector{{X: 0, Y: 0}, {X: 1, Y: 3}, {X: 2, Y: 0}, {X: 4, Y: 2}, {X: 5, Y: 0}}
	out := shortcutSmooth(w, path, 10, 0.05)

	assert.Len(t, out, 2)
	assert.Equal(t, path[0], out[0])
	assert.Equal(t, path[len(path)-1], out[len(out)-1])
}

func TestPlanReadyEventPublished(t *testing.T) {
	sink := joint.NewChannelSink(4)
	p, err := NewPlanner(emptyGridWorld(), Options{Seed: 42}, sink, nil)
	require.NoError(t, err)

	_, err = p.Plan(r3.Vector{X: 0, Y: 0}, r3.Vector{X: 9, Y: 9}, AlgoAStar)
	require.NoError(t, err)

	select {
	case ev := <-sink.C:
		assert.Equal(t, joint.EventPlanReady, ev.Kind)
	default:
		t.Fatal("no plan event published")
	}
}

func TestParseAlgorithm(t *testing.T) {
	a, err := ParseAlgorithm("rrt_star")
	require.NoError(t, err)
	assert.Equal(t, AlgoRRTStar, a)

	_, err = ParseAlgorithm("dijkstra")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
