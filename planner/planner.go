package planner

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/golang/geo/r3"

	"arm-motion-core/joint"
	"arm-motion-core/utils"
)

var (
	// ErrInvalidInput marks requests the planner cannot even attempt.
	ErrInvalidInput = errors.New("invalid planning request")
	// ErrPlanNotFound marks searches that exhausted their budget.
	ErrPlanNotFound = errors.New("no plan found")
)

// Algorithm selects the search strategy.
type Algorithm int

const (
	AlgoAStar Algorithm = iota
	AlgoRRT
	AlgoRRTStar
)

func (a Algorithm) String() string {
	switch a {
	case AlgoRRT:
		return "RRT"
	case AlgoRRTStar:
		return "RRT_STAR"
	default:
		return "A_STAR"
	}
}

// ParseAlgorithm maps a config string to an Algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch s {
	case "astar", "a_star", "A_STAR":
		return AlgoAStar, nil
	case "rrt", "RRT":
		return AlgoRRT, nil
	case "rrt_star", "rrtstar", "RRT_STAR":
		return AlgoRRTStar, nil
	}
	return AlgoAStar, fmt.Errorf("unknown planning algorithm %q: %w", s, ErrInvalidInput)
}

// Waypoint is one point of a finished plan: position in task space, tagged
// travel velocity and the time offset from the start of the motion.
type Waypoint struct {
	Position r3.Vector `json:"position"`
	Velocity float64   `json:"velocity"`
	Time     float64   `json:"time"`
}

// Options tunes the search. Zero values take the defaults in applyDefaults.
type Options struct {
	MaxIterations int     `json:"max_iterations"` // default 10000
	StepSize      float64 `json:"step_size"`      // RRT extension length, default 0.5
	GoalBias      float64 `json:"goal_bias"`      // default 0.1
	SearchRadius  float64 `json:"search_radius"`  // rewiring neighbourhood, default 1.0
	SegmentStep   float64 `json:"segment_step"`   // collision sampling, default 0.05
	SmoothPasses  int     `json:"smooth_passes"`  // default 10
	MaxVelocity   float64 `json:"max_velocity"`   // waypoint tagging, default 1.0
	Seed          int64   `json:"seed"`
}

func (o *Options) applyDefaults() {
	if o.MaxIterations <= 0 {
		o.MaxIterations = 10000
	}
	if o.StepSize <= 0 {
		o.StepSize = 0.5
	}
	if o.GoalBias <= 0 {
		o.GoalBias = 0.1
	}
	if o.SearchRadius <= 0 {
		o.SearchRadius = 1.0
	}
	if o.SegmentStep <= 0 {
		o.SegmentStep = 0.05
	}
	if o.SmoothPasses <= 0 {
		o.SmoothPasses = 10
	}
	if o.MaxVelocity <= 0 {
		o.MaxVelocity = 1.0
	}
	if o.Seed == 0 {
		o.Seed = time.Now().UnixNano()
	}
}

type cacheKey struct {
	algo                   Algorithm
	sx, sy, sz, gx, gy, gz float64
}

// Planner searches the collision world for task-space paths and post-processes
// them into timestamped waypoints. Finished plans are cached per
// (algorithm, start, goal); mutating the world must be followed by
// InvalidateCache.
type Planner struct {
	world *World
	opts  Options
	sink  joint.EventSink
	log   *utils.Logger

	mu    sync.Mutex
	cache map[cacheKey][]Waypoint
}

// NewPlanner builds a planner over the given world.
func NewPlanner(world *World, opts Options, sink joint.EventSink, log *utils.Logger) (*Planner, error) {
	if world == nil {
		return nil, fmt.Errorf("nil world: %w", ErrInvalidInput)
	}
	if world.Grid == nil && len(world.Obstacles) == 0 {
		log.Debug("planner world has no grid and no obstacles, everything is free space")
	}
	if sink == nil {
		sink = joint.NopSink{}
	}
	opts.applyDefaults()
	return &Planner{
		world: world,
		opts:  opts,
		sink:  sink,
		log:   log,
		cache: make(map[cacheKey][]Waypoint),
	}, nil
}

// Plan finds a collision-free waypoint sequence from start to goal. Planning
// runs in the XY plane; Z is interpolated linearly along the path length.
// A start already at the goal yields a single zero-velocity waypoint, which is
// distinct from a failed search.
func (p *Planner) Plan(start, goal r3.Vector, algo Algorithm) ([]Waypoint, error) {
	if hasNaN(start) || hasNaN(goal) {
		return nil, fmt.Errorf("non-finite start or goal: %w", ErrInvalidInput)
	}

	key := cacheKey{algo, start.X, start.Y, start.Z, goal.X, goal.Y, goal.Z}
	p.mu.Lock()
	if wps, ok := p.cache[key]; ok {
		p.mu.Unlock()
		p.log.Debug("plan cache hit %s (%.3f,%.3f,%.3f)->(%.3f,%.3f,%.3f)",
			algo, start.X, start.Y, start.Z, goal.X, goal.Y, goal.Z)
		return cloneWaypoints(wps), nil
	}
	p.mu.Unlock()

	if planarNorm(start, goal) < 1e-9 && math.Abs(start.Z-goal.Z) < 1e-9 {
		return []Waypoint{{Position: start}}, nil
	}
	if p.world.Collides(start) {
		return nil, fmt.Errorf("start in collision: %w", ErrInvalidInput)
	}
	if p.world.Collides(goal) {
		return nil, fmt.Errorf("goal in collision: %w", ErrInvalidInput)
	}

	began := time.Now()
	var path []r3.Vector
	var err error
	switch algo {
	case AlgoAStar:
		path, err = planAStar(p.world, start, goal, p.opts)
	case AlgoRRT:
		path, err = planRRT(p.world, start, goal, p.opts, false)
	case AlgoRRTStar:
		path, err = planRRT(p.world, start, goal, p.opts, true)
	default:
		return nil, fmt.Errorf("unknown algorithm %d: %w", algo, ErrInvalidInput)
	}
	if err != nil {
		p.log.Warn("%s planning failed after %v: %v", algo, time.Since(began), err)
		return nil, err
	}

	// Snap the endpoints to the exact request before post-processing; grid
	// search returns cell centres.
	path[0] = r3.Vector{X: start.X, Y: start.Y}
	path[len(path)-1] = r3.Vector{X: goal.X, Y: goal.Y}

	path = shortcutSmooth(p.world, path, p.opts.SmoothPasses, p.opts.SegmentStep)
	interpolateZ(path, start.Z, goal.Z)
	wps := tagVelocities(path, p.opts.MaxVelocity)

	p.log.Info("%s plan ready: %d waypoints, %.3f m, %v",
		algo, len(wps), pathLength(path), time.Since(began))
	p.sink.Publish(joint.Event{
		Kind:      joint.EventPlanReady,
		JointID:   -1,
		Reason:    fmt.Sprintf("%s plan with %d waypoints", algo, len(wps)),
		Timestamp: time.Now(),
	})

	p.mu.Lock()
	p.cache[key] = cloneWaypoints(wps)
	p.mu.Unlock()
	return wps, nil
}

// InvalidateCache drops every cached plan. Call after mutating the world.
func (p *Planner) InvalidateCache() {
	p.mu.Lock()
	p.cache = make(map[cacheKey][]Waypoint)
	p.mu.Unlock()
}

// CacheSize returns the number of cached plans.
func (p *Planner) CacheSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cache)
}

// World exposes the collision environment, mainly for scenario setup.
func (p *Planner) World() *World { return p.world }

// interpolateZ spreads the Z travel linearly over the cumulative XY length.
func interpolateZ(path []r3.Vector, z0, z1 float64) {
	total := pathLength(path)
	if total == 0 {
		for i := range path {
			path[i].Z = z1
		}
		return
	}
	acc := 0.0
	path[0].Z = z0
	for i := 1; i < len(path); i++ {
		acc += planarNorm(path[i-1], path[i])
		path[i].Z = z0 + (z1-z0)*acc/total
	}
}

func pathLength(path []r3.Vector) float64 {
	total := 0.0
	for i := 1; i < len(path); i++ {
		total += planarNorm(path[i-1], path[i])
	}
	return total
}

func cloneWaypoints(wps []Waypoint) []Waypoint {
	out := make([]Waypoint, len(wps))
	copy(out, wps)
	return out
}

func hasNaN(v r3.Vector) bool {
	return math.IsNaN(v.X) || math.IsNaN(v.Y) || math.IsNaN(v.Z) ||
		math.IsInf(v.X, 0) || math.IsInf(v.Y, 0) || math.IsInf(v.Z, 0)
}
