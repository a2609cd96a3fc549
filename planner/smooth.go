package planner

import (
	"math"

	"github.com/golang/geo/r3"

	"arm-motion-core/joint"
)

// shortcutSmooth removes intermediate waypoints wherever two non-adjacent
// points can be joined without collision. Passes repeat until a full pass
// removes nothing or the iteration budget runs out.
func shortcutSmooth(w *World, path []r3.Vector, maxPasses int, segmentStep float64) []r3.Vector {
	if len(path) < 3 {
		return path
	}
	out := make([]r3.Vector, len(path))
	copy(out, path)

	for pass := 0; pass < maxPasses; pass++ {
		removed := false
		for i := 0; i+2 < len(out); i++ {
			if !w.SegmentCollides(out[i], out[i+2], segmentStep) {
				out = append(out[:i+1], out[i+2:]...)
				removed = true
			}
		}
		if !removed {
			break
		}
	}
	return out
}

// tagVelocities converts a bare path into timestamped waypoints. Endpoints
// get zero velocity; interior points scale the cruise velocity down with the
// turn angle, so the arm slows into sharp corners. Timestamps accumulate
// segment length over the average of the bounding waypoint velocities.
func tagVelocities(path []r3.Vector, maxVelocity float64) []Waypoint {
	wps := make([]Waypoint, len(path))
	for i, p := range path {
		wps[i].Position = p
		switch {
		case i == 0 || i == len(path)-1:
			wps[i].Velocity = 0
		default:
			theta := turnAngle(path[i-1], path[i], path[i+1])
			wps[i].Velocity = maxVelocity * (1 - theta/math.Pi)
		}
	}

	const minAvg = 1e-3
	t := 0.0
	for i := 1; i < len(wps); i++ {
		avg := (wps[i-1].Velocity + wps[i].Velocity) / 2
		if avg < minAvg {
			avg = maxVelocity / 2
		}
		t += planarNorm(wps[i-1].Position, wps[i].Position) / avg
		wps[i].Time = t
	}
	return wps
}

// turnAngle returns the direction change at b along a-b-c, in [0, pi].
func turnAngle(a, b, c r3.Vector) float64 {
	v1x, v1y := b.X-a.X, b.Y-a.Y
	v2x, v2y := c.X-b.X, c.Y-b.Y
	n1 := math.Sqrt(v1x*v1x + v1y*v1y)
	n2 := math.Sqrt(v2x*v2x + v2y*v2y)
	if n1 == 0 || n2 == 0 {
		return 0
	}
	cos := (v1x*v2x + v1y*v2y) / (n1 * n2)
	return math.Acos(joint.Clamp(cos, -1, 1))
}
