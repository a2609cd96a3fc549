package kinematics

import (
	"math"

	"github.com/golang/geo/r3"
)

// analyticalGeometry extracts the closed-form parameters (shoulder height and
// the two arm link lengths) from the DH rows. Returns false when the chain
// does not have the articulated shape the closed form assumes.
func (s *Solver) analyticalGeometry() (l0, l1, l2 float64, ok bool) {
	links := s.model.links
	if len(links) < 3 {
		return 0, 0, 0, false
	}
	l0 = links[0].D
	l1 = links[1].A
	l2 = links[2].A
	if l1 <= 0 || l2 <= 0 {
		return 0, 0, 0, false
	}
	return l0, l1, l2, true
}

// solveAnalytical computes all limit-feasible closed-form solutions for the
// first three joints (wrist joints zeroed). Two base-rotation candidates are
// combined with elbow-up and elbow-down configurations, giving up to four
// solutions. An empty slice means the target is outside the reachable annulus
// or every candidate violates a joint limit.
func (s *Solver) solveAnalytical(target r3.Vector) [][]float64 {
	l0, l1, l2, ok := s.analyticalGeometry()
	if !ok {
		return nil
	}

	zz := target.Z - l0
	r := math.Hypot(target.X, target.Y)
	dist := math.Hypot(r, zz)

	// Reachable annulus check around the shoulder.
	if dist > l1+l2 || dist < math.Abs(l1-l2) {
		return nil
	}

	theta1 := math.Atan2(target.Y, target.X)

	var out [][]float64
	for _, base := range []struct {
		theta1 float64
		radial float64
	}{
		{theta1, r},
		{wrapAngle(theta1 + math.Pi), -r},
	} {
		cosElbow := (base.radial*base.radial + zz*zz - l1*l1 - l2*l2) / (2 * l1 * l2)
		if cosElbow < -1 || cosElbow > 1 {
			continue
		}
		sinElbow := math.Sqrt(1 - cosElbow*cosElbow)

		for _, elbow := range []float64{sinElbow, -sinElbow} {
			theta3 := math.Atan2(elbow, cosElbow)
			theta2 := math.Atan2(zz, base.radial) - math.Atan2(l2*math.Sin(theta3), l1+l2*math.Cos(theta3))

			candidate := make([]float64, s.model.DOF())
			candidate[0] = base.theta1
			candidate[1] = wrapAngle(theta2)
			candidate[2] = wrapAngle(theta3)

			if s.withinLimits(candidate) {
				out = append(out, candidate)
			}
		}
	}
	return out
}

// nearestCandidate picks the candidate minimising the summed squared
// joint-angle distance to the guess. With no guess the first candidate wins.
func nearestCandidate(candidates [][]float64, guess []float64) []float64 {
	if len(candidates) == 0 {
		return nil
	}
	if len(guess) == 0 {
		return candidates[0]
	}
	best := candidates[0]
	bestDist := math.Inf(1)
	for _, c := range candidates {
		d := 0.0
		for i := range c {
			if i < len(guess) {
				diff := c[i] - guess[i]
				d += diff * diff
			}
		}
		if d < bestDist {
			bestDist = d
			best = c
		}
	}
	return best
}

// wrapAngle normalises an angle to (-pi, pi].
func wrapAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}
