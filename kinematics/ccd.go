package kinematics

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// solveCCD is the cyclic-coordinate-descent fallback. Each sweep walks the
// chain from the end effector toward the base, rotating every joint about its
// own axis to shrink the angle between the joint-to-tip and joint-to-target
// vectors. Crude but robust far from the solution, which is exactly where the
// Jacobian method gives up.
func (s *Solver) solveCCD(target r3.Vector, guess []float64) ([]float64, error) {
	n := s.model.DOF()
	q := make([]float64, n)
	copy(q, guess)
	s.clampToLimits(q)

	best := make([]float64, n)
	copy(best, q)
	bestErr := math.Inf(1)

	for iter := 0; iter < s.cfg.MaxIterations; iter++ {
		origins, axes, tip := s.model.jointFrames(q)

		norm := target.Sub(tip).Norm()
		if norm < bestErr {
			bestErr = norm
			copy(best, q)
		}
		if norm < s.cfg.Tolerance {
			return q, nil
		}

		for j := n - 1; j >= 0; j-- {
			toTip := tip.Sub(origins[j])
			toTarget := target.Sub(origins[j])
			if toTip.Norm() < 1e-9 || toTarget.Norm() < 1e-9 {
				continue
			}

			cos := toTip.Dot(toTarget) / (toTip.Norm() * toTarget.Norm())
			cos = math.Max(-1, math.Min(1, cos))
			delta := math.Acos(cos)
			if delta < 1e-6 {
				continue
			}

			// Rotation sign from the cross product projected on the joint axis.
			if toTip.Cross(toTarget).Dot(axes[j]) < 0 {
				delta = -delta
			}
			if delta > s.cfg.CCDMaxStep {
				delta = s.cfg.CCDMaxStep
			} else if delta < -s.cfg.CCDMaxStep {
				delta = -s.cfg.CCDMaxStep
			}

			q[j] = s.limits[j].ClampPosition(q[j] + delta)
			origins, axes, tip = s.model.jointFrames(q)
		}
	}

	if bestErr < 10*s.cfg.Tolerance {
		return best, nil
	}
	return nil, fmt.Errorf("best error %.4f m after %d sweeps: %w", bestErr, s.cfg.MaxIterations, ErrNoConvergence)
}
