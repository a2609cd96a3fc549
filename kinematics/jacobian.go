package kinematics

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

const fdStep = 1e-6 // finite-difference step for the numeric Jacobian

// positionJacobian approximates the 3xN position Jacobian by central finite
// differences through the forward kinematics.
func (s *Solver) positionJacobian(angles []float64) *mat.Dense {
	n := s.model.DOF()
	j := mat.NewDense(3, n, nil)

	probe := make([]float64, n)
	copy(probe, angles)

	for col := 0; col < n; col++ {
		orig := probe[col]

		probe[col] = orig + fdStep
		plus, _ := s.model.Forward(probe)
		probe[col] = orig - fdStep
		minus, _ := s.model.Forward(probe)
		probe[col] = orig

		j.Set(0, col, (plus.X-minus.X)/(2*fdStep))
		j.Set(1, col, (plus.Y-minus.Y)/(2*fdStep))
		j.Set(2, col, (plus.Z-minus.Z)/(2*fdStep))
	}
	return j
}

// Manipulability returns det(J*Jt) at the given configuration, a scalar
// measure of distance from a kinematic singularity.
func (s *Solver) Manipulability(angles []float64) (float64, error) {
	if len(angles) != s.model.DOF() {
		return 0, fmt.Errorf("expected %d joint angles, got %d: %w", s.model.DOF(), len(angles), ErrInvalidInput)
	}
	j := s.positionJacobian(angles)
	var jjt mat.Dense
	jjt.Mul(j, j.T())
	return cofactorDeterminant(&jjt), nil
}

// IsNearSingularity reports whether the configuration is close enough to a
// singularity that damped-least-squares updates become unreliable.
func (s *Solver) IsNearSingularity(angles []float64) bool {
	m, err := s.Manipulability(angles)
	if err != nil {
		return false
	}
	return math.Abs(m) < s.cfg.SingularityEps
}

// cofactorDeterminant computes a determinant by recursive cofactor expansion.
// Exponential in the matrix size, but the matrices here are at most 6x6
// (position Jacobians are 3xN, so J*Jt is 3x3).
func cofactorDeterminant(a *mat.Dense) float64 {
	n, _ := a.Dims()
	if n == 1 {
		return a.At(0, 0)
	}
	if n == 2 {
		return a.At(0, 0)*a.At(1, 1) - a.At(0, 1)*a.At(1, 0)
	}
	det := 0.0
	sign := 1.0
	for col := 0; col < n; col++ {
		minor := mat.NewDense(n-1, n-1, nil)
		for r := 1; r < n; r++ {
			mc := 0
			for c := 0; c < n; c++ {
				if c == col {
					continue
				}
				minor.Set(r-1, mc, a.At(r, c))
				mc++
			}
		}
		det += sign * a.At(0, col) * cofactorDeterminant(minor)
		sign = -sign
	}
	return det
}

// gaussJordanSolve solves a*x = b in place by Gauss-Jordan elimination with
// partial pivoting. a must be square and is destroyed.
func gaussJordanSolve(a *mat.Dense, b []float64) ([]float64, error) {
	n, _ := a.Dims()
	x := make([]float64, n)
	copy(x, b)

	for col := 0; col < n; col++ {
		// Pivot on the largest remaining entry in this column.
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(a.At(r, col)) > math.Abs(a.At(pivot, col)) {
				pivot = r
			}
		}
		if math.Abs(a.At(pivot, col)) < 1e-12 {
			return nil, fmt.Errorf("singular system at column %d", col)
		}
		if pivot != col {
			for c := 0; c < n; c++ {
				tmp := a.At(col, c)
				a.Set(col, c, a.At(pivot, c))
				a.Set(pivot, c, tmp)
			}
			x[col], x[pivot] = x[pivot], x[col]
		}

		inv := 1 / a.At(col, col)
		for c := 0; c < n; c++ {
			a.Set(col, c, a.At(col, c)*inv)
		}
		x[col] *= inv

		for r := 0; r < n; r++ {
			if r == col {
				continue
			}
			f := a.At(r, col)
			if f == 0 {
				continue
			}
			for c := 0; c < n; c++ {
				a.Set(r, c, a.At(r, c)-f*a.At(col, c))
			}
			x[r] -= f * x[col]
		}
	}
	return x, nil
}

// solveJacobian runs damped-least-squares iterations toward the target. The
// update solves (J*Jt + lambda^2*I) y = e and back-projects through Jt. Joint
// angles are clamped to their limits after every step. A solution within
// 10x tolerance is accepted when the iteration budget runs out.
func (s *Solver) solveJacobian(target r3.Vector, guess []float64) ([]float64, error) {
	n := s.model.DOF()
	q := make([]float64, n)
	copy(q, guess)
	s.clampToLimits(q)

	best := make([]float64, n)
	copy(best, q)
	bestErr := math.Inf(1)

	lambda2 := s.cfg.Damping * s.cfg.Damping

	for iter := 0; iter < s.cfg.MaxIterations; iter++ {
		pos, err := s.model.Forward(q)
		if err != nil {
			return nil, err
		}
		e := target.Sub(pos)
		norm := e.Norm()

		if norm < bestErr {
			bestErr = norm
			copy(best, q)
		}
		if norm < s.cfg.Tolerance {
			return q, nil
		}

		j := s.positionJacobian(q)

		var damped mat.Dense
		damped.Mul(j, j.T())
		for d := 0; d < 3; d++ {
			damped.Set(d, d, damped.At(d, d)+lambda2)
		}

		y, err := gaussJordanSolve(&damped, []float64{e.X, e.Y, e.Z})
		if err != nil {
			break
		}

		// dq = Jt * y
		for col := 0; col < n; col++ {
			dq := j.At(0, col)*y[0] + j.At(1, col)*y[1] + j.At(2, col)*y[2]
			q[col] = s.limits[col].ClampPosition(q[col] + dq)
		}
	}

	if bestErr < 10*s.cfg.Tolerance {
		return best, nil
	}
	return nil, fmt.Errorf("best error %.4f m after %d iterations: %w", bestErr, s.cfg.MaxIterations, ErrNoConvergence)
}
