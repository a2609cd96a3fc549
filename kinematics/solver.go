package kinematics

import (
	"errors"
	"fmt"

	"github.com/golang/geo/r3"

	"arm-motion-core/joint"
	"arm-motion-core/utils"
)

// Sentinel errors for the solver failure taxonomy.
var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnreachable   = errors.New("target unreachable")
	ErrNoConvergence = errors.New("no convergence")
)

// Method selects an IK strategy.
type Method int

const (
	// MethodAuto tries analytical, then Jacobian, then CCD.
	MethodAuto Method = iota
	MethodAnalytical
	MethodJacobian
	MethodCCD
)

func (m Method) String() string {
	switch m {
	case MethodAnalytical:
		return "analytical"
	case MethodJacobian:
		return "jacobian"
	case MethodCCD:
		return "ccd"
	default:
		return "auto"
	}
}

// Config tunes the iterative solvers. Zero values are replaced by defaults.
type Config struct {
	Tolerance      float64 `json:"tolerance"`       // position tolerance in metres (default 1 mm)
	MaxIterations  int     `json:"max_iterations"`  // iteration budget per method (default 100)
	Damping        float64 `json:"damping"`         // DLS lambda (default 0.1)
	SingularityEps float64 `json:"singularity_eps"` // det(J*Jt) threshold (default 1e-6)
	CCDMaxStep     float64 `json:"ccd_max_step"`    // per-joint CCD step bound in rad (default 0.5)
}

func (c *Config) applyDefaults() {
	if c.Tolerance <= 0 {
		c.Tolerance = 0.001
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = 100
	}
	if c.Damping <= 0 {
		c.Damping = 0.1
	}
	if c.SingularityEps <= 0 {
		c.SingularityEps = 1e-6
	}
	if c.CCDMaxStep <= 0 {
		c.CCDMaxStep = 0.5
	}
}

// SolveOptions carries per-call inputs.
type SolveOptions struct {
	Method       Method
	InitialGuess []float64 // optional; zero configuration when absent
}

// Solver maps Cartesian targets to joint angles and back.
type Solver struct {
	model  *Model
	limits []joint.Limits
	cfg    Config
	log    *utils.Logger
}

// NewSolver validates that the limit set matches the model's degrees of freedom.
func NewSolver(model *Model, limits []joint.Limits, cfg Config, log *utils.Logger) (*Solver, error) {
	if model == nil {
		return nil, fmt.Errorf("nil model: %w", ErrInvalidInput)
	}
	if len(limits) != model.DOF() {
		return nil, fmt.Errorf("model has %d joints but %d limit sets given: %w", model.DOF(), len(limits), ErrInvalidInput)
	}
	cfg.applyDefaults()
	return &Solver{model: model, limits: limits, cfg: cfg, log: log}, nil
}

// Model returns the solver's kinematic chain.
func (s *Solver) Model() *Model { return s.model }

// Forward exposes forward kinematics for callers holding the solver.
func (s *Solver) Forward(angles []float64) (r3.Vector, error) {
	return s.model.Forward(angles)
}

// Solve computes joint angles reaching the Cartesian target. On failure it
// returns a nil slice and a sentinel-wrapped error; it never panics.
func (s *Solver) Solve(target r3.Vector, opts SolveOptions) ([]float64, error) {
	guess := opts.InitialGuess
	if len(guess) == 0 {
		guess = make([]float64, s.model.DOF())
	} else if len(guess) != s.model.DOF() {
		return nil, fmt.Errorf("initial guess has %d entries, model has %d joints: %w", len(guess), s.model.DOF(), ErrInvalidInput)
	}

	switch opts.Method {
	case MethodAnalytical:
		candidates := s.solveAnalytical(target)
		if len(candidates) == 0 {
			return nil, fmt.Errorf("analytical solve at (%.3f, %.3f, %.3f): %w", target.X, target.Y, target.Z, ErrUnreachable)
		}
		return nearestCandidate(candidates, opts.InitialGuess), nil

	case MethodJacobian:
		return s.solveJacobian(target, guess)

	case MethodCCD:
		return s.solveCCD(target, guess)

	default:
		return s.solveAuto(target, guess, opts.InitialGuess)
	}
}

// solveAuto runs the fallback chain analytical -> Jacobian -> CCD. Analytical
// candidates are verified through the full chain before acceptance: on arms
// with wrist links the position-only closed form lands short of the true tip,
// in which case its best candidate still makes a good Jacobian seed.
func (s *Solver) solveAuto(target r3.Vector, guess, rawGuess []float64) ([]float64, error) {
	jacobianSeed := guess

	if candidates := s.solveAnalytical(target); len(candidates) > 0 {
		best := nearestCandidate(candidates, rawGuess)
		if pos, err := s.model.Forward(best); err == nil {
			if pos.Sub(target).Norm() < 10*s.cfg.Tolerance {
				return best, nil
			}
		}
		jacobianSeed = best
		s.log.Debug("analytical candidate off-target through full chain, seeding jacobian")
	}

	angles, err := s.solveJacobian(target, jacobianSeed)
	if err == nil {
		return angles, nil
	}
	s.log.Debug("jacobian IK failed (%v), falling back to CCD", err)

	angles, ccdErr := s.solveCCD(target, guess)
	if ccdErr == nil {
		return angles, nil
	}
	return nil, fmt.Errorf("all methods failed (jacobian: %v): %w", err, ccdErr)
}

// withinLimits reports whether every angle respects its joint limits.
func (s *Solver) withinLimits(angles []float64) bool {
	for i, a := range angles {
		if !s.limits[i].ContainsPosition(a) {
			return false
		}
	}
	return true
}

func (s *Solver) clampToLimits(angles []float64) {
	for i := range angles {
		angles[i] = s.limits[i].ClampPosition(angles[i])
	}
}
