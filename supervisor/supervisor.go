// Package supervisor owns the closed-loop motion cycle: it plans task-space
// paths, solves them to joint space and feeds the actuator controller at a
// fixed control rate.
package supervisor

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/golang/geo/r3"

	"arm-motion-core/joint"
	"arm-motion-core/kinematics"
	"arm-motion-core/metrics"
	"arm-motion-core/planner"
	"arm-motion-core/utils"
)

// ActuatorController is the per-tick surface the supervisor drives. Both the
// profile-tracking motor driver and the torque-mode arm controller satisfy it.
type ActuatorController interface {
	SetJointTargets(positions []float64) error
	Update(dt float64, feedback []joint.SensorFeedback) []joint.ActuatorCommand
	EmergencyStop()
	Diagnostics() []joint.Diagnostics
	DOF() int
}

// FeedbackSource delivers the freshest sensor snapshot each tick. A nil
// snapshot means no new data; the actuator then runs on its own estimates.
type FeedbackSource interface {
	Feedback() []joint.SensorFeedback
}

// CommandSink receives the commands produced by each tick, typically the CAN
// bridge toward the hardware abstraction layer.
type CommandSink interface {
	Send(ctx context.Context, cmds []joint.ActuatorCommand) error
}

// Config tunes the supervisor loop.
type Config struct {
	ControlFrequencyHz float64           `json:"control_frequency_hz"` // default 100
	Algorithm          planner.Algorithm `json:"-"`
	IKMethod           kinematics.Method `json:"-"`
	QueueSize          int               `json:"queue_size"`       // waypoint buffer, default 64
	SettleTolerance    float64           `json:"settle_tolerance"` // rad, default 0.02
}

func (c *Config) applyDefaults() {
	if c.ControlFrequencyHz <= 0 {
		c.ControlFrequencyHz = 100
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.SettleTolerance <= 0 {
		c.SettleTolerance = 0.02
	}
}

// jointTarget is one solved waypoint flowing from the planning goroutine to
// the control tick.
type jointTarget struct {
	angles   []float64
	velocity float64
}

// Supervisor couples the planner, the kinematics solver and one actuator
// controller. Planning and inverse kinematics run in their own goroutine and
// hand joint-space targets to the control tick over a buffered channel, so a
// slow search never stalls the loop.
type Supervisor struct {
	cfg    Config
	solver *kinematics.Solver
	plan   *planner.Planner
	act    ActuatorController
	sink   joint.EventSink
	log    *utils.Logger
	met    *metrics.Metrics

	// current and stopApplied belong to the tick goroutine; cross-goroutine
	// calls communicate through the channel and the atomics only.
	targets     chan jointTarget
	current     *jointTarget
	stopApplied bool

	estopped atomic.Bool
	planning atomic.Bool
	active   atomic.Bool
	ticks    atomic.Uint64
}

// New wires the supervisor. The metrics handle may be nil.
func New(cfg Config, solver *kinematics.Solver, plan *planner.Planner, act ActuatorController, sink joint.EventSink, met *metrics.Metrics, log *utils.Logger) (*Supervisor, error) {
	if solver == nil || plan == nil || act == nil {
		return nil, fmt.Errorf("supervisor needs a solver, a planner and an actuator controller")
	}
	if solver.Model().DOF() != act.DOF() {
		return nil, fmt.Errorf("solver has %d joints but actuator has %d", solver.Model().DOF(), act.DOF())
	}
	if sink == nil {
		sink = joint.NopSink{}
	}
	cfg.applyDefaults()
	return &Supervisor{
		cfg:     cfg,
		solver:  solver,
		plan:    plan,
		act:     act,
		sink:    sink,
		log:     log,
		met:     met,
		targets: make(chan jointTarget, cfg.QueueSize),
	}, nil
}

// MoveTo starts a motion toward the Cartesian goal using the configured
// planning algorithm. It returns immediately; planning and IK run in the
// background and the control loop consumes the solved waypoints as it reaches
// them. Only one motion may be in flight.
func (s *Supervisor) MoveTo(ctx context.Context, goal r3.Vector) error {
	return s.MoveToUsing(ctx, goal, s.cfg.Algorithm)
}

// MoveToUsing is MoveTo with a per-motion algorithm override.
func (s *Supervisor) MoveToUsing(ctx context.Context, goal r3.Vector, algo planner.Algorithm) error {
	if s.estopped.Load() {
		return fmt.Errorf("supervisor in emergency stop")
	}
	if !s.planning.CompareAndSwap(false, true) {
		return fmt.Errorf("motion already in progress")
	}

	seed := s.jointPositions()
	start, err := s.solver.Forward(seed)
	if err != nil {
		s.planning.Store(false)
		return fmt.Errorf("forward kinematics of current pose: %w", err)
	}

	go s.planAndSolve(ctx, start, seed, goal, algo)
	return nil
}

func (s *Supervisor) planAndSolve(ctx context.Context, start r3.Vector, seed []float64, goal r3.Vector, algo planner.Algorithm) {
	defer s.planning.Store(false)

	wps, err := s.plan.Plan(start, goal, algo)
	if err != nil {
		s.met.CountPlan(algo.String(), "error")
		s.log.Error("planning %v -> %v failed: %v", start, goal, err)
		return
	}
	s.met.CountPlan(algo.String(), "ok")

	for i, wp := range wps {
		if s.estopped.Load() || ctx.Err() != nil {
			return
		}
		angles, err := s.solver.Solve(wp.Position, kinematics.SolveOptions{
			Method:       s.cfg.IKMethod,
			InitialGuess: seed,
		})
		if err != nil {
			s.log.Error("IK failed at waypoint %d/%d %v: %v", i+1, len(wps), wp.Position, err)
			s.sink.Publish(joint.Event{
				Kind:      joint.EventFault,
				JointID:   -1,
				Reason:    fmt.Sprintf("unsolvable waypoint %d of %d", i+1, len(wps)),
				Timestamp: time.Now(),
			})
			return
		}
		seed = angles

		select {
		case s.targets <- jointTarget{angles: angles, velocity: wp.Velocity}:
		case <-ctx.Done():
			return
		}
	}
	s.log.Info("motion queued: %d joint-space targets toward (%.3f, %.3f, %.3f)",
		len(wps), goal.X, goal.Y, goal.Z)
}

// Tick runs one control cycle: advance to the next waypoint when the current
// one has settled, then let the actuator compute its commands. An emergency
// stop takes effect on the same tick it was raised; no queued target is
// applied past it.
func (s *Supervisor) Tick(dt float64, feedback []joint.SensorFeedback) []joint.ActuatorCommand {
	began := time.Now()
	switch {
	case s.estopped.Load():
		s.applyStop()
	case s.current == nil || s.settled():
		s.stopApplied = false
		select {
		case next := <-s.targets:
			s.current = &next
			if err := s.act.SetJointTargets(next.angles); err != nil {
				s.log.Error("apply joint targets: %v", err)
				s.current = nil
			}
		default:
			// Queue empty and the last target settled: the motion is done.
			if s.current != nil && s.settled() && !s.planning.Load() {
				s.current = nil
			}
		}
	}
	s.active.Store(s.current != nil)

	cmds := s.act.Update(dt, feedback)
	s.ticks.Add(1)

	s.met.ObserveJoints(s.act.Diagnostics())
	s.met.ObserveTick(time.Since(began).Seconds())
	return cmds
}

// applyStop runs inside the tick goroutine: it drops the active target,
// drains the waypoint queue and latches the actuator exactly once per stop.
func (s *Supervisor) applyStop() {
	if s.stopApplied {
		return
	}
	s.current = nil
	for {
		select {
		case <-s.targets:
		default:
			s.act.EmergencyStop()
			s.met.CountEmergencyStop()
			s.stopApplied = true
			return
		}
	}
}

// settled reports whether every joint is within the settle tolerance of the
// current target.
func (s *Supervisor) settled() bool {
	for _, d := range s.act.Diagnostics() {
		if math.Abs(d.TrackingError) > s.cfg.SettleTolerance {
			return false
		}
	}
	return true
}

// Run drives Tick from a wall-clock ticker until the context ends. src and
// dst may be nil for fully simulated operation.
func (s *Supervisor) Run(ctx context.Context, src FeedbackSource, dst CommandSink) error {
	period := time.Duration(float64(time.Second) / s.cfg.ControlFrequencyHz)
	dt := period.Seconds()
	s.log.Info("control loop started: %.0f Hz, queue depth %d", s.cfg.ControlFrequencyHz, s.cfg.QueueSize)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("control loop stopped after %d ticks", s.ticks.Load())
			return ctx.Err()
		case <-ticker.C:
			var fb []joint.SensorFeedback
			if src != nil {
				fb = src.Feedback()
			}
			cmds := s.Tick(dt, fb)
			if dst != nil {
				if err := dst.Send(ctx, cmds); err != nil {
					s.log.Critical("command transmit failed: %v", err)
					return err
				}
			}
		}
	}
}

// EmergencyStop halts the arm. It only latches the stop flag, so it is safe
// to call from any goroutine while the control loop is running; the next Tick
// drains the waypoint queue and stops the actuator, within the one-tick
// reaction deadline.
func (s *Supervisor) EmergencyStop() {
	if s.estopped.CompareAndSwap(false, true) {
		s.log.Critical("emergency stop engaged")
	}
}

// Resume re-arms the supervisor after an emergency stop. The actuator must be
// re-enabled separately.
func (s *Supervisor) Resume() {
	s.estopped.Store(false)
	s.log.Info("supervisor resumed")
}

// Busy reports whether a motion is still being planned or executed.
func (s *Supervisor) Busy() bool {
	return s.planning.Load() || s.active.Load() || len(s.targets) > 0
}

// QueueDepth returns the number of solved targets waiting for execution.
func (s *Supervisor) QueueDepth() int { return len(s.targets) }

// Diagnostics aggregates the actuator snapshot with loop state.
type Diagnostics struct {
	Joints     []joint.Diagnostics
	QueueDepth int
	Busy       bool
	EStopped   bool
	Ticks      uint64
}

// Diagnostics snapshots the supervised system.
func (s *Supervisor) Diagnostics() Diagnostics {
	return Diagnostics{
		Joints:     s.act.Diagnostics(),
		QueueDepth: len(s.targets),
		Busy:       s.Busy(),
		EStopped:   s.estopped.Load(),
		Ticks:      s.ticks.Load(),
	}
}

func (s *Supervisor) jointPositions() []float64 {
	diags := s.act.Diagnostics()
	out := make([]float64, len(diags))
	for i, d := range diags {
		out[i] = d.Position
	}
	return out
}
