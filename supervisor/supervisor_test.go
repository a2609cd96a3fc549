package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arm-motion-core/joint"
	"arm-motion-core/kinematics"
	"arm-motion-core/motor"
	"arm-motion-core/planner"
)

var testLinkLengths = []float64{0.15, 0.30, 0.25}

func testJointLimits() joint.Limits {
	return joint.Limits{
		PositionMin:     -3.0,
		PositionMax:     3.0,
		MaxVelocity:     2.0,
		MaxAcceleration: 4.0,
		MaxTorque:       50.0,
	}
}

// fakeActuator settles instantly on every target.
type fakeActuator struct {
	positions []float64
	applied   [][]float64
	estops    int
}

func newFakeActuator(dof int) *fakeActuator {
	return &fakeActuator{positions: make([]float64, dof)}
}

func (f *fakeActuator) SetJointTargets(positions []float64) error {
	cp := make([]float64, len(positions))
	copy(cp, positions)
	f.applied = append(f.applied, cp)
	copy(f.positions, positions)
	return nil
}

func (f *fakeActuator) Update(dt float64, feedback []joint.SensorFeedback) []joint.ActuatorCommand {
	cmds := make([]joint.ActuatorCommand, len(f.positions))
	for i := range cmds {
		cmds[i] = joint.ActuatorCommand{JointID: i, Mode: joint.CommandVelocity}
	}
	return cmds
}

func (f *fakeActuator) EmergencyStop() { f.estops++ }

func (f *fakeActuator) Diagnostics() []joint.Diagnostics {
	out := make([]joint.Diagnostics, len(f.positions))
	for i, p := range f.positions {
		out[i] = joint.Diagnostics{ID: i, Position: p, Enabled: true}
	}
	return out
}

func (f *fakeActuator) DOF() int { return len(f.positions) }

func newTestSolver(t *testing.T) *kinematics.Solver {
	t.Helper()
	model, err := kinematics.NewArticulatedModel(testLinkLengths)
	require.NoError(t, err)
	limits := make([]joint.Limits, len(testLinkLengths))
	for i := range limits {
		limits[i] = testJointLimits()
	}
	s, err := kinematics.NewSolver(model, limits, kinematics.Config{}, nil)
	require.NoError(t, err)
	return s
}

func newTestSupervisor(t *testing.T, act ActuatorController) *Supervisor {
	t.Helper()
	plan, err := planner.NewPlanner(&planner.World{}, planner.Options{Seed: 42}, nil, nil)
	require.NoError(t, err)
	s, err := New(Config{Algorithm: planner.AlgoRRT}, newTestSolver(t), plan, act, nil, nil, nil)
	require.NoError(t, err)
	return s
}

func TestMoveToQueuesSolvedWaypoints(t *testing.T) {
	act := newFakeActuator(3)
	s := newTestSupervisor(t, act)

	goal := r3.Vector{X: 0.45, Y: 0.12, Z: 0.2}
	require.NoError(t, s.MoveTo(context.Background(), goal))

	require.Eventually(t, func() bool { return !s.planning.Load() }, 3*time.Second, 5*time.Millisecond)
	require.NotZero(t, s.QueueDepth())

	for i := 0; i < 1000 && s.Busy(); i++ {
		s.Tick(0.01, nil)
	}
	assert.False(t, s.Busy())
	require.NotEmpty(t, act.applied)

	final := act.applied[len(act.applied)-1]
	pos, err := newTestSolver(t).Forward(final)
	require.NoError(t, err)
	assert.InDelta(t, goal.X, pos.X, 0.02)
	assert.InDelta(t, goal.Y, pos.Y, 0.02)
	assert.InDelta(t, goal.Z, pos.Z, 0.02)
}

func TestSingleMotionInFlight(t *testing.T) {
	act := newFakeActuator(3)
	s := newTestSupervisor(t, act)

	s.planning.Store(true)
	err := s.MoveTo(context.Background(), r3.Vector{X: 0.4})
	assert.ErrorContains(t, err, "already in progress")
}

func TestEmergencyStopDrainsQueueAndLatches(t *testing.T) {
	act := newFakeActuator(3)
	s := newTestSupervisor(t, act)

	s.targets <- jointTarget{angles: []float64{0.1, 0.2, 0.3}}
	s.targets <- jointTarget{angles: []float64{0.4, 0.5, 0.6}}

	s.EmergencyStop()
	s.Tick(0.01, nil) // the stop takes effect on the next cycle
	assert.Zero(t, s.QueueDepth())
	assert.Equal(t, 1, act.estops)

	// No queued target may be applied past the stop, and the actuator is
	// latched only once.
	s.targets <- jointTarget{angles: []float64{0.7, 0.8, 0.9}}
	s.Tick(0.01, nil)
	assert.Empty(t, act.applied)
	assert.Equal(t, 1, act.estops)

	err := s.MoveTo(context.Background(), r3.Vector{X: 0.4})
	assert.ErrorContains(t, err, "emergency stop")

	s.Resume()
	assert.False(t, s.Diagnostics().EStopped)
}

// The stop path must be safe against a concurrently running control loop;
// run with -race to check the synchronization.
func TestEmergencyStopConcurrentWithTicks(t *testing.T) {
	cfgs := make([]motor.Config, 3)
	for i := range cfgs {
		cfgs[i] = motor.Config{
			ID:     i,
			Limits: testJointLimits(),
			PID:    joint.PIDConfig{Kp: 20, Ki: 0.5, Kd: 0.2, IntegralLimit: 1},
		}
	}
	drv, err := motor.NewDriver(cfgs, nil, nil)
	require.NoError(t, err)

	s := newTestSupervisor(t, drv)
	require.NoError(t, s.MoveTo(context.Background(), r3.Vector{X: 0.45, Y: 0.12, Z: 0.2}))
	require.Eventually(t, func() bool { return !s.planning.Load() }, 3*time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			s.Tick(0.001, nil)
			s.Diagnostics()
		}
	}()
	time.Sleep(2 * time.Millisecond)
	s.EmergencyStop()
	<-done

	s.Tick(0.001, nil)
	diag := s.Diagnostics()
	assert.True(t, diag.EStopped)
	assert.Zero(t, diag.QueueDepth)
	for _, d := range drv.Diagnostics() {
		assert.Equal(t, motor.StateEmergencyStop.String(), d.State)
	}
	for _, cmd := range s.Tick(0.001, nil) {
		assert.Zero(t, cmd.Value)
	}
}

func TestTickAppliesTargetsInOrder(t *testing.T) {
	act := newFakeActuator(3)
	s := newTestSupervisor(t, act)

	first := []float64{0.1, 0.1, 0.1}
	second := []float64{0.2, 0.2, 0.2}
	s.targets <- jointTarget{angles: first}
	s.targets <- jointTarget{angles: second}

	s.Tick(0.01, nil) // applies first, fake settles instantly
	s.Tick(0.01, nil)
	require.Len(t, act.applied, 2)
	assert.Equal(t, first, act.applied[0])
	assert.Equal(t, second, act.applied[1])
}

func TestSupervisedDriverReachesCartesianGoal(t *testing.T) {
	cfgs := make([]motor.Config, 3)
	for i := range cfgs {
		cfgs[i] = motor.Config{
			ID:     i,
			Limits: testJointLimits(),
			PID:    joint.PIDConfig{Kp: 20, Ki: 0.5, Kd: 0.2, IntegralLimit: 1},
		}
	}
	drv, err := motor.NewDriver(cfgs, nil, nil)
	require.NoError(t, err)

	s := newTestSupervisor(t, drv)
	goal := r3.Vector{X: 0.45, Y: 0.12, Z: 0.2}
	require.NoError(t, s.MoveTo(context.Background(), goal))
	require.Eventually(t, func() bool { return !s.planning.Load() }, 3*time.Second, 5*time.Millisecond)

	for i := 0; i < 20000 && s.Busy(); i++ {
		s.Tick(0.01, nil)
	}
	assert.False(t, s.Busy())

	angles := make([]float64, drv.DOF())
	for i, d := range drv.Diagnostics() {
		angles[i] = d.Position
	}
	pos, err := newTestSolver(t).Forward(angles)
	require.NoError(t, err)
	assert.InDelta(t, goal.X, pos.X, 0.03)
	assert.InDelta(t, goal.Y, pos.Y, 0.03)
	assert.InDelta(t, goal.Z, pos.Z, 0.03)
}

func TestDOFMismatchRejected(t *testing.T) {
	act := newFakeActuator(4)
	plan, err := planner.NewPlanner(&planner.World{}, planner.Options{}, nil, nil)
	require.NoError(t, err)

	_, err = New(Config{}, newTestSolver(t), plan, act, nil, nil, nil)
	assert.ErrorContains(t, err, "joints")
}
