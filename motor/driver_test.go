package motor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arm-motion-core/joint"
)

func testConfigs(n int) []Config {
	cfgs := make([]Config, n)
	for i := range cfgs {
		cfgs[i] = Config{
			ID: i,
			Limits: joint.Limits{
				PositionMin:     -3.0,
				PositionMax:     3.0,
				MaxVelocity:     2.0,
				MaxAcceleration: 4.0,
				MaxJerk:         40.0,
				MaxTorque:       50.0,
			},
			PID: joint.PIDConfig{Kp: 5.0, Ki: 0.5, Kd: 0.1, IntegralLimit: 1.0},
		}
	}
	return cfgs
}

func newTestDriver(t *testing.T, n int, sink joint.EventSink) *Driver {
	t.Helper()
	d, err := NewDriver(testConfigs(n), sink, nil)
	require.NoError(t, err)
	return d
}

const tick = 0.01 // 100 Hz

func TestMoveToPositionCompletes(t *testing.T) {
	d := newTestDriver(t, 1, nil)

	require.NoError(t, d.MoveToPosition(0, 1.0, ProfileTrapezoidal))
	state, _ := d.MotorState(0)
	assert.Equal(t, StateMoving, state)

	for i := 0; i < 500; i++ {
		d.Update(tick, nil)
	}

	state, _ = d.MotorState(0)
	assert.Equal(t, StateIdle, state)

	js, _ := d.JointState(0)
	assert.InDelta(t, 1.0, js.Position, 0.05)
}

func TestMoveToPositionRejectsOutOfRangeTarget(t *testing.T) {
	d := newTestDriver(t, 1, nil)
	err := d.MoveToPosition(0, 5.0, ProfileTrapezoidal)
	assert.ErrorIs(t, err, ErrTargetOutside)

	state, _ := d.MotorState(0)
	assert.Equal(t, StateIdle, state)
}

func TestPositionsStayWithinLimitsDuringMove(t *testing.T) {
	d := newTestDriver(t, 2, nil)
	require.NoError(t, d.MoveToPosition(0, 2.9, ProfileTrapezoidal))
	require.NoError(t, d.MoveToPosition(1, -2.9, ProfileSCurve))

	for i := 0; i < 1000; i++ {
		d.Update(tick, nil)
		for id := 0; id < 2; id++ {
			js, err := d.JointState(id)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, js.Position, -3.0)
			assert.LessOrEqual(t, js.Position, 3.0)
		}
	}
}

func TestVelocityCommandDrivesIntoFault(t *testing.T) {
	sink := joint.NewChannelSink(8)
	d := newTestDriver(t, 1, sink)

	// Drive toward the upper position limit at full speed.
	require.NoError(t, d.SetVelocity(0, 2.0))
	faulted := false
	for i := 0; i < 400; i++ {
		d.Update(tick, nil)
		if state, _ := d.MotorState(0); state == StateFault {
			faulted = true
			break
		}
	}
	require.True(t, faulted, "motor never faulted while driving past the limit")

	js, _ := d.JointState(0)
	assert.False(t, js.Enabled)
	assert.True(t, js.Faulted)
	assert.NotEmpty(t, js.FaultReason)

	// Fault is terminal until cleared.
	assert.ErrorIs(t, d.MoveToPosition(0, 0, ProfileTrapezoidal), ErrFaulted)

	var sawFault bool
	for len(sink.C) > 0 {
		if ev := <-sink.C; ev.Kind == joint.EventFault {
			sawFault = true
		}
	}
	assert.True(t, sawFault)
}

func TestFaultFromInjectedFeedback(t *testing.T) {
	d := newTestDriver(t, 1, nil)

	// Sensor reports a position beyond position_max: one tick must fault.
	fb := []joint.SensorFeedback{{Position: 3.5}}
	d.Update(tick, fb)

	state, _ := d.MotorState(0)
	assert.Equal(t, StateFault, state)
	js, _ := d.JointState(0)
	assert.False(t, js.Enabled)
}

func TestClearFaultRestoresIdle(t *testing.T) {
	d := newTestDriver(t, 1, nil)
	d.Update(tick, []joint.SensorFeedback{{Position: 3.5}})

	state, _ := d.MotorState(0)
	require.Equal(t, StateFault, state)

	require.NoError(t, d.ClearFault(0))
	state, _ = d.MotorState(0)
	assert.Equal(t, StateIdle, state)
	js, _ := d.JointState(0)
	assert.True(t, js.Enabled)
	assert.Empty(t, js.FaultReason)
}

func TestEmergencyStopZeroesAllTargetsInSameCall(t *testing.T) {
	d := newTestDriver(t, 3, nil)
	require.NoError(t, d.MoveToPosition(0, 1.0, ProfileTrapezoidal))
	require.NoError(t, d.SetVelocity(1, 1.5))
	require.NoError(t, d.SetTorque(2, 10))
	d.Update(tick, nil)

	d.EmergencyStop()

	for id := 0; id < 3; id++ {
		js, err := d.JointState(id)
		require.NoError(t, err)
		assert.Zero(t, js.TargetVelocity, "joint %d", id)
		assert.Zero(t, js.TargetTorque, "joint %d", id)
		assert.Zero(t, js.Acceleration, "joint %d", id)

		state, _ := d.MotorState(id)
		assert.Equal(t, StateEmergencyStop, state)
	}

	// Terminal until re-enabled.
	assert.ErrorIs(t, d.SetVelocity(0, 1.0), ErrEmergencyStop)
	require.NoError(t, d.Enable(0))
	assert.NoError(t, d.SetVelocity(0, 1.0))
}

func TestTorqueControlClampsToLimit(t *testing.T) {
	d := newTestDriver(t, 1, nil)
	require.NoError(t, d.SetTorque(0, 500))

	js, _ := d.JointState(0)
	assert.Equal(t, 50.0, js.TargetTorque)

	cmds := d.Update(tick, []joint.SensorFeedback{{Position: 0}})
	require.Len(t, cmds, 1)
	assert.Equal(t, joint.CommandTorque, cmds[0].Mode)
	assert.Equal(t, 50.0, cmds[0].Value)
}

func TestSetJointTargetsStartsAllMotors(t *testing.T) {
	d := newTestDriver(t, 3, nil)
	require.NoError(t, d.SetJointTargets([]float64{0.5, -0.5, 1.0}))
	for id := 0; id < 3; id++ {
		state, _ := d.MotorState(id)
		assert.Equal(t, StateMoving, state)
	}

	assert.Error(t, d.SetJointTargets([]float64{0.1}))
}

func TestVelocityEstimatedFromPositionDelta(t *testing.T) {
	d := newTestDriver(t, 1, nil)
	d.Update(0.01, []joint.SensorFeedback{{Position: 0.00}})
	d.Update(0.01, []joint.SensorFeedback{{Position: 0.01}})

	js, _ := d.JointState(0)
	assert.InDelta(t, 1.0, js.Velocity, 1e-9)
}
