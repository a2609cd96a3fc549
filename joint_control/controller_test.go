package control

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arm-motion-core/joint"
)

func testArmConfig(n int) ArmConfig {
	cfg := ArmConfig{}
	for i := 0; i < n; i++ {
		cfg.Joints = append(cfg.Joints, JointParams{
			Limits: joint.Limits{
				PositionMin:     -3.0,
				PositionMax:     3.0,
				MaxVelocity:     2.0,
				MaxAcceleration: 5.0,
				MaxTorque:       40.0,
			},
			PID:         joint.PIDConfig{Kp: 60, Ki: 5, Kd: 8, IntegralLimit: 2},
			MassKg:      1.5,
			GravityArmM: 0.2,
		})
	}
	return cfg
}

func newTestArm(t *testing.T, n int) *Arm {
	t.Helper()
	a, err := NewArm(testArmConfig(n), nil, nil)
	require.NoError(t, err)
	return a
}

func TestGravityCompensationAtRest(t *testing.T) {
	a := newTestArm(t, 1)

	// Horizontal link, zero error: output torque is the holding torque.
	require.NoError(t, a.SetJointTargets([]float64{0}))
	cmds := a.Update(0.01, []joint.SensorFeedback{{Position: 0}})
	require.Len(t, cmds, 1)
	assert.Equal(t, joint.CommandTorque, cmds[0].Mode)
	assert.InDelta(t, 1.5*9.81*0.2, cmds[0].Value, 1e-6)

	// Vertical link: cos(pi/2) = 0, no gravity torque needed.
	require.NoError(t, a.SetJointTargets([]float64{math.Pi / 2}))
	a.states[0].Position = math.Pi / 2
	a.pidPos[0].Reset()
	cmds = a.Update(0.01, nil)
	assert.InDelta(t, 0, cmds[0].Value, 1e-6)
}

func TestFrictionCompensationSigns(t *testing.T) {
	a := newTestArm(t, 1)

	assert.InDelta(t, 2.0+0.5*1.0, a.frictionCompensation(1.0), 1e-9)
	assert.InDelta(t, -2.0-0.5*1.0, a.frictionCompensation(-1.0), 1e-9)
	// Below the velocity deadband only the viscous term remains.
	assert.InDelta(t, 0.5*0.005, a.frictionCompensation(0.005), 1e-9)
}

func TestTorqueModeClampsToLimit(t *testing.T) {
	a := newTestArm(t, 1)
	require.NoError(t, a.SetTorqueTarget(0, 400))

	cmds := a.Update(0.01, []joint.SensorFeedback{{Position: 0, Velocity: 0, VelocityValid: true}})
	assert.LessOrEqual(t, math.Abs(cmds[0].Value), 40.0)
}

func TestVelocityModeUsesHalfGains(t *testing.T) {
	a := newTestArm(t, 1)
	require.NoError(t, a.SetVelocityTarget(0, 1.0))

	// One tick with zero measured velocity: P term should be Kp/2 * error
	// plus compensation terms (no Coulomb below the deadband, no gravity at
	// pi/2).
	a.states[0].Position = math.Pi / 2
	cmds := a.Update(0.01, nil)
	expectedP := 30.0 * 1.0 // Kp/2 * err
	expectedI := 2.5 * 1.0 * 0.01
	assert.InDelta(t, expectedP+expectedI, cmds[0].Value, 0.1)
}

func TestPositionTrackingConverges(t *testing.T) {
	a := newTestArm(t, 2)
	require.NoError(t, a.SetJointTargets([]float64{0.5, -0.3}))

	// Double-integrator plant per joint: inertia 1, gravity on the link,
	// Coulomb and viscous friction matching the compensation model.
	pos := []float64{0, 0}
	vel := []float64{0, 0}
	dt := 0.001
	for i := 0; i < 20000; i++ {
		fb := []joint.SensorFeedback{
			{Position: pos[0], Velocity: vel[0], VelocityValid: true},
			{Position: pos[1], Velocity: vel[1], VelocityValid: true},
		}
		cmds := a.Update(dt, fb)
		for j := 0; j < 2; j++ {
			gravityTorque := 1.5 * 9.81 * 0.2 * math.Cos(pos[j])
			friction := 0.5 * vel[j]
			if math.Abs(vel[j]) > 0.01 {
				friction += 2.0 * math.Copysign(1, vel[j])
			}
			acc := cmds[j].Value - gravityTorque - friction
			vel[j] += acc * dt
			pos[j] += vel[j] * dt
		}
	}
	assert.InDelta(t, 0.5, pos[0], 0.05)
	assert.InDelta(t, -0.3, pos[1], 0.05)
}

func TestEmergencyStopForcesZeroTorque(t *testing.T) {
	a := newTestArm(t, 2)
	require.NoError(t, a.SetJointTargets([]float64{1.0, 1.0}))

	a.EmergencyStop()
	cmds := a.Update(0.01, nil)
	for _, cmd := range cmds {
		assert.Zero(t, cmd.Value)
	}
	for _, js := range a.states {
		assert.Zero(t, js.TargetVelocity)
		assert.Zero(t, js.TargetTorque)
	}

	assert.Error(t, a.SetJointTargets([]float64{0, 0}))
	a.Enable()
	assert.NoError(t, a.SetJointTargets([]float64{0, 0}))
}

func TestDiagnosticsReportTrackingError(t *testing.T) {
	a := newTestArm(t, 1)
	require.NoError(t, a.SetJointTargets([]float64{1.0}))
	a.Update(0.01, []joint.SensorFeedback{{Position: 0.2}})

	diag := a.Diagnostics()
	require.Len(t, diag, 1)
	assert.Equal(t, "POSITION", diag[0].State)
	assert.InDelta(t, 0.8, diag[0].TrackingError, 1e-9)
}
