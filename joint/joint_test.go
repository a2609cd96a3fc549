package joint

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimitsValidateAndClamp(t *testing.T) {
	l := Limits{PositionMin: -1, PositionMax: 1, MaxVelocity: 2, MaxAcceleration: 4, MaxTorque: 10}
	require.NoError(t, l.Validate())

	assert.Equal(t, 1.0, l.ClampPosition(3))
	assert.Equal(t, -1.0, l.ClampPosition(-3))
	assert.Equal(t, -2.0, l.ClampVelocity(-9))
	assert.Equal(t, 10.0, l.ClampTorque(99))
	assert.True(t, l.ContainsPosition(0.5))
	assert.False(t, l.ContainsPosition(1.5))

	bad := l
	bad.PositionMax = -2
	assert.Error(t, bad.Validate())
}

func TestPIDIntegralStaysBounded(t *testing.T) {
	pid := NewPID(PIDConfig{Kp: 1, Ki: 1, Kd: 0, OutputMin: -100, OutputMax: 100, IntegralLimit: 0.5})

	// Persistent large error must not wind up past the integral limit.
	for i := 0; i < 1000; i++ {
		pid.Update(10, 0, 0.01)
		assert.LessOrEqual(t, math.Abs(pid.Diagnostics().Integral), 0.5+1e-9)
	}
}

func TestPIDBackCalculationOnSaturation(t *testing.T) {
	pid := NewPID(PIDConfig{Kp: 100, Ki: 10, Kd: 0, OutputMin: -1, OutputMax: 1, IntegralLimit: 10})

	out := pid.Update(10, 0, 0.01)
	assert.Equal(t, 1.0, out)
	// Back-calculation pulls the integral down while saturated.
	assert.Less(t, math.Abs(pid.Diagnostics().Integral), 10.0)
}

func TestPIDConvergesOnStep(t *testing.T) {
	pid := NewPID(PIDConfig{Kp: 4, Ki: 1, Kd: 0.05, OutputMin: -5, OutputMax: 5, IntegralLimit: 2})

	// First-order plant: xdot = u.
	x := 0.0
	dt := 0.01
	for i := 0; i < 2000; i++ {
		u := pid.Update(1.0, x, dt)
		x += u * dt
	}
	assert.InDelta(t, 1.0, x, 0.02)
}

func TestChannelSinkNeverBlocks(t *testing.T) {
	sink := NewChannelSink(2)
	for i := 0; i < 10; i++ {
		sink.Publish(Event{Kind: EventFault, JointID: i})
	}
	assert.Len(t, sink.C, 2)
}
