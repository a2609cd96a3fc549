package control

import "arm-motion-core/joint"

// Mode selects the control law applied to a joint.
type Mode int

const (
	ModePosition Mode = iota
	ModeVelocity
	ModeTorque
)

func (m Mode) String() string {
	switch m {
	case ModeVelocity:
		return "VELOCITY"
	case ModeTorque:
		return "TORQUE"
	default:
		return "POSITION"
	}
}

// JointParams configures one joint of the arm controller.
type JointParams struct {
	Limits joint.Limits    `json:"limits"`
	PID    joint.PIDConfig `json:"pid"`

	// Simplified single-link gravity model: tau_g = mass * g * arm * cos(theta).
	MassKg      float64 `json:"mass_kg"`
	GravityArmM float64 `json:"gravity_arm_m"`

	InitialPosition float64 `json:"initial_position"`
}

// ArmConfig configures the whole-arm torque controller. Zero thresholds and
// friction terms take the defaults below.
type ArmConfig struct {
	Joints []JointParams `json:"joints"`

	MaxPositionError float64 `json:"max_position_error"` // rad, default 0.1
	MaxVelocityError float64 `json:"max_velocity_error"` // rad/s, default 0.5

	CoulombFrictionNm float64 `json:"coulomb_friction_nm"` // default 2.0
	ViscousFriction   float64 `json:"viscous_friction"`    // Nm per rad/s, default 0.5
	FrictionVelEps    float64 `json:"friction_vel_eps"`    // rad/s, default 0.01

	VelocityFeedforward float64 `json:"velocity_feedforward"` // position-mode gain, default 1.0
}

func (c *ArmConfig) applyDefaults() {
	if c.MaxPositionError <= 0 {
		c.MaxPositionError = 0.1
	}
	if c.MaxVelocityError <= 0 {
		c.MaxVelocityError = 0.5
	}
	if c.CoulombFrictionNm == 0 {
		c.CoulombFrictionNm = 2.0
	}
	if c.ViscousFriction == 0 {
		c.ViscousFriction = 0.5
	}
	if c.FrictionVelEps <= 0 {
		c.FrictionVelEps = 0.01
	}
	if c.VelocityFeedforward == 0 {
		c.VelocityFeedforward = 1.0
	}
}
