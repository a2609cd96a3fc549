package joint

import "fmt"

// JointType identifies the actuator technology driving a joint.
type JointType int

const (
	DCMotor JointType = iota
	ServoMotor
	StepperMotor
)

func (t JointType) String() string {
	switch t {
	case DCMotor:
		return "dc"
	case ServoMotor:
		return "servo"
	case StepperMotor:
		return "stepper"
	default:
		return "unknown"
	}
}

// Limits holds the physical bounds of one joint. Immutable after construction;
// every commanded or estimated value is clamped against these before being applied.
type Limits struct {
	PositionMin     float64 `json:"position_min"`
	PositionMax     float64 `json:"position_max"`
	MaxVelocity     float64 `json:"max_velocity"`
	MaxAcceleration float64 `json:"max_acceleration"`
	MaxJerk         float64 `json:"max_jerk"`
	MaxTorque       float64 `json:"max_torque"`
}

// Validate checks internal consistency of the limit set.
func (l Limits) Validate() error {
	if l.PositionMax <= l.PositionMin {
		return fmt.Errorf("position_max %.3f must exceed position_min %.3f", l.PositionMax, l.PositionMin)
	}
	if l.MaxVelocity <= 0 || l.MaxAcceleration <= 0 || l.MaxTorque <= 0 {
		return fmt.Errorf("max_velocity, max_acceleration and max_torque must be positive")
	}
	return nil
}

// ClampPosition bounds p to [PositionMin, PositionMax].
func (l Limits) ClampPosition(p float64) float64 {
	return Clamp(p, l.PositionMin, l.PositionMax)
}

// ClampVelocity bounds v to [-MaxVelocity, MaxVelocity].
func (l Limits) ClampVelocity(v float64) float64 {
	return Clamp(v, -l.MaxVelocity, l.MaxVelocity)
}

// ClampTorque bounds tau to [-MaxTorque, MaxTorque].
func (l Limits) ClampTorque(tau float64) float64 {
	return Clamp(tau, -l.MaxTorque, l.MaxTorque)
}

// ContainsPosition reports whether p lies inside the position range.
func (l Limits) ContainsPosition(p float64) bool {
	return p >= l.PositionMin && p <= l.PositionMax
}

// State is the full runtime record of one joint. It is owned exclusively by the
// controller driving the joint and mutated only inside that controller's tick.
type State struct {
	ID   int
	Type JointType

	Position     float64
	Velocity     float64
	Acceleration float64
	Torque       float64

	TargetPosition float64
	TargetVelocity float64
	TargetTorque   float64

	Enabled     bool
	Faulted     bool
	FaultReason string
}

// SensorFeedback carries one tick of measurements for a joint. Position is
// mandatory; velocity and torque are optional and estimated from position
// deltas when the valid flags are unset.
type SensorFeedback struct {
	Position      float64
	Velocity      float64
	Torque        float64
	VelocityValid bool
	TorqueValid   bool
}

// CommandMode selects the quantity an actuator command carries.
type CommandMode int

const (
	CommandVelocity CommandMode = iota
	CommandTorque
)

func (m CommandMode) String() string {
	if m == CommandTorque {
		return "torque"
	}
	return "velocity"
}

// ActuatorCommand is the per-tick output handed to the hardware abstraction layer.
type ActuatorCommand struct {
	JointID int
	Mode    CommandMode
	Value   float64
}

// Diagnostics is an in-memory snapshot of one joint for external reporting.
type Diagnostics struct {
	ID            int
	State         string
	Position      float64
	Velocity      float64
	Torque        float64
	TrackingError float64
	Enabled       bool
	Faulted       bool
	FaultReason   string
}

// Clamp bounds value between lo and hi.
func Clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}
