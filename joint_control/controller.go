package control

import (
	"fmt"
	"math"
	"time"

	"arm-motion-core/joint"
	"arm-motion-core/utils"
)

const gravity = 9.81

// Arm is the whole-arm torque-mode controller: per-joint PID laws plus
// gravity and friction compensation. It complements the profile-tracking
// motor driver and shares its actuator-controller surface.
type Arm struct {
	cfg      ArmConfig
	modes    []Mode
	states   []joint.State
	pidPos   []*joint.PID
	pidVel   []*joint.PID
	sink     joint.EventSink
	log      *utils.Logger
	estopped bool
}

// NewArm validates the configuration and builds the controller.
func NewArm(cfg ArmConfig, sink joint.EventSink, log *utils.Logger) (*Arm, error) {
	if len(cfg.Joints) == 0 {
		return nil, fmt.Errorf("arm controller needs at least one joint")
	}
	if sink == nil {
		sink = joint.NopSink{}
	}
	cfg.applyDefaults()

	n := len(cfg.Joints)
	a := &Arm{
		cfg:    cfg,
		modes:  make([]Mode, n),
		states: make([]joint.State, n),
		pidPos: make([]*joint.PID, n),
		pidVel: make([]*joint.PID, n),
		sink:   sink,
		log:    log,
	}
	for i, jp := range cfg.Joints {
		if err := jp.Limits.Validate(); err != nil {
			return nil, fmt.Errorf("joint %d limits: %w", i, err)
		}
		pidCfg := jp.PID
		if pidCfg.OutputMax == 0 && pidCfg.OutputMin == 0 {
			pidCfg.OutputMax = jp.Limits.MaxTorque
			pidCfg.OutputMin = -jp.Limits.MaxTorque
		}
		a.pidPos[i] = joint.NewPID(pidCfg)

		// Velocity mode runs PI only, at half strength.
		velCfg := pidCfg
		velCfg.Kp /= 2
		velCfg.Ki /= 2
		velCfg.Kd = 0
		a.pidVel[i] = joint.NewPID(velCfg)

		a.states[i] = joint.State{ID: i, Position: jp.InitialPosition, Enabled: true}
	}
	return a, nil
}

// DOF returns the number of controlled joints.
func (a *Arm) DOF() int { return len(a.states) }

// SetMode switches one joint's control law and resets its integrators.
func (a *Arm) SetMode(id int, mode Mode) error {
	if id < 0 || id >= len(a.modes) {
		return fmt.Errorf("joint %d out of range", id)
	}
	if a.modes[id] != mode {
		a.modes[id] = mode
		a.pidPos[id].Reset()
		a.pidVel[id].Reset()
	}
	return nil
}

// SetJointTargets puts every joint in POSITION mode tracking the given
// angles. Implements the supervisor's ActuatorController.
func (a *Arm) SetJointTargets(positions []float64) error {
	if len(positions) != len(a.states) {
		return fmt.Errorf("got %d targets for %d joints", len(positions), len(a.states))
	}
	if a.estopped {
		return fmt.Errorf("arm controller in emergency stop")
	}
	for i := range a.states {
		if err := a.SetMode(i, ModePosition); err != nil {
			return err
		}
		a.states[i].TargetPosition = a.cfg.Joints[i].Limits.ClampPosition(positions[i])
	}
	return nil
}

// SetVelocityTarget sets one joint's velocity setpoint in VELOCITY mode.
func (a *Arm) SetVelocityTarget(id int, velocity float64) error {
	if err := a.SetMode(id, ModeVelocity); err != nil {
		return err
	}
	a.states[id].TargetVelocity = a.cfg.Joints[id].Limits.ClampVelocity(velocity)
	return nil
}

// SetTorqueTarget sets one joint's torque setpoint in TORQUE mode.
func (a *Arm) SetTorqueTarget(id int, torque float64) error {
	if err := a.SetMode(id, ModeTorque); err != nil {
		return err
	}
	a.states[id].TargetTorque = a.cfg.Joints[id].Limits.ClampTorque(torque)
	return nil
}

// SetFeedforwardVelocity sets the velocity feedforward used in POSITION mode,
// typically the tagged waypoint velocity.
func (a *Arm) SetFeedforwardVelocity(id int, velocity float64) error {
	if id < 0 || id >= len(a.states) {
		return fmt.Errorf("joint %d out of range", id)
	}
	a.states[id].TargetVelocity = a.cfg.Joints[id].Limits.ClampVelocity(velocity)
	return nil
}

// Update runs one control tick: per joint it reads feedback, computes the
// mode's control torque, adds gravity and friction compensation, clamps to
// the torque limit and emits the command. The safety check only logs; it
// never halts the arm.
func (a *Arm) Update(dt float64, feedback []joint.SensorFeedback) []joint.ActuatorCommand {
	cmds := make([]joint.ActuatorCommand, len(a.states))
	for i := range a.states {
		js := &a.states[i]
		jp := a.cfg.Joints[i]

		// Read feedback; estimate velocity from the position delta if absent.
		if i < len(feedback) {
			fb := feedback[i]
			prev := js.Position
			js.Position = fb.Position
			if fb.VelocityValid {
				js.Velocity = fb.Velocity
			} else if dt > 0 {
				js.Velocity = (fb.Position - prev) / dt
			}
			if fb.TorqueValid {
				js.Torque = fb.Torque
			}
		}

		var torque float64
		if !a.estopped {
			switch a.modes[i] {
			case ModePosition:
				torque = a.pidPos[i].Update(js.TargetPosition, js.Position, dt)
				torque += a.cfg.VelocityFeedforward * js.TargetVelocity
			case ModeVelocity:
				torque = a.pidVel[i].Update(js.TargetVelocity, js.Velocity, dt)
			case ModeTorque:
				torque = js.TargetTorque
			}

			torque += a.gravityCompensation(i)
			torque += a.frictionCompensation(js.Velocity)
		}

		torque = jp.Limits.ClampTorque(torque)
		js.Torque = torque
		cmds[i] = joint.ActuatorCommand{JointID: i, Mode: joint.CommandTorque, Value: torque}

		a.safetyCheck(i, js, jp)
	}
	return cmds
}

// gravityCompensation returns the holding torque for the simplified
// single-link model tau = m * g * r * cos(theta).
func (a *Arm) gravityCompensation(i int) float64 {
	jp := a.cfg.Joints[i]
	return jp.MassKg * gravity * jp.GravityArmM * math.Cos(a.states[i].Position)
}

// frictionCompensation returns the Coulomb + viscous torque opposing friction
// at the given joint velocity.
func (a *Arm) frictionCompensation(velocity float64) float64 {
	var tau float64
	if math.Abs(velocity) > a.cfg.FrictionVelEps {
		if velocity > 0 {
			tau += a.cfg.CoulombFrictionNm
		} else {
			tau -= a.cfg.CoulombFrictionNm
		}
	}
	return tau + a.cfg.ViscousFriction*velocity
}

func (a *Arm) safetyCheck(i int, js *joint.State, jp JointParams) {
	if a.modes[i] == ModePosition {
		if err := math.Abs(js.TargetPosition - js.Position); err > a.cfg.MaxPositionError {
			a.log.Warn("joint %d tracking error %.4f rad exceeds %.4f", i, err, a.cfg.MaxPositionError)
		}
	}
	if a.modes[i] == ModeVelocity {
		if err := math.Abs(js.TargetVelocity - js.Velocity); err > a.cfg.MaxVelocityError {
			a.log.Warn("joint %d velocity error %.4f rad/s exceeds %.4f", i, err, a.cfg.MaxVelocityError)
		}
	}
	if !jp.Limits.ContainsPosition(js.Position) {
		a.log.Warn("joint %d position %.4f outside [%.4f, %.4f]",
			i, js.Position, jp.Limits.PositionMin, jp.Limits.PositionMax)
	}
}

// EmergencyStop zeroes every target and forces zero torque output until
// Enable is called.
func (a *Arm) EmergencyStop() {
	a.estopped = true
	for i := range a.states {
		a.states[i].TargetPosition = a.states[i].Position
		a.states[i].TargetVelocity = 0
		a.states[i].TargetTorque = 0
		a.states[i].Acceleration = 0
	}
	a.sink.Publish(joint.Event{
		Kind:      joint.EventEmergencyStop,
		JointID:   -1,
		Reason:    "emergency stop commanded",
		Timestamp: time.Now(),
	})
}

// Enable re-arms the controller after an emergency stop.
func (a *Arm) Enable() {
	a.estopped = false
	for i := range a.states {
		a.pidPos[i].Reset()
		a.pidVel[i].Reset()
	}
}

// Diagnostics snapshots every joint for external reporting.
func (a *Arm) Diagnostics() []joint.Diagnostics {
	out := make([]joint.Diagnostics, len(a.states))
	for i, js := range a.states {
		state := a.modes[i].String()
		if a.estopped {
			state = "EMERGENCY_STOP"
		}
		out[i] = joint.Diagnostics{
			ID:            js.ID,
			State:         state,
			Position:      js.Position,
			Velocity:      js.Velocity,
			Torque:        js.Torque,
			TrackingError: js.TargetPosition - js.Position,
			Enabled:       js.Enabled && !a.estopped,
		}
	}
	return out
}
