package motor

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"arm-motion-core/joint"
	"arm-motion-core/utils"
)

// Sentinel errors for command rejection.
var (
	ErrUnknownMotor  = errors.New("unknown motor")
	ErrTargetOutside = errors.New("target outside position limits")
	ErrFaulted       = errors.New("motor faulted")
	ErrEmergencyStop = errors.New("emergency stop active")
)

// State is the per-motor control state machine.
type State int

const (
	StateIdle State = iota
	StateMoving
	StateVelocityControl
	StateTorqueControl
	StateFault
	StateEmergencyStop
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateMoving:
		return "MOVING"
	case StateVelocityControl:
		return "VELOCITY_CONTROL"
	case StateTorqueControl:
		return "TORQUE_CONTROL"
	case StateFault:
		return "FAULT"
	case StateEmergencyStop:
		return "EMERGENCY_STOP"
	default:
		return "UNKNOWN"
	}
}

// Overshoot margin before a velocity or torque excess trips a fault.
const faultMargin = 1.1

// Config describes one motor.
type Config struct {
	ID              int              `json:"id"`
	Type            joint.JointType  `json:"-"`
	Limits          joint.Limits     `json:"limits"`
	PID             joint.PIDConfig  `json:"pid"`
	DefaultProfile  ProfileType      `json:"-"`
	InitialPosition float64          `json:"initial_position"`
}

type motor struct {
	cfg     Config
	state   State
	js      joint.State
	pid     *joint.PID
	profile *Profile
	elapsed float64
}

// Driver owns a set of motors and advances them on a shared periodic tick.
// A single mutex guards all motor state so commands, Update and EmergencyStop
// may be called from different goroutines.
type Driver struct {
	mu     sync.Mutex
	motors []*motor
	sink   joint.EventSink
	log    *utils.Logger
}

// NewDriver validates every motor config and builds the driver.
func NewDriver(cfgs []Config, sink joint.EventSink, log *utils.Logger) (*Driver, error) {
	if len(cfgs) == 0 {
		return nil, fmt.Errorf("driver needs at least one motor")
	}
	if sink == nil {
		sink = joint.NopSink{}
	}
	motors := make([]*motor, len(cfgs))
	for i, cfg := range cfgs {
		if err := cfg.Limits.Validate(); err != nil {
			return nil, fmt.Errorf("motor %d limits: %w", cfg.ID, err)
		}
		pidCfg := cfg.PID
		if pidCfg.OutputMax == 0 && pidCfg.OutputMin == 0 {
			pidCfg.OutputMax = cfg.Limits.MaxVelocity
			pidCfg.OutputMin = -cfg.Limits.MaxVelocity
		}
		motors[i] = &motor{
			cfg:   cfg,
			state: StateIdle,
			pid:   joint.NewPID(pidCfg),
			js: joint.State{
				ID:       cfg.ID,
				Type:     cfg.Type,
				Position: cfg.InitialPosition,
				Enabled:  true,
			},
		}
	}
	return &Driver{motors: motors, sink: sink, log: log}, nil
}

// DOF returns the number of motors.
func (d *Driver) DOF() int { return len(d.motors) }

func (d *Driver) motorByID(id int) (*motor, error) {
	for _, m := range d.motors {
		if m.cfg.ID == id {
			return m, nil
		}
	}
	return nil, fmt.Errorf("motor %d: %w", id, ErrUnknownMotor)
}

// MoveToPosition starts a profiled move. Targets outside the position limits
// are rejected rather than clamped.
func (d *Driver) MoveToPosition(id int, target float64, typ ProfileType) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.moveToPosition(id, target, typ)
}

func (d *Driver) moveToPosition(id int, target float64, typ ProfileType) error {
	m, err := d.motorByID(id)
	if err != nil {
		return err
	}
	if err := m.rejectTerminal(); err != nil {
		return err
	}
	if !m.cfg.Limits.ContainsPosition(target) {
		return fmt.Errorf("motor %d target %.4f outside [%.4f, %.4f]: %w",
			id, target, m.cfg.Limits.PositionMin, m.cfg.Limits.PositionMax, ErrTargetOutside)
	}

	profile, err := NewProfile(m.js.Position, target, m.cfg.Limits, typ)
	if err != nil {
		return fmt.Errorf("motor %d profile: %w", id, err)
	}

	m.profile = profile
	m.elapsed = 0
	m.js.TargetPosition = target
	m.pid.Reset()
	m.setState(d, StateMoving)
	d.log.Debug("motor %d move to %.4f (%s, %.3fs)", id, target, profile.Type, profile.TotalTime)
	return nil
}

// SetVelocity switches the motor into direct velocity tracking.
func (d *Driver) SetVelocity(id int, velocity float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, err := d.motorByID(id)
	if err != nil {
		return err
	}
	if err := m.rejectTerminal(); err != nil {
		return err
	}
	m.profile = nil
	m.js.TargetVelocity = m.cfg.Limits.ClampVelocity(velocity)
	m.setState(d, StateVelocityControl)
	return nil
}

// SetTorque switches the motor into direct torque tracking.
func (d *Driver) SetTorque(id int, torque float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, err := d.motorByID(id)
	if err != nil {
		return err
	}
	if err := m.rejectTerminal(); err != nil {
		return err
	}
	m.profile = nil
	m.js.TargetTorque = m.cfg.Limits.ClampTorque(torque)
	m.setState(d, StateTorqueControl)
	return nil
}

func (m *motor) rejectTerminal() error {
	switch m.state {
	case StateFault:
		return fmt.Errorf("motor %d (%s): %w", m.cfg.ID, m.js.FaultReason, ErrFaulted)
	case StateEmergencyStop:
		return fmt.Errorf("motor %d: %w", m.cfg.ID, ErrEmergencyStop)
	}
	return nil
}

func (m *motor) setState(d *Driver, next State) {
	if m.state == next {
		return
	}
	prev := m.state
	m.state = next
	d.sink.Publish(joint.Event{
		Kind:      joint.EventStateChange,
		JointID:   m.cfg.ID,
		Reason:    fmt.Sprintf("%s -> %s", prev, next),
		Timestamp: time.Now(),
	})
}

// Update advances every motor by dt and returns the actuator commands for this
// tick. The per-motor order is: apply sensor feedback, compute the control
// output, clamp against limits, run fault detection. feedback may be nil (or
// have gaps) in which case motion is simulated by integrating the commands.
func (d *Driver) Update(dt float64, feedback []joint.SensorFeedback) []joint.ActuatorCommand {
	d.mu.Lock()
	defer d.mu.Unlock()
	cmds := make([]joint.ActuatorCommand, 0, len(d.motors))
	for i, m := range d.motors {
		var fb *joint.SensorFeedback
		if i < len(feedback) {
			fb = &feedback[i]
		}
		cmds = append(cmds, d.updateMotor(m, dt, fb))
	}
	return cmds
}

func (d *Driver) updateMotor(m *motor, dt float64, fb *joint.SensorFeedback) joint.ActuatorCommand {
	// 1. Read sensor feedback; estimate missing quantities from deltas.
	if fb != nil {
		prev := m.js.Position
		m.js.Position = fb.Position
		if fb.VelocityValid {
			m.js.Velocity = fb.Velocity
		} else if dt > 0 {
			m.js.Velocity = (fb.Position - prev) / dt
		}
		if fb.TorqueValid {
			m.js.Torque = fb.Torque
		}
	}

	// 2. Compute the control output for the current state.
	cmd := joint.ActuatorCommand{JointID: m.cfg.ID, Mode: joint.CommandVelocity}
	switch m.state {
	case StateMoving:
		m.elapsed += dt
		pPos, pVel, pAcc := m.profile.Sample(m.elapsed)
		correction := m.pid.Update(pPos, m.js.Position, dt)
		m.js.TargetPosition = pPos
		m.js.TargetVelocity = m.cfg.Limits.ClampVelocity(pVel + correction)
		m.js.Acceleration = pAcc
		cmd.Value = m.js.TargetVelocity
		if m.profile.Done(m.elapsed) {
			m.profile = nil
			m.js.TargetVelocity = 0
			cmd.Value = 0
			m.setState(d, StateIdle)
		}

	case StateVelocityControl:
		m.js.TargetVelocity = m.cfg.Limits.ClampVelocity(m.js.TargetVelocity)
		cmd.Value = m.js.TargetVelocity

	case StateTorqueControl:
		m.js.TargetTorque = m.cfg.Limits.ClampTorque(m.js.TargetTorque)
		cmd.Mode = joint.CommandTorque
		cmd.Value = m.js.TargetTorque

	default:
		// IDLE, FAULT, EMERGENCY_STOP command zero velocity.
		cmd.Value = 0
	}

	// 3. Integrate simulated physics when no feedback source drives the motor.
	if fb == nil && m.js.Enabled {
		if m.state == StateTorqueControl {
			m.js.Torque = m.js.TargetTorque
			m.js.Velocity += m.js.Torque * dt // unit inertia model
			m.js.Velocity = m.cfg.Limits.ClampVelocity(m.js.Velocity)
		} else {
			m.js.Velocity = cmd.Value
		}
		m.js.Position += m.js.Velocity * dt
	}

	// 4. Fault detection.
	d.checkFaults(m)
	if m.state == StateFault || m.state == StateEmergencyStop {
		cmd.Mode = joint.CommandVelocity
		cmd.Value = 0
	}
	return cmd
}

func (d *Driver) checkFaults(m *motor) {
	if m.state == StateFault || m.state == StateEmergencyStop {
		return
	}
	var reason string
	switch {
	case !m.cfg.Limits.ContainsPosition(m.js.Position):
		reason = fmt.Sprintf("position %.4f outside [%.4f, %.4f]",
			m.js.Position, m.cfg.Limits.PositionMin, m.cfg.Limits.PositionMax)
	case math.Abs(m.js.Velocity) > faultMargin*m.cfg.Limits.MaxVelocity:
		reason = fmt.Sprintf("velocity %.4f exceeds %.4f", m.js.Velocity, faultMargin*m.cfg.Limits.MaxVelocity)
	case math.Abs(m.js.Torque) > faultMargin*m.cfg.Limits.MaxTorque:
		reason = fmt.Sprintf("torque %.4f exceeds %.4f", m.js.Torque, faultMargin*m.cfg.Limits.MaxTorque)
	default:
		return
	}

	m.state = StateFault
	m.js.Enabled = false
	m.js.Faulted = true
	m.js.FaultReason = reason
	m.js.TargetVelocity = 0
	m.js.TargetTorque = 0
	m.profile = nil
	d.log.Warn("motor %d fault: %s", m.cfg.ID, reason)
	d.sink.Publish(joint.Event{
		Kind:      joint.EventFault,
		JointID:   m.cfg.ID,
		Reason:    reason,
		Timestamp: time.Now(),
	})
}

// EmergencyStop zeroes velocity, acceleration and torque targets for every
// motor before returning. It preempts any other state, including FAULT.
func (d *Driver) EmergencyStop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, m := range d.motors {
		m.profile = nil
		m.js.TargetVelocity = 0
		m.js.TargetTorque = 0
		m.js.Acceleration = 0
		m.state = StateEmergencyStop
	}
	d.log.Warn("emergency stop: all %d motors halted", len(d.motors))
	d.sink.Publish(joint.Event{
		Kind:      joint.EventEmergencyStop,
		JointID:   -1,
		Reason:    "emergency stop commanded",
		Timestamp: time.Now(),
	})
}

// ClearFault acknowledges a fault and returns the motor to IDLE.
func (d *Driver) ClearFault(id int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, err := d.motorByID(id)
	if err != nil {
		return err
	}
	if m.state != StateFault {
		return nil
	}
	m.js.Faulted = false
	m.js.FaultReason = ""
	m.js.Enabled = true
	m.state = StateIdle
	d.sink.Publish(joint.Event{
		Kind:      joint.EventFaultCleared,
		JointID:   id,
		Timestamp: time.Now(),
	})
	return nil
}

// Enable re-arms a motor after an emergency stop.
func (d *Driver) Enable(id int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, err := d.motorByID(id)
	if err != nil {
		return err
	}
	if m.state == StateFault {
		return fmt.Errorf("motor %d: clear fault before enabling: %w", id, ErrFaulted)
	}
	m.js.Enabled = true
	if m.state == StateEmergencyStop {
		m.setState(d, StateIdle)
	}
	return nil
}

// MotorState returns the state machine state of a motor.
func (d *Driver) MotorState(id int) (State, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, err := d.motorByID(id)
	if err != nil {
		return StateIdle, err
	}
	return m.state, nil
}

// JointState returns a copy of the joint record.
func (d *Driver) JointState(id int) (joint.State, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, err := d.motorByID(id)
	if err != nil {
		return joint.State{}, err
	}
	return m.js, nil
}

// SetJointTargets starts profiled moves toward the given positions, one per
// motor in index order. Implements the supervisor's ActuatorController.
func (d *Driver) SetJointTargets(positions []float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(positions) != len(d.motors) {
		return fmt.Errorf("got %d targets for %d motors", len(positions), len(d.motors))
	}
	for i, m := range d.motors {
		if err := d.moveToPosition(m.cfg.ID, positions[i], m.cfg.DefaultProfile); err != nil {
			return err
		}
	}
	return nil
}

// Diagnostics snapshots every motor for external reporting.
func (d *Driver) Diagnostics() []joint.Diagnostics {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]joint.Diagnostics, len(d.motors))
	for i, m := range d.motors {
		out[i] = joint.Diagnostics{
			ID:            m.cfg.ID,
			State:         m.state.String(),
			Position:      m.js.Position,
			Velocity:      m.js.Velocity,
			Torque:        m.js.Torque,
			TrackingError: m.js.TargetPosition - m.js.Position,
			Enabled:       m.js.Enabled,
			Faulted:       m.js.Faulted,
			FaultReason:   m.js.FaultReason,
		}
	}
	return out
}
