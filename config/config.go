// Package config loads and validates the robot description that wires the
// motion core together.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"arm-motion-core/joint"
	"arm-motion-core/joint_control"
	"arm-motion-core/kinematics"
	"arm-motion-core/motor"
	"arm-motion-core/planner"
)

// JointConfig describes one joint of the robot.
type JointConfig struct {
	Limits          joint.Limits    `json:"limits"`
	PID             joint.PIDConfig `json:"pid"`
	MassKg          float64         `json:"mass_kg"`
	GravityArmM     float64         `json:"gravity_arm_m"`
	InitialPosition float64         `json:"initial_position"`
}

// ControllerConfig selects and tunes the actuator controller.
type ControllerConfig struct {
	// Mode is "profile" for the profiled motor driver or "torque" for the
	// gravity-compensating arm controller.
	Mode               string  `json:"mode"`
	ControlFrequencyHz float64 `json:"control_frequency_hz"`
	SettleTolerance    float64 `json:"settle_tolerance"`
	Profile            string  `json:"profile"` // trapezoidal, triangular or scurve
}

// WorldConfig describes the collision environment.
type WorldConfig struct {
	GridWidth   int                `json:"grid_width"`
	GridHeight  int                `json:"grid_height"`
	Resolution  float64            `json:"resolution"`
	Occupied    [][2]int           `json:"occupied,omitempty"`
	Obstacles   []planner.Obstacle `json:"obstacles,omitempty"`
	RobotRadius float64            `json:"robot_radius"`
}

// PlannerConfig selects the search algorithm and its options.
type PlannerConfig struct {
	Algorithm string          `json:"algorithm"`
	Options   planner.Options `json:"options"`
	World     WorldConfig     `json:"world"`
}

// CANConfig enables the bus boundary toward real hardware.
type CANConfig struct {
	Enabled   bool   `json:"enabled"`
	Interface string `json:"interface"`
	CycleMS   int    `json:"cycle_ms"`
}

// LogConfig sets the minimum log level for the robot; a -log flag on the
// command line takes precedence.
type LogConfig struct {
	Level string `json:"level"`
}

// Robot is the complete robot description.
type Robot struct {
	Name string `json:"name"`

	// LinkLengths builds the articulated model; DHLinks overrides it with
	// explicit rows when both are present.
	LinkLengths []float64           `json:"link_lengths,omitempty"`
	DHLinks     []kinematics.DHLink `json:"dh_links,omitempty"`

	Joints     []JointConfig     `json:"joints"`
	Kinematics kinematics.Config `json:"kinematics"`
	Controller ControllerConfig  `json:"controller"`
	Planner    PlannerConfig     `json:"planner"`
	CAN        CANConfig         `json:"can"`
	Log        LogConfig         `json:"log"`
}

// Load reads and validates a robot description from a JSON file.
func Load(path string) (Robot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Robot{}, fmt.Errorf("read file: %w", err)
	}

	var r Robot
	if err := json.Unmarshal(data, &r); err != nil {
		return Robot{}, fmt.Errorf("unmarshal: %w", err)
	}
	if err := r.Validate(); err != nil {
		return Robot{}, err
	}
	return r, nil
}

// Validate checks the description for internal consistency.
func (r *Robot) Validate() error {
	dof := len(r.DHLinks)
	if dof == 0 {
		dof = len(r.LinkLengths)
	}
	if dof < 2 {
		return fmt.Errorf("robot needs at least two links, got %d", dof)
	}
	if len(r.Joints) != dof {
		return fmt.Errorf("robot has %d links but %d joint configs", dof, len(r.Joints))
	}
	for i, jc := range r.Joints {
		if err := jc.Limits.Validate(); err != nil {
			return fmt.Errorf("joint %d limits: %v", i, err)
		}
	}
	switch r.Controller.Mode {
	case "", "profile", "torque":
	default:
		return fmt.Errorf("unknown controller mode %q", r.Controller.Mode)
	}
	if r.Controller.ControlFrequencyHz < 0 {
		return fmt.Errorf("invalid control_frequency_hz: %f", r.Controller.ControlFrequencyHz)
	}
	if r.Planner.Algorithm != "" {
		if _, err := planner.ParseAlgorithm(r.Planner.Algorithm); err != nil {
			return err
		}
	}
	switch r.Log.Level {
	case "", "trace", "debug", "info", "warn", "warning", "error", "critical":
	default:
		return fmt.Errorf("unknown log level %q", r.Log.Level)
	}
	if r.CAN.Enabled {
		if r.CAN.Interface == "" {
			return fmt.Errorf("can.enabled requires can.interface")
		}
		if r.CAN.CycleMS <= 0 {
			return fmt.Errorf("invalid can.cycle_ms: %d", r.CAN.CycleMS)
		}
	}
	return nil
}

// DOF returns the robot's joint count.
func (r *Robot) DOF() int {
	if len(r.DHLinks) > 0 {
		return len(r.DHLinks)
	}
	return len(r.LinkLengths)
}

// BuildModel constructs the kinematic model from the description.
func (r *Robot) BuildModel() (*kinematics.Model, error) {
	if len(r.DHLinks) > 0 {
		return kinematics.NewModel(r.DHLinks)
	}
	return kinematics.NewArticulatedModel(r.LinkLengths)
}

// JointLimits collects the per-joint limit sets in joint order.
func (r *Robot) JointLimits() []joint.Limits {
	out := make([]joint.Limits, len(r.Joints))
	for i, jc := range r.Joints {
		out[i] = jc.Limits
	}
	return out
}

// MotorConfigs maps the description onto the profiled motor driver.
func (r *Robot) MotorConfigs() ([]motor.Config, error) {
	profile, err := parseProfile(r.Controller.Profile)
	if err != nil {
		return nil, err
	}
	out := make([]motor.Config, len(r.Joints))
	for i, jc := range r.Joints {
		out[i] = motor.Config{
			ID:              i,
			Type:            joint.ServoMotor,
			Limits:          jc.Limits,
			PID:             jc.PID,
			DefaultProfile:  profile,
			InitialPosition: jc.InitialPosition,
		}
	}
	return out, nil
}

// ArmConfig maps the description onto the torque-mode arm controller.
func (r *Robot) ArmConfig() control.ArmConfig {
	cfg := control.ArmConfig{}
	for _, jc := range r.Joints {
		cfg.Joints = append(cfg.Joints, control.JointParams{
			Limits:          jc.Limits,
			PID:             jc.PID,
			MassKg:          jc.MassKg,
			GravityArmM:     jc.GravityArmM,
			InitialPosition: jc.InitialPosition,
		})
	}
	return cfg
}

// BuildWorld constructs the planner's collision environment.
func (r *Robot) BuildWorld() *planner.World {
	wc := r.Planner.World
	w := &planner.World{
		Obstacles:   wc.Obstacles,
		RobotRadius: wc.RobotRadius,
	}
	if wc.GridWidth > 0 && wc.GridHeight > 0 && wc.Resolution > 0 {
		grid := planner.NewOccupancyGrid(wc.GridWidth, wc.GridHeight, wc.Resolution)
		for _, cell := range wc.Occupied {
			grid.SetOccupied(cell[0], cell[1])
		}
		w.Grid = grid
	}
	return w
}

// Algorithm returns the configured planning algorithm, defaulting to A* on
// grid worlds and RRT otherwise.
func (r *Robot) Algorithm() planner.Algorithm {
	if r.Planner.Algorithm != "" {
		algo, err := planner.ParseAlgorithm(r.Planner.Algorithm)
		if err == nil {
			return algo
		}
	}
	if r.Planner.World.GridWidth > 0 {
		return planner.AlgoAStar
	}
	return planner.AlgoRRT
}

func parseProfile(s string) (motor.ProfileType, error) {
	switch s {
	case "", "trapezoidal":
		return motor.ProfileTrapezoidal, nil
	case "triangular":
		return motor.ProfileTriangular, nil
	case "scurve", "s_curve":
		return motor.ProfileSCurve, nil
	}
	return motor.ProfileTrapezoidal, fmt.Errorf("unknown velocity profile %q", s)
}
