package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang/geo/r3"
	"github.com/prometheus/client_golang/prometheus"

	"arm-motion-core/config"
	"arm-motion-core/joint"
	"arm-motion-core/joint_control"
	"arm-motion-core/kinematics"
	"arm-motion-core/metrics"
	"arm-motion-core/motor"
	"arm-motion-core/planner"
	"arm-motion-core/supervisor"
	"arm-motion-core/utils"
)

type RunnerConfig struct {
	RobotPath    string
	ScenarioPath string
	Interface    string // optional SocketCAN override
	LogLevel     string // optional override of the robot's log level
}

// Runner wires the robot description into a running motion stack and executes
// a goal scenario against it.
type Runner struct {
	cfg   RunnerConfig
	log   *utils.Logger
	robot config.Robot
	scen  Scenario

	sup    *supervisor.Supervisor
	sink   *joint.ChannelSink
	met    *metrics.Metrics
	bridge *supervisor.CANBridge
	bus    *utils.SocketCANBus
}

func NewRunner(ctx context.Context, cfg RunnerConfig, log *utils.Logger) (*Runner, error) {
	robot, err := config.Load(cfg.RobotPath)
	if err != nil {
		return nil, fmt.Errorf("load robot: %w", err)
	}
	scen, err := LoadScenario(cfg.ScenarioPath)
	if err != nil {
		return nil, fmt.Errorf("load scenario: %w", err)
	}

	switch {
	case cfg.LogLevel != "":
		log.SetMinLevel(utils.ParseLogLevel(cfg.LogLevel))
	case robot.Log.Level != "":
		log.SetMinLevel(utils.ParseLogLevel(robot.Log.Level))
	}

	model, err := robot.BuildModel()
	if err != nil {
		return nil, fmt.Errorf("kinematic model: %w", err)
	}

	sink := joint.NewChannelSink(256)
	solver, err := kinematics.NewSolver(model, robot.JointLimits(), robot.Kinematics, log)
	if err != nil {
		return nil, fmt.Errorf("solver: %w", err)
	}

	plan, err := planner.NewPlanner(robot.BuildWorld(), robot.Planner.Options, sink, log)
	if err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}

	act, err := buildActuator(robot, sink, log)
	if err != nil {
		return nil, err
	}

	met := metrics.New(prometheus.NewRegistry())
	sup, err := supervisor.New(supervisor.Config{
		ControlFrequencyHz: robot.Controller.ControlFrequencyHz,
		Algorithm:          robot.Algorithm(),
		SettleTolerance:    robot.Controller.SettleTolerance,
	}, solver, plan, act, sink, met, log)
	if err != nil {
		return nil, fmt.Errorf("supervisor: %w", err)
	}

	r := &Runner{
		cfg:   cfg,
		log:   log,
		robot: robot,
		scen:  scen,
		sup:   sup,
		sink:  sink,
		met:   met,
	}

	if robot.CAN.Enabled {
		iface := robot.CAN.Interface
		if cfg.Interface != "" {
			iface = cfg.Interface
		}
		bus, err := utils.DialSocketCAN(ctx, iface)
		if err != nil {
			return nil, fmt.Errorf("socketcan %s: %w", iface, err)
		}
		r.bus = bus
		r.bridge = supervisor.NewCANBridge(robot.DOF(), robot.CAN.CycleMS, bus, bus, log)
		log.Info("CAN boundary enabled on %s, %d joints, cycle %d ms", iface, robot.DOF(), robot.CAN.CycleMS)
	} else {
		log.Info("running fully simulated, %d joints", robot.DOF())
	}

	return r, nil
}

func buildActuator(robot config.Robot, sink joint.EventSink, log *utils.Logger) (supervisor.ActuatorController, error) {
	if robot.Controller.Mode == "torque" {
		arm, err := control.NewArm(robot.ArmConfig(), sink, log)
		if err != nil {
			return nil, fmt.Errorf("arm controller: %w", err)
		}
		return arm, nil
	}
	cfgs, err := robot.MotorConfigs()
	if err != nil {
		return nil, fmt.Errorf("motor configs: %w", err)
	}
	drv, err := motor.NewDriver(cfgs, sink, log)
	if err != nil {
		return nil, fmt.Errorf("motor driver: %w", err)
	}
	return drv, nil
}

func (r *Runner) Close() {
	if r.bus != nil {
		_ = r.bus.Close()
	}
}

// Run drives the scenario: the control loop and event pump run in the
// background while the goals execute sequentially in this goroutine.
func (r *Runner) Run(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var src supervisor.FeedbackSource
	var dst supervisor.CommandSink
	if r.bridge != nil {
		src, dst = r.bridge, r.bridge
		go r.bridge.ReceiveLoop(loopCtx)
	}

	loopErr := make(chan error, 1)
	go func() { loopErr <- r.sup.Run(loopCtx, src, dst) }()
	go r.pumpEvents(loopCtx)

	r.log.Info("Scenario %q v%d: %d goals, timeout %.1fs per goal",
		r.scen.Meta.Name, r.scen.Meta.Version, len(r.scen.Goals), r.scen.Timing.GoalTimeoutS)

	for i, g := range r.scen.Goals {
		goal := r3.Vector{X: g.X, Y: g.Y, Z: g.Z}
		r.log.Info("Goal %d/%d: (%.3f, %.3f, %.3f) %s", i+1, len(r.scen.Goals), g.X, g.Y, g.Z, g.Comment)

		var err error
		if g.Algorithm != "" {
			algo, perr := planner.ParseAlgorithm(g.Algorithm)
			if perr != nil {
				return fmt.Errorf("goal %d: %w", i+1, perr)
			}
			err = r.sup.MoveToUsing(ctx, goal, algo)
		} else {
			err = r.sup.MoveTo(ctx, goal)
		}
		if err != nil {
			return fmt.Errorf("goal %d: %w", i+1, err)
		}
		if err := r.awaitGoal(ctx, loopErr, i+1); err != nil {
			return err
		}
		if g.DwellS > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(g.DwellS * float64(time.Second))):
			}
		}
	}

	diag := r.sup.Diagnostics()
	r.log.Info("Scenario complete after %d ticks", diag.Ticks)
	for _, d := range diag.Joints {
		r.log.Info("joint %d: pos=%.4f rad vel=%.4f rad/s torque=%.2f Nm state=%s",
			d.ID, d.Position, d.Velocity, d.Torque, d.State)
	}
	return nil
}

func (r *Runner) awaitGoal(ctx context.Context, loopErr <-chan error, n int) error {
	timeout := time.After(time.Duration(r.scen.Timing.GoalTimeoutS * float64(time.Second)))
	poll := time.NewTicker(20 * time.Millisecond)
	defer poll.Stop()

	// Give the planning goroutine a tick to mark the motion in flight.
	started := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-loopErr:
			if errors.Is(err, context.Canceled) {
				return err
			}
			return fmt.Errorf("control loop died: %w", err)
		case <-timeout:
			return fmt.Errorf("goal %d not reached within %.1fs", n, r.scen.Timing.GoalTimeoutS)
		case <-poll.C:
			if !r.sup.Busy() && time.Since(started) > 100*time.Millisecond {
				return nil
			}
		}
	}
}

// pumpEvents forwards controller events to the log and the metrics counters.
func (r *Runner) pumpEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-r.sink.C:
			switch ev.Kind {
			case joint.EventFault:
				r.met.CountFault(ev.JointID)
				r.log.Error("fault on joint %d: %s", ev.JointID, ev.Reason)
			case joint.EventEmergencyStop:
				r.log.Critical("emergency stop: %s", ev.Reason)
			case joint.EventFaultCleared:
				r.log.Info("fault cleared on joint %d", ev.JointID)
			default:
				r.log.Debug("event %v: %s", ev.Kind, ev.Reason)
			}
		}
	}
}
