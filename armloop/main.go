package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"arm-motion-core/utils"
)

func main() {
	var (
		robotPath = flag.String("robot", "config/robots/bench_arm.json", "Robot description JSON file")
		scenPath  = flag.String("scenario", "armloop/pick_sequence.json", "Motion scenario JSON file")
		iface     = flag.String("iface", "", "Override the SocketCAN interface from the robot description")
		logLevel  = flag.String("log", "", "Override the robot description's log level (trace|debug|info|warn|error|critical)")
	)
	flag.Parse()

	log, err := utils.NewFileLogger("armloop.log", utils.ParseLogLevel(*logLevel), true)
	if err != nil {
		_, _ = os.Stderr.WriteString("ERROR: cannot open armloop.log: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Close()

	cfg := RunnerConfig{
		RobotPath:    *robotPath,
		ScenarioPath: *scenPath,
		Interface:    *iface,
		LogLevel:     *logLevel,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner, err := NewRunner(ctx, cfg, log)
	if err != nil {
		log.Critical("Startup failed: %v", err)
		os.Exit(1)
	}
	defer runner.Close()

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Critical("Run failed: %v", err)
		os.Exit(1)
	}
}
