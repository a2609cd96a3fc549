package main

import (
	"encoding/json"
	"fmt"
	"os"

	"arm-motion-core/planner"
)

// Scenario is a sequence of Cartesian goals the arm visits in order.
type Scenario struct {
	Meta   ScenarioMeta   `json:"meta"`
	Timing ScenarioTiming `json:"timing"`
	Goals  []ScenarioGoal `json:"goals"`
}

// ScenarioMeta contains scenario metadata.
type ScenarioMeta struct {
	Name        string `json:"name"`
	Version     int    `json:"version"`
	Description string `json:"description"`
}

// ScenarioTiming defines timing parameters.
type ScenarioTiming struct {
	GoalTimeoutS float64 `json:"goal_timeout_s"` // default 30
}

// ScenarioGoal is one Cartesian target with an optional dwell after settling
// and an optional per-goal planning algorithm override.
type ScenarioGoal struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
	DwellS    float64 `json:"dwell_s,omitempty"`
	Algorithm string  `json:"algorithm,omitempty"`
	Comment   string  `json:"comment,omitempty"`
}

// LoadScenario loads a scenario from a JSON file.
func LoadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("read file: %w", err)
	}

	var scen Scenario
	if err := json.Unmarshal(data, &scen); err != nil {
		return Scenario{}, fmt.Errorf("unmarshal: %w", err)
	}

	if len(scen.Goals) == 0 {
		return Scenario{}, fmt.Errorf("scenario %q has no goals", scen.Meta.Name)
	}
	if scen.Timing.GoalTimeoutS < 0 {
		return Scenario{}, fmt.Errorf("invalid goal_timeout_s: %f", scen.Timing.GoalTimeoutS)
	}
	if scen.Timing.GoalTimeoutS == 0 {
		scen.Timing.GoalTimeoutS = 30
	}
	for i, g := range scen.Goals {
		if g.DwellS < 0 {
			return Scenario{}, fmt.Errorf("goal %d has negative dwell_s", i)
		}
		if g.Algorithm != "" {
			if _, err := planner.ParseAlgorithm(g.Algorithm); err != nil {
				return Scenario{}, fmt.Errorf("goal %d: %w", i, err)
			}
		}
	}
	return scen, nil
}
