package joint

// PIDConfig holds gains and saturation bounds for one PID loop.
type PIDConfig struct {
	Kp            float64 `json:"kp"`
	Ki            float64 `json:"ki"`
	Kd            float64 `json:"kd"`
	OutputMin     float64 `json:"output_min"`
	OutputMax     float64 `json:"output_max"`
	IntegralLimit float64 `json:"integral_limit"`
}

// PID implements a discrete PID loop with integral clamping and back-calculation
// anti-windup. |integral| <= IntegralLimit holds after every Update.
type PID struct {
	cfg PIDConfig

	integral    float64
	prevError   float64
	initialized bool
}

// NewPID creates a PID loop with the given configuration.
func NewPID(cfg PIDConfig) *PID {
	return &PID{cfg: cfg}
}

// Reset clears accumulated state.
func (pid *PID) Reset() {
	pid.integral = 0
	pid.prevError = 0
	pid.initialized = false
}

// Update computes the control output for the given setpoint and measurement.
func (pid *PID) Update(target, measured, dt float64) float64 {
	err := target - measured

	if !pid.initialized {
		pid.prevError = err
		pid.initialized = true
	}

	p := pid.cfg.Kp * err

	pid.integral += err * dt
	pid.integral = Clamp(pid.integral, -pid.cfg.IntegralLimit, pid.cfg.IntegralLimit)
	i := pid.cfg.Ki * pid.integral

	// Derivative on error to avoid derivative kick on setpoint changes.
	var d float64
	if dt > 0 {
		d = pid.cfg.Kd * (err - pid.prevError) / dt
	}

	out := p + i + d

	// Saturate and back-calculate the integral so it does not wind up
	// while the output is pinned at a bound.
	if out > pid.cfg.OutputMax {
		out = pid.cfg.OutputMax
		if pid.cfg.Ki != 0 {
			pid.integral = Clamp((out-p-d)/pid.cfg.Ki, -pid.cfg.IntegralLimit, pid.cfg.IntegralLimit)
		}
	} else if out < pid.cfg.OutputMin {
		out = pid.cfg.OutputMin
		if pid.cfg.Ki != 0 {
			pid.integral = Clamp((out-p-d)/pid.cfg.Ki, -pid.cfg.IntegralLimit, pid.cfg.IntegralLimit)
		}
	}

	pid.prevError = err
	return out
}

// Diagnostics reports the internal PID terms for logging.
func (pid *PID) Diagnostics() PIDDiagnostics {
	return PIDDiagnostics{
		Error:    pid.prevError,
		Integral: pid.integral,
		P:        pid.cfg.Kp * pid.prevError,
		I:        pid.cfg.Ki * pid.integral,
	}
}

// PIDDiagnostics contains PID internal state for monitoring.
type PIDDiagnostics struct {
	Error    float64
	Integral float64
	P        float64
	I        float64
}
