package motor

import (
	"fmt"
	"math"

	"arm-motion-core/joint"
)

// ProfileType identifies the velocity-time shape of a move.
type ProfileType int

const (
	ProfileTrapezoidal ProfileType = iota
	ProfileTriangular
	ProfileSCurve
)

func (t ProfileType) String() string {
	switch t {
	case ProfileTriangular:
		return "triangular"
	case ProfileSCurve:
		return "s-curve"
	default:
		return "trapezoidal"
	}
}

// Profile is a time-parameterised move between two positions. Created once per
// move command, consumed by repeated Sample calls, discarded on completion or
// preemption.
type Profile struct {
	Type      ProfileType
	Start     float64
	End       float64
	Direction float64 // +1 or -1
	Distance  float64
	TotalTime float64

	// Trapezoidal/triangular parameters.
	accel     float64
	peakVel   float64
	accelTime float64
	cruise    float64

	// S-curve phase table: per phase jerk and entry state.
	phases []scurvePhase
}

type scurvePhase struct {
	duration float64
	jerk     float64
	pos0     float64 // distance covered at phase entry
	vel0     float64
	acc0     float64
}

// NewProfile builds a profile for a move from start to end bounded by the
// joint limits. A trapezoidal request degrades to triangular when the distance
// is too short to reach cruise velocity; an s-curve request without a jerk
// limit degrades to trapezoidal.
func NewProfile(start, end float64, limits joint.Limits, typ ProfileType) (*Profile, error) {
	distance := math.Abs(end - start)
	direction := 1.0
	if end < start {
		direction = -1.0
	}

	p := &Profile{
		Type:      typ,
		Start:     start,
		End:       end,
		Direction: direction,
		Distance:  distance,
	}

	if distance == 0 {
		p.Type = ProfileTrapezoidal
		return p, nil
	}

	vmax := limits.MaxVelocity
	amax := limits.MaxAcceleration
	if vmax <= 0 || amax <= 0 {
		return nil, fmt.Errorf("profile needs positive velocity and acceleration limits")
	}

	if typ == ProfileSCurve && limits.MaxJerk > 0 {
		p.buildSCurve(vmax, amax, limits.MaxJerk)
		return p, nil
	}

	p.buildTrapezoid(vmax, amax)
	return p, nil
}

func (p *Profile) buildTrapezoid(vmax, amax float64) {
	accelDist := vmax * vmax / (2 * amax)

	if 2*accelDist > p.Distance {
		// Cruise speed is unreachable; degrade to a triangular profile.
		p.Type = ProfileTriangular
		p.peakVel = math.Sqrt(p.Distance * amax)
		p.accel = amax
		p.accelTime = p.peakVel / amax
		p.cruise = 0
		p.TotalTime = 2 * p.accelTime
		return
	}

	p.Type = ProfileTrapezoidal
	p.peakVel = vmax
	p.accel = amax
	p.accelTime = vmax / amax
	p.cruise = (p.Distance - 2*accelDist) / vmax
	p.TotalTime = 2*p.accelTime + p.cruise
}

// buildSCurve assembles the 7-phase jerk-limited profile: accel build-up,
// constant accel, accel release, cruise, decel build-up, constant decel,
// decel release. Degenerate distances reduce the peak velocity by bisection.
func (p *Profile) buildSCurve(vmax, amax, jmax float64) {
	p.Type = ProfileSCurve

	rampDist := func(v float64) (tj, ta, dist float64) {
		// Distance and timing of one full 0 -> v ramp.
		if v*jmax < amax*amax {
			// Acceleration never reaches amax.
			tj = math.Sqrt(v / jmax)
			ta = 0
		} else {
			tj = amax / jmax
			ta = v/amax - tj
		}
		dist = v * (ta + 2*tj) / 2
		return tj, ta, dist
	}

	vpeak := vmax
	_, _, d := rampDist(vpeak)
	if 2*d > p.Distance {
		// Bisect the peak velocity until accel+decel exactly cover the move.
		lo, hi := 0.0, vmax
		for i := 0; i < 64; i++ {
			vpeak = (lo + hi) / 2
			if _, _, d = rampDist(vpeak); 2*d > p.Distance {
				hi = vpeak
			} else {
				lo = vpeak
			}
		}
		vpeak = lo
	}

	tj, ta, d := rampDist(vpeak)
	cruiseDist := p.Distance - 2*d
	if cruiseDist < 0 {
		cruiseDist = 0
	}
	tc := 0.0
	if vpeak > 0 {
		tc = cruiseDist / vpeak
	}

	durations := []float64{tj, ta, tj, tc, tj, ta, tj}
	jerks := []float64{jmax, 0, -jmax, 0, -jmax, 0, jmax}

	p.phases = make([]scurvePhase, 0, 7)
	pos, vel, acc := 0.0, 0.0, 0.0
	total := 0.0
	for i, dur := range durations {
		ph := scurvePhase{duration: dur, jerk: jerks[i], pos0: pos, vel0: vel, acc0: acc}
		p.phases = append(p.phases, ph)
		pos += vel*dur + 0.5*acc*dur*dur + ph.jerk*dur*dur*dur/6
		vel += acc*dur + 0.5*ph.jerk*dur*dur
		acc += ph.jerk * dur
		total += dur
	}
	p.peakVel = vpeak
	p.TotalTime = total
}

// Sample evaluates the profile at elapsed time t, returning absolute position,
// signed velocity and signed acceleration. Past TotalTime it reports the end
// position at rest.
func (p *Profile) Sample(t float64) (pos, vel, acc float64) {
	if p.Distance == 0 || t >= p.TotalTime {
		return p.End, 0, 0
	}
	if t <= 0 {
		return p.Start, 0, 0
	}

	var dPos, dVel, dAcc float64
	if p.Type == ProfileSCurve {
		dPos, dVel, dAcc = p.sampleSCurve(t)
	} else {
		dPos, dVel, dAcc = p.sampleTrapezoid(t)
	}
	return p.Start + p.Direction*dPos, p.Direction * dVel, p.Direction * dAcc
}

func (p *Profile) sampleTrapezoid(t float64) (pos, vel, acc float64) {
	switch {
	case t < p.accelTime:
		return 0.5 * p.accel * t * t, p.accel * t, p.accel
	case t < p.accelTime+p.cruise:
		accelDist := 0.5 * p.peakVel * p.accelTime
		return accelDist + p.peakVel*(t-p.accelTime), p.peakVel, 0
	default:
		remain := p.TotalTime - t
		return p.Distance - 0.5*p.accel*remain*remain, p.accel * remain, -p.accel
	}
}

func (p *Profile) sampleSCurve(t float64) (pos, vel, acc float64) {
	elapsed := 0.0
	for _, ph := range p.phases {
		if t < elapsed+ph.duration || ph.duration == 0 && t <= elapsed {
			tau := t - elapsed
			pos = ph.pos0 + ph.vel0*tau + 0.5*ph.acc0*tau*tau + ph.jerk*tau*tau*tau/6
			vel = ph.vel0 + ph.acc0*tau + 0.5*ph.jerk*tau*tau
			acc = ph.acc0 + ph.jerk*tau
			return pos, vel, acc
		}
		elapsed += ph.duration
	}
	return p.Distance, 0, 0
}

// Done reports whether the profile has been fully consumed at elapsed time t.
func (p *Profile) Done(t float64) bool {
	return t >= p.TotalTime
}
