// Package metrics exposes the motion core's Prometheus instrumentation.
// All methods are nil-safe so instrumentation stays optional.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"arm-motion-core/joint"
)

type Metrics struct {
	jointPosition *prometheus.GaugeVec
	jointVelocity *prometheus.GaugeVec
	jointTorque   *prometheus.GaugeVec
	trackingError *prometheus.GaugeVec

	faults         *prometheus.CounterVec
	emergencyStops prometheus.Counter
	plans          *prometheus.CounterVec
	tickDuration   prometheus.Histogram
}

// New registers the motion metrics on reg. A nil registerer falls back to the
// default Prometheus registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		jointPosition: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "arm", Subsystem: "joint", Name: "position_rad",
			Help: "Current joint position in radians.",
		}, []string{"joint"}),
		jointVelocity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "arm", Subsystem: "joint", Name: "velocity_radps",
			Help: "Current joint velocity in radians per second.",
		}, []string{"joint"}),
		jointTorque: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "arm", Subsystem: "joint", Name: "torque_nm",
			Help: "Commanded joint torque in newton metres.",
		}, []string{"joint"}),
		trackingError: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "arm", Subsystem: "joint", Name: "tracking_error_rad",
			Help: "Position tracking error in radians.",
		}, []string{"joint"}),
		faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arm", Subsystem: "motion", Name: "faults_total",
			Help: "Joint faults detected.",
		}, []string{"joint"}),
		emergencyStops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arm", Subsystem: "motion", Name: "emergency_stops_total",
			Help: "Emergency stops commanded.",
		}),
		plans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arm", Subsystem: "motion", Name: "plans_total",
			Help: "Planning attempts by algorithm and result.",
		}, []string{"algorithm", "result"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "arm", Subsystem: "motion", Name: "tick_duration_seconds",
			Help:    "Control tick wall time.",
			Buckets: prometheus.ExponentialBuckets(1e-5, 2, 12),
		}),
	}
	reg.MustRegister(
		m.jointPosition, m.jointVelocity, m.jointTorque, m.trackingError,
		m.faults, m.emergencyStops, m.plans, m.tickDuration,
	)
	return m
}

// ObserveJoints updates the per-joint gauges from a diagnostics snapshot.
func (m *Metrics) ObserveJoints(diags []joint.Diagnostics) {
	if m == nil {
		return
	}
	for _, d := range diags {
		id := strconv.Itoa(d.ID)
		m.jointPosition.WithLabelValues(id).Set(d.Position)
		m.jointVelocity.WithLabelValues(id).Set(d.Velocity)
		m.jointTorque.WithLabelValues(id).Set(d.Torque)
		m.trackingError.WithLabelValues(id).Set(d.TrackingError)
	}
}

// CountFault increments the fault counter for one joint.
func (m *Metrics) CountFault(jointID int) {
	if m == nil {
		return
	}
	m.faults.WithLabelValues(strconv.Itoa(jointID)).Inc()
}

// CountEmergencyStop increments the emergency stop counter.
func (m *Metrics) CountEmergencyStop() {
	if m == nil {
		return
	}
	m.emergencyStops.Inc()
}

// CountPlan records one planning attempt.
func (m *Metrics) CountPlan(algorithm, result string) {
	if m == nil {
		return
	}
	m.plans.WithLabelValues(algorithm, result).Inc()
}

// ObserveTick records the wall time of one control tick.
func (m *Metrics) ObserveTick(seconds float64) {
	if m == nil {
		return
	}
	m.tickDuration.Observe(seconds)
}
