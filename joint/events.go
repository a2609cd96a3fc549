package joint

import (
	"time"

	"arm-motion-core/utils"
)

// EventKind classifies motion-core events.
type EventKind int

const (
	EventFault EventKind = iota
	EventFaultCleared
	EventEmergencyStop
	EventStateChange
	EventPlanReady
)

func (k EventKind) String() string {
	switch k {
	case EventFault:
		return "fault"
	case EventFaultCleared:
		return "fault_cleared"
	case EventEmergencyStop:
		return "emergency_stop"
	case EventStateChange:
		return "state_change"
	case EventPlanReady:
		return "plan_ready"
	default:
		return "unknown"
	}
}

// Event describes a state/fault/emergency-stop occurrence. JointID is -1 for
// events that concern the whole arm.
type Event struct {
	Kind      EventKind
	JointID   int
	Reason    string
	Timestamp time.Time
}

// EventSink receives events from the motion core. Implementations must not
// block: Publish is called from inside the control tick.
type EventSink interface {
	Publish(ev Event)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Publish(Event) {}

// LogSink writes events through the shared logger. Faults and emergency stops
// are logged at WARN, everything else at DEBUG.
type LogSink struct {
	Log *utils.Logger
}

func (s LogSink) Publish(ev Event) {
	if s.Log == nil {
		return
	}
	switch ev.Kind {
	case EventFault, EventEmergencyStop:
		s.Log.Warn("event %s joint=%d reason=%s", ev.Kind, ev.JointID, ev.Reason)
	default:
		s.Log.Debug("event %s joint=%d reason=%s", ev.Kind, ev.JointID, ev.Reason)
	}
}

// ChannelSink forwards events to a buffered channel, dropping when full so the
// control tick never blocks on a slow consumer.
type ChannelSink struct {
	C chan Event
}

// NewChannelSink creates a sink with the given buffer size.
func NewChannelSink(size int) *ChannelSink {
	return &ChannelSink{C: make(chan Event, size)}
}

func (s *ChannelSink) Publish(ev Event) {
	select {
	case s.C <- ev:
	default:
	}
}
