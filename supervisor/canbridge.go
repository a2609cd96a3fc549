package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.einride.tech/can"

	"arm-motion-core/joint"
	"arm-motion-core/utils"
)

// CANBridge moves actuator commands and sensor feedback over a CAN bus using
// the per-joint frame layout. It implements CommandSink on the transmit side
// and FeedbackSource on the receive side; ReceiveLoop must run in its own
// goroutine to keep the feedback snapshot fresh.
type CANBridge struct {
	fm     *utils.FrameMap
	writer utils.CANWriter
	reader utils.CANReader
	log    *utils.Logger

	mu     sync.Mutex
	latest []joint.SensorFeedback
	fresh  bool
}

// NewCANBridge builds the bridge for a robot with the given degrees of
// freedom. Either side may be nil for one-directional use.
func NewCANBridge(dof, cycleMS int, writer utils.CANWriter, reader utils.CANReader, log *utils.Logger) *CANBridge {
	return &CANBridge{
		fm:     utils.BuildJointFrameMap(dof, cycleMS),
		writer: writer,
		reader: reader,
		log:    log,
		latest: make([]joint.SensorFeedback, dof),
	}
}

// Send encodes one command frame per joint and transmits them in joint order.
func (b *CANBridge) Send(ctx context.Context, cmds []joint.ActuatorCommand) error {
	if b.writer == nil {
		return nil
	}
	for _, cmd := range cmds {
		values := map[string]float64{
			"enable":         1,
			"mode":           0,
			"velocity_radps": 0,
			"torque_nm":      0,
		}
		switch cmd.Mode {
		case joint.CommandVelocity:
			values["velocity_radps"] = cmd.Value
		case joint.CommandTorque:
			values["mode"] = 1
			values["torque_nm"] = cmd.Value
		}

		frame, err := b.fm.EncodeFrame(utils.JointCommandFrameName(cmd.JointID), values)
		if err != nil {
			return fmt.Errorf("encode joint %d command: %w", cmd.JointID, err)
		}
		if err := b.writer.WriteFrame(ctx, frame); err != nil {
			return fmt.Errorf("transmit joint %d command: %w", cmd.JointID, err)
		}
	}
	return nil
}

// Receive error backoff: start small, double up to the cap, reset on the
// first good frame.
const (
	receiveBackoffMin = 10 * time.Millisecond
	receiveBackoffMax = time.Second
)

// ReceiveLoop reads state frames until the context ends, keeping the latest
// per-joint snapshot. Unknown frame IDs are ignored. Read errors back off
// exponentially so a dead bus does not spin the loop.
func (b *CANBridge) ReceiveLoop(ctx context.Context) {
	if b.reader == nil {
		return
	}
	b.log.Debug("CAN receive loop started")
	defer b.log.Debug("CAN receive loop stopped")

	backoff := receiveBackoffMin
	for ctx.Err() == nil {
		frame, err := b.reader.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.log.Error("CAN receive: %v, retrying in %v", err, backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > receiveBackoffMax {
				backoff = receiveBackoffMax
			}
			continue
		}
		backoff = receiveBackoffMin
		if err := b.ingest(frame); err != nil {
			b.log.Warn("drop frame 0x%X: %v", uint32(frame.ID), err)
		}
	}
}

func (b *CANBridge) ingest(frame can.Frame) error {
	idx := int(frame.ID) - int(utils.JointStateBaseID)
	if idx < 0 || idx >= len(b.latest) {
		return nil
	}
	values, err := b.fm.DecodeFrame(frame)
	if err != nil {
		return err
	}

	fb := joint.SensorFeedback{
		Position:      values["position_rad"],
		Velocity:      values["velocity_radps"],
		Torque:        values["torque_nm"],
		VelocityValid: true,
		TorqueValid:   true,
	}
	if values["fault"] != 0 {
		b.log.Warn("joint %d reports fault over CAN", idx)
	}

	b.mu.Lock()
	b.latest[idx] = fb
	b.fresh = true
	b.mu.Unlock()
	return nil
}

// Feedback returns the latest snapshot, or nil before the first state frame.
func (b *CANBridge) Feedback() []joint.SensorFeedback {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.fresh {
		return nil
	}
	out := make([]joint.SensorFeedback, len(b.latest))
	copy(out, b.latest)
	return out
}
