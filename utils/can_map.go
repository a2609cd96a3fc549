package utils

import "fmt"

// Frame identifier bases for the joint bus layout. One command frame and one
// state frame per joint, offset by the joint index.
const (
	JointCommandBaseID uint32 = 0x100
	JointStateBaseID   uint32 = 0x200
)

// JointCommandFrameName returns the command frame name for a joint index.
func JointCommandFrameName(id int) string { return fmt.Sprintf("JOINT%d_CMD", id) }

// JointStateFrameName returns the state frame name for a joint index.
func JointStateFrameName(id int) string { return fmt.Sprintf("JOINT%d_STATE", id) }

// BuildJointFrameMap constructs the CAN layout for a robot with the given
// degrees of freedom. The layout is derived from the robot description instead
// of an external map file, so the codec and the control core can never drift
// apart on signal scaling.
//
// Command frames (tx, 0x100+i):
//
//	enable          1 bit
//	mode            2 bits  (0 velocity, 1 torque)
//	velocity_radps  s16, factor 0.001
//	torque_nm       s16, factor 0.01
//
// State frames (rx, 0x200+i):
//
//	position_rad    s16, factor 0.0005
//	velocity_radps  s16, factor 0.001
//	torque_nm       s16, factor 0.01
//	fault           1 bit
func BuildJointFrameMap(dof int, cycleMS int) *FrameMap {
	m := NewFrameMap()

	for i := 0; i < dof; i++ {
		m.Add(&FrameDef{
			ID:        JointCommandBaseID + uint32(i),
			Name:      JointCommandFrameName(i),
			DLC:       6,
			Direction: "tx",
			CycleMS:   cycleMS,
			Signals: []SignalDef{
				{Name: "enable", StartBit: 0, BitLength: 1},
				{Name: "mode", StartBit: 1, BitLength: 2},
				{Name: "velocity_radps", StartBit: 8, BitLength: 16, Signed: true, Factor: 0.001, Min: -32.767, Max: 32.767, Unit: "rad/s"},
				{Name: "torque_nm", StartBit: 24, BitLength: 16, Signed: true, Factor: 0.01, Min: -327.67, Max: 327.67, Unit: "Nm"},
			},
		})

		m.Add(&FrameDef{
			ID:        JointStateBaseID + uint32(i),
			Name:      JointStateFrameName(i),
			DLC:       7,
			Direction: "rx",
			CycleMS:   cycleMS,
			Signals: []SignalDef{
				{Name: "position_rad", StartBit: 0, BitLength: 16, Signed: true, Factor: 0.0005, Min: -16.383, Max: 16.383, Unit: "rad"},
				{Name: "velocity_radps", StartBit: 16, BitLength: 16, Signed: true, Factor: 0.001, Min: -32.767, Max: 32.767, Unit: "rad/s"},
				{Name: "torque_nm", StartBit: 32, BitLength: 16, Signed: true, Factor: 0.01, Min: -327.67, Max: 327.67, Unit: "Nm"},
				{Name: "fault", StartBit: 48, BitLength: 1},
			},
		})
	}

	return m
}
