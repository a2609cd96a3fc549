package utils

import "sort"

// SignalDef describes one scaled signal inside a CAN frame payload.
// Only little-endian packing is supported.
type SignalDef struct {
	Name      string
	StartBit  int
	BitLength int
	Signed    bool
	Factor    float64
	Offset    float64
	Min       float64
	Max       float64
	Default   float64
	Unit      string
}

// FrameDef describes one CAN frame and its signal layout.
type FrameDef struct {
	ID        uint32
	Name      string
	DLC       int
	Direction string // "tx" or "rx" from the motion core's point of view
	CycleMS   int
	Signals   []SignalDef
}

// FrameMap indexes frame definitions by identifier and by name.
type FrameMap struct {
	ByID   map[uint32]*FrameDef
	ByName map[string]*FrameDef
}

// NewFrameMap creates an empty map.
func NewFrameMap() *FrameMap {
	return &FrameMap{
		ByID:   map[uint32]*FrameDef{},
		ByName: map[string]*FrameDef{},
	}
}

// Add registers a frame definition, keeping signals ordered by start bit.
// A zero scaling factor is treated as 1 (raw counts).
func (m *FrameMap) Add(fd *FrameDef) {
	for i := range fd.Signals {
		if fd.Signals[i].Factor == 0 {
			fd.Signals[i].Factor = 1
		}
	}
	sort.Slice(fd.Signals, func(i, j int) bool { return fd.Signals[i].StartBit < fd.Signals[j].StartBit })
	m.ByID[fd.ID] = fd
	m.ByName[fd.Name] = fd
}

// FrameNames returns the registered frame names, sorted.
func (m *FrameMap) FrameNames() []string {
	out := make([]string, 0, len(m.ByName))
	for k := range m.ByName {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
