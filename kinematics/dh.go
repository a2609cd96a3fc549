package kinematics

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// DHLink is one Denavit-Hartenberg row of the robot description.
// Immutable once the model is built.
type DHLink struct {
	A           float64 `json:"a"`            // link length along x
	Alpha       float64 `json:"alpha"`        // link twist about x
	D           float64 `json:"d"`            // link offset along z
	ThetaOffset float64 `json:"theta_offset"` // constant joint-angle offset
}

// Model is an immutable kinematic chain of revolute joints.
type Model struct {
	links []DHLink
}

// NewModel builds a model from explicit DH rows.
func NewModel(links []DHLink) (*Model, error) {
	if len(links) == 0 {
		return nil, fmt.Errorf("model needs at least one link: %w", ErrInvalidInput)
	}
	cp := make([]DHLink, len(links))
	copy(cp, links)
	return &Model{links: cp}, nil
}

// NewArticulatedModel derives DH rows for a standard articulated arm from bare
// link lengths: the first length is the vertical shoulder offset, the rest
// extend the chain in the arm plane.
func NewArticulatedModel(lengths []float64) (*Model, error) {
	if len(lengths) < 2 {
		return nil, fmt.Errorf("articulated model needs at least two link lengths: %w", ErrInvalidInput)
	}
	links := make([]DHLink, len(lengths))
	links[0] = DHLink{D: lengths[0], Alpha: math.Pi / 2}
	for i := 1; i < len(lengths); i++ {
		links[i] = DHLink{A: lengths[i]}
	}
	return &Model{links: links}, nil
}

// DOF returns the number of joints in the chain.
func (m *Model) DOF() int { return len(m.links) }

// Links returns a copy of the DH rows.
func (m *Model) Links() []DHLink {
	cp := make([]DHLink, len(m.links))
	copy(cp, m.links)
	return cp
}

// mat4 is a row-major homogeneous transform.
type mat4 [16]float64

func identity4() mat4 {
	return mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

func (a mat4) mul(b mat4) mat4 {
	var out mat4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			sum := 0.0
			for k := 0; k < 4; k++ {
				sum += a[r*4+k] * b[k*4+c]
			}
			out[r*4+c] = sum
		}
	}
	return out
}

func (a mat4) origin() r3.Vector {
	return r3.Vector{X: a[3], Y: a[7], Z: a[11]}
}

// zAxis returns the joint rotation axis expressed in the world frame.
func (a mat4) zAxis() r3.Vector {
	return r3.Vector{X: a[2], Y: a[6], Z: a[10]}
}

// dhTransform builds the homogeneous transform for one DH row at joint angle theta.
func dhTransform(l DHLink, theta float64) mat4 {
	ct, st := math.Cos(theta+l.ThetaOffset), math.Sin(theta+l.ThetaOffset)
	ca, sa := math.Cos(l.Alpha), math.Sin(l.Alpha)
	return mat4{
		ct, -st * ca, st * sa, l.A * ct,
		st, ct * ca, -ct * sa, l.A * st,
		0, sa, ca, l.D,
		0, 0, 0, 1,
	}
}

// Forward computes the end-effector position for the given joint angles.
func (m *Model) Forward(angles []float64) (r3.Vector, error) {
	if len(angles) != len(m.links) {
		return r3.Vector{}, fmt.Errorf("expected %d joint angles, got %d: %w", len(m.links), len(angles), ErrInvalidInput)
	}
	t := identity4()
	for i, l := range m.links {
		t = t.mul(dhTransform(l, angles[i]))
	}
	return t.origin(), nil
}

// jointFrames returns the world-frame origin and rotation axis of every joint
// plus the end-effector origin. Used by CCD and the Jacobian builder.
func (m *Model) jointFrames(angles []float64) (origins, axes []r3.Vector, tip r3.Vector) {
	origins = make([]r3.Vector, len(m.links))
	axes = make([]r3.Vector, len(m.links))
	t := identity4()
	for i, l := range m.links {
		origins[i] = t.origin()
		axes[i] = t.zAxis()
		t = t.mul(dhTransform(l, angles[i]))
	}
	return origins, axes, t.origin()
}
