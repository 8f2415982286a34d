package surface

import "fmt"

// Kind enumerates the closed set of supported surface primitives.
type Kind int

const (
	KindPlaneX    Kind = iota // x = D
	KindPlaneY                // y = D
	KindPlaneZ                // z = D
	KindPlane                 // n·p = D, arbitrary normal
	KindSphere                // |p - c| = R
	KindCylinderX             // infinite cylinder parallel to the x axis
	KindCylinderY             // infinite cylinder parallel to the y axis
	KindCylinderZ             // infinite cylinder parallel to the z axis
)

var kindNames = map[Kind]string{
	KindPlaneX:    "plane-x",
	KindPlaneY:    "plane-y",
	KindPlaneZ:    "plane-z",
	KindPlane:     "plane",
	KindSphere:    "sphere",
	KindCylinderX: "cylinder-x",
	KindCylinderY: "cylinder-y",
	KindCylinderZ: "cylinder-z",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps a surface keyword ("sphere", "plane-x", ...) to its Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown surface kind %q", s)
}

// isPlane reports whether k is one of the plane kinds.
func (k Kind) isPlane() bool {
	return k == KindPlaneX || k == KindPlaneY || k == KindPlaneZ || k == KindPlane
}

// Sense is the side of a surface a point lies on.
type Sense int8

const (
	Negative Sense = -1
	On       Sense = 0 // within OnTolerance of the surface
	Positive Sense = 1
)

func (s Sense) String() string {
	switch s {
	case Negative:
		return "-"
	case Positive:
		return "+"
	case On:
		return "on"
	default:
		return fmt.Sprintf("Sense(%d)", int(s))
	}
}

// Flip returns the opposite side. On stays On.
func (s Sense) Flip() Sense {
	return -s
}

// ParseSense splits a signed surface reference such as "-s1" or "+px"
// into the surface ID and the required sense. A missing sign means Positive.
func ParseSense(ref string) (ID, Sense, error) {
	if ref == "" {
		return "", 0, fmt.Errorf("empty surface reference")
	}
	sense := Positive
	switch ref[0] {
	case '-':
		sense = Negative
		ref = ref[1:]
	case '+':
		ref = ref[1:]
	}
	if ref == "" {
		return "", 0, fmt.Errorf("surface reference has a sign but no id")
	}
	return ID(ref), sense, nil
}
