// Package surface implements the implicit boundaries that cells are built
// from. A Surface classifies points by sense and computes ray intersection
// distances. Surfaces are immutable once constructed and are safe for
// concurrent use.
package surface

import (
	"fmt"
	"math"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

const (
	// Epsilon is the distance tolerance shared by intersection and tracking.
	// Roots at or below Epsilon are rejected so a particle sitting on the
	// surface it just crossed never re-intersects it.
	Epsilon = 1e-8

	// OnTolerance is the half-width of the band in which Sense reports On.
	// It is kept well below Epsilon/2 so points nudged off a surface by the
	// tracker always classify to their true side.
	OnTolerance = Epsilon / 100

	// parallelTolerance is the smallest direction component treated as
	// non-parallel to a plane or cylinder axis.
	parallelTolerance = 1e-12
)

// ID is the user-facing surface identifier.
type ID string

// InternalID is the dense index assigned by the geometry registry.
type InternalID int

// Spec holds the construction parameters of a surface. Which fields are
// meaningful depends on Kind:
//
//	plane-x/y/z   D
//	plane         Normal, D
//	sphere        Center, Radius
//	cylinder-*    Center (the axis passes through it), Radius
type Spec struct {
	Kind   Kind
	Center v3.Vec
	Normal v3.Vec
	D      float64
	Radius float64
}

// ParamError reports malformed surface parameters.
type ParamError struct {
	Kind   Kind
	Reason string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("malformed %s: %s", e.Kind, e.Reason)
}

func finite(xs ...float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// Validate checks that the parameters describe a real surface.
func (s Spec) Validate() error {
	if _, ok := kindNames[s.Kind]; !ok {
		return &ParamError{Kind: s.Kind, Reason: "unknown kind"}
	}
	if !finite(s.Center.X, s.Center.Y, s.Center.Z, s.Normal.X, s.Normal.Y, s.Normal.Z, s.D, s.Radius) {
		return &ParamError{Kind: s.Kind, Reason: "parameters must be finite"}
	}
	switch s.Kind {
	case KindPlane:
		if s.Normal.Length() < parallelTolerance {
			return &ParamError{Kind: s.Kind, Reason: "normal must be non-zero"}
		}
	case KindSphere, KindCylinderX, KindCylinderY, KindCylinderZ:
		if s.Radius <= 0 {
			return &ParamError{Kind: s.Kind, Reason: fmt.Sprintf("radius must be > 0, got %g", s.Radius)}
		}
	}
	return nil
}

// Surface is an implicit boundary f(p) = 0 with f < 0 on the negative side.
type Surface struct {
	id       ID
	internal InternalID
	spec     Spec
}

// New validates spec and builds a surface. General plane normals are
// normalised so Evaluate returns a true signed distance.
func New(id ID, internal InternalID, spec Spec) (*Surface, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if spec.Kind == KindPlane {
		l := spec.Normal.Length()
		spec.Normal = spec.Normal.MulScalar(1 / l)
		spec.D /= l
	}
	return &Surface{id: id, internal: internal, spec: spec}, nil
}

// UserID returns the identifier chosen by the geometry author.
func (s *Surface) UserID() ID { return s.id }

// InternalID returns the registry index of the surface.
func (s *Surface) InternalID() InternalID { return s.internal }

// Kind returns the primitive type.
func (s *Surface) Kind() Kind { return s.spec.Kind }

// Spec returns the (normalised) construction parameters.
func (s *Surface) Spec() Spec { return s.spec }

func (s *Surface) String() string {
	return fmt.Sprintf("surface %s (%s)", s.id, s.spec.Kind)
}

// Evaluate returns the signed distance-like value of p: negative inside,
// positive outside, in length units for every kind.
func (s *Surface) Evaluate(p v3.Vec) float64 {
	sp := &s.spec
	switch sp.Kind {
	case KindPlaneX:
		return p.X - sp.D
	case KindPlaneY:
		return p.Y - sp.D
	case KindPlaneZ:
		return p.Z - sp.D
	case KindPlane:
		return sp.Normal.Dot(p) - sp.D
	case KindSphere:
		return p.Sub(sp.Center).Length() - sp.Radius
	case KindCylinderX:
		return math.Hypot(p.Y-sp.Center.Y, p.Z-sp.Center.Z) - sp.Radius
	case KindCylinderY:
		return math.Hypot(p.X-sp.Center.X, p.Z-sp.Center.Z) - sp.Radius
	case KindCylinderZ:
		return math.Hypot(p.X-sp.Center.X, p.Y-sp.Center.Y) - sp.Radius
	}
	return math.NaN()
}

// Sense classifies p. Points within OnTolerance of the surface are On.
func (s *Surface) Sense(p v3.Vec) Sense {
	f := s.Evaluate(p)
	switch {
	case f > OnTolerance:
		return Positive
	case f < -OnTolerance:
		return Negative
	default:
		return On
	}
}

// Normal returns the outward (positive side) unit normal at p.
func (s *Surface) Normal(p v3.Vec) v3.Vec {
	sp := &s.spec
	switch sp.Kind {
	case KindPlaneX:
		return v3.Vec{X: 1}
	case KindPlaneY:
		return v3.Vec{Y: 1}
	case KindPlaneZ:
		return v3.Vec{Z: 1}
	case KindPlane:
		return sp.Normal
	case KindSphere:
		return p.Sub(sp.Center).Normalize()
	case KindCylinderX:
		return v3.Vec{Y: p.Y - sp.Center.Y, Z: p.Z - sp.Center.Z}.Normalize()
	case KindCylinderY:
		return v3.Vec{X: p.X - sp.Center.X, Z: p.Z - sp.Center.Z}.Normalize()
	case KindCylinderZ:
		return v3.Vec{X: p.X - sp.Center.X, Y: p.Y - sp.Center.Y}.Normalize()
	}
	return v3.Vec{}
}
