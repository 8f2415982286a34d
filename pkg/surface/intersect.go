package surface

import (
	"math"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// DistanceTo returns the distance along d from p to the nearest crossing of
// the surface that lies strictly beyond Epsilon. d need not be unit length;
// the distance is measured in units of |d|. ok is false when the ray is
// parallel, misses, or only meets the surface at or behind the origin.
func (s *Surface) DistanceTo(p, d v3.Vec) (t float64, ok bool) {
	sp := &s.spec
	switch sp.Kind {
	case KindPlaneX:
		return planeDistance(p.X, d.X, sp.D)
	case KindPlaneY:
		return planeDistance(p.Y, d.Y, sp.D)
	case KindPlaneZ:
		return planeDistance(p.Z, d.Z, sp.D)
	case KindPlane:
		return planeDistance(sp.Normal.Dot(p), sp.Normal.Dot(d), sp.D)
	case KindSphere:
		oc := p.Sub(sp.Center)
		return quadraticDistance(d.Dot(d), oc.Dot(d), oc.Dot(oc)-sp.Radius*sp.Radius)
	case KindCylinderX:
		return cylinderDistance(p.Y-sp.Center.Y, p.Z-sp.Center.Z, d.Y, d.Z, sp.Radius)
	case KindCylinderY:
		return cylinderDistance(p.X-sp.Center.X, p.Z-sp.Center.Z, d.X, d.Z, sp.Radius)
	case KindCylinderZ:
		return cylinderDistance(p.X-sp.Center.X, p.Y-sp.Center.Y, d.X, d.Y, sp.Radius)
	}
	return math.Inf(1), false
}

// planeDistance solves pos + t*dir = d for t.
func planeDistance(pos, dir, d float64) (float64, bool) {
	if math.Abs(dir) < parallelTolerance {
		return math.Inf(1), false
	}
	t := (d - pos) / dir
	if t <= Epsilon {
		return math.Inf(1), false
	}
	return t, true
}

// cylinderDistance solves the 2D circle equation in the plane orthogonal to
// the cylinder axis.
func cylinderDistance(ou, ov, du, dv, r float64) (float64, bool) {
	a := du*du + dv*dv
	if a < parallelTolerance*parallelTolerance {
		// Moving along the axis never crosses the wall.
		return math.Inf(1), false
	}
	return quadraticDistance(a, ou*du+ov*dv, ou*ou+ov*ov-r*r)
}

// quadraticDistance returns the smallest root > Epsilon of
// a t² + 2 hb t + c = 0 (half-b form).
func quadraticDistance(a, hb, c float64) (float64, bool) {
	disc := hb*hb - a*c
	if disc < 0 {
		return math.Inf(1), false
	}
	sq := math.Sqrt(disc)
	t0 := (-hb - sq) / a
	t1 := (-hb + sq) / a
	if t0 > t1 {
		t0, t1 = t1, t0
	}
	if t0 > Epsilon {
		return t0, true
	}
	// Origin inside (or on) the surface: the far root is the exit.
	if t1 > Epsilon {
		return t1, true
	}
	return math.Inf(1), false
}
