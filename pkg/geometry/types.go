package geometry

import (
	"fmt"
	"math"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/xiaopingguo165/helios/pkg/surface"
)

// UniverseID is the user-facing universe identifier. It may be sparse or
// symbolic ("0", "core", "pin-lattice").
type UniverseID string

// InternalUniverseID is the dense, sequentially assigned universe index.
type InternalUniverseID int

// CellID is the user-facing cell identifier.
type CellID string

// InternalCellID is the dense cell index.
type InternalCellID int

// MaterialID names the material that fills a terminal cell. Material
// properties live in the physics layer.
type MaterialID string

// Bound is one (surface, required sense) pair of a cell definition.
type Bound struct {
	Surface *surface.Surface
	Sense   surface.Sense
}

func (b Bound) String() string {
	return b.Sense.String() + string(b.Surface.UserID())
}

// ---------------------------------------------------------------------------
// Fill
// ---------------------------------------------------------------------------

// FillKind distinguishes what occupies a cell.
type FillKind int

const (
	FillMaterial FillKind = iota // terminal: physics applies
	FillUniverse                 // nested universe: tracking recurses
	FillVoid                     // outside world: entering it ends the history
)

func (k FillKind) String() string {
	switch k {
	case FillMaterial:
		return "material"
	case FillUniverse:
		return "universe"
	case FillVoid:
		return "void"
	default:
		return "unknown"
	}
}

// Fill describes the content of a cell. For FillUniverse the nested
// universe is placed in the parent frame by a rotation (Euler angles in
// degrees, applied X then Y then Z) followed by a translation.
type Fill struct {
	Kind        FillKind
	Material    MaterialID
	Universe    *Universe
	Translation v3.Vec
	Rotation    v3.Vec

	toParent sdf.M44
	toLocal  sdf.M44
}

// MaterialFill returns a terminal fill.
func MaterialFill(m MaterialID) Fill {
	return Fill{Kind: FillMaterial, Material: m}
}

// VoidFill returns the outside-world fill.
func VoidFill() Fill {
	return Fill{Kind: FillVoid}
}

// UniverseFill places u inside a cell. rotation is in degrees.
func UniverseFill(u *Universe, translation, rotation v3.Vec) Fill {
	const k = math.Pi / 180
	rot := sdf.RotateZ(rotation.Z * k).Mul(sdf.RotateY(rotation.Y * k)).Mul(sdf.RotateX(rotation.X * k))
	toParent := sdf.Translate3d(translation).Mul(rot)
	return Fill{
		Kind:        FillUniverse,
		Universe:    u,
		Translation: translation,
		Rotation:    rotation,
		toParent:    toParent,
		toLocal:     toParent.Inverse(),
	}
}

// ToLocal returns the map from the parent frame into the nested universe.
func (f Fill) ToLocal() sdf.M44 { return f.toLocal }

// ToParent returns the map from the nested universe into the parent frame.
func (f Fill) ToParent() sdf.M44 { return f.toParent }

// LocalPoint maps a parent-frame point into the nested universe.
func (f Fill) LocalPoint(p v3.Vec) v3.Vec {
	return f.toLocal.MulPosition(p)
}

// LocalDirection maps a parent-frame direction into the nested universe.
// The transform is rigid, so lengths are preserved.
func (f Fill) LocalDirection(d v3.Vec) v3.Vec {
	return f.toLocal.MulPosition(d).Sub(f.toLocal.MulPosition(v3.Vec{}))
}

// ParentPoint maps a nested-universe point back into the parent frame.
func (f Fill) ParentPoint(p v3.Vec) v3.Vec {
	return f.toParent.MulPosition(p)
}

func (f Fill) String() string {
	switch f.Kind {
	case FillMaterial:
		return fmt.Sprintf("material %s", f.Material)
	case FillUniverse:
		if f.Universe == nil {
			return "universe <nil>"
		}
		return fmt.Sprintf("universe %s", f.Universe.UserID())
	default:
		return f.Kind.String()
	}
}
