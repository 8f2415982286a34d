package geometry

import (
	"fmt"
	"strings"

	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/xiaopingguo165/helios/pkg/surface"
)

// Cell is the intersection of the half-spaces named by its bounds. It
// references, but does not own, its surfaces and nested universe.
type Cell struct {
	id       CellID
	internal InternalCellID
	bounds   []Bound
	fill     Fill
	owner    *Universe
}

// UserID returns the identifier chosen by the geometry author.
func (c *Cell) UserID() CellID { return c.id }

// InternalID returns the registry index of the cell.
func (c *Cell) InternalID() InternalCellID { return c.internal }

// Fill returns what occupies the cell.
func (c *Cell) Fill() Fill { return c.fill }

// Universe returns the universe the cell belongs to.
func (c *Cell) Universe() *Universe { return c.owner }

// Bounds returns a copy of the cell's (surface, sense) pairs.
func (c *Cell) Bounds() []Bound {
	out := make([]Bound, len(c.bounds))
	copy(out, c.bounds)
	return out
}

// BoundCount returns the number of bounds.
func (c *Cell) BoundCount() int { return len(c.bounds) }

// Bound returns the i-th bound without copying the list.
func (c *Cell) Bound(i int) Bound { return c.bounds[i] }

// Contains reports whether p satisfies every bound. A bound whose surface
// passes through p (Sense On) is satisfied from either side.
func (c *Cell) Contains(p v3.Vec) bool {
	for _, b := range c.bounds {
		s := b.Surface.Sense(p)
		if s != surface.On && s != b.Sense {
			return false
		}
	}
	return true
}

func (c *Cell) String() string {
	refs := make([]string, len(c.bounds))
	for i, b := range c.bounds {
		refs[i] = b.String()
	}
	owner := UniverseID("?")
	if c.owner != nil {
		owner = c.owner.id
	}
	return fmt.Sprintf("cell %s in universe %s [%s] %s", c.id, owner, strings.Join(refs, " "), c.fill)
}
