package geometry

import (
	"fmt"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// noCopy makes `go vet` flag accidental copies of a Universe. A copied
// universe would alias an internal id the registry believes is unique.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Universe is an ordered collection of cells that partitions a region of
// space. Universes are created only by Registry.CreateUniverse and are
// always handled by pointer.
type Universe struct {
	noCopy   noCopy
	id       UniverseID
	internal InternalUniverseID
	cells    []*Cell
}

// UserID returns the identifier chosen by the geometry author.
func (u *Universe) UserID() UniverseID { return u.id }

// InternalID returns the sequential registry index of the universe.
func (u *Universe) InternalID() InternalUniverseID { return u.internal }

// AddCell appends c to the universe. It performs no uniqueness or overlap
// check; Registry.CreateCell is the checked construction path.
func (u *Universe) AddCell(c *Cell) {
	u.cells = append(u.cells, c)
}

// Cells returns the cells in insertion order.
func (u *Universe) Cells() []*Cell {
	out := make([]*Cell, len(u.cells))
	copy(out, u.cells)
	return out
}

// CellCount returns the number of cells.
func (u *Universe) CellCount() int {
	return len(u.cells)
}

// FindCell returns the first cell, in insertion order, that contains p, or
// nil when no cell does. Insertion order is the tie-break for overlapping
// cells: the first registered cell wins.
func (u *Universe) FindCell(p v3.Vec) *Cell {
	for _, c := range u.cells {
		if c.Contains(p) {
			return c
		}
	}
	return nil
}

// FindCells returns every cell that contains p. More than one result means
// the universe has overlapping cells at p.
func (u *Universe) FindCells(p v3.Vec) []*Cell {
	var out []*Cell
	for _, c := range u.cells {
		if c.Contains(p) {
			out = append(out, c)
		}
	}
	return out
}

func (u *Universe) String() string {
	return fmt.Sprintf("universe %s (%d cells)", u.id, len(u.cells))
}
