package geometry

import (
	"errors"
	"fmt"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// ErrorKind is the category of a geometry error.
type ErrorKind string

const (
	// Construction-time kinds abort the geometry build.
	KindDuplicateID      ErrorKind = "duplicate_id"
	KindMalformed        ErrorKind = "malformed"
	KindUnknownReference ErrorKind = "unknown_reference"
	KindCycle            ErrorKind = "cycle"
	KindSealed           ErrorKind = "sealed"
	KindInvalid          ErrorKind = "invalid"

	// Runtime kinds are fatal for one history only.
	KindLostParticle ErrorKind = "lost_particle"
	KindNoCrossing   ErrorKind = "no_crossing"

	// KindUnknown is reported by KindOf for errors that are not *Error.
	KindUnknown ErrorKind = "unknown"
)

// Error is the error type returned by the geometry core. Universe and Cell
// carry user-facing ids so diagnostics point at the geometry source.
type Error struct {
	Kind     ErrorKind
	Message  string
	Universe UniverseID
	Cell     CellID
	Err      error
}

func (e *Error) Error() string {
	msg := e.Message
	switch {
	case e.Universe != "" && e.Cell != "":
		msg = fmt.Sprintf("%s (universe %s, cell %s)", msg, e.Universe, e.Cell)
	case e.Universe != "":
		msg = fmt.Sprintf("%s (universe %s)", msg, e.Universe)
	case e.Cell != "":
		msg = fmt.Sprintf("%s (cell %s)", msg, e.Cell)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) ErrorKind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindUnknown
}

// IsLostParticle reports whether err is a lost-particle error.
func IsLostParticle(err error) bool {
	return KindOf(err) == KindLostParticle
}

func duplicatef(format string, args ...interface{}) error {
	return &Error{Kind: KindDuplicateID, Message: fmt.Sprintf(format, args...)}
}

func sealedf(op string) error {
	return &Error{Kind: KindSealed, Message: fmt.Sprintf("%s: registry is sealed", op)}
}

// LostParticle reports that no cell of u contains the particle at p. cell is
// the cell the particle was last known to be in, if any.
func LostParticle(u *Universe, cell *Cell, p v3.Vec) error {
	e := &Error{
		Kind:    KindLostParticle,
		Message: fmt.Sprintf("lost particle at (%g, %g, %g)", p.X, p.Y, p.Z),
	}
	if u != nil {
		e.Universe = u.UserID()
	}
	if cell != nil {
		e.Cell = cell.UserID()
	}
	return e
}

// NoCrossing reports that a particle in cell c sees no bounding surface
// ahead of it, which only happens in an unbounded, non-void cell.
func NoCrossing(c *Cell, p, d v3.Vec) error {
	e := &Error{
		Kind: KindNoCrossing,
		Message: fmt.Sprintf("no surface crossing from (%g, %g, %g) along (%g, %g, %g)",
			p.X, p.Y, p.Z, d.X, d.Y, d.Z),
	}
	if c != nil {
		e.Cell = c.UserID()
		if c.owner != nil {
			e.Universe = c.owner.UserID()
		}
	}
	return e
}
