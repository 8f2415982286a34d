package geometry

import (
	"fmt"
	"sort"
)

// ValidationSeverity indicates whether a finding blocks tracking or is
// advisory.
type ValidationSeverity int

const (
	SeverityError   ValidationSeverity = iota // blocks sealing
	SeverityWarning                           // informational
)

func (s ValidationSeverity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("ValidationSeverity(%d)", int(s))
	}
}

// ValidationError describes a single validation finding. Universe and Cell
// are user ids and may be empty for registry-level findings.
type ValidationError struct {
	Universe UniverseID
	Cell     CellID
	Message  string
	Severity ValidationSeverity
}

func (e ValidationError) Error() string {
	switch {
	case e.Cell != "":
		return fmt.Sprintf("[%s] cell %s: %s", e.Severity, e.Cell, e.Message)
	case e.Universe != "":
		return fmt.Sprintf("[%s] universe %s: %s", e.Severity, e.Universe, e.Message)
	default:
		return fmt.Sprintf("[%s] %s", e.Severity, e.Message)
	}
}

// ValidationResult bundles blocking errors and advisory warnings from all
// validation tiers.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// OK reports whether no blocking errors were found.
func (r ValidationResult) OK() bool { return len(r.Errors) == 0 }

// Validate runs the structural checks on r and returns every finding,
// errors and warnings alike. It never mutates the registry.
func Validate(r *Registry) []ValidationError {
	if len(r.universes) == 0 {
		return []ValidationError{{Message: "geometry defines no universes", Severity: SeverityError}}
	}
	var errs []ValidationError
	errs = append(errs, validateDAG(r)...)
	errs = append(errs, validateReferences(r)...)
	errs = append(errs, validateUniverses(r)...)
	errs = append(errs, validateCells(r)...)
	errs = append(errs, validateReachable(r)...)
	errs = append(errs, validateSurfaceUse(r)...)
	return errs
}

// validateDAG checks that universe nesting has no cycles, using DFS with
// 3-colour marking. CreateCell already refuses cyclic fills; this catches
// universes assembled with AddCell directly.
func validateDAG(r *Registry) []ValidationError {
	const (
		white = iota
		gray
		black
	)

	color := make(map[*Universe]int)
	var errs []ValidationError

	var visit func(u *Universe) bool
	visit = func(u *Universe) bool {
		switch color[u] {
		case black:
			return false
		case gray:
			errs = append(errs, ValidationError{
				Universe: u.id,
				Message:  fmt.Sprintf("universe %s contains itself through nested fills", u.id),
				Severity: SeverityError,
			})
			return true
		}
		color[u] = gray
		for _, c := range u.cells {
			if c.fill.Kind == FillUniverse && c.fill.Universe != nil {
				if visit(c.fill.Universe) {
					return true
				}
			}
		}
		color[u] = black
		return false
	}

	for _, u := range r.universes {
		if color[u] == white && visit(u) {
			break
		}
	}
	return errs
}

// validateReferences checks that every cell, bound and fill points at an
// object owned by r.
func validateReferences(r *Registry) []ValidationError {
	var errs []ValidationError
	for _, u := range r.universes {
		for _, c := range u.cells {
			if c.owner != u {
				errs = append(errs, ValidationError{
					Universe: u.id,
					Cell:     c.id,
					Message:  "cell is listed in a universe it does not belong to",
					Severity: SeverityError,
				})
			}
			for _, b := range c.bounds {
				if b.Surface == nil || !r.ownsSurface(b.Surface) {
					errs = append(errs, ValidationError{
						Universe: u.id,
						Cell:     c.id,
						Message:  "cell references a surface outside the registry",
						Severity: SeverityError,
					})
				}
			}
			if c.fill.Kind == FillUniverse && !r.owns(c.fill.Universe) {
				errs = append(errs, ValidationError{
					Universe: u.id,
					Cell:     c.id,
					Message:  "cell is filled with a universe outside the registry",
					Severity: SeverityError,
				})
			}
		}
	}
	return errs
}

// validateUniverses flags universes with no cells: any point located in one
// would be a lost particle.
func validateUniverses(r *Registry) []ValidationError {
	var errs []ValidationError
	for _, u := range r.universes {
		if len(u.cells) == 0 {
			errs = append(errs, ValidationError{
				Universe: u.id,
				Message:  "universe has no cells",
				Severity: SeverityError,
			})
		}
	}
	return errs
}

// validateCells warns about unbounded cells that share their universe with
// other cells. Such a cell shadows every cell registered after it.
func validateCells(r *Registry) []ValidationError {
	var errs []ValidationError
	for _, u := range r.universes {
		if len(u.cells) < 2 {
			continue
		}
		for _, c := range u.cells {
			if len(c.bounds) == 0 {
				errs = append(errs, ValidationError{
					Universe: u.id,
					Cell:     c.id,
					Message:  "cell has no bounding surfaces and covers its whole universe",
					Severity: SeverityWarning,
				})
			}
		}
	}
	return errs
}

// validateReachable warns about universes never reached from the root.
func validateReachable(r *Registry) []ValidationError {
	root := r.Root()
	reached := make(map[*Universe]bool)
	var walk func(u *Universe)
	walk = func(u *Universe) {
		if reached[u] {
			return
		}
		reached[u] = true
		for _, c := range u.cells {
			if c.fill.Kind == FillUniverse && c.fill.Universe != nil {
				walk(c.fill.Universe)
			}
		}
	}
	walk(root)

	var errs []ValidationError
	for _, u := range r.universes {
		if !reached[u] {
			errs = append(errs, ValidationError{
				Universe: u.id,
				Message:  fmt.Sprintf("universe is not reachable from root universe %s", root.id),
				Severity: SeverityWarning,
			})
		}
	}
	return errs
}

// validateSurfaceUse warns about surfaces no cell references.
func validateSurfaceUse(r *Registry) []ValidationError {
	referenced := make(map[string]bool)
	for _, c := range r.cells {
		for _, b := range c.bounds {
			if b.Surface != nil {
				referenced[string(b.Surface.UserID())] = true
			}
		}
	}

	var unused []string
	for _, s := range r.surfaces {
		if !referenced[string(s.UserID())] {
			unused = append(unused, string(s.UserID()))
		}
	}
	sort.Strings(unused)

	errs := make([]ValidationError, 0, len(unused))
	for _, id := range unused {
		errs = append(errs, ValidationError{
			Message:  fmt.Sprintf("surface %s is not used by any cell", id),
			Severity: SeverityWarning,
		})
	}
	return errs
}
