package geometry

import (
	"fmt"
	"log/slog"

	"github.com/xiaopingguo165/helios/pkg/surface"
)

// Registry owns every surface, cell and universe of one geometry. Objects
// are stored in arenas indexed by internal id and looked up by user id
// through name indexes.
//
// Construction is single-threaded. After Seal the registry is read-only and
// may be shared by any number of tracking goroutines.
type Registry struct {
	surfaces  []*surface.Surface
	cells     []*Cell
	universes []*Universe

	surfaceIndex  map[surface.ID]surface.InternalID
	cellIndex     map[CellID]InternalCellID
	universeIndex map[UniverseID]InternalUniverseID

	root   *Universe
	sealed bool
	logger *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for construction diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		surfaceIndex:  make(map[surface.ID]surface.InternalID),
		cellIndex:     make(map[CellID]InternalCellID),
		universeIndex: make(map[UniverseID]InternalUniverseID),
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "geometry")
	return r
}

// CreateUniverse registers a new, empty universe. Internal ids are assigned
// sequentially from zero and never reused.
func (r *Registry) CreateUniverse(id UniverseID) (*Universe, error) {
	if r.sealed {
		return nil, sealedf("create universe")
	}
	if id == "" {
		return nil, &Error{Kind: KindMalformed, Message: "universe id must not be empty"}
	}
	if _, exists := r.universeIndex[id]; exists {
		return nil, &Error{Kind: KindDuplicateID, Message: "universe id already defined", Universe: id}
	}

	u := &Universe{id: id, internal: InternalUniverseID(len(r.universes))}
	r.universes = append(r.universes, u)
	r.universeIndex[id] = u.internal
	r.logger.Debug("universe created", "universe", id, "internal_id", u.internal)
	return u, nil
}

// CreateSurface validates spec and registers a new surface.
func (r *Registry) CreateSurface(id surface.ID, spec surface.Spec) (*surface.Surface, error) {
	if r.sealed {
		return nil, sealedf("create surface")
	}
	if id == "" {
		return nil, &Error{Kind: KindMalformed, Message: "surface id must not be empty"}
	}
	if _, exists := r.surfaceIndex[id]; exists {
		return nil, duplicatef("surface %s already defined", id)
	}

	s, err := surface.New(id, surface.InternalID(len(r.surfaces)), spec)
	if err != nil {
		return nil, &Error{Kind: KindMalformed, Message: fmt.Sprintf("surface %s", id), Err: err}
	}
	r.surfaces = append(r.surfaces, s)
	r.surfaceIndex[id] = s.InternalID()
	r.logger.Debug("surface created", "surface", id, "kind", spec.Kind)
	return s, nil
}

// CreateCell registers a cell and appends it to owner. Every bound must
// reference a surface of this registry with a Negative or Positive sense,
// and a universe fill must not make owner reachable from itself.
func (r *Registry) CreateCell(id CellID, owner *Universe, bounds []Bound, fill Fill) (*Cell, error) {
	if r.sealed {
		return nil, sealedf("create cell")
	}
	if id == "" {
		return nil, &Error{Kind: KindMalformed, Message: "cell id must not be empty"}
	}
	if _, exists := r.cellIndex[id]; exists {
		return nil, &Error{Kind: KindDuplicateID, Message: "cell id already defined", Cell: id}
	}
	if !r.owns(owner) {
		return nil, &Error{Kind: KindUnknownReference, Message: "owner universe is not part of this registry", Cell: id}
	}

	for i, b := range bounds {
		if b.Surface == nil {
			return nil, &Error{Kind: KindMalformed, Message: fmt.Sprintf("bound %d has no surface", i), Universe: owner.id, Cell: id}
		}
		if !r.ownsSurface(b.Surface) {
			return nil, &Error{
				Kind:     KindUnknownReference,
				Message:  fmt.Sprintf("surface %s is not part of this registry", b.Surface.UserID()),
				Universe: owner.id,
				Cell:     id,
			}
		}
		if b.Sense != surface.Negative && b.Sense != surface.Positive {
			return nil, &Error{
				Kind:     KindMalformed,
				Message:  fmt.Sprintf("bound on surface %s must have sense - or +", b.Surface.UserID()),
				Universe: owner.id,
				Cell:     id,
			}
		}
	}

	switch fill.Kind {
	case FillMaterial, FillVoid:
	case FillUniverse:
		if !r.owns(fill.Universe) {
			return nil, &Error{Kind: KindUnknownReference, Message: "fill universe is not part of this registry", Universe: owner.id, Cell: id}
		}
		if reaches(fill.Universe, owner) {
			return nil, &Error{
				Kind:     KindCycle,
				Message:  fmt.Sprintf("filling with universe %s would make universe %s contain itself", fill.Universe.id, owner.id),
				Universe: owner.id,
				Cell:     id,
			}
		}
		// A Fill literal carries no placement matrices.
		fill = UniverseFill(fill.Universe, fill.Translation, fill.Rotation)
	default:
		return nil, &Error{Kind: KindMalformed, Message: fmt.Sprintf("unknown fill kind %d", fill.Kind), Universe: owner.id, Cell: id}
	}

	c := &Cell{
		id:       id,
		internal: InternalCellID(len(r.cells)),
		bounds:   append([]Bound(nil), bounds...),
		fill:     fill,
		owner:    owner,
	}
	r.cells = append(r.cells, c)
	r.cellIndex[id] = c.internal
	owner.AddCell(c)
	r.logger.Debug("cell created", "cell", id, "universe", owner.id, "fill", fill.Kind)
	return c, nil
}

// reaches reports whether target is from or nested, at any depth, inside it.
func reaches(from, target *Universe) bool {
	seen := make(map[*Universe]bool)
	var walk func(u *Universe) bool
	walk = func(u *Universe) bool {
		if u == target {
			return true
		}
		if seen[u] {
			return false
		}
		seen[u] = true
		for _, c := range u.cells {
			if c.fill.Kind == FillUniverse && c.fill.Universe != nil && walk(c.fill.Universe) {
				return true
			}
		}
		return false
	}
	return walk(from)
}

func (r *Registry) owns(u *Universe) bool {
	if u == nil || int(u.internal) < 0 || int(u.internal) >= len(r.universes) {
		return false
	}
	return r.universes[u.internal] == u
}

func (r *Registry) ownsSurface(s *surface.Surface) bool {
	i := int(s.InternalID())
	return i >= 0 && i < len(r.surfaces) && r.surfaces[i] == s
}

// SetRoot selects the universe tracking starts from.
func (r *Registry) SetRoot(id UniverseID) error {
	if r.sealed {
		return sealedf("set root")
	}
	u := r.UniverseByUserID(id)
	if u == nil {
		return &Error{Kind: KindUnknownReference, Message: "root universe not defined", Universe: id}
	}
	r.root = u
	return nil
}

// Root returns the root universe: the one set with SetRoot, otherwise the
// first universe created. It is nil for an empty registry.
func (r *Registry) Root() *Universe {
	if r.root != nil {
		return r.root
	}
	if len(r.universes) > 0 {
		return r.universes[0]
	}
	return nil
}

// Universe returns the universe with internal id i, or nil.
func (r *Registry) Universe(i InternalUniverseID) *Universe {
	if int(i) < 0 || int(i) >= len(r.universes) {
		return nil
	}
	return r.universes[i]
}

// UniverseByUserID returns the universe named id, or nil.
func (r *Registry) UniverseByUserID(id UniverseID) *Universe {
	i, ok := r.universeIndex[id]
	if !ok {
		return nil
	}
	return r.universes[i]
}

// Cell returns the cell with internal id i, or nil.
func (r *Registry) Cell(i InternalCellID) *Cell {
	if int(i) < 0 || int(i) >= len(r.cells) {
		return nil
	}
	return r.cells[i]
}

// CellByUserID returns the cell named id, or nil.
func (r *Registry) CellByUserID(id CellID) *Cell {
	i, ok := r.cellIndex[id]
	if !ok {
		return nil
	}
	return r.cells[i]
}

// Surface returns the surface with internal id i, or nil.
func (r *Registry) Surface(i surface.InternalID) *surface.Surface {
	if int(i) < 0 || int(i) >= len(r.surfaces) {
		return nil
	}
	return r.surfaces[i]
}

// SurfaceByUserID returns the surface named id, or nil.
func (r *Registry) SurfaceByUserID(id surface.ID) *surface.Surface {
	i, ok := r.surfaceIndex[id]
	if !ok {
		return nil
	}
	return r.surfaces[i]
}

// Universes returns all universes in internal id order.
func (r *Registry) Universes() []*Universe {
	return append([]*Universe(nil), r.universes...)
}

// Cells returns all cells in internal id order.
func (r *Registry) Cells() []*Cell {
	return append([]*Cell(nil), r.cells...)
}

// Surfaces returns all surfaces in internal id order.
func (r *Registry) Surfaces() []*surface.Surface {
	return append([]*surface.Surface(nil), r.surfaces...)
}

func (r *Registry) UniverseCount() int { return len(r.universes) }
func (r *Registry) CellCount() int     { return len(r.cells) }
func (r *Registry) SurfaceCount() int  { return len(r.surfaces) }

// Seal runs structural validation and, if no errors are found, makes the
// registry read-only. Warnings are logged. Sealing twice is a no-op.
func (r *Registry) Seal() error {
	if r.sealed {
		return nil
	}
	var errs []ValidationError
	for _, v := range Validate(r) {
		if v.Severity == SeverityWarning {
			r.logger.Warn("geometry warning", "universe", v.Universe, "cell", v.Cell, "message", v.Message)
			continue
		}
		errs = append(errs, v)
	}
	if len(errs) > 0 {
		return &Error{
			Kind:     KindInvalid,
			Message:  fmt.Sprintf("geometry has %d validation error(s), first: %s", len(errs), errs[0].Message),
			Universe: errs[0].Universe,
			Cell:     errs[0].Cell,
		}
	}
	r.sealed = true
	r.logger.Info("geometry sealed",
		"universes", len(r.universes),
		"cells", len(r.cells),
		"surfaces", len(r.surfaces),
		"root", r.Root().UserID(),
	)
	return nil
}

// Sealed reports whether Seal has succeeded.
func (r *Registry) Sealed() bool { return r.sealed }
