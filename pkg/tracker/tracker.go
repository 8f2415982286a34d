// Package tracker moves particles through a sealed geometry. A Tracker is
// shared, read-only and safe for concurrent use; each particle's mutable
// state lives in a Track owned by one goroutine.
package tracker

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/xiaopingguo165/helios/pkg/geometry"
	"github.com/xiaopingguo165/helios/pkg/surface"
)

// ErrEscaped is returned when stepping a track that has already entered a
// void cell.
var ErrEscaped = errors.New("tracker: track has escaped")

// Tracker answers locate and crossing queries against one geometry.
type Tracker struct {
	reg    *geometry.Registry
	root   *geometry.Universe
	logger *slog.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger used for lost-particle diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// New seals r if necessary and returns a tracker over it.
func New(r *geometry.Registry, opts ...Option) (*Tracker, error) {
	if err := r.Seal(); err != nil {
		return nil, fmt.Errorf("tracker: %w", err)
	}
	tr := &Tracker{reg: r, root: r.Root(), logger: slog.Default()}
	for _, opt := range opts {
		opt(tr)
	}
	tr.logger = tr.logger.With("component", "tracker")
	return tr, nil
}

// Registry returns the geometry the tracker walks.
func (tr *Tracker) Registry() *geometry.Registry { return tr.reg }

// Frame is one level of a track's nesting stack. Level 0 is the root
// universe in global coordinates. ToLocal maps global coordinates into the
// frame's universe.
type Frame struct {
	Universe  *geometry.Universe
	Cell      *geometry.Cell
	Position  v3.Vec
	Direction v3.Vec
	ToLocal   sdf.M44
}

// Track is the mutable state of one particle.
type Track struct {
	pos, dir v3.Vec
	frames   []Frame
	stale    bool
	escaped  bool
}

// Position returns the global position.
func (t *Track) Position() v3.Vec { return t.pos }

// Direction returns the global unit direction.
func (t *Track) Direction() v3.Vec { return t.dir }

// Depth returns the number of frames on the stack.
func (t *Track) Depth() int { return len(t.frames) }

// Frames returns a copy of the nesting stack, outermost first.
func (t *Track) Frames() []Frame { return append([]Frame(nil), t.frames...) }

// Cell returns the innermost cell, or nil if the track is unlocated.
func (t *Track) Cell() *geometry.Cell {
	if len(t.frames) == 0 {
		return nil
	}
	return t.frames[len(t.frames)-1].Cell
}

// Escaped reports whether the track has entered a void cell.
func (t *Track) Escaped() bool { return t.escaped }

// Stale reports whether the track must be relocated before it is stepped.
func (t *Track) Stale() bool { return t.stale }

// Locate creates a track at global position pos heading along dir and
// descends from the root universe to the innermost containing cell.
func (tr *Tracker) Locate(pos, dir v3.Vec) (*Track, error) {
	l := dir.Length()
	if l == 0 || math.IsNaN(l) || math.IsInf(l, 0) {
		return nil, &geometry.Error{Kind: geometry.KindMalformed, Message: "direction must be a finite non-zero vector"}
	}
	t := &Track{pos: pos, dir: dir.MulScalar(1 / l)}
	if err := tr.descend(t, tr.root, sdf.Identity3d()); err != nil {
		return nil, err
	}
	return t, nil
}

// Relocate rebuilds the nesting stack of t from its current position.
func (tr *Tracker) Relocate(t *Track) error {
	t.frames = t.frames[:0]
	t.escaped = false
	if err := tr.descend(t, tr.root, sdf.Identity3d()); err != nil {
		t.stale = true
		return err
	}
	t.stale = false
	return nil
}

// descend finds the cell containing t in u and keeps pushing frames while
// the cell is filled with a nested universe.
func (tr *Tracker) descend(t *Track, u *geometry.Universe, toLocal sdf.M44) error {
	for {
		p := toLocal.MulPosition(t.pos)
		c := u.FindCell(p)
		if c == nil {
			return geometry.LostParticle(u, t.Cell(), t.pos)
		}
		t.frames = append(t.frames, Frame{
			Universe:  u,
			Cell:      c,
			Position:  p,
			Direction: localDirection(toLocal, t.dir),
			ToLocal:   toLocal,
		})
		f := c.Fill()
		switch f.Kind {
		case geometry.FillUniverse:
			toLocal = f.ToLocal().Mul(toLocal)
			u = f.Universe
		case geometry.FillVoid:
			t.escaped = true
			return nil
		default:
			return nil
		}
	}
}

func localDirection(m sdf.M44, d v3.Vec) v3.Vec {
	return m.MulPosition(d).Sub(m.MulPosition(v3.Vec{}))
}

// Crossing is the nearest surface a track will cross.
type Crossing struct {
	Distance float64
	Surface  *surface.Surface
	Level    int // frame whose cell the surface bounds
}

// NextCrossing returns the nearest surface crossing over every level of
// the nesting stack. On a tie the outermost level wins, so leaving a
// nested universe through its parent cell's boundary is resolved in the
// parent frame.
func (tr *Tracker) NextCrossing(t *Track) (Crossing, error) {
	if t.escaped {
		return Crossing{}, ErrEscaped
	}
	if t.stale {
		if err := tr.Relocate(t); err != nil {
			return Crossing{}, err
		}
	}
	best := Crossing{Distance: math.Inf(1), Level: -1}
	for level, f := range t.frames {
		for i, n := 0, f.Cell.BoundCount(); i < n; i++ {
			b := f.Cell.Bound(i)
			d, ok := b.Surface.DistanceTo(f.Position, f.Direction)
			if ok && d < best.Distance {
				best = Crossing{Distance: d, Surface: b.Surface, Level: level}
			}
		}
	}
	if best.Surface == nil {
		return best, geometry.NoCrossing(t.Cell(), t.pos, t.dir)
	}
	return best, nil
}

// EventKind classifies the outcome of a crossing.
type EventKind int

const (
	EventCrossed EventKind = iota // entered a material or nested cell
	EventEscaped                  // entered a void cell
)

func (k EventKind) String() string {
	switch k {
	case EventCrossed:
		return "crossed"
	case EventEscaped:
		return "escaped"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event records one surface crossing.
type Event struct {
	Kind     EventKind
	Distance float64
	Surface  *surface.Surface
	From     *geometry.Cell
	To       *geometry.Cell
	Position v3.Vec
}

func (e Event) String() string {
	from, to := "-", "-"
	if e.From != nil {
		from = string(e.From.UserID())
	}
	if e.To != nil {
		to = string(e.To.UserID())
	}
	return fmt.Sprintf("%s %s -> %s through %s after %g", e.Kind, from, to, e.Surface.UserID(), e.Distance)
}

// Cross moves t through the surface of c and finds the cell on the other
// side. Frames outside the crossing level are kept and moved to the new
// point; if the crossing level's universe has no cell there the search
// moves out one level at a time. A lost-particle error leaves t stale.
func (tr *Tracker) Cross(t *Track, c Crossing) (Event, error) {
	if t.escaped {
		return Event{}, ErrEscaped
	}
	if c.Level < 0 || c.Level >= len(t.frames) {
		return Event{}, &geometry.Error{Kind: geometry.KindInvalid, Message: fmt.Sprintf("crossing level %d outside stack of depth %d", c.Level, len(t.frames))}
	}
	from := t.Cell()
	t.pos = t.pos.Add(t.dir.MulScalar(c.Distance + surface.Epsilon))

	// Frames outside the crossing level follow the particle. The first one
	// whose cell no longer holds it becomes the level to re-locate from.
	start := c.Level
	for i := 0; i < c.Level; i++ {
		f := &t.frames[i]
		f.Position = f.ToLocal.MulPosition(t.pos)
		if !f.Cell.Contains(f.Position) {
			start = i
			break
		}
	}

	var err error
	for level := start; level >= 0; level-- {
		f := t.frames[level]
		t.frames = t.frames[:level]
		if err = tr.descend(t, f.Universe, f.ToLocal); err == nil {
			break
		}
		t.frames = t.frames[:level]
	}
	if err != nil {
		t.stale = true
		tr.logger.Debug("lost particle", "error", err)
		return Event{}, err
	}

	ev := Event{
		Kind:     EventCrossed,
		Distance: c.Distance,
		Surface:  c.Surface,
		From:     from,
		To:       t.Cell(),
		Position: t.pos,
	}
	if t.escaped {
		ev.Kind = EventEscaped
	}
	return ev, nil
}

// Step finds the next crossing and performs it.
func (tr *Tracker) Step(t *Track) (Event, error) {
	c, err := tr.NextCrossing(t)
	if err != nil {
		return Event{}, err
	}
	return tr.Cross(t, c)
}

// Advance moves t a distance s along its direction without crossing a
// surface. The caller (typically a physics collision sampler) must keep s
// below the next crossing distance; a longer move marks the track stale so
// the next step relocates it.
func (tr *Tracker) Advance(t *Track, s float64) error {
	if t.escaped {
		return ErrEscaped
	}
	if s < 0 || math.IsNaN(s) {
		return &geometry.Error{Kind: geometry.KindMalformed, Message: fmt.Sprintf("advance distance %g must be non-negative", s)}
	}
	t.pos = t.pos.Add(t.dir.MulScalar(s))
	for i := range t.frames {
		f := &t.frames[i]
		f.Position = f.ToLocal.MulPosition(t.pos)
		if !f.Cell.Contains(f.Position) {
			t.stale = true
		}
	}
	return nil
}

// SetDirection changes the direction of t, for example after a collision.
func (tr *Tracker) SetDirection(t *Track, d v3.Vec) error {
	l := d.Length()
	if l == 0 || math.IsNaN(l) || math.IsInf(l, 0) {
		return &geometry.Error{Kind: geometry.KindMalformed, Message: "direction must be a finite non-zero vector"}
	}
	t.dir = d.MulScalar(1 / l)
	for i := range t.frames {
		t.frames[i].Direction = localDirection(t.frames[i].ToLocal, t.dir)
	}
	return nil
}

// Walk steps t until it escapes, is lost, or has taken maxSteps steps. A
// non-positive maxSteps means no limit. The events taken so far are
// returned together with any error.
func (tr *Tracker) Walk(t *Track, maxSteps int) ([]Event, error) {
	var events []Event
	for i := 0; maxSteps <= 0 || i < maxSteps; i++ {
		ev, err := tr.Step(t)
		if err != nil {
			return events, err
		}
		events = append(events, ev)
		if ev.Kind == EventEscaped {
			return events, nil
		}
	}
	return events, &geometry.Error{Kind: geometry.KindInvalid, Message: fmt.Sprintf("track did not escape within %d steps", maxSteps)}
}
