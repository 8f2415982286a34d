package tracker_test

import (
	"errors"
	"math"
	"sync"
	"testing"

	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/xiaopingguo165/helios/pkg/geometry"
	"github.com/xiaopingguo165/helios/pkg/surface"
	"github.com/xiaopingguo165/helios/pkg/tracker"
)

// builder keeps test geometry construction short.
type builder struct {
	t *testing.T
	r *geometry.Registry
}

func newBuilder(t *testing.T) *builder {
	return &builder{t: t, r: geometry.NewRegistry()}
}

func (b *builder) universe(id geometry.UniverseID) *geometry.Universe {
	b.t.Helper()
	u, err := b.r.CreateUniverse(id)
	if err != nil {
		b.t.Fatalf("CreateUniverse(%s): %v", id, err)
	}
	return u
}

func (b *builder) sphere(id surface.ID, center v3.Vec, radius float64) *surface.Surface {
	b.t.Helper()
	return b.surface(id, surface.Spec{Kind: surface.KindSphere, Center: center, Radius: radius})
}

func (b *builder) surface(id surface.ID, spec surface.Spec) *surface.Surface {
	b.t.Helper()
	s, err := b.r.CreateSurface(id, spec)
	if err != nil {
		b.t.Fatalf("CreateSurface(%s): %v", id, err)
	}
	return s
}

func (b *builder) cell(id geometry.CellID, u *geometry.Universe, fill geometry.Fill, bounds ...geometry.Bound) *geometry.Cell {
	b.t.Helper()
	c, err := b.r.CreateCell(id, u, bounds, fill)
	if err != nil {
		b.t.Fatalf("CreateCell(%s): %v", id, err)
	}
	return c
}

func (b *builder) tracker() *tracker.Tracker {
	b.t.Helper()
	tr, err := tracker.New(b.r)
	if err != nil {
		b.t.Fatalf("tracker.New: %v", err)
	}
	return tr
}

func in(s *surface.Surface) geometry.Bound  { return geometry.Bound{Surface: s, Sense: surface.Negative} }
func out(s *surface.Surface) geometry.Bound { return geometry.Bound{Surface: s, Sense: surface.Positive} }

// spheres builds A inside S1, B between S1 and S10 and a void outside S10.
func spheres(t *testing.T, withVoid bool) *builder {
	b := newBuilder(t)
	u := b.universe("0")
	s1 := b.sphere("S1", v3.Vec{}, 1)
	s10 := b.sphere("S10", v3.Vec{}, 10)
	b.cell("A", u, geometry.MaterialFill("fuel"), in(s1))
	b.cell("B", u, geometry.MaterialFill("water"), out(s1), in(s10))
	if withVoid {
		b.cell("void", u, geometry.VoidFill(), out(s10))
	}
	return b
}

func TestSphereCrossing(t *testing.T) {
	tr := spheres(t, true).tracker()
	tk, err := tr.Locate(v3.Vec{}, v3.Vec{X: 1})
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if tk.Cell().UserID() != "A" {
		t.Fatalf("located in %s, want A", tk.Cell().UserID())
	}

	c, err := tr.NextCrossing(tk)
	if err != nil {
		t.Fatalf("NextCrossing: %v", err)
	}
	if math.Abs(c.Distance-1) > 1e-12 || c.Surface.UserID() != "S1" || c.Level != 0 {
		t.Errorf("crossing = %+v, want distance 1 at S1 level 0", c)
	}

	ev, err := tr.Cross(tk, c)
	if err != nil {
		t.Fatalf("Cross: %v", err)
	}
	if ev.Kind != tracker.EventCrossed || ev.From.UserID() != "A" || ev.To.UserID() != "B" {
		t.Errorf("event = %v, want crossed A -> B", ev)
	}
	if tk.Cell().UserID() != "B" {
		t.Errorf("track cell = %s, want B", tk.Cell().UserID())
	}
	if x := tk.Position().X; x <= 1 || x > 1+2*surface.Epsilon {
		t.Errorf("position x = %g, want just past 1", x)
	}
}

func TestWalkEscapes(t *testing.T) {
	tr := spheres(t, true).tracker()
	tk, err := tr.Locate(v3.Vec{Y: 0.5}, v3.Vec{Y: 2})
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	events, err := tr.Walk(tk, 10)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2: %v", len(events), events)
	}
	if events[1].Kind != tracker.EventEscaped || events[1].To.UserID() != "void" {
		t.Errorf("last event = %v, want escape into void", events[1])
	}
	if !tk.Escaped() {
		t.Error("track should be escaped")
	}
	if _, err := tr.Step(tk); !errors.Is(err, tracker.ErrEscaped) {
		t.Errorf("Step after escape = %v, want ErrEscaped", err)
	}
}

func TestLostParticle(t *testing.T) {
	tr := spheres(t, false).tracker()
	tk, err := tr.Locate(v3.Vec{}, v3.Vec{Z: -1})
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	_, err = tr.Walk(tk, 10)
	if !geometry.IsLostParticle(err) {
		t.Fatalf("Walk = %v, want lost particle", err)
	}
	var ge *geometry.Error
	if !errors.As(err, &ge) || ge.Universe != "0" {
		t.Errorf("lost particle error should name universe 0: %v", err)
	}
	if !tk.Stale() {
		t.Error("lost track should be stale")
	}

	if _, err := tr.Locate(v3.Vec{X: 50}, v3.Vec{X: 1}); !geometry.IsLostParticle(err) {
		t.Errorf("Locate outside every cell = %v, want lost particle", err)
	}
}

func TestNoCrossingInUnboundedCell(t *testing.T) {
	b := newBuilder(t)
	u := b.universe("0")
	s1 := b.sphere("S1", v3.Vec{}, 1)
	b.cell("A", u, geometry.MaterialFill("m"), in(s1))
	b.cell("B", u, geometry.MaterialFill("m"), out(s1))
	tr := b.tracker()

	tk, err := tr.Locate(v3.Vec{}, v3.Vec{X: 1})
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if _, err := tr.Step(tk); err != nil {
		t.Fatalf("first Step: %v", err)
	}
	if _, err := tr.Step(tk); geometry.KindOf(err) != geometry.KindNoCrossing {
		t.Errorf("second Step = %v, want no crossing", err)
	}
}

// nested builds U1 with cell C (inside a radius 5 sphere) filled with U2
// shifted to (2, 0, 0). U2 holds a unit core and padding around it.
func nested(t *testing.T) *builder {
	b := newBuilder(t)
	u1 := b.universe("U1")
	u2 := b.universe("U2")
	s5 := b.sphere("S5", v3.Vec{}, 5)
	s20 := b.sphere("S20", v3.Vec{}, 20)
	core := b.sphere("core", v3.Vec{}, 1)

	b.cell("C", u1, geometry.UniverseFill(u2, v3.Vec{X: 2}, v3.Vec{}), in(s5))
	b.cell("moderator", u1, geometry.MaterialFill("water"), out(s5), in(s20))
	b.cell("void", u1, geometry.VoidFill(), out(s20))
	b.cell("fuel", u2, geometry.MaterialFill("uo2"), in(core))
	b.cell("pad", u2, geometry.MaterialFill("water"), out(core))
	return b
}

func TestNestedUniverse(t *testing.T) {
	tr := nested(t).tracker()
	tk, err := tr.Locate(v3.Vec{X: 2}, v3.Vec{X: 1})
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if tk.Depth() != 2 || tk.Cell().UserID() != "fuel" {
		t.Fatalf("located at depth %d in %v, want depth 2 in fuel", tk.Depth(), tk.Cell())
	}
	if p := tk.Frames()[1].Position; math.Abs(p.X) > 1e-12 {
		t.Errorf("local position = %+v, want origin", p)
	}

	// Leave the core inside U2.
	ev, err := tr.Step(tk)
	if err != nil {
		t.Fatalf("Step 1: %v", err)
	}
	if ev.To.UserID() != "pad" || math.Abs(ev.Distance-1) > 1e-12 {
		t.Errorf("step 1 = %v, want fuel -> pad after 1", ev)
	}

	// Leave U2 through C's boundary and re-locate in U1 at the same point.
	ev, err = tr.Step(tk)
	if err != nil {
		t.Fatalf("Step 2: %v", err)
	}
	if ev.From.UserID() != "pad" || ev.To.UserID() != "moderator" {
		t.Errorf("step 2 = %v, want pad -> moderator", ev)
	}
	if math.Abs(ev.Distance-2) > 1e-7 || ev.Surface.UserID() != "S5" {
		t.Errorf("step 2 crossed %s after %g, want S5 after 2", ev.Surface.UserID(), ev.Distance)
	}
	if tk.Depth() != 1 {
		t.Errorf("depth = %d after leaving U2, want 1", tk.Depth())
	}
	if x := tk.Position().X; math.Abs(x-5) > 1e-7 {
		t.Errorf("global x = %g, want 5", x)
	}

	ev, err = tr.Step(tk)
	if err != nil || ev.Kind != tracker.EventEscaped {
		t.Errorf("step 3 = %v, %v; want escape", ev, err)
	}
}

func TestNestedRotatedFill(t *testing.T) {
	b := newBuilder(t)
	u1 := b.universe("U1")
	u2 := b.universe("U2")
	s5 := b.sphere("S5", v3.Vec{}, 5)
	lo := b.surface("lo", surface.Spec{Kind: surface.KindPlaneX, D: -1})
	hi := b.surface("hi", surface.Spec{Kind: surface.KindPlaneX, D: 1})

	// Turned 90 degrees about z, the slab |x| < 1 of U2 lies along |y| < 1
	// around the holder's origin at (2, 0, 0).
	b.cell("holder", u1, geometry.UniverseFill(u2, v3.Vec{X: 2}, v3.Vec{Z: 90}), in(s5))
	b.cell("void", u1, geometry.VoidFill(), out(s5))
	b.cell("left", u2, geometry.MaterialFill("m"), in(lo))
	b.cell("slab", u2, geometry.MaterialFill("m"), out(lo), in(hi))
	b.cell("right", u2, geometry.MaterialFill("m"), out(hi))
	tr := b.tracker()

	tk, err := tr.Locate(v3.Vec{}, v3.Vec{Y: 1})
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if tk.Cell().UserID() != "slab" {
		t.Fatalf("located in %s, want slab", tk.Cell().UserID())
	}
	local := tk.Frames()[1]
	if !near(local.Position, v3.Vec{Y: 2}, 1e-12) || !near(local.Direction, v3.Vec{X: 1}, 1e-12) {
		t.Errorf("local frame pos=%+v dir=%+v, want (0, 2, 0) heading +x", local.Position, local.Direction)
	}

	ev, err := tr.Step(tk)
	if err != nil {
		t.Fatalf("Step 1: %v", err)
	}
	if ev.To.UserID() != "right" || ev.Surface.UserID() != "hi" || math.Abs(ev.Distance-1) > 1e-9 {
		t.Errorf("step 1 = %v, want slab -> right through hi after 1", ev)
	}
	if !near(ev.Position, v3.Vec{Y: 1}, 1e-6) {
		t.Errorf("step 1 position = %+v, want (0, 1, 0)", ev.Position)
	}

	ev, err = tr.Step(tk)
	if err != nil {
		t.Fatalf("Step 2: %v", err)
	}
	if ev.Kind != tracker.EventEscaped || ev.Surface.UserID() != "S5" || math.Abs(ev.Distance-4) > 1e-6 {
		t.Errorf("step 2 = %v, want escape through S5 after 4", ev)
	}
	if !near(tk.Position(), v3.Vec{Y: 5}, 1e-6) {
		t.Errorf("exit position = %+v, want (0, 5, 0)", tk.Position())
	}
}

// pinRow builds two pins of pitch 1.26 side by side along x, each a fuel
// rod, a clad ring and moderator, inside a void.
func pinRow(t *testing.T) *builder {
	const pitch = 1.26
	b := newBuilder(t)
	core := b.universe("core")
	pin := b.universe("pin")

	fuelOR := b.surface("fuel-or", surface.Spec{Kind: surface.KindCylinderZ, Radius: 0.41})
	cladOR := b.surface("clad-or", surface.Spec{Kind: surface.KindCylinderZ, Radius: 0.475})
	b.cell("fuel", pin, geometry.MaterialFill("uo2"), in(fuelOR))
	b.cell("clad", pin, geometry.MaterialFill("zr"), out(fuelOR), in(cladOR))
	b.cell("moderator", pin, geometry.MaterialFill("water"), out(cladOR))

	plane := func(id surface.ID, k surface.Kind, d float64) *surface.Surface {
		return b.surface(id, surface.Spec{Kind: k, D: d})
	}
	xmin := plane("x-min", surface.KindPlaneX, -pitch)
	xmid := plane("x-mid", surface.KindPlaneX, 0)
	xmax := plane("x-max", surface.KindPlaneX, pitch)
	ymin := plane("y-min", surface.KindPlaneY, -pitch/2)
	ymax := plane("y-max", surface.KindPlaneY, pitch/2)

	b.cell("pin-0", core, geometry.UniverseFill(pin, v3.Vec{X: -pitch / 2}, v3.Vec{}), out(xmin), in(xmid), out(ymin), in(ymax))
	b.cell("pin-1", core, geometry.UniverseFill(pin, v3.Vec{X: pitch / 2}, v3.Vec{}), out(xmid), in(xmax), out(ymin), in(ymax))
	b.cell("outside-x-", core, geometry.VoidFill(), in(xmin))
	b.cell("outside-x+", core, geometry.VoidFill(), out(xmax))
	b.cell("outside-y-", core, geometry.VoidFill(), in(ymin))
	b.cell("outside-y+", core, geometry.VoidFill(), out(ymax))
	return b
}

func TestWalkPinRow(t *testing.T) {
	tr := pinRow(t).tracker()
	tk, err := tr.Locate(v3.Vec{X: -0.63}, v3.Vec{X: 1})
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}

	want := []struct {
		surface  surface.ID
		distance float64
		to       geometry.CellID
		x        float64 // global x after the crossing
	}{
		{"fuel-or", 0.41, "clad", -0.22},
		{"clad-or", 0.065, "moderator", -0.155},
		{"x-mid", 0.155, "moderator", 0},
		{"clad-or", 0.155, "clad", 0.155},
		{"fuel-or", 0.065, "fuel", 0.22},
		{"fuel-or", 0.82, "clad", 1.04},
		{"clad-or", 0.065, "moderator", 1.105},
		{"x-max", 0.155, "outside-x+", 1.26},
	}

	events, err := tr.Walk(tk, 20)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d: %v", len(events), len(want), events)
	}
	for i, w := range want {
		ev := events[i]
		if ev.Surface.UserID() != w.surface || ev.To.UserID() != w.to {
			t.Errorf("event %d = %v, want -> %s through %s", i, ev, w.to, w.surface)
		}
		if math.Abs(ev.Distance-w.distance) > 1e-6 {
			t.Errorf("event %d distance = %.9f, want %g", i, ev.Distance, w.distance)
		}
		if math.Abs(ev.Position.X-w.x) > 1e-6 {
			t.Errorf("event %d at x = %.9f, want %g", i, ev.Position.X, w.x)
		}
	}
	if last := events[len(events)-1]; last.Kind != tracker.EventEscaped {
		t.Errorf("last event = %v, want escape", last)
	}
	if tk.Frames()[0].Cell.UserID() != "outside-x+" {
		t.Errorf("track ended in %v", tk.Cell())
	}
}

func TestNestedGapIsLost(t *testing.T) {
	b := newBuilder(t)
	u1 := b.universe("U1")
	u2 := b.universe("U2")
	s5 := b.sphere("S5", v3.Vec{}, 5)
	core := b.sphere("core", v3.Vec{}, 1)
	b.cell("C", u1, geometry.UniverseFill(u2, v3.Vec{}, v3.Vec{}), in(s5))
	b.cell("void", u1, geometry.VoidFill(), out(s5))
	b.cell("fuel", u2, geometry.MaterialFill("uo2"), in(core))
	tr := b.tracker()

	tk, err := tr.Locate(v3.Vec{}, v3.Vec{X: 1})
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	_, err = tr.Step(tk)
	if !geometry.IsLostParticle(err) {
		t.Fatalf("Step = %v, want lost particle", err)
	}
	var ge *geometry.Error
	if !errors.As(err, &ge) || ge.Universe != "U2" {
		t.Errorf("error should name U2: %v", err)
	}
}

func TestAdvanceAndSetDirection(t *testing.T) {
	tr := spheres(t, true).tracker()
	tk, err := tr.Locate(v3.Vec{}, v3.Vec{X: 1})
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}

	if err := tr.Advance(tk, 0.5); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if tk.Stale() {
		t.Error("a move inside the cell must not make the track stale")
	}
	if err := tr.SetDirection(tk, v3.Vec{X: -3}); err != nil {
		t.Fatalf("SetDirection: %v", err)
	}
	c, err := tr.NextCrossing(tk)
	if err != nil {
		t.Fatalf("NextCrossing: %v", err)
	}
	if math.Abs(c.Distance-1.5) > 1e-12 {
		t.Errorf("distance after turning = %g, want 1.5", c.Distance)
	}

	// Jump across S1; the next query relocates the track.
	if err := tr.Advance(tk, 3); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if !tk.Stale() {
		t.Fatal("moving out of the cell should make the track stale")
	}
	if _, err := tr.NextCrossing(tk); err != nil {
		t.Fatalf("NextCrossing after jump: %v", err)
	}
	if tk.Stale() || tk.Cell().UserID() != "B" {
		t.Errorf("track should be relocated into B, got %v", tk.Cell())
	}

	if err := tr.Advance(tk, -1); geometry.KindOf(err) != geometry.KindMalformed {
		t.Errorf("Advance(-1) = %v, want malformed", err)
	}
	if err := tr.SetDirection(tk, v3.Vec{}); geometry.KindOf(err) != geometry.KindMalformed {
		t.Errorf("SetDirection(0) = %v, want malformed", err)
	}
	if _, err := tr.Locate(v3.Vec{}, v3.Vec{}); geometry.KindOf(err) != geometry.KindMalformed {
		t.Errorf("Locate with zero direction = %v, want malformed", err)
	}
}

func TestNewRejectsInvalidGeometry(t *testing.T) {
	b := newBuilder(t)
	b.universe("empty")
	if _, err := tracker.New(b.r); geometry.KindOf(err) != geometry.KindInvalid {
		t.Errorf("New = %v, want invalid geometry", err)
	}
}

func TestConcurrentTracks(t *testing.T) {
	tr := nested(t).tracker()
	dirs := []v3.Vec{{X: 1}, {X: -1}, {Y: 1}, {Y: -1}, {Z: 1}, {Z: -1}, {X: 1, Y: 1, Z: 1}}

	var wg sync.WaitGroup
	errs := make([]error, len(dirs))
	for i, d := range dirs {
		wg.Add(1)
		go func(i int, d v3.Vec) {
			defer wg.Done()
			tk, err := tr.Locate(v3.Vec{X: 2}, d)
			if err != nil {
				errs[i] = err
				return
			}
			_, errs[i] = tr.Walk(tk, 100)
		}(i, d)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Errorf("direction %+v: %v", dirs[i], err)
		}
	}
}

func near(a, b v3.Vec, tol float64) bool {
	return math.Abs(a.X-b.X) < tol && math.Abs(a.Y-b.Y) < tol && math.Abs(a.Z-b.Z) < tol
}
