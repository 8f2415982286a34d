package engine

import (
	"fmt"
	"strings"

	v3 "github.com/deadsy/sdfx/vec/v3"
	zygo "github.com/glycerine/zygomys/zygo"

	"github.com/xiaopingguo165/helios/pkg/geometry"
	"github.com/xiaopingguo165/helios/pkg/surface"
)

// ---------------------------------------------------------------------------
// Source preprocessing
// ---------------------------------------------------------------------------

// preprocessSource rewrites geometry source before zygomys sees it:
//
//  1. :keyword becomes the string literal "__kw_keyword", so keywords
//     never collide with user variables.
//  2. kebab-case identifiers become snake_case (zygomys reads a hyphen as
//     subtraction), so (def pin-pitch 1.26) binds pin_pitch.
//  3. ; line comments become // comments.
//
// String literals are left untouched.
func preprocessSource(source string) string {
	result := make([]byte, 0, len(source)+len(source)/4)
	b := []byte(source)
	i := 0
	for i < len(b) {
		// Skip double-quoted string literals.
		if b[i] == '"' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '"' {
				if b[i] == '\\' && i+1 < len(b) {
					result = append(result, b[i], b[i+1])
					i += 2
					continue
				}
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Skip backtick-quoted string literals.
		if b[i] == '`' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '`' {
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		if b[i] == ';' {
			result = append(result, '/', '/')
			i++
			for i < len(b) && b[i] == ';' {
				i++
			}
			for i < len(b) && b[i] != '\n' {
				result = append(result, b[i])
				i++
			}
			continue
		}
		if b[i] == ':' && i+1 < len(b) {
			// := is assignment, not a keyword.
			if b[i+1] == '=' {
				result = append(result, b[i], b[i+1])
				i += 2
				continue
			}
			if isLetter(b[i+1]) {
				j := i + 1
				for j < len(b) && isKWChar(b[j]) {
					j++
				}
				kwName := string(b[i+1 : j])
				result = append(result, '"')
				result = append(result, []byte(kwPrefix)...)
				result = append(result, []byte(kwName)...)
				result = append(result, '"')
				i = j
				continue
			}
		}
		// A hyphen between identifier characters is part of a name; anywhere
		// else it is the minus operator.
		if b[i] == '-' && i > 0 && i+1 < len(b) &&
			isIdentChar(b[i-1]) && isIdentStartChar(b[i+1]) {
			result = append(result, '_')
			i++
			continue
		}
		result = append(result, b[i])
		i++
	}
	return string(result)
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}

func isIdentStartChar(c byte) bool {
	return isLetter(c)
}

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpVec3 wraps a v3.Vec.
type sexpVec3 struct {
	vec v3.Vec
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %g %g %g)", v.vec.X, v.vec.Y, v.vec.Z)
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

// sexpSurface is returned by `surface`.
type sexpSurface struct {
	s *surface.Surface
}

func (s *sexpSurface) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(surface %q)", s.s.UserID())
}
func (s *sexpSurface) Type() *zygo.RegisteredType { return nil }

// sexpUniverse is returned by `universe` and accepted wherever a universe
// id is.
type sexpUniverse struct {
	u *geometry.Universe
}

func (u *sexpUniverse) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(universe %q)", u.u.UserID())
}
func (u *sexpUniverse) Type() *zygo.RegisteredType { return nil }

// sexpCell is returned by `cell`.
type sexpCell struct {
	c *geometry.Cell
}

func (c *sexpCell) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(cell %q)", c.c.UserID())
}
func (c *sexpCell) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// isKW reports whether s is a preprocessed keyword and returns its name.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], true
	}
	return "", false
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	flags      map[string]bool
	positional []zygo.Sexp
}

// parseArgs separates args into keyword, flag and positional arguments.
// Keywords named in flags take no value; every other keyword consumes the
// argument after it.
func parseArgs(args []zygo.Sexp, flags ...string) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp), flags: make(map[string]bool)}
	isFlag := make(map[string]bool, len(flags))
	for _, f := range flags {
		isFlag[f] = true
	}
	for i := 0; i < len(args); i++ {
		name, ok := isKW(args[i])
		switch {
		case !ok:
			result.positional = append(result.positional, args[i])
		case isFlag[name]:
			result.flags[name] = true
		case i+1 < len(args):
			result.kw[name] = args[i+1]
			i++
		default:
			// Trailing keyword with no value.
			result.kw[name] = zygo.SexpNull
		}
	}
	return result
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toString extracts a string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toVec3 extracts a v3.Vec from a sexpVec3.
func toVec3(s zygo.Sexp) (v3.Vec, error) {
	if v, ok := s.(*sexpVec3); ok {
		return v.vec, nil
	}
	return v3.Vec{}, fmt.Errorf("expected vec3, got %T (%s)", s, s.SexpString(nil))
}

// toUniverse resolves a universe reference or a universe id string.
func toUniverse(reg *geometry.Registry, s zygo.Sexp) (*geometry.Universe, error) {
	if ref, ok := s.(*sexpUniverse); ok {
		return ref.u, nil
	}
	id, err := toString(s)
	if err != nil {
		return nil, fmt.Errorf("expected universe or universe id: %w", err)
	}
	u := reg.UniverseByUserID(geometry.UniverseID(id))
	if u == nil {
		return nil, fmt.Errorf("no universe named %q", id)
	}
	return u, nil
}

// toBound resolves a signed surface reference such as "-fuel-or".
func toBound(reg *geometry.Registry, s zygo.Sexp) (geometry.Bound, error) {
	ref, err := toString(s)
	if err != nil {
		return geometry.Bound{}, err
	}
	id, sense, err := surface.ParseSense(ref)
	if err != nil {
		return geometry.Bound{}, err
	}
	surf := reg.SurfaceByUserID(id)
	if surf == nil {
		return geometry.Bound{}, fmt.Errorf("no surface named %q", id)
	}
	return geometry.Bound{Surface: surf, Sense: sense}, nil
}

// sexpListToSlice converts a SexpPair (Lisp list) or SexpArray to a Go slice.
func sexpListToSlice(s zygo.Sexp) ([]zygo.Sexp, error) {
	switch v := s.(type) {
	case *zygo.SexpPair:
		return zygo.ListToArray(v)
	case *zygo.SexpArray:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected list or array, got %T", s)
}

// surfaceKinds lists every surface keyword, used as flags by `surface`.
func surfaceKinds() []string {
	var names []string
	for k := surface.KindPlaneX; k <= surface.KindCylinderZ; k++ {
		names = append(names, k.String())
	}
	return names
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// registerBuiltins installs the geometry builtins into a zygomys
// environment. Every builtin constructs through reg, so duplicate ids,
// malformed surfaces and cyclic fills are rejected exactly as they are for
// programmatic construction.
//
// Source code must be preprocessed with preprocessSource() before evaluation so
// that :keyword tokens are converted to recognizable string literals.
//
// The returned buildLog records the first error a builtin raised, so the
// caller can report it verbatim instead of zygomys' wrapped form.
func registerBuiltins(env *zygo.Zlisp, reg *geometry.Registry) *buildLog {
	log := &buildLog{}
	add := func(name string, fn func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error)) {
		env.AddFunction(name, func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			res, err := fn(env, name, args)
			if err != nil && log.first == nil {
				log.first = err
			}
			return res, err
		})
	}

	// -----------------------------------------------------------------------
	// (vec3 1 2 3)
	// -----------------------------------------------------------------------
	add("vec3", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("vec3 requires exactly 3 arguments, got %d", len(args))
		}
		var xyz [3]float64
		for i, a := range args {
			f, err := toFloat64(a)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("vec3: %c: %w", "xyz"[i], err)
			}
			xyz[i] = f
		}
		return &sexpVec3{vec: v3.Vec{X: xyz[0], Y: xyz[1], Z: xyz[2]}}, nil
	})

	// -----------------------------------------------------------------------
	// (surface "fuel-or" :cylinder-z :center (vec3 0 0 0) :radius 0.41)
	// (surface "top" :plane-z :d 100)
	// (surface "tilt" :plane :normal (vec3 1 1 0) :d 2)
	// -----------------------------------------------------------------------
	kinds := surfaceKinds()
	add("surface", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args, kinds...)
		if len(pa.positional) < 1 {
			return zygo.SexpNull, fmt.Errorf("surface requires an id")
		}
		id, err := toString(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("surface: id: %w", err)
		}

		var spec surface.Spec
		found := 0
		for flag := range pa.flags {
			k, err := surface.ParseKind(flag)
			if err != nil {
				continue
			}
			spec.Kind = k
			found++
		}
		if found != 1 {
			return zygo.SexpNull, fmt.Errorf("surface %s: exactly one kind keyword required (:%s)", id, strings.Join(kinds, ", :"))
		}

		for _, key := range []string{"center", "normal"} {
			v, ok := pa.kw[key]
			if !ok {
				continue
			}
			vec, err := toVec3(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("surface %s: %s: %w", id, key, err)
			}
			if key == "center" {
				spec.Center = vec
			} else {
				spec.Normal = vec
			}
		}
		for _, key := range []string{"d", "radius"} {
			v, ok := pa.kw[key]
			if !ok {
				continue
			}
			f, err := toFloat64(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("surface %s: %s: %w", id, key, err)
			}
			if key == "d" {
				spec.D = f
			} else {
				spec.Radius = f
			}
		}

		s, err := reg.CreateSurface(surface.ID(id), spec)
		if err != nil {
			return zygo.SexpNull, err
		}
		return &sexpSurface{s: s}, nil
	})

	// -----------------------------------------------------------------------
	// (universe "pin")
	// -----------------------------------------------------------------------
	add("universe", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("universe requires exactly one id")
		}
		id, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("universe: id: %w", err)
		}
		u, err := reg.CreateUniverse(geometry.UniverseID(id))
		if err != nil {
			return zygo.SexpNull, err
		}
		return &sexpUniverse{u: u}, nil
	})

	// -----------------------------------------------------------------------
	// (cell "fuel" :universe "pin" :surfaces (list "-fuel-or") :material "uo2")
	// (cell "graveyard" :universe "core" :surfaces (list "+box") :void)
	// (cell "lattice" :universe "core" :surfaces (list "-box")
	//       :fill "pin" :translate (vec3 1.26 0 0) :rotate (vec3 0 0 90))
	// -----------------------------------------------------------------------
	add("cell", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args, "void")
		if len(pa.positional) < 1 {
			return zygo.SexpNull, fmt.Errorf("cell requires an id")
		}
		id, err := toString(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("cell: id: %w", err)
		}

		v, ok := pa.kw["universe"]
		if !ok {
			return zygo.SexpNull, fmt.Errorf("cell %s: :universe is required", id)
		}
		owner, err := toUniverse(reg, v)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("cell %s: universe: %w", id, err)
		}

		var bounds []geometry.Bound
		if v, ok := pa.kw["surfaces"]; ok {
			items, err := sexpListToSlice(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("cell %s: surfaces: %w", id, err)
			}
			for _, item := range items {
				b, err := toBound(reg, item)
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("cell %s: surfaces: %w", id, err)
				}
				bounds = append(bounds, b)
			}
		}

		fill, err := cellFill(reg, id, pa)
		if err != nil {
			return zygo.SexpNull, err
		}

		c, err := reg.CreateCell(geometry.CellID(id), owner, bounds, fill)
		if err != nil {
			return zygo.SexpNull, err
		}
		return &sexpCell{c: c}, nil
	})

	// -----------------------------------------------------------------------
	// (root "core")
	// -----------------------------------------------------------------------
	add("root", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("root requires exactly one universe")
		}
		u, err := toUniverse(reg, args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("root: %w", err)
		}
		if err := reg.SetRoot(u.UserID()); err != nil {
			return zygo.SexpNull, err
		}
		return &sexpUniverse{u: u}, nil
	})

	return log
}

// buildLog captures the first builtin failure of an evaluation.
type buildLog struct {
	first error
}

// cellFill reads exactly one of :material, :void or :fill from a cell's
// arguments.
func cellFill(reg *geometry.Registry, id string, pa kwArgs) (geometry.Fill, error) {
	mat, hasMat := pa.kw["material"]
	fillRef, hasFill := pa.kw["fill"]
	n := 0
	for _, b := range []bool{hasMat, hasFill, pa.flags["void"]} {
		if b {
			n++
		}
	}
	if n != 1 {
		return geometry.Fill{}, fmt.Errorf("cell %s: exactly one of :material, :void or :fill is required", id)
	}

	switch {
	case hasMat:
		m, err := toString(mat)
		if err != nil {
			return geometry.Fill{}, fmt.Errorf("cell %s: material: %w", id, err)
		}
		return geometry.MaterialFill(geometry.MaterialID(m)), nil
	case hasFill:
		u, err := toUniverse(reg, fillRef)
		if err != nil {
			return geometry.Fill{}, fmt.Errorf("cell %s: fill: %w", id, err)
		}
		var translate, rotate v3.Vec
		if v, ok := pa.kw["translate"]; ok {
			if translate, err = toVec3(v); err != nil {
				return geometry.Fill{}, fmt.Errorf("cell %s: translate: %w", id, err)
			}
		}
		if v, ok := pa.kw["rotate"]; ok {
			if rotate, err = toVec3(v); err != nil {
				return geometry.Fill{}, fmt.Errorf("cell %s: rotate: %w", id, err)
			}
		}
		return geometry.UniverseFill(u, translate, rotate), nil
	default:
		return geometry.VoidFill(), nil
	}
}
