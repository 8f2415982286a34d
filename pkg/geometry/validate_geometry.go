package geometry

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// ---------------------------------------------------------------------------
// Tier 2: geometric validation by sampling
// ---------------------------------------------------------------------------

// DefaultCoverageSamples is the sample count ValidateAll uses when a box is
// given without a count.
const DefaultCoverageSamples = 10000

// CoverageReport summarises a sampling pass over one universe.
type CoverageReport struct {
	Samples  int
	Gaps     int // points claimed by no cell
	Overlaps int // points claimed by more than one cell

	// FirstGap and FirstOverlap locate the first finding of each kind.
	FirstGap     v3.Vec
	FirstOverlap v3.Vec

	// OverlapPairs counts overlapping points per (first, second) cell pair.
	OverlapPairs map[[2]CellID]int
}

// CheckCoverage samples uniformly random points of box and reports points
// that no cell of u contains (gaps, where a particle would be lost) and
// points more than one cell contains (overlaps, resolved silently in favour
// of the first registered cell). Nested universes are not descended.
func CheckCoverage(u *Universe, box sdf.Box3, samples int, rng *rand.Rand) CoverageReport {
	rep := CoverageReport{OverlapPairs: make(map[[2]CellID]int)}
	size := box.Max.Sub(box.Min)
	for i := 0; i < samples; i++ {
		p := v3.Vec{
			X: box.Min.X + rng.Float64()*size.X,
			Y: box.Min.Y + rng.Float64()*size.Y,
			Z: box.Min.Z + rng.Float64()*size.Z,
		}
		rep.Samples++
		cells := u.FindCells(p)
		switch {
		case len(cells) == 0:
			if rep.Gaps == 0 {
				rep.FirstGap = p
			}
			rep.Gaps++
		case len(cells) > 1:
			if rep.Overlaps == 0 {
				rep.FirstOverlap = p
			}
			rep.Overlaps++
			rep.OverlapPairs[[2]CellID{cells[0].id, cells[1].id}]++
		}
	}
	return rep
}

// Findings converts the report into validation findings. Gaps are errors;
// overlaps are warnings naming both cells.
func (rep CoverageReport) Findings(u *Universe) []ValidationError {
	var out []ValidationError
	if rep.Gaps > 0 {
		p := rep.FirstGap
		out = append(out, ValidationError{
			Universe: u.id,
			Message: fmt.Sprintf("%d of %d sampled points are in no cell, first at (%g, %g, %g)",
				rep.Gaps, rep.Samples, p.X, p.Y, p.Z),
			Severity: SeverityError,
		})
	}
	pairs := make([][2]CellID, 0, len(rep.OverlapPairs))
	for pair := range rep.OverlapPairs {
		pairs = append(pairs, pair)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i][0] != pairs[j][0] {
			return pairs[i][0] < pairs[j][0]
		}
		return pairs[i][1] < pairs[j][1]
	})
	for _, pair := range pairs {
		n := rep.OverlapPairs[pair]
		out = append(out, ValidationError{
			Universe: u.id,
			Cell:     pair[1],
			Message:  fmt.Sprintf("overlaps cell %s at %d of %d sampled points", pair[0], n, rep.Samples),
			Severity: SeverityWarning,
		})
	}
	return out
}

// ValidateOptions configures ValidateAll. A zero Box disables the sampling
// tier.
type ValidateOptions struct {
	Box     sdf.Box3
	Samples int
	Seed    int64
}

// ValidateAll runs the structural tier and, when opts.Box is non-empty, the
// sampling tier on the root universe, and separates errors from warnings.
func ValidateAll(r *Registry, opts ValidateOptions) ValidationResult {
	findings := Validate(r)

	if root := r.Root(); root != nil && opts.Box.Max != opts.Box.Min {
		n := opts.Samples
		if n <= 0 {
			n = DefaultCoverageSamples
		}
		rng := rand.New(rand.NewSource(opts.Seed))
		rep := CheckCoverage(root, opts.Box, n, rng)
		findings = append(findings, rep.Findings(root)...)
	}

	var result ValidationResult
	for _, f := range findings {
		if f.Severity == SeverityWarning {
			result.Warnings = append(result.Warnings, f)
		} else {
			result.Errors = append(result.Errors, f)
		}
	}
	return result
}
