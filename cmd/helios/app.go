package main

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/xiaopingguo165/helios/internal/config"
	"github.com/xiaopingguo165/helios/pkg/engine"
	"github.com/xiaopingguo165/helios/pkg/geometry"
	"github.com/xiaopingguo165/helios/pkg/tracker"
)

// App ties the engine, the geometry core and the tracker together for one
// run.
type App struct {
	cfg    *config.Config
	engine *engine.Engine
	logger *slog.Logger
}

// NewApp creates an App from loaded configuration.
func NewApp(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		engine: engine.NewEngine(engine.WithTimeout(cfg.Engine.EvalTimeout), engine.WithLogger(logger)),
		logger: logger.With("component", "app"),
	}
}

// LoadGeometry evaluates source, validates the result and returns a tracker
// over the sealed geometry. Validation warnings are logged; errors abort.
func (a *App) LoadGeometry(source string) (*tracker.Tracker, error) {
	reg, evalErrs, err := a.engine.Evaluate(source)
	if err != nil {
		return nil, fmt.Errorf("evaluate geometry: %w", err)
	}
	if len(evalErrs) > 0 {
		for _, e := range evalErrs {
			a.logger.Error("geometry source error", "line", e.Line, "message", e.Message)
		}
		return nil, fmt.Errorf("geometry source has %d error(s), first: %w", len(evalErrs), evalErrs[0])
	}

	opts := geometry.ValidateOptions{Seed: a.cfg.Run.Seed, Samples: a.cfg.Validation.CoverageSamples}
	if h := a.cfg.Validation.CoverageHalfWidth; h > 0 {
		opts.Box = sdf.Box3{Min: v3.Vec{X: -h, Y: -h, Z: -h}, Max: v3.Vec{X: h, Y: h, Z: h}}
	}
	res := geometry.ValidateAll(reg, opts)
	for _, w := range res.Warnings {
		a.logger.Warn("geometry validation warning", "universe", w.Universe, "cell", w.Cell, "message", w.Message)
	}
	if !res.OK() {
		for _, e := range res.Errors {
			a.logger.Error("geometry validation error", "universe", e.Universe, "cell", e.Cell, "message", e.Message)
		}
		return nil, fmt.Errorf("geometry is invalid: %w", res.Errors[0])
	}

	return tracker.New(reg, tracker.WithLogger(a.logger))
}

// Report summarises a sweep.
type Report struct {
	Histories   int
	Escaped     int
	Lost        int
	StepLimited int
	// Entries counts crossings into each cell, keyed by user id.
	Entries map[geometry.CellID]int
}

func (r *Report) merge(o *Report) {
	r.Histories += o.Histories
	r.Escaped += o.Escaped
	r.Lost += o.Lost
	r.StepLimited += o.StepLimited
	for id, n := range o.Entries {
		r.Entries[id] += n
	}
}

func newReport() *Report {
	return &Report{Entries: make(map[geometry.CellID]int)}
}

// Sweep tracks histories straight-line rays from origin in isotropic
// directions until they escape. Histories are split across workers, each
// with its own RNG seeded from the run seed. Lost histories are counted and
// discarded.
func (a *App) Sweep(tr *tracker.Tracker, origin v3.Vec) *Report {
	histories, workers := a.cfg.Run.Histories, a.cfg.Run.Workers
	if workers > histories && histories > 0 {
		workers = histories
	}
	per, rem := histories/workers, histories%workers

	locals := make([]*Report, workers)
	var done int64
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		n := per
		if w < rem {
			n++
		}
		locals[w] = newReport()
		go func(wid, n int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(a.cfg.Run.Seed + int64(wid)))
			local := locals[wid]
			for i := 0; i < n; i++ {
				a.history(tr, origin, isotropic(rng), local)
				atomic.AddInt64(&done, 1)
			}
		}(w, n)
	}
	wg.Wait()

	total := newReport()
	for _, l := range locals {
		total.merge(l)
	}
	a.logger.Info("sweep finished",
		"histories", total.Histories,
		"escaped", total.Escaped,
		"lost", total.Lost,
		"step_limited", total.StepLimited,
		"tracked", atomic.LoadInt64(&done),
	)
	return total
}

func (a *App) history(tr *tracker.Tracker, origin, dir v3.Vec, rep *Report) {
	rep.Histories++
	t, err := tr.Locate(origin, dir)
	if err != nil {
		rep.Lost++
		a.logger.Debug("history discarded", "error", err)
		return
	}
	events, err := tr.Walk(t, a.cfg.Run.MaxSteps)
	for _, ev := range events {
		if ev.To != nil {
			rep.Entries[ev.To.UserID()]++
		}
	}
	switch {
	case err == nil:
		rep.Escaped++
	case geometry.KindOf(err) == geometry.KindInvalid:
		rep.StepLimited++
	default:
		rep.Lost++
		a.logger.Debug("history discarded", "error", err)
	}
}

// isotropic samples a uniformly distributed unit direction.
func isotropic(rng *rand.Rand) v3.Vec {
	mu := 2*rng.Float64() - 1
	phi := 2 * math.Pi * rng.Float64()
	s := math.Sqrt(1 - mu*mu)
	return v3.Vec{X: s * math.Cos(phi), Y: s * math.Sin(phi), Z: mu}
}

// Write prints the report as a plain-text table.
func (r *Report) Write(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "histories %d  escaped %d  lost %d  step-limited %d\n",
		r.Histories, r.Escaped, r.Lost, r.StepLimited); err != nil {
		return err
	}
	ids := make([]string, 0, len(r.Entries))
	for id := range r.Entries {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)
	for _, id := range ids {
		if _, err := fmt.Fprintf(w, "  %-20s %d\n", id, r.Entries[geometry.CellID(id)]); err != nil {
			return err
		}
	}
	return nil
}
