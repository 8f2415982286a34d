package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/xiaopingguo165/helios/pkg/geometry"
)

// EvalTimeout is the default hard limit for a single evaluation.
const EvalTimeout = 5 * time.Second

var (
	// ErrTimeout is wrapped by the error Evaluate returns when the source
	// runs past the engine's timeout.
	ErrTimeout = errors.New("engine: evaluation timed out")
	// ErrSuperseded means a later Evaluate call started before this one
	// finished, so its registry was dropped.
	ErrSuperseded = errors.New("engine: evaluation superseded by newer request")
)

type evalResult struct {
	registry *geometry.Registry
	errors   []EvalError
	err      error
}

// latest returns the generation of the most recent Evaluate call.
func (e *Engine) latest() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generation
}

// await blocks until the evaluation tagged gen reports on ch or the engine
// timeout fires. An abandoned evaluation still writes into ch, which is
// buffered, and exits.
func (e *Engine) await(ch <-chan evalResult, gen uint64) (*geometry.Registry, []EvalError, error) {
	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if gen != e.latest() {
			return nil, nil, ErrSuperseded
		}
		return res.registry, res.errors, res.err
	case <-timer.C:
		e.logger.Warn("geometry evaluation timed out", "component", "engine", "timeout", e.timeout)
		return nil, nil, fmt.Errorf("%w after %s", ErrTimeout, e.timeout)
	}
}
