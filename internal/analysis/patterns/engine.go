package patterns

import (
	"context"
	"sync"

	"chart-scanner/internal/analysis"
	"chart-scanner/internal/models"
)

// Engine runs pattern detectors in parallel over one read-only series using
// a fixed pool of workers. Detectors share no state, so results are joined
// by position without further coordination.
type Engine struct {
	workers  int
	registry *Registry
}

// NewEngine creates a new detection engine with the specified number of workers.
func NewEngine(workers int, registry *Registry) *Engine {
	if workers <= 0 {
		workers = 4
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &Engine{
		workers:  workers,
		registry: registry,
	}
}

// Registry returns the detectors the engine runs.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// DetectAll runs every registered detector and returns their detections in
// registry order.
func (e *Engine) DetectAll(ctx context.Context, series models.Series) ([]analysis.Detection, error) {
	return e.DetectSelected(ctx, series, e.registry.Kinds())
}

// DetectSelected runs the detectors for kinds in parallel. Unknown kinds are
// skipped. The series is validated once before any work is scheduled.
func (e *Engine) DetectSelected(ctx context.Context, series models.Series, kinds []analysis.Kind) ([]analysis.Detection, error) {
	if err := series.Validate(); err != nil {
		return nil, err
	}

	detectors := make([]*WindowDetector, 0, len(kinds))
	for _, k := range kinds {
		if d, ok := e.registry.Get(k); ok {
			detectors = append(detectors, d)
		}
	}

	type job struct {
		pos      int
		detector *WindowDetector
	}

	results := make([]analysis.Detection, len(detectors))
	errs := make([]error, len(detectors))
	work := make(chan job, len(detectors))
	var wg sync.WaitGroup

	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range work {
				select {
				case <-ctx.Done():
					return
				default:
					results[j.pos], errs[j.pos] = j.detector.Detect(series)
				}
			}
		}()
	}

	for pos, d := range detectors {
		work <- job{pos: pos, detector: d}
	}
	close(work)

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}
