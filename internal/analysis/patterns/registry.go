package patterns

import (
	"fmt"

	"chart-scanner/internal/analysis"
	apperrors "chart-scanner/internal/errors"
)

// Registry maps request kinds to their pattern detectors.
type Registry struct {
	order     []analysis.Kind
	detectors map[analysis.Kind]*WindowDetector
}

// NewRegistry returns a registry holding every built-in pattern detector in
// menu order.
func NewRegistry() *Registry {
	r := &Registry{detectors: make(map[analysis.Kind]*WindowDetector)}
	r.register(analysis.KindHeadAndShoulders, NewHeadAndShoulders())
	r.register(analysis.KindDoubleTopBottom, NewDoubleTopBottom())
	r.register(analysis.KindTriangles, NewTriangles())
	r.register(analysis.KindFlagsPennants, NewFlagsPennants())
	r.register(analysis.KindCupAndHandle, NewCupAndHandle())
	r.register(analysis.KindWedges, NewWedges())
	r.register(analysis.KindGaps, NewGaps())
	return r
}

func (r *Registry) register(kind analysis.Kind, d *WindowDetector) {
	r.order = append(r.order, kind)
	r.detectors[kind] = d
}

// Get returns the detector for kind.
func (r *Registry) Get(kind analysis.Kind) (*WindowDetector, bool) {
	d, ok := r.detectors[kind]
	return d, ok
}

// Lookup resolves a user-supplied detector name.
func (r *Registry) Lookup(name string) (*WindowDetector, error) {
	kind, ok := analysis.ParseKind(name)
	if !ok {
		return nil, apperrors.NewConfigurationError("detector", name, apperrors.ErrUnknownDetector.Error())
	}
	d, ok := r.detectors[kind]
	if !ok {
		return nil, apperrors.NewConfigurationError("detector", name, fmt.Sprintf("%s is not a pattern detector", kind))
	}
	return d, nil
}

// Kinds returns the registered kinds in menu order.
func (r *Registry) Kinds() []analysis.Kind {
	out := make([]analysis.Kind, len(r.order))
	copy(out, r.order)
	return out
}

// All returns the registered detectors in menu order.
func (r *Registry) All() []*WindowDetector {
	out := make([]*WindowDetector, len(r.order))
	for i, k := range r.order {
		out[i] = r.detectors[k]
	}
	return out
}
