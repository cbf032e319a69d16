// Package detector abstracts AI-likeness score providers behind a common
// interface so the evaluation pipeline fans out over every registered
// provider without knowing how each one scores. The built-in rubric detector
// is the only deterministic provider; external detector APIs plug in through
// the same interface.
package detector

import (
	"context"
	"encoding/json"
	"time"

	"redline/internal/fault"
	"redline/internal/rubric"
)

// Score is one provider's verdict for one text.
type Score struct {
	Provider     string  `json:"provider"`
	Value        float64 `json:"score"`         // 0-100, higher is more AI-like
	ModelVersion string  `json:"model_version"` //
	Details      string  `json:"details"`       // provider-specific JSON breakdown
	ScoredAt     string  `json:"timestamp"`
}

// Detector scores a text for AI-likeness.
type Detector interface {
	// ID is the stable provider identifier stored with every score row.
	ID() string
	// ModelVersion identifies the scoring model for drift tracking.
	ModelVersion() string
	// Detect scores the text. Implementations must respect ctx.
	Detect(ctx context.Context, text string) (*Score, error)
}

// Registry holds detectors in registration order. Order matters: the
// pipeline schedules providers in the order they were registered, which
// keeps run output stable. Detectors are stateless, so the registry holds
// instances directly; Get doubles as the factory lookup.
type Registry struct {
	detectors []Detector
	byID      map[string]Detector
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]Detector)}
}

// Register adds a detector. Duplicate ids are a conflict.
func (r *Registry) Register(d Detector) error {
	if _, exists := r.byID[d.ID()]; exists {
		return fault.New(fault.Conflict, "detector %q already registered", d.ID())
	}
	r.byID[d.ID()] = d
	r.detectors = append(r.detectors, d)
	return nil
}

// Unregister removes a detector. Unknown ids are a no-op.
func (r *Registry) Unregister(id string) {
	if _, ok := r.byID[id]; !ok {
		return
	}
	delete(r.byID, id)
	for i, d := range r.detectors {
		if d.ID() == id {
			r.detectors = append(r.detectors[:i], r.detectors[i+1:]...)
			break
		}
	}
}

// IsRegistered reports whether the id is known.
func (r *Registry) IsRegistered(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// ListRegistered returns the registered ids in registration order.
func (r *Registry) ListRegistered() []string {
	ids := make([]string, len(r.detectors))
	for i, d := range r.detectors {
		ids[i] = d.ID()
	}
	return ids
}

// Get returns the detector with the given id.
func (r *Registry) Get(id string) (Detector, error) {
	d, ok := r.byID[id]
	if !ok {
		return nil, fault.New(fault.Validation, "detector %q not registered", id)
	}
	return d, nil
}

// All returns detectors in registration order.
func (r *Registry) All() []Detector {
	out := make([]Detector, len(r.detectors))
	copy(out, r.detectors)
	return out
}

// Select returns the named detectors in the given order.
func (r *Registry) Select(ids []string) ([]Detector, error) {
	out := make([]Detector, 0, len(ids))
	for _, id := range ids {
		d, err := r.Get(id)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// RubricDetectorID is the provider id of the built-in rubric detector.
const RubricDetectorID = "internal_rubric"

// RubricDetector scores with the deterministic heuristic rubric. No network
// and no state; the same text always yields the same score.
type RubricDetector struct{}

// NewRubricDetector builds the built-in detector.
func NewRubricDetector() *RubricDetector { return &RubricDetector{} }

func (d *RubricDetector) ID() string { return RubricDetectorID }

func (d *RubricDetector) ModelVersion() string { return "rubric_v" + rubric.Version }

// Detect runs the rubric. The full category breakdown travels in Details so
// score rows stay explainable without re-running the rubric.
func (d *RubricDetector) Detect(ctx context.Context, text string) (*Score, error) {
	if err := ctx.Err(); err != nil {
		return nil, fault.Wrap(fault.Timeout, err, "rubric detection canceled")
	}
	result, err := rubric.Score(text)
	if err != nil {
		return nil, err
	}
	details, err := json.Marshal(result)
	if err != nil {
		return nil, fault.Wrap(fault.Internal, err, "failed to encode rubric details")
	}
	return &Score{
		Provider:     d.ID(),
		Value:        result.TotalScore,
		ModelVersion: d.ModelVersion(),
		Details:      string(details),
		ScoredAt:     time.Now().UTC().Format(time.RFC3339),
	}, nil
}
