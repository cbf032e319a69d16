package detector

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redline/internal/fault"
	"redline/internal/rubric"
)

type stubDetector struct {
	id    string
	score float64
}

func (s *stubDetector) ID() string           { return s.id }
func (s *stubDetector) ModelVersion() string { return "stub_v1" }
func (s *stubDetector) Detect(ctx context.Context, text string) (*Score, error) {
	return &Score{Provider: s.id, Value: s.score, ModelVersion: s.ModelVersion()}, nil
}

func TestRegistry_OrderAndLookup(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubDetector{id: "alpha"}))
	require.NoError(t, r.Register(&stubDetector{id: "beta"}))
	require.NoError(t, r.Register(&stubDetector{id: "gamma"}))

	all := r.All()
	require.Len(t, all, 3)
	assert.Equal(t, "alpha", all[0].ID())
	assert.Equal(t, "beta", all[1].ID())
	assert.Equal(t, "gamma", all[2].ID())

	d, err := r.Get("beta")
	require.NoError(t, err)
	assert.Equal(t, "beta", d.ID())

	_, err = r.Get("delta")
	require.Error(t, err)
	assert.Equal(t, fault.Validation, fault.KindOf(err))
}

func TestRegistry_UnregisterAndMembership(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubDetector{id: "alpha"}))
	require.NoError(t, r.Register(&stubDetector{id: "beta"}))
	require.NoError(t, r.Register(&stubDetector{id: "gamma"}))

	assert.True(t, r.IsRegistered("beta"))
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, r.ListRegistered())

	r.Unregister("beta")
	assert.False(t, r.IsRegistered("beta"))
	assert.Equal(t, []string{"alpha", "gamma"}, r.ListRegistered())
	_, err := r.Get("beta")
	require.Error(t, err)

	// Unregistering frees the id; re-registration lands at the end.
	require.NoError(t, r.Register(&stubDetector{id: "beta"}))
	assert.Equal(t, []string{"alpha", "gamma", "beta"}, r.ListRegistered())

	r.Unregister("never-registered")
	assert.Equal(t, []string{"alpha", "gamma", "beta"}, r.ListRegistered())
}

func TestRegistry_DuplicateRejected(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubDetector{id: "alpha"}))
	err := r.Register(&stubDetector{id: "alpha"})
	require.Error(t, err)
	assert.Equal(t, fault.Conflict, fault.KindOf(err))
}

func TestRegistry_Select(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubDetector{id: "alpha"}))
	require.NoError(t, r.Register(&stubDetector{id: "beta"}))

	selected, err := r.Select([]string{"beta", "alpha"})
	require.NoError(t, err)
	require.Len(t, selected, 2)
	assert.Equal(t, "beta", selected[0].ID())

	_, err = r.Select([]string{"alpha", "missing"})
	require.Error(t, err)
}

func TestRubricDetector(t *testing.T) {
	d := NewRubricDetector()
	assert.Equal(t, "internal_rubric", d.ID())
	assert.Equal(t, "rubric_v"+rubric.Version, d.ModelVersion())

	text := "In this article we delve into the comprehensive landscape of robust content. " +
		"It's important to note that results typically vary. Please note the caveats here."
	score, err := d.Detect(context.Background(), text)
	require.NoError(t, err)

	assert.Equal(t, "internal_rubric", score.Provider)
	assert.Greater(t, score.Value, 0.0)
	assert.LessOrEqual(t, score.Value, 100.0)
	assert.NotEmpty(t, score.ScoredAt)

	// Details round-trip into the rubric breakdown.
	var breakdown rubric.Result
	require.NoError(t, json.Unmarshal([]byte(score.Details), &breakdown))
	assert.Equal(t, score.Value, breakdown.TotalScore)
	assert.Equal(t, rubric.Version, breakdown.RubricVersion)
}

func TestRubricDetector_Validation(t *testing.T) {
	d := NewRubricDetector()
	_, err := d.Detect(context.Background(), "too short")
	require.Error(t, err)
	assert.Equal(t, fault.Validation, fault.KindOf(err))
}

func TestRubricDetector_CanceledContext(t *testing.T) {
	d := NewRubricDetector()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Detect(ctx, "some reasonable length text for the detector to score today")
	require.Error(t, err)
	assert.Equal(t, fault.Timeout, fault.KindOf(err))
}
