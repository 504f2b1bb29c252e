package goals

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_EqualWeights(t *testing.T) {
	w := Weights{CapacityUtilization: 1, TimelineOptimization: 1, ProcessEfficiency: 1}.Normalize()

	third := 1.0 / 3.0
	assert.InDelta(t, third, w.CapacityUtilization, 1e-9)
	assert.InDelta(t, third, w.TimelineOptimization, 1e-9)
	assert.InDelta(t, third, w.ProcessEfficiency, 1e-9)
}

func TestNormalize_ZeroSumFallsBackToThirds(t *testing.T) {
	w := Weights{}.Normalize()

	third := 1.0 / 3.0
	assert.InDelta(t, third, w.CapacityUtilization, 1e-9)
	assert.InDelta(t, third, w.TimelineOptimization, 1e-9)
	assert.InDelta(t, third, w.ProcessEfficiency, 1e-9)
}

func TestNormalize_SumsToOne(t *testing.T) {
	w := Weights{CapacityUtilization: 0.9, TimelineOptimization: 0.2, ProcessEfficiency: 0.4}.Normalize()
	assert.InDelta(t, 1.0, w.CapacityUtilization+w.TimelineOptimization+w.ProcessEfficiency, 1e-9)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, DefaultWeights().Validate())
	assert.Error(t, Weights{CapacityUtilization: 1.5}.Validate())
	assert.Error(t, Weights{TimelineOptimization: -0.1}.Validate())
}

func TestLoadPresets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
throughput:
  capacity_utilization: 0.6
  timeline_optimization: 0.3
  process_efficiency: 0.1
deadline_rush:
  capacity_utilization: 0.1
  timeline_optimization: 0.8
  process_efficiency: 0.1
`), 0o644))

	presets, err := LoadPresets(path)
	require.NoError(t, err)
	require.Len(t, presets, 2)
	assert.InDelta(t, 0.6, presets["throughput"].CapacityUtilization, 1e-9)
	assert.InDelta(t, 0.8, presets["deadline_rush"].TimelineOptimization, 1e-9)
}

func TestLoadPresets_InvalidWeightRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
bad:
  capacity_utilization: 2.0
`), 0o644))

	_, err := LoadPresets(path)
	assert.Error(t, err)
}

func TestLoadPresets_MissingFile(t *testing.T) {
	_, err := LoadPresets(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
