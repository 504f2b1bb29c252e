// Package goals defines the weighted optimization goals that steer prompt
// building, plus named presets loadable from a YAML file.
package goals

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Weights holds the three optimization goal weights, each expected in
// [0,1]. Weights are normalized to sum to 1.0 before use.
type Weights struct {
	CapacityUtilization  float64 `yaml:"capacity_utilization" json:"capacity_utilization"`
	TimelineOptimization float64 `yaml:"timeline_optimization" json:"timeline_optimization"`
	ProcessEfficiency    float64 `yaml:"process_efficiency" json:"process_efficiency"`
}

// DefaultWeights weighs the three goals equally.
func DefaultWeights() Weights {
	return Weights{CapacityUtilization: 1, TimelineOptimization: 1, ProcessEfficiency: 1}
}

// Validate checks each weight is within [0,1].
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"capacity_utilization":  w.CapacityUtilization,
		"timeline_optimization": w.TimelineOptimization,
		"process_efficiency":    w.ProcessEfficiency,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("weight %s = %v outside [0,1]", name, v)
		}
	}
	return nil
}

// Normalize scales the weights to sum to 1.0. A zero sum normalizes to
// equal thirds.
func (w Weights) Normalize() Weights {
	sum := w.CapacityUtilization + w.TimelineOptimization + w.ProcessEfficiency
	if sum == 0 {
		third := 1.0 / 3.0
		return Weights{CapacityUtilization: third, TimelineOptimization: third, ProcessEfficiency: third}
	}
	return Weights{
		CapacityUtilization:  w.CapacityUtilization / sum,
		TimelineOptimization: w.TimelineOptimization / sum,
		ProcessEfficiency:    w.ProcessEfficiency / sum,
	}
}

// Presets maps a preset name to its weights.
type Presets map[string]Weights

// LoadPresets reads named weight presets from a YAML file of the form:
//
//	throughput:
//	  capacity_utilization: 0.6
//	  timeline_optimization: 0.3
//	  process_efficiency: 0.1
func LoadPresets(path string) (Presets, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading goal presets: %w", err)
	}

	var presets Presets
	if err := yaml.Unmarshal(raw, &presets); err != nil {
		return nil, fmt.Errorf("parsing goal presets: %w", err)
	}

	for name, w := range presets {
		if err := w.Validate(); err != nil {
			return nil, fmt.Errorf("preset %q: %w", name, err)
		}
	}
	return presets, nil
}
