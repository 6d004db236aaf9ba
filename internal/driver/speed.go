package driver

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// SpeedModel assigns each node the speed it reports at initialization.
type SpeedModel interface {
	Speed() float64
}

// ConstantSpeed gives every node the same speed.
type ConstantSpeed float64

func (s ConstantSpeed) Speed() float64 { return float64(s) }

// UniformSpeed draws from [Min, Max).
type UniformSpeed struct {
	Rand     *rand.Rand
	Min, Max float64
}

func (s UniformSpeed) Speed() float64 {
	return s.Min + s.Rand.Float64()*(s.Max-s.Min)
}

// NormalSpeed draws from N(Mean, StandardDeviation), floored at zero.
type NormalSpeed struct {
	Rand              *rand.Rand
	Mean              float64
	StandardDeviation float64
}

func (s NormalSpeed) Speed() float64 {
	return math.Max(0, s.Mean+s.Rand.NormFloat64()*s.StandardDeviation)
}

// SpeedParams carries the knobs of every speed model.
type SpeedParams struct {
	Model             string
	Speed             float64
	Min, Max          float64
	Mean              float64
	StandardDeviation float64
}

// NewSpeedModel resolves a speed model by name.
func NewSpeedModel(p SpeedParams, rng *rand.Rand) (SpeedModel, error) {
	switch p.Model {
	case "constant", "":
		return ConstantSpeed(p.Speed), nil
	case "uniform":
		return UniformSpeed{Rand: rng, Min: p.Min, Max: p.Max}, nil
	case "normal":
		return NormalSpeed{Rand: rng, Mean: p.Mean, StandardDeviation: p.StandardDeviation}, nil
	default:
		return nil, fmt.Errorf("unknown speed model %q", p.Model)
	}
}
