package driver

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/signalsfoundry/sensornet-simulator/model"
)

// Placement computes the initial coordinates of n nodes inside an area.
type Placement interface {
	Place(n int, area model.Area) []model.Position
}

// GridPlacement spreads nodes over a regular grid whose cells are as close
// to square as the area allows. Nodes sit at cell centres, filled column by
// column.
type GridPlacement struct{}

func (GridPlacement) Place(n int, area model.Area) []model.Position {
	if n <= 0 {
		return nil
	}
	cols := int(math.Ceil(math.Sqrt(float64(n) * area.Width / area.Height)))
	if cols < 1 {
		cols = 1
	}
	rows := int(math.Ceil(float64(n) / float64(cols)))
	dx := area.Width / float64(cols)
	dy := area.Height / float64(rows)

	out := make([]model.Position, n)
	for i := range out {
		c, r := i/rows, i%rows
		out[i] = model.Position{X: (float64(c) + 0.5) * dx, Y: (float64(r) + 0.5) * dy}
	}
	return out
}

// UniformPlacement draws every coordinate uniformly from the area.
type UniformPlacement struct {
	Rand *rand.Rand
}

func (p UniformPlacement) Place(n int, area model.Area) []model.Position {
	out := make([]model.Position, n)
	for i := range out {
		out[i] = model.Position{X: p.Rand.Float64() * area.Width, Y: p.Rand.Float64() * area.Height}
	}
	return out
}

// NormalPlacement draws coordinates from a normal distribution centred on
// the area. StandardDeviation is relative to the area's sides; samples are
// clamped to the area.
type NormalPlacement struct {
	Rand              *rand.Rand
	StandardDeviation float64
}

func (p NormalPlacement) Place(n int, area model.Area) []model.Position {
	centre := area.Center()
	out := make([]model.Position, n)
	for i := range out {
		pos := model.Position{
			X: centre.X + p.Rand.NormFloat64()*p.StandardDeviation*area.Width,
			Y: centre.Y + p.Rand.NormFloat64()*p.StandardDeviation*area.Height,
		}
		out[i] = area.Clamp(pos)
	}
	return out
}

// NewPlacement resolves a placement model by name.
func NewPlacement(name string, stddev float64, rng *rand.Rand) (Placement, error) {
	switch name {
	case "grid", "":
		return GridPlacement{}, nil
	case "uniform":
		return UniformPlacement{Rand: rng}, nil
	case "normal":
		return NormalPlacement{Rand: rng, StandardDeviation: stddev}, nil
	default:
		return nil, fmt.Errorf("unknown placement model %q", name)
	}
}
