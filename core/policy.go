package core

import (
	"context"

	"github.com/signalsfoundry/sensornet-simulator/model"
)

// StepPolicy is the per-round state transition applied to every node.
//
// Prepare runs once at the start of each pass with the full node set, in
// ascending ID order. Apply then runs once per node in the same order until
// the pass finishes or terminates.
type StepPolicy interface {
	Name() string
	Prepare(ctx context.Context, round int, nodes []*model.NodeState)
	Apply(round int, node *model.NodeState)
}

// BatteryDrain subtracts one uniform draw in [0, 1) from every node's
// battery each round, clamping at zero. Positions are left unchanged.
type BatteryDrain struct {
	rng RandomSource
}

// NewBatteryDrain constructs the drain policy around rng.
func NewBatteryDrain(rng RandomSource) *BatteryDrain {
	if rng == nil {
		rng = NewRandomSource(0)
	}
	return &BatteryDrain{rng: rng}
}

func (p *BatteryDrain) Name() string { return "battery_drain" }

func (p *BatteryDrain) Prepare(context.Context, int, []*model.NodeState) {}

func (p *BatteryDrain) Apply(_ int, node *model.NodeState) {
	node.Drain(p.rng.Float64())
}

// Chain applies several policies to each node in order. The engine checks
// for depletion once the whole chain has run for a node.
type Chain []StepPolicy

func (c Chain) Name() string {
	name := ""
	for i, p := range c {
		if i > 0 {
			name += "+"
		}
		name += p.Name()
	}
	return name
}

func (c Chain) Prepare(ctx context.Context, round int, nodes []*model.NodeState) {
	for _, p := range c {
		p.Prepare(ctx, round, nodes)
	}
}

func (c Chain) Apply(round int, node *model.NodeState) {
	for _, p := range c {
		p.Apply(round, node)
	}
}
