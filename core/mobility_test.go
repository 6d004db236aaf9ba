package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/sensornet-simulator/core/dispatch"
	"github.com/signalsfoundry/sensornet-simulator/internal/logging"
	"github.com/signalsfoundry/sensornet-simulator/kb"
	"github.com/signalsfoundry/sensornet-simulator/model"
)

func dispatchConfig() DispatchConfig {
	return DispatchConfig{
		Area:          model.Area{Width: 20, Height: 10},
		SensingRange:  5,
		HoleSpacing:   10,
		RoundDuration: time.Second,
		MoveCost:      0.5,
		Algorithm:     dispatch.AlgorithmHBA,
	}
}

func TestDispatchPolicyMovesMobileIntoHole(t *testing.T) {
	p := NewDispatchPolicy(dispatchConfig(), logging.Noop())
	mobile := &model.NodeState{ID: 0, Mobile: true, Speed: 4, Battery: 100, Position: model.Position{X: 5, Y: 5}}
	static := &model.NodeState{ID: 1, Battery: 10, Position: model.Position{X: 5, Y: 5}}
	nodes := []*model.NodeState{mobile, static}

	p.Prepare(context.Background(), 1, nodes)
	target, ok := p.Target(0)
	require.True(t, ok)
	assert.Equal(t, model.Position{X: 15, Y: 5}, target)
	_, ok = p.Target(1)
	assert.False(t, ok, "static nodes are never dispatched")

	for round := 1; round <= 3; round++ {
		p.Prepare(context.Background(), round, nodes)
		p.Apply(round, mobile)
		p.Apply(round, static)
	}
	// 10 m at 4 m/s: 4 + 4 + 2.
	assert.Equal(t, target, mobile.Position)
	assert.InDelta(t, 95.0, mobile.Battery, 1e-9)
	assert.Equal(t, model.Position{X: 5, Y: 5}, static.Position)
	assert.Equal(t, 10.0, static.Battery)

	p.Apply(4, mobile)
	assert.InDelta(t, 95.0, mobile.Battery, 1e-9, "no cost once the target is reached")
}

func TestDispatchPolicyNoHoles(t *testing.T) {
	cfg := dispatchConfig()
	cfg.SensingRange = 100
	p := NewDispatchPolicy(cfg, logging.Noop())
	mobile := &model.NodeState{ID: 0, Mobile: true, Speed: 1, Battery: 1}
	static := &model.NodeState{ID: 1, Position: model.Position{X: 10, Y: 5}}

	p.Prepare(context.Background(), 1, []*model.NodeState{mobile, static})
	p.Apply(1, mobile)
	_, ok := p.Target(0)
	assert.False(t, ok)
	assert.Equal(t, model.Position{}, mobile.Position)
	assert.Equal(t, 1.0, mobile.Battery)
}

func TestDispatchPolicyReplans(t *testing.T) {
	cfg := dispatchConfig()
	cfg.ReplanInterval = 2
	p := NewDispatchPolicy(cfg, logging.Noop())
	mobile := &model.NodeState{ID: 0, Mobile: true, Speed: 1, Battery: 100, Position: model.Position{X: 15, Y: 5}}
	static := &model.NodeState{ID: 1, Position: model.Position{X: 5, Y: 5}}
	nodes := []*model.NodeState{mobile, static}

	p.Prepare(context.Background(), 1, nodes)
	assert.Equal(t, 1, p.plannedAt)
	p.Prepare(context.Background(), 2, nodes)
	assert.Equal(t, 1, p.plannedAt)
	p.Prepare(context.Background(), 3, nodes)
	assert.Equal(t, 3, p.plannedAt)
}

func TestChainWithDrainAndDispatchTerminates(t *testing.T) {
	cfg := dispatchConfig()
	cfg.MoveCost = 1
	policy := Chain{NewBatteryDrain(NewSequenceSource(0)), NewDispatchPolicy(cfg, logging.Noop())}
	assert.Equal(t, "battery_drain+dispatch_hba", policy.Name())

	reg := kb.NewRegistry(kb.Provisioning{MobileCount: 1, MobileBattery: 6, StaticBattery: 100})
	sim := NewSimulation(reg, policy, logging.Noop())
	sim.Reset()
	_, err := sim.QueryPosition(context.Background(), 0, 4, model.Position{X: 5, Y: 5})
	require.NoError(t, err)
	_, err = sim.QueryPosition(context.Background(), 1, 0, model.Position{X: 5, Y: 5})
	require.NoError(t, err)

	term, err := sim.BeginRound(context.Background())
	require.NoError(t, err)
	require.Nil(t, term)
	pos, err := sim.QueryPosition(context.Background(), 0, 0, model.Position{})
	require.NoError(t, err)
	assert.Equal(t, model.Position{X: 9, Y: 5}, pos, "query must reflect the moved position")

	_, err = sim.QueryPosition(context.Background(), 1, 0, model.Position{})
	require.NoError(t, err)
	term, err = sim.BeginRound(context.Background())
	require.NoError(t, err)
	require.NotNil(t, term)
	assert.Equal(t, 2, term.Round)
	assert.Equal(t, 0, term.Node.ID)
	assert.True(t, term.Node.Mobile)
}

func TestBatteryDrainClampsAtZero(t *testing.T) {
	p := NewBatteryDrain(NewSequenceSource(0.75))
	n := &model.NodeState{Battery: 1}
	p.Apply(1, n)
	assert.Equal(t, 0.25, n.Battery)
	p.Apply(2, n)
	assert.Equal(t, 0.0, n.Battery)
	assert.True(t, n.Depleted())
}

func TestSequenceSourceRepeatsLastValue(t *testing.T) {
	s := NewSequenceSource(0.1, 0.2)
	assert.Equal(t, []float64{0.1, 0.2, 0.2}, []float64{s.Float64(), s.Float64(), s.Float64()})
	assert.Equal(t, 0.0, NewSequenceSource().Float64())
}

func TestRandomSourceIsSeeded(t *testing.T) {
	a, b := NewRandomSource(9), NewRandomSource(9)
	for i := 0; i < 5; i++ {
		v := a.Float64()
		assert.Equal(t, v, b.Float64())
		assert.True(t, v >= 0 && v < 1)
	}
}
