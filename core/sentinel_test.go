package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/sensornet-simulator/kb"
	"github.com/signalsfoundry/sensornet-simulator/model"
)

func queryRound(t *testing.T, a *SentinelAdapter, ids ...int) *Termination {
	t.Helper()
	for _, id := range ids {
		_, term, err := a.QueryPosition(context.Background(), id, 1, model.Position{X: float64(id)})
		require.NoError(t, err, "node %d", id)
		if term != nil {
			return term
		}
	}
	return nil
}

func TestSentinelFirstQueryInitializes(t *testing.T) {
	sim := newTestSimulation(kb.Provisioning{MobileCount: 1, MobileBattery: 10, StaticBattery: 5}, NewSequenceSource(0.5))
	a := NewSentinelAdapter(sim, 0)

	require.Nil(t, queryRound(t, a, 0, 1, 2))
	assert.Equal(t, 0, sim.Round())
	assert.Equal(t, 3, sim.Registry().Len())
	for _, n := range sim.Snapshot() {
		assert.Equal(t, 0, n.LastServedRound)
	}
	assert.Equal(t, []float64{10, 5, 5}, batteriesOf(sim))
}

func TestSentinelAdvancesOncePerQuery(t *testing.T) {
	sim := newTestSimulation(kb.Provisioning{MobileCount: 0, StaticBattery: 1e9}, NewSequenceSource(0.25))
	a := NewSentinelAdapter(sim, 0)
	queryRound(t, a, 0, 1, 2)

	for k := 1; k <= 4; k++ {
		queryRound(t, a, 0)
		assert.Equal(t, k, sim.Round())
		queryRound(t, a, 1, 2, 2)
		assert.Equal(t, k, sim.Round())
	}
}

func TestSentinelStepRunsBeforeOtherReads(t *testing.T) {
	sim := newTestSimulation(kb.Provisioning{MobileCount: 0, StaticBattery: 10}, NewSequenceSource(1))
	a := NewSentinelAdapter(sim, 0)
	queryRound(t, a, 0, 1)

	queryRound(t, a, 0)
	n1, err := sim.Registry().Get(1)
	require.NoError(t, err)
	assert.Equal(t, 9.0, n1.Battery, "step pass must be complete before node 1 is read")
}

func TestSentinelEndToEndTermination(t *testing.T) {
	sim := newTestSimulation(kb.Provisioning{MobileCount: 1, MobileBattery: 2, StaticBattery: 1}, NewSequenceSource(1.0))
	a := NewSentinelAdapter(sim, 0)
	require.Nil(t, queryRound(t, a, 0, 1, 2))

	pos, term, err := a.QueryPosition(context.Background(), 0, 1, model.Position{})
	require.NoError(t, err)
	require.NotNil(t, term)
	assert.Equal(t, model.Position{}, pos)
	assert.Equal(t, 1, term.Round)
	assert.Equal(t, 1, term.Node.ID)

	_, _, err = a.QueryPosition(context.Background(), 1, 1, model.Position{})
	assert.ErrorIs(t, err, ErrStopped)
}

func TestSentinelDetectsLateSentinel(t *testing.T) {
	rec := &recordingRecorder{}
	sim := newTestSimulation(kb.Provisioning{MobileCount: 0, StaticBattery: 100}, NewSequenceSource(0.1), WithRoundRecorder(rec))
	a := NewSentinelAdapter(sim, 0)
	queryRound(t, a, 0, 1, 2)

	// Next round arrives as 1, 2, 0: node 1 follows node 2 without a
	// sentinel query in between.
	_, _, err := a.QueryPosition(context.Background(), 1, 1, model.Position{})
	require.ErrorIs(t, err, ErrOutOfOrder)
	assert.Equal(t, []string{"out_of_order"}, rec.violations)
	assert.Equal(t, 0, sim.Round())
}

func TestSentinelQueryBeforeInitialization(t *testing.T) {
	sim := newTestSimulation(kb.Provisioning{MobileCount: 0, StaticBattery: 100}, NewSequenceSource())
	a := NewSentinelAdapter(sim, 0)

	_, _, err := a.QueryPosition(context.Background(), 1, 1, model.Position{})
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestSentinelNonZeroSentinel(t *testing.T) {
	sim := newTestSimulation(kb.Provisioning{MobileCount: 0, StaticBattery: 100}, NewSequenceSource(0.1))
	a := NewSentinelAdapter(sim, 2)
	assert.Equal(t, 2, a.Sentinel())

	queryRound(t, a, 2, 0, 1, 3)
	queryRound(t, a, 2, 0, 1, 3)
	assert.Equal(t, 1, sim.Round())
}

func TestOnSentinelQueryDirect(t *testing.T) {
	sim := newTestSimulation(kb.Provisioning{MobileCount: 0, StaticBattery: 100}, NewSequenceSource(0.1))
	a := NewSentinelAdapter(sim, 0)

	term, err := a.OnSentinelQuery(context.Background())
	require.NoError(t, err)
	assert.Nil(t, term)
	assert.True(t, sim.Started())
	assert.Equal(t, 0, sim.Round())

	_, err = a.OnSentinelQuery(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sim.Round())
}

func batteriesOf(sim *Simulation) []float64 {
	var out []float64
	for _, n := range sim.Snapshot() {
		out = append(out, n.Battery)
	}
	return out
}
