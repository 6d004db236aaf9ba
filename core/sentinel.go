package core

import (
	"context"
	"sync"

	"github.com/signalsfoundry/sensornet-simulator/model"
)

// SentinelAdapter speaks the legacy protocol in which the query for one
// designated node doubles as the round boundary. The first sentinel query
// resets the simulation; each later one begins a new round before the
// sentinel's own position is served.
//
// The adapter assumes ascending-ID order within a round. A non-sentinel query
// whose ID is below the last ID served since the previous sentinel query means
// the sentinel arrived late, and is rejected with ErrOutOfOrder.
type SentinelAdapter struct {
	mu       sync.Mutex
	sim      *Simulation
	sentinel int

	// lastServed is the highest non-sentinel node ID served since the last
	// sentinel query, or -1.
	lastServed int
}

// NewSentinelAdapter wraps sim, treating sentinel as the boundary node.
func NewSentinelAdapter(sim *Simulation, sentinel int) *SentinelAdapter {
	return &SentinelAdapter{sim: sim, sentinel: sentinel, lastServed: -1}
}

// Sentinel returns the boundary node ID.
func (a *SentinelAdapter) Sentinel() int {
	return a.sentinel
}

// OnSentinelQuery performs the round-boundary processing: Reset on the
// first call, BeginRound on every later call.
func (a *SentinelAdapter) OnSentinelQuery(ctx context.Context) (*Termination, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.onSentinelLocked(ctx)
}

func (a *SentinelAdapter) onSentinelLocked(ctx context.Context) (*Termination, error) {
	a.lastServed = -1
	if !a.sim.Started() {
		a.sim.Reset()
		return nil, nil
	}
	return a.sim.BeginRound(ctx)
}

// QueryPosition answers a framework query. When nodeID is the sentinel the
// round boundary is processed first; if that terminates the simulation the
// Termination is returned and no position is served.
func (a *SentinelAdapter) QueryPosition(ctx context.Context, nodeID int, speed float64, coords model.Position) (model.Position, *Termination, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if nodeID == a.sentinel {
		term, err := a.onSentinelLocked(ctx)
		if err != nil || term != nil {
			return model.Position{}, term, err
		}
	} else if a.sim.Started() && nodeID < a.lastServed {
		return model.Position{}, nil, a.sim.Violation(ctx, &ProtocolError{
			Kind:   ErrOutOfOrder,
			Round:  a.sim.Round(),
			NodeID: nodeID,
			Detail: "query arrived after a higher node ID in the same round; the sentinel query is missing or late",
		})
	}

	pos, err := a.sim.QueryPosition(ctx, nodeID, speed, coords)
	if err != nil {
		return model.Position{}, nil, err
	}
	if nodeID != a.sentinel && nodeID > a.lastServed {
		a.lastServed = nodeID
	}
	return pos, nil, nil
}
