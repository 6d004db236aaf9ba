package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/sensornet-simulator/internal/logging"
	"github.com/signalsfoundry/sensornet-simulator/kb"
	"github.com/signalsfoundry/sensornet-simulator/model"
	"github.com/signalsfoundry/sensornet-simulator/timectrl"
)

const tracerName = "github.com/signalsfoundry/sensornet-simulator/core"

// RoundRecorder receives per-round observations. The Prometheus collector in
// internal/observability implements it.
type RoundRecorder interface {
	ObserveRound(round int, nodes []model.NodeState, stepDuration time.Duration)
	ObserveTermination(t *Termination)
	ObserveViolation(kind string)
}

// Simulation owns the node registry, the round clock and the step policy.
// All access is serialised by a single mutex so a step pass is observed
// atomically by every query of the same round.
type Simulation struct {
	mu sync.Mutex

	registry *kb.Registry
	clock    *timectrl.Clock
	policy   StepPolicy
	mode     TerminationMode

	// terminated is set once a node is depleted; the simulation is then
	// stopped for good.
	terminated *Termination

	log     logging.Logger
	metrics RoundRecorder
}

// SimulationOption customises Simulation construction.
type SimulationOption func(*Simulation)

// WithTerminationMode selects when the zero-battery check runs.
func WithTerminationMode(m TerminationMode) SimulationOption {
	return func(s *Simulation) {
		s.mode = m
	}
}

// WithRoundRecorder attaches an optional metrics recorder.
func WithRoundRecorder(r RoundRecorder) SimulationOption {
	return func(s *Simulation) {
		s.metrics = r
	}
}

// NewSimulation wires the registry and policy together with a fresh clock.
// The simulation must be Reset before rounds or queries are accepted.
func NewSimulation(reg *kb.Registry, policy StepPolicy, log logging.Logger, opts ...SimulationOption) *Simulation {
	if log == nil {
		log = logging.Noop()
	}
	s := &Simulation{
		registry: reg,
		clock:    timectrl.NewClock(),
		policy:   policy,
		mode:     TerminatePerNode,
		log:      log,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Registry exposes the node registry.
func (s *Simulation) Registry() *kb.Registry {
	return s.registry
}

// Round returns the current round.
func (s *Simulation) Round() int {
	return s.clock.Round()
}

// Started reports whether Reset has been called.
func (s *Simulation) Started() bool {
	return s.clock.Started()
}

// Termination returns the terminal record, or nil while the simulation runs.
func (s *Simulation) Termination() *Termination {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminated
}

// Snapshot returns copies of all node states in ascending ID order.
func (s *Simulation) Snapshot() []model.NodeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Snapshot()
}

// Reset starts a new run: round 0, empty registry, not terminated.
func (s *Simulation) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock.Reset()
	s.registry.Reset()
	s.terminated = nil
	s.log.Debug(context.Background(), "simulation reset")
}

// BeginRound advances the clock by one round and runs the step policy over
// every node. It returns a non-nil Termination when a node's battery reaches
// zero; the simulation is stopped from then on.
func (s *Simulation) BeginRound(ctx context.Context) (*Termination, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.runnableLocked(-1); err != nil {
		return nil, err
	}

	round, err := s.clock.Advance()
	if err != nil {
		return nil, fmt.Errorf("begin round: %w", err)
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "Simulation.BeginRound",
		trace.WithAttributes(
			attribute.Int("sim.round", round),
			attribute.String("sim.policy", s.policy.Name()),
		))
	defer span.End()

	start := time.Now()
	nodes := s.registry.Nodes()
	span.SetAttributes(attribute.Int("sim.nodes", len(nodes)))

	if stale := countStale(nodes, round-1); stale > 0 {
		s.log.Warn(ctx, "nodes were not queried in the previous round",
			logging.Int("round", round),
			logging.Int("stale_nodes", stale),
		)
	}

	s.policy.Prepare(ctx, round, nodes)

	var term *Termination
	for _, n := range nodes {
		s.policy.Apply(round, n)
		if term == nil && n.Depleted() {
			term = &Termination{Round: round, Node: *n}
			if s.mode == TerminatePerNode {
				break
			}
		}
	}

	if s.metrics != nil {
		s.metrics.ObserveRound(round, s.registry.Snapshot(), time.Since(start))
	}

	if term != nil {
		s.terminated = term
		span.SetAttributes(attribute.Int("sim.depleted_node", term.Node.ID))
		s.registry.Publish(kb.EventNodeDepleted, &term.Node)
		if s.metrics != nil {
			s.metrics.ObserveTermination(term)
		}
		s.log.Info(ctx, "node battery exhausted; stopping simulation",
			logging.Int("round", round),
			logging.Int("node_id", term.Node.ID),
			logging.String("mode", s.mode.String()),
		)
		return term, nil
	}

	s.log.Debug(ctx, "round complete",
		logging.Int("round", round),
		logging.Int("nodes", len(nodes)),
	)
	return nil, nil
}

// QueryPosition answers a position query. During round 0 it lazily creates
// the node's state from the supplied speed and coordinates; afterwards the
// supplied values are ignored and an unknown node is a protocol violation.
// Repeated queries within a round return the same coordinates.
func (s *Simulation) QueryPosition(ctx context.Context, nodeID int, speed float64, coords model.Position) (model.Position, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.runnableLocked(nodeID); err != nil {
		return model.Position{}, err
	}

	round := s.clock.Round()
	var node *model.NodeState
	if round == 0 {
		n, created, err := s.registry.Init(nodeID, speed, coords)
		if err != nil {
			return model.Position{}, fmt.Errorf("query position: %w", err)
		}
		if created {
			s.log.Debug(ctx, "node initialized",
				logging.Int("node_id", n.ID),
				logging.Bool("mobile", n.Mobile),
				logging.Float64("battery", n.Battery),
			)
		}
		node = n
	} else {
		n, err := s.registry.Get(nodeID)
		if errors.Is(err, kb.ErrNodeNotFound) {
			return model.Position{}, s.violationLocked(ctx, &ProtocolError{
				Kind:   ErrUnknownNode,
				Round:  round,
				NodeID: nodeID,
				Detail: "node was not introduced in round 0",
			})
		}
		if err != nil {
			return model.Position{}, fmt.Errorf("query position: %w", err)
		}
		node = n
	}

	node.LastServedRound = round
	return node.Position, nil
}

// Violation records a protocol violation detected outside the simulation
// (for example by the sentinel adapter) and returns err unchanged.
func (s *Simulation) Violation(ctx context.Context, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.violationLocked(ctx, err)
}

func (s *Simulation) runnableLocked(nodeID int) error {
	if s.terminated != nil {
		return &ProtocolError{Kind: ErrStopped, Round: s.terminated.Round, NodeID: nodeID}
	}
	if !s.clock.Started() {
		return &ProtocolError{Kind: ErrNotStarted, NodeID: nodeID}
	}
	return nil
}

func (s *Simulation) violationLocked(ctx context.Context, err error) error {
	kind := violationKind(err)
	if s.metrics != nil {
		s.metrics.ObserveViolation(kind)
	}
	s.log.Error(ctx, "driver protocol violation",
		logging.String("kind", kind),
		logging.Err(err),
	)
	return err
}

func countStale(nodes []*model.NodeState, round int) int {
	if round < 0 {
		return 0
	}
	stale := 0
	for _, n := range nodes {
		if n.LastServedRound < round {
			stale++
		}
	}
	return stale
}
