package core

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/sensornet-simulator/core/dispatch"
	"github.com/signalsfoundry/sensornet-simulator/internal/logging"
	"github.com/signalsfoundry/sensornet-simulator/model"
)

// PlanRecorder receives one observation per dispatch planning pass.
type PlanRecorder interface {
	ObservePlan(holes, assigned int, d time.Duration)
}

// DispatchConfig parameterises DispatchPolicy.
type DispatchConfig struct {
	Area           model.Area
	SensingRange   float64
	HoleSpacing    float64
	RoundDuration  time.Duration
	MoveCost       float64 // battery units per metre travelled
	Algorithm      dispatch.Algorithm
	BatteryAware   bool
	ReplanInterval int // rounds between re-planning; 0 plans once
	Recorder       PlanRecorder
}

// DispatchPolicy moves mobile nodes into coverage holes left by the static
// nodes. Holes are detected and assigned at the first pass and every
// ReplanInterval rounds after that. Each round a mobile node travels at most
// speed*RoundDuration toward its target and pays MoveCost per metre.
type DispatchPolicy struct {
	cfg DispatchConfig
	log logging.Logger

	targets    map[int]model.Position
	plannedAt  int
	hasPlanned bool
}

// NewDispatchPolicy constructs the move policy.
func NewDispatchPolicy(cfg DispatchConfig, log logging.Logger) *DispatchPolicy {
	if log == nil {
		log = logging.Noop()
	}
	if cfg.RoundDuration <= 0 {
		cfg.RoundDuration = time.Second
	}
	return &DispatchPolicy{
		cfg:     cfg,
		log:     log,
		targets: make(map[int]model.Position),
	}
}

func (p *DispatchPolicy) Name() string { return "dispatch_" + string(p.cfg.Algorithm) }

// Target returns the hole assigned to node id, if any.
func (p *DispatchPolicy) Target(id int) (model.Position, bool) {
	t, ok := p.targets[id]
	return t, ok
}

func (p *DispatchPolicy) Prepare(ctx context.Context, round int, nodes []*model.NodeState) {
	if p.hasPlanned && (p.cfg.ReplanInterval <= 0 || round-p.plannedAt < p.cfg.ReplanInterval) {
		return
	}
	p.plan(ctx, round, nodes)
}

func (p *DispatchPolicy) plan(ctx context.Context, round int, nodes []*model.NodeState) {
	_, span := otel.Tracer(tracerName).Start(ctx, "DispatchPolicy.plan")
	defer span.End()

	var sensors, holes []model.Position
	var mobiles []*model.NodeState
	start := time.Now()
	defer func() {
		if p.cfg.Recorder != nil {
			p.cfg.Recorder.ObservePlan(len(holes), len(p.targets), time.Since(start))
		}
	}()

	p.hasPlanned = true
	p.plannedAt = round
	p.targets = make(map[int]model.Position)

	for _, n := range nodes {
		switch {
		case !n.Mobile:
			sensors = append(sensors, n.Position)
		case !n.Depleted():
			mobiles = append(mobiles, n)
		}
	}

	holes = dispatch.FindHoles(p.cfg.Area, sensors, p.cfg.SensingRange, p.cfg.HoleSpacing)
	span.SetAttributes(
		attribute.Int("dispatch.holes", len(holes)),
		attribute.Int("dispatch.mobile_nodes", len(mobiles)),
	)
	if len(holes) == 0 || len(mobiles) == 0 {
		p.log.Debug(ctx, "nothing to dispatch",
			logging.Int("round", round),
			logging.Int("holes", len(holes)),
			logging.Int("mobile_nodes", len(mobiles)),
		)
		return
	}

	positions := make([]model.Position, len(mobiles))
	batteries := make([]float64, len(mobiles))
	for i, n := range mobiles {
		positions[i] = n.Position
		batteries[i] = n.Battery
	}
	cost := dispatch.DistanceMatrix(positions, holes)
	if p.cfg.BatteryAware {
		cost = dispatch.BatteryAware(cost, batteries, p.cfg.MoveCost)
	}

	assign, err := dispatch.Assign(p.cfg.Algorithm, cost)
	if err != nil {
		span.RecordError(err)
		p.log.Error(ctx, "dispatch assignment failed", logging.Err(err))
		return
	}
	for i, j := range assign {
		if j >= 0 {
			p.targets[mobiles[i].ID] = holes[j]
		}
	}

	p.log.Info(ctx, "dispatch plan computed",
		logging.Int("round", round),
		logging.Int("holes", len(holes)),
		logging.Int("assigned", len(p.targets)),
		logging.String("algorithm", string(p.cfg.Algorithm)),
		logging.Bool("battery_aware", p.cfg.BatteryAware),
	)
}

func (p *DispatchPolicy) Apply(_ int, node *model.NodeState) {
	if !node.Mobile || node.Depleted() {
		return
	}
	target, ok := p.targets[node.ID]
	if !ok {
		return
	}
	step := node.Speed * p.cfg.RoundDuration.Seconds()
	next, moved := node.Position.MoveToward(target, step)
	node.Position = p.cfg.Area.Clamp(next)
	node.Drain(moved * p.cfg.MoveCost)
}
