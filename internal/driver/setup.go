package driver

import (
	"fmt"
	"math/rand/v2"

	"github.com/signalsfoundry/sensornet-simulator/core"
	"github.com/signalsfoundry/sensornet-simulator/core/dispatch"
	"github.com/signalsfoundry/sensornet-simulator/internal/config"
	"github.com/signalsfoundry/sensornet-simulator/internal/logging"
	"github.com/signalsfoundry/sensornet-simulator/kb"
	"github.com/signalsfoundry/sensornet-simulator/model"
	"github.com/signalsfoundry/sensornet-simulator/timectrl"
)

// Deps are the optional collaborators of a configured run.
type Deps struct {
	Log       logging.Logger
	Recorder  core.RoundRecorder
	Planner   core.PlanRecorder
	Observers []Observer
}

// Setup assembles a Simulation and a Driver from a validated scenario.
// Placement and speed draws, and the battery drain, are all derived from
// cfg.Simulation.Seed so equal seeds give equal runs.
func Setup(cfg *config.Config, deps Deps) (*core.Simulation, *Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	log := deps.Log
	if log == nil {
		log = logging.Noop()
	}

	area := model.Area{Width: cfg.Area.Width, Height: cfg.Area.Height}
	seed := cfg.Simulation.Seed
	layoutRand := rand.New(rand.NewPCG(seed, seed^0x5eed))

	placement, err := NewPlacement(cfg.Placement.Model, cfg.Placement.StandardDeviation, layoutRand)
	if err != nil {
		return nil, nil, err
	}
	speeds, err := NewSpeedModel(SpeedParams{
		Model:             cfg.Speed.Model,
		Speed:             cfg.Speed.Speed,
		Min:               cfg.Speed.Min,
		Max:               cfg.Speed.Max,
		Mean:              cfg.Speed.Mean,
		StandardDeviation: cfg.Speed.StandardDeviation,
	}, layoutRand)
	if err != nil {
		return nil, nil, err
	}

	positions := placement.Place(cfg.Nodes.Total, area)
	nodes := make([]Node, cfg.Nodes.Total)
	for i := range nodes {
		nodes[i] = Node{ID: i, Speed: speeds.Speed(), Position: positions[i]}
	}

	policy, err := buildPolicy(cfg, area, core.NewRandomSource(seed), deps.Planner, log)
	if err != nil {
		return nil, nil, err
	}
	mode, err := core.ParseTerminationMode(cfg.Battery.TerminationCheck)
	if err != nil {
		return nil, nil, err
	}

	reg := kb.NewRegistry(kb.Provisioning{
		MobileCount:   cfg.Nodes.Mobile,
		MobileBattery: cfg.Battery.Mobile,
		StaticBattery: cfg.Battery.Static,
	})
	simOpts := []core.SimulationOption{core.WithTerminationMode(mode)}
	if deps.Recorder != nil {
		simOpts = append(simOpts, core.WithRoundRecorder(deps.Recorder))
	}
	sim := core.NewSimulation(reg, policy, log, simOpts...)

	pacing := timectrl.Accelerated
	if cfg.Simulation.Pacing == "real_time" {
		pacing = timectrl.RealTime
	}
	opts := []Option{
		WithPacer(timectrl.NewPacer(cfg.RoundDuration(), pacing)),
		WithMaxRounds(cfg.Simulation.TotalRounds),
	}
	protocol, err := ParseProtocol(cfg.Simulation.Protocol)
	if err != nil {
		return nil, nil, err
	}
	if protocol == ProtocolSentinel {
		opts = append(opts, WithSentinel(cfg.Nodes.Sentinel))
	}
	for _, o := range deps.Observers {
		opts = append(opts, WithObserver(o))
	}

	return sim, New(sim, nodes, log, opts...), nil
}

func buildPolicy(cfg *config.Config, area model.Area, rng core.RandomSource, planner core.PlanRecorder, log logging.Logger) (core.StepPolicy, error) {
	drain := core.NewBatteryDrain(rng)
	switch cfg.Mobility.Policy {
	case "none", "":
		return drain, nil
	case "dispatch":
		alg, err := dispatch.ParseAlgorithm(cfg.Mobility.Algorithm)
		if err != nil {
			return nil, err
		}
		move := core.NewDispatchPolicy(core.DispatchConfig{
			Area:           area,
			SensingRange:   cfg.Mobility.SensingRange,
			HoleSpacing:    cfg.Mobility.HoleSpacing,
			RoundDuration:  cfg.RoundDuration(),
			MoveCost:       cfg.Mobility.MoveCost,
			Algorithm:      alg,
			BatteryAware:   cfg.Mobility.BatteryAware,
			ReplanInterval: cfg.Mobility.ReplanInterval,
			Recorder:       planner,
		}, log)
		return core.Chain{drain, move}, nil
	default:
		return nil, fmt.Errorf("unknown mobility policy %q", cfg.Mobility.Policy)
	}
}
