// Package driver plays the role of the host framework: it introduces every
// node in round 0 and queries all positions in ascending ID order each
// round, speaking either the explicit or the legacy sentinel protocol.
package driver

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/sensornet-simulator/core"
	"github.com/signalsfoundry/sensornet-simulator/internal/logging"
	"github.com/signalsfoundry/sensornet-simulator/model"
	"github.com/signalsfoundry/sensornet-simulator/timectrl"
)

const tracerName = "github.com/signalsfoundry/sensornet-simulator/internal/driver"

// Protocol selects how round boundaries are signalled to the simulation.
type Protocol string

const (
	// ProtocolExplicit calls Reset and BeginRound directly.
	ProtocolExplicit Protocol = "explicit"
	// ProtocolSentinel signals each boundary by querying the sentinel node
	// first.
	ProtocolSentinel Protocol = "sentinel"
)

// ParseProtocol maps a config value to a Protocol. Empty means explicit.
func ParseProtocol(s string) (Protocol, error) {
	switch Protocol(s) {
	case "", ProtocolExplicit:
		return ProtocolExplicit, nil
	case ProtocolSentinel:
		return ProtocolSentinel, nil
	default:
		return "", fmt.Errorf("unknown protocol %q", s)
	}
}

// Node is what the driver knows about a node before the simulation does.
type Node struct {
	ID       int
	Speed    float64
	Position model.Position
}

// Observer receives a post-round snapshot after every round the driver
// completes, including round 0.
type Observer interface {
	RecordRound(round int, nodes []model.NodeState) error
}

// Result summarises a finished run.
type Result struct {
	// Rounds is the last round reached.
	Rounds int
	// Termination is nil when the run ended by the round limit.
	Termination *core.Termination
}

// Driver feeds position queries into a Simulation.
type Driver struct {
	sim       *core.Simulation
	adapter   *core.SentinelAdapter
	protocol  Protocol
	nodes     []Node
	pacer     *timectrl.Pacer
	maxRounds int
	observers []Observer
	log       logging.Logger
}

// Option customises a Driver.
type Option func(*Driver)

// WithSentinel switches the driver to the sentinel protocol with the given
// boundary node.
func WithSentinel(id int) Option {
	return func(d *Driver) {
		d.protocol = ProtocolSentinel
		d.adapter = core.NewSentinelAdapter(d.sim, id)
	}
}

// WithPacer replaces the default accelerated pacer.
func WithPacer(p *timectrl.Pacer) Option {
	return func(d *Driver) {
		if p != nil {
			d.pacer = p
		}
	}
}

// WithMaxRounds limits the run to n rounds after initialization. n <= 0
// runs until a node is exhausted.
func WithMaxRounds(n int) Option {
	return func(d *Driver) {
		d.maxRounds = n
	}
}

// WithObserver adds a per-round observer.
func WithObserver(o Observer) Option {
	return func(d *Driver) {
		if o != nil {
			d.observers = append(d.observers, o)
		}
	}
}

// New builds a driver over sim for the given nodes. Nodes are queried in
// ascending ID order regardless of the order given here.
func New(sim *core.Simulation, nodes []Node, log logging.Logger, opts ...Option) *Driver {
	if log == nil {
		log = logging.Noop()
	}
	sorted := make([]Node, len(nodes))
	copy(sorted, nodes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	d := &Driver{
		sim:      sim,
		protocol: ProtocolExplicit,
		nodes:    sorted,
		pacer:    timectrl.NewPacer(0, timectrl.Accelerated),
		log:      log,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Protocol reports the protocol in use.
func (d *Driver) Protocol() Protocol {
	return d.protocol
}

// Run drives rounds until a node is exhausted, the round limit is reached,
// ctx is cancelled or a protocol violation occurs.
func (d *Driver) Run(ctx context.Context) (Result, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Driver.Run",
		trace.WithAttributes(
			attribute.String("driver.protocol", string(d.protocol)),
			attribute.Int("driver.nodes", len(d.nodes)),
			attribute.Int("driver.max_rounds", d.maxRounds),
		))
	defer span.End()

	d.log.Info(ctx, "simulation started",
		logging.String("protocol", string(d.protocol)),
		logging.Int("nodes", len(d.nodes)),
		logging.Int("max_rounds", d.maxRounds),
		logging.String("pacing", d.pacer.Mode.String()),
	)

	var res Result
	limit := 0
	if d.maxRounds > 0 {
		limit = d.maxRounds + 1
	}
	err := d.pacer.Run(ctx, limit, func(ctx context.Context, round int) (bool, error) {
		res.Rounds = round
		term, err := d.runRound(ctx, round)
		if err != nil {
			return false, fmt.Errorf("round %d: %w", round, err)
		}
		if term != nil {
			res.Termination = term
			return true, nil
		}
		return false, d.notify(round)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}

	span.SetAttributes(attribute.Int("driver.rounds", res.Rounds))
	if res.Termination != nil {
		span.SetAttributes(attribute.Int("driver.depleted_node", res.Termination.Node.ID))
		if err := d.notify(res.Rounds); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (d *Driver) runRound(ctx context.Context, round int) (*core.Termination, error) {
	if d.protocol == ProtocolSentinel {
		return d.runSentinelRound(ctx)
	}

	if round == 0 {
		d.sim.Reset()
	} else {
		term, err := d.sim.BeginRound(ctx)
		if err != nil || term != nil {
			return term, err
		}
	}
	for _, n := range d.nodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := d.sim.QueryPosition(ctx, n.ID, n.Speed, n.Position); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (d *Driver) runSentinelRound(ctx context.Context) (*core.Termination, error) {
	sentinel := d.adapter.Sentinel()
	for _, n := range d.nodes {
		if n.ID != sentinel {
			continue
		}
		if _, term, err := d.adapter.QueryPosition(ctx, n.ID, n.Speed, n.Position); err != nil || term != nil {
			return term, err
		}
	}
	for _, n := range d.nodes {
		if n.ID == sentinel {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, _, err := d.adapter.QueryPosition(ctx, n.ID, n.Speed, n.Position); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (d *Driver) notify(round int) error {
	if len(d.observers) == 0 {
		return nil
	}
	snap := d.sim.Snapshot()
	for _, o := range d.observers {
		if err := o.RecordRound(round, snap); err != nil {
			return fmt.Errorf("record round %d: %w", round, err)
		}
	}
	return nil
}
