package observability

import (
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalsfoundry/sensornet-simulator/core"
	"github.com/signalsfoundry/sensornet-simulator/model"
)

// SimCollector bundles the Prometheus metrics of a simulation run. It
// implements core.RoundRecorder.
type SimCollector struct {
	gatherer prometheus.Gatherer

	Rounds       prometheus.Counter
	CurrentRound prometheus.Gauge
	Nodes        *prometheus.GaugeVec
	MinBattery   prometheus.Gauge
	MeanBattery  *prometheus.GaugeVec
	StepDuration prometheus.Histogram
	Terminations prometheus.Counter
	Violations   *prometheus.CounterVec
}

var _ core.RoundRecorder = (*SimCollector)(nil)

// NewSimCollector registers simulation metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	rounds, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_rounds_total",
		Help: "Total number of completed step passes.",
	}), "sim_rounds_total")
	if err != nil {
		return nil, err
	}
	current, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_current_round",
		Help: "Round number of the most recent step pass.",
	}), "sim_current_round")
	if err != nil {
		return nil, err
	}
	nodes, err := register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sim_nodes",
		Help: "Number of registered nodes, labeled by class.",
	}, []string{"class"}), "sim_nodes")
	if err != nil {
		return nil, err
	}
	minBattery, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_min_battery",
		Help: "Lowest battery level across all nodes after the last step pass.",
	}), "sim_min_battery")
	if err != nil {
		return nil, err
	}
	meanBattery, err := register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sim_mean_battery",
		Help: "Mean battery level after the last step pass, labeled by class.",
	}, []string{"class"}), "sim_mean_battery")
	if err != nil {
		return nil, err
	}
	stepDuration, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sim_step_duration_seconds",
		Help:    "Wall-clock duration of a step pass.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}), "sim_step_duration_seconds")
	if err != nil {
		return nil, err
	}
	terminations, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_terminations_total",
		Help: "Number of runs stopped by battery exhaustion.",
	}), "sim_terminations_total")
	if err != nil {
		return nil, err
	}
	violations, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_protocol_violations_total",
		Help: "Driver protocol violations, labeled by kind.",
	}, []string{"kind"}), "sim_protocol_violations_total")
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:     gatherer,
		Rounds:       rounds,
		CurrentRound: current,
		Nodes:        nodes,
		MinBattery:   minBattery,
		MeanBattery:  meanBattery,
		StepDuration: stepDuration,
		Terminations: terminations,
		Violations:   violations,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveRound updates the round and battery metrics from a post-pass
// snapshot.
func (c *SimCollector) ObserveRound(round int, nodes []model.NodeState, stepDuration time.Duration) {
	if c == nil {
		return
	}
	c.Rounds.Inc()
	c.CurrentRound.Set(float64(round))
	c.StepDuration.Observe(stepDuration.Seconds())

	count := map[model.NodeClass]int{}
	sum := map[model.NodeClass]float64{}
	minBattery := math.Inf(1)
	for _, n := range nodes {
		class := n.Class()
		count[class]++
		sum[class] += n.Battery
		minBattery = math.Min(minBattery, n.Battery)
	}
	for _, class := range []model.NodeClass{model.NodeClassStatic, model.NodeClassMobile} {
		c.Nodes.WithLabelValues(string(class)).Set(float64(count[class]))
		mean := 0.0
		if count[class] > 0 {
			mean = sum[class] / float64(count[class])
		}
		c.MeanBattery.WithLabelValues(string(class)).Set(mean)
	}
	if len(nodes) > 0 {
		c.MinBattery.Set(minBattery)
	}
}

// ObserveTermination counts a battery-exhaustion stop.
func (c *SimCollector) ObserveTermination(*core.Termination) {
	if c == nil {
		return
	}
	c.Terminations.Inc()
}

// ObserveViolation counts a protocol violation of the given kind.
func (c *SimCollector) ObserveViolation(kind string) {
	if c == nil {
		return
	}
	c.Violations.WithLabelValues(kind).Inc()
}

func register[C prometheus.Collector](reg prometheus.Registerer, collector C, name string) (C, error) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
			var zero C
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero C
		return zero, err
	}
	return collector, nil
}
