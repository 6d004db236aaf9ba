package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/sensornet-simulator/core"
)

// DispatchCollector exposes metrics for dispatch planning passes. It
// implements core.PlanRecorder.
type DispatchCollector struct {
	gatherer prometheus.Gatherer

	PlanDuration  prometheus.Histogram
	Plans         prometheus.Counter
	CoverageHoles prometheus.Gauge
	AssignedNodes prometheus.Gauge
}

var _ core.PlanRecorder = (*DispatchCollector)(nil)

// NewDispatchCollector registers dispatch metrics against the provided
// registerer.
func NewDispatchCollector(reg prometheus.Registerer) (*DispatchCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	duration, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatch_plan_duration_seconds",
		Help:    "Duration of hole detection plus assignment.",
		Buckets: []float64{0.0001, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
	}), "dispatch_plan_duration_seconds")
	if err != nil {
		return nil, err
	}
	plans, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_plans_total",
		Help: "Number of dispatch planning passes.",
	}), "dispatch_plans_total")
	if err != nil {
		return nil, err
	}
	holes, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dispatch_coverage_holes",
		Help: "Coverage holes found by the last planning pass.",
	}), "dispatch_coverage_holes")
	if err != nil {
		return nil, err
	}
	assigned, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dispatch_assigned_nodes",
		Help: "Mobile nodes given a target by the last planning pass.",
	}), "dispatch_assigned_nodes")
	if err != nil {
		return nil, err
	}

	return &DispatchCollector{
		gatherer:      gatherer,
		PlanDuration:  duration,
		Plans:         plans,
		CoverageHoles: holes,
		AssignedNodes: assigned,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *DispatchCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObservePlan records one planning pass.
func (c *DispatchCollector) ObservePlan(holes, assigned int, d time.Duration) {
	if c == nil {
		return
	}
	c.Plans.Inc()
	c.PlanDuration.Observe(d.Seconds())
	c.CoverageHoles.Set(float64(holes))
	c.AssignedNodes.Set(float64(assigned))
}
