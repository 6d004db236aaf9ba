package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"github.com/signalsfoundry/sensornet-simulator/core"
	"github.com/signalsfoundry/sensornet-simulator/internal/logging"
	"github.com/signalsfoundry/sensornet-simulator/kb"
	"github.com/signalsfoundry/sensornet-simulator/model"
)

func TestObserveRoundRecordsBatteryGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}

	nodes := []model.NodeState{
		{ID: 0, Mobile: true, Battery: 10},
		{ID: 1, Mobile: true, Battery: 20},
		{ID: 2, Battery: 3},
	}
	collector.ObserveRound(4, nodes, 2*time.Millisecond)

	if got := testutil.ToFloat64(collector.Rounds); got != 1 {
		t.Fatalf("sim_rounds_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.CurrentRound); got != 4 {
		t.Fatalf("sim_current_round = %v, want 4", got)
	}
	if got := testutil.ToFloat64(collector.MinBattery); got != 3 {
		t.Fatalf("sim_min_battery = %v, want 3", got)
	}
	if got := testutil.ToFloat64(collector.MeanBattery.WithLabelValues("mobile")); got != 15 {
		t.Fatalf("sim_mean_battery{class=mobile} = %v, want 15", got)
	}
	if got := testutil.ToFloat64(collector.Nodes.WithLabelValues("static")); got != 1 {
		t.Fatalf("sim_nodes{class=static} = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "sim_step_duration_seconds", nil); count != 1 {
		t.Fatalf("sim_step_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestObserveTerminationAndViolations(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}

	collector.ObserveTermination(&core.Termination{Round: 3})
	collector.ObserveViolation("out_of_order")
	collector.ObserveViolation("out_of_order")
	collector.ObserveViolation("unknown_node")

	if got := testutil.ToFloat64(collector.Terminations); got != 1 {
		t.Fatalf("sim_terminations_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.Violations.WithLabelValues("out_of_order")); got != 2 {
		t.Fatalf("violations{kind=out_of_order} = %v, want 2", got)
	}
	if got := testutil.CollectAndCount(collector.Violations); got != 2 {
		t.Fatalf("violation series = %d, want 2", got)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *SimCollector
	c.ObserveRound(1, nil, time.Millisecond)
	c.ObserveTermination(nil)
	c.ObserveViolation("other")

	var d *DispatchCollector
	d.ObservePlan(1, 1, time.Millisecond)
	if d.Gatherer() != nil {
		t.Fatalf("nil collector must have no gatherer")
	}
}

func TestCollectorReusesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("first NewSimCollector: %v", err)
	}
	second, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("second NewSimCollector: %v", err)
	}
	first.Rounds.Inc()
	if got := testutil.ToFloat64(second.Rounds); got != 1 {
		t.Fatalf("second collector rounds = %v, want shared counter value 1", got)
	}
}

func TestRegisterRejectsIncompatibleType(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{Name: "sim_rounds_total", Help: "x"}), "sim_rounds_total"); err != nil {
		t.Fatalf("register gauge: %v", err)
	}
	if _, err := NewSimCollector(reg); err == nil {
		t.Fatalf("expected error when sim_rounds_total is already a gauge")
	}
}

func TestDispatchCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewDispatchCollector(reg)
	if err != nil {
		t.Fatalf("NewDispatchCollector: %v", err)
	}
	collector.ObservePlan(7, 5, 3*time.Millisecond)
	collector.ObservePlan(2, 2, time.Millisecond)

	if got := testutil.ToFloat64(collector.Plans); got != 2 {
		t.Fatalf("dispatch_plans_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.CoverageHoles); got != 2 {
		t.Fatalf("dispatch_coverage_holes = %v, want 2", got)
	}
	if count := histogramSampleCount(t, collector.Gatherer(), "dispatch_plan_duration_seconds", nil); count != 2 {
		t.Fatalf("dispatch_plan_duration_seconds sample_count = %d, want 2", count)
	}
}

func TestMetricsHandlerExposesSimulationMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}
	collector.ObserveRound(1, []model.NodeState{{ID: 0, Battery: 5}}, time.Millisecond)
	collector.ObserveViolation("unknown_node")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"sim_rounds_total",
		"sim_current_round",
		"sim_nodes",
		"sim_min_battery",
		"sim_mean_battery",
		"sim_step_duration_seconds",
		`sim_protocol_violations_total{kind="unknown_node"} 1`,
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
}

func TestSimulationDrivesCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}

	sim := core.NewSimulation(
		newRegistry(),
		core.NewBatteryDrain(core.NewSequenceSource(1)),
		logging.Noop(),
		core.WithRoundRecorder(collector),
	)
	sim.Reset()
	ctx := context.Background()
	for id := 0; id < 3; id++ {
		if _, err := sim.QueryPosition(ctx, id, 1, model.Position{}); err != nil {
			t.Fatalf("QueryPosition(%d): %v", id, err)
		}
	}
	term, err := sim.BeginRound(ctx)
	if err != nil {
		t.Fatalf("BeginRound: %v", err)
	}
	if term == nil {
		t.Fatalf("expected termination in round 1")
	}
	if got := testutil.ToFloat64(collector.Terminations); got != 1 {
		t.Fatalf("sim_terminations_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.MinBattery); got != 0 {
		t.Fatalf("sim_min_battery = %v, want 0", got)
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}

func newRegistry() *kb.Registry {
	return kb.NewRegistry(kb.Provisioning{MobileCount: 1, MobileBattery: 2, StaticBattery: 1})
}
