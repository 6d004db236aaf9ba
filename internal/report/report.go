// Package report renders run output: the per-round CSV and the final
// termination record.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"sync"

	"github.com/signalsfoundry/sensornet-simulator/core"
	"github.com/signalsfoundry/sensornet-simulator/model"
)

// Header is the first CSV row.
var Header = []string{"round", "nodes", "mobile_mean_battery", "static_mean_battery", "min_battery", "min_battery_node"}

// RoundCSV writes one CSV row per observed round.
type RoundCSV struct {
	mu          sync.Mutex
	w           *csv.Writer
	wroteHeader bool
}

// NewRoundCSV writes rows to w. The header is emitted with the first row.
func NewRoundCSV(w io.Writer) *RoundCSV {
	return &RoundCSV{w: csv.NewWriter(w)}
}

// RecordRound appends the row for round and flushes it.
func (r *RoundCSV) RecordRound(round int, nodes []model.NodeState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.wroteHeader {
		if err := r.w.Write(Header); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
		r.wroteHeader = true
	}

	s := Summarize(nodes)
	row := []string{
		strconv.Itoa(round),
		strconv.Itoa(len(nodes)),
		formatFloat(s.MobileMean),
		formatFloat(s.StaticMean),
		formatFloat(s.MinBattery),
		strconv.Itoa(s.MinBatteryNode),
	}
	if err := r.w.Write(row); err != nil {
		return fmt.Errorf("write csv row: %w", err)
	}
	r.w.Flush()
	return r.w.Error()
}

// Summary aggregates battery levels of one snapshot.
type Summary struct {
	MobileMean     float64
	StaticMean     float64
	MinBattery     float64
	MinBatteryNode int // -1 when there are no nodes
}

// Summarize computes per-class means and the minimum battery. Ties for the
// minimum go to the lowest ID. A class with no nodes has mean 0.
func Summarize(nodes []model.NodeState) Summary {
	s := Summary{MinBatteryNode: -1}
	var mobileSum, staticSum float64
	var mobiles, statics int
	minBattery := math.Inf(1)
	for _, n := range nodes {
		if n.Mobile {
			mobileSum += n.Battery
			mobiles++
		} else {
			staticSum += n.Battery
			statics++
		}
		if n.Battery < minBattery || (n.Battery == minBattery && n.ID < s.MinBatteryNode) {
			minBattery = n.Battery
			s.MinBatteryNode = n.ID
		}
	}
	if mobiles > 0 {
		s.MobileMean = mobileSum / float64(mobiles)
	}
	if statics > 0 {
		s.StaticMean = staticSum / float64(statics)
	}
	if s.MinBatteryNode >= 0 {
		s.MinBattery = minBattery
	}
	return s
}

// WriteTermination prints the human-readable termination record followed by
// a newline. A nil record writes a round-limit notice instead.
func WriteTermination(w io.Writer, t *core.Termination, rounds int) error {
	var err error
	if t == nil {
		_, err = fmt.Fprintf(w, "round %d: round limit reached with no battery exhausted\n", rounds)
	} else {
		_, err = fmt.Fprintln(w, t.String())
	}
	return err
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
