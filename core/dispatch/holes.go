// Package dispatch finds coverage holes left by static sensors and decides
// which mobile node should fill each hole.
package dispatch

import (
	"math"
	"sort"

	"github.com/signalsfoundry/sensornet-simulator/model"
)

// FindHoles samples the area on a grid with the given spacing and returns
// the sample points that lie farther than sensingRange from every sensor.
// Points are sampled at cell centres and returned sorted by X, then Y.
func FindHoles(area model.Area, sensors []model.Position, sensingRange, spacing float64) []model.Position {
	if spacing <= 0 || area.Width <= 0 || area.Height <= 0 {
		return nil
	}

	cols := int(math.Ceil(area.Width / spacing))
	rows := int(math.Ceil(area.Height / spacing))

	var holes []model.Position
	for c := 0; c < cols; c++ {
		x := math.Min((float64(c)+0.5)*spacing, area.Width)
		for r := 0; r < rows; r++ {
			p := model.Position{X: x, Y: math.Min((float64(r)+0.5)*spacing, area.Height)}
			if !covered(p, sensors, sensingRange) {
				holes = append(holes, p)
			}
		}
	}

	sort.Slice(holes, func(i, j int) bool {
		if holes[i].X != holes[j].X {
			return holes[i].X < holes[j].X
		}
		return holes[i].Y < holes[j].Y
	})
	return holes
}

func covered(p model.Position, sensors []model.Position, sensingRange float64) bool {
	for _, s := range sensors {
		if p.DistanceTo(s) <= sensingRange {
			return true
		}
	}
	return false
}

// DistanceMatrix returns m where m[i][j] is the distance from node i to
// hole j.
func DistanceMatrix(nodes, holes []model.Position) [][]float64 {
	m := make([][]float64, len(nodes))
	for i, n := range nodes {
		m[i] = make([]float64, len(holes))
		for j, h := range holes {
			m[i][j] = n.DistanceTo(h)
		}
	}
	return m
}

// BatteryAware rewrites a distance matrix so nodes with more battery left
// after the move are cheaper to dispatch. Each entry becomes the battery the
// node would keep (battery - costPerMetre*distance), and the result is
// inverted against the largest finite value so the best-charged node gets
// the smallest weight.
func BatteryAware(distances [][]float64, batteries []float64, costPerMetre float64) [][]float64 {
	out := make([][]float64, len(distances))
	maxLeft := math.Inf(-1)
	for i, row := range distances {
		out[i] = make([]float64, len(row))
		for j, d := range row {
			left := batteries[i] - costPerMetre*d
			out[i][j] = left
			if !math.IsInf(left, 0) && !math.IsNaN(left) && left > maxLeft {
				maxLeft = left
			}
		}
	}
	for i := range out {
		for j := range out[i] {
			out[i][j] = maxLeft - out[i][j]
		}
	}
	return out
}
