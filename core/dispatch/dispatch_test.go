package dispatch

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/sensornet-simulator/model"
)

// bruteForce returns the minimum total cost over all injective assignments
// of min(n, m) rows.
func bruteForce(cost [][]float64) float64 {
	n, m := len(cost), len(cost[0])
	best := math.Inf(1)
	used := make([]bool, m)
	var rec func(i int, total float64, assigned int)
	rec = func(i int, total float64, assigned int) {
		if i == n {
			want := n
			if m < want {
				want = m
			}
			if assigned == want && total < best {
				best = total
			}
			return
		}
		if n > m {
			rec(i+1, total, assigned)
		}
		for j := 0; j < m; j++ {
			if used[j] {
				continue
			}
			used[j] = true
			rec(i+1, total+cost[i][j], assigned+1)
			used[j] = false
		}
	}
	rec(0, 0, 0)
	return best
}

func assertInjective(t *testing.T, assign []int, m int) {
	t.Helper()
	seen := make(map[int]bool)
	for i, j := range assign {
		if j < 0 {
			continue
		}
		require.Less(t, j, m, "row %d assigned out-of-range column", i)
		require.False(t, seen[j], "column %d assigned twice", j)
		seen[j] = true
	}
}

func TestHungarianKnownMatrix(t *testing.T) {
	cost := [][]float64{
		{4, 1, 3},
		{2, 0, 5},
		{3, 2, 2},
	}
	assign := Hungarian(cost)
	assert.Equal(t, []int{1, 0, 2}, assign)
	assert.Equal(t, 5.0, TotalCost(cost, assign))
}

func TestHungarianRectangular(t *testing.T) {
	wide := [][]float64{
		{9, 1, 8},
		{1, 9, 8},
	}
	assign := Hungarian(wide)
	assert.Equal(t, []int{1, 0}, assign)

	tall := [][]float64{
		{5},
		{1},
		{3},
	}
	assign = Hungarian(tall)
	assert.Equal(t, []int{-1, 0, -1}, assign)
}

func TestHungarianMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for trial := 0; trial < 50; trial++ {
		n := 1 + rng.IntN(5)
		m := 1 + rng.IntN(5)
		cost := make([][]float64, n)
		for i := range cost {
			cost[i] = make([]float64, m)
			for j := range cost[i] {
				cost[i][j] = float64(rng.IntN(100))
			}
		}
		assign := Hungarian(cost)
		assertInjective(t, assign, m)
		assert.InDelta(t, bruteForce(cost), TotalCost(cost, assign), 1e-9, "trial %d: %v", trial, cost)
	}
}

func TestHungarianAvoidsForbiddenEntries(t *testing.T) {
	inf := math.Inf(1)
	cost := [][]float64{
		{inf, 3},
		{1, inf},
	}
	assert.Equal(t, []int{1, 0}, Hungarian(cost))
}

func TestHungarianEmpty(t *testing.T) {
	assert.Nil(t, Hungarian(nil))
	assert.Equal(t, []int{-1, -1}, Hungarian([][]float64{{}, {}}))
}

func TestTBAServesEveryNodeWhenHolesSuffice(t *testing.T) {
	cost := [][]float64{
		{1, 2, 9},
		{1, 3, 9},
		{9, 9, 1},
	}
	assign := TBA(cost)
	assertInjective(t, assign, 3)
	for i, j := range assign {
		assert.GreaterOrEqual(t, j, 0, "node %d left without a hole", i)
	}
	// Node 0 and node 1 both prefer hole 0; the cheaper grant wins and the
	// other falls back to hole 1.
	assert.Equal(t, 2, assign[2])
}

func TestTBAMoreNodesThanHoles(t *testing.T) {
	cost := [][]float64{
		{4},
		{2},
		{7},
	}
	assert.Equal(t, []int{-1, 0, -1}, TBA(cost))
}

func TestAssignDispatchesByAlgorithm(t *testing.T) {
	cost := [][]float64{{1, 2}, {2, 1}}

	got, err := Assign(AlgorithmHBA, cost)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, got)

	got, err = Assign(AlgorithmTBA, cost)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, got)

	_, err = Assign("nope", cost)
	assert.Error(t, err)
}

func TestParseAlgorithm(t *testing.T) {
	for in, want := range map[string]Algorithm{"": AlgorithmHBA, "HBA": AlgorithmHBA, " tba ": AlgorithmTBA} {
		got, err := ParseAlgorithm(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseAlgorithm("voronoi")
	assert.Error(t, err)
}

func TestFindHoles(t *testing.T) {
	area := model.Area{Width: 20, Height: 10}
	// One sensor covering the left half exactly.
	sensors := []model.Position{{X: 5, Y: 5}}

	holes := FindHoles(area, sensors, 5, 10)
	// Cell centres are (5,5) and (15,5); only the right one is uncovered.
	assert.Equal(t, []model.Position{{X: 15, Y: 5}}, holes)

	assert.Empty(t, FindHoles(area, sensors, 100, 10))
	assert.Len(t, FindHoles(area, nil, 1, 5), 8)
	assert.Nil(t, FindHoles(area, nil, 1, 0))
}

func TestFindHolesSorted(t *testing.T) {
	holes := FindHoles(model.Area{Width: 30, Height: 30}, nil, 0, 10)
	require.Len(t, holes, 9)
	for i := 1; i < len(holes); i++ {
		prev, cur := holes[i-1], holes[i]
		assert.True(t, prev.X < cur.X || (prev.X == cur.X && prev.Y < cur.Y), "holes not sorted at %d", i)
	}
}

func TestDistanceMatrix(t *testing.T) {
	m := DistanceMatrix(
		[]model.Position{{X: 0, Y: 0}, {X: 3, Y: 0}},
		[]model.Position{{X: 3, Y: 4}},
	)
	assert.Equal(t, [][]float64{{5}, {4}}, m)
}

func TestBatteryAwarePrefersChargedNodes(t *testing.T) {
	distances := [][]float64{
		{10},
		{10},
	}
	weighted := BatteryAware(distances, []float64{50, 100}, 1)
	assert.Equal(t, [][]float64{{50}, {0}}, weighted)

	// Equal distances: the better-charged node is dispatched.
	assert.Equal(t, []int{-1, 0}, Hungarian(weighted))
}
