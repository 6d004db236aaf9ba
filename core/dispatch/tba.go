package dispatch

import (
	"math"
	"sort"
)

type slot struct {
	node, hole int
	value      float64
	circled    bool
}

// TBA dispatches nodes with the circling heuristic: circle the cheapest hole
// for every node and the cheapest node for every hole, then keep circling the
// cheapest uncircled entry until every node has at least one circle. Circled
// entries are then granted in ascending cost order, each node and hole used
// at most once. assign[i] is the hole for node i, or -1.
func TBA(cost [][]float64) []int {
	n := len(cost)
	if n == 0 {
		return nil
	}
	m := len(cost[0])
	assign := make([]int, n)
	for i := range assign {
		assign[i] = -1
	}
	if m == 0 {
		return assign
	}

	grid := make([][]*slot, n)
	all := make([]*slot, 0, n*m)
	for i := range cost {
		grid[i] = make([]*slot, m)
		for j := range cost[i] {
			s := &slot{node: i, hole: j, value: finite(cost[i][j])}
			grid[i][j] = s
			all = append(all, s)
		}
	}

	for i := 0; i < n; i++ {
		best := grid[i][0]
		for j := 1; j < m; j++ {
			if grid[i][j].value < best.value {
				best = grid[i][j]
			}
		}
		best.circled = true
	}
	for j := 0; j < m; j++ {
		best := grid[0][j]
		for i := 1; i < n; i++ {
			if grid[i][j].value < best.value {
				best = grid[i][j]
			}
		}
		best.circled = true
	}

	sort.SliceStable(all, func(a, b int) bool { return all[a].value < all[b].value })

	needed := n
	if m < needed {
		needed = m
	}
	for granted(all, n, m) < needed {
		next := -1
		for k, s := range all {
			if !s.circled {
				next = k
				break
			}
		}
		if next < 0 {
			break
		}
		all[next].circled = true
	}

	grant(all, n, m, assign)
	return assign
}

// granted counts how many nodes the circled entries can serve.
func granted(all []*slot, n, m int) int {
	assign := make([]int, n)
	for i := range assign {
		assign[i] = -1
	}
	return grant(all, n, m, assign)
}

func grant(all []*slot, n, m int, assign []int) int {
	usedHole := make([]bool, m)
	count := 0
	for _, s := range all {
		if !s.circled || assign[s.node] >= 0 || usedHole[s.hole] {
			continue
		}
		assign[s.node] = s.hole
		usedHole[s.hole] = true
		count++
	}
	return count
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 1) {
		return math.MaxFloat64
	}
	if math.IsInf(v, -1) {
		return -math.MaxFloat64
	}
	return v
}
