package dispatch

import "math"

// Hungarian returns a minimum-cost assignment for the n×m cost matrix.
// assign[i] is the column given to row i, or -1 when there are more rows
// than columns and row i is left out. Infinite or NaN costs are treated as
// forbidden but still assignable when nothing else is available.
func Hungarian(cost [][]float64) []int {
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

	size := n
	if m > size {
		size = m
	}

	// Forbidden entries get a penalty larger than any finite total.
	penalty := 1.0
	for _, row := range cost {
		for _, v := range row {
			if !math.IsInf(v, 0) && !math.IsNaN(v) {
				penalty += math.Abs(v)
			}
		}
	}
	penalty *= float64(size) + 1

	at := func(i, j int) float64 {
		if i >= n || j >= m {
			return 0
		}
		v := cost[i][j]
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return penalty
		}
		return v
	}

	// Potentials method over a square matrix, 1-indexed; p[j] is the row
	// matched to column j.
	u := make([]float64, size+1)
	v := make([]float64, size+1)
	p := make([]int, size+1)
	way := make([]int, size+1)

	for i := 1; i <= size; i++ {
		p[0] = i
		j0 := 0
		minv := make([]float64, size+1)
		used := make([]bool, size+1)
		for j := range minv {
			minv[j] = math.Inf(1)
		}
		for {
			used[j0] = true
			i0 := p[j0]
			delta := math.Inf(1)
			j1 := 0
			for j := 1; j <= size; j++ {
				if used[j] {
					continue
				}
				cur := at(i0-1, j-1) - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			for j := 0; j <= size; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if p[j0] == 0 {
				break
			}
		}
		for {
			j1 := way[j0]
			p[j0] = p[j1]
			j0 = j1
			if j0 == 0 {
				break
			}
		}
	}

	for j := 1; j <= size; j++ {
		i := p[j] - 1
		if i >= 0 && i < n && j-1 < m {
			assign[i] = j - 1
		}
	}
	return assign
}

// TotalCost sums the cost of an assignment, skipping unassigned rows.
func TotalCost(cost [][]float64, assign []int) float64 {
	total := 0.0
	for i, j := range assign {
		if j >= 0 {
			total += cost[i][j]
		}
	}
	return total
}
