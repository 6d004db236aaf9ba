package dispatch

import (
	"fmt"
	"strings"
)

// Algorithm names an assignment strategy.
type Algorithm string

const (
	// AlgorithmHBA is the Hungarian-based optimal assignment.
	AlgorithmHBA Algorithm = "hba"
	// AlgorithmTBA is the greedy circling heuristic.
	AlgorithmTBA Algorithm = "tba"
)

// ParseAlgorithm accepts "hba" (the default when empty) or "tba".
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(strings.TrimSpace(s))) {
	case "", AlgorithmHBA:
		return AlgorithmHBA, nil
	case AlgorithmTBA:
		return AlgorithmTBA, nil
	default:
		return "", fmt.Errorf("unknown dispatch algorithm %q", s)
	}
}

// Assign runs the selected algorithm over cost, where cost[i][j] is the
// price of sending node i to hole j.
func Assign(alg Algorithm, cost [][]float64) ([]int, error) {
	switch alg {
	case AlgorithmHBA, "":
		return Hungarian(cost), nil
	case AlgorithmTBA:
		return TBA(cost), nil
	default:
		return nil, fmt.Errorf("unknown dispatch algorithm %q", alg)
	}
}
