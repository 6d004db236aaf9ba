package core

import (
	"fmt"
	"strings"

	"github.com/signalsfoundry/sensornet-simulator/model"
)

// TerminationMode selects when the zero-battery check runs during a pass.
type TerminationMode int

const (
	// TerminatePerNode checks after every node update and stops the pass at
	// the first depleted node; later nodes keep their previous state.
	TerminatePerNode TerminationMode = iota
	// TerminateEndOfPass updates every node first and then reports the
	// lowest-ID depleted node.
	TerminateEndOfPass
)

func (m TerminationMode) String() string {
	switch m {
	case TerminatePerNode:
		return "per_node"
	case TerminateEndOfPass:
		return "end_of_pass"
	default:
		return fmt.Sprintf("termination_mode(%d)", int(m))
	}
}

// ParseTerminationMode accepts "per_node" (or "") and "end_of_pass".
func ParseTerminationMode(s string) (TerminationMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "per_node", "per-node":
		return TerminatePerNode, nil
	case "end_of_pass", "end-of-pass":
		return TerminateEndOfPass, nil
	default:
		return 0, fmt.Errorf("unknown termination mode %q", s)
	}
}

// Termination reports that a node exhausted its battery. It is a normal end
// of the simulation, not an error.
type Termination struct {
	Round int
	Node  model.NodeState
}

func (t *Termination) String() string {
	if t == nil {
		return "<nil>"
	}
	return fmt.Sprintf("round %d: node %d exhausted its battery (battery=%g, position=%s, mobile=%t, speed=%g)",
		t.Round, t.Node.ID, t.Node.Battery, t.Node.Position, t.Node.Mobile, t.Node.Speed)
}
