package model

import "fmt"

// NodeClass distinguishes mobile sensor nodes from static ones.
type NodeClass string

const (
	NodeClassStatic NodeClass = "static"
	NodeClassMobile NodeClass = "mobile"
)

// NodeState is the per-node record owned by the registry.
// Speed and Mobile are fixed once the node is initialized; Position and
// Battery are mutated by step policies.
type NodeState struct {
	ID       int
	Speed    float64
	Position Position
	Battery  float64
	Mobile   bool

	// LastServedRound is the last round in which the node's position was
	// returned to the driver. -1 until the first query is served.
	LastServedRound int
}

// Class reports the node's class.
func (n *NodeState) Class() NodeClass {
	if n.Mobile {
		return NodeClassMobile
	}
	return NodeClassStatic
}

// Depleted reports whether the node's battery has reached zero.
func (n *NodeState) Depleted() bool {
	return n.Battery <= 0
}

// Drain lowers the battery by amount, clamping at zero. Negative amounts are
// ignored so the battery never increases.
func (n *NodeState) Drain(amount float64) {
	if amount <= 0 {
		return
	}
	n.Battery -= amount
	if n.Battery < 0 {
		n.Battery = 0
	}
}

func (n NodeState) String() string {
	return fmt.Sprintf("node %d (battery=%g, position=%s, mobile=%t, speed=%g)",
		n.ID, n.Battery, n.Position, n.Mobile, n.Speed)
}
