package core

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownNode indicates a position query for a node that was never
	// introduced during round 0.
	ErrUnknownNode = errors.New("unknown node")
	// ErrOutOfOrder indicates the driver broke the ascending-ID, sentinel-first
	// query order within a round.
	ErrOutOfOrder = errors.New("out-of-order query")
	// ErrNotStarted indicates a round or query before Reset.
	ErrNotStarted = errors.New("simulation not started")
	// ErrStopped indicates a call after the simulation terminated.
	ErrStopped = errors.New("simulation stopped")
)

// ProtocolError describes a driver protocol violation. Kind is one of the
// sentinel errors above and is matched by errors.Is.
type ProtocolError struct {
	Kind   error
	Round  int
	NodeID int
	Detail string
}

func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("%v: round %d, node %d", e.Kind, e.Round, e.NodeID)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *ProtocolError) Unwrap() error { return e.Kind }

// violationKind returns a short metric label for err.
func violationKind(err error) string {
	switch {
	case errors.Is(err, ErrUnknownNode):
		return "unknown_node"
	case errors.Is(err, ErrOutOfOrder):
		return "out_of_order"
	case errors.Is(err, ErrNotStarted):
		return "not_started"
	case errors.Is(err, ErrStopped):
		return "stopped"
	default:
		return "other"
	}
}
