package kb

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/signalsfoundry/sensornet-simulator/model"
)

var (
	// ErrNodeNotFound indicates no state exists for the requested node.
	ErrNodeNotFound = errors.New("node not found")
	// ErrInvalidNodeID indicates a negative node identifier.
	ErrInvalidNodeID = errors.New("invalid node id")
)

// EventType indicates what kind of change happened in the registry.
type EventType int

const (
	EventNodeInitialized EventType = iota
	EventNodeDepleted
)

func (t EventType) String() string {
	switch t {
	case EventNodeInitialized:
		return "node_initialized"
	case EventNodeDepleted:
		return "node_depleted"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is emitted to subscribers when something interesting happens.
type Event struct {
	Type EventType
	Node model.NodeState
}

// Provisioning holds the constants used to build a node's initial state.
type Provisioning struct {
	// MobileCount is the number of nodes, counted from ID 0, that are mobile.
	MobileCount   int
	MobileBattery float64
	StaticBattery float64
}

// NewNode builds the initial state for id. Nodes with id < MobileCount are
// mobile and receive the mobile battery budget.
func (p Provisioning) NewNode(id int, speed float64, pos model.Position) *model.NodeState {
	mobile := id < p.MobileCount
	battery := p.StaticBattery
	if mobile {
		battery = p.MobileBattery
	}
	return &model.NodeState{
		ID:              id,
		Speed:           speed,
		Position:        pos,
		Battery:         battery,
		Mobile:          mobile,
		LastServedRound: -1,
	}
}

// Registry is an in-memory, thread-safe store of node state keyed by ID.
type Registry struct {
	mu sync.RWMutex

	provisioning Provisioning
	nodes        map[int]*model.NodeState
	// ids is kept sorted so passes over the registry are deterministic.
	ids []int

	subs   map[int]func(Event)
	nextID int
}

// NewRegistry constructs an empty registry.
func NewRegistry(p Provisioning) *Registry {
	return &Registry{
		provisioning: p,
		nodes:        make(map[int]*model.NodeState),
		subs:         make(map[int]func(Event)),
	}
}

// Provisioning returns the constants used for lazy initialization.
func (r *Registry) Provisioning() Provisioning {
	return r.provisioning
}

// Init returns the state for id, creating it from the supplied speed and
// position if it does not exist yet. The boolean reports whether the node
// was created by this call. Existing state is never replaced.
func (r *Registry) Init(id int, speed float64, pos model.Position) (*model.NodeState, bool, error) {
	if id < 0 {
		return nil, false, fmt.Errorf("%w: %d", ErrInvalidNodeID, id)
	}

	r.mu.Lock()
	if n, ok := r.nodes[id]; ok {
		r.mu.Unlock()
		return n, false, nil
	}
	n := r.provisioning.NewNode(id, speed, pos)
	r.nodes[id] = n
	idx := sort.SearchInts(r.ids, id)
	r.ids = append(r.ids, 0)
	copy(r.ids[idx+1:], r.ids[idx:])
	r.ids[idx] = id
	subs := r.subscribersLocked()
	r.mu.Unlock()

	notify(subs, Event{Type: EventNodeInitialized, Node: *n})
	return n, true, nil
}

// Get returns the state for id.
func (r *Registry) Get(id int) (*model.NodeState, error) {
	if id < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidNodeID, id)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNodeNotFound, id)
	}
	return n, nil
}

// Nodes returns the live node records in ascending ID order. Callers that
// mutate them must hold whatever lock serialises rounds.
func (r *Registry) Nodes() []*model.NodeState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]*model.NodeState, 0, len(r.ids))
	for _, id := range r.ids {
		res = append(res, r.nodes[id])
	}
	return res
}

// Snapshot returns copies of all node records in ascending ID order.
func (r *Registry) Snapshot() []model.NodeState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]model.NodeState, 0, len(r.ids))
	for _, id := range r.ids {
		res = append(res, *r.nodes[id])
	}
	return res
}

// Len returns the number of initialized nodes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// Reset drops every node record. Subscriptions are kept.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes = make(map[int]*model.NodeState)
	r.ids = nil
}

// Publish notifies subscribers about n.
func (r *Registry) Publish(t EventType, n *model.NodeState) {
	if n == nil {
		return
	}
	r.mu.RLock()
	subs := r.subscribersLocked()
	r.mu.RUnlock()
	notify(subs, Event{Type: t, Node: *n})
}

// Subscribe registers a callback for registry events. It returns an
// unsubscribe function. Callbacks run outside the registry lock.
func (r *Registry) Subscribe(fn func(Event)) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.subs[id] = fn

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs, id)
	}
}

func (r *Registry) subscribersLocked() []func(Event) {
	if len(r.subs) == 0 {
		return nil
	}
	keys := make([]int, 0, len(r.subs))
	for k := range r.subs {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	subs := make([]func(Event), 0, len(keys))
	for _, k := range keys {
		subs = append(subs, r.subs[k])
	}
	return subs
}

func notify(subs []func(Event), e Event) {
	for _, sub := range subs {
		sub(e)
	}
}
