package kb

import (
	"errors"
	"fmt"
	"sync"

	"github.com/signalsfoundry/orrery/model"
)

var (
	ErrBodyExists   = errors.New("body already exists")
	ErrBodyNotFound = errors.New("body not found")
	ErrBadParent    = errors.New("parent must be registered before its children")
	ErrFrameSize    = errors.New("frame does not cover every body")
)

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventFrame EventType = iota
)

// Event is emitted to subscribers after each frame of positions is stored.
type Event struct {
	Type    EventType
	SimTime float64
	States  []model.BodyState
}

// KnowledgeBase is an in-memory, thread-safe registry of bodies and their
// latest derived state. Bodies keep their registration order, and a body's
// parent is always registered before it, so iterating in order visits
// parents first.
type KnowledgeBase struct {
	mu sync.RWMutex

	bodies []model.Body
	index  map[string]int

	states  []model.BodyState
	simTime float64

	subs    map[int]func(Event)
	nextSub int
}

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		index: make(map[string]int),
		subs:  make(map[int]func(Event)),
	}
}

// AddBody registers a body and returns its index.
func (kb *KnowledgeBase) AddBody(b model.Body) (int, error) {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if _, exists := kb.index[b.Name]; exists {
		return 0, fmt.Errorf("%w: %q", ErrBodyExists, b.Name)
	}
	if b.Parent != model.NoParent && (b.Parent < 0 || b.Parent >= len(kb.bodies)) {
		return 0, fmt.Errorf("%w: %q has parent index %d", ErrBadParent, b.Name, b.Parent)
	}
	idx := len(kb.bodies)
	kb.bodies = append(kb.bodies, b)
	kb.index[b.Name] = idx
	kb.states = append(kb.states, model.BodyState{Name: b.Name})
	return idx, nil
}

// Len returns the number of registered bodies.
func (kb *KnowledgeBase) Len() int {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return len(kb.bodies)
}

// GetBody returns the body with the given name.
func (kb *KnowledgeBase) GetBody(name string) (model.Body, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	idx, ok := kb.index[name]
	if !ok {
		return model.Body{}, fmt.Errorf("%w: %q", ErrBodyNotFound, name)
	}
	return kb.bodies[idx], nil
}

// Body returns the body at index i.
func (kb *KnowledgeBase) Body(i int) model.Body {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.bodies[i]
}

// ListBodies returns a snapshot of all bodies in registration order.
func (kb *KnowledgeBase) ListBodies() []model.Body {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return append([]model.Body(nil), kb.bodies...)
}

// State returns the latest derived state of a body.
func (kb *KnowledgeBase) State(name string) (model.BodyState, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	idx, ok := kb.index[name]
	if !ok {
		return model.BodyState{}, fmt.Errorf("%w: %q", ErrBodyNotFound, name)
	}
	return kb.states[idx], nil
}

// States returns the latest frame and the simulation time it was computed at.
func (kb *KnowledgeBase) States() (float64, []model.BodyState) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.simTime, append([]model.BodyState(nil), kb.states...)
}

// PublishFrame stores a complete frame of states, in registration order, and
// notifies subscribers.
func (kb *KnowledgeBase) PublishFrame(simTime float64, states []model.BodyState) error {
	kb.mu.Lock()
	if len(states) != len(kb.bodies) {
		kb.mu.Unlock()
		return fmt.Errorf("%w: got %d states for %d bodies", ErrFrameSize, len(states), len(kb.bodies))
	}
	kb.states = append(kb.states[:0], states...)
	kb.simTime = simTime
	event := Event{
		Type:    EventFrame,
		SimTime: simTime,
		States:  append([]model.BodyState(nil), states...),
	}
	subs := make([]func(Event), 0, len(kb.subs))
	for _, fn := range kb.subs {
		subs = append(subs, fn)
	}
	kb.mu.Unlock()

	// Notify subscribers outside the lock to avoid deadlocks.
	for _, sub := range subs {
		sub(event)
	}
	return nil
}

// Subscribe registers a callback for KB events. It returns an unsubscribe function.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	id := kb.nextSub
	kb.nextSub++
	kb.subs[id] = fn

	return func() {
		kb.mu.Lock()
		defer kb.mu.Unlock()
		delete(kb.subs, id)
	}
}
