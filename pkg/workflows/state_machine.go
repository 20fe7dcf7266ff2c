package workflows

import "sort"

// StateMachine enforces status transitions keyed by the event that triggers them
type StateMachine struct {
	allowedTransitions map[string]map[string]string
}

// Transition describes a single legal move between two states
type Transition struct {
	From  string
	Event string
	To    string
}

// NewStateMachine creates a new state machine from the given transition table
func NewStateMachine(transitions ...Transition) *StateMachine {
	sm := &StateMachine{
		allowedTransitions: make(map[string]map[string]string),
	}
	for _, t := range transitions {
		events, ok := sm.allowedTransitions[t.From]
		if !ok {
			events = make(map[string]string)
			sm.allowedTransitions[t.From] = events
		}
		events[t.Event] = t.To
	}
	return sm
}

// Target returns the state reached by firing event from the given state
func (sm *StateMachine) Target(from, event string) (string, bool) {
	events, exists := sm.allowedTransitions[from]
	if !exists {
		return "", false
	}
	to, ok := events[event]
	return to, ok
}

// CanFire checks if event is accepted in the given state
func (sm *StateMachine) CanFire(from, event string) bool {
	_, ok := sm.Target(from, event)
	return ok
}

// CanTransition checks if a status transition is allowed by any event
func (sm *StateMachine) CanTransition(from, to string) bool {
	for _, target := range sm.allowedTransitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// GetAllowedEvents returns the events accepted in a given state, sorted
func (sm *StateMachine) GetAllowedEvents(from string) []string {
	events, exists := sm.allowedTransitions[from]
	if !exists {
		return []string{}
	}
	allowed := make([]string, 0, len(events))
	for event := range events {
		allowed = append(allowed, event)
	}
	sort.Strings(allowed)
	return allowed
}
