package graph

import (
	"maps"
	"sort"
)

// IterationKey is the reserved state key exposing the transition counter.
const IterationKey = "iteration_count"

// State is the mutable working memory threaded through one graph run.
// It is owned by a single run and not safe for concurrent use; nodes run
// strictly one after another.
type State struct {
	slots     map[string]any
	iteration int
	forced    bool
}

// NewState creates a State seeded with initial slots (copied).
func NewState(initial map[string]any) *State {
	s := &State{slots: make(map[string]any, len(initial))}
	maps.Copy(s.slots, initial)
	delete(s.slots, IterationKey)

	return s
}

// Get returns a slot value.
func (s *State) Get(key string) (any, bool) {
	if key == IterationKey {
		return s.iteration, true
	}

	v, ok := s.slots[key]

	return v, ok
}

// GetString returns a slot as string, or "".
func (s *State) GetString(key string) string {
	v, _ := s.slots[key].(string)
	return v
}

// Set stores a slot value. The iteration key is owned by the runner and
// cannot be overwritten.
func (s *State) Set(key string, value any) {
	if key == IterationKey {
		return
	}

	s.slots[key] = value
}

// Delete removes a slot.
func (s *State) Delete(key string) { delete(s.slots, key) }

// Iteration returns the number of node-to-node transitions so far.
func (s *State) Iteration() int { return s.iteration }

// Forced reports whether the runner redirected the run to the finish node
// because the iteration ceiling or deadline was reached.
func (s *State) Forced() bool { return s.forced }

// Keys returns the sorted slot names, including IterationKey.
func (s *State) Keys() []string {
	keys := make([]string, 0, len(s.slots)+1)
	keys = append(keys, IterationKey)

	for k := range s.slots {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// Snapshot returns a shallow copy of the slots.
func (s *State) Snapshot() map[string]any {
	out := make(map[string]any, len(s.slots)+1)
	maps.Copy(out, s.slots)
	out[IterationKey] = s.iteration

	return out
}

func (s *State) advance() { s.iteration++ }
