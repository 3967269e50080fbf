package model

import (
	"sync/atomic"

	latentErrors "github.com/YuminosukeSato/latent/pkg/errors"
)

// StateSlot holds the TrainedState of one estimator.
//
// The slot is replaced wholesale by a single atomic pointer swap, so readers
// observe either the state before or the state after a Fit, never a mix.
// Stored states are never mutated; Load hands out clones.
type StateSlot struct {
	state atomic.Pointer[TrainedState]
}

// Load returns a clone of the current state, or false if nothing has been stored.
func (s *StateSlot) Load() (*TrainedState, bool) {
	cur := s.state.Load()
	if cur == nil {
		return nil, false
	}
	return cur.Clone(), true
}

// Store publishes a clone of state, replacing any previous one.
// Storing nil resets the slot.
func (s *StateSlot) Store(state *TrainedState) {
	s.state.Store(state.Clone())
}

// Current returns the stored state without copying.
// Callers must treat the result as read-only.
func (s *StateSlot) Current() *TrainedState {
	return s.state.Load()
}

// IsFitted reports whether a state has been stored.
func (s *StateSlot) IsFitted() bool {
	return s.state.Load() != nil
}

// Reset clears the slot.
func (s *StateSlot) Reset() {
	s.state.Store(nil)
}

// RequireFitted returns the current state or a NotFittedError naming
// modelName and method.
func (s *StateSlot) RequireFitted(modelName, method string) (*TrainedState, error) {
	cur := s.state.Load()
	if cur == nil {
		return nil, latentErrors.NewNotFittedError(modelName, method)
	}
	return cur, nil
}
