package recovery

import (
	"fmt"
	"sync"
)

// StrictStrategy fails on the first malformed construct.
type StrictStrategy struct{}

func NewStrictStrategy() *StrictStrategy { return &StrictStrategy{} }

func (s *StrictStrategy) OnError(ctx Context, err error, location Location) Action {
	return ActionFail
}

// LenientStrategy keeps going and records what it tolerated.
type LenientStrategy struct {
	mu     sync.Mutex
	Errors []error
}

func NewLenientStrategy() *LenientStrategy { return &LenientStrategy{} }

func (s *LenientStrategy) OnError(ctx Context, err error, location Location) Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Errors = append(s.Errors, fmt.Errorf("[%s]: %w", location, err))
	return ActionWarn
}

// Drain returns the recorded errors and resets the list.
func (s *LenientStrategy) Drain() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.Errors
	s.Errors = nil
	return out
}
