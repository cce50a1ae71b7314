package recovery

import (
	"fmt"
	"sync"
)

// Strict fails on the first malformed construct. Useful for validation;
// extraction callers usually want Lenient.
type Strict struct{}

func NewStrict() *Strict { return &Strict{} }

func (*Strict) OnError(err error, location Location) Action { return ActionFail }

// Lenient records every error and continues with a best-effort repair.
// Per-object and per-operator errors stay contained to their unit; the
// accumulated list is available for diagnostics after the operation.
// Safe for concurrent use: page workers share one strategy.
type Lenient struct {
	mu     sync.Mutex
	errors []error
}

func NewLenient() *Lenient { return &Lenient{} }

func (s *Lenient) OnError(err error, location Location) Action {
	s.mu.Lock()
	s.errors = append(s.errors, fmt.Errorf("%s at offset %d (obj %d %d): %w",
		location.Component, location.ByteOffset, location.ObjectNum, location.ObjectGen, err))
	s.mu.Unlock()
	return ActionFix
}

// Errors returns a snapshot of everything recovered so far.
func (s *Lenient) Errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]error, len(s.errors))
	copy(out, s.errors)
	return out
}
