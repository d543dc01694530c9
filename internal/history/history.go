// Package history keeps bounded undo and redo stacks of immutable states.
package history

// DefaultLimit bounds the undo stack when no limit is given.
const DefaultLimit = 50

// Stack records previous states. States are stored as given, so they must
// never be mutated after being pushed. A Stack is not safe for concurrent use.
type Stack[T any] struct {
	limit int
	past  []T
	next  []T
}

// New returns a stack keeping at most limit undo steps.
func New[T any](limit int) *Stack[T] {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Stack[T]{limit: limit}
}

// Record saves prev as an undo step and clears the redo stack.
func (s *Stack[T]) Record(prev T) {
	s.past = append(s.past, prev)
	if len(s.past) > s.limit {
		s.past = s.past[len(s.past)-s.limit:]
	}
	s.next = nil
}

// Undo returns the state before current and remembers current for Redo.
func (s *Stack[T]) Undo(current T) (T, bool) {
	var zero T
	if len(s.past) == 0 {
		return zero, false
	}
	prev := s.past[len(s.past)-1]
	s.past = s.past[:len(s.past)-1]
	s.next = append(s.next, current)
	return prev, true
}

// Redo reverses the last Undo.
func (s *Stack[T]) Redo(current T) (T, bool) {
	var zero T
	if len(s.next) == 0 {
		return zero, false
	}
	state := s.next[len(s.next)-1]
	s.next = s.next[:len(s.next)-1]
	s.past = append(s.past, current)
	return state, true
}

func (s *Stack[T]) CanUndo() bool { return len(s.past) > 0 }
func (s *Stack[T]) CanRedo() bool { return len(s.next) > 0 }

// Depth returns the number of undo and redo steps held.
func (s *Stack[T]) Depth() (undo, redo int) { return len(s.past), len(s.next) }

// States returns every held undo and redo state, oldest undo step first.
func (s *Stack[T]) States() []T {
	out := make([]T, 0, len(s.past)+len(s.next))
	out = append(out, s.past...)
	return append(out, s.next...)
}

// Reset drops all steps.
func (s *Stack[T]) Reset() {
	s.past = nil
	s.next = nil
}
