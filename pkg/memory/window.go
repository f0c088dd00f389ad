package memory

import "sync"

// Turn is one conversation turn held in short-term memory.
type Turn struct {
	Role    string
	Content string
}

// Window is the short-term memory buffer: a fixed-size window over the most
// recent turns, insertion ordered, oldest dropped first. Dropped turns are
// handed to the overflow callback so the summary strategy can compact them.
type Window struct {
	mu       sync.Mutex
	turns    []Turn
	capacity int
	overflow func(Turn)
}

// NewWindow creates a window holding at most capacity turns.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{capacity: capacity}
}

// OnOverflow registers a callback invoked with each turn dropped from the
// window. Must be set before concurrent use.
func (w *Window) OnOverflow(fn func(Turn)) {
	w.overflow = fn
}

// Append adds a turn, evicting the oldest if the window is full.
func (w *Window) Append(role, content string) {
	w.mu.Lock()
	var dropped *Turn
	w.turns = append(w.turns, Turn{Role: role, Content: content})
	if len(w.turns) > w.capacity {
		d := w.turns[0]
		dropped = &d
		w.turns = append(w.turns[:0], w.turns[1:]...)
	}
	fn := w.overflow
	w.mu.Unlock()

	if dropped != nil && fn != nil {
		fn(*dropped)
	}
}

// Turns returns a copy of the window contents, oldest first.
func (w *Window) Turns() []Turn {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Turn, len(w.turns))
	copy(out, w.turns)
	return out
}

// Len returns the number of turns currently held.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.turns)
}
