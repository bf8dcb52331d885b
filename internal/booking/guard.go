package booking

import (
	"errors"
	"sort"
	"sync"
)

// ErrInFlight is returned when a command for the same control is already
// queued or running.
var ErrInFlight = errors.New("booking: action already in progress")

type guard struct {
	mu   sync.Mutex
	busy map[Control]struct{}
}

func newGuard() *guard {
	return &guard{busy: make(map[Control]struct{})}
}

func (g *guard) acquire(c Control) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.busy[c]; ok {
		return false
	}
	g.busy[c] = struct{}{}
	return true
}

func (g *guard) release(c Control) {
	g.mu.Lock()
	delete(g.busy, c)
	g.mu.Unlock()
}

func (g *guard) disabled() []Control {
	g.mu.Lock()
	out := make([]Control, 0, len(g.busy))
	for c := range g.busy {
		out = append(out, c)
	}
	g.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
