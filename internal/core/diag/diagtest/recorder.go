// Package diagtest provides an in-memory diagnostic sink for tests.
package diagtest

import (
	"context"
	"sync"

	"github.com/mohammed-shakir/simple-wcs/internal/core/diag"
)

// Recorder keeps every emitted event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []diag.Event
}

func (r *Recorder) Emit(_ context.Context, ev diag.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events in emit order.
func (r *Recorder) Events() []diag.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]diag.Event(nil), r.events...)
}

func (r *Recorder) Has(k diag.Kind) bool {
	for _, ev := range r.Events() {
		if ev.Kind == k {
			return true
		}
	}
	return false
}
