// Package navigation turns host route-change notifications into deduplicated
// navigation events.
package navigation

import (
	"sync"

	"github.com/probelight/qa-recorder/internal/recorder"
)

// Tracker remembers the last recorded route key and drops redundant
// notifications. The host application owns routing; this only listens.
type Tracker struct {
	engine *recorder.Engine

	mu   sync.Mutex
	last string
}

// NewTracker creates a tracker bound to engine.
func NewTracker(engine *recorder.Engine) *Tracker {
	return &Tracker{engine: engine}
}

// RouteKey joins path, query, and fragment into one comparable key.
func RouteKey(path, query, fragment string) string {
	key := path
	if query != "" {
		key += "?" + query
	}
	if fragment != "" {
		key += "#" + fragment
	}
	return key
}

// RouteChanged handles one route-change notification. While the session is
// inactive or not yet armed the stored key resets, so the first navigation
// after arming always records. Identical consecutive keys are skipped.
func (t *Tracker) RouteChanged(path, query, fragment string) {
	key := RouteKey(path, query, fragment)

	if !t.engine.Armed() {
		t.mu.Lock()
		t.last = ""
		t.mu.Unlock()
		return
	}

	t.mu.Lock()
	if key == t.last {
		t.mu.Unlock()
		return
	}
	t.last = key
	t.mu.Unlock()

	t.engine.EmitNavigation(key, key)
}

// Reset clears the stored route key.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.last = ""
	t.mu.Unlock()
}
