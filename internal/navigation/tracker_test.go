package navigation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/probelight/qa-recorder/internal/models"
	"github.com/probelight/qa-recorder/internal/recorder"
)

type captureSink struct {
	mu     sync.Mutex
	events []models.RecordedEvent
}

func (s *captureSink) Record(_ context.Context, ev models.RecordedEvent, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *captureSink) event(i int) models.RecordedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[i]
}

func newArmedEngine(t *testing.T) (*recorder.Engine, *captureSink) {
	t.Helper()
	sink := &captureSink{}
	engine := recorder.New(recorder.Options{Sink: sink, Notifier: func(string) {}})
	if err := engine.Start(recorder.Session{SessionID: "sess-nav", Mode: models.ModeAuto}); err != nil {
		t.Fatalf("Failed to start session: %v", err)
	}
	engine.Arm()
	t.Cleanup(engine.Stop)
	return engine, sink
}

func TestRouteKey(t *testing.T) {
	t.Parallel()
	tests := []struct {
		path, query, fragment, want string
	}{
		{"/home", "", "", "/home"},
		{"/search", "q=go", "", "/search?q=go"},
		{"/doc", "", "top", "/doc#top"},
		{"/doc", "v=2", "sec", "/doc?v=2#sec"},
	}
	for _, tt := range tests {
		if got := RouteKey(tt.path, tt.query, tt.fragment); got != tt.want {
			t.Errorf("RouteKey(%q,%q,%q) = %q, want %q", tt.path, tt.query, tt.fragment, got, tt.want)
		}
	}
}

func TestDuplicateNotificationsSkipped(t *testing.T) {
	engine, sink := newArmedEngine(t)
	tracker := NewTracker(engine)

	tracker.RouteChanged("/home", "tab=1", "")
	tracker.RouteChanged("/home", "tab=1", "")

	time.Sleep(30 * time.Millisecond)
	if sink.count() != 1 {
		t.Fatalf("expected 1 navigation event, got %d", sink.count())
	}
	ev := sink.event(0)
	if ev.EventType != models.TypeNavigation {
		t.Errorf("EventType = %s", ev.EventType)
	}
	if meta := models.DecodeMeta(ev.MetaJSON); meta["route"] != "/home?tab=1" {
		t.Errorf("route meta = %v", meta)
	}
}

func TestRouteChangeRecorded(t *testing.T) {
	engine, sink := newArmedEngine(t)
	tracker := NewTracker(engine)

	tracker.RouteChanged("/home", "", "")
	tracker.RouteChanged("/settings", "", "")
	time.Sleep(30 * time.Millisecond)
	if sink.count() != 2 {
		t.Fatalf("expected 2 navigation events, got %d", sink.count())
	}
}

func TestInactiveSessionResetsKey(t *testing.T) {
	sink := &captureSink{}
	engine := recorder.New(recorder.Options{Sink: sink, Notifier: func(string) {}})
	tracker := NewTracker(engine)

	// No session: nothing records, and the stored key resets.
	tracker.RouteChanged("/home", "", "")
	if sink.count() != 0 {
		t.Fatal("navigation recorded without a session")
	}

	if err := engine.Start(recorder.Session{SessionID: "sess-nav", Mode: models.ModeAuto}); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer engine.Stop()
	engine.Arm()

	// The same route now records: the reset forgot the pre-session key.
	tracker.RouteChanged("/home", "", "")
	time.Sleep(30 * time.Millisecond)
	if sink.count() != 1 {
		t.Fatalf("expected first armed navigation to record, got %d", sink.count())
	}
}

func TestDisarmedManualSessionResetsKey(t *testing.T) {
	sink := &captureSink{}
	engine := recorder.New(recorder.Options{Sink: sink, Notifier: func(string) {}})
	if err := engine.Start(recorder.Session{SessionID: "sess-nav", Mode: models.ModeManual}); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer engine.Stop()
	tracker := NewTracker(engine)

	tracker.RouteChanged("/a", "", "")
	if sink.count() != 0 {
		t.Fatal("navigation recorded while disarmed")
	}

	engine.Arm()
	tracker.RouteChanged("/a", "", "")
	time.Sleep(30 * time.Millisecond)
	if sink.count() != 1 {
		t.Fatalf("expected navigation after arming, got %d", sink.count())
	}
}
