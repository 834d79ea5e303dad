// Package bridge extends capture into an embedded preview frame. Same-origin
// frames get the interceptor attached directly, with bounded retry while the
// frame loads. Cross-origin frames fall back to script injection plus a
// message channel carrying already-captured events.
package bridge

import (
	"log"
	"sync"
	"time"

	"github.com/probelight/qa-recorder/internal/dom"
	"github.com/probelight/qa-recorder/internal/recorder"
)

// attachSchedule is the backoff for reaching a frame document that is still
// loading. After the last attempt the bridge stops until the next load or
// src change.
var attachSchedule = []time.Duration{
	0,
	100 * time.Millisecond,
	300 * time.Millisecond,
	500 * time.Millisecond,
	1000 * time.Millisecond,
}

// Bridge wires one frame into a recorder engine.
type Bridge struct {
	engine    *recorder.Engine
	frame     *dom.Frame
	scriptSrc string

	mu          sync.Mutex
	gen         int // bumped on every restart/stop; stale retries check it
	attempts    int
	retryTimers []*time.Timer
	detachDoc   func()
	removeLoad  func()
	disconnect  func()
	stopped     bool
}

// New creates a bridge for frame. scriptSrc is the recorder asset injected
// into reachable frame documents.
func New(engine *recorder.Engine, frame *dom.Frame, scriptSrc string) *Bridge {
	return &Bridge{engine: engine, frame: frame, scriptSrc: scriptSrc}
}

// Start begins the attach sequence and re-runs it on every frame load or src
// attribute change.
func (b *Bridge) Start() {
	b.mu.Lock()
	b.stopped = false
	b.removeLoad = b.frame.OnLoad(func() { b.restart() })
	b.disconnect = b.frame.ObserveSrc(func(string) { b.restart() })
	b.mu.Unlock()

	b.restart()
}

// Stop tears the bridge down: cancels pending retries, detaches frame
// listeners, and disconnects the attribute observer. No retry fires after
// Stop returns.
func (b *Bridge) Stop() {
	b.mu.Lock()
	b.stopped = true
	b.gen++
	b.cancelRetriesLocked()
	detach := b.detachDoc
	b.detachDoc = nil
	removeLoad := b.removeLoad
	b.removeLoad = nil
	disconnect := b.disconnect
	b.disconnect = nil
	b.mu.Unlock()

	if detach != nil {
		detach()
	}
	if removeLoad != nil {
		removeLoad()
	}
	if disconnect != nil {
		disconnect()
	}
}

// restart abandons any in-flight attach sequence and begins a fresh one.
func (b *Bridge) restart() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.gen++
	gen := b.gen
	b.cancelRetriesLocked()
	detach := b.detachDoc
	b.detachDoc = nil
	b.mu.Unlock()

	if detach != nil {
		detach()
	}
	b.scheduleAttempt(gen, 0)
}

func (b *Bridge) cancelRetriesLocked() {
	for _, t := range b.retryTimers {
		t.Stop()
	}
	b.retryTimers = nil
}

// scheduleAttempt queues attach attempt n per the backoff schedule.
func (b *Bridge) scheduleAttempt(gen, attempt int) {
	if attempt >= len(attachSchedule) {
		// Terminal: rely on the message channel until the next load/src
		// change restarts the sequence.
		log.Printf("bridge: frame document unreachable after %d attempts, script injection skipped", len(attachSchedule))
		return
	}

	run := func() { b.attempt(gen, attempt) }
	if attachSchedule[attempt] == 0 {
		run()
		return
	}

	b.mu.Lock()
	if b.gen != gen {
		b.mu.Unlock()
		return
	}
	t := time.AfterFunc(attachSchedule[attempt], run)
	b.retryTimers = append(b.retryTimers, t)
	b.mu.Unlock()
}

// attempt tries to reach the frame document once. Failure is non-fatal and
// never propagates; it either schedules the next attempt or gives up.
func (b *Bridge) attempt(gen, attempt int) {
	b.mu.Lock()
	if b.gen != gen || b.stopped {
		b.mu.Unlock()
		return
	}
	b.attempts++
	b.mu.Unlock()

	doc, err := b.frame.ContentDocument()
	if err != nil {
		log.Printf("bridge: attach attempt %d/%d: %v", attempt+1, len(attachSchedule), err)
		b.scheduleAttempt(gen, attempt+1)
		return
	}

	// Reachable: attach the interceptor to the whole frame document and
	// inject the recorder script.
	detach := b.engine.AttachDocument(doc, nil)
	doc.InjectScript(b.scriptSrc)

	b.mu.Lock()
	if b.gen != gen || b.stopped {
		b.mu.Unlock()
		detach()
		return
	}
	b.detachDoc = detach
	b.mu.Unlock()
	log.Printf("bridge: attached to frame document %s", doc.URL())
}

// HandleMessage is the host-side message listener for the injected script's
// channel. Handshakes are logged; event payloads are validated and forwarded
// into the recording gate. Malformed payloads are dropped.
func (b *Bridge) HandleMessage(raw []byte) {
	msg, err := ParseMessage(raw)
	if err != nil {
		log.Printf("bridge: ignoring frame message: %v", err)
		return
	}
	switch msg.Type {
	case MsgReady:
		log.Printf("bridge: frame recorder ready")
	case MsgEvent:
		b.engine.SubmitRemote(*msg.Payload)
	}
}

// Attempts reports the cumulative number of attach attempts made.
func (b *Bridge) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}
