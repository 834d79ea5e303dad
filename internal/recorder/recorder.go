// Package recorder owns the capture state machine: session lifecycle, the
// auto/manual policy gate, per-element input debouncing, and the emission
// delay window. Listener callbacks run on whatever goroutine dispatches the
// DOM event; all mutable state lives behind one mutex.
package recorder

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/probelight/qa-recorder/internal/dom"
	"github.com/probelight/qa-recorder/internal/mask"
	"github.com/probelight/qa-recorder/internal/models"
	"github.com/probelight/qa-recorder/internal/selector"
)

// State is the recording state machine position.
type State int

const (
	// StateIdle means no active session.
	StateIdle State = iota
	// StateDisarmed means a session is active and no qualifying interaction
	// has been seen yet.
	StateDisarmed
	// StateArmed means the next qualifying event records. Permanent in auto
	// mode once entered.
	StateArmed
	// StateSpent is manual mode after its single shot: waiting for an
	// explicit re-arm.
	StateSpent
)

// DefaultDebounce collapses input bursts on one element into one emission.
const DefaultDebounce = 350 * time.Millisecond

// Sink receives finished events. Failures are logged and the event dropped;
// the recorder is best-effort, not guaranteed-delivery.
type Sink interface {
	Record(ctx context.Context, ev models.RecordedEvent, sessionID string) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, ev models.RecordedEvent, sessionID string) error

// Record calls the underlying function.
func (f SinkFunc) Record(ctx context.Context, ev models.RecordedEvent, sessionID string) error {
	return f(ctx, ev, sessionID)
}

// Notifier surfaces user-facing recording notices (armed, recorded).
type Notifier func(msg string)

// Options configures an Engine.
type Options struct {
	Sink     Sink
	Notifier Notifier
	Debounce time.Duration    // defaults to DefaultDebounce
	Clock    func() time.Time // defaults to time.Now
}

// Session describes one recording session.
type Session struct {
	SessionID string
	RunID     string // optional; NewRun can mint one later
	Mode      string // models.ModeAuto or models.ModeManual
	Delay     time.Duration
}

// Engine is the owned recorder instance: state machine, timer registries,
// and listener handles. No ambient mutable state.
type Engine struct {
	sink     Sink
	notify   Notifier
	clock    func() time.Time
	debounce time.Duration

	mu          sync.Mutex
	epoch       int // bumped on Stop; stale timer closures check it and bail
	state       State
	sessionID   string
	runID       string
	mode        string
	delay       time.Duration
	lastPointer *dom.Point

	pending    map[*dom.Element]*time.Timer // input debounce, one per element
	delayTimer *time.Timer                  // single emission delay window
	detachFns  []func()
}

// New creates an engine. A nil sink drops events after logging, keeping the
// engine usable in dry-run setups.
func New(opts Options) *Engine {
	notify := opts.Notifier
	if notify == nil {
		notify = func(msg string) { log.Printf("recorder: %s", msg) }
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Engine{
		sink:     opts.Sink,
		notify:   notify,
		clock:    clock,
		debounce: debounce,
		state:    StateIdle,
		pending:  map[*dom.Element]*time.Timer{},
	}
}

// Start begins a recording session. Fails when one is already active.
func (e *Engine) Start(s Session) error {
	if s.SessionID == "" {
		return fmt.Errorf("session id must not be empty")
	}
	mode := s.Mode
	if mode == "" {
		mode = models.ModeAuto
	}
	if mode != models.ModeAuto && mode != models.ModeManual {
		return fmt.Errorf("unknown recording mode %q", mode)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateIdle {
		return fmt.Errorf("recording session %s already active", e.sessionID)
	}
	e.state = StateDisarmed
	e.sessionID = s.SessionID
	e.runID = s.RunID
	e.mode = mode
	e.delay = s.Delay
	e.lastPointer = nil
	return nil
}

// Stop ends the session: detaches every listener, cancels all timers, and
// resets the state machine. Safe to call when idle. No timer scheduled
// during the session fires after Stop returns.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.epoch++
	for el, t := range e.pending {
		t.Stop()
		delete(e.pending, el)
	}
	if e.delayTimer != nil {
		e.delayTimer.Stop()
		e.delayTimer = nil
	}
	detach := e.detachFns
	e.detachFns = nil
	e.state = StateIdle
	e.sessionID = ""
	e.runID = ""
	e.lastPointer = nil
	e.mu.Unlock()

	for _, fn := range detach {
		fn()
	}
}

// Active reports whether a session is running.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state != StateIdle
}

// Armed reports whether the next qualifying event would record.
func (e *Engine) Armed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == StateArmed
}

// Mode returns the active recording mode, "" when idle.
func (e *Engine) Mode() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// SetMode switches between auto and manual mid-session. Unknown modes are
// ignored with a log line; settings files are not trusted input.
func (e *Engine) SetMode(mode string) {
	if mode != models.ModeAuto && mode != models.ModeManual {
		log.Printf("recorder: ignoring unknown mode %q", mode)
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateIdle {
		return
	}
	e.mode = mode
}

// SetDelay updates the emission delay for subsequent events.
func (e *Engine) SetDelay(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d < 0 {
		d = 0
	}
	e.delay = d
}

// Arm latches the manual-mode single shot: the next qualifying event
// records. No-op when idle; in auto mode it only replays the arm notice.
func (e *Engine) Arm() {
	e.mu.Lock()
	if e.state == StateIdle {
		e.mu.Unlock()
		return
	}
	e.state = StateArmed
	notice := e.armNoticeLocked()
	e.mu.Unlock()
	e.notify(notice)
}

// NewRun mints a run id and makes it current. Events recorded from here on
// correlate to the new run.
func (e *Engine) NewRun() string {
	id := uuid.NewString()
	e.mu.Lock()
	e.runID = id
	e.mu.Unlock()
	return id
}

// RunID returns the current run id, "" when none is set.
func (e *Engine) RunID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runID
}

func (e *Engine) armNoticeLocked() string {
	return fmt.Sprintf("recording armed (%s mode, %dms delay)", e.mode, e.delay.Milliseconds())
}

// AttachDocument installs capture-phase listeners on doc, scoped to root
// when non-nil. The returned detach func removes exactly these listeners;
// Stop also removes them.
func (e *Engine) AttachDocument(doc *dom.Document, root *dom.Element) (detach func()) {
	removes := []func(){
		doc.AddListener(dom.EventPointerDown, func(ev dom.Event) { e.handlePointer(ev) }),
		doc.AddListener(dom.EventClick, func(ev dom.Event) { e.handleClick(doc, root, ev) }),
		doc.AddListener(dom.EventInput, func(ev dom.Event) { e.handleInput(doc, root, ev) }),
		doc.AddListener(dom.EventSubmit, func(ev dom.Event) { e.handleSubmit(doc, root, ev) }),
	}

	var once sync.Once
	detach = func() {
		once.Do(func() {
			for _, rm := range removes {
				rm()
			}
		})
	}

	e.mu.Lock()
	e.detachFns = append(e.detachFns, detach)
	e.mu.Unlock()
	return detach
}

// ignore applies the shared target filters: synthetic events, opted-out
// subtrees, and targets outside the configured root.
func ignore(root *dom.Element, ev dom.Event) bool {
	if !ev.Trusted {
		return true
	}
	if ev.Target == nil || dom.InIgnoredSubtree(ev.Target) {
		return true
	}
	return !dom.Contains(root, ev.Target)
}

func (e *Engine) handlePointer(ev dom.Event) {
	if !ev.Trusted || ev.Coords == nil {
		return
	}
	e.mu.Lock()
	p := *ev.Coords
	e.lastPointer = &p
	e.mu.Unlock()
}

func (e *Engine) handleClick(doc *dom.Document, root *dom.Element, ev dom.Event) {
	if ignore(root, ev) {
		return
	}

	e.mu.Lock()
	if e.state == StateIdle {
		e.mu.Unlock()
		return
	}
	armNotice := e.armIfFreshLocked()
	// In manual mode an armed click on an editable control is suppressed:
	// the input event that follows carries the meaningful value.
	suppressed := e.mode == models.ModeManual && e.state == StateArmed && dom.IsEditable(ev.Target)
	coords := ev.Coords
	if coords == nil {
		coords = e.lastPointer
	} else {
		p := *coords
		e.lastPointer = &p
	}
	e.mu.Unlock()

	if armNotice != "" {
		e.notify(armNotice)
	}
	if suppressed {
		return
	}

	meta := map[string]string{
		"tag":      ev.Target.TagName,
		"editable": strconv.FormatBool(dom.IsEditable(ev.Target)),
	}
	if t := ev.Target.InputType(); t != "" {
		meta["inputType"] = t
	}
	if coords != nil {
		meta["x"] = strconv.Itoa(coords.X)
		meta["y"] = strconv.Itoa(coords.Y)
	}

	e.gate(models.RecordedEvent{
		EventType:   models.TypeClick,
		Selector:    selector.Build(ev.Target),
		ElementText: selector.Label(ev.Target),
		URL:         doc.URL(),
		MetaJSON:    models.EncodeMeta(meta),
	})
}

func (e *Engine) handleInput(doc *dom.Document, root *dom.Element, ev dom.Event) {
	if ignore(root, ev) {
		return
	}
	target := ev.Target

	e.mu.Lock()
	if e.state == StateIdle {
		e.mu.Unlock()
		return
	}
	armNotice := e.armIfFreshLocked()
	epoch := e.epoch
	if prev, ok := e.pending[target]; ok {
		prev.Stop()
	}
	// Extraction runs at fire time so the settled value is recorded, not
	// the keystroke that started the burst.
	e.pending[target] = time.AfterFunc(e.debounce, func() {
		e.flushInput(doc, target, epoch)
	})
	e.mu.Unlock()

	if armNotice != "" {
		e.notify(armNotice)
	}
}

func (e *Engine) flushInput(doc *dom.Document, target *dom.Element, epoch int) {
	e.mu.Lock()
	if e.epoch != epoch || e.state == StateIdle {
		e.mu.Unlock()
		return
	}
	delete(e.pending, target)
	e.mu.Unlock()

	meta := map[string]string{
		"tag":      target.TagName,
		"editable": strconv.FormatBool(dom.IsEditable(target)),
	}
	if t := target.InputType(); t != "" {
		meta["inputType"] = t
	}

	value := target.Value
	if target.TagName == "select" {
		value = target.SelectedOptionText()
	}

	e.gate(models.RecordedEvent{
		EventType:   models.TypeInput,
		Selector:    selector.Build(target),
		ElementText: selector.Label(target),
		Value:       mask.Value(target, value),
		URL:         doc.URL(),
		MetaJSON:    models.EncodeMeta(meta),
	})
}

func (e *Engine) handleSubmit(doc *dom.Document, root *dom.Element, ev dom.Event) {
	if ignore(root, ev) {
		return
	}

	e.mu.Lock()
	if e.state == StateIdle {
		e.mu.Unlock()
		return
	}
	armNotice := e.armIfFreshLocked()
	e.mu.Unlock()
	if armNotice != "" {
		e.notify(armNotice)
	}

	target := dom.OwningForm(ev.Target)
	if target == nil {
		target = ev.Target
	}
	meta := map[string]string{
		"tag":      target.TagName,
		"editable": "false",
		"action":   target.Attr("action"),
		"method":   target.Attr("method"),
	}

	e.gate(models.RecordedEvent{
		EventType:   models.TypeSubmit,
		Selector:    selector.Build(target),
		ElementText: selector.Label(target),
		URL:         doc.URL(),
		MetaJSON:    models.EncodeMeta(meta),
	})
}

// armIfFreshLocked performs the Disarmed -> Armed transition on the first
// qualifying interaction of the session. Returns the arm notice to surface,
// "" when no transition happened. Manual mode's Spent state does not
// auto-re-arm; that takes an explicit Arm call.
func (e *Engine) armIfFreshLocked() string {
	if e.state != StateDisarmed {
		return ""
	}
	e.state = StateArmed
	return e.armNoticeLocked()
}

// SubmitRemote feeds a cross-frame payload into the policy gate. The DOM
// element is unreachable, so the manual-mode click suppression re-checks the
// editable flag the injected script carried in metadata.
func (e *Engine) SubmitRemote(ev models.RecordedEvent) {
	if !models.ValidTypes[ev.EventType] || ev.EventType == models.TypeNavigation {
		return
	}

	e.mu.Lock()
	if e.state == StateIdle {
		e.mu.Unlock()
		return
	}
	armNotice := e.armIfFreshLocked()
	meta := models.DecodeMeta(ev.MetaJSON)
	suppressed := e.mode == models.ModeManual && e.state == StateArmed &&
		ev.EventType == models.TypeClick && meta["editable"] == "true"
	e.mu.Unlock()

	if armNotice != "" {
		e.notify(armNotice)
	}
	if suppressed {
		return
	}
	e.gate(ev)
}

// EmitNavigation records a deduplicated route change. The navigation tracker
// has already checked active/armed state and dedup; this just stamps and
// emits, bypassing the delay window since route keys have no settle period.
func (e *Engine) EmitNavigation(routeKey, url string) {
	e.mu.Lock()
	if e.state != StateArmed {
		e.mu.Unlock()
		return
	}
	ev := e.stampLocked(models.RecordedEvent{
		EventType: models.TypeNavigation,
		URL:       url,
		MetaJSON:  models.EncodeMeta(map[string]string{"route": routeKey}),
	})
	sessionID := e.sessionID
	e.mu.Unlock()

	e.deliver(ev, sessionID)
}

// gate applies the recording policy to a candidate event, then schedules
// emission through the delay window. Only click/input/submit reach here.
func (e *Engine) gate(ev models.RecordedEvent) {
	e.mu.Lock()
	if e.state == StateIdle {
		e.mu.Unlock()
		return
	}

	var recordedNotice string
	switch e.mode {
	case models.ModeManual:
		if e.state != StateArmed {
			e.mu.Unlock()
			return
		}
		// Single shot: disarm before the delay timer fires so nothing else
		// slips into this arm cycle.
		e.state = StateSpent
		recordedNotice = "recorded — arm again for the next event"
	default: // auto records everything once the session is armed
	}

	ev = e.stampLocked(ev)
	sessionID := e.sessionID
	delay := e.delay
	epoch := e.epoch

	if delay <= 0 {
		e.mu.Unlock()
		if recordedNotice != "" {
			e.notify(recordedNotice)
		}
		e.deliver(ev, sessionID)
		return
	}

	// One delay window at a time: a newer qualifying event replaces a
	// pending one, so the most recent event wins.
	if e.delayTimer != nil {
		e.delayTimer.Stop()
	}
	e.delayTimer = time.AfterFunc(delay, func() {
		e.mu.Lock()
		if e.epoch != epoch {
			e.mu.Unlock()
			return
		}
		e.delayTimer = nil
		e.mu.Unlock()
		e.deliver(ev, sessionID)
	})
	e.mu.Unlock()

	if recordedNotice != "" {
		e.notify(recordedNotice)
	}
}

// stampLocked fills the context fields the sink expects on every event.
func (e *Engine) stampLocked(ev models.RecordedEvent) models.RecordedEvent {
	now := e.clock().UTC()
	ev.TSUTC = now.UnixMilli()
	ev.TSISO = now.Format(time.RFC3339)
	ev.Origin = models.OriginUser
	ev.RecordingMode = e.mode
	if e.runID != "" {
		id := e.runID
		ev.RunID = &id
	}
	return ev
}

// deliver hands the event to the sink. Sink failures are logged and the
// event dropped; recording never breaks the host application.
func (e *Engine) deliver(ev models.RecordedEvent, sessionID string) {
	if e.sink == nil {
		log.Printf("recorder: no sink configured, dropping %s event", ev.EventType)
		return
	}
	if err := e.sink.Record(context.Background(), ev, sessionID); err != nil {
		log.Printf("recorder: record event failed: %v", err)
	}
}

// PendingDebounces reports the number of in-flight input debounce timers.
func (e *Engine) PendingDebounces() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}
