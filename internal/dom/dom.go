// Package dom models the slice of a browser document this recorder touches:
// an element tree, capture-phase event dispatch, and embedded frames. Elements
// are plain structs so selector/label/mask helpers stay unit-testable without
// a mock framework.
package dom

import (
	"strings"
	"sync"
)

// EventType names the DOM occurrences the interceptor listens for.
type EventType string

const (
	EventPointerDown EventType = "pointerdown"
	EventClick       EventType = "click"
	EventInput       EventType = "input"
	EventSubmit      EventType = "submit"
)

// Point is a pointer coordinate pair in page space.
type Point struct {
	X int
	Y int
}

// Element is one node of a document tree. Attrs holds HTML attributes;
// form-control state lives in dedicated fields.
type Element struct {
	TagName         string
	Attrs           map[string]string
	Value           string // current value for inputs/textareas
	Text            string // text content for non-form elements
	ContentEditable bool
	Options         []string // option labels, selects only
	SelectedIndex   int

	parent   *Element
	children []*Element
}

// NewElement creates a detached element with the given tag.
func NewElement(tag string) *Element {
	return &Element{TagName: strings.ToLower(tag), Attrs: map[string]string{}, SelectedIndex: -1}
}

// SetAttr sets an attribute and returns the element for chaining during
// tree construction.
func (e *Element) SetAttr(name, value string) *Element {
	e.Attrs[name] = value
	return e
}

// Attr returns the named attribute or "" when absent.
func (e *Element) Attr(name string) string {
	return e.Attrs[name]
}

// Parent returns the parent element, nil at the tree root.
func (e *Element) Parent() *Element {
	return e.parent
}

// AppendChild attaches child to e and returns the child.
func (e *Element) AppendChild(child *Element) *Element {
	child.parent = e
	e.children = append(e.children, child)
	return child
}

// Children returns the direct children in document order.
func (e *Element) Children() []*Element {
	return e.children
}

// NthOfType returns the 1-based position of e among same-tag siblings,
// counting preceding siblings only. Detached elements count as first.
func (e *Element) NthOfType() int {
	if e.parent == nil {
		return 1
	}
	n := 1
	for _, sib := range e.parent.children {
		if sib == e {
			break
		}
		if sib.TagName == e.TagName {
			n++
		}
	}
	return n
}

// SelectedOptionText returns the label of the selected option, "" when the
// element is not a select or nothing is selected.
func (e *Element) SelectedOptionText() string {
	if e.TagName != "select" || e.SelectedIndex < 0 || e.SelectedIndex >= len(e.Options) {
		return ""
	}
	return e.Options[e.SelectedIndex]
}

// InputType returns the lowercase type attribute of an input, defaulting to
// "text" the way browsers do.
func (e *Element) InputType() string {
	if e.TagName != "input" {
		return ""
	}
	t := strings.ToLower(e.Attr("type"))
	if t == "" {
		return "text"
	}
	return t
}

// nonTextInputTypes are input types whose value is not free text; clicking
// them is the interaction, not editing.
var nonTextInputTypes = map[string]bool{
	"button": true, "checkbox": true, "radio": true, "submit": true,
	"reset": true, "range": true, "color": true, "file": true, "image": true,
}

// IsEditable reports whether the element is a text-editing control: a
// text-like input, a textarea, a select, or a content-editable region. This
// is the single predicate used for manual-mode click suppression; its result
// is carried in event metadata so cross-frame payloads re-check the same
// value instead of re-deriving it.
func IsEditable(e *Element) bool {
	if e == nil {
		return false
	}
	switch e.TagName {
	case "textarea", "select":
		return true
	case "input":
		return !nonTextInputTypes[e.InputType()]
	}
	return e.ContentEditable
}

// IgnoreAttr marks a subtree as opted out of recording.
const IgnoreAttr = "data-qa-recorder-ignore"

// InIgnoredSubtree reports whether e or any ancestor carries the opt-out
// marker.
func InIgnoredSubtree(e *Element) bool {
	for cur := e; cur != nil; cur = cur.parent {
		if _, ok := cur.Attrs[IgnoreAttr]; ok {
			return true
		}
	}
	return false
}

// Contains reports whether e is root or a descendant of root.
func Contains(root, e *Element) bool {
	if root == nil {
		return true
	}
	for cur := e; cur != nil; cur = cur.parent {
		if cur == root {
			return true
		}
	}
	return false
}

// OwningForm walks up from e to the nearest <form>, returning nil when there
// is none.
func OwningForm(e *Element) *Element {
	for cur := e; cur != nil; cur = cur.parent {
		if cur.TagName == "form" {
			return cur
		}
	}
	return nil
}

// Event is a dispatched DOM occurrence. Trusted mirrors the browser's
// isTrusted flag: false for script-synthesized events.
type Event struct {
	Type    EventType
	Target  *Element
	Trusted bool
	Coords  *Point // pointer events only
}

// Listener receives dispatched events during the capture phase.
type Listener func(Event)

type listenerEntry struct {
	id int
	fn Listener
}

// Document is a minimal document: a body tree, a location, registered
// capture-phase listeners, and injected script srcs.
type Document struct {
	mu        sync.Mutex
	url       string
	body      *Element
	nextID    int
	listeners map[EventType][]listenerEntry
	scripts   []string
}

// NewDocument creates a document at url with an empty <body>.
func NewDocument(url string) *Document {
	return &Document{
		url:       url,
		body:      NewElement("body"),
		listeners: map[EventType][]listenerEntry{},
	}
}

// URL returns the document location.
func (d *Document) URL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url
}

// SetURL updates the document location.
func (d *Document) SetURL(url string) {
	d.mu.Lock()
	d.url = url
	d.mu.Unlock()
}

// Body returns the document body element.
func (d *Document) Body() *Element {
	return d.body
}

// AddListener registers a capture-phase listener and returns a handle that
// removes exactly that registration.
func (d *Document) AddListener(t EventType, fn Listener) (remove func()) {
	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.listeners[t] = append(d.listeners[t], listenerEntry{id: id, fn: fn})
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		entries := d.listeners[t]
		for i, entry := range entries {
			if entry.id == id {
				d.listeners[t] = append(entries[:i], entries[i+1:]...)
				return
			}
		}
	}
}

// ListenerCount returns the number of registered listeners for a type.
func (d *Document) ListenerCount(t EventType) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.listeners[t])
}

// Dispatch delivers an event synchronously to every listener registered for
// its type, in registration order, matching capture-phase dispatch on the
// browser's single thread.
func (d *Document) Dispatch(ev Event) {
	d.mu.Lock()
	entries := make([]listenerEntry, len(d.listeners[ev.Type]))
	copy(entries, d.listeners[ev.Type])
	d.mu.Unlock()

	for _, entry := range entries {
		entry.fn(ev)
	}
}

// InjectScript appends a <script src> to the document.
func (d *Document) InjectScript(src string) {
	d.mu.Lock()
	d.scripts = append(d.scripts, src)
	d.mu.Unlock()
}

// InjectedScripts returns the srcs injected so far.
func (d *Document) InjectedScripts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.scripts))
	copy(out, d.scripts)
	return out
}
