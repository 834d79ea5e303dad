package dom

import (
	"errors"
	"sync"
)

// Frame access errors. Both are transient from the bridge's point of view:
// it retries on either and falls back to the message path.
var (
	ErrFrameNotLoaded = errors.New("frame document not loaded")
	ErrCrossOrigin    = errors.New("frame document is cross-origin")
)

// Frame models an embedded preview frame. Its content document is reachable
// only once loaded and only when same-origin, mirroring contentDocument
// semantics.
type Frame struct {
	mu          sync.Mutex
	src         string
	doc         *Document
	crossOrigin bool
	nextID      int
	loadFns     map[int]func()
	srcFns      map[int]func(string)
}

// NewFrame creates an unloaded frame pointing at src.
func NewFrame(src string) *Frame {
	return &Frame{
		src:     src,
		loadFns: map[int]func(){},
		srcFns:  map[int]func(string){},
	}
}

// Src returns the current src attribute.
func (f *Frame) Src() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.src
}

// SetSrc changes the src attribute, unloads the current document, and
// notifies attribute observers.
func (f *Frame) SetSrc(src string) {
	f.mu.Lock()
	f.src = src
	f.doc = nil
	f.crossOrigin = false
	fns := make([]func(string), 0, len(f.srcFns))
	for _, fn := range f.srcFns {
		fns = append(fns, fn)
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(src)
	}
}

// CompleteLoad installs the loaded document and fires load listeners.
// crossOrigin marks the document unreachable from the host.
func (f *Frame) CompleteLoad(doc *Document, crossOrigin bool) {
	f.mu.Lock()
	f.doc = doc
	f.crossOrigin = crossOrigin
	fns := make([]func(), 0, len(f.loadFns))
	for _, fn := range f.loadFns {
		fns = append(fns, fn)
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// ContentDocument returns the frame's document, or an error while the frame
// is loading or when the document is cross-origin.
func (f *Frame) ContentDocument() (*Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.crossOrigin {
		return nil, ErrCrossOrigin
	}
	if f.doc == nil {
		return nil, ErrFrameNotLoaded
	}
	return f.doc, nil
}

// OnLoad registers a load listener and returns its removal func.
func (f *Frame) OnLoad(fn func()) (remove func()) {
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.loadFns[id] = fn
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		delete(f.loadFns, id)
		f.mu.Unlock()
	}
}

// ObserveSrc registers an observer for src attribute changes, the moral
// equivalent of a MutationObserver filtered to one attribute. The returned
// func disconnects it.
func (f *Frame) ObserveSrc(fn func(string)) (disconnect func()) {
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.srcFns[id] = fn
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		delete(f.srcFns, id)
		f.mu.Unlock()
	}
}
