package ui

// EventKind identifies a viewport-wide event
type EventKind int

const (
	EventScroll EventKind = iota + 1
	EventResize
	EventPointerDown
)

// String returns the string representation of EventKind
func (k EventKind) String() string {
	switch k {
	case EventScroll:
		return "scroll"
	case EventResize:
		return "resize"
	case EventPointerDown:
		return "pointerdown"
	default:
		return "unknown"
	}
}

// ViewportEvent is delivered to listeners. Point is set for pointer events only.
type ViewportEvent struct {
	Kind  EventKind
	Point Point
}

// Listener receives viewport events
type Listener func(ViewportEvent)

type listenerEntry struct {
	id   int
	kind EventKind
	fn   Listener
}

// Viewport is the host surface: it tracks scroll offset and size and fans events out to listeners.
// It is owned by the widget loop and is not safe for concurrent use.
type Viewport struct {
	listeners []listenerEntry
	nextID    int

	scrollY float64
	width   float64
	height  float64
}

// NewViewport creates a viewport of the given size
func NewViewport(width, height float64) *Viewport {
	return &Viewport{width: width, height: height}
}

// On registers fn for kind and returns a function that removes it. Calling remove twice is a no-op.
func (v *Viewport) On(kind EventKind, fn Listener) (remove func()) {
	v.nextID++
	id := v.nextID
	v.listeners = append(v.listeners, listenerEntry{id: id, kind: kind, fn: fn})

	return func() {
		for i, l := range v.listeners {
			if l.id == id {
				v.listeners = append(v.listeners[:i:i], v.listeners[i+1:]...)
				return
			}
		}
	}
}

// Dispatch delivers ev to every listener registered for its kind at the time of the call.
// Listeners may remove themselves (or others) while being dispatched.
func (v *Viewport) Dispatch(ev ViewportEvent) {
	snapshot := make([]listenerEntry, 0, len(v.listeners))
	for _, l := range v.listeners {
		if l.kind == ev.Kind {
			snapshot = append(snapshot, l)
		}
	}
	for _, l := range snapshot {
		if v.registered(l.id) {
			l.fn(ev)
		}
	}
}

func (v *Viewport) registered(id int) bool {
	for _, l := range v.listeners {
		if l.id == id {
			return true
		}
	}
	return false
}

// Scroll moves the page by dy and notifies scroll listeners
func (v *Viewport) Scroll(dy float64) {
	v.scrollY += dy
	if v.scrollY < 0 {
		v.scrollY = 0
	}
	v.Dispatch(ViewportEvent{Kind: EventScroll})
}

// Resize changes the viewport size and notifies resize listeners
func (v *Viewport) Resize(width, height float64) {
	v.width, v.height = width, height
	v.Dispatch(ViewportEvent{Kind: EventResize})
}

// PointerDown notifies pointer listeners of a press at p
func (v *Viewport) PointerDown(p Point) {
	v.Dispatch(ViewportEvent{Kind: EventPointerDown, Point: p})
}

// ScrollY returns the current vertical scroll offset
func (v *Viewport) ScrollY() float64 { return v.scrollY }

// Size returns the current width and height
func (v *Viewport) Size() (float64, float64) { return v.width, v.height }

// ListenerCount returns the number of registered listeners
func (v *Viewport) ListenerCount() int { return len(v.listeners) }
