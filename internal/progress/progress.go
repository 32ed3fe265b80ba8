// Package progress carries per-transfer progress from concurrent tasks to a
// single display. Tasks own a Reporter each; reporters publish Events to a
// Hub, and the Hub hands them to one Renderer goroutine. Nothing here feeds
// back into the transfers.
package progress

import "sync"

type EventKind int

const (
	Started EventKind = iota
	Advanced
	Resized
	Finished
)

func (k EventKind) String() string {
	switch k {
	case Started:
		return "started"
	case Advanced:
		return "advanced"
	case Resized:
		return "resized"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

// Event is one progress observation for one task. Total <= 0 means unknown.
type Event struct {
	Kind      EventKind
	TaskID    int
	Name      string
	MessageID string
	Done      int64
	Total     int64
	Err       error
}

// Sink receives progress events. Implementations must be safe for
// concurrent use.
type Sink interface {
	Publish(Event)
}

// Discard drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Publish(Event) {}

// Renderer consumes events until the channel is closed.
type Renderer interface {
	Render(events <-chan Event)
}

// Hub multiplexes events from many reporters into one renderer.
type Hub struct {
	events chan Event
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewHub starts r on its own goroutine.
func NewHub(r Renderer, buffer int) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	h := &Hub{
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(h.done)
		r.Render(h.events)
	}()
	return h
}

// Publish forwards e to the renderer. Advanced events are dropped when the
// buffer is full so a slow display never stalls a transfer; lifecycle events
// always get through.
func (h *Hub) Publish(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	if e.Kind == Advanced {
		select {
		case h.events <- e:
		default:
		}
		return
	}
	h.events <- e
}

// Close stops accepting events and waits for the renderer to drain.
func (h *Hub) Close() {
	h.mu.Lock()
	if !h.closed {
		h.closed = true
		close(h.events)
	}
	h.mu.Unlock()
	<-h.done
}

// Reporter is the per-task progress handle. It is owned by a single task and
// is not safe for concurrent use.
type Reporter struct {
	sink      Sink
	id        int
	name      string
	messageID string
	done      int64
	total     int64
}

func NewReporter(sink Sink, id int, name, messageID string) *Reporter {
	if sink == nil {
		sink = Discard
	}
	return &Reporter{sink: sink, id: id, name: name, messageID: messageID}
}

// Start announces the transfer with the total known up front (<= 0 if none).
func (r *Reporter) Start(total int64) {
	r.total = total
	r.publish(Started, nil)
}

// Update records bytes received so far. A total that differs from the one
// already known is published as a Resized event first.
func (r *Reporter) Update(done, total int64) {
	if total > 0 && total != r.total {
		r.total = total
		r.publish(Resized, nil)
	}
	r.done = done
	r.publish(Advanced, nil)
}

// Finish publishes the terminal event.
func (r *Reporter) Finish(done int64, err error) {
	r.done = done
	if err == nil && r.total <= 0 {
		r.total = done
	}
	r.publish(Finished, err)
}

func (r *Reporter) publish(kind EventKind, err error) {
	r.sink.Publish(Event{
		Kind:      kind,
		TaskID:    r.id,
		Name:      r.name,
		MessageID: r.messageID,
		Done:      r.done,
		Total:     r.total,
		Err:       err,
	})
}
