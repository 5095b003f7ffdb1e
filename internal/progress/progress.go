// Package progress defines the sync engine's progress event stream.
//
// The engine reports through the Reporter interface rather than a UI
// callback, so any number of subscribers can observe a run without coupling
// the engine to a presentation framework.
package progress

// Phase identifies what part of a sync run an event belongs to.
type Phase string

const (
	PhaseListing     Phase = "listing"
	PhaseDownloading Phase = "downloading"
	PhaseSyncing     Phase = "syncing"
	PhaseDone        Phase = "done"
	PhaseInfo        Phase = "info"
)

// Event is a single progress update.
type Event struct {
	Phase   Phase
	Current int64
	Total   int64
	Message string
}

// Reporter receives progress events from a sync run.
type Reporter interface {
	Report(Event)
}

// Null is a no-op reporter.
type Null struct{}

func (Null) Report(Event) {}

// Func adapts a plain function to a Reporter.
type Func func(Event)

func (f Func) Report(e Event) { f(e) }

// Multi fans events out to several reporters.
type Multi []Reporter

func (m Multi) Report(e Event) {
	for _, r := range m {
		r.Report(e)
	}
}

// Channel is a bounded-channel reporter for consumers that want to range over
// events instead of being called back. When the buffer is full the oldest
// pending event is dropped in favor of the new one: progress is advisory and
// a slow consumer should see the freshest state, not stall the sync.
type Channel struct {
	ch chan Event
}

// NewChannel creates a channel reporter with the given buffer size.
func NewChannel(buffer int) *Channel {
	if buffer < 1 {
		buffer = 1
	}
	return &Channel{ch: make(chan Event, buffer)}
}

// Report delivers the event without ever blocking the sync run.
func (c *Channel) Report(e Event) {
	for {
		select {
		case c.ch <- e:
			return
		default:
		}
		// Buffer full: evict the oldest pending event and retry.
		select {
		case <-c.ch:
		default:
		}
	}
}

// Events returns the receive side of the stream.
func (c *Channel) Events() <-chan Event {
	return c.ch
}

// Close closes the stream. Call only after the run using this reporter has
// returned.
func (c *Channel) Close() {
	close(c.ch)
}
