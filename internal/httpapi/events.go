package httpapi

import (
	"sync"

	"crosspub/internal/eventbus"
)

// eventLog keeps the most recent bus events in a fixed ring so clients can
// poll GET /api/events without holding a stream open.
type eventLog struct {
	mu    sync.Mutex
	ring  []eventbus.Event
	next  int
	full  bool
	unsub func()
	done  chan struct{}
}

func newEventLog(bus eventbus.Bus, size int) *eventLog {
	el := &eventLog{ring: make([]eventbus.Event, size), done: make(chan struct{})}
	if bus == nil {
		return el
	}
	ch, unsub := bus.Subscribe(size)
	el.unsub = unsub
	go func() {
		for {
			select {
			case ev, ok := <-ch:
				if !ok {
					return
				}
				el.append(ev)
			case <-el.done:
				return
			}
		}
	}()
	return el
}

func (el *eventLog) append(ev eventbus.Event) {
	el.mu.Lock()
	el.ring[el.next] = ev
	el.next = (el.next + 1) % len(el.ring)
	if el.next == 0 {
		el.full = true
	}
	el.mu.Unlock()
}

// snapshot returns events oldest-first.
func (el *eventLog) snapshot() []eventbus.Event {
	el.mu.Lock()
	defer el.mu.Unlock()
	if !el.full {
		return append([]eventbus.Event(nil), el.ring[:el.next]...)
	}
	out := make([]eventbus.Event, 0, len(el.ring))
	out = append(out, el.ring[el.next:]...)
	out = append(out, el.ring[:el.next]...)
	return out
}

func (el *eventLog) close() {
	select {
	case <-el.done:
	default:
		close(el.done)
	}
	if el.unsub != nil {
		el.unsub()
	}
}
