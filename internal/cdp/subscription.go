package cdp

import "sync"

// Subscription delivers events of the selected methods in arrival order.
// The internal queue is unbounded so the receive loop never blocks on a slow
// consumer. The channel is closed on Unsubscribe, on session Close, or after
// the remaining events are drained when the socket drops.
type Subscription struct {
	methods map[string]bool

	mu     sync.Mutex
	queue  []Event
	ended  bool
	signal chan struct{}

	stop     chan struct{}
	stopOnce sync.Once
	events   chan Event
	finished chan struct{}

	detach func()
}

func newSubscription(methods []string) *Subscription {
	sub := &Subscription{
		signal:   make(chan struct{}, 1),
		stop:     make(chan struct{}),
		events:   make(chan Event),
		finished: make(chan struct{}),
	}
	if len(methods) > 0 {
		sub.methods = make(map[string]bool, len(methods))
		for _, m := range methods {
			sub.methods[m] = true
		}
	}
	go sub.pump()
	return sub
}

// Events returns the delivery channel.
func (sub *Subscription) Events() <-chan Event {
	return sub.events
}

// Unsubscribe stops delivery, drops undelivered events and closes the
// channel. Safe to call more than once.
func (sub *Subscription) Unsubscribe() {
	sub.stopOnce.Do(func() {
		if sub.detach != nil {
			sub.detach()
		}
		sub.mu.Lock()
		sub.ended = true
		sub.queue = nil
		sub.mu.Unlock()
		close(sub.stop)
	})
	<-sub.finished
}

// pending reports how many events wait for delivery.
func (sub *Subscription) pending() int {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return len(sub.queue)
}

func (sub *Subscription) matches(method string) bool {
	return sub.methods == nil || sub.methods[method]
}

func (sub *Subscription) push(ev Event) {
	sub.mu.Lock()
	if sub.ended {
		sub.mu.Unlock()
		return
	}
	sub.queue = append(sub.queue, ev)
	sub.mu.Unlock()
	sub.wake()
}

// end stops accepting events; already queued ones are still delivered.
func (sub *Subscription) end() {
	sub.mu.Lock()
	sub.ended = true
	sub.mu.Unlock()
	sub.wake()
}

func (sub *Subscription) wake() {
	select {
	case sub.signal <- struct{}{}:
	default:
	}
}

func (sub *Subscription) pump() {
	defer close(sub.finished)
	defer close(sub.events)

	for {
		sub.mu.Lock()
		for len(sub.queue) == 0 {
			if sub.ended {
				sub.mu.Unlock()
				return
			}
			sub.mu.Unlock()
			select {
			case <-sub.signal:
			case <-sub.stop:
				return
			}
			sub.mu.Lock()
		}
		ev := sub.queue[0]
		sub.queue[0] = nil
		sub.queue = sub.queue[1:]
		sub.mu.Unlock()

		select {
		case sub.events <- ev:
		case <-sub.stop:
			return
		}
	}
}
