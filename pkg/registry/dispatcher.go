package registry

import (
	"fmt"
	"sync"

	"github.com/bft-labs/repoboot/pkg/log"
)

// delivery is one event bound to the subscriptions that must see it. Targets
// are resolved when the change is applied so late subscribers get a replay
// instead of a duplicate.
type delivery struct {
	ev      Event
	targets []*Subscription

	// fn, when set, runs in place of an event.
	fn func()
}

// dispatcher delivers events on a single goroutine from an unbounded FIFO.
type dispatcher struct {
	mu     sync.Mutex
	queue  []delivery
	closed bool
	wake   chan struct{}
	logger log.Logger
}

func newDispatcher(logger log.Logger) *dispatcher {
	return &dispatcher{
		wake:   make(chan struct{}, 1),
		logger: logger,
	}
}

// enqueue appends d. It returns false once the dispatcher is closed.
func (d *dispatcher) enqueue(x delivery) bool {
	if len(x.targets) == 0 && x.fn == nil {
		return true
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	d.queue = append(d.queue, x)
	d.mu.Unlock()
	d.signal()
	return true
}

// close stops accepting events; run returns after draining the queue.
func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.signal()
}

func (d *dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			closed := d.closed
			d.mu.Unlock()
			if closed {
				return
			}
			<-d.wake
			continue
		}
		next := d.queue[0]
		d.queue[0] = delivery{}
		d.queue = d.queue[1:]
		d.mu.Unlock()

		d.deliver(next)
	}
}

func (d *dispatcher) deliver(x delivery) {
	if x.fn != nil {
		d.callFunc(x.fn)
		return
	}
	eventsTotal.WithLabelValues(x.ev.Kind.String()).Inc()
	for _, sub := range x.targets {
		if sub.closed.Load() {
			continue
		}
		d.call(sub, x.ev)
	}
}

// call shields the dispatcher from listener panics; one bad listener must
// not stall delivery to the others.
func (d *dispatcher) call(sub *Subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			listenerPanics.Inc()
			d.logger.Error("registry listener panicked",
				log.Uint64("subscription", sub.id),
				log.String("type", string(ev.Type())),
				log.String("kind", ev.Kind.String()),
				log.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	sub.listener(ev)
}

func (d *dispatcher) callFunc(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			listenerPanics.Inc()
			d.logger.Error("dispatched function panicked", log.String("panic", fmt.Sprint(r)))
		}
	}()
	fn()
}
