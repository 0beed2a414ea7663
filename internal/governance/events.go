package governance

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// EventType names a pipeline notification.
type EventType string

const (
	EventIntentReceived EventType = "intent_received"
	EventIntentApproved EventType = "intent_approved"
	EventIntentRejected EventType = "intent_rejected"
	EventIntentExecuted EventType = "intent_executed"
	EventAuditLogged    EventType = "audit_logged"
	EventConfigUpdated  EventType = "config_updated"
)

// Event is a notification delivered to subscribers after a state change.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Publisher accepts events. Publish must not block.
type Publisher interface {
	Publish(Event)
}

// Handler receives events in publication order.
type Handler func(Event)

// DefaultBusBuffer is the event backlog a Bus holds before dropping.
const DefaultBusBuffer = 1024

// Bus fans events out to subscribers from a single goroutine, so every
// subscriber sees events in the order they were published. Publish never
// blocks; when the backlog is full the event is dropped and counted.
type Bus struct {
	logger *zap.Logger
	ch     chan Event
	done   chan struct{}

	mu     sync.RWMutex
	subs   map[uint64]Handler
	nextID uint64

	closeMu sync.Mutex
	closed  bool

	dropped   atomic.Int64
	delivered atomic.Int64
}

// NewBus starts a bus with the given backlog size.
func NewBus(buffer int, logger *zap.Logger) *Bus {
	if buffer <= 0 {
		buffer = DefaultBusBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bus{
		logger: logger,
		ch:     make(chan Event, buffer),
		done:   make(chan struct{}),
		subs:   make(map[uint64]Handler),
	}
	go b.run()
	return b
}

// Subscribe registers h and returns a function that removes it.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = h
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish enqueues e for delivery.
func (b *Bus) Publish(e Event) {
	b.closeMu.Lock()
	defer b.closeMu.Unlock()
	if b.closed {
		b.dropped.Add(1)
		return
	}
	select {
	case b.ch <- e:
	default:
		b.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Delivered returns how many handler invocations completed.
func (b *Bus) Delivered() int64 {
	return b.delivered.Load()
}

// Close stops accepting events, delivers the backlog and waits for the
// dispatch goroutine to exit.
func (b *Bus) Close() {
	b.closeMu.Lock()
	if b.closed {
		b.closeMu.Unlock()
		<-b.done
		return
	}
	b.closed = true
	close(b.ch)
	b.closeMu.Unlock()
	<-b.done
}

func (b *Bus) run() {
	defer close(b.done)
	for e := range b.ch {
		b.mu.RLock()
		handlers := make([]Handler, 0, len(b.subs))
		ids := make([]uint64, 0, len(b.subs))
		for id := range b.subs {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		for _, id := range ids {
			handlers = append(handlers, b.subs[id])
		}
		b.mu.RUnlock()

		for _, h := range handlers {
			b.deliver(h, e)
		}
	}
}

func (b *Bus) deliver(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event subscriber panicked, recovering",
				zap.String("event", string(e.Type)),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()
	h(e)
	b.delivered.Add(1)
}
