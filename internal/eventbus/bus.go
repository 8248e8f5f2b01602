// Package eventbus carries trigger-engine events to in-process subscribers
// and, optionally, to NATS.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the trigger engine.
const (
	TypeTriggerFired   = "trigger.fired"
	TypeTriggerFailed  = "trigger.failed"
	TypeTriggerSkipped = "trigger.skipped"
)

// Event is a lightweight, in-memory signal used to decouple components.
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Subscribers MUST use buffered channels.
//   - Slow subscribers may drop events (bounded backpressure).
//
// Data should be small and JSON-serializable.
type Event struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data,omitempty"`
}

// FireData is the payload of trigger.* events.
type FireData struct {
	FireID      string    `json:"fire_id"`
	Job         string    `json:"job"`
	Trigger     string    `json:"trigger"`
	Cron        string    `json:"cron"`
	ScheduledAt time.Time `json:"scheduled_at,omitempty"`
	DurationMS  int64     `json:"duration_ms"`
	Error       string    `json:"error,omitempty"`
	Reason      string    `json:"reason,omitempty"`
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout bus. It owns no goroutines.
func New() *MemBus {
	return &MemBus{subs: map[uint64]chan Event{}}
}

type MemBus struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Event
	seq     atomic.Uint64
	dropped atomic.Uint64
}

func (b *MemBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Snapshot subscribers so Publish doesn't hold locks while sending.
	b.mu.RLock()
	chs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		b.deliver(ch, e)
	}
}

// deliver never blocks. A channel closed by a concurrent unsubscribe panics
// on send; that is recovered and counted as a drop.
func (b *MemBus) deliver(ch chan Event, e Event) {
	defer func() {
		if recover() != nil {
			b.dropped.Add(1)
		}
	}()
	select {
	case ch <- e:
	default:
		b.dropped.Add(1)
	}
}

func (b *MemBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Dropped returns the number of deliveries skipped because a subscriber was full.
func (b *MemBus) Dropped() uint64 { return b.dropped.Load() }

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(Event) {}

func (Nop) Subscribe(int) (<-chan Event, func()) {
	ch := make(chan Event)
	return ch, func() {}
}
