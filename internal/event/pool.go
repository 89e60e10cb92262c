package event

import (
	"sync"
	"time"

	"coin_swap/internal/domain"
)

// tickPool provides sync.Pool for high-frequency tick allocation.
// Use this to reduce GC pressure on busy pairs.
//
// Usage:
//
//	ev := AcquireTickEvent()
//	ev.Epoch = epoch
//	ev.Trade = trade
//	// ... post to the loop; the loop releases it after handling ...
var tickPool = sync.Pool{
	New: func() interface{} {
		return &TickEvent{}
	},
}

// AcquireTickEvent gets a TickEvent from the pool.
// The returned event has zero values and must be initialized.
func AcquireTickEvent() *TickEvent {
	return tickPool.Get().(*TickEvent)
}

// ReleaseTickEvent returns a TickEvent to the pool.
// The event is reset to zero values before being pooled.
func ReleaseTickEvent(ev *TickEvent) {
	if ev == nil {
		return
	}
	ev.Epoch = 0
	ev.ReceivedAt = time.Time{}
	ev.Trade = domain.Trade{}

	tickPool.Put(ev)
}

// Warmup pre-allocates tick events to reduce GC pressure at startup.
func Warmup() {
	const batchSize = 256

	evs := make([]*TickEvent, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		evs = append(evs, AcquireTickEvent())
	}
	for _, ev := range evs {
		ReleaseTickEvent(ev)
	}
}
