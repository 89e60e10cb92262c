package event

import (
	"time"

	"coin_swap/internal/domain"
)

// Type identifies the kind of event flowing through the loop
type Type int

const (
	TypeTick Type = iota + 1
	TypeStream
	TypeCatalog
	TypeCommand
)

// String returns the string representation of Type
func (t Type) String() string {
	switch t {
	case TypeTick:
		return "tick"
	case TypeStream:
		return "stream"
	case TypeCatalog:
		return "catalog"
	case TypeCommand:
		return "command"
	default:
		return "unknown"
	}
}

// Event is anything posted to the widget loop
type Event interface {
	GetEpoch() uint64
	GetType() Type
}

// BaseEvent carries the subscription epoch the event was produced under.
// Events not tied to a connection leave Epoch at zero.
type BaseEvent struct {
	Epoch      uint64
	ReceivedAt time.Time
}

func (e *BaseEvent) GetEpoch() uint64 { return e.Epoch }

// TickEvent is a trade received on a stream connection
type TickEvent struct {
	BaseEvent
	Trade domain.Trade
}

func (e *TickEvent) GetType() Type { return TypeTick }

// StreamStatus is a connection lifecycle notification
type StreamStatus int

const (
	StreamSubscribed StreamStatus = iota + 1
	StreamFailed
	StreamExhausted
)

// String returns the string representation of StreamStatus
func (s StreamStatus) String() string {
	switch s {
	case StreamSubscribed:
		return "subscribed"
	case StreamFailed:
		return "failed"
	case StreamExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// StreamEvent reports a connection status change for one epoch
type StreamEvent struct {
	BaseEvent
	Status  StreamStatus
	Attempt int
	Err     error
}

func (e *StreamEvent) GetType() Type { return TypeStream }

// CatalogEvent delivers the result of the one-shot catalog fetch
type CatalogEvent struct {
	BaseEvent
	Assets []domain.Asset
	Err    error
}

func (e *CatalogEvent) GetType() Type { return TypeCatalog }

// CommandEvent runs Fn on the loop goroutine and reports its result on Done
type CommandEvent struct {
	BaseEvent
	Name string
	Fn   func() error
	Done chan error
}

func (e *CommandEvent) GetType() Type { return TypeCommand }

// NewCommandEvent creates a command with a buffered completion channel
func NewCommandEvent(name string, fn func() error) *CommandEvent {
	return &CommandEvent{
		Name: name,
		Fn:   fn,
		Done: make(chan error, 1),
	}
}
