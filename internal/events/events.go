package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/panelfs/panelfs/internal/constants"
)

// EventType defines the types of events that can be emitted
type EventType string

const (
	// EventNodeChanged - a tree node (or every node) must be re-queried
	EventNodeChanged EventType = "node_changed"

	// EventStatusChanged - the status indicator was re-rendered
	EventStatusChanged EventType = "status_changed"

	// EventConnectionChanged - connection state was set or cleared
	EventConnectionChanged EventType = "connection_changed"

	// EventConfigChanged - the persisted configuration changed on disk
	EventConfigChanged EventType = "config_changed"

	// EventAuthFailed - the panel rejected the credential (HTTP 401)
	EventAuthFailed EventType = "auth_failed"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// NodeChangedEvent tells tree consumers which node to re-query.
// All is set for a global refresh; Path is empty in that case.
type NodeChangedEvent struct {
	BaseEvent
	Path string
	All  bool
}

// StatusChangedEvent carries the rendered indicator state.
type StatusChangedEvent struct {
	BaseEvent
	Text             string
	Tooltip          string
	PanelLinkVisible bool
}

// ConnectionChangedEvent is published when the active server changes.
type ConnectionChangedEvent struct {
	BaseEvent
	Connected    bool
	ServerAPIURL string
}

// ConfigChangedEvent is published when the config file is rewritten.
// Subscribers should re-hydrate connection state and refresh.
type ConfigChangedEvent struct {
	BaseEvent
	Path string
}

// AuthFailedEvent is published once per observed 401.
type AuthFailedEvent struct {
	BaseEvent
	Operation string
}

// EventBus manages event subscriptions and publishing
type EventBus struct {
	subscribers   map[EventType][]chan Event
	all           []chan Event // Subscribers to all events
	mu            sync.RWMutex
	bufferSize    int
	closed        bool
	droppedEvents atomic.Int64 // Count of dropped events due to full buffers
}

// NewEventBus creates a new event bus with specified buffer size
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = constants.EventBusDefaultBuffer
	}
	if bufferSize > constants.EventBusMaxBuffer {
		bufferSize = constants.EventBusMaxBuffer
	}
	return &EventBus{
		subscribers: make(map[EventType][]chan Event),
		all:         make([]chan Event, 0),
		bufferSize:  bufferSize,
	}
}

// Subscribe creates a subscription to a specific event type
func (eb *EventBus) Subscribe(eventType EventType) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	return ch
}

// SubscribeAll creates a subscription to all events
func (eb *EventBus) SubscribeAll() <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.all = append(eb.all, ch)
	return ch
}

// Publish sends an event to all subscribers without blocking.
// Events for full subscriber buffers are dropped and counted.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	for _, ch := range eb.subscribers[event.Type()] {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}

	for _, ch := range eb.all {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}
}

// Close shuts down the event bus and closes all channels
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	eb.closed = true

	for _, channels := range eb.subscribers {
		for _, ch := range channels {
			close(ch)
		}
	}

	for _, ch := range eb.all {
		close(ch)
	}
}

// PublishNodeChanged is a convenience method for node change notifications.
// An empty path with all=false is treated as the root node.
func (eb *EventBus) PublishNodeChanged(path string, all bool) {
	eb.Publish(&NodeChangedEvent{
		BaseEvent: BaseEvent{
			EventType: EventNodeChanged,
			Time:      time.Now(),
		},
		Path: path,
		All:  all,
	})
}

// PublishStatus is a convenience method for status indicator updates.
func (eb *EventBus) PublishStatus(text, tooltip string, panelLinkVisible bool) {
	eb.Publish(&StatusChangedEvent{
		BaseEvent: BaseEvent{
			EventType: EventStatusChanged,
			Time:      time.Now(),
		},
		Text:             text,
		Tooltip:          tooltip,
		PanelLinkVisible: panelLinkVisible,
	})
}

// PublishConnectionChanged is a convenience method for connection changes.
func (eb *EventBus) PublishConnectionChanged(connected bool, serverAPIURL string) {
	eb.Publish(&ConnectionChangedEvent{
		BaseEvent: BaseEvent{
			EventType: EventConnectionChanged,
			Time:      time.Now(),
		},
		Connected:    connected,
		ServerAPIURL: serverAPIURL,
	})
}

// PublishConfigChanged is a convenience method for config file changes.
func (eb *EventBus) PublishConfigChanged(path string) {
	eb.Publish(&ConfigChangedEvent{
		BaseEvent: BaseEvent{
			EventType: EventConfigChanged,
			Time:      time.Now(),
		},
		Path: path,
	})
}

// PublishAuthFailed is a convenience method for 401 notifications.
func (eb *EventBus) PublishAuthFailed(operation string) {
	eb.Publish(&AuthFailedEvent{
		BaseEvent: BaseEvent{
			EventType: EventAuthFailed,
			Time:      time.Now(),
		},
		Operation: operation,
	})
}

// Unsubscribe removes a subscription channel from a specific event type
func (eb *EventBus) Unsubscribe(eventType EventType, ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	subscribers := eb.subscribers[eventType]
	for i, subCh := range subscribers {
		if subCh == ch {
			subscribers[i] = subscribers[len(subscribers)-1]
			eb.subscribers[eventType] = subscribers[:len(subscribers)-1]
			break
		}
	}
}

// UnsubscribeAll removes a subscription channel from all event types
func (eb *EventBus) UnsubscribeAll(ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	for eventType, subscribers := range eb.subscribers {
		for i, subCh := range subscribers {
			if subCh == ch {
				subscribers[i] = subscribers[len(subscribers)-1]
				eb.subscribers[eventType] = subscribers[:len(subscribers)-1]
				break
			}
		}
	}

	for i, subCh := range eb.all {
		if subCh == ch {
			eb.all[i] = eb.all[len(eb.all)-1]
			eb.all = eb.all[:len(eb.all)-1]
			break
		}
	}
}

// GetDroppedEventCount returns the total number of events dropped due to full buffers
func (eb *EventBus) GetDroppedEventCount() int64 {
	return eb.droppedEvents.Load()
}
