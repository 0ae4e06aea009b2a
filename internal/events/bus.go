package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventSignalUpdate     EventType = "SIGNAL_UPDATE"
	EventGateUpdate       EventType = "GATE_UPDATE"
	EventModeStatusUpdate EventType = "MODE_STATUS_UPDATE"
	EventCycleCompleted   EventType = "CYCLE_COMPLETED"
	EventCycleThrottled   EventType = "CYCLE_THROTTLED"
	EventCalibrationSet   EventType = "CALIBRATION_SET"
	EventError            EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	// Set timestamp if not provided
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Notify specific subscribers
	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event) // Run in goroutine to avoid blocking
		}
	}

	// Notify all-event subscribers
	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishSignalUpdate publishes the display payload for a completed cycle
func (eb *EventBus) PublishSignalUpdate(cycleID, symbol string, payload interface{}) {
	eb.Publish(Event{
		Type: EventSignalUpdate,
		Data: map[string]interface{}{
			"cycle_id": cycleID,
			"symbol":   symbol,
			"signal":   payload,
		},
	})
}

// PublishGateUpdate publishes a gate statistics snapshot
func (eb *EventBus) PublishGateUpdate(symbol string, stats interface{}) {
	eb.Publish(Event{
		Type: EventGateUpdate,
		Data: map[string]interface{}{
			"symbol":     symbol,
			"statistics": stats,
		},
	})
}

// PublishModeStatus publishes the active mode and its execution decision
func (eb *EventBus) PublishModeStatus(symbol, mode, strategy string, shouldExecute bool) {
	eb.Publish(Event{
		Type: EventModeStatusUpdate,
		Data: map[string]interface{}{
			"symbol":         symbol,
			"mode":           mode,
			"strategy":       strategy,
			"should_execute": shouldExecute,
		},
	})
}

// PublishCycleCompleted publishes cycle timing for monitoring
func (eb *EventBus) PublishCycleCompleted(cycleID, symbol string, durationMs int64) {
	eb.Publish(Event{
		Type: EventCycleCompleted,
		Data: map[string]interface{}{
			"cycle_id":    cycleID,
			"symbol":      symbol,
			"duration_ms": durationMs,
		},
	})
}

// PublishCycleThrottled records a dropped cycle request
func (eb *EventBus) PublishCycleThrottled(symbol string, sinceLastMs int64) {
	eb.Publish(Event{
		Type: EventCycleThrottled,
		Data: map[string]interface{}{
			"symbol":        symbol,
			"since_last_ms": sinceLastMs,
		},
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventError,
		Data: data,
	})
}
