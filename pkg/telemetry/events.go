package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a telemetry event.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// File is the configuration or template file involved, if any.
	File string `json:"file,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventType constants for common event types.
const (
	EventTypeConfigLoaded    = "config.loaded"
	EventTypeConfigFailed    = "config.failed"
	EventTypeConfigReloaded  = "config.reloaded"
	EventTypeTemplateLoaded  = "template.loaded"
	EventTypePolicyViolation = "policy.violation"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher manages event publishing and subscriptions. A nil
// *EventPublisher discards everything.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}
	if cfg.EnableAsync && cfg.BufferSize <= 0 {
		return nil, fmt.Errorf("event buffer size must be positive, got: %d", cfg.BufferSize)
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPublisher{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.EnableAsync {
		ep.buffer = make(chan Event, cfg.BufferSize)
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if ep == nil || !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Level == "" {
		event.Level = EventLevelInfo
	}

	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil // Event filtered out
		}
	}
	ep.mu.RUnlock()

	if ep.config.EnableAsync {
		select {
		case ep.buffer <- event:
			return nil
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	// Synchronous publishing
	ep.deliverEvent(event)
	return nil
}

// PublishConfigLoaded publishes a successful load.
func (ep *EventPublisher) PublishConfigLoaded(file string, declarations int, duration time.Duration) error {
	return ep.Publish(Event{
		Type:    EventTypeConfigLoaded,
		Source:  "config-loader",
		File:    file,
		Message: fmt.Sprintf("configuration loaded with %d declarations", declarations),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"declarations": declarations,
			"duration_ms":  duration.Milliseconds(),
		},
	})
}

// PublishConfigFailed publishes a rejected load.
func (ep *EventPublisher) PublishConfigFailed(file, kind, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypeConfigFailed,
		Source:  "config-loader",
		File:    file,
		Message: reason,
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"kind": kind,
		},
	})
}

// PublishConfigReloaded publishes a watch-triggered reload.
func (ep *EventPublisher) PublishConfigReloaded(file, trigger string) error {
	return ep.Publish(Event{
		Type:    EventTypeConfigReloaded,
		Source:  "watcher",
		File:    file,
		Message: fmt.Sprintf("configuration reloaded after change to %s", trigger),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"trigger": trigger,
		},
	})
}

// PublishTemplateLoaded publishes a parsed template file.
func (ep *EventPublisher) PublishTemplateLoaded(file string, definitions int) error {
	return ep.Publish(Event{
		Type:    EventTypeTemplateLoaded,
		Source:  "template-registry",
		File:    file,
		Message: fmt.Sprintf("template registered %d definitions", definitions),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"definitions": definitions,
		},
	})
}

// PublishPolicyViolation publishes a policy violation.
func (ep *EventPublisher) PublishPolicyViolation(file, policyName, path, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypePolicyViolation,
		Source:  "policy-engine",
		File:    file,
		Message: reason,
		Level:   EventLevelWarning,
		Data: map[string]interface{}{
			"policy": policyName,
			"path":   path,
		},
	})
}

// Subscribe registers a subscriber with an optional filter.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	if ep == nil {
		return
	}
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	if ep == nil {
		return
	}
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// processEvents processes events from the buffer asynchronously.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	batchSize := ep.config.MaxBatchSize
	if batchSize <= 0 {
		batchSize = 1
	}
	batch := make([]Event, 0, batchSize)

	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch, event)

			// Drain what is already queued, up to one batch.
			for len(batch) < batchSize && len(ep.buffer) > 0 {
				batch = append(batch, <-ep.buffer)
			}
			ep.flushBatch(batch)
			batch = batch[:0]

		case <-ep.ctx.Done():
			for len(ep.buffer) > 0 {
				batch = append(batch, <-ep.buffer)
			}
			ep.flushBatch(batch)
			return
		}
	}
}

// flushBatch delivers a batch of events to subscribers.
func (ep *EventPublisher) flushBatch(events []Event) {
	for _, event := range events {
		ep.deliverEvent(event)
	}
}

// deliverEvent delivers an event to all subscribers in registration order.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown gracefully shuts down the event publisher.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if ep == nil || !ep.config.Enabled {
		return nil
	}

	ep.cancel()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// Common event filters.

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByFile creates a filter that only allows events for a specific file.
func FilterByFile(file string) EventFilter {
	return func(event Event) bool {
		return event.File == file
	}
}
