package xcenter

import (
	"time"
)

// EventType enumerates internal lifecycle events for Observer pattern.
type EventType string

const (
	ModuleRegistered   EventType = "module_registered"
	ModuleUnregistered EventType = "module_unregistered"
	MessageSent        EventType = "message_sent"
	MessageDelivered   EventType = "message_delivered"
	DeliveryFailed     EventType = "delivery_failed"
	BroadcastSent      EventType = "broadcast_sent"
	RequestStart       EventType = "request_start"
	RequestDone        EventType = "request_done"
	Error              EventType = "error"
)

// Event carries telemetry for observers.
type Event struct {
	Type          EventType
	ModuleID      string
	MessageID     string
	MessageType   string
	Source        string
	Target        string
	CorrelationID string
	Duration      time.Duration
	Err           error

	// Internal: attached for async dispatch
	observers []Observer
}
