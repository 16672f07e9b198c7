package xcenter

import (
	"maps"
	"time"
)

// Message is the envelope traveling through the center.
type Message struct {
	// ID is a unique message identifier (the center assigns one if empty).
	ID string
	// Type is the logical message type, used by handlers for dispatch.
	Type string
	// Source is the id of the sending module.
	Source string
	// Target is the id of the receiving module. Empty for broadcasts.
	Target string
	// Payload is opaque caller data. Use Decode to obtain a private copy.
	Payload any
	// Timestamp is the creation instant (from the injected clock when zero).
	Timestamp time.Time
	// CorrelationID links a request to its response. Generated for requests when empty.
	CorrelationID string
	// Metadata is a bag for headers/tracing/tenancy/etc.
	Metadata map[string]string
}

// Response answers a request Message.
type Response struct {
	// MessageID echoes the originating message id.
	MessageID string
	// CorrelationID matches the request's correlation id.
	CorrelationID string
	Success       bool
	// Data is the opaque payload on success.
	Data any
	// Error describes the failure when Success is false.
	Error     string
	Timestamp time.Time

	// Err carries the typed cause of synthesized failure responses so callers
	// can use errors.Is against the center's sentinel errors.
	Err error `json:"-"`
}

// Reply builds a successful response for m carrying data. Timestamp is left
// zero; the center stamps it from its clock when the response resolves a request.
func (m *Message) Reply(data any) *Response {
	return &Response{
		MessageID:     m.ID,
		CorrelationID: m.CorrelationID,
		Success:       true,
		Data:          data,
	}
}

// Fail builds a failed response for m describing err.
func (m *Message) Fail(err error) *Response {
	r := &Response{
		MessageID:     m.ID,
		CorrelationID: m.CorrelationID,
		Err:           err,
	}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// clone returns a copy of m that does not alias the caller's Metadata map.
func (m Message) clone() *Message {
	c := m
	if m.Metadata != nil {
		c.Metadata = maps.Clone(m.Metadata)
	}
	return &c
}

// failureResponse synthesizes the response delivered to async callers when a
// request resolves with an error.
func failureResponse(p *pendingRequest, err error, now time.Time) Response {
	return Response{
		MessageID:     p.messageID,
		CorrelationID: p.correlationID,
		Success:       false,
		Error:         err.Error(),
		Timestamp:     now,
		Err:           err,
	}
}
