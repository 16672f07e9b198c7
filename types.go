package xcenter

import (
	"context"
	"time"
)

// Handler is the capability every registered module exposes.
type Handler interface {
	// HandleMessage processes msg. A non-nil response answers a request; it is
	// discarded for one-way messages and broadcasts. Returning (nil, nil) for a
	// request leaves it pending until Respond is called or it times out.
	HandleMessage(ctx context.Context, msg *Message) (*Response, error)
	// OnModuleRegistered is called when another module joins.
	OnModuleRegistered(ctx context.Context, moduleID string)
	// OnModuleUnregistered is called when another module leaves.
	OnModuleUnregistered(ctx context.Context, moduleID string)
}

// HandlerFunc is an Adapter that lets a plain function satisfy Handler.
// Lifecycle notifications are ignored.
type HandlerFunc func(ctx context.Context, msg *Message) (*Response, error)

func (f HandlerFunc) HandleMessage(ctx context.Context, msg *Message) (*Response, error) {
	return f(ctx, msg)
}

func (HandlerFunc) OnModuleRegistered(context.Context, string)   {}
func (HandlerFunc) OnModuleUnregistered(context.Context, string) {}

// Middleware composes processing concerns around message handling.
type Middleware func(next HandlerFunc) HandlerFunc

// Callback receives the single outcome of SendRequestAsync.
type Callback func(resp Response)

// Observer receives center lifecycle events. Implementations should be non-blocking.
type Observer interface {
	OnEvent(e Event)
}

// Stats is a point-in-time snapshot of center counters.
type Stats struct {
	Sent              uint64
	Delivered         uint64
	DeliveryFailed    uint64
	BroadcastsSent    uint64
	RequestsTimedOut  uint64
	RequestsCanceled  uint64
	LateResponses     uint64
	Errors            uint64
	EventsDropped     uint64
	PendingRequests   int
	RegisteredModules int

	AvgProcessingTimeMs float64
}

// PoolStats returns telemetry about the observer pool.
type PoolStats struct {
	Dropped      uint64 // Events dropped due to full buffer
	Processed    uint64 // Events successfully processed
	Panics       uint64 // Observer panics recovered
	ActiveEvents int    // Current queue depth
	Workers      int    // Number of dispatch goroutines
	BufferSize   int    // Channel capacity
}

// HealthStatus indicates center health.
type HealthStatus struct {
	Status    string // "healthy", "degraded", "unhealthy"
	Stats     Stats
	Timestamp time.Time
	Message   string
}
