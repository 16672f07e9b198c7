package xcenter

import (
	"context"
	"time"
)

// HealthChecker provides health status for production monitoring.
type HealthChecker interface {
	Health(ctx context.Context) HealthStatus
}

// API represents the complete xcenter surface collaborators depend on.
type API interface {
	RegisterModule(moduleID string, h Handler) error
	UnregisterModule(moduleID string)
	Modules() []string
	SendMessage(ctx context.Context, msg Message) error
	SendRequest(ctx context.Context, msg Message, timeout time.Duration) (*Response, error)
	SendRequestAsync(ctx context.Context, msg Message, timeout time.Duration, cb Callback) error
	BroadcastMessage(ctx context.Context, msg Message) error
	Respond(resp Response) bool
	Stats() Stats
	Health(ctx context.Context) HealthStatus
	Close(ctx context.Context) error
	AddObserver(obs Observer) (remove func())
	RemoveObserver(obs Observer)
}

var _ API = (*Center)(nil)
var _ HealthChecker = (*Center)(nil)
