package xcenter

import (
	"github.com/trickstertwo/xlog"
)

// ObserverFunc is an Adapter that lets a plain function satisfy Observer.
type ObserverFunc func(e Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

// LoggingObserver is an Adapter that emits center events via xlog.
type LoggingObserver struct {
	Logger *xlog.Logger
}

func (o LoggingObserver) OnEvent(e Event) {
	if o.Logger == nil {
		return
	}
	switch e.Type {
	case ModuleRegistered, ModuleUnregistered:
		o.Logger.Info().
			Str("type", string(e.Type)).
			Str("module", e.ModuleID).
			Msg("xcenter event")
	case DeliveryFailed, Error:
		o.Logger.Warn().
			Str("type", string(e.Type)).
			Str("message_id", e.MessageID).
			Str("message_type", e.MessageType).
			Str("source", e.Source).
			Str("target", e.Target).
			Err(e.Err).
			Msg("xcenter event")
	case RequestDone:
		if e.Err != nil {
			o.Logger.Warn().
				Str("type", string(e.Type)).
				Str("correlation_id", e.CorrelationID).
				Str("target", e.Target).
				Dur("duration", e.Duration).
				Err(e.Err).
				Msg("xcenter event")
			return
		}
		o.Logger.Debug().
			Str("type", string(e.Type)).
			Str("correlation_id", e.CorrelationID).
			Str("target", e.Target).
			Dur("duration", e.Duration).
			Msg("xcenter event")
	default:
		o.Logger.Debug().
			Str("type", string(e.Type)).
			Str("message_id", e.MessageID).
			Str("message_type", e.MessageType).
			Str("source", e.Source).
			Str("target", e.Target).
			Dur("duration", e.Duration).
			Msg("xcenter event")
	}
}
