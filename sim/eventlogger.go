package sim

import (
	"context"
	"reflect"

	"github.com/sarchlab/wifictl/logging"
)

// Named is implemented by handlers that carry a name.
type Named interface {
	Name() string
}

// EventLogger is an hook that prints the event information
type EventLogger struct {
	logger logging.Logger
}

// NewEventLogger returns a new EventLogger which will write in to the logger
// at debug level.
func NewEventLogger(logger logging.Logger) *EventLogger {
	h := new(EventLogger)
	h.logger = logger

	return h
}

// Func writes the event information into the logger
func (h *EventLogger) Func(ctx HookCtx) {
	if ctx.Pos != HookPosBeforeEvent {
		return
	}

	evt, ok := ctx.Item.(Event)
	if !ok {
		return
	}

	fields := []logging.Field{
		logging.Float("time", float64(evt.Time())),
		logging.String("event", reflect.TypeOf(evt).String()),
	}

	if named, ok := evt.Handler().(Named); ok {
		fields = append(fields, logging.String("handler", named.Name()))
	}

	h.logger.Debug(context.Background(), "event", fields...)
}
