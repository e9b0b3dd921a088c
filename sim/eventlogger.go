package sim

import (
	"reflect"

	"github.com/sirupsen/logrus"
)

// EventLogger is an hook that prints the event information
type EventLogger struct {
	logger logrus.FieldLogger
}

// NewEventLogger returns a new EventLogger which will write in to the logger
// at debug level.
func NewEventLogger(logger logrus.FieldLogger) *EventLogger {
	return &EventLogger{logger: logger}
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

	entry := h.logger.WithField("time", float64(evt.Time()))
	if step, ok := evt.(StepEvent); ok {
		entry = entry.WithField("step", step.Step)
	}

	entry.Debugf("%s", reflect.TypeOf(evt))
}
