package salesync

import (
	"context"

	"github.com/rs/zerolog"
)

// Recorder records sync events for observability.
type Recorder interface {
	Record(ctx context.Context, event string, payload map[string]any)
}

type noopRecorder struct{}

func (noopRecorder) Record(context.Context, string, map[string]any) {}

func normalizeRecorder(r Recorder) Recorder {
	if r == nil {
		return noopRecorder{}
	}
	return r
}

// ZerologRecorder emits events through a structured zerolog logger.
type ZerologRecorder struct {
	log zerolog.Logger
}

// NewZerologRecorder wraps the given logger.
func NewZerologRecorder(log zerolog.Logger) *ZerologRecorder {
	return &ZerologRecorder{log: log}
}

// Record logs the event at debug level with the payload as fields.
func (r *ZerologRecorder) Record(_ context.Context, event string, payload map[string]any) {
	evt := r.log.Debug().Str("event", event)
	for key, value := range payload {
		evt = evt.Interface(key, value)
	}
	evt.Send()
}
