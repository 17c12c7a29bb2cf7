// Package sinks contains the Sink implementations progress events fan out to.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/licitatech/pncp-harvester/internal/progress"
)

// LogSink emits structured logs for the progress stream. Useful during
// development and on deployments without a metrics or messaging backend.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.logger.Info("progress event",
			zap.String("run_id", evt.RunID),
			zap.String("stage", string(evt.Stage)),
			zap.String("target_date", evt.TargetDate),
			zap.String("natural_id", evt.NaturalID),
			zap.String("outcome", string(evt.Outcome)),
			zap.Int("found", evt.Found),
			zap.Duration("dur", evt.Dur),
			zap.String("note", evt.Note),
		)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
