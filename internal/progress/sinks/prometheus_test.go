package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/licitatech/pncp-harvester/internal/pncp"
	"github.com/licitatech/pncp-harvester/internal/progress"
)

func TestPrometheusSinkCountsOutcomes(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	now := time.Now().UTC()
	batch := []progress.Event{
		{RunID: "run-1", TS: now, Stage: progress.StageRunStart, Found: 3},
		{RunID: "run-1", TS: now, Stage: progress.StageRecordDone, NaturalID: "a/2024/1", Outcome: pncp.OutcomeInserted, Dur: time.Second},
		{RunID: "run-1", TS: now, Stage: progress.StageRecordDone, NaturalID: "a/2024/2", Outcome: pncp.OutcomeSkippedUnchanged},
		{RunID: "run-1", TS: now, Stage: progress.StageRecordDone, NaturalID: "a/2024/3", Outcome: pncp.OutcomeFailed, Note: "extraction failed"},
		{RunID: "run-1", TS: now, Stage: progress.StageRunDone, Dur: 3 * time.Second},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, float64(1), testutil.ToFloat64(sink.runsStarted))
	require.Equal(t, float64(1), testutil.ToFloat64(sink.runsCompleted.WithLabelValues("success")))
	require.Equal(t, float64(1), testutil.ToFloat64(sink.records.WithLabelValues("INSERTED")))
	require.Equal(t, float64(1), testutil.ToFloat64(sink.records.WithLabelValues("SKIPPED_UNCHANGED")))
	require.Equal(t, float64(1), testutil.ToFloat64(sink.records.WithLabelValues("FAILED")))
	require.Equal(t, float64(0), testutil.ToFloat64(sink.runsCompleted.WithLabelValues("error")))
}

func TestPrometheusSinkDoubleRegister(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
