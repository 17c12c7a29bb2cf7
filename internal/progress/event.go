// Package progress defines the event stream emitted by the reconciliation
// engine while a run is underway.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/licitatech/pncp-harvester/internal/pncp"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart   Stage = "RUN_START"
	StageRunDone    Stage = "RUN_DONE"
	StageRunError   Stage = "RUN_ERROR"
	StageRecordDone Stage = "RECORD_DONE"
)

// Event captures a single milestone of a harvest run.
type Event struct {
	// RunID identifies the run this event belongs to.
	RunID string `json:"run_id"`
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time `json:"ts"`
	// Stage denotes which lifecycle milestone occurred.
	Stage Stage `json:"stage"`
	// TargetDate is the run's filter date in DD/MM/YYYY form.
	TargetDate string `json:"target_date,omitempty"`
	// NaturalID scopes record events to one candidate.
	NaturalID string `json:"natural_id,omitempty"`
	// Outcome is the candidate's terminal state on RECORD_DONE events.
	Outcome pncp.Outcome `json:"outcome,omitempty"`
	// Found carries the candidate count on RUN_START events.
	Found int `json:"found,omitempty"`
	// Dur captures per-record latency and total run wall time.
	Dur time.Duration `json:"dur,omitempty"`
	// Note lets emitters attach low-volume context (e.g. error text).
	Note string `json:"note,omitempty"`
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageRecordDone:
		if e.NaturalID == "" {
			return errors.New("record done requires natural id")
		}
		if e.Outcome == "" {
			return errors.New("record done requires outcome")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
