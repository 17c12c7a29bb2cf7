// Package engine drives the scan-fetch-persist reconciliation loop and
// aggregates per-run summaries.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/licitatech/pncp-harvester/internal/pncp"
	"github.com/licitatech/pncp-harvester/internal/progress"
)

// Scanner lists candidate stubs updated on or after a filter date.
type Scanner interface {
	Scan(ctx context.Context, filterDate time.Time, maxPages, pageSize int) ([]pncp.CandidateStub, error)
}

// DetailFetcher builds the canonical record for one candidate.
type DetailFetcher interface {
	Fetch(ctx context.Context, naturalID string, fetchAttachments bool) (*pncp.CanonicalRecord, error)
}

// Config carries the engine's batch limits and throttling knobs.
type Config struct {
	// MaxPages bounds listing pagination per scan (default 3).
	MaxPages int
	// PageSize is the listing page size (default 25).
	PageSize int
	// MaxCandidates caps processed candidates per run when RunParams does not
	// override it (default 30).
	MaxCandidates int
	// Pacing is the fixed delay between candidates (default 200ms).
	Pacing time.Duration
}

// RunParams selects what a single run processes.
type RunParams struct {
	// TargetDate is the inclusive DD/MM/YYYY filter date. Empty means
	// yesterday.
	TargetDate string
	// SaveAttachments uploads attachment bytes to the object store.
	SaveAttachments bool
	// MaxCandidates overrides the configured cap when > 0.
	MaxCandidates int
}

// Engine runs the per-candidate state machine strictly sequentially, pacing
// requests against the portal, and never aborts a batch on a single
// candidate's failure.
type Engine struct {
	scanner Scanner
	fetcher DetailFetcher
	repo    pncp.Repository
	emitter progress.Emitter
	clock   pncp.Clock
	logger  *zap.Logger
	cfg     Config
}

// New wires an Engine. emitter may be nil; events are then discarded.
func New(scanner Scanner, fetcher DetailFetcher, repo pncp.Repository, emitter progress.Emitter, clock pncp.Clock, cfg Config, logger *zap.Logger) *Engine {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 3
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 25
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = 30
	}
	if cfg.Pacing <= 0 {
		cfg.Pacing = 200 * time.Millisecond
	}
	if emitter == nil {
		emitter = progress.NopEmitter{}
	}
	return &Engine{
		scanner: scanner,
		fetcher: fetcher,
		repo:    repo,
		emitter: emitter,
		clock:   clock,
		logger:  logger.Named("engine"),
		cfg:     cfg,
	}
}

// Run scans for candidates updated on or after the target date and reconciles
// each against the repository. A cancelled context stops the loop between
// candidates; everything processed so far is still reported in the summary.
func (e *Engine) Run(ctx context.Context, params RunParams) (pncp.RunSummary, error) {
	targetDate, err := e.resolveTargetDate(params.TargetDate)
	if err != nil {
		return pncp.RunSummary{}, err
	}
	return e.runDates(ctx, []time.Time{targetDate}, params)
}

// Backfill repeats the run state machine across N consecutive calendar days
// ending at the target date, oldest first, and aggregates one combined
// summary.
func (e *Engine) Backfill(ctx context.Context, days int, params RunParams) (pncp.RunSummary, error) {
	if days <= 0 {
		return pncp.RunSummary{}, fmt.Errorf("backfill days must be positive, got %d", days)
	}
	endDate, err := e.resolveTargetDate(params.TargetDate)
	if err != nil {
		return pncp.RunSummary{}, err
	}
	dates := make([]time.Time, 0, days)
	for d := days - 1; d >= 0; d-- {
		dates = append(dates, endDate.AddDate(0, 0, -d))
	}
	return e.runDates(ctx, dates, params)
}

func (e *Engine) runDates(ctx context.Context, dates []time.Time, params RunParams) (pncp.RunSummary, error) {
	maxCandidates := params.MaxCandidates
	if maxCandidates <= 0 {
		maxCandidates = e.cfg.MaxCandidates
	}

	summary := pncp.RunSummary{
		RunID:      uuid.NewString(),
		TargetDate: formatDateRange(dates),
		StartedAt:  e.clock.Now(),
	}
	logger := e.logger.With(zap.String("run_id", summary.RunID), zap.String("target_date", summary.TargetDate))
	logger.Info("run started", zap.Bool("save_attachments", params.SaveAttachments), zap.Int("max_candidates", maxCandidates))

	for _, date := range dates {
		if ctx.Err() != nil {
			break
		}
		stubs, err := e.scanner.Scan(ctx, date, e.cfg.MaxPages, e.cfg.PageSize)
		if err != nil {
			logger.Warn("scan failed", zap.Error(err))
			continue
		}
		if len(stubs) > maxCandidates {
			stubs = stubs[:maxCandidates]
		}
		summary.FoundCount += len(stubs)

		e.emitter.Emit(progress.Event{
			RunID:      summary.RunID,
			TS:         e.clock.Now(),
			Stage:      progress.StageRunStart,
			TargetDate: date.Format("02/01/2006"),
			Found:      len(stubs),
		})

		for i, stub := range stubs {
			if ctx.Err() != nil {
				logger.Info("run stopped between candidates", zap.Int("processed", i))
				break
			}
			e.processCandidate(ctx, stub, params.SaveAttachments, &summary)
			if i < len(stubs)-1 {
				e.pace(ctx)
			}
		}
	}

	summary.ElapsedSeconds = e.clock.Now().Sub(summary.StartedAt).Seconds()
	e.emitter.Emit(progress.Event{
		RunID:      summary.RunID,
		TS:         e.clock.Now(),
		Stage:      progress.StageRunDone,
		TargetDate: summary.TargetDate,
		Dur:        time.Duration(summary.ElapsedSeconds * float64(time.Second)),
	})
	logger.Info("run finished",
		zap.Int("found", summary.FoundCount),
		zap.Int("new", summary.NewCount),
		zap.Int("updated", summary.UpdatedCount),
		zap.Int("skipped", summary.SkippedCount),
		zap.Int("errors", summary.ErrorCount),
	)
	return summary, nil
}

// processCandidate walks one candidate through the insert/update/skip state
// machine and folds the outcome into the summary.
func (e *Engine) processCandidate(ctx context.Context, stub pncp.CandidateStub, saveAttachments bool, summary *pncp.RunSummary) {
	started := e.clock.Now()
	outcome, err := e.reconcile(ctx, stub, saveAttachments)

	switch outcome {
	case pncp.OutcomeInserted:
		summary.NewCount++
	case pncp.OutcomeUpdated:
		summary.UpdatedCount++
	case pncp.OutcomeSkippedUnchanged:
		summary.SkippedCount++
	case pncp.OutcomeFailed:
		summary.ErrorCount++
		summary.Errors = append(summary.Errors, pncp.RunError{
			NaturalID: stub.NaturalID,
			Error:     err.Error(),
		})
		e.logger.Warn("candidate failed", zap.String("natural_id", stub.NaturalID), zap.Error(err))
	}

	evt := progress.Event{
		RunID:     summary.RunID,
		TS:        e.clock.Now(),
		Stage:     progress.StageRecordDone,
		NaturalID: stub.NaturalID,
		Outcome:   outcome,
		Dur:       e.clock.Now().Sub(started),
	}
	if err != nil {
		evt.Note = err.Error()
	}
	e.emitter.Emit(evt)
}

func (e *Engine) reconcile(ctx context.Context, stub pncp.CandidateStub, saveAttachments bool) (pncp.Outcome, error) {
	existing, err := e.repo.FindByNaturalID(ctx, stub.NaturalID)
	if err != nil {
		return pncp.OutcomeFailed, fmt.Errorf("lookup: %w", err)
	}

	if existing != nil && existing.LastUpdatedAt == stub.DeclaredUpdatedAt {
		return pncp.OutcomeSkippedUnchanged, nil
	}

	record, err := e.fetcher.Fetch(ctx, stub.NaturalID, saveAttachments)
	if err != nil {
		return pncp.OutcomeFailed, fmt.Errorf("extraction: %w", err)
	}
	if err := e.persist(ctx, record); err != nil {
		return pncp.OutcomeFailed, err
	}
	if existing == nil {
		return pncp.OutcomeInserted, nil
	}
	return pncp.OutcomeUpdated, nil
}

// persist upserts the record, retrying exactly once as an explicit update
// when a uniqueness violation still surfaces under a concurrent writer.
func (e *Engine) persist(ctx context.Context, record *pncp.CanonicalRecord) error {
	id, err := e.repo.Upsert(ctx, record)
	if errors.Is(err, pncp.ErrDuplicateKey) {
		e.logger.Info("upsert conflict, retrying as update", zap.String("natural_id", record.NaturalID))
		id, err = e.repo.UpdateByNaturalID(ctx, record)
	}
	if err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	if id == "" {
		return fmt.Errorf("persist: store returned no id")
	}
	return nil
}

func (e *Engine) pace(ctx context.Context) {
	timer := time.NewTimer(e.cfg.Pacing)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// resolveTargetDate parses the DD/MM/YYYY parameter, defaulting to yesterday.
func (e *Engine) resolveTargetDate(raw string) (time.Time, error) {
	if raw == "" {
		now := e.clock.Now()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1), nil
	}
	date, ok := pncp.ParseDate(pncp.NormalizeDate(raw))
	if !ok {
		return time.Time{}, fmt.Errorf("unrecognized target date %q", raw)
	}
	return date, nil
}

func formatDateRange(dates []time.Time) string {
	first := dates[0].Format("02/01/2006")
	if len(dates) == 1 {
		return first
	}
	return first + ".." + dates[len(dates)-1].Format("02/01/2006")
}
