package usecase

import (
	"context"
	"time"

	"PerpHelm/internal/domain/models"
	"PerpHelm/internal/domain/repository"
	"PerpHelm/pkg/logger"
	"PerpHelm/pkg/metrics"
)

// AccountReader supplies the per-cycle account snapshot. The trading
// engine side owns this; a stub is used when running signal-only.
type AccountReader interface {
	Snapshot(ctx context.Context) (*models.AccountState, error)
}

// CycleRunner drives the medium loop: collect signals, classify the
// regime, run the tripwires and fold the snapshot into the scorekeeper.
type CycleRunner struct {
	symbols      []string
	interval     time.Duration
	orchestrator *SignalOrchestrator
	detector     *RegimeDetector
	governor     *StrategyGovernor
	tripwires    *TripwireService
	scorekeeper  *PlanScorekeeper
	account      AccountReader
	metrics      *metrics.Recorder
	log          *logger.Logger

	lastDayReset time.Time
}

func NewCycleRunner(
	symbols []string,
	interval time.Duration,
	orchestrator *SignalOrchestrator,
	detector *RegimeDetector,
	governor *StrategyGovernor,
	tripwires *TripwireService,
	scorekeeper *PlanScorekeeper,
	account AccountReader,
	rec *metrics.Recorder,
	log *logger.Logger,
) *CycleRunner {
	if interval <= 0 {
		interval = time.Minute
	}
	return &CycleRunner{
		symbols:      symbols,
		interval:     interval,
		orchestrator: orchestrator,
		detector:     detector,
		governor:     governor,
		tripwires:    tripwires,
		scorekeeper:  scorekeeper,
		account:      account,
		metrics:      rec,
		log:          log,
	}
}

// Run executes cycles until ctx ends.
func (r *CycleRunner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

func (r *CycleRunner) runOnce(ctx context.Context) {
	started := time.Now()

	if started.UTC().Day() != r.lastDayReset.UTC().Day() {
		if state, err := r.account.Snapshot(ctx); err == nil {
			r.tripwires.ResetDailyTracking(state.Equity)
			r.lastDayReset = started
		}
	}

	for _, symbol := range r.symbols {
		batch, err := r.orchestrator.CollectSignals(ctx, symbol, repository.TimescaleMedium)
		if err != nil {
			r.log.Error("cycle collect failed",
				logger.String("symbol", symbol),
				logger.Error(err))
			continue
		}

		signals := BuildRegimeSignals(symbol, batch)
		if _, err := r.detector.ClassifyRegime(ctx, signals); err != nil {
			r.log.Error("cycle classify failed",
				logger.String("symbol", symbol),
				logger.Error(err))
		}
	}

	state, err := r.account.Snapshot(ctx)
	if err != nil {
		r.log.Warn("account snapshot unavailable", logger.Error(err))
		r.metrics.RecordLatency("cycle", time.Since(started).Seconds())
		return
	}

	gov := r.governor.State()
	fired := r.tripwires.CheckAllTripwires(ctx, state, gov.ActivePlan)
	r.applyTripwires(ctx, fired)

	r.scorekeeper.UpdateMetrics(state)
	if cost, err := r.scorekeeper.EstimateOpportunityCost(); err == nil {
		r.log.Info("opportunity cost update", logger.Any("cost_bps", cost))
	}
	r.governor.AdvanceRotation()
	r.metrics.RecordPlanAge(r.governor.PlanAgeSeconds())
	r.metrics.RecordLatency("cycle", time.Since(started).Seconds())
}

// applyTripwires maps fired events onto governor actions. Tripwires
// outrank every governor gate.
func (r *CycleRunner) applyTripwires(ctx context.Context, fired []models.TripwireEvent) {
	for _, ev := range fired {
		switch ev.Action {
		case models.ActionInvalidatePlan:
			if _, err := r.scorekeeper.FinalizePlan(ctx, "plan invalidated: "+ev.Trigger); err != nil {
				r.log.Warn("finalize after invalidation failed", logger.Error(err))
			}
			if err := r.governor.Halt(ctx, "plan invalidated: "+ev.Trigger); err != nil {
				r.log.Error("halt after invalidation failed", logger.Error(err))
			}
		case models.ActionFreezeNewRisk, models.ActionCutSizeToFloor:
			if ev.Severity == models.SeverityCritical {
				if err := r.governor.Halt(ctx, string(ev.Action)+": "+ev.Trigger); err != nil {
					r.log.Error("halt after tripwire failed", logger.Error(err))
				}
			}
		case models.ActionEscalateToSlowLoop:
			// surfaced through the journal and audit stream
		}
	}
}

// StaticAccountReader returns a fixed snapshot; used when no trading
// engine is attached.
type StaticAccountReader struct {
	State *models.AccountState
}

func (s *StaticAccountReader) Snapshot(context.Context) (*models.AccountState, error) {
	state := *s.State
	state.Timestamp = time.Now()
	state.LastDataAt = time.Now()
	return &state, nil
}
