package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"PerpHelm/internal/domain/models"
	"PerpHelm/internal/domain/repository"
	"PerpHelm/pkg/logger"
	"PerpHelm/pkg/metrics"
)

// TripwireConfig holds the hard safety limits.
type TripwireConfig struct {
	MinMarginRatio     float64
	LiqProximityPct    float64
	DailyLossLimitPct  float64
	MaxDataStaleness   time.Duration
	MaxAPIFailureCount int
	PlanInvalidation   bool
	JournalSize        int
}

// TripwireService evaluates every safety rule on every check. Rules are
// independent: one firing never suppresses another, and the caller gets
// the full set so the most severe mandated action wins.
type TripwireService struct {
	mu sync.Mutex

	cfg TripwireConfig

	dayStartEquity decimal.Decimal
	dayStartSet    bool

	journal []models.TripwireEvent

	publisher repository.EventPublisher
	metrics   *metrics.Recorder
	log       *logger.Logger
	now       func() time.Time
}

func NewTripwireService(cfg TripwireConfig, pub repository.EventPublisher, rec *metrics.Recorder, log *logger.Logger) *TripwireService {
	if cfg.JournalSize <= 0 {
		cfg.JournalSize = 256
	}
	return &TripwireService{
		cfg:       cfg,
		publisher: pub,
		metrics:   rec,
		log:       log,
		now:       time.Now,
	}
}

// CheckAllTripwires runs every rule against the snapshot and returns all
// fired events. plan may be nil when no plan is active.
func (s *TripwireService) CheckAllTripwires(ctx context.Context, state *models.AccountState, plan *models.StrategyPlanCard) []models.TripwireEvent {
	s.mu.Lock()
	now := s.now()
	if !s.dayStartSet {
		s.dayStartEquity = state.Equity
		s.dayStartSet = true
	}
	dayStart := s.dayStartEquity
	s.mu.Unlock()

	var fired []models.TripwireEvent

	if state.MarginRatio < s.cfg.MinMarginRatio {
		fired = append(fired, models.TripwireEvent{
			Severity:  models.SeverityCritical,
			Category:  models.CategoryAccountSafety,
			Trigger:   "margin_ratio",
			Action:    models.ActionCutSizeToFloor,
			Timestamp: now,
			Details: map[string]interface{}{
				"margin_ratio": state.MarginRatio,
				"minimum":      s.cfg.MinMarginRatio,
			},
		})
	}

	// Proximity only means something with a position on; an account
	// sitting exactly at its liquidation price must still fire.
	if state.OpenPositions > 0 && state.LiquidationProximityPct < s.cfg.LiqProximityPct {
		fired = append(fired, models.TripwireEvent{
			Severity:  models.SeverityCritical,
			Category:  models.CategoryAccountSafety,
			Trigger:   "liquidation_proximity",
			Action:    models.ActionCutSizeToFloor,
			Timestamp: now,
			Details: map[string]interface{}{
				"proximity_pct": state.LiquidationProximityPct,
				"threshold_pct": s.cfg.LiqProximityPct,
			},
		})
	}

	if lossPct := dailyLossPct(dayStart, state.Equity); lossPct > s.cfg.DailyLossLimitPct {
		fired = append(fired, models.TripwireEvent{
			Severity:  models.SeverityCritical,
			Category:  models.CategoryAccountSafety,
			Trigger:   "daily_loss_limit",
			Action:    models.ActionFreezeNewRisk,
			Timestamp: now,
			Details: map[string]interface{}{
				"loss_pct":  lossPct,
				"limit_pct": s.cfg.DailyLossLimitPct,
			},
		})
	}

	if !state.LastDataAt.IsZero() {
		if staleness := now.Sub(state.LastDataAt); staleness > s.cfg.MaxDataStaleness {
			fired = append(fired, models.TripwireEvent{
				Severity:  models.SeverityWarning,
				Category:  models.CategoryOperational,
				Trigger:   "data_staleness",
				Action:    models.ActionFreezeNewRisk,
				Timestamp: now,
				Details: map[string]interface{}{
					"staleness": staleness.String(),
					"maximum":   s.cfg.MaxDataStaleness.String(),
				},
			})
		}
	}

	if state.APIFailureStreak >= s.cfg.MaxAPIFailureCount {
		fired = append(fired, models.TripwireEvent{
			Severity:  models.SeverityWarning,
			Category:  models.CategoryOperational,
			Trigger:   "api_failure_streak",
			Action:    models.ActionFreezeNewRisk,
			Timestamp: now,
			Details: map[string]interface{}{
				"streak":  state.APIFailureStreak,
				"maximum": s.cfg.MaxAPIFailureCount,
			},
		})
	}

	if s.cfg.PlanInvalidation && plan != nil {
		for _, trigger := range plan.InvalidationTriggers {
			value, ok := state.Signals[trigger.Metric]
			if !ok || !trigger.Fires(value) {
				continue
			}
			fired = append(fired, models.TripwireEvent{
				Severity:  models.SeverityCritical,
				Category:  models.CategoryPlanInvalidation,
				Trigger:   "plan_invalidation:" + trigger.Metric,
				Action:    models.ActionInvalidatePlan,
				Timestamp: now,
				Details: map[string]interface{}{
					"metric":    trigger.Metric,
					"op":        trigger.Op,
					"threshold": trigger.Threshold,
					"observed":  value,
					"reason":    trigger.Reason,
				},
			})
		}
	}

	for _, ev := range fired {
		s.record(ctx, ev)
	}
	return fired
}

// ResetDailyTracking rebases the daily loss calculation, normally at the
// UTC day boundary.
func (s *TripwireService) ResetDailyTracking(equity decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dayStartEquity = equity
	s.dayStartSet = true
}

// Journal returns up to n most recent fired events, newest last.
func (s *TripwireService) Journal(n int) []models.TripwireEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.journal) {
		n = len(s.journal)
	}
	out := make([]models.TripwireEvent, n)
	copy(out, s.journal[len(s.journal)-n:])
	return out
}

func (s *TripwireService) record(ctx context.Context, ev models.TripwireEvent) {
	s.mu.Lock()
	s.journal = append(s.journal, ev)
	if len(s.journal) > s.cfg.JournalSize {
		s.journal = s.journal[len(s.journal)-s.cfg.JournalSize:]
	}
	s.mu.Unlock()

	s.metrics.RecordTripwire(ev.Trigger, string(ev.Severity))
	s.log.Warn("tripwire fired",
		logger.String("trigger", ev.Trigger),
		logger.String("severity", string(ev.Severity)),
		logger.String("action", string(ev.Action)))

	if s.publisher != nil {
		if err := s.publisher.PublishAudit(ctx, "tripwire_fired", ev); err != nil {
			s.log.Warn("tripwire audit publish failed", logger.Error(err))
		}
	}
}

func dailyLossPct(dayStart, current decimal.Decimal) float64 {
	if dayStart.LessThanOrEqual(decimal.Zero) {
		return 0
	}
	loss := dayStart.Sub(current).Div(dayStart)
	pct, _ := loss.Float64()
	if pct < 0 {
		return 0
	}
	return pct
}
