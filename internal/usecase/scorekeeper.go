package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"PerpHelm/internal/domain/models"
	"PerpHelm/internal/domain/repository"
	"PerpHelm/pkg/logger"
	"PerpHelm/pkg/metrics"
)

// shadowPortfolio is a paper book for a plan that was not adopted. It
// buys the plan's allocations at tracking start and is marked to market
// each cycle, never rebalanced.
type shadowPortfolio struct {
	plan         *models.StrategyPlanCard
	startedAt    time.Time
	initialValue decimal.Decimal
	currentValue decimal.Decimal
	units        map[string]decimal.Decimal
}

func (p *shadowPortfolio) returnBps() float64 {
	if p.initialValue.IsZero() {
		return 0
	}
	bps, _ := p.currentValue.Sub(p.initialValue).Div(p.initialValue).Mul(decimal.NewFromInt(10000)).Float64()
	return bps
}

// PlanScorekeeper tracks live plan performance and the counterfactual
// performance of rejected alternatives, so every governor verdict can
// later be priced in basis points.
type PlanScorekeeper struct {
	mu sync.Mutex

	live    *models.PlanMetrics
	plan    *models.StrategyPlanCard
	shadows map[string]*shadowPortfolio

	slippageSum float64

	store   repository.HistoryStore
	metrics *metrics.Recorder
	log     *logger.Logger
	now     func() time.Time
}

func NewPlanScorekeeper(store repository.HistoryStore, rec *metrics.Recorder, log *logger.Logger) *PlanScorekeeper {
	return &PlanScorekeeper{
		shadows: make(map[string]*shadowPortfolio),
		store:   store,
		metrics: rec,
		log:     log,
		now:     time.Now,
	}
}

// StartTrackingPlan begins a fresh metrics window for an activated plan.
// Shadows from the previous window are dropped: they were alternatives
// to a plan that no longer exists.
func (k *PlanScorekeeper) StartTrackingPlan(plan *models.StrategyPlanCard, initialValue decimal.Decimal) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.plan = plan
	k.live = &models.PlanMetrics{
		PlanID:       plan.ID,
		StartedAt:    k.now(),
		InitialValue: initialValue,
		CurrentValue: initialValue,
		PeakValue:    initialValue,
	}
	k.shadows = make(map[string]*shadowPortfolio)
	k.slippageSum = 0
}

// AddShadowPortfolio opens a paper book for a rejected candidate at
// current marks.
func (k *PlanScorekeeper) AddShadowPortfolio(plan *models.StrategyPlanCard, initialValue decimal.Decimal, marks map[string]decimal.Decimal) error {
	if plan == nil || plan.ID == "" {
		return fmt.Errorf("scorekeeper: shadow plan needs an id")
	}

	units := make(map[string]decimal.Decimal, len(plan.Allocations))
	for inst, weight := range plan.Allocations {
		price, ok := marks[inst]
		if !ok || price.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("scorekeeper: no mark price for %s", inst)
		}
		w := decimal.NewFromFloat(weight)
		units[inst] = initialValue.Mul(w).Div(price)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	k.shadows[plan.ID] = &shadowPortfolio{
		plan:         plan,
		startedAt:    k.now(),
		initialValue: initialValue,
		currentValue: initialValue,
		units:        units,
	}
	return nil
}

// UpdateMetrics folds one cycle's account snapshot into the live metrics
// and marks every shadow to market.
func (k *PlanScorekeeper) UpdateMetrics(state *models.AccountState) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.live == nil {
		return
	}

	m := k.live
	m.CurrentValue = state.Equity
	m.PnL = m.CurrentValue.Sub(m.InitialValue)
	if m.CurrentValue.GreaterThan(m.PeakValue) {
		m.PeakValue = m.CurrentValue
	}
	if m.PeakValue.GreaterThan(decimal.Zero) {
		dd, _ := m.PeakValue.Sub(m.CurrentValue).Div(m.PeakValue).Float64()
		if dd > m.MaxDrawdownPct {
			m.MaxDrawdownPct = dd
		}
	}

	m.Trades += state.CycleTrades
	m.Wins += state.CycleWins
	if m.Trades > 0 {
		m.HitRate = float64(m.Wins) / float64(m.Trades)
	}
	if state.CycleTrades > 0 {
		k.slippageSum += state.CycleSlippageBps
	}
	m.Cycles++
	if m.Cycles > 0 && m.Trades > 0 {
		m.SlippageBpsMean = k.slippageSum / float64(m.Trades)
	}

	for _, shadow := range k.shadows {
		value := decimal.Zero
		priced := true
		for inst, units := range shadow.units {
			price, ok := state.MarkPrices[inst]
			if !ok {
				priced = false
				break
			}
			value = value.Add(units.Mul(price))
		}
		if priced {
			shadow.currentValue = value
		}
	}
}

// EstimateOpportunityCost prices the standing decision to keep the live
// plan: how many basis points the best shadow portfolio earned over the
// live plan since tracking began. Positive means a rejected plan is
// outperforming; the value feeds the expected advantage on the next
// change proposal.
func (k *PlanScorekeeper) EstimateOpportunityCost() (float64, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.live == nil {
		return 0, fmt.Errorf("scorekeeper: no live plan being tracked")
	}
	if len(k.shadows) == 0 {
		return 0, fmt.Errorf("scorekeeper: no shadow portfolios tracked")
	}

	best := math.Inf(-1)
	for _, shadow := range k.shadows {
		if bps := shadow.returnBps(); bps > best {
			best = bps
		}
	}

	cost := best - k.live.ReturnBps()
	k.metrics.RecordOpportunityCost(cost)
	return cost, nil
}

// OpportunityCostVs prices one named rejection against the live plan.
func (k *PlanScorekeeper) OpportunityCostVs(shadowPlanID string) (float64, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	shadow, ok := k.shadows[shadowPlanID]
	if !ok {
		return 0, fmt.Errorf("scorekeeper: no shadow portfolio %s", shadowPlanID)
	}
	if k.live == nil {
		return 0, fmt.Errorf("scorekeeper: no live plan being tracked")
	}
	return shadow.returnBps() - k.live.ReturnBps(), nil
}

// LiveMetrics returns a copy of the current live metrics, or nil when no
// plan is tracked.
func (k *PlanScorekeeper) LiveMetrics() *models.PlanMetrics {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.live == nil {
		return nil
	}
	snapshot := *k.live
	return &snapshot
}

// FinalizePlan closes the live window, writes the post-mortem and clears
// tracking state.
func (k *PlanScorekeeper) FinalizePlan(ctx context.Context, endReason string) (*models.PostMortem, error) {
	k.mu.Lock()
	if k.live == nil {
		k.mu.Unlock()
		return nil, fmt.Errorf("scorekeeper: no live plan to finalize")
	}
	final := *k.live
	planName := ""
	if k.plan != nil {
		planName = k.plan.Name
	}
	summary := k.summarizeLocked(planName, &final, endReason)
	k.live = nil
	k.plan = nil
	k.shadows = make(map[string]*shadowPortfolio)
	k.mu.Unlock()

	pm := &models.PostMortem{
		PlanID:      final.PlanID,
		Summary:     summary,
		Final:       final,
		FinalizedAt: k.now(),
	}

	if k.store != nil {
		if err := k.store.SavePostMortem(ctx, pm); err != nil {
			return pm, fmt.Errorf("scorekeeper: save post-mortem: %w", err)
		}
	}
	k.log.Info("plan finalized",
		logger.String("plan_id", pm.PlanID),
		logger.String("summary", summary))
	return pm, nil
}

func (k *PlanScorekeeper) summarizeLocked(planName string, m *models.PlanMetrics, endReason string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "plan %s ran %s, return %.1fbps, max drawdown %.2f%%, %d trades (hit rate %.0f%%)",
		planName,
		k.now().Sub(m.StartedAt).Round(time.Minute),
		m.ReturnBps(),
		m.MaxDrawdownPct*100,
		m.Trades,
		m.HitRate*100)

	if len(k.shadows) > 0 {
		type line struct {
			name string
			bps  float64
		}
		lines := make([]line, 0, len(k.shadows))
		for _, s := range k.shadows {
			lines = append(lines, line{name: s.plan.Name, bps: s.returnBps() - m.ReturnBps()})
		}
		sort.Slice(lines, func(i, j int) bool { return lines[i].bps > lines[j].bps })
		fmt.Fprintf(&b, "; best rejected alternative %s at %+.1fbps", lines[0].name, lines[0].bps)
	}
	fmt.Fprintf(&b, "; ended: %s", endReason)
	return b.String()
}

// SetClock overrides the time source in tests.
func (k *PlanScorekeeper) SetClock(now func() time.Time) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.now = now
}
