package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"PerpHelm/internal/domain/models"
	"PerpHelm/internal/domain/repository"
	"PerpHelm/pkg/logger"
	"PerpHelm/pkg/metrics"
)

// GovernorConfig holds the plan-change friction settings.
type GovernorConfig struct {
	CooldownAfterChange time.Duration
	MinimumDwell        time.Duration
	MinAdvantageBps     float64
	PartialRotationPct  float64
}

// StrategyGovernor gates plan changes behind cooldown, minimum dwell and
// a net-advantage hurdle, and paces approved rotations so allocation
// moves in bounded steps. State survives restarts through the StateStore.
type StrategyGovernor struct {
	mu sync.Mutex

	cfg   GovernorConfig
	state *models.GovernorState

	// rotation blends the outgoing plan into the active one.
	rotatingFrom     *models.StrategyPlanCard
	rotationProgress float64

	store     repository.StateStore
	publisher repository.EventPublisher
	metrics   *metrics.Recorder
	log       *logger.Logger
	now       func() time.Time
}

func NewStrategyGovernor(cfg GovernorConfig, store repository.StateStore, pub repository.EventPublisher, rec *metrics.Recorder, log *logger.Logger) (*StrategyGovernor, error) {
	if cfg.PartialRotationPct <= 0 || cfg.PartialRotationPct > 1 {
		return nil, fmt.Errorf("governor: partial rotation pct %v out of (0,1]", cfg.PartialRotationPct)
	}

	g := &StrategyGovernor{
		cfg:       cfg,
		state:     &models.GovernorState{},
		store:     store,
		publisher: pub,
		metrics:   rec,
		log:       log,
		now:       time.Now,
	}

	if store != nil {
		loaded, err := store.LoadGovernorState(context.Background())
		if err != nil {
			return nil, fmt.Errorf("governor: load state: %w", err)
		}
		if loaded != nil {
			g.state = loaded
			g.rotationProgress = 1 // a restored plan is fully rotated in
			log.Info("governor state restored",
				logger.Bool("halted", loaded.Halted),
				logger.Bool("has_active_plan", loaded.ActivePlan != nil))
		}
	}
	return g, nil
}

// CanReviewPlan reports whether a plan change may even be considered
// right now, with the blocking reason when not.
func (g *StrategyGovernor) CanReviewPlan() (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.canReviewLocked(g.now())
}

func (g *StrategyGovernor) canReviewLocked(now time.Time) (bool, string) {
	if g.state.Halted {
		return false, fmt.Sprintf("halted pending acknowledgement: %s", g.state.HaltReason)
	}
	if now.Before(g.state.CooldownUntil) {
		return false, fmt.Sprintf("cooldown active until %s", g.state.CooldownUntil.Format(time.RFC3339))
	}
	if g.state.ActivePlan != nil {
		dwell := now.Sub(g.state.PlanStartAt)
		if dwell < g.cfg.MinimumDwell {
			return false, fmt.Sprintf("active plan dwell %s below minimum %s", dwell.Round(time.Second), g.cfg.MinimumDwell)
		}
	}
	return true, ""
}

// EvaluateChangeProposal applies the review gates and the net-advantage
// hurdle. A rejection is a normal verdict, not an error.
func (g *StrategyGovernor) EvaluateChangeProposal(ctx context.Context, proposal *models.PlanChangeProposal) *Decision {
	g.mu.Lock()
	now := g.now()
	net := proposal.NetAdvantageBps()

	decision := &models.Decision{
		NetAdvantageBps: net,
		EvaluatedAt:     now,
	}

	if ok, reason := g.canReviewLocked(now); !ok {
		decision.Reason = reason
	} else if net < g.cfg.MinAdvantageBps {
		decision.Reason = fmt.Sprintf(
			"net advantage %.1fbps (expected %.1f - cost %.1f) below required %.1fbps",
			net, proposal.ExpectedAdvantageBps, proposal.ChangeCostBps, g.cfg.MinAdvantageBps)
	} else {
		decision.Approved = true
		decision.Reason = fmt.Sprintf("net advantage %.1fbps clears required %.1fbps", net, g.cfg.MinAdvantageBps)
	}
	g.mu.Unlock()

	outcome := "rejected"
	if decision.Approved {
		outcome = "approved"
	}
	g.metrics.RecordDecision(outcome)
	g.publishDecision(ctx, proposal, decision)

	return &Decision{Decision: decision, proposal: proposal}
}

// Decision wraps the verdict so an approval can be applied atomically.
type Decision struct {
	*models.Decision
	proposal *models.PlanChangeProposal
}

// ActivatePlan installs an approved candidate as the active plan and
// starts its cooldown and paced rotation.
func (g *StrategyGovernor) ActivatePlan(ctx context.Context, d *Decision) error {
	if d == nil || !d.Approved {
		return fmt.Errorf("governor: cannot activate an unapproved proposal")
	}
	return g.install(ctx, d.proposal.Candidate, false, d.proposal.Reason)
}

// ForcePlanChange installs a plan bypassing every gate. Reserved for
// tripwire-mandated changes.
func (g *StrategyGovernor) ForcePlanChange(ctx context.Context, plan *models.StrategyPlanCard, reason string) error {
	g.metrics.RecordDecision("forced")
	return g.install(ctx, plan, true, reason)
}

func (g *StrategyGovernor) install(ctx context.Context, plan *models.StrategyPlanCard, forced bool, reason string) error {
	if plan == nil {
		return fmt.Errorf("governor: nil plan")
	}
	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = g.now()
	}

	g.mu.Lock()
	now := g.now()
	g.rotatingFrom = g.state.ActivePlan
	g.rotationProgress = 0
	if forced {
		// A forced change moves allocation immediately.
		g.rotatingFrom = nil
		g.rotationProgress = 1
	}
	g.state.ActivePlan = plan
	g.state.PlanStartAt = now
	g.state.LastChangeAt = now
	g.state.CooldownUntil = now.Add(g.cfg.CooldownAfterChange)
	snapshot := *g.state
	g.mu.Unlock()

	if err := g.persist(ctx, &snapshot); err != nil {
		return err
	}

	g.log.Info("plan activated",
		logger.String("plan_id", plan.ID),
		logger.String("plan", plan.Name),
		logger.Bool("forced", forced),
		logger.String("reason", reason))
	g.publishAudit(ctx, "plan_activated", map[string]interface{}{
		"plan_id": plan.ID,
		"plan":    plan.Name,
		"forced":  forced,
		"reason":  reason,
	})
	return nil
}

// EffectiveAllocations returns the currently tradable weights: during a
// rotation this is the outgoing plan blended toward the active one.
func (g *StrategyGovernor) EffectiveAllocations() map[string]float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state.ActivePlan == nil {
		return nil
	}
	if g.rotatingFrom == nil || g.rotationProgress >= 1 {
		return copyAllocations(g.state.ActivePlan.Allocations)
	}

	out := make(map[string]float64)
	for inst, w := range g.rotatingFrom.Allocations {
		out[inst] = w * (1 - g.rotationProgress)
	}
	for inst, w := range g.state.ActivePlan.Allocations {
		out[inst] += w * g.rotationProgress
	}
	return out
}

// AdvanceRotation moves the rotation forward by at most the per-cycle
// step and reports the new progress.
func (g *StrategyGovernor) AdvanceRotation() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.rotatingFrom == nil || g.rotationProgress >= 1 {
		g.rotationProgress = 1
		return 1
	}
	g.rotationProgress += g.cfg.PartialRotationPct
	if g.rotationProgress >= 1 {
		g.rotationProgress = 1
		g.rotatingFrom = nil
	}
	return g.rotationProgress
}

// Halt freezes plan reviews until a human acknowledges.
func (g *StrategyGovernor) Halt(ctx context.Context, reason string) error {
	g.mu.Lock()
	g.state.Halted = true
	g.state.HaltReason = reason
	snapshot := *g.state
	g.mu.Unlock()

	g.log.Warn("governor halted", logger.String("reason", reason))
	g.publishAudit(ctx, "governor_halted", map[string]interface{}{"reason": reason})
	return g.persist(ctx, &snapshot)
}

// AcknowledgeHalt clears a halt and resumes normal gating.
func (g *StrategyGovernor) AcknowledgeHalt(ctx context.Context, operator string) error {
	g.mu.Lock()
	if !g.state.Halted {
		g.mu.Unlock()
		return fmt.Errorf("governor: not halted")
	}
	reason := g.state.HaltReason
	g.state.Halted = false
	g.state.HaltReason = ""
	snapshot := *g.state
	g.mu.Unlock()

	g.log.Info("halt acknowledged",
		logger.String("operator", operator),
		logger.String("was", reason))
	g.publishAudit(ctx, "halt_acknowledged", map[string]interface{}{
		"operator": operator,
		"was":      reason,
	})
	return g.persist(ctx, &snapshot)
}

// State returns a copy of the persisted snapshot for reporting.
func (g *StrategyGovernor) State() models.GovernorState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return *g.state
}

// PlanAgeSeconds reports how long the active plan has been running.
func (g *StrategyGovernor) PlanAgeSeconds() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state.ActivePlan == nil {
		return 0
	}
	return g.now().Sub(g.state.PlanStartAt).Seconds()
}

func (g *StrategyGovernor) persist(ctx context.Context, snapshot *models.GovernorState) error {
	if g.store == nil {
		return nil
	}
	if err := g.store.SaveGovernorState(ctx, snapshot); err != nil {
		return fmt.Errorf("governor: persist state: %w", err)
	}
	return nil
}

func (g *StrategyGovernor) publishDecision(ctx context.Context, proposal *models.PlanChangeProposal, d *models.Decision) {
	payload := map[string]interface{}{
		"approved":          d.Approved,
		"reason":            d.Reason,
		"net_advantage_bps": d.NetAdvantageBps,
	}
	if proposal.Candidate != nil {
		payload["candidate"] = proposal.Candidate.Name
	}
	g.publishAudit(ctx, "plan_decision", payload)
}

func (g *StrategyGovernor) publishAudit(ctx context.Context, eventType string, payload map[string]interface{}) {
	if g.publisher == nil {
		return
	}
	if err := g.publisher.PublishAudit(ctx, eventType, payload); err != nil {
		g.log.Warn("audit publish failed",
			logger.String("event", eventType),
			logger.Error(err))
	}
}

// SetClock overrides the time source in tests.
func (g *StrategyGovernor) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
}

func copyAllocations(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
