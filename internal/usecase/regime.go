package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"PerpHelm/internal/domain/models"
	"PerpHelm/internal/domain/repository"
	"PerpHelm/internal/domain/service"
	"PerpHelm/pkg/logger"
	"PerpHelm/pkg/metrics"
)

// RegimeConfig holds the hysteresis and event-lock settings.
type RegimeConfig struct {
	ConfirmationCycles int
	EnterThreshold     float64
	ExitThreshold      float64
	HistorySize        int
	EventLockLead      time.Duration
	EventLockLag       time.Duration
}

// RegimeDetector debounces raw classifier output into a confirmed
// regime. A new regime needs N consecutive cycles above the enter
// threshold; an active regime is only released after N consecutive
// cycles at or below the exit threshold. Scheduled macro events open a
// lock window during which streaks are frozen so a known catalyst
// cannot flip the regime mid-event.
type RegimeDetector struct {
	mu sync.Mutex

	classifier service.RegimeClassifier
	cfg        RegimeConfig

	confirmed       models.Regime
	confirmedAt     time.Time
	candidate       models.Regime
	candidateStreak int
	exitStreak      int

	history []*models.RegimeClassification
	events  []models.MacroEvent

	store     repository.HistoryStore
	publisher repository.EventPublisher
	metrics   *metrics.Recorder
	log       *logger.Logger
	now       func() time.Time
}

func NewRegimeDetector(classifier service.RegimeClassifier, cfg RegimeConfig, store repository.HistoryStore, pub repository.EventPublisher, rec *metrics.Recorder, log *logger.Logger) *RegimeDetector {
	if cfg.ConfirmationCycles <= 0 {
		cfg.ConfirmationCycles = 3
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 64
	}
	return &RegimeDetector{
		classifier: classifier,
		cfg:        cfg,
		confirmed:  models.RegimeUnknown,
		store:      store,
		publisher:  pub,
		metrics:    rec,
		log:        log,
		now:        time.Now,
	}
}

// ClassifyRegime runs one classification cycle and folds the verdict
// into the hysteresis state. A classifier failure holds the last
// confirmed regime instead of propagating the error: a blind detector
// must not look like a regime change.
func (d *RegimeDetector) ClassifyRegime(ctx context.Context, signals *models.RegimeSignals) (*models.RegimeClassification, error) {
	c, err := d.classifier.Classify(ctx, signals)
	if err != nil {
		d.log.Error("classifier unavailable, holding regime",
			logger.String("symbol", signals.Symbol),
			logger.Error(err))
		d.metrics.RecordError("classifier")
		d.mu.Lock()
		held := &models.RegimeClassification{
			Regime:     d.confirmed,
			Confidence: 0,
			Timestamp:  d.now(),
			Reasoning:  "classifier unavailable, holding last confirmed regime",
			Signals:    signals,
		}
		d.mu.Unlock()
		return held, nil
	}

	d.UpdateAndConfirm(ctx, c)

	if d.store != nil {
		if err := d.store.SaveClassification(ctx, signals.Symbol, c); err != nil {
			d.log.Warn("classification history write failed", logger.Error(err))
		}
	}
	return c, nil
}

// UpdateAndConfirm advances the hysteresis state machine with one
// classification. It reports whether the confirmed regime changed and
// why the state moved the way it did.
func (d *RegimeDetector) UpdateAndConfirm(ctx context.Context, c *models.RegimeClassification) (bool, string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.appendHistory(c)

	if d.inEventLockLocked(d.now()) {
		// History keeps accumulating but streaks are frozen.
		return false, "event lock active, confirmation frozen"
	}

	switch {
	case c.Regime != d.confirmed && c.Regime != models.RegimeUnknown && c.Confidence >= d.cfg.EnterThreshold:
		if c.Regime == d.candidate {
			d.candidateStreak++
		} else {
			d.candidate = c.Regime
			d.candidateStreak = 1
		}
		d.exitStreak = 0
		if d.candidateStreak >= d.cfg.ConfirmationCycles {
			next := d.candidate
			d.promoteLocked(ctx, next, c.Confidence)
			return true, fmt.Sprintf("%s confirmed after %d qualifying cycles", next, d.cfg.ConfirmationCycles)
		}
		return false, fmt.Sprintf("%s streak %d/%d", d.candidate, d.candidateStreak, d.cfg.ConfirmationCycles)

	case c.Regime == d.confirmed && d.confirmed != models.RegimeUnknown && c.Confidence <= d.cfg.ExitThreshold:
		d.exitStreak++
		d.candidate = ""
		d.candidateStreak = 0
		if d.exitStreak >= d.cfg.ConfirmationCycles {
			prev := d.confirmed
			d.promoteLocked(ctx, models.RegimeUnknown, c.Confidence)
			return true, fmt.Sprintf("%s released after %d low-confidence cycles", prev, d.cfg.ConfirmationCycles)
		}
		return false, fmt.Sprintf("exit streak %d/%d for %s", d.exitStreak, d.cfg.ConfirmationCycles, d.confirmed)

	default:
		// Neither threshold crossed with conviction: streaks reset.
		d.candidate = ""
		d.candidateStreak = 0
		d.exitStreak = 0
		return false, "no threshold crossed, streaks reset"
	}
}

func (d *RegimeDetector) promoteLocked(ctx context.Context, next models.Regime, confidence float64) {
	prev := d.confirmed
	d.confirmed = next
	d.confirmedAt = d.now()
	d.candidate = ""
	d.candidateStreak = 0
	d.exitStreak = 0

	d.metrics.RecordRegimeChange()
	d.log.Info("regime confirmed",
		logger.String("from", string(prev)),
		logger.String("to", string(next)),
		logger.Any("confidence", confidence))

	if d.publisher != nil {
		payload := map[string]interface{}{
			"from":       string(prev),
			"to":         string(next),
			"confidence": confidence,
			"at":         d.confirmedAt,
		}
		if err := d.publisher.PublishAudit(ctx, "regime_change", payload); err != nil {
			d.log.Warn("regime change audit publish failed", logger.Error(err))
		}
	}
}

// Current returns the confirmed regime and when it was confirmed.
func (d *RegimeDetector) Current() (models.Regime, time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.confirmed, d.confirmedAt
}

// History returns up to n most recent classifications, newest last.
func (d *RegimeDetector) History(n int) []*models.RegimeClassification {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n <= 0 || n > len(d.history) {
		n = len(d.history)
	}
	out := make([]*models.RegimeClassification, n)
	copy(out, d.history[len(d.history)-n:])
	return out
}

// SetMacroEvents replaces the scheduled event calendar.
func (d *RegimeDetector) SetMacroEvents(events []models.MacroEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = events
}

// AddMacroEvent appends one scheduled event, dropping stale ones.
func (d *RegimeDetector) AddMacroEvent(ev models.MacroEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	kept := d.events[:0]
	cutoff := d.now().Add(-d.cfg.EventLockLag)
	for _, e := range d.events {
		if e.At.After(cutoff) {
			kept = append(kept, e)
		}
	}
	d.events = append(kept, ev)
}

// InEventLock reports whether t falls inside any event lock window.
func (d *RegimeDetector) InEventLock(t time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inEventLockLocked(t)
}

func (d *RegimeDetector) inEventLockLocked(t time.Time) bool {
	for _, ev := range d.events {
		if !t.Before(ev.At.Add(-d.cfg.EventLockLead)) && !t.After(ev.At.Add(d.cfg.EventLockLag)) {
			return true
		}
	}
	return false
}

func (d *RegimeDetector) appendHistory(c *models.RegimeClassification) {
	d.history = append(d.history, c)
	if len(d.history) > d.cfg.HistorySize {
		d.history = d.history[len(d.history)-d.cfg.HistorySize:]
	}
}

// SetClock overrides the time source in tests.
func (d *RegimeDetector) SetClock(now func() time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.now = now
}
