package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PerpHelm/internal/domain/models"
	"PerpHelm/pkg/logger"
	"PerpHelm/pkg/metrics"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stdout"})
	require.NoError(t, err)
	return l
}

// scriptedClassifier returns pre-baked verdicts in order.
type scriptedClassifier struct {
	verdicts []*models.RegimeClassification
	errs     []error
	calls    int
}

func (c *scriptedClassifier) Classify(_ context.Context, s *models.RegimeSignals) (*models.RegimeClassification, error) {
	i := c.calls
	c.calls++
	if i < len(c.errs) && c.errs[i] != nil {
		return nil, c.errs[i]
	}
	v := c.verdicts[i]
	v.Signals = s
	return v, nil
}

func verdict(r models.Regime, conf float64) *models.RegimeClassification {
	return &models.RegimeClassification{Regime: r, Confidence: conf, Timestamp: time.Now()}
}

func newTestDetector(t *testing.T, cls *scriptedClassifier) *RegimeDetector {
	t.Helper()
	return NewRegimeDetector(cls, RegimeConfig{
		ConfirmationCycles: 3,
		EnterThreshold:     0.7,
		ExitThreshold:      0.4,
		HistorySize:        16,
		EventLockLead:      2 * time.Hour,
		EventLockLag:       time.Hour,
	}, nil, nil, metrics.New(), testLogger(t))
}

func TestRegimeConfirmsAfterConsecutiveHighConfidenceCycles(t *testing.T) {
	cls := &scriptedClassifier{verdicts: []*models.RegimeClassification{
		verdict(models.RegimeTrendingBull, 0.8),
		verdict(models.RegimeTrendingBull, 0.75),
		verdict(models.RegimeTrendingBull, 0.72),
	}}
	d := newTestDetector(t, cls)
	signals := &models.RegimeSignals{Symbol: "BTC-PERP"}

	for i := 0; i < 2; i++ {
		_, err := d.ClassifyRegime(context.Background(), signals)
		require.NoError(t, err)
		current, _ := d.Current()
		assert.Equal(t, models.RegimeUnknown, current, "cycle %d must not confirm yet", i+1)
	}

	_, err := d.ClassifyRegime(context.Background(), signals)
	require.NoError(t, err)
	current, _ := d.Current()
	assert.Equal(t, models.RegimeTrendingBull, current, "third consecutive cycle confirms")
}

func TestRegimeStreakBrokenByLowConfidenceCycle(t *testing.T) {
	cls := &scriptedClassifier{verdicts: []*models.RegimeClassification{
		verdict(models.RegimeTrendingBull, 0.8),
		verdict(models.RegimeTrendingBull, 0.75),
		verdict(models.RegimeTrendingBull, 0.3),
	}}
	d := newTestDetector(t, cls)
	signals := &models.RegimeSignals{Symbol: "BTC-PERP"}

	for i := 0; i < 3; i++ {
		_, err := d.ClassifyRegime(context.Background(), signals)
		require.NoError(t, err)
	}
	current, _ := d.Current()
	assert.Equal(t, models.RegimeUnknown, current, "broken streak must not confirm")
}

func TestRegimeExitsOnlyAfterSustainedLowConfidence(t *testing.T) {
	d := newTestDetector(t, &scriptedClassifier{})

	for i := 0; i < 3; i++ {
		d.UpdateAndConfirm(context.Background(), verdict(models.RegimeRangeBound, 0.8))
	}
	current, _ := d.Current()
	require.Equal(t, models.RegimeRangeBound, current)

	// Two low-confidence cycles are not enough.
	d.UpdateAndConfirm(context.Background(), verdict(models.RegimeRangeBound, 0.3))
	d.UpdateAndConfirm(context.Background(), verdict(models.RegimeRangeBound, 0.35))
	current, _ = d.Current()
	assert.Equal(t, models.RegimeRangeBound, current)

	changed, reason := d.UpdateAndConfirm(context.Background(), verdict(models.RegimeRangeBound, 0.2))
	assert.True(t, changed)
	assert.Contains(t, reason, "released")
	current, _ = d.Current()
	assert.Equal(t, models.RegimeUnknown, current, "third low cycle releases the regime")
}

func TestEventLockFreezesConfirmationStreak(t *testing.T) {
	d := newTestDetector(t, &scriptedClassifier{})
	d.SetMacroEvents([]models.MacroEvent{{Name: "cpi", At: time.Now().Add(time.Hour)}})

	for i := 0; i < 5; i++ {
		d.UpdateAndConfirm(context.Background(), verdict(models.RegimeTrendingBear, 0.9))
	}
	current, _ := d.Current()
	assert.Equal(t, models.RegimeUnknown, current, "no confirmation inside the lock window")
	assert.Len(t, d.History(10), 5, "history still accumulates during the lock")

	// Outside the window the streak runs normally.
	d.SetMacroEvents(nil)
	for i := 0; i < 3; i++ {
		d.UpdateAndConfirm(context.Background(), verdict(models.RegimeTrendingBear, 0.9))
	}
	current, _ = d.Current()
	assert.Equal(t, models.RegimeTrendingBear, current)
}

func TestClassifierFailureHoldsConfirmedRegime(t *testing.T) {
	cls := &scriptedClassifier{
		verdicts: []*models.RegimeClassification{nil},
		errs:     []error{errors.New("upstream 503")},
	}
	d := newTestDetector(t, cls)

	for i := 0; i < 3; i++ {
		d.UpdateAndConfirm(context.Background(), verdict(models.RegimeCarryFriendly, 0.85))
	}
	current, _ := d.Current()
	require.Equal(t, models.RegimeCarryFriendly, current)

	held, err := d.ClassifyRegime(context.Background(), &models.RegimeSignals{Symbol: "BTC-PERP"})
	require.NoError(t, err, "classifier outage is not a caller error")
	assert.Equal(t, models.RegimeCarryFriendly, held.Regime)
	current, _ = d.Current()
	assert.Equal(t, models.RegimeCarryFriendly, current)
}
