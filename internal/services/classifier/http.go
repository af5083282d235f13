package classifier

import (
	"context"
	"fmt"
	"time"

	"PerpHelm/internal/domain/models"
	httpclient "PerpHelm/pkg/http"
	"PerpHelm/pkg/logger"
)

// HTTPClassifier calls an external classification service that scores
// a signal snapshot into a regime label with a confidence.
type HTTPClassifier struct {
	baseURL string
	client  *httpclient.Client
	log     *logger.Logger
}

func NewHTTPClassifier(baseURL string, client *httpclient.Client, log *logger.Logger) *HTTPClassifier {
	return &HTTPClassifier{
		baseURL: baseURL,
		client:  client,
		log:     log,
	}
}

type classifyRequest struct {
	Symbol  string             `json:"symbol"`
	Signals map[string]float64 `json:"signals"`
	AsOf    time.Time          `json:"as_of"`
}

type classifyResponse struct {
	Regime     string  `json:"regime"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

func (c *HTTPClassifier) Classify(ctx context.Context, signals *models.RegimeSignals) (*models.RegimeClassification, error) {
	req := classifyRequest{
		Symbol:  signals.Symbol,
		Signals: signals.Raw,
		AsOf:    signals.CollectedAt,
	}

	var resp classifyResponse
	err := c.client.SendAndParse(ctx, &httpclient.RequestOptions{
		Method: httpclient.MethodPost,
		URL:    c.baseURL + "/v1/classify",
		Body:   req,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("classify %s: %w", signals.Symbol, err)
	}

	regime := models.Regime(resp.Regime)
	if !models.IsValidRegime(regime) {
		c.log.Warn("classifier returned unknown regime label",
			logger.String("symbol", signals.Symbol),
			logger.String("regime", resp.Regime))
		regime = models.RegimeUnknown
	}
	if resp.Confidence < 0 {
		resp.Confidence = 0
	}
	if resp.Confidence > 1 {
		resp.Confidence = 1
	}

	return &models.RegimeClassification{
		Regime:     regime,
		Confidence: resp.Confidence,
		Timestamp:  time.Now(),
		Reasoning:  resp.Reasoning,
		Signals:    signals,
	}, nil
}
