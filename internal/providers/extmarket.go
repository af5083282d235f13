package providers

import (
	"context"
	"time"

	"PerpHelm/internal/domain/models"
	"PerpHelm/internal/domain/repository"
	"PerpHelm/internal/domain/service"
	httpclient "PerpHelm/pkg/http"
)

// ExtMarketSource fetches macro context from external markets: dollar
// index, equity vol and gold, used to condition regime classification.
type ExtMarketSource struct {
	httpSource
}

func NewExtMarketSource(baseURL string, client *httpclient.Client) *ExtMarketSource {
	return &ExtMarketSource{httpSource: newHTTPSource("extmarket", baseURL, client)}
}

func (s *ExtMarketSource) Timescales() []repository.Timescale {
	return []repository.Timescale{repository.TimescaleMedium, repository.TimescaleSlow}
}

type extMarketResponse struct {
	DXY          float64 `json:"dxy"`
	DXYChangePct float64 `json:"dxy_change_pct"`
	VIX          float64 `json:"vix"`
	SPXChangePct float64 `json:"spx_change_pct"`
	GoldPrice    float64 `json:"gold_price"`
	UST10Y       float64 `json:"ust_10y_yield"`
}

func (s *ExtMarketSource) Fetch(ctx context.Context, req *service.FetchRequest) (*models.ProviderResponse, error) {
	var m extMarketResponse
	if err := s.getJSON(ctx, "/v1/macro", nil, &m); err != nil {
		return nil, err
	}

	return &models.ProviderResponse{
		Payload: map[string]float64{
			"dxy":            m.DXY,
			"dxy_change_pct": m.DXYChangePct,
			"vix":            m.VIX,
			"spx_change_pct": m.SPXChangePct,
			"gold_price":     m.GoldPrice,
			"ust_10y_yield":  m.UST10Y,
		},
		Timestamp:  time.Now(),
		Confidence: 1.0,
	}, nil
}
