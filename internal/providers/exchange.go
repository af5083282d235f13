package providers

import (
	"context"
	"time"

	"PerpHelm/internal/domain/models"
	"PerpHelm/internal/domain/repository"
	"PerpHelm/internal/domain/service"
	httpclient "PerpHelm/pkg/http"
)

// ExchangeSource fetches perp market state from the exchange REST API:
// mark price, funding, open interest and order book imbalance.
type ExchangeSource struct {
	httpSource
}

func NewExchangeSource(baseURL string, client *httpclient.Client) *ExchangeSource {
	return &ExchangeSource{httpSource: newHTTPSource("exchange", baseURL, client)}
}

// Timescales: the exchange feed backs every loop.
func (s *ExchangeSource) Timescales() []repository.Timescale {
	return []repository.Timescale{repository.TimescaleFast, repository.TimescaleMedium, repository.TimescaleSlow}
}

type exchangeMarketResponse struct {
	Symbol             string  `json:"symbol"`
	MarkPrice          float64 `json:"mark_price"`
	IndexPrice         float64 `json:"index_price"`
	FundingRate        float64 `json:"funding_rate"`
	NextFundingAt      int64   `json:"next_funding_time"`
	OpenInterest       float64 `json:"open_interest"`
	Volume24h          float64 `json:"volume_24h"`
	PriceChange24hPct  float64 `json:"price_change_24h_pct"`
	BidDepth           float64 `json:"bid_depth"`
	AskDepth           float64 `json:"ask_depth"`
}

func (s *ExchangeSource) Fetch(ctx context.Context, req *service.FetchRequest) (*models.ProviderResponse, error) {
	var m exchangeMarketResponse
	err := s.getJSON(ctx, "/v1/market", map[string][]string{
		"symbol": {req.Symbol},
	}, &m)
	if err != nil {
		return nil, err
	}

	imbalance := 0.0
	if total := m.BidDepth + m.AskDepth; total > 0 {
		imbalance = (m.BidDepth - m.AskDepth) / total
	}
	basisBps := 0.0
	if m.IndexPrice > 0 {
		basisBps = (m.MarkPrice - m.IndexPrice) / m.IndexPrice * 10000
	}

	return &models.ProviderResponse{
		Payload: map[string]float64{
			"mark_price":           m.MarkPrice,
			"index_price":          m.IndexPrice,
			"funding_rate_bps":     m.FundingRate * 10000,
			"open_interest":        m.OpenInterest,
			"volume_24h":           m.Volume24h,
			"price_change_24h_pct": m.PriceChange24hPct,
			"orderbook_imbalance":  imbalance,
			"basis_bps":            basisBps,
		},
		Timestamp:  time.Now(),
		Confidence: 1.0,
	}, nil
}
