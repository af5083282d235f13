package providers

import (
	"context"
	"time"

	"PerpHelm/internal/domain/models"
	"PerpHelm/internal/domain/repository"
	"PerpHelm/internal/domain/service"
	httpclient "PerpHelm/pkg/http"
)

// OnChainSource fetches on-chain flow metrics: exchange netflow,
// stablecoin supply movement and whale transfer counts.
type OnChainSource struct {
	httpSource
}

func NewOnChainSource(baseURL string, client *httpclient.Client) *OnChainSource {
	return &OnChainSource{httpSource: newHTTPSource("onchain", baseURL, client)}
}

// Timescales: chain data moves too slowly for the fast loop.
func (s *OnChainSource) Timescales() []repository.Timescale {
	return []repository.Timescale{repository.TimescaleMedium, repository.TimescaleSlow}
}

type onchainFlowResponse struct {
	Asset               string  `json:"asset"`
	ExchangeNetflow     float64 `json:"exchange_netflow"`
	StablecoinNetSupply float64 `json:"stablecoin_net_supply_change"`
	WhaleTransferCount  float64 `json:"whale_transfer_count"`
	ActiveAddresses     float64 `json:"active_addresses"`
	BlockTimestamp      int64   `json:"block_timestamp"`
}

func (s *OnChainSource) Fetch(ctx context.Context, req *service.FetchRequest) (*models.ProviderResponse, error) {
	var f onchainFlowResponse
	err := s.getJSON(ctx, "/v1/flows", map[string][]string{
		"asset": {req.Symbol},
	}, &f)
	if err != nil {
		return nil, err
	}

	ts := time.Now()
	confidence := 1.0
	if f.BlockTimestamp > 0 {
		// On-chain data lags by block time; confidence decays with lag.
		lag := time.Since(time.Unix(f.BlockTimestamp, 0))
		if lag > 10*time.Minute {
			confidence = 0.5
		}
	}

	return &models.ProviderResponse{
		Payload: map[string]float64{
			"exchange_netflow":      f.ExchangeNetflow,
			"stablecoin_net_supply": f.StablecoinNetSupply,
			"whale_transfer_count":  f.WhaleTransferCount,
			"active_addresses":      f.ActiveAddresses,
		},
		Timestamp:  ts,
		Confidence: confidence,
	}, nil
}
