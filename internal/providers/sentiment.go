package providers

import (
	"context"
	"time"

	"PerpHelm/internal/domain/models"
	"PerpHelm/internal/domain/repository"
	"PerpHelm/internal/domain/service"
	httpclient "PerpHelm/pkg/http"
)

// SentimentSource fetches aggregated crowd sentiment: fear/greed,
// social volume and funding-weighted positioning skew.
type SentimentSource struct {
	httpSource
}

func NewSentimentSource(baseURL string, client *httpclient.Client) *SentimentSource {
	return &SentimentSource{httpSource: newHTTPSource("sentiment", baseURL, client)}
}

func (s *SentimentSource) Timescales() []repository.Timescale {
	return []repository.Timescale{repository.TimescaleMedium, repository.TimescaleSlow}
}

type sentimentResponse struct {
	FearGreedIndex  float64 `json:"fear_greed_index"`
	SocialVolume    float64 `json:"social_volume"`
	SocialScore     float64 `json:"social_score"`
	LongShortRatio  float64 `json:"long_short_ratio"`
	SampleSize      int     `json:"sample_size"`
}

func (s *SentimentSource) Fetch(ctx context.Context, req *service.FetchRequest) (*models.ProviderResponse, error) {
	var r sentimentResponse
	err := s.getJSON(ctx, "/v1/sentiment", map[string][]string{
		"symbol": {req.Symbol},
	}, &r)
	if err != nil {
		return nil, err
	}

	// Small samples make the score noisy.
	confidence := 1.0
	if r.SampleSize < 50 {
		confidence = 0.6
	}

	return &models.ProviderResponse{
		Payload: map[string]float64{
			"fear_greed_index": r.FearGreedIndex,
			"social_volume":    r.SocialVolume,
			"social_score":     r.SocialScore,
			"long_short_ratio": r.LongShortRatio,
		},
		Timestamp:  time.Now(),
		Confidence: confidence,
	}, nil
}
