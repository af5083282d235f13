package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"PerpHelm/internal/domain/models"
	"PerpHelm/pkg/clickhouse"
)

var historySchema = []string{
	`CREATE TABLE IF NOT EXISTS regime_classifications (
		symbol      LowCardinality(String),
		regime      LowCardinality(String),
		confidence  Float64,
		reasoning   String,
		ts          DateTime64(3)
	) ENGINE = MergeTree()
	PARTITION BY toYYYYMM(ts)
	ORDER BY (symbol, ts)
	TTL toDateTime(ts) + INTERVAL 90 DAY`,

	`CREATE TABLE IF NOT EXISTS plan_post_mortems (
		plan_id      String,
		summary      String,
		final        String,
		finalized_at DateTime64(3)
	) ENGINE = MergeTree()
	ORDER BY (finalized_at)`,
}

// ClickHouseHistoryStore persists classification history and plan
// post-mortems for offline analysis.
type ClickHouseHistoryStore struct {
	client *clickhouse.Client
}

func NewClickHouseHistoryStore(ctx context.Context, client *clickhouse.Client) (*ClickHouseHistoryStore, error) {
	if err := client.InitSchema(ctx, historySchema); err != nil {
		return nil, fmt.Errorf("history schema: %w", err)
	}
	return &ClickHouseHistoryStore{client: client}, nil
}

func (s *ClickHouseHistoryStore) SaveClassification(ctx context.Context, symbol string, c *models.RegimeClassification) error {
	_, err := s.client.DB().ExecContext(ctx,
		`INSERT INTO regime_classifications (symbol, regime, confidence, reasoning, ts) VALUES (?, ?, ?, ?, ?)`,
		symbol, string(c.Regime), c.Confidence, c.Reasoning, c.Timestamp)
	if err != nil {
		return fmt.Errorf("insert classification: %w", err)
	}
	return nil
}

func (s *ClickHouseHistoryStore) SavePostMortem(ctx context.Context, pm *models.PostMortem) error {
	final, err := json.Marshal(pm.Final)
	if err != nil {
		return fmt.Errorf("marshal final metrics: %w", err)
	}
	_, err = s.client.DB().ExecContext(ctx,
		`INSERT INTO plan_post_mortems (plan_id, summary, final, finalized_at) VALUES (?, ?, ?, ?)`,
		pm.PlanID, pm.Summary, string(final), pm.FinalizedAt)
	if err != nil {
		return fmt.Errorf("insert post-mortem: %w", err)
	}
	return nil
}

func (s *ClickHouseHistoryStore) RecentClassifications(ctx context.Context, symbol string, limit int) ([]*models.RegimeClassification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.client.DB().QueryContext(ctx,
		`SELECT regime, confidence, reasoning, ts
		 FROM regime_classifications
		 WHERE symbol = ?
		 ORDER BY ts DESC
		 LIMIT ?`,
		symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("query classifications: %w", err)
	}
	defer rows.Close()

	var out []*models.RegimeClassification
	for rows.Next() {
		var c models.RegimeClassification
		var regime string
		if err := rows.Scan(&regime, &c.Confidence, &c.Reasoning, &c.Timestamp); err != nil {
			return nil, fmt.Errorf("scan classification: %w", err)
		}
		c.Regime = models.Regime(regime)
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *ClickHouseHistoryStore) Close() error {
	return s.client.Close()
}

// NopHistoryStore is used when ClickHouse is disabled.
type NopHistoryStore struct{}

func (NopHistoryStore) SaveClassification(context.Context, string, *models.RegimeClassification) error {
	return nil
}
func (NopHistoryStore) SavePostMortem(context.Context, *models.PostMortem) error { return nil }
func (NopHistoryStore) RecentClassifications(context.Context, string, int) ([]*models.RegimeClassification, error) {
	return nil, nil
}
func (NopHistoryStore) Close() error { return nil }
