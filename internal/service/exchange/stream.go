package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"PerpHelm/internal/domain/models"
	"PerpHelm/pkg/logger"
)

// StreamConfig configures the exchange WebSocket feed.
type StreamConfig struct {
	URL            string
	APIKey         string
	ReconnectDelay time.Duration
	PingInterval   time.Duration
	BufferSize     int
}

// Stream implements a MarketStream over the exchange mark-price feed.
// Start owns the connection: it reconnects on failure until the context
// ends, and drops ticks instead of blocking when the consumer lags.
type Stream struct {
	cfg StreamConfig
	log *logger.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	symbols []string

	ticks chan models.Tick
}

func NewStream(cfg StreamConfig, log *logger.Logger) *Stream {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 2000
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 20 * time.Second
	}
	return &Stream{
		cfg:   cfg,
		log:   log,
		ticks: make(chan models.Tick, cfg.BufferSize),
	}
}

// Subscribe records the symbols to request on every (re)connect.
func (s *Stream) Subscribe(symbols ...string) error {
	if len(symbols) == 0 {
		return fmt.Errorf("stream: no symbols to subscribe")
	}
	s.mu.Lock()
	s.symbols = append(s.symbols, symbols...)
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		return s.sendSubscriptions(conn, symbols)
	}
	return nil
}

// Ticks is the stream output channel, closed when Start returns.
func (s *Stream) Ticks() <-chan models.Tick { return s.ticks }

// Start connects and pumps ticks until ctx ends.
func (s *Stream) Start(ctx context.Context) error {
	defer close(s.ticks)

	for {
		if err := s.connect(ctx); err != nil {
			s.log.Warn("stream connect failed", logger.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.cfg.ReconnectDelay):
				continue
			}
		}

		err := s.pump(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Warn("stream disconnected, reconnecting",
			logger.Error(err),
			logger.Duration("delay", s.cfg.ReconnectDelay))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.ReconnectDelay):
		}
	}
}

func (s *Stream) connect(ctx context.Context) error {
	u := s.cfg.URL
	if s.cfg.APIKey != "" {
		u = fmt.Sprintf("%s?token=%s", s.cfg.URL, s.cfg.APIKey)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("stream dial: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	symbols := make([]string, len(s.symbols))
	copy(symbols, s.symbols)
	s.mu.Unlock()

	if err := s.sendSubscriptions(conn, symbols); err != nil {
		conn.Close()
		return err
	}
	s.log.Info("stream connected", logger.Strings("symbols", symbols))
	return nil
}

func (s *Stream) sendSubscriptions(conn *websocket.Conn, symbols []string) error {
	for _, sym := range symbols {
		msg := map[string]string{"type": "subscribe", "symbol": sym}
		if err := conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", sym, err)
		}
	}
	return nil
}

type tickFrame struct {
	Type string `json:"type"`
	Data []struct {
		S string  `json:"s"`
		P float64 `json:"p"`
		V float64 `json:"v"`
		T int64   `json:"t"` // ms
	} `json:"data"`
}

func (s *Stream) pump(ctx context.Context) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("stream: not connected")
	}

	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	go func() {
		ticker := time.NewTicker(s.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-ticker.C:
				_ = conn.WriteMessage(websocket.PingMessage, nil)
			}
		}
	}()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, b, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("stream read: %w", err)
		}

		var frame tickFrame
		if err := json.Unmarshal(b, &frame); err != nil {
			// ignore non-tick frames
			continue
		}
		if frame.Type != "trade" {
			continue
		}
		for _, d := range frame.Data {
			tick := models.Tick{
				Symbol:    d.S,
				Timestamp: d.T / 1000,
				Price:     d.P,
				Volume:    d.V,
			}
			select {
			case s.ticks <- tick:
			default:
				// drop on backpressure
			}
		}
	}
}

// Close tears down the connection.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}
