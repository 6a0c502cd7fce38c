package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"SentiGate/internal/domain/models"
	domrepo "SentiGate/internal/domain/repository"
	applogger "SentiGate/pkg/logger"
)

// CandleStream is a live source of closed OHLCV bars.
type CandleStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan models.MarketCandle, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Client streams exchange klines over WebSocket and emits one MarketCandle
// per closed bar. Open (still forming) bars are skipped so downstream only
// ever sees final values.
type Client struct {
	websocketURL   string
	instruments    []string
	timeframe      string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *applogger.Logger

	conn *websocket.Conn

	// read concurrently by the health check, hence atomic
	connected atomic.Bool
}

// New creates a kline stream client. Unknown timeframes fall back to the
// default bucket rather than failing startup.
func New(websocketURL string, instruments []string, timeframe string, reconnectDelay, pingInterval time.Duration, log *applogger.Logger) CandleStream {
	return &Client{
		websocketURL:   websocketURL,
		instruments:    instruments,
		timeframe:      string(domrepo.NormalizeTimeframe(timeframe)),
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		log:            log,
	}
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.websocketURL, nil)
	if err != nil {
		return fmt.Errorf("feed connect: %w", err)
	}
	c.conn = conn
	c.connected.Store(true)
	c.log.Info("feed connected", applogger.String("url", c.websocketURL))
	return nil
}

// Subscribe subscribes to the kline channel of every configured instrument.
func (c *Client) Subscribe(ctx context.Context) error {
	if c.conn == nil || !c.connected.Load() {
		return fmt.Errorf("feed not connected")
	}
	for _, id := range c.instruments {
		msg := map[string]interface{}{
			"op":   "subscribe",
			"args": []string{fmt.Sprintf("kline.%s.%s", c.timeframe, strings.ToUpper(id))},
		}
		if err := c.conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", id, err)
		}
		c.log.Info("feed subscribed",
			applogger.String("instrument", id),
			applogger.String("timeframe", c.timeframe))
	}
	return nil
}

type klineFrame struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
	Kline  struct {
		OpenMillis int64   `json:"t"`
		Open       float64 `json:"o,string"`
		High       float64 `json:"h,string"`
		Low        float64 `json:"l,string"`
		Close      float64 `json:"c,string"`
		Volume     float64 `json:"v,string"`
		Closed     bool    `json:"x"`
	} `json:"k"`
}

// Read streams closed candles and errors. Both channels close when the read
// loop ends.
func (c *Client) Read(ctx context.Context) (<-chan models.MarketCandle, <-chan error) {
	candles := make(chan models.MarketCandle, 256)
	errs := make(chan error, 1)

	// ping loop
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if c.conn != nil {
					_ = c.conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()

	// read loop
	go func() {
		defer close(candles)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if c.conn == nil {
					errs <- fmt.Errorf("feed conn nil")
					return
				}
				_, b, err := c.conn.ReadMessage()
				if err != nil {
					errs <- fmt.Errorf("feed read: %w", err)
					return
				}
				var f klineFrame
				if err := json.Unmarshal(b, &f); err != nil {
					// non-kline frames (acks, heartbeats) are ignored
					continue
				}
				if f.Type != "kline" || !f.Kline.Closed {
					continue
				}
				candle := models.MarketCandle{
					InstrumentID: f.Symbol,
					Timeframe:    c.timeframe,
					OpenTime:     time.UnixMilli(f.Kline.OpenMillis).UTC(),
					Open:         f.Kline.Open,
					High:         f.Kline.High,
					Low:          f.Kline.Low,
					Close:        f.Kline.Close,
					Volume:       f.Kline.Volume,
				}
				select {
				case candles <- candle:
				default:
					// drop on backpressure
				}
			}
		}
	}()

	return candles, errs
}

// Reconnect closes and re-establishes the stream.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	time.Sleep(c.reconnectDelay)
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.connected.Store(false)
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool { return c.connected.Load() }
