package pricefeed

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// DecodeFunc parses one venue-specific ticker message into a pair and a
// price. It returns an error for messages that are not tickers, such as
// heartbeats; those are skipped, not treated as feed failures.
type DecodeFunc func(msg []byte) (pair string, price decimal.Decimal, err error)

// FeedConfig configures a websocket-backed price feed.
type FeedConfig struct {
	// URL is the venue's websocket endpoint.
	URL string

	// Subscribe is an optional message written after each (re)connect.
	Subscribe []byte

	// Decode parses incoming messages.
	Decode DecodeFunc

	// Log is the structured logger. Required.
	Log *slog.Logger

	// ReadTimeout bounds waiting for the next message before the
	// connection is considered dead.
	ReadTimeout time.Duration

	// PingInterval is how often a ping frame is written. Zero disables
	// pings.
	PingInterval time.Duration
}

// Feed keeps the latest reference price per pair from a websocket ticker
// stream. It reconnects with exponential backoff and implements Source.
type Feed struct {
	cfg FeedConfig

	mu     sync.RWMutex
	conn   *websocket.Conn
	quotes map[string]Quote

	writeMu sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewFeed creates a feed. Start must be called before prices flow.
func NewFeed(cfg FeedConfig) (*Feed, error) {
	if cfg.URL == "" || cfg.Decode == nil || cfg.Log == nil {
		return nil, fmt.Errorf("pricefeed: url, decode and log are required")
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	return &Feed{
		cfg:    cfg,
		quotes: make(map[string]Quote),
	}, nil
}

// Price returns the latest observed quote for a pair.
func (f *Feed) Price(pair string) (Quote, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	q, ok := f.quotes[pair]
	return q, ok
}

// Start begins the connection loop in the background.
func (f *Feed) Start(ctx context.Context) {
	ctx, f.cancel = context.WithCancel(ctx)
	f.wg.Add(1)
	go f.runLoop(ctx)
}

// Stop terminates the feed and waits for the loop to exit.
func (f *Feed) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
	f.close()
	f.wg.Wait()
}

func (f *Feed) runLoop(ctx context.Context) {
	defer f.wg.Done()
	retry := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := f.connect(ctx); err != nil {
			delay := backoff(retry)
			f.cfg.Log.Warn("price feed connection failed",
				"url", f.cfg.URL, "err", err, "retry", retry, "backoff", delay)
			retry++

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}

		retry = 0
		f.process(ctx)
	}
}

func (f *Feed) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.cfg.URL, http.Header{})
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()

	if len(f.cfg.Subscribe) > 0 {
		if err := f.write(websocket.TextMessage, f.cfg.Subscribe); err != nil {
			f.close()
			return fmt.Errorf("subscribe failed: %w", err)
		}
	}

	if f.cfg.PingInterval > 0 {
		go f.pingLoop(ctx)
	}

	f.cfg.Log.Info("price feed connected", "url", f.cfg.URL)
	return nil
}

func (f *Feed) process(ctx context.Context) {
	for {
		f.mu.RLock()
		c := f.conn
		f.mu.RUnlock()
		if c == nil {
			return
		}

		c.SetReadDeadline(time.Now().Add(f.cfg.ReadTimeout)) //nolint:errcheck
		_, msg, err := c.ReadMessage()
		if err != nil {
			f.cfg.Log.Warn("price feed read error", "err", err)
			f.close()
			return
		}

		pair, price, err := f.cfg.Decode(msg)
		if err != nil {
			continue
		}

		f.mu.Lock()
		f.quotes[pair] = Quote{Pair: pair, Price: price, At: time.Now()}
		f.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (f *Feed) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(f.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.mu.RLock()
			c := f.conn
			f.mu.RUnlock()
			if c == nil {
				return
			}
			if err := f.write(websocket.PingMessage, nil); err != nil {
				f.cfg.Log.Warn("price feed ping error", "err", err)
				f.close()
				return
			}
		}
	}
}

func (f *Feed) write(msgType int, data []byte) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	f.mu.RLock()
	c := f.conn
	f.mu.RUnlock()

	if c == nil {
		return fmt.Errorf("price feed not connected")
	}
	return c.WriteMessage(msgType, data)
}

func (f *Feed) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
}

// backoff returns the reconnect delay for the given retry count, capped
// at 30 seconds.
func backoff(retry int) time.Duration {
	d := time.Second << uint(min(retry, 5))
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}
