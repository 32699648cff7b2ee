package pricefeed

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticSource(t *testing.T) {
	s := NewStaticSource(map[string]decimal.Decimal{
		"X/USDC": decimal.RequireFromString("97.5"),
	})

	q, ok := s.Price("X/USDC")
	require.True(t, ok)
	assert.True(t, q.Price.Equal(decimal.RequireFromString("97.5")))

	_, ok = s.Price("Y/USDC")
	assert.False(t, ok)

	s.Set("Y/USDC", decimal.NewFromInt(3))
	q, ok = s.Price("Y/USDC")
	require.True(t, ok)
	assert.True(t, q.Price.Equal(decimal.NewFromInt(3)))
}

type tickerMsg struct {
	Pair  string `json:"pair"`
	Price string `json:"price"`
}

func decodeTicker(msg []byte) (string, decimal.Decimal, error) {
	var tick tickerMsg
	if err := json.Unmarshal(msg, &tick); err != nil {
		return "", decimal.Zero, err
	}
	price, err := decimal.NewFromString(tick.Price)
	return tick.Pair, price, err
}

func wsServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))
}

func TestFeed_TracksLatestPrice(t *testing.T) {
	server := wsServer(t, func(conn *websocket.Conn) {
		for _, price := range []string{"97.1", "97.9"} {
			data, _ := json.Marshal(tickerMsg{Pair: "X/USDC", Price: price})
			conn.WriteMessage(websocket.TextMessage, data) //nolint:errcheck
		}
		// Messages that do not decode are skipped.
		conn.WriteMessage(websocket.TextMessage, []byte(`{"op":"heartbeat"}`)) //nolint:errcheck
		time.Sleep(300 * time.Millisecond)
	})
	defer server.Close()

	feed, err := NewFeed(FeedConfig{
		URL:         strings.Replace(server.URL, "http://", "ws://", 1),
		Decode:      decodeTicker,
		Log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		ReadTimeout: 500 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	feed.Start(ctx)
	defer feed.Stop()

	require.Eventually(t, func() bool {
		q, ok := feed.Price("X/USDC")
		return ok && q.Price.Equal(decimal.RequireFromString("97.9"))
	}, time.Second, 10*time.Millisecond)
}

func TestFeed_RequiresConfig(t *testing.T) {
	_, err := NewFeed(FeedConfig{})
	require.Error(t, err)
}

func TestBackoffIsCapped(t *testing.T) {
	assert.Equal(t, time.Second, backoff(0))
	assert.Equal(t, 2*time.Second, backoff(1))
	assert.Equal(t, 30*time.Second, backoff(10))
}
