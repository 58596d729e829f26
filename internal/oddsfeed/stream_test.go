package oddsfeed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btrhorseinf-hub/horse-racing-inf/internal/config"
)

var raceDate = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

// feedServer is a scripted websocket endpoint. The script runs once per
// accepted connection with its 1-based index.
type feedServer struct {
	*httptest.Server
	mu    sync.Mutex
	conns int
}

func newFeedServer(t *testing.T, script func(connIndex int, conn *websocket.Conn)) *feedServer {
	t.Helper()

	fs := &feedServer{}
	upgrader := websocket.Upgrader{}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		fs.mu.Lock()
		fs.conns++
		index := fs.conns
		fs.mu.Unlock()

		script(index, conn)
	}))
	return fs
}

func (fs *feedServer) connCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.conns
}

func (fs *feedServer) wsURL() string {
	return "ws" + strings.TrimPrefix(fs.URL, "http")
}

// hold blocks until the peer closes the connection.
func hold(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

type updateCollector struct {
	mu      sync.Mutex
	updates []OddsUpdate
	signal  chan struct{}
}

func newCollector() *updateCollector {
	return &updateCollector{signal: make(chan struct{}, 16)}
}

func (c *updateCollector) handle(u OddsUpdate) error {
	c.mu.Lock()
	c.updates = append(c.updates, u)
	c.mu.Unlock()
	c.signal <- struct{}{}
	return nil
}

func (c *updateCollector) wait(t *testing.T, n int) []OddsUpdate {
	t.Helper()

	deadline := time.After(5 * time.Second)
	for {
		c.mu.Lock()
		count := len(c.updates)
		c.mu.Unlock()
		if count >= n {
			break
		}
		select {
		case <-c.signal:
		case <-deadline:
			t.Fatalf("timed out waiting for %d updates", n)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]OddsUpdate(nil), c.updates...)
}

func feedConfig(url string) *config.OddsFeedConfig {
	return &config.OddsFeedConfig{
		Enabled:          true,
		URL:              url,
		ReconnectRetries: 3,
	}
}

// TestSubscriberReceivesUpdates tests update dispatch in arrival order
func TestSubscriberReceivesUpdates(t *testing.T) {
	server := newFeedServer(t, func(index int, conn *websocket.Conn) {
		conn.WriteJSON(OddsUpdate{HorseName: "Golden Sixty", RaceDate: raceDate, WinOdds: 2.1})
		conn.WriteJSON(OddsUpdate{HorseName: "Romantic Warrior", RaceDate: raceDate, WinOdds: 5.8})
		hold(conn)
	})
	defer server.Close()

	sub := NewSubscriber(feedConfig(server.wsURL()), nil)
	collector := newCollector()
	sub.OnUpdate(collector.handle)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- sub.Run(ctx) }()

	updates := collector.wait(t, 2)
	require.Len(t, updates, 2)
	assert.Equal(t, "Golden Sixty", updates[0].HorseName)
	assert.Equal(t, 2.1, updates[0].WinOdds)
	assert.True(t, updates[0].RaceDate.Equal(raceDate))
	assert.Equal(t, "Romantic Warrior", updates[1].HorseName)
	assert.False(t, sub.LastMessageTime().IsZero())

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// TestSubscriberSkipsHeartbeatFrames tests that empty frames are not dispatched
func TestSubscriberSkipsHeartbeatFrames(t *testing.T) {
	server := newFeedServer(t, func(index int, conn *websocket.Conn) {
		conn.WriteJSON(OddsUpdate{})
		conn.WriteJSON(OddsUpdate{HorseName: "Golden Sixty", RaceDate: raceDate, WinOdds: 2.1})
		hold(conn)
	})
	defer server.Close()

	sub := NewSubscriber(feedConfig(server.wsURL()), nil)
	collector := newCollector()
	sub.OnUpdate(collector.handle)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- sub.Run(ctx) }()

	updates := collector.wait(t, 1)
	require.Len(t, updates, 1)
	assert.Equal(t, "Golden Sixty", updates[0].HorseName)

	cancel()
	<-errCh
}

// TestSubscriberHandlerErrorDoesNotStopStream tests handler fault isolation
func TestSubscriberHandlerErrorDoesNotStopStream(t *testing.T) {
	server := newFeedServer(t, func(index int, conn *websocket.Conn) {
		conn.WriteJSON(OddsUpdate{HorseName: "Golden Sixty", RaceDate: raceDate, WinOdds: 2.1})
		conn.WriteJSON(OddsUpdate{HorseName: "Romantic Warrior", RaceDate: raceDate, WinOdds: 5.8})
		hold(conn)
	})
	defer server.Close()

	sub := NewSubscriber(feedConfig(server.wsURL()), nil)
	sub.OnUpdate(func(OddsUpdate) error { return errors.New("boom") })
	collector := newCollector()
	sub.OnUpdate(collector.handle)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- sub.Run(ctx) }()

	updates := collector.wait(t, 2)
	assert.Len(t, updates, 2)

	cancel()
	<-errCh
}

// TestSubscriberReconnects tests reconnection after a dropped connection
func TestSubscriberReconnects(t *testing.T) {
	server := newFeedServer(t, func(index int, conn *websocket.Conn) {
		if index == 1 {
			conn.WriteJSON(OddsUpdate{HorseName: "Golden Sixty", RaceDate: raceDate, WinOdds: 2.1})
			return // drop the connection
		}
		conn.WriteJSON(OddsUpdate{HorseName: "Romantic Warrior", RaceDate: raceDate, WinOdds: 5.8})
		hold(conn)
	})
	defer server.Close()

	sub := NewSubscriber(feedConfig(server.wsURL()), nil)
	collector := newCollector()
	sub.OnUpdate(collector.handle)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- sub.Run(ctx) }()

	updates := collector.wait(t, 2)
	assert.Equal(t, "Golden Sixty", updates[0].HorseName)
	assert.Equal(t, "Romantic Warrior", updates[1].HorseName)
	assert.GreaterOrEqual(t, server.connCount(), 2)

	cancel()
	<-errCh
}

// TestSubscriberGivesUpAfterMaxRetries tests the reconnect retry bound
func TestSubscriberGivesUpAfterMaxRetries(t *testing.T) {
	cfg := feedConfig("ws://127.0.0.1:1")
	cfg.ReconnectRetries = 2

	sub := NewSubscriber(cfg, nil)
	sub.initialBackoff = time.Millisecond
	sub.maxBackoff = 2 * time.Millisecond

	err := sub.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "giving up after")
}

// TestSubscriberCanceledContext tests that a canceled context stops Run
func TestSubscriberCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sub := NewSubscriber(feedConfig("ws://127.0.0.1:1"), nil)
	err := sub.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
