// Package oddsfeed subscribes to the live win-odds websocket stream.
package oddsfeed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/btrhorseinf-hub/horse-racing-inf/internal/config"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/metrics"
)

const (
	initialBackoff    = 1 * time.Second
	maxBackoff        = 30 * time.Second
	backoffMultiplier = 1.5
	handshakeTimeout  = 10 * time.Second
	writeWait         = 5 * time.Second
)

// OddsUpdate is one live win-odds change for a runner. RaceDate is the
// race day at midnight UTC.
type OddsUpdate struct {
	HorseName string    `json:"horse_name"`
	RaceDate  time.Time `json:"race_date"`
	WinOdds   float64   `json:"win_odds"`
}

// Handler is called for each received odds update.
type Handler func(update OddsUpdate) error

// Subscriber maintains the websocket connection to the odds feed, dispatching
// updates to registered handlers and reconnecting with backoff on failure.
type Subscriber struct {
	url        string
	maxRetries int
	heartbeat  time.Duration
	dialer     *websocket.Dialer
	logger     *logrus.Logger

	// backoff bounds, adjustable in tests
	initialBackoff time.Duration
	maxBackoff     time.Duration

	mu          sync.RWMutex
	conn        *websocket.Conn
	connected   bool
	handlers    []Handler
	lastMessage time.Time
}

// NewSubscriber creates an odds feed subscriber from configuration.
func NewSubscriber(cfg *config.OddsFeedConfig, logger *logrus.Logger) *Subscriber {
	if logger == nil {
		logger = logrus.New()
	}

	return &Subscriber{
		url:            cfg.URL,
		maxRetries:     cfg.ReconnectRetries,
		heartbeat:      time.Duration(cfg.HeartbeatSeconds) * time.Second,
		dialer:         &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		logger:         logger,
		initialBackoff: initialBackoff,
		maxBackoff:     maxBackoff,
	}
}

// OnUpdate registers a handler. Handlers run on the read loop goroutine in
// registration order; a handler error is logged and does not stop the stream.
func (s *Subscriber) OnUpdate(handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, handler)
}

// Run connects to the feed and dispatches updates until ctx is canceled.
// Connection failures reconnect with exponential backoff; after maxRetries
// consecutive failures Run gives up and returns the last error.
func (s *Subscriber) Run(ctx context.Context) error {
	retries := 0
	backoff := s.initialBackoff

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := s.connect(ctx)
		if err != nil {
			retries++
			if s.maxRetries > 0 && retries > s.maxRetries {
				return fmt.Errorf("odds feed: giving up after %d connection attempts: %w", retries, err)
			}

			s.logger.WithFields(logrus.Fields{
				"attempt": retries,
				"backoff": backoff,
			}).WithError(err).Warn("Odds feed connection failed, retrying")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}

			backoff = time.Duration(float64(backoff) * backoffMultiplier)
			if backoff > s.maxBackoff {
				backoff = s.maxBackoff
			}
			continue
		}

		retries = 0
		backoff = s.initialBackoff

		err = s.readLoop(ctx, conn)
		metrics.UpdateOddsFeedConnected(false)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.WithError(err).Warn("Odds feed disconnected, reconnecting")
	}
}

// IsConnected reports whether the feed connection is up.
func (s *Subscriber) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// LastMessageTime returns the time of the last received update.
func (s *Subscriber) LastMessageTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastMessage
}

// Close closes the current connection, if any. Run reconnects unless its
// context is already canceled.
func (s *Subscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	s.connected = false
	return s.conn.Close()
}

func (s *Subscriber) connect(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to odds feed: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()

	metrics.UpdateOddsFeedConnected(true)
	s.logger.WithField("url", s.url).Info("Connected to odds feed")
	return conn, nil
}

func (s *Subscriber) readLoop(ctx context.Context, conn *websocket.Conn) error {
	defer func() {
		s.mu.Lock()
		s.connected = false
		s.conn = nil
		s.mu.Unlock()
		conn.Close()
	}()

	// ReadJSON does not observe ctx; closing the connection unblocks it.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if s.heartbeat > 0 {
		go s.pingLoop(conn, done)
	}

	for {
		if s.heartbeat > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(2 * s.heartbeat)); err != nil {
				return err
			}
		}

		var update OddsUpdate
		if err := conn.ReadJSON(&update); err != nil {
			return err
		}

		s.mu.Lock()
		s.lastMessage = time.Now()
		handlers := s.handlers
		s.mu.Unlock()

		// Empty frames are server heartbeats.
		if update.HorseName == "" {
			continue
		}

		for _, handler := range handlers {
			if err := handler(update); err != nil {
				s.logger.WithFields(logrus.Fields{
					"horse_name": update.HorseName,
					"win_odds":   update.WinOdds,
				}).WithError(err).Error("Odds update handler failed")
			}
		}
	}
}

func (s *Subscriber) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
