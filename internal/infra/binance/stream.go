package binance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"scalper_go/internal/infra"

	"github.com/gorilla/websocket"
)

const (
	maxRetries   = 10
	pingInterval = 30 * time.Second
	readTimeout  = 60 * time.Second
	writeTimeout = 5 * time.Second
)

// StreamMetrics is the slice of *infra.Metrics the stream workers report to.
type StreamMetrics interface {
	RecordReconnect(stream string)
	IncrementConnections()
	DecrementConnections()
}

type nopStreamMetrics struct{}

func (nopStreamMetrics) RecordReconnect(string) {}
func (nopStreamMetrics) IncrementConnections()  {}
func (nopStreamMetrics) DecrementConnections()  {}

// stream owns one websocket connection and keeps it alive: dial, read until
// error, back off, redial. The URL is resolved on every dial.
type stream struct {
	name    string
	resolve func(ctx context.Context) (string, error)
	handle  func(ctx context.Context, msg []byte)
	metrics StreamMetrics
	logger  *slog.Logger

	conn      *websocket.Conn
	mu        sync.RWMutex
	writeMu   sync.Mutex
	connected bool
	ctx       context.Context // cancelled by Disconnect
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func newStream(name string, resolve func(context.Context) (string, error), handle func(context.Context, []byte), metrics StreamMetrics) *stream {
	if metrics == nil {
		metrics = nopStreamMetrics{}
	}
	return &stream{
		name:    name,
		resolve: resolve,
		handle:  handle,
		metrics: metrics,
		logger:  slog.Default().With("module", "binance_"+name),
	}
}

// Connect starts the connection loop in the background.
func (s *stream) Connect(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.connectionLoop(s.ctx)
	return nil
}

func (s *stream) connectionLoop(ctx context.Context) {
	defer s.wg.Done()
	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := s.connect(ctx); err != nil {
			s.logger.Warn("Connection failed", slog.Any("error", err), slog.Int("retry", retryCount))
			retryCount++
			if retryCount > maxRetries {
				retryCount = maxRetries
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(infra.CalculateBackoff(retryCount)):
			}
			continue
		}

		retryCount = 0
		s.readLoop(ctx)
		if ctx.Err() == nil {
			s.metrics.RecordReconnect(s.name)
		}
	}
}

func (s *stream) connect(ctx context.Context) error {
	url, err := s.resolve(ctx)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.name, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()
	s.metrics.IncrementConnections()

	go s.pingLoop(ctx, conn)
	s.logger.Info("Connected")
	return nil
}

func (s *stream) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.RLock()
			current := s.conn == conn
			s.mu.RUnlock()
			if !current {
				return
			}
			s.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			s.writeMu.Unlock()
			if err != nil {
				s.logger.Debug("Ping failed", slog.Any("error", err))
			}
		}
	}
}

func (s *stream) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.closeConnection()
			return
		default:
		}

		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()
		if conn == nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("Read failed, reconnecting", slog.Any("error", err))
			}
			s.closeConnection()
			return
		}
		s.handle(ctx, msg)
	}
}

func (s *stream) closeConnection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
		s.metrics.DecrementConnections()
	}
	s.connected = false
}

// IsConnected reports whether a connection is currently open.
func (s *stream) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Disconnect stops the loop and waits for it to exit.
func (s *stream) Disconnect() {
	if s.cancel != nil {
		s.cancel()
	}
	s.closeConnection()
	s.wg.Wait()
}
