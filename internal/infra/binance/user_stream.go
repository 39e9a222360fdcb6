package binance

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"scalper_go/internal/event"
)

// keepaliveInterval is well inside the 60 minute listen key lifetime.
const keepaliveInterval = 30 * time.Minute

// ListenKeys manages account stream listen keys. Implemented by *Client.
type ListenKeys interface {
	StartUserStream(ctx context.Context) (string, error)
	KeepaliveUserStream(ctx context.Context, key string) error
	CloseUserStream(ctx context.Context, key string) error
}

// EventDeliver hands an account event to the sequencer, blocking until accepted.
type EventDeliver func(ctx context.Context, ev event.Event) error

// UserStream follows the account stream: balances and execution reports.
type UserStream struct {
	*stream
	keys    ListenKeys
	deliver EventDeliver
	wsURL   string

	keyMu sync.Mutex
	key   string
}

// NewUserStream creates the account stream worker. A fresh listen key is taken on every dial.
func NewUserStream(wsURL string, keys ListenKeys, deliver EventDeliver, metrics StreamMetrics) *UserStream {
	u := &UserStream{
		keys:    keys,
		deliver: deliver,
		wsURL:   strings.TrimRight(wsURL, "/"),
	}
	u.stream = newStream("account", u.resolve, u.handleMessage, metrics)
	return u
}

// Connect starts the connection loop and the listen key keepalive.
func (u *UserStream) Connect(ctx context.Context) error {
	if err := u.stream.Connect(ctx); err != nil {
		return err
	}
	u.wg.Add(1)
	go u.keepaliveLoop(u.stream.ctx)
	return nil
}

// Disconnect stops the stream and releases the listen key.
func (u *UserStream) Disconnect() {
	u.stream.Disconnect()

	u.keyMu.Lock()
	key := u.key
	u.key = ""
	u.keyMu.Unlock()
	if key == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := u.keys.CloseUserStream(ctx, key); err != nil {
		u.logger.Debug("Listen key close failed", slog.Any("error", err))
	}
}

func (u *UserStream) resolve(ctx context.Context) (string, error) {
	key, err := u.keys.StartUserStream(ctx)
	if err != nil {
		return "", err
	}
	u.keyMu.Lock()
	u.key = key
	u.keyMu.Unlock()
	return u.wsURL + "/ws/" + key, nil
}

func (u *UserStream) keepaliveLoop(ctx context.Context) {
	defer u.wg.Done()
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			u.keyMu.Lock()
			key := u.key
			u.keyMu.Unlock()
			if key == "" {
				continue
			}
			if err := u.keys.KeepaliveUserStream(ctx, key); err != nil {
				// A dead key stops delivering events; redial with a new one.
				u.logger.Warn("Listen key keepalive failed", slog.Any("error", err))
				u.closeConnection()
			}
		}
	}
}

func (u *UserStream) handleMessage(ctx context.Context, msg []byte) {
	ev, err := decodeUserEvent(msg)
	if err != nil {
		u.logger.Warn("Undecodable account event", slog.Any("error", err), slog.String("payload", string(msg)))
		return
	}
	if ev == nil {
		return
	}
	if err := u.deliver(ctx, ev); err != nil {
		u.logger.Warn("Account event not delivered", slog.Any("type", ev.GetType()), slog.Any("error", err))
	}
}
