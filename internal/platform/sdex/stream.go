package sdex

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"

	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/crypto"
	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/domain"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// StreamConfig configures the fill stream.
type StreamConfig struct {
	URL               string
	HandshakeTimeout  time.Duration
	MinReconnectDelay time.Duration
	MaxReconnectDelay time.Duration
}

// FillStream pushes venue fill notifications. It reconnects with jittered
// exponential backoff until its context is cancelled.
type FillStream struct {
	cfg      StreamConfig
	hmacAuth *crypto.HMACAuth
	logger   *slog.Logger
}

// NewFillStream creates a fill stream for cfg.URL.
func NewFillStream(cfg StreamConfig, hmac *crypto.HMACAuth, logger *slog.Logger) *FillStream {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 15 * time.Second
	}
	if cfg.MinReconnectDelay <= 0 {
		cfg.MinReconnectDelay = 2 * time.Second
	}
	if cfg.MaxReconnectDelay <= 0 {
		cfg.MaxReconnectDelay = 60 * time.Second
	}
	return &FillStream{
		cfg:      cfg,
		hmacAuth: hmac,
		logger:   logger.With(slog.String("component", "sdex_fill_stream")),
	}
}

// Run streams fills into out until ctx is done.
func (s *FillStream) Run(ctx context.Context, out chan<- domain.FillEvent) error {
	b := &backoff.Backoff{
		Min:    s.cfg.MinReconnectDelay,
		Max:    s.cfg.MaxReconnectDelay,
		Factor: 2,
		Jitter: true,
	}
	for {
		connected, err := s.runConnection(ctx, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			b.Reset()
		}
		delay := b.Duration()
		s.logger.Warn("fill stream disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// runConnection serves one websocket session. connected reports whether the
// subscription was established, which resets the reconnect backoff.
func (s *FillStream) runConnection(ctx context.Context, out chan<- domain.FillEvent) (connected bool, err error) {
	header := http.Header{}
	if s.hmacAuth != nil {
		for k, v := range s.hmacAuth.Headers(http.MethodGet, "/stream", "") {
			header.Set(k, v)
		}
	}
	dialer := websocket.Dialer{HandshakeTimeout: s.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, s.cfg.URL, header)
	if err != nil {
		return false, fmt.Errorf("sdex/ws: connect: %w", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(WSCommand{Type: "subscribe", Channel: "fills"}); err != nil {
		return false, fmt.Errorf("sdex/ws: subscribe: %w", err)
	}
	s.logger.Info("fill stream subscribed", slog.String("url", s.cfg.URL))

	done := make(chan struct{})
	defer close(done)
	go s.keepAlive(ctx, conn, done)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("%w: %w", domain.ErrWSDisconnect, err)
		}
		evt, ok := s.decode(raw)
		if !ok {
			continue
		}
		select {
		case out <- evt:
		case <-ctx.Done():
			return true, ctx.Err()
		}
	}
}

// keepAlive pings the peer and closes the connection when ctx ends so the
// blocked read returns.
func (s *FillStream) keepAlive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (s *FillStream) decode(raw []byte) (domain.FillEvent, bool) {
	var msg WSFill
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Type != "fill" || msg.OfferID == "" {
		return domain.FillEvent{}, false
	}
	amount, err1 := parseAmount("amount", msg.Amount)
	price, err2 := parseAmount("price", msg.Price)
	remaining, err3 := parseAmount("remaining", msg.Remaining)
	if err1 != nil || err2 != nil || err3 != nil {
		s.logger.Debug("dropping malformed fill", slog.String("offer_id", msg.OfferID))
		return domain.FillEvent{}, false
	}
	ts := time.Now().UTC()
	if msg.Timestamp > 0 {
		ts = time.UnixMilli(msg.Timestamp).UTC()
	}
	return domain.FillEvent{
		OfferID:   msg.OfferID,
		Amount:    amount,
		Price:     price,
		Remaining: remaining,
		Timestamp: ts,
	}, true
}
