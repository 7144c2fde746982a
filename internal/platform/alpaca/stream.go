package alpaca

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ankhone/alpacahq-zipline/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 60 * time.Second
)

// TradeUpdateHandler is called for every order lifecycle event.
type TradeUpdateHandler func(domain.TradeUpdate)

// streamMessage is the envelope of every trading stream frame.
type streamMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type streamAction struct {
	Action string `json:"action"`
	Key    string `json:"key,omitempty"`
	Secret string `json:"secret,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// TradeStream follows the account's trade_updates stream and reconnects
// with exponential backoff when the connection drops.
type TradeStream struct {
	url    string
	key    string
	secret string
	logger *slog.Logger

	mu     sync.RWMutex
	conn   *websocket.Conn
	closed bool

	handlers  []TradeUpdateHandler
	handlerMu sync.RWMutex

	done chan struct{}
}

// NewTradeStream creates a stream for cfg's account.
func NewTradeStream(cfg Config, logger *slog.Logger) *TradeStream {
	return &TradeStream{
		url:    cfg.StreamURL,
		key:    cfg.KeyID,
		secret: cfg.SecretKey,
		logger: logger.With(slog.String("component", "alpaca_stream")),
		done:   make(chan struct{}),
	}
}

// OnTradeUpdate registers a handler.
func (s *TradeStream) OnTradeUpdate(h TradeUpdateHandler) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.handlers = append(s.handlers, h)
}

// Connect dials, authenticates and subscribes to trade_updates.
func (s *TradeStream) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("alpaca/stream: %w", domain.ErrStreamClosed)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("alpaca/stream: connect: %w", err)
	}

	if err := s.handshake(conn); err != nil {
		conn.Close()
		return err
	}

	s.conn = conn
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go s.readLoop(conn)
	go s.pingLoop(conn)
	s.logger.Info("trade stream connected")
	return nil
}

func (s *TradeStream) handshake(conn *websocket.Conn) error {
	if err := writeJSON(conn, streamAction{Action: "auth", Key: s.key, Secret: s.secret}); err != nil {
		return fmt.Errorf("alpaca/stream: send auth: %w", err)
	}
	conn.SetReadDeadline(time.Now().Add(writeWait))
	var msg streamMessage
	if err := conn.ReadJSON(&msg); err != nil {
		return fmt.Errorf("alpaca/stream: read auth: %w", err)
	}
	var auth struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(msg.Data, &auth); err != nil || msg.Stream != "authorization" || auth.Status != "authorized" {
		return fmt.Errorf("alpaca/stream: auth rejected: %w", domain.ErrUnauthorized)
	}

	listen := streamAction{Action: "listen", Data: map[string][]string{"streams": {"trade_updates"}}}
	if err := writeJSON(conn, listen); err != nil {
		return fmt.Errorf("alpaca/stream: send listen: %w", err)
	}
	return nil
}

func writeJSON(conn *websocket.Conn, v any) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// Run connects and keeps the stream alive until ctx is cancelled.
func (s *TradeStream) Run(ctx context.Context) error {
	if err := s.Connect(ctx); err != nil {
		s.logger.Warn("trade stream connect failed", slog.String("error", err.Error()))
		go s.reconnect()
	}
	<-ctx.Done()
	return s.Close()
}

// Close shuts the stream down.
func (s *TradeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)

	if s.conn != nil {
		_ = s.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return s.conn.Close()
	}
	return nil
}

func (s *TradeStream) readLoop(conn *websocket.Conn) {
	defer conn.Close()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			s.logger.Warn("trade stream dropped", slog.String("error", err.Error()))
			s.reconnect()
			return
		}
		s.handleMessage(message)
	}
}

func (s *TradeStream) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.RLock()
			current := s.conn
			s.mu.RUnlock()
			if current != conn {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *TradeStream) handleMessage(raw []byte) {
	var msg streamMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	if msg.Stream != "trade_updates" {
		return
	}
	var update APITradeUpdate
	if err := json.Unmarshal(msg.Data, &update); err != nil {
		s.logger.Debug("undecodable trade update", slog.String("error", err.Error()))
		return
	}
	tu := update.ToDomain()

	s.handlerMu.RLock()
	handlers := s.handlers
	s.handlerMu.RUnlock()
	for _, h := range handlers {
		h(tu)
	}
}

// reconnect re-establishes the connection with exponential backoff. It
// blocks until it succeeds or the stream is closed.
func (s *TradeStream) reconnect() {
	delay := reconnectDelay

	for {
		select {
		case <-s.done:
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := s.Connect(ctx)
		cancel()
		if err == nil {
			return
		}
		s.logger.Warn("trade stream reconnect failed",
			slog.Duration("retry_in", delay),
			slog.String("error", err.Error()),
		)

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}
