package feeds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// ═══════════════════════════════════════════════════════════════════════════════
// VENUE TRANSPORT
// ═══════════════════════════════════════════════════════════════════════════════
//
// Owns exactly one logical WebSocket connection to the venue.
// Reconnects with exponential backoff; every reconnect is reported to the
// layer above as OnClose followed by OnOpen, and that layer must treat it as
// a full state loss.
//
// All callbacks run on the reader goroutine, one at a time.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
)

var (
	// ErrNotConnected is returned by Send when no connection is open
	ErrNotConnected = errors.New("not connected")

	// ErrTransportClosed is reported once the owner closed the transport
	ErrTransportClosed = errors.New("transport closed")
)

// ConnectionError means the transport spent its retry budget without
// getting a usable connection
type ConnectionError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: gave up after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TransportState is the lifecycle state of the current connection
type TransportState int32

const (
	StateConnecting TransportState = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s TransportState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// TransportConfig holds connection and reconnect settings
type TransportConfig struct {
	URL              string
	BaseDelay        time.Duration // First reconnect delay
	MaxDelay         time.Duration // Backoff cap
	StableAfter      time.Duration // Uptime after which backoff resets to base
	MaxRetries       int           // Consecutive failed dials before giving up (<0 = never)
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	SendRate         float64 // Outbound messages per second (0 = unlimited)
	SendBurst        int
}

// DefaultTransportConfig returns sensible defaults for the given endpoint
func DefaultTransportConfig(url string) TransportConfig {
	return TransportConfig{
		URL:              url,
		BaseDelay:        time.Second,
		MaxDelay:         30 * time.Second,
		StableAfter:      time.Minute,
		MaxRetries:       5,
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     pingInterval,
		SendRate:         20,
		SendBurst:        5,
	}
}

// Transport is a reconnecting WebSocket connection
type Transport struct {
	cfg     TransportConfig
	dialer  *websocket.Dialer
	limiter *rate.Limiter

	mu        sync.RWMutex
	conn      *websocket.Conn
	state     TransportState
	started   bool
	onMessage func([]byte)
	onOpen    func()
	onClose   func(error)

	writeMu sync.Mutex

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	done     chan struct{}
	err      error
}

// NewTransport creates a transport; nothing is dialed until Connect
func NewTransport(cfg TransportConfig) *Transport {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = pingInterval
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}

	t := &Transport{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		state:  StateClosed,
		done:   make(chan struct{}),
	}
	if cfg.SendRate > 0 {
		burst := cfg.SendBurst
		if burst <= 0 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(cfg.SendRate), burst)
	}
	t.ctx, t.cancel = context.WithCancel(context.Background())
	return t
}

// OnMessage registers the handler for inbound text frames
func (t *Transport) OnMessage(fn func([]byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onMessage = fn
}

// OnOpen registers the handler called each time a connection becomes usable
func (t *Transport) OnOpen(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
}

// OnClose registers the handler called each time a connection is lost
func (t *Transport) OnClose(fn func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onClose = fn
}

// State returns the current connection state
func (t *Transport) State() TransportState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Done is closed when the transport stops for good
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// Err reports why the transport stopped; valid after Done is closed
func (t *Transport) Err() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.err
}

// Connect dials the venue and returns once the connection is open.
// The transport keeps itself connected afterwards until Close.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return nil
	}
	t.started = true
	t.mu.Unlock()

	b := NewBackoff(t.cfg.BaseDelay, t.cfg.MaxDelay)

	log.Info().Str("url", t.cfg.URL).Msg("Connecting to venue...")
	conn, err := t.dialWithRetry(ctx, b)
	if err != nil {
		t.finish(err)
		return err
	}

	go t.run(conn, b)
	return nil
}

// Send writes one JSON message to the open connection
func (t *Transport) Send(ctx context.Context, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	t.mu.RLock()
	conn := t.conn
	state := t.state
	t.mu.RUnlock()

	if conn == nil || state != StateOpen {
		return ErrNotConnected
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Close shuts the connection down and stops reconnecting
func (t *Transport) Close() error {
	t.stopOnce.Do(func() {
		t.mu.Lock()
		started := t.started
		t.started = true
		conn := t.conn
		if t.state == StateOpen || t.state == StateConnecting {
			t.state = StateClosing
		}
		t.mu.Unlock()

		t.cancel()

		if conn != nil {
			conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)
			conn.Close()
		}

		if !started {
			t.finish(ErrTransportClosed)
		}
		log.Info().Str("url", t.cfg.URL).Msg("Transport closed")
	})
	return nil
}

// run owns the connection for the lifetime of the transport
func (t *Transport) run(conn *websocket.Conn, b *Backoff) {
	for {
		openedAt := time.Now()
		t.mu.RLock()
		onOpen, onClose := t.onOpen, t.onClose
		t.mu.RUnlock()

		if onOpen != nil {
			onOpen()
		}

		err := t.readLoop(conn)
		t.detach(conn)

		stopping := t.ctx.Err() != nil
		if stopping {
			err = ErrTransportClosed
		}
		if onClose != nil {
			onClose(err)
		}
		if stopping {
			t.finish(ErrTransportClosed)
			return
		}

		uptime := time.Since(openedAt)
		if uptime >= t.cfg.StableAfter {
			b.Reset()
		}
		log.Warn().
			Err(err).
			Dur("uptime", uptime).
			Msg("🔌 Venue connection lost, reconnecting")

		conn, err = t.dialWithRetry(t.ctx, b)
		if err != nil {
			t.finish(err)
			return
		}
	}
}

// dialWithRetry dials until success, the retry budget is spent, or stop
func (t *Transport) dialWithRetry(ctx context.Context, b *Backoff) (*websocket.Conn, error) {
	attempts := 0
	for {
		t.setState(StateConnecting)

		conn, _, err := t.dialer.DialContext(ctx, t.cfg.URL, nil)
		if err == nil {
			t.attach(conn)
			log.Info().Str("url", t.cfg.URL).Int("attempt", attempts+1).Msg("✅ Venue connection open")
			return conn, nil
		}
		attempts++

		if t.ctx.Err() != nil {
			return nil, ErrTransportClosed
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if t.cfg.MaxRetries >= 0 && attempts > t.cfg.MaxRetries {
			log.Error().Err(err).Int("attempts", attempts).Msg("Venue unreachable, giving up")
			return nil, &ConnectionError{URL: t.cfg.URL, Attempts: attempts, Err: err}
		}

		delay := b.Next()
		log.Warn().
			Err(err).
			Int("attempt", attempts).
			Dur("retry_in", delay).
			Msg("Venue dial failed")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-t.ctx.Done():
			timer.Stop()
			return nil, ErrTransportClosed
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
}

// readLoop reads frames until the connection fails
func (t *Transport) readLoop(conn *websocket.Conn) error {
	stopPing := make(chan struct{})
	defer close(stopPing)
	go t.pingLoop(conn, stopPing)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		t.mu.RLock()
		handler := t.onMessage
		t.mu.RUnlock()

		if handler != nil {
			handler(message)
		}
	}
}

// pingLoop keeps one connection alive
func (t *Transport) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(t.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Debug().Err(err).Msg("Ping failed")
			}
		}
	}
}

func (t *Transport) attach(conn *websocket.Conn) {
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	t.setState(StateOpen)
}

func (t *Transport) detach(conn *websocket.Conn) {
	conn.Close()
	t.mu.Lock()
	if t.conn == conn {
		t.conn = nil
	}
	t.mu.Unlock()
	t.setState(StateClosed)
}

func (t *Transport) finish(err error) {
	t.mu.Lock()
	if t.err != nil {
		t.mu.Unlock()
		return
	}
	t.err = err
	t.state = StateClosed
	t.mu.Unlock()
	close(t.done)
}

func (t *Transport) setState(s TransportState) {
	t.mu.Lock()
	prev := t.state
	t.state = s
	t.mu.Unlock()

	if prev != s {
		log.Debug().
			Str("from", prev.String()).
			Str("to", s.String()).
			Msg("Transport state")
	}
}
