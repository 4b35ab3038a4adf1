package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Transport is the connection the session runs on
type Transport interface {
	Send(ctx context.Context, msg any) error
	OnMessage(fn func([]byte))
	OnOpen(fn func())
	OnClose(fn func(error))
	Done() <-chan struct{}
	Err() error
}

// Session correlates venue replies with requests, tracks subscriptions and
// authorization. Every transport close is a full reset: waiters are rejected
// with ErrConnectionLost, subscriptions end and auth drops to Unauthenticated.
type Session struct {
	transport Transport
	timeout   time.Duration

	mu      sync.Mutex
	st      state
	ready   chan struct{} // closed while the transport is open
	authing *authAttempt
	account Account

	subMu sync.Mutex // serializes Subscribe so one topic never opens twice
}

type authAttempt struct {
	done    chan struct{}
	account Account
	err     error
}

// New creates a session bound to transport
func New(transport Transport) *Session {
	s := &Session{
		transport: transport,
		timeout:   DefaultTimeout,
		st:        newState(),
		ready:     make(chan struct{}),
	}

	transport.OnMessage(s.handleMessage)
	transport.OnOpen(func() {
		log.Debug().Msg("Session transport open")
		s.dispatch(opened{})
	})
	transport.OnClose(func(err error) {
		s.mu.Lock()
		pending, subs := len(s.st.pending), len(s.st.subs)
		s.mu.Unlock()

		log.Warn().
			Err(err).
			Int("pending", pending).
			Int("subscriptions", subs).
			Msg("Session reset: connection lost")
		s.dispatch(closed{err: err})
	})
	return s
}

// SetTimeout overrides the default request timeout
func (s *Session) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// AuthState returns the current authorization status
func (s *Session) AuthState() AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.auth
}

// Account returns the account from the last successful authorize
func (s *Session) Account() Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account
}

// Pending returns the number of requests awaiting a reply
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.pending)
}

// Done is closed when the transport has stopped for good
func (s *Session) Done() <-chan struct{} {
	return s.transport.Done()
}

// Err reports why the transport stopped
func (s *Session) Err() error {
	return s.transport.Err()
}

// Ready blocks until the transport is open
func (s *Session) Ready(ctx context.Context) error {
	s.mu.Lock()
	ch := s.ready
	s.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.transport.Done():
		return fmt.Errorf("%w: %v", ErrConnectionLost, s.transport.Err())
	}
}

// Authorize authenticates the session. It returns at once when already
// authorized and joins the in-flight attempt when one is running.
func (s *Session) Authorize(ctx context.Context, token string) (Account, error) {
	s.mu.Lock()
	if s.st.auth == Authorized {
		acct := s.account
		s.mu.Unlock()
		return acct, nil
	}
	if a := s.authing; a != nil {
		s.mu.Unlock()
		select {
		case <-a.done:
			return a.account, a.err
		case <-ctx.Done():
			return Account{}, ctx.Err()
		}
	}

	a := &authAttempt{done: make(chan struct{})}
	s.authing = a
	s.st, _ = reduce(s.st, authBegan{})
	s.mu.Unlock()

	log.Info().Msg("🔐 Authorizing...")

	var reply authorizeReply
	msg, err := s.Request(ctx, Request{
		Type:    "authorize",
		Payload: map[string]any{"authorize": token},
	})
	if err == nil {
		err = msg.Decode(&reply)
	}

	s.mu.Lock()
	s.authing = nil
	if err == nil {
		s.account = reply.Authorize
	}
	s.mu.Unlock()

	a.account, a.err = reply.Authorize, err
	close(a.done)

	if err != nil {
		log.Error().Err(err).Msg("Authorization failed")
		return Account{}, err
	}
	log.Info().
		Str("login_id", reply.Authorize.LoginID).
		Str("currency", reply.Authorize.Currency).
		Str("balance", reply.Authorize.Balance.String()).
		Msg("✅ Authorized")
	return reply.Authorize, nil
}

// Request sends one message and waits for its correlated reply
func (s *Session) Request(ctx context.Context, req Request) (Message, error) {
	res := s.roundTrip(ctx, req, newWaiter(req))
	return res.msg, res.err
}

// Subscribe opens a stream for topic, or returns the live one. fn receives
// every event, the first reply included, in arrival order on the reader
// goroutine; it must not block.
func (s *Session) Subscribe(ctx context.Context, topic string, req Request, fn func(Message)) (*Subscription, error) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	s.mu.Lock()
	if sub, ok := s.st.topics[topic]; ok {
		s.mu.Unlock()
		return sub, nil
	}
	s.mu.Unlock()

	req.Tag = topic
	w := newWaiter(req)
	w.topic = topic
	w.onEvent = fn

	res := s.roundTrip(ctx, req, w)
	if res.err != nil {
		return nil, res.err
	}

	log.Debug().Str("topic", topic).Str("subscription", res.sub.ID).Msg("Subscribed")
	return res.sub, nil
}

// Unsubscribe stops delivery and asks the venue to forget the stream
func (s *Session) Unsubscribe(ctx context.Context, sub *Subscription) error {
	if sub == nil {
		return nil
	}
	s.dispatch(unsubscribed{sub: sub})
	if sub.ID == "" {
		return nil
	}

	_, err := s.Request(ctx, Request{
		Type:    "forget",
		Payload: map[string]any{"forget": sub.ID},
		Tag:     sub.ID,
	})
	if err != nil {
		return fmt.Errorf("forget %s: %w", sub.Topic, err)
	}
	return nil
}

// roundTrip registers w before sending and returns its single result
func (s *Session) roundTrip(ctx context.Context, req Request, w *waiter) result {
	s.dispatch(registered{w: w})

	// Rejected on registration (duplicate) or by a close that raced it
	select {
	case res := <-w.reply:
		return res
	default:
	}

	if err := s.transport.Send(ctx, req.body()); err != nil {
		if ctx.Err() == nil {
			err = fmt.Errorf("send %s: %w: %w", req.Type, ErrConnectionLost, err)
		}
		s.dispatch(abandoned{w: w, err: err})
		return <-w.reply
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = s.timeout
	}
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case res := <-w.reply:
		return res
	case <-expired:
		log.Warn().Str("request", w.key).Dur("timeout", timeout).Msg("⏱️ Request timed out")
		s.dispatch(abandoned{w: w, err: fmt.Errorf("%s: %w", w.key, ErrRequestTimeout)})
		return <-w.reply
	case <-ctx.Done():
		s.dispatch(abandoned{w: w, err: ctx.Err()})
		return <-w.reply
	}
}

func (s *Session) handleMessage(raw []byte) {
	env, msg, err := parse(raw)
	if err != nil {
		log.Warn().Err(err).Msg("Dropping malformed frame")
		return
	}
	s.dispatch(received{env: env, msg: msg})
}

func (s *Session) dispatch(ev event) {
	s.mu.Lock()
	next, effects := reduce(s.st, ev)
	s.st = next
	s.mu.Unlock()

	s.apply(effects)
}

func (s *Session) apply(effects []effect) {
	for _, eff := range effects {
		switch e := eff.(type) {
		case resolveWaiter:
			e.w.reply <- e.res
		case deliverEvent:
			if e.sub.fn != nil {
				e.sub.fn(e.msg)
			}
		case endSubscription:
			e.sub.finish(e.err)
		case reportUnmatched:
			ev := log.Warn()
			if e.msg.SubscriptionID != "" {
				ev = log.Debug()
			}
			ev.Str("msg_type", e.msg.Type).
				Str("tag", e.msg.Tag).
				Str("subscription", e.msg.SubscriptionID).
				Msg(e.reason)
		case signalReady:
			s.mu.Lock()
			select {
			case <-s.ready:
				if !e.open {
					s.ready = make(chan struct{})
				}
			default:
				if e.open {
					close(s.ready)
				}
			}
			s.mu.Unlock()
		}
	}
}
