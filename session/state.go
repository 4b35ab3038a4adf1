package session

import (
	"sort"
	"sync"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SESSION STATE MACHINE
// ═══════════════════════════════════════════════════════════════════════════════
//
// reduce is the only place session state changes. It never mutates the state
// it is given and never performs I/O; callers apply the returned effects after
// releasing the session lock.
//
// ═══════════════════════════════════════════════════════════════════════════════

// AuthState is the authorization status of the session
type AuthState int

const (
	Unauthenticated AuthState = iota
	Authorizing
	Authorized
)

func (a AuthState) String() string {
	switch a {
	case Unauthenticated:
		return "unauthenticated"
	case Authorizing:
		return "authorizing"
	case Authorized:
		return "authorized"
	}
	return "unknown"
}

type state struct {
	auth    AuthState
	open    bool
	pending map[string]*waiter
	subs    map[string]*Subscription // by subscription id
	topics  map[string]*Subscription // by topic
}

func newState() state {
	return state{
		pending: map[string]*waiter{},
		subs:    map[string]*Subscription{},
		topics:  map[string]*Subscription{},
	}
}

// waiter is a registered reply slot; reply has room for exactly one result
type waiter struct {
	key     string
	msgType string
	reply   chan result

	// set for subscribe requests
	topic   string
	onEvent func(Message)
}

func newWaiter(req Request) *waiter {
	return &waiter{
		key:     req.key(),
		msgType: req.Type,
		reply:   make(chan result, 1),
	}
}

type result struct {
	msg Message
	sub *Subscription
	err error
}

// Subscription is a live event stream from the venue
type Subscription struct {
	ID    string
	Topic string

	fn   func(Message)
	once sync.Once
	done chan struct{}
	err  error
}

func newSubscription(id, topic string, fn func(Message)) *Subscription {
	return &Subscription{ID: id, Topic: topic, fn: fn, done: make(chan struct{})}
}

// Done is closed when the stream ends
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err is ErrConnectionLost when the stream ended with the connection, nil
// after Unsubscribe
func (s *Subscription) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

func (s *Subscription) finish(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.done)
	})
}

// ─── events ───────────────────────────────────────────────────────────────────

type event interface{ isEvent() }

type registered struct{ w *waiter }
type abandoned struct {
	w   *waiter
	err error
}
type received struct {
	env envelope
	msg Message
}
type opened struct{}
type closed struct{ err error }
type authBegan struct{}
type unsubscribed struct{ sub *Subscription }

func (registered) isEvent()   {}
func (abandoned) isEvent()    {}
func (received) isEvent()     {}
func (opened) isEvent()       {}
func (closed) isEvent()       {}
func (authBegan) isEvent()    {}
func (unsubscribed) isEvent() {}

// ─── effects ──────────────────────────────────────────────────────────────────

type effect interface{ isEffect() }

type resolveWaiter struct {
	w   *waiter
	res result
}
type deliverEvent struct {
	sub *Subscription
	msg Message
}
type endSubscription struct {
	sub *Subscription
	err error
}
type reportUnmatched struct {
	msg    Message
	reason string
}
type signalReady struct{ open bool }

func (resolveWaiter) isEffect()   {}
func (deliverEvent) isEffect()    {}
func (endSubscription) isEffect() {}
func (reportUnmatched) isEffect() {}
func (signalReady) isEffect()     {}

// ─── transitions ──────────────────────────────────────────────────────────────

func reduce(st state, ev event) (state, []effect) {
	switch e := ev.(type) {
	case registered:
		return reduceRegistered(st, e)
	case abandoned:
		return reduceAbandoned(st, e)
	case received:
		return reduceReceived(st, e)
	case opened:
		st.open = true
		return st, []effect{signalReady{open: true}}
	case closed:
		return reduceClosed(st)
	case authBegan:
		if st.auth == Unauthenticated {
			st.auth = Authorizing
		}
		return st, nil
	case unsubscribed:
		return reduceUnsubscribed(st, e)
	}
	return st, nil
}

func reduceRegistered(st state, e registered) (state, []effect) {
	if _, busy := st.pending[e.w.key]; busy {
		return st, []effect{resolveWaiter{w: e.w, res: result{err: ErrDuplicateRequest}}}
	}
	st.pending = clonePending(st.pending)
	st.pending[e.w.key] = e.w
	return st, nil
}

func reduceAbandoned(st state, e abandoned) (state, []effect) {
	if st.pending[e.w.key] != e.w {
		return st, nil
	}
	st.pending = clonePending(st.pending)
	delete(st.pending, e.w.key)
	if e.w.msgType == "authorize" && st.auth == Authorizing {
		st.auth = Unauthenticated
	}
	return st, []effect{resolveWaiter{w: e.w, res: result{err: e.err}}}
}

func reduceReceived(st state, e received) (state, []effect) {
	msg := e.msg

	if sub, ok := st.subs[msg.SubscriptionID]; ok && msg.SubscriptionID != "" {
		return st, []effect{deliverEvent{sub: sub, msg: msg}}
	}

	key := correlationKey(e.env.MsgType, msg.Tag)
	w, ok := st.pending[key]
	if !ok {
		reason := "unmatched reply"
		switch {
		case e.env.Error != nil:
			reason = "unmatched venue error"
		case msg.SubscriptionID != "":
			reason = "event for unknown subscription"
		}
		return st, []effect{reportUnmatched{msg: msg, reason: reason}}
	}

	st.pending = clonePending(st.pending)
	delete(st.pending, key)

	if e.env.Error != nil {
		var err error
		if e.env.MsgType == "authorize" {
			st.auth = Unauthenticated
			err = &AuthError{Code: e.env.Error.Code, Message: e.env.Error.Message}
		} else {
			err = &RemoteError{MsgType: e.env.MsgType, Code: e.env.Error.Code, Message: e.env.Error.Message}
		}
		return st, []effect{resolveWaiter{w: w, res: result{msg: msg, err: err}}}
	}

	if e.env.MsgType == "authorize" {
		st.auth = Authorized
	}

	if w.topic == "" {
		return st, []effect{resolveWaiter{w: w, res: result{msg: msg}}}
	}

	if msg.SubscriptionID == "" {
		return st, []effect{resolveWaiter{w: w, res: result{msg: msg, err: ErrNoSubscription}}}
	}

	// First reply of a subscription is also its first event
	sub := newSubscription(msg.SubscriptionID, w.topic, w.onEvent)
	effects := []effect{
		resolveWaiter{w: w, res: result{msg: msg, sub: sub}},
		deliverEvent{sub: sub, msg: msg},
	}

	st.subs = cloneSubs(st.subs)
	st.topics = cloneSubs(st.topics)
	st.subs[sub.ID] = sub
	st.topics[sub.Topic] = sub
	return st, effects
}

func reduceClosed(st state) (state, []effect) {
	var effects []effect

	keys := make([]string, 0, len(st.pending))
	for k := range st.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		effects = append(effects, resolveWaiter{w: st.pending[k], res: result{err: ErrConnectionLost}})
	}

	ids := make([]string, 0, len(st.subs))
	for id := range st.subs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		effects = append(effects, endSubscription{sub: st.subs[id], err: ErrConnectionLost})
	}

	next := newState()
	return next, append(effects, signalReady{open: false})
}

func reduceUnsubscribed(st state, e unsubscribed) (state, []effect) {
	if st.subs[e.sub.ID] != e.sub {
		return st, nil
	}
	st.subs = cloneSubs(st.subs)
	st.topics = cloneSubs(st.topics)
	delete(st.subs, e.sub.ID)
	delete(st.topics, e.sub.Topic)
	return st, []effect{endSubscription{sub: e.sub}}
}

func clonePending(m map[string]*waiter) map[string]*waiter {
	out := make(map[string]*waiter, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneSubs(m map[string]*Subscription) map[string]*Subscription {
	out := make(map[string]*Subscription, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
