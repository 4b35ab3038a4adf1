package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/derivbot/feeds"
)

// fakeTransport records outbound frames and lets the test inject inbound ones
type fakeTransport struct {
	mu      sync.Mutex
	sendErr error
	sent    chan map[string]any
	onMsg   func([]byte)
	onOpen  func()
	onClose func(error)
	done    chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		sent: make(chan map[string]any, 64),
		done: make(chan struct{}),
	}
}

func (f *fakeTransport) Send(ctx context.Context, msg any) error {
	f.mu.Lock()
	err := f.sendErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	f.sent <- msg.(map[string]any)
	return nil
}

func (f *fakeTransport) OnMessage(fn func([]byte)) { f.onMsg = fn }
func (f *fakeTransport) OnOpen(fn func())          { f.onOpen = fn }
func (f *fakeTransport) OnClose(fn func(error))    { f.onClose = fn }
func (f *fakeTransport) Done() <-chan struct{}     { return f.done }
func (f *fakeTransport) Err() error                { return nil }

func (f *fakeTransport) push(frame string) { f.onMsg([]byte(frame)) }
func (f *fakeTransport) open()             { f.onOpen() }
func (f *fakeTransport) drop()             { f.onClose(errors.New("eof")) }

func (f *fakeTransport) failSends(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErr = err
}

func (f *fakeTransport) next(t *testing.T) map[string]any {
	t.Helper()
	select {
	case m := <-f.sent:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("nothing sent")
		return nil
	}
}

func (f *fakeTransport) quiet(t *testing.T) {
	t.Helper()
	select {
	case m := <-f.sent:
		t.Fatalf("unexpected frame sent: %v", m)
	case <-time.After(30 * time.Millisecond):
	}
}

func newTestSession(t *testing.T) (*Session, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	s := New(ft)
	ft.open()
	return s, ft
}

const authOK = `{"msg_type":"authorize","echo_req":{"authorize":"tok"},"authorize":{"loginid":"CR1","currency":"USD","balance":25.5}}`

func authorize(t *testing.T, s *Session, ft *fakeTransport) {
	t.Helper()
	errc := make(chan error, 1)
	go func() {
		_, err := s.Authorize(context.Background(), "tok")
		errc <- err
	}()
	ft.next(t)
	ft.push(authOK)
	require.NoError(t, <-errc)
}

func TestReadyWaitsForOpen(t *testing.T) {
	ft := newFakeTransport()
	s := New(ft)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Ready(ctx), context.DeadlineExceeded)

	ft.open()
	assert.NoError(t, s.Ready(context.Background()))

	ft.drop()
	ctx2, cancel2 := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel2()
	assert.ErrorIs(t, s.Ready(ctx2), context.DeadlineExceeded)
}

func TestAuthorizeSucceeds(t *testing.T) {
	s, ft := newTestSession(t)
	assert.Equal(t, Unauthenticated, s.AuthState())

	authorize(t, s, ft)

	assert.Equal(t, Authorized, s.AuthState())
	assert.Equal(t, "CR1", s.Account().LoginID)
	assert.True(t, decimal.NewFromFloat(25.5).Equal(s.Account().Balance))

	// Already authorized: no second request
	_, err := s.Authorize(context.Background(), "tok")
	require.NoError(t, err)
	ft.quiet(t)
}

func TestAuthorizeJoinsInFlightAttempt(t *testing.T) {
	s, ft := newTestSession(t)

	first := make(chan error, 1)
	go func() {
		_, err := s.Authorize(context.Background(), "tok")
		first <- err
	}()
	ft.next(t)
	assert.Equal(t, Authorizing, s.AuthState())

	second := make(chan error, 1)
	go func() {
		_, err := s.Authorize(context.Background(), "tok")
		second <- err
	}()
	ft.quiet(t)

	ft.push(authOK)
	require.NoError(t, <-first)
	require.NoError(t, <-second)
}

func TestAuthorizeRejected(t *testing.T) {
	s, ft := newTestSession(t)

	errc := make(chan error, 1)
	go func() {
		_, err := s.Authorize(context.Background(), "bad")
		errc <- err
	}()
	ft.next(t)
	ft.push(`{"msg_type":"authorize","echo_req":{"authorize":"bad"},"error":{"code":"InvalidToken","message":"The token is invalid."}}`)

	var authErr *AuthError
	require.True(t, errors.As(<-errc, &authErr))
	assert.Equal(t, "InvalidToken", authErr.Code)
	assert.Equal(t, Unauthenticated, s.AuthState())
}

func TestProposalsCorrelateByTagOutOfOrder(t *testing.T) {
	s, ft := newTestSession(t)

	type out struct {
		q   Quote
		err error
	}
	call := make(chan out, 1)
	put := make(chan out, 1)

	params := ProposalParams{Amount: decimal.NewFromInt(1), Currency: "USD", Duration: 5, DurationUnit: "t", Symbol: "R_100"}
	go func() {
		p := params
		p.ContractType = "CALL"
		q, err := s.Proposal(context.Background(), p)
		call <- out{q, err}
	}()
	go func() {
		p := params
		p.ContractType = "PUT"
		q, err := s.Proposal(context.Background(), p)
		put <- out{q, err}
	}()

	ft.next(t)
	ft.next(t)
	assert.Equal(t, 2, s.Pending())

	ft.push(`{"msg_type":"proposal","echo_req":{"passthrough":{"tag":"PUT"}},"proposal":{"id":"q-put","ask_price":1.02}}`)
	ft.push(`{"msg_type":"proposal","echo_req":{"passthrough":{"tag":"CALL"}},"proposal":{"id":"q-call","ask_price":0.98}}`)

	c, p := <-call, <-put
	require.NoError(t, c.err)
	require.NoError(t, p.err)
	assert.Equal(t, "q-call", c.q.ID)
	assert.Equal(t, "q-put", p.q.ID)
	assert.Zero(t, s.Pending())
}

func TestRequestPayloadCarriesTag(t *testing.T) {
	s, ft := newTestSession(t)

	go s.Buy(context.Background(), "q-1", decimal.NewFromFloat(1.5))

	frame := ft.next(t)
	assert.Equal(t, "q-1", frame["buy"])
	assert.Equal(t, 1.5, frame["price"])
	assert.Equal(t, map[string]string{"tag": "q-1"}, frame["passthrough"])
}

func TestDuplicateRequestRejected(t *testing.T) {
	s, ft := newTestSession(t)

	go s.Request(context.Background(), Request{Type: "balance", Payload: map[string]any{"balance": 1}})
	ft.next(t)

	_, err := s.Request(context.Background(), Request{Type: "balance", Payload: map[string]any{"balance": 1}})
	assert.ErrorIs(t, err, ErrDuplicateRequest)
	assert.Equal(t, 1, s.Pending())
}

func TestRequestTimeoutRemovesWaiter(t *testing.T) {
	s, ft := newTestSession(t)
	s.SetTimeout(30 * time.Millisecond)

	_, err := s.Balance(context.Background())
	assert.ErrorIs(t, err, ErrRequestTimeout)
	assert.Zero(t, s.Pending())

	// A late reply is reported, not delivered
	ft.next(t)
	ft.push(`{"msg_type":"balance","echo_req":{"balance":1},"balance":{"balance":1,"currency":"USD"}}`)
	assert.Zero(t, s.Pending())
}

func TestRemoteErrorSurfaces(t *testing.T) {
	s, ft := newTestSession(t)

	errc := make(chan error, 1)
	go func() {
		_, err := s.Buy(context.Background(), "q-9", decimal.NewFromInt(1))
		errc <- err
	}()
	ft.next(t)
	ft.push(`{"msg_type":"buy","echo_req":{"passthrough":{"tag":"q-9"}},"error":{"code":"InsufficientBalance","message":"Your account balance is insufficient."}}`)

	var remote *RemoteError
	require.True(t, errors.As(<-errc, &remote))
	assert.Equal(t, "buy", remote.MsgType)
	assert.Equal(t, "InsufficientBalance", remote.Code)
}

func TestSendFailureIsConnectionLost(t *testing.T) {
	s, ft := newTestSession(t)
	ft.failSends(errors.New("not connected"))

	_, err := s.Balance(context.Background())
	assert.ErrorIs(t, err, ErrConnectionLost)
	assert.Zero(t, s.Pending())
}

func TestCloseResetsSession(t *testing.T) {
	s, ft := newTestSession(t)
	authorize(t, s, ft)

	subc := make(chan *Subscription, 1)
	go func() {
		sub, err := s.SubscribeTicks(context.Background(), "R_100", func(Tick) {})
		require.NoError(t, err)
		subc <- sub
	}()
	ft.next(t)
	ft.push(`{"msg_type":"tick","echo_req":{"passthrough":{"tag":"ticks:R_100"}},"subscription":{"id":"s-1"},"tick":{"symbol":"R_100","epoch":1,"quote":100}}`)
	sub := <-subc

	buyErr := make(chan error, 1)
	go func() {
		_, err := s.Buy(context.Background(), "q-1", decimal.NewFromInt(1))
		buyErr <- err
	}()
	ft.next(t)
	require.Equal(t, 1, s.Pending())

	ft.drop()

	assert.ErrorIs(t, <-buyErr, ErrConnectionLost)
	assert.Equal(t, Unauthenticated, s.AuthState())
	assert.Zero(t, s.Pending())

	select {
	case <-sub.Done():
		assert.ErrorIs(t, sub.Err(), ErrConnectionLost)
	default:
		t.Fatal("subscription still live after close")
	}
}

func TestSubscribeIsIdempotentAndOrdered(t *testing.T) {
	s, ft := newTestSession(t)

	var mu sync.Mutex
	var quotes []float64
	record := func(tk Tick) {
		mu.Lock()
		defer mu.Unlock()
		quotes = append(quotes, tk.Quote)
	}

	subc := make(chan *Subscription, 1)
	go func() {
		sub, err := s.SubscribeTicks(context.Background(), "R_100", record)
		require.NoError(t, err)
		subc <- sub
	}()
	ft.next(t)
	ft.push(`{"msg_type":"tick","echo_req":{"passthrough":{"tag":"ticks:R_100"}},"subscription":{"id":"s-1"},"tick":{"epoch":1,"quote":1}}`)
	first := <-subc

	again, err := s.SubscribeTicks(context.Background(), "R_100", record)
	require.NoError(t, err)
	assert.Same(t, first, again)
	ft.quiet(t)

	for _, q := range []string{"2", "3", "4"} {
		ft.push(`{"msg_type":"tick","subscription":{"id":"s-1"},"tick":{"epoch":2,"quote":` + q + `}}`)
	}

	mu.Lock()
	assert.Equal(t, []float64{1, 2, 3, 4}, quotes)
	mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- s.Unsubscribe(context.Background(), first) }()
	forget := ft.next(t)
	assert.Equal(t, "s-1", forget["forget"])
	ft.push(`{"msg_type":"forget","echo_req":{"forget":"s-1","passthrough":{"tag":"s-1"}},"forget":1}`)
	require.NoError(t, <-done)

	select {
	case <-first.Done():
		assert.NoError(t, first.Err())
	default:
		t.Fatal("subscription not ended")
	}

	// Events after forget are dropped
	ft.push(`{"msg_type":"tick","subscription":{"id":"s-1"},"tick":{"epoch":3,"quote":5}}`)
	mu.Lock()
	assert.Len(t, quotes, 4)
	mu.Unlock()
}

func TestTicksHistoryDecodes(t *testing.T) {
	s, ft := newTestSession(t)

	type out struct {
		n   int
		err error
	}
	res := make(chan out, 1)
	go func() {
		samples, err := s.TicksHistory(context.Background(), "R_100", 3)
		res <- out{len(samples), err}
	}()

	frame := ft.next(t)
	assert.Equal(t, "R_100", frame["ticks_history"])
	assert.Equal(t, "latest", frame["end"])
	ft.push(`{"msg_type":"history","echo_req":{"passthrough":{"tag":"R_100"}},"history":{"prices":[1,2,3],"times":[10,11,12]}}`)

	r := <-res
	require.NoError(t, r.err)
	assert.Equal(t, 3, r.n)
}

func TestSubscribeWithoutStreamIsRejected(t *testing.T) {
	s, ft := newTestSession(t)

	errc := make(chan error, 1)
	go func() {
		_, err := s.SubscribeTicks(context.Background(), "stpRNG", func(Tick) {})
		errc <- err
	}()
	ft.next(t)
	ft.push(`{"msg_type":"tick","echo_req":{"passthrough":{"tag":"ticks:stpRNG"}},"tick":{"epoch":1,"quote":1}}`)
	assert.ErrorIs(t, <-errc, ErrNoSubscription)

	// nothing was cached under the topic, so a retry asks the venue again
	go func() {
		_, err := s.SubscribeTicks(context.Background(), "stpRNG", func(Tick) {})
		errc <- err
	}()
	ft.next(t)
	ft.push(`{"msg_type":"tick","echo_req":{"passthrough":{"tag":"ticks:stpRNG"}},"subscription":{"id":"s-9"},"tick":{"epoch":2,"quote":2}}`)
	assert.NoError(t, <-errc)
}

func TestCandlesHistoryDecodes(t *testing.T) {
	s, ft := newTestSession(t)

	type out struct {
		candles []feeds.Candle
		err     error
	}
	res := make(chan out, 1)
	go func() {
		c, err := s.CandlesHistory(context.Background(), "stpRNG", time.Minute, 2)
		res <- out{c, err}
	}()

	frame := ft.next(t)
	assert.Equal(t, "candles", frame["style"])
	assert.Equal(t, 60, frame["granularity"])
	assert.Equal(t, 2, frame["count"])
	ft.push(`{"msg_type":"candles","echo_req":{"passthrough":{"tag":"stpRNG"}},"candles":[` +
		`{"epoch":60,"open":"10.5","high":"11","low":"10","close":"10.75"},` +
		`{"epoch":120,"open":10.75,"high":12,"low":10.5,"close":11.5}]}`)

	r := <-res
	require.NoError(t, r.err)
	require.Len(t, r.candles, 2)
	assert.Equal(t, feeds.Candle{Start: time.Unix(60, 0), Open: 10.5, High: 11, Low: 10, Close: 10.75}, r.candles[0])
	assert.Equal(t, feeds.ShapeGreen, r.candles[1].Shape())
}

func TestProfitTableCountsLossStreak(t *testing.T) {
	s, ft := newTestSession(t)

	type out struct {
		txs []Transaction
		err error
	}
	res := make(chan out, 1)
	go func() {
		txs, err := s.ProfitTable(context.Background(), 5)
		res <- out{txs, err}
	}()

	frame := ft.next(t)
	assert.Equal(t, 1, frame["profit_table"])
	assert.Equal(t, 5, frame["limit"])
	ft.push(`{"msg_type":"profit_table","echo_req":{"profit_table":1},"profit_table":{"count":4,"transactions":[` +
		`{"contract_id":4,"buy_price":2,"sell_price":0},` +
		`{"contract_id":3,"buy_price":1,"sell_price":0,"profit":-1},` +
		`{"contract_id":2,"buy_price":1,"sell_price":1.95},` +
		`{"contract_id":1,"buy_price":1,"sell_price":0}]}}`)

	r := <-res
	require.NoError(t, r.err)
	require.Len(t, r.txs, 4)
	assert.True(t, decimal.NewFromInt(-2).Equal(r.txs[0].Profit))
	assert.True(t, decimal.NewFromFloat(0.95).Equal(r.txs[2].Profit))
	assert.Equal(t, 2, ConsecutiveLosses(r.txs))
	assert.Zero(t, ConsecutiveLosses(nil))
}
