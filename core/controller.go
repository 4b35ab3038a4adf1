package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/derivbot/feeds"
	"github.com/web3guy0/derivbot/risk"
	"github.com/web3guy0/derivbot/session"
	"github.com/web3guy0/derivbot/strategy"
	"github.com/web3guy0/derivbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TRADE LIFECYCLE CONTROLLER
// ═══════════════════════════════════════════════════════════════════════════════
//
// Flow:
//   Tick → Strategy → Quote → Buy → Follow settlement → Risk → Journal
//
// Phases:
//   Idle → AwaitingQuote → AwaitingFill → Open → Settling → Idle | Stopped
//
// One contract at most is in flight. Once a buy is sent everything after it
// runs detached from cancellation, so an acknowledged contract is always
// tracked and, on cancel, sold before Run returns.
//
// ═══════════════════════════════════════════════════════════════════════════════

var (
	// ErrStopped wraps the risk limit that halted the controller
	ErrStopped = errors.New("controller stopped by risk limits")

	// ErrTooManyFailures means one operation failed more often than allowed
	ErrTooManyFailures = errors.New("operation failure budget spent")
)

// settleGrace bounds the wait for a final settlement after a forced sell
const settleGrace = 10 * time.Second

// maxRequotes bounds re-quoting when the connection drops around a quote
const maxRequotes = 2

// Phase of the trade cycle
type Phase int32

const (
	Idle Phase = iota
	AwaitingQuote
	AwaitingFill
	Open
	Settling
	Stopped
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case AwaitingQuote:
		return "awaiting_quote"
	case AwaitingFill:
		return "awaiting_fill"
	case Open:
		return "open"
	case Settling:
		return "settling"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

// InFlight reports whether the phase holds a contract
func (p Phase) InFlight() bool {
	return p == AwaitingQuote || p == AwaitingFill || p == Open
}

// Venue is the protocol session the controller drives
type Venue interface {
	Ready(ctx context.Context) error
	Done() <-chan struct{}
	Err() error
	Authorize(ctx context.Context, token string) (session.Account, error)
	Balance(ctx context.Context) (session.Balance, error)
	TicksHistory(ctx context.Context, symbol string, count int) ([]feeds.Sample, error)
	CandlesHistory(ctx context.Context, symbol string, granularity time.Duration, count int) ([]feeds.Candle, error)
	ProfitTable(ctx context.Context, limit int) ([]session.Transaction, error)
	SubscribeTicks(ctx context.Context, symbol string, fn func(session.Tick)) (*session.Subscription, error)
	Proposal(ctx context.Context, p session.ProposalParams) (session.Quote, error)
	Buy(ctx context.Context, quoteID string, price decimal.Decimal) (session.Purchase, error)
	SubscribeContract(ctx context.Context, contractID int64, fn func(session.ContractUpdate)) (*session.Subscription, error)
	Sell(ctx context.Context, contractID int64) (session.Sale, error)
	Unsubscribe(ctx context.Context, sub *session.Subscription) error
}

// Journal persists contracts
type Journal interface {
	RecordOpen(rec types.TradeRecord) error
	RecordSettlement(rec types.TradeRecord) error
}

// TradeNotifier interface for trade notifications (Telegram)
type TradeNotifier interface {
	NotifyOpen(rec types.TradeRecord)
	NotifySettled(rec types.TradeRecord, snap risk.Snapshot)
	NotifyStopped(runID, reason string)
	NotifyError(err error)
}

// Config for one controller
type Config struct {
	Token               string
	Symbol              string
	Currency            string
	HistoryCount        int
	WindowSize          int
	CandleBucket        time.Duration
	Duration            int    // Used when the strategy gives none
	DurationUnit        string // Used when the strategy gives none
	MaxContractDuration time.Duration
	Cooldown            time.Duration
	Continuous          bool
	MaxOpFailures       int
	ProfitTableLimit    int // Closed contracts read to seed the loss streak (0 = skip)
}

type Controller struct {
	cfg      Config
	venue    Venue
	strategy strategy.Strategy
	risk     *risk.State
	snapshot *feeds.Snapshot
	runID    string

	journal  Journal
	notifier TradeNotifier
	observer func(Phase)

	phase    atomic.Int32
	inFlight atomic.Int32

	// loop-owned
	tickCh        chan struct{}
	ticks         *session.Subscription
	cooldownUntil time.Time
	failures      map[string]int
	trades        int
	synced        bool

	mu       sync.Mutex
	contract *types.Contract
}

// NewController creates a controller for one token
func NewController(cfg Config, venue Venue, strat strategy.Strategy, rs *risk.State) *Controller {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 300
	}
	if cfg.HistoryCount <= 0 {
		cfg.HistoryCount = 20
	}
	if cfg.MaxOpFailures <= 0 {
		cfg.MaxOpFailures = 3
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}

	return &Controller{
		cfg:      cfg,
		venue:    venue,
		strategy: strat,
		risk:     rs,
		snapshot: feeds.NewSnapshot(cfg.WindowSize, cfg.CandleBucket),
		runID:    uuid.NewString(),
		tickCh:   make(chan struct{}, 1),
		failures: make(map[string]int),
	}
}

// SetJournal attaches trade persistence
func (c *Controller) SetJournal(j Journal) { c.journal = j }

// SetTradeNotifier sets the callback for trade notifications
func (c *Controller) SetTradeNotifier(n TradeNotifier) { c.notifier = n }

// OnPhase registers an observer called on every phase change
func (c *Controller) OnPhase(fn func(Phase)) { c.observer = fn }

// RunID identifies this controller run in logs and the journal
func (c *Controller) RunID() string { return c.runID }

// Phase returns the current phase
func (c *Controller) Phase() Phase { return Phase(c.phase.Load()) }

// Snapshot exposes the market window
func (c *Controller) Snapshot() *feeds.Snapshot { return c.snapshot }

// Contract returns the contract in flight, if any
func (c *Controller) Contract() *types.Contract {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.contract
}

// Run drives trade cycles until ctx is cancelled, a single cycle completes
// (unless continuous), or a fatal error occurs
func (c *Controller) Run(ctx context.Context) (err error) {
	defer func() {
		c.setPhase(Stopped)
		reason := "cancelled"
		if err != nil {
			reason = err.Error()
		} else if ctx.Err() == nil {
			reason = "cycle complete"
		}
		if c.notifier != nil {
			c.notifier.NotifyStopped(c.runID, reason)
		}
		snap := c.risk.Snapshot()
		log.Info().
			Str("run", c.runID).
			Str("reason", reason).
			Int("trades", c.trades).
			Int("wins", snap.Wins).
			Int("losses", snap.Losses).
			Str("pnl", snap.Cumulative.StringFixed(2)).
			Msg("🏁 Controller stopped")
	}()

	log.Info().
		Str("run", c.runID).
		Str("symbol", c.cfg.Symbol).
		Str("strategy", c.strategy.Name()).
		Bool("continuous", c.cfg.Continuous).
		Msg("⚡ Controller starting")

	if err := c.venue.Ready(ctx); err != nil {
		return c.exitErr(ctx, err)
	}
	if err := c.establish(ctx, true); err != nil {
		return c.exitErr(ctx, err)
	}
	if bal, err := c.venue.Balance(ctx); err == nil {
		log.Info().Str("balance", bal.Balance.StringFixed(2)).Str("currency", bal.Currency).Msg("💰 Balance")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.venue.Done():
			return fmt.Errorf("venue connection: %w", c.venue.Err())
		case <-c.ticks.Done():
			if err := c.reestablish(ctx); err != nil {
				return c.exitErr(ctx, err)
			}
			continue
		case <-c.tickCh:
		}

		if time.Now().Before(c.cooldownUntil) {
			continue
		}

		decision := c.strategy.Evaluate(c.snapshot.View())
		if !decision.Entering() {
			log.Debug().Str("reason", decision.Reason).Msg("No trade")
			continue
		}

		traded, err := c.cycle(ctx, decision)
		if err != nil {
			return err
		}
		if traded && !c.cfg.Continuous {
			return nil
		}
	}
}

// exitErr turns any error after cancellation into a clean stop
func (c *Controller) exitErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// establish authorizes, syncs the loss streak, primes history and
// subscribes ticks
func (c *Controller) establish(ctx context.Context, prime bool) error {
	if _, err := c.venue.Authorize(ctx, c.cfg.Token); err != nil {
		return err
	}

	if !c.synced && c.trades == 0 && c.cfg.ProfitTableLimit > 0 {
		if err := c.syncLossStreak(ctx); err != nil {
			return err
		}
	}

	if prime {
		if w, ok := c.strategy.(strategy.CandleWarmup); ok && w.CandlesNeeded() > 0 {
			candles, err := c.venue.CandlesHistory(ctx, c.cfg.Symbol, c.snapshot.Bucket(), w.CandlesNeeded())
			if err != nil {
				return fmt.Errorf("prime candles: %w", err)
			}
			c.snapshot.PrimeCandles(candles)
			log.Info().Int("candles", len(candles)).Dur("granularity", c.snapshot.Bucket()).Msg("🕯️ Candles primed")
		}

		history, err := c.venue.TicksHistory(ctx, c.cfg.Symbol, c.cfg.HistoryCount)
		if err != nil {
			return fmt.Errorf("prime history: %w", err)
		}
		c.snapshot.Prime(history)
		log.Info().Int("ticks", len(history)).Str("symbol", c.cfg.Symbol).Msg("📊 History primed")
	}

	sub, err := c.venue.SubscribeTicks(ctx, c.cfg.Symbol, c.onTick)
	if err != nil {
		return fmt.Errorf("subscribe ticks: %w", err)
	}
	c.ticks = sub
	return nil
}

// syncLossStreak seeds the stake ladder from the venue's recent closed
// contracts. Only a lost connection is an error.
func (c *Controller) syncLossStreak(ctx context.Context) error {
	txs, err := c.venue.ProfitTable(ctx, c.cfg.ProfitTableLimit)
	if err != nil {
		if errors.Is(err, session.ErrConnectionLost) {
			return err
		}
		log.Warn().Err(err).Msg("Profit table unavailable, starting from base stake")
		c.synced = true
		return nil
	}
	c.synced = true

	losses := session.ConsecutiveLosses(txs)
	log.Info().Int("transactions", len(txs)).Int("consecutive_losses", losses).Msg("📊 Profit table synced")
	c.risk.Seed(losses)
	return nil
}

// dropped reports whether the live tick stream ended with the connection
func (c *Controller) dropped() bool {
	select {
	case <-c.ticks.Done():
		return true
	default:
		return false
	}
}

// reestablish recovers from a dropped connection; the transport retry budget
// bounds how long this can take
func (c *Controller) reestablish(ctx context.Context) error {
	for {
		log.Warn().Str("run", c.runID).Msg("🔄 Connection lost, re-establishing session")

		select {
		case <-c.venue.Done():
			return fmt.Errorf("venue connection: %w", c.venue.Err())
		default:
		}
		if err := c.venue.Ready(ctx); err != nil {
			return err
		}

		err := c.establish(ctx, true)
		if err == nil {
			return nil
		}
		if !errors.Is(err, session.ErrConnectionLost) {
			return err
		}
	}
}

func (c *Controller) onTick(t session.Tick) {
	if err := c.snapshot.Push(t.Sample()); err != nil {
		log.Debug().Err(err).Int64("epoch", t.Epoch).Msg("Tick dropped")
		return
	}
	select {
	case c.tickCh <- struct{}{}:
	default:
	}
}

// cycle runs one quote → settle pass. traded is true once a contract settled.
func (c *Controller) cycle(ctx context.Context, d strategy.Decision) (traded bool, err error) {
	if !c.inFlight.CompareAndSwap(0, 1) {
		c.violation(0, "second contract while one is in flight")
		return false, nil
	}
	defer c.inFlight.Store(0)

	stake := c.risk.Stake()
	duration, unit := d.Duration, d.Unit
	if duration <= 0 {
		duration, unit = c.cfg.Duration, c.cfg.DurationUnit
	}

	log.Info().
		Str("direction", string(d.Direction)).
		Str("stake", stake.StringFixed(2)).
		Int("duration", duration).
		Str("unit", unit).
		Str("reason", d.Reason).
		Msg("🎯 SIGNAL DETECTED")

	// Quote
	c.setPhase(AwaitingQuote)
	quote, err := c.quote(ctx, session.ProposalParams{
		ContractType: string(d.Direction),
		Amount:       stake,
		Basis:        "stake",
		Currency:     c.cfg.Currency,
		Duration:     duration,
		DurationUnit: unit,
		Symbol:       c.cfg.Symbol,
	})
	if err != nil || quote.ID == "" {
		c.setPhase(Idle)
		return false, err
	}

	// Buy
	detached := context.WithoutCancel(ctx)
	contract := types.NewContract(c.runID, c.cfg.Symbol, d.Direction, stake)

	c.setPhase(AwaitingFill)
	if c.dropped() {
		log.Warn().Str("quote", quote.ID).Msg("Connection dropped before the buy, skipping signal")
		c.setPhase(Idle)
		return false, nil
	}
	purchase, err := c.venue.Buy(detached, quote.ID, quote.AskPrice)
	if err != nil {
		c.setPhase(Idle)
		if errors.Is(err, session.ErrConnectionLost) {
			log.Warn().Err(err).Msg("Buy lost with the connection, back to idle")
			return false, nil
		}
		return false, c.opFailed(ctx, "buy", err)
	}
	c.failures["buy"] = 0

	if err := contract.MarkOpen(purchase.ContractID, purchase.BuyPrice, time.Now()); err != nil {
		c.violation(purchase.ContractID, err.Error())
		c.setPhase(Idle)
		return false, nil
	}
	c.mu.Lock()
	c.contract = contract
	c.mu.Unlock()
	c.setPhase(Open)
	c.trades++

	log.Info().
		Int64("contract_id", contract.ID).
		Str("direction", string(contract.Direction)).
		Str("buy_price", contract.BuyPrice.StringFixed(2)).
		Str("longcode", purchase.Longcode).
		Msg("✅ Contract opened")

	rec := contract.Record(c.strategy.Name())
	if c.journal != nil {
		if err := c.journal.RecordOpen(rec); err != nil {
			log.Error().Err(err).Msg("Journal open failed")
		}
	}
	if c.notifier != nil {
		c.notifier.NotifyOpen(rec)
	}

	profit := c.follow(ctx, detached, contract)
	return true, c.settle(detached, contract, profit)
}

// quote requests a proposal and only returns one from the live connection.
// When the connection drops around the quote the session is re-established
// and the quote requested again, up to maxRequotes times. An empty quote with
// a nil error means the signal is skipped.
func (c *Controller) quote(ctx context.Context, p session.ProposalParams) (session.Quote, error) {
	for attempt := 0; ; attempt++ {
		q, err := c.venue.Proposal(ctx, p)
		lost := errors.Is(err, session.ErrConnectionLost)
		if err != nil && !lost {
			return session.Quote{}, c.opFailed(ctx, "proposal", err)
		}
		if ctx.Err() != nil {
			return session.Quote{}, nil
		}
		if err == nil {
			c.failures["proposal"] = 0
			// a quote from a dropped connection is never bought
			if !c.dropped() {
				return q, nil
			}
		}

		log.Warn().Str("quote", q.ID).Int("attempt", attempt+1).Msg("🔄 Connection dropped around the quote")
		if err := c.reestablish(ctx); err != nil {
			return session.Quote{}, c.exitErr(ctx, err)
		}
		if attempt >= maxRequotes {
			log.Warn().Int("attempts", attempt+1).Msg("Connection keeps dropping, skipping signal")
			return session.Quote{}, nil
		}
	}
}

// follow tracks an open contract until it settles and returns its profit.
// Cancellation and the duration ceiling both force a sell.
func (c *Controller) follow(ctx, detached context.Context, contract *types.Contract) decimal.Decimal {
	box := newSettlementBox()
	onUpdate := func(u session.ContractUpdate) {
		if u.ContractID != contract.ID {
			c.violation(u.ContractID, fmt.Sprintf("settlement event for untracked contract (tracking %d)", contract.ID))
			return
		}
		box.put(u)
	}

	var ceiling <-chan time.Time
	if c.cfg.MaxContractDuration > 0 {
		timer := time.NewTimer(c.cfg.MaxContractDuration)
		defer timer.Stop()
		ceiling = timer.C
	}

	var grace <-chan time.Time
	cancelled := ctx.Done()
	forced := false
	var sub *session.Subscription

	defer func() {
		if sub != nil {
			if err := c.venue.Unsubscribe(detached, sub); err != nil {
				log.Debug().Err(err).Msg("Contract unsubscribe failed")
			}
		}
	}()

	forceSell := func(why string) (decimal.Decimal, bool) {
		forced = true
		contract.Forced = true
		log.Warn().Int64("contract_id", contract.ID).Str("reason", why).Msg("⏹️ Forcing sell")

		sale, err := c.venue.Sell(detached, contract.ID)
		if err != nil {
			log.Warn().Err(err).Int64("contract_id", contract.ID).Msg("Forced sell failed, waiting for settlement")
			grace = time.After(settleGrace)
			return decimal.Zero, false
		}
		if u, ok := box.final(); ok {
			return u.Profit, true
		}
		profit := sale.SoldFor.Sub(contract.BuyPrice)
		log.Info().
			Int64("contract_id", contract.ID).
			Str("sold_for", sale.SoldFor.StringFixed(2)).
			Str("profit", profit.StringFixed(2)).
			Msg("💸 Contract sold")
		return profit, true
	}

	tracking := true
	for {
		if tracking && sub == nil {
			s, err := c.venue.SubscribeContract(detached, contract.ID, onUpdate)
			switch {
			case err == nil:
				sub = s
			case errors.Is(err, session.ErrConnectionLost):
				if rerr := c.reconnectForContract(detached); rerr != nil {
					log.Error().Err(rerr).Int64("contract_id", contract.ID).Msg("Lost contract tracking")
					return box.lastProfit()
				}
				continue
			default:
				tracking = false
				log.Error().Err(err).Int64("contract_id", contract.ID).Msg("Settlement subscription failed")
				if !forced {
					if p, ok := forceSell("settlement stream unavailable"); ok {
						return p
					}
				}
				if grace == nil {
					grace = time.After(settleGrace)
				}
			}
		}

		var subDone <-chan struct{}
		if sub != nil {
			subDone = sub.Done()
		}

		select {
		case <-box.notify:
			u, final := box.take()
			if err := contract.UpdateProfit(u.Profit); err != nil {
				c.violation(contract.ID, err.Error())
			}
			if final {
				return u.Profit
			}
		case <-subDone:
			// connection lost: reauthorize and resubscribe on the next pass
			if err := c.reconnectForContract(detached); err != nil {
				log.Error().Err(err).Int64("contract_id", contract.ID).Msg("Lost contract tracking")
				return box.lastProfit()
			}
			sub = nil
		case <-cancelled:
			cancelled = nil
			if !forced {
				if p, ok := forceSell("cancelled"); ok {
					return p
				}
			}
		case <-ceiling:
			if !forced {
				if p, ok := forceSell("max contract duration"); ok {
					return p
				}
			}
		case <-grace:
			log.Error().Int64("contract_id", contract.ID).Msg("No settlement after forced sell, using last known profit")
			return box.lastProfit()
		}
	}
}

// reconnectForContract waits for the connection and reauthorizes
func (c *Controller) reconnectForContract(ctx context.Context) error {
	for {
		select {
		case <-c.venue.Done():
			return fmt.Errorf("venue connection: %w", c.venue.Err())
		default:
		}
		if err := c.venue.Ready(ctx); err != nil {
			return err
		}
		_, err := c.venue.Authorize(ctx, c.cfg.Token)
		if err == nil {
			return nil
		}
		if !errors.Is(err, session.ErrConnectionLost) {
			return err
		}
	}
}

// settle finalizes the contract and applies risk. A non-nil error stops Run.
func (c *Controller) settle(ctx context.Context, contract *types.Contract, profit decimal.Decimal) error {
	c.setPhase(Settling)

	if err := contract.MarkSettled(profit, time.Now()); err != nil {
		c.violation(contract.ID, err.Error())
	}

	log.Info().
		Int64("contract_id", contract.ID).
		Str("profit", profit.StringFixed(2)).
		Bool("forced", contract.Forced).
		Msg("📊 Contract settled")

	var riskErr error
	if err := contract.MarkRiskApplied(); err != nil {
		c.violation(contract.ID, err.Error())
	} else {
		riskErr = c.risk.RecordSettlement(profit)
	}

	rec := contract.Record(c.strategy.Name())
	if c.journal != nil {
		if err := c.journal.RecordSettlement(rec); err != nil {
			log.Error().Err(err).Msg("Journal settlement failed")
		}
	}
	if c.notifier != nil {
		c.notifier.NotifySettled(rec, c.risk.Snapshot())
	}

	c.mu.Lock()
	c.contract = nil
	c.mu.Unlock()
	c.cooldownUntil = time.Now().Add(c.cfg.Cooldown)

	if riskErr != nil {
		return fmt.Errorf("%w: %w", ErrStopped, riskErr)
	}
	c.setPhase(Idle)
	return nil
}

// opFailed counts a failed operation; past the budget the controller stops
func (c *Controller) opFailed(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	if errors.Is(err, session.ErrConnectionLost) {
		log.Warn().Err(err).Str("op", op).Msg("Operation lost with the connection")
		return nil
	}

	var remote *session.RemoteError
	if !errors.As(err, &remote) && !errors.Is(err, session.ErrRequestTimeout) {
		return fmt.Errorf("%s: %w", op, err)
	}

	c.failures[op]++
	log.Warn().
		Err(err).
		Str("op", op).
		Int("failures", c.failures[op]).
		Int("budget", c.cfg.MaxOpFailures).
		Msg("Operation failed, back to idle")

	if c.failures[op] > c.cfg.MaxOpFailures {
		stop := fmt.Errorf("%w: %s failed %d times: %w", ErrTooManyFailures, op, c.failures[op], err)
		if c.notifier != nil {
			c.notifier.NotifyError(stop)
		}
		return stop
	}
	return nil
}

func (c *Controller) violation(contractID int64, reason string) {
	err := &types.InvariantViolation{ContractID: contractID, Reason: reason}
	log.Error().
		Bool("invariant_violation", true).
		Str("run", c.runID).
		Err(err).
		Msg("🚨 Invariant violation")
}

func (c *Controller) setPhase(p Phase) {
	prev := Phase(c.phase.Swap(int32(p)))
	if prev == p {
		return
	}
	log.Debug().
		Str("from", prev.String()).
		Str("to", p.String()).
		Msg("Phase")
	if c.observer != nil {
		c.observer(p)
	}
}

// settlementBox keeps the newest update; a sold update is never replaced
type settlementBox struct {
	mu     sync.Mutex
	latest session.ContractUpdate
	has    bool
	sold   bool
	notify chan struct{}
}

func newSettlementBox() *settlementBox {
	return &settlementBox{notify: make(chan struct{}, 1)}
}

func (b *settlementBox) put(u session.ContractUpdate) {
	b.mu.Lock()
	if b.sold {
		b.mu.Unlock()
		return
	}
	b.latest, b.has, b.sold = u, true, u.Sold()
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

func (b *settlementBox) take() (session.ContractUpdate, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latest, b.sold
}

func (b *settlementBox) final() (session.ContractUpdate, bool) {
	return b.take()
}

func (b *settlementBox) lastProfit() decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latest.Profit
}

// Summary formats the run for logs and notifications
func Summary(snap risk.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "W/L %d/%d", snap.Wins, snap.Losses)
	fmt.Fprintf(&b, " | PnL %s", snap.Cumulative.StringFixed(2))
	fmt.Fprintf(&b, " | next stake %s", snap.Stake.StringFixed(2))
	return b.String()
}
