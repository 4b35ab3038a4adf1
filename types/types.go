package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SHARED TYPES - Avoid import cycles
// ═══════════════════════════════════════════════════════════════════════════════

// Direction is one of the two opposing contract outcomes
type Direction string

const (
	Rise Direction = "CALL"
	Fall Direction = "PUT"
)

// Opposite returns the other outcome
func (d Direction) Opposite() Direction {
	if d == Rise {
		return Fall
	}
	return Rise
}

// Status of a contract; transitions only move forward
type Status int

const (
	Pending Status = iota
	Open
	Settled
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Open:
		return "open"
	case Settled:
		return "settled"
	}
	return "unknown"
}

// InvariantViolation means local bookkeeping diverged from the venue
type InvariantViolation struct {
	ContractID int64
	Reason     string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation (contract %d): %s", e.ContractID, e.Reason)
}

// Contract is one position from buy request to settlement
type Contract struct {
	ID          int64 // Assigned on buy acknowledgment only
	RunID       string
	Symbol      string
	Direction   Direction
	Stake       decimal.Decimal
	BuyPrice    decimal.Decimal
	OpenedAt    time.Time
	SettledAt   time.Time
	Status      Status
	Profit      decimal.Decimal // Running
	FinalProfit decimal.Decimal
	Forced      bool // Closed by the controller rather than expiry

	riskApplied bool
}

// NewContract creates a pending contract for a buy about to be sent
func NewContract(runID, symbol string, dir Direction, stake decimal.Decimal) *Contract {
	return &Contract{
		RunID:     runID,
		Symbol:    symbol,
		Direction: dir,
		Stake:     stake,
		Status:    Pending,
	}
}

// MarkOpen records the buy acknowledgment
func (c *Contract) MarkOpen(id int64, buyPrice decimal.Decimal, at time.Time) error {
	if c.Status != Pending {
		return c.violation("open from " + c.Status.String())
	}
	if id == 0 {
		return c.violation("buy acknowledged without a contract id")
	}
	c.ID = id
	c.BuyPrice = buyPrice
	c.OpenedAt = at
	c.Status = Open
	return nil
}

// UpdateProfit records the running profit of an open contract
func (c *Contract) UpdateProfit(profit decimal.Decimal) error {
	if c.Status != Open {
		return c.violation("profit update while " + c.Status.String())
	}
	c.Profit = profit
	return nil
}

// MarkSettled finalizes the contract
func (c *Contract) MarkSettled(profit decimal.Decimal, at time.Time) error {
	if c.Status != Open {
		return c.violation("settle from " + c.Status.String())
	}
	c.Profit = profit
	c.FinalProfit = profit
	c.SettledAt = at
	c.Status = Settled
	return nil
}

// MarkRiskApplied claims the contract's single stake adjustment
func (c *Contract) MarkRiskApplied() error {
	if c.Status != Settled {
		return c.violation("stake adjustment before settlement")
	}
	if c.riskApplied {
		return c.violation("stake adjusted twice")
	}
	c.riskApplied = true
	return nil
}

// Won reports a profitable settlement
func (c *Contract) Won() bool {
	return c.Status == Settled && c.FinalProfit.IsPositive()
}

func (c *Contract) violation(reason string) error {
	return &InvariantViolation{ContractID: c.ID, Reason: reason}
}

// TradeRecord for display (Telegram bot) and the journal
type TradeRecord struct {
	RunID      string
	ContractID int64
	Symbol     string
	Strategy   string
	Direction  Direction
	Stake      decimal.Decimal
	BuyPrice   decimal.Decimal
	Profit     decimal.Decimal
	Status     Status
	Forced     bool
	OpenedAt   time.Time
	SettledAt  time.Time
}

// Record snapshots the contract for the journal
func (c *Contract) Record(strategy string) TradeRecord {
	return TradeRecord{
		RunID:      c.RunID,
		ContractID: c.ID,
		Symbol:     c.Symbol,
		Strategy:   strategy,
		Direction:  c.Direction,
		Stake:      c.Stake,
		BuyPrice:   c.BuyPrice,
		Profit:     c.FinalProfit,
		Status:     c.Status,
		Forced:     c.Forced,
		OpenedAt:   c.OpenedAt,
		SettledAt:  c.SettledAt,
	}
}
