package session

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/derivbot/feeds"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TYPED VENUE OPERATIONS
// ═══════════════════════════════════════════════════════════════════════════════

// Account is the authorized account
type Account struct {
	LoginID  string          `json:"loginid"`
	Currency string          `json:"currency"`
	Balance  decimal.Decimal `json:"balance"`
	Email    string          `json:"email"`
}

type authorizeReply struct {
	Authorize Account `json:"authorize"`
}

// Tick is one live price
type Tick struct {
	Symbol string  `json:"symbol"`
	Epoch  int64   `json:"epoch"`
	Quote  float64 `json:"quote"`
}

// Sample converts the tick for the market snapshot
func (t Tick) Sample() feeds.Sample {
	return feeds.Sample{Time: time.Unix(t.Epoch, 0), Price: t.Quote}
}

// TicksHistory fetches the last count ticks for symbol, oldest first
func (s *Session) TicksHistory(ctx context.Context, symbol string, count int) ([]feeds.Sample, error) {
	msg, err := s.Request(ctx, Request{
		Type: "history",
		Tag:  symbol,
		Payload: map[string]any{
			"ticks_history": symbol,
			"count":         count,
			"end":           "latest",
			"style":         "ticks",
		},
	})
	if err != nil {
		return nil, err
	}

	var reply struct {
		History struct {
			Prices []float64 `json:"prices"`
			Times  []int64   `json:"times"`
		} `json:"history"`
	}
	if err := msg.Decode(&reply); err != nil {
		return nil, err
	}

	h := reply.History
	if len(h.Prices) != len(h.Times) {
		return nil, fmt.Errorf("history: %d prices for %d times", len(h.Prices), len(h.Times))
	}
	out := make([]feeds.Sample, len(h.Prices))
	for i := range h.Prices {
		out[i] = feeds.Sample{Time: time.Unix(h.Times[i], 0), Price: h.Prices[i]}
	}
	return out, nil
}

// CandlesHistory fetches the last count candles of granularity for symbol,
// oldest first. The newest candle may still be forming.
func (s *Session) CandlesHistory(ctx context.Context, symbol string, granularity time.Duration, count int) ([]feeds.Candle, error) {
	msg, err := s.Request(ctx, Request{
		Type: "candles",
		Tag:  symbol,
		Payload: map[string]any{
			"ticks_history": symbol,
			"count":         count,
			"end":           "latest",
			"style":         "candles",
			"granularity":   int(granularity / time.Second),
		},
	})
	if err != nil {
		return nil, err
	}

	// prices arrive as numbers or strings depending on the server
	var reply struct {
		Candles []struct {
			Epoch int64           `json:"epoch"`
			Open  decimal.Decimal `json:"open"`
			High  decimal.Decimal `json:"high"`
			Low   decimal.Decimal `json:"low"`
			Close decimal.Decimal `json:"close"`
		} `json:"candles"`
	}
	if err := msg.Decode(&reply); err != nil {
		return nil, err
	}

	out := make([]feeds.Candle, len(reply.Candles))
	for i, c := range reply.Candles {
		out[i] = feeds.Candle{
			Start: time.Unix(c.Epoch, 0),
			Open:  c.Open.InexactFloat64(),
			High:  c.High.InexactFloat64(),
			Low:   c.Low.InexactFloat64(),
			Close: c.Close.InexactFloat64(),
		}
	}
	return out, nil
}

// SubscribeTicks streams live ticks for symbol
func (s *Session) SubscribeTicks(ctx context.Context, symbol string, fn func(Tick)) (*Subscription, error) {
	return s.Subscribe(ctx, "ticks:"+symbol, Request{
		Type:    "tick",
		Payload: map[string]any{"ticks": symbol, "subscribe": 1},
	}, func(m Message) {
		var ev struct {
			Tick Tick `json:"tick"`
		}
		if err := m.Decode(&ev); err != nil {
			return
		}
		fn(ev.Tick)
	})
}

// ProposalParams describes the contract to quote
type ProposalParams struct {
	ContractType string // CALL or PUT
	Amount       decimal.Decimal
	Basis        string
	Currency     string
	Duration     int
	DurationUnit string
	Symbol       string
}

// Quote is a venue price for a prospective contract
type Quote struct {
	ID       string          `json:"id"`
	AskPrice decimal.Decimal `json:"ask_price"`
	Payout   decimal.Decimal `json:"payout"`
	Spot     float64         `json:"spot"`
	Longcode string          `json:"longcode"`
}

// Proposal requests a quote. The contract type is the correlation tag so a
// CALL and a PUT quote can be in flight together.
func (s *Session) Proposal(ctx context.Context, p ProposalParams) (Quote, error) {
	basis := p.Basis
	if basis == "" {
		basis = "stake"
	}
	msg, err := s.Request(ctx, Request{
		Type: "proposal",
		Tag:  p.ContractType,
		Payload: map[string]any{
			"proposal":      1,
			"amount":        p.Amount.InexactFloat64(),
			"basis":         basis,
			"contract_type": p.ContractType,
			"currency":      p.Currency,
			"duration":      p.Duration,
			"duration_unit": p.DurationUnit,
			"symbol":        p.Symbol,
		},
	})
	if err != nil {
		return Quote{}, err
	}

	var reply struct {
		Proposal Quote `json:"proposal"`
	}
	if err := msg.Decode(&reply); err != nil {
		return Quote{}, err
	}
	return reply.Proposal, nil
}

// Purchase is a buy acknowledgment
type Purchase struct {
	ContractID    int64           `json:"contract_id"`
	BuyPrice      decimal.Decimal `json:"buy_price"`
	TransactionID int64           `json:"transaction_id"`
	StartTime     int64           `json:"start_time"`
	Longcode      string          `json:"longcode"`
}

// Buy accepts a quote at no more than price
func (s *Session) Buy(ctx context.Context, quoteID string, price decimal.Decimal) (Purchase, error) {
	msg, err := s.Request(ctx, Request{
		Type:    "buy",
		Tag:     quoteID,
		Payload: map[string]any{"buy": quoteID, "price": price.InexactFloat64()},
	})
	if err != nil {
		return Purchase{}, err
	}

	var reply struct {
		Buy Purchase `json:"buy"`
	}
	if err := msg.Decode(&reply); err != nil {
		return Purchase{}, err
	}
	return reply.Buy, nil
}

// ContractUpdate is one settlement stream event
type ContractUpdate struct {
	ContractID int64           `json:"contract_id"`
	Status     string          `json:"status"`
	IsSold     int             `json:"is_sold"`
	IsExpired  int             `json:"is_expired"`
	Profit     decimal.Decimal `json:"profit"`
	BuyPrice   decimal.Decimal `json:"buy_price"`
	SellPrice  decimal.Decimal `json:"sell_price"`
	BidPrice   decimal.Decimal `json:"bid_price"`
}

// Sold reports whether the contract is finished
func (u ContractUpdate) Sold() bool {
	return u.IsSold == 1
}

// SubscribeContract streams settlement updates for one contract
func (s *Session) SubscribeContract(ctx context.Context, contractID int64, fn func(ContractUpdate)) (*Subscription, error) {
	return s.Subscribe(ctx, "contract:"+strconv.FormatInt(contractID, 10), Request{
		Type: "proposal_open_contract",
		Payload: map[string]any{
			"proposal_open_contract": 1,
			"contract_id":            contractID,
			"subscribe":              1,
		},
	}, func(m Message) {
		var ev struct {
			Update ContractUpdate `json:"proposal_open_contract"`
		}
		if err := m.Decode(&ev); err != nil {
			return
		}
		fn(ev.Update)
	})
}

// Sale is a sell acknowledgment
type Sale struct {
	ContractID    int64           `json:"contract_id"`
	SoldFor       decimal.Decimal `json:"sold_for"`
	TransactionID int64           `json:"transaction_id"`
}

// Sell closes a contract at market
func (s *Session) Sell(ctx context.Context, contractID int64) (Sale, error) {
	id := strconv.FormatInt(contractID, 10)
	msg, err := s.Request(ctx, Request{
		Type:    "sell",
		Tag:     id,
		Payload: map[string]any{"sell": contractID, "price": 0},
	})
	if err != nil {
		return Sale{}, err
	}

	var reply struct {
		Sell Sale `json:"sell"`
	}
	if err := msg.Decode(&reply); err != nil {
		return Sale{}, err
	}
	return reply.Sell, nil
}

// Balance is the account balance
type Balance struct {
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency"`
	LoginID  string          `json:"loginid"`
}

// Balance fetches the current account balance
func (s *Session) Balance(ctx context.Context) (Balance, error) {
	msg, err := s.Request(ctx, Request{
		Type:    "balance",
		Payload: map[string]any{"balance": 1},
	})
	if err != nil {
		return Balance{}, err
	}

	var reply struct {
		Balance Balance `json:"balance"`
	}
	if err := msg.Decode(&reply); err != nil {
		return Balance{}, err
	}
	return reply.Balance, nil
}

// Transaction is one closed contract from the profit table
type Transaction struct {
	ContractID int64           `json:"contract_id"`
	BuyPrice   decimal.Decimal `json:"buy_price"`
	SellPrice  decimal.Decimal `json:"sell_price"`
	Profit     decimal.Decimal `json:"-"`
	SellTime   int64           `json:"sell_time"`
}

// ProfitTable fetches the last limit closed contracts, newest first. Profit
// is taken from the row when present, else sell minus buy price.
func (s *Session) ProfitTable(ctx context.Context, limit int) ([]Transaction, error) {
	msg, err := s.Request(ctx, Request{
		Type: "profit_table",
		Payload: map[string]any{
			"profit_table": 1,
			"limit":        limit,
			"sort":         "DESC",
		},
	})
	if err != nil {
		return nil, err
	}

	var reply struct {
		ProfitTable struct {
			Transactions []struct {
				Transaction
				Profit decimal.NullDecimal `json:"profit"`
			} `json:"transactions"`
		} `json:"profit_table"`
	}
	if err := msg.Decode(&reply); err != nil {
		return nil, err
	}

	out := make([]Transaction, len(reply.ProfitTable.Transactions))
	for i, row := range reply.ProfitTable.Transactions {
		tx := row.Transaction
		if row.Profit.Valid {
			tx.Profit = row.Profit.Decimal
		} else {
			tx.Profit = tx.SellPrice.Sub(tx.BuyPrice)
		}
		out[i] = tx
	}
	return out, nil
}

// ConsecutiveLosses counts losing contracts from the newest backwards
func ConsecutiveLosses(txs []Transaction) int {
	n := 0
	for _, tx := range txs {
		if !tx.Profit.IsNegative() {
			break
		}
		n++
	}
	return n
}
