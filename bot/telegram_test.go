package bot

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/web3guy0/derivbot/risk"
	"github.com/web3guy0/derivbot/storage"
	"github.com/web3guy0/derivbot/types"
)

func trade(profit float64, forced bool) types.TradeRecord {
	return types.TradeRecord{
		ContractID: 4242,
		Symbol:     "R_100",
		Strategy:   "tick_diff",
		Direction:  types.Fall,
		Stake:      decimal.NewFromInt(2),
		BuyPrice:   decimal.NewFromInt(2),
		Profit:     decimal.NewFromFloat(profit),
		Status:     types.Settled,
		Forced:     forced,
	}
}

func TestFormatSettled(t *testing.T) {
	snap := risk.Snapshot{Stake: decimal.NewFromInt(4), Wins: 1, Losses: 2, Cumulative: decimal.NewFromFloat(-1.05)}

	msg := formatSettled(trade(-2, false), snap)
	assert.Contains(t, msg, "CONTRACT LOST")
	assert.Contains(t, msg, "-2.00$")
	assert.Contains(t, msg, "Session: *-1.05$*")
	assert.Contains(t, msg, "Next stake: *$4.00*")

	msg = formatSettled(trade(1.9, true), snap)
	assert.Contains(t, msg, "CONTRACT WON (sold early)")
	assert.Contains(t, msg, "+1.90$")
	assert.NotContains(t, msg, "hedge")

	snap.Hedging, snap.ConsecutiveLosses = true, 5
	msg = formatSettled(trade(-2, false), snap)
	assert.Contains(t, msg, "Next stake: *$4.00* (hedge after 5 losses)")
}

func TestFormatOpen(t *testing.T) {
	msg := formatOpen(trade(0, false))
	assert.Contains(t, msg, "🔴 *R_100* PUT")
	assert.Contains(t, msg, "4242")
	assert.Contains(t, msg, "Stake: *$2.00*")
}

type fakeStats struct {
	stats storage.Stats
	rows  []storage.ContractRecord
	err   error
}

func (f fakeStats) Stats(string) (storage.Stats, error) { return f.stats, f.err }
func (f fakeStats) RecentContracts(int) ([]storage.ContractRecord, error) {
	return f.rows, f.err
}

func TestReplyCommands(t *testing.T) {
	b := &TelegramBot{}

	assert.Contains(t, b.reply("stats"), "not available")
	assert.Contains(t, b.reply("bogus"), "Unknown command")
	assert.Contains(t, b.reply("HELP"), "DERIVBOT COMMANDS")

	b.SetStatsProvider(fakeStats{
		stats: storage.Stats{Trades: 4, Wins: 3, Losses: 1, PnL: decimal.NewFromFloat(2.5)},
		rows: []storage.ContractRecord{
			{Symbol: "R_100", Direction: "CALL", Stake: decimal.NewFromInt(1), Status: "settled", Outcome: "won", Profit: decimal.NewFromFloat(0.95), OpenedAt: time.Unix(1_700_000_000, 0)},
			{Symbol: "R_100", Direction: "PUT", Stake: decimal.NewFromInt(2), Status: "open", OpenedAt: time.Unix(1_700_000_100, 0)},
		},
	})
	b.SetStatusFunc(func() []string { return []string{"abcd…wxyz"} })

	assert.Contains(t, b.reply("stats"), "Win Rate: *75.0%*")
	assert.Contains(t, b.reply("stats"), "+2.50$")

	trades := b.reply("trades")
	assert.Contains(t, trades, "💰 R_100 CALL $1.00 | P&L: +0.95$")
	assert.Contains(t, trades, "⏳ R_100 PUT $2.00\n")

	assert.Contains(t, b.reply("status"), "1 trader(s) running")

	b.SetStatsProvider(fakeStats{err: errors.New("db down")})
	assert.Contains(t, b.reply("trades"), "Failed")
}

func TestPrefixedLabel(t *testing.T) {
	b := &TelegramBot{}
	assert.Equal(t, "x", b.prefixed("x"))

	b.SetLabel("abcd…wxyz")
	assert.Equal(t, "🔑 `abcd…wxyz`\nx", b.prefixed("x"))
}
