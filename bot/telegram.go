package bot

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/derivbot/risk"
	"github.com/web3guy0/derivbot/storage"
	"github.com/web3guy0/derivbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TELEGRAM BOT - trade notifications & status commands
// ═══════════════════════════════════════════════════════════════════════════════
//
// Features:
//   💰 Contract notifications (open/settle/stop) from trader processes
//   📊 /status /stats /trades /ping from the server process
//
// ═══════════════════════════════════════════════════════════════════════════════

// StatsProvider provides journal statistics
type StatsProvider interface {
	Stats(runID string) (storage.Stats, error)
	RecentContracts(limit int) ([]storage.ContractRecord, error)
}

// TelegramBot manages the Telegram interface
type TelegramBot struct {
	mu      sync.RWMutex
	api     *tgbotapi.BotAPI
	chatID  int64
	label   string // Prefix naming the trader (masked token)
	running bool
	stopCh  chan struct{}

	statsProvider StatsProvider
	statusFn      func() []string
}

// NewTelegramBot creates a new Telegram bot
func NewTelegramBot(token string, chatID int64) (*TelegramBot, error) {
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN not set")
	}
	if chatID == 0 {
		return nil, fmt.Errorf("TELEGRAM_CHAT_ID not set")
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	log.Info().Str("username", api.Self.UserName).Msg("🤖 Telegram bot initialized")

	return &TelegramBot{
		api:    api,
		chatID: chatID,
		stopCh: make(chan struct{}),
	}, nil
}

// SetLabel names the trader in every notification
func (b *TelegramBot) SetLabel(label string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.label = label
}

// SetStatsProvider enables /stats and /trades
func (b *TelegramBot) SetStatsProvider(p StatsProvider) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statsProvider = p
}

// SetStatusFunc enables /status; fn lists running traders
func (b *TelegramBot) SetStatusFunc(fn func() []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statusFn = fn
}

// Start begins listening for commands
func (b *TelegramBot) Start() {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return
	}
	b.running = true
	b.mu.Unlock()

	go b.commandLoop()
	log.Info().Msg("📱 Telegram bot started")
}

// Stop stops the bot
func (b *TelegramBot) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return
	}

	b.running = false
	close(b.stopCh)
	b.api.StopReceivingUpdates()
	log.Info().Msg("Telegram bot stopped")
}

// ═══════════════════════════════════════════════════════════════════════════════
// NOTIFICATIONS
// ═══════════════════════════════════════════════════════════════════════════════

// NotifyOpen sends a contract open alert
func (b *TelegramBot) NotifyOpen(rec types.TradeRecord) {
	b.sendMarkdown(b.prefixed(formatOpen(rec)))
}

// NotifySettled sends a settlement alert with the running totals
func (b *TelegramBot) NotifySettled(rec types.TradeRecord, snap risk.Snapshot) {
	b.sendMarkdown(b.prefixed(formatSettled(rec, snap)))
}

// NotifyStopped sends a stop alert
func (b *TelegramBot) NotifyStopped(runID, reason string) {
	b.sendMarkdown(b.prefixed(formatStopped(runID, reason)))
}

// NotifyError sends an error alert
func (b *TelegramBot) NotifyError(err error) {
	b.sendMarkdown(b.prefixed(fmt.Sprintf("⚠️ *ERROR*\n\n`%s`", err.Error())))
}

func (b *TelegramBot) prefixed(msg string) string {
	b.mu.RLock()
	label := b.label
	b.mu.RUnlock()
	if label == "" {
		return msg
	}
	return fmt.Sprintf("🔑 `%s`\n%s", label, msg)
}

func signed(v decimal.Decimal) string {
	if v.IsNegative() {
		return v.StringFixed(2)
	}
	return "+" + v.StringFixed(2)
}

func directionEmoji(d types.Direction) string {
	if d == types.Rise {
		return "🟢"
	}
	return "🔴"
}

func formatOpen(rec types.TradeRecord) string {
	return fmt.Sprintf(`✅ *CONTRACT OPENED*

%s *%s* %s
━━━━━━━━━━━━━━━━
🆔 %d
💵 Stake: *$%s*
💳 Paid: *$%s*
🎯 Strategy: %s`,
		directionEmoji(rec.Direction), rec.Symbol, rec.Direction,
		rec.ContractID,
		rec.Stake.StringFixed(2),
		rec.BuyPrice.StringFixed(2),
		rec.Strategy,
	)
}

func formatSettled(rec types.TradeRecord, snap risk.Snapshot) string {
	emoji, title := "📈", "WON"
	if !rec.Profit.IsPositive() {
		emoji, title = "📉", "LOST"
	}
	if rec.Forced {
		title += " (sold early)"
	}

	hedge := ""
	if snap.Hedging {
		hedge = fmt.Sprintf(" (hedge after %d losses)", snap.ConsecutiveLosses)
	}

	return fmt.Sprintf(`%s *CONTRACT %s*

📊 %s %s #%d
💵 P&L: *%s$*
━━━━━━━━━━━━━━━━
✅ %d  ❌ %d  | Session: *%s$*
🎲 Next stake: *$%s*%s`,
		emoji, title,
		rec.Symbol, rec.Direction, rec.ContractID,
		signed(rec.Profit),
		snap.Wins, snap.Losses, signed(snap.Cumulative),
		snap.Stake.StringFixed(2), hedge,
	)
}

func formatStopped(runID, reason string) string {
	return fmt.Sprintf("🏁 *TRADER STOPPED*\n\n📝 %s\n_run %s_", reason, runID)
}

func formatStats(s storage.Stats) string {
	return fmt.Sprintf(`📈 *TRADING STATS*
━━━━━━━━━━━━━━━━━━━━

📊 Total Contracts: *%d*
✅ Wins: *%d*
❌ Losses: *%d*
⏹️ Sold early: *%d*
📈 Win Rate: *%.1f%%*

━━━━━━━━━━━━━━━━━━━━
💵 Total P&L: *%s$*`,
		s.Trades, s.Wins, s.Losses, s.Forced, s.WinRate(),
		signed(s.PnL),
	)
}

func formatTrades(rows []storage.ContractRecord) string {
	if len(rows) == 0 {
		return "📭 No contracts yet"
	}

	var sb strings.Builder
	sb.WriteString("📜 *LAST CONTRACTS*\n━━━━━━━━━━━━━━━━━━━━\n\n")
	for _, r := range rows {
		emoji := "⏳"
		switch r.Outcome {
		case "won":
			emoji = "💰"
		case "lost":
			emoji = "🛑"
		}
		pnl := ""
		if r.Status == types.Settled.String() {
			pnl = fmt.Sprintf(" | P&L: %s$", signed(r.Profit))
		}
		fmt.Fprintf(&sb, "%s %s %s $%s%s\n   _%s_\n\n",
			emoji, r.Symbol, r.Direction, r.Stake.StringFixed(2), pnl,
			r.OpenedAt.Format("Jan 2 15:04:05"),
		)
	}
	return sb.String()
}

func formatStatus(running []string) string {
	if len(running) == 0 {
		return "📊 *STATUS*\n\n💤 No traders running"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 *STATUS*\n\n🟢 %d trader(s) running\n", len(running))
	for _, r := range running {
		fmt.Fprintf(&sb, "• `%s`\n", r)
	}
	return sb.String()
}

// ═══════════════════════════════════════════════════════════════════════════════
// COMMAND HANDLING
// ═══════════════════════════════════════════════════════════════════════════════

func (b *TelegramBot) commandLoop() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-b.stopCh:
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}

			// Only respond to authorized chat
			if update.Message.Chat.ID != b.chatID {
				continue
			}

			b.sendMarkdown(b.reply(update.Message.Command()))
		}
	}
}

// reply renders the answer to one command
func (b *TelegramBot) reply(command string) string {
	b.mu.RLock()
	stats, statusFn := b.statsProvider, b.statusFn
	b.mu.RUnlock()

	switch strings.ToLower(command) {
	case "start", "help":
		return `🤖 *DERIVBOT COMMANDS*
━━━━━━━━━━━━━━━━━━━━

📊 /status — Running traders
📈 /stats — Contract statistics
📜 /trades — Last 10 contracts
🏓 /ping — Test connection`
	case "status":
		if statusFn == nil {
			return "❌ Status not available"
		}
		return formatStatus(statusFn())
	case "stats":
		if stats == nil {
			return "❌ Stats not available"
		}
		s, err := stats.Stats("")
		if err != nil {
			return "❌ Failed to fetch stats"
		}
		return formatStats(s)
	case "trades":
		if stats == nil {
			return "❌ Trades not available"
		}
		rows, err := stats.RecentContracts(10)
		if err != nil {
			return "❌ Failed to fetch contracts"
		}
		return formatTrades(rows)
	case "ping":
		return "🏓 Pong! " + time.Now().UTC().Format(time.RFC3339)
	}
	return "❓ Unknown command. Use /help"
}

// ═══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ═══════════════════════════════════════════════════════════════════════════════

func (b *TelegramBot) sendMarkdown(text string) {
	msg := tgbotapi.NewMessage(b.chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := b.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("Failed to send Telegram message")
	}
}
