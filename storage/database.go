package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/web3guy0/derivbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// DATABASE - contract journal and subscriber store
// ═══════════════════════════════════════════════════════════════════════════════

type Database struct {
	db *gorm.DB
}

// Models

// ContractRecord is one contract from buy acknowledgment to settlement
type ContractRecord struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	RunID      string `gorm:"index"`
	ContractID int64  `gorm:"uniqueIndex"`
	Symbol     string `gorm:"index"`
	Strategy   string
	Direction  string          // "CALL" or "PUT"
	Stake      decimal.Decimal `gorm:"type:decimal(20,6)"`
	BuyPrice   decimal.Decimal `gorm:"type:decimal(20,6)"`
	Profit     decimal.Decimal `gorm:"type:decimal(20,6)"`
	Status     string          `gorm:"index"` // "open", "settled"
	Outcome    string          // "won", "lost"
	Forced     bool
	OpenedAt   time.Time
	SettledAt  *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Subscriber is a token enrolled for supervised trading
type Subscriber struct {
	Token     string `gorm:"primaryKey"`
	CreatedAt time.Time
}

// Stats summarizes settled contracts
type Stats struct {
	Trades int
	Wins   int
	Losses int
	Forced int
	PnL    decimal.Decimal
}

// WinRate returns wins over trades in percent
func (s Stats) WinRate() float64 {
	if s.Trades == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Trades) * 100
}

// New opens a Postgres URL or a SQLite path and migrates the models
func New(dsn string) (*Database, error) {
	var db *gorm.DB
	var err error

	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dsn), cfg)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		log.Info().Msg("💾 Database connected (PostgreSQL)")
	} else {
		if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
				return nil, err
			}
		}
		db, err = gorm.Open(sqlite.Open(sqliteDSN(dsn)), cfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		log.Info().Str("path", dsn).Msg("💾 Database initialized (SQLite)")
	}

	if err := db.AutoMigrate(&ContractRecord{}, &Subscriber{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Database{db: db}, nil
}

// sqliteDSN sets a busy timeout and WAL journaling on file databases; the
// server and every trader write to the same file
func sqliteDSN(dsn string) string {
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") || strings.Contains(dsn, "_busy_timeout") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_busy_timeout=5000&_journal_mode=WAL"
}

// Close releases the connection pool
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ═══════════════════════════════════════════════════════════════════════════════
// CONTRACT JOURNAL
// ═══════════════════════════════════════════════════════════════════════════════

func fromRecord(rec types.TradeRecord) ContractRecord {
	row := ContractRecord{
		RunID:      rec.RunID,
		ContractID: rec.ContractID,
		Symbol:     rec.Symbol,
		Strategy:   rec.Strategy,
		Direction:  string(rec.Direction),
		Stake:      rec.Stake,
		BuyPrice:   rec.BuyPrice,
		Profit:     rec.Profit,
		Status:     rec.Status.String(),
		Forced:     rec.Forced,
		OpenedAt:   rec.OpenedAt,
	}
	if rec.Status == types.Settled {
		at := rec.SettledAt
		row.SettledAt = &at
		row.Outcome = outcome(rec.Profit)
	}
	return row
}

func outcome(profit decimal.Decimal) string {
	if profit.IsPositive() {
		return "won"
	}
	return "lost"
}

// RecordOpen journals an acknowledged buy
func (d *Database) RecordOpen(rec types.TradeRecord) error {
	row := fromRecord(rec)
	return d.db.Create(&row).Error
}

// RecordSettlement finalizes a journaled contract, inserting it when the
// open was never recorded
func (d *Database) RecordSettlement(rec types.TradeRecord) error {
	at := rec.SettledAt
	res := d.db.Model(&ContractRecord{}).
		Where("contract_id = ?", rec.ContractID).
		Updates(map[string]interface{}{
			"profit":     rec.Profit,
			"status":     rec.Status.String(),
			"outcome":    outcome(rec.Profit),
			"forced":     rec.Forced,
			"settled_at": &at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	log.Warn().Int64("contract_id", rec.ContractID).Msg("Settlement for unjournaled contract")
	row := fromRecord(rec)
	return d.db.Create(&row).Error
}

// GetContract returns one journaled contract
func (d *Database) GetContract(contractID int64) (*ContractRecord, error) {
	var row ContractRecord
	err := d.db.First(&row, "contract_id = ?", contractID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &row, err
}

// RecentContracts returns the newest contracts first
func (d *Database) RecentContracts(limit int) ([]ContractRecord, error) {
	var rows []ContractRecord
	err := d.db.Order("opened_at DESC, id DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// Stats summarizes settled contracts; an empty runID covers every run
func (d *Database) Stats(runID string) (Stats, error) {
	var rows []ContractRecord
	q := d.db.Where("status = ?", types.Settled.String())
	if runID != "" {
		q = q.Where("run_id = ?", runID)
	}
	if err := q.Find(&rows).Error; err != nil {
		return Stats{}, err
	}

	s := Stats{PnL: decimal.Zero}
	for _, r := range rows {
		s.Trades++
		if r.Profit.IsPositive() {
			s.Wins++
		} else {
			s.Losses++
		}
		if r.Forced {
			s.Forced++
		}
		s.PnL = s.PnL.Add(r.Profit)
	}
	return s, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// SUBSCRIBERS
// ═══════════════════════════════════════════════════════════════════════════════

// SaveSubscriber enrolls a token; saving twice is a no-op
func (d *Database) SaveSubscriber(token string) error {
	return d.db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&Subscriber{Token: token}).Error
}

// DeleteSubscriber removes a token
func (d *Database) DeleteSubscriber(token string) error {
	return d.db.Delete(&Subscriber{}, "token = ?", token).Error
}

// ListSubscribers returns every enrolled token in enrollment order
func (d *Database) ListSubscribers() ([]string, error) {
	var subs []Subscriber
	if err := d.db.Order("created_at ASC, token ASC").Find(&subs).Error; err != nil {
		return nil, err
	}
	tokens := make([]string, len(subs))
	for i, s := range subs {
		tokens[i] = s.Token
	}
	return tokens, nil
}
