// Journal - inspect the contract journal
//
// Opens the same database the traders write to (migrating it when new) and
// prints settled-contract stats plus the most recent contracts.
//
//	journal [-run RUN_ID] [-limit N]
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/derivbot/storage"
)

func main() {
	godotenv.Load()

	runID := flag.String("run", "", "only count contracts from this run")
	limit := flag.Int("limit", 20, "recent contracts to list")
	flag.Parse()

	dsn := os.Getenv("DATABASE_PATH")
	if dsn == "" {
		dsn = "data/derivbot.db"
	}

	fmt.Println("🔌 Opening journal...")
	db, err := storage.New(dsn)
	if err != nil {
		fmt.Printf("❌ Open error: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()
	fmt.Println("✅ Journal ready")

	stats, err := db.Stats(*runID)
	if err != nil {
		fmt.Printf("❌ Stats error: %v\n", err)
		os.Exit(1)
	}

	rows, err := db.RecentContracts(*limit)
	if err != nil {
		fmt.Printf("❌ Query error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\n📊 CONTRACTS - Recent: %d\n\n", len(rows))
	fmt.Println("═══════════════════════════════════════════════════════════════════════")
	fmt.Println("│ CONTRACT     │ DIR  │ STAKE    │ PROFIT   │ STATUS  │ NOTES")
	fmt.Println("═══════════════════════════════════════════════════════════════════════")

	for _, r := range rows {
		notes := r.Strategy
		if r.Forced {
			notes += " (sold early)"
		}
		profit := "-"
		if r.Status == "settled" {
			profit = signed(r.Profit)
		}
		fmt.Printf("│ %-12d │ %-4s │ %8s │ %8s │ %-7s │ %s\n",
			r.ContractID, r.Direction, r.Stake.StringFixed(2), profit, r.Status, notes)
	}

	fmt.Println("═══════════════════════════════════════════════════════════════════════")
	if *runID != "" {
		fmt.Printf("Run:      %s\n", *runID)
	}
	fmt.Printf("Settled:  %d (%d won / %d lost, %d sold early)\n", stats.Trades, stats.Wins, stats.Losses, stats.Forced)
	fmt.Printf("Win rate: %.1f%%\n", stats.WinRate())
	fmt.Printf("P&L:      %s\n", signed(stats.PnL))
}

func signed(v decimal.Decimal) string {
	if v.IsPositive() {
		return "+" + v.StringFixed(2)
	}
	return v.StringFixed(2)
}
