package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// GameReport is the settlement ledger of a single game exported to object storage.
type GameReport struct {
	TournamentID   int             `json:"tournament_id"`
	TournamentName string          `json:"tournament_name"`
	GameID         int             `json:"game_id"`
	GameName       string          `json:"game_name"`
	GeneratedAt    time.Time       `json:"generated_at"`
	TotalPool      decimal.Decimal `json:"total_pool"`
	TotalPayout    decimal.Decimal `json:"total_payout"`
	Pending        int             `json:"pending"`
	Players        []*GamePlayer   `json:"players"`
	Bets           []*Bet          `json:"bets"`
}

// ReportRef points at an uploaded report.
type ReportRef struct {
	Key string `json:"key"`
	URL string `json:"url"`
}
