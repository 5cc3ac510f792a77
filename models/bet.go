package models

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// BetOutcome представляет статус расчёта ставки.
type BetOutcome string

const (
	OutcomePending BetOutcome = "pending"
	OutcomeWon     BetOutcome = "won"
	OutcomeLost    BetOutcome = "lost"
)

// BetKey is the unique key of a bet: one active bet per user per player in a game.
type BetKey struct {
	UserID       int
	TournamentID int
	GameID       int
	PlayerID     int
}

func (k BetKey) Participation() ParticipationKey {
	return ParticipationKey{TournamentID: k.TournamentID, GameID: k.GameID, PlayerID: k.PlayerID}
}

type Bet struct {
	ID           int             `json:"id"`
	UserID       int             `json:"user_id"`
	TournamentID int             `json:"tournament_id"`
	GameID       int             `json:"game_id"`
	PlayerID     int             `json:"player_id"`
	Amount       decimal.Decimal `json:"amount"`
	LockedOdds   decimal.Decimal `json:"locked_odds"`
	Outcome      BetOutcome      `json:"outcome"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`

	// Payout вычисляется при чтении, в БД не хранится.
	Payout *decimal.Decimal `json:"payout"`
}

func (b *Bet) Key() BetKey {
	return BetKey{UserID: b.UserID, TournamentID: b.TournamentID, GameID: b.GameID, PlayerID: b.PlayerID}
}

// OutcomeFromFlag converts the nullable is_winner column into an outcome.
func OutcomeFromFlag(flag sql.NullInt16) BetOutcome {
	if !flag.Valid {
		return OutcomePending
	}
	if flag.Int16 == 1 {
		return OutcomeWon
	}
	return OutcomeLost
}

// Flag is the inverse of OutcomeFromFlag.
func (o BetOutcome) Flag() sql.NullInt16 {
	switch o {
	case OutcomeWon:
		return sql.NullInt16{Int16: 1, Valid: true}
	case OutcomeLost:
		return sql.NullInt16{Int16: 0, Valid: true}
	default:
		return sql.NullInt16{}
	}
}
