package models

import "github.com/shopspring/decimal"

// ParticipationKey identifies one player in one game at one tournament.
type ParticipationKey struct {
	TournamentID int
	GameID       int
	PlayerID     int
}

// Participation is the only row whose live odds change when bets move.
type Participation struct {
	TournamentID int             `json:"tournament_id"`
	GameID       int             `json:"game_id"`
	PlayerID     int             `json:"player_id"`
	LiveOdds     decimal.Decimal `json:"live_odds"`
	OddsVersion  int64           `json:"odds_version"`
}

func (p *Participation) Key() ParticipationKey {
	return ParticipationKey{TournamentID: p.TournamentID, GameID: p.GameID, PlayerID: p.PlayerID}
}

// PlayerOdds - текущий коэффициент игрока, рассылается клиентам после пересчёта.
type PlayerOdds struct {
	PlayerID int             `json:"player_id"`
	LiveOdds decimal.Decimal `json:"live_odds"`
}

// GamePlayer is a participant of a game with its live odds and aggregate betting volume.
type GamePlayer struct {
	PlayerID    int             `json:"player_id"`
	PlayerName  string          `json:"player_name"`
	LiveOdds    decimal.Decimal `json:"live_odds"`
	OddsVersion int64           `json:"odds_version"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	TotalBets   int             `json:"total_bets"`
}
