package models

import "time"

// Match - сыгранный матч, источник прошедших результатов.
type Match struct {
	ID              int
	TournamentID    int
	GameID          int
	WinnerID        int
	LoserID         int
	WinnerRoundsWon int
	LoserRoundsWon  int
}

// PastResult is a finished match joined with tournament, game and player names.
type PastResult struct {
	ID              int       `json:"id"`
	Tournament      string    `json:"tournament"`
	Date            time.Time `json:"date"`
	City            string    `json:"city"`
	Country         string    `json:"country"`
	Game            string    `json:"game"`
	Winner          string    `json:"winner"`
	Loser           string    `json:"loser"`
	WinnerRoundsWon int       `json:"winnerRoundsWon"`
	LoserRoundsWon  int       `json:"loserRoundsWon"`
}

type Stats struct {
	UserCount     int `json:"userCount"`
	ActiveMatches int `json:"activeMatches"`
}
