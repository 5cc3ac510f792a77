package models

import "time"

// Location города проведения турнира.
type Location struct {
	City    string `json:"city"`
	Country string `json:"country"`
}

// Tournament представляет турнир. Создаётся извне, здесь только читается.
type Tournament struct {
	ID       int       `json:"id" db:"id"`
	Name     string    `json:"name" db:"name"`
	Date     time.Time `json:"date" db:"date"`
	Location Location  `json:"location" db:"-"`

	Games []*TournamentGame `json:"games,omitempty" db:"-"`
}

// IsFuture reports whether the tournament takes place on or after the day of now.
func (t Tournament) IsFuture(now time.Time) bool {
	return !t.Date.Before(StartOfDay(now))
}

// StartOfDay truncates t to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type Game struct {
	ID   int    `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

type Player struct {
	ID   int    `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// TournamentGame - игра турнира вместе с заявленными игроками.
type TournamentGame struct {
	ID      int       `json:"id"`
	Name    string    `json:"name"`
	Players []*Player `json:"players"`
}

// LineupEntry is one row of the tournament/game/player association joined with names.
type LineupEntry struct {
	TournamentID int
	GameID       int
	GameName     string
	PlayerID     int
	PlayerName   string
}
