package fixtures

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Dosada05/esports-betting/repositories/memory"
)

const sample = `
tournaments:
  - name: Spring Finals
    date: 2099-04-12
    city: Paris
    country: France
    games:
      - name: Valorant
        players: [TenZ, Derke]
      - name: Counter Strike 2
        players: [s1mple, ZywOo, TenZ]
  - name: Autumn Open
    date: 2020-10-01
    city: Katowice
    country: Poland
matches:
  - tournament: Autumn Open
    game: Counter Strike 2
    winner: s1mple
    loser: ZywOo
    winner_rounds_won: 16
    loser_rounds_won: 14
`

func TestParseAndApply(t *testing.T) {
	f, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	store := memory.NewStore()
	ctx := context.Background()
	sum, err := Apply(ctx, store, f)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	want := Summary{Tournaments: 2, Games: 2, Players: 4, Participations: 5, Matches: 1}
	if *sum != want {
		t.Errorf("Apply() summary = %+v, want %+v", *sum, want)
	}

	players, _ := store.ListPlayers(ctx)
	if len(players) != 4 {
		t.Errorf("store has %d players, want 4 (TenZ shared)", len(players))
	}

	upcoming, _ := store.ListTournamentsFrom(ctx, time.Now())
	if len(upcoming) != 1 || upcoming[0].Location.City != "Paris" {
		t.Errorf("upcoming tournaments = %+v", upcoming)
	}

	past, _ := store.ListPastResults(ctx, time.Now())
	if len(past) != 1 || past[0].Winner != "s1mple" || past[0].LoserRoundsWon != 14 {
		t.Errorf("past results = %+v", past)
	}
}

func TestParseRejectsInvalidFixtures(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"unknown key", "tournaments:\n  - name: A\n    date: 2020-01-01\n    venue: x\n", "field venue not found"},
		{"bad date", "tournaments:\n  - name: A\n    date: 01.02.2020\n", "must be YYYY-MM-DD"},
		{"missing name", "tournaments:\n  - date: 2020-01-01\n", "name is required"},
		{"unknown tournament", "matches:\n  - tournament: Nope\n    game: G\n    winner: a\n    loser: b\n", "unknown tournament"},
		{"self match", "tournaments:\n  - name: A\n    date: 2020-01-01\nmatches:\n  - tournament: A\n    game: G\n    winner: a\n    loser: a\n", "two different players"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.doc))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Parse() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestParseEmptyDocument(t *testing.T) {
	f, err := Parse(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Parse(empty) error = %v", err)
	}
	if len(f.Tournaments) != 0 || len(f.Matches) != 0 {
		t.Errorf("Parse(empty) = %+v", f)
	}
}
