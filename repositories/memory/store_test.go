package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Dosada05/esports-betting/models"
	"github.com/Dosada05/esports-betting/repositories"
	"github.com/shopspring/decimal"
)

type seeded struct {
	store        *Store
	tournamentID int
	gameID       int
	playerID     int
}

func seed(t *testing.T) seeded {
	t.Helper()
	ctx := context.Background()
	s := NewStore()
	tournament := &models.Tournament{Name: "Autumn Cup", Date: time.Now().AddDate(0, 0, 3)}
	game := &models.Game{Name: "Dota 2"}
	player := &models.Player{Name: "Miracle"}
	if err := s.CreateTournament(ctx, tournament); err != nil {
		t.Fatalf("CreateTournament() error = %v", err)
	}
	if err := s.CreateGame(ctx, game); err != nil {
		t.Fatalf("CreateGame() error = %v", err)
	}
	if err := s.CreatePlayer(ctx, player); err != nil {
		t.Fatalf("CreatePlayer() error = %v", err)
	}
	key := models.ParticipationKey{TournamentID: tournament.ID, GameID: game.ID, PlayerID: player.ID}
	if err := s.AddParticipation(ctx, key); err != nil {
		t.Fatalf("AddParticipation() error = %v", err)
	}
	for i := 1; i <= 7; i++ {
		u := &models.User{Username: fmt.Sprintf("u%d", i), Email: fmt.Sprintf("u%d@example.com", i), PasswordHash: "x"}
		if err := s.Create(ctx, u); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}
	return seeded{store: s, tournamentID: tournament.ID, gameID: game.ID, playerID: player.ID}
}

func TestWithinGameStagesWrites(t *testing.T) {
	ctx := context.Background()
	sd := seed(t)

	err := sd.store.WithinGame(ctx, sd.tournamentID, sd.gameID, func(l repositories.GameLedger) error {
		bet := &models.Bet{UserID: 7, PlayerID: sd.playerID, Amount: decimal.NewFromInt(25), LockedOdds: decimal.NewFromInt(1)}
		if err := l.UpsertBet(ctx, bet); err != nil {
			return err
		}
		// внутри транзакции запись уже видна
		pools, err := l.PoolByPlayer(ctx)
		if err != nil {
			return err
		}
		if !pools[sd.playerID].Equal(decimal.NewFromInt(25)) {
			t.Errorf("staged pool = %s, want 25", pools[sd.playerID])
		}
		// снаружи ещё нет
		outside, _ := sd.store.ListByUser(ctx, 7)
		if len(outside) != 0 {
			t.Errorf("uncommitted bet visible outside: %d bets", len(outside))
		}
		version, err := l.SetLiveOdds(ctx, map[int]decimal.Decimal{sd.playerID: decimal.RequireFromString("0.95")})
		if version != 1 {
			t.Errorf("SetLiveOdds() version = %d, want 1", version)
		}
		return err
	})
	if err != nil {
		t.Fatalf("WithinGame() error = %v", err)
	}

	bets, _ := sd.store.ListByUser(ctx, 7)
	if len(bets) != 1 || bets[0].Outcome != models.OutcomePending {
		t.Fatalf("committed bets = %+v", bets)
	}
	players, _ := sd.store.ListGamePlayers(ctx, sd.tournamentID, sd.gameID)
	if len(players) != 1 || !players[0].LiveOdds.Equal(decimal.RequireFromString("0.95")) || players[0].OddsVersion != 1 {
		t.Errorf("live odds after commit = %+v", players)
	}
}

func TestWithinGameRollsBack(t *testing.T) {
	ctx := context.Background()
	sd := seed(t)
	boom := errors.New("boom")

	err := sd.store.WithinGame(ctx, sd.tournamentID, sd.gameID, func(l repositories.GameLedger) error {
		bet := &models.Bet{UserID: 3, PlayerID: sd.playerID, Amount: decimal.NewFromInt(10), LockedOdds: decimal.NewFromInt(1)}
		if err := l.UpsertBet(ctx, bet); err != nil {
			return err
		}
		if _, err := l.SetLiveOdds(ctx, map[int]decimal.Decimal{sd.playerID: decimal.NewFromInt(5)}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithinGame() error = %v, want %v", err, boom)
	}

	if bets, _ := sd.store.ListByGame(ctx, sd.tournamentID, sd.gameID); len(bets) != 0 {
		t.Errorf("rolled back bets still stored: %+v", bets)
	}
	players, _ := sd.store.ListGamePlayers(ctx, sd.tournamentID, sd.gameID)
	if len(players) != 1 || !players[0].LiveOdds.Equal(decimal.NewFromInt(1)) || players[0].OddsVersion != 0 {
		t.Errorf("live odds after rollback = %+v", players)
	}
}

func TestLedgerErrors(t *testing.T) {
	ctx := context.Background()
	sd := seed(t)

	err := sd.store.WithinGame(ctx, sd.tournamentID, sd.gameID, func(l repositories.GameLedger) error {
		bet := &models.Bet{UserID: 1, PlayerID: sd.playerID + 100, Amount: decimal.NewFromInt(1)}
		return l.UpsertBet(ctx, bet)
	})
	if !errors.Is(err, repositories.ErrParticipationNotFound) {
		t.Errorf("upsert for outsider error = %v, want %v", err, repositories.ErrParticipationNotFound)
	}

	err = sd.store.WithinGame(ctx, sd.tournamentID, sd.gameID, func(l repositories.GameLedger) error {
		bet := &models.Bet{UserID: 404, PlayerID: sd.playerID, Amount: decimal.NewFromInt(1)}
		return l.UpsertBet(ctx, bet)
	})
	if !errors.Is(err, repositories.ErrUserNotFound) {
		t.Errorf("upsert for unknown user error = %v, want %v", err, repositories.ErrUserNotFound)
	}

	err = sd.store.WithinGame(ctx, sd.tournamentID, sd.gameID, func(l repositories.GameLedger) error {
		_, err := l.GetBet(ctx, 1, sd.playerID)
		return err
	})
	if !errors.Is(err, repositories.ErrBetNotFound) {
		t.Errorf("GetBet() error = %v, want %v", err, repositories.ErrBetNotFound)
	}

	key := models.BetKey{UserID: 1, TournamentID: sd.tournamentID, GameID: sd.gameID, PlayerID: sd.playerID}
	if err := sd.store.SetOutcome(ctx, key, models.OutcomeWon); !errors.Is(err, repositories.ErrBetNotFound) {
		t.Errorf("SetOutcome() error = %v, want %v", err, repositories.ErrBetNotFound)
	}
}

func TestWithinGameCanceledContext(t *testing.T) {
	sd := seed(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := sd.store.WithinGame(ctx, sd.tournamentID, sd.gameID, func(l repositories.GameLedger) error {
		called = true
		return nil
	})
	if err == nil || called {
		t.Errorf("WithinGame() on canceled ctx: err = %v, called = %v", err, called)
	}
}
