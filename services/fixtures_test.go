package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Dosada05/esports-betting/models"
	"github.com/Dosada05/esports-betting/repositories/memory"
	"github.com/shopspring/decimal"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func intPtr(v int) *int {
	return &v
}

// gameFixture - турнир с одной игрой и двумя игроками; outsider в игре не участвует.
type gameFixture struct {
	store      *memory.Store
	tournament *models.Tournament
	game       *models.Game
	playerA    *models.Player
	playerB    *models.Player
	outsider   *models.Player
}

func newGameFixture(t *testing.T, date time.Time) *gameFixture {
	t.Helper()
	ctx := context.Background()
	f := &gameFixture{
		store:      memory.NewStore(),
		tournament: &models.Tournament{Name: "Winter Major", Date: date, Location: models.Location{City: "Berlin", Country: "Germany"}},
		game:       &models.Game{Name: "Counter Strike 2"},
		playerA:    &models.Player{Name: "s1mple"},
		playerB:    &models.Player{Name: "ZywOo"},
		outsider:   &models.Player{Name: "NiKo"},
	}
	if err := f.store.CreateTournament(ctx, f.tournament); err != nil {
		t.Fatalf("CreateTournament() error = %v", err)
	}
	if err := f.store.CreateGame(ctx, f.game); err != nil {
		t.Fatalf("CreateGame() error = %v", err)
	}
	for _, p := range []*models.Player{f.playerA, f.playerB, f.outsider} {
		if err := f.store.CreatePlayer(ctx, p); err != nil {
			t.Fatalf("CreatePlayer(%q) error = %v", p.Name, err)
		}
	}
	for _, p := range []*models.Player{f.playerA, f.playerB} {
		key := models.ParticipationKey{TournamentID: f.tournament.ID, GameID: f.game.ID, PlayerID: p.ID}
		if err := f.store.AddParticipation(ctx, key); err != nil {
			t.Fatalf("AddParticipation(%+v) error = %v", key, err)
		}
	}
	return f
}

// withUsers регистрирует n игроков-пользователей с id 1..n.
func (f *gameFixture) withUsers(t *testing.T, n int) *gameFixture {
	t.Helper()
	for i := 1; i <= n; i++ {
		u := &models.User{
			Username:     fmt.Sprintf("bettor%d", i),
			Email:        fmt.Sprintf("bettor%d@example.com", i),
			PasswordHash: "x",
		}
		if err := f.store.Create(context.Background(), u); err != nil {
			t.Fatalf("Create(user %d) error = %v", i, err)
		}
		if u.ID != i {
			t.Fatalf("user %q got id %d, want %d", u.Username, u.ID, i)
		}
	}
	return f
}

func (f *gameFixture) bet(userID int, player *models.Player, amount string) PlaceBetInput {
	return PlaceBetInput{
		UserID:       userID,
		TournamentID: f.tournament.ID,
		GameID:       f.game.ID,
		PlayerID:     player.ID,
		Amount:       decPtr(amount),
	}
}

// liveOdds читает текущие коэффициенты игры, ключ - id игрока.
func (f *gameFixture) liveOdds(t *testing.T) map[int]decimal.Decimal {
	t.Helper()
	players, err := f.store.ListGamePlayers(context.Background(), f.tournament.ID, f.game.ID)
	if err != nil {
		t.Fatalf("ListGamePlayers() error = %v", err)
	}
	out := make(map[int]decimal.Decimal, len(players))
	for _, p := range players {
		out[p.PlayerID] = p.LiveOdds
	}
	return out
}

func assertDecimal(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Errorf("%s = %s, want %s", name, got, want)
	}
}

// recordingPublisher запоминает опубликованные снимки коэффициентов.
type recordingPublisher struct {
	mu       sync.Mutex
	calls    [][]models.PlayerOdds
	versions []int64
}

func (p *recordingPublisher) PublishOdds(tournamentID, gameID int, version int64, odds []models.PlayerOdds) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, odds)
	p.versions = append(p.versions, version)
}

func (p *recordingPublisher) lastVersion() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.versions) == 0 {
		return 0
	}
	return p.versions[len(p.versions)-1]
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}
