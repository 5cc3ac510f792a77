package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/esports-betting/models"
	"github.com/Dosada05/esports-betting/repositories"
	"golang.org/x/sync/errgroup"
)

// lineupFetchLimit ограничивает число параллельных запросов составов.
const lineupFetchLimit = 8

// ReadService serves the catalog and aggregate views. It never writes.
type ReadService interface {
	ListFutureTournaments(ctx context.Context) ([]*models.Tournament, error)
	ListTournamentGames(ctx context.Context, tournamentID int) ([]*models.Game, error)
	ListGames(ctx context.Context) ([]*models.Game, error)
	ListPlayers(ctx context.Context) ([]*models.Player, error)
	GamePlayers(ctx context.Context, tournamentID, gameID int) ([]*models.GamePlayer, error)
	GameTotals(ctx context.Context, tournamentID, gameID int) ([]*models.GamePlayer, error)
	PastResults(ctx context.Context) ([]*models.PastResult, error)
	Stats(ctx context.Context) (*models.Stats, error)
}

type readService struct {
	catalog repositories.CatalogRepository
	now     func() time.Time
}

func NewReadService(catalog repositories.CatalogRepository) ReadService {
	return &readService{catalog: catalog, now: time.Now}
}

func (s *readService) today() time.Time {
	return models.StartOfDay(s.now())
}

func (s *readService) ListFutureTournaments(ctx context.Context) ([]*models.Tournament, error) {
	tournaments, err := s.catalog.ListTournamentsFrom(ctx, s.today())
	if err != nil {
		return nil, fmt.Errorf("failed to list tournaments: %w", err)
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(lineupFetchLimit)
	for _, t := range tournaments {
		t := t
		g.Go(func() error {
			lineup, err := s.catalog.ListLineup(gCtx, t.ID)
			if err != nil {
				return fmt.Errorf("failed to load lineup of tournament %d: %w", t.ID, err)
			}
			t.Games = groupLineup(lineup)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tournaments, nil
}

// groupLineup сворачивает строки состава в игры с игроками, сохраняя порядок.
func groupLineup(lineup []models.LineupEntry) []*models.TournamentGame {
	games := make([]*models.TournamentGame, 0)
	byID := make(map[int]*models.TournamentGame)
	for _, row := range lineup {
		game, ok := byID[row.GameID]
		if !ok {
			game = &models.TournamentGame{ID: row.GameID, Name: row.GameName, Players: []*models.Player{}}
			byID[row.GameID] = game
			games = append(games, game)
		}
		game.Players = append(game.Players, &models.Player{ID: row.PlayerID, Name: row.PlayerName})
	}
	return games
}

func (s *readService) ListTournamentGames(ctx context.Context, tournamentID int) ([]*models.Game, error) {
	if tournamentID <= 0 {
		return nil, NewValidationError("tournamentId", "must be a positive identifier")
	}
	games, err := s.catalog.ListGamesByTournament(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list games of tournament %d: %w", tournamentID, err)
	}
	if len(games) == 0 {
		return nil, ErrNoGamesForTournament
	}
	return games, nil
}

func (s *readService) ListGames(ctx context.Context) ([]*models.Game, error) {
	games, err := s.catalog.ListGames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	return games, nil
}

func (s *readService) ListPlayers(ctx context.Context) ([]*models.Player, error) {
	players, err := s.catalog.ListPlayers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	return players, nil
}

func validatePair(tournamentID, gameID int) error {
	v := newValidator()
	validateIDs(v, map[string]int{"tournamentId": tournamentID, "gameId": gameID})
	return v.err()
}

func (s *readService) GamePlayers(ctx context.Context, tournamentID, gameID int) ([]*models.GamePlayer, error) {
	if err := validatePair(tournamentID, gameID); err != nil {
		return nil, err
	}
	players, err := s.catalog.ListGamePlayers(ctx, tournamentID, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list players of game %d/%d: %w", tournamentID, gameID, err)
	}
	return players, nil
}

// GameTotals returns only players that received at least one bet.
func (s *readService) GameTotals(ctx context.Context, tournamentID, gameID int) ([]*models.GamePlayer, error) {
	players, err := s.GamePlayers(ctx, tournamentID, gameID)
	if err != nil {
		return nil, err
	}
	totals := make([]*models.GamePlayer, 0, len(players))
	for _, p := range players {
		if p.TotalBets > 0 {
			totals = append(totals, p)
		}
	}
	return totals, nil
}

func (s *readService) PastResults(ctx context.Context) ([]*models.PastResult, error) {
	results, err := s.catalog.ListPastResults(ctx, s.today())
	if err != nil {
		return nil, fmt.Errorf("failed to list past results: %w", err)
	}
	return results, nil
}

func (s *readService) Stats(ctx context.Context) (*models.Stats, error) {
	stats := &models.Stats{}
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.catalog.CountUsers(gCtx)
		if err != nil {
			return fmt.Errorf("failed to count users: %w", err)
		}
		stats.UserCount = n
		return nil
	})
	g.Go(func() error {
		n, err := s.catalog.CountGamesFrom(gCtx, s.today())
		if err != nil {
			return fmt.Errorf("failed to count upcoming games: %w", err)
		}
		stats.ActiveMatches = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}

// pairExists проверяет, что турнир и игра существуют.
func pairExists(ctx context.Context, catalog repositories.CatalogRepository, tournamentID, gameID int) (*models.Tournament, *models.Game, error) {
	var (
		tournament *models.Tournament
		game       *models.Game
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := catalog.GetTournament(gCtx, tournamentID)
		if err != nil {
			if errors.Is(err, repositories.ErrTournamentNotFound) {
				return ErrTournamentNotFound
			}
			return fmt.Errorf("failed to get tournament %d: %w", tournamentID, err)
		}
		tournament = t
		return nil
	})
	g.Go(func() error {
		gm, err := catalog.GetGame(gCtx, gameID)
		if err != nil {
			if errors.Is(err, repositories.ErrGameNotFound) {
				return ErrGameNotFound
			}
			return fmt.Errorf("failed to get game %d: %w", gameID, err)
		}
		game = gm
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return tournament, game, nil
}
