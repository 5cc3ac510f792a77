package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/Dosada05/esports-betting/models"
	"github.com/Dosada05/esports-betting/repositories"
	"github.com/Dosada05/esports-betting/storage"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const reportsPrefix = "reports"

// ReportService exports the settlement ledger of a game to object storage.
type ReportService interface {
	BuildReport(ctx context.Context, tournamentID, gameID int) (*models.GameReport, error)
	ExportReport(ctx context.Context, tournamentID, gameID int) (*models.ReportRef, error)
}

type reportService struct {
	catalog  repositories.CatalogRepository
	betRepo  repositories.BetRepository
	uploader storage.FileUploader
	logger   *slog.Logger
	now      func() time.Time
}

// NewReportService создаёт сервис отчётов. При uploader == nil экспорт отключён.
func NewReportService(
	catalog repositories.CatalogRepository,
	betRepo repositories.BetRepository,
	uploader storage.FileUploader,
	logger *slog.Logger,
) ReportService {
	if logger == nil {
		logger = slog.Default()
	}
	return &reportService{
		catalog:  catalog,
		betRepo:  betRepo,
		uploader: uploader,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *reportService) BuildReport(ctx context.Context, tournamentID, gameID int) (*models.GameReport, error) {
	if err := validatePair(tournamentID, gameID); err != nil {
		return nil, err
	}
	tournament, game, err := pairExists(ctx, s.catalog, tournamentID, gameID)
	if err != nil {
		return nil, err
	}

	var (
		players []*models.GamePlayer
		bets    []*models.Bet
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		players, err = s.catalog.ListGamePlayers(gCtx, tournamentID, gameID)
		if err != nil {
			return fmt.Errorf("failed to list players of game %d/%d: %w", tournamentID, gameID, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		bets, err = s.betRepo.ListByGame(gCtx, tournamentID, gameID)
		if err != nil {
			return fmt.Errorf("failed to list bets of game %d/%d: %w", tournamentID, gameID, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(players) == 0 {
		return nil, ErrGameNotFound
	}

	report := &models.GameReport{
		TournamentID:   tournament.ID,
		TournamentName: tournament.Name,
		GameID:         game.ID,
		GameName:       game.Name,
		GeneratedAt:    s.now().UTC(),
		TotalPool:      decimal.Zero,
		TotalPayout:    decimal.Zero,
		Players:        players,
		Bets:           bets,
	}
	for _, b := range bets {
		applyPayout(b)
		report.TotalPool = report.TotalPool.Add(b.Amount)
		if b.Payout != nil {
			report.TotalPayout = report.TotalPayout.Add(*b.Payout)
		} else {
			report.Pending++
		}
	}
	return report, nil
}

// reportKey: reports/<tournament-slug>/<game-slug>/<uuid>.json
func reportKey(tournamentName, gameName string) string {
	return path.Join(reportsPrefix, slug.Make(tournamentName), slug.Make(gameName), uuid.NewString()+".json")
}

func (s *reportService) ExportReport(ctx context.Context, tournamentID, gameID int) (*models.ReportRef, error) {
	if s.uploader == nil {
		return nil, ErrReportsDisabled
	}
	report, err := s.BuildReport(ctx, tournamentID, gameID)
	if err != nil {
		return nil, err
	}

	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}

	key := reportKey(report.TournamentName, report.GameName)
	result, err := s.uploader.Upload(ctx, key, "application/json", bytes.NewReader(body))
	if err != nil {
		s.logger.ErrorContext(ctx, "report upload failed",
			slog.Int("tournament_id", tournamentID),
			slog.Int("game_id", gameID),
			slog.String("key", key),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("failed to upload report: %w", err)
	}

	s.logger.InfoContext(ctx, "report exported",
		slog.Int("tournament_id", tournamentID),
		slog.Int("game_id", gameID),
		slog.String("key", result.Key),
		slog.Int("bets", len(report.Bets)),
	)
	return &models.ReportRef{Key: result.Key, URL: result.Location}, nil
}
