package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Dosada05/esports-betting/models"
	"github.com/Dosada05/esports-betting/odds"
	"github.com/Dosada05/esports-betting/repositories"
	"github.com/shopspring/decimal"
)

// OddsPublisher receives the odds of a game after a committed bet mutation.
// version grows with every commit of the pair; publishers drop stale versions.
type OddsPublisher interface {
	PublishOdds(tournamentID, gameID int, version int64, odds []models.PlayerOdds)
}

type BetService interface {
	PlaceBet(ctx context.Context, input PlaceBetInput) (*PlaceBetResult, error)
	DeleteBetsForGame(ctx context.Context, input DeleteBetsInput) (*DeleteBetsResult, error)
	SetOutcome(ctx context.Context, input SetOutcomeInput) error
	ListUserBets(ctx context.Context, userID int) ([]*models.Bet, error)
}

type PlaceBetInput struct {
	UserID       int
	TournamentID int
	GameID       int
	PlayerID     int
	Amount       *decimal.Decimal
}

type PlaceBetResult struct {
	Bet         *models.Bet         `json:"bet,omitempty"`
	Deleted     bool                `json:"deleted"`
	Odds        []models.PlayerOdds `json:"odds"`
	OddsVersion int64               `json:"odds_version"`
}

type DeleteBetsInput struct {
	UserID       int
	TournamentID int
	GameID       int
}

type DeleteBetsResult struct {
	Deleted     int64               `json:"deleted"`
	Odds        []models.PlayerOdds `json:"odds"`
	OddsVersion int64               `json:"odds_version"`
}

type SetOutcomeInput struct {
	UserID       int
	TournamentID int
	GameID       int
	PlayerID     int
	IsWinner     *int
}

type betService struct {
	betRepo   repositories.BetRepository
	publisher OddsPublisher
	logger    *slog.Logger
}

// NewBetService создаёт сервис ставок. publisher может быть nil.
func NewBetService(betRepo repositories.BetRepository, publisher OddsPublisher, logger *slog.Logger) BetService {
	if logger == nil {
		logger = slog.Default()
	}
	return &betService{
		betRepo:   betRepo,
		publisher: publisher,
		logger:    logger,
	}
}

func validateIDs(v *validator, ids map[string]int) {
	for field, id := range ids {
		v.check(id > 0, field, "must be a positive identifier")
	}
}

func validatePlaceBet(input PlaceBetInput) error {
	v := newValidator()
	validateIDs(v, map[string]int{
		"userId":       input.UserID,
		"tournamentId": input.TournamentID,
		"gameId":       input.GameID,
		"playerId":     input.PlayerID,
	})
	v.check(input.Amount != nil, "amount", "is required")
	if input.Amount != nil {
		v.check(!input.Amount.IsNegative(), "amount", "must not be negative")
		v.check(input.Amount.LessThanOrEqual(odds.MaxStake), "amount", fmt.Sprintf("must not exceed %s", odds.MaxStake))
		v.check(input.Amount.Equal(input.Amount.Round(odds.AmountPlaces)),
			"amount", fmt.Sprintf("must have at most %d decimal places", odds.AmountPlaces))
	}
	return v.err()
}

func (s *betService) PlaceBet(ctx context.Context, input PlaceBetInput) (*PlaceBetResult, error) {
	if err := validatePlaceBet(input); err != nil {
		return nil, err
	}
	amount := *input.Amount

	result := &PlaceBetResult{}
	err := s.betRepo.WithinGame(ctx, input.TournamentID, input.GameID, func(ledger repositories.GameLedger) error {
		participations, err := ledger.Participations(ctx)
		if err != nil {
			return err
		}
		target := findParticipation(participations, input.PlayerID)
		if target == nil {
			return ErrParticipationNotFound
		}

		if amount.IsZero() {
			n, err := ledger.DeleteBet(ctx, input.UserID, input.PlayerID)
			if err != nil {
				return err
			}
			result.Deleted = n > 0
		} else {
			// повторная ставка той же суммы тоже перезаписывает locked_odds
			bet := &models.Bet{
				UserID:     input.UserID,
				PlayerID:   input.PlayerID,
				Amount:     amount,
				LockedOdds: target.LiveOdds,
			}
			if err := ledger.UpsertBet(ctx, bet); err != nil {
				return err
			}
			result.Bet = bet
		}

		pools, err := ledger.PoolByPlayer(ctx)
		if err != nil {
			return err
		}
		if odds.TotalPool(pools).GreaterThan(odds.MaxPool) {
			return NewValidationError("amount", fmt.Sprintf("game pool would exceed %s", odds.MaxPool))
		}
		result.Odds, result.OddsVersion, err = applyOdds(ctx, ledger, participations, pools)
		return err
	})
	if err != nil {
		return nil, s.translateRepoError("place bet", err)
	}

	s.logger.Info("bet saved",
		slog.Int("user_id", input.UserID),
		slog.Int("tournament_id", input.TournamentID),
		slog.Int("game_id", input.GameID),
		slog.Int("player_id", input.PlayerID),
		slog.String("amount", amount.String()),
		slog.Bool("deleted", result.Deleted),
		slog.Int64("odds_version", result.OddsVersion),
	)
	s.publish(input.TournamentID, input.GameID, result.OddsVersion, result.Odds)
	return result, nil
}

func (s *betService) DeleteBetsForGame(ctx context.Context, input DeleteBetsInput) (*DeleteBetsResult, error) {
	v := newValidator()
	validateIDs(v, map[string]int{
		"userId":       input.UserID,
		"tournamentId": input.TournamentID,
		"gameId":       input.GameID,
	})
	if err := v.err(); err != nil {
		return nil, err
	}

	result := &DeleteBetsResult{}
	err := s.betRepo.WithinGame(ctx, input.TournamentID, input.GameID, func(ledger repositories.GameLedger) error {
		participations, err := ledger.Participations(ctx)
		if err != nil {
			return err
		}
		if len(participations) == 0 {
			return ErrGameNotFound
		}
		if result.Deleted, err = ledger.DeleteUserBets(ctx, input.UserID); err != nil {
			return err
		}
		// пул изменился (или нет) - пересчитываем всегда
		result.Odds, result.OddsVersion, err = recomputeOdds(ctx, ledger, participations)
		return err
	})
	if err != nil {
		return nil, s.translateRepoError("delete bets", err)
	}

	s.logger.Info("bets withdrawn",
		slog.Int("user_id", input.UserID),
		slog.Int("tournament_id", input.TournamentID),
		slog.Int("game_id", input.GameID),
		slog.Int64("deleted", result.Deleted),
		slog.Int64("odds_version", result.OddsVersion),
	)
	s.publish(input.TournamentID, input.GameID, result.OddsVersion, result.Odds)
	return result, nil
}

func (s *betService) SetOutcome(ctx context.Context, input SetOutcomeInput) error {
	v := newValidator()
	validateIDs(v, map[string]int{
		"userId":       input.UserID,
		"tournamentId": input.TournamentID,
		"gameId":       input.GameID,
		"playerId":     input.PlayerID,
	})
	v.check(input.IsWinner != nil && (*input.IsWinner == 0 || *input.IsWinner == 1), "isWinner", "must be 0 or 1")
	if err := v.err(); err != nil {
		return err
	}

	outcome := models.OutcomeLost
	if *input.IsWinner == 1 {
		outcome = models.OutcomeWon
	}
	key := models.BetKey{
		UserID:       input.UserID,
		TournamentID: input.TournamentID,
		GameID:       input.GameID,
		PlayerID:     input.PlayerID,
	}
	if err := s.betRepo.SetOutcome(ctx, key, outcome); err != nil {
		return s.translateRepoError("set bet outcome", err)
	}
	s.logger.Info("bet settled", slog.Any("bet", key), slog.String("outcome", string(outcome)))
	return nil
}

func (s *betService) ListUserBets(ctx context.Context, userID int) ([]*models.Bet, error) {
	if userID <= 0 {
		return nil, NewValidationError("userId", "must be a positive identifier")
	}
	bets, err := s.betRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bets for user %d: %w", userID, err)
	}
	for _, b := range bets {
		applyPayout(b)
	}
	return bets, nil
}

// applyPayout заполняет выплату по сохранённым amount и locked_odds.
func applyPayout(b *models.Bet) {
	switch b.Outcome {
	case models.OutcomeWon:
		p := odds.Payout(b.Amount, b.LockedOdds)
		b.Payout = &p
	case models.OutcomeLost:
		p := decimal.Zero
		b.Payout = &p
	default:
		b.Payout = nil
	}
}

func findParticipation(participations []*models.Participation, playerID int) *models.Participation {
	for _, p := range participations {
		if p.PlayerID == playerID {
			return p
		}
	}
	return nil
}

// recomputeOdds пересчитывает коэффициенты всех игроков пары по текущему пулу.
func recomputeOdds(ctx context.Context, ledger repositories.GameLedger, participations []*models.Participation) ([]models.PlayerOdds, int64, error) {
	pools, err := ledger.PoolByPlayer(ctx)
	if err != nil {
		return nil, 0, err
	}
	return applyOdds(ctx, ledger, participations, pools)
}

func applyOdds(ctx context.Context, ledger repositories.GameLedger, participations []*models.Participation, pools map[int]decimal.Decimal) ([]models.PlayerOdds, int64, error) {
	playerIDs := make([]int, len(participations))
	for i, p := range participations {
		playerIDs[i] = p.PlayerID
	}
	next := odds.Recompute(playerIDs, pools)
	version, err := ledger.SetLiveOdds(ctx, next)
	if err != nil {
		return nil, 0, err
	}
	return odds.Snapshot(next), version, nil
}

func (s *betService) publish(tournamentID, gameID int, version int64, snapshot []models.PlayerOdds) {
	if s.publisher == nil {
		return
	}
	s.publisher.PublishOdds(tournamentID, gameID, version, snapshot)
}

func (s *betService) translateRepoError(op string, err error) error {
	switch {
	case errors.Is(err, ErrValidationFailed):
		return err
	case errors.Is(err, ErrParticipationNotFound), errors.Is(err, repositories.ErrParticipationNotFound):
		return ErrParticipationNotFound
	case errors.Is(err, repositories.ErrUserNotFound):
		return ErrUserNotFound
	case errors.Is(err, repositories.ErrOddsOutOfRange):
		return NewValidationError("amount", "game pool is too large")
	case errors.Is(err, ErrGameNotFound):
		return ErrGameNotFound
	case errors.Is(err, repositories.ErrBetNotFound):
		return ErrBetNotFound
	case errors.Is(err, repositories.ErrBetConflict):
		return ErrBetConflict
	default:
		return fmt.Errorf("failed to %s: %w", op, err)
	}
}
