package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/Dosada05/esports-betting/models"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

var (
	ErrBetNotFound           = errors.New("bet not found")
	ErrBetConflict           = errors.New("bet conflict: duplicate bet for this user and player")
	ErrParticipationNotFound = errors.New("participation not found")
	ErrOddsOutOfRange        = errors.New("live odds out of storable range")
)

// GameLedger is the view of one (tournament, game) pair inside a write
// transaction. Every participation row of the pair is locked for the lifetime
// of the ledger, so writers of the same pair are applied one at a time.
type GameLedger interface {
	// Participations returns the locked participation rows ordered by player id.
	Participations(ctx context.Context) ([]*models.Participation, error)
	GetBet(ctx context.Context, userID, playerID int) (*models.Bet, error)
	// UpsertBet creates or overwrites the bet keyed by user and player; the outcome resets to pending.
	UpsertBet(ctx context.Context, bet *models.Bet) error
	DeleteBet(ctx context.Context, userID, playerID int) (int64, error)
	DeleteUserBets(ctx context.Context, userID int) (int64, error)
	// PoolByPlayer sums stakes per player, reflecting writes made through this ledger.
	PoolByPlayer(ctx context.Context) (map[int]decimal.Decimal, error)
	// SetLiveOdds stores the odds and returns the pair's new odds version.
	SetLiveOdds(ctx context.Context, odds map[int]decimal.Decimal) (int64, error)
}

type BetRepository interface {
	// WithinGame runs fn in one transaction holding the pair's write lock.
	// Any error returned by fn rolls back every write made through the ledger.
	WithinGame(ctx context.Context, tournamentID, gameID int, fn func(ledger GameLedger) error) error
	ListByUser(ctx context.Context, userID int) ([]*models.Bet, error)
	ListByGame(ctx context.Context, tournamentID, gameID int) ([]*models.Bet, error)
	SetOutcome(ctx context.Context, key models.BetKey, outcome models.BetOutcome) error
}

type postgresBetRepository struct {
	db *sql.DB
}

func NewPostgresBetRepository(db *sql.DB) BetRepository {
	return &postgresBetRepository{db: db}
}

func (r *postgresBetRepository) WithinGame(ctx context.Context, tournamentID, gameID int, fn func(ledger GameLedger) error) (txErr error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if txErr != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Printf("Error during rollback for game %d/%d: %v. Original error: %v", tournamentID, gameID, rbErr, txErr)
				txErr = fmt.Errorf("transaction processing error: %w (rollback also failed: %v)", txErr, rbErr)
			}
		} else if cErr := tx.Commit(); cErr != nil {
			txErr = fmt.Errorf("failed to commit transaction: %w", cErr)
		}
	}()

	ledger := &postgresGameLedger{exec: tx, tournamentID: tournamentID, gameID: gameID}
	if err := ledger.lock(ctx); err != nil {
		return err
	}
	return fn(ledger)
}

const betColumns = `id, user_id, tournament_id, game_id, player_id, amount, locked_odds, is_winner, created_at, updated_at`

func scanBet(rowScanner interface {
	Scan(dest ...interface{}) error
}, b *models.Bet) error {
	var flag sql.NullInt16
	if err := rowScanner.Scan(
		&b.ID, &b.UserID, &b.TournamentID, &b.GameID, &b.PlayerID,
		&b.Amount, &b.LockedOdds, &flag, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return err
	}
	b.Outcome = models.OutcomeFromFlag(flag)
	return nil
}

func (r *postgresBetRepository) listBets(ctx context.Context, query string, args ...interface{}) ([]*models.Bet, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bets: %w", err)
	}
	defer rows.Close()

	bets := make([]*models.Bet, 0)
	for rows.Next() {
		var b models.Bet
		if err := scanBet(rows, &b); err != nil {
			return nil, fmt.Errorf("failed to scan bet row: %w", err)
		}
		bets = append(bets, &b)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bet rows: %w", err)
	}
	return bets, nil
}

func (r *postgresBetRepository) ListByUser(ctx context.Context, userID int) ([]*models.Bet, error) {
	query := `SELECT ` + betColumns + ` FROM bets WHERE user_id = $1 ORDER BY tournament_id, game_id, player_id`
	return r.listBets(ctx, query, userID)
}

func (r *postgresBetRepository) ListByGame(ctx context.Context, tournamentID, gameID int) ([]*models.Bet, error) {
	query := `SELECT ` + betColumns + ` FROM bets WHERE tournament_id = $1 AND game_id = $2 ORDER BY player_id, user_id`
	return r.listBets(ctx, query, tournamentID, gameID)
}

func (r *postgresBetRepository) SetOutcome(ctx context.Context, key models.BetKey, outcome models.BetOutcome) error {
	query := `
		UPDATE bets SET is_winner = $1, updated_at = NOW()
		WHERE user_id = $2 AND tournament_id = $3 AND game_id = $4 AND player_id = $5`
	result, err := r.db.ExecContext(ctx, query, outcome.Flag(), key.UserID, key.TournamentID, key.GameID, key.PlayerID)
	if err != nil {
		return fmt.Errorf("failed to update bet outcome: %w", err)
	}
	return checkAffectedRows(result, ErrBetNotFound)
}

type postgresGameLedger struct {
	exec           SQLExecutor
	tournamentID   int
	gameID         int
	participations []*models.Participation
	version        int64
}

// lock берёт row-level блокировку на все участия пары (tournament, game).
func (l *postgresGameLedger) lock(ctx context.Context) error {
	query := `
		SELECT tournament_id, game_id, player_id, live_odds, odds_version
		FROM players_games_tournaments
		WHERE tournament_id = $1 AND game_id = $2
		ORDER BY player_id
		FOR UPDATE`
	rows, err := l.exec.QueryContext(ctx, query, l.tournamentID, l.gameID)
	if err != nil {
		return fmt.Errorf("failed to lock participations for game %d/%d: %w", l.tournamentID, l.gameID, err)
	}
	defer rows.Close()

	l.participations = make([]*models.Participation, 0)
	for rows.Next() {
		var p models.Participation
		if err := rows.Scan(&p.TournamentID, &p.GameID, &p.PlayerID, &p.LiveOdds, &p.OddsVersion); err != nil {
			return fmt.Errorf("failed to scan participation row: %w", err)
		}
		if p.OddsVersion > l.version {
			l.version = p.OddsVersion
		}
		l.participations = append(l.participations, &p)
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("error iterating participation rows: %w", err)
	}
	return nil
}

func (l *postgresGameLedger) Participations(ctx context.Context) ([]*models.Participation, error) {
	return l.participations, nil
}

func (l *postgresGameLedger) GetBet(ctx context.Context, userID, playerID int) (*models.Bet, error) {
	query := `SELECT ` + betColumns + ` FROM bets
		WHERE user_id = $1 AND tournament_id = $2 AND game_id = $3 AND player_id = $4`
	var b models.Bet
	err := scanBet(l.exec.QueryRowContext(ctx, query, userID, l.tournamentID, l.gameID, playerID), &b)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBetNotFound
		}
		return nil, fmt.Errorf("failed to get bet: %w", err)
	}
	return &b, nil
}

func (l *postgresGameLedger) UpsertBet(ctx context.Context, bet *models.Bet) error {
	query := `
		INSERT INTO bets (user_id, tournament_id, game_id, player_id, amount, locked_odds)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, tournament_id, game_id, player_id)
		DO UPDATE SET amount = EXCLUDED.amount,
		              locked_odds = EXCLUDED.locked_odds,
		              is_winner = NULL,
		              updated_at = NOW()
		RETURNING id, created_at, updated_at`

	err := l.exec.QueryRowContext(ctx, query,
		bet.UserID, l.tournamentID, l.gameID, bet.PlayerID, bet.Amount, bet.LockedOdds,
	).Scan(&bet.ID, &bet.CreatedAt, &bet.UpdatedAt)
	if err != nil {
		if code, constraint, ok := pqConstraint(err); ok {
			switch code {
			case pqUniqueViolation:
				return ErrBetConflict
			case pqForeignKeyViolation:
				switch constraint {
				case "bets_participation_fkey":
					return ErrParticipationNotFound
				case "bets_user_id_fkey":
					return ErrUserNotFound
				}
				return fmt.Errorf("bet references missing row (%s): %w", constraint, err)
			}
		}
		return fmt.Errorf("failed to upsert bet: %w", err)
	}
	bet.TournamentID = l.tournamentID
	bet.GameID = l.gameID
	bet.Outcome = models.OutcomePending
	return nil
}

func (l *postgresGameLedger) DeleteBet(ctx context.Context, userID, playerID int) (int64, error) {
	query := `DELETE FROM bets WHERE user_id = $1 AND tournament_id = $2 AND game_id = $3 AND player_id = $4`
	result, err := l.exec.ExecContext(ctx, query, userID, l.tournamentID, l.gameID, playerID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete bet: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows for bet deletion: %w", err)
	}
	return n, nil
}

func (l *postgresGameLedger) DeleteUserBets(ctx context.Context, userID int) (int64, error) {
	query := `DELETE FROM bets WHERE user_id = $1 AND tournament_id = $2 AND game_id = $3`
	result, err := l.exec.ExecContext(ctx, query, userID, l.tournamentID, l.gameID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete user bets: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows for bets deletion: %w", err)
	}
	return n, nil
}

func (l *postgresGameLedger) PoolByPlayer(ctx context.Context) (map[int]decimal.Decimal, error) {
	query := `
		SELECT player_id, SUM(amount)
		FROM bets
		WHERE tournament_id = $1 AND game_id = $2
		GROUP BY player_id`
	rows, err := l.exec.QueryContext(ctx, query, l.tournamentID, l.gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum bet pools: %w", err)
	}
	defer rows.Close()

	pools := make(map[int]decimal.Decimal)
	for rows.Next() {
		var playerID int
		var sum decimal.Decimal
		if err := rows.Scan(&playerID, &sum); err != nil {
			return nil, fmt.Errorf("failed to scan pool row: %w", err)
		}
		pools[playerID] = sum
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pool rows: %w", err)
	}
	return pools, nil
}

// SetLiveOdds обновляет коэффициенты всех игроков пары одним запросом.
// Все строки пары получают одну и ту же новую версию.
func (l *postgresGameLedger) SetLiveOdds(ctx context.Context, odds map[int]decimal.Decimal) (int64, error) {
	if len(odds) == 0 {
		return l.version, nil
	}
	playerIDs := make([]int, 0, len(odds))
	for id := range odds {
		playerIDs = append(playerIDs, id)
	}
	sort.Ints(playerIDs)

	ids := make([]int64, len(playerIDs))
	values := make([]string, len(playerIDs))
	for i, id := range playerIDs {
		ids[i] = int64(id)
		values[i] = odds[id].String()
	}

	query := `
		UPDATE players_games_tournaments AS pgt
		SET live_odds = v.live_odds, odds_version = $5
		FROM unnest($3::int[], $4::numeric[]) AS v(player_id, live_odds)
		WHERE pgt.tournament_id = $1 AND pgt.game_id = $2 AND pgt.player_id = v.player_id`
	next := l.version + 1
	result, err := l.exec.ExecContext(ctx, query, l.tournamentID, l.gameID, pq.Array(ids), pq.Array(values), next)
	if err != nil {
		if code, _, ok := pqConstraint(err); ok && code == pqNumericOutOfRange {
			return 0, fmt.Errorf("live odds for game %d/%d out of range: %w", l.tournamentID, l.gameID, ErrOddsOutOfRange)
		}
		return 0, fmt.Errorf("failed to update live odds for game %d/%d: %w", l.tournamentID, l.gameID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows for live odds update: %w", err)
	}
	if int(n) != len(playerIDs) {
		return 0, fmt.Errorf("live odds update touched %d rows, expected %d: %w", n, len(playerIDs), ErrParticipationNotFound)
	}
	l.version = next
	for _, p := range l.participations {
		if v, ok := odds[p.PlayerID]; ok {
			p.LiveOdds = v
			p.OddsVersion = next
		}
	}
	return next, nil
}
