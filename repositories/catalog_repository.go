package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/esports-betting/models"
)

var (
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrGameNotFound       = errors.New("game not found")
)

// CatalogRepository reads tournaments, games, players and results.
type CatalogRepository interface {
	GetTournament(ctx context.Context, id int) (*models.Tournament, error)
	GetGame(ctx context.Context, id int) (*models.Game, error)
	ListTournamentsFrom(ctx context.Context, from time.Time) ([]*models.Tournament, error)
	ListLineup(ctx context.Context, tournamentID int) ([]models.LineupEntry, error)
	ListGamesByTournament(ctx context.Context, tournamentID int) ([]*models.Game, error)
	ListGames(ctx context.Context) ([]*models.Game, error)
	ListPlayers(ctx context.Context) ([]*models.Player, error)
	ListGamePlayers(ctx context.Context, tournamentID, gameID int) ([]*models.GamePlayer, error)
	ListPastResults(ctx context.Context, before time.Time) ([]*models.PastResult, error)
	CountUsers(ctx context.Context) (int, error)
	CountGamesFrom(ctx context.Context, from time.Time) (int, error)
}

// CatalogWriter loads catalog fixtures. The betting flow never writes the catalog.
type CatalogWriter interface {
	CreateTournament(ctx context.Context, t *models.Tournament) error
	CreateGame(ctx context.Context, g *models.Game) error
	CreatePlayer(ctx context.Context, p *models.Player) error
	AddParticipation(ctx context.Context, key models.ParticipationKey) error
	CreateMatch(ctx context.Context, m *models.Match) error
}

// CatalogStore is a catalog that can be both read and loaded.
type CatalogStore interface {
	CatalogRepository
	CatalogWriter
}

type postgresCatalogRepository struct {
	db *sql.DB
}

func NewPostgresCatalogRepository(db *sql.DB) CatalogStore {
	return &postgresCatalogRepository{db: db}
}

func scanTournament(rowScanner interface {
	Scan(dest ...interface{}) error
}, t *models.Tournament) error {
	var city, country sql.NullString
	if err := rowScanner.Scan(&t.ID, &t.Name, &t.Date, &city, &country); err != nil {
		return err
	}
	t.Location = models.Location{City: city.String, Country: country.String}
	return nil
}

func (r *postgresCatalogRepository) GetTournament(ctx context.Context, id int) (*models.Tournament, error) {
	query := `SELECT id, name, date, city, country FROM tournaments WHERE id = $1`
	var t models.Tournament
	if err := scanTournament(r.db.QueryRowContext(ctx, query, id), &t); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to get tournament %d: %w", id, err)
	}
	return &t, nil
}

func (r *postgresCatalogRepository) GetGame(ctx context.Context, id int) (*models.Game, error) {
	query := `SELECT id, name FROM games WHERE id = $1`
	var g models.Game
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&g.ID, &g.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGameNotFound
		}
		return nil, fmt.Errorf("failed to get game %d: %w", id, err)
	}
	return &g, nil
}

func (r *postgresCatalogRepository) ListTournamentsFrom(ctx context.Context, from time.Time) ([]*models.Tournament, error) {
	query := `SELECT id, name, date, city, country FROM tournaments WHERE date >= $1 ORDER BY date ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query, from)
	if err != nil {
		return nil, fmt.Errorf("failed to list tournaments: %w", err)
	}
	defer rows.Close()

	tournaments := make([]*models.Tournament, 0)
	for rows.Next() {
		var t models.Tournament
		if err := scanTournament(rows, &t); err != nil {
			return nil, fmt.Errorf("failed to scan tournament row: %w", err)
		}
		tournaments = append(tournaments, &t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tournament rows: %w", err)
	}
	return tournaments, nil
}

func (r *postgresCatalogRepository) ListLineup(ctx context.Context, tournamentID int) ([]models.LineupEntry, error) {
	query := `
		SELECT pgt.tournament_id, g.id, g.name, p.id, p.name
		FROM players_games_tournaments pgt
		JOIN games g ON g.id = pgt.game_id
		JOIN players p ON p.id = pgt.player_id
		WHERE pgt.tournament_id = $1
		ORDER BY g.id, p.id`
	rows, err := r.db.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lineup for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	lineup := make([]models.LineupEntry, 0)
	for rows.Next() {
		var e models.LineupEntry
		if err := rows.Scan(&e.TournamentID, &e.GameID, &e.GameName, &e.PlayerID, &e.PlayerName); err != nil {
			return nil, fmt.Errorf("failed to scan lineup row: %w", err)
		}
		lineup = append(lineup, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lineup rows: %w", err)
	}
	return lineup, nil
}

func (r *postgresCatalogRepository) listGames(ctx context.Context, query string, args ...interface{}) ([]*models.Game, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	defer rows.Close()

	games := make([]*models.Game, 0)
	for rows.Next() {
		var g models.Game
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, fmt.Errorf("failed to scan game row: %w", err)
		}
		games = append(games, &g)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating game rows: %w", err)
	}
	return games, nil
}

func (r *postgresCatalogRepository) ListGamesByTournament(ctx context.Context, tournamentID int) ([]*models.Game, error) {
	query := `
		SELECT DISTINCT g.id, g.name
		FROM games g
		JOIN players_games_tournaments pgt ON g.id = pgt.game_id
		WHERE pgt.tournament_id = $1
		ORDER BY g.id`
	return r.listGames(ctx, query, tournamentID)
}

func (r *postgresCatalogRepository) ListGames(ctx context.Context) ([]*models.Game, error) {
	return r.listGames(ctx, `SELECT id, name FROM games ORDER BY id`)
}

func (r *postgresCatalogRepository) ListPlayers(ctx context.Context) ([]*models.Player, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM players ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	defer rows.Close()

	players := make([]*models.Player, 0)
	for rows.Next() {
		var p models.Player
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, fmt.Errorf("failed to scan player row: %w", err)
		}
		players = append(players, &p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating player rows: %w", err)
	}
	return players, nil
}

func (r *postgresCatalogRepository) ListGamePlayers(ctx context.Context, tournamentID, gameID int) ([]*models.GamePlayer, error) {
	query := `
		SELECT pgt.player_id, p.name, pgt.live_odds, pgt.odds_version,
		       COALESCE(SUM(b.amount), 0) AS total_amount,
		       COUNT(b.id) AS total_bets
		FROM players_games_tournaments pgt
		JOIN players p ON p.id = pgt.player_id
		LEFT JOIN bets b ON b.tournament_id = pgt.tournament_id
		                AND b.game_id = pgt.game_id
		                AND b.player_id = pgt.player_id
		WHERE pgt.tournament_id = $1 AND pgt.game_id = $2
		GROUP BY pgt.player_id, p.name, pgt.live_odds, pgt.odds_version
		ORDER BY pgt.player_id`
	rows, err := r.db.QueryContext(ctx, query, tournamentID, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list game players: %w", err)
	}
	defer rows.Close()

	players := make([]*models.GamePlayer, 0)
	for rows.Next() {
		var gp models.GamePlayer
		if err := rows.Scan(&gp.PlayerID, &gp.PlayerName, &gp.LiveOdds, &gp.OddsVersion, &gp.TotalAmount, &gp.TotalBets); err != nil {
			return nil, fmt.Errorf("failed to scan game player row: %w", err)
		}
		players = append(players, &gp)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating game player rows: %w", err)
	}
	return players, nil
}

func (r *postgresCatalogRepository) ListPastResults(ctx context.Context, before time.Time) ([]*models.PastResult, error) {
	query := `
		SELECT m.id, t.name, t.date, COALESCE(t.city, ''), COALESCE(t.country, ''),
		       g.name, w.name, l.name, m.winner_rounds_won, m.loser_rounds_won
		FROM matches m
		JOIN players w ON w.id = m.winner_id
		JOIN players l ON l.id = m.loser_id
		JOIN tournaments t ON t.id = m.tournament_id
		JOIN games g ON g.id = m.game_id
		WHERE t.date < $1
		ORDER BY t.date DESC, m.id`
	rows, err := r.db.QueryContext(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("failed to list past results: %w", err)
	}
	defer rows.Close()

	results := make([]*models.PastResult, 0)
	for rows.Next() {
		var pr models.PastResult
		if err := rows.Scan(&pr.ID, &pr.Tournament, &pr.Date, &pr.City, &pr.Country,
			&pr.Game, &pr.Winner, &pr.Loser, &pr.WinnerRoundsWon, &pr.LoserRoundsWon); err != nil {
			return nil, fmt.Errorf("failed to scan past result row: %w", err)
		}
		results = append(results, &pr)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating past result rows: %w", err)
	}
	return results, nil
}

func (r *postgresCatalogRepository) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

func (r *postgresCatalogRepository) CountGamesFrom(ctx context.Context, from time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM (
			SELECT DISTINCT pgt.tournament_id, pgt.game_id
			FROM players_games_tournaments pgt
			JOIN tournaments t ON t.id = pgt.tournament_id
			WHERE t.date >= $1
		) AS upcoming`
	var n int
	if err := r.db.QueryRowContext(ctx, query, from).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count upcoming games: %w", err)
	}
	return n, nil
}

func (r *postgresCatalogRepository) CreateTournament(ctx context.Context, t *models.Tournament) error {
	query := `INSERT INTO tournaments (name, date, city, country) VALUES ($1, $2, $3, $4) RETURNING id`
	if err := r.db.QueryRowContext(ctx, query, t.Name, t.Date, t.Location.City, t.Location.Country).Scan(&t.ID); err != nil {
		return fmt.Errorf("failed to create tournament %q: %w", t.Name, err)
	}
	return nil
}

// CreateGame создаёт игру или возвращает id существующей с тем же именем.
func (r *postgresCatalogRepository) CreateGame(ctx context.Context, g *models.Game) error {
	query := `
		INSERT INTO games (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`
	if err := r.db.QueryRowContext(ctx, query, g.Name).Scan(&g.ID); err != nil {
		return fmt.Errorf("failed to create game %q: %w", g.Name, err)
	}
	return nil
}

func (r *postgresCatalogRepository) CreatePlayer(ctx context.Context, p *models.Player) error {
	query := `
		INSERT INTO players (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`
	if err := r.db.QueryRowContext(ctx, query, p.Name).Scan(&p.ID); err != nil {
		return fmt.Errorf("failed to create player %q: %w", p.Name, err)
	}
	return nil
}

func (r *postgresCatalogRepository) AddParticipation(ctx context.Context, key models.ParticipationKey) error {
	query := `
		INSERT INTO players_games_tournaments (tournament_id, game_id, player_id)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, key.TournamentID, key.GameID, key.PlayerID); err != nil {
		if code, constraint, ok := pqConstraint(err); ok && code == pqForeignKeyViolation {
			return fmt.Errorf("participation %+v references a missing row (%s): %w", key, constraint, err)
		}
		return fmt.Errorf("failed to add participation: %w", err)
	}
	return nil
}

func (r *postgresCatalogRepository) CreateMatch(ctx context.Context, m *models.Match) error {
	query := `
		INSERT INTO matches (tournament_id, game_id, winner_id, loser_id, winner_rounds_won, loser_rounds_won)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	err := r.db.QueryRowContext(ctx, query,
		m.TournamentID, m.GameID, m.WinnerID, m.LoserID, m.WinnerRoundsWon, m.LoserRoundsWon,
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("failed to create match: %w", err)
	}
	return nil
}
