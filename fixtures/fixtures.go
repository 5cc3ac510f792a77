// Package fixtures loads catalog data (tournaments, games, players, lineups
// and finished matches) from a YAML document into a catalog store.
package fixtures

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Dosada05/esports-betting/models"
	"github.com/Dosada05/esports-betting/repositories"
	"gopkg.in/yaml.v3"
)

const dateLayout = "2006-01-02"

type File struct {
	Tournaments []Tournament `yaml:"tournaments"`
	Matches     []Match      `yaml:"matches"`
}

type Tournament struct {
	Name    string `yaml:"name"`
	Date    string `yaml:"date"`
	City    string `yaml:"city"`
	Country string `yaml:"country"`
	Games   []Game `yaml:"games"`
}

type Game struct {
	Name    string   `yaml:"name"`
	Players []string `yaml:"players"`
}

type Match struct {
	Tournament      string `yaml:"tournament"`
	Game            string `yaml:"game"`
	Winner          string `yaml:"winner"`
	Loser           string `yaml:"loser"`
	WinnerRoundsWon int    `yaml:"winner_rounds_won"`
	LoserRoundsWon  int    `yaml:"loser_rounds_won"`
}

// Summary counts what Apply wrote.
type Summary struct {
	Tournaments    int
	Games          int
	Players        int
	Participations int
	Matches        int
}

func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, fmt.Errorf("failed to decode fixtures: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) validate() error {
	var problems []string
	tournaments := make(map[string]bool, len(f.Tournaments))
	for i, t := range f.Tournaments {
		if strings.TrimSpace(t.Name) == "" {
			problems = append(problems, fmt.Sprintf("tournaments[%d]: name is required", i))
		}
		if tournaments[t.Name] {
			problems = append(problems, fmt.Sprintf("tournaments[%d]: duplicate name %q", i, t.Name))
		}
		tournaments[t.Name] = true
		if _, err := time.Parse(dateLayout, t.Date); err != nil {
			problems = append(problems, fmt.Sprintf("tournaments[%d]: date %q must be YYYY-MM-DD", i, t.Date))
		}
		for j, g := range t.Games {
			if strings.TrimSpace(g.Name) == "" {
				problems = append(problems, fmt.Sprintf("tournaments[%d].games[%d]: name is required", i, j))
			}
		}
	}
	for i, m := range f.Matches {
		if !tournaments[m.Tournament] {
			problems = append(problems, fmt.Sprintf("matches[%d]: unknown tournament %q", i, m.Tournament))
		}
		if m.Winner == "" || m.Loser == "" || m.Winner == m.Loser {
			problems = append(problems, fmt.Sprintf("matches[%d]: winner and loser must be two different players", i))
		}
		if m.WinnerRoundsWon < 0 || m.LoserRoundsWon < 0 {
			problems = append(problems, fmt.Sprintf("matches[%d]: rounds must not be negative", i))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid fixtures: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Apply writes the fixtures. Games and players are matched by name, so they
// are shared across tournaments.
func Apply(ctx context.Context, store repositories.CatalogWriter, f *File) (*Summary, error) {
	sum := &Summary{}
	tournamentIDs := make(map[string]int)
	gameIDs := make(map[string]int)
	playerIDs := make(map[string]int)

	game := func(name string) (int, error) {
		if id, ok := gameIDs[name]; ok {
			return id, nil
		}
		g := &models.Game{Name: name}
		if err := store.CreateGame(ctx, g); err != nil {
			return 0, err
		}
		gameIDs[name] = g.ID
		sum.Games++
		return g.ID, nil
	}
	player := func(name string) (int, error) {
		if id, ok := playerIDs[name]; ok {
			return id, nil
		}
		p := &models.Player{Name: name}
		if err := store.CreatePlayer(ctx, p); err != nil {
			return 0, err
		}
		playerIDs[name] = p.ID
		sum.Players++
		return p.ID, nil
	}

	for _, ft := range f.Tournaments {
		date, _ := time.Parse(dateLayout, ft.Date)
		t := &models.Tournament{
			Name:     ft.Name,
			Date:     date,
			Location: models.Location{City: ft.City, Country: ft.Country},
		}
		if err := store.CreateTournament(ctx, t); err != nil {
			return nil, fmt.Errorf("tournament %q: %w", ft.Name, err)
		}
		tournamentIDs[ft.Name] = t.ID
		sum.Tournaments++

		for _, fg := range ft.Games {
			gameID, err := game(fg.Name)
			if err != nil {
				return nil, fmt.Errorf("game %q: %w", fg.Name, err)
			}
			for _, name := range fg.Players {
				playerID, err := player(name)
				if err != nil {
					return nil, fmt.Errorf("player %q: %w", name, err)
				}
				key := models.ParticipationKey{TournamentID: t.ID, GameID: gameID, PlayerID: playerID}
				if err := store.AddParticipation(ctx, key); err != nil {
					return nil, fmt.Errorf("lineup of %q/%q: %w", ft.Name, fg.Name, err)
				}
				sum.Participations++
			}
		}
	}

	for _, fm := range f.Matches {
		gameID, err := game(fm.Game)
		if err != nil {
			return nil, fmt.Errorf("game %q: %w", fm.Game, err)
		}
		winnerID, err := player(fm.Winner)
		if err != nil {
			return nil, fmt.Errorf("player %q: %w", fm.Winner, err)
		}
		loserID, err := player(fm.Loser)
		if err != nil {
			return nil, fmt.Errorf("player %q: %w", fm.Loser, err)
		}
		m := &models.Match{
			TournamentID:    tournamentIDs[fm.Tournament],
			GameID:          gameID,
			WinnerID:        winnerID,
			LoserID:         loserID,
			WinnerRoundsWon: fm.WinnerRoundsWon,
			LoserRoundsWon:  fm.LoserRoundsWon,
		}
		if err := store.CreateMatch(ctx, m); err != nil {
			return nil, fmt.Errorf("match %s vs %s: %w", fm.Winner, fm.Loser, err)
		}
		sum.Matches++
	}
	return sum, nil
}
