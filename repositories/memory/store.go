// Package memory is an in-process implementation of the repository
// interfaces. Writers of one (tournament, game) pair are serialized by a
// per-pair mutex; ledger writes are staged and applied only when the
// transaction function succeeds.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Dosada05/esports-betting/models"
	"github.com/Dosada05/esports-betting/odds"
	"github.com/Dosada05/esports-betting/repositories"
	"github.com/shopspring/decimal"
)

type gameKey struct {
	tournamentID int
	gameID       int
}

type Store struct {
	mu             sync.RWMutex
	tournaments    map[int]*models.Tournament
	games          map[int]*models.Game
	players        map[int]*models.Player
	participations map[models.ParticipationKey]*models.Participation
	bets           map[models.BetKey]*models.Bet
	matches        []*models.Match
	users          map[int]*models.User
	seq            map[string]int

	locksMu   sync.Mutex
	gameLocks map[gameKey]*sync.Mutex

	now func() time.Time
}

var (
	_ repositories.BetRepository  = (*Store)(nil)
	_ repositories.CatalogStore   = (*Store)(nil)
	_ repositories.UserRepository = (*Store)(nil)
)

func NewStore() *Store {
	return &Store{
		tournaments:    make(map[int]*models.Tournament),
		games:          make(map[int]*models.Game),
		players:        make(map[int]*models.Player),
		participations: make(map[models.ParticipationKey]*models.Participation),
		bets:           make(map[models.BetKey]*models.Bet),
		users:          make(map[int]*models.User),
		seq:            make(map[string]int),
		gameLocks:      make(map[gameKey]*sync.Mutex),
		now:            time.Now,
	}
}

// nextID выдаёт id из отдельной последовательности таблицы, как SERIAL.
// Вызывать под s.mu на запись.
func (s *Store) nextID(table string) int {
	s.seq[table]++
	return s.seq[table]
}

func (s *Store) gameLock(k gameKey) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	m, ok := s.gameLocks[k]
	if !ok {
		m = &sync.Mutex{}
		s.gameLocks[k] = m
	}
	return m
}

func copyBet(b *models.Bet) *models.Bet {
	c := *b
	c.Payout = nil
	return &c
}

// --- BetRepository ---

func (s *Store) WithinGame(ctx context.Context, tournamentID, gameID int, fn func(ledger repositories.GameLedger) error) error {
	k := gameKey{tournamentID: tournamentID, gameID: gameID}
	lock := s.gameLock(k)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	l := &ledger{
		store:  s,
		key:    k,
		writes: make(map[models.BetKey]*models.Bet),
	}
	s.mu.RLock()
	for _, p := range s.participations {
		if p.TournamentID == tournamentID && p.GameID == gameID {
			c := *p
			l.participations = append(l.participations, &c)
			if c.OddsVersion > l.version {
				l.version = c.OddsVersion
			}
		}
	}
	s.mu.RUnlock()
	sort.Slice(l.participations, func(i, j int) bool {
		return l.participations[i].PlayerID < l.participations[j].PlayerID
	})

	if err := fn(l); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.commit(l)
	return nil
}

func (s *Store) commit(l *ledger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, b := range l.writes {
		if b == nil {
			delete(s.bets, key)
			continue
		}
		s.bets[key] = b
	}
	for playerID, v := range l.odds {
		pk := models.ParticipationKey{TournamentID: l.key.tournamentID, GameID: l.key.gameID, PlayerID: playerID}
		if p, ok := s.participations[pk]; ok {
			p.LiveOdds = v
			p.OddsVersion = l.version
		}
	}
}

func (s *Store) ListByUser(ctx context.Context, userID int) ([]*models.Bet, error) {
	return s.filterBets(func(b *models.Bet) bool { return b.UserID == userID }), nil
}

func (s *Store) ListByGame(ctx context.Context, tournamentID, gameID int) ([]*models.Bet, error) {
	return s.filterBets(func(b *models.Bet) bool {
		return b.TournamentID == tournamentID && b.GameID == gameID
	}), nil
}

func (s *Store) filterBets(keep func(b *models.Bet) bool) []*models.Bet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Bet, 0)
	for _, b := range s.bets {
		if keep(b) {
			out = append(out, copyBet(b))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.TournamentID != b.TournamentID {
			return a.TournamentID < b.TournamentID
		}
		if a.GameID != b.GameID {
			return a.GameID < b.GameID
		}
		if a.PlayerID != b.PlayerID {
			return a.PlayerID < b.PlayerID
		}
		return a.UserID < b.UserID
	})
	return out
}

func (s *Store) SetOutcome(ctx context.Context, key models.BetKey, outcome models.BetOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bets[key]
	if !ok {
		return repositories.ErrBetNotFound
	}
	updated := *b
	updated.Outcome = outcome
	updated.UpdatedAt = s.now()
	s.bets[key] = &updated
	return nil
}

type ledger struct {
	store          *Store
	key            gameKey
	participations []*models.Participation
	writes         map[models.BetKey]*models.Bet // nil means deleted
	odds           map[int]decimal.Decimal
	version        int64
}

func (l *ledger) betKey(userID, playerID int) models.BetKey {
	return models.BetKey{UserID: userID, TournamentID: l.key.tournamentID, GameID: l.key.gameID, PlayerID: playerID}
}

// current merges committed bets of the pair with staged writes.
func (l *ledger) current() map[models.BetKey]*models.Bet {
	out := make(map[models.BetKey]*models.Bet)
	l.store.mu.RLock()
	for k, b := range l.store.bets {
		if k.TournamentID == l.key.tournamentID && k.GameID == l.key.gameID {
			out[k] = b
		}
	}
	l.store.mu.RUnlock()
	for k, b := range l.writes {
		if b == nil {
			delete(out, k)
			continue
		}
		out[k] = b
	}
	return out
}

func (l *ledger) Participations(ctx context.Context) ([]*models.Participation, error) {
	return l.participations, nil
}

func (l *ledger) GetBet(ctx context.Context, userID, playerID int) (*models.Bet, error) {
	b, ok := l.current()[l.betKey(userID, playerID)]
	if !ok {
		return nil, repositories.ErrBetNotFound
	}
	return copyBet(b), nil
}

func (l *ledger) hasParticipant(playerID int) bool {
	for _, p := range l.participations {
		if p.PlayerID == playerID {
			return true
		}
	}
	return false
}

func (l *ledger) UpsertBet(ctx context.Context, bet *models.Bet) error {
	if !l.hasParticipant(bet.PlayerID) {
		return repositories.ErrParticipationNotFound
	}
	if !bet.Amount.IsPositive() {
		return fmt.Errorf("failed to upsert bet: amount %s violates check constraint", bet.Amount)
	}
	l.store.mu.RLock()
	_, userExists := l.store.users[bet.UserID]
	l.store.mu.RUnlock()
	if !userExists {
		return repositories.ErrUserNotFound
	}
	key := l.betKey(bet.UserID, bet.PlayerID)
	now := l.store.now()

	stored := &models.Bet{
		UserID:       bet.UserID,
		TournamentID: l.key.tournamentID,
		GameID:       l.key.gameID,
		PlayerID:     bet.PlayerID,
		Amount:       bet.Amount.Round(odds.AmountPlaces),
		LockedOdds:   bet.LockedOdds.Round(odds.OddsPlaces),
		Outcome:      models.OutcomePending,
		UpdatedAt:    now,
	}
	if existing, ok := l.current()[key]; ok {
		stored.ID = existing.ID
		stored.CreatedAt = existing.CreatedAt
	} else {
		l.store.mu.Lock()
		stored.ID = l.store.nextID("bets")
		l.store.mu.Unlock()
		stored.CreatedAt = now
	}
	l.writes[key] = stored

	bet.ID = stored.ID
	bet.TournamentID = stored.TournamentID
	bet.GameID = stored.GameID
	bet.Amount = stored.Amount
	bet.LockedOdds = stored.LockedOdds
	bet.Outcome = stored.Outcome
	bet.CreatedAt = stored.CreatedAt
	bet.UpdatedAt = stored.UpdatedAt
	return nil
}

func (l *ledger) DeleteBet(ctx context.Context, userID, playerID int) (int64, error) {
	key := l.betKey(userID, playerID)
	if _, ok := l.current()[key]; !ok {
		return 0, nil
	}
	l.writes[key] = nil
	return 1, nil
}

func (l *ledger) DeleteUserBets(ctx context.Context, userID int) (int64, error) {
	var n int64
	for key := range l.current() {
		if key.UserID == userID {
			l.writes[key] = nil
			n++
		}
	}
	return n, nil
}

func (l *ledger) PoolByPlayer(ctx context.Context) (map[int]decimal.Decimal, error) {
	pools := make(map[int]decimal.Decimal)
	for key, b := range l.current() {
		pools[key.PlayerID] = pools[key.PlayerID].Add(b.Amount)
	}
	return pools, nil
}

func (l *ledger) SetLiveOdds(ctx context.Context, values map[int]decimal.Decimal) (int64, error) {
	if len(values) == 0 {
		return l.version, nil
	}
	for playerID := range values {
		if !l.hasParticipant(playerID) {
			return 0, fmt.Errorf("live odds update for player %d: %w", playerID, repositories.ErrParticipationNotFound)
		}
	}
	l.version++
	if l.odds == nil {
		l.odds = make(map[int]decimal.Decimal, len(values))
	}
	for playerID, v := range values {
		l.odds[playerID] = v.Round(odds.OddsPlaces)
	}
	for _, p := range l.participations {
		if v, ok := l.odds[p.PlayerID]; ok {
			p.LiveOdds = v
			p.OddsVersion = l.version
		}
	}
	return l.version, nil
}

// --- CatalogRepository ---

func (s *Store) GetTournament(ctx context.Context, id int) (*models.Tournament, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tournaments[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	c := *t
	return &c, nil
}

func (s *Store) GetGame(ctx context.Context, id int) (*models.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.games[id]
	if !ok {
		return nil, repositories.ErrGameNotFound
	}
	c := *g
	return &c, nil
}

func (s *Store) ListTournamentsFrom(ctx context.Context, from time.Time) ([]*models.Tournament, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Tournament, 0)
	for _, t := range s.tournaments {
		if !t.Date.Before(from) {
			c := *t
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) ListLineup(ctx context.Context, tournamentID int) ([]models.LineupEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.LineupEntry, 0)
	for k := range s.participations {
		if k.TournamentID != tournamentID {
			continue
		}
		out = append(out, models.LineupEntry{
			TournamentID: k.TournamentID,
			GameID:       k.GameID,
			GameName:     s.games[k.GameID].Name,
			PlayerID:     k.PlayerID,
			PlayerName:   s.players[k.PlayerID].Name,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GameID != out[j].GameID {
			return out[i].GameID < out[j].GameID
		}
		return out[i].PlayerID < out[j].PlayerID
	})
	return out, nil
}

func (s *Store) ListGamesByTournament(ctx context.Context, tournamentID int) ([]*models.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[int]bool)
	out := make([]*models.Game, 0)
	for k := range s.participations {
		if k.TournamentID != tournamentID || seen[k.GameID] {
			continue
		}
		seen[k.GameID] = true
		c := *s.games[k.GameID]
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListGames(ctx context.Context) ([]*models.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Game, 0, len(s.games))
	for _, g := range s.games {
		c := *g
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListPlayers(ctx context.Context) ([]*models.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Player, 0, len(s.players))
	for _, p := range s.players {
		c := *p
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListGamePlayers(ctx context.Context, tournamentID, gameID int) ([]*models.GamePlayer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byPlayer := make(map[int]*models.GamePlayer)
	out := make([]*models.GamePlayer, 0)
	for k, p := range s.participations {
		if k.TournamentID != tournamentID || k.GameID != gameID {
			continue
		}
		gp := &models.GamePlayer{
			PlayerID:    k.PlayerID,
			PlayerName:  s.players[k.PlayerID].Name,
			LiveOdds:    p.LiveOdds,
			OddsVersion: p.OddsVersion,
			TotalAmount: decimal.Zero,
		}
		byPlayer[k.PlayerID] = gp
		out = append(out, gp)
	}
	for k, b := range s.bets {
		if k.TournamentID != tournamentID || k.GameID != gameID {
			continue
		}
		if gp, ok := byPlayer[k.PlayerID]; ok {
			gp.TotalAmount = gp.TotalAmount.Add(b.Amount)
			gp.TotalBets++
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out, nil
}

func (s *Store) ListPastResults(ctx context.Context, before time.Time) ([]*models.PastResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.PastResult, 0)
	for _, m := range s.matches {
		t := s.tournaments[m.TournamentID]
		if !t.Date.Before(before) {
			continue
		}
		out = append(out, &models.PastResult{
			ID:              m.ID,
			Tournament:      t.Name,
			Date:            t.Date,
			City:            t.Location.City,
			Country:         t.Location.Country,
			Game:            s.games[m.GameID].Name,
			Winner:          s.players[m.WinnerID].Name,
			Loser:           s.players[m.LoserID].Name,
			WinnerRoundsWon: m.WinnerRoundsWon,
			LoserRoundsWon:  m.LoserRoundsWon,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) CountUsers(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), nil
}

func (s *Store) CountGamesFrom(ctx context.Context, from time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[gameKey]bool)
	for k := range s.participations {
		if t, ok := s.tournaments[k.TournamentID]; ok && !t.Date.Before(from) {
			seen[gameKey{tournamentID: k.TournamentID, gameID: k.GameID}] = true
		}
	}
	return len(seen), nil
}

// --- CatalogWriter ---

func (s *Store) CreateTournament(ctx context.Context, t *models.Tournament) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = s.nextID("tournaments")
	c := *t
	c.Games = nil
	s.tournaments[t.ID] = &c
	return nil
}

func (s *Store) CreateGame(ctx context.Context, g *models.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.games {
		if existing.Name == g.Name {
			g.ID = existing.ID
			return nil
		}
	}
	g.ID = s.nextID("games")
	c := *g
	s.games[g.ID] = &c
	return nil
}

func (s *Store) CreatePlayer(ctx context.Context, p *models.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.players {
		if existing.Name == p.Name {
			p.ID = existing.ID
			return nil
		}
	}
	p.ID = s.nextID("players")
	c := *p
	s.players[p.ID] = &c
	return nil
}

func (s *Store) AddParticipation(ctx context.Context, key models.ParticipationKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tournaments[key.TournamentID]; !ok {
		return fmt.Errorf("participation %+v: %w", key, repositories.ErrTournamentNotFound)
	}
	if _, ok := s.games[key.GameID]; !ok {
		return fmt.Errorf("participation %+v: %w", key, repositories.ErrGameNotFound)
	}
	if _, ok := s.players[key.PlayerID]; !ok {
		return fmt.Errorf("participation %+v references a missing player", key)
	}
	if _, ok := s.participations[key]; ok {
		return nil
	}
	s.participations[key] = &models.Participation{
		TournamentID: key.TournamentID,
		GameID:       key.GameID,
		PlayerID:     key.PlayerID,
		LiveOdds:     odds.DefaultOdds,
	}
	return nil
}

func (s *Store) CreateMatch(ctx context.Context, m *models.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tournaments[m.TournamentID]; !ok {
		return fmt.Errorf("match: %w", repositories.ErrTournamentNotFound)
	}
	if _, ok := s.games[m.GameID]; !ok {
		return fmt.Errorf("match: %w", repositories.ErrGameNotFound)
	}
	if _, ok := s.players[m.WinnerID]; !ok {
		return fmt.Errorf("match references missing winner %d", m.WinnerID)
	}
	if _, ok := s.players[m.LoserID]; !ok {
		return fmt.Errorf("match references missing loser %d", m.LoserID)
	}
	m.ID = s.nextID("matches")
	c := *m
	s.matches = append(s.matches, &c)
	return nil
}

// --- UserRepository ---

func (s *Store) Create(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return repositories.ErrUserEmailConflict
		}
		if u.Username == user.Username {
			return repositories.ErrUserUsernameConflict
		}
	}
	user.ID = s.nextID("users")
	user.CreatedAt = s.now()
	c := *user
	s.users[user.ID] = &c
	return nil
}

func (s *Store) GetByID(ctx context.Context, id int) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	c := *u
	return &c, nil
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			c := *u
			return &c, nil
		}
	}
	return nil, repositories.ErrUserNotFound
}
