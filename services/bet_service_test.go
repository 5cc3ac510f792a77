package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Dosada05/esports-betting/models"
	"github.com/Dosada05/esports-betting/odds"
	"github.com/Dosada05/esports-betting/repositories"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

func newBetFixture(t *testing.T) (*gameFixture, BetService, *recordingPublisher) {
	t.Helper()
	f := newGameFixture(t, time.Now().AddDate(0, 1, 0)).withUsers(t, 40)
	pub := &recordingPublisher{}
	return f, NewBetService(f.store, pub, discardLogger()), pub
}

func TestPlaceBetRecomputesOdds(t *testing.T) {
	f, svc, pub := newBetFixture(t)
	ctx := context.Background()
	a, b := f.playerA.ID, f.playerB.ID

	initial := f.liveOdds(t)
	assertDecimal(t, "initial odds(A)", initial[a], "1")
	assertDecimal(t, "initial odds(B)", initial[b], "1")

	res, err := svc.PlaceBet(ctx, f.bet(1, f.playerA, "100"))
	if err != nil {
		t.Fatalf("PlaceBet(user1, A, 100) error = %v", err)
	}
	assertDecimal(t, "user1 locked odds", res.Bet.LockedOdds, "1")
	got := f.liveOdds(t)
	assertDecimal(t, "odds(A) after user1", got[a], "0.95")
	assertDecimal(t, "odds(B) after user1", got[b], "95")

	res, err = svc.PlaceBet(ctx, f.bet(2, f.playerB, "100"))
	if err != nil {
		t.Fatalf("PlaceBet(user2, B, 100) error = %v", err)
	}
	assertDecimal(t, "user2 locked odds", res.Bet.LockedOdds, "95")
	got = f.liveOdds(t)
	assertDecimal(t, "odds(A) after user2", got[a], "1.9")
	assertDecimal(t, "odds(B) after user2", got[b], "1.9")

	if len(res.Odds) != 2 || res.Odds[0].PlayerID != a || res.Odds[1].PlayerID != b {
		t.Errorf("result odds = %+v, want snapshot of players %d and %d", res.Odds, a, b)
	}
	if n := pub.count(); n != 2 {
		t.Errorf("published %d snapshots, want 2", n)
	}
}

func TestPlaceBetSameAmountIsIdempotent(t *testing.T) {
	f, svc, _ := newBetFixture(t)
	ctx := context.Background()

	first, err := svc.PlaceBet(ctx, f.bet(1, f.playerA, "100"))
	if err != nil {
		t.Fatalf("first PlaceBet() error = %v", err)
	}
	assertDecimal(t, "locked odds of first bet", first.Bet.LockedOdds, "1")
	if _, err := svc.PlaceBet(ctx, f.bet(2, f.playerB, "100")); err != nil {
		t.Fatalf("PlaceBet(user 2) error = %v", err)
	}
	oddsBefore := f.liveOdds(t)
	assertDecimal(t, "odds(A) before resubmit", oddsBefore[f.playerA.ID], "1.9")

	second, err := svc.PlaceBet(ctx, f.bet(1, f.playerA, "100.00"))
	if err != nil {
		t.Fatalf("second PlaceBet() error = %v", err)
	}
	if second.Bet.ID != first.Bet.ID {
		t.Errorf("bet id changed from %d to %d", first.Bet.ID, second.Bet.ID)
	}
	// ставка той же суммы заново фиксирует текущий коэффициент
	assertDecimal(t, "locked odds after resubmit", second.Bet.LockedOdds, "1.9")

	bets, err := f.store.ListByUser(ctx, 1)
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(bets) != 1 {
		t.Fatalf("user has %d bets, want 1", len(bets))
	}
	assertDecimal(t, "stored locked odds", bets[0].LockedOdds, "1.9")
	for id, v := range f.liveOdds(t) {
		assertDecimal(t, fmt.Sprintf("odds(%d)", id), v, oddsBefore[id].String())
	}
}

func TestPlaceBetUnknownUser(t *testing.T) {
	f, svc, pub := newBetFixture(t)
	ctx := context.Background()

	_, err := svc.PlaceBet(ctx, f.bet(999, f.playerA, "10"))
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("PlaceBet() error = %v, want ErrUserNotFound", err)
	}
	if bets, _ := f.store.ListByGame(ctx, f.tournament.ID, f.game.ID); len(bets) != 0 {
		t.Errorf("bets stored for unknown user: %+v", bets)
	}
	if n := pub.count(); n != 0 {
		t.Errorf("published %d snapshots, want 0", n)
	}
}

func TestPlaceBetStakeLimits(t *testing.T) {
	f, svc, _ := newBetFixture(t)
	ctx := context.Background()

	if _, err := svc.PlaceBet(ctx, f.bet(1, f.playerA, odds.MaxStake.String())); err != nil {
		t.Fatalf("PlaceBet(max stake) error = %v", err)
	}

	_, err := svc.PlaceBet(ctx, f.bet(2, f.playerA, "10000000000.00"))
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("PlaceBet(oversized stake) error = %v, want *ValidationError", err)
	}
	if _, ok := vErr.Fields["amount"]; !ok {
		t.Errorf("validation fields = %v, want amount", vErr.Fields)
	}

	// почти полный пул кладём напрямую, минуя лимит на одну ставку
	err = f.store.WithinGame(ctx, f.tournament.ID, f.game.ID, func(l repositories.GameLedger) error {
		big := odds.MaxPool.Sub(odds.MaxStake).Sub(dec("5"))
		return l.UpsertBet(ctx, &models.Bet{UserID: 3, PlayerID: f.playerB.ID, Amount: big, LockedOdds: dec("1")})
	})
	if err != nil {
		t.Fatalf("seed pool error = %v", err)
	}
	before := f.liveOdds(t)

	_, err = svc.PlaceBet(ctx, f.bet(4, f.playerA, "10"))
	if !errors.As(err, &vErr) {
		t.Fatalf("PlaceBet over pool limit error = %v, want *ValidationError", err)
	}
	if _, ok := vErr.Fields["amount"]; !ok {
		t.Errorf("validation fields = %v, want amount", vErr.Fields)
	}
	if bets, _ := f.store.ListByUser(ctx, 4); len(bets) != 0 {
		t.Errorf("bet over pool limit was stored: %+v", bets)
	}
	for id, v := range f.liveOdds(t) {
		assertDecimal(t, fmt.Sprintf("odds(%d)", id), v, before[id].String())
	}

	// ставка, которая укладывается в лимит, проходит
	if _, err := svc.PlaceBet(ctx, f.bet(4, f.playerA, "5")); err != nil {
		t.Errorf("PlaceBet at pool limit error = %v", err)
	}
}

func TestPlaceBetOddsVersionGrows(t *testing.T) {
	f, svc, pub := newBetFixture(t)
	ctx := context.Background()

	var last int64
	for i, in := range []PlaceBetInput{
		f.bet(1, f.playerA, "10"),
		f.bet(2, f.playerB, "20"),
		f.bet(1, f.playerA, "0"),
	} {
		res, err := svc.PlaceBet(ctx, in)
		if err != nil {
			t.Fatalf("PlaceBet #%d error = %v", i, err)
		}
		if res.OddsVersion <= last {
			t.Errorf("PlaceBet #%d odds version = %d, want > %d", i, res.OddsVersion, last)
		}
		if got := pub.lastVersion(); got != res.OddsVersion {
			t.Errorf("published version = %d, want %d", got, res.OddsVersion)
		}
		last = res.OddsVersion
	}

	del, err := svc.DeleteBetsForGame(ctx, DeleteBetsInput{UserID: 2, TournamentID: f.tournament.ID, GameID: f.game.ID})
	if err != nil {
		t.Fatalf("DeleteBetsForGame() error = %v", err)
	}
	if del.OddsVersion != last+1 {
		t.Errorf("delete odds version = %d, want %d", del.OddsVersion, last+1)
	}

	players, _ := f.store.ListGamePlayers(ctx, f.tournament.ID, f.game.ID)
	for _, p := range players {
		if p.OddsVersion != del.OddsVersion {
			t.Errorf("player %d stored version = %d, want %d", p.PlayerID, p.OddsVersion, del.OddsVersion)
		}
	}
}

func TestPlaceBetNewAmountRelocksOdds(t *testing.T) {
	f, svc, _ := newBetFixture(t)
	ctx := context.Background()

	for _, in := range []PlaceBetInput{f.bet(1, f.playerA, "100"), f.bet(2, f.playerB, "100")} {
		if _, err := svc.PlaceBet(ctx, in); err != nil {
			t.Fatalf("PlaceBet(%+v) error = %v", in, err)
		}
	}

	res, err := svc.PlaceBet(ctx, f.bet(1, f.playerA, "50"))
	if err != nil {
		t.Fatalf("PlaceBet(update) error = %v", err)
	}
	assertDecimal(t, "amount", res.Bet.Amount, "50")
	assertDecimal(t, "locked odds", res.Bet.LockedOdds, "1.9")

	got := f.liveOdds(t)
	// total 150: A = 150/50*0.95, B = 150/100*0.95
	assertDecimal(t, "odds(A)", got[f.playerA.ID], "2.85")
	assertDecimal(t, "odds(B)", got[f.playerB.ID], "1.425")
}

func TestPlaceBetZeroAmountDeletes(t *testing.T) {
	f, svc, _ := newBetFixture(t)
	ctx := context.Background()

	if _, err := svc.PlaceBet(ctx, f.bet(1, f.playerA, "100")); err != nil {
		t.Fatalf("PlaceBet() error = %v", err)
	}

	res, err := svc.PlaceBet(ctx, f.bet(1, f.playerA, "0"))
	if err != nil {
		t.Fatalf("PlaceBet(0) error = %v", err)
	}
	if !res.Deleted || res.Bet != nil {
		t.Errorf("result = %+v, want deleted without bet", res)
	}
	bets, _ := f.store.ListByUser(ctx, 1)
	if len(bets) != 0 {
		t.Errorf("user has %d bets after withdrawal, want 0", len(bets))
	}
	for id, v := range f.liveOdds(t) {
		assertDecimal(t, fmt.Sprintf("odds(%d)", id), v, "1")
	}

	// отзыв несуществующей ставки не ошибка
	res, err = svc.PlaceBet(ctx, f.bet(1, f.playerA, "0"))
	if err != nil {
		t.Fatalf("PlaceBet(0) on missing bet error = %v", err)
	}
	if res.Deleted {
		t.Error("Deleted = true for a bet that did not exist")
	}
}

func TestPlaceBetValidation(t *testing.T) {
	f, svc, pub := newBetFixture(t)

	tests := []struct {
		name  string
		mod   func(in *PlaceBetInput)
		field string
	}{
		{"missing amount", func(in *PlaceBetInput) { in.Amount = nil }, "amount"},
		{"negative amount", func(in *PlaceBetInput) { in.Amount = decPtr("-5") }, "amount"},
		{"too precise amount", func(in *PlaceBetInput) { in.Amount = decPtr("10.001") }, "amount"},
		{"missing user", func(in *PlaceBetInput) { in.UserID = 0 }, "userId"},
		{"missing tournament", func(in *PlaceBetInput) { in.TournamentID = 0 }, "tournamentId"},
		{"negative game", func(in *PlaceBetInput) { in.GameID = -1 }, "gameId"},
		{"missing player", func(in *PlaceBetInput) { in.PlayerID = 0 }, "playerId"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := f.bet(1, f.playerA, "10")
			tt.mod(&in)
			_, err := svc.PlaceBet(context.Background(), in)
			if !errors.Is(err, ErrValidationFailed) {
				t.Fatalf("PlaceBet() error = %v, want ErrValidationFailed", err)
			}
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("PlaceBet() error %T is not *ValidationError", err)
			}
			if _, ok := vErr.Fields[tt.field]; !ok {
				t.Errorf("validation fields = %v, want key %q", vErr.Fields, tt.field)
			}
		})
	}
	if n := pub.count(); n != 0 {
		t.Errorf("published %d snapshots for invalid input, want 0", n)
	}
}

func TestPlaceBetUnknownParticipation(t *testing.T) {
	f, svc, _ := newBetFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   PlaceBetInput
	}{
		{"player not in game", f.bet(1, f.outsider, "10")},
		{"unknown game", PlaceBetInput{UserID: 1, TournamentID: f.tournament.ID, GameID: 9999, PlayerID: f.playerA.ID, Amount: decPtr("10")}},
		{"unknown tournament", PlaceBetInput{UserID: 1, TournamentID: 9999, GameID: f.game.ID, PlayerID: f.playerA.ID, Amount: decPtr("10")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.PlaceBet(ctx, tt.in); !errors.Is(err, ErrParticipationNotFound) {
				t.Errorf("PlaceBet() error = %v, want ErrParticipationNotFound", err)
			}
		})
	}
}

// failingBetRepo подменяет ledger, чтобы выбранная операция вернула ошибку.
type failingBetRepo struct {
	repositories.BetRepository
	failSetOdds bool
}

type failingLedger struct {
	repositories.GameLedger
	repo *failingBetRepo
}

var errInjected = errors.New("injected storage failure")

func (r *failingBetRepo) WithinGame(ctx context.Context, tournamentID, gameID int, fn func(ledger repositories.GameLedger) error) error {
	return r.BetRepository.WithinGame(ctx, tournamentID, gameID, func(ledger repositories.GameLedger) error {
		return fn(&failingLedger{GameLedger: ledger, repo: r})
	})
}

func (l *failingLedger) SetLiveOdds(ctx context.Context, values map[int]decimal.Decimal) (int64, error) {
	if l.repo.failSetOdds {
		return 0, errInjected
	}
	return l.GameLedger.SetLiveOdds(ctx, values)
}

func TestPlaceBetRollsBackOnRecomputeFailure(t *testing.T) {
	f := newGameFixture(t, time.Now().AddDate(0, 1, 0)).withUsers(t, 40)
	pub := &recordingPublisher{}
	repo := &failingBetRepo{BetRepository: f.store, failSetOdds: true}
	svc := NewBetService(repo, pub, discardLogger())
	ctx := context.Background()

	_, err := svc.PlaceBet(ctx, f.bet(1, f.playerA, "100"))
	if !errors.Is(err, errInjected) {
		t.Fatalf("PlaceBet() error = %v, want wrapped injected failure", err)
	}
	if errors.Is(err, ErrValidationFailed) || errors.Is(err, ErrNotFound) {
		t.Errorf("storage failure mapped to client error: %v", err)
	}

	bets, _ := f.store.ListByUser(ctx, 1)
	if len(bets) != 0 {
		t.Errorf("bet persisted despite failed recompute: %+v", bets)
	}
	for id, v := range f.liveOdds(t) {
		assertDecimal(t, fmt.Sprintf("odds(%d)", id), v, "1")
	}
	if n := pub.count(); n != 0 {
		t.Errorf("published %d snapshots for a rolled back write, want 0", n)
	}
}

func TestPlaceBetConcurrentWritersLoseNothing(t *testing.T) {
	f, svc, pub := newBetFixture(t)
	ctx := context.Background()
	const users = 40

	g, gCtx := errgroup.WithContext(ctx)
	for u := 1; u <= users; u++ {
		player := f.playerA
		if u%2 == 0 {
			player = f.playerB
		}
		in := f.bet(u, player, fmt.Sprintf("%d.50", u))
		g.Go(func() error {
			_, err := svc.PlaceBet(gCtx, in)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent PlaceBet() error = %v", err)
	}

	bets, err := f.store.ListByGame(ctx, f.tournament.ID, f.game.ID)
	if err != nil {
		t.Fatalf("ListByGame() error = %v", err)
	}
	if len(bets) != users {
		t.Fatalf("stored %d bets, want %d", len(bets), users)
	}

	pools := map[int]decimal.Decimal{}
	for _, b := range bets {
		pools[b.PlayerID] = pools[b.PlayerID].Add(b.Amount)
	}
	want := odds.Recompute([]int{f.playerA.ID, f.playerB.ID}, pools)
	got := f.liveOdds(t)
	for id, w := range want {
		assertDecimal(t, fmt.Sprintf("odds(%d)", id), got[id], w.String())
	}
	if n := pub.count(); n != users {
		t.Errorf("published %d snapshots, want %d", n, users)
	}
}

func TestDeleteBetsForGame(t *testing.T) {
	f, svc, pub := newBetFixture(t)
	ctx := context.Background()

	for _, in := range []PlaceBetInput{
		f.bet(1, f.playerA, "100"),
		f.bet(1, f.playerB, "50"),
		f.bet(2, f.playerA, "100"),
	} {
		if _, err := svc.PlaceBet(ctx, in); err != nil {
			t.Fatalf("PlaceBet(%+v) error = %v", in, err)
		}
	}

	res, err := svc.DeleteBetsForGame(ctx, DeleteBetsInput{UserID: 1, TournamentID: f.tournament.ID, GameID: f.game.ID})
	if err != nil {
		t.Fatalf("DeleteBetsForGame() error = %v", err)
	}
	if res.Deleted != 2 {
		t.Errorf("Deleted = %d, want 2", res.Deleted)
	}

	got := f.liveOdds(t)
	assertDecimal(t, "odds(A)", got[f.playerA.ID], "0.95")
	assertDecimal(t, "odds(B)", got[f.playerB.ID], "95")

	left, _ := f.store.ListByGame(ctx, f.tournament.ID, f.game.ID)
	if len(left) != 1 || left[0].UserID != 2 {
		t.Errorf("remaining bets = %+v, want only user 2", left)
	}
	if n := pub.count(); n != 4 {
		t.Errorf("published %d snapshots, want 4", n)
	}

	// повторное удаление - ноль строк, но коэффициенты всё равно пересчитываются
	res, err = svc.DeleteBetsForGame(ctx, DeleteBetsInput{UserID: 1, TournamentID: f.tournament.ID, GameID: f.game.ID})
	if err != nil {
		t.Fatalf("second DeleteBetsForGame() error = %v", err)
	}
	if res.Deleted != 0 || len(res.Odds) != 2 {
		t.Errorf("second delete = %+v, want 0 deleted with odds of 2 players", res)
	}
}

func TestDeleteBetsForGameErrors(t *testing.T) {
	f, svc, _ := newBetFixture(t)
	ctx := context.Background()

	_, err := svc.DeleteBetsForGame(ctx, DeleteBetsInput{UserID: 1, TournamentID: f.tournament.ID, GameID: 9999})
	if !errors.Is(err, ErrGameNotFound) {
		t.Errorf("DeleteBetsForGame(unknown game) error = %v, want ErrGameNotFound", err)
	}

	_, err = svc.DeleteBetsForGame(ctx, DeleteBetsInput{TournamentID: f.tournament.ID, GameID: f.game.ID})
	if !errors.Is(err, ErrValidationFailed) {
		t.Errorf("DeleteBetsForGame(no user) error = %v, want ErrValidationFailed", err)
	}
}

func TestSetOutcomeAndPayout(t *testing.T) {
	f, svc, _ := newBetFixture(t)
	ctx := context.Background()

	// user 2 ставит первым, чтобы user 1 зафиксировал коэффициент 0.95
	for _, in := range []PlaceBetInput{
		f.bet(2, f.playerA, "100"),
		f.bet(1, f.playerA, "100"),
		f.bet(1, f.playerB, "40"),
	} {
		if _, err := svc.PlaceBet(ctx, in); err != nil {
			t.Fatalf("PlaceBet(%+v) error = %v", in, err)
		}
	}

	won := SetOutcomeInput{UserID: 1, TournamentID: f.tournament.ID, GameID: f.game.ID, PlayerID: f.playerA.ID, IsWinner: intPtr(1)}
	if err := svc.SetOutcome(ctx, won); err != nil {
		t.Fatalf("SetOutcome(won) error = %v", err)
	}

	// live odds двигаются, выплата нет
	if _, err := svc.PlaceBet(ctx, f.bet(3, f.playerB, "500")); err != nil {
		t.Fatalf("PlaceBet(user3) error = %v", err)
	}

	bets, err := svc.ListUserBets(ctx, 1)
	if err != nil {
		t.Fatalf("ListUserBets() error = %v", err)
	}
	if len(bets) != 2 {
		t.Fatalf("ListUserBets() returned %d bets, want 2", len(bets))
	}
	byPlayer := map[int]*models.Bet{}
	for _, b := range bets {
		byPlayer[b.PlayerID] = b
	}

	betA := byPlayer[f.playerA.ID]
	if betA.Outcome != models.OutcomeWon || betA.Payout == nil {
		t.Fatalf("bet on A = %+v, want won with payout", betA)
	}
	assertDecimal(t, "locked odds(A)", betA.LockedOdds, "0.95")
	assertDecimal(t, "payout(A)", *betA.Payout, "95")

	betB := byPlayer[f.playerB.ID]
	if betB.Outcome != models.OutcomePending || betB.Payout != nil {
		t.Errorf("bet on B = %+v, want pending without payout", betB)
	}

	lost := SetOutcomeInput{UserID: 1, TournamentID: f.tournament.ID, GameID: f.game.ID, PlayerID: f.playerB.ID, IsWinner: intPtr(0)}
	if err := svc.SetOutcome(ctx, lost); err != nil {
		t.Fatalf("SetOutcome(lost) error = %v", err)
	}
	bets, _ = svc.ListUserBets(ctx, 1)
	for _, b := range bets {
		if b.PlayerID == f.playerB.ID {
			if b.Outcome != models.OutcomeLost || b.Payout == nil || !b.Payout.IsZero() {
				t.Errorf("bet on B = %+v, want lost with zero payout", b)
			}
		}
	}
}

func TestSetOutcomeErrors(t *testing.T) {
	f, svc, _ := newBetFixture(t)
	ctx := context.Background()
	if _, err := svc.PlaceBet(ctx, f.bet(1, f.playerA, "10")); err != nil {
		t.Fatalf("PlaceBet() error = %v", err)
	}

	base := SetOutcomeInput{UserID: 1, TournamentID: f.tournament.ID, GameID: f.game.ID, PlayerID: f.playerA.ID}
	tests := []struct {
		name     string
		isWinner *int
		playerID int
		want     error
	}{
		{"missing flag", nil, f.playerA.ID, ErrValidationFailed},
		{"flag out of range", intPtr(2), f.playerA.ID, ErrValidationFailed},
		{"negative flag", intPtr(-1), f.playerA.ID, ErrValidationFailed},
		{"no such bet", intPtr(1), f.playerB.ID, ErrBetNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			in.IsWinner = tt.isWinner
			in.PlayerID = tt.playerID
			if err := svc.SetOutcome(ctx, in); !errors.Is(err, tt.want) {
				t.Errorf("SetOutcome() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRestakeResetsOutcome(t *testing.T) {
	f, svc, _ := newBetFixture(t)
	ctx := context.Background()

	if _, err := svc.PlaceBet(ctx, f.bet(1, f.playerA, "10")); err != nil {
		t.Fatalf("PlaceBet() error = %v", err)
	}
	in := SetOutcomeInput{UserID: 1, TournamentID: f.tournament.ID, GameID: f.game.ID, PlayerID: f.playerA.ID, IsWinner: intPtr(1)}
	if err := svc.SetOutcome(ctx, in); err != nil {
		t.Fatalf("SetOutcome() error = %v", err)
	}
	res, err := svc.PlaceBet(ctx, f.bet(1, f.playerA, "20"))
	if err != nil {
		t.Fatalf("PlaceBet(restake) error = %v", err)
	}
	if res.Bet.Outcome != models.OutcomePending {
		t.Errorf("outcome after restake = %q, want %q", res.Bet.Outcome, models.OutcomePending)
	}
}
