// Package odds implements the pari-mutuel live odds model and the
// websocket hub that pushes recomputed odds to subscribed clients.
package odds

import (
	"sort"

	"github.com/Dosada05/esports-betting/models"
	"github.com/shopspring/decimal"
)

const (
	// OddsPlaces is the scale of stored odds (NUMERIC(14,4)).
	OddsPlaces = 4
	// AmountPlaces is the scale of stored stakes and payouts (NUMERIC(14,2)).
	AmountPlaces = 2
)

var (
	// HouseFactor is the share of the pool returned to bettors; the house keeps 5%.
	HouseFactor = decimal.RequireFromString("0.95")
	// DefaultOdds is assigned to every player while nobody has bet on the game.
	DefaultOdds = decimal.NewFromInt(1)

	// MaxStake bounds a single bet.
	MaxStake = decimal.NewFromInt(1_000_000)
	// MaxPool bounds the total pool of one game. The largest odds the engine
	// can produce is MaxPool / 0.01 * 0.95 = 9.5e9, inside NUMERIC(14,4).
	MaxPool = decimal.NewFromInt(100_000_000)
)

// TotalPool sums stakes across all players of a game.
func TotalPool(pools map[int]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, amount := range pools {
		total = total.Add(amount)
	}
	return total
}

// Recompute returns the live odds of every player of one game given the sum of
// stakes placed on each player.
//
//	total == 0             -> 1.0 for everyone
//	playerPool > 0         -> total / playerPool * 0.95
//	playerPool == 0        -> total * 0.95 (as if the player held a single unit of stake)
//
// Players missing from pools have a zero pool.
func Recompute(playerIDs []int, pools map[int]decimal.Decimal) map[int]decimal.Decimal {
	total := TotalPool(pools)
	result := make(map[int]decimal.Decimal, len(playerIDs))

	for _, id := range playerIDs {
		if !total.IsPositive() {
			result[id] = DefaultOdds
			continue
		}
		playerPool := pools[id]
		if !playerPool.IsPositive() {
			result[id] = total.Mul(HouseFactor).Round(OddsPlaces)
			continue
		}
		result[id] = total.Div(playerPool).Mul(HouseFactor).Round(OddsPlaces)
	}
	return result
}

// Snapshot orders recomputed odds by player id for publishing.
func Snapshot(odds map[int]decimal.Decimal) []models.PlayerOdds {
	out := make([]models.PlayerOdds, 0, len(odds))
	for id, v := range odds {
		out = append(out, models.PlayerOdds{PlayerID: id, LiveOdds: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out
}

// Payout is what a winning bet returns: stake times the odds locked at placement.
func Payout(amount, lockedOdds decimal.Decimal) decimal.Decimal {
	return amount.Mul(lockedOdds).Round(AmountPlaces)
}
