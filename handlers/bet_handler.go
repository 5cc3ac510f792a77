package handlers

import (
	"errors"
	"net/http"

	"github.com/Dosada05/esports-betting/middleware"
	"github.com/Dosada05/esports-betting/services"
)

type BetHandler struct {
	betService services.BetService
}

func NewBetHandler(betService services.BetService) *BetHandler {
	return &BetHandler{betService: betService}
}

type placeBetRequest struct {
	UserID       flexInt     `json:"userId"`
	TournamentID flexInt     `json:"tournamentId"`
	GameID       flexInt     `json:"gameId"`
	PlayerID     flexInt     `json:"playerId"`
	Amount       flexDecimal `json:"amount"`
}

type deleteBetsRequest struct {
	UserID       flexInt `json:"userId"`
	TournamentID flexInt `json:"tournamentId"`
	GameID       flexInt `json:"gameId"`
}

type setOutcomeRequest struct {
	UserID       flexInt `json:"userId"`
	TournamentID flexInt `json:"tournamentId"`
	GameID       flexInt `json:"gameId"`
	PlayerID     flexInt `json:"playerId"`
	IsWinner     flexInt `json:"isWinner"`
}

var errUserMismatch = errors.New("userId does not match the authenticated user")

// resolveUserID сверяет userId из запроса с токеном, если он есть.
// Без токена используется userId из запроса.
func resolveUserID(r *http.Request, requested flexInt) (int, error) {
	tokenUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		return requested.Value, nil
	}
	if !requested.Set {
		return tokenUserID, nil
	}
	if requested.Value != tokenUserID {
		return 0, errUserMismatch
	}
	return tokenUserID, nil
}

func (h *BetHandler) ListBets(w http.ResponseWriter, r *http.Request) {
	requested := flexInt{}
	if raw := r.URL.Query().Get("userId"); raw != "" {
		id, err := positiveInt(raw)
		if err != nil {
			failedValidationResponse(w, r, map[string]string{"userId": err.Error()})
			return
		}
		requested = flexInt{Value: id, Set: true}
	}
	userID, err := resolveUserID(r, requested)
	if err != nil {
		forbiddenResponse(w, r, err.Error())
		return
	}

	bets, err := h.betService.ListUserBets(r.Context(), userID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, bets)
}

func (h *BetHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	var req placeBetRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if req.Amount.Invalid {
		mapServiceErrorToHTTP(w, r, services.NewValidationError("amount", "must be a number"))
		return
	}
	userID, err := resolveUserID(r, req.UserID)
	if err != nil {
		forbiddenResponse(w, r, err.Error())
		return
	}

	result, err := h.betService.PlaceBet(r.Context(), services.PlaceBetInput{
		UserID:       userID,
		TournamentID: req.TournamentID.Value,
		GameID:       req.GameID.Value,
		PlayerID:     req.PlayerID.Value,
		Amount:       req.Amount.Ptr(),
	})
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	message := "Bet saved successfully"
	if result.Bet == nil {
		message = "Bet deleted successfully"
	}
	respond(w, r, http.StatusOK, jsonResponse{
		"message":      message,
		"bet":          result.Bet,
		"deleted":      result.Deleted,
		"odds":         result.Odds,
		"odds_version": result.OddsVersion,
	})
}

func (h *BetHandler) DeleteBets(w http.ResponseWriter, r *http.Request) {
	var req deleteBetsRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	userID, err := resolveUserID(r, req.UserID)
	if err != nil {
		forbiddenResponse(w, r, err.Error())
		return
	}

	result, err := h.betService.DeleteBetsForGame(r.Context(), services.DeleteBetsInput{
		UserID:       userID,
		TournamentID: req.TournamentID.Value,
		GameID:       req.GameID.Value,
	})
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, jsonResponse{
		"message":      "Bet deleted successfully",
		"deleted":      result.Deleted,
		"odds":         result.Odds,
		"odds_version": result.OddsVersion,
	})
}

func (h *BetHandler) SetOutcome(w http.ResponseWriter, r *http.Request) {
	var req setOutcomeRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	err := h.betService.SetOutcome(r.Context(), services.SetOutcomeInput{
		UserID:       req.UserID.Value,
		TournamentID: req.TournamentID.Value,
		GameID:       req.GameID.Value,
		PlayerID:     req.PlayerID.Value,
		IsWinner:     req.IsWinner.Ptr(),
	})
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, jsonResponse{"message": "Bet outcome updated successfully"})
}
