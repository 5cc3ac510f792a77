package handlers

import (
	"net/http"

	"github.com/Dosada05/esports-betting/services"
)

type CatalogHandler struct {
	readService services.ReadService
}

func NewCatalogHandler(readService services.ReadService) *CatalogHandler {
	return &CatalogHandler{readService: readService}
}

func (h *CatalogHandler) ListTournaments(w http.ResponseWriter, r *http.Request) {
	tournaments, err := h.readService.ListFutureTournaments(r.Context())
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, tournaments)
}

func (h *CatalogHandler) TournamentGames(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := readIDParam(r, "tournamentID")
	if err != nil {
		failedValidationResponse(w, r, map[string]string{"tournamentId": err.Error()})
		return
	}
	games, err := h.readService.ListTournamentGames(r.Context(), tournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, games)
}

func (h *CatalogHandler) ListGames(w http.ResponseWriter, r *http.Request) {
	games, err := h.readService.ListGames(r.Context())
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, games)
}

func (h *CatalogHandler) ListPlayers(w http.ResponseWriter, r *http.Request) {
	players, err := h.readService.ListPlayers(r.Context())
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, players)
}

func (h *CatalogHandler) GamePlayers(w http.ResponseWriter, r *http.Request) {
	tournamentID, gameID, problems := readPairParams(r)
	if problems != nil {
		failedValidationResponse(w, r, problems)
		return
	}
	players, err := h.readService.GamePlayers(r.Context(), tournamentID, gameID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, players)
}

func (h *CatalogHandler) GameTotals(w http.ResponseWriter, r *http.Request) {
	problems := map[string]string{}
	tournamentID, err := readIDQuery(r, "tournamentId")
	if err != nil {
		problems["tournamentId"] = err.Error()
	}
	gameID, err := readIDQuery(r, "gameId")
	if err != nil {
		problems["gameId"] = err.Error()
	}
	if len(problems) > 0 {
		failedValidationResponse(w, r, problems)
		return
	}

	totals, err := h.readService.GameTotals(r.Context(), tournamentID, gameID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, totals)
}

func (h *CatalogHandler) PastResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.readService.PastResults(r.Context())
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, results)
}

func (h *CatalogHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.readService.Stats(r.Context())
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, stats)
}
