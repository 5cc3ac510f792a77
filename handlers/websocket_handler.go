package handlers

import (
	"log/slog"
	"net/http"

	"github.com/Dosada05/esports-betting/models"
	"github.com/Dosada05/esports-betting/odds"
	"github.com/Dosada05/esports-betting/services"
	"github.com/gorilla/websocket"
)

const clientSendBuffer = 256

type WebSocketHandler struct {
	hub         *odds.Hub
	readService services.ReadService
	upgrader    websocket.Upgrader
}

// NewWebSocketHandler: allowedOrigins как в CORS; "*" или пустой список разрешают всех.
func NewWebSocketHandler(hub *odds.Hub, readService services.ReadService, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		hub:         hub,
		readService: readService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// ServeWs подписывает клиента на коэффициенты игры: /ws/game/{tournamentID}/{gameID}.
// Первым сообщением клиент получает текущий снимок коэффициентов с его версией;
// хаб досылает более новое состояние, если оно появилось до регистрации.
func (h *WebSocketHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
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
	if len(players) == 0 {
		notFoundResponse(w, r, services.ErrGameNotFound.Error())
		return
	}

	snapshot := make([]models.PlayerOdds, len(players))
	var version int64
	for i, p := range players {
		snapshot[i] = models.PlayerOdds{PlayerID: p.PlayerID, LiveOdds: p.LiveOdds}
		if p.OddsVersion > version {
			version = p.OddsVersion
		}
	}
	room := odds.RoomName(tournamentID, gameID)
	initial, err := odds.OddsMessage(tournamentID, gameID, version, snapshot)
	if err != nil {
		serverErrorResponse(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade сам отвечает клиенту
		slog.Default().WarnContext(r.Context(), "websocket upgrade failed", slog.String("room", room), slog.Any("error", err))
		return
	}

	client := &odds.Client{
		Hub:     h.hub,
		Conn:    conn,
		Send:    make(chan []byte, clientSendBuffer),
		Room:    room,
		Version: version,
	}
	client.Send <- initial
	h.hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}
