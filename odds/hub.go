package odds

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Dosada05/esports-betting/models"
	"github.com/gorilla/websocket"
)

const MessageOddsUpdated = "ODDS_UPDATED"

type Client struct {
	Hub  *Hub
	Conn *websocket.Conn
	Send chan []byte
	Room string
	// Version - версия снимка, уже положенного в Send до регистрации.
	Version  int64
	IsClosed bool
	Mu       sync.Mutex
}

type WebSocketMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
	RoomID  string      `json:"room_id,omitempty"`
}

// OddsPayload is sent to a game room after a committed bet mutation.
// Version grows with every commit of the pair; clients ignore payloads
// older than the one they already hold.
type OddsPayload struct {
	TournamentID int                 `json:"tournament_id"`
	GameID       int                 `json:"game_id"`
	Version      int64               `json:"version"`
	Odds         []models.PlayerOdds `json:"odds"`
}

// published - последнее разосланное в комнату состояние.
type published struct {
	version int64
	message []byte
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// RoomName returns the room clients of one (tournament, game) pair join.
func RoomName(tournamentID, gameID int) string {
	return fmt.Sprintf("game_%d_%d", tournamentID, gameID)
}

type Hub struct {
	Register   chan *Client
	Unregister chan *Client
	rooms      map[string]map[*Client]bool
	latest     map[string]published
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		rooms:      make(map[string]map[*Client]bool),
		latest:     make(map[string]published),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			if _, ok := h.rooms[client.Room]; !ok {
				h.rooms[client.Room] = make(map[*Client]bool)
			}
			h.rooms[client.Room][client] = true
			// обновление, закоммиченное между снимком и регистрацией
			if last, ok := h.latest[client.Room]; ok && last.version > client.Version {
				h.sendLocked(client, last.message)
			}
			log.Printf("Client registered to room %s. Total clients in room: %d", client.Room, len(h.rooms[client.Room]))
			h.mu.Unlock()

		case client := <-h.Unregister:
			h.mu.Lock()
			if _, ok := h.rooms[client.Room][client]; ok {
				client.Mu.Lock()
				if !client.IsClosed {
					close(client.Send)
					client.IsClosed = true
				}
				client.Mu.Unlock()
				delete(h.rooms[client.Room], client)
				if len(h.rooms[client.Room]) == 0 {
					delete(h.rooms, client.Room)
				}
			}
			h.mu.Unlock()
		}
	}
}

// RoomSize returns how many clients are subscribed to a room.
func (h *Hub) RoomSize(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// BroadcastToRoom отправляет сообщение всем клиентам в указанной комнате.
func (h *Hub) BroadcastToRoom(roomID string, message interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	roomClients, ok := h.rooms[roomID]
	if !ok {
		return
	}

	messageBytes, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshalling message for room %s: %v", roomID, err)
		return
	}

	for client := range roomClients {
		h.sendLocked(client, messageBytes)
	}
}

// sendLocked вызывается под h.mu.
func (h *Hub) sendLocked(client *Client, message []byte) {
	client.Mu.Lock()
	defer client.Mu.Unlock()
	if client.IsClosed {
		return
	}
	select {
	case client.Send <- message:
	default:
		log.Printf("Client's send channel full for room %s. Skipping.", client.Room)
	}
}

// PublishOdds pushes the recomputed odds of a game to its room. Versions not
// newer than the last published one are dropped, so a late publish of an
// earlier commit never overwrites fresher odds.
func (h *Hub) PublishOdds(tournamentID, gameID int, version int64, odds []models.PlayerOdds) {
	room := RoomName(tournamentID, gameID)
	message, err := OddsMessage(tournamentID, gameID, version, odds)
	if err != nil {
		log.Printf("Error marshalling odds for room %s: %v", room, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if last, ok := h.latest[room]; ok && last.version >= version {
		return
	}
	h.latest[room] = published{version: version, message: message}
	for client := range h.rooms[room] {
		h.sendLocked(client, message)
	}
}

// OddsMessage encodes an ODDS_UPDATED message for a game room.
func OddsMessage(tournamentID, gameID int, version int64, odds []models.PlayerOdds) ([]byte, error) {
	room := RoomName(tournamentID, gameID)
	return json.Marshal(WebSocketMessage{
		Type:    MessageOddsUpdated,
		Payload: OddsPayload{TournamentID: tournamentID, GameID: gameID, Version: version, Odds: odds},
		RoomID:  room,
	})
}

func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("websocket read error in room %s: %v", c.Room, err)
			}
			break
		}
		// входящие сообщения клиентов игнорируются
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				log.Printf("Error getting next writer for client in room %s: %v", c.Room, err)
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				log.Printf("Error closing writer for client in room %s: %v", c.Room, err)
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
