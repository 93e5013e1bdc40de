package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pixter/pixter-backend/internal/logger"
	"github.com/pixter/pixter-backend/internal/metrics"
)

// Hub управляет WebSocket-клиентами водителей и доставляет им события платежей.
type Hub struct {
	mu         sync.RWMutex
	clients    map[uuid.UUID]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan message
	done       chan struct{}
}

type message struct {
	userID  uuid.UUID
	payload []byte
}

// NewHub создаёт новый хаб.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan message, 64),
		done:       make(chan struct{}),
	}
}

// Run запускает главный цикл хаба до отмены ctx.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case msg := <-h.broadcast:
			h.send(msg.userID, msg.payload)
		}
	}
}

// Register добавляет клиента.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister удаляет клиента.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Notify отправляет событие всем подключениям пользователя.
// Сообщение имеет вид {"type": event, "data": data}. Если очередь заполнена, событие отбрасывается.
func (h *Hub) Notify(userID uuid.UUID, event string, data any) error {
	raw, err := json.Marshal(map[string]any{"type": event, "data": data})
	if err != nil {
		return fmt.Errorf("ws: не удалось сериализовать сообщение: %w", err)
	}

	select {
	case h.broadcast <- message{userID: userID, payload: raw}:
		return nil
	default:
		logger.Log.WithFields(logrus.Fields{"user_id": userID, "event": event}).Warn("ws: очередь переполнена, событие отброшено")
		return fmt.Errorf("ws: очередь переполнена")
	}
}

// Connected возвращает число открытых подключений пользователя.
func (h *Hub) Connected(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.userID]; !ok {
		h.clients[client.userID] = make(map[*Client]struct{})
	}
	h.clients[client.userID][client] = struct{}{}
	metrics.ActiveWebsockets.Inc()
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detach(client)
}

// detach удаляет клиента и закрывает его очередь. Вызывается под h.mu.
func (h *Hub) detach(client *Client) {
	clients, ok := h.clients[client.userID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.send)
	metrics.ActiveWebsockets.Dec()
	if len(clients) == 0 {
		delete(h.clients, client.userID)
	}
}

func (h *Hub) send(userID uuid.UUID, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients[userID] {
		select {
		case client.send <- payload:
		default:
			// Медленный клиент: отключаем, writePump закроет соединение.
			h.detach(client)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.clients {
		for client := range clients {
			h.detach(client)
		}
	}
}
