package ws

import (
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"

	"github.com/refermarket/referral-backend/internal/logger"
)

// Hub управляет всеми WebSocket клиентами.
// Помимо адресной доставки поддерживает именованные группы: рефереры
// подписываются на группы своих компаний и получают события о новых
// и закрытых запросах.
type Hub struct {
	mu         sync.RWMutex
	clients    map[uuid.UUID]map[*Client]struct{}
	groups     map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan message
}

type message struct {
	userID  uuid.UUID
	group   string
	payload []byte
}

// NewHub создаёт новый хаб.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]struct{}),
		groups:     make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan message, 32),
	}
}

// Run запускает главный цикл хаба.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case msg := <-h.broadcast:
			if msg.group != "" {
				h.sendGroup(msg.group, msg.payload)
			} else {
				h.send(msg.userID, msg.payload)
			}
		}
	}
}

// Register добавляет клиента.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister удаляет клиента.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// BroadcastToUser отправляет событие всем подключениям пользователя.
func (h *Hub) BroadcastToUser(userID uuid.UUID, event string, data any) error {
	raw, err := encodeEvent(event, data)
	if err != nil {
		return err
	}
	h.broadcast <- message{userID: userID, payload: raw}
	return nil
}

// BroadcastToGroup отправляет событие всем участникам группы.
func (h *Hub) BroadcastToGroup(group string, event string, data any) {
	raw, err := encodeEvent(event, data)
	if err != nil {
		logger.Log.WithError(err).WithField("group", group).Warn("ws: не удалось сериализовать групповое событие")
		return
	}
	h.broadcast <- message{group: group, payload: raw}
}

// encodeEvent формирует сообщение контракта WebSocket API:
// поле "type" содержит имя события, "data" — полезную нагрузку.
func encodeEvent(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(map[string]any{
		"type": event,
		"data": data,
	})
	if err != nil {
		return nil, fmt.Errorf("ws: не удалось сериализовать сообщение: %w", err)
	}
	return raw, nil
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.userID]; !ok {
		h.clients[client.userID] = make(map[*Client]struct{})
	}
	h.clients[client.userID][client] = struct{}{}

	for _, group := range client.groups {
		if _, ok := h.groups[group]; !ok {
			h.groups[group] = make(map[*Client]struct{})
		}
		h.groups[group][client] = struct{}{}
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.clients[client.userID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.clients, client.userID)
		}
	}

	for _, group := range client.groups {
		if members, ok := h.groups[group]; ok {
			delete(members, client)
			if len(members) == 0 {
				delete(h.groups, group)
			}
		}
	}
}

func (h *Hub) send(userID uuid.UUID, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[userID] {
		h.deliver(client, payload)
	}
}

func (h *Hub) sendGroup(group string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.groups[group] {
		h.deliver(client, payload)
	}
}

func (h *Hub) deliver(client *Client, payload []byte) {
	select {
	case client.send <- payload:
	default:
		// Переполненный буфер означает мёртвое соединение, закрываем его
		// вне цикла доставки.
		go func(c *Client) {
			defer func() {
				if r := recover(); r != nil {
					logger.Log.Errorf("ws: panic при закрытии клиента: %v\n%s", r, debug.Stack())
				}
			}()
			c.Close()
		}(client)
	}
}
