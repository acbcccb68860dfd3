package ws

import "sync"

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub fans merged watcher logs out to subscribers, keyed by project id.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[Subscriber]struct{}
}

// NewHub creates an initialized Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]map[Subscriber]struct{})}
}

// Subscribe adds a client to a project stream.
func (h *Hub) Subscribe(projectID string, client Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[projectID]; !ok {
		h.clients[projectID] = make(map[Subscriber]struct{})
	}
	h.clients[projectID][client] = struct{}{}
}

// Unsubscribe removes a client.
func (h *Hub) Unsubscribe(projectID string, client Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.clients[projectID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.clients, projectID)
		}
	}
}

// Broadcast sends payload to all project subscribers. Clients whose send
// fails are dropped.
func (h *Hub) Broadcast(projectID string, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.clients[projectID]
	if !ok {
		return
	}
	for c := range clients {
		if err := c.Send(payload); err != nil {
			c.Close()
			delete(clients, c)
		}
	}
	if len(clients) == 0 {
		delete(h.clients, projectID)
	}
}

// Subscribers reports the current subscriber count for a project.
func (h *Hub) Subscribers(projectID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[projectID])
}
