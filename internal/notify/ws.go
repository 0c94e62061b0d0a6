package notify

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const defaultWriteWait = 2 * time.Second

// WSSession represents a connected rider or driver session
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) send(m Message, wait time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(wait)); err != nil {
		return err
	}
	return s.conn.WriteJSON(m)
}

// WSRegistry holds one session per party and delivers messages to it.
type WSRegistry struct {
	mu        sync.RWMutex
	sessions  map[string]*WSSession
	writeWait time.Duration
}

func NewWSRegistry() *WSRegistry {
	return &WSRegistry{sessions: make(map[string]*WSSession), writeWait: defaultWriteWait}
}

// Add registers conn for partyID, closing any session it replaces.
func (r *WSRegistry) Add(partyID string, conn *websocket.Conn) {
	r.mu.Lock()
	old := r.sessions[partyID]
	r.sessions[partyID] = &WSSession{conn: conn}
	r.mu.Unlock()
	if old != nil {
		_ = old.conn.Close()
	}
}

// Remove drops the session only if it still belongs to conn.
func (r *WSRegistry) Remove(partyID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[partyID]; ok && s.conn == conn {
		delete(r.sessions, partyID)
	}
}

func (r *WSRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Send is a no-op for parties without a session.
func (r *WSRegistry) Send(_ context.Context, m Message) error {
	r.mu.RLock()
	s, ok := r.sessions[m.Recipient]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return s.send(m, r.writeWait)
}
