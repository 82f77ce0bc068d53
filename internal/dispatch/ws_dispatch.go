package dispatch

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/example/ambulance-dispatch/internal/models"
)

// WSSession wraps one live connection. Writes are serialized because
// gorilla/websocket allows only one concurrent writer.
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) Send(msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(msg)
}

// WSRegistry implements Notifier over per-driver and per-rider websocket
// sessions. One session per id; a reconnect replaces the old one.
type WSRegistry struct {
	mu      sync.RWMutex
	drivers map[string]*WSSession
	riders  map[string]*WSSession
	log     *slog.Logger
}

func NewWSRegistry(log *slog.Logger) *WSRegistry {
	return &WSRegistry{
		drivers: make(map[string]*WSSession),
		riders:  make(map[string]*WSSession),
		log:     log,
	}
}

func (r *WSRegistry) AddDriver(driverID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[driverID] = &WSSession{conn: conn}
}

func (r *WSRegistry) AddRider(riderID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.riders[riderID] = &WSSession{conn: conn}
}

func (r *WSRegistry) RemoveDriver(driverID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.drivers, driverID)
}

func (r *WSRegistry) RemoveRider(riderID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.riders, riderID)
}

func (r *WSRegistry) SendToDriver(driverID string, msg models.Message) error {
	r.mu.RLock()
	s, ok := r.drivers[driverID]
	r.mu.RUnlock()
	return r.send(s, ok, "driver", driverID, msg)
}

func (r *WSRegistry) SendToRider(riderID string, msg models.Message) error {
	r.mu.RLock()
	s, ok := r.riders[riderID]
	r.mu.RUnlock()
	return r.send(s, ok, "rider", riderID, msg)
}

func (r *WSRegistry) send(s *WSSession, ok bool, kind, id string, msg models.Message) error {
	if !ok {
		r.log.Warn("no live session", "kind", kind, "id", id, "msg_type", msg.Type)
		return ErrNoSession
	}
	if err := s.Send(msg); err != nil {
		r.log.Warn("ws send failed", "kind", kind, "id", id, "error", err)
		return err
	}
	return nil
}
