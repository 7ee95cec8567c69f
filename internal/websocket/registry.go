package websocket

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"ridematch/internal/metrics"
	"ridematch/internal/models"
	"ridematch/pkg/logger"

	"github.com/goccy/go-json"
)

// ErrConnectionClosed is returned by Send on a connection that was closed.
var ErrConnectionClosed = errors.New("connection closed")

// Connection is one live bidirectional channel to a client.
type Connection interface {
	Send(ctx context.Context, data []byte) error
	Close() error
}

// StatusNotifier receives presence transitions. Implementations must not block.
type StatusNotifier interface {
	Online(userID string)
	Offline(userID string)
}

type session struct {
	conn   Connection
	roomID string
}

type member struct {
	userID string
	conn   Connection
}

type RegistryStats struct {
	Sessions int `json:"sessions"`
	Rooms    int `json:"rooms"`
}

// Registry tracks which user holds which connection and which connections
// are in which room. It is local to one process: a deployment with several
// instances must pin a user's sessions to one of them for chat delivery to
// work.
type Registry struct {
	mu          sync.Mutex
	sessions    map[string]*session
	rooms       map[string]map[Connection]string
	status      StatusNotifier
	sendTimeout time.Duration
}

func NewRegistry(status StatusNotifier, sendTimeout time.Duration) *Registry {
	return &Registry{
		sessions:    make(map[string]*session),
		rooms:       make(map[string]map[Connection]string),
		status:      status,
		sendTimeout: sendTimeout,
	}
}

// Register attaches conn to userID. A different connection already held by
// userID is told it was replaced, closed and dropped from its room.
func (r *Registry) Register(userID string, conn Connection) {
	r.mu.Lock()
	var replaced Connection
	if old, ok := r.sessions[userID]; ok {
		if old.conn == conn {
			r.mu.Unlock()
			r.SendToUser(userID, models.Frame{Type: models.MessageTypeUserRegistered, UserID: userID})
			return
		}
		r.removeFromRoomLocked(old)
		replaced = old.conn
	}
	r.sessions[userID] = &session{conn: conn}
	r.mu.Unlock()

	if replaced != nil {
		metrics.SessionsReplacedTotal.Inc()
		logger.Info().Str("user_id", userID).Msg("session replaced by new connection")
		if data, err := encode(models.Frame{Type: models.MessageTypeSessionReplaced, UserID: userID}); err == nil {
			_ = r.send(replaced, data)
		}
		replaced.Close()
	} else {
		metrics.ActiveSessions.Inc()
	}

	r.status.Online(userID)
	logger.Info().Str("user_id", userID).Msg("user registered")
	r.SendToUser(userID, models.Frame{Type: models.MessageTypeUserRegistered, UserID: userID})
}

// Join moves userID's connection into roomID, leaving any previous room.
// It returns false when the user has no live connection.
func (r *Registry) Join(userID, roomID string) bool {
	r.mu.Lock()
	s, ok := r.sessions[userID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	if s.roomID != roomID {
		r.removeFromRoomLocked(s)
	}
	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[Connection]string)
		r.rooms[roomID] = members
	}
	members[s.conn] = userID
	s.roomID = roomID
	r.mu.Unlock()

	logger.Debug().Str("user_id", userID).Str("room_id", roomID).Msg("joined room")
	r.SendToUser(userID, models.Frame{Type: models.MessageTypeJoinedRoom, RoomID: roomID})
	return true
}

// Leave is a no-op when the user is not in roomID.
func (r *Registry) Leave(userID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[userID]
	if !ok {
		return
	}
	if members, ok := r.rooms[roomID]; ok {
		delete(members, s.conn)
		if len(members) == 0 {
			delete(r.rooms, roomID)
		}
	}
	if s.roomID == roomID {
		s.roomID = ""
	}
}

// SendToUser delivers msg to userID's connection. A failed send tears the
// session down. msg may be pre-encoded []byte.
func (r *Registry) SendToUser(userID string, msg any) bool {
	data, err := encode(msg)
	if err != nil {
		logger.Error().Err(err).Str("user_id", userID).Msg("failed to encode message")
		return false
	}

	r.mu.Lock()
	s, ok := r.sessions[userID]
	r.mu.Unlock()
	if !ok {
		return false
	}

	if err := r.send(s.conn, data); err != nil {
		logger.Warn().Err(err).Str("user_id", userID).Msg("send failed, dropping session")
		r.Release(userID, s.conn)
		return false
	}
	return true
}

// SendToUsers sends to each user independently, in order.
func (r *Registry) SendToUsers(userIDs []string, msg any) []bool {
	results := make([]bool, len(userIDs))
	data, err := encode(msg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to encode message")
		return results
	}
	for i, userID := range userIDs {
		results[i] = r.SendToUser(userID, data)
	}
	return results
}

// BroadcastToRoom sends msg to every connection in roomID at the time of the
// call. Connections whose send fails lose their whole session.
func (r *Registry) BroadcastToRoom(roomID string, msg any) {
	data, err := encode(msg)
	if err != nil {
		logger.Error().Err(err).Str("room_id", roomID).Msg("failed to encode broadcast")
		return
	}

	r.mu.Lock()
	members := make([]member, 0, len(r.rooms[roomID]))
	for conn, userID := range r.rooms[roomID] {
		members = append(members, member{userID: userID, conn: conn})
	}
	r.mu.Unlock()

	if len(members) == 0 {
		return
	}
	metrics.BroadcastsTotal.Inc()

	for _, m := range members {
		if err := r.send(m.conn, data); err != nil {
			logger.Warn().Err(err).Str("user_id", m.userID).Str("room_id", roomID).Msg("broadcast send failed, dropping session")
			r.Release(m.userID, m.conn)
		}
	}
}

// Disconnect removes userID's session, if any, and closes its connection.
func (r *Registry) Disconnect(userID string) {
	r.mu.Lock()
	s, ok := r.sessions[userID]
	if !ok {
		r.mu.Unlock()
		return
	}
	r.dropLocked(userID, s)
	r.mu.Unlock()

	r.afterDrop(userID, s.conn, true)
}

// DisconnectAll drops and closes every session. It returns how many were
// dropped.
func (r *Registry) DisconnectAll() int {
	r.mu.Lock()
	dropped := make(map[string]Connection, len(r.sessions))
	for userID, s := range r.sessions {
		r.dropLocked(userID, s)
		dropped[userID] = s.conn
	}
	r.mu.Unlock()

	for userID, conn := range dropped {
		r.afterDrop(userID, conn, true)
	}
	return len(dropped)
}

// Release disconnects userID only while conn is still its live connection.
func (r *Registry) Release(userID string, conn Connection) {
	r.release(userID, conn, true)
}

func (r *Registry) release(userID string, conn Connection, closeConn bool) {
	r.mu.Lock()
	s, ok := r.sessions[userID]
	if !ok || s.conn != conn {
		r.mu.Unlock()
		return
	}
	r.dropLocked(userID, s)
	r.mu.Unlock()

	r.afterDrop(userID, conn, closeConn)
}

// Holds reports whether conn is still userID's live connection.
func (r *Registry) Holds(userID string, conn Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[userID]
	return ok && s.conn == conn
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[userID]
	return ok
}

// Users returns every user with a live session here, sorted.
func (r *Registry) Users() []string {
	r.mu.Lock()
	users := make([]string, 0, len(r.sessions))
	for userID := range r.sessions {
		users = append(users, userID)
	}
	r.mu.Unlock()

	sort.Strings(users)
	return users
}

// RoomMembers returns the users whose current room is roomID, sorted.
func (r *Registry) RoomMembers(roomID string) []string {
	r.mu.Lock()
	var users []string
	for userID, s := range r.sessions {
		if s.roomID == roomID {
			users = append(users, userID)
		}
	}
	r.mu.Unlock()

	sort.Strings(users)
	return users
}

func (r *Registry) Stats() RegistryStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RegistryStats{Sessions: len(r.sessions), Rooms: len(r.rooms)}
}

func (r *Registry) dropLocked(userID string, s *session) {
	r.removeFromRoomLocked(s)
	delete(r.sessions, userID)
}

func (r *Registry) afterDrop(userID string, conn Connection, closeConn bool) {
	metrics.ActiveSessions.Dec()
	if closeConn {
		conn.Close()
	}
	r.status.Offline(userID)
	logger.Info().Str("user_id", userID).Msg("user disconnected")
}

func (r *Registry) removeFromRoomLocked(s *session) {
	if s.roomID == "" {
		return
	}
	if members, ok := r.rooms[s.roomID]; ok {
		delete(members, s.conn)
		if len(members) == 0 {
			delete(r.rooms, s.roomID)
		}
	}
	s.roomID = ""
}

func (r *Registry) send(conn Connection, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.sendTimeout)
	defer cancel()

	if err := conn.Send(ctx, data); err != nil {
		metrics.SendFailuresTotal.Inc()
		return err
	}
	return nil
}

func encode(msg any) ([]byte, error) {
	if data, ok := msg.([]byte); ok {
		return data, nil
	}
	return json.Marshal(msg)
}
