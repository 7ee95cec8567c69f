package websocket

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"ridematch/internal/metrics"
	"ridematch/internal/models"
	"ridematch/pkg/logger"

	"github.com/goccy/go-json"
	nanoid "github.com/jaevor/go-nanoid"
	"golang.org/x/time/rate"
)

const (
	roomIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	roomIDLength   = 8
)

// ChatStore is the persistence the gateway needs.
type ChatStore interface {
	GetUserByID(ctx context.Context, id int) (*models.User, error)
	FindOrCreateChatRoom(ctx context.Context, id, name string) (*models.ChatRoom, error)
	InsertChatMessage(ctx context.Context, roomID, senderID, content string, imageURL *string) (*models.ChatMessage, error)
	RecentMessages(ctx context.Context, roomID string, limit int) ([]models.ChatMessage, error)
	ConnectFriends(ctx context.Context, userID, friendID int, roomID, roomName string) (bool, error)
}

// Inbound is a Connection the gateway can read frames from.
type Inbound interface {
	Connection
	ReadMessage() ([]byte, error)
}

type GatewayConfig struct {
	HistoryLimit      int
	MessagesPerSecond float64
	MessageBurst      int
}

// Gateway runs the chat protocol for each connection.
type Gateway struct {
	registry  *Registry
	store     ChatStore
	cfg       GatewayConfig
	newRoomID func() string
}

// Session is the per-connection protocol state. An empty userID means the
// connection has not registered yet. Once the registry stops holding the
// connection for userID (replaced or torn down) the session goes stale and
// refuses every later frame.
type Session struct {
	conn    Inbound
	userID  string
	stale   bool
	limiter *rate.Limiter
}

func (s *Session) UserID() string { return s.userID }

func NewGateway(registry *Registry, store ChatStore, cfg GatewayConfig) (*Gateway, error) {
	gen, err := nanoid.CustomASCII(roomIDAlphabet, roomIDLength)
	if err != nil {
		return nil, fmt.Errorf("failed to create room id generator: %w", err)
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}
	return &Gateway{
		registry:  registry,
		store:     store,
		cfg:       cfg,
		newRoomID: gen,
	}, nil
}

func (g *Gateway) NewSession(conn Inbound) *Session {
	limit := rate.Inf
	if g.cfg.MessagesPerSecond > 0 {
		limit = rate.Limit(g.cfg.MessagesPerSecond)
	}
	burst := g.cfg.MessageBurst
	if burst <= 0 {
		burst = 1
	}
	return &Session{conn: conn, limiter: rate.NewLimiter(limit, burst)}
}

// Serve reads frames from conn until it fails, then releases the session.
func (g *Gateway) Serve(ctx context.Context, conn Inbound) {
	sess := g.NewSession(conn)
	defer func() {
		if sess.userID != "" {
			g.registry.Release(sess.userID, conn)
		}
	}()

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		g.Handle(ctx, sess, data)
	}
}

// Handle processes one inbound frame. Protocol errors are reported to the
// connection and never end the session.
func (g *Gateway) Handle(ctx context.Context, sess *Session, data []byte) {
	if sess.userID != "" && !g.registry.Holds(sess.userID, sess.conn) {
		sess.userID = ""
		sess.stale = true
	}
	if sess.stale {
		g.fail(sess, "stale", models.ErrorFrame("session is no longer registered"))
		return
	}

	if !sess.limiter.Allow() {
		g.fail(sess, "rate_limited", models.ErrorFrame("rate limit exceeded"))
		return
	}

	var env models.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		text := string(data)
		frame := models.ErrorFrame("invalid JSON: " + err.Error())
		frame.ReceivedText = &text
		g.fail(sess, "malformed", frame)
		return
	}

	switch env.Type {
	case models.MessageTypeRegisterUser,
		models.MessageTypeCreateRoom,
		models.MessageTypeJoinRoom,
		models.MessageTypeLeaveRoom,
		models.MessageTypeMessage,
		models.MessageTypeConnectRequest,
		models.MessageTypeConnectResponse:
		metrics.FramesTotal.WithLabelValues(string(env.Type)).Inc()
	default:
		metrics.FramesTotal.WithLabelValues("unknown").Inc()
		frame := models.ErrorFrame(fmt.Sprintf("unknown message type: %q", env.Type))
		frame.ReceivedData = json.RawMessage(data)
		g.fail(sess, "unknown_type", frame)
		return
	}

	if env.Type == models.MessageTypeRegisterUser {
		g.handleRegister(ctx, sess, &env)
		return
	}
	if sess.userID == "" {
		g.fail(sess, "unregistered", models.ErrorFrame("user not registered"))
		return
	}

	switch env.Type {
	case models.MessageTypeCreateRoom:
		g.handleCreateRoom(ctx, sess, &env)
	case models.MessageTypeJoinRoom:
		g.handleJoinRoom(sess, &env)
	case models.MessageTypeLeaveRoom:
		g.handleLeaveRoom(sess, &env)
	case models.MessageTypeMessage:
		g.handleMessage(ctx, sess, &env)
	case models.MessageTypeConnectRequest:
		g.handleConnectRequest(sess, &env)
	case models.MessageTypeConnectResponse:
		g.handleConnectResponse(ctx, sess, &env)
	}
}

func (g *Gateway) handleRegister(ctx context.Context, sess *Session, env *models.Envelope) {
	userID := env.UserID.String()
	if userID == "" {
		g.fail(sess, "invalid", models.ErrorFrame("user_id is required"))
		return
	}
	id, err := strconv.Atoi(userID)
	if err != nil {
		g.fail(sess, "invalid", models.ErrorFrame("invalid user_id"))
		return
	}

	if _, err := g.store.GetUserByID(ctx, id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			g.fail(sess, "unknown_user", models.ErrorFrame(fmt.Sprintf("user %s not found", userID)))
			return
		}
		logger.Error().Err(err).Str("user_id", userID).Msg("failed to look up user")
		g.fail(sess, "store", models.ErrorFrame("failed to verify user"))
		return
	}

	if sess.userID != "" && sess.userID != userID {
		g.registry.release(sess.userID, sess.conn, false)
	}
	sess.userID = userID
	g.registry.Register(userID, sess.conn)
}

func (g *Gateway) handleCreateRoom(ctx context.Context, sess *Session, env *models.Envelope) {
	roomID := g.newRoomID()
	if _, err := g.store.FindOrCreateChatRoom(ctx, roomID, env.RoomName); err != nil {
		logger.Error().Err(err).Str("room_id", roomID).Msg("failed to create room")
		g.fail(sess, "store", models.ErrorFrame("failed to create room"))
		return
	}

	logger.Info().Str("user_id", sess.userID).Str("room_id", roomID).Msg("room created")
	g.registry.SendToUser(sess.userID, models.Frame{
		Type:     models.MessageTypeRoomCreated,
		RoomID:   roomID,
		RoomName: env.RoomName,
	})
}

func (g *Gateway) handleJoinRoom(sess *Session, env *models.Envelope) {
	roomID := env.RoomID.String()
	if roomID == "" {
		g.fail(sess, "invalid", models.ErrorFrame("room_id is required"))
		return
	}
	if !g.registry.Join(sess.userID, roomID) {
		g.fail(sess, "unregistered", models.ErrorFrame("user not registered"))
	}
}

func (g *Gateway) handleLeaveRoom(sess *Session, env *models.Envelope) {
	roomID := env.RoomID.String()
	if roomID == "" {
		g.fail(sess, "invalid", models.ErrorFrame("room_id is required"))
		return
	}
	g.registry.Leave(sess.userID, roomID)
	g.registry.SendToUser(sess.userID, models.Frame{Type: models.MessageTypeLeftRoom, RoomID: roomID})
}

func (g *Gateway) handleMessage(ctx context.Context, sess *Session, env *models.Envelope) {
	roomID := env.RoomID.String()
	sender := env.Sender.String()
	if roomID == "" || sender == "" || (env.Content == "" && env.ImageURL == nil) {
		g.fail(sess, "invalid", models.ErrorFrame("room_id, sender and content are required"))
		return
	}
	if sender != sess.userID {
		g.fail(sess, "invalid", models.ErrorFrame("sender must match the registered user"))
		return
	}

	if _, err := g.store.InsertChatMessage(ctx, roomID, sender, env.Content, env.ImageURL); err != nil {
		logger.Error().Err(err).Str("room_id", roomID).Str("sender", sender).Msg("failed to save message")
		g.fail(sess, "store", models.ErrorFrame("failed to save message"))
		return
	}

	g.registry.BroadcastToRoom(roomID, models.ChatFrame{
		Type:      models.MessageTypeMessage,
		RoomID:    roomID,
		Sender:    sender,
		Content:   env.Content,
		MessageID: env.MessageID,
		Timestamp: env.Timestamp,
		ImageURL:  env.ImageURL,
	})
}

func (g *Gateway) handleConnectRequest(sess *Session, env *models.Envelope) {
	from, to := env.From.String(), env.To.String()
	if from != sess.userID {
		g.fail(sess, "invalid", models.ErrorFrame("from must match the registered user"))
		return
	}
	if to == "" || to == from {
		g.fail(sess, "invalid", models.ErrorFrame("to must name another user"))
		return
	}

	if to == models.VirtualPeerID {
		accept := true
		g.registry.SendToUser(from, models.ConnectFrame{
			Type:   models.MessageTypeConnectResponse,
			From:   models.VirtualPeerID,
			To:     from,
			Accept: &accept,
		})
		return
	}

	delivered := g.registry.SendToUser(to, models.ConnectFrame{
		Type: models.MessageTypeConnectRequest,
		From: from,
		To:   to,
	})
	if !delivered {
		g.fail(sess, "offline", models.ErrorFrame(fmt.Sprintf("user %s is not online", to)))
	}
}

func (g *Gateway) handleConnectResponse(ctx context.Context, sess *Session, env *models.Envelope) {
	from, to := env.From.String(), env.To.String()
	if from == "" || to == "" || from == to {
		g.fail(sess, "invalid", models.ErrorFrame("from and to must name two different users"))
		return
	}
	if sess.userID != from && sess.userID != to {
		g.fail(sess, "invalid", models.ErrorFrame("connect_response must involve the registered user"))
		return
	}
	peers := []string{from, to}

	if env.Accept == nil || !*env.Accept {
		rejected := false
		g.registry.SendToUsers(peers, models.ConnectFrame{
			Type:   models.MessageTypeConnectResponse,
			From:   from,
			To:     to,
			Accept: &rejected,
		})
		return
	}

	lo, hi, err := orderedPair(from, to)
	if err != nil {
		g.fail(sess, "invalid", models.ErrorFrame(err.Error()))
		return
	}
	roomID := models.FriendRoomID(lo, hi)
	roomName := models.FriendRoomName(lo, hi)

	created, err := g.store.ConnectFriends(ctx, lo, hi, roomID, roomName)
	if err != nil {
		logger.Error().Err(err).Str("from", from).Str("to", to).Msg("failed to connect friends")
		g.fail(sess, "store", models.ErrorFrame("failed to create friendship"))
		return
	}
	if created {
		logger.Info().Str("room_id", roomID).Msg("friendship created")
	}

	history, err := g.store.RecentMessages(ctx, roomID, g.cfg.HistoryLimit)
	if err != nil {
		logger.Error().Err(err).Str("room_id", roomID).Msg("failed to load chat history")
		history = nil
	}
	if history == nil {
		history = []models.ChatMessage{}
	}

	g.registry.SendToUsers(peers, models.FriendRoomFrame{
		Type:        models.MessageTypeConnectResponse,
		From:        from,
		To:          to,
		Accept:      true,
		RoomID:      roomID,
		ChatHistory: history,
	})
}

func (g *Gateway) fail(sess *Session, reason string, frame models.Frame) {
	metrics.ProtocolErrorsTotal.WithLabelValues(reason).Inc()
	data, err := encode(frame)
	if err != nil {
		return
	}
	if err := g.registry.send(sess.conn, data); err != nil {
		logger.Debug().Err(err).Str("user_id", sess.userID).Msg("failed to send error frame")
	}
}

// FriendRoomID derives the friend room id from wire user ids.
func FriendRoomID(a, b string) (string, error) {
	lo, hi, err := orderedPair(a, b)
	if err != nil {
		return "", err
	}
	return models.FriendRoomID(lo, hi), nil
}

func orderedPair(a, b string) (int, int, error) {
	x, err := strconv.Atoi(a)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid user id %q", a)
	}
	y, err := strconv.Atoi(b)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid user id %q", b)
	}
	return min(x, y), max(x, y), nil
}
