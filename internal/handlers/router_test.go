package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"ridematch/internal/auth"
	"ridematch/internal/avatar"
	"ridematch/internal/config"
	"ridematch/internal/database/databasetest"
	"ridematch/internal/models"
	"ridematch/internal/services"
	ws "ridematch/internal/websocket"
	"ridematch/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.Init(logger.Config{Output: io.Discard})
	os.Exit(m.Run())
}

func itoa(i int) string { return strconv.Itoa(i) }

type testServer struct {
	*httptest.Server
	store *databasetest.Store
	auth  *auth.Service
}

func newTestServer(t *testing.T, opts ...func(*Handlers)) *testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store := databasetest.New()
	authService := auth.NewService(store, config.JWTConfig{Secret: []byte("test-secret"), ExpiresIn: time.Hour})

	status := ws.NewStatusSync(store, nil, "test-node", 64)
	go status.Run(ctx)

	registry := ws.NewRegistry(status, time.Second)
	gateway, err := ws.NewGateway(registry, store, ws.GatewayConfig{HistoryLimit: 50})
	require.NoError(t, err)

	files, err := avatar.NewDiskStore(t.TempDir())
	require.NoError(t, err)

	h := Handlers{
		Auth:        NewAuthHandlers(authService),
		Users:       NewUserHandlers(services.NewUserService(store, store, registry, nil), services.NewHobbyService(store)),
		Friends:     NewFriendHandlers(services.NewFriendService(store, store, store)),
		Rooms:       NewRoomHandlers(services.NewRoomService(store, registry)),
		GPS:         NewGPSHandlers(services.NewGPSService(store, store)),
		Avatars:     NewAvatarHandlers(services.NewAvatarService(store, files, "/avatars", 1<<20), files),
		WebSocket:   NewWebSocketHandlers(ctx, gateway, 64*1024),
		AuthService: authService,
		Registry:    registry,
		DB:          store,
	}
	for _, opt := range opts {
		opt(&h)
	}

	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, store: store, auth: authService}
}

// do sends a JSON request and decodes the JSON response into out when non-nil.
func (s *testServer) do(t *testing.T, method, path, token string, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = strings.NewReader(b)
		default:
			data, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewReader(data)
		}
	}

	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// signup registers a user and returns its id and a login token.
func (s *testServer) signup(t *testing.T, email string) (int, string) {
	t.Helper()
	var user models.User
	status := s.do(t, http.MethodPost, "/users", "", map[string]any{"email": email, "password": "correct-horse"}, &user)
	require.Equal(t, http.StatusCreated, status)

	var login models.LoginResponse
	status = s.do(t, http.MethodPost, "/login", "", map[string]any{"email": email, "password": "correct-horse"}, &login)
	require.Equal(t, http.StatusOK, status)
	return user.ID, login.Token
}

func TestUserLifecycle(t *testing.T) {
	srv := newTestServer(t)
	id, token := srv.signup(t, "Rider@Example.com")

	var user models.User
	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/users/"+itoa(id), "", nil, &user))
	assert.Equal(t, "rider@example.com", user.Email)

	var errBody errorResponse
	status := srv.do(t, http.MethodPost, "/users", "", map[string]any{"email": "rider@example.com", "password": "another-pass"}, &errBody)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, errBody.Detail, "already registered")

	status = srv.do(t, http.MethodPatch, "/users/"+itoa(id), token, map[string]any{"nickname": "trailblazer", "age": 29}, &user)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "trailblazer", *user.Nickname)
	assert.Equal(t, 29, *user.Age)

	var hobby models.Hobby
	require.Equal(t, http.StatusCreated, srv.do(t, http.MethodPost, "/hobbies", "", map[string]any{"name": "cycling"}, &hobby))

	status = srv.do(t, http.MethodPut, "/users/"+itoa(id)+"/hobbies", token, map[string]any{"hobby_ids": []int{hobby.ID}}, &user)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, user.Hobbies, 1)
	assert.Equal(t, "cycling", user.Hobbies[0].Name)

	var hobbies []models.Hobby
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/hobbies", "", nil, &hobbies))
	assert.Len(t, hobbies, 1)
}

func TestUserEndpointErrors(t *testing.T) {
	srv := newTestServer(t)
	id, token := srv.signup(t, "a@example.com")
	otherID, _ := srv.signup(t, "b@example.com")

	tests := []struct {
		name       string
		method     string
		path       string
		token      string
		body       any
		wantStatus int
	}{
		{name: "unknown user", method: http.MethodGet, path: "/users/999", wantStatus: http.StatusNotFound},
		{name: "non-numeric id", method: http.MethodGet, path: "/users/abc", wantStatus: http.StatusBadRequest},
		{name: "malformed body", method: http.MethodPost, path: "/users", body: "{", wantStatus: http.StatusBadRequest},
		{name: "invalid email", method: http.MethodPost, path: "/users", body: map[string]any{"email": "nope", "password": "long-enough"}, wantStatus: http.StatusUnprocessableEntity},
		{name: "short password", method: http.MethodPost, path: "/users", body: map[string]any{"email": "c@example.com", "password": "short"}, wantStatus: http.StatusUnprocessableEntity},
		{name: "patch without token", method: http.MethodPatch, path: "/users/" + itoa(id), body: map[string]any{}, wantStatus: http.StatusUnauthorized},
		{name: "patch with bad token", method: http.MethodPatch, path: "/users/" + itoa(id), token: "garbage", body: map[string]any{}, wantStatus: http.StatusUnauthorized},
		{name: "patch another user", method: http.MethodPatch, path: "/users/" + itoa(otherID), token: token, body: map[string]any{"nickname": "x"}, wantStatus: http.StatusForbidden},
		{name: "bad gender", method: http.MethodPatch, path: "/users/" + itoa(id), token: token, body: map[string]any{"gender": "robot"}, wantStatus: http.StatusUnprocessableEntity},
		{name: "unknown hobby", method: http.MethodPut, path: "/users/" + itoa(id) + "/hobbies", token: token, body: map[string]any{"hobby_ids": []int{42}}, wantStatus: http.StatusNotFound},
		{name: "wrong password", method: http.MethodPost, path: "/login", body: map[string]any{"email": "a@example.com", "password": "not-the-one"}, wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var errBody errorResponse
			status := srv.do(t, tt.method, tt.path, tt.token, tt.body, &errBody)
			assert.Equal(t, tt.wantStatus, status)
			assert.NotEmpty(t, errBody.Detail)
		})
	}
}

func TestFriendsAndHistory(t *testing.T) {
	srv := newTestServer(t)
	a, _ := srv.signup(t, "a@example.com")
	b, _ := srv.signup(t, "b@example.com")
	ctx := context.Background()

	var added models.FriendAdded
	status := srv.do(t, http.MethodPost, "/friends", "", models.FriendRequest{UserID: b, FriendID: a}, &added)
	require.Equal(t, http.StatusOK, status)
	roomID := models.FriendRoomID(a, b)
	assert.Equal(t, roomID, added.RoomID)

	var errBody errorResponse
	status = srv.do(t, http.MethodPost, "/friends", "", models.FriendRequest{UserID: a, FriendID: b}, &errBody)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, errBody.Detail, "already friends")

	status = srv.do(t, http.MethodPost, "/friends", "", models.FriendRequest{UserID: a, FriendID: a}, &errBody)
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	for _, text := range []string{"hi", "hello", "ride at 6?"} {
		_, err := srv.store.InsertChatMessage(ctx, roomID, itoa(a), text, nil)
		require.NoError(t, err)
	}

	var list models.FriendList
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/friends/"+itoa(a), "", nil, &list))
	require.Equal(t, 1, list.Total)
	require.NotNil(t, list.Friends[0].LastMessage)
	assert.Equal(t, "ride at 6?", list.Friends[0].LastMessage.Content)

	var history models.ChatHistory
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/chat_history/"+roomID+"?limit=2", "", nil, &history))
	require.Len(t, history.Messages, 2)
	assert.Equal(t, "hello", history.Messages[0].Content)
	assert.Equal(t, "ride at 6?", history.Messages[1].Content)

	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodGet, "/chat_history/nowhere", "", nil, &errBody))
	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodGet, "/chat_history/"+roomID+"?limit=ten", "", nil, &errBody))

	var removed map[string]string
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodDelete, "/friends", "", models.FriendRequest{UserID: a, FriendID: b}, &removed))
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/friends/"+itoa(b), "", nil, &list))
	assert.Zero(t, list.Total)
}

func TestGPSEndpoints(t *testing.T) {
	srv := newTestServer(t)
	id, _ := srv.signup(t, "gps@example.com")
	base := "/gps/locations/" + itoa(id)

	for _, ts := range []string{"2026-05-01T07:00:00Z", "2026-05-01T18:00:00Z", "2026-05-02T07:00:00Z"} {
		var loc models.GPSLocation
		status := srv.do(t, http.MethodPost, "/gps/location?user_id="+itoa(id), "", map[string]any{"lat": 40.4, "lng": -3.7, "ts": ts}, &loc)
		require.Equal(t, http.StatusCreated, status)
		assert.Equal(t, id, loc.UserID)
	}

	var errBody errorResponse
	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodPost, "/gps/location", "", map[string]any{"lat": 1, "lng": 1, "ts": "2026-05-01T07:00:00Z"}, &errBody))
	assert.Equal(t, http.StatusUnprocessableEntity, srv.do(t, http.MethodPost, "/gps/location?user_id="+itoa(id), "", map[string]any{"lat": 120, "lng": 1, "ts": "2026-05-01T07:00:00Z"}, &errBody))
	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodPost, "/gps/location?user_id=999", "", map[string]any{"lat": 1, "lng": 1, "ts": "2026-05-01T07:00:00Z"}, &errBody))

	var res models.GPSLocations
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, base+"?limit=2", "", nil, &res))
	assert.Equal(t, 2, res.Total)
	assert.True(t, res.Locations[0].Timestamp.After(res.Locations[1].Timestamp))

	require.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, base+"/date/2026-05-01", "", nil, &res))
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, "2026-05-01", res.Date)

	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodGet, base+"/date/yesterday", "", nil, &errBody))

	var deleted models.GPSDeleted
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodDelete, base+"?start_date=2026-05-02&end_date=2026-05-02", "", nil, &deleted))
	assert.EqualValues(t, 1, deleted.DeletedCount)
}

func TestGPSRouteEndpoints(t *testing.T) {
	srv := newTestServer(t)
	id, _ := srv.signup(t, "routes@example.com")
	base := "/gps/routes/" + itoa(id)

	upload := func(date string, points int) (int, models.GPSRouteUploaded) {
		route := make([]map[string]any, points)
		for i := range route {
			route[i] = map[string]any{"lat": 40.4, "lng": -3.7, "ts": date + "T07:0" + itoa(i) + ":00Z"}
		}
		var res models.GPSRouteUploaded
		status := srv.do(t, http.MethodPost, "/gps/routes", "", map[string]any{"user_id": id, "date": date, "route": route}, &res)
		return status, res
	}

	status, res := upload("2026-05-01", 3)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, 3, res.PointCount)
	assert.False(t, res.Replaced)

	status, res = upload("2026-05-01", 2)
	require.Equal(t, http.StatusCreated, status)
	assert.True(t, res.Replaced)

	status, _ = upload("2026-05-03", 1)
	require.Equal(t, http.StatusCreated, status)

	var summaries []models.GPSRouteSummary
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, base, "", nil, &summaries))
	require.Len(t, summaries, 2)
	assert.Equal(t, "2026-05-03", summaries[0].Date)
	assert.Equal(t, 2, summaries[1].PointCount)

	var route models.GPSRoute
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, base+"/2026-05-01", "", nil, &route))
	assert.Len(t, route.Route, 2)

	var errBody errorResponse
	assert.Equal(t, http.StatusUnprocessableEntity, srv.do(t, http.MethodPost, "/gps/routes", "", map[string]any{"user_id": id, "date": "2026-05-04", "route": []any{}}, &errBody))
	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodGet, base+"/May-1", "", nil, &errBody))
	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodGet, "/gps/routes/999", "", nil, &errBody))

	var msg map[string]string
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodDelete, base+"/2026-05-01", "", nil, &msg))
	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodDelete, base+"/2026-05-01", "", nil, &errBody))
	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodGet, base+"/2026-05-01", "", nil, &errBody))
}

func TestAvatarEndpoints(t *testing.T) {
	srv := newTestServer(t)
	id, token := srv.signup(t, "face@example.com")
	otherID, _ := srv.signup(t, "other@example.com")
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")
	body := map[string]any{"avatar_base64": "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)}
	path := "/users/" + itoa(id) + "/avatar"

	var errBody errorResponse
	assert.Equal(t, http.StatusUnauthorized, srv.do(t, http.MethodPost, path, "", body, &errBody))
	assert.Equal(t, http.StatusForbidden, srv.do(t, http.MethodPost, "/users/"+itoa(otherID)+"/avatar", token, body, &errBody))
	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodPost, path, token, map[string]any{"avatar_base64": "aGVsbG8="}, &errBody))
	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodDelete, path, token, nil, &errBody))

	var user models.User
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, path, token, body, &user))
	require.NotNil(t, user.AvatarURL)

	resp, err := http.Get(srv.URL + *user.AvatarURL)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, "public, max-age=86400", resp.Header.Get("Cache-Control"))
	assert.Equal(t, png, data)

	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodGet, "/avatars/notes.txt", "", nil, &errBody))
	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodGet, "/avatars/missing.png", "", nil, &errBody))

	var msg map[string]string
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodDelete, path, token, nil, &msg))
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/users/"+itoa(id), "", nil, &user))
	assert.Nil(t, user.AvatarURL)
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	var body map[string]any
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/healthz", "", nil, &body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 0, body["sessions"])

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ridematch_ws_active_sessions")
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthReportsPresenceStore(t *testing.T) {
	srv := newTestServer(t, func(h *Handlers) {
		h.Presence = pingerFunc(func(context.Context) error { return errors.New("connection refused") })
	})

	var body map[string]any
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/healthz", "", nil, &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "connection refused", body["presence"])
}

func TestLoginRateLimit(t *testing.T) {
	srv := newTestServer(t, func(h *Handlers) { h.LoginRateLimit = 3 })
	creds := map[string]any{"email": "nobody@example.com", "password": "wrong-pass"}

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusUnauthorized, srv.do(t, http.MethodPost, "/login", "", creds, nil))
	}
	assert.Equal(t, http.StatusTooManyRequests, srv.do(t, http.MethodPost, "/login", "", creds, nil))

	// other routes are not limited
	var hobbies []models.Hobby
	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/hobbies", "", nil, &hobbies))
}

func TestWebSocketSessionUpdatesPresence(t *testing.T) {
	srv := newTestServer(t)
	id, _ := srv.signup(t, "ws@example.com")

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"register_user","user_id":"`+itoa(id)+`"}`)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame map[string]any
	require.NoError(t, json.Unmarshal(data, &frame))
	assert.Equal(t, "user_registered", frame["type"])

	var view models.PresenceView
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/users/"+itoa(id)+"/status", "", nil, &view))
	assert.True(t, view.LocalOnline)
	assert.True(t, view.Online)

	conn.Close()
	assert.Eventually(t, func() bool {
		var v models.PresenceView
		srv.do(t, http.MethodGet, "/users/"+itoa(id)+"/status", "", nil, &v)
		return !v.LocalOnline
	}, 2*time.Second, 20*time.Millisecond)
}
