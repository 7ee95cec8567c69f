// Package databasetest provides an in-memory implementation of the
// repository interfaces for tests.
package databasetest

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"ridematch/internal/database"
	"ridematch/internal/models"
)

var _ database.Database = (*Store)(nil)

type friendEdge struct{ user, friend int }

type routeKey struct {
	user int
	day  string
}

// Store is an in-memory database.Database for tests. It is safe for
// concurrent use.
type Store struct {
	mu        sync.Mutex
	users     map[int]*models.User
	hobbies   map[int]models.Hobby
	userHobby map[int][]int
	edges     map[friendEdge]bool
	rooms     map[string]*models.ChatRoom
	messages  []models.ChatMessage
	statuses  map[int]*models.UserStatus
	locations []models.GPSLocation
	routes    map[routeKey]*models.GPSRoute
	nextID    int
}

func New(userIDs ...int) *Store {
	s := &Store{
		users:     make(map[int]*models.User),
		hobbies:   make(map[int]models.Hobby),
		userHobby: make(map[int][]int),
		edges:     make(map[friendEdge]bool),
		rooms:     make(map[string]*models.ChatRoom),
		statuses:  make(map[int]*models.UserStatus),
		routes:    make(map[routeKey]*models.GPSRoute),
	}
	for _, id := range userIDs {
		s.users[id] = &models.User{ID: id, Email: "user" + strconv.Itoa(id) + "@example.com"}
	}
	return s
}

func (s *Store) id() int {
	s.nextID++
	return s.nextID
}

func (s *Store) CreateUser(_ context.Context, email, hash string, nickname *string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return nil, models.ErrConflict
		}
	}
	u := &models.User{ID: s.id() + 1000, Email: email, PasswordHash: hash, Nickname: nickname}
	s.users[u.ID] = u
	c := *u
	return &c, nil
}

func (s *Store) GetUserByID(_ context.Context, id int) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *Store) UpdateUser(_ context.Context, id int, upd database.UserUpdate) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if upd.Email != nil {
		for _, other := range s.users {
			if other.ID != id && other.Email == *upd.Email {
				return nil, models.ErrConflict
			}
		}
		u.Email = *upd.Email
	}
	if upd.PasswordHash != nil {
		u.PasswordHash = *upd.PasswordHash
	}
	if upd.Nickname != nil {
		u.Nickname = upd.Nickname
	}
	if upd.Gender != nil {
		u.Gender = upd.Gender
	}
	if upd.Age != nil {
		u.Age = upd.Age
	}
	if upd.Location != nil {
		u.Location = upd.Location
	}
	c := *u
	return &c, nil
}

func (s *Store) SetAvatarURL(_ context.Context, id int, url *string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	u.AvatarURL = url
	c := *u
	return &c, nil
}

func (s *Store) ListUserHobbies(_ context.Context, userID int) ([]models.Hobby, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Hobby{}
	for _, hid := range s.userHobby[userID] {
		out = append(out, s.hobbies[hid])
	}
	return out, nil
}

func (s *Store) SetUserHobbies(_ context.Context, userID int, hobbyIDs []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, hid := range hobbyIDs {
		if _, ok := s.hobbies[hid]; !ok {
			return models.ErrNotFound
		}
	}
	s.userHobby[userID] = append([]int(nil), hobbyIDs...)
	return nil
}

func (s *Store) ListHobbies(context.Context) ([]models.Hobby, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Hobby, 0, len(s.hobbies))
	for _, h := range s.hobbies {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) CreateHobby(_ context.Context, name string, description *string) (*models.Hobby, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.hobbies {
		if h.Name == name {
			return nil, models.ErrConflict
		}
	}
	h := models.Hobby{ID: s.id(), Name: name, Description: description}
	s.hobbies[h.ID] = h
	return &h, nil
}

func (s *Store) ConnectFriends(_ context.Context, userID, friendID int, roomID, roomName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	created := !s.edges[friendEdge{userID, friendID}] || !s.edges[friendEdge{friendID, userID}]
	s.edges[friendEdge{userID, friendID}] = true
	s.edges[friendEdge{friendID, userID}] = true
	if _, ok := s.rooms[roomID]; !ok {
		s.rooms[roomID] = &models.ChatRoom{ID: roomID, Name: &roomName}
	}
	return created, nil
}

func (s *Store) RemoveFriendship(_ context.Context, userID, friendID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.edges, friendEdge{userID, friendID})
	delete(s.edges, friendEdge{friendID, userID})
	return nil
}

func (s *Store) ListFriends(_ context.Context, userID int) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.User{}
	for e := range s.edges {
		if e.user == userID {
			out = append(out, *s.users[e.friend])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) FindOrCreateChatRoom(_ context.Context, id, name string) (*models.ChatRoom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rooms[id]; ok {
		return r, nil
	}
	r := &models.ChatRoom{ID: id}
	if name != "" {
		r.Name = &name
	}
	s.rooms[id] = r
	return r, nil
}

func (s *Store) GetChatRoom(_ context.Context, id string) (*models.ChatRoom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return r, nil
}

func (s *Store) InsertChatMessage(_ context.Context, roomID, senderID, content string, imageURL *string) (*models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := models.ChatMessage{
		ID:        s.id(),
		RoomID:    roomID,
		SenderID:  senderID,
		Content:   content,
		ImageURL:  imageURL,
		Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(s.nextID) * time.Second),
	}
	s.messages = append(s.messages, msg)
	return &msg, nil
}

// newestFirst returns the room's messages in descending insertion order.
func (s *Store) newestFirst(roomID string) []models.ChatMessage {
	var out []models.ChatMessage
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].RoomID == roomID {
			out = append(out, s.messages[i])
		}
	}
	return out
}

func (s *Store) RecentMessages(ctx context.Context, roomID string, limit int) ([]models.ChatMessage, error) {
	page, _ := s.MessagesPage(ctx, roomID, limit, 0)
	for i, j := 0, len(page)-1; i < j; i, j = i+1, j-1 {
		page[i], page[j] = page[j], page[i]
	}
	return page, nil
}

func (s *Store) MessagesPage(_ context.Context, roomID string, limit, offset int) ([]models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.newestFirst(roomID)
	if offset >= len(all) {
		return []models.ChatMessage{}, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *Store) LastMessage(_ context.Context, roomID string) (*models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.newestFirst(roomID)
	if len(all) == 0 {
		return nil, models.ErrNotFound
	}
	return &all[0], nil
}

func (s *Store) UpsertUserStatus(_ context.Context, userID int, status models.PresenceStatus, instance *string, connectedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[userID] = &models.UserStatus{UserID: userID, Status: status, ServerInstance: instance, ConnectedAt: connectedAt}
	return nil
}

func (s *Store) GetUserStatus(_ context.Context, userID int) (*models.UserStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[userID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return st, nil
}

func (s *Store) InsertLocation(_ context.Context, userID int, lat, lng float64, ts time.Time) (*models.GPSLocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	loc := models.GPSLocation{ID: s.id(), UserID: userID, Latitude: lat, Longitude: lng, Timestamp: ts}
	s.locations = append(s.locations, loc)
	return &loc, nil
}

func (s *Store) inRange(loc models.GPSLocation, userID int, r models.GPSRange) bool {
	if loc.UserID != userID {
		return false
	}
	if !r.From.IsZero() && loc.Timestamp.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !loc.Timestamp.Before(r.To) {
		return false
	}
	return true
}

func (s *Store) ListLocations(_ context.Context, userID int, r models.GPSRange, ascending bool) ([]models.GPSLocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.GPSLocation{}
	for _, loc := range s.locations {
		if s.inRange(loc, userID, r) {
			out = append(out, loc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if ascending {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if r.Limit > 0 && len(out) > r.Limit {
		out = out[:r.Limit]
	}
	return out, nil
}

func (s *Store) DeleteLocations(_ context.Context, userID int, r models.GPSRange) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.locations[:0]
	var n int64
	for _, loc := range s.locations {
		if s.inRange(loc, userID, r) {
			n++
			continue
		}
		kept = append(kept, loc)
	}
	s.locations = kept
	return n, nil
}

func (s *Store) UpsertRoute(_ context.Context, userID int, day time.Time, points []models.RoutePoint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return false, models.ErrNotFound
	}
	k := routeKey{userID, day.Format(time.DateOnly)}
	_, replaced := s.routes[k]
	s.routes[k] = &models.GPSRoute{
		UserID:    userID,
		Date:      k.day,
		Route:     append([]models.RoutePoint(nil), points...),
		UpdatedAt: time.Now().UTC(),
	}
	return replaced, nil
}

func (s *Store) ListRoutes(_ context.Context, userID, limit int) ([]models.GPSRouteSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.GPSRouteSummary{}
	for k, r := range s.routes {
		if k.user == userID {
			out = append(out, models.GPSRouteSummary{
				UserID: userID, Date: r.Date, PointCount: len(r.Route), UpdatedAt: r.UpdatedAt,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetRoute(_ context.Context, userID int, day time.Time) (*models.GPSRoute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.routes[routeKey{userID, day.Format(time.DateOnly)}]
	if !ok {
		return nil, models.ErrNotFound
	}
	c := *r
	c.Route = append([]models.RoutePoint(nil), r.Route...)
	return &c, nil
}

func (s *Store) DeleteRoute(_ context.Context, userID int, day time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := routeKey{userID, day.Format(time.DateOnly)}
	if _, ok := s.routes[k]; !ok {
		return models.ErrNotFound
	}
	delete(s.routes, k)
	return nil
}

func (s *Store) Migrate(context.Context) error { return nil }

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
