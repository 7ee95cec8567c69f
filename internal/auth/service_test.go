package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"ridematch/internal/config"
	"ridematch/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryUsers struct {
	mu     sync.Mutex
	nextID int
	users  map[string]*models.User
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{users: make(map[string]*models.User)}
}

func (m *memoryUsers) CreateUser(_ context.Context, email, hash string, nickname *string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[email]; ok {
		return nil, models.ErrConflict
	}
	m.nextID++
	u := &models.User{ID: m.nextID, Email: email, PasswordHash: hash, Nickname: nickname}
	m.users[email] = u
	return u, nil
}

func (m *memoryUsers) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	if !ok {
		return nil, models.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (m *memoryUsers) GetUserByID(_ context.Context, id int) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			c := *u
			return &c, nil
		}
	}
	return nil, models.ErrNotFound
}

func newTestService() *Service {
	return NewService(newMemoryUsers(), config.JWTConfig{Secret: []byte("test-secret"), ExpiresIn: time.Hour})
}

func TestRegisterHashesPassword(t *testing.T) {
	svc := newTestService()

	user, err := svc.Register(context.Background(), &models.CreateUserRequest{Email: " Rider@Example.com ", Password: "hunter2hunter2"})
	require.NoError(t, err)

	assert.Equal(t, "rider@example.com", user.Email)
	assert.NotEqual(t, "hunter2hunter2", user.PasswordHash)
	assert.NotEmpty(t, user.PasswordHash)

	_, err = svc.Register(context.Background(), &models.CreateUserRequest{Email: "rider@example.com", Password: "another-one"})
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestLogin(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	_, err := svc.Register(ctx, &models.CreateUserRequest{Email: "a@b.co", Password: "correct-horse"})
	require.NoError(t, err)

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{name: "valid", email: "a@b.co", password: "correct-horse"},
		{name: "email is case-insensitive", email: "A@B.CO", password: "correct-horse"},
		{name: "wrong password", email: "a@b.co", password: "battery-staple", wantErr: models.ErrUnauthorized},
		{name: "unknown email", email: "x@b.co", password: "correct-horse", wantErr: models.ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := svc.Login(ctx, &models.LoginRequest{Email: tt.email, Password: tt.password})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, resp.Token)

			user, err := svc.GetUserFromToken(ctx, resp.Token)
			require.NoError(t, err)
			assert.Equal(t, resp.User.ID, user.ID)
		})
	}
}

func TestValidateTokenRejects(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	_, err := svc.Register(ctx, &models.CreateUserRequest{Email: "a@b.co", Password: "correct-horse"})
	require.NoError(t, err)
	resp, err := svc.Login(ctx, &models.LoginRequest{Email: "a@b.co", Password: "correct-horse"})
	require.NoError(t, err)

	other := NewService(newMemoryUsers(), config.JWTConfig{Secret: []byte("other"), ExpiresIn: time.Hour})
	_, err = other.ValidateToken(resp.Token)
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.ValidateToken(resp.Token)
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = svc.ValidateToken("garbage")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestMiddleware(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	_, err := svc.Register(ctx, &models.CreateUserRequest{Email: "a@b.co", Password: "correct-horse"})
	require.NoError(t, err)
	resp, err := svc.Login(ctx, &models.LoginRequest{Email: "a@b.co", Password: "correct-horse"})
	require.NoError(t, err)

	var seen int
	handler := svc.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	orphan, err := svc.generateToken(&models.User{ID: 999, Email: "gone@b.co"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "user deleted", header: "Bearer " + orphan, want: http.StatusUnauthorized},
		{name: "no header", header: "", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", want: http.StatusUnauthorized},
		{name: "bad token", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "valid", header: "Bearer " + resp.Token, want: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
	assert.Equal(t, resp.User.ID, seen)
}
