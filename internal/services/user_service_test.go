package services

import (
	"context"
	"errors"
	"testing"

	"ridematch/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func strPtr(s string) *string { return &s }

func TestUpdateUser(t *testing.T) {
	store := newMemStore(1, 2)
	svc := NewUserService(store, store, staticOnline{}, nil)
	ctx := context.Background()

	age := 31
	user, err := svc.UpdateUser(ctx, 1, &models.UpdateUserRequest{
		Email:    strPtr("  New@Example.com "),
		Password: strPtr("hunter2hunter2"),
		Nickname: strPtr("rider"),
		Age:      &age,
	})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", user.Email)
	assert.Equal(t, "rider", *user.Nickname)
	assert.Equal(t, 31, *user.Age)

	stored, err := store.GetUserByID(ctx, 1)
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("hunter2hunter2")))

	_, err = svc.UpdateUser(ctx, 2, &models.UpdateUserRequest{Email: strPtr("new@example.com")})
	assert.ErrorIs(t, err, models.ErrConflict)

	_, err = svc.UpdateUser(ctx, 99, &models.UpdateUserRequest{Nickname: strPtr("ghost")})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSetHobbies(t *testing.T) {
	store := newMemStore(1)
	ctx := context.Background()
	hobbies := NewHobbyService(store)
	cycling, err := hobbies.CreateHobby(ctx, &models.CreateHobbyRequest{Name: "cycling"})
	require.NoError(t, err)
	hiking, err := hobbies.CreateHobby(ctx, &models.CreateHobbyRequest{Name: " hiking "})
	require.NoError(t, err)
	assert.Equal(t, "hiking", hiking.Name)

	svc := NewUserService(store, store, staticOnline{}, nil)

	user, err := svc.SetHobbies(ctx, 1, []int{cycling.ID, hiking.ID, cycling.ID})
	require.NoError(t, err)
	require.Len(t, user.Hobbies, 2)
	assert.Equal(t, "cycling", user.Hobbies[0].Name)

	user, err = svc.SetHobbies(ctx, 1, nil)
	require.NoError(t, err)
	assert.Empty(t, user.Hobbies)

	_, err = svc.SetHobbies(ctx, 1, []int{999})
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = svc.SetHobbies(ctx, 42, []int{cycling.ID})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCreateHobby(t *testing.T) {
	store := newMemStore()
	svc := NewHobbyService(store)
	ctx := context.Background()

	_, err := svc.CreateHobby(ctx, &models.CreateHobbyRequest{Name: "   "})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = svc.CreateHobby(ctx, &models.CreateHobbyRequest{Name: "climbing", Description: strPtr("indoor and out")})
	require.NoError(t, err)

	_, err = svc.CreateHobby(ctx, &models.CreateHobbyRequest{Name: "climbing"})
	assert.ErrorIs(t, err, models.ErrConflict)
	assert.Contains(t, err.Error(), `"climbing"`)

	list, err := svc.ListHobbies(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "indoor and out", *list[0].Description)
}

func TestPresence(t *testing.T) {
	ctx := context.Background()
	instance := "node-b"

	tests := []struct {
		name         string
		local        staticOnline
		presence     PresenceLookup
		status       *models.PresenceStatus
		wantOnline   bool
		wantLocal    bool
		wantInstance *string
	}{
		{
			name:       "no session anywhere",
			local:      staticOnline{},
			wantOnline: false,
		},
		{
			name:       "local session only",
			local:      staticOnline{"7": true},
			wantOnline: true,
			wantLocal:  true,
		},
		{
			name:         "session on another instance",
			local:        staticOnline{},
			presence:     &fakePresence{instances: map[string]string{"7": "node-b"}},
			wantOnline:   true,
			wantInstance: &instance,
		},
		{
			name:     "shared store says offline",
			local:    staticOnline{},
			presence: &fakePresence{instances: map[string]string{}},
			// the status row is ignored while the shared store answers
			status:     func() *models.PresenceStatus { s := models.StatusOnline; return &s }(),
			wantOnline: false,
		},
		{
			name:         "shared store down falls back to status row",
			local:        staticOnline{},
			presence:     &fakePresence{err: errors.New("connection refused")},
			status:       func() *models.PresenceStatus { s := models.StatusOnline; return &s }(),
			wantOnline:   true,
			wantInstance: &instance,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore(7)
			if tt.status != nil {
				require.NoError(t, store.UpsertUserStatus(ctx, 7, *tt.status, &instance, nil))
			}
			svc := NewUserService(store, store, tt.local, tt.presence)

			view, err := svc.Presence(ctx, 7)
			require.NoError(t, err)
			assert.Equal(t, 7, view.UserID)
			assert.Equal(t, tt.wantOnline, view.Online)
			assert.Equal(t, tt.wantLocal, view.LocalOnline)
			assert.Equal(t, tt.wantInstance, view.Instance)
		})
	}

	svc := NewUserService(newMemStore(), newMemStore(), staticOnline{}, nil)
	_, err := svc.Presence(ctx, 7)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
