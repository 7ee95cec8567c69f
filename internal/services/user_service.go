package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"ridematch/internal/auth"
	"ridematch/internal/database"
	"ridematch/internal/models"
	"ridematch/pkg/logger"
)

// OnlineChecker answers whether this instance holds a live session for a user.
type OnlineChecker interface {
	IsOnline(userID string) bool
}

// PresenceLookup answers which instance holds a user's session, across
// instances.
type PresenceLookup interface {
	Instance(ctx context.Context, userID string) (string, bool, error)
}

type UserService struct {
	users    database.UserRepository
	statuses database.StatusRepository
	local    OnlineChecker
	presence PresenceLookup
}

// NewUserService builds the service; presence may be nil when no shared
// presence store is configured.
func NewUserService(users database.UserRepository, statuses database.StatusRepository, local OnlineChecker, presence PresenceLookup) *UserService {
	return &UserService{
		users:    users,
		statuses: statuses,
		local:    local,
		presence: presence,
	}
}

func (s *UserService) GetUser(ctx context.Context, id int) (*models.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	hobbies, err := s.users.ListUserHobbies(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load hobbies: %w", err)
	}
	user.Hobbies = hobbies
	return user, nil
}

func (s *UserService) UpdateUser(ctx context.Context, id int, req *models.UpdateUserRequest) (*models.User, error) {
	upd := database.UserUpdate{
		Nickname: req.Nickname,
		Gender:   req.Gender,
		Age:      req.Age,
		Location: req.Location,
	}
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		upd.Email = &email
	}
	if req.Password != nil {
		hash, err := auth.HashPassword(*req.Password)
		if err != nil {
			return nil, err
		}
		upd.PasswordHash = &hash
	}

	if _, err := s.users.UpdateUser(ctx, id, upd); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, fmt.Errorf("%w: email already registered", models.ErrConflict)
		}
		return nil, err
	}
	logger.Info().Int("user_id", id).Msg("user updated")
	return s.GetUser(ctx, id)
}

// SetHobbies replaces the user's hobbies. Duplicate ids are ignored.
func (s *UserService) SetHobbies(ctx context.Context, id int, hobbyIDs []int) (*models.User, error) {
	if _, err := s.users.GetUserByID(ctx, id); err != nil {
		return nil, err
	}

	seen := make(map[int]bool, len(hobbyIDs))
	unique := make([]int, 0, len(hobbyIDs))
	for _, hid := range hobbyIDs {
		if !seen[hid] {
			seen[hid] = true
			unique = append(unique, hid)
		}
	}

	if err := s.users.SetUserHobbies(ctx, id, unique); err != nil {
		return nil, err
	}
	return s.GetUser(ctx, id)
}

// Presence combines the local registry with the shared presence store, or
// with the persisted status row when no shared store is configured.
func (s *UserService) Presence(ctx context.Context, id int) (*models.PresenceView, error) {
	if _, err := s.users.GetUserByID(ctx, id); err != nil {
		return nil, err
	}

	key := strconv.Itoa(id)
	view := &models.PresenceView{UserID: id, LocalOnline: s.local.IsOnline(key)}

	if s.presence != nil {
		instance, ok, err := s.presence.Instance(ctx, key)
		if err == nil {
			view.Online = ok || view.LocalOnline
			if ok {
				view.Instance = &instance
			}
			return view, nil
		}
		logger.Warn().Err(err).Int("user_id", id).Msg("presence store unavailable, falling back to status row")
	}

	status, err := s.statuses.GetUserStatus(ctx, id)
	switch {
	case errors.Is(err, models.ErrNotFound):
		view.Online = view.LocalOnline
	case err != nil:
		return nil, err
	default:
		view.Online = view.LocalOnline || status.Status == models.StatusOnline
		view.Instance = status.ServerInstance
	}
	return view, nil
}
