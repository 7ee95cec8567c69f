package services

import (
	"context"
	"errors"
	"fmt"

	"ridematch/internal/database"
	"ridematch/internal/models"
	"ridematch/pkg/logger"
)

type FriendService struct {
	users   database.UserRepository
	friends database.FriendRepository
	chats   database.ChatRepository
}

func NewFriendService(users database.UserRepository, friends database.FriendRepository, chats database.ChatRepository) *FriendService {
	return &FriendService{users: users, friends: friends, chats: chats}
}

// AddFriend links both users and creates their shared chat room.
func (s *FriendService) AddFriend(ctx context.Context, userID, friendID int) (*models.FriendAdded, error) {
	if userID == friendID {
		return nil, fmt.Errorf("%w: cannot befriend yourself", models.ErrInvalidInput)
	}
	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		return nil, fmt.Errorf("user %d: %w", userID, err)
	}
	friend, err := s.users.GetUserByID(ctx, friendID)
	if err != nil {
		return nil, fmt.Errorf("friend %d: %w", friendID, err)
	}

	roomID := models.FriendRoomID(userID, friendID)
	created, err := s.friends.ConnectFriends(ctx, userID, friendID, roomID, models.FriendRoomName(userID, friendID))
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, fmt.Errorf("%w: already friends", models.ErrConflict)
	}

	logger.Info().Int("user_id", userID).Int("friend_id", friendID).Str("room_id", roomID).Msg("friend added")
	return &models.FriendAdded{
		Message: "Friend added successfully",
		RoomID:  roomID,
		Friend: models.FriendSummary{
			ID:       friend.ID,
			Email:    friend.Email,
			Nickname: friend.Nickname,
		},
	}, nil
}

func (s *FriendService) ListFriends(ctx context.Context, userID int) (*models.FriendList, error) {
	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		return nil, err
	}

	users, err := s.friends.ListFriends(ctx, userID)
	if err != nil {
		return nil, err
	}

	friends := make([]models.Friend, 0, len(users))
	for _, u := range users {
		f := models.Friend{
			ID:        u.ID,
			Email:     u.Email,
			Nickname:  u.Nickname,
			AvatarURL: u.AvatarURL,
			RoomID:    models.FriendRoomID(userID, u.ID),
		}

		last, err := s.chats.LastMessage(ctx, f.RoomID)
		switch {
		case err == nil:
			f.LastMessage = &models.LastMessage{
				Content:   last.Content,
				Timestamp: last.Timestamp,
				SenderID:  last.SenderID,
			}
		case !errors.Is(err, models.ErrNotFound):
			return nil, err
		}
		friends = append(friends, f)
	}

	return &models.FriendList{Friends: friends, Total: len(friends)}, nil
}

func (s *FriendService) RemoveFriend(ctx context.Context, userID, friendID int) error {
	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		return err
	}
	if _, err := s.users.GetUserByID(ctx, friendID); err != nil {
		return err
	}
	if err := s.friends.RemoveFriendship(ctx, userID, friendID); err != nil {
		return err
	}
	logger.Info().Int("user_id", userID).Int("friend_id", friendID).Msg("friend removed")
	return nil
}
