package services

import (
	"context"
	"fmt"

	"ridematch/internal/database"
	"ridematch/internal/models"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

// RoomDirectory reports which connected users are currently in a room.
type RoomDirectory interface {
	RoomMembers(roomID string) []string
}

type RoomService struct {
	chats   database.ChatRepository
	members RoomDirectory
}

func NewRoomService(chats database.ChatRepository, members RoomDirectory) *RoomService {
	return &RoomService{chats: chats, members: members}
}

// History returns one page of a room's messages, oldest first. offset counts
// back from the newest message.
func (s *RoomService) History(ctx context.Context, roomID string, limit, offset int) (*models.ChatHistory, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	if offset < 0 {
		return nil, fmt.Errorf("%w: offset must not be negative", models.ErrInvalidInput)
	}

	if _, err := s.chats.GetChatRoom(ctx, roomID); err != nil {
		return nil, fmt.Errorf("chat room %s: %w", roomID, err)
	}

	messages, err := s.chats.MessagesPage(ctx, roomID, limit, offset)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return &models.ChatHistory{RoomID: roomID, Messages: messages, Total: len(messages)}, nil
}

// ActiveUsers lists the users connected to this instance whose current room
// is roomID.
func (s *RoomService) ActiveUsers(ctx context.Context, roomID string) (*models.ActiveUsers, error) {
	if _, err := s.chats.GetChatRoom(ctx, roomID); err != nil {
		return nil, fmt.Errorf("chat room %s: %w", roomID, err)
	}

	users := s.members.RoomMembers(roomID)
	if users == nil {
		users = []string{}
	}
	return &models.ActiveUsers{RoomID: roomID, ActiveUsers: users, Count: len(users)}, nil
}
