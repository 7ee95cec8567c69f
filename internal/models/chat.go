package models

import (
	"fmt"
	"time"
)

type ChatRoom struct {
	ID        string    `json:"id"`
	Name      *string   `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type ChatMessage struct {
	ID        int       `json:"id"`
	RoomID    string    `json:"room_id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	ImageURL  *string   `json:"image_url"`
	Timestamp time.Time `json:"timestamp"`
}

type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
)

// UserStatus mirrors the user_status row. A stale "online" row can survive a
// crash without a clean disconnect.
type UserStatus struct {
	UserID         int            `json:"user_id"`
	Status         PresenceStatus `json:"status"`
	ServerInstance *string        `json:"server_instance"`
	LastSeen       time.Time      `json:"last_seen"`
	ConnectedAt    *time.Time     `json:"connected_at"`
}

// PresenceView is what GET /users/{id}/status returns.
type PresenceView struct {
	UserID      int     `json:"user_id"`
	Online      bool    `json:"online"`
	LocalOnline bool    `json:"local_online"`
	Instance    *string `json:"instance,omitempty"`
}

type ChatHistory struct {
	RoomID   string        `json:"room_id"`
	Messages []ChatMessage `json:"messages"`
	Total    int           `json:"total"`
}

// FriendRoomID is the chat room shared by two friends; argument order does
// not matter.
func FriendRoomID(a, b int) string {
	return fmt.Sprintf("friend_%d_%d", min(a, b), max(a, b))
}

func FriendRoomName(a, b int) string {
	return fmt.Sprintf("Chat_%d_%d", min(a, b), max(a, b))
}

type ActiveUsers struct {
	RoomID      string   `json:"room_id"`
	ActiveUsers []string `json:"active_users"`
	Count       int      `json:"count"`
}
