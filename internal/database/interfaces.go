package database

import (
	"context"
	"time"

	"ridematch/internal/models"
)

// UserUpdate is a partial update; nil fields are left unchanged.
type UserUpdate struct {
	Email        *string
	PasswordHash *string
	Nickname     *string
	Gender       *string
	Age          *int
	Location     *string
}

type UserRepository interface {
	CreateUser(ctx context.Context, email, passwordHash string, nickname *string) (*models.User, error)
	GetUserByID(ctx context.Context, id int) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUser(ctx context.Context, id int, upd UserUpdate) (*models.User, error)
	// SetAvatarURL replaces the avatar URL; nil clears it.
	SetAvatarURL(ctx context.Context, id int, url *string) (*models.User, error)
	ListUserHobbies(ctx context.Context, userID int) ([]models.Hobby, error)
	SetUserHobbies(ctx context.Context, userID int, hobbyIDs []int) error
}

type HobbyRepository interface {
	ListHobbies(ctx context.Context) ([]models.Hobby, error)
	CreateHobby(ctx context.Context, name string, description *string) (*models.Hobby, error)
}

type FriendRepository interface {
	// ConnectFriends adds the friendship and the shared chat room in one
	// transaction. It reports whether the friendship is new.
	ConnectFriends(ctx context.Context, userID, friendID int, roomID, roomName string) (bool, error)
	// RemoveFriendship deletes both directions; missing edges are not an error.
	RemoveFriendship(ctx context.Context, userID, friendID int) error
	ListFriends(ctx context.Context, userID int) ([]models.User, error)
}

type ChatRepository interface {
	FindOrCreateChatRoom(ctx context.Context, id, name string) (*models.ChatRoom, error)
	GetChatRoom(ctx context.Context, id string) (*models.ChatRoom, error)
	InsertChatMessage(ctx context.Context, roomID, senderID, content string, imageURL *string) (*models.ChatMessage, error)
	// RecentMessages returns at most limit messages, oldest first.
	RecentMessages(ctx context.Context, roomID string, limit int) ([]models.ChatMessage, error)
	MessagesPage(ctx context.Context, roomID string, limit, offset int) ([]models.ChatMessage, error)
	LastMessage(ctx context.Context, roomID string) (*models.ChatMessage, error)
}

type StatusRepository interface {
	UpsertUserStatus(ctx context.Context, userID int, status models.PresenceStatus, serverInstance *string, connectedAt *time.Time) error
	GetUserStatus(ctx context.Context, userID int) (*models.UserStatus, error)
}

type GPSRepository interface {
	InsertLocation(ctx context.Context, userID int, lat, lng float64, ts time.Time) (*models.GPSLocation, error)
	ListLocations(ctx context.Context, userID int, r models.GPSRange, ascending bool) ([]models.GPSLocation, error)
	DeleteLocations(ctx context.Context, userID int, r models.GPSRange) (int64, error)

	// Routes are keyed by user and UTC day.
	UpsertRoute(ctx context.Context, userID int, day time.Time, points []models.RoutePoint) (replaced bool, err error)
	ListRoutes(ctx context.Context, userID, limit int) ([]models.GPSRouteSummary, error)
	GetRoute(ctx context.Context, userID int, day time.Time) (*models.GPSRoute, error)
	DeleteRoute(ctx context.Context, userID int, day time.Time) error
}

type Database interface {
	UserRepository
	HobbyRepository
	FriendRepository
	ChatRepository
	StatusRepository
	GPSRepository
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
