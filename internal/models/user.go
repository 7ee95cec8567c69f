package models

import "time"

type User struct {
	ID           int       `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Nickname     *string   `json:"nickname"`
	AvatarURL    *string   `json:"avatar_url"`
	Gender       *string   `json:"gender"`
	Age          *int      `json:"age"`
	Location     *string   `json:"location"`
	Hobbies      []Hobby   `json:"hobbies,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type Hobby struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

type CreateUserRequest struct {
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required,min=8,max=72"`
	Nickname *string `json:"nickname" validate:"omitempty,max=50"`
}

// UpdateUserRequest carries a partial update; nil fields are left untouched.
type UpdateUserRequest struct {
	Email    *string `json:"email" validate:"omitempty,email"`
	Password *string `json:"password" validate:"omitempty,min=8,max=72"`
	Nickname *string `json:"nickname" validate:"omitempty,max=50"`
	Gender   *string `json:"gender" validate:"omitempty,oneof=male female other"`
	Age      *int    `json:"age" validate:"omitempty,gte=0,lte=150"`
	Location *string `json:"location" validate:"omitempty,max=100"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type CreateHobbyRequest struct {
	Name        string  `json:"name" validate:"required,max=50"`
	Description *string `json:"description" validate:"omitempty,max=255"`
}

type SetHobbiesRequest struct {
	HobbyIDs []int `json:"hobby_ids" validate:"dive,gt=0"`
}

type FriendRequest struct {
	UserID   int `json:"user_id" validate:"required,gt=0"`
	FriendID int `json:"friend_id" validate:"required,gt=0,nefield=UserID"`
}

// Friend is one entry of a user's friend list.
type Friend struct {
	ID          int          `json:"id"`
	Email       string       `json:"email"`
	Nickname    *string      `json:"nickname"`
	AvatarURL   *string      `json:"avatar_url"`
	RoomID      string       `json:"room_id"`
	LastMessage *LastMessage `json:"last_message"`
}

type LastMessage struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	SenderID  string    `json:"sender_id"`
}

type FriendSummary struct {
	ID       int     `json:"id"`
	Email    string  `json:"email"`
	Nickname *string `json:"nickname"`
}

type FriendAdded struct {
	Message string        `json:"message"`
	RoomID  string        `json:"room_id"`
	Friend  FriendSummary `json:"friend"`
}

type FriendList struct {
	Friends []Friend `json:"friends"`
	Total   int      `json:"total"`
}

// AvatarUploadRequest carries a base64 image, optionally as a data URL.
type AvatarUploadRequest struct {
	AvatarBase64 string `json:"avatar_base64" validate:"required"`
}
