package models

import (
	"bytes"
	"strconv"

	"github.com/goccy/go-json"
)

type MessageType string

const (
	// inbound
	MessageTypeRegisterUser    MessageType = "register_user"
	MessageTypeCreateRoom      MessageType = "create_room"
	MessageTypeJoinRoom        MessageType = "join_room"
	MessageTypeLeaveRoom       MessageType = "leave_room"
	MessageTypeMessage         MessageType = "message"
	MessageTypeConnectRequest  MessageType = "connect_request"
	MessageTypeConnectResponse MessageType = "connect_response"

	// outbound
	MessageTypeUserRegistered  MessageType = "user_registered"
	MessageTypeRoomCreated     MessageType = "room_created"
	MessageTypeJoinedRoom      MessageType = "joined_room"
	MessageTypeLeftRoom        MessageType = "left_room"
	MessageTypeSessionReplaced MessageType = "session_replaced"
	MessageTypeError           MessageType = "error"
)

// VirtualPeerID is a reserved user id that accepts every connect_request.
const VirtualPeerID = "0000"

// ID is a user or room identifier that clients may send either as a JSON
// string or as a JSON number.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	if _, err := strconv.ParseFloat(string(data), 64); err != nil {
		return err
	}
	*id = ID(data)
	return nil
}

func (id ID) String() string { return string(id) }

// Envelope is an inbound frame. Only Type is required; the remaining fields
// depend on it.
type Envelope struct {
	Type     MessageType `json:"type"`
	UserID   ID          `json:"user_id,omitempty"`
	RoomID   ID          `json:"room_id,omitempty"`
	RoomName string      `json:"room_name,omitempty"`
	Sender   ID          `json:"sender,omitempty"`
	Content  string      `json:"content,omitempty"`
	// Echoed back untouched when present.
	MessageID any     `json:"id,omitempty"`
	Timestamp any     `json:"timestamp,omitempty"`
	ImageURL  *string `json:"imageUrl,omitempty"`
	From      ID      `json:"from,omitempty"`
	To        ID      `json:"to,omitempty"`
	Accept    *bool   `json:"accept,omitempty"`
}

// Frame is the generic outbound acknowledgement / error frame.
type Frame struct {
	Type         MessageType     `json:"type"`
	UserID       string          `json:"user_id,omitempty"`
	RoomID       string          `json:"room_id,omitempty"`
	RoomName     string          `json:"room_name,omitempty"`
	Message      string          `json:"message,omitempty"`
	ReceivedData json.RawMessage `json:"received_data,omitempty"`
	ReceivedText *string         `json:"received_text,omitempty"`
}

// ChatFrame is broadcast to a room for every accepted chat message.
type ChatFrame struct {
	Type      MessageType `json:"type"`
	RoomID    string      `json:"room_id"`
	Sender    string      `json:"sender"`
	Content   string      `json:"content"`
	MessageID any         `json:"id,omitempty"`
	Timestamp any         `json:"timestamp,omitempty"`
	ImageURL  *string     `json:"imageUrl,omitempty"`
}

// ConnectFrame carries connect_request and rejected connect_response frames.
type ConnectFrame struct {
	Type   MessageType `json:"type"`
	From   string      `json:"from"`
	To     string      `json:"to"`
	Accept *bool       `json:"accept,omitempty"`
}

// FriendRoomFrame is the accepted connect_response sent to both peers.
type FriendRoomFrame struct {
	Type        MessageType   `json:"type"`
	From        string        `json:"from"`
	To          string        `json:"to"`
	Accept      bool          `json:"accept"`
	RoomID      string        `json:"room_id"`
	ChatHistory []ChatMessage `json:"chat_history"`
}

func ErrorFrame(message string) Frame {
	return Frame{Type: MessageTypeError, Message: message}
}
