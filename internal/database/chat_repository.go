package database

import (
	"context"
	"fmt"

	"ridematch/internal/models"

	"github.com/jackc/pgx/v5"
)

// Friend Repository Implementation
func (db *PostgresDB) ConnectFriends(ctx context.Context, userID, friendID int, roomID, roomName string) (bool, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	created, err := insertFriendship(ctx, tx, userID, friendID)
	if err != nil {
		return false, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO chat_rooms (id, name, created_at) VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO NOTHING`, roomID, roomName)
	if err != nil {
		return false, fmt.Errorf("failed to create chat room %s: %w", roomID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return created, nil
}

// insertFriendship writes both directed edges and reports whether either
// was new.
func insertFriendship(ctx context.Context, tx pgx.Tx, userID, friendID int) (bool, error) {
	var inserted int64
	for _, pair := range [2][2]int{{userID, friendID}, {friendID, userID}} {
		tag, err := tx.Exec(ctx, `
			INSERT INTO user_friends (user_id, friend_id) VALUES ($1, $2)
			ON CONFLICT (user_id, friend_id) DO NOTHING`, pair[0], pair[1])
		if err != nil {
			return false, mapForeignKey(err, "user")
		}
		inserted += tag.RowsAffected()
	}
	return inserted > 0, nil
}

func (db *PostgresDB) RemoveFriendship(ctx context.Context, userID, friendID int) error {
	_, err := db.pool.Exec(ctx, `
		DELETE FROM user_friends
		WHERE (user_id = $1 AND friend_id = $2) OR (user_id = $2 AND friend_id = $1)`,
		userID, friendID)
	return err
}

func (db *PostgresDB) ListFriends(ctx context.Context, userID int) ([]models.User, error) {
	query := `
		SELECT u.id, u.email, u.password_hash, u.nickname, u.avatar_url, u.gender, u.age, u.location, u.created_at
		FROM user_friends f
		JOIN users u ON u.id = f.friend_id
		WHERE f.user_id = $1
		ORDER BY u.id`

	rows, err := db.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	friends := []models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		friends = append(friends, *user)
	}
	return friends, rows.Err()
}

// Chat Repository Implementation
func (db *PostgresDB) FindOrCreateChatRoom(ctx context.Context, id, name string) (*models.ChatRoom, error) {
	query := `
		INSERT INTO chat_rooms (id, name, created_at) VALUES ($1, NULLIF($2, ''), NOW())
		ON CONFLICT (id) DO UPDATE SET id = EXCLUDED.id
		RETURNING id, name, created_at`

	room := &models.ChatRoom{}
	if err := db.pool.QueryRow(ctx, query, id, name).Scan(&room.ID, &room.Name, &room.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to find or create room %s: %w", id, err)
	}
	return room, nil
}

func (db *PostgresDB) GetChatRoom(ctx context.Context, id string) (*models.ChatRoom, error) {
	room := &models.ChatRoom{}
	err := db.pool.QueryRow(ctx, `SELECT id, name, created_at FROM chat_rooms WHERE id = $1`, id).
		Scan(&room.ID, &room.Name, &room.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return room, nil
}

func (db *PostgresDB) InsertChatMessage(ctx context.Context, roomID, senderID, content string, imageURL *string) (*models.ChatMessage, error) {
	query := `
		INSERT INTO chat_messages (room_id, sender_id, content, image_url, timestamp)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, room_id, sender_id, content, image_url, timestamp`

	msg := &models.ChatMessage{}
	err := db.pool.QueryRow(ctx, query, roomID, senderID, content, imageURL).Scan(
		&msg.ID, &msg.RoomID, &msg.SenderID, &msg.Content, &msg.ImageURL, &msg.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}
	return msg, nil
}

func (db *PostgresDB) RecentMessages(ctx context.Context, roomID string, limit int) ([]models.ChatMessage, error) {
	messages, err := db.MessagesPage(ctx, roomID, limit, 0)
	if err != nil {
		return nil, err
	}

	// Reverse to show oldest first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// MessagesPage returns messages newest first.
func (db *PostgresDB) MessagesPage(ctx context.Context, roomID string, limit, offset int) ([]models.ChatMessage, error) {
	query := `
		SELECT id, room_id, sender_id, content, image_url, timestamp
		FROM chat_messages
		WHERE room_id = $1
		ORDER BY timestamp DESC, id DESC
		LIMIT $2 OFFSET $3`

	rows, err := db.pool.Query(ctx, query, roomID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.ChatMessage{}
	for rows.Next() {
		var msg models.ChatMessage
		if err := rows.Scan(&msg.ID, &msg.RoomID, &msg.SenderID, &msg.Content, &msg.ImageURL, &msg.Timestamp); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (db *PostgresDB) LastMessage(ctx context.Context, roomID string) (*models.ChatMessage, error) {
	messages, err := db.MessagesPage(ctx, roomID, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, models.ErrNotFound
	}
	return &messages[0], nil
}
