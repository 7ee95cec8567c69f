package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ridematch/internal/models"
	"ridematch/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(ctx context.Context, databaseURL string) (*PostgresDB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info().Msg("connected to database")
	return &PostgresDB{pool: pool}, nil
}

func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

func (db *PostgresDB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Migrate creates any missing tables and indexes.
func (db *PostgresDB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	logger.Info().Msg("database schema up to date")
	return nil
}

// mapError translates driver errors into the model sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", models.ErrConflict, pgErr.ConstraintName)
	}
	return err
}

// mapForeignKey reports a missing referenced row as ErrNotFound.
func mapForeignKey(err error, what string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		return fmt.Errorf("%w: %s", models.ErrNotFound, what)
	}
	return mapError(err)
}

const userColumns = `id, email, password_hash, nickname, avatar_url, gender, age, location, created_at`

func scanUser(row pgx.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.Nickname, &user.AvatarURL,
		&user.Gender, &user.Age, &user.Location, &user.CreatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return user, nil
}

// User Repository Implementation
func (db *PostgresDB) CreateUser(ctx context.Context, email, passwordHash string, nickname *string) (*models.User, error) {
	query := `
		INSERT INTO users (email, password_hash, nickname, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING ` + userColumns

	user, err := scanUser(db.pool.QueryRow(ctx, query, email, passwordHash, nickname))
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

func (db *PostgresDB) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	return scanUser(db.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (db *PostgresDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(db.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

func (db *PostgresDB) UpdateUser(ctx context.Context, id int, upd UserUpdate) (*models.User, error) {
	var sets []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if upd.Email != nil {
		add("email", *upd.Email)
	}
	if upd.PasswordHash != nil {
		add("password_hash", *upd.PasswordHash)
	}
	if upd.Nickname != nil {
		add("nickname", *upd.Nickname)
	}
	if upd.Gender != nil {
		add("gender", *upd.Gender)
	}
	if upd.Age != nil {
		add("age", *upd.Age)
	}
	if upd.Location != nil {
		add("location", *upd.Location)
	}
	if len(sets) == 0 {
		return db.GetUserByID(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), userColumns)

	user, err := scanUser(db.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("failed to update user %d: %w", id, err)
	}
	return user, nil
}

func (db *PostgresDB) SetAvatarURL(ctx context.Context, id int, url *string) (*models.User, error) {
	user, err := scanUser(db.pool.QueryRow(ctx,
		`UPDATE users SET avatar_url = $1 WHERE id = $2 RETURNING `+userColumns, url, id))
	if err != nil {
		return nil, fmt.Errorf("failed to set avatar for user %d: %w", id, err)
	}
	return user, nil
}

func (db *PostgresDB) ListUserHobbies(ctx context.Context, userID int) ([]models.Hobby, error) {
	query := `
		SELECT h.id, h.name, h.description
		FROM user_hobbies uh
		JOIN hobbies h ON h.id = uh.hobby_id
		WHERE uh.user_id = $1
		ORDER BY h.name`

	rows, err := db.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hobbies := []models.Hobby{}
	for rows.Next() {
		var h models.Hobby
		if err := rows.Scan(&h.ID, &h.Name, &h.Description); err != nil {
			return nil, err
		}
		hobbies = append(hobbies, h)
	}
	return hobbies, rows.Err()
}

// SetUserHobbies replaces the user's hobby set.
func (db *PostgresDB) SetUserHobbies(ctx context.Context, userID int, hobbyIDs []int) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM user_hobbies WHERE user_id = $1`, userID); err != nil {
		return err
	}
	for _, hobbyID := range hobbyIDs {
		_, err := tx.Exec(ctx, `
			INSERT INTO user_hobbies (user_id, hobby_id) VALUES ($1, $2)
			ON CONFLICT (user_id, hobby_id) DO NOTHING`, userID, hobbyID)
		if err != nil {
			return mapForeignKey(err, fmt.Sprintf("hobby %d", hobbyID))
		}
	}

	return tx.Commit(ctx)
}

// Hobby Repository Implementation
func (db *PostgresDB) ListHobbies(ctx context.Context) ([]models.Hobby, error) {
	rows, err := db.pool.Query(ctx, `SELECT id, name, description FROM hobbies ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hobbies := []models.Hobby{}
	for rows.Next() {
		var h models.Hobby
		if err := rows.Scan(&h.ID, &h.Name, &h.Description); err != nil {
			return nil, err
		}
		hobbies = append(hobbies, h)
	}
	return hobbies, rows.Err()
}

func (db *PostgresDB) CreateHobby(ctx context.Context, name string, description *string) (*models.Hobby, error) {
	query := `INSERT INTO hobbies (name, description) VALUES ($1, $2) RETURNING id, name, description`

	h := &models.Hobby{}
	if err := db.pool.QueryRow(ctx, query, name, description).Scan(&h.ID, &h.Name, &h.Description); err != nil {
		return nil, mapError(err)
	}
	return h, nil
}

// Status Repository Implementation
func (db *PostgresDB) UpsertUserStatus(ctx context.Context, userID int, status models.PresenceStatus, serverInstance *string, connectedAt *time.Time) error {
	query := `
		INSERT INTO user_status (user_id, status, server_instance, last_seen, connected_at)
		VALUES ($1, $2, $3, NOW(), $4)
		ON CONFLICT (user_id) DO UPDATE SET
			status = EXCLUDED.status,
			server_instance = EXCLUDED.server_instance,
			last_seen = NOW(),
			connected_at = COALESCE(EXCLUDED.connected_at, user_status.connected_at)`

	_, err := db.pool.Exec(ctx, query, userID, string(status), serverInstance, connectedAt)
	return err
}

func (db *PostgresDB) GetUserStatus(ctx context.Context, userID int) (*models.UserStatus, error) {
	query := `SELECT user_id, status, server_instance, last_seen, connected_at FROM user_status WHERE user_id = $1`

	st := &models.UserStatus{}
	var status string
	err := db.pool.QueryRow(ctx, query, userID).Scan(
		&st.UserID, &status, &st.ServerInstance, &st.LastSeen, &st.ConnectedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	st.Status = models.PresenceStatus(status)
	return st, nil
}
