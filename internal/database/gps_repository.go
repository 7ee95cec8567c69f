package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ridematch/internal/models"

	"github.com/goccy/go-json"
)

// GPS Repository Implementation
func (db *PostgresDB) InsertLocation(ctx context.Context, userID int, lat, lng float64, ts time.Time) (*models.GPSLocation, error) {
	query := `
		INSERT INTO gps_locations (user_id, latitude, longitude, timestamp)
		VALUES ($1, $2, $3, $4)
		RETURNING id, user_id, latitude, longitude, timestamp`

	loc := &models.GPSLocation{}
	err := db.pool.QueryRow(ctx, query, userID, lat, lng, ts).Scan(
		&loc.ID, &loc.UserID, &loc.Latitude, &loc.Longitude, &loc.Timestamp,
	)
	if err != nil {
		return nil, mapForeignKey(err, fmt.Sprintf("user %d", userID))
	}
	return loc, nil
}

func (db *PostgresDB) ListLocations(ctx context.Context, userID int, r models.GPSRange, ascending bool) ([]models.GPSLocation, error) {
	where, args := rangeFilter(userID, r)
	order := "DESC"
	if ascending {
		order = "ASC"
	}
	query := `SELECT id, user_id, latitude, longitude, timestamp FROM gps_locations WHERE ` +
		where + ` ORDER BY timestamp ` + order
	if r.Limit > 0 {
		args = append(args, r.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	locations := []models.GPSLocation{}
	for rows.Next() {
		var loc models.GPSLocation
		if err := rows.Scan(&loc.ID, &loc.UserID, &loc.Latitude, &loc.Longitude, &loc.Timestamp); err != nil {
			return nil, err
		}
		locations = append(locations, loc)
	}
	return locations, rows.Err()
}

func (db *PostgresDB) DeleteLocations(ctx context.Context, userID int, r models.GPSRange) (int64, error) {
	where, args := rangeFilter(userID, r)
	tag, err := db.pool.Exec(ctx, `DELETE FROM gps_locations WHERE `+where, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// rangeFilter builds the WHERE clause for a user's locations; To is exclusive.
func rangeFilter(userID int, r models.GPSRange) (string, []any) {
	clauses := []string{"user_id = $1"}
	args := []any{userID}
	if !r.From.IsZero() {
		args = append(args, r.From)
		clauses = append(clauses, fmt.Sprintf("timestamp >= $%d", len(args)))
	}
	if !r.To.IsZero() {
		args = append(args, r.To)
		clauses = append(clauses, fmt.Sprintf("timestamp < $%d", len(args)))
	}
	return strings.Join(clauses, " AND "), args
}

// Route Repository Implementation
func (db *PostgresDB) UpsertRoute(ctx context.Context, userID int, day time.Time, points []models.RoutePoint) (bool, error) {
	data, err := json.Marshal(points)
	if err != nil {
		return false, fmt.Errorf("failed to encode route: %w", err)
	}

	// xmax is non-zero when the row already existed and was updated.
	query := `
		INSERT INTO gps_routes (user_id, route_date, points, point_count)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, route_date) DO UPDATE
		SET points = EXCLUDED.points, point_count = EXCLUDED.point_count, updated_at = NOW()
		RETURNING xmax <> 0`

	var replaced bool
	if err := db.pool.QueryRow(ctx, query, userID, day, data, len(points)).Scan(&replaced); err != nil {
		return false, mapForeignKey(err, fmt.Sprintf("user %d", userID))
	}
	return replaced, nil
}

// ListRoutes returns route summaries, most recent day first.
func (db *PostgresDB) ListRoutes(ctx context.Context, userID, limit int) ([]models.GPSRouteSummary, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT route_date, point_count, updated_at
		FROM gps_routes
		WHERE user_id = $1
		ORDER BY route_date DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	routes := []models.GPSRouteSummary{}
	for rows.Next() {
		var day time.Time
		r := models.GPSRouteSummary{UserID: userID}
		if err := rows.Scan(&day, &r.PointCount, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Date = day.Format(time.DateOnly)
		routes = append(routes, r)
	}
	return routes, rows.Err()
}

func (db *PostgresDB) GetRoute(ctx context.Context, userID int, day time.Time) (*models.GPSRoute, error) {
	var data []byte
	route := &models.GPSRoute{UserID: userID, Date: day.Format(time.DateOnly)}
	err := db.pool.QueryRow(ctx,
		`SELECT points, updated_at FROM gps_routes WHERE user_id = $1 AND route_date = $2`,
		userID, day,
	).Scan(&data, &route.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	if err := json.Unmarshal(data, &route.Route); err != nil {
		return nil, fmt.Errorf("failed to decode route for user %d on %s: %w", userID, route.Date, err)
	}
	return route, nil
}

func (db *PostgresDB) DeleteRoute(ctx context.Context, userID int, day time.Time) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM gps_routes WHERE user_id = $1 AND route_date = $2`, userID, day)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
