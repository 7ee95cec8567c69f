package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"ridematch/internal/database"
	"ridematch/internal/models"
	"ridematch/pkg/logger"
)

const (
	DefaultGPSLimit   = 1000
	MaxGPSLimit       = 10000
	DefaultRouteLimit = 30
	MaxRouteLimit     = 365
	dateLayout        = "2006-01-02"
)

type GPSService struct {
	users     database.UserRepository
	locations database.GPSRepository
}

func NewGPSService(users database.UserRepository, locations database.GPSRepository) *GPSService {
	return &GPSService{users: users, locations: locations}
}

func (s *GPSService) Record(ctx context.Context, userID int, req *models.GPSLocationRequest) (*models.GPSLocation, error) {
	if req.Lat < -90 || req.Lat > 90 {
		return nil, fmt.Errorf("%w: latitude must be between -90 and 90", models.ErrInvalidInput)
	}
	if req.Lng < -180 || req.Lng > 180 {
		return nil, fmt.Errorf("%w: longitude must be between -180 and 180", models.ErrInvalidInput)
	}
	ts, err := time.Parse(time.RFC3339, req.Ts)
	if err != nil {
		return nil, fmt.Errorf("%w: ts must be an RFC 3339 timestamp", models.ErrInvalidInput)
	}

	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		return nil, err
	}

	loc, err := s.locations.InsertLocation(ctx, userID, req.Lat, req.Lng, ts.UTC())
	if err != nil {
		return nil, err
	}
	logger.Debug().Int("user_id", userID).Float64("lat", req.Lat).Float64("lng", req.Lng).Msg("gps location recorded")
	return loc, nil
}

// List returns a user's locations newest first. start and end accept a date
// or an RFC 3339 timestamp; a date-only end includes that whole day.
func (s *GPSService) List(ctx context.Context, userID int, start, end string, limit int) (*models.GPSLocations, error) {
	r, err := parseRange(start, end)
	if err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		r.Limit = DefaultGPSLimit
	case limit > MaxGPSLimit:
		r.Limit = MaxGPSLimit
	default:
		r.Limit = limit
	}

	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		return nil, err
	}
	locations, err := s.locations.ListLocations(ctx, userID, r, false)
	if err != nil {
		return nil, err
	}
	return &models.GPSLocations{UserID: userID, Total: len(locations), Locations: locations}, nil
}

// ByDate returns one UTC day of locations in chronological order.
func (s *GPSService) ByDate(ctx context.Context, userID int, date string) (*models.GPSLocations, error) {
	day, err := time.Parse(dateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", models.ErrInvalidInput)
	}

	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		return nil, err
	}
	r := models.GPSRange{From: day, To: day.AddDate(0, 0, 1)}
	locations, err := s.locations.ListLocations(ctx, userID, r, true)
	if err != nil {
		return nil, err
	}
	return &models.GPSLocations{UserID: userID, Date: date, Total: len(locations), Locations: locations}, nil
}

func (s *GPSService) Delete(ctx context.Context, userID int, start, end string) (*models.GPSDeleted, error) {
	r, err := parseRange(start, end)
	if err != nil {
		return nil, err
	}
	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		return nil, err
	}

	n, err := s.locations.DeleteLocations(ctx, userID, r)
	if err != nil {
		return nil, err
	}
	logger.Info().Int("user_id", userID).Int64("deleted", n).Msg("gps locations deleted")
	return &models.GPSDeleted{UserID: userID, DeletedCount: n}, nil
}

// UploadRoute stores a full day's route, replacing any route already
// uploaded for that day.
func (s *GPSService) UploadRoute(ctx context.Context, req *models.GPSRouteRequest) (*models.GPSRouteUploaded, error) {
	userID, err := strconv.Atoi(req.UserID.String())
	if err != nil || userID <= 0 {
		return nil, fmt.Errorf("%w: user_id must be a positive integer", models.ErrInvalidInput)
	}
	day, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", models.ErrInvalidInput)
	}
	if len(req.Route) == 0 || len(req.Route) > MaxGPSLimit {
		return nil, fmt.Errorf("%w: route must have between 1 and %d points", models.ErrInvalidInput, MaxGPSLimit)
	}

	points := make([]models.RoutePoint, 0, len(req.Route))
	for i, p := range req.Route {
		if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
			return nil, fmt.Errorf("%w: route[%d] is out of range", models.ErrInvalidInput, i)
		}
		ts, err := time.Parse(time.RFC3339, p.Ts)
		if err != nil {
			return nil, fmt.Errorf("%w: route[%d].ts must be an RFC 3339 timestamp", models.ErrInvalidInput, i)
		}
		points = append(points, models.RoutePoint{Lat: p.Lat, Lng: p.Lng, Ts: ts.UTC()})
	}

	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		return nil, err
	}
	replaced, err := s.locations.UpsertRoute(ctx, userID, day, points)
	if err != nil {
		return nil, err
	}
	logger.Info().Int("user_id", userID).Str("date", req.Date).Int("points", len(points)).Bool("replaced", replaced).Msg("gps route uploaded")
	return &models.GPSRouteUploaded{
		Message:    "Route uploaded",
		UserID:     userID,
		Date:       req.Date,
		PointCount: len(points),
		Replaced:   replaced,
	}, nil
}

// Routes lists a user's uploaded days, most recent first.
func (s *GPSService) Routes(ctx context.Context, userID, limit int) ([]models.GPSRouteSummary, error) {
	switch {
	case limit <= 0:
		limit = DefaultRouteLimit
	case limit > MaxRouteLimit:
		limit = MaxRouteLimit
	}
	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.locations.ListRoutes(ctx, userID, limit)
}

func (s *GPSService) Route(ctx context.Context, userID int, date string) (*models.GPSRoute, error) {
	day, err := time.Parse(dateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", models.ErrInvalidInput)
	}
	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.locations.GetRoute(ctx, userID, day)
}

func (s *GPSService) DeleteRoute(ctx context.Context, userID int, date string) error {
	day, err := time.Parse(dateLayout, date)
	if err != nil {
		return fmt.Errorf("%w: date must be YYYY-MM-DD", models.ErrInvalidInput)
	}
	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		return err
	}
	if err := s.locations.DeleteRoute(ctx, userID, day); err != nil {
		return err
	}
	logger.Info().Int("user_id", userID).Str("date", date).Msg("gps route deleted")
	return nil
}

func parseRange(start, end string) (models.GPSRange, error) {
	var r models.GPSRange
	var err error
	if start != "" {
		if r.From, _, err = parseBound(start); err != nil {
			return r, fmt.Errorf("%w: start_date: %v", models.ErrInvalidInput, err)
		}
	}
	if end != "" {
		var dateOnly bool
		if r.To, dateOnly, err = parseBound(end); err != nil {
			return r, fmt.Errorf("%w: end_date: %v", models.ErrInvalidInput, err)
		}
		if dateOnly {
			r.To = r.To.AddDate(0, 0, 1)
		}
	}
	if !r.From.IsZero() && !r.To.IsZero() && !r.From.Before(r.To) {
		return r, fmt.Errorf("%w: start_date must be before end_date", models.ErrInvalidInput)
	}
	return r, nil
}

func parseBound(v string) (time.Time, bool, error) {
	if t, err := time.Parse(dateLayout, v); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("expected YYYY-MM-DD or RFC 3339, got %q", v)
	}
	return t.UTC(), false, nil
}
