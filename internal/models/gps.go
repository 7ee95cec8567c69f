package models

import "time"

type GPSLocation struct {
	ID        int       `json:"id"`
	UserID    int       `json:"user_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

type GPSLocationRequest struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lng float64 `json:"lng" validate:"longitude"`
	// Ts is an RFC 3339 timestamp.
	Ts string `json:"ts" validate:"required"`
}

// GPSRange bounds a location query. Zero values mean unbounded.
type GPSRange struct {
	From  time.Time
	To    time.Time
	Limit int
}

type GPSLocations struct {
	UserID    int           `json:"user_id"`
	Date      string        `json:"date,omitempty"`
	Total     int           `json:"total_locations"`
	Locations []GPSLocation `json:"locations"`
}

type GPSDeleted struct {
	UserID       int   `json:"user_id"`
	DeletedCount int64 `json:"deleted_count"`
}

// GPSRouteRequest uploads one user's full route for a day. Uploading the
// same day again replaces the stored route.
type GPSRouteRequest struct {
	UserID ID                   `json:"user_id" validate:"required"`
	Date   string               `json:"date" validate:"required"`
	Route  []GPSLocationRequest `json:"route" validate:"required,min=1,max=10000,dive"`
}

type RoutePoint struct {
	Lat float64   `json:"lat"`
	Lng float64   `json:"lng"`
	Ts  time.Time `json:"ts"`
}

type GPSRoute struct {
	UserID    int          `json:"user_id"`
	Date      string       `json:"date"`
	Route     []RoutePoint `json:"route"`
	UpdatedAt time.Time    `json:"updated_at"`
}

type GPSRouteSummary struct {
	UserID     int       `json:"user_id"`
	Date       string    `json:"date"`
	PointCount int       `json:"point_count"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type GPSRouteUploaded struct {
	Message    string `json:"message"`
	UserID     int    `json:"user_id"`
	Date       string `json:"date"`
	PointCount int    `json:"point_count"`
	Replaced   bool   `json:"replaced"`
}
