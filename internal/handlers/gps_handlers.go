package handlers

import (
	"net/http"
	"strconv"

	"ridematch/internal/models"
	"ridematch/internal/services"

	"github.com/go-chi/chi/v5"
)

// maxRouteBodyBytes fits a full day's route of MaxGPSLimit points.
const maxRouteBodyBytes = 4 << 20

type GPSHandlers struct {
	gpsService *services.GPSService
}

func NewGPSHandlers(gpsService *services.GPSService) *GPSHandlers {
	return &GPSHandlers{gpsService: gpsService}
}

// RecordLocation handles POST /gps/location?user_id=.
func (h *GPSHandlers) RecordLocation(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.Atoi(r.URL.Query().Get("user_id"))
	if err != nil || userID <= 0 {
		writeDetail(w, http.StatusBadRequest, "invalid user_id")
		return
	}

	var req models.GPSLocationRequest
	if !decode(w, r, &req) {
		return
	}

	loc, err := h.gpsService.Record(r.Context(), userID, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, loc)
}

func (h *GPSHandlers) ListLocations(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathInt(w, r, "user_id")
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit", services.DefaultGPSLimit)
	if !ok {
		return
	}

	q := r.URL.Query()
	res, err := h.gpsService.List(r.Context(), userID, q.Get("start_date"), q.Get("end_date"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *GPSHandlers) LocationsByDate(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathInt(w, r, "user_id")
	if !ok {
		return
	}

	res, err := h.gpsService.ByDate(r.Context(), userID, chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *GPSHandlers) DeleteLocations(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathInt(w, r, "user_id")
	if !ok {
		return
	}

	q := r.URL.Query()
	res, err := h.gpsService.Delete(r.Context(), userID, q.Get("start_date"), q.Get("end_date"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// UploadRoute handles POST /gps/routes.
func (h *GPSHandlers) UploadRoute(w http.ResponseWriter, r *http.Request) {
	var req models.GPSRouteRequest
	if !decodeLimit(w, r, &req, maxRouteBodyBytes) {
		return
	}

	res, err := h.gpsService.UploadRoute(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *GPSHandlers) ListRoutes(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathInt(w, r, "user_id")
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit", services.DefaultRouteLimit)
	if !ok {
		return
	}

	routes, err := h.gpsService.Routes(r.Context(), userID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, routes)
}

func (h *GPSHandlers) GetRoute(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathInt(w, r, "user_id")
	if !ok {
		return
	}

	route, err := h.gpsService.Route(r.Context(), userID, chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, route)
}

func (h *GPSHandlers) DeleteRoute(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathInt(w, r, "user_id")
	if !ok {
		return
	}

	date := chi.URLParam(r, "date")
	if err := h.gpsService.DeleteRoute(r.Context(), userID, date); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Route for " + date + " deleted"})
}
