package handlers

import (
	"net/http"

	"ridematch/internal/auth"
	"ridematch/internal/models"
	"ridematch/internal/services"
)

type UserHandlers struct {
	userService  *services.UserService
	hobbyService *services.HobbyService
}

func NewUserHandlers(userService *services.UserService, hobbyService *services.HobbyService) *UserHandlers {
	return &UserHandlers{
		userService:  userService,
		hobbyService: hobbyService,
	}
}

func (h *UserHandlers) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}

	user, err := h.userService.GetUser(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandlers) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := selfOnly(w, r)
	if !ok {
		return
	}

	var req models.UpdateUserRequest
	if !decode(w, r, &req) {
		return
	}

	user, err := h.userService.UpdateUser(r.Context(), id, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandlers) SetHobbies(w http.ResponseWriter, r *http.Request) {
	id, ok := selfOnly(w, r)
	if !ok {
		return
	}

	var req models.SetHobbiesRequest
	if !decode(w, r, &req) {
		return
	}

	user, err := h.userService.SetHobbies(r.Context(), id, req.HobbyIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandlers) Status(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}

	view, err := h.userService.Presence(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *UserHandlers) ListHobbies(w http.ResponseWriter, r *http.Request) {
	hobbies, err := h.hobbyService.ListHobbies(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hobbies)
}

func (h *UserHandlers) CreateHobby(w http.ResponseWriter, r *http.Request) {
	var req models.CreateHobbyRequest
	if !decode(w, r, &req) {
		return
	}

	hobby, err := h.hobbyService.CreateHobby(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, hobby)
}

// selfOnly resolves the {id} path parameter and requires it to match the
// authenticated user.
func selfOnly(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return 0, false
	}
	caller, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "not authenticated")
		return 0, false
	}
	if caller != id {
		writeDetail(w, http.StatusForbidden, "cannot modify another user")
		return 0, false
	}
	return id, true
}
